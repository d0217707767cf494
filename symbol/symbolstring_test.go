package symbol

import (
	"encoding/hex"
	"testing"
)

func TestAppendEscapingRoundTrip(t *testing.T) {
	cases := [][]byte{
		{0x01, 0x02, 0x03},
		{ESC},
		{SYN},
		{0xFF, ESC, SYN, 0x00},
	}
	for _, logical := range cases {
		enc := New()
		for _, b := range logical {
			enc.AppendEscaping(b)
		}
		if enc.Len() != len(logical) {
			t.Fatalf("Len() = %d, want %d", enc.Len(), len(logical))
		}
		for i, b := range logical {
			if enc.At(i) != b {
				t.Fatalf("At(%d) = %#x, want %#x", i, enc.At(i), b)
			}
		}
	}
}

// wireBytesFor returns the escaped wire bytes that AppendEscaping's CRC
// is computed over, so AppendUnescaping round-trip can be tested
// directly against a real wire stream.
func wireBytesFor(logical []byte) []byte {
	var wire []byte
	for _, b := range logical {
		switch b {
		case ESC:
			wire = append(wire, ESC, 0x00)
		case SYN:
			wire = append(wire, ESC, 0x01)
		default:
			wire = append(wire, b)
		}
	}
	return wire
}

func TestUnescapeRoundTrip(t *testing.T) {
	cases := [][]byte{
		{0x01, 0x02, 0x03},
		{ESC},
		{SYN},
		{0xFF, ESC, SYN, 0x00},
		{},
	}
	for _, logical := range cases {
		wire := wireBytesFor(logical)
		dec := New()
		previousEscape := false
		for _, w := range wire {
			if _, err := dec.AppendUnescaping(w, &previousEscape); err != nil {
				t.Fatalf("unescape error: %v", err)
			}
		}
		if previousEscape {
			t.Fatalf("unexpected dangling escape for %v", logical)
		}
		if !dec.Equal(FromUnescaped(logical)) {
			t.Fatalf("unescape(escape(%v)) = %v", logical, dec.Bytes())
		}
	}
}

func TestUnescapeInvalidFollower(t *testing.T) {
	dec := New()
	previousEscape := false
	if _, err := dec.AppendUnescaping(ESC, &previousEscape); err != nil {
		t.Fatalf("unexpected error on ESC prefix: %v", err)
	}
	if !previousEscape {
		t.Fatalf("expected previousEscape=true after ESC prefix")
	}
	_, err := dec.AppendUnescaping(0x42, &previousEscape)
	if err == nil {
		t.Fatalf("expected InvalidEscape for ESC followed by 0x42")
	}
}

func TestCRCKnownValue(t *testing.T) {
	// 10feb5050427a915aa -> 0x77, a known vector from original_source's
	// test_symbol.cpp. CRCOverRange is used rather than ParseHex because
	// this vector's raw bytes include 0xaa (SYN), which is only valid
	// here as CRC input, not as a logical unescaped byte.
	raw, err := hex.DecodeString("10feb5050427a915aa")
	if err != nil {
		t.Fatalf("DecodeString: %v", err)
	}
	if got := CRCOverRange(raw, 0, len(raw)); got != 0x77 {
		t.Fatalf("CRC = %#x, want 0x77", got)
	}

	// ff08b509030d2900 from spec.md scenario 1 (master telegram minus CRC byte).
	s, err := ParseHex("ff08b509030d2900", false)
	if err != nil {
		t.Fatalf("ParseHex: %v", err)
	}
	// CRC must be deterministic and repeatable for the same input.
	crc1 := s.CRC()
	s2, _ := ParseHex("ff08b509030d2900", false)
	if s2.CRC() != crc1 {
		t.Fatalf("CRC not deterministic: %x vs %x", crc1, s2.CRC())
	}
}

func TestIsMaster(t *testing.T) {
	masters := MasterAddresses()
	if len(masters) != 25 {
		t.Fatalf("expected 25 master addresses, got %d", len(masters))
	}
	for _, m := range masters {
		if !IsMaster(m) {
			t.Fatalf("%#x should be a master address", m)
		}
		if IsSlave(m) {
			t.Fatalf("%#x is a master and must not be a slave", m)
		}
	}
	if IsMaster(0x08) {
		t.Fatalf("0x08 should not be a master address")
	}
	if !IsSlave(0x08) {
		t.Fatalf("0x08 should be a slave address")
	}
	if IsSlave(SYN) || IsSlave(ESC) || IsSlave(BROADCAST) {
		t.Fatalf("reserved symbols must not be slave addresses")
	}
}

func TestHexStringRoundTrip(t *testing.T) {
	s, err := ParseHex("ff08b509030d2900", false)
	if err != nil {
		t.Fatalf("ParseHex: %v", err)
	}
	if got := s.HexString(); got != "ff08b509030d2900" {
		t.Fatalf("HexString() = %q", got)
	}
}
