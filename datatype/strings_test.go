package datatype

import "testing"

func TestHexStringDecode(t *testing.T) {
	dt, err := Base().Get("HEX:3")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	v, err := dt.Decode([]byte{0x01, 0xAB, 0xFF})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := v.Text(); got != "01 ab ff" {
		t.Fatalf("got %q", got)
	}
}

func TestHexStringEncode(t *testing.T) {
	dt, err := Base().Get("HEX:2")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	enc, err := dt.Encode(StringValue("0a 1b"))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if enc[0] != 0x0a || enc[1] != 0x1b {
		t.Fatalf("got % x", enc)
	}
}

func TestSTRPadding(t *testing.T) {
	dt, err := Base().Get("STR:5")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	enc, err := dt.Encode(StringValue("ab"))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(enc) != "ab   " {
		t.Fatalf("got %q", enc)
	}
	v, err := dt.Decode(enc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v.S != "ab" {
		t.Fatalf("got %q", v.S)
	}
}

func TestNTSTermination(t *testing.T) {
	dt, err := Base().Get("NTS:5")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	enc, err := dt.Encode(StringValue("ab"))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if enc[2] != 0 {
		t.Fatalf("expected NUL terminator, got % x", enc)
	}
	v, err := dt.Decode(enc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v.S != "ab" {
		t.Fatalf("got %q", v.S)
	}
}
