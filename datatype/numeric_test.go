package datatype

import (
	"math"
	"testing"
)

func mustGet(t *testing.T, name string) *DataType {
	t.Helper()
	dt, err := Base().Get(name)
	if err != nil {
		t.Fatalf("Get(%s): %v", name, err)
	}
	return dt
}

func TestUCHRoundTrip(t *testing.T) {
	dt := mustGet(t, "UCH")
	v, err := dt.Decode([]byte{0x2A})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v.Kind != ValueInt || v.I != 42 {
		t.Fatalf("got %+v", v)
	}
	enc, err := dt.Encode(v)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if enc[0] != 0x2A {
		t.Fatalf("got %x", enc)
	}
}

func TestUCHReplacement(t *testing.T) {
	dt := mustGet(t, "UCH")
	v, err := dt.Decode([]byte{0xFF})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v.Kind != ValueNull {
		t.Fatalf("expected null, got %+v", v)
	}
}

func TestSCHSigned(t *testing.T) {
	dt := mustGet(t, "SCH")
	v, err := dt.Decode([]byte{0xFE}) // -2
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v.I != -2 {
		t.Fatalf("got %d", v.I)
	}
}

func TestBCDValidRoundTrip(t *testing.T) {
	dt := mustGet(t, "BCD")
	v, err := dt.Decode([]byte{0x42})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v.I != 42 {
		t.Fatalf("got %d", v.I)
	}
	enc, err := dt.Encode(v)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if enc[0] != 0x42 {
		t.Fatalf("got %x", enc)
	}
}

func TestBCDInvalidNibbleDecodesNull(t *testing.T) {
	dt := mustGet(t, "BCD")
	v, err := dt.Decode([]byte{0xFA})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v.Kind != ValueNull {
		t.Fatalf("expected null for invalid BCD 0xFA, got %+v", v)
	}
}

func TestHCDRoundTrip(t *testing.T) {
	dt := mustGet(t, "HCD")
	v, err := dt.Decode([]byte{42})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v.I != 42 {
		t.Fatalf("got %d", v.I)
	}
	enc, err := dt.Encode(v)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if enc[0] != 42 {
		t.Fatalf("got %d", enc[0])
	}
}

func TestHCDInvalidDigit(t *testing.T) {
	dt := mustGet(t, "HCD")
	v, err := dt.Decode([]byte{150})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v.Kind != ValueNull {
		t.Fatalf("expected null, got %+v", v)
	}
}

func TestD1CDivisor(t *testing.T) {
	dt := mustGet(t, "D1C")
	v, err := dt.Decode([]byte{0x03}) // 3 * 0.5 = 1.5
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v.Kind != ValueFloat || v.F != 1.5 {
		t.Fatalf("got %+v", v)
	}
}

func TestD2BDivisor(t *testing.T) {
	dt := mustGet(t, "D2B")
	// raw 256 (0x0100 LE: 00 01) divided by 256 => 1.0
	v, err := dt.Decode([]byte{0x00, 0x01})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v.Kind != ValueFloat || v.F != 1.0 {
		t.Fatalf("got %+v", v)
	}
}

func TestFLTRoundTrip(t *testing.T) {
	dt := mustGet(t, "FLT")
	enc, err := dt.Encode(FloatValue(1.234))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	v, err := dt.Decode(enc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if math.Abs(v.F-1.234) > 0.001 {
		t.Fatalf("got %v", v.F)
	}
}

func TestEXPFloatRoundTrip(t *testing.T) {
	dt := mustGet(t, "EXP")
	enc, err := dt.Encode(FloatValue(98.6))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	v, err := dt.Decode(enc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if math.Abs(v.F-98.6) > 0.001 {
		t.Fatalf("got %v", v.F)
	}
}

func TestUINReversed(t *testing.T) {
	dt := mustGet(t, "UIR")
	v, err := dt.Decode([]byte{0x01, 0x02}) // BE: 0x0102 = 258
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v.I != 258 {
		t.Fatalf("got %d", v.I)
	}
}

func TestOutOfRangeError(t *testing.T) {
	dt := mustGet(t, "UCH")
	if _, err := dt.Encode(IntValue(-1)); err == nil {
		t.Fatal("expected out-of-range error")
	}
}
