package datatype

import "github.com/rob-gra/ebusd-go/ebuserr"

// DecodeBit extracts this bit-field's value from the shared byte b.
func (t *DataType) DecodeBit(b byte) (Value, error) {
	if t.Kind != KindBitField {
		return Value{}, ebuserr.Newf(ebuserr.InvalidArg, "%s is not a bit-field type", t.Name)
	}
	mask := byte((1 << uint(t.BitWidth)) - 1)
	v := (b >> uint(t.BitOffset)) & mask
	return IntValue(int64(v)), nil
}

// EncodeBit merges this bit-field's value into the shared byte b,
// returning the updated byte.
func (t *DataType) EncodeBit(b byte, v Value) (byte, error) {
	if t.Kind != KindBitField {
		return 0, ebuserr.Newf(ebuserr.InvalidArg, "%s is not a bit-field type", t.Name)
	}
	raw := valueInt(v)
	maxVal := int64((1 << uint(t.BitWidth)) - 1)
	if raw < 0 || raw > maxVal {
		return 0, ebuserr.Newf(ebuserr.OutOfRange, "%s value %d outside [0,%d]", t.Name, raw, maxVal)
	}
	mask := byte((1<<uint(t.BitWidth))-1) << uint(t.BitOffset)
	b &^= mask
	b |= byte(raw) << uint(t.BitOffset)
	return b, nil
}
