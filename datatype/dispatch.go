package datatype

import "github.com/rob-gra/ebusd-go/ebuserr"

// Decode converts raw wire bytes to a typed Value according to t.Kind.
// KindIgnore always yields the null sentinel without consuming meaning
// from data beyond its length.
func (t *DataType) Decode(data []byte) (Value, error) {
	switch t.Kind {
	case KindIgnore:
		if len(data) != t.Bytes {
			return Value{}, ebuserr.Newf(ebuserr.InvalidPos, "%s needs %d bytes, got %d", t.Name, t.Bytes, len(data))
		}
		return NullValue(), nil
	case KindString, KindHexString:
		return t.DecodeString(data)
	case KindDate:
		return t.DecodeDate(data)
	case KindDateTime:
		return t.DecodeDateTime(data)
	case KindTime:
		return t.DecodeTime(data)
	case KindDayOfWeek:
		return t.DecodeDayOfWeek(data)
	case KindNumber:
		return t.DecodeNumber(data)
	case KindBitField:
		if len(data) != 1 {
			return Value{}, ebuserr.Newf(ebuserr.InvalidPos, "%s needs 1 byte, got %d", t.Name, len(data))
		}
		return t.DecodeBit(data[0])
	default:
		return Value{}, ebuserr.Newf(ebuserr.InvalidArg, "unhandled kind for %s", t.Name)
	}
}

// Encode is the inverse of Decode.
func (t *DataType) Encode(v Value) ([]byte, error) {
	switch t.Kind {
	case KindIgnore:
		out := make([]byte, t.Bytes)
		for i := range out {
			out[i] = 0xFF
		}
		return out, nil
	case KindString, KindHexString:
		return t.EncodeString(v)
	case KindDate:
		return t.EncodeDate(v)
	case KindDateTime:
		return t.EncodeDateTime(v)
	case KindTime:
		return t.EncodeTime(v)
	case KindDayOfWeek:
		return t.EncodeDayOfWeek(v)
	case KindNumber:
		return t.EncodeNumber(v)
	case KindBitField:
		b, err := t.EncodeBit(0, v)
		if err != nil {
			return nil, err
		}
		return []byte{b}, nil
	default:
		return nil, ebuserr.Newf(ebuserr.InvalidArg, "unhandled kind for %s", t.Name)
	}
}
