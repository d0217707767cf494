package datatype

import (
	"math"

	"github.com/rob-gra/ebusd-go/ebuserr"
)

// DecodeNumber decodes a numeric (or numeric-like: time-free) field of
// this type from the given raw bytes (exactly t.Bytes long), returning
// the typed display Value with the divisor already applied.
func (t *DataType) DecodeNumber(data []byte) (Value, error) {
	if len(data) != t.Bytes {
		return Value{}, ebuserr.Newf(ebuserr.InvalidPos, "%s needs %d bytes, got %d", t.Name, t.Bytes, len(data))
	}
	if t.Flags.has(FlagFloat) {
		bits := readUint32(data, t.Flags.has(FlagReversed))
		f := math.Float32frombits(bits)
		if bits == 0xFFFFFFFF {
			return NullValue(), nil
		}
		return FloatValue(applyDivisor(float64(f), t.Divisor)), nil
	}

	raw, invalid := t.decodeRaw(data)
	if invalid {
		return NullValue(), nil
	}
	if raw == t.Replacement {
		return NullValue(), nil
	}
	if raw < t.Min || raw > t.Max {
		return Value{}, ebuserr.Newf(ebuserr.OutOfRange, "%s raw value %d outside [%d,%d]", t.Name, raw, t.Min, t.Max)
	}
	if t.Divisor == 0 || t.Divisor == 1 {
		return IntValue(raw), nil
	}
	return FloatValue(applyDivisor(float64(raw), t.Divisor)), nil
}

// EncodeNumber encodes v (an Int or Float Value, or Null for the
// replacement) into exactly t.Bytes raw bytes.
func (t *DataType) EncodeNumber(v Value) ([]byte, error) {
	if t.Flags.has(FlagFloat) {
		if v.Kind == ValueNull {
			return writeUint32(0xFFFFFFFF, t.Bytes, t.Flags.has(FlagReversed)), nil
		}
		raw := unapplyDivisorFloat(valueFloat(v), t.Divisor)
		bits := math.Float32bits(float32(raw))
		return writeUint32(bits, t.Bytes, t.Flags.has(FlagReversed)), nil
	}
	if v.Kind == ValueNull {
		if t.Flags.has(FlagBCD) || t.isHexCoded() {
			return writeUint(maskFor(t.Bytes), t.Bytes, false), nil
		}
		return t.encodeRaw(t.Replacement)
	}
	var raw int64
	if t.Divisor == 0 || t.Divisor == 1 {
		raw = valueInt(v)
	} else {
		raw = unapplyDivisor(valueFloat(v), t.Divisor)
	}
	if raw < t.Min || raw > t.Max {
		return nil, ebuserr.Newf(ebuserr.OutOfRange, "%s value out of range [%d,%d]", t.Name, t.Min, t.Max)
	}
	return t.encodeRaw(raw)
}

func valueInt(v Value) int64 {
	switch v.Kind {
	case ValueInt:
		return v.I
	case ValueFloat:
		return int64(math.Round(v.F))
	default:
		return 0
	}
}

func valueFloat(v Value) float64 {
	switch v.Kind {
	case ValueInt:
		return float64(v.I)
	case ValueFloat:
		return v.F
	default:
		return 0
	}
}

func applyDivisor(raw, divisor float64) float64 {
	switch {
	case divisor > 0:
		return raw * divisor
	case divisor < 0:
		return raw / -divisor
	default:
		return raw
	}
}

func unapplyDivisor(value, divisor float64) int64 {
	return int64(math.Round(unapplyDivisorFloat(value, divisor)))
}

func unapplyDivisorFloat(value, divisor float64) float64 {
	switch {
	case divisor > 0:
		return value / divisor
	case divisor < 0:
		return value * -divisor
	default:
		return value
	}
}

// decodeRaw extracts the underlying integer from data according to
// the type's BCD/hex-coded/plain/signed/reversed flags. invalid=true
// means the bytes are not a legal encoding (e.g. 0xFA as BCD) and the
// field must decode to the replacement/null value.
func (t *DataType) decodeRaw(data []byte) (raw int64, invalid bool) {
	switch {
	case t.Flags.has(FlagBCD):
		return decodeBCD(data)
	case t.Flags.has(FlagReversed) && !t.Flags.has(FlagBCD) && t.isHexCoded():
		return decodeHexCoded(reverseBytes(data))
	case t.isHexCoded():
		return decodeHexCoded(data)
	default:
		u := readUint(data, t.Flags.has(FlagReversed))
		if t.Flags.has(FlagSigned) {
			return signExtend(u, t.Bytes), false
		}
		return int64(u), false
	}
}

func (t *DataType) encodeRaw(raw int64) ([]byte, error) {
	switch {
	case t.Flags.has(FlagBCD):
		return encodeBCD(raw, t.Bytes)
	case t.isHexCoded():
		b, err := encodeHexCoded(raw, t.Bytes)
		if err != nil {
			return nil, err
		}
		if t.Flags.has(FlagReversed) {
			return reverseBytes(b), nil
		}
		return b, nil
	default:
		u := uint64(raw)
		if t.Flags.has(FlagSigned) && raw < 0 {
			u = uint64(raw) & maskFor(t.Bytes)
		}
		return writeUint(u, t.Bytes, t.Flags.has(FlagReversed)), nil
	}
}

// isHexCoded distinguishes HCD (each byte a plain 0..99 decimal digit
// pair, no BCD nibble packing) from plain binary integers. There is no
// Flag bit for it: HCD is registered with Kind==KindNumber and its
// exact name is recorded at registration time in hexCodedNames, which
// this method looks up.
func (t *DataType) isHexCoded() bool {
	return hexCodedNames[t.Name]
}

var hexCodedNames = map[string]bool{}

func markHexCoded(name string) { hexCodedNames[name] = true }

func decodeBCD(data []byte) (raw int64, invalid bool) {
	var result int64
	mult := int64(1)
	for _, b := range data {
		hi, lo := b>>4, b&0x0F
		if hi > 9 || lo > 9 {
			return 0, true
		}
		result += int64(hi*10+lo) * mult
		mult *= 100
	}
	return result, false
}

func encodeBCD(raw int64, n int) ([]byte, error) {
	if raw < 0 {
		return nil, ebuserr.New(ebuserr.OutOfRange, "negative BCD value")
	}
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		digits := raw % 100
		raw /= 100
		out[i] = byte((digits/10)<<4 | (digits % 10))
	}
	if raw != 0 {
		return nil, ebuserr.New(ebuserr.OutOfRange, "BCD value too large")
	}
	return out, nil
}

func decodeHexCoded(data []byte) (raw int64, invalid bool) {
	var result int64
	mult := int64(1)
	for _, b := range data {
		if b > 99 {
			return 0, true
		}
		result += int64(b) * mult
		mult *= 100
	}
	return result, false
}

func encodeHexCoded(raw int64, n int) ([]byte, error) {
	if raw < 0 {
		return nil, ebuserr.New(ebuserr.OutOfRange, "negative hex-coded-decimal value")
	}
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		digits := raw % 100
		raw /= 100
		out[i] = byte(digits)
	}
	if raw != 0 {
		return nil, ebuserr.New(ebuserr.OutOfRange, "hex-coded-decimal value too large")
	}
	return out, nil
}

func readUint(data []byte, reversed bool) uint64 {
	var u uint64
	if reversed {
		for _, b := range data {
			u = u<<8 | uint64(b)
		}
	} else {
		for i := len(data) - 1; i >= 0; i-- {
			u = u<<8 | uint64(data[i])
		}
	}
	return u
}

func writeUint(u uint64, n int, reversed bool) []byte {
	out := make([]byte, n)
	if reversed {
		for i := n - 1; i >= 0; i-- {
			out[i] = byte(u)
			u >>= 8
		}
	} else {
		for i := 0; i < n; i++ {
			out[i] = byte(u)
			u >>= 8
		}
	}
	return out
}

func readUint32(data []byte, reversed bool) uint32 {
	return uint32(readUint(data, reversed))
}

func writeUint32(u uint32, n int, reversed bool) []byte {
	return writeUint(uint64(u), n, reversed)
}

func signExtend(u uint64, n int) int64 {
	bits := uint(n * 8)
	signBit := uint64(1) << (bits - 1)
	if u&signBit != 0 {
		return int64(u) - int64(1<<bits)
	}
	return int64(u)
}

func maskFor(n int) uint64 {
	if n >= 8 {
		return ^uint64(0)
	}
	return (uint64(1) << (uint(n) * 8)) - 1
}

func reverseBytes(data []byte) []byte {
	out := make([]byte, len(data))
	for i, b := range data {
		out[len(data)-1-i] = b
	}
	return out
}
