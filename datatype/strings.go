package datatype

import (
	"strings"

	"github.com/rob-gra/ebusd-go/ebuserr"
)

// DecodeString decodes STR (space padded), NTS (NUL terminated) and
// HEX (hex-digit string) fields.
func (t *DataType) DecodeString(data []byte) (Value, error) {
	if len(data) != t.Bytes {
		return Value{}, ebuserr.Newf(ebuserr.InvalidPos, "%s needs %d bytes, got %d", t.Name, t.Bytes, len(data))
	}
	switch t.Kind {
	case KindHexString:
		var b strings.Builder
		const hexdigits = "0123456789abcdef"
		for i, v := range data {
			if i > 0 {
				b.WriteByte(' ')
			}
			b.WriteByte(hexdigits[v>>4])
			b.WriteByte(hexdigits[v&0x0F])
		}
		return StringValue(b.String()), nil
	case KindString:
		end := len(data)
		if t.Name == "NTS" {
			for i, v := range data {
				if v == 0x00 {
					end = i
					break
				}
			}
			return StringValue(string(data[:end])), nil
		}
		for end > 0 && data[end-1] == ' ' {
			end--
		}
		return StringValue(string(data[:end])), nil
	default:
		return Value{}, ebuserr.Newf(ebuserr.InvalidArg, "%s is not a string type", t.Name)
	}
}

// EncodeString encodes a textual value to STR/NTS/HEX raw bytes. STR
// and NTS values are padded or truncated to exactly t.Bytes; a HEX
// value must hold exactly t.Bytes hex pairs.
func (t *DataType) EncodeString(v Value) ([]byte, error) {
	out := make([]byte, t.Bytes)
	switch t.Kind {
	case KindHexString:
		fields := strings.Fields(v.S)
		if len(fields) != t.Bytes {
			return nil, ebuserr.Newf(ebuserr.InvalidArg, "%s needs %d hex bytes, got %d", t.Name, t.Bytes, len(fields))
		}
		for i, f := range fields {
			b, err := parseHexPair(f)
			if err != nil {
				return nil, err
			}
			out[i] = b
		}
		return out, nil
	case KindString:
		s := v.S
		if t.Name == "NTS" {
			if len(s) >= t.Bytes {
				s = s[:t.Bytes-1]
			}
			copy(out, s)
			for i := len(s); i < t.Bytes; i++ {
				out[i] = 0x00
			}
			return out, nil
		}
		if len(s) > t.Bytes {
			s = s[:t.Bytes]
		}
		copy(out, s)
		for i := len(s); i < t.Bytes; i++ {
			out[i] = ' '
		}
		return out, nil
	default:
		return nil, ebuserr.Newf(ebuserr.InvalidArg, "%s is not a string type", t.Name)
	}
}

func parseHexPair(s string) (byte, error) {
	if len(s) != 2 {
		return 0, ebuserr.Newf(ebuserr.InvalidArg, "invalid hex byte %q", s)
	}
	hi, err := parseHexNibble(s[0])
	if err != nil {
		return 0, err
	}
	lo, err := parseHexNibble(s[1])
	if err != nil {
		return 0, err
	}
	return hi<<4 | lo, nil
}

func parseHexNibble(c byte) (byte, error) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', nil
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, nil
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, nil
	default:
		return 0, ebuserr.Newf(ebuserr.InvalidArg, "invalid hex digit %q", c)
	}
}
