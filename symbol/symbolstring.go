package symbol

import (
	"strings"

	"github.com/rob-gra/ebusd-go/ebuserr"
)

// crcPolynomial is the eBUS CRC-8 polynomial, applied MSB-first over
// the escaped byte stream starting with an initial value of 0.
const crcPolynomial byte = 0x9B

func crcStep(crc, value byte) byte {
	for i := 0; i < 8; i++ {
		polynomial := byte(0)
		if crc&0x80 != 0 {
			polynomial = crcPolynomial
		}
		crc <<= 1
		if value&0x80 != 0 {
			crc |= 0x01
		}
		crc ^= polynomial
		value <<= 1
	}
	return crc
}

// String is an ordered sequence of symbols plus the running CRC-8
// computed over whatever bytes were appended via the *Escaping
// methods. Two logical representations exist, escaped (wire form) and
// unescaped (logical); see spec §3 "SymbolString" for which operation
// applies to which form.
type String struct {
	data []Symbol
	crc  byte
}

// New returns an empty SymbolString.
func New() *String { return &String{} }

// FromUnescaped builds a SymbolString directly from already-unescaped
// logical bytes, computing the CRC as if each byte had been appended
// via AppendEscaping (i.e. the CRC reflects the escaped wire form).
func FromUnescaped(data []byte) *String {
	s := New()
	for _, b := range data {
		s.AppendEscaping(b)
	}
	return s
}

// Len returns the number of (unescaped, logical) symbols held.
func (s *String) Len() int { return len(s.data) }

// Bytes returns the logical (unescaped) byte slice. Callers must not
// mutate the returned slice.
func (s *String) Bytes() []byte { return s.data }

// At returns the symbol at the given logical index.
func (s *String) At(i int) Symbol { return s.data[i] }

// CRC returns the CRC-8 accumulated so far over the escaped form.
func (s *String) CRC() byte { return s.crc }

// Equal reports whether two SymbolStrings hold the same logical bytes.
func (s *String) Equal(o *String) bool {
	if o == nil || len(s.data) != len(o.data) {
		return false
	}
	for i, b := range s.data {
		if o.data[i] != b {
			return false
		}
	}
	return true
}

// AppendEscaping appends one logical (unescaped) symbol, expanding it
// to its escaped wire form (0xA9 -> A9 00, 0xAA -> A9 01) for the
// purpose of updating the running CRC, while storing the logical byte
// in Bytes(). Bytes() may therefore hold ESC or SYN as logical values;
// the escaped expansion is seen only by the CRC.
func (s *String) AppendEscaping(value byte) {
	s.data = append(s.data, value)
	switch value {
	case ESC:
		s.crc = crcStep(s.crc, ESC)
		s.crc = crcStep(s.crc, 0x00)
	case SYN:
		s.crc = crcStep(s.crc, ESC)
		s.crc = crcStep(s.crc, 0x01)
	default:
		s.crc = crcStep(s.crc, value)
	}
}

// AppendRaw appends a byte without CRC tracking or escaping, for
// building up buffers (e.g. decoded field payloads) that do not
// themselves need a running CRC.
func (s *String) AppendRaw(value byte) {
	s.data = append(s.data, value)
}

// AppendUnescaping is the stateful counterpart used while receiving
// wire bytes: it threads the "was the previous byte ESC" flag across
// calls so the caller can feed one wire byte at a time. It appends the
// unescaped logical byte (and updates the CRC over the as-received,
// escaped, byte) once a complete symbol (possibly an ESC/follower
// pair) has been consumed.
//
// Returns:
//   - complete=true, err=nil: one logical byte was appended
//   - complete=false, err=nil: value was ESC; the caller must feed the
//     follower byte next (previousEscape is now true)
//   - err=ebuserr.InvalidEscape: value followed ESC but was neither
//     0x00 nor 0x01
func (s *String) AppendUnescaping(value byte, previousEscape *bool) (complete bool, err error) {
	if *previousEscape {
		*previousEscape = false
		s.crc = crcStep(s.crc, value)
		switch value {
		case 0x00:
			s.data = append(s.data, ESC)
			return true, nil
		case 0x01:
			s.data = append(s.data, SYN)
			return true, nil
		default:
			return false, ebuserr.New(ebuserr.InvalidEscape, "escape byte followed by invalid value")
		}
	}
	if value == ESC {
		*previousEscape = true
		s.crc = crcStep(s.crc, value)
		return false, nil
	}
	s.crc = crcStep(s.crc, value)
	s.data = append(s.data, value)
	return true, nil
}

// Clear resets the string to empty with a zeroed CRC.
func (s *String) Clear() {
	s.data = s.data[:0]
	s.crc = 0
}

// Slice returns the logical sub-range [from:to) as a fresh, detached
// SymbolString with its own freshly computed CRC over that range.
func (s *String) Slice(from, to int) *String {
	return FromUnescaped(s.data[from:to])
}

// HexString renders the logical bytes as a lower-case, unspaced hex
// string (e.g. "ff08b509").
func (s *String) HexString() string {
	var b strings.Builder
	const hexdigits = "0123456789abcdef"
	for _, v := range s.data {
		b.WriteByte(hexdigits[v>>4])
		b.WriteByte(hexdigits[v&0x0F])
	}
	return b.String()
}

// ParseHex parses a hex string into a SymbolString. If escaped is
// true, the string is interpreted as wire (escaped) bytes and is
// unescaped while parsing; otherwise each hex pair is taken literally
// as a logical byte (and must not itself contain SYN/ESC, or
// InvalidEscape is reported for consistency with the wire parser).
func ParseHex(hexStr string, escaped bool) (*String, error) {
	if len(hexStr)%2 != 0 {
		return nil, ebuserr.New(ebuserr.InvalidArg, "odd-length hex string")
	}
	raw := make([]byte, 0, len(hexStr)/2)
	for i := 0; i < len(hexStr); i += 2 {
		v, err := parseHexByte(hexStr[i], hexStr[i+1])
		if err != nil {
			return nil, err
		}
		raw = append(raw, v)
	}
	if !escaped {
		for _, v := range raw {
			if v == ESC || v == SYN {
				return nil, ebuserr.New(ebuserr.InvalidEscape, "raw ESC/SYN in unescaped hex string")
			}
		}
		return FromUnescaped(raw), nil
	}
	s := New()
	previousEscape := false
	for _, v := range raw {
		if _, err := s.AppendUnescaping(v, &previousEscape); err != nil {
			return nil, err
		}
	}
	if previousEscape {
		return nil, ebuserr.New(ebuserr.InvalidEscape, "incomplete trailing escape sequence")
	}
	return s, nil
}

func parseHexByte(hi, lo byte) (byte, error) {
	h, err := parseHexNibble(hi)
	if err != nil {
		return 0, err
	}
	l, err := parseHexNibble(lo)
	if err != nil {
		return 0, err
	}
	return h<<4 | l, nil
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
		return 0, ebuserr.New(ebuserr.InvalidArg, "invalid hex digit")
	}
}

// CRCOverRange computes the CRC-8 over the escaped expansion of
// data[from:to], independent of any SymbolString's running CRC. Used
// to verify a received telegram's trailing CRC byte against its
// header+payload.
func CRCOverRange(data []byte, from, to int) byte {
	crc := byte(0)
	for i := from; i < to; i++ {
		v := data[i]
		switch v {
		case ESC:
			crc = crcStep(crc, ESC)
			crc = crcStep(crc, 0x00)
		case SYN:
			crc = crcStep(crc, ESC)
			crc = crcStep(crc, 0x01)
		default:
			crc = crcStep(crc, v)
		}
	}
	return crc
}
