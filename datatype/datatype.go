// Package datatype implements the eBUS base type repertoire: the
// ~25 numeric/string/date/time/bit-field codecs described in spec
// §4.2, as a registry of immutable DataType descriptors rather than a
// class hierarchy. Encode/decode dispatch on DataType.Kind (a tagged
// variant) instead of virtual method calls, so no value allocates a
// decoder object on the hot path.
package datatype

import "github.com/rob-gra/ebusd-go/ebuserr"

// Kind is the base kind a DataType belongs to. See spec §3 "DataType".
type Kind uint8

const (
	KindIgnore Kind = iota
	KindString
	KindHexString
	KindDate
	KindTime
	KindDateTime
	KindDayOfWeek
	KindNumber
	KindBitField
)

// Flag is a bitmask of the per-type properties from spec §4.2/§3.
type Flag uint16

const (
	// FlagAdjustable marks a type whose byte length is chosen at field
	// creation time (Bytes is then the maximum).
	FlagAdjustable Flag = 1 << iota
	// FlagBCD marks binary-coded-decimal representation.
	FlagBCD
	// FlagReversed marks most-significant-byte-first wire order for an
	// otherwise little-endian numeric/time type.
	FlagReversed
	// FlagSigned marks a signed numeric type.
	FlagSigned
	// FlagListable marks a numeric type a ValueList may be built on.
	FlagListable
	// FlagFloat marks IEEE-754 binary32 numeric types (EXP/EXR), which
	// bypass the integer divisor machinery entirely.
	FlagFloat
)

func (f Flag) has(bit Flag) bool { return f&bit != 0 }

// DataType is an immutable descriptor for one base type. Derived types
// (produced by Derive) are fresh DataType values, never mutations of
// an existing one — the registry's entries are never modified after
// registration.
type DataType struct {
	Name        string
	Bytes       int // byte width, or max width if FlagAdjustable
	BitWidth    int // used only for KindBitField: 1..8
	BitOffset   int // used only for KindBitField: starting bit 0..7
	Kind        Kind
	Flags       Flag
	Replacement int64 // raw replacement ("null") value
	Min, Max    int64 // raw value range (inclusive), numeric kinds only
	Divisor     float64
}

// IsAdjustable reports whether the type's byte length is chosen per
// field rather than fixed by the type itself.
func (t *DataType) IsAdjustable() bool { return t.Flags.has(FlagAdjustable) }

// ForLength returns a copy of t sized to exactly length bytes, valid
// for adjustable-length types (STR/NTS/HEX/IGN/BCD/HCD) and for the
// 4-byte BDA/HDA variant. For BCD/HCD the raw maximum grows by two
// decimal digits per byte. See spec §3
// "adjustable-length types instantiate at a specific byte length at
// field creation."
func (t *DataType) ForLength(length int) (*DataType, error) {
	if !t.IsAdjustable() {
		if length == 4 && (t.Name == "BDA" || t.Name == "HDA") {
			cp := *t
			cp.Bytes = length
			return &cp, nil
		}
		if length != t.Bytes {
			return nil, ebuserr.Newf(ebuserr.InvalidArg, "type %s is not adjustable", t.Name)
		}
		return t, nil
	}
	if length < 1 {
		return nil, ebuserr.Newf(ebuserr.InvalidArg, "invalid length %d for type %s", length, t.Name)
	}
	cp := *t
	cp.Bytes = length
	if t.Kind == KindNumber {
		cp.Max = 1
		for i := 0; i < length; i++ {
			cp.Max *= 100
		}
		cp.Max--
	}
	return &cp, nil
}

// Derive multiplies the type's divisor by an additional factor,
// narrowing the effective range accordingly. Only valid for numeric,
// non-float, non-bitfield types. See spec §4.2 "Derivation rule".
func (t *DataType) Derive(factor float64) (*DataType, error) {
	if t.Kind != KindNumber || t.Flags.has(FlagFloat) {
		return nil, ebuserr.Newf(ebuserr.InvalidArg, "type %s cannot be derived", t.Name)
	}
	if factor == 0 {
		return nil, ebuserr.New(ebuserr.InvalidArg, "zero derivation factor")
	}
	oldDiv := t.Divisor
	if oldDiv == 0 {
		oldDiv = 1
	}
	var newDiv float64
	switch {
	case sameSign(oldDiv, factor):
		newDiv = oldDiv * factor
	default:
		// Different signs: collapse to the reduced quotient when the
		// magnitudes are exact multiples of one another, otherwise fail.
		big, small := absMax(oldDiv, factor), absMin(oldDiv, factor)
		if small == 0 || mod(big, small) != 0 {
			return nil, ebuserr.Newf(ebuserr.InvalidArg, "incompatible derivation of %s by %v", t.Name, factor)
		}
		// The operand with the larger magnitude decides the sign.
		ratio := big / small
		if (absOf(oldDiv) > absOf(factor)) == (oldDiv < 0) {
			newDiv = -ratio
		} else {
			newDiv = ratio
		}
	}
	cp := *t
	cp.Divisor = newDiv
	return &cp, nil
}

func sameSign(a, b float64) bool { return (a >= 0) == (b >= 0) }
func absOf(a float64) float64 {
	if a < 0 {
		return -a
	}
	return a
}
func absMax(a, b float64) float64 {
	if absOf(a) > absOf(b) {
		return absOf(a)
	}
	return absOf(b)
}
func absMin(a, b float64) float64 {
	if absOf(a) < absOf(b) {
		return absOf(a)
	}
	return absOf(b)
}
func mod(a, b float64) float64 {
	for a >= b {
		a -= b
	}
	return a
}
