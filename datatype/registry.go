package datatype

import (
	"strconv"
	"strings"

	"github.com/rob-gra/ebusd-go/ebuserr"
)

// Registry is a singleton table of base types keyed by uppercase name,
// built once at package init. Polymorphic names (BCD, HCD, BDA, HDA)
// disambiguate by an explicit ":len" suffix resolved in Get.
type Registry struct {
	byName map[string]*DataType
}

var base = newRegistry()

// Base returns the shared, immutable base-type registry.
func Base() *Registry { return base }

func newRegistry() *Registry {
	r := &Registry{byName: make(map[string]*DataType)}
	for _, t := range builtins() {
		r.register(t)
	}
	return r
}

func (r *Registry) register(t *DataType) {
	r.byName[t.Name] = t
}

// Get resolves a bare type-name-with-optional-length token, e.g. "HEX",
// "HEX:4", "BCD:3", "BI2:6". See spec §4.3 field-type resolution order
// (a).
func (r *Registry) Get(token string) (*DataType, error) {
	name := strings.ToUpper(strings.TrimSpace(token))
	var lengthStr string
	if i := strings.IndexByte(name, ':'); i >= 0 {
		lengthStr = name[i+1:]
		name = name[:i]
	}

	if strings.HasPrefix(name, "BI") && len(name) == 3 {
		return r.bitField(name, lengthStr)
	}

	base, ok := r.byName[name]
	if !ok {
		return nil, ebuserr.Newf(ebuserr.NotFound, "unknown data type %q", token)
	}
	if lengthStr == "" {
		return base, nil
	}
	n, err := strconv.Atoi(lengthStr)
	if err != nil || n < 1 {
		return nil, ebuserr.Newf(ebuserr.InvalidArg, "invalid length suffix %q on %s", lengthStr, name)
	}
	return base.ForLength(n)
}

func (r *Registry) bitField(name, widthStr string) (*DataType, error) {
	idx := name[2] - '0'
	if idx > 7 {
		return nil, ebuserr.Newf(ebuserr.NotFound, "unknown bit-field type %q", name)
	}
	width := 1
	if widthStr != "" {
		n, err := strconv.Atoi(widthStr)
		if err != nil || n < 1 || n > 8 {
			return nil, ebuserr.Newf(ebuserr.InvalidArg, "invalid bit width %q", widthStr)
		}
		width = n
	}
	if int(idx)+width > 8 {
		return nil, ebuserr.Newf(ebuserr.InvalidArg, "bit-field %s:%d overflows byte", name, width)
	}
	return &DataType{
		Name:      name,
		Bytes:     1,
		BitWidth:  width,
		BitOffset: int(idx),
		Kind:      KindBitField,
	}, nil
}

func builtins() []*DataType {
	var out []*DataType
	add := func(t *DataType) { out = append(out, t) }

	add(&DataType{Name: "IGN", Bytes: 1, Kind: KindIgnore, Flags: FlagAdjustable})
	add(&DataType{Name: "STR", Bytes: 1, Kind: KindString, Flags: FlagAdjustable})
	add(&DataType{Name: "NTS", Bytes: 1, Kind: KindString, Flags: FlagAdjustable})
	add(&DataType{Name: "HEX", Bytes: 1, Kind: KindHexString, Flags: FlagAdjustable})

	add(&DataType{Name: "BDA", Bytes: 3, Kind: KindDate, Flags: FlagBCD})
	add(&DataType{Name: "HDA", Bytes: 3, Kind: KindDate})
	add(&DataType{Name: "DAY", Bytes: 2, Kind: KindDate})
	add(&DataType{Name: "DTM", Bytes: 4, Kind: KindDateTime})

	add(&DataType{Name: "BTI", Bytes: 3, Kind: KindTime, Flags: FlagBCD | FlagReversed})
	add(&DataType{Name: "HTI", Bytes: 3, Kind: KindTime})
	add(&DataType{Name: "VTI", Bytes: 3, Kind: KindTime, Flags: FlagReversed})
	add(&DataType{Name: "BTM", Bytes: 2, Kind: KindTime, Flags: FlagBCD | FlagReversed})
	add(&DataType{Name: "HTM", Bytes: 2, Kind: KindTime})
	add(&DataType{Name: "VTM", Bytes: 2, Kind: KindTime, Flags: FlagReversed})
	add(&DataType{Name: "MIN", Bytes: 2, Kind: KindTime})
	add(&DataType{Name: "TTM", Bytes: 1, Kind: KindTime})
	add(&DataType{Name: "TTH", Bytes: 1, Kind: KindTime})
	add(&DataType{Name: "TTQ", Bytes: 1, Kind: KindTime})

	add(&DataType{Name: "BDY", Bytes: 1, Kind: KindDayOfWeek})
	add(&DataType{Name: "HDY", Bytes: 1, Kind: KindDayOfWeek})

	add(&DataType{Name: "PIN", Bytes: 2, Kind: KindNumber, Flags: FlagBCD | FlagListable, Min: 0, Max: 9999, Replacement: 0xFFFF, Divisor: 0})

	add(&DataType{Name: "BCD", Bytes: 1, Kind: KindNumber, Flags: FlagBCD | FlagAdjustable | FlagListable, Min: 0, Max: 99, Replacement: 0xFF})
	add(&DataType{Name: "HCD", Bytes: 1, Kind: KindNumber, Flags: FlagAdjustable | FlagListable, Min: 0, Max: 99, Replacement: 0xFF})
	markHexCoded("HCD")

	add(numInt("UCH", 1, false, 0xFF, 0, 0xFE))
	add(numInt("SCH", 1, true, -0x80, -0x7F, 0x7F))
	add(numInt("D1B", 1, true, -0x80, -0x7F, 0x7F))
	add(&DataType{Name: "D1C", Bytes: 1, Kind: KindNumber, Flags: FlagListable, Min: 0, Max: 0xC8, Replacement: 0xFF, Divisor: 0.5})

	add(numInt("UIN", 2, false, 0xFFFF, 0, 0xFFFE))
	add(numInt("SIN", 2, true, -0x8000, -0x7FFF, 0x7FFF))
	add(numInt("UIR", 2, false, 0xFFFF, 0, 0xFFFE, FlagReversed))
	add(numInt("SIR", 2, true, -0x8000, -0x7FFF, 0x7FFF, FlagReversed))

	add(numInt("U3N", 3, false, 0xFFFFFF, 0, 0xFFFFFE))
	add(numInt("S3N", 3, true, -0x800000, -0x7FFFFF, 0x7FFFFF))
	add(numInt("U3R", 3, false, 0xFFFFFF, 0, 0xFFFFFE, FlagReversed))
	add(numInt("S3R", 3, true, -0x800000, -0x7FFFFF, 0x7FFFFF, FlagReversed))

	add(numInt("ULG", 4, false, 0xFFFFFFFF, 0, 0xFFFFFFFE))
	add(numInt("SLG", 4, true, -0x80000000, -0x7FFFFFFF, 0x7FFFFFFF))
	add(numInt("ULR", 4, false, 0xFFFFFFFF, 0, 0xFFFFFFFE, FlagReversed))
	add(numInt("SLR", 4, true, -0x80000000, -0x7FFFFFFF, 0x7FFFFFFF, FlagReversed))

	add(&DataType{Name: "D2B", Bytes: 2, Kind: KindNumber, Flags: FlagSigned | FlagListable, Min: -0x8000, Max: 0x7FFF, Replacement: -0x8000, Divisor: -256})
	add(&DataType{Name: "D2C", Bytes: 2, Kind: KindNumber, Flags: FlagSigned | FlagListable, Min: -0x8000, Max: 0x7FFF, Replacement: -0x8000, Divisor: -16})
	add(&DataType{Name: "FLT", Bytes: 2, Kind: KindNumber, Flags: FlagSigned | FlagListable, Min: -0x8000, Max: 0x7FFF, Replacement: -0x8000, Divisor: -1000})
	add(&DataType{Name: "FLR", Bytes: 2, Kind: KindNumber, Flags: FlagSigned | FlagReversed | FlagListable, Min: -0x8000, Max: 0x7FFF, Replacement: -0x8000, Divisor: -1000})

	add(&DataType{Name: "EXP", Bytes: 4, Kind: KindNumber, Flags: FlagFloat})
	add(&DataType{Name: "EXR", Bytes: 4, Kind: KindNumber, Flags: FlagFloat | FlagReversed})

	return out
}

func numInt(name string, bytes int, signed bool, replacement, min, max int64, flags ...Flag) *DataType {
	f := Flag(0)
	if signed {
		f |= FlagSigned
	}
	f |= FlagListable
	for _, extra := range flags {
		f |= extra
	}
	return &DataType{Name: name, Bytes: bytes, Kind: KindNumber, Flags: f, Replacement: replacement, Min: min, Max: max}
}
