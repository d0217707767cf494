// Package field implements DataField composition over the datatype
// registry: Single, ValueList, Constant and Set fields, their
// attribute bags, and the line/JSON read-write contracts described in
// spec §4.3.
package field

import (
	"strconv"
	"strings"

	"github.com/rob-gra/ebusd-go/datatype"
	"github.com/rob-gra/ebusd-go/ebuserr"
)

// Part names which half of a telegram payload a field lives in.
type Part uint8

const (
	MasterData Part = iota
	SlaveData
)

// OutputFormat is a bitmask controlling Read's text rendering.
type OutputFormat uint16

const (
	FormatNames OutputFormat = 1 << iota
	FormatUnits
	FormatComments
	FormatNumericRaw
	FormatValueName
	FormatAllAttrs
	FormatShort
	FormatJSON
	FormatDefinition
)

func (f OutputFormat) has(bit OutputFormat) bool { return f&bit != 0 }

// Attributes is the free-form key/value bag every field carries, plus
// the well-known unit/comment slots spec §4.3 names explicitly.
type Attributes struct {
	Unit    string
	Comment string
	Extra   map[string]string
}

func (a Attributes) Get(key string) (string, bool) {
	switch key {
	case "unit":
		return a.Unit, a.Unit != ""
	case "comment":
		return a.Comment, a.Comment != ""
	}
	v, ok := a.Extra[key]
	return v, ok
}

// Payload is the two-part raw byte view a DataField reads from and
// writes into: the master tail after the identifier, and (for
// master-slave messages) the slave reply.
type Payload struct {
	Master []byte
	Slave  []byte
}

func (p Payload) bytes(part Part) []byte {
	if part == SlaveData {
		return p.Slave
	}
	return p.Master
}

// DataField is one variant of Single, ValueList, Constant or Set.
type DataField struct {
	Name       string
	Part       Part
	Offset     int // byte offset within the part
	BitOffset  int // 0 unless the field starts mid-byte
	Type       *datatype.DataType
	Attrs      Attributes
	values     map[int64]string // ValueList: raw -> label, nil otherwise
	constant   datatype.Value   // Constant: fixed value
	isConstant bool
	verify     bool // Constant: fail read on mismatch
	children   []*DataField
}

// NewSingle builds a plain Single field over t.
func NewSingle(name string, part Part, offset int, t *datatype.DataType, attrs Attributes) *DataField {
	return &DataField{Name: name, Part: part, Offset: offset, Type: t, Attrs: attrs}
}

// NewBitField builds a Single whose DataType is a BIn bit-field,
// positioned at a bit offset within offset's byte.
func NewBitField(name string, part Part, offset, bitOffset int, t *datatype.DataType, attrs Attributes) *DataField {
	return &DataField{Name: name, Part: part, Offset: offset, BitOffset: bitOffset, Type: t, Attrs: attrs}
}

// NewValueList builds a ValueList: a Single constrained to a numeric
// DataType with a raw-to-label map.
func NewValueList(name string, part Part, offset int, t *datatype.DataType, values map[int64]string, attrs Attributes) (*DataField, error) {
	if t.Kind != datatype.KindNumber {
		return nil, ebuserr.Newf(ebuserr.InvalidArg, "value list field %s must be numeric", name)
	}
	return &DataField{Name: name, Part: part, Offset: offset, Type: t, Attrs: attrs, values: values}, nil
}

// NewConstant builds a Constant: a Single with a fixed value and a
// verify flag.
func NewConstant(name string, part Part, offset int, t *datatype.DataType, value datatype.Value, verify bool, attrs Attributes) *DataField {
	return &DataField{Name: name, Part: part, Offset: offset, Type: t, Attrs: attrs, constant: value, isConstant: true, verify: verify}
}

// NewSet composes ordered Singles into one field, per spec §4.3's
// `A;B;C` template composition.
func NewSet(name string, children []*DataField) *DataField {
	return &DataField{Name: name, children: children}
}

// IsSet reports whether this field is a Set composition.
func (f *DataField) IsSet() bool { return len(f.children) > 0 }

// Length reports the byte span this field (or, for a Set, the whole
// composition) contributes to its part. Bit-packed fields sharing a
// byte contribute 0 for every member but the one that completes the
// byte, per spec §4.3's collapsing rule.
func (f *DataField) Length(part Part) int {
	if f.IsSet() {
		return setLength(f.children, part)
	}
	if f.Part != part {
		return 0
	}
	return f.Type.Bytes
}

func setLength(fields []*DataField, part Part) int {
	total := 0
	lastOffset := -1
	for _, c := range fields {
		if c.IsSet() {
			total += setLength(c.children, part)
			continue
		}
		if c.Part != part {
			continue
		}
		if c.Type.Kind == datatype.KindBitField {
			if c.Offset != lastOffset {
				total++
				lastOffset = c.Offset
			}
			continue
		}
		total += c.Type.Bytes
		lastOffset = -1
	}
	return total
}

// Read decodes this field from payload and renders it as text using
// format.
func (f *DataField) Read(payload Payload, format OutputFormat) (string, error) {
	if f.IsSet() {
		return f.readSet(payload, format)
	}
	v, err := f.decode(payload)
	if err != nil {
		return "", err
	}
	return f.renderOne(f, v, format), nil
}

func (f *DataField) readSet(payload Payload, format OutputFormat) (string, error) {
	var parts []string
	for _, c := range f.children {
		s, err := c.Read(payload, format)
		if err != nil {
			return "", err
		}
		parts = append(parts, s)
	}
	if format.has(FormatJSON) {
		return "[" + strings.Join(parts, ",") + "]", nil
	}
	return strings.Join(parts, ";"), nil
}

func (f *DataField) decode(payload Payload) (datatype.Value, error) {
	raw := payload.bytes(f.Part)
	if f.Type.Kind == datatype.KindBitField {
		if f.Offset >= len(raw) {
			return datatype.Value{}, ebuserr.Newf(ebuserr.InvalidPos, "field %s offset %d beyond payload", f.Name, f.Offset)
		}
		return f.Type.DecodeBit(raw[f.Offset])
	}
	end := f.Offset + f.Type.Bytes
	if f.Type.IsAdjustable() && f.Type.Bytes == 0 {
		end = len(raw)
	}
	if end > len(raw) || f.Offset > end {
		return datatype.Value{}, ebuserr.Newf(ebuserr.InvalidPos, "field %s needs bytes [%d,%d), payload has %d", f.Name, f.Offset, end, len(raw))
	}
	v, err := f.Type.Decode(raw[f.Offset:end])
	if err != nil {
		return datatype.Value{}, err
	}
	if f.isConstant && f.verify {
		if !valuesEqual(v, f.constant) {
			return datatype.Value{}, ebuserr.Newf(ebuserr.OutOfRange, "field %s constant mismatch: got %s, want %s", f.Name, v.Text(), f.constant.Text())
		}
	}
	return v, nil
}

func valuesEqual(a, b datatype.Value) bool {
	return a.Text() == b.Text()
}

func (f *DataField) renderOne(def *DataField, v datatype.Value, format OutputFormat) string {
	if def.isConstant && !def.verify {
		return ""
	}
	label := ""
	if def.values != nil && v.Kind == datatype.ValueInt {
		if l, ok := def.values[v.I]; ok && !format.has(FormatNumericRaw) {
			label = l
		}
	}
	text := v.Text()
	if format.has(FormatJSON) {
		if label != "" {
			text = strconv.Quote(label)
		} else {
			text = v.JSON()
		}
	} else if label != "" {
		text = label
	}

	if format.has(FormatShort) {
		return text
	}

	var b strings.Builder
	if format.has(FormatNames) {
		b.WriteString(def.Name)
		b.WriteByte('=')
	}
	b.WriteString(text)
	if format.has(FormatUnits) {
		if u, ok := def.Attrs.Get("unit"); ok {
			b.WriteByte(' ')
			b.WriteString(u)
		}
	}
	if format.has(FormatComments) {
		if c, ok := def.Attrs.Get("comment"); ok {
			b.WriteString(" [")
			b.WriteString(c)
			b.WriteByte(']')
		}
	}
	return b.String()
}

// Write parses text (a single value, or a ';'-separated list for a
// Set) and encodes it into payload at this field's declared offsets.
func (f *DataField) Write(payload Payload, text string) error {
	if f.IsSet() {
		parts := strings.Split(text, ";")
		if len(parts) != len(f.children) {
			return ebuserr.Newf(ebuserr.InvalidArg, "set %s expects %d values, got %d", f.Name, len(f.children), len(parts))
		}
		for i, c := range f.children {
			if err := c.Write(payload, parts[i]); err != nil {
				return err
			}
		}
		return nil
	}
	v, err := f.parseText(text)
	if err != nil {
		return err
	}
	raw := payload.bytes(f.Part)
	if f.Type.Kind == datatype.KindBitField {
		if f.Offset >= len(raw) {
			return ebuserr.Newf(ebuserr.InvalidPos, "field %s offset %d beyond payload", f.Name, f.Offset)
		}
		b, err := f.Type.EncodeBit(raw[f.Offset], v)
		if err != nil {
			return err
		}
		raw[f.Offset] = b
		return nil
	}
	enc, err := f.Type.Encode(v)
	if err != nil {
		return err
	}
	end := f.Offset + len(enc)
	if end > len(raw) {
		return ebuserr.Newf(ebuserr.InvalidPos, "field %s needs bytes [%d,%d), payload has %d", f.Name, f.Offset, end, len(raw))
	}
	copy(raw[f.Offset:end], enc)
	return nil
}

func (f *DataField) parseText(text string) (datatype.Value, error) {
	if f.Type.Kind == datatype.KindIgnore {
		return datatype.NullValue(), nil
	}
	if f.values != nil {
		for raw, label := range f.values {
			if strings.EqualFold(label, text) {
				return datatype.IntValue(raw), nil
			}
		}
		n, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return datatype.Value{}, ebuserr.Newf(ebuserr.InvalidList, "value list %s has no label %q", f.Name, text)
		}
		if _, ok := f.values[n]; !ok {
			return datatype.Value{}, ebuserr.Newf(ebuserr.InvalidList, "value list %s: %d out of range", f.Name, n)
		}
		return datatype.IntValue(n), nil
	}
	switch f.Type.Kind {
	case datatype.KindNumber:
		if text == "-" {
			return datatype.NullValue(), nil
		}
		if f.Type.Flags&datatype.FlagFloat != 0 || f.Type.Divisor > 1 || f.Type.Divisor < 0 {
			v, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return datatype.Value{}, ebuserr.Newf(ebuserr.InvalidArg, "field %s: invalid number %q", f.Name, text)
			}
			return datatype.FloatValue(v), nil
		}
		n, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return datatype.Value{}, ebuserr.Newf(ebuserr.InvalidArg, "field %s: invalid integer %q", f.Name, text)
		}
		return datatype.IntValue(n), nil
	default:
		return datatype.StringValue(text), nil
	}
}
