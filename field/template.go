package field

import (
	"strings"

	"github.com/rob-gra/ebusd-go/datatype"
	"github.com/rob-gra/ebusd-go/ebuserr"
)

// Row is one subfield definition as read off a config line: name,
// part, type token, divisor/values, unit, comment, plus the verify and
// constant markers. It has no place for other user-defined columns a
// config file may declare; those are not carried into the field.
type Row struct {
	Name     string
	Part     Part
	Type     string // basetype token, template name, or "template=alias"
	Divisor  float64
	Values   map[int64]string
	Unit     string
	Comment  string
	Verify   bool
	Constant string // non-empty marks this row a Constant
}

// Templates is the catalog of named DataFieldTemplates, installed by
// config loading before any referencing Message is built. Chains are
// resolved eagerly; cycles are rejected.
type Templates struct {
	byName map[string]*DataField
}

func NewTemplates() *Templates {
	return &Templates{byName: make(map[string]*DataField)}
}

// Define installs a template built from rows, itself resolved through
// t so templates may reference earlier templates.
func (t *Templates) Define(name string, rows []Row) (*DataField, error) {
	if _, exists := t.byName[name]; exists {
		return nil, ebuserr.Newf(ebuserr.DuplicateName, "template %s already defined", name)
	}
	f, err := Build(name, rows, t)
	if err != nil {
		return nil, err
	}
	t.byName[name] = f
	return f, nil
}

func (t *Templates) lookup(name string) (*DataField, bool) {
	f, ok := t.byName[name]
	return f, ok
}

// Build resolves a sequence of rows into one DataField: a Single
// (ValueList/Constant variant included) if the rows resolve to exactly
// one non-Set field, whether from a basetype or a template, otherwise
// a Set. Each row's type token is
// resolved in spec §4.3's declared order: bare basetype, template
// name, template name with rename alias. Template tokens joined with
// ';' expand inline into the composed Set.
func Build(name string, rows []Row, templates *Templates) (*DataField, error) {
	var fields []*DataField
	offsets := map[Part]int{}
	for _, row := range rows {
		resolved, err := resolveRow(row, templates, offsets)
		if err != nil {
			return nil, err
		}
		fields = append(fields, resolved...)
	}
	if len(fields) == 0 {
		return nil, ebuserr.New(ebuserr.Empty, "no fields resolved")
	}
	if len(fields) == 1 && !fields[0].IsSet() {
		single := *fields[0]
		single.Name = name
		return &single, nil
	}
	return NewSet(name, fields), nil
}

func resolveRow(row Row, templates *Templates, offsets map[Part]int) ([]*DataField, error) {
	segments := strings.Split(row.Type, ";")
	var out []*DataField
	for _, seg := range segments {
		seg = strings.TrimSpace(seg)
		tplName, alias, hasAlias := splitAlias(seg)
		if tpl, ok := templates.lookup(tplName); ok {
			cp := cloneField(tpl)
			if hasAlias {
				cp.Name = alias
			} else if row.Name != "" && len(segments) == 1 {
				cp.Name = row.Name
			}
			rebase(cp, offsets)
			out = append(out, cp)
			continue
		}
		dt, err := datatype.Base().Get(seg)
		if err != nil {
			return nil, ebuserr.Wrap(ebuserr.NotFound, "resolving field type "+seg, err)
		}
		if row.Type == "*" || strings.HasSuffix(seg, ":*") {
			dt, _ = dt.ForLength(0)
		}
		if row.Divisor != 0 {
			derived, err := dt.Derive(row.Divisor)
			if err != nil {
				return nil, err
			}
			dt = derived
		}
		name := row.Name
		if name == "" {
			name = seg
		}
		offset := offsets[row.Part]
		attrs := Attributes{Unit: row.Unit, Comment: row.Comment}
		var f *DataField
		switch {
		case row.Constant != "":
			v, perr := parseConstantText(dt, row.Constant)
			if perr != nil {
				return nil, perr
			}
			f = NewConstant(name, row.Part, offset, dt, v, row.Verify, attrs)
		case len(row.Values) > 0:
			vf, verr := NewValueList(name, row.Part, offset, dt, row.Values, attrs)
			if verr != nil {
				return nil, verr
			}
			f = vf
		case dt.Kind == datatype.KindBitField:
			f = NewBitField(name, row.Part, offset, dt.BitOffset, dt, attrs)
		default:
			f = NewSingle(name, row.Part, offset, dt, attrs)
		}
		offsets[row.Part] += byteContribution(dt, offset, offsets[row.Part])
		out = append(out, f)
	}
	return out, nil
}

func byteContribution(dt *datatype.DataType, offsetBefore, offsetAfterSameByteCheck int) int {
	if dt.Kind != datatype.KindBitField {
		return dt.Bytes
	}
	// Bit-packed fields only advance the byte cursor once the byte is
	// full; callers that need exact packing track BitOffset+BitWidth
	// externally and share Offset across a run of BIn fields.
	if dt.BitOffset+dt.BitWidth >= 8 {
		return 1
	}
	return 0
}

func splitAlias(seg string) (name, alias string, hasAlias bool) {
	if i := strings.IndexByte(seg, '='); i >= 0 {
		return seg[:i], seg[i+1:], true
	}
	return seg, "", false
}

func cloneField(f *DataField) *DataField {
	cp := *f
	if len(f.children) > 0 {
		cp.children = make([]*DataField, len(f.children))
		for i, c := range f.children {
			cp.children[i] = cloneField(c)
		}
	}
	return &cp
}

func rebase(f *DataField, offsets map[Part]int) {
	if f.IsSet() {
		for _, c := range f.children {
			rebase(c, offsets)
		}
		return
	}
	f.Offset += offsets[f.Part]
}

func parseConstantText(dt *datatype.DataType, text string) (datatype.Value, error) {
	switch dt.Kind {
	case datatype.KindString, datatype.KindHexString:
		return datatype.StringValue(text), nil
	default:
		tmp := &DataField{Type: dt}
		return tmp.parseText(text)
	}
}
