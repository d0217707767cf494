package catalog

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/rob-gra/ebusd-go/ebuserr"
	"github.com/rob-gra/ebusd-go/field"
)

// TemplateRow is one template-section config line: a name plus the
// field rows that define it (spec §4.5 "template definitions, installed
// before any referencing message").
type TemplateRow struct {
	LineNo int
	Name   string
	Fields []field.Row
}

// MessageRow is one message-section config line, already split into
// its identity columns and field rows. IsDefault marks a
// `*`-prefixed row supplying fallback identity/fields that later rows
// of the same Type inherit for any column they leave blank (spec §4.5
// "wildcard-defaults rows").
type MessageRow struct {
	LineNo int

	Type      string // "r", "w", "u" (passive/update), optionally prefixed "*"
	IsDefault bool

	Circuit string
	Name    string
	Comment string

	Source      string // hex byte, "" = wildcard
	Destination string // hex byte, "" = wildcard
	PBSB        string // 4 hex chars
	ID          string // hex bytes, may be empty
	Priority    int

	Fields      []field.Row
	SlaveFields []field.Row

	// Rename, when true, asks the loader to disambiguate a duplicate
	// circuit/name/direction by suffixing Name instead of failing.
	Rename bool
}

// LoadError pairs a config-file line number with the error that line
// produced, so a loader can report every bad row instead of aborting
// at the first one (spec §4.5 "collects per-line errors without
// aborting later good rows").
type LoadError struct {
	Line int
	Err  error
}

func (e *LoadError) Error() string { return fmt.Sprintf("line %d: %v", e.Line, e.Err) }

// Loader consumes TemplateRow/MessageRow values into a Templates set
// and a MessageMap, accumulating per-line errors rather than stopping
// at the first bad row.
type Loader struct {
	Templates *field.Templates
	Messages  *MessageMap

	defaults map[string]MessageRow // by Type without its "*", most recent "*" row
	errs     []*LoadError
}

// NewLoader builds an empty Loader; pass an existing Templates to
// share template definitions across multiple config files (spec §4.5
// allows templates from one file to be referenced by messages in
// another).
func NewLoader(templates *field.Templates) *Loader {
	if templates == nil {
		templates = field.NewTemplates()
	}
	return &Loader{
		Templates: templates,
		Messages:  NewMessageMap(),
		defaults:  make(map[string]MessageRow),
	}
}

// Errors returns every accumulated per-line error, in the order
// encountered.
func (l *Loader) Errors() []*LoadError { return l.errs }

func (l *Loader) fail(line int, err error) {
	l.errs = append(l.errs, &LoadError{Line: line, Err: err})
}

// LoadTemplate installs one template row into l.Templates.
func (l *Loader) LoadTemplate(row TemplateRow) {
	if _, err := l.Templates.Define(row.Name, row.Fields); err != nil {
		l.fail(row.LineNo, err)
	}
}

// LoadMessage resolves one message row (applying any inherited
// defaults for its Type) and installs the resulting Message.
func (l *Loader) LoadMessage(row MessageRow) {
	merged := l.applyDefaults(row)

	if merged.IsDefault {
		l.defaults[strings.TrimPrefix(merged.Type, "*")] = merged
		return
	}

	msg, err := l.buildMessage(merged)
	if err != nil {
		l.fail(row.LineNo, err)
		return
	}
	if err := l.Messages.Add(msg, merged.Rename); err != nil {
		l.fail(row.LineNo, err)
	}
}

// applyDefaults fills Circuit, Source, Destination, PBSB, ID,
// Priority, Fields and SlaveFields, where row leaves them at their
// zero value, from the most recent "*"-row of the same Type. Name,
// Comment and Rename are never inherited.
func (l *Loader) applyDefaults(row MessageRow) MessageRow {
	def, ok := l.defaults[strings.TrimPrefix(row.Type, "*")]
	if !ok {
		return row
	}
	if row.Circuit == "" {
		row.Circuit = def.Circuit
	}
	if row.Source == "" {
		row.Source = def.Source
	}
	if row.Destination == "" {
		row.Destination = def.Destination
	}
	if row.PBSB == "" {
		row.PBSB = def.PBSB
	}
	if row.ID == "" {
		row.ID = def.ID
	}
	if row.Priority == 0 {
		row.Priority = def.Priority
	}
	if len(row.Fields) == 0 {
		row.Fields = def.Fields
	}
	if len(row.SlaveFields) == 0 {
		row.SlaveFields = def.SlaveFields
	}
	return row
}

func (l *Loader) buildMessage(row MessageRow) (*Message, error) {
	dir, err := parseDirection(row.Type)
	if err != nil {
		return nil, err
	}
	if err := checkDuplicateFieldNames(row.Fields); err != nil {
		return nil, err
	}
	if err := checkDuplicateFieldNames(row.SlaveFields); err != nil {
		return nil, err
	}

	source, err := parseAddress(row.Source)
	if err != nil {
		return nil, ebuserr.Wrap(ebuserr.InvalidArg, "source address", err)
	}
	dest, err := parseAddress(row.Destination)
	if err != nil {
		return nil, ebuserr.Wrap(ebuserr.InvalidArg, "destination address", err)
	}
	pb, sb, err := parsePBSB(row.PBSB)
	if err != nil {
		return nil, err
	}
	id, err := parseID(row.ID)
	if err != nil {
		return nil, ebuserr.Wrap(ebuserr.InvalidArg, "identifier bytes", err)
	}

	msg := &Message{
		Circuit:     row.Circuit,
		Name:        row.Name,
		Source:      source,
		Destination: dest,
		PB:          pb,
		SB:          sb,
		ID:          id,
		Direction:   dir,
		Priority:    row.Priority,
		Attrs:       field.Attributes{Comment: row.Comment},
	}

	if len(row.Fields) > 0 {
		mf, err := field.Build(row.Name, row.Fields, l.Templates)
		if err != nil {
			return nil, err
		}
		msg.MasterField = mf
	}
	if len(row.SlaveFields) > 0 {
		sf, err := field.Build(row.Name, row.SlaveFields, l.Templates)
		if err != nil {
			return nil, err
		}
		msg.SlaveField = sf
	}
	return msg, nil
}

func checkDuplicateFieldNames(rows []field.Row) error {
	seen := make(map[string]bool, len(rows))
	for _, r := range rows {
		if r.Name == "" {
			continue
		}
		if seen[r.Name] {
			return ebuserr.Newf(ebuserr.DuplicateName, "duplicate field name %q", r.Name)
		}
		seen[r.Name] = true
	}
	return nil
}

// parseDirection maps a type token to its Direction. "r" is a
// read-on-demand message, "w" a write, anything else (u, up, bc, ...)
// is treated as passive.
func parseDirection(typ string) (Direction, error) {
	t := strings.TrimPrefix(strings.ToLower(typ), "*")
	switch {
	case t == "":
		return Passive, ebuserr.New(ebuserr.InvalidArg, "empty message type")
	case t == "r" || strings.HasPrefix(t, "r"):
		return Read, nil
	case t == "w":
		return Write, nil
	default:
		return Passive, nil
	}
}

func parseAddress(hexByte string) (byte, error) {
	if hexByte == "" {
		return 0, nil
	}
	b, err := hex.DecodeString(hexByte)
	if err != nil || len(b) != 1 {
		return 0, fmt.Errorf("invalid address %q", hexByte)
	}
	return b[0], nil
}

func parsePBSB(s string) (pb, sb byte, err error) {
	if len(s) != 4 {
		return 0, 0, ebuserr.Newf(ebuserr.InvalidArg, "PBSB must be 4 hex chars, got %q", s)
	}
	b, derr := hex.DecodeString(s)
	if derr != nil || len(b) != 2 {
		return 0, 0, ebuserr.Newf(ebuserr.InvalidArg, "invalid PBSB %q", s)
	}
	return b[0], b[1], nil
}

func parseID(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	return hex.DecodeString(s)
}

// SelectLang picks values[key+"@"+lang] if present, falling back to
// values[key], implementing spec §4.5's "@lang column suffix" rule.
func SelectLang(values map[string]string, key, lang string) string {
	if lang != "" {
		if v, ok := values[key+"@"+lang]; ok {
			return v
		}
	}
	return values[key]
}

// ParsePriority parses the numeric poll-priority column; an empty or
// "0" value means not pollable.
func ParsePriority(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, ebuserr.Wrap(ebuserr.InvalidArg, "poll priority", err)
	}
	return n, nil
}
