package datatype

import (
	"fmt"
	"strconv"
	"time"
)

// ValueKind tags which field of Value holds the decoded payload. Kept
// as a small typed value internally and formatted to text only at the
// client boundary (line or JSON), per spec §9 design notes.
type ValueKind uint8

const (
	ValueNull ValueKind = iota
	ValueInt
	ValueFloat
	ValueString
	ValueTime
)

// Value is the typed decode result of a DataType, shared by the line
// and JSON formatters. Layout is a time.Format layout used only when
// Kind is ValueTime; it defaults to a plain date when empty.
type Value struct {
	Kind   ValueKind
	I      int64
	F      float64
	S      string
	T      time.Time
	Layout string
}

// NullValue is the Empty/replacement sentinel, rendered "-" in line
// output and "null" in JSON.
func NullValue() Value { return Value{Kind: ValueNull} }

func IntValue(i int64) Value     { return Value{Kind: ValueInt, I: i} }
func FloatValue(f float64) Value { return Value{Kind: ValueFloat, F: f} }
func StringValue(s string) Value { return Value{Kind: ValueString, S: s} }
func TimeValue(t time.Time) Value { return Value{Kind: ValueTime, T: t, Layout: "02.01.2006"} }

// TimeOfDayValue renders as "HH:MM".
func TimeOfDayValue(t time.Time) Value { return Value{Kind: ValueTime, T: t, Layout: "15:04"} }

// TimeOfDaySecondsValue renders as "HH:MM:SS".
func TimeOfDaySecondsValue(t time.Time) Value { return Value{Kind: ValueTime, T: t, Layout: "15:04:05"} }

// DateTimeValue renders as "DD.MM.YYYY HH:MM".
func DateTimeValue(t time.Time) Value { return Value{Kind: ValueTime, T: t, Layout: "02.01.2006 15:04"} }

func (v Value) layout() string {
	if v.Layout != "" {
		return v.Layout
	}
	return "02.01.2006"
}

// Text renders the value for line output.
func (v Value) Text() string {
	switch v.Kind {
	case ValueNull:
		return "-"
	case ValueInt:
		return strconv.FormatInt(v.I, 10)
	case ValueFloat:
		return strconv.FormatFloat(v.F, 'f', -1, 64)
	case ValueString:
		return v.S
	case ValueTime:
		return v.T.Format(v.layout())
	default:
		return ""
	}
}

// JSON renders the value as a JSON scalar literal (not a whole
// document): numbers and booleans unquoted, strings quoted, null for
// the null sentinel.
func (v Value) JSON() string {
	switch v.Kind {
	case ValueNull:
		return "null"
	case ValueInt:
		return strconv.FormatInt(v.I, 10)
	case ValueFloat:
		return strconv.FormatFloat(v.F, 'f', -1, 64)
	case ValueString:
		return fmt.Sprintf("%q", v.S)
	case ValueTime:
		return fmt.Sprintf("%q", v.T.Format(v.layout()))
	default:
		return "null"
	}
}
