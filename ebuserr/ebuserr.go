// Package ebuserr defines the exhaustive error taxonomy shared by every
// layer of the eBUS engine, from symbol escaping up to the dispatcher.
package ebuserr

import "fmt"

// Kind identifies one of the error categories the engine can report.
// The set is exhaustive: every layer maps its failures onto one of
// these before the error crosses a package boundary.
type Kind uint8

const (
	// InvalidArg marks malformed user input at a boundary.
	InvalidArg Kind = iota + 1
	// NotFound marks a message or field missing from the catalog.
	NotFound
	// InvalidList marks a value-list mismatch.
	InvalidList
	// OutOfRange marks a numeric encode/decode out of the declared
	// range, or a constant-verify mismatch.
	OutOfRange
	// InvalidPos marks a field offset beyond the payload.
	InvalidPos
	// InvalidEscape marks a malformed escape sequence.
	InvalidEscape
	// BadCrc marks a CRC mismatch on a received telegram.
	BadCrc
	// DeviceTimeout marks an expected symbol not received in time.
	DeviceTimeout
	// DeviceIO marks a transport-level failure.
	DeviceIO
	// BusArbitrationLost marks arbitration lost past the retry budget.
	BusArbitrationLost
	// BusTransmit marks a local echo mismatch while sending.
	BusTransmit
	// SlaveNakReceived marks a slave NAK surviving all retries.
	SlaveNakReceived
	// Canceled marks a request canceled before activation.
	Canceled
	// DuplicateName marks a template/message catalog load conflict.
	DuplicateName
	// Empty is the non-error sentinel for an empty decoded
	// representation (e.g. an ignored field).
	Empty
)

var names = map[Kind]string{
	InvalidArg:          "InvalidArg",
	NotFound:            "NotFound",
	InvalidList:         "InvalidList",
	OutOfRange:          "OutOfRange",
	InvalidPos:          "InvalidPos",
	InvalidEscape:       "InvalidEscape",
	BadCrc:              "BadCrc",
	DeviceTimeout:       "DeviceTimeout",
	DeviceIO:            "DeviceIO",
	BusArbitrationLost:  "BusArbitrationLost",
	BusTransmit:         "BusTransmit",
	SlaveNakReceived:    "SlaveNakReceived",
	Canceled:            "Canceled",
	DuplicateName:       "DuplicateName",
	Empty:               "Empty",
}

// String renders the stable name used in line-protocol "ERR: <kind>: ..."
// replies and as the JSON "error" field.
func (k Kind) String() string {
	if s, ok := names[k]; ok {
		return s
	}
	return "Unknown"
}

// Error is the concrete error type returned across the engine. It
// always carries a Kind plus a human-readable detail, and may wrap an
// underlying cause (e.g. a transport error).
type Error struct {
	Kind   Kind
	Detail string
	Cause  error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error with no wrapped cause.
func New(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

// Newf builds an *Error with a formatted detail.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error around an existing cause.
func Wrap(kind Kind, detail string, cause error) *Error {
	return &Error{Kind: kind, Detail: detail, Cause: cause}
}

// Is reports whether err is an *Error of the given Kind.
func Is(err error, kind Kind) bool {
	e, ok := err.(*Error)
	return ok && e.Kind == kind
}

// KindOf extracts the Kind of err, defaulting to DeviceIO for any
// error the engine did not itself classify (e.g. a bare transport
// error bubbling up from an adapter).
func KindOf(err error) Kind {
	if err == nil {
		return 0
	}
	if e, ok := err.(*Error); ok {
		return e.Kind
	}
	return DeviceIO
}
