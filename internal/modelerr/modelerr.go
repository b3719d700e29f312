// Package modelerr defines the tagged error type used by the model and
// OCPP layers for control flow, instead of ad-hoc error strings.
package modelerr

import "fmt"

// Kind classifies a model error so callers can map it onto an OCPP status
// or an admin-API response code without string matching.
type Kind int

const (
	Unknown Kind = iota
	NotFound
	Conflict
	IllegalArgument
	ProtocolError
	NotAuthorized
	InvalidLogin
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "NotFound"
	case Conflict:
		return "Conflict"
	case IllegalArgument:
		return "IllegalArgument"
	case ProtocolError:
		return "ProtocolError"
	case NotAuthorized:
		return "NotAuthorized"
	case InvalidLogin:
		return "InvalidLogin"
	default:
		return "Unknown"
	}
}

// Error is a model/protocol error carrying a Kind for classification.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// As extracts a *Error from err, if any exists in its chain.
func As(err error) (*Error, bool) {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e, true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return nil, false
}

// KindOf returns err's Kind if it is (or wraps) an *Error, else Unknown.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return Unknown
}
