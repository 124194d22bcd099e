package rest

import (
	"errors"
	"fmt"
)

// Sentinel errors wrapped by *Error.
var (
	// ErrNoTransport is returned when an instance has no client or its client has no transport.
	ErrNoTransport = errors.New("rest: no transport configured")

	// ErrBaseURLKey is returned when a fetched configuration document lacks the base URL key.
	ErrBaseURLKey = errors.New("rest: base url key not found")

	// ErrNotDefined is returned when a definition, member or companion is unknown.
	ErrNotDefined = errors.New("rest: not defined")
)

// Kind classifies an invocation failure.
type Kind int

const (
	// KindConfiguration is a wiring defect detected before any request is built.
	// It is never routed to an error handler.
	KindConfiguration Kind = iota + 1
	// KindAssembly is a failure while resolving the request's inputs.
	KindAssembly
	// KindTransport is a failure reported by the transport, including HTTP error statuses.
	KindTransport
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindAssembly:
		return "assembly"
	case KindTransport:
		return "transport"
	default:
		return "unknown"
	}
}

// Error describes a failed invocation.
type Error struct {
	Kind Kind
	// Op names the failing operation, usually "Definition.Member".
	Op string

	// Status and StatusText are set for HTTP error responses.
	Status     int
	StatusText string
	// Response is the error response, when one was received.
	Response *Response

	Err error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}

	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	switch {
	case e.Status != 0 && e.Err != nil:
		return fmt.Sprintf("%s: %d %s: %v", msg, e.Status, e.StatusText, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("%s: %d %s", msg, e.Status, e.StatusText)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsConfiguration reports whether err is a configuration error.
func IsConfiguration(err error) bool {
	return kindOf(err) == KindConfiguration
}

// IsAssembly reports whether err is an assembly error.
func IsAssembly(err error) bool {
	return kindOf(err) == KindAssembly
}

// IsTransport reports whether err is a transport error.
func IsTransport(err error) bool {
	return kindOf(err) == KindTransport
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var restErr *Error
	if errors.As(err, &restErr) {
		return restErr.Status
	}
	return 0
}

func kindOf(err error) Kind {
	var restErr *Error
	if errors.As(err, &restErr) {
		return restErr.Kind
	}
	return 0
}

// wrapKind tags err with kind unless it already carries one. Errors may be
// shared between callers of one cached call, so they are copied, not mutated.
func wrapKind(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	var restErr *Error
	if errors.As(err, &restErr) {
		if restErr.Op != "" || err != error(restErr) {
			return err
		}
		tagged := *restErr
		tagged.Op = op
		return &tagged
	}
	return &Error{Kind: kind, Op: op, Err: err}
}
