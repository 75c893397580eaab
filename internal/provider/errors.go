// Package provider holds the pieces shared by every external data source client:
// the failure taxonomy, the FetchResult sum type and the HTTP/JSON boundary helpers.
package provider

import (
	"errors"
	"fmt"
)

// Kind classifies why a provider call failed.
type Kind int

// Failure kinds. None of them are fatal; the next trigger may succeed.
const (
	KindUnknown Kind = iota
	MissingInput
	Unauthorized
	Transport
	BadRequest
	ProviderRejected
	UnexpectedShape
)

var kindNames = map[Kind]string{
	KindUnknown:      "unknown",
	MissingInput:     "missing_input",
	Unauthorized:     "unauthorized",
	Transport:        "transport",
	BadRequest:       "bad_request",
	ProviderRejected: "provider_rejected",
	UnexpectedShape:  "unexpected_shape",
}

// String returns the snake_case name used in API payloads and logs.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return kindNames[KindUnknown]
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Sentinel errors, one per kind, for use with errors.Is.
var (
	ErrMissingInput     = &Error{Kind: MissingInput}
	ErrUnauthorized     = &Error{Kind: Unauthorized}
	ErrTransport        = &Error{Kind: Transport}
	ErrBadRequest       = &Error{Kind: BadRequest}
	ErrProviderRejected = &Error{Kind: ProviderRejected}
	ErrUnexpectedShape  = &Error{Kind: UnexpectedShape}
)

// Error is the only error type returned by provider clients.
type Error struct {
	Kind     Kind
	Provider string
	Message  string
	Err      error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Provider == "" {
		return fmt.Sprintf("%s: %s", e.Kind, msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Kind, msg)
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind.
// Sentinels match any provider and message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Errorf builds an *Error with a formatted message.
func Errorf(provider string, kind Kind, format string, args ...any) *Error {
	return &Error{
		Kind:     kind,
		Provider: provider,
		Message:  fmt.Sprintf(format, args...),
	}
}

// Wrap builds an *Error around a cause.
func Wrap(provider string, kind Kind, err error) *Error {
	return &Error{
		Kind:     kind,
		Provider: provider,
		Message:  err.Error(),
		Err:      err,
	}
}

// KindOf returns the kind of err. Errors that did not come from a provider
// client report KindUnknown.
func KindOf(err error) Kind {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind
	}
	return KindUnknown
}

// Missing returns a MissingInput error naming the absent parameter.
func Missing(provider, param string) *Error {
	return Errorf(provider, MissingInput, "%s is required", param)
}
