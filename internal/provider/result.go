package provider

import (
	"encoding/json"
	"errors"
)

// State is the lifecycle position of a FetchResult.
type State int

const (
	Pending State = iota
	Ok
	Failed
)

func (s State) String() string {
	switch s {
	case Ok:
		return "ok"
	case Failed:
		return "error"
	default:
		return "pending"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Result is one externally sourced value: pending, a value, or a typed failure.
// The zero value is Pending.
type Result[T any] struct {
	state State
	value T
	err   *Error
}

// OkResult wraps a successful value.
func OkResult[T any](v T) Result[T] {
	return Result[T]{state: Ok, value: v}
}

// ErrResult wraps a failure. Errors that are not *Error are recorded as
// ProviderRejected so that nothing untyped leaks past the boundary.
func ErrResult[T any](err error) Result[T] {
	var perr *Error
	if !errors.As(err, &perr) {
		perr = &Error{Kind: ProviderRejected, Message: err.Error(), Err: err}
	}
	return Result[T]{state: Failed, err: perr}
}

// From builds a Result from the usual (value, error) pair.
func From[T any](v T, err error) Result[T] {
	if err != nil {
		return ErrResult[T](err)
	}
	return OkResult(v)
}

// State returns the current state.
func (r Result[T]) State() State { return r.state }

// IsPending reports whether the fetch has not completed yet.
func (r Result[T]) IsPending() bool { return r.state == Pending }

// IsOk reports whether the result holds a value.
func (r Result[T]) IsOk() bool { return r.state == Ok }

// Value returns the value and whether it is present.
func (r Result[T]) Value() (T, bool) {
	return r.value, r.state == Ok
}

// Err returns the failure, or nil unless the state is Failed.
func (r Result[T]) Err() *Error {
	if r.state != Failed {
		return nil
	}
	return r.err
}

type resultError struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

type resultJSON[T any] struct {
	State State        `json:"state"`
	Data  *T           `json:"data,omitempty"`
	Error *resultError `json:"error,omitempty"`
}

// MarshalJSON renders {"state":..,"data":..} or {"state":"error","error":{..}}.
func (r Result[T]) MarshalJSON() ([]byte, error) {
	out := resultJSON[T]{State: r.state}
	switch r.state {
	case Ok:
		v := r.value
		out.Data = &v
	case Failed:
		out.Error = &resultError{Kind: r.err.Kind, Message: r.err.Message}
	}
	return json.Marshal(out)
}
