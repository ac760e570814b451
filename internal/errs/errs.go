// Package errs provides structured errors for the roaming engine.
// An Error carries a string code, a message, optional context fields and
// the wrapped cause, so callers can classify failures with errors.As and
// loggers can emit the fields without parsing messages.
package errs

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Code identifies a class of failure. Codes are strings so they read well in logs and JSON.
type Code string

const (
	// CodeNotFound indicates a referenced local entity does not exist.
	CodeNotFound Code = "NOT_FOUND"

	// CodeInvalidInput indicates a remote payload or a request is missing required data.
	CodeInvalidInput Code = "INVALID_INPUT"

	// CodeInvalidConfig indicates an endpoint or process configuration is unusable.
	CodeInvalidConfig Code = "INVALID_CONFIGURATION"

	// CodeConflict indicates a concurrent modification (stale record version).
	CodeConflict Code = "CONFLICT"

	// CodeNetwork indicates the remote call did not complete (dial, timeout, reset).
	CodeNetwork Code = "NETWORK_ERROR"

	// CodeRemote indicates the partner answered with a non-2xx HTTP status or a failing OCPI status.
	CodeRemote Code = "REMOTE_ERROR"

	// CodeInternal indicates a local failure (storage, encoding).
	CodeInternal Code = "INTERNAL_ERROR"
)

type Error struct {
	Code    Code
	Message string
	Fields  map[string]any
	Err     error
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap returns nil when err is nil.
func Wrap(code Code, message string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Err: err}
}

// With attaches a context field and returns the receiver for chaining.
func (e *Error) With(key string, value any) *Error {
	if e.Fields == nil {
		e.Fields = make(map[string]any)
	}
	e.Fields[key] = value
	return e
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%v", k, e.Fields[k])
		}
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether any *Error in err's chain has the given code.
func Is(err error, code Code) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Err
	}
	return false
}

// CodeOf returns the code of the outermost *Error in the chain, or CodeInternal.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// FieldsOf merges the fields of every *Error in the chain. Outer fields win.
func FieldsOf(err error) map[string]any {
	out := map[string]any{}
	var chain []*Error
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			break
		}
		chain = append(chain, e)
		err = e.Err
	}
	for i := len(chain) - 1; i >= 0; i-- {
		for k, v := range chain[i].Fields {
			out[k] = v
		}
	}
	return out
}
