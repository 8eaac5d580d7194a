// Package apperr defines the stable error taxonomy shared by every
// retrieval operation. Handlers never return bare errors to a caller;
// they wrap them (or originate them) as an *Error so the transport layer
// can surface a machine code, a message, an optional hint and next actions.
package apperr

import (
	"errors"
	"fmt"
)

// Code is a stable machine-readable error code (see spec.md §7).
type Code string

const (
	CodeInvalidRequest      Code = "invalid_request"
	CodeMissingField        Code = "missing_field"
	CodeInvalidCursor       Code = "invalid_cursor"
	CodeForbiddenFile       Code = "forbidden_file"
	CodeUnauthorized        Code = "unauthorized"
	CodeNotFound            Code = "not_found"
	CodeEmbeddingUnavailable Code = "embedding_unavailable"
	CodeIndexStale          Code = "index_stale"
	CodeInternal            Code = "internal"
	CodeTimeout             Code = "timeout"
)

// Error is the envelope every public operation returns on failure.
type Error struct {
	Code         Code
	Message      string
	Hint         string
	NextActions  []NextAction
	RootFingerprint string
	Cause        error
}

// NextAction is a suggested follow-up call a caller can make to recover.
type NextAction struct {
	Tool   string         `json:"tool"`
	Args   map[string]any `json:"args,omitempty"`
	Reason string         `json:"reason,omitempty"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error with no cause.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error around an existing cause.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// WithHint returns a copy of e with Hint set.
func (e *Error) WithHint(hint string) *Error {
	c := *e
	c.Hint = hint
	return &c
}

// WithRoot returns a copy of e with RootFingerprint set.
func (e *Error) WithRoot(fp string) *Error {
	c := *e
	c.RootFingerprint = fp
	return &c
}

// WithNextActions returns a copy of e with next actions attached.
func (e *Error) WithNextActions(actions ...NextAction) *Error {
	c := *e
	c.NextActions = actions
	return &c
}

// As reports whether err (or anything it wraps) is an *Error and
// returns it, unwrapping through any fmt.Errorf("%w", ...) chain.
func As(err error) (*Error, bool) {
	var ae *Error
	ok := errors.As(err, &ae)
	return ae, ok
}

// CodeOf returns the Code of err if it is an *Error, else CodeInternal.
func CodeOf(err error) Code {
	if ae, ok := As(err); ok {
		return ae.Code
	}
	return CodeInternal
}
