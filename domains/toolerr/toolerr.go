package toolerr

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failure in terms callers can act on.
type Kind string

const (
	KindNotFound           Kind = "not_found"
	KindNotARepository     Kind = "not_a_git_repo"
	KindRepositoryNotFound Kind = "repository_not_found"
	KindAlreadyExists      Kind = "already_exists"
	KindInvalidOptions     Kind = "invalid_options"
	KindInvalidArguments   Kind = "invalid_arguments"
	KindLocked             Kind = "locked"
	KindConflict           Kind = "conflict"
	KindFailedPrecondition Kind = "failed_precondition"
	KindIO                 Kind = "io_error"
	KindEngine             Kind = "engine_error"
	KindCancelled          Kind = "cancelled"
)

// String returns the string representation of the kind
func (k Kind) String() string {
	return string(k)
}

// Error is the single error type surfaced to tool callers.
type Error struct {
	Kind      Kind   `json:"kind"`
	Message   string `json:"message"`
	Op        string `json:"op,omitempty"`
	Path      string `json:"path,omitempty"`
	Field     string `json:"field,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Retryable bool   `json:"retryable"`
	Err       error  `json:"-"`
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if e.Path != "" {
		b.WriteString(" (")
		b.WriteString(e.Path)
		b.WriteString(")")
	}
	if e.Err != nil && e.Err.Error() != e.Message {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by kind, so errors.Is(err, &Error{Kind: KindLocked}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Op == ""
}

// New creates an error of the given kind. Locked errors are retryable by default.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{
		Kind:      kind,
		Message:   fmt.Sprintf(format, args...),
		Retryable: kind == KindLocked,
	}
}

// Wrap creates an error of the given kind that carries cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	e := New(kind, format, args...)
	e.Err = cause
	return e
}

// InvalidOption reports a builder validation failure for one field.
func InvalidOption(field, reason string) *Error {
	return &Error{
		Kind:    KindInvalidOptions,
		Message: fmt.Sprintf("invalid option %q: %s", field, reason),
		Field:   field,
		Reason:  reason,
	}
}

// InvalidArguments reports a schema rejection of tool arguments.
func InvalidArguments(format string, args ...any) *Error {
	return New(KindInvalidArguments, format, args...)
}

// Cancelled reports a cooperative cancellation.
func Cancelled(op string) *Error {
	e := New(KindCancelled, "operation cancelled")
	e.Op = op
	return e
}

// WithOp returns a copy of e annotated with op and path. Existing values win.
func (e *Error) WithOp(op, path string) *Error {
	c := *e
	if c.Op == "" {
		c.Op = op
	}
	if c.Path == "" {
		c.Path = path
	}
	return &c
}

// AsRetryable returns a copy of e with the retryable flag set to r.
func (e *Error) AsRetryable(r bool) *Error {
	c := *e
	c.Retryable = r
	return &c
}

// From converts any error into an *Error. Context cancellation becomes
// KindCancelled and unknown errors become KindEngine.
func From(err error) *Error {
	if err == nil {
		return nil
	}

	var te *Error
	if errors.As(err, &te) {
		return te
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Wrap(KindCancelled, err, "operation cancelled")
	}

	return Wrap(KindEngine, err, "engine failure")
}

// KindOf returns the kind of err, or the empty kind for nil.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	return From(err).Kind
}

// IsKind reports whether err classifies as kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsRetryable reports whether err may succeed when attempted again.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return From(err).Retryable
}
