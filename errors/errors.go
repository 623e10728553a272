package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseDecode   Phase = "decode"   // binary decoding
	PhaseValidate Phase = "validate" // region and type validation
	PhaseBuild    Phase = "build"    // SSA construction
	PhaseLower    Phase = "lower"    // translation to core modules
)

// Kind categorizes the error
type Kind string

const (
	KindMalformedEncoding   Kind = "malformed_encoding"
	KindStructural          Kind = "structural"
	KindTypeMismatch        Kind = "type_mismatch"
	KindPredecessorCount    Kind = "predecessor_count"
	KindUnresolvedSignature Kind = "unresolved_signature"
	KindInvalidInput        Kind = "invalid_input"
	KindUnsupported         Kind = "unsupported"
)

// Error is the structured error type used throughout the pipeline
type Error struct {
	Cause    error
	Phase    Phase
	Kind     Kind
	Detail   string
	Expected string
	Actual   string
	Offset   int   // byte offset into the function body, -1 when unknown
	Funclet  int32 // funclet index the error is attributed to, -1 when none
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Funclet >= 0 {
		fmt.Fprintf(&b, " in funclet %d", e.Funclet)
	}
	if e.Offset >= 0 {
		fmt.Fprintf(&b, " at offset 0x%x", e.Offset)
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Expected != "" || e.Actual != "" {
		b.WriteString(" (expected ")
		b.WriteString(e.Expected)
		b.WriteString(", got ")
		b.WriteString(e.Actual)
		b.WriteByte(')')
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Is reports whether any error in err's chain matches target. It forwards to
// the standard library so callers need only this package.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// Unwrap returns the result of calling Unwrap on err, if it has one.
func Unwrap(err error) error {
	return stderrors.Unwrap(err)
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase:   phase,
			Kind:    kind,
			Offset:  -1,
			Funclet: -1,
		},
	}
}

// Offset sets the byte offset into the function body
func (b *Builder) Offset(off int) *Builder {
	b.err.Offset = off
	return b
}

// Funclet sets the funclet index the error is attributed to
func (b *Builder) Funclet(idx int32) *Builder {
	b.err.Funclet = idx
	return b
}

// Expected sets the expected side of a mismatch
func (b *Builder) Expected(s string) *Builder {
	b.err.Expected = s
	return b
}

// Actual sets the actual side of a mismatch
func (b *Builder) Actual(s string) *Builder {
	b.err.Actual = s
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// Malformed creates a malformed encoding error at a byte offset
func Malformed(phase Phase, offset int, detail string, cause error) *Error {
	return &Error{
		Phase:   phase,
		Kind:    KindMalformedEncoding,
		Offset:  offset,
		Funclet: -1,
		Detail:  detail,
		Cause:   cause,
	}
}

// Structural creates a structural error
func Structural(offset int, detail string) *Error {
	return &Error{
		Phase:   PhaseValidate,
		Kind:    KindStructural,
		Offset:  offset,
		Funclet: -1,
		Detail:  detail,
	}
}

// TypeMismatch creates a type mismatch error
func TypeMismatch(offset int, detail, expected, actual string) *Error {
	return &Error{
		Phase:    PhaseValidate,
		Kind:     KindTypeMismatch,
		Offset:   offset,
		Funclet:  -1,
		Detail:   detail,
		Expected: expected,
		Actual:   actual,
	}
}

// PredecessorCount creates a predecessor count error for a funclet
func PredecessorCount(funclet int32, detail string, declared, observed uint32) *Error {
	return &Error{
		Phase:    PhaseValidate,
		Kind:     KindPredecessorCount,
		Offset:   -1,
		Funclet:  funclet,
		Detail:   detail,
		Expected: fmt.Sprintf("%d", declared),
		Actual:   fmt.Sprintf("%d", observed),
	}
}

// UnresolvedSignature creates an unresolved signature error for a funclet
func UnresolvedSignature(funclet int32, detail string) *Error {
	return &Error{
		Phase:   PhaseValidate,
		Kind:    KindUnresolvedSignature,
		Offset:  -1,
		Funclet: funclet,
		Detail:  detail,
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:   phase,
		Kind:    KindInvalidInput,
		Offset:  -1,
		Funclet: -1,
		Detail:  detail,
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:   phase,
		Kind:    KindUnsupported,
		Offset:  -1,
		Funclet: -1,
		Detail:  what,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:   phase,
		Kind:    kind,
		Offset:  -1,
		Funclet: -1,
		Detail:  detail,
		Cause:   cause,
	}
}
