package rules

import (
	"errors"
	"fmt"
)

// Sentinel errors forming the error taxonomy of the rule core.
// Callers match them with errors.Is; messages are wrapped with %w.
var (
	ErrSyntax       = errors.New("syntax error")
	ErrValidation   = errors.New("validation error")
	ErrNotFound     = errors.New("not found")
	ErrTypeMismatch = errors.New("type mismatch")
)

// Kind names reported at the API boundary.
const (
	KindSyntaxError       = "SyntaxError"
	KindValidationError   = "ValidationError"
	KindNotFoundError     = "NotFoundError"
	KindTypeMismatchError = "TypeMismatchError"
)

// SyntaxError describes malformed rule text. Line and Column are 1-based and
// zero when the position is unknown.
type SyntaxError struct {
	Line   int
	Column int
	Msg    string
}

func (e *SyntaxError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("syntax error at %d:%d: %s", e.Line, e.Column, e.Msg)
	}
	return "syntax error: " + e.Msg
}

// Unwrap lets errors.Is(err, ErrSyntax) match.
func (e *SyntaxError) Unwrap() error { return ErrSyntax }

// KindOf maps an error to its taxonomy kind. Validation wins over syntax so
// that a rejected combine input reports ValidationError. Unknown errors return "".
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return KindNotFoundError
	case errors.Is(err, ErrTypeMismatch):
		return KindTypeMismatchError
	case errors.Is(err, ErrValidation):
		return KindValidationError
	case errors.Is(err, ErrSyntax):
		return KindSyntaxError
	default:
		return ""
	}
}

func validationErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrValidation}, args...)...)
}

func typeMismatchf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrTypeMismatch}, args...)...)
}
