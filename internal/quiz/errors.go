package quiz

import (
	"errors"
	"fmt"
	"strings"
)

// Domain errors.
var (
	ErrNotFound         = errors.New("quiz not found")
	ErrAttemptNotFound  = errors.New("attempt not found")
	ErrNotAvailable     = errors.New("quiz is not available")
	ErrAlreadySubmitted = errors.New("attempt already submitted")
	ErrNotStarted       = errors.New("attempt has not started")
	ErrAbandoned        = errors.New("attempt was abandoned")
	ErrOutOfRange       = errors.New("index out of range")
)

// Violation is a single problem found while validating a quiz definition.
type Violation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every violation found in a quiz definition.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.Field + ": " + v.Message
	}
	return "invalid quiz: " + strings.Join(parts, "; ")
}

// Fields flattens the violations into a field → message map.
// Multiple messages for the same field are joined.
func (e *ValidationError) Fields() map[string]string {
	fields := make(map[string]string, len(e.Violations))
	for _, v := range e.Violations {
		if prev, ok := fields[v.Field]; ok {
			fields[v.Field] = prev + "; " + v.Message
			continue
		}
		fields[v.Field] = v.Message
	}
	return fields
}

// RangeError reports an out-of-bounds question position or option index.
type RangeError struct {
	Field string
	Index int
	Len   int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s %d out of range [0, %d)", e.Field, e.Index, e.Len)
}

// Is lets errors.Is(err, ErrOutOfRange) match any RangeError.
func (e *RangeError) Is(target error) bool {
	return target == ErrOutOfRange
}
