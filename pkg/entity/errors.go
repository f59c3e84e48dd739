package entity

import (
	"errors"
	"strings"
)

// ErrNotFound marks lookups that missed. Public read APIs convert it
// to an empty result; it only travels between the engine and storage.
var ErrNotFound = errors.New("entity not found")

// ErrInvalidArgument marks malformed input to a typed setter
var ErrInvalidArgument = errors.New("invalid argument")

// ValidationError aggregates every rule violation found in one pass so
// callers can report them all at once
type ValidationError struct {
	ObjType    string
	Violations []string
}

func (e *ValidationError) Error() string {
	return "validation failed for " + e.ObjType + ": " + strings.Join(e.Violations, "; ")
}

// Add appends a violation
func (e *ValidationError) Add(violation string) {
	e.Violations = append(e.Violations, violation)
}

// HasViolations reports whether any rule failed
func (e *ValidationError) HasViolations() bool {
	return len(e.Violations) > 0
}
