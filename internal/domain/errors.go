package domain

import (
	"fmt"
	"strings"
)

// ValidationError lists every invariant a record violates.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid transaction: %s", strings.Join(e.Violations, "; "))
}

func (e *ValidationError) add(msg string) {
	e.Violations = append(e.Violations, msg)
}

func (e *ValidationError) empty() bool {
	return len(e.Violations) == 0
}

// Add appends a violation. Used by callers that validate input shape before a
// record exists.
func (e *ValidationError) Add(format string, args ...any) {
	e.add(fmt.Sprintf(format, args...))
}

// Merge appends the violations from another validation error.
func (e *ValidationError) Merge(other *ValidationError) {
	if other == nil {
		return
	}
	e.Violations = append(e.Violations, other.Violations...)
}

// Err returns e when it holds violations and nil otherwise.
func (e *ValidationError) Err() error {
	if e.empty() {
		return nil
	}
	return e
}
