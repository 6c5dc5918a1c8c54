package core

import "fmt"

// AbortError stops the run under fail-fast after a recoverable failure.
type AbortError struct {
	Collection string
	Line       int
	Operation  Operation
	Label      string
	Message    string
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("aborting: %s failed on %s line %d: %s: %s",
		e.Operation, e.Collection, e.Line, e.Label, e.Message)
}

// ErrorPolicy decides whether a recoverable failure ends the run.
type ErrorPolicy struct {
	ContinueOnError bool
}

// DefaultErrorPolicy continues past recoverable failures.
func DefaultErrorPolicy() ErrorPolicy {
	return ErrorPolicy{ContinueOnError: true}
}

// Decide returns nil to continue with the next record, or an *AbortError when
// the outcome failed and the policy is fail-fast. Callers must have recorded the
// outcome before asking.
func (p ErrorPolicy) Decide(collection string, rec Record, op Operation, outcome Outcome) error {
	if outcome.Success || p.ContinueOnError {
		return nil
	}
	return &AbortError{
		Collection: collection,
		Line:       rec.Line,
		Operation:  op,
		Label:      outcome.StatusLabel,
		Message:    outcome.Message,
	}
}
