package logging

import "fmt"

// OperationError records which backend call failed ("repository.insert",
// "cache.set.result", ...) and for which request, so a single log line
// ties an HTTP failure to the call that caused it.
type OperationError struct {
	Operation string
	RequestID string
	Err       error
}

func (e *OperationError) Error() string {
	if e == nil || e.Err == nil {
		return ""
	}
	if e.RequestID == "" {
		return fmt.Sprintf("%s: %v", e.Operation, e.Err)
	}
	return fmt.Sprintf("%s (request_id=%s): %v", e.Operation, e.RequestID, e.Err)
}

// Unwrap lets handlers match repository.ErrNotFound, repository.ErrForbidden
// and decision.ErrInvalidInput through the wrapper.
func (e *OperationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewOperationError tags err with the failing call. Callers may pass the
// result of fn() directly: success stays a nil error, never a typed nil.
func NewOperationError(operation, requestID string, err error) error {
	if err == nil {
		return nil
	}
	return &OperationError{Operation: operation, RequestID: requestID, Err: err}
}
