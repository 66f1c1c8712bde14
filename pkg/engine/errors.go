package engine

import (
	"errors"
	"fmt"
)

// ErrorClass represents the classification of a graph error.
type ErrorClass string

const (
	// ErrorClassValidation indicates a written or recomputed value failed
	// its schema. The evaluation was rolled back; the caller may retry
	// with a corrected value.
	ErrorClassValidation ErrorClass = "validation"

	// ErrorClassUnknownNode indicates a dependency, merge, or branch
	// references an undeclared key. Raised at graph construction time only.
	ErrorClassUnknownNode ErrorClass = "unknown_node"

	// ErrorClassCycle indicates a static dependency cycle or an effect
	// cascade that exceeded the configured pass cap.
	ErrorClassCycle ErrorClass = "cycle"

	// ErrorClassReentrancy indicates Set, Init, or Reset was invoked from
	// within a subscriber callback. Programmer error.
	ErrorClassReentrancy ErrorClass = "reentrancy"
)

// GraphError represents a classified error with node context.
type GraphError struct {
	// Class is the error classification.
	Class ErrorClass

	// Message is the human-readable error message.
	Message string

	// Key is the node key that caused the error, if applicable.
	Key string

	// Err is the underlying error that caused this error.
	Err error
}

// Error implements the error interface.
func (e *GraphError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("[%s] %s (node=%s): %s", e.Class, e.Message, e.Key, e.unwrapMessage())
	}
	return fmt.Sprintf("[%s] %s: %s", e.Class, e.Message, e.unwrapMessage())
}

// Unwrap returns the underlying error for error chain inspection.
func (e *GraphError) Unwrap() error {
	return e.Err
}

func (e *GraphError) unwrapMessage() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return ""
}

// Is implements error equality checking for errors.Is. Two graph errors
// are equal when their classes match, so sentinel values like
// ErrValidation can be used as targets.
func (e *GraphError) Is(target error) bool {
	t, ok := target.(*GraphError)
	if !ok {
		return false
	}
	return e.Class == t.Class
}

// Sentinel values for errors.Is checks.
var (
	ErrValidation  = &GraphError{Class: ErrorClassValidation}
	ErrUnknownNode = &GraphError{Class: ErrorClassUnknownNode}
	ErrCycle       = &GraphError{Class: ErrorClassCycle}
	ErrReentrancy  = &GraphError{Class: ErrorClassReentrancy}
)

// NewValidationError creates a new validation error for the given node.
func NewValidationError(key, message string, err error) *GraphError {
	return &GraphError{
		Class:   ErrorClassValidation,
		Message: message,
		Key:     key,
		Err:     err,
	}
}

// NewUnknownNodeError creates a new unknown-node error.
func NewUnknownNodeError(key, message string) *GraphError {
	return &GraphError{
		Class:   ErrorClassUnknownNode,
		Message: message,
		Key:     key,
	}
}

// NewCycleError creates a new cycle error.
func NewCycleError(message string, err error) *GraphError {
	return &GraphError{
		Class:   ErrorClassCycle,
		Message: message,
		Err:     err,
	}
}

// NewReentrancyError creates a new reentrancy error.
func NewReentrancyError(operation string) *GraphError {
	return &GraphError{
		Class:   ErrorClassReentrancy,
		Message: fmt.Sprintf("%s invoked from within a subscriber callback", operation),
	}
}

// IsValidation returns true if the error is classified as a validation error.
func IsValidation(err error) bool {
	var e *GraphError
	if errors.As(err, &e) {
		return e.Class == ErrorClassValidation
	}
	return false
}

// IsUnknownNode returns true if the error is classified as an unknown-node error.
func IsUnknownNode(err error) bool {
	var e *GraphError
	if errors.As(err, &e) {
		return e.Class == ErrorClassUnknownNode
	}
	return false
}

// IsCycle returns true if the error is classified as a cycle error.
func IsCycle(err error) bool {
	var e *GraphError
	if errors.As(err, &e) {
		return e.Class == ErrorClassCycle
	}
	return false
}

// IsReentrancy returns true if the error is classified as a reentrancy error.
func IsReentrancy(err error) bool {
	var e *GraphError
	if errors.As(err, &e) {
		return e.Class == ErrorClassReentrancy
	}
	return false
}
