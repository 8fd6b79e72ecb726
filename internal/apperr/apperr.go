// Package apperr defines the error taxonomy shared by the store, allocator,
// service and handler layers.
//
// Callers classify errors with errors.Is / errors.As or with ClassOf; layers
// wrap with fmt.Errorf("...: %w", err) so classification survives wrapping.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a referenced entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrSoldOut is returned when a ticket tier has no remaining capacity.
	// It is an expected business outcome, not a fault.
	ErrSoldOut = errors.New("sold out")

	// ErrDuplicate is returned when an at-most-one action is attempted twice,
	// e.g. a second survey response for the same participant.
	ErrDuplicate = errors.New("duplicate")

	// ErrInProgress is returned when a request with the same idempotency key
	// is still being processed.
	ErrInProgress = errors.New("request in progress")

	// ErrInvalidStatus is returned when a status string is not one of the
	// closed set of values for the entity.
	ErrInvalidStatus = errors.New("invalid status")

	// ErrInvalidTransition is returned when a state machine is asked to move
	// along an edge it does not have (e.g. cancelled -> confirmed).
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrInvariantViolation marks a data-integrity bug such as releasing a
	// unit that was never reserved. It must be logged and surfaced, never
	// absorbed.
	ErrInvariantViolation = errors.New("invariant violation")
)

// ValidationError reports malformed or missing input. It never touches
// storage and is always recoverable by the caller correcting the input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// Validation constructs a *ValidationError.
func Validation(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// StoreError wraps an I/O failure against the persistent store.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Retryable reports whether the whole operation may be retried from scratch.
// Classified domain outcomes carried inside a StoreError are not retryable.
func (e *StoreError) Retryable() bool {
	switch ClassOf(e.Err) {
	case ClassValidation, ClassConflict, ClassNotFound, ClassInvariant:
		return false
	}
	return true
}

// Store wraps err as a *StoreError for op. Domain sentinels pass through
// unchanged so callers still see ErrNotFound, ErrSoldOut and friends.
func Store(op string, err error) error {
	if err == nil {
		return nil
	}
	if ClassOf(err) != ClassUnknown {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

// Invariant builds an ErrInvariantViolation with context.
func Invariant(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvariantViolation, fmt.Sprintf(format, args...))
}

// Class is the coarse error category used for transport mapping and metrics.
type Class int

const (
	ClassUnknown Class = iota
	ClassValidation
	ClassConflict
	ClassNotFound
	ClassTransient
	ClassInvariant
)

func (c Class) String() string {
	switch c {
	case ClassValidation:
		return "validation"
	case ClassConflict:
		return "conflict"
	case ClassNotFound:
		return "not_found"
	case ClassTransient:
		return "transient"
	case ClassInvariant:
		return "invariant"
	default:
		return "unknown"
	}
}

// ClassOf classifies err. A nil error is ClassUnknown.
func ClassOf(err error) Class {
	if err == nil {
		return ClassUnknown
	}
	var ve *ValidationError
	switch {
	case errors.Is(err, ErrInvariantViolation):
		return ClassInvariant
	case errors.As(err, &ve), errors.Is(err, ErrInvalidStatus):
		return ClassValidation
	case errors.Is(err, ErrSoldOut), errors.Is(err, ErrDuplicate),
		errors.Is(err, ErrInProgress), errors.Is(err, ErrInvalidTransition):
		return ClassConflict
	case errors.Is(err, ErrNotFound):
		return ClassNotFound
	}
	var se *StoreError
	if errors.As(err, &se) {
		return ClassTransient
	}
	return ClassUnknown
}
