package ledger

import (
	"errors"
	"fmt"
)

// Error kinds. Every rejected operation returns an *Error whose Kind is one of these,
// so callers can match with errors.Is.
var (
	ErrNotFound            = errors.New("not found")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrInactive            = errors.New("inactive entity")
	ErrInvalidInput        = errors.New("invalid input")
	ErrInsufficientPayment = errors.New("insufficient payment")
	ErrTransferFailure     = errors.New("transfer failure")
)

// Error is a rejected ledger operation. A rejected operation has no side effects.
type Error struct {
	Kind error
	Op   string
	Msg  string
	// Err is the underlying cause, set for transfer failures.
	Err error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Op, e.Kind)
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}

	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}

	return []error{e.Kind}
}

func newError(kind error, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// KindOf returns the error kind of err, or nil if err is not a ledger error.
func KindOf(err error) error {
	var lerr *Error
	if errors.As(err, &lerr) {
		return lerr.Kind
	}

	return nil
}

// IsNotFound checks if an error references a dataset, category or subscription that does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsUnauthorized checks if an error was caused by a caller lacking the required role.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsInactive checks if an error was caused by a deactivated dataset or category.
func IsInactive(err error) bool {
	return errors.Is(err, ErrInactive)
}

// IsInvalidInput checks if an error was caused by malformed arguments.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsInsufficientPayment checks if an error was caused by an attached payment below the required amount.
func IsInsufficientPayment(err error) bool {
	return errors.Is(err, ErrInsufficientPayment)
}

// IsTransferFailure checks if an error was caused by a payout that could not be delivered.
func IsTransferFailure(err error) bool {
	return errors.Is(err, ErrTransferFailure)
}

// Code returns a short snake_case label for the kind of err, e.g. "not_found".
// Errors that are not ledger errors are labelled "error".
func Code(err error) string {
	switch KindOf(err) {
	case ErrNotFound:
		return "not_found"
	case ErrUnauthorized:
		return "unauthorized"
	case ErrInactive:
		return "inactive"
	case ErrInvalidInput:
		return "invalid_input"
	case ErrInsufficientPayment:
		return "insufficient_payment"
	case ErrTransferFailure:
		return "transfer_failure"
	default:
		return "error"
	}
}
