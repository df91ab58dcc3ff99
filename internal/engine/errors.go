package engine

import "errors"

var (
	// ErrInsufficientFunds means a spend would drive the balance below zero.
	// The caller may retry later or abandon the operation.
	ErrInsufficientFunds = errors.New("economy: insufficient funds")
	ErrUnknownAgent      = errors.New("economy: unknown agent")
	ErrUnknownProject    = errors.New("economy: unknown project")
	ErrInvalidArgument   = errors.New("economy: invalid argument")
	ErrDuplicateID       = errors.New("economy: duplicate id")
)

// IsRetryable reports whether err may succeed once the treasury changes.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrInsufficientFunds)
}

// IsNotFound reports whether err references an id the engine does not hold.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrUnknownAgent) || errors.Is(err, ErrUnknownProject)
}
