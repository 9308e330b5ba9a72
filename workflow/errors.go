package workflow

import "errors"

// Workflow failures callers are expected to branch on. Everything else that
// bubbles out of an operation is an infrastructure error and maps to a
// retryable server failure.
var (
	ErrNotFound             = errors.New("item not found")
	ErrAlreadyComplete      = errors.New("item is already fully fulfilled")
	ErrNotChecked           = errors.New("item is not checked")
	ErrItemLocked           = errors.New("checked items cannot be edited")
	ErrInvalidSplitQuantity = errors.New("split quantity out of range")
	ErrNotSplittable        = errors.New("item cannot be split")
	ErrConcurrency          = errors.New("conflicting concurrent update, retry")
)

// ValidationError reports bad caller input (missing product-or-name, missing
// source, negative quantities).
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

func NewValidationError(msg string) error {
	return &ValidationError{Msg: msg}
}

func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
