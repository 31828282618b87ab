package account

import (
	"errors"
	"fmt"
)

var (
	// ErrParse is returned when an account number or IBAN is syntactically
	// malformed. The caller should ask for the value again.
	ErrParse = errors.New("malformed account identifier")

	// ErrChecksum is returned when an IBAN is well formed but its mod-97
	// check digits do not match.
	ErrChecksum = errors.New("IBAN checksum mismatch")
)

// AccountError wraps an account parsing or validation failure with the
// offending input.
type AccountError struct {
	// Op is the operation that failed (e.g. "DeriveIban", "CheckIban").
	Op string

	// Input is the value as supplied by the caller.
	Input string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *AccountError) Error() string {
	return fmt.Sprintf("account: %s(%q) failed: %v", e.Op, e.Input, e.Err)
}

// Unwrap returns the underlying error.
func (e *AccountError) Unwrap() error {
	return e.Err
}

// Is implements error matching.
func (e *AccountError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func newAccountError(op, input string, err error) *AccountError {
	return &AccountError{Op: op, Input: input, Err: err}
}
