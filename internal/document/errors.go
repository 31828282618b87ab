package document

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidDocument is returned when a document cannot be issued as given.
	ErrInvalidDocument = errors.New("invalid document")

	// ErrAccount is returned when the supplier account cannot be resolved to
	// a valid IBAN.
	ErrAccount = errors.New("supplier account cannot be resolved")

	// ErrExport is returned when the exporter failed. The reserved number has
	// been abandoned.
	ErrExport = errors.New("document export failed")

	// ErrNotFinalized is returned when the document was exported but its
	// number could not be committed. The artifact exists on disk while the
	// counter is still unadvanced.
	ErrNotFinalized = errors.New("document exported but number not committed")
)

// IssueError reports a failed step of the issuance workflow.
type IssueError struct {
	// Op is the step that failed (e.g. "ResolveAccount", "Export").
	Op string

	// Number is the reserved document number, if one had been reserved.
	Number string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *IssueError) Error() string {
	if e.Number != "" {
		return fmt.Sprintf("document: %s failed for %s: %v", e.Op, e.Number, e.Err)
	}
	return fmt.Sprintf("document: %s failed: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *IssueError) Unwrap() error {
	return e.Err
}

// Is implements error matching.
func (e *IssueError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func wrap(op, number string, sentinel, cause error) *IssueError {
	if cause == nil {
		return &IssueError{Op: op, Number: number, Err: sentinel}
	}
	return &IssueError{Op: op, Number: number, Err: fmt.Errorf("%w: %w", sentinel, cause)}
}
