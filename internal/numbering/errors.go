package numbering

import (
	"errors"
	"fmt"

	"invoicekit/pkg/models"
)

var (
	// ErrCapacityExceeded is returned by Reserve when the yearly sequence for
	// a kind is exhausted. No further documents of that kind can be issued
	// until the year changes.
	ErrCapacityExceeded = errors.New("document number capacity exceeded")

	// ErrPersist is returned by Commit when the counter state could not be
	// written. The reservation stays outstanding and the counter unadvanced.
	ErrPersist = errors.New("failed to persist counter state")

	// ErrUnknownKind is returned for a document kind the allocator does not number.
	ErrUnknownKind = errors.New("unknown document kind")

	// ErrReservationOutstanding is returned by Reserve and Claim while the
	// kind already has an outstanding reservation. The slot frees up on
	// Commit or Abandon.
	ErrReservationOutstanding = errors.New("a reservation for this kind is already outstanding")

	// ErrReservationHeld is returned by Commit when the outstanding
	// reservation belongs to a Ticket; only the ticket can settle it.
	ErrReservationHeld = errors.New("reservation is held by a ticket")

	// ErrTicketReleased is returned by Ticket.Commit after the ticket was
	// abandoned.
	ErrTicketReleased = errors.New("ticket was abandoned")

	// ErrStoreLocked is returned when another process has the counter store
	// open.
	ErrStoreLocked = errors.New("counter store is in use by another process")

	// ErrCorruptReservation is returned by Commit when the reserved number
	// cannot be split back into year and sequence.
	ErrCorruptReservation = errors.New("reserved number is malformed")
)

// AllocationError reports a failed Reserve, Claim or Commit for a document kind.
type AllocationError struct {
	// Op is "Reserve", "Claim" or "Commit".
	Op string

	// Kind is the document kind being numbered.
	Kind models.Kind

	// Number is the candidate number involved, if one had been reserved.
	Number string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *AllocationError) Error() string {
	if e.Number != "" {
		return fmt.Sprintf("numbering: %s %s %s failed: %v", e.Op, e.Kind, e.Number, e.Err)
	}
	return fmt.Sprintf("numbering: %s %s failed: %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *AllocationError) Unwrap() error {
	return e.Err
}

// Is implements error matching.
func (e *AllocationError) Is(target error) bool {
	return errors.Is(e.Err, target)
}
