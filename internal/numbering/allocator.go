// Package numbering issues gap-free, year-scoped document numbers per
// document kind.
//
// Numbers are handed out in two phases. Reserve returns the candidate for the
// next document without advancing anything; Commit advances and persists the
// counter once the caller has successfully exported the document; Abandon
// drops the candidate after a failed export. A failed export therefore never
// burns a number, and a committed number is never issued again.
//
// Each kind has a single reservation slot. Callers that must not lose their
// slot to another caller's Commit or Abandon use Claim, which returns a
// Ticket settled only by its holder.
//
// A candidate number is the 4-digit year followed by the sequence padded to
// six digits, e.g. "2025000001". Callers prefix it with a kind tag.
package numbering

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"invoicekit/internal/logger"
	"invoicekit/pkg/models"
)

const (
	// MaxSequence is the highest sequence that fits the 6-digit field.
	MaxSequence = 999999

	yearWidth     = 4
	sequenceWidth = 6
)

// Allocator is the reserve/commit/abandon protocol callers depend on.
type Allocator interface {
	Reserve(kind models.Kind) (string, error)
	Commit(kind models.Kind) (string, error)
	Abandon(kind models.Kind)
}

// Claimer hands out reservations owned by the caller.
type Claimer interface {
	Claim(kind models.Kind) (Ticket, error)
}

// Ticket is an outstanding reservation that only its holder can settle.
type Ticket interface {
	Number() string
	Commit() error
	Abandon()
}

// Sequencer is the Allocator backed by a CounterStore. One mutex serializes
// all operations, including the Save done by Commit.
type Sequencer struct {
	mu       sync.Mutex
	store    CounterStore
	state    State
	reserved map[models.Kind]slot
	tickets  uint64
	now      func() time.Time
	log      zerolog.Logger
}

// slot is the outstanding reservation of one kind. owner is zero for
// reservations made through Reserve.
type slot struct {
	number string
	owner  uint64
}

// Option configures a Sequencer.
type Option func(*Sequencer)

// WithClock overrides the clock used to pick the current year.
func WithClock(now func() time.Time) Option {
	return func(s *Sequencer) { s.now = now }
}

// WithLogger overrides the component logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Sequencer) { s.log = l }
}

var (
	_ Allocator = (*Sequencer)(nil)
	_ Claimer   = (*Sequencer)(nil)
)

// NewSequencer loads the counter state from store. If the state cannot be
// loaded the sequencer starts from an empty state and logs a warning; the
// first Commit will overwrite the unreadable store.
func NewSequencer(store CounterStore, opts ...Option) *Sequencer {
	s := &Sequencer{
		store:    store,
		reserved: make(map[models.Kind]slot, len(models.Kinds)),
		now:      time.Now,
		log:      logger.WithComponent("numbering"),
	}
	for _, opt := range opts {
		opt(s)
	}

	state, err := store.Load()
	if err != nil {
		s.log.Warn().
			Err(err).
			Msg("Counter state unreadable, starting from fresh state")
		state = State{}
	}
	if state == nil {
		state = State{}
	}
	s.state = state

	s.log.Debug().
		Int("years", len(state)).
		Msg("Counter state loaded")

	return s
}

// Reserve returns the candidate number for the next document of kind in the
// current year. The counter is not advanced. While a reservation for kind is
// outstanding, Reserve fails with ErrReservationOutstanding.
func (s *Sequencer) Reserve(kind models.Kind) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.reserve("Reserve", kind, 0)
}

// Claim reserves like Reserve and returns the reservation as a Ticket.
// Commit and Abandon on the Sequencer cannot settle a ticket's reservation.
func (s *Sequencer) Claim(kind models.Kind) (Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tickets++
	id := s.tickets
	number, err := s.reserve("Claim", kind, id)
	if err != nil {
		return nil, err
	}
	return &ticket{seq: s, kind: kind, number: number, id: id}, nil
}

func (s *Sequencer) reserve(op string, kind models.Kind, owner uint64) (string, error) {
	if !kind.Valid() {
		return "", &AllocationError{Op: op, Kind: kind, Err: ErrUnknownKind}
	}
	if held, ok := s.reserved[kind]; ok {
		return "", &AllocationError{Op: op, Kind: kind, Number: held.number, Err: ErrReservationOutstanding}
	}

	year := fmt.Sprintf("%0*d", yearWidth, s.now().Year())
	s.state.ensure(year)
	next := s.state.Next(year, kind)
	if next > MaxSequence {
		s.log.Error().
			Str("kind", string(kind)).
			Str("year", year).
			Int("next", next).
			Msg("Document number capacity exhausted")
		return "", &AllocationError{Op: op, Kind: kind, Err: fmt.Errorf("%w: %s %s would need sequence %d", ErrCapacityExceeded, year, kind, next)}
	}

	number := formatNumber(year, next)
	s.reserved[kind] = slot{number: number, owner: owner}

	s.log.Debug().
		Str("kind", string(kind)).
		Str("number", number).
		Bool("ticket", owner != 0).
		Msg("Document number reserved")

	return number, nil
}

// Commit advances the counter past the outstanding reservation for kind,
// persists the whole state and returns the committed number. Without an
// outstanding reservation it returns "" and does nothing. If persisting
// fails, the in-memory counter is restored and the reservation is kept, so
// the caller may retry Commit or Abandon.
func (s *Sequencer) Commit(kind models.Kind) (string, error) {
	const op = "Commit"

	s.mu.Lock()
	defer s.mu.Unlock()

	held, ok := s.reserved[kind]
	if !ok {
		return "", nil
	}
	if held.owner != 0 {
		return "", &AllocationError{Op: op, Kind: kind, Number: held.number, Err: ErrReservationHeld}
	}
	if err := s.commit(op, kind, held.number); err != nil {
		return "", err
	}
	return held.number, nil
}

// commit must be called with s.mu held.
func (s *Sequencer) commit(op string, kind models.Kind, number string) error {
	year, seq, err := parseNumber(number)
	if err != nil {
		return &AllocationError{Op: op, Kind: kind, Number: number, Err: err}
	}

	prev, hadPrev := s.state[year][kind]
	next := s.state.Next(year, kind)
	if seq+1 > next {
		next = seq + 1
	}
	s.state.set(year, kind, next)

	if err := s.store.Save(s.state.Clone()); err != nil {
		if hadPrev {
			s.state.set(year, kind, prev)
		} else {
			delete(s.state[year], kind)
		}
		s.log.Error().
			Err(err).
			Str("kind", string(kind)).
			Str("number", number).
			Msg("Failed to persist counter state, reservation left outstanding")
		return &AllocationError{Op: op, Kind: kind, Number: number, Err: fmt.Errorf("%w: %w", ErrPersist, err)}
	}

	delete(s.reserved, kind)

	s.log.Info().
		Str("kind", string(kind)).
		Str("number", number).
		Int("next", next).
		Msg("Document number committed")

	return nil
}

// Abandon drops the outstanding reservation for kind. Persisted state is not
// touched. A reservation held by a Ticket is left alone.
func (s *Sequencer) Abandon(kind models.Kind) {
	s.mu.Lock()
	defer s.mu.Unlock()

	held, ok := s.reserved[kind]
	if !ok {
		return
	}
	if held.owner != 0 {
		s.log.Warn().
			Str("kind", string(kind)).
			Str("number", held.number).
			Msg("Abandon ignored, reservation is held by a ticket")
		return
	}
	s.release(kind, held.number)
}

func (s *Sequencer) release(kind models.Kind, number string) {
	delete(s.reserved, kind)
	s.log.Debug().
		Str("kind", string(kind)).
		Str("number", number).
		Msg("Document number reservation abandoned")
}

// Reservation returns the outstanding reservation for kind, if any.
func (s *Sequencer) Reservation(kind models.Kind) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	held, ok := s.reserved[kind]
	return held.number, ok
}

// Snapshot returns a copy of the in-memory counter state.
func (s *Sequencer) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state.Clone()
}

type ticket struct {
	seq       *Sequencer
	kind      models.Kind
	number    string
	id        uint64
	committed bool
	abandoned bool
}

func (t *ticket) Number() string {
	return t.number
}

// Commit commits the ticket's reservation. Committing again is a no-op; a
// failed Commit leaves the ticket outstanding and may be retried.
func (t *ticket) Commit() error {
	s := t.seq
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.committed {
		return nil
	}
	if t.abandoned {
		return &AllocationError{Op: "Commit", Kind: t.kind, Number: t.number, Err: ErrTicketReleased}
	}
	if err := s.commit("Commit", t.kind, t.number); err != nil {
		return err
	}
	t.committed = true
	return nil
}

// Abandon releases the ticket's reservation unless it was committed.
func (t *ticket) Abandon() {
	s := t.seq
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.committed || t.abandoned {
		return
	}
	t.abandoned = true
	if held, ok := s.reserved[t.kind]; ok && held.owner == t.id {
		s.release(t.kind, t.number)
	}
}

func formatNumber(year string, seq int) string {
	return year + fmt.Sprintf("%0*d", sequenceWidth, seq)
}

// parseNumber splits a candidate number back into year and sequence.
func parseNumber(number string) (string, int, error) {
	if len(number) != yearWidth+sequenceWidth {
		return "", 0, fmt.Errorf("%w: %q", ErrCorruptReservation, number)
	}
	year := number[:yearWidth]
	if !yearPattern.MatchString(year) {
		return "", 0, fmt.Errorf("%w: %q", ErrCorruptReservation, number)
	}
	seq, err := strconv.Atoi(number[yearWidth:])
	if err != nil || seq < 1 {
		return "", 0, fmt.Errorf("%w: %q", ErrCorruptReservation, number)
	}
	return year, seq, nil
}
