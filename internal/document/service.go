// Package document issues invoices and orders: it computes totals, resolves
// the supplier's IBAN, allocates the document number and builds the payment
// payload, then exports the finished artifact and finalizes the number.
//
// The number is committed only after a successful export. A failed export
// abandons the reservation so the next document reuses the same number.
// Documents of one kind are issued one at a time; concurrent Issue calls for
// the same kind wait their turn.
package document

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"invoicekit/internal/account"
	"invoicekit/internal/banks"
	"invoicekit/internal/logger"
	"invoicekit/internal/numbering"
	"invoicekit/internal/payment"
	"invoicekit/internal/totals"
	"invoicekit/pkg/models"
)

// Result describes an issued document.
type Result struct {
	Artifact *Artifact `json:"artifact"`

	// Location is where the exporter wrote the artifact.
	Location string `json:"location"`

	// Finalized is true once the number has been committed.
	Finalized bool `json:"finalized"`
}

// Service runs the issuance workflow.
type Service struct {
	claimer  numbering.Claimer
	exporter Exporter
	banks    *banks.Table
	lanes    map[models.Kind]*lane
	now      func() time.Time
	log      zerolog.Logger
}

// lane serializes issuance of one kind. pending is an exported document
// whose commit failed; it is only touched while sem is held.
type lane struct {
	sem     chan struct{}
	pending numbering.Ticket
}

func (l *lane) acquire(ctx context.Context) error {
	select {
	case l.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *lane) release() {
	<-l.sem
}

// NewService wires a Service. A nil bank table disables bank name and SWIFT
// lookup.
func NewService(claimer numbering.Claimer, exporter Exporter, table *banks.Table) *Service {
	lanes := make(map[models.Kind]*lane, len(models.Kinds))
	for _, k := range models.Kinds {
		lanes[k] = &lane{sem: make(chan struct{}, 1)}
	}
	return &Service{
		claimer:  claimer,
		exporter: exporter,
		banks:    table,
		lanes:    lanes,
		now:      time.Now,
		log:      logger.WithComponent("document"),
	}
}

// Issue numbers and exports doc. The document is modified in place: its
// number, supplier IBAN and bank details are filled in.
//
// On an export failure the returned error matches ErrExport and the number
// is released. On a commit failure the result is returned together with an
// error matching ErrNotFinalized; the number stays reserved and the commit
// is retried before the next document of the same kind is numbered.
func (s *Service) Issue(ctx context.Context, doc *models.Document) (*Result, error) {
	if doc == nil {
		return nil, wrap("Validate", "", ErrInvalidDocument, errors.New("no document"))
	}
	if !doc.Kind.Valid() {
		return nil, wrap("Validate", "", ErrInvalidDocument, numbering.ErrUnknownKind)
	}
	if err := ctx.Err(); err != nil {
		return nil, &IssueError{Op: "Issue", Err: err}
	}

	log := s.log.With().Str("kind", string(doc.Kind)).Logger()

	t := totals.Compute(doc.Lines, doc.Supplier.IsVatPayer())
	if err := t.Check(); err != nil {
		return nil, wrap("ComputeTotals", "", ErrInvalidDocument, err)
	}

	if err := s.resolveSupplierAccount(&doc.Supplier); err != nil {
		return nil, err
	}

	l := s.lanes[doc.Kind]
	if err := l.acquire(ctx); err != nil {
		return nil, &IssueError{Op: "Issue", Err: err}
	}
	defer l.release()

	if err := s.settlePending(l); err != nil {
		return nil, err
	}

	tk, err := s.claimer.Claim(doc.Kind)
	if err != nil {
		return nil, &IssueError{Op: "Reserve", Err: err}
	}
	number := tk.Number()
	doc.Number = number
	log = log.With().Str("number", doc.DisplayNumber()).Logger()

	artifact := &Artifact{
		ID:       uuid.NewString(),
		IssuedAt: s.now(),
		Document: doc,
		Totals:   t,
	}

	payload, err := s.buildPayload(doc, t)
	if err != nil {
		tk.Abandon()
		return nil, &IssueError{Op: "BuildPayload", Number: number, Err: err}
	}
	if payload != nil {
		artifact.Payment = payload
		artifact.PaymentString = payload.String()
	}

	location, err := s.exporter.Export(ctx, artifact)
	if err != nil {
		tk.Abandon()
		log.Error().
			Err(err).
			Msg("Export failed, number released")
		return nil, wrap("Export", number, ErrExport, err)
	}

	result := &Result{Artifact: artifact, Location: location}

	if err := tk.Commit(); err != nil {
		l.pending = tk
		log.Error().
			Err(err).
			Str("location", location).
			Msg("Document exported but number not committed")
		return result, wrap("Commit", number, ErrNotFinalized, err)
	}
	result.Finalized = true

	log.Info().
		Str("artifact_id", artifact.ID).
		Str("location", location).
		Str("payable", t.Payable.String()).
		Msg("Document issued")

	return result, nil
}

// settlePending retries the commit of an earlier exported document. The
// caller must hold the lane.
func (s *Service) settlePending(l *lane) error {
	if l.pending == nil {
		return nil
	}
	number := l.pending.Number()
	if err := l.pending.Commit(); err != nil {
		return wrap("Commit", number, ErrNotFinalized, err)
	}
	l.pending = nil
	s.log.Info().
		Str("number", number).
		Msg("Pending document number committed")
	return nil
}

// resolveSupplierAccount validates an explicit IBAN or derives one from the
// domestic account number, then fills bank details from the table.
func (s *Service) resolveSupplierAccount(p *models.Party) error {
	const op = "ResolveAccount"

	bankCode := ""
	switch {
	case strings.TrimSpace(p.IBAN) != "":
		iban := account.NormalizeIban(p.IBAN)
		if err := account.CheckIban(iban); err != nil {
			return wrap(op, "", ErrAccount, err)
		}
		p.IBAN = iban
		bankCode = account.BankCodeFromIban(iban)
	case strings.TrimSpace(p.AccountNumber) != "":
		acc, err := account.ParseAccount(p.AccountNumber)
		if err != nil {
			return wrap(op, "", ErrAccount, err)
		}
		iban, err := account.DeriveIban(p.AccountNumber)
		if err != nil {
			return wrap(op, "", ErrAccount, err)
		}
		p.IBAN = iban
		bankCode = acc.BankCode
	default:
		return nil
	}

	if bank, ok := s.banks.Lookup(bankCode); ok {
		if p.BankName == "" {
			p.BankName = bank.Name
		}
		if p.SWIFT == "" {
			p.SWIFT = bank.Swift
		}
	}
	return nil
}

// buildPayload returns nil for orders, for documents with nothing to pay and
// when the supplier has no IBAN.
func (s *Service) buildPayload(doc *models.Document, t totals.Totals) (*payment.Payload, error) {
	if doc.Kind != models.KindInvoice || !t.Payable.IsPositive() || doc.Supplier.IBAN == "" {
		return nil, nil
	}
	return payment.Build(payment.Request{
		IBAN:           doc.Supplier.IBAN,
		Amount:         t.Payable,
		Currency:       doc.CurrencyOrDefault(),
		VariableSymbol: doc.EffectiveVariableSymbol(),
		ConstantSymbol: doc.ConstantSymbol,
		Message:        doc.Kind.Label() + " " + doc.DisplayNumber(),
	})
}
