package document

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"invoicekit/internal/account"
	"invoicekit/internal/banks"
	"invoicekit/internal/numbering"
	"invoicekit/pkg/models"
)

type fakeAllocator struct {
	number     string
	reserveErr error
	commitErr  error

	reserved  int
	committed int
	abandoned int
}

func (f *fakeAllocator) Claim(kind models.Kind) (numbering.Ticket, error) {
	if f.reserveErr != nil {
		return nil, f.reserveErr
	}
	f.reserved++
	return &fakeTicket{alloc: f}, nil
}

type fakeTicket struct {
	alloc *fakeAllocator
}

func (t *fakeTicket) Number() string { return t.alloc.number }

func (t *fakeTicket) Commit() error {
	if t.alloc.commitErr != nil {
		return t.alloc.commitErr
	}
	t.alloc.committed++
	return nil
}

func (t *fakeTicket) Abandon() {
	t.alloc.abandoned++
}

type fakeExporter struct {
	err      error
	exported []*Artifact
}

func (f *fakeExporter) Export(ctx context.Context, a *Artifact) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.exported = append(f.exported, a)
	return "memory://" + a.Document.DisplayNumber(), nil
}

func testDocument(kind models.Kind) *models.Document {
	doc := models.NewDocument(kind, time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC))
	doc.Supplier = models.Party{
		Name:          "Dodavatel s.r.o.",
		NationalID:    "12345678",
		TaxID:         "CZ12345678",
		AccountNumber: "19-2000145399/0800",
	}
	doc.Customer = models.Party{Name: "Odběratel a.s.", NationalID: "87654321"}
	doc.Lines = []models.LineItem{{
		Name:      "Konzultace",
		Unit:      "h",
		Quantity:  decimal.NewFromInt(10),
		UnitPrice: decimal.NewFromInt(100),
		VatRate:   decimal.RequireFromString("0.21"),
	}}
	return doc
}

func newTestService(alloc *fakeAllocator, exp Exporter) *Service {
	svc := NewService(alloc, exp, banks.Default())
	svc.now = func() time.Time { return time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC) }
	return svc
}

func TestIssueInvoice(t *testing.T) {
	alloc := &fakeAllocator{number: "2025000007"}
	exp := &fakeExporter{}
	svc := newTestService(alloc, exp)

	doc := testDocument(models.KindInvoice)
	res, err := svc.Issue(context.Background(), doc)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	if !res.Finalized {
		t.Error("result not finalized")
	}
	if alloc.reserved != 1 || alloc.committed != 1 || alloc.abandoned != 0 {
		t.Errorf("allocator calls reserve=%d commit=%d abandon=%d", alloc.reserved, alloc.committed, alloc.abandoned)
	}
	if res.Location != "memory://FV-2025000007" {
		t.Errorf("Location = %s", res.Location)
	}
	if doc.Number != "2025000007" {
		t.Errorf("Number = %s", doc.Number)
	}
	if doc.Supplier.IBAN != "CZ6508000000192000145399" {
		t.Errorf("IBAN = %s", doc.Supplier.IBAN)
	}
	if doc.Supplier.SWIFT != "GIBACZPX" || doc.Supplier.BankName == "" {
		t.Errorf("bank details not filled: %+v", doc.Supplier)
	}
	if !res.Artifact.Totals.Payable.Equal(decimal.NewFromInt(1210)) {
		t.Errorf("Payable = %s", res.Artifact.Totals.Payable)
	}

	want := "SPD*1.0*ACC:CZ6508000000192000145399*AM:1210*CC:CZK*X-VS:2025000007*MSG:Faktura FV-2025000007"
	if res.Artifact.PaymentString != want {
		t.Errorf("payload = %s\nwant      %s", res.Artifact.PaymentString, want)
	}
	if res.Artifact.ID == "" {
		t.Error("artifact has no ID")
	}
}

func TestIssueKeepsExplicitBankDetails(t *testing.T) {
	svc := newTestService(&fakeAllocator{number: "2025000001"}, &fakeExporter{})

	doc := testDocument(models.KindInvoice)
	doc.Supplier.AccountNumber = ""
	doc.Supplier.IBAN = "cz65 0800 0000 1920 0014 5399"
	doc.Supplier.BankName = "Moje banka"

	if _, err := svc.Issue(context.Background(), doc); err != nil {
		t.Fatal(err)
	}
	if doc.Supplier.IBAN != "CZ6508000000192000145399" {
		t.Errorf("IBAN not normalized: %s", doc.Supplier.IBAN)
	}
	if doc.Supplier.BankName != "Moje banka" {
		t.Errorf("BankName overwritten: %s", doc.Supplier.BankName)
	}
	if doc.Supplier.SWIFT != "GIBACZPX" {
		t.Errorf("SWIFT = %s", doc.Supplier.SWIFT)
	}
}

func TestIssueOrderHasNoPayload(t *testing.T) {
	svc := newTestService(&fakeAllocator{number: "2025000003"}, &fakeExporter{})

	res, err := svc.Issue(context.Background(), testDocument(models.KindOrder))
	if err != nil {
		t.Fatal(err)
	}
	if res.Artifact.Payment != nil || res.Artifact.PaymentString != "" {
		t.Errorf("order carries payload %q", res.Artifact.PaymentString)
	}
	if res.Location != "memory://OBJ-2025000003" {
		t.Errorf("Location = %s", res.Location)
	}
}

func TestIssueWithoutAccountHasNoPayload(t *testing.T) {
	svc := newTestService(&fakeAllocator{number: "2025000004"}, &fakeExporter{})

	doc := testDocument(models.KindInvoice)
	doc.Supplier.AccountNumber = ""

	res, err := svc.Issue(context.Background(), doc)
	if err != nil {
		t.Fatal(err)
	}
	if res.Artifact.Payment != nil {
		t.Error("payload built without IBAN")
	}
}

func TestIssueExportFailureAbandons(t *testing.T) {
	alloc := &fakeAllocator{number: "2025000005"}
	svc := newTestService(alloc, &fakeExporter{err: errors.New("disk full")})

	res, err := svc.Issue(context.Background(), testDocument(models.KindInvoice))
	if !errors.Is(err, ErrExport) {
		t.Fatalf("error = %v, want ErrExport", err)
	}
	if res != nil {
		t.Error("result returned on export failure")
	}
	if alloc.abandoned != 1 || alloc.committed != 0 {
		t.Errorf("abandon=%d commit=%d", alloc.abandoned, alloc.committed)
	}

	var ie *IssueError
	if !errors.As(err, &ie) || ie.Number != "2025000005" || ie.Op != "Export" {
		t.Errorf("IssueError = %+v", ie)
	}
}

func TestIssueCommitFailure(t *testing.T) {
	alloc := &fakeAllocator{number: "2025000006", commitErr: numbering.ErrPersist}
	svc := newTestService(alloc, &fakeExporter{})

	res, err := svc.Issue(context.Background(), testDocument(models.KindInvoice))
	if !errors.Is(err, ErrNotFinalized) || !errors.Is(err, numbering.ErrPersist) {
		t.Fatalf("error = %v", err)
	}
	if res == nil || res.Finalized {
		t.Fatalf("result = %+v, want exported but not finalized", res)
	}
}

func TestIssueInvalidAccount(t *testing.T) {
	alloc := &fakeAllocator{number: "2025000001"}
	svc := newTestService(alloc, &fakeExporter{})

	tests := []struct {
		name  string
		party func(*models.Party)
		cause error
	}{
		{"bad account", func(p *models.Party) { p.AccountNumber = "12-34" }, account.ErrParse},
		{"bad checksum", func(p *models.Party) { p.IBAN = "CZ6608000000192000145399" }, account.ErrChecksum},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := testDocument(models.KindInvoice)
			tt.party(&doc.Supplier)

			_, err := svc.Issue(context.Background(), doc)
			if !errors.Is(err, ErrAccount) || !errors.Is(err, tt.cause) {
				t.Errorf("error = %v", err)
			}
		})
	}
	if alloc.reserved != 0 {
		t.Errorf("number reserved for invalid account")
	}
}

func TestIssueReserveFailure(t *testing.T) {
	alloc := &fakeAllocator{reserveErr: numbering.ErrCapacityExceeded}
	exp := &fakeExporter{}
	svc := newTestService(alloc, exp)

	_, err := svc.Issue(context.Background(), testDocument(models.KindInvoice))
	if !errors.Is(err, numbering.ErrCapacityExceeded) {
		t.Fatalf("error = %v", err)
	}
	if len(exp.exported) != 0 {
		t.Error("exported without a number")
	}
}

func TestIssueRejectsInvalidDocument(t *testing.T) {
	svc := newTestService(&fakeAllocator{number: "2025000001"}, &fakeExporter{})

	if _, err := svc.Issue(context.Background(), nil); !errors.Is(err, ErrInvalidDocument) {
		t.Errorf("nil document: %v", err)
	}

	doc := testDocument(models.Kind("receipt"))
	if _, err := svc.Issue(context.Background(), doc); !errors.Is(err, ErrInvalidDocument) {
		t.Errorf("unknown kind: %v", err)
	}
}

func TestIssueWithSequencer(t *testing.T) {
	dir := t.TempDir()
	seq := newFileSequencer(t, filepath.Join(dir, "counters.json"))

	failing := &fakeExporter{err: errors.New("printer on fire")}
	if _, err := NewService(seq, failing, nil).Issue(context.Background(), testDocument(models.KindInvoice)); err == nil {
		t.Fatal("expected export failure")
	}

	svc := NewService(seq, NewJSONExporter(filepath.Join(dir, "out")), nil)
	res, err := svc.Issue(context.Background(), testDocument(models.KindInvoice))
	if err != nil {
		t.Fatal(err)
	}
	if res.Artifact.Document.Number != "2025000001" {
		t.Errorf("Number = %s, failed export must not burn a number", res.Artifact.Document.Number)
	}
	if got := seq.Snapshot().Next("2025", models.KindInvoice); got != 2 {
		t.Errorf("next = %d, want 2", got)
	}
}

func newFileSequencer(t *testing.T, path string) *numbering.Sequencer {
	t.Helper()
	store, err := numbering.OpenFileStore(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return numbering.NewSequencer(store, numbering.WithClock(func() time.Time {
		return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	}))
}

// gatedExporter blocks every Export until release is closed and fails the
// calls whose index is listed in fail.
type gatedExporter struct {
	entered chan string
	release chan struct{}
	fail    map[int]bool

	mu       sync.Mutex
	calls    int
	exported []string
}

func (g *gatedExporter) Export(ctx context.Context, a *Artifact) (string, error) {
	number := a.Document.Number
	g.entered <- number
	<-g.release

	g.mu.Lock()
	defer g.mu.Unlock()
	call := g.calls
	g.calls++
	if g.fail[call] {
		return "", errors.New("export rejected")
	}
	g.exported = append(g.exported, number)
	return "memory://" + number, nil
}

func TestConcurrentIssueGetsDistinctNumbers(t *testing.T) {
	tests := []struct {
		name   string
		fail   map[int]bool
		issued []string
	}{
		{
			name:   "all exports succeed",
			issued: []string{"2025000001", "2025000002", "2025000003", "2025000004"},
		},
		{
			name:   "first export fails",
			fail:   map[int]bool{0: true},
			issued: []string{"2025000001", "2025000002", "2025000003"},
		},
		{
			name:   "alternate exports fail",
			fail:   map[int]bool{0: true, 2: true},
			issued: []string{"2025000001", "2025000002"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seq := newFileSequencer(t, filepath.Join(t.TempDir(), "counters.json"))
			exp := &gatedExporter{
				entered: make(chan string),
				release: make(chan struct{}),
				fail:    tt.fail,
			}
			svc := NewService(seq, exp, nil)

			const callers = 4
			var wg sync.WaitGroup
			results := make([]*Result, callers)
			errs := make([]error, callers)
			for i := 0; i < callers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					results[i], errs[i] = svc.Issue(context.Background(), testDocument(models.KindInvoice))
				}()
			}

			// only one caller may be exporting at a time
			for i := 0; i < callers; i++ {
				<-exp.entered
				select {
				case n := <-exp.entered:
					t.Fatalf("second export of %s started while another was in flight", n)
				case <-time.After(20 * time.Millisecond):
				}
				exp.release <- struct{}{}
			}
			wg.Wait()

			seen := map[string]bool{}
			for i, res := range results {
				if errs[i] != nil {
					if !errors.Is(errs[i], ErrExport) {
						t.Errorf("caller %d: %v", i, errs[i])
					}
					continue
				}
				n := res.Artifact.Document.Number
				if !res.Finalized {
					t.Errorf("%s not finalized", n)
				}
				if seen[n] {
					t.Errorf("two finalized documents share number %s", n)
				}
				seen[n] = true
			}
			if len(seen) != len(tt.issued) {
				t.Errorf("finalized %d documents, want %d", len(seen), len(tt.issued))
			}
			for _, n := range tt.issued {
				if !seen[n] {
					t.Errorf("number %s not issued; got %v", n, exp.exported)
				}
			}
			if got := seq.Snapshot().Next("2025", models.KindInvoice); got != len(tt.issued)+1 {
				t.Errorf("next = %d, want %d", got, len(tt.issued)+1)
			}
		})
	}
}

type flakyStore struct {
	numbering.CounterStore
	failSaves int
}

func (f *flakyStore) Save(st numbering.State) error {
	if f.failSaves > 0 {
		f.failSaves--
		return errors.New("disk full")
	}
	return f.CounterStore.Save(st)
}

func TestIssueRetriesPendingCommit(t *testing.T) {
	inner, err := numbering.OpenFileStore(filepath.Join(t.TempDir(), "counters.json"))
	if err != nil {
		t.Fatal(err)
	}
	defer inner.Close()
	seq := numbering.NewSequencer(&flakyStore{CounterStore: inner, failSaves: 2}, numbering.WithClock(func() time.Time {
		return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	}))
	exp := &fakeExporter{}
	svc := NewService(seq, exp, nil)

	first, err := svc.Issue(context.Background(), testDocument(models.KindInvoice))
	if !errors.Is(err, ErrNotFinalized) || first == nil || first.Finalized {
		t.Fatalf("first Issue = %+v, %v, want exported but not finalized", first, err)
	}

	// the retried commit fails again, nothing new is numbered
	if _, err := svc.Issue(context.Background(), testDocument(models.KindInvoice)); !errors.Is(err, ErrNotFinalized) {
		t.Fatalf("second Issue = %v, want ErrNotFinalized", err)
	}
	if len(exp.exported) != 1 {
		t.Fatalf("exported %d documents while a commit was pending", len(exp.exported))
	}

	third, err := svc.Issue(context.Background(), testDocument(models.KindInvoice))
	if err != nil {
		t.Fatal(err)
	}
	if got := third.Artifact.Document.Number; got != "2025000002" {
		t.Errorf("number after pending commit = %s, want 2025000002", got)
	}
	if first.Artifact.Document.Number != "2025000001" {
		t.Errorf("first number = %s", first.Artifact.Document.Number)
	}
}

func TestIssueWhileNumberReservedElsewhere(t *testing.T) {
	seq := newFileSequencer(t, filepath.Join(t.TempDir(), "counters.json"))
	held, err := seq.Reserve(models.KindInvoice)
	if err != nil {
		t.Fatal(err)
	}

	exp := &fakeExporter{}
	svc := NewService(seq, exp, nil)
	if _, err := svc.Issue(context.Background(), testDocument(models.KindInvoice)); !errors.Is(err, numbering.ErrReservationOutstanding) {
		t.Fatalf("Issue = %v, want ErrReservationOutstanding", err)
	}
	if len(exp.exported) != 0 {
		t.Fatal("exported with an outstanding reservation")
	}

	res, err := svc.Issue(context.Background(), testDocument(models.KindOrder))
	if err != nil {
		t.Fatalf("order blocked by invoice reservation: %v", err)
	}
	if res.Artifact.Document.Number != held {
		t.Errorf("order number = %s, want %s", res.Artifact.Document.Number, held)
	}
}

func TestIssueCanceledWhileWaiting(t *testing.T) {
	seq := newFileSequencer(t, filepath.Join(t.TempDir(), "counters.json"))
	exp := &gatedExporter{entered: make(chan string), release: make(chan struct{})}
	svc := NewService(seq, exp, nil)

	done := make(chan error, 1)
	go func() {
		_, err := svc.Issue(context.Background(), testDocument(models.KindInvoice))
		done <- err
	}()
	<-exp.entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := svc.Issue(ctx, testDocument(models.KindInvoice)); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("waiting Issue = %v, want deadline exceeded", err)
	}

	exp.release <- struct{}{}
	if err := <-done; err != nil {
		t.Fatal(err)
	}
}

func TestJSONExporter(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	exp := NewJSONExporter(dir)

	doc := testDocument(models.KindInvoice)
	doc.Number = "2025000009"
	a := &Artifact{ID: "a1", Document: doc}

	path, err := exp.Export(context.Background(), a)
	if err != nil {
		t.Fatal(err)
	}
	if path != filepath.Join(dir, "FV-2025000009.json") {
		t.Errorf("path = %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var back Artifact
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if back.ID != "a1" || back.Document.Number != "2025000009" {
		t.Errorf("decoded artifact = %+v", back)
	}
}

func TestJSONExporterRequiresNumber(t *testing.T) {
	exp := NewJSONExporter(t.TempDir())
	if _, err := exp.Export(context.Background(), &Artifact{ID: "x", Document: testDocument(models.KindInvoice)}); err == nil {
		t.Error("expected error for unnumbered document")
	}
}

func TestJSONExporterCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	doc := testDocument(models.KindInvoice)
	doc.Number = "2025000001"
	if _, err := NewJSONExporter(t.TempDir()).Export(ctx, &Artifact{Document: doc}); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v", err)
	}
}
