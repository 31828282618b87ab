package numbering

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	bolt "go.etcd.io/bbolt"

	"invoicekit/pkg/models"
)

// openFileStore opens the store at path and closes it when the test ends.
func openFileStore(t *testing.T, path string) *FileStore {
	t.Helper()
	store, err := OpenFileStore(path)
	if err != nil {
		t.Fatalf("OpenFileStore(%s): %v", path, err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestFileStoreSurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "counters.json")

	firstStore := openFileStore(t, path)
	first := newTestSequencer(firstStore, 2025)
	for i := 0; i < 3; i++ {
		mustReserve(t, first, models.KindInvoice)
		if _, err := first.Commit(models.KindInvoice); err != nil {
			t.Fatal(err)
		}
	}
	mustReserve(t, first, models.KindOrder) // never committed
	if err := firstStore.Close(); err != nil {
		t.Fatal(err)
	}

	restarted := newTestSequencer(openFileStore(t, path), 2025)
	if got := mustReserve(t, restarted, models.KindInvoice); got != "2025000004" {
		t.Errorf("invoice after restart = %s, want 2025000004", got)
	}
	if got := mustReserve(t, restarted, models.KindOrder); got != "2025000001" {
		t.Errorf("order after restart = %s, want 2025000001", got)
	}
}

func TestFileStoreMissingFile(t *testing.T) {
	state, err := openFileStore(t, filepath.Join(t.TempDir(), "none.json")).Load()
	if err != nil {
		t.Fatalf("Load of missing file: %v", err)
	}
	if len(state) != 0 {
		t.Errorf("state = %v, want empty", state)
	}
}

func TestFileStoreIgnoresUnknownEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counters.json")
	data := `{
  "2024": {"invoice": 17, "order": 3, "credit_note": 9},
  "2025": "not an object",
  "future": {"invoice": 1},
  "2026": {"invoice": -4, "order": "x"}
}`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	state, err := openFileStore(t, path).Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(state) != 1 {
		t.Fatalf("state = %v, want only 2024", state)
	}
	if state.Next("2024", models.KindInvoice) != 17 || state.Next("2024", models.KindOrder) != 3 {
		t.Errorf("2024 counters = %v", state["2024"])
	}
	if _, ok := state["2024"]["credit_note"]; ok {
		t.Error("unknown kind kept")
	}
}

func TestFileStoreKeepsUnknownEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counters.json")
	data := `{
  "2025": {"invoice": 4, "credit_note": 9, "order": "x"},
  "2024": "not an object",
  "future": {"invoice": 1}
}`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	store := openFileStore(t, path)
	s := newTestSequencer(store, 2025)
	if got := mustReserve(t, s, models.KindInvoice); got != "2025000004" {
		t.Fatalf("got %s", got)
	}
	if _, err := s.Commit(models.KindInvoice); err != nil {
		t.Fatal(err)
	}

	written, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]any
	if err := json.Unmarshal(written, &got); err != nil {
		t.Fatalf("rewritten file is not JSON: %v\n%s", err, written)
	}

	current, ok := got["2025"].(map[string]any)
	if !ok {
		t.Fatalf("2025 = %#v", got["2025"])
	}
	tests := []struct {
		name string
		got  any
		want any
	}{
		{name: "advanced invoice", got: current["invoice"], want: 5.0},
		{name: "order written by this build", got: current["order"], want: 1.0},
		{name: "unknown kind", got: current["credit_note"], want: 9.0},
		{name: "non-object year", got: got["2024"], want: "not an object"},
		{name: "non-numeric year", got: got["future"], want: map[string]any{"invoice": 1.0}},
	}
	for _, tt := range tests {
		if !reflect.DeepEqual(tt.got, tt.want) {
			t.Errorf("%s = %#v, want %#v", tt.name, tt.got, tt.want)
		}
	}
}

func TestFileStoreLockedByOtherOwner(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counters.json")

	first := openFileStore(t, path)
	if _, err := OpenFileStore(path); !errors.Is(err, ErrStoreLocked) {
		t.Fatalf("second open = %v, want ErrStoreLocked", err)
	}
	if _, err := OpenStore("file", path); !errors.Is(err, ErrStoreLocked) {
		t.Errorf("OpenStore while locked = %v, want ErrStoreLocked", err)
	}

	if err := first.Close(); err != nil {
		t.Fatal(err)
	}
	if err := first.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	openFileStore(t, path)
}

func TestCorruptFileStartsFresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counters.json")
	if err := os.WriteFile(path, []byte("{truncated"), 0o644); err != nil {
		t.Fatal(err)
	}

	store := openFileStore(t, path)
	if _, err := store.Load(); err == nil {
		t.Fatal("expected decode error")
	}

	s := newTestSequencer(store, 2025)
	if got := mustReserve(t, s, models.KindInvoice); got != "2025000001" {
		t.Errorf("got %s", got)
	}
	if _, err := s.Commit(models.KindInvoice); err != nil {
		t.Fatalf("Commit over corrupt file: %v", err)
	}
	state, err := store.Load()
	if err != nil {
		t.Fatalf("file still unreadable after commit: %v", err)
	}
	if state.Next("2025", models.KindInvoice) != 2 {
		t.Errorf("persisted = %v", state)
	}
}

func TestFileStoreSaveFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counters.json")
	// a non-empty directory where the file should be, so the rename fails
	if err := os.MkdirAll(filepath.Join(path, "occupied"), 0o755); err != nil {
		t.Fatal(err)
	}
	store := openFileStore(t, path)
	if err := store.Save(State{"2025": {models.KindInvoice: 2}}); err == nil {
		t.Fatal("expected save error")
	}
}

func TestBoltStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counters.db")

	store, err := OpenBoltStore(path)
	if err != nil {
		t.Fatal(err)
	}
	s := newTestSequencer(store, 2025)
	mustReserve(t, s, models.KindOrder)
	if _, err := s.Commit(models.KindOrder); err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := OpenBoltStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	if _, err := OpenBoltStore(path); !errors.Is(err, ErrStoreLocked) {
		t.Errorf("second bolt open = %v, want ErrStoreLocked", err)
	}

	s2 := newTestSequencer(reopened, 2025)
	if got := mustReserve(t, s2, models.KindOrder); got != "2025000002" {
		t.Errorf("order after reopen = %s, want 2025000002", got)
	}
	if got := mustReserve(t, s2, models.KindInvoice); got != "2025000001" {
		t.Errorf("invoice after reopen = %s, want 2025000001", got)
	}
}

func TestBoltStoreKeepsUnknownEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "counters.db")

	store, err := OpenBoltStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	seed := map[string]string{
		"2025":   `{"invoice": 3, "credit_note": 7}`,
		"future": `{"invoice": 1}`,
	}
	err = store.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(BucketCounters))
		for k, v := range seed {
			if err := b.Put([]byte(k), []byte(v)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	s := newTestSequencer(store, 2025)
	if got := mustReserve(t, s, models.KindInvoice); got != "2025000003" {
		t.Fatalf("got %s", got)
	}
	if _, err := s.Commit(models.KindInvoice); err != nil {
		t.Fatal(err)
	}

	var current map[string]int
	var future []byte
	err = store.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(BucketCounters))
		future = append(future, b.Get([]byte("future"))...)
		return json.Unmarshal(b.Get([]byte("2025")), &current)
	})
	if err != nil {
		t.Fatal(err)
	}
	if current["invoice"] != 4 || current["credit_note"] != 7 {
		t.Errorf("2025 = %v, want invoice 4 and credit_note 7", current)
	}
	if string(future) != seed["future"] {
		t.Errorf("future = %s, want %s", future, seed["future"])
	}
}

func TestOpenStore(t *testing.T) {
	dir := t.TempDir()

	fs, err := OpenStore("file", filepath.Join(dir, "c.json"))
	if err != nil {
		t.Fatal(err)
	}
	defer fs.Close()
	if _, ok := fs.(*FileStore); !ok {
		t.Errorf("file backend returned %T", fs)
	}

	bs, err := OpenStore("bolt", filepath.Join(dir, "c.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer bs.Close()
	if _, ok := bs.(*BoltStore); !ok {
		t.Errorf("bolt backend returned %T", bs)
	}

	if _, err := OpenStore("etcd", "x"); err == nil {
		t.Error("unknown backend accepted")
	}
}
