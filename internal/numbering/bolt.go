package numbering

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
	berrors "go.etcd.io/bbolt/errors"
)

// BucketCounters holds one key per year; the value is the JSON encoding of
// that year's Counters.
const BucketCounters = "counters"

// BoltStore keeps the counter state in a bbolt database.
type BoltStore struct {
	db *bolt.DB
}

// OpenBoltStore opens (or creates) the database at path. bbolt keeps the file
// locked while open; if another process holds it, OpenBoltStore fails with
// ErrStoreLocked.
func OpenBoltStore(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		if errors.Is(err, berrors.ErrTimeout) {
			return nil, fmt.Errorf("%w: %s", ErrStoreLocked, path)
		}
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(BucketCounters)); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", BucketCounters, err)
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Load() (State, error) {
	state := State{}
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(BucketCounters))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			year := string(k)
			if !yearPattern.MatchString(year) {
				return nil
			}
			if c, _, ok := decodeCounters(v); ok && len(c) > 0 {
				state[year] = c
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read counters: %w", err)
	}
	return state, nil
}

// Save writes every year of state in a single transaction. Years present in
// the database but absent from state are left untouched, and members of a
// stored year that Load skipped are kept.
func (s *BoltStore) Save(state State) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(BucketCounters))
		if b == nil {
			return fmt.Errorf("bucket %s not found", BucketCounters)
		}
		for year, c := range state {
			_, extra, _ := decodeCounters(b.Get([]byte(year)))
			data, err := encodeCounters(c, extra)
			if err != nil {
				return fmt.Errorf("failed to marshal counters for %s: %w", year, err)
			}
			if err := b.Put([]byte(year), data); err != nil {
				return fmt.Errorf("failed to store counters for %s: %w", year, err)
			}
		}
		return nil
	})
}

// Close closes the database.
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// OpenStore returns the counter store for backend ("file" or "bolt").
func OpenStore(backend, path string) (CounterStore, error) {
	var (
		store CounterStore
		err   error
	)
	switch backend {
	case "", "file":
		store, err = OpenFileStore(path)
	case "bolt":
		store, err = OpenBoltStore(path)
	default:
		return nil, fmt.Errorf("unknown counter backend %q", backend)
	}
	if err != nil {
		return nil, err
	}
	return store, nil
}
