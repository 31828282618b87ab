package numbering

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// CounterStore is the durable boundary of the allocator. Load is called once
// at startup and Save after every successful Commit.
type CounterStore interface {
	// Load returns the persisted state. A store that does not exist yet
	// returns an empty state and no error.
	Load() (State, error)

	// Save durably replaces the persisted state.
	Save(State) error

	Close() error
}

// FileStore keeps the counter state in a JSON file:
//
//	{"2025": {"invoice": 4, "order": 1}}
//
// An open FileStore holds an exclusive lock on "<path>.lock" until Close, so
// two processes never allocate from the same file.
type FileStore struct {
	path string
	lock *os.File

	mu      sync.Mutex
	unknown unknownEntries
}

// OpenFileStore locks the JSON file at path for this process. The file is
// created on first Save. If another process has the store open,
// OpenFileStore fails with ErrStoreLocked.
func OpenFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	lock, err := os.OpenFile(path+".lock", os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}
	if err := lockFile(lock); err != nil {
		_ = lock.Close()
		if errors.Is(err, ErrStoreLocked) {
			return nil, fmt.Errorf("%w: %s", ErrStoreLocked, path)
		}
		return nil, fmt.Errorf("failed to lock counter file: %w", err)
	}

	return &FileStore{path: path, lock: lock}, nil
}

// Path returns the backing file path.
func (f *FileStore) Path() string {
	return f.path
}

func (f *FileStore) Load() (State, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return State{}, nil
		}
		return nil, fmt.Errorf("failed to read counter file: %w", err)
	}
	state, unknown, err := decodeState(data)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.unknown = unknown
	f.mu.Unlock()

	return state, nil
}

// Save writes the state, together with the entries Load could not read, to a
// temporary file next to the target and renames it into place.
func (f *FileStore) Save(state State) error {
	f.mu.Lock()
	data, err := encodeState(state, f.unknown)
	f.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to marshal counter state: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write counter file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync counter file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close counter file: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("failed to replace counter file: %w", err)
	}
	return nil
}

// Close releases the lock. Closing twice is a no-op.
func (f *FileStore) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.lock == nil {
		return nil
	}
	lock := f.lock
	f.lock = nil
	if err := unlockFile(lock); err != nil {
		_ = lock.Close()
		return fmt.Errorf("failed to unlock counter file: %w", err)
	}
	return lock.Close()
}
