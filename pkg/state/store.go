package state

import (
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
)

// ErrNotFound is returned by Txn.Get for missing keys.
var ErrNotFound = errors.New("state: key not found")

// Store is the host execution environment: a Pebble database plus the lock
// that serializes every unit of work against shared state.
type Store struct {
	mu sync.Mutex
	db *pebble.DB
}

// Open opens a Pebble database at the given path
func Open(path string) (*Store, error) {
	opts := &pebble.Options{
		Cache:                    pebble.NewCache(64 << 20), // 64MB cache
		MemTableSize:             32 << 20,
		MaxConcurrentCompactions: func() int { return 2 },
		L0CompactionThreshold:    2,
		L0StopWritesThreshold:    12,
		MaxOpenFiles:             1000,
		BytesPerSync:             512 << 10,
	}

	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db at %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// Close closes the database
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// Update runs fn as one atomic unit of work. Writes made through the Txn are
// committed only when fn returns nil; any error discards all of them.
func (s *Store) Update(fn func(*Txn) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	txn := newTxn(s.db)
	if err := fn(txn); err != nil {
		return err
	}
	return txn.commit()
}

// View runs fn against a throwaway Txn; nothing it writes is persisted.
func (s *Store) View(fn func(*Txn) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return fn(newTxn(s.db))
}
