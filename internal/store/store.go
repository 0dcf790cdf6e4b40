// Package store provides a serializable, snapshot-isolated key-value
// store with range scans and a closure-based transaction runner, built
// on bbolt.
package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"
)

// ErrNotFound is returned by Txn.Get when the key does not exist.
var ErrNotFound = errors.New("store: key not found")

// ErrConflict marks a transient, retryable transaction failure.
var ErrConflict = errors.New("store: transaction conflict")

// maxRetries bounds the closure-based transaction runner's retry loop on
// ErrConflict. bbolt's single-writer model makes a true write-write
// conflict impossible, but callers (the chunk engine, the lock manager)
// are written against a driver that can report transient failures, so the
// retry wrapper stays in place to exercise that path.
const maxRetries = 3

var rootBucket = []byte("gateway")

// Store is a single bbolt database opened for the gateway's keyspace.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if absent) the backing-store file under dataDir.
func Open(dataDir string) (*Store, error) {
	path := filepath.Join(dataDir, "gateway.db")
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(rootBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("store: init bucket: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Txn is the transactional handle passed into Update/View closures.
type Txn interface {
	// Get returns the value for key, or ErrNotFound.
	Get(key []byte) ([]byte, error)
	// Set writes key to value, overwriting any existing value.
	Set(key, value []byte) error
	// Clear removes key; it is not an error if key does not exist.
	Clear(key []byte) error
	// Scan performs a forward range scan over [start, end), returning at
	// most limit entries.
	Scan(start, end []byte, limit int) ([]KV, error)
}

// KV is one key-value pair returned by Scan.
type KV struct {
	Key   []byte
	Value []byte
}

type txn struct {
	tx *bolt.Tx
}

func (t *txn) bucket() *bolt.Bucket {
	return t.tx.Bucket(rootBucket)
}

func (t *txn) Get(key []byte) ([]byte, error) {
	v := t.bucket().Get(key)
	if v == nil {
		return nil, ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (t *txn) Set(key, value []byte) error {
	return t.bucket().Put(key, value)
}

func (t *txn) Clear(key []byte) error {
	return t.bucket().Delete(key)
}

func (t *txn) Scan(start, end []byte, limit int) ([]KV, error) {
	c := t.bucket().Cursor()
	var out []KV
	for k, v := c.Seek(start); k != nil && bytesLess(k, end) && (limit <= 0 || len(out) < limit); k, v = c.Next() {
		key := make([]byte, len(k))
		copy(key, k)
		val := make([]byte, len(v))
		copy(val, v)
		out = append(out, KV{Key: key, Value: val})
	}
	return out, nil
}

func bytesLess(a, b []byte) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

// Update runs fn in a read-write transaction, retrying on ErrConflict up
// to maxRetries times.
func (s *Store) Update(ctx context.Context, fn func(Txn) error) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.db.Update(func(btx *bolt.Tx) error {
			return fn(&txn{tx: btx})
		})
		if err == nil {
			return nil
		}
		lastErr = err
		if !errors.Is(err, ErrConflict) {
			return err
		}
	}
	return lastErr
}

// View runs fn in a read-only transaction.
func (s *Store) View(ctx context.Context, fn func(Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(btx *bolt.Tx) error {
		return fn(&txn{tx: btx})
	})
}
