// Package stringmodel implements the string data model: SET (with the
// full NX/XX/GET/expiry flag grammar), GET with lazy TTL expiry, DEL,
// GETDEL and the atomic counter operations, composed on top of
// internal/chunk and internal/lock.
package stringmodel

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cuemby/warren/internal/chunk"
	"github.com/cuemby/warren/internal/lock"
	"github.com/cuemby/warren/internal/store"
	"github.com/cuemby/warren/internal/tuple"
)

// ErrNotInteger is returned by the counter operations when the stored
// value is not a valid signed 64-bit decimal integer.
var ErrNotInteger = errors.New("stringmodel: value is not an integer or out of range")

// waitForUnlockBeforeGet and waitForUnlockBeforeSet bound how long GET and
// SET wait for an in-flight large write on the key (one holding its lock)
// to clear before proceeding anyway. SET waits before reading the prior
// value, whatever that value's size.
const (
	waitForUnlockBeforeGet = 2 * time.Second
	waitForUnlockBeforeSet = 5 * time.Second
)

// Model implements SET/GET/DEL/GETDEL/INCR(BY)/DECR(BY)/APPEND.
type Model struct {
	st     *store.Store
	chunks *chunk.Engine
	locks  *lock.Manager
}

// New returns a string data model over the given store, chunk engine and
// lock manager.
func New(st *store.Store, chunks *chunk.Engine, locks *lock.Manager) *Model {
	return &Model{st: st, chunks: chunks, locks: locks}
}

// SetMethod is the NX/XX conditional flag of a SET request.
type SetMethod int

const (
	SetAlways SetMethod = iota
	SetNX
	SetXX
)

// SetTTL is the mutually-exclusive expiry option of a SET request.
type SetTTL struct {
	Kind    SetTTLKind
	Seconds int64 // for Ex / ExAt
	Millis  int64 // for Px / PxAt
}

type SetTTLKind int

const (
	TTLNone SetTTLKind = iota
	TTLEx
	TTLPx
	TTLExAt
	TTLPxAt
	TTLKeep
)

// SetOptions bundles the flags a SET request can carry.
type SetOptions struct {
	Method SetMethod
	TTL    SetTTL
	Get    bool
}

// SetResult reports what SET did, so the command handler can shape the
// RESP2 reply without re-deriving the semantics.
type SetResult struct {
	// Prior is the value that existed before this SET, if any. Set
	// always reads it, whichever flags the request carries.
	Prior    []byte
	HadPrior bool
	Wrote    bool
}

// Set evaluates NX/XX presence conditions, clears any prior chunked
// value, writes the new value and TTL, and reports whether a prior value
// existed and whether the write happened.
func (m *Model) Set(ctx context.Context, key, value []byte, opts SetOptions) (SetResult, error) {
	dataKey := key

	// A prior value must always be known so the chunked engine can clear
	// stale tail chunks before writing (spec's delete-then-write
	// ordering), regardless of which flags this request carries.
	// Give a concurrently in-flight large write a chance to settle
	// before we treat its partial chunks as the prior value.
	m.locks.WaitForUnlock(ctx, dataKey, waitForUnlockBeforeSet)
	prior, hadPrior, err := m.readValue(ctx, dataKey)
	if err != nil {
		return SetResult{}, err
	}

	if opts.Method == SetNX && hadPrior {
		return SetResult{Prior: prior, HadPrior: hadPrior, Wrote: false}, nil
	}
	if opts.Method == SetXX && !hadPrior {
		return SetResult{Prior: prior, HadPrior: hadPrior, Wrote: false}, nil
	}

	large := len(value) >= lock.SizeThreshold || (hadPrior && len(prior) >= lock.SizeThreshold)
	var h *lock.Handle
	if large {
		handle, err := m.locks.Acquire(ctx, dataKey, m.locks.DefaultAcquireTimeout())
		if err != nil {
			// best-effort: proceed without the lock
		} else {
			h = handle
		}
	}
	if h != nil {
		defer h.Release()
	}

	if hadPrior {
		// Only the chunked value is cleared here, to avoid mixing old
		// tail chunks into the new write. The TTL row is handled below,
		// separately, since KEEPTTL must leave it untouched.
		if err := m.chunks.Clear(ctx, dataKey); err != nil {
			return SetResult{}, err
		}
	}

	if err := m.chunks.Write(ctx, dataKey, value); err != nil {
		return SetResult{}, err
	}

	switch opts.TTL.Kind {
	case TTLKeep:
		// leave any existing TTL row as-is
	case TTLNone:
		if err := m.clearTTL(ctx, dataKey); err != nil {
			return SetResult{}, err
		}
	default:
		expiry, err := opts.TTL.absoluteMillis()
		if err != nil {
			return SetResult{}, err
		}
		if err := m.writeTTL(ctx, dataKey, expiry); err != nil {
			return SetResult{}, err
		}
	}

	return SetResult{Prior: prior, HadPrior: hadPrior, Wrote: true}, nil
}

// absoluteMillis computes the absolute expiry timestamp in ms since the
// epoch for every TTL kind except None/Keep, which callers handle before
// reaching here.
func (t SetTTL) absoluteMillis() (uint64, error) {
	now := time.Now().UnixMilli()
	switch t.Kind {
	case TTLEx:
		return uint64(now + t.Seconds*1000), nil
	case TTLPx:
		return uint64(now + t.Millis), nil
	case TTLExAt:
		return uint64(t.Seconds * 1000), nil
	case TTLPxAt:
		return uint64(t.Millis), nil
	default:
		return 0, fmt.Errorf("stringmodel: absoluteMillis called on kind %d", t.Kind)
	}
}

// Get reads a value, lazily deleting it (and its TTL row) if expired.
func (m *Model) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	m.locks.WaitForUnlock(ctx, key, waitForUnlockBeforeGet)

	value, ok, err := m.readValue(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}

	expiry, hasTTL, err := m.readTTL(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if hasTTL && expiry != 0 && expiry <= uint64(time.Now().UnixMilli()) {
		if err := m.deleteValue(ctx, key); err != nil {
			return nil, false, err
		}
		return nil, false, nil
	}

	return value, true, nil
}

// Del implements DEL: best-effort lock, clear data+TTL, release. Returns
// true iff the key existed.
func (m *Model) Del(ctx context.Context, key []byte) (bool, error) {
	_, existed, err := m.readValue(ctx, key)
	if err != nil {
		return false, err
	}
	if !existed {
		return false, nil
	}

	h, err := m.locks.Acquire(ctx, key, m.locks.DefaultAcquireTimeout())
	if err == nil {
		defer h.Release()
	}

	if err := m.deleteValue(ctx, key); err != nil {
		return false, err
	}
	return true, nil
}

// GetDel reads then deletes, returning the prior value if present.
func (m *Model) GetDel(ctx context.Context, key []byte) ([]byte, bool, error) {
	value, ok, err := m.readValue(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}
	if err := m.deleteValue(ctx, key); err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// AtomicAdd implements INCR/DECR/INCRBY/DECRBY: a single backing-store
// transaction that reads the current integer value, adds delta with
// 64-bit wraparound, and rewrites it as decimal text at chunk index 0.
func (m *Model) AtomicAdd(ctx context.Context, key []byte, delta int64) (int64, error) {
	var result int64
	err := m.st.Update(ctx, func(tx store.Txn) error {
		start, end := tuple.SubspaceRange(tuple.Data, key)
		var current []byte
		for {
			page, err := tx.Scan(start, end, chunk.MaxScanPage)
			if err != nil {
				return err
			}
			if len(page) == 0 {
				break
			}
			for _, kv := range page {
				current = append(current, kv.Value...)
				if err := tx.Clear(kv.Key); err != nil {
					return err
				}
			}
			if len(page) < chunk.MaxScanPage {
				break
			}
			start = append(append([]byte{}, page[len(page)-1].Key...), 0x00)
		}

		var old int64
		if len(current) > 0 {
			n, err := strconv.ParseInt(string(current), 10, 64)
			if err != nil {
				return ErrNotInteger
			}
			old = n
		}

		result = old + delta // wrapping add: Go's int64 overflow wraps
		return tx.Set(tuple.PackIndex(tuple.Data, key, 0), []byte(strconv.FormatInt(result, 10)))
	})
	if err != nil {
		return 0, err
	}
	return result, nil
}

// Append reads the current value, concatenates b, and SETs the result
// without flags, returning the new length. Not atomic against concurrent
// writers, a limitation inherited from the source this is grounded on.
func (m *Model) Append(ctx context.Context, key, b []byte) (int, error) {
	current, _, err := m.readValue(ctx, key)
	if err != nil {
		return 0, err
	}
	newValue := append(append([]byte{}, current...), b...)
	if _, err := m.Set(ctx, key, newValue, SetOptions{}); err != nil {
		return 0, err
	}
	return len(newValue), nil
}

func (m *Model) readValue(ctx context.Context, key []byte) ([]byte, bool, error) {
	var exists bool
	err := m.st.View(ctx, func(tx store.Txn) error {
		start, end := tuple.SubspaceRange(tuple.Data, key)
		page, err := tx.Scan(start, end, 1)
		if err != nil {
			return err
		}
		exists = len(page) > 0
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if !exists {
		return nil, false, nil
	}
	value, err := m.chunks.Read(ctx, key)
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (m *Model) deleteValue(ctx context.Context, key []byte) error {
	if err := m.chunks.Clear(ctx, key); err != nil {
		return err
	}
	return m.clearTTL(ctx, key)
}

func (m *Model) clearTTL(ctx context.Context, key []byte) error {
	ttlKey := tuple.Pack(tuple.TTL, key)
	return m.st.Update(ctx, func(tx store.Txn) error {
		return tx.Clear(ttlKey)
	})
}

func (m *Model) writeTTL(ctx context.Context, key []byte, expiryMillis uint64) error {
	ttlKey := tuple.Pack(tuple.TTL, key)
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[8:], expiryMillis)
	return m.st.Update(ctx, func(tx store.Txn) error {
		return tx.Set(ttlKey, buf[:])
	})
}

func (m *Model) readTTL(ctx context.Context, key []byte) (uint64, bool, error) {
	ttlKey := tuple.Pack(tuple.TTL, key)
	var value []byte
	var found bool
	err := m.st.View(ctx, func(tx store.Txn) error {
		v, err := tx.Get(ttlKey)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		value, found = v, true
		return nil
	})
	if err != nil {
		return 0, false, err
	}
	if !found || len(value) != 16 {
		return 0, false, nil
	}
	return binary.BigEndian.Uint64(value[8:]), true, nil
}
