// Package lock implements a per-key advisory lock manager: a
// time-ordered token (UUIDv7 shape) whose high 48 bits are the
// acquisition timestamp, TTL-based steal of abandoned locks, and
// exponential-backoff acquire/wait loops.
package lock

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cuemby/warren/internal/log"
	"github.com/cuemby/warren/internal/metrics"
	"github.com/cuemby/warren/internal/store"
	"github.com/cuemby/warren/internal/tuple"
)

const (
	// SizeThreshold is the value size at or above which the string data
	// model acquires the lock before writing.
	SizeThreshold = 100_000
	// TTL is how long a lock may be held before it is considered
	// abandoned and eligible to be stolen.
	TTL = 10_000 * time.Millisecond
	// DefaultTimeout is the default bound on Acquire's retry loop.
	DefaultTimeout = 30_000 * time.Millisecond

	acquireBackoffStart = 10 * time.Millisecond
	acquireBackoffCap   = 500 * time.Millisecond
	waitBackoffStart    = 5 * time.Millisecond
	waitBackoffCap      = 200 * time.Millisecond
)

// ErrTimeout is returned by Acquire when timeout_ms elapses without the
// lock becoming available.
var ErrTimeout = errors.New("lock: acquire timed out")

// Manager grants advisory, per-key locks backed by store.Store.
type Manager struct {
	st      *store.Store
	logger  zerolog.Logger
	ttl     time.Duration
	timeout time.Duration
}

// New returns a lock manager backed by st, using the default lock TTL and
// acquire timeout.
func New(st *store.Store) *Manager {
	return NewWithOptions(st, TTL, DefaultTimeout)
}

// NewWithTTL returns a lock manager backed by st with a configurable
// abandoned-lock TTL. The acquire timeout is left at DefaultTimeout.
func NewWithTTL(st *store.Store, ttl time.Duration) *Manager {
	return NewWithOptions(st, ttl, DefaultTimeout)
}

// NewWithOptions returns a lock manager backed by st with both the
// abandoned-lock TTL and the default acquire timeout overridden, letting
// cmd/gateway honor the lock-ttl-ms and lock-timeout-ms overrides.
func NewWithOptions(st *store.Store, ttl, timeout time.Duration) *Manager {
	if ttl <= 0 {
		ttl = TTL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Manager{st: st, logger: log.WithComponent("lock"), ttl: ttl, timeout: timeout}
}

// DefaultAcquireTimeout returns the acquire timeout this manager was
// configured with, for callers that don't need a per-call override.
func (m *Manager) DefaultAcquireTimeout() time.Duration {
	return m.timeout
}

// Handle is a scoped lock acquisition; Release is idempotent and
// best-effort, matching the source's release semantics.
type Handle struct {
	mgr      *Manager
	key      []byte
	token    string
	released bool
}

// Release clears the lock if this handle still owns it. Safe to call
// more than once and safe to call even if the lock was stolen.
func (h *Handle) Release() {
	if h == nil || h.released {
		return
	}
	h.released = true
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = h.mgr.release(ctx, h.key, h.token)
}

// Acquire attempts to take the lock on key, retrying under exponential
// backoff (10ms doubling to a 500ms cap) until timeout elapses. A present
// lock older than TTL is stolen.
func (m *Manager) Acquire(ctx context.Context, key []byte, timeout time.Duration) (*Handle, error) {
	deadline := time.Now().Add(timeout)
	backoff := acquireBackoffStart
	token := newToken()
	lockKey := tuple.Pack(tuple.Lock, key)

	for {
		var acquired, stole bool
		err := m.st.Update(ctx, func(tx store.Txn) error {
			existing, err := tx.Get(lockKey)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					acquired = true
					return tx.Set(lockKey, []byte(token))
				}
				return err
			}
			ownerTS, ok := tokenTimestamp(string(existing))
			if !ok || time.Since(ownerTS) > m.ttl {
				m.logger.Warn().Str("key", string(key)).Msg("stealing abandoned lock")
				acquired = true
				stole = true
				return tx.Set(lockKey, []byte(token))
			}
			return nil
		})
		if err != nil {
			m.logger.Warn().Str("key", string(key)).Err(err).Msg("transient error acquiring lock, retrying")
		} else if acquired {
			if stole {
				metrics.LockAcquisitionsTotal.WithLabelValues("stolen").Inc()
			} else {
				metrics.LockAcquisitionsTotal.WithLabelValues("acquired").Inc()
			}
			return &Handle{mgr: m, key: key, token: token}, nil
		}

		if time.Now().After(deadline) {
			metrics.LockAcquisitionsTotal.WithLabelValues("timeout").Inc()
			return nil, ErrTimeout
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(clampToDeadline(backoff, deadline)):
		}
		backoff *= 2
		if backoff > acquireBackoffCap {
			backoff = acquireBackoffCap
		}
	}
}

func (m *Manager) release(ctx context.Context, key []byte, token string) error {
	lockKey := tuple.Pack(tuple.Lock, key)
	return m.st.Update(ctx, func(tx store.Txn) error {
		existing, err := tx.Get(lockKey)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil
			}
			return err
		}
		if strings.HasPrefix(string(existing), token) {
			return tx.Clear(lockKey)
		}
		return nil
	})
}

// IsLocked reports whether key currently has a lock entry, via a single
// transactional read.
func (m *Manager) IsLocked(ctx context.Context, key []byte) (bool, error) {
	lockKey := tuple.Pack(tuple.Lock, key)
	var locked bool
	err := m.st.View(ctx, func(tx store.Txn) error {
		_, err := tx.Get(lockKey)
		if errors.Is(err, store.ErrNotFound) {
			locked = false
			return nil
		}
		if err != nil {
			return err
		}
		locked = true
		return nil
	})
	return locked, err
}

// WaitForUnlock polls IsLocked under exponential backoff (5ms doubling to
// a 200ms cap) until the lock is observed absent or timeout elapses.
func (m *Manager) WaitForUnlock(ctx context.Context, key []byte, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	backoff := waitBackoffStart
	for {
		locked, err := m.IsLocked(ctx, key)
		if err != nil || !locked {
			return
		}
		if time.Now().After(deadline) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(clampToDeadline(backoff, deadline)):
		}
		backoff *= 2
		if backoff > waitBackoffCap {
			backoff = waitBackoffCap
		}
	}
}

func clampToDeadline(d time.Duration, deadline time.Time) time.Duration {
	if remaining := time.Until(deadline); remaining < d {
		if remaining < 0 {
			return 0
		}
		return remaining
	}
	return d
}

// newToken generates a UUIDv7-shaped, time-ordered token whose textual
// form embeds the acquisition timestamp in its high bits.
func newToken() string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return id.String()
}

// tokenTimestamp extracts the acquisition timestamp embedded in a UUIDv7
// token's high 48 bits.
func tokenTimestamp(token string) (time.Time, bool) {
	id, err := uuid.Parse(token)
	if err != nil {
		return time.Time{}, false
	}
	b := id[:]
	ms := uint64(b[0])<<40 | uint64(b[1])<<32 | uint64(b[2])<<24 | uint64(b[3])<<16 | uint64(b[4])<<8 | uint64(b[5])
	return time.UnixMilli(int64(ms)), true
}
