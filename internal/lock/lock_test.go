package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/warren/internal/store"
)

func newManager(t *testing.T) *Manager {
	t.Helper()
	s, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return New(s)
}

func TestAcquireReleaseRoundTrip(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()
	key := []byte("k")

	locked, err := m.IsLocked(ctx, key)
	require.NoError(t, err)
	require.False(t, locked)

	h, err := m.Acquire(ctx, key, time.Second)
	require.NoError(t, err)

	locked, err = m.IsLocked(ctx, key)
	require.NoError(t, err)
	require.True(t, locked)

	h.Release()

	locked, err = m.IsLocked(ctx, key)
	require.NoError(t, err)
	require.False(t, locked)
}

func TestAcquireBlocksUntilRelease(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()
	key := []byte("k")

	h1, err := m.Acquire(ctx, key, time.Second)
	require.NoError(t, err)

	var acquired int32
	done := make(chan struct{})
	go func() {
		h2, err := m.Acquire(ctx, key, 2*time.Second)
		require.NoError(t, err)
		atomic.StoreInt32(&acquired, 1)
		h2.Release()
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	require.EqualValues(t, 0, atomic.LoadInt32(&acquired))

	h1.Release()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("second acquirer never completed")
	}
}

func TestWaitForUnlockReturnsPromptlyWhenUnlocked(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()
	start := time.Now()
	m.WaitForUnlock(ctx, []byte("never-locked"), time.Second)
	require.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestConcurrentAcquireSerializes(t *testing.T) {
	m := newManager(t)
	ctx := context.Background()
	key := []byte("counter-lock")

	var wg sync.WaitGroup
	var counter int64
	var holders, overlapped int32
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := m.Acquire(ctx, key, 5*time.Second)
			if err != nil {
				return
			}
			defer h.Release()
			if atomic.AddInt32(&holders, 1) > 1 {
				atomic.StoreInt32(&overlapped, 1)
			}
			atomic.AddInt64(&counter, 1)
			atomic.AddInt32(&holders, -1)
		}()
	}
	wg.Wait()
	require.EqualValues(t, 10, atomic.LoadInt64(&counter))
	require.EqualValues(t, 0, atomic.LoadInt32(&overlapped))
}
