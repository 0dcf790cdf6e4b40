package stringmodel

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/warren/internal/chunk"
	"github.com/cuemby/warren/internal/lock"
	"github.com/cuemby/warren/internal/store"
)

func newModel(t *testing.T) *Model {
	t.Helper()
	s, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return New(s, chunk.New(s), lock.New(s))
}

func TestSetGetRoundTrip(t *testing.T) {
	m := newModel(t)
	ctx := context.Background()

	_, err := m.Set(ctx, []byte("k"), []byte("hello"), SetOptions{})
	require.NoError(t, err)

	v, ok, err := m.Get(ctx, []byte("k"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "hello", string(v))
}

func TestNXSemantics(t *testing.T) {
	m := newModel(t)
	ctx := context.Background()
	key := []byte("nxkey")

	res, err := m.Set(ctx, key, []byte("v1"), SetOptions{Method: SetNX})
	require.NoError(t, err)
	require.True(t, res.Wrote)

	res, err = m.Set(ctx, key, []byte("v2"), SetOptions{Method: SetNX})
	require.NoError(t, err)
	require.False(t, res.Wrote)

	v, ok, err := m.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v1", string(v))
}

func TestXXSemantics(t *testing.T) {
	m := newModel(t)
	ctx := context.Background()
	key := []byte("xxkey")

	res, err := m.Set(ctx, key, []byte("v"), SetOptions{Method: SetXX})
	require.NoError(t, err)
	require.False(t, res.Wrote)

	_, ok, err := m.Get(ctx, key)
	require.NoError(t, err)
	require.False(t, ok)

	_, err = m.Set(ctx, key, []byte("v0"), SetOptions{})
	require.NoError(t, err)

	res, err = m.Set(ctx, key, []byte("v1"), SetOptions{Method: SetXX})
	require.NoError(t, err)
	require.True(t, res.Wrote)

	v, _, err := m.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, "v1", string(v))
}

func TestGetFlagReturnsPriorValue(t *testing.T) {
	m := newModel(t)
	ctx := context.Background()
	key := []byte("getflag")

	_, err := m.Set(ctx, key, []byte("old"), SetOptions{})
	require.NoError(t, err)

	res, err := m.Set(ctx, key, []byte("new"), SetOptions{Get: true})
	require.NoError(t, err)
	require.True(t, res.HadPrior)
	require.Equal(t, "old", string(res.Prior))

	v, _, err := m.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, "new", string(v))
}

func TestIdempotentDel(t *testing.T) {
	m := newModel(t)
	ctx := context.Background()
	key := []byte("delkey")

	_, err := m.Set(ctx, key, []byte("v"), SetOptions{})
	require.NoError(t, err)

	existed, err := m.Del(ctx, key)
	require.NoError(t, err)
	require.True(t, existed)

	existed, err = m.Del(ctx, key)
	require.NoError(t, err)
	require.False(t, existed)

	_, ok, err := m.Get(ctx, key)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestTTLExpiry(t *testing.T) {
	m := newModel(t)
	ctx := context.Background()
	key := []byte("ttlkey")

	_, err := m.Set(ctx, key, []byte("v"), SetOptions{TTL: SetTTL{Kind: TTLPx, Millis: 100}})
	require.NoError(t, err)

	time.Sleep(200 * time.Millisecond)

	_, ok, err := m.Get(ctx, key)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestKeepTTLPreservesExpiry(t *testing.T) {
	m := newModel(t)
	ctx := context.Background()
	key := []byte("keepttl")

	_, err := m.Set(ctx, key, []byte("v1"), SetOptions{TTL: SetTTL{Kind: TTLPx, Millis: 300}})
	require.NoError(t, err)

	_, err = m.Set(ctx, key, []byte("v2"), SetOptions{TTL: SetTTL{Kind: TTLKeep}})
	require.NoError(t, err)

	time.Sleep(400 * time.Millisecond)

	_, ok, err := m.Get(ctx, key)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestGetDel(t *testing.T) {
	m := newModel(t)
	ctx := context.Background()
	key := []byte("getdelkey")

	_, err := m.Set(ctx, key, []byte("v"), SetOptions{})
	require.NoError(t, err)

	v, ok, err := m.GetDel(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v", string(v))

	_, ok, err = m.Get(ctx, key)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestAtomicAddCounterAtomicity(t *testing.T) {
	m := newModel(t)
	ctx := context.Background()
	key := []byte("counter")

	_, err := m.Set(ctx, key, []byte("0"), SetOptions{})
	require.NoError(t, err)

	const goroutines = 20
	const perGoroutine = 10
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				_, err := m.AtomicAdd(ctx, key, 1)
				require.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	v, ok, err := m.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "200", string(v))
}

func TestAtomicAddRejectsNonInteger(t *testing.T) {
	m := newModel(t)
	ctx := context.Background()
	key := []byte("notint")

	_, err := m.Set(ctx, key, []byte("not-a-number"), SetOptions{})
	require.NoError(t, err)

	_, err = m.AtomicAdd(ctx, key, 1)
	require.ErrorIs(t, err, ErrNotInteger)
}

func TestAppendConcatenatesAndReturnsLength(t *testing.T) {
	m := newModel(t)
	ctx := context.Background()
	key := []byte("appendkey")

	_, err := m.Set(ctx, key, []byte("Hello "), SetOptions{})
	require.NoError(t, err)

	n, err := m.Append(ctx, key, []byte("World"))
	require.NoError(t, err)
	require.Equal(t, len("Hello World"), n)

	v, _, err := m.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, "Hello World", string(v))
}
