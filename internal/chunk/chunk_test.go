package chunk

import (
	"bytes"
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/warren/internal/store"
)

func newEngine(t *testing.T) *Engine {
	t.Helper()
	s, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return New(s)
}

func TestWriteReadRoundTrip(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	key := []byte("roundtrip")

	data := []byte("hello, world")
	require.NoError(t, e.Write(ctx, key, data))

	got, err := e.Read(ctx, key)
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestWriteReadMultiChunk(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	key := []byte("big")

	rnd := rand.New(rand.NewSource(1))
	data := make([]byte, ChunkSize*3+123)
	rnd.Read(data)

	require.NoError(t, e.Write(ctx, key, data))

	got, err := e.Read(ctx, key)
	require.NoError(t, err)
	require.True(t, bytes.Equal(data, got))
}

func TestClearRemovesAllChunks(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	key := []byte("clearme")

	require.NoError(t, e.Write(ctx, key, bytes.Repeat([]byte("x"), ChunkSize*2)))
	require.NoError(t, e.Clear(ctx, key))

	got, err := e.Read(ctx, key)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestClearRemovesAllChunksAcrossMultiplePages(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	key := []byte("clearme-big")

	// MaxScanPage chunks per page: write enough chunks that Clear must
	// range-scan more than one page within its single transaction.
	require.NoError(t, e.Write(ctx, key, bytes.Repeat([]byte("x"), ChunkSize*(MaxScanPage*2+3))))
	require.NoError(t, e.Clear(ctx, key))

	got, err := e.Read(ctx, key)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestWriteOverwrite(t *testing.T) {
	e := newEngine(t)
	ctx := context.Background()
	key := []byte("overwrite")

	require.NoError(t, e.Write(ctx, key, []byte("first value is longer than second")))
	require.NoError(t, e.Clear(ctx, key))
	require.NoError(t, e.Write(ctx, key, []byte("short")))

	got, err := e.Read(ctx, key)
	require.NoError(t, err)
	require.Equal(t, "short", string(got))
}

func TestGroupBatchesRespectsMaxTxBytes(t *testing.T) {
	chunks := []indexedChunk{
		{index: 0, bytes: bytes.Repeat([]byte("a"), ChunkSize)},
		{index: 1, bytes: bytes.Repeat([]byte("b"), ChunkSize)},
	}
	batches := groupBatches(chunks)
	require.Len(t, batches, 1)

	var big []indexedChunk
	for i := 0; i < 95; i++ {
		big = append(big, indexedChunk{index: uint64(i), bytes: bytes.Repeat([]byte("c"), ChunkSize)})
	}
	bigBatches := groupBatches(big)
	require.Greater(t, len(bigBatches), 1)
	for _, b := range bigBatches {
		total := 0
		for _, c := range b {
			total += len(c.bytes)
		}
		require.LessOrEqual(t, total, MaxTxBytes)
	}
}
