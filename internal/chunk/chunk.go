// Package chunk implements the chunked value engine: it splits logical
// values too large for a single backing-store transaction into ordered
// chunks, writes them in concurrent batches, and reassembles them on
// read via a paged forward range scan.
package chunk

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/cuemby/warren/internal/log"
	"github.com/cuemby/warren/internal/metrics"
	"github.com/cuemby/warren/internal/store"
	"github.com/cuemby/warren/internal/tuple"
)

const (
	// ChunkSize is the maximum size of one stored chunk.
	ChunkSize = 100_000
	// MaxTxBytes bounds the cumulative chunk bytes of one write batch.
	MaxTxBytes = 9_000_000
	// MaxRetries bounds per-batch retry attempts.
	MaxRetries = 3
	// MaxScanPage bounds the page size of one range-scan call.
	MaxScanPage = 20
)

// Engine persists and retrieves chunked values over a store.Store.
type Engine struct {
	st     *store.Store
	logger zerolog.Logger
}

// New returns a chunk engine backed by st.
func New(st *store.Store) *Engine {
	return &Engine{st: st, logger: log.WithComponent("chunk")}
}

type indexedChunk struct {
	index uint64
	bytes []byte
}

// Write splits data into ChunkSize chunks, groups them into MaxTxBytes
// batches, and submits every batch concurrently. On success, chunk keys
// (dataKey, 0..n-1) exist. On failure, the first error is returned;
// chunks written by the failing batch are cleaned up, but batches that
// committed independently are not rolled back (spec's accepted partial-
// write tolerance).
func (e *Engine) Write(ctx context.Context, dataKey []byte, data []byte) error {
	chunks := splitChunks(data)
	batches := groupBatches(chunks)

	g, gctx := errgroup.WithContext(ctx)
	for _, batch := range batches {
		batch := batch
		g.Go(func() error {
			return e.writeBatchWithRetry(gctx, dataKey, batch)
		})
	}
	return g.Wait()
}

func (e *Engine) writeBatchWithRetry(ctx context.Context, dataKey []byte, batch []indexedChunk) error {
	var lastErr error
	for attempt := 1; attempt <= MaxRetries; attempt++ {
		if attempt > 1 {
			metrics.ChunkBatchRetriesTotal.Inc()
		}
		err := e.st.Update(ctx, func(tx store.Txn) error {
			for _, c := range batch {
				if err := tx.Set(tuple.PackIndex(tuple.Data, dataKey, c.index), c.bytes); err != nil {
					return err
				}
			}
			return nil
		})
		if err == nil {
			return nil
		}
		lastErr = err
	}
	// retries exhausted: clean up whatever this batch wrote
	e.logger.Warn().Str("key", string(dataKey)).Int("chunks", len(batch)).Err(lastErr).
		Msg("chunk batch write exhausted retries, cleaning up")
	_ = e.clearIndices(ctx, dataKey, batch)
	return fmt.Errorf("chunk: batch write failed after %d attempts: %w", MaxRetries, lastErr)
}

func (e *Engine) clearIndices(ctx context.Context, dataKey []byte, batch []indexedChunk) error {
	return e.st.Update(ctx, func(tx store.Txn) error {
		for _, c := range batch {
			if err := tx.Clear(tuple.PackIndex(tuple.Data, dataKey, c.index)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Read performs a forward paged range scan over the data subspace of
// dataKey and concatenates values in key order (which equals chunk index
// order since chunk keys are tuple-packed integers).
func (e *Engine) Read(ctx context.Context, dataKey []byte) ([]byte, error) {
	start, end := tuple.SubspaceRange(tuple.Data, dataKey)
	var out []byte
	for {
		var page []store.KV
		err := e.st.View(ctx, func(tx store.Txn) error {
			var err error
			page, err = tx.Scan(start, end, MaxScanPage)
			return err
		})
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			break
		}
		for _, kv := range page {
			out = append(out, kv.Value...)
		}
		start = append(append([]byte{}, page[len(page)-1].Key...), 0x00)
		if len(page) < MaxScanPage {
			break
		}
	}
	return out, nil
}

// Clear range-scans the data subspace of dataKey and clears every key
// found, across as many pages as needed, all within a single transaction.
func (e *Engine) Clear(ctx context.Context, dataKey []byte) error {
	start, end := tuple.SubspaceRange(tuple.Data, dataKey)
	return e.st.Update(ctx, func(tx store.Txn) error {
		for {
			page, err := tx.Scan(start, end, MaxScanPage)
			if err != nil {
				return err
			}
			if len(page) == 0 {
				return nil
			}
			for _, kv := range page {
				if err := tx.Clear(kv.Key); err != nil {
					return err
				}
			}
			if len(page) < MaxScanPage {
				return nil
			}
			start = append(append([]byte{}, page[len(page)-1].Key...), 0x00)
		}
	})
}

func splitChunks(data []byte) []indexedChunk {
	if len(data) == 0 {
		return []indexedChunk{{index: 0, bytes: []byte{}}}
	}
	var chunks []indexedChunk
	var idx uint64
	for off := 0; off < len(data); off += ChunkSize {
		end := off + ChunkSize
		if end > len(data) {
			end = len(data)
		}
		chunks = append(chunks, indexedChunk{index: idx, bytes: data[off:end]})
		idx++
	}
	return chunks
}

func groupBatches(chunks []indexedChunk) [][]indexedChunk {
	var batches [][]indexedChunk
	var current []indexedChunk
	var currentBytes int
	for _, c := range chunks {
		if len(current) > 0 && currentBytes+len(c.bytes) > MaxTxBytes {
			batches = append(batches, current)
			current = nil
			currentBytes = 0
		}
		current = append(current, c)
		currentBytes += len(c.bytes)
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}
