package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSetGetClear(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	err := s.Update(ctx, func(tx Txn) error {
		return tx.Set([]byte("k1"), []byte("v1"))
	})
	require.NoError(t, err)

	var got []byte
	err = s.View(ctx, func(tx Txn) error {
		var err error
		got, err = tx.Get([]byte("k1"))
		return err
	})
	require.NoError(t, err)
	require.Equal(t, "v1", string(got))

	err = s.Update(ctx, func(tx Txn) error {
		return tx.Clear([]byte("k1"))
	})
	require.NoError(t, err)

	err = s.View(ctx, func(tx Txn) error {
		_, err := tx.Get([]byte("k1"))
		return err
	})
	require.True(t, errors.Is(err, ErrNotFound))
}

func TestScanOrdering(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	keys := [][]byte{[]byte("a1"), []byte("a3"), []byte("a2"), []byte("b1")}
	err := s.Update(ctx, func(tx Txn) error {
		for _, k := range keys {
			if err := tx.Set(k, k); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	var kvs []KV
	err = s.View(ctx, func(tx Txn) error {
		var err error
		kvs, err = tx.Scan([]byte("a"), []byte("b"), 0)
		return err
	})
	require.NoError(t, err)
	require.Len(t, kvs, 3)
	require.Equal(t, "a1", string(kvs[0].Key))
	require.Equal(t, "a2", string(kvs[1].Key))
	require.Equal(t, "a3", string(kvs[2].Key))
}

func TestScanLimit(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()

	err := s.Update(ctx, func(tx Txn) error {
		for i := 0; i < 5; i++ {
			if err := tx.Set([]byte{'a', byte('0' + i)}, []byte{byte(i)}); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	var kvs []KV
	err = s.View(ctx, func(tx Txn) error {
		var err error
		kvs, err = tx.Scan([]byte("a"), []byte("b"), 2)
		return err
	})
	require.NoError(t, err)
	require.Len(t, kvs, 2)
}
