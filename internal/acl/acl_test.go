package acl

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/warren/internal/store"
)

func newModel(t *testing.T) *Model {
	t.Helper()
	s, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return New(s)
}

func TestSetGetVerifyUser(t *testing.T) {
	m := newModel(t)
	ctx := context.Background()

	require.NoError(t, m.SetUser(ctx, "testuser", "secret", "on"))

	u, err := m.GetUser(ctx, "testuser")
	require.NoError(t, err)
	require.Equal(t, "on", u.Rules)
	require.True(t, len(u.Hash) > 0 && u.Hash[:2] == "$2")

	ok, err := m.Verify(ctx, "testuser", "secret")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = m.Verify(ctx, "testuser", "wrong")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestVerifyUnknownUser(t *testing.T) {
	m := newModel(t)
	ctx := context.Background()

	ok, err := m.Verify(ctx, "nobody", "whatever")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestGetUnknownUserErrors(t *testing.T) {
	m := newModel(t)
	ctx := context.Background()

	_, err := m.GetUser(ctx, "nobody")
	require.True(t, errors.Is(err, ErrNoSuchUser))
}

func TestDelUser(t *testing.T) {
	m := newModel(t)
	ctx := context.Background()

	require.NoError(t, m.SetUser(ctx, "gone", "pw", ""))
	require.NoError(t, m.DelUser(ctx, "gone"))

	_, err := m.GetUser(ctx, "gone")
	require.True(t, errors.Is(err, ErrNoSuchUser))
}

func TestListUsers(t *testing.T) {
	m := newModel(t)
	ctx := context.Background()

	require.NoError(t, m.SetUser(ctx, "alice", "pw1", ""))
	require.NoError(t, m.SetUser(ctx, "bob", "pw2", ""))

	names, err := m.ListUsers(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"alice", "bob"}, names)
}

func TestSetUserAcceptsPrecomputedHash(t *testing.T) {
	m := newModel(t)
	ctx := context.Background()

	require.NoError(t, m.SetUser(ctx, "u1", "secret", ""))
	u, err := m.GetUser(ctx, "u1")
	require.NoError(t, err)

	require.NoError(t, m.SetUser(ctx, "u2", u.Hash, ""))
	ok, err := m.Verify(ctx, "u2", "secret")
	require.NoError(t, err)
	require.True(t, ok)
}
