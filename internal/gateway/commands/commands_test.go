package commands

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/warren/internal/gateway"
	"github.com/cuemby/warren/internal/resp"
	"github.com/cuemby/warren/internal/store"
)

func newDispatch(t *testing.T) (*gateway.Dispatch, *gateway.Gateway) {
	t.Helper()
	s, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	d := gateway.NewDispatch(Connection{}, String{}, Server{}, List{}, Set{})
	gw := gateway.New(s, 0, 0).WithSession()
	return d, gw
}

func TestPingPong(t *testing.T) {
	d, gw := newDispatch(t)
	f := d.Handle(context.Background(), gw, "PING", nil)
	require.Equal(t, "PONG", string(f.Str))

	f = d.Handle(context.Background(), gw, "PING", [][]byte{[]byte("hello")})
	require.Equal(t, "hello", string(f.Str))
}

func TestSetGetThroughDispatch(t *testing.T) {
	d, gw := newDispatch(t)
	ctx := context.Background()

	f := d.Handle(ctx, gw, "SET", [][]byte{[]byte("e2e_key"), []byte("hello")})
	require.Equal(t, resp.SimpleString, f.Kind)
	require.Equal(t, "OK", string(f.Str))

	f = d.Handle(ctx, gw, "GET", [][]byte{[]byte("e2e_key")})
	require.Equal(t, resp.BulkString, f.Kind)
	require.Equal(t, "hello", string(f.Str))
}

func TestACLFlowThroughDispatch(t *testing.T) {
	d, gw := newDispatch(t)
	ctx := context.Background()

	f := d.Handle(ctx, gw, "ACL", [][]byte{[]byte("SETUSER"), []byte("testuser"), []byte("secret"), []byte("on")})
	require.Equal(t, "OK", string(f.Str))

	f = d.Handle(ctx, gw, "ACL", [][]byte{[]byte("GETUSER"), []byte("testuser")})
	require.Equal(t, resp.Array, f.Kind)
	require.Equal(t, "testuser", string(f.Array[0].Str))
	require.Equal(t, "on", string(f.Array[1].Str))

	f = d.Handle(ctx, gw, "AUTH", [][]byte{[]byte("testuser"), []byte("secret")})
	require.Equal(t, "OK", string(f.Str))

	f = d.Handle(ctx, gw, "ACL", [][]byte{[]byte("whoami")})
	require.Equal(t, "testuser", string(f.Str))

	f = d.Handle(ctx, gw, "ACL", [][]byte{[]byte("DELUSER"), []byte("testuser")})
	require.Equal(t, "OK", string(f.Str))
}

func TestWhoAmIDefaultBeforeAuth(t *testing.T) {
	d, gw := newDispatch(t)
	f := d.Handle(context.Background(), gw, "ACL", [][]byte{[]byte("WHOAMI")})
	require.Equal(t, "default", string(f.Str))
}

func TestQuitMarksClose(t *testing.T) {
	d, gw := newDispatch(t)
	f := d.Handle(context.Background(), gw, "QUIT", nil)
	require.Equal(t, "OK", string(f.Str))
	require.True(t, gw.Session.ShouldClose())
}

func TestSetNXXXFlags(t *testing.T) {
	d, gw := newDispatch(t)
	ctx := context.Background()

	f := d.Handle(ctx, gw, "SET", [][]byte{[]byte("k"), []byte("v1"), []byte("NX")})
	require.Equal(t, "OK", string(f.Str))

	f = d.Handle(ctx, gw, "SET", [][]byte{[]byte("k"), []byte("v2"), []byte("NX")})
	require.True(t, f.Null)

	f = d.Handle(ctx, gw, "GET", [][]byte{[]byte("k")})
	require.Equal(t, "v1", string(f.Str))

	f = d.Handle(ctx, gw, "SET", [][]byte{[]byte("absent"), []byte("v"), []byte("XX")})
	require.True(t, f.Null)

	f = d.Handle(ctx, gw, "SET", [][]byte{[]byte("k"), []byte("v3"), []byte("XX")})
	require.Equal(t, "OK", string(f.Str))
}

func TestIncrDecr(t *testing.T) {
	d, gw := newDispatch(t)
	ctx := context.Background()

	d.Handle(ctx, gw, "SET", [][]byte{[]byte("counter"), []byte("10")})

	f := d.Handle(ctx, gw, "INCR", [][]byte{[]byte("counter")})
	require.Equal(t, int64(11), f.Int)

	f = d.Handle(ctx, gw, "INCRBY", [][]byte{[]byte("counter"), []byte("5")})
	require.Equal(t, int64(16), f.Int)

	f = d.Handle(ctx, gw, "DECRBY", [][]byte{[]byte("counter"), []byte("6")})
	require.Equal(t, int64(10), f.Int)
}

func TestListStubReturnsNotImplemented(t *testing.T) {
	d, gw := newDispatch(t)
	f := d.Handle(context.Background(), gw, "LPUSH", [][]byte{[]byte("k"), []byte("v")})
	require.Equal(t, resp.Error, f.Kind)
}
