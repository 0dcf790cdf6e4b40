package gateway

import (
	"time"

	"github.com/cuemby/warren/internal/acl"
	"github.com/cuemby/warren/internal/chunk"
	"github.com/cuemby/warren/internal/lock"
	"github.com/cuemby/warren/internal/store"
	"github.com/cuemby/warren/internal/stringmodel"
)

// Gateway is the cloneable facade handed to command handlers: it exposes
// the data models and carries this connection's session. The base
// Gateway built at startup holds no session; WithSession returns a
// per-connection clone with a fresh session attached.
type Gateway struct {
	Store   *store.Store
	Chunks  *chunk.Engine
	Locks   *lock.Manager
	Strings *stringmodel.Model
	ACL     *acl.Model

	Session *Session
}

// New constructs the base gateway over the given backing store, wiring
// the chunk engine, lock manager, string model and ACL model in
// dependency order. lockTTL overrides the lock manager's abandoned-lock
// TTL and lockTimeout overrides its default Acquire timeout; pass 0 for
// either to use the built-in default.
func New(st *store.Store, lockTTL, lockTimeout time.Duration) *Gateway {
	chunks := chunk.New(st)
	locks := lock.NewWithOptions(st, lockTTL, lockTimeout)
	return &Gateway{
		Store:   st,
		Chunks:  chunks,
		Locks:   locks,
		Strings: stringmodel.New(st, chunks, locks),
		ACL:     acl.New(st),
	}
}

// WithSession returns a shallow clone of g attached to a fresh session,
// for a newly accepted connection.
func (g *Gateway) WithSession() *Gateway {
	clone := *g
	clone.Session = NewSession()
	return &clone
}
