package commands

import (
	"context"

	"github.com/cuemby/warren/internal/gateway"
	"github.com/cuemby/warren/internal/resp"
)

// List and Set register the list/set command names as explicit stubs:
// these data types are out of scope for this gateway. Registering them
// (rather than leaving the names entirely undispatched) produces a
// clearer "not implemented" error than the generic unknown-command
// message.
type List struct{}

func (List) Commands() map[string]gateway.Handler {
	return stubHandlers("LPUSH", "RPUSH", "LPOP", "RPOP", "LRANGE", "LINDEX", "LLEN")
}

type Set struct{}

func (Set) Commands() map[string]gateway.Handler {
	return stubHandlers("SADD", "SREM", "SMEMBERS", "SISMEMBER", "SCARD")
}

func stubHandlers(names ...string) map[string]gateway.Handler {
	h := make(map[string]gateway.Handler, len(names))
	for _, name := range names {
		name := name
		h[name] = func(_ context.Context, _ *gateway.Gateway, _ [][]byte) resp.Frame {
			return resp.Err("ERR command '" + name + "' is not implemented")
		}
	}
	return h
}
