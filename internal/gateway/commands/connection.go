// Package commands holds the per-module command registrations composed
// into the dispatch table: connection, string, and server/ACL, plus
// list/set stubs.
package commands

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/cuemby/warren/internal/acl"
	"github.com/cuemby/warren/internal/gateway"
	"github.com/cuemby/warren/internal/resp"
)

// Connection registers PING, ECHO, HELLO, RESET, SELECT, AUTH, CLIENT
// GETNAME/SETNAME and QUIT.
type Connection struct{}

func (Connection) Commands() map[string]gateway.Handler {
	return map[string]gateway.Handler{
		"PING":   ping,
		"ECHO":   echo,
		"HELLO":  hello,
		"RESET":  reset,
		"SELECT": selectDB,
		"AUTH":   auth,
		"CLIENT": client,
		"QUIT":   quit,
	}
}

func ping(_ context.Context, _ *gateway.Gateway, args [][]byte) resp.Frame {
	if len(args) > 0 {
		return resp.Str(string(args[0]))
	}
	return resp.Str("PONG")
}

func echo(_ context.Context, _ *gateway.Gateway, args [][]byte) resp.Frame {
	if len(args) != 1 {
		return resp.Err("ERR wrong number of arguments for 'echo' command")
	}
	return resp.Bulk(args[0])
}

func hello(_ context.Context, _ *gateway.Gateway, _ [][]byte) resp.Frame {
	return resp.Str("OK")
}

func reset(_ context.Context, gw *gateway.Gateway, _ [][]byte) resp.Frame {
	if gw.Session != nil {
		gw.Session.SetSelectedDB(0)
	}
	return resp.Str("RESET")
}

func selectDB(_ context.Context, gw *gateway.Gateway, args [][]byte) resp.Frame {
	if len(args) != 1 {
		return resp.Err("ERR wrong number of arguments for 'select' command")
	}
	n, err := strconv.Atoi(string(args[0]))
	if err != nil {
		return resp.Err("ERR value is not an integer or out of range")
	}
	gw.Session.SetSelectedDB(n)
	return resp.Str("OK")
}

func auth(ctx context.Context, gw *gateway.Gateway, args [][]byte) resp.Frame {
	if len(args) != 2 {
		return resp.Err("ERR wrong number of arguments for 'auth' command")
	}
	user, pass := string(args[0]), string(args[1])
	if _, err := gw.ACL.GetUser(ctx, user); err != nil {
		if errors.Is(err, acl.ErrNoSuchUser) {
			return resp.Err("ERR no such user")
		}
		return resp.Err("ERR " + err.Error())
	}
	ok, err := gw.ACL.Verify(ctx, user, pass)
	if err != nil {
		return resp.Err("ERR " + err.Error())
	}
	if !ok {
		return resp.Err("ERR invalid password")
	}
	gw.Session.SetAuthenticatedUser(user)
	return resp.Str("OK")
}

func client(_ context.Context, gw *gateway.Gateway, args [][]byte) resp.Frame {
	if len(args) == 0 {
		return resp.Err("ERR wrong number of arguments for 'client' command")
	}
	switch strings.ToUpper(string(args[0])) {
	case "GETNAME":
		return resp.Bulk([]byte(gw.Session.ClientName()))
	case "SETNAME":
		if len(args) != 2 {
			return resp.Err("ERR wrong number of arguments for 'client|setname' command")
		}
		gw.Session.SetClientName(string(args[1]))
		return resp.Str("OK")
	default:
		return resp.Err("ERR unknown CLIENT subcommand")
	}
}

func quit(_ context.Context, gw *gateway.Gateway, _ [][]byte) resp.Frame {
	gw.Session.MarkClose()
	return resp.Str("OK")
}
