package commands

import (
	"context"
	"errors"
	"strings"

	"github.com/cuemby/warren/internal/acl"
	"github.com/cuemby/warren/internal/gateway"
	"github.com/cuemby/warren/internal/resp"
)

// Server registers the ACL subcommand family (SETUSER, GETUSER, DELUSER,
// LIST, WHOAMI).
type Server struct{}

func (Server) Commands() map[string]gateway.Handler {
	return map[string]gateway.Handler{
		"ACL": aclCmd,
	}
}

func aclCmd(ctx context.Context, gw *gateway.Gateway, args [][]byte) resp.Frame {
	if len(args) == 0 {
		return resp.Err("ERR wrong number of arguments for 'acl' command")
	}
	sub := strings.ToUpper(string(args[0]))
	rest := args[1:]

	switch sub {
	case "SETUSER":
		return aclSetUser(ctx, gw, rest)
	case "GETUSER":
		return aclGetUser(ctx, gw, rest)
	case "DELUSER":
		return aclDelUser(ctx, gw, rest)
	case "LIST":
		return aclList(ctx, gw, rest)
	case "WHOAMI":
		return aclWhoAmI(gw)
	default:
		return resp.Err("ERR unknown ACL subcommand '" + sub + "'")
	}
}

func aclSetUser(ctx context.Context, gw *gateway.Gateway, args [][]byte) resp.Frame {
	if len(args) < 2 {
		return resp.Err("ERR wrong number of arguments for 'acl|setuser' command")
	}
	name, password := string(args[0]), string(args[1])
	rules := ""
	if len(args) >= 3 {
		rules = string(args[2])
	}
	if err := gw.ACL.SetUser(ctx, name, password, rules); err != nil {
		return resp.Err("ERR " + err.Error())
	}
	return resp.Str("OK")
}

func aclGetUser(ctx context.Context, gw *gateway.Gateway, args [][]byte) resp.Frame {
	if len(args) != 1 {
		return resp.Err("ERR wrong number of arguments for 'acl|getuser' command")
	}
	u, err := gw.ACL.GetUser(ctx, string(args[0]))
	if err != nil {
		if errors.Is(err, acl.ErrNoSuchUser) {
			return resp.Err("ERR no such user")
		}
		return resp.Err("ERR " + err.Error())
	}
	rulesFrame := resp.NilBulk()
	if u.Rules != "" {
		rulesFrame = resp.Bulk([]byte(u.Rules))
	}
	return resp.Arr(resp.Bulk([]byte(u.Name)), rulesFrame)
}

func aclDelUser(ctx context.Context, gw *gateway.Gateway, args [][]byte) resp.Frame {
	if len(args) != 1 {
		return resp.Err("ERR wrong number of arguments for 'acl|deluser' command")
	}
	if err := gw.ACL.DelUser(ctx, string(args[0])); err != nil {
		return resp.Err("ERR " + err.Error())
	}
	return resp.Str("OK")
}

func aclList(ctx context.Context, gw *gateway.Gateway, _ [][]byte) resp.Frame {
	names, err := gw.ACL.ListUsers(ctx)
	if err != nil {
		return resp.Err("ERR " + err.Error())
	}
	frames := make([]resp.Frame, len(names))
	for i, n := range names {
		frames[i] = resp.Bulk([]byte(n))
	}
	return resp.ArrOf(frames)
}

func aclWhoAmI(gw *gateway.Gateway) resp.Frame {
	return resp.Bulk([]byte(gw.Session.AuthenticatedUser()))
}
