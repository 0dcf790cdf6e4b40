package commands

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/cuemby/warren/internal/gateway"
	"github.com/cuemby/warren/internal/resp"
	"github.com/cuemby/warren/internal/stringmodel"
)

// String registers SET, GET, DEL, GETDEL, INCR, DECR, INCRBY, DECRBY.
type String struct{}

func (String) Commands() map[string]gateway.Handler {
	return map[string]gateway.Handler{
		"SET":    set,
		"GET":    get,
		"DEL":    del,
		"GETDEL": getdel,
		"INCR":   incr,
		"DECR":   decr,
		"INCRBY": incrby,
		"DECRBY": decrby,
	}
}

func set(ctx context.Context, gw *gateway.Gateway, args [][]byte) resp.Frame {
	if len(args) < 2 {
		return resp.Err("ERR wrong number of arguments for 'set' command")
	}
	key, value := args[0], args[1]
	opts := parseSetExtraArgs(args[2:])

	res, err := gw.Strings.Set(ctx, key, value, opts)
	if err != nil {
		return resp.Err("ERR " + err.Error())
	}

	// GET flag always replies with the prior value (or nil), regardless
	// of whether a conditional flag aborted the write.
	if opts.Get {
		if res.HadPrior {
			return resp.Bulk(res.Prior)
		}
		return resp.NilBulk()
	}
	if !res.Wrote {
		return resp.NilBulk()
	}
	return resp.Str("OK")
}

// parseSetExtraArgs parses SET's trailing option tokens. Case-insensitive,
// tolerant of unknown tokens, and lenient on malformed numeric arguments:
// a malformed EX/PX/EXAT/PXAT value drops that option rather than
// aborting the command.
func parseSetExtraArgs(tokens [][]byte) stringmodel.SetOptions {
	var opts stringmodel.SetOptions
	for i := 0; i < len(tokens); i++ {
		switch strings.ToUpper(string(tokens[i])) {
		case "NX":
			opts.Method = stringmodel.SetNX
		case "XX":
			opts.Method = stringmodel.SetXX
		case "GET":
			opts.Get = true
		case "KEEPTTL":
			opts.TTL = stringmodel.SetTTL{Kind: stringmodel.TTLKeep}
		case "EX":
			if i+1 >= len(tokens) {
				continue
			}
			n, err := strconv.ParseInt(string(tokens[i+1]), 10, 64)
			i++
			if err != nil {
				continue
			}
			opts.TTL = stringmodel.SetTTL{Kind: stringmodel.TTLEx, Seconds: n}
		case "PX":
			if i+1 >= len(tokens) {
				continue
			}
			n, err := strconv.ParseInt(string(tokens[i+1]), 10, 64)
			i++
			if err != nil {
				continue
			}
			opts.TTL = stringmodel.SetTTL{Kind: stringmodel.TTLPx, Millis: n}
		case "EXAT":
			if i+1 >= len(tokens) {
				continue
			}
			n, err := strconv.ParseInt(string(tokens[i+1]), 10, 64)
			i++
			if err != nil {
				continue
			}
			opts.TTL = stringmodel.SetTTL{Kind: stringmodel.TTLExAt, Seconds: n}
		case "PXAT":
			if i+1 >= len(tokens) {
				continue
			}
			n, err := strconv.ParseInt(string(tokens[i+1]), 10, 64)
			i++
			if err != nil {
				continue
			}
			opts.TTL = stringmodel.SetTTL{Kind: stringmodel.TTLPxAt, Millis: n}
		default:
			// unknown token: ignored
		}
	}
	return opts
}

func get(ctx context.Context, gw *gateway.Gateway, args [][]byte) resp.Frame {
	if len(args) != 1 {
		return resp.Err("ERR wrong number of arguments for 'get' command")
	}
	v, ok, err := gw.Strings.Get(ctx, args[0])
	if err != nil {
		return resp.Err("ERR " + err.Error())
	}
	if !ok {
		return resp.NilBulk()
	}
	return resp.Bulk(v)
}

func del(ctx context.Context, gw *gateway.Gateway, args [][]byte) resp.Frame {
	if len(args) != 1 {
		return resp.Err("ERR wrong number of arguments for 'del' command")
	}
	existed, err := gw.Strings.Del(ctx, args[0])
	if err != nil {
		return resp.Err("ERR " + err.Error())
	}
	if existed {
		return resp.Int(1)
	}
	return resp.Int(0)
}

func getdel(ctx context.Context, gw *gateway.Gateway, args [][]byte) resp.Frame {
	if len(args) != 1 {
		return resp.Err("ERR wrong number of arguments for 'getdel' command")
	}
	v, ok, err := gw.Strings.GetDel(ctx, args[0])
	if err != nil {
		return resp.Err("ERR " + err.Error())
	}
	if !ok {
		return resp.NilBulk()
	}
	return resp.Bulk(v)
}

func incr(ctx context.Context, gw *gateway.Gateway, args [][]byte) resp.Frame {
	return addBy(ctx, gw, args, "incr", 1)
}

func decr(ctx context.Context, gw *gateway.Gateway, args [][]byte) resp.Frame {
	return addBy(ctx, gw, args, "decr", -1)
}

func incrby(ctx context.Context, gw *gateway.Gateway, args [][]byte) resp.Frame {
	return addByArg(ctx, gw, args, "incrby", 1)
}

func decrby(ctx context.Context, gw *gateway.Gateway, args [][]byte) resp.Frame {
	return addByArg(ctx, gw, args, "decrby", -1)
}

func addBy(ctx context.Context, gw *gateway.Gateway, args [][]byte, name string, delta int64) resp.Frame {
	if len(args) != 1 {
		return resp.Err("ERR wrong number of arguments for '" + name + "' command")
	}
	return runAtomicAdd(ctx, gw, args[0], delta)
}

func addByArg(ctx context.Context, gw *gateway.Gateway, args [][]byte, name string, sign int64) resp.Frame {
	if len(args) != 2 {
		return resp.Err("ERR wrong number of arguments for '" + name + "' command")
	}
	n, err := strconv.ParseInt(string(args[1]), 10, 64)
	if err != nil {
		return resp.Err("ERR value is not an integer or out of range")
	}
	return runAtomicAdd(ctx, gw, args[0], sign*n)
}

func runAtomicAdd(ctx context.Context, gw *gateway.Gateway, key []byte, delta int64) resp.Frame {
	n, err := gw.Strings.AtomicAdd(ctx, key, delta)
	if err != nil {
		if errors.Is(err, stringmodel.ErrNotInteger) {
			return resp.Err("ERR value is not an integer or out of range")
		}
		return resp.Err("ERR " + err.Error())
	}
	return resp.Int(n)
}
