package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/cuemby/warren/internal/resp"
)

// Handler handles one command's arguments (excluding the command name
// itself) against a per-connection Gateway, producing a reply frame.
type Handler func(ctx context.Context, gw *Gateway, args [][]byte) resp.Frame

// Module contributes a set of command handlers keyed by uppercase
// command name.
type Module interface {
	Commands() map[string]Handler
}

// Dispatch is the immutable, process-wide command table built once at
// startup from every module's registrations.
type Dispatch struct {
	handlers map[string]Handler
}

// NewDispatch composes every module's Commands() into one table.
func NewDispatch(modules ...Module) *Dispatch {
	handlers := make(map[string]Handler)
	for _, m := range modules {
		for name, h := range m.Commands() {
			handlers[strings.ToUpper(name)] = h
		}
	}
	return &Dispatch{handlers: handlers}
}

// Handle looks up name (case-insensitive) and invokes its handler, or
// produces the RESP2 "unknown command" error frame.
func (d *Dispatch) Handle(ctx context.Context, gw *Gateway, name string, args [][]byte) resp.Frame {
	h, ok := d.handlers[strings.ToUpper(name)]
	if !ok {
		return resp.Err(unknownCommandMessage(name, args))
	}
	return h(ctx, gw, args)
}

func unknownCommandMessage(name string, args [][]byte) string {
	var b strings.Builder
	for i, a := range args {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(fmt.Sprintf("'%s'", string(a)))
	}
	return fmt.Sprintf("ERR unknown command '%s', with args beginning with: %s", name, b.String())
}
