// Package server implements the RESP2 connection reader and TCP listener:
// a growing read buffer (8 KiB up to 512 MiB), a decode-loop-then-compact
// frame reader, and one goroutine per accepted connection.
package server

import (
	"context"
	"net"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cuemby/warren/internal/gateway"
	"github.com/cuemby/warren/internal/log"
	"github.com/cuemby/warren/internal/metrics"
	"github.com/cuemby/warren/internal/resp"
)

const (
	initialBufferSize = 8 * 1024
	maxBufferSize     = 512 * 1024 * 1024
)

// Listener accepts TCP connections and spawns one goroutine per
// connection, dispatching each decoded frame through Dispatch against a
// per-connection clone of the base Gateway.
type Listener struct {
	BaseGateway *gateway.Gateway
	Dispatch    *gateway.Dispatch
}

// New returns a Listener wired to baseGateway and dispatch.
func New(baseGateway *gateway.Gateway, dispatch *gateway.Dispatch) *Listener {
	return &Listener{BaseGateway: baseGateway, Dispatch: dispatch}
}

// ListenAndServe accepts connections on addr until ctx is cancelled or
// the listener fails.
func (l *Listener) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	logger := log.WithComponent("server")
	logger.Info().Str("addr", addr).Msg("listening")

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		metrics.ConnectionsTotal.Inc()
		connID := uuid.NewString()
		connGateway := l.BaseGateway.WithSession()
		go l.handleConnection(ctx, conn, connGateway, log.WithConn(connID))
	}
}

func (l *Listener) handleConnection(ctx context.Context, conn net.Conn, gw *gateway.Gateway, logger zerolog.Logger) {
	defer conn.Close()

	buf := make([]byte, 0, initialBufferSize)
	readBuf := make([]byte, initialBufferSize)

	for {
		n, err := conn.Read(readBuf)
		if err != nil {
			return
		}
		buf = append(buf, readBuf[:n]...)
		if len(buf) >= maxBufferSize {
			writeReply(conn, resp.Err("ERR command too large"))
			return
		}

		for {
			frame, consumed, derr := resp.Decode(buf)
			if derr == resp.ErrIncomplete {
				break
			}
			if derr != nil {
				writeReply(conn, resp.Err("ERR invalid command"))
				return
			}
			buf = buf[consumed:]

			reply := l.dispatchFrame(ctx, gw, frame, logger)
			if err := writeReply(conn, reply); err != nil {
				return
			}
			if gw.Session.ShouldClose() {
				return
			}
		}

		// compact leftover bytes to the buffer's head; grow if we are
		// at capacity with nothing left to decode.
		if len(buf) == cap(buf) {
			grown := make([]byte, len(buf), growBufferCap(cap(buf)))
			copy(grown, buf)
			buf = grown
		}
	}
}

func growBufferCap(current int) int {
	next := current * 2
	if next > maxBufferSize {
		next = maxBufferSize
	}
	return next
}

func (l *Listener) dispatchFrame(ctx context.Context, gw *gateway.Gateway, frame resp.Frame, logger zerolog.Logger) resp.Frame {
	if frame.Kind != resp.Array || len(frame.Array) == 0 {
		return resp.Err("ERR invalid command")
	}
	nameFrame := frame.Array[0]
	if nameFrame.Kind != resp.BulkString || nameFrame.Null {
		return resp.Err("ERR invalid command")
	}
	name := string(nameFrame.Str)

	args := make([][]byte, 0, len(frame.Array)-1)
	for _, elem := range frame.Array[1:] {
		switch elem.Kind {
		case resp.BulkString, resp.SimpleString:
			args = append(args, elem.Str)
		default:
			return resp.Err("ERR invalid command")
		}
	}

	reply := l.Dispatch.Handle(ctx, gw, name, args)
	metrics.CommandsTotal.WithLabelValues(name, outcomeLabel(reply)).Inc()
	return reply
}

func outcomeLabel(f resp.Frame) string {
	if f.Kind == resp.Error {
		return "error"
	}
	return "ok"
}

func writeReply(conn net.Conn, f resp.Frame) error {
	buf := make([]byte, f.EncodedLen())
	f.Encode(buf)
	_, err := conn.Write(buf)
	return err
}
