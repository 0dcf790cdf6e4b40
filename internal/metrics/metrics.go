// Package metrics exposes gateway counters on a Prometheus /metrics HTTP
// endpoint: package-level prometheus.*Vec collectors and a small HTTP
// server started alongside the main listener.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// CommandsTotal counts dispatched commands by name and outcome.
	CommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_commands_total",
			Help: "Total number of RESP2 commands dispatched, by command and outcome",
		},
		[]string{"command", "outcome"},
	)

	// LockAcquisitionsTotal counts lock manager acquire outcomes.
	LockAcquisitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_lock_acquisitions_total",
			Help: "Total number of lock acquire attempts, by outcome (acquired, stolen, timeout)",
		},
		[]string{"outcome"},
	)

	// ChunkBatchRetriesTotal counts chunk write batch retry attempts.
	ChunkBatchRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gateway_chunk_batch_retries_total",
			Help: "Total number of chunk write batch retry attempts",
		},
	)

	// ConnectionsTotal counts accepted TCP connections.
	ConnectionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gateway_connections_total",
			Help: "Total number of accepted TCP connections",
		},
	)
)

func init() {
	prometheus.MustRegister(CommandsTotal, LockAcquisitionsTotal, ChunkBatchRetriesTotal, ConnectionsTotal)
}

// Serve starts an HTTP server exposing /metrics on addr, returning once
// ctx is cancelled or the server fails to start.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		return srv.Shutdown(context.Background())
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
