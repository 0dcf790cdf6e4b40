package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/warren/internal/config"
	"github.com/cuemby/warren/internal/gateway"
	"github.com/cuemby/warren/internal/gateway/commands"
	"github.com/cuemby/warren/internal/log"
	"github.com/cuemby/warren/internal/metrics"
	"github.com/cuemby/warren/internal/server"
	"github.com/cuemby/warren/internal/store"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "gateway",
	Short:   "A RESP2 gateway fronting a transactional key-value store",
	Version: Version,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway listener",
	RunE:  runServe,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("gateway version %s (%s)\n", Version, Commit))
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("bind", "", "Bind address (overrides GATEWAY_BIND/default)")
	serveCmd.Flags().Int("port", 0, "Listen port (overrides GATEWAY_PORT/default)")
	serveCmd.Flags().String("data-dir", "", "Data directory (overrides GATEWAY_DATA_DIR/default)")
	serveCmd.Flags().String("log-level", "", "Log level: debug, info, warn, error")
	serveCmd.Flags().Bool("log-json", false, "Output logs in JSON format")
	serveCmd.Flags().Int64("lock-ttl-ms", 0, "Abandoned-lock steal TTL, in milliseconds")
	serveCmd.Flags().Int64("lock-timeout-ms", 0, "Lock acquire timeout, in milliseconds")
	serveCmd.Flags().String("metrics-addr", "", "Prometheus metrics listen address")
	serveCmd.Flags().String("config", "", "Path to an optional YAML config file")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := config.Defaults()

	if path, _ := cmd.Flags().GetString("config"); path != "" {
		var err error
		cfg, err = config.LoadFile(path, cfg)
		if err != nil {
			return err
		}
	}

	cfg = config.ApplyEnv(cfg)
	applyFlagOverrides(cmd, &cfg)

	log.Init(log.Config{
		Level:      log.Level(cfg.LogLevel),
		JSONOutput: cfg.LogJSON,
	})

	st, err := store.Open(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	baseGateway := gateway.New(st, cfg.LockTTL, cfg.LockTimeout)
	dispatch := gateway.NewDispatch(
		commands.Connection{},
		commands.String{},
		commands.Server{},
		commands.List{},
		commands.Set{},
	)
	listener := server.New(baseGateway, dispatch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Logger.Info().Msg("shutdown signal received")
		cancel()
	}()

	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.MetricsAddr); err != nil {
				log.Logger.Error().Err(err).Msg("metrics server stopped")
			}
		}()
	}

	addr := cfg.Addr()
	log.Logger.Info().Str("addr", addr).Msg("gateway starting")
	if err := listener.ListenAndServe(ctx, addr); err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	time.Sleep(100 * time.Millisecond)
	log.Logger.Info().Msg("gateway stopped")
	return nil
}

func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) {
	if v, _ := cmd.Flags().GetString("bind"); v != "" {
		cfg.Bind = v
	}
	if v, _ := cmd.Flags().GetInt("port"); v != 0 {
		cfg.Port = v
	}
	if v, _ := cmd.Flags().GetString("data-dir"); v != "" {
		cfg.DataDir = v
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.LogLevel = v
	}
	if v, _ := cmd.Flags().GetBool("log-json"); v {
		cfg.LogJSON = v
	}
	if v, _ := cmd.Flags().GetInt64("lock-ttl-ms"); v != 0 {
		cfg.LockTTL = time.Duration(v) * time.Millisecond
	}
	if v, _ := cmd.Flags().GetInt64("lock-timeout-ms"); v != 0 {
		cfg.LockTimeout = time.Duration(v) * time.Millisecond
	}
	if v, _ := cmd.Flags().GetString("metrics-addr"); v != "" {
		cfg.MetricsAddr = v
	}
}
