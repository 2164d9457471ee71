// Package main implements the entry point for the brickflow service, the
// management plane for pipe definitions: persistence over NATS JetStream
// KV, an HTTP/WebSocket gateway and Prometheus metrics.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"golang.org/x/sync/errgroup"

	"github.com/brickflow/brickflow/brick"
	"github.com/brickflow/brickflow/config"
	"github.com/brickflow/brickflow/gateway"
	"github.com/brickflow/brickflow/health"
	"github.com/brickflow/brickflow/metric"
	"github.com/brickflow/brickflow/pipestore"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "brickflow"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}
	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil
	}

	cfg, err := loadConfig(cliCfg)
	if err != nil {
		return err
	}

	logger := cfg.Logging.Logger()
	slog.SetDefault(logger)

	if cliCfg.Validate {
		slog.Info("Configuration is valid")
		return nil
	}

	slog.Info("Starting brickflow",
		"version", Version,
		"build_time", BuildTime,
		"environment", cfg.Service.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	monitor := health.NewMonitor()

	metricsRegistry := metric.NewMetricsRegistry()
	coreMetrics := metric.NewMetrics()
	if err := coreMetrics.RegisterAll(metricsRegistry, cfg.Service.Name); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	nc, err := connectNATS(cfg, logger, monitor)
	if err != nil {
		return err
	}
	defer nc.Drain()

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("create JetStream context: %w", err)
	}

	store, err := pipestore.Open(ctx, js,
		pipestore.WithLogger(logger),
		pipestore.WithMetrics(coreMetrics))
	if err != nil {
		return fmt.Errorf("open pipe store: %w", err)
	}
	monitor.UpdateHealthy("store", "bucket ready")

	registry := brick.NewRegistry()
	if err := registerBuiltins(registry); err != nil {
		return fmt.Errorf("register builtin bricks: %w", err)
	}
	slog.Info("brick factories registered", "count", len(registry.Registrations()))

	server, err := gateway.NewServer(cfg.Gateway, store, registry,
		gateway.WithLogger(logger),
		gateway.WithMonitor(monitor))
	if err != nil {
		return fmt.Errorf("create gateway: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(gctx)
	})
	g.Go(func() error {
		return runMetricsServer(gctx, cfg.Gateway.MetricsAddr, metricsRegistry, logger)
	})

	slog.Info("brickflow started")
	err = g.Wait()

	slog.Info("brickflow shutdown complete")
	return err
}

// connectNATS establishes the NATS connection and keeps the health
// monitor informed about its state
func connectNATS(cfg *config.Config, logger *slog.Logger, monitor *health.Monitor) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name(cfg.Service.Name),
		nats.MaxReconnects(cfg.NATS.MaxReconnects),
		nats.ReconnectWait(cfg.NATS.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("NATS disconnected", "error", err)
			monitor.UpdateDegraded("nats", "disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("NATS reconnected")
			monitor.UpdateHealthy("nats", "connected")
		}),
	}
	if cfg.NATS.Username != "" {
		opts = append(opts, nats.UserInfo(cfg.NATS.Username, cfg.NATS.Password))
	}
	if cfg.NATS.Token != "" {
		opts = append(opts, nats.Token(cfg.NATS.Token))
	}

	slog.Info("Connecting to NATS", "urls", len(cfg.NATS.URLs))
	nc, err := nats.Connect(strings.Join(cfg.NATS.URLs, ","), opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	monitor.UpdateHealthy("nats", "connected")
	return nc, nil
}

// runMetricsServer serves the Prometheus exposition endpoint until the
// context is canceled
func runMetricsServer(ctx context.Context, addr string, registry *metric.MetricsRegistry,
	logger *slog.Logger) error {

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", registry.Handler())

	srv := &http.Server{
		Addr:        addr,
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// loadConfig loads the YAML config file, or the built-in defaults when no
// path was given
func loadConfig(cliCfg *CLIConfig) (*config.Config, error) {
	if cliCfg.ConfigPath == "" {
		cfg := config.Default()
		applyOverrides(cfg, cliCfg)
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
		return cfg, nil
	}

	cfg, err := config.Load(cliCfg.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	applyOverrides(cfg, cliCfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyOverrides lets CLI flags win over the config file
func applyOverrides(cfg *config.Config, cliCfg *CLIConfig) {
	if cliCfg.LogLevel != "" {
		cfg.Logging.Level = cliCfg.LogLevel
	}
	if cliCfg.LogFormat != "" {
		cfg.Logging.Format = cliCfg.LogFormat
	}
}
