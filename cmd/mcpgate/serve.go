package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/mcpgate/mcpgate/internal/api"
	"github.com/mcpgate/mcpgate/pkg/config"
	"github.com/mcpgate/mcpgate/pkg/logging"
	"github.com/mcpgate/mcpgate/pkg/registry"
	"github.com/mcpgate/mcpgate/pkg/rpc"
	"github.com/mcpgate/mcpgate/pkg/specfile"
	"github.com/mcpgate/mcpgate/pkg/store"
)

var serveTracing bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway daemon",
	Long: `Starts the mcpgate daemon: connects every registered MCP server,
serves the gRPC facade, and optionally the operational HTTP API.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveTracing, "tracing", false, "Export traces via OTLP/HTTP")
}

func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return config.Default(), nil
	}
	return config.Load(configPath)
}

func runServe(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logBuffer := logging.NewRingBuffer(cfg.Logging.BufferSize)
	logCfg := logging.Config{
		Level:     logging.ParseLevel(cfg.Logging.Level),
		Format:    logging.ParseFormat(cfg.Logging.Format),
		Component: "gateway",
		Buffer:    logBuffer,
	}
	if cfg.Logging.File != "" {
		logCfg.Output = logging.NewRotatingWriter(cfg.Logging.File, cfg.Logging.MaxSizeMB, cfg.Logging.MaxBackups, cfg.Logging.MaxAgeDays)
	}
	logger := logging.New(logCfg)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if serveTracing {
		shutdownTracing, err := initTracing(ctx)
		if err != nil {
			return fmt.Errorf("initializing tracing: %w", err)
		}
		defer shutdownTracing()
	}

	st, err := store.OpenSQLite(ctx, cfg.StorePath)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	reg := registry.New(registry.Options{
		Store:            st,
		Logger:           logger,
		HandshakeTimeout: cfg.SSEHandshakeTimeout(),
		StartupTimeout:   cfg.StdioStartupTimeout(),
	})
	if err := reg.Start(ctx); err != nil {
		return fmt.Errorf("starting registry: %w", err)
	}
	defer reg.Shutdown()

	if cfg.SpecFile != "" {
		if err := startSpecFileSync(ctx, cfg.SpecFile, reg, logger); err != nil {
			return err
		}
	}

	svc := rpc.NewService(reg, logger)
	grpcServer := rpc.NewServer(svc, rpc.ServerOptions{
		Logger:       logger,
		CallDeadline: cfg.GRPCTimeout(),
	})

	lis, err := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.GRPC.Host, cfg.GRPC.Port))
	if err != nil {
		return fmt.Errorf("listening on grpc port: %w", err)
	}

	grpcDone := make(chan error, 1)
	go func() { grpcDone <- grpcServer.Serve(lis) }()
	logger.Info("grpc facade listening", "port", cfg.GRPC.Port)

	var opsServer *http.Server
	if cfg.API.Enabled {
		apiSrv := api.NewServer(reg, logger)
		apiSrv.SetLogBuffer(logBuffer)
		apiSrv.SetAuth(cfg.API.Token)
		opsServer = &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.API.Port),
			Handler: apiSrv.Handler(),
		}
		go func() {
			if err := opsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("ops api server failed", "error", err)
			}
		}()
		logger.Info("ops api listening", "port", cfg.API.Port)
	}

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-grpcDone:
		return fmt.Errorf("grpc server stopped: %w", err)
	}

	// Registry teardown runs before GracefulStop returns control so late
	// facade calls observe ErrShuttingDown rather than half-closed drivers.
	if opsServer != nil {
		drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = opsServer.Shutdown(drainCtx)
	}
	reg.Shutdown()
	grpcServer.GracefulStop()
	logger.Info("gateway stopped")
	return nil
}

// initTracing sets the global tracer provider exporting OTLP over HTTP.
// Endpoint and headers come from the standard OTEL_EXPORTER_OTLP_* env vars.
func initTracing(ctx context.Context) (func(), error) {
	exporter, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, err
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName("mcpgate"),
		semconv.ServiceVersion(version),
	))
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(shutdownCtx)
	}, nil
}

// startSpecFileSync applies the spec file once, then keeps applying it on
// every change until ctx is cancelled.
func startSpecFileSync(ctx context.Context, path string, reg *registry.Registry, logger *slog.Logger) error {
	f, err := specfile.Load(path)
	if err != nil {
		return fmt.Errorf("loading spec file: %w", err)
	}
	if err := syncSpecs(ctx, reg, f, logger); err != nil {
		return err
	}

	watcher := specfile.NewWatcher(path, logger, func(f *specfile.File) error {
		return syncSpecs(ctx, reg, f, logger)
	})
	go func() {
		if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("spec file watcher stopped", "error", err)
		}
	}()
	return nil
}

// syncSpecs reconciles the registry with the declarative server list.
func syncSpecs(ctx context.Context, reg *registry.Registry, f *specfile.File, logger *slog.Logger) error {
	current, err := reg.ListSpecs(ctx)
	if err != nil {
		return err
	}
	diff := specfile.ComputeDiff(current, f.Specs())
	if diff.IsEmpty() {
		return nil
	}
	logger.Info("applying spec file change", "diff", diff.Summary())

	for _, spec := range diff.Removed {
		if err := reg.Unregister(ctx, spec.ID); err != nil {
			logger.Warn("unregister failed", "server", spec.ID, "error", err)
		}
	}
	for _, spec := range append(diff.Added, diff.Modified...) {
		if err := reg.Register(ctx, spec); err != nil {
			logger.Warn("register failed", "server", spec.ID, "error", err)
		}
	}
	return nil
}
