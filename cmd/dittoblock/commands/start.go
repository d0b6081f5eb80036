package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittoblock/internal/logger"
	"github.com/marmos91/dittoblock/internal/telemetry"
	"github.com/marmos91/dittoblock/pkg/config"
	"github.com/marmos91/dittoblock/pkg/engine/meta"
	"github.com/marmos91/dittoblock/pkg/engine/solo"
	"github.com/marmos91/dittoblock/pkg/metrics"
	promMetrics "github.com/marmos91/dittoblock/pkg/metrics/prometheus"
	"github.com/marmos91/dittoblock/pkg/volmgr"
	"github.com/marmos91/dittoblock/pkg/volmgr/api"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the DittoBlock service",
	Long: `Start the DittoBlock volume manager service in the foreground.

The service formats and attaches the configured storage devices, recovers
any volumes persisted in the metadata store, and serves the management API.

Use --config to specify a custom configuration file, or it will use the
default location at $XDG_CONFIG_HOME/dittoblock/config.yaml.

Examples:
  # Start with default config location
  dittoblock start

  # Start with custom config file
  dittoblock start --config /etc/dittoblock/config.yaml

  # Start with environment variable overrides
  DITTOBLOCK_LOGGING_LEVEL=DEBUG dittoblock start`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if cfg.API.JWTSecret == "" {
		return fmt.Errorf("api.jwt_secret is required to start the service (set it in the config file or via %s)", config.EnvJWTSecret)
	}

	if err := InitLogger(cfg); err != nil {
		return err
	}

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize OpenTelemetry (if enabled)
	telemetryShutdown, err := telemetry.Init(ctx, cfg.TelemetryConfig("dittoblock", Version))
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(ctx); err != nil {
			logger.Error("telemetry shutdown error", "error", err)
		}
	}()

	// Initialize Pyroscope profiling (if enabled)
	profilingCfg := telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "dittoblock",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	}
	profilingShutdown, err := telemetry.InitProfiling(profilingCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", "error", err)
		}
	}()

	logger.Info("Log level", "level", cfg.Logging.Level, "format", cfg.Logging.Format)
	logger.Info("Configuration loaded", "source", getConfigSource(GetConfigFile()))
	if telemetry.IsEnabled() {
		logger.Info("Telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	} else {
		logger.Info("Telemetry disabled")
	}

	// Initialize metrics before the manager so the handles it creates
	// are live ones
	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		metricsServer = &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
			Handler: mux,
		}
		go func() {
			logger.Info("Metrics server listening", "port", cfg.Metrics.Port)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("Metrics server error", "error", err)
			}
		}()
	} else {
		logger.Info("Metrics collection disabled")
	}

	// Open the metadata store
	store, err := meta.Open(cfg.Engine.MetaDir)
	if err != nil {
		return fmt.Errorf("failed to open metadata store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Metadata store close error", "error", err)
		}
	}()
	store.SetMetrics(promMetrics.NewMetaMetrics())

	engCfg, err := cfg.EngineConfig()
	if err != nil {
		return err
	}
	mgrCfg, err := cfg.ManagerConfig()
	if err != nil {
		return err
	}

	// The manager is the engine's application callback, so it is built
	// first and the engine bound afterwards.
	mgr := volmgr.New(mgrCfg, nil, store, promMetrics.NewVolumeMetrics())
	eng := solo.New(engCfg, store, mgr)
	mgr.BindEngine(eng)

	if err := mgr.Start(ctx); err != nil {
		return fmt.Errorf("failed to start volume manager: %w", err)
	}

	apiServer, err := api.NewServer(cfg.ServerConfig(), mgr)
	if err != nil {
		return fmt.Errorf("failed to create API server: %w", err)
	}
	logger.Info("API server configured", "port", cfg.API.Port)

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- apiServer.Start()
	}()

	// Wait for interrupt signal or server error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Service is running. Press Ctrl+C to stop.")

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("Shutdown signal received, initiating graceful shutdown")

	case err := <-serverDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("API server error", "error", err)
			return err
		}
	}

	return shutdown(cfg.ShutdownTimeout, apiServer, mgr, metricsServer, serverDone)
}

// shutdown drains the service in dependency order: the API stops accepting
// requests first, then the manager waits for outstanding work and persists
// the graceful-shutdown flag, then the metrics server goes away.
func shutdown(timeout time.Duration, apiServer *api.Server, mgr *volmgr.Manager, metricsServer *http.Server, serverDone <-chan error) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := apiServer.Shutdown(ctx); err != nil {
		logger.Error("API server shutdown error", "error", err)
	}
	select {
	case <-serverDone:
	case <-ctx.Done():
	}

	if err := mgr.Shutdown(ctx); err != nil {
		logger.Error("Volume manager shutdown error", "error", err)
		return err
	}

	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			logger.Error("Metrics server shutdown error", "error", err)
		}
	}

	logger.Info("Service stopped gracefully")
	return nil
}
