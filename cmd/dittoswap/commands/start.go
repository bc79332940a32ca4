package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittoswap/internal/logger"
	"github.com/marmos91/dittoswap/internal/telemetry"
	"github.com/marmos91/dittoswap/pkg/config"
	"github.com/marmos91/dittoswap/pkg/controlplane/api"
	"github.com/marmos91/dittoswap/pkg/controlplane/runtime"
	"github.com/marmos91/dittoswap/pkg/metrics"

	// Import prometheus metrics to register init() functions
	_ "github.com/marmos91/dittoswap/pkg/metrics/prometheus"
)

var pidFile string

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the DittoSwap daemon",
	Long: `Start the DittoSwap daemon in the foreground.

The daemon opens the configured backing device, starts the discharge
worker and serves the control API. Run it under a process supervisor.

Edits to cache.grace_period in the configuration file are applied without
a restart.

Examples:
  # Start with the default config
  dittoswap start

  # Start with a custom config file
  dittoswap start --config /etc/dittoswap/config.yaml

  # Override settings from the environment
  DITTOSWAP_LOGGING_LEVEL=DEBUG DITTOSWAP_CACHE_GRACE_PERIOD=30s dittoswap start`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().StringVar(&pidFile, "pid-file", "", "Write the process ID to this file")
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}
	if err := InitLogger(cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "dittoswap",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetryShutdown(shutdownCtx); err != nil {
			logger.Error("Telemetry shutdown error", logger.Err(err))
		}
	}()

	profilingShutdown, err := telemetry.InitProfiling(telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "dittoswap",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("Profiling shutdown error", logger.Err(err))
		}
	}()

	logger.Info("Configuration loaded", logger.Path(getConfigSource(GetConfigFile())),
		"level", cfg.Logging.Level, "telemetry", telemetry.IsEnabled(),
		"profiling", telemetry.IsProfilingEnabled())

	// The registry must exist before the runtime builds its metric sinks.
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
	}

	rt, err := runtime.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize runtime: %w", err)
	}

	if cfg.Metrics.Enabled {
		rt.SetMetricsServer(metrics.NewServer(cfg.Metrics.Port))
		logger.Info("Metrics enabled", "port", cfg.Metrics.Port)
	} else {
		logger.Info("Metrics collection disabled")
	}

	if cfg.ControlPlane.IsEnabled() {
		apiServer, err := api.NewServer(cfg.ControlPlane, rt.APIDependencies())
		if err != nil {
			_ = rt.Close()
			return fmt.Errorf("failed to create API server: %w", err)
		}
		rt.SetAPIServer(apiServer)
		logger.Info("API server configured", "port", apiServer.Port(), "auth", apiServer.AuthEnabled())
	}

	watchPath := GetConfigFile()
	if watchPath == "" {
		watchPath = config.GetDefaultConfigPath()
	}
	if err := config.WatchGrace(watchPath, cfg.Cache.GracePeriod, func(d time.Duration) {
		if err := rt.Cache().SetGracePeriod(d); err != nil {
			logger.Warn("Rejected grace period from configuration", logger.Grace(d), logger.Err(err))
		}
	}); err != nil {
		logger.Warn("Configuration file not watched, grace period changes need the API",
			logger.Path(watchPath), logger.Err(err))
	}

	if pidFile != "" {
		if err := os.WriteFile(pidFile, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0644); err != nil {
			_ = rt.Close()
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		defer func() { _ = os.Remove(pidFile) }()
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "DittoSwap %s - instance %s on %s device\n",
		Version, rt.Instance(), rt.DeviceKind())

	return rt.Serve(ctx)
}
