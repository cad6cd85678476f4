package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"starweaved/internal/common/fsutil"
	"starweaved/internal/config"
	"starweaved/internal/engine"
	"starweaved/internal/httpapi"
	"starweaved/internal/manager"
	"starweaved/internal/registry"
)

func newRootCmd() *cobra.Command {
	var (
		cfgPath        string
		addr           string
		modelDir       string
		defaultModel   string
		maxResident    int
		maxDiskGB      float64
		intervalS      int
		deviceMemBytes int64
		logLevel       string
		corsOrigins    []string
	)

	cmd := &cobra.Command{
		Use:   "starweaved",
		Short: "Image generation daemon with model lifecycle management",
		Long: "starweaved serves text-to-image generation over HTTP while managing\n" +
			"which models are resident in accelerator memory and which weight\n" +
			"caches are kept on disk under a size quota.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Config{}
			if cfgPath != "" {
				loaded, err := config.Load(cfgPath)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				cfg = loaded
			}
			// Flags override the config file when set explicitly.
			if cmd.Flags().Changed("addr") || cfg.Addr == "" {
				cfg.Addr = addr
			}
			if cmd.Flags().Changed("model-dir") || cfg.ModelDir == "" {
				cfg.ModelDir = modelDir
			}
			if cmd.Flags().Changed("default-model") {
				cfg.DefaultModel = defaultModel
			}
			if cmd.Flags().Changed("max-resident") {
				cfg.MaxResidentModels = maxResident
			}
			if cmd.Flags().Changed("max-disk-cache-gb") {
				cfg.MaxDiskCacheGB = maxDiskGB
			}
			if cmd.Flags().Changed("maintenance-interval") {
				cfg.MaintenanceIntervalS = intervalS
			}
			if cmd.Flags().Changed("device-memory-bytes") {
				cfg.DeviceMemoryBytes = deviceMemBytes
			}
			if cmd.Flags().Changed("log-level") {
				cfg.LogLevel = logLevel
			}
			if cmd.Flags().Changed("cors-origins") {
				cfg.CORSEnabled = len(corsOrigins) > 0
				cfg.CORSOrigins = corsOrigins
			}
			cfg = config.Defaults(cfg)
			return run(cfg)
		},
	}

	cmd.Flags().StringVar(&cfgPath, "config", "", "Optional config file (.yaml, .json or .toml)")
	cmd.Flags().StringVar(&addr, "addr", ":8080", "HTTP listen address, e.g. :8080")
	cmd.Flags().StringVar(&modelDir, "model-dir", "./models", "Directory for model weight caches and metadata")
	cmd.Flags().StringVar(&defaultModel, "default-model", "", "Default model id when request omits model")
	cmd.Flags().IntVar(&maxResident, "max-resident", 2, "Maximum models kept in accelerator memory")
	cmd.Flags().Float64Var(&maxDiskGB, "max-disk-cache-gb", 10, "Disk cache quota in GB")
	cmd.Flags().IntVar(&intervalS, "maintenance-interval", 300, "Maintenance sweep interval in seconds")
	cmd.Flags().Int64Var(&deviceMemBytes, "device-memory-bytes", 0, "Accelerator memory capacity override in bytes (0 probes the engine)")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	cmd.Flags().StringSliceVar(&corsOrigins, "cors-origins", nil, "Allowed CORS origins (enables CORS when set)")
	return cmd
}

func run(cfg config.Config) error {
	logger := newLogger(cfg.LogLevel)

	modelDir, err := fsutil.ExpandHome(cfg.ModelDir)
	if err != nil {
		return fmt.Errorf("model dir: %w", err)
	}

	reg, err := registry.New(registry.Builtin())
	if err != nil {
		return err
	}

	// The diffusion engine runs out of process; the stub keeps the full
	// lifecycle exercisable until a real backend is wired in.
	eng := engine.NewStubEngine()
	if cfg.DeviceMemoryBytes > 0 {
		eng.SetAccelerator(cfg.DeviceMemoryBytes)
	}

	mgr, err := manager.NewWithConfig(manager.ManagerConfig{
		Registry:       reg.All(),
		Engine:         eng,
		ModelDir:       modelDir,
		DefaultModel:   cfg.DefaultModel,
		MaxResident:    cfg.MaxResidentModels,
		DiskQuotaBytes: cfg.MaxDiskCacheBytes(),
		SweepInterval:  cfg.MaintenanceInterval(),
		Logger:         &logger,
	})
	if err != nil {
		return err
	}
	mgr.Start()

	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()
	httpapi.SetBaseContext(baseCtx)
	httpapi.SetLogger(logger)
	if cfg.CORSEnabled {
		httpapi.SetCORSOptions(true, cfg.CORSOrigins,
			[]string{"GET", "POST", "OPTIONS"},
			[]string{"Accept", "Content-Type"})
	}

	srv := &http.Server{Addr: cfg.Addr, Handler: httpapi.NewMux(mgr)}
	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", cfg.Addr).
			Str("model_dir", modelDir).
			Str("default_model", mgr.DefaultModel()).
			Int("max_resident", cfg.MaxResidentModels).
			Float64("max_disk_cache_gb", cfg.MaxDiskCacheGB).
			Msg("starweaved listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-stop:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errCh:
		mgr.Close()
		return err
	}

	cancelBase()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("graceful http shutdown failed")
	}
	return mgr.Close()
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
}
