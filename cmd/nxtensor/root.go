package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"strings"
	"syscall"

	"github.com/couchcryptid/nxtensor/internal/adapter/hdf5"
	httpadapter "github.com/couchcryptid/nxtensor/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/nxtensor/internal/adapter/kafka"
	"github.com/couchcryptid/nxtensor/internal/adapter/labeldb"
	"github.com/couchcryptid/nxtensor/internal/adapter/netcdf"
	"github.com/couchcryptid/nxtensor/internal/config"
	"github.com/couchcryptid/nxtensor/internal/observability"
	"github.com/couchcryptid/nxtensor/internal/pipeline"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "nxtensor",
		Short:        "Extract labeled regions from gridded datasets into training tensors",
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "extraction descriptor (YAML); defaults to EXTRACTION_CONFIG")
	flags.String("output-dir", "", "root directory of run outputs; defaults to OUTPUT_DIR")
	flags.String("log-level", "", "debug|info|warn|error; defaults to LOG_LEVEL")
	flags.String("http-addr", "", "health and metrics listen address; empty string disables it")

	viper.SetEnvPrefix("NXTENSOR")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	viper.BindPFlag("config", flags.Lookup("config"))         //nolint:errcheck // flag exists
	viper.BindPFlag("output-dir", flags.Lookup("output-dir")) //nolint:errcheck // flag exists
	viper.BindPFlag("log-level", flags.Lookup("log-level"))   //nolint:errcheck // flag exists
	viper.BindPFlag("http-addr", flags.Lookup("http-addr"))   //nolint:errcheck // flag exists

	root.AddCommand(
		newRunCmd(),
		newPreprocessCmd(),
		newExtractCmd(),
		newAssembleCmd(),
	)
	return root
}

// app is everything a subcommand needs to drive a pipeline.
type app struct {
	cfg      *config.Config
	ex       *config.Extraction
	logger   *slog.Logger
	metrics  *observability.Metrics
	pipeline *pipeline.Pipeline
	closers  []func() error
}

// loadConfig merges the environment with flags and NXTENSOR_* overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if s := viper.GetString("config"); s != "" {
		cfg.ExtractionConfig = s
	}
	if s := viper.GetString("output-dir"); s != "" {
		cfg.OutputDir = s
	}
	if s := viper.GetString("log-level"); s != "" {
		cfg.LogLevel = s
	}
	if viper.IsSet("http-addr") {
		cfg.HTTPAddr = viper.GetString("http-addr")
	}
	if cfg.ExtractionConfig == "" {
		return nil, errors.New("no extraction descriptor: pass --config or set EXTRACTION_CONFIG")
	}
	return cfg, nil
}

func newApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ex, err := config.LoadExtraction(cfg.ExtractionConfig)
	if err != nil {
		return nil, err
	}

	rt := &app{cfg: cfg, ex: ex, logger: logger, metrics: metrics}

	var notifier pipeline.Notifier = kafkaadapter.Discard{}
	if cfg.NotificationsEnabled() {
		n := kafkaadapter.NewNotifier(cfg, logger, metrics)
		rt.closers = append(rt.closers, n.Close)
		notifier = n
		logger.Info("artifact notifications enabled", "topic", cfg.KafkaTopic, "brokers", cfg.KafkaBrokers)
	}

	p, err := pipeline.New(ex, pipeline.Deps{
		Labels:   labeldb.NewFormatLoader(afero.NewOsFs()),
		Opener:   netcdf.NewOpener(cfg.AxisCacheSize, logger, metrics),
		Store:    hdf5.NewStore(cfg.OutputDir, ex.ID, logger),
		Notifier: notifier,
	}, logger, metrics)
	if err != nil {
		return nil, err
	}
	rt.pipeline = p
	return rt, nil
}

// serve runs fn under a signal-aware context with the HTTP server up, then
// shuts everything down.
func (rt *app) serve(fn func(ctx context.Context) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var srv *httpadapter.Server
	if rt.cfg.HTTPAddr != "" {
		srv = httpadapter.NewServer(rt.cfg.HTTPAddr, rt.pipeline, rt.pipeline, rt.logger)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				rt.logger.Error("http server error", "error", err)
			}
		}()
	}

	runErr := fn(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), rt.cfg.ShutdownTimeout)
	defer cancel()
	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			rt.logger.Error("http server shutdown error", "error", err)
		}
	}
	for _, c := range rt.closers {
		if err := c(); err != nil {
			rt.logger.Error("close error", "error", err)
		}
	}

	if runErr != nil {
		return runErr
	}
	rt.logger.Info("shutdown complete")
	return nil
}
