package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"ocorrencias/config"
	"ocorrencias/db"
	ohttp "ocorrencias/http"
	"ocorrencias/logger"
	"ocorrencias/ml"
	"ocorrencias/monitoring"
)

var (
	configPath string
	host       string
	port       int
)

var rootCmd = &cobra.Command{
	Use:           "ocorrencias",
	Short:         "Serve occurrence-type predictions over HTTP.",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if cmd.Flags().Changed("host") {
			cfg.HTTP.Host = host
		}
		if cmd.Flags().Changed("port") {
			cfg.HTTP.Port = port
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		return run(cfg)
	},
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "config.yaml", "path to the YAML config file")
	rootCmd.Flags().StringVar(&host, "host", "0.0.0.0", "address to bind")
	rootCmd.Flags().IntVar(&port, "port", 5001, "port to bind")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	restore, err := logger.Init(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	defer restore()
	log := zap.S()

	// 1. Load the trained artifact; refuse to start without one.
	artifact, err := ml.LoadArtifact(cfg.Model.Path)
	if err != nil {
		if errors.Is(err, ml.ErrModelNotTrained) {
			log.Errorw("no trained model, run train_model first", "path", cfg.Model.Path)
		}
		return err
	}
	predictor, err := ml.NewPredictor(artifact)
	if err != nil {
		return err
	}
	info := predictor.Info()
	log.Infow("model loaded",
		"path", cfg.Model.Path,
		"classes", len(info.Classes),
		"locais", len(info.Locais),
		"trained_at", info.TrainedAt,
	)

	// 2. Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := monitoring.NewMetrics(reg)
	metrics.ObserveModel(len(info.Classes), info.TrainedAt)

	opts := ohttp.HandlerOptions{
		Metrics:        metrics,
		CacheSize:      cfg.Cache.Size,
		LogPredictions: cfg.Database.LogPredictions,
	}

	// 3. Optional SQLite log
	if cfg.Database.Path != "" {
		store, err := db.Open(cfg.Database.Path, nil)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer store.Close()
		opts.Store = store
		log.Infow("database opened", "path", cfg.Database.Path)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 4. Live prediction feed
	feed := monitoring.NewPredictionFeed(nil)
	go feed.Run(ctx)
	opts.Feed = feed

	// 5. Report, never reload, when the artifact is replaced on disk.
	watcher, err := monitoring.NewArtifactWatcher(cfg.Model.Path, metrics, func(ev fsnotify.Event) {
		feed.Publish(monitoring.EventArtifactStale, gin.H{"path": cfg.Model.Path, "op": ev.Op.String()})
	})
	if err != nil {
		log.Warnw("artifact watcher disabled", "error", err)
	} else {
		defer watcher.Close()
		watcher.Start(ctx)
		opts.Watcher = watcher
	}

	// 6. HTTP server
	gin.SetMode(gin.ReleaseMode)
	handlers, err := ohttp.NewHandlers(predictor, opts)
	if err != nil {
		return err
	}
	server := ohttp.NewServer(cfg.HTTP, handlers, reg)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	// 7. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		log.Infow("shutting down", "signal", sig.String())
	}

	if err := server.Stop(); err != nil {
		log.Warnw("server forced to shutdown", "error", err)
	}
	log.Info("exiting")
	return nil
}
