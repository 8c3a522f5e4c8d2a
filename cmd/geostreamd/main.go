// Command geostreamd tails a directory of GeoJSON / NDJSON feed files into
// an in-memory geostream store and serves Prometheus metrics. It is a thin
// operational wrapper; the library does the actual work.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/yaml.v3"

	"github.com/geostreamdb/geostream"
	"github.com/geostreamdb/geostream/ingest"
	"github.com/geostreamdb/geostream/model"
	"github.com/geostreamdb/geostream/source"
)

type config struct {
	// FeedDir is the directory of .ndjson / .geojson files to tail.
	FeedDir string `yaml:"feed_dir"`

	// TTL is how long a feature stays queryable after its last update.
	TTL time.Duration `yaml:"ttl"`

	// SweepInterval controls how often expired features are reclaimed.
	SweepInterval time.Duration `yaml:"sweep_interval"`

	// ListenAddr serves /metrics and /healthz. Empty disables the server.
	ListenAddr string `yaml:"listen_addr"`

	// ListenerWorkers > 0 moves listener fan-out onto a worker pool.
	ListenerWorkers int `yaml:"listener_workers"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// LogUpdates logs every ingested feature at debug level.
	LogUpdates bool `yaml:"log_updates"`
}

func defaultConfig() config {
	return config{
		TTL:           geostream.DefaultTTL,
		SweepInterval: time.Second,
		ListenAddr:    ":9090",
		LogLevel:      "info",
	}
}

func loadConfig(path string) (config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

func (c config) validate() error {
	if c.FeedDir == "" {
		return errors.New("feed_dir is required")
	}
	if c.TTL <= 0 {
		return fmt.Errorf("ttl must be positive, got %s", c.TTL)
	}
	return nil
}

func (c config) logLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	feedDir := flag.String("feed-dir", "", "feed directory (overrides config)")
	flag.Parse()

	if err := run(*configPath, *feedDir); err != nil {
		fmt.Fprintln(os.Stderr, "geostreamd:", err)
		os.Exit(1)
	}
}

func run(configPath, feedDir string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if feedDir != "" {
		cfg.FeedDir = feedDir
	}
	if err := cfg.validate(); err != nil {
		return err
	}

	level, err := cfg.logLevel()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector, err := geostream.NewPrometheusCollector(registry)
	if err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	src := source.NewWatch(cfg.FeedDir, source.WithWatchLogger(logger))

	opts := []geostream.Option{
		geostream.WithTTL(cfg.TTL),
		geostream.WithSweepInterval(cfg.SweepInterval),
		geostream.WithLogger(geostream.NewLogger(logger.Handler())),
		geostream.WithCollector(collector),
	}
	if cfg.ListenerWorkers > 0 {
		opts = append(opts, geostream.WithListenerWorkers(cfg.ListenerWorkers))
	}

	store, err := geostream.Open(ctx, src, opts...)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	if cfg.LogUpdates {
		store.RegisterListener(ingest.ListenerFunc(func(f *model.Feature) {
			logger.Debug("feature ingested", "id", f.ID, "bound", f.Bound())
		}), nil)
	}

	logger.Info("geostreamd started",
		"feed_dir", cfg.FeedDir,
		"ttl", cfg.TTL,
		"listen_addr", cfg.ListenAddr,
	)

	var srv *http.Server
	serverErr := make(chan error, 1)
	if cfg.ListenAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			if store.IngestState() != ingest.StateRunning {
				http.Error(w, "ingestion not running", http.StatusServiceUnavailable)
				return
			}
			fmt.Fprintf(w, "ok features=%d\n", store.Len())
		})
		srv = &http.Server{Addr: cfg.ListenAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				serverErr <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serverErr:
		stop()
		logger.Error("metrics server failed", "error", err)
	}

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}

	if err := store.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	if dropped := src.Dropped(); dropped > 0 {
		logger.Warn("feed records dropped under backpressure", "count", dropped)
	}
	logger.Info("geostreamd stopped")
	return nil
}
