// Reviewd is the compliance document review daemon.
//
// It watches a drop directory for documents, runs review sessions
// through the staged workflow (discover, map, extract, validate,
// report), and serves the session API over HTTP.
//
// Usage:
//
//	# Start with defaults
//	reviewd
//
//	# Point at a config file
//	reviewd -config /etc/reviewd/config.yaml
//
//	# Configure via environment
//	REVIEWD_SERVER_ADDR=:7070 REVIEWD_LLM_API_KEY=sk-... reviewd
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/veridocs/reviewd/internal/cache"
	"github.com/veridocs/reviewd/internal/classify"
	"github.com/veridocs/reviewd/internal/config"
	"github.com/veridocs/reviewd/internal/convert"
	"github.com/veridocs/reviewd/internal/extractor"
	"github.com/veridocs/reviewd/internal/httpapi"
	"github.com/veridocs/reviewd/internal/intake"
	"github.com/veridocs/reviewd/internal/llm"
	"github.com/veridocs/reviewd/internal/logging"
	"github.com/veridocs/reviewd/internal/session"
	"github.com/veridocs/reviewd/internal/stages"
	"github.com/veridocs/reviewd/internal/store"
	"github.com/veridocs/reviewd/internal/telemetry"
	"github.com/veridocs/reviewd/internal/validation"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("reviewd\nVersion:    %s\nCommit:     %s\nBuild Date: %s\n", version, gitCommit, buildDate)
		os.Exit(0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

// run wires the services and blocks until context cancellation.
func run(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logger, err := logging.New(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting reviewd",
		zap.String("version", version),
		zap.String("addr", cfg.Server.Addr),
		zap.String("drop_dir", cfg.Intake.Dir),
	)

	// Providers must be installed before any service creates its
	// instruments, or those land on the no-op globals.
	telCfg := cfg.Telemetry
	if telCfg.ServiceVersion == "" || telCfg.ServiceVersion == "dev" {
		telCfg.ServiceVersion = version
	}
	tel, err := telemetry.New(ctx, telCfg, logger)
	if err != nil {
		return fmt.Errorf("initialize telemetry: %w", err)
	}
	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			logger.Warn("telemetry shutdown", zap.Error(err))
		}
	}()

	fileStore, err := store.New(cfg.Store, logger)
	if err != nil {
		return fmt.Errorf("initialize store: %w", err)
	}

	var llmClient llm.Client
	var extractors []extractor.Extractor
	if cfg.LLM.APIKey == "" {
		logger.Warn("no llm api key configured; extract_evidence will produce no fields")
	} else {
		llmClient, err = llm.New(cfg.LLM)
		if err != nil {
			return fmt.Errorf("initialize llm client: %w", err)
		}

		contentCache := cache.New(cfg.Cache)
		for _, family := range extractor.AllFamilies() {
			ex, err := extractor.New(family, llmClient, contentCache, cfg.Extractor, logger)
			if err != nil {
				return fmt.Errorf("initialize %s extractor: %w", family, err)
			}
			extractors = append(extractors, ex)
		}
	}

	sessions, err := session.NewService(fileStore, logger)
	if err != nil {
		return fmt.Errorf("initialize session service: %w", err)
	}

	err = stages.RegisterAll(sessions, stages.Deps{
		Store:      fileStore,
		Converter:  convert.New(cfg.Convert, logger),
		Classifier: classify.New(cfg.Classify),
		Extractors: extractors,
		Engine:     validation.NewEngine(cfg.Validation, llmClient, logger),
		DropDir:    cfg.Intake.Dir,
		Logger:     logger,
	})
	if err != nil {
		return fmt.Errorf("register stage handlers: %w", err)
	}

	watcher, err := intake.NewWatcher(cfg.Intake, logger)
	if err != nil {
		return fmt.Errorf("initialize intake watcher: %w", err)
	}
	if err := watcher.Start(ctx); err != nil {
		return fmt.Errorf("start intake watcher: %w", err)
	}
	defer watcher.Stop()

	go func() {
		for dropped := range watcher.Events() {
			logger.Info("document dropped, ready for next discover run",
				zap.String("path", dropped.Path),
			)
		}
	}()

	api, err := httpapi.NewServer(sessions, fileStore, logger, cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("initialize http server: %w", err)
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{Addr: cfg.Server.MetricsAddr, Handler: metricsMux}

	errCh := make(chan error, 2)
	go func() {
		if err := api.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		logger.Info("starting metrics listener", zap.String("addr", cfg.Server.MetricsAddr))
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := api.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown", zap.Error(err))
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("metrics server shutdown", zap.Error(err))
	}

	return nil
}
