package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"github.com/contentpipe/contentpipe/internal/api"
	"github.com/contentpipe/contentpipe/pkg/contentpipe"
	"github.com/contentpipe/contentpipe/pkg/contentpipe/config"
	"github.com/contentpipe/contentpipe/pkg/contentpipe/logger"
	"github.com/contentpipe/contentpipe/pkg/contentpipe/upload"
	"github.com/contentpipe/contentpipe/pkg/contentpipe/webhook"
)

// HTTPConfig is the server envelope; everything pipeline-related comes from
// config.WithEnv.
type HTTPConfig struct {
	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" env-default:"30s"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" env-default:"10s"`
}

func main() {
	var httpCfg HTTPConfig
	if err := cleanenv.ReadEnv(&httpCfg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to read http configuration: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(config.WithEnv(""))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := cfg.BuildLogger()

	if err := run(cfg, httpCfg, log); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.ServerConfig, httpCfg HTTPConfig, log *logger.Logger) error {
	repo, err := cfg.BuildRepository()
	if err != nil {
		return fmt.Errorf("build repository: %w", err)
	}

	blobs, err := cfg.BuildBlobStore()
	if err != nil {
		return fmt.Errorf("build blob store: %w", err)
	}

	broker, err := cfg.BuildQueue(log)
	if err != nil {
		return fmt.Errorf("build queue: %w", err)
	}

	var sink contentpipe.EventSink
	var dispatcher *webhook.Dispatcher
	if cfg.EnableWebhooks {
		dispatcher = webhook.NewDispatcher(repo, broker, log)
		sink = dispatcher
	}

	svc, err := cfg.BuildService(repo, blobs, broker, sink, log)
	if err != nil {
		return fmt.Errorf("build service: %w", err)
	}

	sessions, err := cfg.BuildSessionStore()
	if err != nil {
		return fmt.Errorf("build session store: %w", err)
	}
	assembler := upload.New(sessions, blobs, svc, cfg.UploadPolicy(), log)

	// Workers run until shutdown cancels their context
	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	if cfg.EnableDerivedAssets {
		if err := broker.Consume(workerCtx, contentpipe.TopicDerivedGenerate, contentpipe.NewDerivedAssetHandler(svc, log)); err != nil {
			return fmt.Errorf("start derived-asset workers: %w", err)
		}
	}
	if cfg.EnableWebhooks {
		handler := webhook.NewDeliveryHandler(repo, repo, webhook.NewHTTPClient(), log)
		if err := broker.Consume(workerCtx, webhook.TopicDeliver, handler); err != nil {
			return fmt.Errorf("start webhook workers: %w", err)
		}
	}

	server := api.NewServer(svc, assembler, repo, log)
	httpServer := &http.Server{
		Addr:        fmt.Sprintf(":%s", cfg.Port),
		Handler:     server.Routes(),
		ReadTimeout: httpCfg.ReadTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting",
			"port", cfg.Port, "env", cfg.Environment,
			"database", cfg.DatabaseType, "storage", cfg.StorageType, "queue", cfg.QueueType)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		log.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), httpCfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}

	// Stop accepting jobs, then drain workers
	stopWorkers()
	if err := broker.Close(); err != nil {
		log.Warn("broker close failed", "error", err)
	}

	log.Info("server exited")
	return nil
}
