package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dunamismax/eventdesk/internal/api"
	"github.com/dunamismax/eventdesk/internal/bootstrap"
	"github.com/dunamismax/eventdesk/internal/config"
	"github.com/dunamismax/eventdesk/internal/importer"
	"github.com/dunamismax/eventdesk/internal/pipeline"
	"github.com/dunamismax/eventdesk/internal/queue"
	"github.com/dunamismax/eventdesk/internal/uploader"
)

func main() {
	logger := bootstrap.NewLogger("api")
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	ctx := context.Background()
	shutdownTracing, err := bootstrap.Tracing(ctx, cfg, "eventdesk-api", logger)
	if err != nil {
		logger.Fatalf("setup tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Printf("tracing shutdown error: %v", err)
		}
	}()

	if err := pipeline.Startup(0); err != nil {
		logger.Fatalf("start image runtime: %v", err)
	}
	defer pipeline.Shutdown()

	normalizer, err := pipeline.NewNormalizer()
	if err != nil {
		logger.Fatalf("create normalizer: %v", err)
	}

	stores, err := bootstrap.OpenStores(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatalf("open stores: %v", err)
	}
	defer func() {
		if err := stores.Close(); err != nil {
			logger.Printf("store close error: %v", err)
		}
	}()

	objects, err := bootstrap.OpenStorage(ctx, cfg.Storage)
	if err != nil {
		logger.Fatalf("open storage: %v", err)
	}
	logger.Printf("storage ready endpoint=%s bucket=%s", cfg.Storage.Endpoint, objects.Bucket())
	cms, err := bootstrap.NewCMSClient(cfg.CMS)
	if err != nil {
		logger.Fatalf("create cms client: %v", err)
	}

	browser, err := bootstrap.MediaBrowser(cfg.Media, cms, objects)
	if err != nil {
		logger.Fatalf("create media browser: %v", err)
	}

	posterProcessor, err := pipeline.NewProcessor(nil, normalizer, pipeline.CMSEmitter{Client: cms}, pipeline.Reject)
	if err != nil {
		logger.Fatalf("create poster processor: %v", err)
	}
	posters, err := uploader.New(posterProcessor, cfg.Upload.Concurrency, logger)
	if err != nil {
		logger.Fatalf("create uploader: %v", err)
	}

	queueClient := queue.NewClient(cfg.Queue.RedisClientOpt(), cfg.Queue.Name)
	defer func() {
		if err := queueClient.Close(); err != nil {
			logger.Printf("queue client close error: %v", err)
		}
	}()

	opts := api.Options{
		Normalizer:            normalizer,
		Queue:                 queueClient,
		QueueName:             cfg.Queue.Name,
		Staging:               pipeline.ObjectStoreStaging{Storage: objects},
		Jobs:                  stores.Jobs,
		Usage:                 stores.Usage,
		Posters:               posters,
		Media:                 browser,
		Events:                cms,
		Importer:              importer.New(cms, logger),
		RateLimitUserIDHeader: cfg.RateLimit.UserIDHeader,
		MaxUploadBytes:        cfg.API.MaxUploadBytes,
	}

	limiter, limiterCloser, err := bootstrap.RateLimiter(cfg)
	if err != nil {
		logger.Fatalf("create rate limiter: %v", err)
	}
	defer limiterCloser.Close()
	if limiter != nil {
		opts.RateLimiter = limiter
		logger.Printf("rate limiting enabled capacity=%d window=%s", cfg.RateLimit.Capacity, cfg.RateLimit.Window)
	}

	app := api.NewServer(logger, opts)

	httpServer := &http.Server{
		Addr:         cfg.API.Addr,
		Handler:      app.Handler(),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Printf("listening on %s cms=%s media_backend=%s normalizer=%s", cfg.API.Addr, cfg.CMS.BaseURL, cfg.Media.Backend, pipeline.Backend())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.API.ShutdownTimeout)
	defer cancel()

	logger.Println("shutting down")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("graceful shutdown failed: %v", err)
	}
}
