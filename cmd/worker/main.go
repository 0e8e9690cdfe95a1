package main

import (
	"context"
	"net/http"
	"time"

	"github.com/dunamismax/eventdesk/internal/bootstrap"
	"github.com/dunamismax/eventdesk/internal/cmsapi"
	"github.com/dunamismax/eventdesk/internal/config"
	"github.com/dunamismax/eventdesk/internal/pipeline"
	"github.com/dunamismax/eventdesk/internal/webhook"
	"github.com/dunamismax/eventdesk/internal/worker"
)

func main() {
	logger := bootstrap.NewLogger("worker")
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	ctx := context.Background()
	shutdownTracing, err := bootstrap.Tracing(ctx, cfg, "eventdesk-worker", logger)
	if err != nil {
		logger.Fatalf("setup tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Printf("tracing shutdown error: %v", err)
		}
	}()

	if err := pipeline.Startup(cfg.Worker.Concurrency); err != nil {
		logger.Fatalf("start image runtime: %v", err)
	}
	defer pipeline.Shutdown()

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
	var cms *cmsapi.Client
	if cfg.Worker.Emitter == "cms" {
		if cms, err = bootstrap.NewCMSClient(cfg.CMS); err != nil {
			logger.Fatalf("create cms client: %v", err)
		}
	}
	emitter, err := bootstrap.Emitter(cfg.Worker.Emitter, cms, objects)
	if err != nil {
		logger.Fatalf("create emitter: %v", err)
	}

	staging := pipeline.ObjectStoreStaging{Storage: objects}
	processor, err := pipeline.NewProcessor(staging, nil, emitter, pipeline.FallbackOriginal)
	if err != nil {
		logger.Fatalf("create processor: %v", err)
	}

	srv, err := worker.NewServer(logger, cfg.Queue, cfg.Worker, worker.Deps{
		Processor: processor,
		Staging:   staging,
		Webhooks: webhook.NewClient(webhook.Config{
			SigningSecret:  cfg.Webhook.SigningSecret,
			Timeout:        cfg.Webhook.Timeout,
			MaxAttempts:    cfg.Webhook.MaxAttempts,
			InitialBackoff: cfg.Webhook.InitialBackoff,
			MaxBackoff:     cfg.Webhook.MaxBackoff,
		}),
		Jobs:  stores.Jobs,
		Usage: stores.Usage,
	})
	if err != nil {
		logger.Fatalf("create worker: %v", err)
	}

	metricsServer := &http.Server{
		Addr:              cfg.Worker.MetricsAddr,
		Handler:           metricsMux(srv),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Printf("metrics listening on %s", cfg.Worker.MetricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Printf("metrics server failed: %v", err)
		}
	}()

	logger.Printf(
		"starting worker concurrency=%d max_active_jobs=%d queue=%s redis=%s emitter=%s normalizer=%s",
		cfg.Worker.Concurrency,
		cfg.Worker.MaxActiveJobs,
		cfg.Queue.Name,
		cfg.Queue.RedisAddr,
		cfg.Worker.Emitter,
		pipeline.Backend(),
	)

	// Run blocks until SIGINT or SIGTERM and drains in-flight tasks.
	if err := srv.Run(); err != nil {
		logger.Printf("worker failed: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("metrics shutdown failed: %v", err)
	}
}

func metricsMux(srv *worker.Server) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", srv.MetricsHandler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}
