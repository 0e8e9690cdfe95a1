// Package bootstrap builds the collaborators shared by the eventdesk binaries
// from a loaded config.
package bootstrap

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/dunamismax/eventdesk/internal/cmsapi"
	"github.com/dunamismax/eventdesk/internal/config"
	"github.com/dunamismax/eventdesk/internal/media"
	"github.com/dunamismax/eventdesk/internal/pipeline"
	"github.com/dunamismax/eventdesk/internal/ratelimit"
	"github.com/dunamismax/eventdesk/internal/storage"
	"github.com/dunamismax/eventdesk/internal/store"
	"github.com/dunamismax/eventdesk/internal/telemetry"
)

var Version = "dev"

func NewLogger(name string) *log.Logger {
	return log.New(os.Stdout, "["+name+"] ", log.LstdFlags|log.Lmsgprefix)
}

func Tracing(ctx context.Context, cfg config.Config, service string, logger *log.Logger) (telemetry.ShutdownFunc, error) {
	return telemetry.SetupTracing(ctx, telemetry.TraceConfig{
		ServiceName:  service,
		Version:      Version,
		Exporter:     cfg.Tracing.Exporter,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		OTLPInsecure: cfg.Tracing.OTLPInsecure,
		SampleRatio:  cfg.Tracing.SampleRatio,
	}, logger)
}

// Stores holds the job and usage stores. Close releases the database handle
// when one was opened.
type Stores struct {
	Jobs  store.JobStore
	Usage store.UsageStore
	Close func() error
}

// OpenStores uses Postgres when a DSN is configured and memory otherwise.
func OpenStores(ctx context.Context, cfg config.DatabaseConfig, logger *log.Logger) (Stores, error) {
	if cfg.DSN == "" {
		logger.Printf("job store backend=memory")
		mem := store.NewMemoryJobStore()
		return Stores{Jobs: mem, Usage: mem, Close: func() error { return nil }}, nil
	}

	pg, err := store.NewPostgresJobStore(ctx, cfg.DSN)
	if err != nil {
		return Stores{}, fmt.Errorf("open postgres store: %w", err)
	}
	logger.Printf("job store backend=postgres")
	return Stores{Jobs: pg, Usage: pg, Close: pg.Close}, nil
}

func OpenStorage(ctx context.Context, cfg config.StorageConfig) (*storage.Client, error) {
	client, err := storage.NewClient(storage.Config{
		Endpoint:  cfg.Endpoint,
		Access:    cfg.AccessKey,
		Secret:    cfg.SecretKey,
		Bucket:    cfg.Bucket,
		UseSSL:    cfg.UseSSL,
		PublicURL: cfg.PublicURL,
	})
	if err != nil {
		return nil, err
	}
	if err := client.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	return client, nil
}

func NewCMSClient(cfg config.CMSConfig) (*cmsapi.Client, error) {
	return cmsapi.NewClient(cmsapi.Config{
		BaseURL:   cfg.BaseURL,
		Timeout:   cfg.Timeout,
		UserAgent: "eventdesk/" + Version,
	})
}

// Emitter picks where processed files end up.
func Emitter(kind string, cms *cmsapi.Client, objects *storage.Client) (pipeline.Emitter, error) {
	switch kind {
	case "cms":
		if cms == nil {
			return nil, fmt.Errorf("emitter %q needs a cms client", kind)
		}
		return pipeline.CMSEmitter{Client: cms}, nil
	case "storage":
		if objects == nil {
			return nil, fmt.Errorf("emitter %q needs a storage client", kind)
		}
		return pipeline.ObjectStoreEmitter{Storage: objects}, nil
	default:
		return nil, fmt.Errorf("unsupported emitter: %s", kind)
	}
}

func MediaBrowser(cfg config.MediaConfig, cms *cmsapi.Client, objects *storage.Client) (*media.Browser, error) {
	var backend media.Backend
	switch cfg.Backend {
	case "cms":
		if cms == nil {
			return nil, fmt.Errorf("media backend %q needs a cms client", cfg.Backend)
		}
		backend = cms
	case "storage":
		if objects == nil {
			return nil, fmt.Errorf("media backend %q needs a storage client", cfg.Backend)
		}
		backend = objects
	default:
		return nil, fmt.Errorf("unsupported media backend: %s", cfg.Backend)
	}
	return media.NewBrowser(backend, media.DefaultTree(), cfg.DeleteWorkers)
}

// RateLimiter returns nil when rate limiting is disabled. The returned closer
// is always safe to call.
func RateLimiter(cfg config.Config) (*ratelimit.RedisTokenBucket, io.Closer, error) {
	if !cfg.RateLimit.Enabled {
		return nil, nopCloser{}, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Queue.RedisAddr,
		Password: cfg.Queue.RedisPassword,
		DB:       cfg.Queue.RedisDB,
	})
	bucket, err := ratelimit.NewRedisTokenBucket(client, cfg.RateLimit.Capacity, cfg.RateLimit.Window, ratelimit.DefaultKeyPrefix)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return bucket, client, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
