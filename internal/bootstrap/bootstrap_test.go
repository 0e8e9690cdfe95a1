package bootstrap

import (
	"context"
	"io"
	"log"
	"testing"

	"github.com/dunamismax/eventdesk/internal/cmsapi"
	"github.com/dunamismax/eventdesk/internal/config"
	"github.com/dunamismax/eventdesk/internal/pipeline"
	"github.com/dunamismax/eventdesk/internal/store"
)

func TestEmitterSelection(t *testing.T) {
	cms, err := cmsapi.NewClient(cmsapi.Config{BaseURL: "http://cms.local"})
	if err != nil {
		t.Fatalf("new cms client: %v", err)
	}

	emitter, err := Emitter("cms", cms, nil)
	if err != nil {
		t.Fatalf("cms emitter: %v", err)
	}
	if _, ok := emitter.(pipeline.CMSEmitter); !ok {
		t.Fatalf("expected CMSEmitter, got %T", emitter)
	}

	if _, err := Emitter("storage", cms, nil); err == nil {
		t.Fatal("expected storage emitter without a client to fail")
	}
	if _, err := Emitter("ftp", cms, nil); err == nil {
		t.Fatal("expected unknown emitter to fail")
	}
}

func TestMediaBrowserSelection(t *testing.T) {
	cms, err := cmsapi.NewClient(cmsapi.Config{BaseURL: "http://cms.local"})
	if err != nil {
		t.Fatalf("new cms client: %v", err)
	}
	if _, err := MediaBrowser(config.MediaConfig{Backend: "cms", DeleteWorkers: 2}, cms, nil); err != nil {
		t.Fatalf("cms backend: %v", err)
	}
	if _, err := MediaBrowser(config.MediaConfig{Backend: "storage"}, cms, nil); err == nil {
		t.Fatal("expected storage backend without a client to fail")
	}
}

func TestOpenStoresDefaultsToMemory(t *testing.T) {
	stores, err := OpenStores(context.Background(), config.DatabaseConfig{}, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("open stores: %v", err)
	}
	if _, ok := stores.Jobs.(*store.MemoryJobStore); !ok {
		t.Fatalf("expected memory store, got %T", stores.Jobs)
	}
	if err := stores.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestRateLimiterDisabled(t *testing.T) {
	limiter, closer, err := RateLimiter(config.Config{})
	if err != nil {
		t.Fatalf("rate limiter: %v", err)
	}
	if limiter != nil {
		t.Fatal("expected no limiter when disabled")
	}
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
