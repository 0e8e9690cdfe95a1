//go:build govips && cgo

package pipeline

import (
	"sync"

	"github.com/davidbyttow/govips/v2/vips"
)

var (
	runtimeMu sync.Mutex
	started   bool
)

// Startup initializes libvips. concurrency bounds libvips worker threads per
// operation; zero lets libvips decide.
func Startup(concurrency int) error {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()
	if started {
		return nil
	}

	vips.LoggingSettings(nil, vips.LogLevelWarning)
	vips.Startup(&vips.Config{
		ConcurrencyLevel: concurrency,
		MaxCacheFiles:    0,
		MaxCacheMem:      64 * 1024 * 1024,
		MaxCacheSize:     0,
	})
	started = true
	return nil
}

func Shutdown() {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()
	if !started {
		return
	}
	vips.Shutdown()
	started = false
}

func newTransformer() (Transformer, error) {
	return govipsTransformer{}, nil
}

// Backend names the transformer compiled into this binary.
func Backend() string {
	return "govips"
}
