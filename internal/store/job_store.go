package store

import (
	"context"
	"errors"

	"github.com/dunamismax/eventdesk/internal/domain"
)

var ErrJobNotFound = errors.New("job not found")

type JobStore interface {
	Create(ctx context.Context, job domain.UploadJob) error
	Get(ctx context.Context, id string) (domain.UploadJob, bool, error)
	UpdateStatus(ctx context.Context, id, status string) (domain.UploadJob, error)
	// Finish records the terminal state of a job.
	Finish(ctx context.Context, id, status, resultKey, errMsg string) (domain.UploadJob, error)
}

// UsageSummary aggregates usage logs per folder.
type UsageSummary struct {
	Folder          string `json:"folder"`
	Jobs            int64  `json:"jobs"`
	PixelsProcessed int64  `json:"pixels_processed"`
	BytesIn         int64  `json:"bytes_in"`
	BytesOut        int64  `json:"bytes_out"`
	BytesSaved      int64  `json:"bytes_saved"`
	ComputeTimeMS   int64  `json:"compute_time_ms"`
}

type UsageStore interface {
	RecordUsage(ctx context.Context, usage domain.UsageLog) error
	UsageByFolder(ctx context.Context) ([]UsageSummary, error)
}
