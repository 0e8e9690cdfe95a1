package domain

import "time"

type UsageLog struct {
	JobID           string
	Folder          string
	PixelsProcessed int64
	BytesIn         int64
	BytesOut        int64
	BytesSaved      int64
	ComputeTimeMS   int64
	CreatedAt       time.Time
}
