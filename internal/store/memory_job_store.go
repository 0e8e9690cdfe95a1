package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dunamismax/eventdesk/internal/domain"
)

type MemoryJobStore struct {
	mu    sync.RWMutex
	jobs  map[string]domain.UploadJob
	usage []domain.UsageLog
}

func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{
		jobs: make(map[string]domain.UploadJob),
	}
}

func (s *MemoryJobStore) Create(_ context.Context, job domain.UploadJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	return nil
}

func (s *MemoryJobStore) Get(_ context.Context, id string) (domain.UploadJob, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	return job, ok, nil
}

func (s *MemoryJobStore) UpdateStatus(_ context.Context, id, status string) (domain.UploadJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return domain.UploadJob{}, ErrJobNotFound
	}

	job.Status = status
	job.UpdatedAt = time.Now().UTC()
	s.jobs[id] = job
	return job, nil
}

func (s *MemoryJobStore) Finish(_ context.Context, id, status, resultKey, errMsg string) (domain.UploadJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return domain.UploadJob{}, ErrJobNotFound
	}

	job.Status = status
	job.ResultKey = resultKey
	job.Error = errMsg
	job.UpdatedAt = time.Now().UTC()
	s.jobs[id] = job
	return job, nil
}

func (s *MemoryJobStore) RecordUsage(_ context.Context, usage domain.UsageLog) error {
	if usage.CreatedAt.IsZero() {
		usage.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage = append(s.usage, usage)
	return nil
}

func (s *MemoryJobStore) UsageByFolder(_ context.Context) ([]UsageSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byFolder := map[string]*UsageSummary{}
	for _, u := range s.usage {
		sum, ok := byFolder[u.Folder]
		if !ok {
			sum = &UsageSummary{Folder: u.Folder}
			byFolder[u.Folder] = sum
		}
		sum.Jobs++
		sum.PixelsProcessed += u.PixelsProcessed
		sum.BytesIn += u.BytesIn
		sum.BytesOut += u.BytesOut
		sum.BytesSaved += u.BytesSaved
		sum.ComputeTimeMS += u.ComputeTimeMS
	}

	out := make([]UsageSummary, 0, len(byFolder))
	for _, sum := range byFolder {
		out = append(out, *sum)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Folder < out[j].Folder })
	return out, nil
}
