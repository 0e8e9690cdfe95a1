package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dunamismax/eventdesk/internal/cmsapi"
	"github.com/dunamismax/eventdesk/internal/domain"
	"github.com/dunamismax/eventdesk/internal/id"
	"github.com/dunamismax/eventdesk/internal/pipeline"
	"github.com/dunamismax/eventdesk/internal/queue"
	"github.com/dunamismax/eventdesk/internal/storage"
	"github.com/dunamismax/eventdesk/internal/uploader"
)

type uploadFailure struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

type createUploadsResponse struct {
	Jobs     []domain.UploadJob `json:"jobs"`
	Rejected []string           `json:"rejected"`
	Failed   []uploadFailure    `json:"failed,omitempty"`
}

// handleNormalize runs one file through the normalizer and returns the bytes.
func (s *Server) handleNormalize(w http.ResponseWriter, r *http.Request) {
	if s.normalizer == nil {
		unavailable(w, "normalizer")
		return
	}
	file, ok := s.singleFile(w, r)
	if !ok {
		return
	}

	out, err := s.normalizer.Normalize(r.Context(), file)
	if err != nil {
		if errors.Is(err, pipeline.ErrProcessingFailed) {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		s.logger.Printf("normalize failed name=%s err=%v", file.Name, err)
		writeError(w, http.StatusInternalServerError, "failed to normalize file")
		return
	}

	w.Header().Set("Content-Type", out.File.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", out.File.Name))
	w.Header().Set("X-Transcoded", strconv.FormatBool(out.Transcoded))
	if out.Transcoded {
		w.Header().Set("X-Image-Width", strconv.Itoa(out.Width))
		w.Header().Set("X-Image-Height", strconv.Itoa(out.Height))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out.File.Data)
}

// handleCreateUploads stages every accepted file and queues one job per file.
func (s *Server) handleCreateUploads(w http.ResponseWriter, r *http.Request) {
	if s.staging == nil || s.queueClient == nil || s.jobStore == nil {
		unavailable(w, "upload queue")
		return
	}
	if err := s.parseMultipart(w, r); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	files, err := readFiles(r.MultipartForm, "file")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	req := domain.CreateUploadRequest{
		Folder:     domain.NormalizeFolder(r.FormValue("folder")),
		WebhookURL: strings.TrimSpace(r.FormValue("webhook_url")),
		Files:      files,
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	accepted, rejected := req.Partition()
	resp := createUploadsResponse{
		Jobs:     make([]domain.UploadJob, 0, len(accepted)),
		Rejected: make([]string, 0, len(rejected)),
	}
	for _, f := range rejected {
		resp.Rejected = append(resp.Rejected, f.Name)
	}
	if len(rejected) > 0 {
		s.metrics.filesRejected.WithLabelValues(req.Folder).Add(float64(len(rejected)))
	}
	if len(accepted) == 0 {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":    fmt.Sprintf("no files match folder %s", req.Folder),
			"rejected": resp.Rejected,
		})
		return
	}

	for _, f := range accepted {
		job, err := s.enqueueUpload(r, req, f)
		if err != nil {
			s.logger.Printf("upload enqueue failed folder=%s name=%s err=%v", req.Folder, f.Name, err)
			resp.Failed = append(resp.Failed, uploadFailure{Name: f.Name, Error: err.Error()})
			continue
		}
		resp.Jobs = append(resp.Jobs, job)
	}

	if len(resp.Jobs) == 0 {
		writeJSON(w, http.StatusBadGateway, resp)
		return
	}
	writeJSON(w, http.StatusAccepted, resp)
}

func (s *Server) enqueueUpload(r *http.Request, req domain.CreateUploadRequest, f domain.File) (domain.UploadJob, error) {
	ctx := r.Context()
	now := time.Now().UTC()
	jobID := id.New()
	job := domain.UploadJob{
		ID:          jobID,
		Status:      domain.JobStatusCreated,
		Folder:      req.Folder,
		Name:        f.Name,
		ContentType: f.ContentType,
		StagingKey:  pipeline.StagingKey(jobID, f.Name),
		WebhookURL:  req.WebhookURL,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.staging.Put(ctx, job.StagingKey, f.Data, f.ContentType); err != nil {
		return domain.UploadJob{}, fmt.Errorf("stage file: %w", err)
	}
	if err := s.jobStore.Create(ctx, job); err != nil {
		return domain.UploadJob{}, fmt.Errorf("create job: %w", err)
	}

	if _, err := s.queueClient.EnqueueUpload(ctx, queue.UploadPayload{
		JobID:       job.ID,
		StagingKey:  job.StagingKey,
		Name:        job.Name,
		ContentType: job.ContentType,
		Folder:      job.Folder,
		WebhookURL:  job.WebhookURL,
		RequestedAt: now,
	}); err != nil {
		if _, markErr := s.jobStore.Finish(ctx, job.ID, domain.JobStatusFailed, "", err.Error()); markErr != nil {
			s.logger.Printf("mark job failed job_id=%s err=%v", job.ID, markErr)
		}
		return domain.UploadJob{}, fmt.Errorf("enqueue job: %w", err)
	}
	s.metrics.queueEnqueued.WithLabelValues(s.queueName, job.Folder).Inc()

	queued, err := s.jobStore.UpdateStatus(ctx, job.ID, domain.JobStatusQueued)
	if err != nil {
		s.logger.Printf("mark job queued job_id=%s err=%v", job.ID, err)
		job.Status = domain.JobStatusQueued
		return job, nil
	}
	return queued, nil
}

func (s *Server) handleGetUpload(w http.ResponseWriter, r *http.Request) {
	if s.jobStore == nil {
		unavailable(w, "job store")
		return
	}
	jobID := strings.TrimSpace(r.PathValue("id"))
	job, ok, err := s.jobStore.Get(r.Context(), jobID)
	if err != nil {
		s.logger.Printf("get job failed job_id=%s err=%v", jobID, err)
		writeError(w, http.StatusInternalServerError, "failed to load job")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// handleCreatePoster normalizes one image and uploads it as an event poster.
func (s *Server) handleCreatePoster(w http.ResponseWriter, r *http.Request) {
	if s.posters == nil {
		unavailable(w, "poster upload")
		return
	}
	file, ok := s.singleFile(w, r)
	if !ok {
		return
	}

	out, err := s.posters.PreparePoster(r.Context(), file)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, out)
	case errors.Is(err, uploader.ErrNotImage):
		writeError(w, http.StatusUnsupportedMediaType, err.Error())
	case errors.Is(err, pipeline.ErrProcessingFailed):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		s.writeUpstreamError(w, "poster upload", err)
	}
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	if s.usageStore == nil {
		unavailable(w, "usage store")
		return
	}
	usage, err := s.usageStore.UsageByFolder(r.Context())
	if err != nil {
		s.logger.Printf("usage query failed err=%v", err)
		writeError(w, http.StatusInternalServerError, "failed to load usage")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"folders": usage})
}

// writeUpstreamError passes CMS client errors through and maps the rest to 502.
func (s *Server) writeUpstreamError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, storage.ErrObjectNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	var apiErr *cmsapi.APIError
	if errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500 {
		writeError(w, apiErr.Status, apiErr.Message)
		return
	}
	s.logger.Printf("%s failed err=%v", op, err)
	writeError(w, http.StatusBadGateway, op+" failed: "+err.Error())
}
