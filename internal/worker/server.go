package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dunamismax/eventdesk/internal/config"
	"github.com/dunamismax/eventdesk/internal/domain"
	"github.com/dunamismax/eventdesk/internal/pipeline"
	"github.com/dunamismax/eventdesk/internal/queue"
	"github.com/dunamismax/eventdesk/internal/store"
	"github.com/dunamismax/eventdesk/internal/webhook"
)

type webhookSender interface {
	Send(ctx context.Context, endpoint, event string, payload any) error
}

type stagingRemover interface {
	Remove(ctx context.Context, key string) error
}

// Deps are the collaborators an upload job needs.
type Deps struct {
	Processor *pipeline.Processor
	Staging   stagingRemover
	Webhooks  webhookSender
	Jobs      store.JobStore
	Usage     store.UsageStore
}

type Server struct {
	logger        *log.Logger
	server        *asynq.Server
	sem           chan struct{}
	processor     *pipeline.Processor
	staging       stagingRemover
	webhookClient webhookSender
	jobStore      store.JobStore
	usageStore    store.UsageStore
	metrics       *metrics
	tracer        trace.Tracer
}

// UploadEvent is the webhook body for upload.completed and upload.failed.
type UploadEvent struct {
	JobID       string           `json:"job_id"`
	Status      string           `json:"status"`
	Folder      string           `json:"folder"`
	Name        string           `json:"name"`
	Output      *pipeline.Output `json:"output,omitempty"`
	Error       string           `json:"error,omitempty"`
	RequestedAt time.Time        `json:"requested_at"`
	FinishedAt  time.Time        `json:"finished_at"`
}

func NewServer(logger *log.Logger, queueCfg config.QueueConfig, workerCfg config.WorkerConfig, deps Deps) (*Server, error) {
	if deps.Processor == nil {
		return nil, errors.New("processor is required")
	}
	if deps.Usage == nil {
		if usage, ok := deps.Jobs.(store.UsageStore); ok {
			deps.Usage = usage
		}
	}

	s := &Server{
		logger: logger,
		server: asynq.NewServer(
			queueCfg.RedisClientOpt(),
			asynq.Config{
				Concurrency: workerCfg.Concurrency,
				Queues: map[string]int{
					queueCfg.Name: 1,
				},
				LogLevel: asynq.InfoLevel,
				ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
					retried, _ := asynq.GetRetryCount(ctx)
					maxRetry, _ := asynq.GetMaxRetry(ctx)
					logger.Printf("task failed type=%s retry=%d/%d err=%v", task.Type(), retried, maxRetry, err)
				}),
			},
		),
		sem:           make(chan struct{}, max(1, workerCfg.MaxActiveJobs)),
		processor:     deps.Processor.WithPolicy(pipeline.FallbackOriginal),
		staging:       deps.Staging,
		webhookClient: deps.Webhooks,
		jobStore:      deps.Jobs,
		usageStore:    deps.Usage,
		metrics:       newMetrics(),
		tracer:        otel.Tracer("eventdesk/worker"),
	}
	return s, nil
}

func (s *Server) Run() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeMediaUpload, s.handleUpload)
	return s.server.Run(mux)
}

func (s *Server) Shutdown() {
	s.server.Shutdown()
}

func (s *Server) MetricsHandler() http.Handler {
	return s.metrics.Handler()
}

func (s *Server) handleUpload(ctx context.Context, task *asynq.Task) error {
	startedAt := time.Now()
	outcome := domain.JobStatusFailed

	payload, err := queue.ParseUploadPayload(task)
	if err != nil {
		return fmt.Errorf("parse payload: %v: %w", err, asynq.SkipRetry)
	}

	ctx, span := s.tracer.Start(ctx, "worker.upload", trace.WithSpanKind(trace.SpanKindConsumer))
	span.SetAttributes(
		attribute.String("job.id", payload.JobID),
		attribute.String("job.folder", payload.Folder),
		attribute.String("file.content_type", payload.ContentType),
	)
	defer span.End()
	defer func() {
		s.metrics.jobDuration.WithLabelValues(payload.Folder, outcome).Observe(time.Since(startedAt).Seconds())
		s.metrics.jobsTotal.WithLabelValues(payload.Folder, outcome).Inc()
	}()

	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.metrics.activeJobs.Inc()
	defer func() {
		<-s.sem
		s.metrics.activeJobs.Dec()
	}()

	s.logger.Printf("uploading job_id=%s folder=%s name=%s staging_key=%s", payload.JobID, payload.Folder, payload.Name, payload.StagingKey)
	s.updateJobStatus(ctx, payload.JobID, domain.JobStatusProcessing)

	out, err := s.processor.Process(ctx, pipeline.Request{
		JobID:       payload.JobID,
		Folder:      payload.Folder,
		StagingKey:  payload.StagingKey,
		Name:        payload.Name,
		ContentType: payload.ContentType,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upload failed")
		if !finalAttempt(ctx) {
			s.logger.Printf("upload attempt failed job_id=%s err=%v", payload.JobID, err)
			s.updateJobStatus(ctx, payload.JobID, domain.JobStatusQueued)
			outcome = "retry"
			return fmt.Errorf("process upload: %w", err)
		}

		s.logger.Printf("upload failed job_id=%s err=%v", payload.JobID, err)
		s.finishJob(ctx, payload.JobID, domain.JobStatusFailed, "", err.Error())
		s.dispatchWebhook(ctx, payload, webhook.EventUploadFailed, UploadEvent{
			JobID:       payload.JobID,
			Status:      domain.JobStatusFailed,
			Folder:      payload.Folder,
			Name:        payload.Name,
			Error:       err.Error(),
			RequestedAt: payload.RequestedAt,
			FinishedAt:  time.Now().UTC(),
		})
		return fmt.Errorf("process upload: %w", err)
	}

	if out.Fallback {
		s.metrics.fallbacksTotal.WithLabelValues(payload.Folder).Inc()
		s.logger.Printf("normalize fallback job_id=%s name=%s warning=%q", payload.JobID, payload.Name, out.Warning)
	}
	if s.staging != nil {
		if err := s.staging.Remove(ctx, payload.StagingKey); err != nil {
			s.logger.Printf("staging cleanup failed job_id=%s key=%s err=%v", payload.JobID, payload.StagingKey, err)
		}
	}

	s.logger.Printf("uploaded job_id=%s key=%s bytes=%d transcoded=%t", payload.JobID, out.Key, out.Bytes, out.Transcoded)
	s.finishJob(ctx, payload.JobID, domain.JobStatusSucceeded, out.Key, "")
	s.recordUsage(ctx, payload, out, time.Since(startedAt))
	s.dispatchWebhook(ctx, payload, webhook.EventUploadCompleted, UploadEvent{
		JobID:       payload.JobID,
		Status:      domain.JobStatusSucceeded,
		Folder:      payload.Folder,
		Name:        payload.Name,
		Output:      &out,
		RequestedAt: payload.RequestedAt,
		FinishedAt:  time.Now().UTC(),
	})

	outcome = domain.JobStatusSucceeded
	span.SetStatus(codes.Ok, "uploaded")
	return nil
}

// finalAttempt reports whether asynq will not retry the current task.
// Outside asynq every attempt is final.
func finalAttempt(ctx context.Context) bool {
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return true
	}
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	return retried >= maxRetry
}

func (s *Server) updateJobStatus(ctx context.Context, jobID, status string) {
	if s.jobStore == nil {
		return
	}
	if _, err := s.jobStore.UpdateStatus(ctx, jobID, status); err != nil {
		s.logger.Printf("job status update failed job_id=%s status=%s err=%v", jobID, status, err)
	}
}

func (s *Server) finishJob(ctx context.Context, jobID, status, resultKey, errMsg string) {
	if s.jobStore == nil {
		return
	}
	if _, err := s.jobStore.Finish(ctx, jobID, status, resultKey, errMsg); err != nil {
		s.logger.Printf("job finish failed job_id=%s status=%s err=%v", jobID, status, err)
	}
}

// dispatchWebhook delivers event. A failed delivery is logged and counted
// but does not fail the upload, which has already landed.
func (s *Server) dispatchWebhook(ctx context.Context, payload queue.UploadPayload, event string, body UploadEvent) {
	if payload.WebhookURL == "" || s.webhookClient == nil {
		return
	}
	if err := s.webhookClient.Send(ctx, payload.WebhookURL, event, body); err != nil {
		s.metrics.webhookFailuresTotal.Inc()
		s.logger.Printf("webhook delivery failed job_id=%s event=%s err=%v", payload.JobID, event, err)
	}
}

func (s *Server) recordUsage(ctx context.Context, payload queue.UploadPayload, out pipeline.Output, computeDuration time.Duration) {
	pixelsProcessed := int64(out.Width) * int64(out.Height)
	bytesSaved := max(int64(out.SourceBytes-out.Bytes), 0)
	computeTimeMS := max(computeDuration.Milliseconds(), 1)

	s.metrics.pixelsProcessedTotal.Add(float64(pixelsProcessed))
	s.metrics.bytesSavedTotal.Add(float64(bytesSaved))
	s.metrics.computeTimeMSTotal.Add(float64(computeTimeMS))

	if s.usageStore == nil {
		return
	}
	usage := domain.UsageLog{
		JobID:           payload.JobID,
		Folder:          payload.Folder,
		PixelsProcessed: pixelsProcessed,
		BytesIn:         int64(out.SourceBytes),
		BytesOut:        int64(out.Bytes),
		BytesSaved:      bytesSaved,
		ComputeTimeMS:   computeTimeMS,
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.usageStore.RecordUsage(ctx, usage); err != nil {
		s.logger.Printf("usage log write failed job_id=%s err=%v", payload.JobID, err)
	}
}
