package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/dunamismax/eventdesk/internal/domain"
	"github.com/dunamismax/eventdesk/internal/importer"
	"github.com/dunamismax/eventdesk/internal/media"
	"github.com/dunamismax/eventdesk/internal/pipeline"
	"github.com/dunamismax/eventdesk/internal/queue"
	"github.com/dunamismax/eventdesk/internal/store"
)

const defaultMaxUploadBytes = 100 << 20

type uploadQueue interface {
	EnqueueUpload(ctx context.Context, payload queue.UploadPayload) (*asynq.TaskInfo, error)
}

type stagingWriter interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

type posterPreparer interface {
	PreparePoster(ctx context.Context, file domain.File) (pipeline.Output, error)
}

type eventService interface {
	ListEvents(ctx context.Context) ([]domain.Event, error)
	GetEvent(ctx context.Context, id int) (domain.Event, error)
	CreateEvent(ctx context.Context, ev domain.Event) (domain.Event, error)
	UpdateEvent(ctx context.Context, id int, ev domain.Event) error
	DeleteEvent(ctx context.Context, id int) error
}

// Options wires the server to its collaborators. Routes whose collaborator
// is nil answer 503.
type Options struct {
	Normalizer            *pipeline.Normalizer
	Queue                 uploadQueue
	QueueName             string
	Staging               stagingWriter
	Jobs                  store.JobStore
	Usage                 store.UsageStore
	Posters               posterPreparer
	Media                 *media.Browser
	Events                eventService
	Importer              *importer.Importer
	RateLimiter           RateLimiter
	RateLimitUserIDHeader string
	MaxUploadBytes        int64
}

type Server struct {
	logger                *log.Logger
	normalizer            *pipeline.Normalizer
	queueClient           uploadQueue
	queueName             string
	staging               stagingWriter
	jobStore              store.JobStore
	usageStore            store.UsageStore
	posters               posterPreparer
	media                 *media.Browser
	events                eventService
	importer              *importer.Importer
	rateLimiter           RateLimiter
	rateLimitUserIDHeader string
	maxUploadBytes        int64
	metrics               *metrics
	tracer                trace.Tracer
	mux                   *http.ServeMux
}

func NewServer(logger *log.Logger, opts Options) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUploadBytes
	}
	if opts.RateLimitUserIDHeader == "" {
		opts.RateLimitUserIDHeader = "X-User-ID"
	}
	if opts.QueueName == "" {
		opts.QueueName = "default"
	}

	s := &Server{
		logger:                logger,
		normalizer:            opts.Normalizer,
		queueClient:           opts.Queue,
		queueName:             opts.QueueName,
		staging:               opts.Staging,
		jobStore:              opts.Jobs,
		usageStore:            opts.Usage,
		posters:               opts.Posters,
		media:                 opts.Media,
		events:                opts.Events,
		importer:              opts.Importer,
		rateLimiter:           opts.RateLimiter,
		rateLimitUserIDHeader: opts.RateLimitUserIDHeader,
		maxUploadBytes:        opts.MaxUploadBytes,
		metrics:               newMetrics(),
		tracer:                otel.Tracer("eventdesk/api"),
		mux:                   http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.withTracing(s.metrics.withHTTPMetrics(s.routeLabel, s.withRateLimit(s.mux)))
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.Handle("GET /metrics", s.metrics.metricsHandler())

	s.mux.HandleFunc("POST /v1/normalize", s.handleNormalize)
	s.mux.HandleFunc("POST /v1/uploads", s.handleCreateUploads)
	s.mux.HandleFunc("GET /v1/uploads/{id}", s.handleGetUpload)
	s.mux.HandleFunc("POST /v1/posters", s.handleCreatePoster)
	s.mux.HandleFunc("GET /v1/usage", s.handleUsage)

	s.mux.HandleFunc("GET /v1/media/folders", s.handleMediaFolders)
	s.mux.HandleFunc("GET /v1/media", s.handleListMedia)
	s.mux.HandleFunc("DELETE /v1/media", s.handleDeleteMedia)
	s.mux.HandleFunc("POST /v1/media/delete", s.handleDeleteManyMedia)
	s.mux.HandleFunc("POST /v1/media/archive", s.handleArchiveMedia)

	s.mux.HandleFunc("GET /v1/events", s.handleListEvents)
	s.mux.HandleFunc("GET /v1/events/{id}", s.handleGetEvent)
	s.mux.HandleFunc("POST /v1/events", s.handleCreateEvent)
	s.mux.HandleFunc("PUT /v1/events/{id}", s.handleUpdateEvent)
	s.mux.HandleFunc("DELETE /v1/events/{id}", s.handleDeleteEvent)
	s.mux.HandleFunc("POST /v1/events/import", s.handleImportEvents)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "normalizer": pipeline.Backend()})
}

// routeLabel is the matched mux pattern, so metrics and spans do not fan out
// per id.
func (s *Server) routeLabel(r *http.Request) string {
	if r.Pattern != "" {
		return r.Pattern
	}
	if _, pattern := s.mux.Handler(r); pattern != "" {
		return pattern
	}
	return "unmatched"
}

// readFiles returns every part named field of a parsed multipart form.
func readFiles(form *multipart.Form, field string) ([]domain.File, error) {
	if form == nil {
		return nil, nil
	}
	headers := form.File[field]
	files := make([]domain.File, 0, len(headers))
	for _, hdr := range headers {
		f, err := hdr.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", hdr.Filename, err)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", hdr.Filename, err)
		}
		files = append(files, domain.File{
			Name:        filepath.Base(hdr.Filename),
			ContentType: partContentType(hdr),
			Data:        data,
		})
	}
	return files, nil
}

func partContentType(hdr *multipart.FileHeader) string {
	ct := strings.TrimSpace(hdr.Header.Get("Content-Type"))
	if ct != "" && ct != "application/octet-stream" {
		return ct
	}
	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(hdr.Filename))); byExt != "" {
		if mediaType, _, err := mime.ParseMediaType(byExt); err == nil {
			return mediaType
		}
	}
	if ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func (s *Server) parseMultipart(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("upload exceeds %d bytes", s.maxUploadBytes)
		}
		return fmt.Errorf("invalid multipart body: %w", err)
	}
	return nil
}

// singleFile parses the form and returns its one "file" part.
func (s *Server) singleFile(w http.ResponseWriter, r *http.Request) (domain.File, bool) {
	if err := s.parseMultipart(w, r); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return domain.File{}, false
	}
	files, err := readFiles(r.MultipartForm, "file")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return domain.File{}, false
	}
	if len(files) != 1 {
		writeError(w, http.StatusBadRequest, "exactly one file is required")
		return domain.File{}, false
	}
	return files[0], true
}

func decodeJSON(r *http.Request, into any) error {
	const maxBodyBytes = 1 << 20
	limited := io.LimitReader(r.Body, maxBodyBytes)
	decoder := json.NewDecoder(limited)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(into); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return errors.New("invalid JSON body: multiple JSON values are not allowed")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func unavailable(w http.ResponseWriter, what string) {
	writeError(w, http.StatusServiceUnavailable, what+" is not configured")
}
