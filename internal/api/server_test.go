package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/klauspost/compress/zip"

	"github.com/dunamismax/eventdesk/internal/cmsapi"
	"github.com/dunamismax/eventdesk/internal/domain"
	"github.com/dunamismax/eventdesk/internal/importer"
	"github.com/dunamismax/eventdesk/internal/media"
	"github.com/dunamismax/eventdesk/internal/pipeline"
	"github.com/dunamismax/eventdesk/internal/queue"
	"github.com/dunamismax/eventdesk/internal/ratelimit"
	"github.com/dunamismax/eventdesk/internal/storage"
	"github.com/dunamismax/eventdesk/internal/store"
	"github.com/dunamismax/eventdesk/internal/uploader"
)

func TestHealthz(t *testing.T) {
	srv := NewServer(nil, Options{})
	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestNormalizeReturnsWebP(t *testing.T) {
	normalizer, err := pipeline.NewNormalizer()
	if err != nil {
		t.Fatalf("new normalizer: %v", err)
	}
	srv := NewServer(nil, Options{Normalizer: normalizer})

	body, ct := multipartBody(t, nil, filePart{field: "file", name: "wide.png", contentType: "image/png", data: pngBytes(t, 3000, 1000)})
	req := httptest.NewRequest(http.MethodPost, "/v1/normalize", body)
	req.Header.Set("Content-Type", ct)
	rec := serve(srv, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != pipeline.ContentTypeWebP {
		t.Fatalf("expected webp content type, got %s", got)
	}
	if rec.Header().Get("X-Image-Width") != "1920" || rec.Header().Get("X-Image-Height") != "640" {
		t.Fatalf("unexpected dimensions %sx%s", rec.Header().Get("X-Image-Width"), rec.Header().Get("X-Image-Height"))
	}
}

func TestNormalizeRejectsCorruptImage(t *testing.T) {
	normalizer, err := pipeline.NewNormalizer()
	if err != nil {
		t.Fatalf("new normalizer: %v", err)
	}
	srv := NewServer(nil, Options{Normalizer: normalizer})

	body, ct := multipartBody(t, nil, filePart{field: "file", name: "bad.png", contentType: "image/png", data: []byte("nope")})
	req := httptest.NewRequest(http.MethodPost, "/v1/normalize", body)
	req.Header.Set("Content-Type", ct)
	rec := serve(srv, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
}

func TestCreateUploadsQueuesAcceptedFiles(t *testing.T) {
	h := newUploadHarness(t)

	body, ct := multipartBody(t, map[string]string{"folder": "Photos"},
		filePart{field: "file", name: "a.png", contentType: "image/png", data: []byte("png")},
		filePart{field: "file", name: "clip.mp4", contentType: "video/mp4", data: []byte("mp4")},
	)
	req := httptest.NewRequest(http.MethodPost, "/v1/uploads", body)
	req.Header.Set("Content-Type", ct)
	rec := serve(h.srv, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp createUploadsResponse
	decodeBody(t, rec, &resp)
	if len(resp.Jobs) != 1 || len(resp.Rejected) != 1 || resp.Rejected[0] != "clip.mp4" {
		t.Fatalf("unexpected response %+v", resp)
	}
	job := resp.Jobs[0]
	if job.Status != domain.JobStatusQueued || job.Folder != domain.FolderPhotos {
		t.Fatalf("unexpected job %+v", job)
	}

	payloads := h.queue.enqueued()
	if len(payloads) != 1 || payloads[0].JobID != job.ID || payloads[0].StagingKey != job.StagingKey {
		t.Fatalf("unexpected enqueued payloads %+v", payloads)
	}
	staged, err := os.ReadFile(filepath.Join(h.stagingDir, filepath.FromSlash(job.StagingKey)))
	if err != nil || string(staged) != "png" {
		t.Fatalf("expected staged bytes, got %q err=%v", staged, err)
	}

	rec = serve(h.srv, httptest.NewRequest(http.MethodGet, "/v1/uploads/"+job.ID, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for job lookup, got %d", rec.Code)
	}
	rec = serve(h.srv, httptest.NewRequest(http.MethodGet, "/v1/uploads/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown job, got %d", rec.Code)
	}
}

func TestCreateUploadsAllRejected(t *testing.T) {
	h := newUploadHarness(t)

	body, ct := multipartBody(t, map[string]string{"folder": "videos"},
		filePart{field: "file", name: "a.png", contentType: "image/png", data: []byte("png")},
	)
	req := httptest.NewRequest(http.MethodPost, "/v1/uploads", body)
	req.Header.Set("Content-Type", ct)
	rec := serve(h.srv, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	if len(h.queue.enqueued()) != 0 {
		t.Fatal("expected nothing to be enqueued")
	}
}

func TestCreateUploadsRejectsUnknownFolder(t *testing.T) {
	h := newUploadHarness(t)

	body, ct := multipartBody(t, map[string]string{"folder": "docs"},
		filePart{field: "file", name: "a.png", contentType: "image/png", data: []byte("png")},
	)
	req := httptest.NewRequest(http.MethodPost, "/v1/uploads", body)
	req.Header.Set("Content-Type", ct)
	rec := serve(h.srv, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCreateUploadsEnqueueFailureMarksJobFailed(t *testing.T) {
	h := newUploadHarness(t)
	h.queue.err = errors.New("redis down")

	body, ct := multipartBody(t, map[string]string{"folder": "photos"},
		filePart{field: "file", name: "a.png", contentType: "image/png", data: []byte("png")},
	)
	req := httptest.NewRequest(http.MethodPost, "/v1/uploads", body)
	req.Header.Set("Content-Type", ct)
	rec := serve(h.srv, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
	var resp createUploadsResponse
	decodeBody(t, rec, &resp)
	if len(resp.Failed) != 1 || resp.Failed[0].Name != "a.png" {
		t.Fatalf("expected one failure, got %+v", resp)
	}
}

func TestCreatePosterMapsErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"success", nil, http.StatusCreated},
		{"not an image", uploader.ErrNotImage, http.StatusUnsupportedMediaType},
		{"processing", fmt.Errorf("normalize stage: %w", pipeline.ErrProcessingFailed), http.StatusUnprocessableEntity},
		{"cms conflict", &cmsapi.APIError{Status: http.StatusConflict, Message: "exists"}, http.StatusConflict},
		{"cms outage", &cmsapi.APIError{Status: http.StatusInternalServerError, Message: "boom"}, http.StatusBadGateway},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := NewServer(nil, Options{Posters: fakePosters{err: tc.err}})
			body, ct := multipartBody(t, nil, filePart{field: "file", name: "p.png", contentType: "image/png", data: []byte("x")})
			req := httptest.NewRequest(http.MethodPost, "/v1/posters", body)
			req.Header.Set("Content-Type", ct)
			rec := serve(srv, req)
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestEventRoutes(t *testing.T) {
	events := newFakeEvents()
	srv := NewServer(nil, Options{Events: events})

	rec := serve(srv, jsonRequest(t, http.MethodPost, "/v1/events", map[string]any{"event_name": "  "}))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank name, got %d", rec.Code)
	}

	rec = serve(srv, jsonRequest(t, http.MethodPost, "/v1/events", map[string]any{
		"event_name":       "Hackathon",
		"start_date_time":  "2024-05-01T18:30",
		"price_per_person": "250",
		"is_special_event": "1",
	}))
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created domain.Event
	decodeBody(t, rec, &created)
	if created.ID != 1 || created.StartDateTime != "2024-05-01 18:30:00" || created.PricePerPerson != 250 || !bool(created.IsSpecialEvent) {
		t.Fatalf("unexpected created event %+v", created)
	}

	rec = serve(srv, httptest.NewRequest(http.MethodGet, "/v1/events/1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	rec = serve(srv, httptest.NewRequest(http.MethodGet, "/v1/events/99", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	rec = serve(srv, httptest.NewRequest(http.MethodGet, "/v1/events/abc", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad id, got %d", rec.Code)
	}

	rec = serve(srv, jsonRequest(t, http.MethodPut, "/v1/events/1", map[string]any{"event_name": "Hackathon 2"}))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for update, got %d", rec.Code)
	}
	if events.byID[1].EventName != "Hackathon 2" {
		t.Fatalf("expected update to reach the service, got %+v", events.byID[1])
	}

	rec = serve(srv, httptest.NewRequest(http.MethodGet, "/v1/events", nil))
	var listed []domain.Event
	decodeBody(t, rec, &listed)
	if len(listed) != 1 {
		t.Fatalf("expected one event, got %d", len(listed))
	}

	rec = serve(srv, httptest.NewRequest(http.MethodDelete, "/v1/events/1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for delete, got %d", rec.Code)
	}
	if _, ok := events.byID[1]; ok {
		t.Fatal("expected event to be deleted")
	}
}

func TestEventUpstreamErrorsPassThrough(t *testing.T) {
	events := newFakeEvents()
	events.err = &cmsapi.APIError{Status: http.StatusUnprocessableEntity, Message: "venue is required"}
	srv := NewServer(nil, Options{Events: events})

	rec := serve(srv, jsonRequest(t, http.MethodPost, "/v1/events", map[string]any{"event_name": "Talk"}))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	var body map[string]string
	decodeBody(t, rec, &body)
	if body["error"] != "venue is required" {
		t.Fatalf("expected upstream message, got %v", body)
	}
}

func TestImportEvents(t *testing.T) {
	events := newFakeEvents()
	srv := NewServer(nil, Options{Events: events, Importer: importer.New(events, nil)})

	csv := "event_name,price_per_person\nTalk,abc\n,10\nWorkshop,50\n"
	body, ct := multipartBody(t, nil, filePart{field: "file", name: "events.csv", contentType: "text/csv", data: []byte(csv)})
	req := httptest.NewRequest(http.MethodPost, "/v1/events/import", body)
	req.Header.Set("Content-Type", ct)
	rec := serve(srv, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var report importer.Report
	decodeBody(t, rec, &report)
	if report.Total != 3 || report.Created != 2 || report.Skipped != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	if events.byID[1].PricePerPerson != 0 {
		t.Fatalf("expected unparsable price to fall back to 0, got %v", events.byID[1].PricePerPerson)
	}
}

func TestMediaRoutes(t *testing.T) {
	backend := &fakeMediaBackend{objects: map[string][]byte{
		"images/photos/":      nil,
		"images/photos/a.jpg": []byte("a"),
		"images/photos/b.jpg": []byte("b"),
	}}
	browser, err := media.NewBrowser(backend, media.DefaultTree(), 2)
	if err != nil {
		t.Fatalf("new browser: %v", err)
	}
	srv := NewServer(nil, Options{Media: browser})

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/v1/media?prefix=images/photos/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var listed struct {
		Files []domain.MediaFile `json:"files"`
	}
	decodeBody(t, rec, &listed)
	if len(listed.Files) != 2 {
		t.Fatalf("expected two files, got %+v", listed.Files)
	}

	if rec := serve(srv, httptest.NewRequest(http.MethodGet, "/v1/media?prefix=images/", nil)); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-leaf folder, got %d", rec.Code)
	}
	if rec := serve(srv, httptest.NewRequest(http.MethodGet, "/v1/media?prefix=docs/", nil)); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown folder, got %d", rec.Code)
	}

	rec = serve(srv, httptest.NewRequest(http.MethodGet, "/v1/media/folders?path=images/posters/", nil))
	var view folderView
	decodeBody(t, rec, &view)
	if !view.Leaf || len(view.Breadcrumbs) != 2 {
		t.Fatalf("unexpected folder view %+v", view)
	}

	rec = serve(srv, jsonRequest(t, http.MethodPost, "/v1/media/archive", mediaKeysRequest{Keys: []string{"images/photos/a.jpg", "images/photos/b.jpg"}}))
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "application/zip" {
		t.Fatalf("expected zip, got %d %s", rec.Code, rec.Header().Get("Content-Type"))
	}
	zr, err := zip.NewReader(bytes.NewReader(rec.Body.Bytes()), int64(rec.Body.Len()))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	if len(zr.File) != 2 {
		t.Fatalf("expected two entries, got %d", len(zr.File))
	}

	rec = serve(srv, jsonRequest(t, http.MethodPost, "/v1/media/delete", mediaKeysRequest{Keys: []string{"images/photos/a.jpg", "../etc"}}))
	var deleted struct {
		Deleted int                  `json:"deleted"`
		Failed  int                  `json:"failed"`
		Results []media.DeleteResult `json:"results"`
	}
	decodeBody(t, rec, &deleted)
	if deleted.Deleted != 1 || deleted.Failed != 1 || deleted.Results[1].Error == "" {
		t.Fatalf("unexpected delete result %+v", deleted)
	}

	rec = serve(srv, httptest.NewRequest(http.MethodDelete, "/v1/media?key=images/photos/b.jpg", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if _, ok := backend.objects["images/photos/b.jpg"]; ok {
		t.Fatal("expected object to be deleted")
	}
}

func TestDeleteMissingObjectReturns404(t *testing.T) {
	browser, err := media.NewBrowser(missingBackend{}, media.DefaultTree(), 1)
	if err != nil {
		t.Fatalf("new browser: %v", err)
	}
	srv := NewServer(nil, Options{Media: browser})

	rec := serve(srv, httptest.NewRequest(http.MethodDelete, "/v1/media?key=videos/gone.mp4", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestUnconfiguredRoutesReturn503(t *testing.T) {
	srv := NewServer(nil, Options{})
	for _, path := range []string{"/v1/media?prefix=videos/", "/v1/events", "/v1/usage"} {
		if rec := serve(srv, httptest.NewRequest(http.MethodGet, path, nil)); rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("%s: expected 503, got %d", path, rec.Code)
		}
	}
}

func TestUsageReportsPerFolder(t *testing.T) {
	usage := store.NewMemoryJobStore()
	if err := usage.RecordUsage(context.Background(), domain.UsageLog{JobID: "j1", Folder: "photos", BytesIn: 10, BytesOut: 4, BytesSaved: 6}); err != nil {
		t.Fatalf("record usage: %v", err)
	}
	srv := NewServer(nil, Options{Usage: usage})

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/v1/usage", nil))
	var body struct {
		Folders []store.UsageSummary `json:"folders"`
	}
	decodeBody(t, rec, &body)
	if len(body.Folders) != 1 || body.Folders[0].BytesSaved != 6 {
		t.Fatalf("unexpected usage %+v", body)
	}
}

func TestRateLimitAppliesToWrites(t *testing.T) {
	limiter := &fakeLimiter{allow: false}
	srv := NewServer(nil, Options{Events: newFakeEvents(), RateLimiter: limiter})

	rec := serve(srv, httptest.NewRequest(http.MethodGet, "/v1/events", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected reads to pass, got %d", rec.Code)
	}

	req := jsonRequest(t, http.MethodPost, "/v1/events", map[string]any{"event_name": "Talk"})
	req.Header.Set("X-User-ID", "u1")
	rec = serve(srv, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "5" {
		t.Fatalf("expected Retry-After 5, got %q", rec.Header().Get("Retry-After"))
	}
	if got := limiter.lastSubject(); got != "u1:POST /v1/events" {
		t.Fatalf("unexpected limiter subject %q", got)
	}
}

func TestRouteLabelUsesPattern(t *testing.T) {
	srv := NewServer(nil, Options{})
	cases := map[string]string{
		"/v1/events/42":   "GET /v1/events/{id}",
		"/v1/uploads/abc": "GET /v1/uploads/{id}",
		"/nowhere":        "unmatched",
	}
	for path, want := range cases {
		if got := srv.routeLabel(httptest.NewRequest(http.MethodGet, path, nil)); got != want {
			t.Fatalf("routeLabel(%s) = %q, want %q", path, got, want)
		}
	}
}

type uploadHarness struct {
	srv        *Server
	queue      *fakeQueue
	stagingDir string
}

func newUploadHarness(t *testing.T) uploadHarness {
	t.Helper()
	dir := t.TempDir()
	q := &fakeQueue{}
	srv := NewServer(nil, Options{
		Queue:   q,
		Staging: pipeline.LocalStaging{Dir: dir},
		Jobs:    store.NewMemoryJobStore(),
	})
	return uploadHarness{srv: srv, queue: q, stagingDir: dir}
}

type fakeQueue struct {
	mu       sync.Mutex
	err      error
	payloads []queue.UploadPayload
}

func (q *fakeQueue) EnqueueUpload(_ context.Context, payload queue.UploadPayload) (*asynq.TaskInfo, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return nil, q.err
	}
	q.payloads = append(q.payloads, payload)
	return &asynq.TaskInfo{ID: payload.JobID}, nil
}

func (q *fakeQueue) enqueued() []queue.UploadPayload {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]queue.UploadPayload(nil), q.payloads...)
}

type fakePosters struct {
	err error
}

func (f fakePosters) PreparePoster(_ context.Context, file domain.File) (pipeline.Output, error) {
	if f.err != nil {
		return pipeline.Output{}, f.err
	}
	return pipeline.Output{Key: "images/posters/" + file.Name, Name: file.Name}, nil
}

type fakeEvents struct {
	mu     sync.Mutex
	nextID int
	byID   map[int]domain.Event
	err    error
}

func newFakeEvents() *fakeEvents {
	return &fakeEvents{byID: make(map[int]domain.Event)}
}

func (f *fakeEvents) ListEvents(context.Context) ([]domain.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Event, 0, len(f.byID))
	for _, ev := range f.byID {
		out = append(out, ev)
	}
	return out, f.err
}

func (f *fakeEvents) GetEvent(_ context.Context, id int) (domain.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ev, ok := f.byID[id]
	if !ok {
		return domain.Event{}, cmsapi.ErrEventNotFound
	}
	return ev, nil
}

func (f *fakeEvents) CreateEvent(_ context.Context, ev domain.Event) (domain.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return domain.Event{}, f.err
	}
	f.nextID++
	ev.ID = f.nextID
	f.byID[ev.ID] = ev
	return ev, nil
}

func (f *fakeEvents) UpdateEvent(_ context.Context, id int, ev domain.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[id]; !ok {
		return cmsapi.ErrEventNotFound
	}
	ev.ID = id
	f.byID[id] = ev
	return nil
}

func (f *fakeEvents) DeleteEvent(_ context.Context, id int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.byID, id)
	return nil
}

type fakeMediaBackend struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (b *fakeMediaBackend) ListMedia(_ context.Context, prefix string) ([]domain.MediaFile, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []domain.MediaFile
	for key, data := range b.objects {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			out = append(out, domain.MediaFile{Key: key, Size: int64(len(data)), Uploaded: time.Unix(0, 0).UTC()})
		}
	}
	return out, nil
}

func (b *fakeMediaBackend) DeleteMedia(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, key)
	return nil
}

func (b *fakeMediaBackend) FetchMedia(_ context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[key]
	if !ok {
		return nil, os.ErrNotExist
	}
	return data, nil
}

type missingBackend struct{}

func (missingBackend) ListMedia(context.Context, string) ([]domain.MediaFile, error) {
	return nil, nil
}

func (missingBackend) DeleteMedia(_ context.Context, key string) error {
	return fmt.Errorf("%w: %s", storage.ErrObjectNotFound, key)
}

func (missingBackend) FetchMedia(_ context.Context, key string) ([]byte, error) {
	return nil, fmt.Errorf("%w: %s", storage.ErrObjectNotFound, key)
}

type fakeLimiter struct {
	mu      sync.Mutex
	allow   bool
	subject string
}

func (l *fakeLimiter) Allow(_ context.Context, subject string) (ratelimit.Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subject = subject
	return ratelimit.Decision{Allowed: l.allow, RetryAfter: 5 * time.Second}, nil
}

func (l *fakeLimiter) lastSubject() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.subject
}

type filePart struct {
	field       string
	name        string
	contentType string
	data        []byte
}

func multipartBody(t *testing.T, fields map[string]string, parts ...filePart) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	for _, p := range parts {
		hdr := make(textproto.MIMEHeader)
		hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, p.field, p.name))
		hdr.Set("Content-Type", p.contentType)
		w, err := mw.CreatePart(hdr)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		if _, err := w.Write(p.data); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	req := httptest.NewRequest(method, target, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func serve(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, into any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(into); err != nil {
		t.Fatalf("decode response (status %d): %v", rec.Code, err)
	}
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y += 7 {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}
