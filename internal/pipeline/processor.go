package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dunamismax/eventdesk/internal/domain"
)

// FailurePolicy decides what happens when an image cannot be normalized.
type FailurePolicy int

const (
	// FallbackOriginal uploads the untouched original.
	FallbackOriginal FailurePolicy = iota
	// Reject fails the request.
	Reject
)

var ErrMissingStage = errors.New("pipeline stage is not configured")

type Request struct {
	JobID       string
	Folder      string
	StagingKey  string
	Name        string
	ContentType string
}

type Output struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Bytes       int    `json:"bytes"`
	SourceBytes int    `json:"source_bytes"`
	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`
	Transcoded  bool   `json:"transcoded"`
	Fallback    bool   `json:"fallback,omitempty"`
	Warning     string `json:"warning,omitempty"`
}

type Fetcher interface {
	Fetch(ctx context.Context, key string) ([]byte, error)
}

// Emitter stores a prepared file under folder and returns its storage key.
type Emitter interface {
	Emit(ctx context.Context, folder string, file domain.File) (string, error)
}

type Processor struct {
	fetcher    Fetcher
	normalizer *Normalizer
	emitter    Emitter
	policy     FailurePolicy
}

func NewProcessor(fetcher Fetcher, normalizer *Normalizer, emitter Emitter, policy FailurePolicy) (*Processor, error) {
	if normalizer == nil {
		var err error
		normalizer, err = NewNormalizer()
		if err != nil {
			return nil, err
		}
	}
	if emitter == nil {
		return nil, fmt.Errorf("%w: emitter", ErrMissingStage)
	}
	return &Processor{
		fetcher:    fetcher,
		normalizer: normalizer,
		emitter:    emitter,
		policy:     policy,
	}, nil
}

// WithPolicy returns a copy of p that applies policy on normalization failure.
func (p *Processor) WithPolicy(policy FailurePolicy) *Processor {
	cp := *p
	cp.policy = policy
	return &cp
}

// Process fetches the staged source for req and runs it through ProcessFile.
func (p *Processor) Process(ctx context.Context, req Request) (Output, error) {
	if strings.TrimSpace(req.JobID) == "" {
		return Output{}, errors.New("job_id is required")
	}
	if p.fetcher == nil {
		return Output{}, fmt.Errorf("%w: fetcher", ErrMissingStage)
	}

	data, err := p.fetcher.Fetch(ctx, req.StagingKey)
	if err != nil {
		return Output{}, fmt.Errorf("fetch stage: %w", err)
	}

	return p.ProcessFile(ctx, req.Folder, domain.File{
		Name:        req.Name,
		ContentType: req.ContentType,
		Data:        data,
	})
}

// ProcessFile normalizes file and emits the result into folder.
func (p *Processor) ProcessFile(ctx context.Context, folder string, file domain.File) (Output, error) {
	if strings.TrimSpace(file.Name) == "" {
		return Output{}, errors.New("file name is required")
	}

	out := Output{SourceBytes: file.Size()}

	normalized, err := p.normalizer.Normalize(ctx, file)
	switch {
	case err == nil:
	case errors.Is(err, ErrProcessingFailed) && p.policy == FallbackOriginal:
		normalized = Normalized{File: file}
		out.Fallback = true
		out.Warning = err.Error()
	default:
		return Output{}, fmt.Errorf("normalize stage: %w", err)
	}

	key, err := p.emitter.Emit(ctx, folder, normalized.File)
	if err != nil {
		return Output{}, fmt.Errorf("emit stage: %w", err)
	}

	out.Key = key
	out.Name = normalized.File.Name
	out.ContentType = normalized.File.ContentType
	out.Bytes = normalized.File.Size()
	out.Width = normalized.Width
	out.Height = normalized.Height
	out.Transcoded = normalized.Transcoded
	return out, nil
}

// LocalStaging keeps staged uploads as files under Dir.
type LocalStaging struct {
	Dir string
}

func (s LocalStaging) Put(_ context.Context, key string, data []byte, _ string) error {
	fullPath, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return fmt.Errorf("write staged file: %w", err)
	}
	return nil
}

func (s LocalStaging) Fetch(ctx context.Context, key string) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	fullPath, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(fullPath)
	if err != nil {
		return nil, fmt.Errorf("read staged file %s: %w", key, err)
	}
	return data, nil
}

func (s LocalStaging) Remove(_ context.Context, key string) error {
	fullPath, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove staged file %s: %w", key, err)
	}
	return nil
}

func (s LocalStaging) path(key string) (string, error) {
	if strings.TrimSpace(s.Dir) == "" {
		return "", errors.New("staging directory is required")
	}
	clean := filepath.Clean("/" + key)
	return filepath.Join(s.Dir, clean), nil
}

// LocalFileEmitter writes prepared files to OutputDir/<folder prefix>/<name>.
type LocalFileEmitter struct {
	OutputDir string
}

func (e LocalFileEmitter) Emit(_ context.Context, folder string, file domain.File) (string, error) {
	if strings.TrimSpace(e.OutputDir) == "" {
		return "", errors.New("output directory is required")
	}

	key := domain.FolderPrefix(folder) + sanitizeFileName(file.Name)
	fullPath := filepath.Join(e.OutputDir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	if err := os.WriteFile(fullPath, file.Data, 0o644); err != nil {
		return "", fmt.Errorf("write output file: %w", err)
	}
	return key, nil
}

func sanitizePathToken(in string) string {
	return sanitize(in, false)
}

func sanitizeFileName(in string) string {
	return sanitize(in, true)
}

func sanitize(in string, keepDots bool) string {
	in = strings.TrimSpace(in)
	if in == "" {
		return "unknown"
	}

	var b strings.Builder
	b.Grow(len(in))
	for _, r := range in {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_':
			b.WriteRune(r)
		case r == '.' && keepDots:
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := strings.TrimLeft(b.String(), ".")
	if out == "" {
		return "unknown"
	}
	return out
}
