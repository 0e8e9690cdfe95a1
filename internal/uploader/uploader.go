// Package uploader runs user-selected files through the normalizer and into
// the media store.
package uploader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/dunamismax/eventdesk/internal/domain"
	"github.com/dunamismax/eventdesk/internal/pipeline"
)

var ErrNotImage = errors.New("poster must be an image")

type Progress struct {
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Name    string `json:"name"`
}

type FileError struct {
	Name  string `json:"name"`
	Error string `json:"error"`
}

type Summary struct {
	Uploaded  []pipeline.Output `json:"uploaded"`
	Rejected  []string          `json:"rejected"`
	Failed    []FileError       `json:"failed"`
	Succeeded int               `json:"succeeded"`
	Total     int               `json:"total"`
}

// Complete reports whether every accepted file made it into the store.
func (s Summary) Complete() bool {
	return s.Succeeded == s.Total
}

type Uploader struct {
	processor   *pipeline.Processor
	concurrency int
	logger      *log.Logger
}

func New(processor *pipeline.Processor, concurrency int, logger *log.Logger) (*Uploader, error) {
	if processor == nil {
		return nil, errors.New("processor is required")
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Uploader{
		processor:   processor.WithPolicy(pipeline.FallbackOriginal),
		concurrency: concurrency,
		logger:      logger,
	}, nil
}

// Bulk uploads files into folder. Files the folder does not accept are
// rejected up front. Images that fail to normalize are uploaded as-is. One
// failed upload does not stop the rest; results keep input order.
func (u *Uploader) Bulk(ctx context.Context, folder string, files []domain.File, progress func(Progress)) (Summary, error) {
	if !domain.ValidFolder(folder) {
		return Summary{}, fmt.Errorf("unsupported folder: %s", folder)
	}
	folder = domain.NormalizeFolder(folder)

	req := domain.CreateUploadRequest{Folder: folder, Files: files}
	accepted, rejected := req.Partition()

	summary := Summary{Total: len(accepted)}
	for _, f := range rejected {
		summary.Rejected = append(summary.Rejected, f.Name)
	}

	outputs := make([]*pipeline.Output, len(accepted))
	failures := make([]error, len(accepted))

	var mu sync.Mutex
	done := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.concurrency)
	for i, file := range accepted {
		g.Go(func() error {
			out, err := u.processor.ProcessFile(gctx, folder, file)
			if err != nil {
				failures[i] = err
				u.logger.Printf("upload failed folder=%s name=%s err=%v", folder, file.Name, err)
			} else {
				outputs[i] = &out
				if out.Fallback {
					u.logger.Printf("normalize fallback folder=%s name=%s warning=%q", folder, file.Name, out.Warning)
				}
			}

			mu.Lock()
			done++
			if progress != nil {
				progress(Progress{Current: done, Total: len(accepted), Name: file.Name})
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	for i, file := range accepted {
		if failures[i] != nil {
			summary.Failed = append(summary.Failed, FileError{Name: file.Name, Error: failures[i].Error()})
			continue
		}
		summary.Uploaded = append(summary.Uploaded, *outputs[i])
		summary.Succeeded++
	}

	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

// PreparePoster normalizes an event poster and uploads it. Unlike Bulk, a
// poster that cannot be normalized is refused.
func (u *Uploader) PreparePoster(ctx context.Context, file domain.File) (pipeline.Output, error) {
	if !file.IsImage() {
		return pipeline.Output{}, fmt.Errorf("%w: %s", ErrNotImage, file.ContentType)
	}
	out, err := u.processor.WithPolicy(pipeline.Reject).ProcessFile(ctx, domain.FolderPosters, file)
	if err != nil {
		return pipeline.Output{}, fmt.Errorf("prepare poster %s: %w", file.Name, err)
	}
	return out, nil
}
