// Package media browses and prunes the media bucket through whichever backend
// fronts it.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"
	"golang.org/x/sync/errgroup"

	"github.com/dunamismax/eventdesk/internal/domain"
)

var ErrInvalidKey = errors.New("invalid media key")

// Backend is the media store. Both the CMS client and the bucket client
// satisfy it.
type Backend interface {
	ListMedia(ctx context.Context, prefix string) ([]domain.MediaFile, error)
	DeleteMedia(ctx context.Context, key string) error
	FetchMedia(ctx context.Context, key string) ([]byte, error)
}

type DeleteResult struct {
	Key   string `json:"key"`
	Error string `json:"error,omitempty"`
}

type Browser struct {
	backend     Backend
	tree        Tree
	concurrency int
}

func NewBrowser(backend Backend, tree Tree, concurrency int) (*Browser, error) {
	if backend == nil {
		return nil, errors.New("media backend is required")
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Browser{backend: backend, tree: tree, concurrency: concurrency}, nil
}

func (b *Browser) Tree() Tree {
	return b.tree
}

// List returns the files in a leaf folder. The folder placeholder object and
// nested folder markers are dropped.
func (b *Browser) List(ctx context.Context, prefix string) ([]domain.MediaFile, error) {
	prefix = cleanPrefix(prefix)
	if _, ok := b.tree.Lookup(prefix); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFolder, prefix)
	}
	if !b.tree.IsLeaf(prefix) {
		return nil, fmt.Errorf("%w: %s", ErrNotBrowsable, prefix)
	}

	files, err := b.backend.ListMedia(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}

	out := make([]domain.MediaFile, 0, len(files))
	for _, f := range files {
		if f.Key == prefix || strings.HasSuffix(f.Key, "/") {
			continue
		}
		out = append(out, f)
	}
	return out, nil
}

func (b *Browser) Delete(ctx context.Context, key string) error {
	if err := validKey(key); err != nil {
		return err
	}
	if err := b.backend.DeleteMedia(ctx, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// DeleteMany deletes keys concurrently and reports one result per key, in
// input order. A failed key does not stop the others.
func (b *Browser) DeleteMany(ctx context.Context, keys []string) []DeleteResult {
	results := make([]DeleteResult, len(keys))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)
	for i, key := range keys {
		results[i].Key = key
		g.Go(func() error {
			if err := b.Delete(gctx, key); err != nil {
				results[i].Error = err.Error()
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Archive writes a deflated zip of keys to w. Entries are named after the
// key's base name; repeated names get a numeric suffix.
func (b *Browser) Archive(ctx context.Context, w io.Writer, keys []string) error {
	if len(keys) == 0 {
		return fmt.Errorf("%w: no keys selected", ErrInvalidKey)
	}
	for _, key := range keys {
		if err := validKey(key); err != nil {
			return err
		}
	}

	zw := zip.NewWriter(w)
	names := make(map[string]int, len(keys))
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}

		data, err := b.backend.FetchMedia(ctx, key)
		if err != nil {
			return fmt.Errorf("fetch %s: %w", key, err)
		}

		entry, err := zw.CreateHeader(&zip.FileHeader{
			Name:     uniqueName(names, path.Base(key)),
			Method:   zip.Deflate,
			Modified: time.Now().UTC(),
		})
		if err != nil {
			return fmt.Errorf("create archive entry %s: %w", key, err)
		}
		if _, err := entry.Write(data); err != nil {
			return fmt.Errorf("write archive entry %s: %w", key, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finish archive: %w", err)
	}
	return nil
}

func uniqueName(seen map[string]int, name string) string {
	n := seen[name]
	seen[name] = n + 1
	if n == 0 {
		return name
	}

	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	candidate := stem + "-" + strconv.Itoa(n+1) + ext
	if _, taken := seen[candidate]; taken {
		return uniqueName(seen, candidate)
	}
	seen[candidate] = 1
	return candidate
}

func validKey(key string) error {
	trimmed := strings.TrimSpace(key)
	switch {
	case trimmed == "":
		return fmt.Errorf("%w: empty key", ErrInvalidKey)
	case strings.HasSuffix(trimmed, "/"):
		return fmt.Errorf("%w: %s is a folder", ErrInvalidKey, key)
	}
	for _, seg := range strings.Split(trimmed, "/") {
		if seg == ".." {
			return fmt.Errorf("%w: %s", ErrInvalidKey, key)
		}
	}
	return nil
}
