package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/dunamismax/eventdesk/internal/domain"
)

const (
	// MaxDimension caps the longest edge of a normalized image.
	MaxDimension = 1920
	// WebPQuality is the lossy encoder quality on a 0-100 scale.
	WebPQuality = 80

	ContentTypeWebP = "image/webp"
)

var (
	ErrProcessingFailed = errors.New("image processing failed")
	ErrDecode           = errors.New("decode image")
	ErrEncode           = errors.New("encode image")
)

// Normalized is the outcome of Normalize. Width and Height are zero when the
// input was passed through untouched.
type Normalized struct {
	File       domain.File
	Width      int
	Height     int
	Transcoded bool
}

type Normalizer struct {
	transformer  Transformer
	maxDimension int
	quality      int
}

func NewNormalizer() (*Normalizer, error) {
	transformer, err := newTransformer()
	if err != nil {
		return nil, fmt.Errorf("build transformer: %w", err)
	}
	return newNormalizerWith(transformer), nil
}

func newNormalizerWith(t Transformer) *Normalizer {
	return &Normalizer{
		transformer:  t,
		maxDimension: MaxDimension,
		quality:      WebPQuality,
	}
}

// Normalize re-encodes an image as a dimension-capped WebP. Files whose media
// type is not image/* are returned as-is. Decode and encode failures are
// wrapped in ErrProcessingFailed and never produce partial output.
//
// The context is only consulted before work starts.
func (n *Normalizer) Normalize(ctx context.Context, file domain.File) (Normalized, error) {
	if !file.IsImage() {
		return Normalized{File: file}, nil
	}
	if err := ctx.Err(); err != nil {
		return Normalized{}, err
	}

	data, width, height, err := n.transformer.Transform(ctx, file.Data, n.maxDimension, n.quality)
	if err != nil {
		return Normalized{}, fmt.Errorf("%w: %s: %w", ErrProcessingFailed, file.Name, err)
	}

	return Normalized{
		File: domain.File{
			Name:        WebPName(file.Name),
			ContentType: ContentTypeWebP,
			Data:        data,
		},
		Width:      width,
		Height:     height,
		Transcoded: true,
	}, nil
}

// TargetDimensions scales (w, h) so the longest edge is at most limit. Ties
// cap the width. Neither edge drops below one pixel.
func TargetDimensions(w, h, limit int) (int, int) {
	if w <= limit && h <= limit {
		return w, h
	}
	if w >= h {
		return limit, atLeastOne(math.Round(float64(h) * (float64(limit) / float64(w))))
	}
	return atLeastOne(math.Round(float64(w) * (float64(limit) / float64(h)))), limit
}

func atLeastOne(v float64) int {
	if v < 1 {
		return 1
	}
	return int(v)
}

// WebPName swaps a trailing ".ext" for ".webp", or appends ".webp" when there is
// none. An extension is at least one character with no '.' or '/' after the dot.
func WebPName(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 && i < len(name)-1 && !strings.ContainsRune(name[i+1:], '/') {
		name = name[:i]
	}
	return name + ".webp"
}
