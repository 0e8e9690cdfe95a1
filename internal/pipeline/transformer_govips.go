//go:build govips && cgo

package pipeline

import (
	"context"
	"fmt"

	"github.com/davidbyttow/govips/v2/vips"
)

type govipsTransformer struct{}

func (t govipsTransformer) Transform(_ context.Context, input []byte, limit, quality int) ([]byte, int, int, error) {
	img, err := vips.NewImageFromBuffer(input)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	defer img.Close()

	if err := img.AutoRotate(); err != nil {
		return nil, 0, 0, fmt.Errorf("%w: auto-rotate: %w", ErrDecode, err)
	}
	if img.Width() <= 0 || img.Height() <= 0 {
		return nil, 0, 0, fmt.Errorf("%w: source image has invalid dimensions", ErrDecode)
	}

	if err := applyGovipsFit(img, limit); err != nil {
		return nil, 0, 0, err
	}

	params := vips.NewWebpExportParams()
	if quality > 0 && quality <= 100 {
		params.Quality = quality
	} else {
		params.Quality = WebPQuality
	}
	data, _, err := img.ExportWebp(params)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("%w: %w", ErrEncode, err)
	}

	return data, img.Width(), img.Height(), nil
}

func applyGovipsFit(img *vips.ImageRef, limit int) error {
	width, height := TargetDimensions(img.Width(), img.Height(), limit)
	if width == img.Width() && height == img.Height() {
		return nil
	}

	hScale := float64(width) / float64(img.Width())
	vScale := float64(height) / float64(img.Height())
	if err := img.ResizeWithVScale(hScale, vScale, vips.KernelLinear); err != nil {
		return fmt.Errorf("%w: resize image: %w", ErrEncode, err)
	}
	return nil
}
