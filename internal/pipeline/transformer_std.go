package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/webp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

type stdlibTransformer struct{}

func (t stdlibTransformer) Transform(_ context.Context, input []byte, limit, quality int) ([]byte, int, int, error) {
	src, err := imaging.Decode(bytes.NewReader(input), imaging.AutoOrientation(true))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	srcBounds := src.Bounds()
	if srcBounds.Dx() <= 0 || srcBounds.Dy() <= 0 {
		return nil, 0, 0, fmt.Errorf("%w: source image has invalid dimensions", ErrDecode)
	}

	out := fitWithin(src, limit)

	data, err := encodeWebP(out, quality)
	if err != nil {
		return nil, 0, 0, err
	}

	bounds := out.Bounds()
	return data, bounds.Dx(), bounds.Dy(), nil
}

func fitWithin(src image.Image, limit int) image.Image {
	srcBounds := src.Bounds()
	width, height := TargetDimensions(srcBounds.Dx(), srcBounds.Dy(), limit)

	dst := image.NewNRGBA(image.Rect(0, 0, width, height))
	if width == srcBounds.Dx() && height == srcBounds.Dy() {
		draw.Copy(dst, image.Point{}, src, srcBounds, draw.Src, nil)
		return dst
	}
	draw.BiLinear.Scale(dst, dst.Bounds(), src, srcBounds, draw.Src, nil)
	return dst
}

func encodeWebP(img image.Image, quality int) ([]byte, error) {
	if quality <= 0 || quality > 100 {
		quality = WebPQuality
	}

	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, webp.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncode, err)
	}
	if buf.Len() == 0 {
		return nil, fmt.Errorf("%w: %w", ErrEncode, errors.New("encoder produced no output"))
	}
	return buf.Bytes(), nil
}
