package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"testing"

	"github.com/dunamismax/eventdesk/internal/domain"
)

func TestNormalizePassesThroughNonImages(t *testing.T) {
	n := newNormalizerWith(failingTransformer{err: errors.New("must not be called")})
	in := domain.File{Name: "clip.mp4", ContentType: "video/mp4", Data: []byte{0, 1, 2, 3}}

	out, err := n.Normalize(context.Background(), in)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if out.Transcoded {
		t.Fatal("expected pass-through for video input")
	}
	if out.File.Name != in.Name || out.File.ContentType != in.ContentType || !bytes.Equal(out.File.Data, in.Data) {
		t.Fatalf("expected identical file, got %+v", out.File)
	}
}

func TestNormalizeScenarios(t *testing.T) {
	n := newTestNormalizer(t)

	cases := []struct {
		name       string
		file       domain.File
		wantName   string
		wantWidth  int
		wantHeight int
	}{
		{
			name:       "landscape jpeg is capped on width",
			file:       jpegFile(t, "landscape.jpg", 3840, 2160),
			wantName:   "landscape.webp",
			wantWidth:  1920,
			wantHeight: 1080,
		},
		{
			name:       "portrait already at the cap is unchanged",
			file:       jpegFile(t, "portrait.jpg", 1080, 1920),
			wantName:   "portrait.webp",
			wantWidth:  1080,
			wantHeight: 1920,
		},
		{
			name:       "tall portrait is capped on height",
			file:       jpegFile(t, "tall.jpg", 1200, 2400),
			wantName:   "tall.webp",
			wantWidth:  960,
			wantHeight: 1920,
		},
		{
			name:       "small png is only re-encoded",
			file:       pngFile(t, "icon.PNG", 200, 200),
			wantName:   "icon.webp",
			wantWidth:  200,
			wantHeight: 200,
		},
		{
			name:       "name without extension",
			file:       pngFile(t, "noext", 64, 32),
			wantName:   "noext.webp",
			wantWidth:  64,
			wantHeight: 32,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := n.Normalize(context.Background(), tc.file)
			if err != nil {
				t.Fatalf("normalize: %v", err)
			}
			if !out.Transcoded {
				t.Fatal("expected image to be transcoded")
			}
			if out.File.ContentType != ContentTypeWebP {
				t.Fatalf("expected %s, got %s", ContentTypeWebP, out.File.ContentType)
			}
			if out.File.Name != tc.wantName {
				t.Fatalf("expected name %s, got %s", tc.wantName, out.File.Name)
			}
			if out.Width != tc.wantWidth || out.Height != tc.wantHeight {
				t.Fatalf("expected %dx%d, got %dx%d", tc.wantWidth, tc.wantHeight, out.Width, out.Height)
			}

			cfg, format, err := image.DecodeConfig(bytes.NewReader(out.File.Data))
			if err != nil {
				t.Fatalf("decode output config: %v", err)
			}
			if format != "webp" {
				t.Fatalf("expected webp payload, got %s", format)
			}
			if cfg.Width != tc.wantWidth || cfg.Height != tc.wantHeight {
				t.Fatalf("encoded payload is %dx%d, want %dx%d", cfg.Width, cfg.Height, tc.wantWidth, tc.wantHeight)
			}
		})
	}
}

func TestNormalizeIsStableForCompliantImages(t *testing.T) {
	n := newTestNormalizer(t)

	first, err := n.Normalize(context.Background(), jpegFile(t, "hall.jpg", 800, 600))
	if err != nil {
		t.Fatalf("first pass: %v", err)
	}
	second, err := n.Normalize(context.Background(), first.File)
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}

	if second.Width != 800 || second.Height != 600 {
		t.Fatalf("expected 800x600 after second pass, got %dx%d", second.Width, second.Height)
	}
	if second.File.Name != "hall.webp" || second.File.ContentType != ContentTypeWebP {
		t.Fatalf("unexpected second pass file: %s %s", second.File.Name, second.File.ContentType)
	}
}

func TestNormalizeRejectsCorruptImage(t *testing.T) {
	n := newTestNormalizer(t)

	out, err := n.Normalize(context.Background(), domain.File{
		Name:        "broken.png",
		ContentType: "image/png",
		Data:        []byte("definitely not a png"),
	})
	if err == nil {
		t.Fatal("expected error for corrupt image")
	}
	if !errors.Is(err, ErrProcessingFailed) || !errors.Is(err, ErrDecode) {
		t.Fatalf("expected processing failure wrapping decode error, got %v", err)
	}
	if out.File.Data != nil || out.File.Name != "" {
		t.Fatalf("expected no output on failure, got %+v", out.File)
	}
}

func TestNormalizeReportsEncodeFailure(t *testing.T) {
	n := newNormalizerWith(failingTransformer{err: ErrEncode})

	_, err := n.Normalize(context.Background(), domain.File{Name: "a.png", ContentType: "image/png"})
	if !errors.Is(err, ErrProcessingFailed) || !errors.Is(err, ErrEncode) {
		t.Fatalf("expected processing failure wrapping encode error, got %v", err)
	}
}

func TestNormalizeHonoursCanceledContextBeforeStart(t *testing.T) {
	n := newNormalizerWith(failingTransformer{err: errors.New("must not be called")})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := n.Normalize(ctx, domain.File{Name: "a.png", ContentType: "image/png"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestTargetDimensions(t *testing.T) {
	cases := []struct {
		w, h         int
		wantW, wantH int
	}{
		{3840, 2160, 1920, 1080},
		{1080, 1920, 1080, 1920},
		{1200, 2400, 960, 1920},
		{200, 200, 200, 200},
		{1920, 1920, 1920, 1920},
		{4000, 4000, 1920, 1920},
		{2000, 1999, 1920, 1919},
		{5000, 1, 1920, 1},
		{1, 5000, 1, 1920},
	}
	for _, tc := range cases {
		gotW, gotH := TargetDimensions(tc.w, tc.h, MaxDimension)
		if gotW != tc.wantW || gotH != tc.wantH {
			t.Fatalf("TargetDimensions(%d, %d) = %dx%d, want %dx%d", tc.w, tc.h, gotW, gotH, tc.wantW, tc.wantH)
		}
	}
}

func TestTargetDimensionsProperties(t *testing.T) {
	for w := 1; w <= 6000; w += 257 {
		for h := 1; h <= 6000; h += 263 {
			gotW, gotH := TargetDimensions(w, h, MaxDimension)
			if max(gotW, gotH) > MaxDimension {
				t.Fatalf("%dx%d -> %dx%d exceeds cap", w, h, gotW, gotH)
			}
			if max(w, h) <= MaxDimension && (gotW != w || gotH != h) {
				t.Fatalf("%dx%d should be unchanged, got %dx%d", w, h, gotW, gotH)
			}
			if max(w, h) > MaxDimension {
				if max(gotW, gotH) != MaxDimension {
					t.Fatalf("%dx%d -> %dx%d should touch the cap", w, h, gotW, gotH)
				}
				short, exact := gotH, float64(h)*MaxDimension/float64(w)
				if w < h {
					short, exact = gotW, float64(w)*MaxDimension/float64(h)
				}
				if exact >= 0.5 && math.Abs(float64(short)-exact) > 0.5+1e-9 {
					t.Fatalf("%dx%d -> %dx%d breaks aspect ratio (exact short edge %.3f)", w, h, gotW, gotH, exact)
				}
			}
		}
	}
}

func TestWebPName(t *testing.T) {
	cases := map[string]string{
		"photo.PNG":      "photo.webp",
		"noext":          "noext.webp",
		"archive.tar.gz": "archive.tar.webp",
		"dir.v2/file":    "dir.v2/file.webp",
		"trailing.":      "trailing..webp",
		"already.webp":   "already.webp",
	}
	for in, want := range cases {
		if got := WebPName(in); got != want {
			t.Fatalf("WebPName(%q) = %q, want %q", in, got, want)
		}
	}
}

type failingTransformer struct {
	err error
}

func (f failingTransformer) Transform(context.Context, []byte, int, int) ([]byte, int, int, error) {
	return nil, 0, 0, f.err
}

func newTestNormalizer(t testing.TB) *Normalizer {
	t.Helper()
	n, err := NewNormalizer()
	if err != nil {
		t.Fatalf("new normalizer: %v", err)
	}
	return n
}

func gradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{
				R: uint8((x * 255) / w),
				G: uint8((y * 255) / h),
				B: 140,
				A: 255,
			})
		}
	}
	return img
}

func jpegFile(t testing.TB, name string, w, h int) domain.File {
	t.Helper()

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, gradient(w, h), &jpeg.Options{Quality: 85}); err != nil {
		t.Fatalf("encode source jpeg: %v", err)
	}
	return domain.File{Name: name, ContentType: "image/jpeg", Data: buf.Bytes()}
}

func pngFile(t testing.TB, name string, w, h int) domain.File {
	t.Helper()

	var buf bytes.Buffer
	if err := png.Encode(&buf, gradient(w, h)); err != nil {
		t.Fatalf("encode source png: %v", err)
	}
	return domain.File{Name: name, ContentType: "image/png", Data: buf.Bytes()}
}
