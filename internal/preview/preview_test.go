package preview

import (
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
)

func writeImage(t *testing.T, path string, w, h int, encode func(*os.File, image.Image) error) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 120, A: 255})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()
	if err := encode(f, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
}

func encodeJPEG(f *os.File, img image.Image) error { return jpeg.Encode(f, img, nil) }
func encodePNG(f *os.File, img image.Image) error  { return png.Encode(f, img) }

func TestIsJPEG_SniffsContentNotExtension(t *testing.T) {
	dir := t.TempDir()

	real := filepath.Join(dir, "real.jpg")
	writeImage(t, real, 10, 10, encodeJPEG)
	if !IsJPEG(real) {
		t.Fatalf("expected real JPEG to be accepted")
	}

	// PNG content behind a .jpg extension must be rejected.
	disguised := filepath.Join(dir, "disguised.jpg")
	writeImage(t, disguised, 10, 10, encodePNG)
	if IsJPEG(disguised) {
		t.Fatalf("expected disguised PNG to be rejected")
	}

	if IsJPEG(filepath.Join(dir, "missing.jpg")) {
		t.Fatalf("expected missing file to be rejected")
	}
}

func TestGenerate_FitsWithinMaxDim(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.jpg")
	writeImage(t, src, 400, 200, encodeJPEG)

	dest := filepath.Join(dir, "thumbs", "1.jpg")
	if err := Generate(src, dest, 100); err != nil {
		t.Fatalf("Generate error: %v", err)
	}

	thumb, err := imaging.Open(dest)
	if err != nil {
		t.Fatalf("open thumbnail: %v", err)
	}
	bounds := thumb.Bounds()
	if bounds.Dx() != 100 || bounds.Dy() != 50 {
		t.Fatalf("expected 100x50 thumbnail preserving aspect, got %dx%d", bounds.Dx(), bounds.Dy())
	}
}

func TestGenerate_MissingSourceFails(t *testing.T) {
	if err := Generate("/nonexistent.jpg", filepath.Join(t.TempDir(), "out.jpg"), 100); err == nil {
		t.Fatalf("expected error for missing source")
	}
}
