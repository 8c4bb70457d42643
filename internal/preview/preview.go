// Package preview generates the scaled JPEG previews shown in the gallery.
package preview

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
)

// IsJPEG sniffs file content rather than trusting the extension; cameras and
// copy tools occasionally leave truncated or renamed files behind.
func IsJPEG(path string) bool {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return false
	}
	return mt.Is("image/jpeg")
}

// Generate writes a preview of src to dest, fitted within maxDim on the long
// edge, preserving aspect ratio.
func Generate(src, dest string, maxDim int) error {
	img, err := imaging.Open(src, imaging.AutoOrientation(true))
	if err != nil {
		return fmt.Errorf("failed to open image %s: %w", src, err)
	}

	thumb := imaging.Fit(img, maxDim, maxDim, imaging.Lanczos)

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("failed to create thumbnail directory: %w", err)
	}
	if err := imaging.Save(thumb, dest, imaging.JPEGQuality(85)); err != nil {
		return fmt.Errorf("failed to save thumbnail %s: %w", dest, err)
	}
	return nil
}
