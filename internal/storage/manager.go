// Package storage owns the managed image tree under the data directory and,
// when configured, mirrors imported originals to S3.
package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Manager lays the data directory out as:
//
//	images/<subdir>/...   copied originals from removable/network sources
//	thumbs/               generated previews
//	tmp/                  worker manifests and result files
//	logs/                 worker log output
type Manager struct {
	baseDir string
	mirror  Mirror
}

func NewManager(baseDir string, mirror Mirror) (*Manager, error) {
	for _, dir := range []string{"", "images", "thumbs", "tmp", "logs"} {
		if err := os.MkdirAll(filepath.Join(baseDir, dir), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
	}
	return &Manager{baseDir: baseDir, mirror: mirror}, nil
}

func (m *Manager) ImagesDir() string { return filepath.Join(m.baseDir, "images") }
func (m *Manager) ThumbsDir() string { return filepath.Join(m.baseDir, "thumbs") }
func (m *Manager) TempDir() string   { return filepath.Join(m.baseDir, "tmp") }
func (m *Manager) LogsDir() string   { return filepath.Join(m.baseDir, "logs") }

// ThumbPath is where the preview for an image id lives.
func (m *Manager) ThumbPath(imageID int64) string {
	return filepath.Join(m.ThumbsDir(), fmt.Sprintf("%d.jpg", imageID))
}

// ImportFile copies src into the managed image tree under subdir, picking a
// collision-safe name, and returns the destination path. When a mirror is
// configured the original is also pushed there; mirror failures are logged,
// never fatal.
func (m *Manager) ImportFile(ctx context.Context, src, subdir string) (string, error) {
	destDir := filepath.Join(m.ImagesDir(), subdir)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create import directory: %w", err)
	}

	dest := collisionSafePath(destDir, filepath.Base(src))
	if err := copyFile(src, dest); err != nil {
		return "", err
	}

	if m.mirror != nil {
		key := filepath.ToSlash(filepath.Join(subdir, filepath.Base(dest)))
		if err := m.mirror.Upload(ctx, key, dest); err != nil {
			slog.Warn("failed to mirror imported file", "key", key, "error", err)
		}
	}

	return dest, nil
}

// collisionSafePath appends a numeric suffix until the name is free.
func collisionSafePath(dir, name string) string {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	candidate := filepath.Join(dir, name)
	for i := 1; ; i++ {
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
		candidate = filepath.Join(dir, fmt.Sprintf("%s_%d%s", stem, i, ext))
	}
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dest)
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dest)
		return fmt.Errorf("failed to flush %s: %w", dest, err)
	}
	return nil
}
