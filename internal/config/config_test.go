package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"HTTP_ADDR", "DATA_DIR", "DATABASE_PATH", "WORKER_PATH",
		"MAX_CONCURRENT_JOBS", "MAX_JOB_HISTORY", "JOB_RETENTION_AGE",
		"JOB_RETENTION_COUNT", "IMPORT_FLUSH_EVERY", "THUMB_MAX_DIM",
		"S3_MIRROR_IMPORTS",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.HTTPAddr != "127.0.0.1:8471" {
		t.Fatalf("unexpected addr %s", cfg.HTTPAddr)
	}
	if cfg.MaxConcurrent != 2 || cfg.MaxHistory != 50 {
		t.Fatalf("unexpected scheduler defaults %d/%d", cfg.MaxConcurrent, cfg.MaxHistory)
	}
	if cfg.RetentionAge != 7*24*time.Hour || cfg.RetentionCount != 50 {
		t.Fatalf("unexpected retention defaults %v/%d", cfg.RetentionAge, cfg.RetentionCount)
	}
	if cfg.ImportFlushEvery != 5 || cfg.ThumbMaxDim != 320 {
		t.Fatalf("unexpected import defaults %d/%d", cfg.ImportFlushEvery, cfg.ThumbMaxDim)
	}
	if cfg.S3Mirror {
		t.Fatalf("mirroring must be off by default")
	}
	if cfg.DatabasePath != filepath.Join(cfg.DataDir, "trailcam.db") {
		t.Fatalf("database path must live under the data dir, got %s", cfg.DatabasePath)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", "127.0.0.1:9000")
	t.Setenv("DATA_DIR", "/srv/trailcam")
	t.Setenv("MAX_CONCURRENT_JOBS", "4")
	t.Setenv("JOB_RETENTION_AGE", "48h")
	t.Setenv("WORKER_PATH", "/opt/worker")
	t.Setenv("S3_MIRROR_IMPORTS", "true")

	cfg := Load()
	if cfg.HTTPAddr != "127.0.0.1:9000" {
		t.Fatalf("override ignored: %s", cfg.HTTPAddr)
	}
	if cfg.DataDir != "/srv/trailcam" || cfg.DatabasePath != "/srv/trailcam/trailcam.db" {
		t.Fatalf("data dir override ignored: %s %s", cfg.DataDir, cfg.DatabasePath)
	}
	if cfg.MaxConcurrent != 4 {
		t.Fatalf("concurrency override ignored: %d", cfg.MaxConcurrent)
	}
	if cfg.RetentionAge != 48*time.Hour {
		t.Fatalf("retention override ignored: %v", cfg.RetentionAge)
	}
	if cfg.WorkerPath != "/opt/worker" || !cfg.S3Mirror {
		t.Fatalf("worker/mirror overrides ignored: %s %v", cfg.WorkerPath, cfg.S3Mirror)
	}
}

func TestLoad_BadValuesFallBack(t *testing.T) {
	t.Setenv("MAX_CONCURRENT_JOBS", "many")
	t.Setenv("JOB_RETENTION_AGE", "soon")
	t.Setenv("S3_MIRROR_IMPORTS", "maybe")

	cfg := Load()
	if cfg.MaxConcurrent != 2 {
		t.Fatalf("expected default for bad int, got %d", cfg.MaxConcurrent)
	}
	if cfg.RetentionAge != 7*24*time.Hour {
		t.Fatalf("expected default for bad duration, got %v", cfg.RetentionAge)
	}
	if cfg.S3Mirror {
		t.Fatalf("expected default for bad bool")
	}
}
