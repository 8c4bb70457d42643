package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr         string
	DataDir          string
	DatabasePath     string
	WorkerPath       string
	MaxConcurrent    int
	MaxHistory       int
	RetentionAge     time.Duration
	RetentionCount   int
	ImportFlushEvery int
	ThumbMaxDim      int
	StorageMode      string
	S3Bucket         string
	S3Endpoint       string
	S3Region         string
	AWSAccessKey     string
	AWSSecretKey     string
	S3ForcePathStyle bool
	S3Mirror         bool
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func mustInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
		slog.Warn("bad int env, using default", "key", key, "value", v)
	}
	return def
}

func getBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if v == "true" || v == "1" {
			return true
		}
		if v == "false" || v == "0" {
			return false
		}
		slog.Warn("bad bool env, using default", "key", key, "value", v)
	}
	return def
}

func mustDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
		slog.Warn("bad duration env, using default", "key", key, "value", v)
	}
	return def
}

func loadEnvFiles() {
	envFiles := []string{
		".env.local",
		".env",
	}

	// try to find .env files starting from current directory and going up
	currentDir, err := os.Getwd()
	if err != nil {
		slog.Debug("failed to get current directory", "error", err)
		return
	}

	searchDirs := []string{currentDir}
	for i := 0; i < 3; i++ {
		parent := filepath.Dir(currentDir)
		if parent == currentDir {
			break // reached root
		}
		searchDirs = append(searchDirs, parent)
		currentDir = parent
	}

	loadedAny := false
	for _, dir := range searchDirs {
		for _, envFile := range envFiles {
			envPath := filepath.Join(dir, envFile)
			if _, err := os.Stat(envPath); err == nil {
				if err := godotenv.Load(envPath); err == nil {
					slog.Debug("loaded environment file", "path", envPath)
					loadedAny = true
				} else {
					slog.Debug("failed to load environment file", "path", envPath, "error", err)
				}
			}
		}
		if loadedAny {
			break
		}
	}

	if !loadedAny {
		slog.Debug("no .env files found, using system environment variables only")
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".trailcam")
}

func Load() Config {
	loadEnvFiles()
	dataDir := getenv("DATA_DIR", defaultDataDir())
	return Config{
		HTTPAddr:         getenv("HTTP_ADDR", "127.0.0.1:8471"),
		DataDir:          dataDir,
		DatabasePath:     getenv("DATABASE_PATH", filepath.Join(dataDir, "trailcam.db")),
		WorkerPath:       getenv("WORKER_PATH", ""),
		MaxConcurrent:    mustInt("MAX_CONCURRENT_JOBS", 2),
		MaxHistory:       mustInt("MAX_JOB_HISTORY", 50),
		RetentionAge:     mustDuration("JOB_RETENTION_AGE", 7*24*time.Hour),
		RetentionCount:   mustInt("JOB_RETENTION_COUNT", 50),
		ImportFlushEvery: mustInt("IMPORT_FLUSH_EVERY", 5),
		ThumbMaxDim:      mustInt("THUMB_MAX_DIM", 320),
		StorageMode:      getenv("STORAGE_MODE", "local"),
		S3Bucket:         getenv("S3_BUCKET", "trailcam-imports"),
		S3Endpoint:       getenv("S3_ENDPOINT", ""),
		S3Region:         getenv("S3_REGION", "us-east-1"),
		AWSAccessKey:     getenv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:     getenv("AWS_SECRET_ACCESS_KEY", ""),
		S3ForcePathStyle: getBool("S3_FORCE_PATH_STYLE", false),
		S3Mirror:         getBool("S3_MIRROR_IMPORTS", false),
	}
}
