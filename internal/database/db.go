package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

type DB struct {
	sql *sql.DB

	// Path is the on-disk location of the database file. The reid worker
	// opens this file directly, so it must stay addressable by path.
	Path string
}

func NewDB(ctx context.Context, path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection serializes writers; the busy timeout covers the
	// worker process reading the same file.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	slog.Info("database opened", "path", path)
	return &DB{sql: db, Path: path}, nil
}

func (db *DB) Close() error {
	return db.sql.Close()
}

func (db *DB) Handle() *sql.DB {
	return db.sql
}

// WithTx executes a function within a database transaction.
// If the function returns an error, the transaction is rolled back.
// Otherwise, it's committed.
func (db *DB) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p) // re-throw panic after rollback
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.Error("failed to rollback transaction", "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, schema)
	return err
}

const schema = `
CREATE TABLE IF NOT EXISTS groups (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT NOT NULL UNIQUE,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS images (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	group_id   INTEGER NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
	path       TEXT NOT NULL,
	thumb_path TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_images_group ON images(group_id);

CREATE TABLE IF NOT EXISTS detection_batches (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS detections (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	batch_id       INTEGER NOT NULL REFERENCES detection_batches(id) ON DELETE CASCADE,
	image_id       INTEGER NOT NULL REFERENCES images(id) ON DELETE CASCADE,
	label          TEXT NOT NULL,
	bbox_x1        REAL NOT NULL,
	bbox_y1        REAL NOT NULL,
	bbox_x2        REAL NOT NULL,
	bbox_y2        REAL NOT NULL,
	pred_conf      REAL NOT NULL DEFAULT 0,
	detection_conf REAL NOT NULL DEFAULT 0,
	source         TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_detections_image ON detections(image_id);
CREATE INDEX IF NOT EXISTS idx_detections_batch ON detections(batch_id);

CREATE TABLE IF NOT EXISTS reid_runs (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	species    TEXT NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS reid_individuals (
	id     INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id INTEGER NOT NULL REFERENCES reid_runs(id) ON DELETE CASCADE,
	name   TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS reid_members (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	individual_id INTEGER NOT NULL REFERENCES reid_individuals(id) ON DELETE CASCADE,
	detection_id  INTEGER NOT NULL REFERENCES detections(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS jobs (
	id           TEXT PRIMARY KEY,
	type         TEXT NOT NULL,
	payload      TEXT NOT NULL DEFAULT '{}',
	status       TEXT NOT NULL,
	progress     INTEGER NOT NULL DEFAULT 0,
	message      TEXT NOT NULL DEFAULT '',
	error        TEXT NOT NULL DEFAULT '',
	created_at   INTEGER NOT NULL,
	completed_at INTEGER
);
CREATE INDEX IF NOT EXISTS idx_jobs_created ON jobs(created_at);
`
