package jobstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/mvetrova/trailcam/internal/database"
	"github.com/mvetrova/trailcam/internal/job"
)

// SQLiteStore keeps job rows in the application database.
type SQLiteStore struct {
	db *database.DB
}

func NewSQLiteStore(db *database.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) InsertOrReplace(ctx context.Context, j *job.Job) error {
	payload, err := job.MarshalPayload(j.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	var completed *int64
	if j.CompletedAt != nil {
		ms := j.CompletedAt.UnixMilli()
		completed = &ms
	}

	_, err = s.db.Handle().ExecContext(ctx, `
		INSERT OR REPLACE INTO jobs (id, type, payload, status, progress, message, error, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID, string(j.Type), string(payload), string(j.Status), j.Progress,
		j.Message, j.Error, j.CreatedAt.UnixMilli(), completed)
	if err != nil {
		return fmt.Errorf("save job %s: %w", j.ID, err)
	}
	return nil
}

func (s *SQLiteStore) UpdateFields(ctx context.Context, id string, f Fields) error {
	var sets []string
	var args []any

	if f.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*f.Status))
	}
	if f.Progress != nil {
		sets = append(sets, "progress = ?")
		args = append(args, *f.Progress)
	}
	if f.Message != nil {
		sets = append(sets, "message = ?")
		args = append(args, *f.Message)
	}
	if f.Error != nil {
		sets = append(sets, "error = ?")
		args = append(args, *f.Error)
	}
	if f.Payload != nil {
		payload, err := job.MarshalPayload(f.Payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		sets = append(sets, "payload = ?")
		args = append(args, string(payload))
	}
	if f.CompletedAt != nil {
		sets = append(sets, "completed_at = ?")
		args = append(args, f.CompletedAt.UnixMilli())
	}
	if len(sets) == 0 {
		return nil
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE jobs SET %s WHERE id = ?", strings.Join(sets, ", "))
	if _, err := s.db.Handle().ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update job %s: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.Handle().ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete job %s: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) LoadRecent(ctx context.Context, limit int) ([]*job.Job, error) {
	rows, err := s.db.Handle().QueryContext(ctx, `
		SELECT id, type, payload, status, progress, message, error, created_at, completed_at
		FROM jobs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("load jobs: %w", err)
	}
	defer rows.Close()

	var out []*job.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

const terminalStatuses = `'completed', 'failed', 'cancelled'`

// Prune deletes terminal rows that are older than maxAge or beyond the
// keepCount most recent terminal rows, and returns how many were removed.
func (s *SQLiteStore) Prune(ctx context.Context, maxAge time.Duration, keepCount int) (int, error) {
	cutoff := time.Now().Add(-maxAge).UnixMilli()
	query := fmt.Sprintf(`
		DELETE FROM jobs
		WHERE status IN (%[1]s)
		  AND (created_at < ?
		       OR id NOT IN (
		           SELECT id FROM jobs WHERE status IN (%[1]s)
		           ORDER BY created_at DESC LIMIT ?))`, terminalStatuses)

	res, err := s.db.Handle().ExecContext(ctx, query, cutoff, keepCount)
	if err != nil {
		return 0, fmt.Errorf("prune jobs: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func scanJob(rows *sql.Rows) (*job.Job, error) {
	var j job.Job
	var typ, status, payload string
	var created int64
	var completed sql.NullInt64

	if err := rows.Scan(&j.ID, &typ, &payload, &status, &j.Progress,
		&j.Message, &j.Error, &created, &completed); err != nil {
		return nil, err
	}

	j.Type = job.Type(typ)
	j.Status = job.Status(status)
	j.CreatedAt = time.UnixMilli(created)
	if completed.Valid {
		t := time.UnixMilli(completed.Int64)
		j.CompletedAt = &t
	}

	p, err := job.UnmarshalPayload(j.Type, []byte(payload))
	if err != nil {
		return nil, fmt.Errorf("job %s: %w", j.ID, err)
	}
	j.Payload = p
	return &j, nil
}
