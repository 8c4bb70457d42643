package jobstore

import (
	"context"
	"time"

	"github.com/mvetrova/trailcam/internal/job"
)

// Fields is a partial update applied by UpdateFields; nil members are left
// untouched.
type Fields struct {
	Status      *job.Status
	Progress    *int
	Message     *string
	Error       *string
	Payload     job.Payload
	CompletedAt *time.Time
}

// Store persists job records across process restarts. Implementations
// serialize access internally.
type Store interface {
	InsertOrReplace(ctx context.Context, j *job.Job) error
	UpdateFields(ctx context.Context, id string, f Fields) error
	Delete(ctx context.Context, id string) error
	LoadRecent(ctx context.Context, limit int) ([]*job.Job, error)
	Prune(ctx context.Context, maxAge time.Duration, keepCount int) (int, error)
}
