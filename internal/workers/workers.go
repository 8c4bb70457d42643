// Package workers contains the per-type stage handlers that do a job's
// actual work: file import, thumbnailing, AI detection and re-identification.
package workers

import (
	"context"

	"github.com/mvetrova/trailcam/internal/job"
	"github.com/mvetrova/trailcam/internal/worker"
)

// Supervisor is the scheduler surface handlers run against: publishing
// progress, persisting resumable payload state, chaining follow-up jobs and
// reaching the single live-worker slot.
type Supervisor interface {
	Submit(ctx context.Context, t job.Type, p job.Payload) (string, error)
	Progress(j *job.Job, progress int, message string)
	Mutate(j *job.Job, fn func())
	Flush(ctx context.Context, j *job.Job)
	WorkerSlot() *worker.Slot
}

func percent(done, total int) int {
	if total <= 0 {
		return 0
	}
	return done * 100 / total
}
