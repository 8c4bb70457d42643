package scheduler

import (
	"context"
	"log/slog"

	"github.com/mvetrova/trailcam/internal/job"
	"github.com/mvetrova/trailcam/internal/jobstore"
)

// The running handler is the job's single writer, but snapshots are read
// concurrently, so all handler-side mutation goes through these methods.

// Progress updates progress and message and pushes a snapshot. Progress never
// moves backwards within a run.
func (s *Scheduler) Progress(j *job.Job, progress int, message string) {
	s.mu.Lock()
	if progress > j.Progress {
		j.Progress = progress
	}
	if message != "" {
		j.Message = message
	}
	s.mu.Unlock()
	s.emit()
}

// Mutate runs fn under the scheduler lock, for payload edits such as
// appending resumption markers.
func (s *Scheduler) Mutate(j *job.Job, fn func()) {
	s.mu.Lock()
	fn()
	s.mu.Unlock()
}

// Flush persists the job's progress, message and payload. Handlers call this
// on a cadence that bounds write amplification; resumability only needs the
// payload to eventually reach the store.
func (s *Scheduler) Flush(ctx context.Context, j *job.Job) {
	s.mu.Lock()
	progress := j.Progress
	message := j.Message
	f := jobstore.Fields{
		Progress: &progress,
		Message:  &message,
		Payload:  job.ClonePayload(j.Type, j.Payload),
	}
	s.mu.Unlock()

	if err := s.store.UpdateFields(ctx, j.ID, f); err != nil {
		// Logged only: an in-memory run is never aborted by a progress write.
		slog.Error("failed to flush job progress", "job_id", j.ID, "error", err)
	}
}
