// Package scheduler owns the job queue: bounded-concurrency dispatch, the
// lifecycle state machine, cancellation, retry, chaining and crash recovery.
package scheduler

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/mvetrova/trailcam/internal/common"
	"github.com/mvetrova/trailcam/internal/job"
	"github.com/mvetrova/trailcam/internal/jobstore"
	"github.com/mvetrova/trailcam/internal/metrics"
	"github.com/mvetrova/trailcam/internal/worker"
)

// Handler performs the type-specific work of a job. The handler is the sole
// writer of the job's progress/message/payload while it runs, and publishes
// those writes through the scheduler so snapshots stay race-free.
type Handler interface {
	Run(ctx context.Context, j *job.Job) error
}

type HandlerFunc func(ctx context.Context, j *job.Job) error

func (f HandlerFunc) Run(ctx context.Context, j *job.Job) error { return f(ctx, j) }

// Sink receives the full sorted job list after every state change.
type Sink func(jobs []job.Job)

type Options struct {
	MaxConcurrent  int
	MaxHistory     int
	RetentionAge   time.Duration
	RetentionCount int
}

func (o *Options) setDefaults() {
	if o.MaxConcurrent <= 0 {
		o.MaxConcurrent = 2
	}
	if o.MaxHistory <= 0 {
		o.MaxHistory = 50
	}
	if o.RetentionAge <= 0 {
		o.RetentionAge = 7 * 24 * time.Hour
	}
	if o.RetentionCount <= 0 {
		o.RetentionCount = 50
	}
}

type activeEntry struct {
	j       *job.Job
	cancel  context.CancelFunc
	started time.Time
}

type Scheduler struct {
	store jobstore.Store
	slot  *worker.Slot
	opts  Options

	mu          sync.Mutex
	handlers    map[job.Type]Handler
	queue       []*job.Job
	active      map[string]*activeEntry
	history     []*job.Job
	dispatching bool
	sink        Sink
}

func New(store jobstore.Store, slot *worker.Slot, opts Options) *Scheduler {
	opts.setDefaults()
	return &Scheduler{
		store:    store,
		slot:     slot,
		opts:     opts,
		handlers: make(map[job.Type]Handler),
		active:   make(map[string]*activeEntry),
	}
}

// RegisterHandler binds a handler to a job type. Must be called before any
// job of that type is submitted.
func (s *Scheduler) RegisterHandler(t job.Type, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[t] = h
}

// RegisterSink installs the UI push callback. A nil sink disables snapshots.
func (s *Scheduler) RegisterSink(sink Sink) {
	s.mu.Lock()
	s.sink = sink
	s.mu.Unlock()
	s.emit()
}

// WorkerSlot exposes the single live-worker holder to stage handlers.
func (s *Scheduler) WorkerSlot() *worker.Slot {
	return s.slot
}

// Recover reclassifies rows left over from a previous process. Nothing can
// legitimately still be running them, so running/pending rows become failed
// with a retry hint, then retention pruning runs.
func (s *Scheduler) Recover(ctx context.Context) error {
	rows, err := s.store.LoadRecent(ctx, s.opts.MaxHistory)
	if err != nil {
		return err
	}

	const interrupted = "Job terminated unexpectedly, retry to resume"

	s.mu.Lock()
	for _, j := range rows {
		if j.Status == job.StatusRunning || j.Status == job.StatusPending {
			j.Status = job.StatusFailed
			j.Message = interrupted
			j.Error = interrupted
			if j.CompletedAt == nil {
				now := time.Now().UTC()
				j.CompletedAt = &now
			}
			if err := s.store.InsertOrReplace(ctx, j); err != nil {
				slog.Error("failed to persist recovered job", "job_id", j.ID, "error", err)
			}
			slog.Warn("recovered interrupted job", "job_id", j.ID, "type", j.Type)
		}
		s.history = append(s.history, j)
	}
	s.sortHistoryLocked()
	s.trimHistoryLocked()
	s.mu.Unlock()

	pruned, err := s.store.Prune(ctx, s.opts.RetentionAge, s.opts.RetentionCount)
	if err != nil {
		slog.Error("failed to prune job store", "error", err)
	} else if pruned > 0 {
		slog.Info("pruned old job rows", "count", pruned)
	}

	s.emit()
	return nil
}

// Submit creates a pending job, persists it and attempts dispatch. Returns
// the new job's id.
func (s *Scheduler) Submit(ctx context.Context, t job.Type, payload job.Payload) (string, error) {
	s.mu.Lock()
	if _, ok := s.handlers[t]; !ok {
		s.mu.Unlock()
		return "", common.ErrUnknownJobType
	}
	j := job.New(t, payload)
	s.queue = append(s.queue, j)
	metrics.QueuedJobs.Set(float64(len(s.queue)))
	s.mu.Unlock()

	if err := s.store.InsertOrReplace(ctx, j); err != nil {
		// In-memory progress continues; the row is re-upserted on completion.
		slog.Error("failed to persist new job", "job_id", j.ID, "error", err)
	}

	metrics.JobsSubmittedTotal.WithLabelValues(string(t)).Inc()
	slog.Info("job submitted", "job_id", j.ID, "type", t)

	s.emit()
	s.dispatch()
	return j.ID, nil
}

// dispatch pops queued jobs into the active set until the concurrency limit
// is reached. Re-entrant calls while a pass is in progress are no-ops.
func (s *Scheduler) dispatch() {
	s.mu.Lock()
	if s.dispatching {
		s.mu.Unlock()
		return
	}
	s.dispatching = true

	for len(s.active) < s.opts.MaxConcurrent && len(s.queue) > 0 {
		j := s.queue[0]
		s.queue = s.queue[1:]

		ctx, cancel := context.WithCancel(context.Background())
		s.active[j.ID] = &activeEntry{j: j, cancel: cancel, started: time.Now()}

		go s.run(ctx, j)
	}
	metrics.QueuedJobs.Set(float64(len(s.queue)))
	metrics.RunningJobs.Set(float64(len(s.active)))
	s.dispatching = false
	s.mu.Unlock()
}

// run is the wrapper around every handler invocation. The handler's return
// drives cleanup; cancellation always wins over completed/failed.
func (s *Scheduler) run(ctx context.Context, j *job.Job) {
	s.mu.Lock()
	h := s.handlers[j.Type]
	j.Status = job.StatusRunning
	j.Message = "Starting..."
	j.Progress = 0
	s.mu.Unlock()

	s.persistFields(j, jobstore.Fields{
		Status:  &j.Status,
		Message: &j.Message,
	})
	s.emit()

	err := h.Run(ctx, j)
	s.finish(j, err)
}

// finish resolves a run. If the job is no longer in the active set it was
// already resolved by an explicit cancel and this is a no-op.
func (s *Scheduler) finish(j *job.Job, runErr error) {
	s.mu.Lock()
	entry, ok := s.active[j.ID]
	if !ok || j.Status == job.StatusCancelled {
		s.mu.Unlock()
		return
	}

	if runErr != nil {
		j.Status = job.StatusFailed
		j.Error = runErr.Error()
		j.Message = runErr.Error()
		metrics.JobsFailedTotal.WithLabelValues(string(j.Type)).Inc()
		slog.Error("job failed", "job_id", j.ID, "type", j.Type, "error", runErr)
	} else {
		j.Status = job.StatusCompleted
		j.Progress = 100
		if j.Message == "" || j.Message == "Starting..." {
			j.Message = "Done"
		}
		metrics.JobsCompletedTotal.WithLabelValues(string(j.Type)).Inc()
		slog.Info("job completed", "job_id", j.ID, "type", j.Type)
	}

	now := time.Now().UTC()
	j.CompletedAt = &now
	delete(s.active, j.ID)
	s.pushHistoryLocked(j)
	metrics.RunningJobs.Set(float64(len(s.active)))
	metrics.JobDuration.Observe(time.Since(entry.started).Seconds())
	s.mu.Unlock()

	if err := s.store.InsertOrReplace(context.Background(), j); err != nil {
		slog.Error("failed to persist finished job", "job_id", j.ID, "error", err)
	}

	s.emit()
	s.dispatch()
}

// Cancel resolves a queued or running job to cancelled. Cancelling an
// unknown or already-terminal id is a silent no-op.
func (s *Scheduler) Cancel(ctx context.Context, id string) {
	s.mu.Lock()

	// Still queued: splice it out, never dispatched.
	for i, j := range s.queue {
		if j.ID != id {
			continue
		}
		s.queue = append(s.queue[:i], s.queue[i+1:]...)
		now := time.Now().UTC()
		j.Status = job.StatusCancelled
		j.Message = "Cancelled"
		j.CompletedAt = &now
		s.pushHistoryLocked(j)
		metrics.QueuedJobs.Set(float64(len(s.queue)))
		metrics.JobsCancelledTotal.WithLabelValues(string(j.Type)).Inc()
		s.mu.Unlock()

		if err := s.store.InsertOrReplace(ctx, j); err != nil {
			slog.Error("failed to persist cancelled job", "job_id", id, "error", err)
		}
		slog.Info("job cancelled while queued", "job_id", id)
		s.emit()
		return
	}

	entry, ok := s.active[id]
	if !ok {
		// Unknown or already terminal.
		s.mu.Unlock()
		return
	}

	j := entry.j
	now := time.Now().UTC()
	j.Status = job.StatusCancelled
	j.Message = "Cancelled"
	j.CompletedAt = &now
	entry.cancel()

	ownsWorker := j.Type.OwnsWorker()
	delete(s.active, id)
	s.pushHistoryLocked(j)
	metrics.RunningJobs.Set(float64(len(s.active)))
	metrics.JobsCancelledTotal.WithLabelValues(string(j.Type)).Inc()
	s.mu.Unlock()

	if ownsWorker && s.slot != nil {
		s.slot.Terminate()
	}

	if err := s.store.InsertOrReplace(ctx, j); err != nil {
		slog.Error("failed to persist cancelled job", "job_id", id, "error", err)
	}
	slog.Info("job cancelled while running", "job_id", id, "type", j.Type)

	s.emit()
	s.dispatch()
}

// Retry resubmits a failed or cancelled import/detect/reid job with its old
// payload, so resumption markers carry forward. The old record is removed
// from history and from the durable store.
func (s *Scheduler) Retry(ctx context.Context, id string) (string, error) {
	s.mu.Lock()
	var old *job.Job
	for i, j := range s.history {
		if j.ID == id {
			if !j.Type.Retryable() || (j.Status != job.StatusFailed && j.Status != job.StatusCancelled) {
				s.mu.Unlock()
				return "", common.ErrNotRetryable
			}
			old = j
			s.history = append(s.history[:i], s.history[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	if old == nil {
		return "", common.ErrJobNotFound
	}

	if err := s.store.Delete(ctx, id); err != nil {
		slog.Error("failed to delete retried job row", "job_id", id, "error", err)
	}

	slog.Info("retrying job", "job_id", id, "type", old.Type)
	return s.Submit(ctx, old.Type, old.Payload)
}

// ListAll returns active, queued and history jobs sorted by creation time
// descending, the only externally observable ordering.
func (s *Scheduler) ListAll() []job.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Scheduler) snapshotLocked() []job.Job {
	out := make([]job.Job, 0, len(s.active)+len(s.queue)+len(s.history))
	for _, e := range s.active {
		out = append(out, *e.j)
	}
	for _, j := range s.queue {
		out = append(out, *j)
	}
	for _, j := range s.history {
		out = append(out, *j)
	}
	for i := range out {
		out[i].Payload = job.ClonePayload(out[i].Type, out[i].Payload)
	}
	sort.SliceStable(out, func(a, b int) bool {
		return out[a].CreatedAt.After(out[b].CreatedAt)
	})
	return out
}

func (s *Scheduler) pushHistoryLocked(j *job.Job) {
	s.history = append(s.history, j)
	s.sortHistoryLocked()
	s.trimHistoryLocked()
}

func (s *Scheduler) sortHistoryLocked() {
	sort.SliceStable(s.history, func(a, b int) bool {
		return s.history[a].CreatedAt.After(s.history[b].CreatedAt)
	})
}

func (s *Scheduler) trimHistoryLocked() {
	if len(s.history) > s.opts.MaxHistory {
		s.history = s.history[:s.opts.MaxHistory]
	}
}

// emit pushes the current job list to the sink, if one is registered. The
// snapshot is taken under the lock; the callback runs outside it.
func (s *Scheduler) emit() {
	s.mu.Lock()
	sink := s.sink
	if sink == nil {
		s.mu.Unlock()
		return
	}
	jobs := s.snapshotLocked()
	s.mu.Unlock()
	sink(jobs)
}

func (s *Scheduler) persistFields(j *job.Job, f jobstore.Fields) {
	if err := s.store.UpdateFields(context.Background(), j.ID, f); err != nil {
		slog.Error("failed to persist job fields", "job_id", j.ID, "error", err)
	}
}
