package job

import (
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeImport    Type = "import"
	TypeThumbnail Type = "thumbnail"
	TypeDetect    Type = "detect"
	TypeReid      Type = "reid"
)

// OwnsWorker reports whether jobs of this type spawn the external AI worker.
// Cancellation terminates the registered worker process only for these types.
func (t Type) OwnsWorker() bool {
	return t == TypeDetect || t == TypeReid
}

// Retryable reports whether a failed or cancelled job of this type may be
// resubmitted with its old payload.
func (t Type) Retryable() bool {
	return t == TypeImport || t == TypeDetect || t == TypeReid
}

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status is final for a run.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Job is a unit of asynchronous work tracked through the scheduler's
// lifecycle state machine. A job is mutated only by the scheduler and by the
// handler currently assigned to it.
type Job struct {
	ID          string     `json:"id"`
	Type        Type       `json:"type"`
	Status      Status     `json:"status"`
	Progress    int        `json:"progress"`
	Message     string     `json:"message,omitempty"`
	Payload     Payload    `json:"payload,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func New(t Type, payload Payload) *Job {
	return &Job{
		ID:        uuid.NewString(),
		Type:      t,
		Status:    StatusPending,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
}

// Cancelled reports whether the job has been cooperatively cancelled.
// Handlers poll this (or their context) at safe points and return early.
func (j *Job) Cancelled() bool {
	return j.Status == StatusCancelled
}
