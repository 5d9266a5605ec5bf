// Package queue owns batch job lifecycle: a FIFO of enhancement jobs, a
// worker pool draining it, and an optional database mirror of job state.
package queue

import "time"

// Status is a job lifecycle state.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether no further transitions can happen.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Job is one file enhancement task. IDs are assigned by the queue,
// monotonically increasing and never reused within a process.
//
// Callers always receive copies; the queue's internal instance is the only
// mutable one.
type Job struct {
	ID         int64      `json:"id"`
	Input      string     `json:"input"`
	Output     string     `json:"output"`
	Status     Status     `json:"status"`
	Stage      string     `json:"stage,omitempty"`
	Progress   float64    `json:"progress"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}
