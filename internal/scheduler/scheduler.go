// Package scheduler abstracts the external batch scheduler the controller
// submits tasks to. The one concrete implementation drives SLURM through its
// CLI as blocking subprocesses; everything above this package only sees
// Submit/Cancel/Status.
package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/vk/windrose/internal/graph"
)

// Status classifies what the external scheduler reports about a job.
type Status int

const (
	// StatusOngoing covers running, pending and suspended jobs.
	StatusOngoing Status = iota
	// StatusCompleted means the job finished successfully.
	StatusCompleted
	// StatusFailed covers failed, node-fail, out-of-memory, timeout and
	// cancelled jobs.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusOngoing:
		return "ongoing"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// OutputMode selects whether a resubmitted job overwrites or appends to its
// output file.
type OutputMode int

const (
	OutputOverwrite OutputMode = iota
	OutputAppend
)

// DependencyType selects the dependency semantics of a submission.
type DependencyType int

const (
	// DepAllCompleted requires every parent job to succeed.
	DepAllCompleted DependencyType = iota
	// DepAny fires as soon as any parent job terminates.
	DepAny
	// DepNone emits no dependency directive. It is only reachable when a
	// task has no eligible parents in the first place.
	DepNone
)

// ErrUnexpectedStatus reports a scheduler status string outside the known
// classification table. It means the external system is in an unanticipated
// state and is treated as fatal, never silently ignored.
var ErrUnexpectedStatus = errors.New("unexpected scheduler status")

// Backend is the pluggable abstraction over an external batch scheduler.
type Backend interface {
	// Submit renders and submits the task's job script and returns the
	// scheduler-assigned job id.
	Submit(ctx context.Context, task *graph.Task, mode OutputMode, dep DependencyType) (string, error)

	// Cancel removes the task's job from the scheduler.
	Cancel(ctx context.Context, task *graph.Task) error

	// Status polls the scheduler for the task's job state.
	Status(ctx context.Context, task *graph.Task) (Status, error)
}

// New returns the backend selected by the configuration's scheduler key.
func New(key string) (Backend, error) {
	switch key {
	case "slurm":
		return NewSlurm(), nil
	default:
		return nil, fmt.Errorf("scheduler %q is not implemented", key)
	}
}
