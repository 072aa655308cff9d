package scheduler

import (
	"context"
	"errors"
	"time"

	"cadence/internal/task"
)

var (
	ErrAlreadyStarted = errors.New("scheduler already started")
	ErrStopped        = errors.New("scheduler stopped")
)

// Config controls the scheduler.
type Config struct {
	// RunOnStart dispatches every task once at Start. Tasks may also opt in
	// individually via task.Task.RunOnStart.
	RunOnStart bool

	// StartupSpread delays each task's first tick by a random jitter in
	// [0, min(interval, 30s)) so tasks with equal intervals do not fire together.
	StartupSpread bool

	// ShutdownGrace is how long Stop drains before sending SIGTERM to runs that
	// are still in flight. 0 means never signal; Stop waits indefinitely.
	ShutdownGrace time.Duration
}

// Executor runs one task to completion. It must not panic across the boundary
// and must always return a finished record.
type Executor interface {
	Execute(ctx context.Context, t task.Task) task.Record
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, t task.Task) task.Record

func (f ExecutorFunc) Execute(ctx context.Context, t task.Task) task.Record { return f(ctx, t) }

// Observer is notified of every dispatch, skip, and completion.
//
// Calls for the same task are serialized and arrive in state order: a Skipped
// call never follows the Completed of the run it was skipped for. Calls for
// different tasks may be concurrent. A slow observer delays only its own
// task's transitions, so implementations should not block.
type Observer interface {
	Dispatched(t task.Task, at time.Time)
	Skipped(t task.Task, at time.Time, runningSince time.Time)
	Completed(t task.Task, rec task.Record)
}

// TaskInfo is a diagnostic view of one task.
type TaskInfo struct {
	Name         string        `json:"name"`
	Interval     time.Duration `json:"interval_ns"`
	State        task.State    `json:"state"`
	RunningSince time.Time     `json:"running_since,omitzero"`
	Prev         time.Time     `json:"prev,omitzero"`
	Next         time.Time     `json:"next,omitzero"`
	Runs         uint64        `json:"runs"`
	Skips        uint64        `json:"skips"`
	Last         *task.Record  `json:"last,omitempty"`
}

// Snapshot is a point-in-time view of the scheduler.
type Snapshot struct {
	Started  bool       `json:"started"`
	Stopping bool       `json:"stopping"`
	InFlight int        `json:"in_flight"`
	Tasks    []TaskInfo `json:"tasks"`
}
