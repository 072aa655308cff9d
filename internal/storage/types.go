package storage

import (
	"context"
	"errors"
	"time"

	"cadence/internal/task"
)

var ErrClosed = errors.New("storage closed")

// Config configures storage.
//
// Driver values:
//   - "file": append-only JSON Lines file
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", history is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means driver default
}

// Query selects runs for RecentRuns. Zero fields do not filter.
type Query struct {
	Task    string
	Outcome task.Outcome
	Since   time.Time
	// Limit caps the result; <= 0 means DefaultLimit.
	Limit int
}

const DefaultLimit = 50

func (q Query) limit() int {
	if q.Limit <= 0 {
		return DefaultLimit
	}
	return q.Limit
}

func (q Query) match(r task.Record) bool {
	if q.Task != "" && r.Task != q.Task {
		return false
	}
	if q.Outcome != "" && r.Outcome != q.Outcome {
		return false
	}
	if !q.Since.IsZero() && r.FinishedAt.Before(q.Since) {
		return false
	}
	return true
}

// Store is the run history API.
type Store interface {
	AppendRun(ctx context.Context, r task.Record) error
	// RecentRuns returns matching runs ordered by finish time, newest first.
	RecentRuns(ctx context.Context, q Query) ([]task.Record, error)
	// Prune deletes runs that finished before the cutoff and reports how many.
	Prune(ctx context.Context, before time.Time) (int, error)
	Close() error
}
