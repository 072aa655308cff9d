package task

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Task is one periodically invoked external job.
//
// Tasks are immutable once returned by Validate; callers copy them by value.
type Task struct {
	Name     string
	Command  string
	Args     []string
	Interval time.Duration

	// Env is appended to the orchestrator's environment ("KEY=VALUE").
	Env []string
	// Dir is the working directory; empty means the orchestrator's.
	Dir string
	// Timeout bounds a single run. 0 disables it (the default).
	Timeout time.Duration
	// RunOnStart dispatches once at scheduler start instead of waiting one interval.
	RunOnStart bool
}

// State is the scheduler-owned per-task run state.
type State int

const (
	StateIdle State = iota
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRunning:
		return "RUNNING"
	default:
		return "UNKNOWN"
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Outcome classifies how a run terminated.
type Outcome string

const (
	OutcomeSuccess    Outcome = "SUCCESS"
	OutcomeFailure    Outcome = "FAILURE"
	OutcomeSpawnError Outcome = "SPAWN_ERROR"
	OutcomeTerminated Outcome = "TERMINATED"
)

// ParseOutcome is the inverse of Outcome's string form (case-insensitive).
func ParseOutcome(s string) (Outcome, bool) {
	switch Outcome(strings.ToUpper(strings.TrimSpace(s))) {
	case OutcomeSuccess:
		return OutcomeSuccess, true
	case OutcomeFailure:
		return OutcomeFailure, true
	case OutcomeSpawnError:
		return OutcomeSpawnError, true
	case OutcomeTerminated:
		return OutcomeTerminated, true
	default:
		return "", false
	}
}

// Record describes one run. It is built by the runner and handed out by value;
// nothing mutates it after Finish.
type Record struct {
	RunID      string    `json:"run_id"`
	Task       string    `json:"task"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	// ExitStatus is the process exit code. It is -1 when the process never
	// exited normally (spawn error or signal).
	ExitStatus int     `json:"exit_status"`
	Outcome    Outcome `json:"outcome"`
	Signal     string  `json:"signal,omitempty"`
	Error      string  `json:"error,omitempty"`
	TimedOut   bool    `json:"timed_out,omitempty"`
}

// NewRecord opens a record for a run of the named task starting now.
func NewRecord(taskName string) Record {
	return Record{
		RunID:      uuid.NewString(),
		Task:       taskName,
		StartedAt:  time.Now(),
		ExitStatus: -1,
	}
}

// Finish returns the finalized copy of r.
func (r Record) Finish(outcome Outcome, exitStatus int) Record {
	r.FinishedAt = time.Now()
	r.Outcome = outcome
	r.ExitStatus = exitStatus
	return r
}

// Duration is the wall-clock run time (0 if the record is not finished).
func (r Record) Duration() time.Duration {
	if r.FinishedAt.IsZero() || r.StartedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
