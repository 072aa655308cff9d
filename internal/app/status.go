package app

import (
	"time"

	"cadence/internal/runtime/supervisor"
	"cadence/internal/task/scheduler"
)

// statusView is the document served at /status.
type statusView struct {
	StartedAt     time.Time          `json:"started_at"`
	Uptime        string             `json:"uptime"`
	History       bool               `json:"history"`
	EventsDropped uint64             `json:"events_dropped"`
	Scheduler     scheduler.Snapshot `json:"scheduler"`
	Goroutines    []supervisor.Stats `json:"goroutines"`
}

func (a *App) status() any {
	v := statusView{
		StartedAt:     a.startedAt,
		Uptime:        time.Since(a.startedAt).Round(time.Second).String(),
		History:       a.store != nil,
		EventsDropped: a.bus.Dropped(),
		Scheduler:     a.sched.Snapshot(),
	}
	if a.sup != nil {
		v.Goroutines = a.sup.Snapshot()
	}
	return v
}
