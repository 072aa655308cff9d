package execlog

import (
	"time"

	"cadence/internal/eventbus"
	"cadence/internal/task"
	logx "cadence/pkg/logx"
)

// EventKind is the kind of an execution log entry. SKIPPED is not an outcome:
// a skipped tick never produced a run.
type EventKind string

const (
	KindDispatched EventKind = "DISPATCHED"
	KindSkipped    EventKind = "SKIPPED"
	KindCompleted  EventKind = "COMPLETED"
)

// Event is what the log publishes on the bus.
type Event struct {
	Kind EventKind
	Task string
	At   time.Time

	// RunningSince is set for SKIPPED.
	RunningSince time.Time
	// Record is set for COMPLETED.
	Record *task.Record
}

// Log implements scheduler.Observer.
type Log struct {
	log logx.Logger
	bus eventbus.Bus
}

// New returns an execution log writing to log. bus may be nil.
func New(log logx.Logger, bus eventbus.Bus) *Log {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Log{log: log.With(logx.String("comp", "execlog")), bus: bus}
}

func (l *Log) Dispatched(t task.Task, at time.Time) {
	defer l.swallow()
	l.log.Info("task dispatched",
		logx.String("event", string(KindDispatched)),
		logx.String("task", t.Name),
		logx.Time("at", at),
	)
	l.publish(eventbus.TypeRunDispatched, Event{Kind: KindDispatched, Task: t.Name, At: at})
}

func (l *Log) Skipped(t task.Task, at time.Time, runningSince time.Time) {
	defer l.swallow()
	fields := []logx.Field{
		logx.String("event", string(KindSkipped)),
		logx.String("task", t.Name),
		logx.Time("at", at),
	}
	if !runningSince.IsZero() {
		fields = append(fields, logx.Duration("running_for", at.Sub(runningSince)))
	}
	l.log.Info("task skipped; previous run still in progress", fields...)
	l.publish(eventbus.TypeRunSkipped, Event{Kind: KindSkipped, Task: t.Name, At: at, RunningSince: runningSince})
}

func (l *Log) Completed(t task.Task, rec task.Record) {
	defer l.swallow()
	fields := []logx.Field{
		logx.String("event", string(KindCompleted)),
		logx.String("task", t.Name),
		logx.String("run_id", rec.RunID),
		logx.String("outcome", string(rec.Outcome)),
		logx.Int("exit_status", rec.ExitStatus),
		logx.Duration("duration", rec.Duration()),
	}
	if rec.Signal != "" {
		fields = append(fields, logx.String("signal", rec.Signal))
	}
	if rec.TimedOut {
		fields = append(fields, logx.Bool("timed_out", true))
	}
	if rec.Error != "" {
		fields = append(fields, logx.String("error", rec.Error))
	}

	switch rec.Outcome {
	case task.OutcomeSuccess:
		l.log.Info("task completed", fields...)
	case task.OutcomeSpawnError:
		l.log.Error("task failed to start", fields...)
	default:
		l.log.Warn("task completed", fields...)
	}

	r := rec
	l.publish(eventbus.TypeRunCompleted, Event{Kind: KindCompleted, Task: t.Name, At: rec.FinishedAt, Record: &r})
}

func (l *Log) publish(typ string, e Event) {
	if l.bus == nil {
		return
	}
	l.bus.Publish(eventbus.Event{Type: typ, Time: e.At, Data: e})
}

// swallow keeps a broken sink from reaching the scheduler.
func (l *Log) swallow() {
	if p := recover(); p != nil {
		defer func() { _ = recover() }()
		l.log.Error("execution log panicked", logx.Any("panic", p))
	}
}
