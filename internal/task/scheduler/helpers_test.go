package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"cadence/internal/task"
)

type event struct {
	kind string // dispatch | skip | complete
	task string
	at   time.Time
	rec  task.Record
}

type recorder struct {
	mu     sync.Mutex
	events []event
}

func (r *recorder) Dispatched(t task.Task, at time.Time) {
	r.add(event{kind: "dispatch", task: t.Name, at: at})
}

func (r *recorder) Skipped(t task.Task, at time.Time, _ time.Time) {
	r.add(event{kind: "skip", task: t.Name, at: at})
}

func (r *recorder) Completed(t task.Task, rec task.Record) {
	r.add(event{kind: "complete", task: t.Name, at: rec.FinishedAt, rec: rec})
}

func (r *recorder) add(e event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) all() []event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]event(nil), r.events...)
}

func (r *recorder) count(kind, name string) int {
	n := 0
	for _, e := range r.all() {
		if e.kind == kind && e.task == name {
			n++
		}
	}
	return n
}

func (r *recorder) times(kind, name string) []time.Time {
	var out []time.Time
	for _, e := range r.all() {
		if e.kind == kind && e.task == name {
			out = append(out, e.at)
		}
	}
	return out
}

// fakeExec tracks per-task concurrency and delegates the run body to fn.
// n is the 1-based run number of the task.
type fakeExec struct {
	fn func(ctx context.Context, t task.Task, n int) task.Record

	mu         sync.Mutex
	runs       map[string]int
	running    map[string]int
	maxRunning map[string]int
}

func newFakeExec(fn func(ctx context.Context, t task.Task, n int) task.Record) *fakeExec {
	return &fakeExec{
		fn:         fn,
		runs:       map[string]int{},
		running:    map[string]int{},
		maxRunning: map[string]int{},
	}
}

func (f *fakeExec) Execute(ctx context.Context, t task.Task) task.Record {
	f.mu.Lock()
	f.runs[t.Name]++
	n := f.runs[t.Name]
	f.running[t.Name]++
	if f.running[t.Name] > f.maxRunning[t.Name] {
		f.maxRunning[t.Name] = f.running[t.Name]
	}
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.running[t.Name]--
		f.mu.Unlock()
	}()
	return f.fn(ctx, t, n)
}

func (f *fakeExec) max(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxRunning[name]
}

func sleepRun(d time.Duration) func(ctx context.Context, t task.Task, n int) task.Record {
	return func(_ context.Context, t task.Task, _ int) task.Record {
		rec := task.NewRecord(t.Name)
		time.Sleep(d)
		return rec.Finish(task.OutcomeSuccess, 0)
	}
}

func mkTask(name string, every time.Duration) task.Task {
	return task.Task{Name: name, Command: "/bin/true", Interval: every}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func stopNow(t *testing.T, s *Service) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

// checkSequence asserts the per-task event stream follows the state machine:
// dispatch, any number of skips, complete; never two dispatches in a row.
func checkSequence(t *testing.T, events []event, name string) {
	t.Helper()
	running := false
	for i, e := range events {
		if e.task != name {
			continue
		}
		switch e.kind {
		case "dispatch":
			if running {
				t.Fatalf("event %d: overlapping dispatch for %s", i, name)
			}
			running = true
		case "skip":
			if !running {
				t.Fatalf("event %d: skip for %s while idle", i, name)
			}
		case "complete":
			if !running {
				t.Fatalf("event %d: completion for %s without dispatch", i, name)
			}
			running = false
		}
	}
}
