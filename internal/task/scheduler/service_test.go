package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"cadence/internal/task"
)

func TestTwoTasksCadence(t *testing.T) {
	rec := &recorder{}
	exec := newFakeExec(sleepRun(0))
	s := New(Config{}, []task.Task{mkTask("a", 100*time.Millisecond), mkTask("b", 250*time.Millisecond)}, exec, rec, nopLogger())

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(1020 * time.Millisecond)
	stopNow(t, s)

	if n := rec.count("dispatch", "a"); n < 9 || n > 11 {
		t.Fatalf("task a dispatched %d times, want ~10", n)
	}
	if n := rec.count("dispatch", "b"); n < 3 || n > 5 {
		t.Fatalf("task b dispatched %d times, want ~4", n)
	}
	if rec.count("skip", "a") != 0 || rec.count("skip", "b") != 0 {
		t.Fatal("fast tasks should never skip")
	}
}

func TestNoImmediateRunAndSteadyInterval(t *testing.T) {
	rec := &recorder{}
	s := New(Config{}, []task.Task{mkTask("a", 100*time.Millisecond)}, newFakeExec(sleepRun(0)), rec, nopLogger())

	start := time.Now()
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(660 * time.Millisecond)
	stopNow(t, s)

	starts := rec.times("dispatch", "a")
	if len(starts) < 5 {
		t.Fatalf("expected at least 5 dispatches, got %d", len(starts))
	}
	if first := starts[0].Sub(start); first < 90*time.Millisecond {
		t.Fatalf("first dispatch after %v; expected one full interval", first)
	}
	for i := 1; i < len(starts); i++ {
		gap := starts[i].Sub(starts[i-1])
		if gap < 60*time.Millisecond || gap > 140*time.Millisecond {
			t.Fatalf("gap %d = %v, want ~100ms", i, gap)
		}
	}
}

func TestSkipIfBusyLogsOneSkipPerMissedTick(t *testing.T) {
	rec := &recorder{}
	exec := newFakeExec(func(ctx context.Context, tk task.Task, n int) task.Record {
		if n == 1 {
			return sleepRun(150*time.Millisecond)(ctx, tk, n)
		}
		return sleepRun(5*time.Millisecond)(ctx, tk, n)
	})
	s := New(Config{}, []task.Task{mkTask("slow", 100*time.Millisecond)}, exec, rec, nopLogger())

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(560 * time.Millisecond)
	stopNow(t, s)

	if n := rec.count("skip", "slow"); n != 1 {
		t.Fatalf("expected exactly 1 skip, got %d", n)
	}
	if n := rec.count("dispatch", "slow"); n < 3 {
		t.Fatalf("expected cadence to resume after the slow run, got %d dispatches", n)
	}
	if m := exec.max("slow"); m != 1 {
		t.Fatalf("max concurrent runs = %d, want 1", m)
	}
	checkSequence(t, rec.all(), "slow")
}

func TestSkipNeverOverlaps(t *testing.T) {
	rec := &recorder{}
	exec := newFakeExec(sleepRun(120 * time.Millisecond))
	s := New(Config{}, []task.Task{mkTask("busy", 50*time.Millisecond)}, exec, rec, nopLogger())

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(600 * time.Millisecond)
	stopNow(t, s)

	if m := exec.max("busy"); m != 1 {
		t.Fatalf("max concurrent runs = %d, want 1", m)
	}
	skips := rec.count("skip", "busy")
	if skips == 0 {
		t.Fatal("expected skips for a task slower than its interval")
	}
	checkSequence(t, rec.all(), "busy")

	snap := s.Snapshot()
	if len(snap.Tasks) != 1 || snap.Tasks[0].Skips != uint64(skips) {
		t.Fatalf("snapshot skips = %+v, recorded %d", snap.Tasks, skips)
	}
	if snap.Tasks[0].Runs != uint64(rec.count("dispatch", "busy")) {
		t.Fatalf("snapshot runs = %d, recorded %d", snap.Tasks[0].Runs, rec.count("dispatch", "busy"))
	}
}

func TestHungTaskDoesNotDelayOthers(t *testing.T) {
	rec := &recorder{}
	release := make(chan struct{})
	exec := newFakeExec(func(ctx context.Context, tk task.Task, n int) task.Record {
		r := task.NewRecord(tk.Name)
		if tk.Name == "hung" {
			<-release
			return r.Finish(task.OutcomeFailure, 1)
		}
		return r.Finish(task.OutcomeSuccess, 0)
	})
	s := New(Config{}, []task.Task{mkTask("hung", 50*time.Millisecond), mkTask("steady", 100*time.Millisecond)}, exec, rec, nopLogger())

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(660 * time.Millisecond)

	if st, _ := s.State("hung"); st != task.StateRunning {
		t.Fatalf("hung state = %s, want RUNNING", st)
	}
	if n := rec.count("dispatch", "hung"); n != 1 {
		t.Fatalf("hung task dispatched %d times, want 1", n)
	}
	if n := rec.count("dispatch", "steady"); n < 5 || n > 7 {
		t.Fatalf("steady task dispatched %d times, want ~6", n)
	}
	starts := rec.times("dispatch", "steady")
	for i := 1; i < len(starts); i++ {
		if gap := starts[i].Sub(starts[i-1]); gap > 140*time.Millisecond {
			t.Fatalf("steady gap %d = %v while another task hung", i, gap)
		}
	}

	close(release)
	stopNow(t, s)
	if st, _ := s.State("hung"); st != task.StateIdle {
		t.Fatalf("hung state after release = %s, want IDLE", st)
	}
}

func TestStopDrainsInFlightRuns(t *testing.T) {
	rec := &recorder{}
	s := New(Config{}, []task.Task{mkTask("long", 50*time.Millisecond)}, newFakeExec(sleepRun(300*time.Millisecond)), rec, nopLogger())

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return rec.count("dispatch", "long") == 1 })

	stopped := time.Now()
	stopNow(t, s)

	if rec.count("complete", "long") != rec.count("dispatch", "long") {
		t.Fatalf("Stop returned with runs in flight: %+v", rec.all())
	}
	if st, _ := s.State("long"); st != task.StateIdle {
		t.Fatalf("state after Stop = %s", st)
	}
	for _, e := range rec.all() {
		if e.kind == "dispatch" && e.at.After(stopped) {
			t.Fatalf("dispatch after Stop: %+v", e)
		}
	}

	seen := len(rec.all())
	time.Sleep(200 * time.Millisecond)
	if len(rec.all()) != seen {
		t.Fatal("events recorded after Stop returned")
	}

	// Idempotent.
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	select {
	case <-s.Done():
	default:
		t.Fatal("Done should be closed after Stop")
	}
}

func TestStopHonoursContextAndKeepsDraining(t *testing.T) {
	rec := &recorder{}
	release := make(chan struct{})
	exec := newFakeExec(func(ctx context.Context, tk task.Task, n int) task.Record {
		r := task.NewRecord(tk.Name)
		<-release
		return r.Finish(task.OutcomeSuccess, 0)
	})
	s := New(Config{}, []task.Task{mkTask("stuck", 30*time.Millisecond)}, exec, rec, nopLogger())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return rec.count("dispatch", "stuck") == 1 })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := s.Stop(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Stop with short ctx = %v, want deadline exceeded", err)
	}
	if rec.count("complete", "stuck") != 0 {
		t.Fatal("run must not be killed by Stop")
	}

	close(release)
	stopNow(t, s)
	if rec.count("complete", "stuck") != 1 {
		t.Fatal("expected drained completion")
	}
}

func TestShutdownGraceTerminatesRuns(t *testing.T) {
	rec := &recorder{}
	exec := newFakeExec(func(ctx context.Context, tk task.Task, n int) task.Record {
		r := task.NewRecord(tk.Name)
		<-ctx.Done()
		r.Signal = "terminated"
		return r.Finish(task.OutcomeTerminated, -1)
	})
	s := New(Config{ShutdownGrace: 80 * time.Millisecond}, []task.Task{mkTask("forever", 30*time.Millisecond)}, exec, rec, nopLogger())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return rec.count("dispatch", "forever") == 1 })

	stopNow(t, s)
	var got []task.Outcome
	for _, e := range rec.all() {
		if e.kind == "complete" {
			got = append(got, e.rec.Outcome)
		}
	}
	if len(got) != 1 || got[0] != task.OutcomeTerminated {
		t.Fatalf("completions = %v, want one TERMINATED", got)
	}
}

func TestCancellingStartContextDoesNotKillRuns(t *testing.T) {
	rec := &recorder{}
	exec := newFakeExec(func(ctx context.Context, tk task.Task, n int) task.Record {
		r := task.NewRecord(tk.Name)
		select {
		case <-ctx.Done():
			return r.Finish(task.OutcomeTerminated, -1)
		case <-time.After(150 * time.Millisecond):
			return r.Finish(task.OutcomeSuccess, 0)
		}
	})
	s := New(Config{}, []task.Task{mkTask("a", 30*time.Millisecond)}, exec, rec, nopLogger())

	ctx, cancel := context.WithCancel(context.Background())
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return rec.count("dispatch", "a") == 1 })
	cancel()
	stopNow(t, s)

	for _, e := range rec.all() {
		if e.kind == "complete" && e.rec.Outcome != task.OutcomeSuccess {
			t.Fatalf("run was cancelled: %+v", e.rec)
		}
	}
}

func TestRunOnStart(t *testing.T) {
	rec := &recorder{}
	tk := mkTask("eager", time.Hour)
	tk.RunOnStart = true
	s := New(Config{}, []task.Task{tk, mkTask("lazy", time.Hour)}, newFakeExec(sleepRun(0)), rec, nopLogger())

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, time.Second, func() bool { return rec.count("complete", "eager") == 1 })
	stopNow(t, s)

	if rec.count("dispatch", "lazy") != 0 {
		t.Fatal("lazy task must wait a full interval")
	}
}

func TestStartLifecycleErrors(t *testing.T) {
	s := New(Config{}, []task.Task{mkTask("a", time.Hour)}, newFakeExec(sleepRun(0)), nil, nopLogger())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Fatalf("second Start = %v, want ErrAlreadyStarted", err)
	}
	stopNow(t, s)
	if err := s.Start(context.Background()); !errors.Is(err, ErrStopped) {
		t.Fatalf("Start after Stop = %v, want ErrStopped", err)
	}

	// Stop without Start returns immediately.
	idle := New(Config{}, []task.Task{mkTask("b", time.Hour)}, newFakeExec(sleepRun(0)), nil, nopLogger())
	stopNow(t, idle)
}

func TestExecutorPanicReturnsTaskToIdle(t *testing.T) {
	rec := &recorder{}
	exec := newFakeExec(func(ctx context.Context, tk task.Task, n int) task.Record {
		if n == 1 {
			panic("boom")
		}
		return task.NewRecord(tk.Name).Finish(task.OutcomeSuccess, 0)
	})
	s := New(Config{}, []task.Task{mkTask("fragile", 50*time.Millisecond)}, exec, rec, nopLogger())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return rec.count("complete", "fragile") >= 2 })
	stopNow(t, s)

	var outcomes []task.Outcome
	for _, e := range rec.all() {
		if e.kind == "complete" {
			outcomes = append(outcomes, e.rec.Outcome)
		}
	}
	if outcomes[0] != task.OutcomeSpawnError || outcomes[1] != task.OutcomeSuccess {
		t.Fatalf("outcomes = %v", outcomes)
	}
}

type panickyObserver struct{ recorder }

func (p *panickyObserver) Dispatched(t task.Task, at time.Time) {
	p.recorder.Dispatched(t, at)
	panic("observer bug")
}

func TestObserverPanicDoesNotWedgeTask(t *testing.T) {
	obs := &panickyObserver{}
	s := New(Config{}, []task.Task{mkTask("a", 40*time.Millisecond)}, newFakeExec(sleepRun(0)), obs, nopLogger())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool { return obs.count("complete", "a") >= 2 })
	stopNow(t, s)
}

// slowObserver stalls on skips and flags overlapping calls for one task.
type slowObserver struct {
	recorder
	active  atomic.Int32
	overlap atomic.Bool
}

func (o *slowObserver) enter() func() {
	if o.active.Add(1) > 1 {
		o.overlap.Store(true)
	}
	return func() { o.active.Add(-1) }
}

func (o *slowObserver) Dispatched(t task.Task, at time.Time) {
	defer o.enter()()
	o.recorder.Dispatched(t, at)
}

func (o *slowObserver) Skipped(t task.Task, at, since time.Time) {
	defer o.enter()()
	time.Sleep(25 * time.Millisecond)
	o.recorder.Skipped(t, at, since)
}

func (o *slowObserver) Completed(t task.Task, rec task.Record) {
	defer o.enter()()
	o.recorder.Completed(t, rec)
}

func TestObserverCallsFollowStateOrder(t *testing.T) {
	obs := &slowObserver{}
	s := New(Config{}, []task.Task{mkTask("a", 40*time.Millisecond)}, newFakeExec(sleepRun(90*time.Millisecond)), obs, nopLogger())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, 5*time.Second, func() bool { return obs.count("complete", "a") >= 5 })
	stopNow(t, s)

	if obs.overlap.Load() {
		t.Fatal("observer calls for one task overlapped")
	}
	if obs.count("skip", "a") == 0 {
		t.Fatal("expected skips while the task was busy")
	}
	checkSequence(t, obs.all(), "a")
}
