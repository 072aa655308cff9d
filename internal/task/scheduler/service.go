package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"cadence/internal/task"
	logx "cadence/pkg/logx"
)

// slot is the per-task state machine. mu makes the busy check and the
// RUNNING->IDLE transition atomic with respect to each other.
type slot struct {
	task task.Task

	mu           sync.Mutex
	state        task.State
	runningSince time.Time
	runs         uint64
	skips        uint64
	last         *task.Record

	// obsMu orders observer calls for this task. It is taken while mu is
	// held and kept across the call, so calls follow state transitions.
	obsMu sync.Mutex

	// Written by Start under Service.mu.
	entryID cron.EntryID
}

type Service struct {
	mu sync.Mutex

	log  logx.Logger
	cfg  Config
	exec Executor
	obs  Observer

	slots  []*slot
	byName map[string]*slot

	c        *cron.Cron
	started  bool
	stopping bool

	// runCtx is handed to every run. It is only cancelled when the shutdown
	// grace period expires, never by Stop itself.
	runCtx   context.Context
	killRuns context.CancelFunc

	inflight sync.WaitGroup
	stopOnce sync.Once
	stopDone chan struct{}
}

// New builds a scheduler for an already validated task list.
func New(cfg Config, tasks []task.Task, exec Executor, obs Observer, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if obs == nil {
		obs = nopObserver{}
	}
	s := &Service{
		log:      log,
		cfg:      cfg,
		exec:     exec,
		obs:      obs,
		byName:   make(map[string]*slot, len(tasks)),
		runCtx:   context.Background(),
		killRuns: func() {},
		stopDone: make(chan struct{}),
	}
	for _, t := range tasks {
		sl := &slot{task: t}
		s.slots = append(s.slots, sl)
		s.byName[t.Name] = sl
	}
	return s
}

// Start arms one trigger per task. The first tick for a task fires one full
// interval after Start unless the task runs on start.
//
// ctx only contributes values to runs; cancelling it does not stop the
// scheduler (use Stop).
func (s *Service) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopping {
		return ErrStopped
	}
	if s.started {
		return ErrAlreadyStarted
	}
	s.started = true
	s.runCtx, s.killRuns = context.WithCancel(context.WithoutCancel(ctx))

	clog := cronLogger{log: s.log}
	s.c = cron.New(
		cron.WithLogger(clog),
		cron.WithChain(cron.Recover(clog)),
	)

	now := time.Now()
	for _, sl := range s.slots {
		sl := sl
		first, jitter := firstTick(sl.task.Interval, now, s.cfg.StartupSpread, sl.task.Name)
		sl.entryID = s.c.Schedule(intervalSchedule{every: sl.task.Interval, first: first}, cron.FuncJob(func() { s.tick(sl) }))

		fields := []logx.Field{
			logx.String("task", sl.task.Name),
			logx.Duration("interval", sl.task.Interval),
			logx.Time("first", first),
		}
		if jitter > 0 {
			fields = append(fields, logx.Duration("spread", jitter))
		}
		s.log.Debug("schedule registered", fields...)
	}
	s.c.Start()

	for _, sl := range s.slots {
		if s.cfg.RunOnStart || sl.task.RunOnStart {
			go s.tick(sl)
		}
	}

	s.log.Info("scheduler started", logx.Int("tasks", len(s.slots)))
	return nil
}

// Stop cancels all future ticks and waits until every in-flight run has
// completed and been observed. It is idempotent; concurrent callers wait for
// the same drain.
//
// If ctx ends first Stop returns ctx.Err(); draining continues in the
// background and a later Stop call can wait for it again.
func (s *Service) Stop(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s.stopOnce.Do(func() {
		start := time.Now()

		s.mu.Lock()
		s.stopping = true
		c := s.c
		kill := s.killRuns
		grace := s.cfg.ShutdownGrace
		s.mu.Unlock()

		s.log.Info("stop requested", logx.Int("in_flight", s.runningCount()))

		go func() {
			if c != nil {
				<-c.Stop().Done()
			}
			s.inflight.Wait()
			kill()
			close(s.stopDone)
			s.log.Info("scheduler stopped", logx.Duration("took", time.Since(start)))
		}()

		if grace > 0 {
			go func() {
				t := time.NewTimer(grace)
				defer t.Stop()
				select {
				case <-s.stopDone:
				case <-t.C:
					s.log.Warn("shutdown grace expired; terminating in-flight runs",
						logx.Duration("grace", grace),
						logx.Int("in_flight", s.runningCount()),
					)
					kill()
				}
			}()
		}
	})

	select {
	case <-s.stopDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once Stop has fully drained.
func (s *Service) Done() <-chan struct{} { return s.stopDone }

// State reports the current state of the named task.
func (s *Service) State(name string) (task.State, bool) {
	sl, ok := s.byName[name]
	if !ok {
		return task.StateIdle, false
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return sl.state, true
}

func (s *Service) tick(sl *slot) {
	now := time.Now()

	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		return
	}
	s.inflight.Add(1)
	s.mu.Unlock()
	defer s.inflight.Done()

	sl.mu.Lock()
	if sl.state == task.StateRunning {
		since := sl.runningSince
		sl.skips++
		s.emit(sl, func() { s.obs.Skipped(sl.task, now, since) })
		return
	}
	sl.state = task.StateRunning
	sl.runningSince = now
	sl.runs++
	s.emit(sl, func() { s.obs.Dispatched(sl.task, now) })

	rec := s.execute(sl.task)

	sl.mu.Lock()
	sl.state = task.StateIdle
	sl.runningSince = time.Time{}
	sl.last = &rec
	s.emit(sl, func() { s.obs.Completed(sl.task, rec) })
}

// emit must be called with sl.mu held; it releases sl.mu before fn runs.
func (s *Service) emit(sl *slot, fn func()) {
	sl.obsMu.Lock()
	sl.mu.Unlock()
	defer sl.obsMu.Unlock()
	s.notify(sl.task.Name, fn)
}

func (s *Service) execute(t task.Task) (rec task.Record) {
	defer func() {
		if p := recover(); p != nil {
			s.log.Error("executor panicked", logx.String("task", t.Name), logx.Any("panic", p))
			rec = task.NewRecord(t.Name)
			rec.Error = fmt.Sprintf("executor panic: %v", p)
			rec = rec.Finish(task.OutcomeSpawnError, -1)
		}
	}()
	s.mu.Lock()
	ctx := s.runCtx
	s.mu.Unlock()
	return s.exec.Execute(ctx, t)
}

func (s *Service) notify(name string, fn func()) {
	defer func() {
		if p := recover(); p != nil {
			s.log.Error("observer panicked", logx.String("task", name), logx.Any("panic", p))
		}
	}()
	fn()
}

func (s *Service) runningCount() int {
	n := 0
	for _, sl := range s.slots {
		sl.mu.Lock()
		if sl.state == task.StateRunning {
			n++
		}
		sl.mu.Unlock()
	}
	return n
}

type nopObserver struct{}

func (nopObserver) Dispatched(task.Task, time.Time)         {}
func (nopObserver) Skipped(task.Task, time.Time, time.Time) {}
func (nopObserver) Completed(task.Task, task.Record)        {}
