package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cadence/internal/config"
	"cadence/internal/eventbus"
	"cadence/internal/execlog"
	"cadence/internal/observability/debughttp"
	"cadence/internal/runtime/supervisor"
	"cadence/internal/storage"
	"cadence/internal/task"
	"cadence/internal/task/scheduler"
	logx "cadence/pkg/logx"
	"cadence/pkg/systemd"
)

// App is the running orchestrator: the scheduler plus its supporting loops.
type App struct {
	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store         storage.Store
	recorder      *execlog.Recorder
	unsubRecorder func()

	sched *scheduler.Service
	tasks []task.Task
	sd    *systemd.Notifier
	debug *debughttp.Server

	startedAt time.Time
}

// New loads and validates the config at cfgPath and wires the orchestrator.
// An invalid task registry is reported as *task.ConfigError.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	return build(cfgm, cfg)
}

func (a *App) Tasks() []task.Task { return a.tasks }

// Failed is closed when a supervised background loop fails for good (a
// watcher error or a loop that exhausted its restarts). Err holds the cause.
func (a *App) Failed() <-chan struct{} {
	if a.sup == nil {
		return nil
	}
	return a.sup.Failed()
}

func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Start launches the background loops, then the scheduler, then reports
// readiness to systemd. ctx only carries values: the app runs until Stop so
// the history recorder outlives the scheduler drain.
func (a *App) Start(ctx context.Context) error {
	a.startedAt = time.Now()
	a.sup = supervisor.New(context.WithoutCancel(ctx), supervisor.WithLogger(a.log))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))

	if a.recorder != nil {
		events, unsub := a.bus.Subscribe(256)
		a.unsubRecorder = unsub
		a.sup.GoRestart("history.recorder", func(c context.Context) error {
			return a.recorder.Run(c, events)
		}, supervisor.WithRestartBackoff(time.Second, 30*time.Second))
	}

	if a.log.Enabled(logx.LevelTrace) {
		events, unsub := a.bus.Subscribe(128)
		a.sup.Go0("eventbus.log", func(c context.Context) {
			defer unsub()
			for {
				select {
				case <-c.Done():
					return
				case e, ok := <-events:
					if !ok {
						return
					}
					a.log.Trace("event", logx.String("type", e.Type), logx.Time("time", e.Time))
				}
			}
		})
	}

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})
	a.sup.GoRestart("systemd.watchdog", a.sd.Watchdog, supervisor.WithMaxRestarts(3))
	if a.debug != nil {
		a.sup.GoRestart("debug.http", a.debug.Serve,
			supervisor.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
			supervisor.WithMaxRestarts(5),
		)
	}

	if err := a.sched.Start(a.sup.Context()); err != nil {
		a.sup.Cancel()
		return err
	}

	a.sd.Status(fmt.Sprintf("running %d tasks", len(a.tasks)))
	a.sd.Ready()
	a.log.Info("app started", logx.Int("tasks", len(a.tasks)), logx.Bool("history", a.store != nil))
	return nil
}

// reloadLoop applies hot config changes. Only logging applies live; every
// other section is fixed for the process lifetime.
func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		var newCfg *config.Config
		select {
		case <-ctx.Done():
			return
		case c, ok := <-sub:
			if !ok {
				return
			}
			newCfg = c
		}
		// Coalesce bursts: keep only the latest.
	drain:
		for {
			select {
			case newer := <-sub:
				if newer != nil {
					newCfg = newer
				}
			default:
				break drain
			}
		}

		sections, attrs, taskChanges := config.SummarizeConfigChange(lastApplied, newCfg)
		lastApplied = newCfg
		if len(sections) == 0 {
			a.log.Info("config reloaded (no changes)")
			continue
		}

		for _, s := range sections {
			if s == "logging" {
				a.logs.Apply(newCfg.Logx())
				break
			}
		}

		if pending := config.RequiresRestart(sections); len(pending) > 0 {
			fields := []logx.Field{logx.String("sections", strings.Join(pending, ","))}
			if len(taskChanges) > 0 {
				fields = append(fields, logx.Any("tasks", taskChanges))
			}
			a.log.Warn("config changes require a restart to take effect", fields...)
		}
		fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
		a.log.Info("config reloaded", fields...)
	}
}

// Stop drains the scheduler, then the background loops, then closes the
// history store. Drain is not bounded by Stop itself; ctx is.
func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping")
	a.sd.Stopping()
	a.sd.Status("draining")

	var firstErr error
	step := func(name string, fn func(context.Context) error) {
		start := time.Now()
		if err := fn(ctx); err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			if firstErr == nil {
				firstErr = fmt.Errorf("%s: %w", name, err)
			}
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	}

	step("scheduler", a.sched.Stop)
	a.logSnapshot()
	step("supervisor", a.sup.Stop)
	if a.unsubRecorder != nil {
		a.unsubRecorder()
	}
	step("history", func(context.Context) error {
		if a.store == nil {
			return nil
		}
		return a.store.Close()
	})

	if n := a.bus.Dropped(); n > 0 {
		a.log.Warn("event deliveries dropped", logx.Uint64("count", n))
	}
	a.log.Info("stopped")
	_ = a.logs.Close()
	return firstErr
}

func (a *App) logSnapshot() {
	snap := a.sched.Snapshot()
	for _, t := range snap.Tasks {
		fields := []logx.Field{
			logx.String("task", t.Name),
			logx.Duration("interval", t.Interval),
			logx.Uint64("runs", t.Runs),
			logx.Uint64("skips", t.Skips),
		}
		if t.Last != nil {
			fields = append(fields,
				logx.String("last_outcome", string(t.Last.Outcome)),
				logx.Time("last_finished", t.Last.FinishedAt),
			)
		}
		a.log.Info("task summary", fields...)
	}
}
