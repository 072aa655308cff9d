package app

import (
	"time"

	"go.uber.org/dig"

	"cadence/internal/config"
	"cadence/internal/eventbus"
	"cadence/internal/execlog"
	"cadence/internal/observability/debughttp"
	"cadence/internal/storage"
	"cadence/internal/task"
	"cadence/internal/task/runner"
	"cadence/internal/task/scheduler"
	logx "cadence/pkg/logx"
	"cadence/pkg/systemd"
)

// logging bundles the log service with its root logger so both come out of
// one constructor.
type logging struct {
	svc  *logx.Service
	root logx.Logger
}

// history is the optional store plus its retention window. store is nil
// when history is disabled.
type history struct {
	store     storage.Store
	retention time.Duration
}

// build wires every component of the orchestrator from a loaded config.
func build(cfgm *config.ConfigManager, cfg *config.Config) (*App, error) {
	d := dig.New()

	provides := []any{
		func() *config.ConfigManager { return cfgm },
		func() *config.Config { return cfg },
		newLogging,
		func() eventbus.Bus { return eventbus.New() },
		newTasks,
		newHistory,
		newRunner,
		newExecLog,
		newScheduler,
		newNotifier,
	}
	for _, p := range provides {
		if err := d.Provide(p); err != nil {
			return nil, err
		}
	}

	var a *App
	err := d.Invoke(func(
		tasks []task.Task,
		lg logging,
		bus eventbus.Bus,
		h history,
		sched *scheduler.Service,
		sd *systemd.Notifier,
	) {
		a = &App{
			cfgm:  cfgm,
			logs:  lg.svc,
			log:   lg.root.With(logx.String("comp", "app")),
			bus:   bus,
			store: h.store,
			sched: sched,
			tasks: tasks,
			sd:    sd,
		}
		if h.store != nil {
			a.recorder = execlog.NewRecorder(h.store, lg.root, h.retention)
		}
		if dc, ok := cfg.DebugSettings(); ok {
			a.debug = debughttp.New(dc, a.status, lg.root.With(logx.String("comp", "debug")))
		}
	})
	if err != nil {
		// Surface the constructor's own error (e.g. *task.ConfigError).
		return nil, dig.RootCause(err)
	}
	return a, nil
}

func newLogging(cfg *config.Config) logging {
	svc, root := logx.New(cfg.Logx())
	return logging{svc: svc, root: root}
}

func newTasks(cfg *config.Config) ([]task.Task, error) {
	return cfg.BuildTasks()
}

func newHistory(cfg *config.Config, lg logging) (history, error) {
	sc, retention, err := cfg.HistorySettings()
	if err != nil {
		return history{}, err
	}
	st, err := storage.Open(sc, lg.root)
	if err != nil {
		return history{}, err
	}
	return history{store: st, retention: retention}, nil
}

func newRunner(lg logging) *runner.Runner {
	return runner.New(runner.WithLogger(lg.root.With(logx.String("comp", "runner"))))
}

func newExecLog(lg logging, bus eventbus.Bus) *execlog.Log {
	return execlog.New(lg.root, bus)
}

func newScheduler(cfg *config.Config, tasks []task.Task, r *runner.Runner, el *execlog.Log, lg logging) (*scheduler.Service, error) {
	sc, err := cfg.SchedulerConfig()
	if err != nil {
		return nil, err
	}
	return scheduler.New(sc, tasks, r, el, lg.root.With(logx.String("comp", "scheduler"))), nil
}

func newNotifier(cfg *config.Config, lg logging) *systemd.Notifier {
	return systemd.NewNotifier(cfg.Systemd.Notify, lg.root)
}
