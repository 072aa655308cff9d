package config

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"cadence/internal/observability/debughttp"
	"cadence/internal/storage"
	"cadence/internal/task"
	"cadence/internal/task/scheduler"
	logx "cadence/pkg/logx"
)

// Logx maps the logging section to the logging service config.
func (c *Config) Logx() logx.Config {
	return logx.Config{
		Level:   c.Logging.Level,
		Console: c.Logging.Console,
		Format:  c.Logging.Format,
		File: logx.FileConfig{
			Enabled: c.Logging.File.Enabled,
			Path:    c.Logging.File.Path,
		},
	}
}

// SchedulerConfig maps the scheduler section.
func (c *Config) SchedulerConfig() (scheduler.Config, error) {
	grace, err := ParseDurationField("scheduler.shutdown_grace", c.Scheduler.ShutdownGrace)
	if err != nil {
		return scheduler.Config{}, err
	}
	return scheduler.Config{
		RunOnStart:    c.Scheduler.RunOnStart,
		StartupSpread: c.Scheduler.StartupSpread,
		ShutdownGrace: grace,
	}, nil
}

// HistorySettings maps the history section. A nil section yields a disabled
// store config and zero retention.
func (c *Config) HistorySettings() (storage.Config, time.Duration, error) {
	h := c.History
	if h == nil {
		return storage.Config{}, 0, nil
	}
	busy, err := ParseDurationField("history.busy_timeout", h.BusyTimeout)
	if err != nil {
		return storage.Config{}, 0, err
	}
	retention, err := ParseDurationField("history.retention", h.Retention)
	if err != nil {
		return storage.Config{}, 0, err
	}
	return storage.Config{
		Driver:      h.Driver,
		Path:        h.Path,
		BusyTimeout: busy,
	}, retention, nil
}

// DebugSettings maps the debug section. ok is false when it is absent.
func (c *Config) DebugSettings() (cfg debughttp.Config, ok bool) {
	if c.Debug == nil {
		return debughttp.Config{}, false
	}
	return debughttp.Config{
		Addr:          strings.TrimSpace(c.Debug.Addr),
		Token:         strings.TrimSpace(c.Debug.Token),
		AllowInsecure: c.Debug.AllowInsecure,
	}, true
}

// BuildTasks converts the task section into a validated registry. Every
// problem is reported in a single *task.ConfigError.
func (c *Config) BuildTasks() ([]task.Task, error) {
	var problems []error
	defs := make([]task.Task, 0, len(c.Tasks))

	for i, tc := range c.Tasks {
		path := fmt.Sprintf("tasks[%d]", i)
		if n := strings.TrimSpace(tc.Name); n != "" {
			path = fmt.Sprintf("tasks[%d](%s)", i, n)
		}

		interval, err := taskInterval(path, tc)
		if err != nil {
			problems = append(problems, err)
		}
		timeout, err := ParseDurationField(path+".timeout", tc.Timeout)
		if err != nil {
			problems = append(problems, err)
		}

		defs = append(defs, task.Task{
			Name:       tc.Name,
			Command:    tc.Command,
			Args:       tc.Args,
			Interval:   interval,
			Env:        envList(tc.Env),
			Dir:        strings.TrimSpace(tc.Dir),
			Timeout:    timeout,
			RunOnStart: tc.RunOnStart,
		})
	}
	if len(problems) > 0 {
		return nil, &task.ConfigError{Problems: problems}
	}
	return task.Validate(defs)
}

// maxIntervalMS is the largest interval_ms that fits in a time.Duration.
const maxIntervalMS = math.MaxInt64 / int64(time.Millisecond)

func taskInterval(path string, tc TaskConfig) (time.Duration, error) {
	hasMS := tc.IntervalMS != 0
	hasStr := strings.TrimSpace(tc.Interval) != ""
	switch {
	case hasMS && hasStr:
		return 0, fmt.Errorf("%s: set only one of interval_ms and interval", path)
	case hasMS:
		if tc.IntervalMS < 0 {
			return 0, fmt.Errorf("%s.interval_ms: must be > 0 (got %d)", path, tc.IntervalMS)
		}
		if tc.IntervalMS > maxIntervalMS {
			return 0, fmt.Errorf("%s.interval_ms: too large (max %d)", path, int64(maxIntervalMS))
		}
		return time.Duration(tc.IntervalMS) * time.Millisecond, nil
	case hasStr:
		return ParseInterval(path+".interval", tc.Interval)
	default:
		return 0, fmt.Errorf("%s: interval_ms or interval is required", path)
	}
}

// envList renders env as sorted KEY=VALUE pairs.
func envList(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}

// Validate checks every section without side effects. It is used both at
// startup and before committing a hot reload.
func (c *Config) Validate() error {
	if _, err := c.SchedulerConfig(); err != nil {
		return err
	}
	if _, _, err := c.HistorySettings(); err != nil {
		return err
	}
	if dc, ok := c.DebugSettings(); ok {
		if err := dc.Check(); err != nil {
			return fmt.Errorf("debug: %w", err)
		}
	}
	if _, err := c.BuildTasks(); err != nil {
		return err
	}
	return nil
}
