package config

import (
	"reflect"
	"sort"
	"strings"

	logx "cadence/pkg/logx"
)

// Sections that only take effect on restart. Tasks and their timers are
// fixed for the process lifetime.
var restartSections = map[string]bool{
	"scheduler": true,
	"history":   true,
	"systemd":   true,
	"debug":     true,
	"tasks":     true,
}

// SummarizeConfigChange returns (1) a sorted list of changed sections,
// (2) structured attrs for logging, and (3) the names of tasks that were
// added, removed or changed.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field, []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 5)
	attrs := make([]logx.Field, 0, 12)

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.String("logging.format", newCfg.Logging.Format),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if oldCfg.Scheduler != newCfg.Scheduler {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.Bool("scheduler.run_on_start", newCfg.Scheduler.RunOnStart),
			logx.Bool("scheduler.startup_spread", newCfg.Scheduler.StartupSpread),
			logx.String("scheduler.shutdown_grace", strings.TrimSpace(newCfg.Scheduler.ShutdownGrace)),
		)
	}

	oH, nH := derefHistory(oldCfg.History), derefHistory(newCfg.History)
	if oH != nH {
		changed = append(changed, "history")
		attrs = append(attrs,
			logx.String("history.driver", strings.TrimSpace(nH.Driver)),
			logx.Bool("history.path_set", strings.TrimSpace(nH.Path) != ""),
			logx.String("history.retention", strings.TrimSpace(nH.Retention)),
		)
	}

	if oldCfg.Systemd != newCfg.Systemd {
		changed = append(changed, "systemd")
		attrs = append(attrs, logx.Bool("systemd.notify", newCfg.Systemd.Notify))
	}

	oD, nD := derefDebug(oldCfg.Debug), derefDebug(newCfg.Debug)
	if (oldCfg.Debug == nil) != (newCfg.Debug == nil) || oD != nD {
		changed = append(changed, "debug")
		attrs = append(attrs,
			logx.Bool("debug.enabled", newCfg.Debug != nil),
			logx.String("debug.addr", strings.TrimSpace(nD.Addr)),
		)
	}

	taskChanged := diffTasks(oldCfg.Tasks, newCfg.Tasks)
	if len(taskChanged) > 0 {
		changed = append(changed, "tasks")
		attrs = append(attrs,
			logx.Int("tasks.changed_count", len(taskChanged)),
			logx.Int("tasks.count", len(newCfg.Tasks)),
		)
	}

	sort.Strings(changed)
	return changed, attrs, taskChanged
}

// RequiresRestart filters sections that cannot be applied live.
func RequiresRestart(sections []string) []string {
	var out []string
	for _, s := range sections {
		if restartSections[s] {
			out = append(out, s)
		}
	}
	return out
}

func derefHistory(h *HistoryConfig) HistoryConfig {
	if h == nil {
		return HistoryConfig{}
	}
	return *h
}

func derefDebug(d *DebugConfig) DebugConfig {
	if d == nil {
		return DebugConfig{}
	}
	return *d
}

func diffTasks(oldT, newT []TaskConfig) []string {
	oldM := indexTasks(oldT)
	newM := indexTasks(newT)

	set := map[string]struct{}{}
	for k := range oldM {
		set[k] = struct{}{}
	}
	for k := range newM {
		set[k] = struct{}{}
	}

	out := make([]string, 0, len(set))
	for name := range set {
		o, inOld := oldM[name]
		n, inNew := newM[name]
		if inOld != inNew || !reflect.DeepEqual(o, n) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func indexTasks(ts []TaskConfig) map[string]TaskConfig {
	m := make(map[string]TaskConfig, len(ts))
	for _, t := range ts {
		m[strings.TrimSpace(t.Name)] = t
	}
	return m
}
