package config

// Config is the on-disk configuration (JSON or YAML).
//
// All durations are Go duration strings (e.g. "500ms", "10s", "15m").
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`

	// History is the optional run history store. Nil or driver "none" disables it.
	History *HistoryConfig `json:"history,omitempty"`

	Systemd SystemdConfig `json:"systemd"`

	// Debug enables the loopback status/pprof endpoint. Nil disables it.
	Debug *DebugConfig `json:"debug,omitempty"`

	Tasks []TaskConfig `json:"tasks"`
}

type LoggingConfig struct {
	Level   string `json:"level"`
	Console bool   `json:"console"`
	// Format is "console" (default) or "json".
	Format string      `json:"format,omitempty"`
	File   LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// SchedulerConfig controls trigger behavior shared by every task.
type SchedulerConfig struct {
	RunOnStart    bool `json:"run_on_start,omitempty"`
	StartupSpread bool `json:"startup_spread,omitempty"`
	// ShutdownGrace is how long a stop drains before in-flight runs get
	// SIGTERM. "0s" or empty waits indefinitely.
	ShutdownGrace string `json:"shutdown_grace,omitempty"`
}

// HistoryConfig controls the run history store.
//
// Example:
//
//	"history": { "driver": "sqlite", "path": "./cadence_history.db", "retention": "720h" }
type HistoryConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
	// Retention drops runs older than this. Empty keeps everything.
	Retention string `json:"retention,omitempty"`
}

type SystemdConfig struct {
	// Notify sends READY/STOPPING and watchdog pings when NOTIFY_SOCKET is set.
	Notify bool `json:"notify"`
}

// DebugConfig controls the HTTP status endpoint (/healthz, /status,
// /debug/pprof/). Non-loopback addresses need a token or allow_insecure.
type DebugConfig struct {
	Addr          string `json:"addr,omitempty"` // default 127.0.0.1:6060
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
}

// TaskConfig is one task definition. Exactly one of IntervalMS or Interval
// must be set.
type TaskConfig struct {
	Name    string   `json:"name"`
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`

	IntervalMS int64 `json:"interval_ms,omitempty"`
	// Interval accepts a Go duration ("15m"), HH:MM ("01:30"), or either
	// prefixed with "every:"/"interval:".
	Interval string `json:"interval,omitempty"`

	Timeout    string            `json:"timeout,omitempty"`
	Env        map[string]string `json:"env,omitempty"`
	Dir        string            `json:"dir,omitempty"`
	RunOnStart bool              `json:"run_on_start,omitempty"`
}
