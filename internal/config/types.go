package config

// Config is the on-disk configuration (JSON or YAML).
type Config struct {
	Logging LoggingConfig `json:"logging"`

	// Scheduler holds the application-wide enable flag. A missing section is
	// treated as disabled: no job runs until it is configured.
	Scheduler *SchedulerConfig `json:"scheduler,omitempty"`

	Storage StorageConfig `json:"storage"`
	Jobs    []JobConfig   `json:"jobs"`

	Notify  NotifyConfig  `json:"notify,omitempty"`
	Metrics MetricsConfig `json:"metrics,omitempty"`
	Systemd SystemdConfig `json:"systemd,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// SchedulerConfig controls the minute tick.
//
// Defaults (when fields are omitted/zero):
//   - timezone: Local
//   - guard: "none"
//   - history_size: 200
type SchedulerConfig struct {
	Enabled  bool   `json:"enabled"`
	Timezone string `json:"timezone,omitempty"` // IANA TZ, e.g. "Asia/Jakarta"

	// Guard is "none" or "cas". With "cas" each run first claims its period
	// in the marker store, so schedulers sharing one sqlite file never
	// double-run a job.
	Guard       string `json:"guard,omitempty"`
	HistorySize int    `json:"history_size,omitempty"`
}

// StorageConfig selects the marker store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./cronkeep.db", "busy_timeout": "2s" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// JobConfig declares one gated job.
type JobConfig struct {
	ID           string `json:"id"`
	Label        string `json:"label,omitempty"`
	Granularity  string `json:"granularity"`             // "daily" | "hourly"
	Earliest     string `json:"earliest,omitempty"`      // "HH:MM", daily jobs only
	LogPath      string `json:"log_path,omitempty"`      // shared by jobs of the same family
	MarkerPolicy string `json:"marker_policy,omitempty"` // "always" | "on_success"

	Action ActionConfig `json:"action"`
}

// ActionConfig describes what a job does. Type selects which fields apply:
//   - command: command, args, dir, env
//   - sql: dsn, query
//   - http: url, method, headers, body
type ActionConfig struct {
	Type    string `json:"type"`
	Timeout string `json:"timeout,omitempty"` // Go duration string

	Command string   `json:"command,omitempty"`
	Args    []string `json:"args,omitempty"`
	Dir     string   `json:"dir,omitempty"`
	Env     []string `json:"env,omitempty"`

	DSN   string `json:"dsn,omitempty"`
	Query string `json:"query,omitempty"`

	URL     string            `json:"url,omitempty"`
	Method  string            `json:"method,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    string            `json:"body,omitempty"`
}

type NotifyConfig struct {
	Telegram *TelegramConfig `json:"telegram,omitempty"`
}

// TelegramConfig forwards run events to a chat.
//
// Events defaults to ["job.failed", "job.marker_failed"].
type TelegramConfig struct {
	Enabled    bool     `json:"enabled"`
	Token      string   `json:"token"`
	ChatID     int64    `json:"chat_id"`
	ThreadID   int      `json:"thread_id,omitempty"`
	Events     []string `json:"events,omitempty"`
	RatePerSec int      `json:"rate_per_sec,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

// MetricsConfig controls the status/metrics HTTP server.
//
// Prefer binding to localhost (e.g. "127.0.0.1:9310").
type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`
	// Pprof mounts net/http/pprof under /debug on the same listener.
	Pprof bool `json:"pprof,omitempty"`
}

type SystemdConfig struct {
	Notify bool `json:"notify"`
}
