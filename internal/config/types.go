package config

// Config is the on-disk configuration. JSON and YAML are both accepted;
// YAML is coerced to JSON before strict decoding, so unknown keys are
// rejected in either format.
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`

	// Storage selects the persistence backend. Nil means in-memory,
	// which is only useful for tests and dry runs.
	Storage *StorageConfig `json:"storage,omitempty"`

	// Notifier controls the async email pipeline. Nil uses defaults.
	Notifier *NotifierConfig `json:"notifier,omitempty"`

	// SMTP configures outbound mail. Nil logs messages instead of
	// sending them.
	SMTP *SMTPConfig `json:"smtp,omitempty"`
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

// SchedulerConfig controls the polling loop.
//
// All durations are Go duration strings (e.g. "30s", "5m").
type SchedulerConfig struct {
	Enabled bool `json:"enabled"`

	// PollInterval is how often the scheduler sweeps for due jobs.
	// Defaults to "1m".
	PollInterval string `json:"poll_interval,omitempty"`

	// JobTimeout bounds a single job execution. Defaults to "5m".
	JobTimeout string `json:"job_timeout,omitempty"`

	// Timezone is the default zone for jobs without one of their own.
	Timezone string `json:"timezone,omitempty"`
}

// NotifierConfig controls the async notification pipeline.
//
// All durations are Go duration strings.
type NotifierConfig struct {
	Enabled       bool   `json:"enabled"`
	Workers       int    `json:"workers"`
	QueueSize     int    `json:"queue_size"`
	RatePerSec    int    `json:"rate_per_sec"`
	RetryMax      int    `json:"retry_max"`
	RetryBase     string `json:"retry_base"`
	RetryMaxDelay string `json:"retry_max_delay"`
}

// StorageConfig selects and tunes the persistence layer.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./lexflow.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

type SMTPConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"` // do not log
	From     string `json:"from"`
}
