package config

// Config is the full on-disk configuration.
//
// The file may be JSON or YAML (by extension). YAML is converted to JSON
// and both formats go through the same strict decoder, so unknown keys
// fail loudly instead of being silently ignored.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type Config struct {
	Storage   StorageConfig   `json:"storage"`
	Telegram  TelegramConfig  `json:"telegram"`
	Pacing    PacingConfig    `json:"pacing"`
	Templates TemplatesConfig `json:"templates"`
	Logging   LoggingConfig   `json:"logging"`

	// Schedule optionally runs unattended broadcast batches on a cron
	// spec. If omitted, batches only run from the interactive menu.
	Schedule *ScheduleConfig `json:"schedule,omitempty"`
}

// StorageConfig controls the SQLite account/ledger database and the
// credential encryption key file.
type StorageConfig struct {
	Path        string `json:"path"`
	KeyPath     string `json:"key_path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string
}

// TelegramConfig controls the MTProto session layer.
//
// SessionDir holds one session file per account handle so accounts stay
// logged in across runs and only need the code/password flow once.
type TelegramConfig struct {
	SessionDir string `json:"session_dir"`
}

// PacingConfig controls anti-abuse send pacing.
//
// Defaults (when fields are omitted/zero):
//   - min_delay: "2s"
//   - max_delay: "4s"
//   - rate_per_sec: 5 (global cap across all accounts)
//   - flood_retry_max: 0 (retry a flood-waited group without limit)
type PacingConfig struct {
	MinDelay   string `json:"min_delay,omitempty"`
	MaxDelay   string `json:"max_delay,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`

	// FloodRetryMax caps how many times one group is retried after
	// flood-wait cooldowns before it is skipped. 0 means unlimited.
	FloodRetryMax int `json:"flood_retry_max,omitempty"`
}

// TemplatesConfig controls where per-account message files and group
// snapshots live. Files are named "<handle>_<tag>.txt".
type TemplatesConfig struct {
	Dir string `json:"dir"`
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

// ScheduleConfig runs a broadcast batch on a cron schedule.
type ScheduleConfig struct {
	Enabled bool   `json:"enabled"`
	Spec    string `json:"spec"` // standard 5-field cron expression
	Tag     string `json:"tag"`  // message tag to broadcast, e.g. "standard"
}
