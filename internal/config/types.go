package config

type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Data      DataConfig      `json:"data"`
	Sender    *SenderConfig   `json:"sender,omitempty"`
	Storage   *StorageConfig  `json:"storage,omitempty"`
	Panel     *PanelConfig    `json:"panel,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`

	// PollTimeout is a Go duration string (e.g. "10s").
	PollTimeout string `json:"poll_timeout,omitempty"`

	// AdminIDs seeds the admin store on first start. Later changes made via
	// /add_admin and /remove_admin are persisted separately under data.dir.
	AdminIDs []int64 `json:"admin_ids,omitempty"`

	// ChannelID is the default publish channel (0 = unset; can also be set
	// at runtime via /set_channel).
	ChannelID int64 `json:"channel_id,omitempty"`
}

type LoggingConfig struct {
	Level   string            `json:"level"`
	Console bool              `json:"console"`
	File    LoggingFileConfig `json:"file,omitempty"`
}

type LoggingFileConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Path    string `json:"path,omitempty"`
}

// SchedulerConfig controls trigger behavior.
//
// Cron expressions use 6 fields with a leading seconds field, evaluated in
// Timezone so wall-clock schedules stay stable across DST transitions.
type SchedulerConfig struct {
	Timezone string `json:"timezone"` // IANA TZ, e.g. "Europe/Warsaw"
}

type DataConfig struct {
	// Dir holds the job snapshot (jobs.json) and the bot config overlay
	// (config.json). Defaults to "./data".
	Dir string `json:"dir,omitempty"`
}

// SenderConfig controls outbound Telegram send pacing.
type SenderConfig struct {
	// RatePerSec caps outbound messages per second (default 25).
	RatePerSec int `json:"rate_per_sec,omitempty"`
}

// StorageConfig controls the audit store.
//
// Driver values:
//   - "none" or empty: disabled
//   - "file": JSON Lines audit log
//   - "sqlite": SQLite database file (requires the sqlite build tag)
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// PanelConfig controls the HTTP status panel.
type PanelConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default ":3000"
}
