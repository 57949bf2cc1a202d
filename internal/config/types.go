package config

// Config is the on-disk configuration. All durations are Go duration
// strings ("500ms", "5s", "1m").
type Config struct {
	Discord   DiscordConfig   `json:"discord"`
	Logging   LoggingConfig   `json:"logging"`
	Schedules SchedulesConfig `json:"schedules"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Dispatch  DispatchConfig  `json:"dispatch,omitempty"`
	Notifier  *NotifierConfig `json:"notifier,omitempty"`
	Storage   *StorageConfig  `json:"storage,omitempty"`
	Status    StatusConfig    `json:"status,omitempty"`
}

type DiscordConfig struct {
	// Token may be left empty and supplied through DISCORD_TOKEN.
	Token         string `json:"token"`
	ApplicationID string `json:"application_id,omitempty"`
	// GuildIDs registers slash commands per guild (instant) instead of
	// globally when set.
	GuildIDs     []string `json:"guild_ids,omitempty"`
	LogChannelID string   `json:"log_channel_id,omitempty"`
	// StaffRoleIDs may manage schedules without Manage Server.
	StaffRoleIDs []string `json:"staff_role_ids,omitempty"`
}

type LoggingConfig struct {
	Level   string         `json:"level"`
	Console bool           `json:"console"`
	File    LoggingFile    `json:"file"`
	Discord LoggingDiscord `json:"discord"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingDiscord mirrors log lines into discord.log_channel_id.
type LoggingDiscord struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// SchedulesConfig selects the schedule persistence backend.
//
// Example:
//
//	"schedules": { "driver": "file", "path": "./data/schedules.json" }
type SchedulesConfig struct {
	Driver string `json:"driver"` // file (default), sqlite, mysql
	Path   string `json:"path,omitempty"`
	DSN    string `json:"dsn,omitempty"` // mysql only (do not log)
}

type SchedulerConfig struct {
	Enabled bool `json:"enabled"`
	// Tick defaults to "5s"; values under one second are raised.
	Tick            string `json:"tick,omitempty"`
	MaxSendsPerTick int    `json:"max_sends_per_tick,omitempty"`
}

// DispatchConfig limits scheduled sends across all guilds.
type DispatchConfig struct {
	RatePerSec float64 `json:"rate_per_sec,omitempty"`
	Burst      int     `json:"burst,omitempty"`
}

// NotifierConfig controls staff alerts. Alerts go to ChannelID, or to
// discord.log_channel_id when ChannelID is empty.
//
// If the whole section is omitted, the notifier is enabled with defaults.
type NotifierConfig struct {
	Enabled         bool   `json:"enabled"`
	ChannelID       string `json:"channel_id,omitempty"`
	Workers         int    `json:"workers"`
	QueueSize       int    `json:"queue_size"`
	RatePerSec      int    `json:"rate_per_sec"`
	RetryMax        int    `json:"retry_max"`
	RetryBase       string `json:"retry_base"`
	RetryMaxDelay   string `json:"retry_max_delay"`
	DedupWindow     string `json:"dedup_window"`
	DedupMaxEntries int    `json:"dedup_max_entries"`
	PersistDedup    bool   `json:"persist_dedup,omitempty"`
}

// StorageConfig controls the audit log and notifier dedup persistence.
type StorageConfig struct {
	Driver      string `json:"driver"` // none, file, sqlite
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite
}

// StatusConfig controls the ops HTTP server.
//
// Binding to a non-loopback address requires Token unless AllowInsecure.
type StatusConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`  // default: "127.0.0.1:8089"
	Token         string `json:"token,omitempty"` // bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}

// DefaultNotifier is used when the notifier section is omitted.
func DefaultNotifier() NotifierConfig {
	return NotifierConfig{
		Enabled:         true,
		Workers:         1,
		QueueSize:       256,
		RatePerSec:      1,
		RetryMax:        3,
		RetryBase:       "500ms",
		RetryMaxDelay:   "10s",
		DedupWindow:     "10m",
		DedupMaxEntries: 2000,
	}
}
