package config

// Config is the on-disk configuration (JSON or YAML). Durations are Go
// duration strings ("500ms", "10s", "1m").
type Config struct {
	Location    LocationConfig    `json:"location"`
	Calculation CalculationConfig `json:"calculation"`
	Solver      SolverConfig      `json:"solver"`

	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`

	// Storage nil means the in-memory driver.
	Storage  *StorageConfig  `json:"storage,omitempty"`
	Notifier *NotifierConfig `json:"notifier,omitempty"`

	Scheduler SchedulerConfig `json:"scheduler"`
	API       APIConfig       `json:"api"`
}

// LocationConfig is the fixed position of this daemon. Latitude and
// longitude are pointers so an omitted coordinate is distinguishable from 0.
type LocationConfig struct {
	// UseDeviceLocation has no device to read in a daemon; it always
	// yields the unconfigured state.
	UseDeviceLocation bool     `json:"use_device_location,omitempty"`
	Latitude          *float64 `json:"latitude,omitempty"`
	Longitude         *float64 `json:"longitude,omitempty"`
	Name              string   `json:"name,omitempty"`
	Timezone          string   `json:"timezone,omitempty"`
}

type CalculationConfig struct {
	Method string `json:"method,omitempty"`
	Madhab string `json:"madhab,omitempty"`

	// Keyed by prayer name; aliases accepted by prayer.ParseKind work too.
	Adjustments map[string]int  `json:"adjustments,omitempty"`
	Notify      map[string]bool `json:"notify,omitempty"`

	ShowImsak   bool  `json:"show_imsak,omitempty"`
	ShowSunrise *bool `json:"show_sunrise,omitempty"`

	HijriAdjustment int `json:"hijri_adjustment,omitempty"`

	WeeklyReminder  *ReminderConfig `json:"weekly_reminder,omitempty"`
	FastingReminder *ReminderConfig `json:"fasting_reminder,omitempty"`
}

type ReminderConfig struct {
	Enabled       bool `json:"enabled"`
	MinutesBefore int  `json:"minutes_before"`
}

// SolverConfig selects where raw times come from.
//
//	"solver": { "driver": "timetable", "path": "./times.yaml" }
//	"solver": { "driver": "ics", "url": "https://example.org/prayer.ics", "refresh": "12h" }
type SolverConfig struct {
	Driver    string `json:"driver"`
	Path      string `json:"path,omitempty"`
	URL       string `json:"url,omitempty"`
	Refresh   string `json:"refresh,omitempty"`
	CacheSize int    `json:"cache_size,omitempty"`
}

type TelegramConfig struct {
	Token    string `json:"token"`
	ChatID   int64  `json:"chat_id"`
	ThreadID int    `json:"thread_id,omitempty"`

	// Log chat for the logging.telegram sink; defaults to ChatID.
	LogChatID   int64 `json:"log_chat_id,omitempty"`
	LogThreadID int   `json:"log_thread_id,omitempty"`

	Timeout string `json:"timeout,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// StorageConfig controls the alert registry and preference store.
//
//	"storage": { "driver": "file", "path": "./data/adhanbot" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// NotifierConfig controls the outbound message queue. If the section is
// omitted the notifier is enabled with defaults.
type NotifierConfig struct {
	Enabled       *bool  `json:"enabled,omitempty"`
	Workers       int    `json:"workers,omitempty"`
	QueueSize     int    `json:"queue_size,omitempty"`
	RatePerSec    int    `json:"rate_per_sec,omitempty"`
	RetryMax      int    `json:"retry_max,omitempty"`
	RetryBase     string `json:"retry_base,omitempty"`
	RetryMaxDelay string `json:"retry_max_delay,omitempty"`
	SendTimeout   string `json:"send_timeout,omitempty"`
}

type SchedulerConfig struct {
	// Refresh is the daily reschedule trigger; cron with optional seconds.
	Refresh string `json:"refresh,omitempty"`
	// Timezone for cron triggers; defaults to location.timezone.
	Timezone       string `json:"timezone,omitempty"`
	DefaultTimeout string `json:"default_timeout,omitempty"`
	// RestoreGrace is how late a persisted alert may still fire after a restart.
	RestoreGrace string `json:"restore_grace,omitempty"`
}

// APIConfig controls the HTTP surface. Prefer a loopback address; a public
// one needs a token or allow_insecure.
type APIConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`
	Token         string `json:"token,omitempty"` // never logged
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`
}
