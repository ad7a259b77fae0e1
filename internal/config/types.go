package config

// Config is the on-disk configuration. Durations are Go duration strings
// ("500ms", "10s", "2m").
type Config struct {
	Platform     PlatformConfig      `json:"platform"`
	NapCat       *NapCatConfig       `json:"napcat,omitempty"`
	Telegram     *TelegramConfig     `json:"telegram,omitempty"`
	Destinations []DestinationConfig `json:"destinations"`
	Poll         PollConfig          `json:"poll"`
	Captcha      CaptchaConfig       `json:"captcha"`
	Ledger       LedgerConfig        `json:"ledger"`
	Logging      LoggingConfig       `json:"logging"`
	Ops          OpsConfig           `json:"ops"`
}

// PlatformConfig points at the CTF platform.
//
// Cookie is rewritten by the bot after every successful login. Username and
// Password may be left empty when a long-lived cookie is supplied, but then
// the bot cannot recover from an expired session.
type PlatformConfig struct {
	BaseURL   string `json:"base_url"`
	GameID    int64  `json:"game_id"`
	Username  string `json:"username,omitempty"`
	Password  string `json:"password,omitempty"`
	Cookie    string `json:"cookie,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	Timeout   string `json:"timeout,omitempty"`
}

type NapCatConfig struct {
	URL     string `json:"url"`
	Token   string `json:"token,omitempty"`
	Timeout string `json:"timeout,omitempty"`
}

type TelegramConfig struct {
	Token   string `json:"token"`
	APIURL  string `json:"api_url,omitempty"`
	Timeout string `json:"timeout,omitempty"`
}

// DestinationConfig is one group that receives every notice.
// Kind is "napcat" (ID is the QQ group number) or "telegram".
type DestinationConfig struct {
	Kind     string `json:"kind"`
	ID       int64  `json:"id"`
	ThreadID int    `json:"thread_id,omitempty"`
}

// PollConfig controls the fetch cadence and delivery pacing.
//
// Defaults:
//   - schedule: "5s" (pause between cycles; cron expressions also work)
//   - timezone: local zone of the host
//   - send_rate_per_sec: 0 (unlimited)
//   - send_timeout: "15s"
type PollConfig struct {
	Schedule       string  `json:"schedule,omitempty"`
	Timezone       string  `json:"timezone,omitempty"`
	SendRatePerSec float64 `json:"send_rate_per_sec,omitempty"`
	SendTimeout    string  `json:"send_timeout,omitempty"`
}

type CaptchaConfig struct {
	// 0 means one worker per CPU.
	Workers int    `json:"workers,omitempty"`
	Timeout string `json:"timeout,omitempty"`
}

// LedgerConfig selects where delivered notice ids are kept.
// Driver is "file" (default), "sqlite" or "redis".
type LedgerConfig struct {
	Driver      string `json:"driver,omitempty"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"`

	RedisAddr     string `json:"redis_addr,omitempty"`
	RedisPassword string `json:"redis_password,omitempty"`
	RedisDB       int    `json:"redis_db,omitempty"`
	RedisPrefix   string `json:"redis_prefix,omitempty"`
}

type LoggingConfig struct {
	Level   string        `json:"level"`
	Console bool          `json:"console"`
	File    LogFileConfig `json:"file"`
	Chat    LogChatConfig `json:"chat"`
}

// LogFileConfig rotates the log file at MaxSizeMB, keeping MaxBackups old
// files. 0 means 5 MB and 3 backups.
type LogFileConfig struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path,omitempty"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty"`
}

// LogChatConfig mirrors warnings and errors to a chat.
// Destination uses the "kind:chat[/thread]" form, e.g. "telegram:-100123/4".
type LogChatConfig struct {
	Enabled     bool   `json:"enabled"`
	Destination string `json:"destination,omitempty"`
	MinLevel    string `json:"min_level,omitempty"`
	RatePerSec  int    `json:"rate_per_sec,omitempty"`
}

// OpsConfig controls the local operations HTTP server.
type OpsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`
	Token   string `json:"token,omitempty"`
	Pprof   bool   `json:"pprof,omitempty"`
}
