package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"noticebot/internal/schedule"
	"noticebot/internal/storage"
	"noticebot/internal/transport"
	logx "noticebot/pkg/logx"
)

var ErrInvalid = errors.New("invalid config")

// ConfigError lists every problem found in one pass.
type ConfigError struct {
	Problems []string
}

func (e *ConfigError) Error() string {
	return "invalid config: " + strings.Join(e.Problems, "; ")
}

func (e *ConfigError) Is(target error) bool { return target == ErrInvalid }

const (
	DefaultSchedule     = "5s"
	DefaultLedgerFile   = "./data/read_notices.txt"
	DefaultLedgerSQLite = "./data/noticebot.db"
	DefaultOpsAddr      = "127.0.0.1:9464"
)

// Validate checks the whole config and returns a *ConfigError describing
// every problem, or nil.
func (c *Config) Validate() error {
	var p []string
	add := func(format string, args ...any) { p = append(p, fmt.Sprintf(format, args...)) }

	if strings.TrimSpace(c.Platform.BaseURL) == "" {
		add("platform.base_url is required")
	} else if u, err := url.Parse(c.Platform.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		add("platform.base_url %q is not an absolute URL", c.Platform.BaseURL)
	}
	if c.Platform.GameID <= 0 {
		add("platform.game_id must be > 0")
	}
	if strings.TrimSpace(c.Platform.Cookie) == "" && (strings.TrimSpace(c.Platform.Username) == "" || c.Platform.Password == "") {
		add("platform: either cookie or username and password are required")
	}
	if _, err := parseDuration("platform.timeout", c.Platform.Timeout, 0); err != nil {
		add("%v", err)
	}

	if c.NapCat != nil {
		if strings.TrimSpace(c.NapCat.URL) == "" {
			add("napcat.url is required when the napcat section is present")
		}
		if _, err := parseDuration("napcat.timeout", c.NapCat.Timeout, 0); err != nil {
			add("%v", err)
		}
	}
	if c.Telegram != nil {
		if strings.TrimSpace(c.Telegram.Token) == "" {
			add("telegram.token is required when the telegram section is present")
		}
		if _, err := parseDuration("telegram.timeout", c.Telegram.Timeout, 0); err != nil {
			add("%v", err)
		}
	}

	if len(c.Destinations) == 0 {
		add("destinations: at least one destination group is required")
	}
	seen := map[transport.Target]bool{}
	for i, d := range c.Destinations {
		t, err := d.Target()
		if err != nil {
			add("destinations[%d]: %v", i, err)
			continue
		}
		if seen[t] {
			add("destinations[%d]: duplicate %s", i, t)
		}
		seen[t] = true
		if !c.hasAdapter(t.Kind) {
			add("destinations[%d]: %s destination needs a %s section", i, t, t.Kind)
		}
	}

	loc, err := c.Location()
	if err != nil {
		add("%v", err)
	}
	if _, err := schedule.Parse(c.scheduleRaw(), loc); err != nil {
		add("poll.schedule: %v", err)
	}
	if c.Poll.SendRatePerSec < 0 {
		add("poll.send_rate_per_sec must be >= 0")
	}
	if _, err := parseDuration("poll.send_timeout", c.Poll.SendTimeout, 0); err != nil {
		add("%v", err)
	}

	if c.Captcha.Workers < 0 {
		add("captcha.workers must be >= 0")
	}
	if _, err := parseDuration("captcha.timeout", c.Captcha.Timeout, 0); err != nil {
		add("%v", err)
	}

	switch strings.ToLower(strings.TrimSpace(c.Ledger.Driver)) {
	case "", "file", "sqlite", "sqlite3":
	case "redis":
		if strings.TrimSpace(c.Ledger.RedisAddr) == "" {
			add("ledger.redis_addr is required for the redis driver")
		}
	default:
		add("ledger.driver %q is not one of file, sqlite, redis", c.Ledger.Driver)
	}
	if _, err := parseDuration("ledger.busy_timeout", c.Ledger.BusyTimeout, 0); err != nil {
		add("%v", err)
	}

	if _, ok := levelOK(c.Logging.Level); !ok {
		add("logging.level %q is not a known level", c.Logging.Level)
	}
	if c.Logging.File.MaxSizeMB < 0 || c.Logging.File.MaxBackups < 0 {
		add("logging.file.max_size_mb and max_backups must not be negative")
	}
	if c.Logging.Chat.Enabled {
		t, err := transport.ParseTarget(c.Logging.Chat.Destination)
		if err != nil {
			add("logging.chat.destination: %v", err)
		} else if !c.hasAdapter(t.Kind) {
			add("logging.chat.destination: %s needs a %s section", t, t.Kind)
		}
		if _, ok := levelOK(c.Logging.Chat.MinLevel); !ok {
			add("logging.chat.min_level %q is not a known level", c.Logging.Chat.MinLevel)
		}
	}

	if len(p) == 0 {
		return nil
	}
	return &ConfigError{Problems: p}
}

func (c *Config) hasAdapter(k transport.Kind) bool {
	switch k {
	case transport.KindNapCat:
		return c.NapCat != nil
	case transport.KindTelegram:
		return c.Telegram != nil
	}
	return false
}

func levelOK(s string) (logx.Level, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return logx.LevelInfo, true
	}
	const sentinel = logx.Level(99)
	lvl := logx.ParseLevel(s, sentinel)
	return lvl, lvl != sentinel
}

func parseDuration(path, raw string, def time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q", path, raw)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	if d == 0 {
		return def, nil
	}
	return d, nil
}

// Target converts the destination to a transport target.
func (d DestinationConfig) Target() (transport.Target, error) {
	kind := transport.Kind(strings.ToLower(strings.TrimSpace(d.Kind)))
	if kind == "" {
		kind = transport.KindNapCat
	}
	t := transport.Target{Kind: kind, ChatID: d.ID, ThreadID: d.ThreadID}
	return t, t.Validate()
}

// Targets returns every destination. Call after Validate.
func (c *Config) Targets() []transport.Target {
	out := make([]transport.Target, 0, len(c.Destinations))
	for _, d := range c.Destinations {
		if t, err := d.Target(); err == nil {
			out = append(out, t)
		}
	}
	return out
}

// Location is the zone used for notice timestamps and cron schedules.
func (c *Config) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.Poll.Timezone)
	if tz == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("poll.timezone: unknown zone %q", tz)
	}
	return loc, nil
}

func (c *Config) scheduleRaw() string {
	if s := strings.TrimSpace(c.Poll.Schedule); s != "" {
		return s
	}
	return DefaultSchedule
}

// Schedule returns the parsed poll schedule.
func (c *Config) Schedule() (schedule.Schedule, error) {
	loc, err := c.Location()
	if err != nil {
		return schedule.Schedule{}, err
	}
	return schedule.Parse(c.scheduleRaw(), loc)
}

// Duration parses one of the duration fields; invalid values yield def.
// Validate reports them, so callers after Validate can rely on this.
func Duration(raw string, def time.Duration) time.Duration {
	d, err := parseDuration("", raw, def)
	if err != nil {
		return def
	}
	return d
}

// StorageConfig maps the ledger section to a storage driver config.
func (c *Config) StorageConfig() storage.Config {
	l := c.Ledger
	driver := strings.ToLower(strings.TrimSpace(l.Driver))
	path := strings.TrimSpace(l.Path)
	if path == "" {
		switch driver {
		case "sqlite", "sqlite3":
			path = DefaultLedgerSQLite
		case "", "file":
			path = DefaultLedgerFile
		}
	}
	return storage.Config{
		Driver:      driver,
		Path:        path,
		BusyTimeout: Duration(l.BusyTimeout, 0),
		Redis: storage.RedisConfig{
			Addr:     l.RedisAddr,
			Password: l.RedisPassword,
			DB:       l.RedisDB,
			Prefix:   l.RedisPrefix,
		},
	}
}

// LogConfig maps the logging section to the logger service config.
func (c *Config) LogConfig() logx.Config {
	lc := logx.Config{
		Level:   c.Logging.Level,
		Console: c.Logging.Console,
		File: logx.FileConfig{
			Enabled:    c.Logging.File.Enabled,
			Path:       c.Logging.File.Path,
			MaxSizeMB:  c.Logging.File.MaxSizeMB,
			MaxBackups: c.Logging.File.MaxBackups,
		},
	}
	if c.Logging.Chat.Enabled {
		if t, err := transport.ParseTarget(c.Logging.Chat.Destination); err == nil {
			lc.Chat = logx.ChatConfig{
				Enabled:    true,
				Target:     t,
				MinLevel:   c.Logging.Chat.MinLevel,
				RatePerSec: c.Logging.Chat.RatePerSec,
			}
		}
	}
	return lc
}

// OpsAddr returns the ops listen address with its default applied.
func (c *Config) OpsAddr() string {
	if a := strings.TrimSpace(c.Ops.Addr); a != "" {
		return a
	}
	return DefaultOpsAddr
}
