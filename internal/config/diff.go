package config

import (
	"reflect"
	"sort"
	"strings"

	logx "noticebot/pkg/logx"
)

// Change describes what a reload altered.
type Change struct {
	// Sections lists changed top-level sections, sorted.
	Sections []string
	// Fields are safe to log: secrets are reduced to "is set" booleans.
	Fields []logx.Field
	// RestartRequired lists changed settings that only take effect on restart.
	RestartRequired []string
}

// SummarizeChange compares two configs section by section.
func SummarizeChange(oldCfg, newCfg *Config) Change {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var ch Change
	mark := func(section string, fields ...logx.Field) {
		ch.Sections = append(ch.Sections, section)
		ch.Fields = append(ch.Fields, fields...)
	}
	restart := func(name string) { ch.RestartRequired = append(ch.RestartRequired, name) }

	op, np := oldCfg.Platform, newCfg.Platform
	if op.GameID != np.GameID || op.Username != np.Username || op.Password != np.Password ||
		strings.TrimSpace(op.BaseURL) != strings.TrimSpace(np.BaseURL) ||
		op.UserAgent != np.UserAgent || op.Timeout != np.Timeout {
		mark("platform",
			logx.Int64("platform.game_id", np.GameID),
			logx.String("platform.base_url", strings.TrimSpace(np.BaseURL)),
			logx.Bool("platform.username_set", np.Username != ""),
			logx.Bool("platform.password_changed", op.Password != np.Password),
		)
		if strings.TrimSpace(op.BaseURL) != strings.TrimSpace(np.BaseURL) ||
			op.UserAgent != np.UserAgent || op.Timeout != np.Timeout {
			restart("platform.base_url/user_agent/timeout")
		}
	}

	if !reflect.DeepEqual(oldCfg.NapCat, newCfg.NapCat) {
		n := newCfg.NapCat
		mark("napcat", logx.Bool("napcat.enabled", n != nil))
		if n != nil {
			ch.Fields = append(ch.Fields, logx.String("napcat.url", n.URL), logx.Bool("napcat.token_set", n.Token != ""))
		}
		restart("napcat")
	}
	if !reflect.DeepEqual(oldCfg.Telegram, newCfg.Telegram) {
		t := newCfg.Telegram
		mark("telegram", logx.Bool("telegram.enabled", t != nil))
		restart("telegram")
	}

	if !reflect.DeepEqual(oldCfg.Destinations, newCfg.Destinations) {
		mark("destinations", logx.Int("destinations.count", len(newCfg.Destinations)))
	}

	if oldCfg.Poll != newCfg.Poll {
		mark("poll",
			logx.String("poll.schedule", newCfg.scheduleRaw()),
			logx.String("poll.timezone", newCfg.Poll.Timezone),
			logx.Any("poll.send_rate_per_sec", newCfg.Poll.SendRatePerSec),
			logx.String("poll.send_timeout", newCfg.Poll.SendTimeout),
		)
	}

	if oldCfg.Captcha != newCfg.Captcha {
		mark("captcha", logx.Int("captcha.workers", newCfg.Captcha.Workers), logx.String("captcha.timeout", newCfg.Captcha.Timeout))
		restart("captcha")
	}

	if oldCfg.Ledger != newCfg.Ledger {
		mark("ledger",
			logx.String("ledger.driver", newCfg.Ledger.Driver),
			logx.Bool("ledger.path_set", strings.TrimSpace(newCfg.Ledger.Path) != ""),
		)
		restart("ledger")
	}

	if oldCfg.Logging != newCfg.Logging {
		mark("logging",
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.chat_enabled", newCfg.Logging.Chat.Enabled),
		)
	}

	if oldCfg.Ops != newCfg.Ops {
		mark("ops",
			logx.Bool("ops.enabled", newCfg.Ops.Enabled),
			logx.String("ops.addr", newCfg.OpsAddr()),
			logx.Bool("ops.token_set", newCfg.Ops.Token != ""),
			logx.Bool("ops.pprof", newCfg.Ops.Pprof),
		)
		restart("ops")
	}

	sort.Strings(ch.Sections)
	return ch
}
