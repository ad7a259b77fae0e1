package config

import (
	"os"
	"strings"
)

// Environment variables that take precedence over file values.
const (
	EnvPlatformUsername = "NOTICEBOT_PLATFORM_USERNAME"
	EnvPlatformPassword = "NOTICEBOT_PLATFORM_PASSWORD"
	EnvNapCatToken      = "NOTICEBOT_NAPCAT_TOKEN"
	EnvTelegramToken    = "NOTICEBOT_TELEGRAM_TOKEN"
)

func applyEnv(cfg *Config, lookup func(string) (string, bool)) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	get := func(k string) (string, bool) {
		v, ok := lookup(k)
		if !ok || strings.TrimSpace(v) == "" {
			return "", false
		}
		return v, true
	}
	if v, ok := get(EnvPlatformUsername); ok {
		cfg.Platform.Username = strings.TrimSpace(v)
	}
	if v, ok := get(EnvPlatformPassword); ok {
		cfg.Platform.Password = v
	}
	if v, ok := get(EnvNapCatToken); ok && cfg.NapCat != nil {
		cfg.NapCat.Token = strings.TrimSpace(v)
	}
	if v, ok := get(EnvTelegramToken); ok {
		if cfg.Telegram == nil {
			cfg.Telegram = &TelegramConfig{}
		}
		cfg.Telegram.Token = strings.TrimSpace(v)
	}
}
