package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"noticebot/internal/schedule"
	"noticebot/internal/transport"
)

const sampleYAML = `# noticebot test config
platform:
  base_url: https://ctf.example.org
  game_id: 3
  username: alice   # platform account
  password: s3cret
napcat:
  url: http://127.0.0.1:3000
  token: napcat-token
destinations:
  - kind: napcat
    id: 123456
  - kind: napcat
    id: 654321
poll:
  schedule: 5s
ledger:
  driver: file
  path: ./data/read_notices.txt
logging:
  level: info
  console: true
`

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func noEnv(string) (string, bool) { return "", false }

func newTestManager(path string) *Manager {
	m := NewManager(path)
	m.lookupEnv = noEnv
	return m
}

func TestLoadYAML(t *testing.T) {
	m := newTestManager(writeConfig(t, "config.yaml", sampleYAML))
	cfg, err := m.Load()
	require.NoError(t, err)

	assert.Equal(t, "https://ctf.example.org", cfg.Platform.BaseURL)
	assert.EqualValues(t, 3, cfg.Platform.GameID)
	assert.Equal(t, "alice", cfg.Platform.Username)
	assert.Equal(t, []transport.Target{
		{Kind: transport.KindNapCat, ChatID: 123456},
		{Kind: transport.KindNapCat, ChatID: 654321},
	}, cfg.Targets())
	assert.Same(t, cfg, m.Get())

	sched, err := cfg.Schedule()
	require.NoError(t, err)
	assert.Equal(t, schedule.KindInterval, sched.Kind)
	assert.Equal(t, 5*time.Second, sched.Every)
}

func TestLoadJSON(t *testing.T) {
	body := `{
  "platform": {"base_url": "http://ctf.local", "game_id": 1, "cookie": "a=b"},
  "telegram": {"token": "123:abc"},
  "destinations": [{"kind": "telegram", "id": -100123, "thread_id": 4}]
}`
	cfg, err := newTestManager(writeConfig(t, "config.json", body)).Load()
	require.NoError(t, err)
	assert.Equal(t, []transport.Target{{Kind: transport.KindTelegram, ChatID: -100123, ThreadID: 4}}, cfg.Targets())
}

func TestParseRejectsUnknownFields(t *testing.T) {
	body := strings.Replace(sampleYAML, "  game_id: 3", "  game_id: 3\n  gameid: 4", 1)
	_, err := newTestManager(writeConfig(t, "config.yaml", body)).Parse()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gameid")
}

func TestParseRejectsTrailingJSON(t *testing.T) {
	_, err := newTestManager(writeConfig(t, "config.json", `{"platform":{}} {}`)).Parse()
	require.Error(t, err)
}

func TestValidateCollectsProblems(t *testing.T) {
	cfg := &Config{
		Platform:     PlatformConfig{BaseURL: "not a url", Timeout: "soon"},
		Destinations: []DestinationConfig{{Kind: "telegram", ID: 1}, {Kind: "irc", ID: 2}},
		Poll:         PollConfig{Schedule: "whenever"},
		Ledger:       LedgerConfig{Driver: "redis"},
		Logging:      LoggingConfig{Level: "loud", File: LogFileConfig{MaxBackups: -1}},
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalid))

	var ce *ConfigError
	require.True(t, errors.As(err, &ce))
	joined := strings.Join(ce.Problems, "\n")
	for _, want := range []string{
		"platform.base_url",
		"platform.game_id",
		"cookie or username and password",
		"platform.timeout",
		"needs a telegram section",
		`unknown destination kind "irc"`,
		"poll.schedule",
		"ledger.redis_addr",
		"logging.level",
		"logging.file.max_size_mb",
	} {
		assert.Contains(t, joined, want)
	}
}

func TestValidateDuplicateDestination(t *testing.T) {
	cfg := &Config{
		Platform:     PlatformConfig{BaseURL: "http://x", GameID: 1, Cookie: "c"},
		NapCat:       &NapCatConfig{URL: "http://127.0.0.1:3000"},
		Destinations: []DestinationConfig{{ID: 5}, {Kind: "napcat", ID: 5}},
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestEnvOverrides(t *testing.T) {
	m := NewManager(writeConfig(t, "config.yaml", sampleYAML))
	env := map[string]string{
		EnvPlatformUsername: "bob",
		EnvPlatformPassword: "from-env",
		EnvNapCatToken:      "env-token",
		EnvTelegramToken:    " ",
	}
	m.lookupEnv = func(k string) (string, bool) { v, ok := env[k]; return v, ok }

	cfg, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, "bob", cfg.Platform.Username)
	assert.Equal(t, "from-env", cfg.Platform.Password)
	assert.Equal(t, "env-token", cfg.NapCat.Token)
	assert.Nil(t, cfg.Telegram, "blank env values are ignored")
}

func TestSaveCredentialYAMLKeepsComments(t *testing.T) {
	path := writeConfig(t, "config.yaml", sampleYAML)
	m := newTestManager(path)
	_, err := m.Load()
	require.NoError(t, err)

	require.NoError(t, m.SaveCredential("a1token=xyz"))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(raw)
	assert.Contains(t, text, "# noticebot test config")
	assert.Contains(t, text, "# platform account")
	assert.Contains(t, text, `cookie: "a1token=xyz"`)

	cfg, err := m.Parse()
	require.NoError(t, err)
	assert.Equal(t, "a1token=xyz", cfg.Platform.Cookie)
	assert.Equal(t, "s3cret", cfg.Platform.Password)
	assert.Equal(t, "a1token=xyz", m.Get().Platform.Cookie)

	// Second write replaces instead of appending.
	require.NoError(t, m.SaveCredential("a1token=next"))
	raw, _ = os.ReadFile(path)
	assert.Equal(t, 1, strings.Count(string(raw), "cookie:"))

	changed, err := m.Reload(context.Background())
	require.NoError(t, err)
	assert.False(t, changed, "own cookie write must not look like a reload")
}

func TestSaveCredentialJSON(t *testing.T) {
	body := `{"platform":{"base_url":"http://ctf.local","game_id":1,"cookie":"old"},"telegram":{"token":"t"},"destinations":[{"kind":"telegram","id":9}]}`
	path := writeConfig(t, "config.json", body)
	m := newTestManager(path)
	require.NoError(t, m.SaveCredential("fresh"))

	cfg, err := m.Load()
	require.NoError(t, err)
	assert.Equal(t, "fresh", cfg.Platform.Cookie)
	assert.EqualValues(t, 1, cfg.Platform.GameID)
	assert.Equal(t, "t", cfg.Telegram.Token)
}

func TestReloadPublishesValidChanges(t *testing.T) {
	path := writeConfig(t, "config.yaml", sampleYAML)
	m := newTestManager(path)
	_, err := m.Load()
	require.NoError(t, err)
	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	changed, err := m.Reload(context.Background())
	require.NoError(t, err)
	assert.False(t, changed)

	bad := strings.Replace(sampleYAML, "game_id: 3", "game_id: 0", 1)
	require.NoError(t, os.WriteFile(path, []byte(bad), 0o600))
	_, err = m.Reload(context.Background())
	require.ErrorIs(t, err, ErrInvalid)
	assert.EqualValues(t, 3, m.Get().Platform.GameID, "invalid reload is not committed")

	good := strings.Replace(sampleYAML, "game_id: 3", "game_id: 4", 1)
	require.NoError(t, os.WriteFile(path, []byte(good), 0o600))
	changed, err = m.Reload(context.Background())
	require.NoError(t, err)
	assert.True(t, changed)

	select {
	case cfg := <-sub:
		assert.EqualValues(t, 4, cfg.Platform.GameID)
	default:
		t.Fatal("reload not published")
	}
}

func TestReloadRunsValidator(t *testing.T) {
	path := writeConfig(t, "config.yaml", sampleYAML)
	m := newTestManager(path)
	_, err := m.Load()
	require.NoError(t, err)
	m.SetValidator(func(context.Context, *Config) error { return errors.New("vetoed") })

	require.NoError(t, os.WriteFile(path, []byte(strings.Replace(sampleYAML, "5s", "10s", 1)), 0o600))
	_, err = m.Reload(context.Background())
	require.EqualError(t, err, "vetoed")
}

func TestWatchPicksUpEdits(t *testing.T) {
	path := writeConfig(t, "config.yaml", sampleYAML)
	m := newTestManager(path)
	m.debounce = 20 * time.Millisecond
	_, err := m.Load()
	require.NoError(t, err)
	sub := m.Subscribe(1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = m.Watch(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	// Give the watcher a moment to register the directory.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte(strings.Replace(sampleYAML, "level: info", "level: debug", 1)), 0o600))

	select {
	case cfg := <-sub:
		assert.Equal(t, "debug", cfg.Logging.Level)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not publish the edit")
	}
}

func TestSummarizeChange(t *testing.T) {
	m := newTestManager(writeConfig(t, "config.yaml", sampleYAML))
	oldCfg, err := m.Load()
	require.NoError(t, err)

	next := *oldCfg
	next.Platform.GameID = 9
	next.Platform.Password = "rotated"
	next.Poll.Schedule = "*/10 * * * * *"
	next.Ledger.Driver = "sqlite"

	ch := SummarizeChange(oldCfg, &next)
	assert.Equal(t, []string{"ledger", "platform", "poll"}, ch.Sections)
	assert.Equal(t, []string{"ledger"}, ch.RestartRequired)
	assert.NotEmpty(t, ch.Fields)

	assert.Empty(t, SummarizeChange(oldCfg, oldCfg).Sections)
}

func TestStorageConfigDefaults(t *testing.T) {
	c := &Config{}
	assert.Equal(t, DefaultLedgerFile, c.StorageConfig().Path)
	c.Ledger.Driver = "sqlite"
	assert.Equal(t, DefaultLedgerSQLite, c.StorageConfig().Path)
	c.Ledger = LedgerConfig{Driver: "redis", RedisAddr: "127.0.0.1:6379", RedisPrefix: "ctf"}
	sc := c.StorageConfig()
	assert.Equal(t, "127.0.0.1:6379", sc.Redis.Addr)
	assert.Equal(t, "ctf", sc.Redis.Prefix)
}

func TestLogConfigChatDestination(t *testing.T) {
	c := &Config{Logging: LoggingConfig{Level: "warn", Chat: LogChatConfig{Enabled: true, Destination: "telegram:-100/2", MinLevel: "error"}}}
	lc := c.LogConfig()
	assert.True(t, lc.Chat.Enabled)
	assert.Equal(t, transport.Target{Kind: transport.KindTelegram, ChatID: -100, ThreadID: 2}, lc.Chat.Target)
}

func TestLogConfigFileRotation(t *testing.T) {
	c := &Config{Logging: LoggingConfig{File: LogFileConfig{Enabled: true, Path: "/tmp/x.log", MaxSizeMB: 10, MaxBackups: 7}}}
	lc := c.LogConfig()
	assert.Equal(t, 10, lc.File.MaxSizeMB)
	assert.Equal(t, 7, lc.File.MaxBackups)
}
