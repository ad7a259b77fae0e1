package logx

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"noticebot/internal/transport"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()
	cases := map[string]Level{
		"debug":   LevelDebug,
		" WARN ":  LevelWarn,
		"warning": LevelWarn,
		"error":   LevelError,
		"bogus":   LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in, LevelInfo); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestWriterLoggerKeepsFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "debug").With(String("comp", "relay"))
	log.Info("delivered", Int64("notice_id", 7))

	out := buf.String()
	for _, want := range []string{`"comp":"relay"`, `"notice_id":7`, `"message":"delivered"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("log line %q missing %s", out, want)
		}
	}
}

func TestZeroLoggerIsNoop(t *testing.T) {
	var l Logger
	if !l.IsZero() {
		t.Fatal("zero logger should report IsZero")
	}
	l.Info("nothing happens")
}

func TestFormatChatJSONSortsFields(t *testing.T) {
	t.Parallel()
	line := []byte(`{"level":"warn","time":"x","message":"send failed","target":"napcat:1","attempt":2}`)
	got := formatChatJSON(line)
	want := "[WARN] send failed\n- attempt=2\n- target=napcat:1"
	if got != want {
		t.Fatalf("formatChatJSON = %q, want %q", got, want)
	}
}

type captureSender struct {
	mu   sync.Mutex
	msgs []string
}

func (c *captureSender) SendText(_ context.Context, _ transport.Target, text string, _ *transport.SendOptions) error {
	c.mu.Lock()
	c.msgs = append(c.msgs, text)
	c.mu.Unlock()
	return nil
}

func (c *captureSender) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs)
}

func TestChatSinkMirrorsWarnings(t *testing.T) {
	sender := &captureSender{}
	svc, log := New(Config{
		Level: "debug",
		Chat: ChatConfig{
			Enabled:    true,
			Target:     transport.Target{Kind: transport.KindNapCat, ChatID: 42},
			MinLevel:   "warn",
			RatePerSec: 10,
		},
	}, sender)
	defer svc.Close()

	log.Info("below threshold")
	log.Warn("above threshold")

	deadline := time.Now().Add(2 * time.Second)
	for sender.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if n := sender.count(); n != 1 {
		t.Fatalf("chat sink got %d messages, want 1", n)
	}
}

func TestFileSinkRotates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "noticebot.log")
	svc, log := New(Config{
		Level: "info",
		File:  FileConfig{Enabled: true, Path: path, MaxSizeMB: 1, MaxBackups: 1},
	}, nil)

	// Three megabytes of lines overflow the 1 MB limit twice.
	pad := strings.Repeat("x", 1024)
	for i := 0; i < 3*1024; i++ {
		log.Info(pad, Int("i", i))
	}
	if err := svc.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	st, err := os.Stat(path)
	if err != nil {
		t.Fatalf("active log file: %v", err)
	}
	if st.Size() > 1<<20 {
		t.Fatalf("active log file is %d bytes, want at most 1 MB", st.Size())
	}

	// Old backups are pruned in the background.
	deadline := time.Now().Add(2 * time.Second)
	for {
		matches, _ := filepath.Glob(filepath.Join(dir, "noticebot-*.log"))
		if len(matches) == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("got %d backups, want 1: %v", len(matches), matches)
		}
		time.Sleep(20 * time.Millisecond)
	}
}
