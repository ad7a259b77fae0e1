package telegram

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	kit "noticebot/internal/transport"
	logx "noticebot/pkg/logx"
)

func TestSplitTelegramText(t *testing.T) {
	if got := splitTelegramText("short", 10); len(got) != 1 || got[0] != "short" {
		t.Fatalf("short text split: %q", got)
	}

	text := strings.Repeat("a", 6) + "\n" + strings.Repeat("b", 6)
	got := splitTelegramText(text, 10)
	if len(got) != 2 || got[0] != "aaaaaa" || got[1] != "bbbbbb" {
		t.Fatalf("split on newline: %q", got)
	}

	long := strings.Repeat("x", 25)
	got = splitTelegramText(long, 10)
	if len(got) != 3 || len(got[2]) != 5 {
		t.Fatalf("hard split: %q", got)
	}
}

type fakeBotAPI struct {
	mu    sync.Mutex
	calls []string
	texts []string
}

func (f *fakeBotAPI) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := r.URL.Path[strings.LastIndexByte(r.URL.Path, '/')+1:]
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.calls = append(f.calls, method)
		f.mu.Unlock()

		switch method {
		case "getMe":
			_, _ = w.Write([]byte(`{"ok":true,"result":{"id":42,"is_bot":true,"first_name":"nb","username":"nb_bot"}}`))
		case "sendMessage":
			var req map[string]any
			_ = json.Unmarshal(body, &req)
			f.mu.Lock()
			if s, ok := req["text"].(string); ok {
				f.texts = append(f.texts, s)
			}
			f.mu.Unlock()
			_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":7,"date":1,"chat":{"id":-100123,"type":"supergroup"}}}`))
		default:
			t.Errorf("unexpected bot api call %s", method)
			w.WriteHeader(http.StatusNotFound)
		}
	})
}

func TestAdapterAliveAndSend(t *testing.T) {
	api := &fakeBotAPI{}
	srv := httptest.NewServer(api.handler(t))
	defer srv.Close()

	a, err := New(Config{Token: "123:abc", APIURL: srv.URL}, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if a.Kind() != kit.KindTelegram {
		t.Fatalf("Kind = %s", a.Kind())
	}
	if err := a.Alive(context.Background()); err != nil {
		t.Fatalf("Alive: %v", err)
	}
	to := kit.Target{Kind: kit.KindTelegram, ChatID: -100123, ThreadID: 5}
	if err := a.SendText(context.Background(), to, "hello", nil); err != nil {
		t.Fatalf("SendText: %v", err)
	}

	api.mu.Lock()
	defer api.mu.Unlock()
	if len(api.texts) != 1 || api.texts[0] != "hello" {
		t.Fatalf("texts = %q", api.texts)
	}
}

func TestAdapterRejectsWrongKind(t *testing.T) {
	a, err := New(Config{Token: "123:abc", APIURL: "http://127.0.0.1:1"}, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	err = a.SendText(context.Background(), kit.Target{Kind: kit.KindNapCat, ChatID: 1}, "x", nil)
	if err == nil {
		t.Fatal("expected error for napcat target")
	}
}

func TestNewRequiresToken(t *testing.T) {
	if _, err := New(Config{}, logx.Nop()); err == nil {
		t.Fatal("expected error")
	}
}
