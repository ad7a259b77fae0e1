package napcat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kit "noticebot/internal/transport"
	logx "noticebot/pkg/logx"
)

func newAdapter(t *testing.T, h http.HandlerFunc) *Adapter {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	a, err := New(Config{URL: srv.URL, Token: "secret"}, logx.Nop())
	require.NoError(t, err)
	return a
}

func TestSendTextPayload(t *testing.T) {
	var got sendGroupMsg
	var auth, path string
	a := newAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"status":"ok","retcode":0,"data":{"message_id":1},"echo":"x"}`))
	})

	err := a.SendText(context.Background(), kit.Target{Kind: kit.KindNapCat, ChatID: 123456}, "hi", nil)
	require.NoError(t, err)
	assert.Equal(t, "/send_group_msg", path)
	assert.Equal(t, "Bearer secret", auth)
	assert.EqualValues(t, 123456, got.GroupID)
	require.Len(t, got.Message, 1)
	assert.Equal(t, "text", got.Message[0].Type)
	assert.Equal(t, "hi", got.Message[0].Data["text"])
	assert.NotEmpty(t, got.Echo)
}

func TestSendTextFailures(t *testing.T) {
	tests := []struct {
		name string
		h    http.HandlerFunc
	}{
		{"status failed", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"status":"failed","retcode":1200,"wording":"not in group"}`))
		}},
		{"http error", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}},
		{"malformed", func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`not json`))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newAdapter(t, tt.h)
			err := a.SendText(context.Background(), kit.Target{Kind: kit.KindNapCat, ChatID: 1}, "x", nil)
			require.Error(t, err)
		})
	}
	t.Run("not ok is matchable", func(t *testing.T) {
		a := newAdapter(t, tests[0].h)
		err := a.SendText(context.Background(), kit.Target{Kind: kit.KindNapCat, ChatID: 1}, "x", nil)
		assert.True(t, errors.Is(err, ErrNotOK), "got %v", err)
	})
}

func TestAlive(t *testing.T) {
	a := newAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/get_status", r.URL.Path)
		_, _ = w.Write([]byte(`{"status":"ok","retcode":0,"data":{"online":true,"good":true}}`))
	})
	require.NoError(t, a.Alive(context.Background()))

	offline := newAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok","retcode":0,"data":{"online":false,"good":true}}`))
	})
	require.Error(t, offline.Alive(context.Background()))
}

func TestAliveUnreachable(t *testing.T) {
	a, err := New(Config{URL: "http://127.0.0.1:1"}, logx.Nop())
	require.NoError(t, err)
	require.Error(t, a.Alive(context.Background()))
}

func TestWrongKind(t *testing.T) {
	a, err := New(Config{URL: "http://127.0.0.1:1"}, logx.Nop())
	require.NoError(t, err)
	err = a.SendText(context.Background(), kit.Target{Kind: kit.KindTelegram, ChatID: 1}, "x", nil)
	require.Error(t, err)
}

func TestNewValidatesURL(t *testing.T) {
	_, err := New(Config{}, logx.Nop())
	require.Error(t, err)
	_, err = New(Config{URL: "::bad"}, logx.Nop())
	require.Error(t, err)
}
