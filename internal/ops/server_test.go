package ops

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	logx "noticebot/pkg/logx"
)

func get(t *testing.T, url string, hdr map[string]string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(b)
}

func TestNewRejectsInsecureBind(t *testing.T) {
	_, err := New(Config{Addr: "0.0.0.0:9464"}, nil, nopLogger())
	require.ErrorIs(t, err, ErrInsecureBind)

	_, err = New(Config{Addr: "0.0.0.0:9464", Token: "t"}, nil, nopLogger())
	require.NoError(t, err)
	_, err = New(Config{Addr: "localhost:9464"}, nil, nopLogger())
	require.NoError(t, err)
}

func TestHealthAndStatus(t *testing.T) {
	s, err := New(Config{Addr: "127.0.0.1:0", Token: "sesame"}, func() any {
		return map[string]any{"session": "valid", "ledger_size": 3}
	}, nopLogger())
	require.NoError(t, err)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	code, body := get(t, ts.URL+"/healthz", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok\n", body)

	code, _ = get(t, ts.URL+"/status", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	code, _ = get(t, ts.URL+"/status?token=wrong", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, body = get(t, ts.URL+"/status", map[string]string{"Authorization": "Bearer sesame"})
	require.Equal(t, http.StatusOK, code)
	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &doc))
	assert.Equal(t, "valid", doc["session"])
	assert.EqualValues(t, 3, doc["ledger_size"])

	code, _ = get(t, ts.URL+"/status?token=sesame", nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestTokenMatches(t *testing.T) {
	tests := []struct {
		got  string
		want bool
	}{
		{"sesame", true},
		{"sesam", false},
		{"sesame!", false},
		{"SESAME", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tokenMatches(tt.got, "sesame"), "token %q", tt.got)
	}

	s, err := New(Config{Addr: "127.0.0.1:0", Token: "sesame"}, func() any { return nil }, nopLogger())
	require.NoError(t, err)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()
	code, _ := get(t, ts.URL+"/status", map[string]string{"Authorization": "Bearer sesam"})
	assert.Equal(t, http.StatusUnauthorized, code)
	code, _ = get(t, ts.URL+"/status", map[string]string{"Authorization": "Bearer sesame-and-more"})
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestPprofOnlyWhenEnabled(t *testing.T) {
	off, err := New(Config{Addr: "127.0.0.1:0"}, nil, nopLogger())
	require.NoError(t, err)
	ts := httptest.NewServer(off.Handler())
	code, _ := get(t, ts.URL+"/debug/pprof/", nil)
	ts.Close()
	assert.Equal(t, http.StatusNotFound, code)

	on, err := New(Config{Addr: "127.0.0.1:0", Pprof: true}, nil, nopLogger())
	require.NoError(t, err)
	ts = httptest.NewServer(on.Handler())
	defer ts.Close()
	code, body := get(t, ts.URL+"/debug/pprof/", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "goroutine")
	code, _ = get(t, ts.URL+"/debug/pprof/cmdline", nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestRunStopsOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	s, err := New(Config{Addr: addr}, nil, nopLogger())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 3*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func nopLogger() logx.Logger { return logx.Nop() }
