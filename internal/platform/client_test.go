package platform

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(Config{BaseURL: srv.URL + "/", Timeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatal("expected error for empty base url")
	}
}

func TestIssueChallenge(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/cap/challenge" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"challenge":{"c":50,"s":32,"d":4},"token":"tok","expires":1700000000000}`))
	}))
	ch, err := c.IssueChallenge(context.Background())
	if err != nil {
		t.Fatalf("IssueChallenge: %v", err)
	}
	if ch.Token != "tok" || ch.Count != 50 || ch.SaltLen != 32 || ch.Difficulty != 4 {
		t.Fatalf("unexpected challenge: %+v", ch)
	}
	if ch.Expires.UnixMilli() != 1700000000000 {
		t.Fatalf("Expires = %v", ch.Expires)
	}
}

func TestRedeemSendsSolutionsInOrder(t *testing.T) {
	var got redeemRequest
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"success":true,"token":"verify-1"}`))
	}))
	tok, ok, err := c.Redeem(context.Background(), "tok", []uint64{9, 1, 5})
	if err != nil || !ok || tok != "verify-1" {
		t.Fatalf("Redeem = %q %v %v", tok, ok, err)
	}
	if got.Token != "tok" || len(got.Solutions) != 3 || got.Solutions[0] != 9 || got.Solutions[2] != 5 {
		t.Fatalf("unexpected redeem body: %+v", got)
	}
}

func TestRedeemRejected(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false}`))
	}))
	_, ok, err := c.Redeem(context.Background(), "tok", nil)
	if err != nil || ok {
		t.Fatalf("Redeem ok=%v err=%v, want rejection without error", ok, err)
	}
}

func TestAuthenticateCapturesCookie(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Username != "u" || req.Password != "p" || req.Captcha != "v" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"code":400,"message":"bad request"}`))
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "a1token", Value: "sess-1", Path: "/"})
		_, _ = w.Write([]byte(`{"code":200}`))
	}))

	res, err := c.Authenticate(context.Background(), "u", "p", "v")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if res.Code != 200 || res.Cookie != "a1token=sess-1" {
		t.Fatalf("unexpected result: %+v", res)
	}

	res, err = c.Authenticate(context.Background(), "u", "wrong", "v")
	if err != nil {
		t.Fatalf("rejection should not be an error: %v", err)
	}
	if res.Code != 400 || res.Cookie != "" || res.Message != "bad request" {
		t.Fatalf("unexpected rejection: %+v", res)
	}
}

func TestProfileUsesCookie(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Cookie") != "a1token=good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"code":200}`))
	}))
	if err := c.Profile(context.Background(), "a1token=good"); err != nil {
		t.Fatalf("Profile(good): %v", err)
	}
	err := c.Profile(context.Background(), "a1token=stale")
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("Profile(stale) = %v, want ErrUnauthorized", err)
	}
}

func TestNoticesStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
	}{
		{"unauthorized", http.StatusUnauthorized, ErrUnauthorized},
		{"not started", http.StatusForbidden, ErrForbidden},
		{"unknown game", http.StatusNotFound, ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			_, err := c.Notices(context.Background(), "", 3)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestNoticesDecode(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/game/7/notices" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"code":200,"data":[
			{"notice_id":1,"notice_category":"NewAnnouncement","create_time":"2025-05-01T10:00:00+08:00","data":["Round 1 starts"]},
			{"notice_id":2,"notice_category":"FirstBlood","create_time":"2025-05-01T10:05:00+08:00","data":["team","pwn1"]}
		]}`))
	}))
	ns, err := c.Notices(context.Background(), "c", 7)
	if err != nil {
		t.Fatalf("Notices: %v", err)
	}
	if len(ns) != 2 || ns[0].ID != 1 || ns[1].Category != FirstBlood {
		t.Fatalf("unexpected notices: %+v", ns)
	}
}

func TestNoticesMalformedBody(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>`))
	}))
	if _, err := c.Notices(context.Background(), "c", 1); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestNoticeText(t *testing.T) {
	at := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		n    Notice
		want []string
	}{
		{Notice{Category: FirstBlood, CreatedAt: at, Data: []string{"teamA", "pwn1"}}, []string{"🥇", "teamA", "pwn1", "第一滴血"}},
		{Notice{Category: NewAnnouncement, CreatedAt: at, Data: []string{"Round 1 starts"}}, []string{"📢", "Round 1 starts"}},
		{Notice{Category: NewHint, CreatedAt: at, Data: []string{"web2"}}, []string{"💡", "web2"}},
		{Notice{Category: ThirdBlood, CreatedAt: at}, []string{"🥉", "「?」"}},
	}
	for _, tt := range tests {
		got := tt.n.Text(time.UTC)
		for _, w := range tt.want {
			if !strings.Contains(got, w) {
				t.Fatalf("Text() = %q, missing %q", got, w)
			}
		}
		if !strings.HasSuffix(got, "Time: 2025-05-01 10:00:00") {
			t.Fatalf("Text() = %q, want created_at timestamp", got)
		}
	}
}
