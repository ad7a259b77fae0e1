package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var (
	ErrUnauthorized = errors.New("platform: unauthorized")
	ErrForbidden    = errors.New("platform: forbidden")
	ErrNotFound     = errors.New("platform: not found")
)

const (
	defaultUserAgent = "noticebot-platform-listener/1.0"
	maxErrorBody     = 512
)

type Config struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
}

// Client talks to the CTF platform's HTTP API. It holds no session state:
// callers pass the current cookie on every authenticated call.
type Client struct {
	baseURL   string
	userAgent string
	http      *http.Client
}

func NewClient(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("platform base url is required")
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, errors.Wrapf(err, "invalid platform base url %q", base)
	}
	ua := strings.TrimSpace(cfg.UserAgent)
	if ua == "" {
		ua = defaultUserAgent
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:   base,
		userAgent: ua,
		http:      &http.Client{Timeout: timeout},
	}, nil
}

// IssueChallenge requests a fresh proof-of-work CAPTCHA.
func (c *Client) IssueChallenge(ctx context.Context) (*Challenge, error) {
	var out challengeResponse
	if _, err := c.doJSON(ctx, "issue challenge", http.MethodPost, "/api/cap/challenge", "", struct{}{}, &out); err != nil {
		return nil, err
	}
	if out.Token == "" {
		return nil, errors.New("issue challenge: empty token")
	}
	ch := &Challenge{
		Token:      out.Token,
		Count:      out.Challenge.C,
		SaltLen:    out.Challenge.S,
		Difficulty: out.Challenge.D,
	}
	if out.Expires > 0 {
		ch.Expires = time.UnixMilli(out.Expires)
	}
	return ch, nil
}

// Redeem trades a solution set for a short-lived CAPTCHA verification token.
// ok is false when the platform rejected the solutions.
func (c *Client) Redeem(ctx context.Context, token string, solutions []uint64) (verification string, ok bool, err error) {
	var out redeemResponse
	req := redeemRequest{Token: token, Solutions: solutions}
	if _, err := c.doJSON(ctx, "redeem captcha", http.MethodPost, "/api/cap/redeem", "", req, &out); err != nil {
		return "", false, err
	}
	if !out.Success || out.Token == "" {
		return "", false, nil
	}
	return out.Token, true, nil
}

// Authenticate exchanges credentials plus a CAPTCHA verification token for a
// session cookie. A non-200 Code in the result is a rejection, not an error.
func (c *Client) Authenticate(ctx context.Context, username, password, verification string) (*LoginResult, error) {
	var out loginResponse
	req := loginRequest{Username: username, Password: password, Captcha: verification}
	resp, err := c.doJSON(ctx, "login", http.MethodPost, "/api/auth/login", "", req, &out)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.Code < 500 && out.Code != 0 {
			return &LoginResult{Code: out.Code, Message: out.Message}, nil
		}
		return nil, err
	}
	res := &LoginResult{Code: out.Code, Message: out.Message}
	if out.Code == http.StatusOK {
		res.Cookie = cookieHeader(resp.Cookies())
	}
	return res, nil
}

// Profile probes the session. It returns nil only on HTTP 200.
func (c *Client) Profile(ctx context.Context, cookie string) error {
	_, err := c.doJSON(ctx, "profile", http.MethodGet, "/api/account/profile", cookie, nil, nil)
	return err
}

// Notices lists the notices of a game. 401, 403 and 404 come back as
// *StatusError matching ErrUnauthorized, ErrForbidden and ErrNotFound.
func (c *Client) Notices(ctx context.Context, cookie string, gameID int64) ([]Notice, error) {
	var out noticesResponse
	path := "/api/game/" + strconv.FormatInt(gameID, 10) + "/notices"
	if _, err := c.doJSON(ctx, "list notices", http.MethodGet, path, cookie, nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// doJSON performs one request. out is decoded for 2xx responses, and also for
// 4xx responses when the body is JSON, so callers can read platform codes.
func (c *Client) doJSON(ctx context.Context, op, method, path, cookie string, in, out any) (*http.Response, error) {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, errors.Wrapf(err, "%s: encode request", op)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, errors.Wrap(err, op)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != "" {
		req.Header.Set("Cookie", cookie)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, op)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return resp, errors.Wrapf(err, "%s: read body", op)
	}
	if resp.StatusCode/100 != 2 {
		if out != nil && resp.StatusCode/100 == 4 {
			_ = json.Unmarshal(raw, out)
		}
		return resp, &StatusError{Op: op, Code: resp.StatusCode, Body: snippet(raw)}
	}
	if out == nil {
		return resp, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return resp, errors.Wrapf(err, "%s: decode response", op)
	}
	return resp, nil
}

func cookieHeader(cookies []*http.Cookie) string {
	parts := make([]string, 0, len(cookies))
	for _, ck := range cookies {
		if ck.Name == "" || ck.Value == "" || ck.MaxAge < 0 {
			continue
		}
		parts = append(parts, ck.Name+"="+ck.Value)
	}
	return strings.Join(parts, "; ")
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > maxErrorBody {
		s = s[:maxErrorBody] + "..."
	}
	return s
}
