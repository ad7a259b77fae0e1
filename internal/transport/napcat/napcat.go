// Package napcat sends group messages through a NapCat (OneBot 11) HTTP server.
package napcat

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	kit "noticebot/internal/transport"
	logx "noticebot/pkg/logx"
)

var ErrNotOK = errors.New("onebot action failed")

type Config struct {
	URL     string
	Token   string
	Timeout time.Duration
}

type Adapter struct {
	base  string
	token string
	http  *http.Client
	log   logx.Logger
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if base == "" {
		return nil, errors.New("napcat url is required")
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, errors.Wrapf(err, "invalid napcat url %q", base)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Adapter{
		base:  base,
		token: strings.TrimSpace(cfg.Token),
		http:  &http.Client{Timeout: timeout},
		log:   log,
	}, nil
}

func (a *Adapter) Kind() kit.Kind { return kit.KindNapCat }

func (a *Adapter) Close() error {
	a.http.CloseIdleConnections()
	return nil
}

type segment struct {
	Type string            `json:"type"`
	Data map[string]string `json:"data"`
}

type sendGroupMsg struct {
	GroupID int64     `json:"group_id"`
	Message []segment `json:"message"`
	Echo    string    `json:"echo"`
}

type actionResponse struct {
	Status  string          `json:"status"`
	RetCode int             `json:"retcode"`
	Message string          `json:"message"`
	Wording string          `json:"wording"`
	Data    json.RawMessage `json:"data"`
	Echo    string          `json:"echo"`
}

// SendText posts one text segment to the QQ group to.ChatID.
func (a *Adapter) SendText(ctx context.Context, to kit.Target, text string, _ *kit.SendOptions) error {
	if to.Kind != kit.KindNapCat {
		return errors.Errorf("napcat adapter: wrong destination kind %s", to.Kind)
	}
	req := sendGroupMsg{
		GroupID: to.ChatID,
		Message: []segment{{Type: "text", Data: map[string]string{"text": text}}},
		Echo:    uuid.NewString(),
	}
	resp, err := a.call(ctx, "send_group_msg", req)
	if err != nil {
		return errors.Wrapf(err, "send to group %d", to.ChatID)
	}
	a.log.Debug("group message sent", logx.Int64("group_id", to.ChatID), logx.String("echo", resp.Echo))
	return nil
}

// Alive calls get_status and requires the bot to be online.
func (a *Adapter) Alive(ctx context.Context) error {
	resp, err := a.call(ctx, "get_status", struct{}{})
	if err != nil {
		return err
	}
	var st struct {
		Online *bool `json:"online"`
		Good   *bool `json:"good"`
	}
	if len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, &st); err != nil {
			return errors.Wrap(err, "decode get_status data")
		}
	}
	if st.Online != nil && !*st.Online {
		return errors.New("napcat reports bot offline")
	}
	return nil
}

func (a *Adapter) call(ctx context.Context, action string, payload any) (*actionResponse, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: encode", action)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.base+"/"+action, bytes.NewReader(b))
	if err != nil {
		return nil, errors.Wrap(err, action)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, action)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrapf(err, "%s: read body", action)
	}
	if resp.StatusCode/100 != 2 {
		return nil, errors.Errorf("%s: http %d", action, resp.StatusCode)
	}
	var out actionResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, errors.Wrapf(err, "%s: decode response", action)
	}
	if !strings.EqualFold(out.Status, "ok") {
		msg := out.Wording
		if msg == "" {
			msg = out.Message
		}
		return nil, errors.Wrapf(ErrNotOK, "%s: status=%q retcode=%d %s", action, out.Status, out.RetCode, msg)
	}
	return &out, nil
}
