package transport

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Kind names a group-messaging backend.
type Kind string

const (
	KindNapCat   Kind = "napcat"
	KindTelegram Kind = "telegram"
)

// Target is one destination group.
//
// For NapCat (OneBot) ChatID is the QQ group number. For Telegram it is the
// chat id, optionally with a forum ThreadID.
type Target struct {
	Kind     Kind
	ChatID   int64
	ThreadID int
}

func (t Target) String() string {
	if t.ThreadID != 0 {
		return fmt.Sprintf("%s:%d/%d", t.Kind, t.ChatID, t.ThreadID)
	}
	return fmt.Sprintf("%s:%d", t.Kind, t.ChatID)
}

// ParseTarget parses "kind:chat" or "kind:chat/thread". A bare number is a
// NapCat group.
func ParseTarget(s string) (Target, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Target{}, fmt.Errorf("empty target")
	}
	kind := KindNapCat
	if i := strings.IndexByte(s, ':'); i >= 0 {
		kind = Kind(strings.ToLower(strings.TrimSpace(s[:i])))
		s = strings.TrimSpace(s[i+1:])
	}
	thread := 0
	if i := strings.IndexByte(s, '/'); i >= 0 {
		n, err := strconv.Atoi(strings.TrimSpace(s[i+1:]))
		if err != nil {
			return Target{}, fmt.Errorf("invalid thread id %q", s[i+1:])
		}
		thread = n
		s = strings.TrimSpace(s[:i])
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return Target{}, fmt.Errorf("invalid chat id %q", s)
	}
	t := Target{Kind: kind, ChatID: id, ThreadID: thread}
	if err := t.Validate(); err != nil {
		return Target{}, err
	}
	return t, nil
}

func (t Target) Validate() error {
	switch t.Kind {
	case KindNapCat, KindTelegram:
	default:
		return fmt.Errorf("unknown destination kind %q", t.Kind)
	}
	if t.ChatID == 0 {
		return fmt.Errorf("%s destination: chat id is required", t.Kind)
	}
	if t.Kind == KindNapCat && t.ThreadID != 0 {
		return fmt.Errorf("napcat destination %d: thread id is not supported", t.ChatID)
	}
	return nil
}

type SendOptions struct {
	DisablePreview bool
}

// Sender delivers one text message to one destination.
// A nil error means the backend acknowledged the message.
type Sender interface {
	SendText(ctx context.Context, to Target, text string, opt *SendOptions) error
}

// Adapter is a Sender bound to one backend kind that can report liveness.
type Adapter interface {
	Sender
	Kind() Kind
	Alive(ctx context.Context) error
	Close() error
}
