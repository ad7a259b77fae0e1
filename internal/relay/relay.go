// Package relay moves platform notices to destination groups: fetch,
// filter against the ledger, deliver to every destination, commit.
package relay

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"noticebot/internal/eventbus"
	"noticebot/internal/platform"
	"noticebot/internal/session"
	"noticebot/internal/transport"
	logx "noticebot/pkg/logx"
)

type NoticeSource interface {
	Notices(ctx context.Context, cookie string, gameID int64) ([]platform.Notice, error)
}

// Session is what the relay needs from the session manager.
type Session interface {
	Credential() string
	Invalidate()
	Login(ctx context.Context) error
}

// Seen reports ledger membership.
type Seen interface {
	Contains(id int64) bool
}

type Ledger interface {
	Seen
	Commit(ctx context.Context, id int64) error
}

type Config struct {
	GameID       int64
	Destinations []transport.Target
	// SendRatePerSec caps sends across all destinations. <= 0 means unlimited.
	SendRatePerSec float64
	// SendTimeout bounds one send to one destination. 0 means 15s.
	SendTimeout time.Duration
	// Location is the display zone for notice timestamps. nil means time.Local.
	Location *time.Location
}

// Fetch outcomes recorded in CycleReport.Fetch.
const (
	FetchOK           = "ok"
	FetchUnauthorized = "unauthorized"
	FetchNotStarted   = "not_started"
	FetchNotFound     = "not_found"
	FetchError        = "error"
)

// CycleReport summarizes one poll cycle.
type CycleReport struct {
	Started      time.Time     `json:"started"`
	Took         time.Duration `json:"took"`
	Fetch        string        `json:"fetch"`
	Fetched      int           `json:"fetched"`
	Unread       int           `json:"unread"`
	Delivered    int           `json:"delivered"`
	Failed       int           `json:"failed"`
	CommitErrors int           `json:"commit_errors"`
	// Fatal is set when polling cannot recover without operator action,
	// such as an expired cookie with no account to log in with.
	Fatal error `json:"-"`
}

// DeliveryResult is published on the event bus for each attempted notice.
type DeliveryResult struct {
	NoticeID int64
	OK       int
	Failed   int
}

type Relay struct {
	source  NoticeSource
	session Session
	ledger  Ledger
	sender  transport.Sender
	bus     eventbus.Bus
	log     logx.Logger

	mu      sync.RWMutex
	cfg     Config
	limiter *rate.Limiter

	last atomic.Pointer[CycleReport]
}

func New(cfg Config, source NoticeSource, session Session, ledger Ledger, sender transport.Sender, bus eventbus.Bus, log logx.Logger) *Relay {
	if bus == nil {
		bus = eventbus.Nop{}
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Relay{
		source:  source,
		session: session,
		ledger:  ledger,
		sender:  sender,
		bus:     bus,
		log:     log,
		limiter: rate.NewLimiter(rate.Inf, 1),
	}
	r.Apply(cfg)
	return r
}

// Apply swaps the runtime settings. It is safe to call between or during cycles;
// a running cycle keeps the destinations it started with.
func (r *Relay) Apply(cfg Config) {
	cfg.Destinations = slices.Clone(cfg.Destinations)
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 15 * time.Second
	}
	limit := rate.Inf
	if cfg.SendRatePerSec > 0 {
		limit = rate.Limit(cfg.SendRatePerSec)
	}

	r.mu.Lock()
	r.cfg = cfg
	r.limiter.SetLimit(limit)
	r.mu.Unlock()
}

func (r *Relay) config() Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg
}

// LastReport returns the most recent cycle report, or nil before the first cycle.
func (r *Relay) LastReport() *CycleReport {
	return r.last.Load()
}

// Fetch returns the game's notices, or nothing when the platform could not
// serve them this cycle. It never fails; every failure is logged.
func (r *Relay) Fetch(ctx context.Context) []platform.Notice {
	ns, _, _ := r.fetch(ctx, r.config().GameID)
	return ns
}

// fetch maps the platform outcome to a fetch status. The error is non-nil
// only when a re-login is impossible, which no later cycle can fix.
func (r *Relay) fetch(ctx context.Context, gameID int64) ([]platform.Notice, string, error) {
	ns, err := r.source.Notices(ctx, r.session.Credential(), gameID)
	switch {
	case err == nil:
		return r.known(ns), FetchOK, nil
	case errors.Is(err, platform.ErrUnauthorized):
		r.log.Warn("session rejected while fetching notices, logging in again")
		r.session.Invalidate()
		lerr := r.session.Login(ctx)
		switch {
		case lerr == nil:
			r.log.Info("re-login succeeded")
		case errors.Is(lerr, session.ErrMissingCredentials):
			r.log.Error("cookie expired and no platform account is configured", logx.Err(lerr))
			return nil, FetchUnauthorized, lerr
		default:
			r.log.Error("re-login failed", logx.Err(lerr))
		}
		return nil, FetchUnauthorized, nil
	case errors.Is(err, platform.ErrForbidden):
		r.log.Debug("game not started yet", logx.Int64("game_id", gameID))
		return nil, FetchNotStarted, nil
	case errors.Is(err, platform.ErrNotFound):
		r.log.Warn("game not found, check platform.game_id", logx.Int64("game_id", gameID))
		return nil, FetchNotFound, nil
	default:
		if ctx.Err() == nil {
			r.log.Warn("fetch notices failed", logx.Err(err))
		}
		return nil, FetchError, nil
	}
}

// known drops notices of categories this build cannot render.
func (r *Relay) known(ns []platform.Notice) []platform.Notice {
	out := ns[:0:0]
	for _, n := range ns {
		if !n.Category.Valid() {
			r.log.Warn("skipping notice of unknown category", logx.Int64("notice_id", n.ID), logx.String("category", string(n.Category)))
			continue
		}
		out = append(out, n)
	}
	return out
}

// FilterUnread drops notices already in the ledger and orders the rest by
// creation time, oldest first. Equal timestamps keep fetch order.
func FilterUnread(notices []platform.Notice, seen Seen) []platform.Notice {
	out := make([]platform.Notice, 0, len(notices))
	for _, n := range notices {
		if !seen.Contains(n.ID) {
			out = append(out, n)
		}
	}
	slices.SortStableFunc(out, func(a, b platform.Notice) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out
}

// Deliver sends n to every destination and reports whether all of them
// accepted it. A failed destination does not stop the others.
func (r *Relay) Deliver(ctx context.Context, n platform.Notice) bool {
	return r.deliver(ctx, r.config(), n)
}

func (r *Relay) deliver(ctx context.Context, cfg Config, n platform.Notice) bool {
	log := r.log.With(logx.Int64("notice_id", n.ID), logx.String("category", string(n.Category)))
	if len(cfg.Destinations) == 0 {
		log.Warn("no destinations configured, notice left undelivered")
		return false
	}

	text := n.Text(cfg.Location)
	res := DeliveryResult{NoticeID: n.ID}
	for _, to := range cfg.Destinations {
		if err := r.send(ctx, cfg, to, text); err != nil {
			res.Failed++
			log.Warn("delivery failed", logx.String("target", to.String()), logx.Err(err))
			continue
		}
		res.OK++
	}

	typ := eventbus.TypeNoticeDelivered
	if res.Failed > 0 {
		typ = eventbus.TypeNoticeFailed
	}
	r.bus.Publish(eventbus.Event{Type: typ, Data: res})
	return res.Failed == 0
}

func (r *Relay) send(ctx context.Context, cfg Config, to transport.Target, text string) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}
	sctx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
	defer cancel()
	return r.sender.SendText(sctx, to, text, &transport.SendOptions{DisablePreview: true})
}

// RunCycle performs one fetch, filter, deliver and commit pass.
func (r *Relay) RunCycle(ctx context.Context) CycleReport {
	cfg := r.config()
	rep := CycleReport{Started: time.Now()}

	notices, status, fatal := r.fetch(ctx, cfg.GameID)
	rep.Fetch = status
	rep.Fatal = fatal
	rep.Fetched = len(notices)

	unread := FilterUnread(notices, r.ledger)
	rep.Unread = len(unread)

	for _, n := range unread {
		if ctx.Err() != nil {
			break
		}
		if !r.deliver(ctx, cfg, n) {
			rep.Failed++
			continue
		}
		if err := r.ledger.Commit(ctx, n.ID); err != nil {
			rep.CommitErrors++
			r.log.Error("ledger commit failed, notice will be resent", logx.Int64("notice_id", n.ID), logx.Err(err))
			continue
		}
		rep.Delivered++
		r.log.Info("notice delivered", logx.Int64("notice_id", n.ID), logx.Int("destinations", len(cfg.Destinations)))
	}

	rep.Took = time.Since(rep.Started)
	r.last.Store(&rep)
	r.bus.Publish(eventbus.Event{Type: eventbus.TypeCycleDone, Data: rep})
	return rep
}
