// Package app wires the notice relay together and owns its lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"noticebot/internal/captcha"
	"noticebot/internal/config"
	"noticebot/internal/eventbus"
	"noticebot/internal/ledger"
	"noticebot/internal/ops"
	"noticebot/internal/platform"
	"noticebot/internal/relay"
	"noticebot/internal/runtime/supervisor"
	"noticebot/internal/schedule"
	"noticebot/internal/session"
	"noticebot/internal/storage"
	"noticebot/internal/transport"
	"noticebot/internal/transport/napcat"
	"noticebot/internal/transport/telegram"
	logx "noticebot/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	logs *logx.Service
	log  logx.Logger
	bus  eventbus.Bus

	ledger  *ledger.Ledger
	mux     *transport.Mux
	session *session.Manager
	relay   *relay.Relay

	sched atomic.Pointer[schedule.Schedule]
	sup   *supervisor.Supervisor

	// notify reports service state to systemd. It is a no-op outside systemd.
	notify func(state string)
}

// New loads the config and builds every component. Nothing talks to the
// network yet; Start does the startup checks.
func New(ctx context.Context, cfgPath string) (_ *App, err error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, root := logx.New(cfg.LogConfig(), nil)
	comp := func(name string) logx.Logger { return root.With(logx.String("comp", name)) }
	log := comp("app")
	cfgm.SetLogger(comp("config"))

	var closers []func() error
	defer func() {
		if err == nil {
			return
		}
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
		_ = logSvc.Close()
	}()

	mux, err := BuildMux(cfg, root)
	if err != nil {
		return nil, err
	}
	closers = append(closers, mux.Close)
	logSvc.SetSender(mux)

	led, err := OpenLedger(ctx, cfg, root)
	if err != nil {
		return nil, err
	}
	closers = append(closers, led.Close)

	pc, err := platform.NewClient(platform.Config{
		BaseURL:   cfg.Platform.BaseURL,
		UserAgent: cfg.Platform.UserAgent,
		Timeout:   config.Duration(cfg.Platform.Timeout, 30*time.Second),
	})
	if err != nil {
		return nil, err
	}
	solver := captcha.NewSolver(captcha.Config{
		Workers: cfg.Captcha.Workers,
		Timeout: config.Duration(cfg.Captcha.Timeout, 0),
	}, comp("captcha"))

	bus := eventbus.New()
	sess := session.New(session.Config{
		Username: cfg.Platform.Username,
		Password: cfg.Platform.Password,
		Cookie:   cfg.Platform.Cookie,
	}, pc, solver, &credentialSink{store: cfgm, bus: bus}, comp("session"))

	rc, err := relayConfig(cfg)
	if err != nil {
		return nil, err
	}
	rel := relay.New(rc, pc, sess, led, mux, bus, comp("relay"))

	sched, err := cfg.Schedule()
	if err != nil {
		return nil, err
	}

	a := &App{
		cfgm:    cfgm,
		logs:    logSvc,
		log:     log,
		bus:     bus,
		ledger:  led,
		mux:     mux,
		session: sess,
		relay:   rel,
		notify:  sdNotify,
	}
	a.sched.Store(&sched)
	return a, nil
}

// BuildMux creates one adapter per configured messaging backend.
func BuildMux(cfg *config.Config, log logx.Logger) (*transport.Mux, error) {
	mux := transport.NewMux()
	if n := cfg.NapCat; n != nil {
		a, err := napcat.New(napcat.Config{
			URL:     n.URL,
			Token:   n.Token,
			Timeout: config.Duration(n.Timeout, 0),
		}, log.With(logx.String("comp", "napcat")))
		if err != nil {
			return nil, err
		}
		mux.Register(a)
	}
	if t := cfg.Telegram; t != nil {
		a, err := telegram.New(telegram.Config{
			Token:   t.Token,
			APIURL:  t.APIURL,
			Timeout: config.Duration(t.Timeout, 0),
		}, log.With(logx.String("comp", "telegram")))
		if err != nil {
			_ = mux.Close()
			return nil, err
		}
		mux.Register(a)
	}
	if len(mux.Kinds()) == 0 {
		return nil, errors.New("no messaging backend configured")
	}
	return mux, nil
}

// OpenLedger opens the configured storage driver and loads the ledger from it.
func OpenLedger(ctx context.Context, cfg *config.Config, log logx.Logger) (*ledger.Ledger, error) {
	sc := cfg.StorageConfig()
	store, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, fmt.Errorf("open ledger storage: %w", err)
	}
	led, err := ledger.Open(ctx, store, log.With(logx.String("comp", "ledger")))
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return led, nil
}

func relayConfig(cfg *config.Config) (relay.Config, error) {
	loc, err := cfg.Location()
	if err != nil {
		return relay.Config{}, err
	}
	return relay.Config{
		GameID:         cfg.Platform.GameID,
		Destinations:   cfg.Targets(),
		SendRatePerSec: cfg.Poll.SendRatePerSec,
		SendTimeout:    config.Duration(cfg.Poll.SendTimeout, 0),
		Location:       loc,
	}, nil
}

// Check runs the startup checks: every messaging backend must be alive and
// the platform session must be valid (logging in if needed).
func (a *App) Check(ctx context.Context) error {
	if err := a.mux.CheckAlive(ctx); err != nil {
		return fmt.Errorf("group messaging: %w", err)
	}
	a.log.Info("group messaging alive", logx.Any("backends", a.mux.Kinds()))
	if err := a.session.EnsureValid(ctx); err != nil {
		return fmt.Errorf("platform session: %w", err)
	}
	a.log.Info("platform session valid", logx.Int64("game_id", a.cfgm.Get().Platform.GameID))
	return nil
}

// Start runs the startup checks and launches the background goroutines.
// It returns once the poll loop is running.
func (a *App) Start(ctx context.Context) error {
	if err := a.Check(ctx); err != nil {
		return err
	}
	var opsSrv *ops.Server
	if oc := a.cfgm.Get().Ops; oc.Enabled {
		srv, err := ops.New(ops.Config{
			Addr:  a.cfgm.Get().OpsAddr(),
			Token: oc.Token,
			Pprof: oc.Pprof,
		}, func() any { return a.Status() }, a.log.With(logx.String("comp", "ops")))
		if err != nil {
			return err
		}
		opsSrv = srv
	}

	a.sup = supervisor.New(ctx,
		supervisor.WithLogger(a.log.With(logx.String("comp", "supervisor"))),
		supervisor.WithCancelOnError(true),
	)
	a.cfgm.SetValidator(a.validateReload)

	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
		return nil
	})
	a.sup.GoRestart("config.watch", a.cfgm.Watch)
	a.sup.Go("eventbus.log", a.logEvents)

	if opsSrv != nil {
		a.sup.GoRestart("ops.http", opsSrv.Run, supervisor.WithRestartBackoff(time.Second, 30*time.Second))
	}

	a.sup.Go("poll", func(c context.Context) error {
		return runPoll(c, a.relay, a.schedule, a.notify, a.log.With(logx.String("comp", "poll")))
	})

	a.notify(daemon.SdNotifyReady)
	a.log.Info("noticebot started",
		logx.String("schedule", a.schedule().String()),
		logx.Int("ledger_size", a.ledger.Len()),
		logx.Int("destinations", len(a.cfgm.Get().Destinations)),
	)
	return nil
}

func (a *App) schedule() schedule.Schedule { return *a.sched.Load() }

// Done is closed when the app stops running, either through Stop or a fatal
// background error.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal background error.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Stop cancels the background goroutines, waits for them within ctx and
// releases every resource.
func (a *App) Stop(ctx context.Context) error {
	a.notify(daemon.SdNotifyStopping)
	a.log.Info("stopping")

	var errs []error
	if a.sup != nil {
		if err := a.sup.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errs = append(errs, err)
		}
	}
	if err := a.ledger.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close ledger: %w", err))
	}
	if err := a.mux.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close transports: %w", err))
	}
	a.log.Info("stopped")
	_ = a.logs.Close()
	return errors.Join(errs...)
}

// Run starts the app and blocks until ctx is cancelled or a background task
// fails, then stops it.
func (a *App) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		_ = a.Stop(context.Background())
		return err
	}
	<-a.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	stopErr := a.Stop(stopCtx)
	if err := a.Err(); err != nil {
		return err
	}
	return stopErr
}

func (a *App) logEvents(ctx context.Context) error {
	events, unsub := a.bus.Subscribe(128)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-events:
			if !ok {
				return nil
			}
			a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
		}
	}
}

// credentialSink persists fresh cookies to the config file and announces
// the login on the event bus.
type credentialSink struct {
	store session.CredentialStore
	bus   eventbus.Bus
}

func (s *credentialSink) SaveCredential(cookie string) error {
	s.bus.Publish(eventbus.Event{Type: eventbus.TypeLogin})
	return s.store.SaveCredential(cookie)
}

func sdNotify(state string) {
	// Errors only mean NOTIFY_SOCKET is unusable; there is nothing to do about it.
	_, _ = daemon.SdNotify(false, state)
}

// validateReload rejects reloads that need a backend the process did not
// start with.
func (a *App) validateReload(_ context.Context, cfg *config.Config) error {
	have := map[transport.Kind]bool{}
	for _, k := range a.mux.Kinds() {
		have[k] = true
	}
	var missing []string
	for _, t := range cfg.Targets() {
		if !have[t.Kind] {
			missing = append(missing, t.String())
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("destinations %s need a backend that is not running; restart required", strings.Join(missing, ", "))
	}
	return nil
}
