// Package session owns the platform credential and the login state machine.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"noticebot/internal/platform"
	logx "noticebot/pkg/logx"
)

var (
	ErrMissingCredentials = errors.New("platform username and password are required for login")
	ErrCaptchaSolve       = errors.New("captcha solve failed")
	ErrCaptchaRedeem      = errors.New("captcha redeem failed")
	ErrLoginRejected      = errors.New("login rejected")
)

type State int32

const (
	StateUnknown State = iota
	StateValid
	StateInvalid
)

func (s State) String() string {
	switch s {
	case StateValid:
		return "valid"
	case StateInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Platform is the subset of the platform client the session needs.
type Platform interface {
	IssueChallenge(ctx context.Context) (*platform.Challenge, error)
	Redeem(ctx context.Context, token string, solutions []uint64) (string, bool, error)
	Authenticate(ctx context.Context, username, password, verification string) (*platform.LoginResult, error)
	Profile(ctx context.Context, cookie string) error
}

type Solver interface {
	Solve(ctx context.Context, token string, c, saltLen, difficulty int) ([]uint64, error)
}

// CredentialStore persists a freshly obtained cookie.
type CredentialStore interface {
	SaveCredential(cookie string) error
}

type Config struct {
	Username string
	Password string
	// Cookie seeds the credential, usually from a previous run.
	Cookie string
}

type Manager struct {
	client Platform
	solver Solver
	store  CredentialStore
	log    logx.Logger

	mu       sync.RWMutex
	username string
	password string

	cred   atomic.Pointer[string]
	state  atomic.Int32
	logins atomic.Int64
	sf     singleflight.Group
}

// New builds a session manager. store may be nil, in which case new
// credentials are kept in memory only.
func New(cfg Config, client Platform, solver Solver, store CredentialStore, log logx.Logger) *Manager {
	if log.IsZero() {
		log = logx.Nop()
	}
	m := &Manager{
		client:   client,
		solver:   solver,
		store:    store,
		log:      log,
		username: strings.TrimSpace(cfg.Username),
		password: cfg.Password,
	}
	cookie := strings.TrimSpace(cfg.Cookie)
	m.cred.Store(&cookie)
	return m
}

// SetAccount replaces the login credentials used by the next Login.
func (m *Manager) SetAccount(username, password string) {
	m.mu.Lock()
	m.username = strings.TrimSpace(username)
	m.password = password
	m.mu.Unlock()
}

func (m *Manager) account() (string, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.username, m.password
}

func (m *Manager) Credential() string {
	if p := m.cred.Load(); p != nil {
		return *p
	}
	return ""
}

func (m *Manager) State() State { return State(m.state.Load()) }

// Logins counts completed login protocol runs, successful or not.
func (m *Manager) Logins() int64 { return m.logins.Load() }

func (m *Manager) setState(s State) { m.state.Store(int32(s)) }

// Invalidate marks the session invalid. Called by anything that saw a 401.
func (m *Manager) Invalidate() {
	if State(m.state.Swap(int32(StateInvalid))) != StateInvalid {
		m.log.Info("session invalidated")
	}
}

// Probe checks the current credential against the profile endpoint.
// Any failure, network errors included, counts as invalid.
func (m *Manager) Probe(ctx context.Context) State {
	cookie := m.Credential()
	if cookie == "" {
		m.setState(StateInvalid)
		return StateInvalid
	}
	if err := m.client.Profile(ctx, cookie); err != nil {
		m.log.Debug("session probe failed", logx.Err(err))
		m.setState(StateInvalid)
		return StateInvalid
	}
	m.setState(StateValid)
	return StateValid
}

// EnsureValid probes the session and logs in when it is not valid.
func (m *Manager) EnsureValid(ctx context.Context) error {
	if m.Probe(ctx) == StateValid {
		return nil
	}
	return m.Login(ctx)
}

// loginTimeout bounds a shared login attempt once it is detached from the
// caller that started it. The captcha solver has its own, shorter limit.
const loginTimeout = 3 * time.Minute

// Login runs the challenge, solve, redeem and authenticate protocol.
// Concurrent callers share one in-flight attempt, which keeps running when
// the caller that started it gives up.
func (m *Manager) Login(ctx context.Context) error {
	username, password := m.account()
	if username == "" || password == "" {
		return ErrMissingCredentials
	}
	ch := m.sf.DoChan("login", func() (any, error) {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loginTimeout)
		defer cancel()
		return nil, m.login(lctx, username, password)
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) login(ctx context.Context, username, password string) error {
	defer m.logins.Add(1)
	start := time.Now()
	m.log.Info("login started", logx.String("username", username))

	chal, err := m.client.IssueChallenge(ctx)
	if err != nil {
		return fmt.Errorf("issue challenge: %w", err)
	}

	nonces, err := m.solver.Solve(ctx, chal.Token, chal.Count, chal.SaltLen, chal.Difficulty)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCaptchaSolve, err)
	}

	verification, ok, err := m.client.Redeem(ctx, chal.Token, nonces)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCaptchaRedeem, err)
	}
	if !ok || verification == "" {
		return ErrCaptchaRedeem
	}

	res, err := m.client.Authenticate(ctx, username, password, verification)
	if err != nil {
		return fmt.Errorf("authenticate: %w", err)
	}
	if res.Code != 200 || res.Cookie == "" {
		return fmt.Errorf("%w: code=%d message=%q", ErrLoginRejected, res.Code, res.Message)
	}

	cookie := res.Cookie
	m.cred.Store(&cookie)
	m.setState(StateValid)
	m.log.Info("login succeeded",
		logx.Int("sub_challenges", chal.Count),
		logx.Int("difficulty", chal.Difficulty),
		logx.Duration("took", time.Since(start)),
	)

	if m.store != nil {
		if err := m.store.SaveCredential(cookie); err != nil {
			m.log.Warn("persist credential failed", logx.Err(err))
		}
	}
	return nil
}
