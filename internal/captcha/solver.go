package captcha

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	logx "noticebot/pkg/logx"
)

var (
	ErrInvalidChallenge = errors.New("invalid captcha challenge")
	ErrSolveTimeout     = errors.New("captcha solve timed out")
)

const (
	defaultSolveTimeout = 2 * time.Minute
	// ctx is checked once per this many hashes.
	cancelCheckEvery = 4096
)

type Config struct {
	// Workers bounds concurrent sub-challenge searches. 0 means GOMAXPROCS.
	Workers int
	// Timeout bounds a whole Solve call. 0 means two minutes.
	Timeout time.Duration
}

// Solver brute-forces proof-of-work challenges on a bounded worker pool.
type Solver struct {
	cfg Config
	log logx.Logger
}

func NewSolver(cfg Config, log logx.Logger) *Solver {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultSolveTimeout
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Solver{cfg: cfg, log: log}
}

// Solve returns one nonce per sub-challenge of (token, c, saltLen, difficulty),
// ordered by sub-challenge index. Any failed search fails the whole solve.
func (s *Solver) Solve(ctx context.Context, token string, c, saltLen, difficulty int) ([]uint64, error) {
	if token == "" || c <= 0 || saltLen < 0 || difficulty < 0 {
		return nil, fmt.Errorf("%w: token_set=%t c=%d s=%d d=%d", ErrInvalidChallenge, token != "", c, saltLen, difficulty)
	}
	start := time.Now()
	subs := Derive(token, c, saltLen, difficulty)

	sctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	nonces := make([]uint64, len(subs))
	g, gctx := errgroup.WithContext(sctx)
	g.SetLimit(s.cfg.Workers)
	for i := range subs {
		sub := subs[i]
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("sub-challenge %d panicked: %v\n%s", sub.Index, r, debug.Stack())
				}
			}()
			n, err := SolveOne(gctx, sub)
			if err != nil {
				return fmt.Errorf("sub-challenge %d: %w", sub.Index, err)
			}
			nonces[sub.Index-1] = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w after %s", ErrSolveTimeout, s.cfg.Timeout)
		}
		return nil, err
	}

	s.log.Debug("captcha solved",
		logx.Int("count", c),
		logx.Int("difficulty", difficulty),
		logx.Int("workers", s.cfg.Workers),
		logx.Duration("took", time.Since(start)),
	)
	return nonces, nil
}

// SolveOne searches nonces upward from 0 until hex(sha256(salt+nonce)) starts
// with the target.
func SolveOne(ctx context.Context, sub SubChallenge) (uint64, error) {
	target := sub.Target
	if len(target) > sha256.Size*2 {
		return 0, fmt.Errorf("%w: target longer than a sha256 digest", ErrInvalidChallenge)
	}
	var (
		buf    = make([]byte, 0, len(sub.Salt)+20)
		digest [sha256.Size * 2]byte
	)
	buf = append(buf, sub.Salt...)
	for n := uint64(0); ; n++ {
		if n%cancelCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return 0, err
			}
		}
		buf = strconv.AppendUint(buf[:len(sub.Salt)], n, 10)
		sum := sha256.Sum256(buf)
		hex.Encode(digest[:], sum[:])
		if string(digest[:len(target)]) == target {
			return n, nil
		}
		if n == ^uint64(0) {
			return 0, fmt.Errorf("nonce space exhausted")
		}
	}
}

// Verify reports whether nonce solves sub.
func Verify(sub SubChallenge, nonce uint64) bool {
	sum := sha256.Sum256([]byte(sub.Salt + strconv.FormatUint(nonce, 10)))
	return strings.HasPrefix(hex.EncodeToString(sum[:]), sub.Target)
}
