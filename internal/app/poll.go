package app

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"noticebot/internal/relay"
	"noticebot/internal/schedule"
	logx "noticebot/pkg/logx"
)

type cycleRunner interface {
	RunCycle(ctx context.Context) relay.CycleReport
}

// runPoll runs one cycle at a time until ctx is done or a cycle reports a
// fatal error. The schedule is read again after every cycle so reloads take
// effect on the next wait.
func runPoll(ctx context.Context, r cycleRunner, next func() schedule.Schedule, notify func(string), log logx.Logger) error {
	for ctx.Err() == nil {
		if rep, stack, err := runCycle(ctx, r); err != nil {
			log.Error("poll cycle panicked", logx.Err(err), logx.String("stack", stack))
		} else if rep.Fatal != nil {
			return fmt.Errorf("poll: %w", rep.Fatal)
		} else if rep.Unread > 0 || rep.Fetch != relay.FetchOK {
			log.Info("poll cycle",
				logx.String("fetch", rep.Fetch),
				logx.Int("unread", rep.Unread),
				logx.Int("delivered", rep.Delivered),
				logx.Int("failed", rep.Failed),
				logx.Duration("took", rep.Took),
			)
		}
		notify(daemon.SdNotifyWatchdog)

		t := time.NewTimer(next().Delay(time.Now()))
		select {
		case <-ctx.Done():
			t.Stop()
		case <-t.C:
		}
	}
	return nil
}

// runCycle turns a panicking cycle into an error and its stack.
func runCycle(ctx context.Context, r cycleRunner) (rep relay.CycleReport, stack string, err error) {
	defer func() {
		if p := recover(); p != nil {
			stack = string(debug.Stack())
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return r.RunCycle(ctx), "", nil
}
