package app

import (
	"context"
	"strings"

	"github.com/coreos/go-systemd/v22/daemon"

	"noticebot/internal/config"
	"noticebot/internal/eventbus"
	logx "noticebot/pkg/logx"
)

func (a *App) reloadLoop(ctx context.Context, sub <-chan *config.Config) {
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the newest config.
			for drained := false; !drained; {
				select {
				case newer := <-sub:
					if newer != nil {
						next = newer
					}
				default:
					drained = true
				}
			}
			a.apply(last, next)
			last = next
		}
	}
}

// apply pushes the live-reloadable parts of next into the running
// components: logging, destinations, pacing, schedule, game id and account.
func (a *App) apply(prev, next *config.Config) {
	ch := config.SummarizeChange(prev, next)
	if len(ch.Sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}
	a.notify(daemon.SdNotifyReloading)
	defer a.notify(daemon.SdNotifyReady)

	a.logs.Apply(next.LogConfig())

	if rc, err := relayConfig(next); err != nil {
		a.log.Warn("invalid relay config; keeping previous", logx.Err(err))
	} else {
		a.relay.Apply(rc)
	}
	if s, err := next.Schedule(); err != nil {
		a.log.Warn("invalid poll schedule; keeping previous", logx.Err(err))
	} else {
		a.sched.Store(&s)
	}
	a.session.SetAccount(next.Platform.Username, next.Platform.Password)

	if len(ch.RestartRequired) > 0 {
		a.log.Warn("config changed; restart required for changes to take effect",
			logx.String("settings", strings.Join(ch.RestartRequired, ",")))
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(ch.Sections, ","))}, ch.Fields...)
	a.log.Info("config reloaded", fields...)
	a.bus.Publish(eventbus.Event{Type: eventbus.TypeConfigReloaded, Data: ch.Sections})
}
