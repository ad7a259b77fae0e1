package app

import (
	"noticebot/internal/relay"
	"noticebot/internal/runtime/supervisor"
)

// Status is the document served at the ops /status endpoint.
type Status struct {
	Session       string                 `json:"session"`
	Logins        int64                  `json:"logins"`
	GameID        int64                  `json:"game_id"`
	LedgerSize    int                    `json:"ledger_size"`
	Destinations  []string               `json:"destinations"`
	Schedule      string                 `json:"schedule"`
	LastCycle     *relay.CycleReport     `json:"last_cycle,omitempty"`
	EventsDropped uint64                 `json:"events_dropped"`
	Tasks         []supervisor.TaskStats `json:"tasks,omitempty"`
}

func (a *App) Status() Status {
	cfg := a.cfgm.Get()
	st := Status{
		Session:       a.session.State().String(),
		Logins:        a.session.Logins(),
		GameID:        cfg.Platform.GameID,
		LedgerSize:    a.ledger.Len(),
		Schedule:      a.schedule().String(),
		LastCycle:     a.relay.LastReport(),
		EventsDropped: a.bus.Dropped(),
	}
	for _, t := range cfg.Targets() {
		st.Destinations = append(st.Destinations, t.String())
	}
	if a.sup != nil {
		st.Tasks = a.sup.Snapshot()
	}
	return st
}
