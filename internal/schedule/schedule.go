// Package schedule parses poll schedules: a fixed pause between cycles or a
// cron expression.
package schedule

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

type Kind int

const (
	KindInterval Kind = iota
	KindCron
)

// Schedule yields the next cycle start after a cycle finished at t.
type Schedule struct {
	Kind  Kind
	Every time.Duration
	Expr  string

	cron cron.Schedule
	loc  *time.Location
}

var (
	reHHMM = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})\s*$`)

	// Five standard fields with an optional leading seconds field, plus
	// descriptors like @hourly and @every 30s.
	cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
)

// Parse accepts:
//   - a Go duration: "5s", "1m30s"
//   - HH:MM as a duration: "00:05" is five minutes
//   - a cron expression: "*/10 * * * * *", "@every 5s", "0 * * * *"
//
// "cron:" and "every:" prefixes force the interpretation. loc is the zone
// cron expressions are evaluated in; nil means time.Local.
func Parse(raw string, loc *time.Location) (Schedule, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Schedule{}, fmt.Errorf("schedule required")
	}
	if loc == nil {
		loc = time.Local
	}

	low := strings.ToLower(s)
	switch {
	case strings.HasPrefix(low, "cron:"):
		return parseCron(strings.TrimSpace(s[len("cron:"):]), loc)
	case strings.HasPrefix(low, "every:"):
		return parseInterval(strings.TrimSpace(s[len("every:"):]))
	case strings.ContainsAny(s, " \t") || strings.HasPrefix(s, "@"):
		return parseCron(s, loc)
	default:
		return parseInterval(s)
	}
}

func parseCron(expr string, loc *time.Location) (Schedule, error) {
	if expr == "" {
		return Schedule{}, fmt.Errorf("cron expression required")
	}
	sched, err := cronParser.Parse(expr)
	if err != nil {
		return Schedule{}, fmt.Errorf("invalid cron schedule %q: %w", expr, err)
	}
	return Schedule{Kind: KindCron, Expr: expr, cron: sched, loc: loc}, nil
}

func parseInterval(v string) (Schedule, error) {
	var d time.Duration
	if m := reHHMM.FindStringSubmatch(v); m != nil {
		hh, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		if mm > 59 {
			return Schedule{}, fmt.Errorf("invalid minutes in %q", v)
		}
		d = time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute
	} else {
		var err error
		d, err = time.ParseDuration(v)
		if err != nil {
			return Schedule{}, fmt.Errorf("invalid schedule %q (use a duration like '5s', HH:MM, or a cron expression)", v)
		}
	}
	if d <= 0 {
		return Schedule{}, fmt.Errorf("interval must be > 0")
	}
	return Schedule{Kind: KindInterval, Every: d}, nil
}

// Next returns when the next cycle should start, given the previous one
// finished at t.
func (s Schedule) Next(t time.Time) time.Time {
	if s.Kind == KindCron && s.cron != nil {
		return s.cron.Next(t.In(s.loc))
	}
	return t.Add(s.Every)
}

// Delay is Next(t) - t, never negative.
func (s Schedule) Delay(t time.Time) time.Duration {
	return max(s.Next(t).Sub(t), 0)
}

func (s Schedule) String() string {
	if s.Kind == KindCron {
		return "cron:" + s.Expr
	}
	return "every:" + s.Every.String()
}
