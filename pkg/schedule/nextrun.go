package schedule

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// CalculateNextRun returns the next time a schedule should fire.
func CalculateNextRun(s Schedule) (time.Time, error) {
	return nextRunAfter(s, time.Now())
}

func nextRunAfter(s Schedule, now time.Time) (time.Time, error) {
	switch s.Kind {
	case KindAt:
		return nextAtRun(s)
	case KindEvery:
		return nextEveryRun(s, now)
	case KindCron:
		return nextCronRun(s, now)
	default:
		return time.Time{}, fmt.Errorf("unknown schedule kind: %s", s.Kind)
	}
}

// nextAtRun returns the fixed timestamp, past or not. A past timestamp
// makes the job fire immediately once, after which the service disables
// it.
func nextAtRun(s Schedule) (time.Time, error) {
	if s.At == "" {
		return time.Time{}, fmt.Errorf("'at' schedule requires an 'at' timestamp")
	}

	t, err := time.Parse(time.RFC3339, s.At)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp: %w", err)
	}

	return t, nil
}

func nextEveryRun(s Schedule, now time.Time) (time.Time, error) {
	if s.Every == "" {
		return time.Time{}, fmt.Errorf("'every' schedule requires an 'every' duration")
	}

	interval, err := time.ParseDuration(s.Every)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid duration: %w", err)
	}
	if interval <= 0 {
		return time.Time{}, fmt.Errorf("'every' schedule requires a positive duration")
	}

	// Without an anchor the interval floats from now.
	if s.Anchor == "" {
		return now.Add(interval), nil
	}

	anchor, err := time.Parse(time.RFC3339, s.Anchor)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid anchor: %w", err)
	}

	// A future anchor is the first run.
	if anchor.After(now) {
		return anchor, nil
	}

	// Align to the next interval boundary after now.
	elapsed := now.Sub(anchor)
	periods := elapsed / interval

	return anchor.Add((periods + 1) * interval), nil
}

func nextCronRun(s Schedule, now time.Time) (time.Time, error) {
	if s.Expr == "" {
		return time.Time{}, fmt.Errorf("'cron' schedule requires an 'expr' field")
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(s.Expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cron expression: %w", err)
	}

	if s.TZ != "" {
		loc, err := time.LoadLocation(s.TZ)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid timezone: %w", err)
		}
		now = now.In(loc)
	}

	return sched.Next(now), nil
}
