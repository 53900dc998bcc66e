// Package gate implements the scheduling policies that delay protocol
// manager execution until a schedule predicate is satisfied: a once-daily
// wall-clock gate and a minimum-interval-plus-jitter gate, generalized into
// a standalone, reusable policy object.
package gate

import (
	"context"
	"math/rand"
	"time"
)

// Gate blocks the caller until its policy is satisfied or ctx is canceled.
type Gate interface {
	Wait(ctx context.Context) error
}

// ScheduledDailyGate blocks until the next occurrence of TimeOfDay in
// Location. If StartupSkipIfAlreadyToday is set and AlreadyRanToday reports
// true, Wait returns immediately.
type ScheduledDailyGate struct {
	TimeOfDay                 time.Time // only Hour/Minute/Second are consulted
	Location                  *time.Location
	StartupSkipIfAlreadyToday bool
	AlreadyRanToday           func() bool

	now func() time.Time // overridable for tests
}

func (g *ScheduledDailyGate) nowFunc() time.Time {
	if g.now != nil {
		return g.now()
	}
	return time.Now()
}

func (g *ScheduledDailyGate) nextOccurrence() time.Time {
	loc := g.Location
	if loc == nil {
		loc = time.Local
	}
	now := g.nowFunc().In(loc)
	next := time.Date(now.Year(), now.Month(), now.Day(),
		g.TimeOfDay.Hour(), g.TimeOfDay.Minute(), g.TimeOfDay.Second(), 0, loc)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func (g *ScheduledDailyGate) Wait(ctx context.Context) error {
	if g.StartupSkipIfAlreadyToday && g.AlreadyRanToday != nil && g.AlreadyRanToday() {
		return nil
	}
	d := g.nextOccurrence().Sub(g.nowFunc())
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// OncePerIntervalGate ensures successive Wait calls are at least Interval
// apart, plus uniform jitter in [0, Jitter).
type OncePerIntervalGate struct {
	Interval time.Duration
	Jitter   time.Duration

	lastRun time.Time
	now     func() time.Time
}

func (g *OncePerIntervalGate) nowFunc() time.Time {
	if g.now != nil {
		return g.now()
	}
	return time.Now()
}

func (g *OncePerIntervalGate) Wait(ctx context.Context) error {
	now := g.nowFunc()
	if !g.lastRun.IsZero() {
		earliest := g.lastRun.Add(g.Interval)
		if g.Jitter > 0 {
			earliest = earliest.Add(time.Duration(rand.Int63n(int64(g.Jitter))))
		}
		if d := earliest.Sub(now); d > 0 {
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
	g.lastRun = g.nowFunc()
	return nil
}
