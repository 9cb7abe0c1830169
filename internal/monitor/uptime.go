package monitor

import (
	"context"
	"math"
	"time"
)

// DefaultUptimeWindowMinutes is the trailing window used when callers pass
// a non-positive window.
const DefaultUptimeWindowMinutes = 60

// MaxUptimeWindowMinutes caps the trailing window at one year, well inside
// the range time.Duration can express.
const MaxUptimeWindowMinutes = 365 * 24 * 60

// UptimeEstimator approximates the share of a trailing window during which a
// screen was heartbeating.
//
// The estimate is the span between the first and last heartbeat in the
// window, not heartbeat density: two heartbeats at the window edges read as
// 100% even with silence in between. Historical dashboards depend on this
// formula.
type UptimeEstimator struct {
	events        EventStore
	screens       screenLister
	defaultWindow int
	now           func() time.Time
}

type screenLister interface {
	ScreensByCompany(ctx context.Context, id CompanyID) ([]Screen, error)
}

// NewUptimeEstimator returns an UptimeEstimator. If defaultWindow <= 0,
// DefaultUptimeWindowMinutes is used; it is capped at MaxUptimeWindowMinutes.
func NewUptimeEstimator(events EventStore, screens screenLister, defaultWindow int, now func() time.Time) *UptimeEstimator {
	if defaultWindow <= 0 {
		defaultWindow = DefaultUptimeWindowMinutes
	}
	if defaultWindow > MaxUptimeWindowMinutes {
		defaultWindow = MaxUptimeWindowMinutes
	}
	if now == nil {
		now = utcNow
	}
	return &UptimeEstimator{events: events, screens: screens, defaultWindow: defaultWindow, now: now}
}

// ScreenUptime returns the uptime percentage of screenID over the trailing
// windowMinutes, in [0, 100] with two decimals.
func (u *UptimeEstimator) ScreenUptime(ctx context.Context, screenID ScreenID, windowMinutes int) (float64, error) {
	windowMinutes = u.window(windowMinutes)
	now := u.now()
	start := now.Add(-time.Duration(windowMinutes) * time.Minute)

	hbs, err := u.events.HeartbeatsInWindow(ctx, screenID, start, now)
	if err != nil {
		return 0, err
	}
	return spanUptime(hbs, windowMinutes), nil
}

// CompanyUptime returns the unweighted mean of ScreenUptime over every
// screen the company owns. A company without screens has 0% uptime.
func (u *UptimeEstimator) CompanyUptime(ctx context.Context, companyID CompanyID, windowMinutes int) (float64, error) {
	screens, err := u.screens.ScreensByCompany(ctx, companyID)
	if err != nil {
		return 0, err
	}
	if len(screens) == 0 {
		return 0, nil
	}

	var sum float64
	for _, sc := range screens {
		pct, err := u.ScreenUptime(ctx, sc.ID, windowMinutes)
		if err != nil {
			return 0, err
		}
		sum += pct
	}
	return round2(sum / float64(len(screens))), nil
}

func (u *UptimeEstimator) window(minutes int) int {
	switch {
	case minutes <= 0:
		return u.defaultWindow
	case minutes > MaxUptimeWindowMinutes:
		return MaxUptimeWindowMinutes
	default:
		return minutes
	}
}

// spanUptime computes the percentage for heartbeats sorted ascending.
func spanUptime(hbs []Heartbeat, windowMinutes int) float64 {
	if len(hbs) == 0 || windowMinutes <= 0 {
		return 0
	}
	observed := hbs[len(hbs)-1].Timestamp.Sub(hbs[0].Timestamp).Seconds()
	total := float64(windowMinutes) * 60
	return round2(clamp(observed/total*100, 0, 100))
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
