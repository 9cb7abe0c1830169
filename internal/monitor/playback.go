package monitor

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Window is a calendar-aligned UTC aggregation window.
type Window string

const (
	WindowToday Window = "today"
	WindowMonth Window = "month"
)

// ParseWindow parses "today" or "month". An empty string means today.
func ParseWindow(s string) (Window, error) {
	switch Window(strings.ToLower(strings.TrimSpace(s))) {
	case "", WindowToday:
		return WindowToday, nil
	case WindowMonth:
		return WindowMonth, nil
	default:
		return "", fmt.Errorf("unknown window %q", s)
	}
}

// Bounds returns the half-open [start, end) range of w containing now.
func (w Window) Bounds(now time.Time) (start, end time.Time) {
	now = now.UTC()
	switch w {
	case WindowMonth:
		start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 1, 0)
	default:
		start = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 0, 1)
	}
}

// Aggregator computes play counts and play time over calendar windows.
// Results are recomputed from the event log on every call.
type Aggregator struct {
	events EventStore
	now    func() time.Time
}

// NewAggregator returns an Aggregator reading from events.
func NewAggregator(events EventStore, now func() time.Time) *Aggregator {
	if now == nil {
		now = utcNow
	}
	return &Aggregator{events: events, now: now}
}

// WindowTotals is the play count and play time of one ad over one window.
type WindowTotals struct {
	Start       time.Time
	End         time.Time
	Plays       int
	PlaySeconds float64
}

// PlaysCount counts playback events of adID starting inside w, whatever
// their status.
func (a *Aggregator) PlaysCount(ctx context.Context, adID AdID, w Window) (int, error) {
	from, to := w.Bounds(a.now())
	return a.countPlays(ctx, adID, from, to)
}

// AdPlaySeconds sums the play time of adID over w.
func (a *Aggregator) AdPlaySeconds(ctx context.Context, adID AdID, w Window) (float64, error) {
	totals, err := a.AdTotals(ctx, adID, w)
	return totals.PlaySeconds, err
}

// AdTotals returns the play count and play time of adID over w, both taken
// from a single read of the window containing now.
func (a *Aggregator) AdTotals(ctx context.Context, adID AdID, w Window) (WindowTotals, error) {
	from, to := w.Bounds(a.now())
	evs, err := a.events.PlaybackEventsInRange(ctx, PlaybackFilter{AdID: &adID, From: from, To: to})
	if err != nil {
		return WindowTotals{}, err
	}
	return WindowTotals{Start: from, End: to, Plays: len(evs), PlaySeconds: sumPlaySeconds(evs)}, nil
}

// TotalPlaySeconds sums the play time of events on screenIDs over w. An
// empty set yields 0 without touching the store.
func (a *Aggregator) TotalPlaySeconds(ctx context.Context, screenIDs []ScreenID, w Window) (float64, error) {
	from, to := w.Bounds(a.now())
	return a.screenPlaySeconds(ctx, screenIDs, from, to)
}

func (a *Aggregator) countPlays(ctx context.Context, adID AdID, from, to time.Time) (int, error) {
	evs, err := a.events.PlaybackEventsInRange(ctx, PlaybackFilter{AdID: &adID, From: from, To: to})
	if err != nil {
		return 0, err
	}
	return len(evs), nil
}

func (a *Aggregator) screenPlaySeconds(ctx context.Context, screenIDs []ScreenID, from, to time.Time) (float64, error) {
	if len(screenIDs) == 0 {
		return 0, nil
	}
	evs, err := a.events.PlaybackEventsInRange(ctx, PlaybackFilter{ScreenIDs: screenIDs, From: from, To: to})
	if err != nil {
		return 0, err
	}
	return sumPlaySeconds(evs), nil
}

// sumPlaySeconds skips events whose span cannot be measured, so the result
// is never negative.
func sumPlaySeconds(evs []PlaybackEvent) float64 {
	var total time.Duration
	for _, ev := range evs {
		if d, ok := ev.Duration(); ok {
			total += d
		}
	}
	return total.Seconds()
}
