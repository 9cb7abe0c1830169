package monitor

import (
	"context"
	"testing"
	"time"
)

func TestUptimeEstimator_ScreenUptime(t *testing.T) {
	cases := []struct {
		name    string
		offsets []time.Duration // relative to window start
		window  int
		want    float64
	}{
		{"no_heartbeats", nil, 60, 0},
		{"single_heartbeat", []time.Duration{30 * time.Minute}, 60, 0},
		{"full_span_pair", []time.Duration{0, 60 * time.Minute}, 60, 100},
		{"half_span", []time.Duration{10 * time.Minute, 40 * time.Minute}, 60, 50},
		{"dense_quarter", []time.Duration{0, 5 * time.Minute, 10 * time.Minute, 15 * time.Minute}, 60, 25},
		{"rounded", []time.Duration{0, 20 * time.Minute}, 60, 33.33},
		{"custom_window", []time.Duration{0, 5 * time.Minute}, 10, 50},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			start := f.now
			f.now = start.Add(time.Duration(tc.window) * time.Minute)
			for _, off := range tc.offsets {
				f.heartbeat(t, f.myScreen.ID, start.Add(off), nil)
			}

			u := NewUptimeEstimator(f.store, f.store, 60, f.clock)
			got, err := u.ScreenUptime(context.Background(), f.myScreen.ID, tc.window)
			if err != nil {
				t.Fatal(err)
			}
			if got != tc.want {
				t.Errorf("got %v want %v", got, tc.want)
			}
		})
	}
}

func TestUptimeEstimator_ignores_heartbeats_outside_window(t *testing.T) {
	f := newFixture(t)
	windowStart := f.now.Add(-60 * time.Minute)
	f.heartbeat(t, f.myScreen.ID, windowStart.Add(-time.Hour), nil)
	f.heartbeat(t, f.myScreen.ID, windowStart.Add(30*time.Minute), nil)
	f.heartbeat(t, f.myScreen.ID, f.now.Add(time.Hour), nil) // future, skewed clock

	u := NewUptimeEstimator(f.store, f.store, 0, f.clock)
	got, _ := u.ScreenUptime(context.Background(), f.myScreen.ID, 0)
	if got != 0 {
		t.Errorf("only one heartbeat lies inside the window, got %v", got)
	}
}

func TestUptimeEstimator_always_in_range(t *testing.T) {
	f := newFixture(t)
	start := f.now.Add(-60 * time.Minute)
	for i := 0; i <= 120; i++ {
		f.heartbeat(t, f.myScreen.ID, start.Add(time.Duration(i)*30*time.Second), nil)
	}
	u := NewUptimeEstimator(f.store, f.store, 0, f.clock)

	for _, w := range []int{1, 5, 30, 60, 600} {
		got, _ := u.ScreenUptime(context.Background(), f.myScreen.ID, w)
		if got < 0 || got > 100 {
			t.Errorf("window %d: %v outside [0,100]", w, got)
		}
	}
}

func TestUptimeEstimator_CompanyUptime(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	second, _ := f.store.CreateScreen(ctx, Screen{Name: "Second", CompanyID: f.mine.ID})
	start := f.now.Add(-60 * time.Minute)

	f.heartbeat(t, f.myScreen.ID, start, nil)
	f.heartbeat(t, f.myScreen.ID, f.now, nil)
	f.heartbeat(t, second.ID, start, nil)
	f.heartbeat(t, second.ID, start.Add(30*time.Minute), nil)

	u := NewUptimeEstimator(f.store, f.store, 60, f.clock)
	got, err := u.CompanyUptime(ctx, f.mine.ID, 60)
	if err != nil {
		t.Fatal(err)
	}
	if got != 75 {
		t.Errorf("mean of 100 and 50: got %v", got)
	}

	t.Run("no_screens", func(t *testing.T) {
		empty, _ := f.store.CreateCompany(ctx, Company{Name: "Empty"})
		got, err := u.CompanyUptime(ctx, empty.ID, 60)
		if err != nil || got != 0 {
			t.Errorf("expected 0, nil; got %v, %v", got, err)
		}
	})
}

func TestSpanUptime_clamps(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	hbs := []Heartbeat{{Timestamp: base}, {Timestamp: base.Add(2 * time.Hour)}}
	if got := spanUptime(hbs, 60); got != 100 {
		t.Errorf("span larger than window should clamp to 100, got %v", got)
	}
	if got := spanUptime(hbs, 0); got != 0 {
		t.Errorf("zero window should yield 0, got %v", got)
	}
}

func TestUptimeEstimator_caps_oversized_window(t *testing.T) {
	f := newFixture(t)
	f.heartbeat(t, f.myScreen.ID, f.now.Add(-30*time.Minute), nil)
	f.heartbeat(t, f.myScreen.ID, f.now, nil)
	u := NewUptimeEstimator(f.store, f.store, 0, f.clock)
	ctx := context.Background()

	capped, err := u.ScreenUptime(ctx, f.myScreen.ID, MaxUptimeWindowMinutes)
	if err != nil {
		t.Fatal(err)
	}
	got, err := u.ScreenUptime(ctx, f.myScreen.ID, 200_000_000)
	if err != nil {
		t.Fatal(err)
	}
	if got != capped || got <= 0 {
		t.Errorf("oversized window should behave as the one-year cap (%v), got %v", capped, got)
	}
	if u.window(200_000_000) != MaxUptimeWindowMinutes {
		t.Errorf("window not capped: %d", u.window(200_000_000))
	}
}
