package monitor

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"
)

type stubHints struct {
	touched map[ScreenID]time.Time
	err     error
}

func (s *stubHints) Touch(_ context.Context, id ScreenID, at time.Time) error {
	if s.err != nil {
		return s.err
	}
	if s.touched == nil {
		s.touched = make(map[ScreenID]time.Time)
	}
	s.touched[id] = at
	return nil
}

func (s *stubHints) LastSeen(_ context.Context, ids []ScreenID) (map[ScreenID]time.Time, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make(map[ScreenID]time.Time)
	for _, id := range ids {
		if ts, ok := s.touched[id]; ok {
			out[id] = ts
		}
	}
	return out, nil
}

func newTestService(f *fixture, hints StatusHints) *Service {
	opts := Options{
		Now:    f.clock,
		Logger: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})),
	}
	if hints != nil {
		opts.Hints = hints
	}
	return NewService(f.store, opts)
}

func TestService_IngestHeartbeat(t *testing.T) {
	f := newFixture(t)
	hints := &stubHints{}
	svc := newTestService(f, hints)
	ctx := context.Background()

	ts, err := svc.IngestHeartbeat(ctx, f.myScreen.ID, adRef(f.myAd.ID), "")
	if err != nil {
		t.Fatal(err)
	}
	if !ts.Equal(f.now) {
		t.Errorf("heartbeat must be stamped with server time, got %v", ts)
	}

	hb, ok, _ := f.store.LatestHeartbeat(ctx, f.myScreen.ID)
	if !ok || hb.PlayerStatus != DefaultPlayerStatus {
		t.Errorf("player status should default to %q, got %+v", DefaultPlayerStatus, hb)
	}
	if !hints.touched[f.myScreen.ID].Equal(f.now) {
		t.Error("hint cache not touched")
	}

	t.Run("unknown_screen", func(t *testing.T) {
		if _, err := svc.IngestHeartbeat(ctx, 404, nil, "ok"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("hint_failure_is_not_fatal", func(t *testing.T) {
		svc := newTestService(f, &stubHints{err: errors.New("redis down")})
		if _, err := svc.IngestHeartbeat(ctx, f.myScreen.ID, nil, "ok"); err != nil {
			t.Errorf("expected success, got %v", err)
		}
	})
}

func TestService_IngestPlayback(t *testing.T) {
	f := newFixture(t)
	svc := newTestService(f, nil)
	ctx := context.Background()

	if err := svc.IngestPlayback(ctx, f.myScreen.ID, f.myAd.ID, f.now, f.now.Add(10*time.Second), ""); err != nil {
		t.Fatal(err)
	}
	evs, _ := f.store.PlaybackEventsInRange(ctx, PlaybackFilter{From: f.now, To: f.now.Add(time.Second)})
	if len(evs) != 1 || evs[0].Status != DefaultPlaybackStatus {
		t.Errorf("expected one %q event, got %+v", DefaultPlaybackStatus, evs)
	}

	err := svc.IngestPlayback(ctx, f.myScreen.ID, f.myAd.ID, f.now, f.now.Add(-time.Second), "success")
	if !errors.Is(err, ErrInvalidRange) {
		t.Errorf("expected ErrInvalidRange, got %v", err)
	}
}

func TestService_unknown_entities(t *testing.T) {
	f := newFixture(t)
	svc := newTestService(f, nil)
	ctx := context.Background()

	checks := map[string]error{}
	_, checks["CurrentStatus"] = svc.CurrentStatus(ctx, 404)
	_, checks["Attribution"] = svc.Attribution(ctx, f.mine.ID, 404)
	_, checks["Uptime"] = svc.Uptime(ctx, 404, 60)
	_, checks["CompanyUptime"] = svc.CompanyUptime(ctx, 404, 60)
	_, checks["AdMetrics"] = svc.AdMetrics(ctx, 404, WindowToday)
	_, checks["CompanyMetrics"] = svc.CompanyMetrics(ctx, 404, WindowToday)
	_, checks["Playlist"] = svc.Playlist(ctx, 404)

	for name, err := range checks {
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("%s: expected ErrNotFound, got %v", name, err)
		}
	}
}

func TestService_AdMetrics(t *testing.T) {
	f := newFixture(t)
	svc := newTestService(f, nil)
	ctx := context.Background()
	f.playback(t, f.myScreen.ID, f.myAd.ID, f.now, f.now.Add(10*time.Second), "success")
	f.playback(t, f.theirScreen.ID, f.myAd.ID, f.now, f.now.Add(5*time.Second), "error")

	m, err := svc.AdMetrics(ctx, f.myAd.ID, WindowToday)
	if err != nil {
		t.Fatal(err)
	}
	if m.Name != "Vid 1" || m.PlaysCount != 2 || m.TotalPlaySeconds != 15 {
		t.Errorf("unexpected metrics: %+v", m)
	}
	if !m.WindowStart.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) || !m.WindowEnd.Equal(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("window bounds: [%v, %v)", m.WindowStart, m.WindowEnd)
	}
}

func TestService_CompanyMetrics(t *testing.T) {
	f := newFixture(t)
	svc := newTestService(f, nil)
	ctx := context.Background()
	f.playback(t, f.myScreen.ID, f.theirAd.ID, f.now, f.now.Add(30*time.Second), "success")
	f.playback(t, f.theirScreen.ID, f.myAd.ID, f.now, f.now.Add(10*time.Second), "success")

	m, err := svc.CompanyMetrics(ctx, f.mine.ID, WindowMonth)
	if err != nil {
		t.Fatal(err)
	}
	if m.ScreenCount != 1 || m.TotalPlaySeconds != 30 {
		t.Errorf("play time is measured on the company's screens: %+v", m)
	}
	if len(m.Ads) != 1 || m.Ads[0].AdID != f.myAd.ID || m.Ads[0].PlaysCount != 1 {
		t.Errorf("plays are counted for the company's ads wherever shown: %+v", m.Ads)
	}
}

func TestService_ListScreens(t *testing.T) {
	f := newFixture(t)
	hints := &stubHints{}
	svc := newTestService(f, hints)
	ctx := context.Background()

	if _, err := svc.IngestHeartbeat(ctx, f.myScreen.ID, nil, "ok"); err != nil {
		t.Fatal(err)
	}

	screens, err := svc.ListScreens(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if screens[0].Status != StatusOnline || screens[1].Status != StatusOffline {
		t.Errorf("unexpected statuses: %s, %s", screens[0].Status, screens[1].Status)
	}

	t.Run("status_goes_stale", func(t *testing.T) {
		f.now = f.now.Add(DefaultOnlineThreshold + time.Second)
		n, _ := svc.OnlineCount(ctx)
		if n != 0 {
			t.Errorf("expected 0 online, got %d", n)
		}
	})

	t.Run("newer_hint_wins", func(t *testing.T) {
		hints.touched[f.theirScreen.ID] = f.now
		screens, _ := svc.ListScreens(ctx)
		if screens[1].Status != StatusOnline || !screens[1].LastHeartbeatAt.Equal(f.now) {
			t.Errorf("hint should surface as online: %+v", screens[1])
		}
	})
}

func TestService_Playlist_and_CreateScreen(t *testing.T) {
	f := newFixture(t)
	svc := newTestService(f, nil)
	ctx := context.Background()

	ads, err := svc.Playlist(ctx, f.myScreen.ID)
	if err != nil || len(ads) != 2 {
		t.Errorf("playlist: got %v, %v", ads, err)
	}

	sc, err := svc.CreateScreen(ctx, "Lobby", f.mine.ID)
	if err != nil {
		t.Fatal(err)
	}
	res, _ := svc.CurrentStatus(ctx, sc.ID)
	if res.Online || res.Message != MsgNoHeartbeats {
		t.Errorf("new screen should be offline with no heartbeats: %+v", res)
	}
}

func TestService_SetupSample(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	svc := NewService(store, Options{Logger: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))})

	res, err := svc.SetupSample(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Created || res.ScreenID == 0 || res.MyAdID == 0 || res.OtherAdID == 0 {
		t.Fatalf("unexpected setup: %+v", res)
	}

	attr, err := svc.Attribution(ctx, res.CompanyID, res.ScreenID)
	if err != nil || attr.Message != MsgNoHeartbeats {
		t.Errorf("fresh sample screen: %+v, %v", attr, err)
	}
	mine, _ := store.Ad(ctx, res.MyAdID)
	theirs, _ := store.Ad(ctx, res.OtherAdID)
	if mine.OwnerCompanyID != res.CompanyID || theirs.OwnerCompanyID == res.CompanyID {
		t.Errorf("ad owners: mine=%d theirs=%d company=%d", mine.OwnerCompanyID, theirs.OwnerCompanyID, res.CompanyID)
	}

	again, err := svc.SetupSample(ctx)
	if err != nil || again.Created || again.CompanyID != res.CompanyID {
		t.Errorf("second call should be a no-op: %+v, %v", again, err)
	}
	screens, _ := store.ListScreens(ctx)
	if len(screens) != 1 {
		t.Errorf("expected 1 screen after repeated setup, got %d", len(screens))
	}
}

func TestService_metrics_read_the_clock_once(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lastSecond := time.Date(2024, 1, 1, 23, 59, 59, 0, time.UTC)
	f.playback(t, f.myScreen.ID, f.myAd.ID, lastSecond.Add(-time.Minute), lastSecond.Add(-50*time.Second), "success")

	// The first reading falls on Jan 1, every later one on Jan 2.
	newSvc := func() *Service {
		calls := 0
		return NewService(f.store, Options{
			Logger: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})),
			Now: func() time.Time {
				calls++
				if calls == 1 {
					return lastSecond
				}
				return lastSecond.Add(2 * time.Second)
			},
		})
	}

	m, err := newSvc().AdMetrics(ctx, f.myAd.ID, WindowToday)
	if err != nil {
		t.Fatal(err)
	}
	if m.PlaysCount != 1 || m.TotalPlaySeconds != 10 || m.WindowStart.Day() != 1 {
		t.Errorf("ad metrics mix two days: %+v", m)
	}

	cm, err := newSvc().CompanyMetrics(ctx, f.mine.ID, WindowToday)
	if err != nil {
		t.Fatal(err)
	}
	if cm.TotalPlaySeconds != 10 || len(cm.Ads) != 1 || cm.Ads[0].PlaysCount != 1 || cm.WindowStart.Day() != 1 {
		t.Errorf("company metrics mix two days: %+v", cm)
	}
}
