package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// StatusHints is an optional fast cache of when each screen last reported.
// It backs listing views only; no behavioral decision reads it.
type StatusHints interface {
	Touch(ctx context.Context, screenID ScreenID, at time.Time) error
	LastSeen(ctx context.Context, screenIDs []ScreenID) (map[ScreenID]time.Time, error)
}

// Options configures a Service. Zero values select the defaults.
type Options struct {
	OnlineThreshold     time.Duration
	UptimeWindowMinutes int
	Now                 func() time.Time
	Hints               StatusHints
	Logger              *slog.Logger
}

// Service exposes the monitoring operations to transports. It composes the
// liveness, attribution, uptime and playback components over one Store.
type Service struct {
	store    Store
	liveness *Evaluator
	resolver *Resolver
	uptime   *UptimeEstimator
	plays    *Aggregator
	hints    StatusHints
	log      *slog.Logger
	now      func() time.Time
}

// NewService returns a Service over store.
func NewService(store Store, opts Options) *Service {
	now := opts.Now
	if now == nil {
		now = utcNow
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	liveness := NewEvaluator(store, store, opts.OnlineThreshold, now)
	return &Service{
		store:    store,
		liveness: liveness,
		resolver: NewResolver(liveness),
		uptime:   NewUptimeEstimator(store, store, opts.UptimeWindowMinutes, now),
		plays:    NewAggregator(store, now),
		hints:    opts.Hints,
		log:      log,
		now:      now,
	}
}

// IngestHeartbeat stamps a heartbeat with the current time and records it.
// An empty playerStatus defaults to "ok".
func (s *Service) IngestHeartbeat(ctx context.Context, screenID ScreenID, currentAdID *AdID, playerStatus string) (time.Time, error) {
	if playerStatus == "" {
		playerStatus = DefaultPlayerStatus
	}
	ts := s.now().UTC()

	_, err := s.store.AppendHeartbeat(ctx, Heartbeat{
		ScreenID:     screenID,
		Timestamp:    ts,
		CurrentAdID:  currentAdID,
		PlayerStatus: playerStatus,
	})
	if err != nil {
		return time.Time{}, err
	}

	if s.hints != nil {
		if err := s.hints.Touch(ctx, screenID, ts); err != nil {
			s.log.Warn("status hint update failed",
				slog.Int64("screen_id", int64(screenID)),
				slog.String("error", err.Error()))
		}
	}
	return ts, nil
}

// IngestPlayback records a completed or failed play. An empty status
// defaults to "success".
func (s *Service) IngestPlayback(ctx context.Context, screenID ScreenID, adID AdID, startedAt, endedAt time.Time, status string) error {
	status = PlaybackStatusOrDefault(status)
	_, err := s.store.AppendPlayback(ctx, PlaybackEvent{
		ScreenID:  screenID,
		AdID:      adID,
		StartedAt: startedAt.UTC(),
		EndedAt:   endedAt.UTC(),
		Status:    status,
	})
	return err
}

// CurrentStatus returns the liveness of a known screen.
func (s *Service) CurrentStatus(ctx context.Context, screenID ScreenID) (LivenessResult, error) {
	if _, err := s.store.Screen(ctx, screenID); err != nil {
		return LivenessResult{ScreenID: screenID}, err
	}
	return s.liveness.Evaluate(ctx, screenID)
}

// Attribution reports whether companyID owns the ad playing on screenID.
func (s *Service) Attribution(ctx context.Context, companyID CompanyID, screenID ScreenID) (AttributionResult, error) {
	if _, err := s.store.Screen(ctx, screenID); err != nil {
		return AttributionResult{ScreenID: screenID}, err
	}
	return s.resolver.Resolve(ctx, companyID, screenID)
}

// Uptime returns a known screen's uptime percentage over the trailing
// windowMinutes.
func (s *Service) Uptime(ctx context.Context, screenID ScreenID, windowMinutes int) (float64, error) {
	if _, err := s.store.Screen(ctx, screenID); err != nil {
		return 0, err
	}
	return s.uptime.ScreenUptime(ctx, screenID, windowMinutes)
}

// CompanyUptime returns the mean uptime across a known company's screens.
func (s *Service) CompanyUptime(ctx context.Context, companyID CompanyID, windowMinutes int) (float64, error) {
	if _, err := s.store.Company(ctx, companyID); err != nil {
		return 0, err
	}
	return s.uptime.CompanyUptime(ctx, companyID, windowMinutes)
}

// AdMetrics returns play counts and play time of a known ad over w.
func (s *Service) AdMetrics(ctx context.Context, adID AdID, w Window) (AdMetrics, error) {
	ad, err := s.store.Ad(ctx, adID)
	if err != nil {
		return AdMetrics{}, err
	}

	totals, err := s.plays.AdTotals(ctx, adID, w)
	if err != nil {
		return AdMetrics{}, fmt.Errorf("aggregate plays: %w", err)
	}

	return AdMetrics{
		AdID:             ad.ID,
		Name:             ad.Name,
		Window:           w,
		WindowStart:      totals.Start,
		WindowEnd:        totals.End,
		PlaysCount:       totals.Plays,
		TotalPlaySeconds: totals.PlaySeconds,
	}, nil
}

// CompanyMetrics returns the play time on a company's screens and the play
// count of each ad it owns over w.
func (s *Service) CompanyMetrics(ctx context.Context, companyID CompanyID, w Window) (CompanyMetrics, error) {
	if _, err := s.store.Company(ctx, companyID); err != nil {
		return CompanyMetrics{}, err
	}

	screens, err := s.store.ScreensByCompany(ctx, companyID)
	if err != nil {
		return CompanyMetrics{}, fmt.Errorf("list screens: %w", err)
	}
	ids := make([]ScreenID, 0, len(screens))
	for _, sc := range screens {
		ids = append(ids, sc.ID)
	}

	// One clock reading so every figure covers the same window.
	start, end := w.Bounds(s.now())
	secs, err := s.plays.screenPlaySeconds(ctx, ids, start, end)
	if err != nil {
		return CompanyMetrics{}, fmt.Errorf("sum play time: %w", err)
	}

	ads, err := s.store.AdsByCompany(ctx, companyID)
	if err != nil {
		return CompanyMetrics{}, fmt.Errorf("list ads: %w", err)
	}
	perAd := make([]AdPlays, 0, len(ads))
	for _, ad := range ads {
		n, err := s.plays.countPlays(ctx, ad.ID, start, end)
		if err != nil {
			return CompanyMetrics{}, fmt.Errorf("count plays for ad %d: %w", ad.ID, err)
		}
		perAd = append(perAd, AdPlays{AdID: ad.ID, Name: ad.Name, PlaysCount: n})
	}

	return CompanyMetrics{
		CompanyID:        companyID,
		Window:           w,
		WindowStart:      start,
		WindowEnd:        end,
		ScreenCount:      len(screens),
		TotalPlaySeconds: secs,
		Ads:              perAd,
	}, nil
}

// ListScreens returns every screen with its status derived from the cached
// last-heartbeat hint. When hints are configured they take precedence over
// the stored timestamp if newer.
func (s *Service) ListScreens(ctx context.Context) ([]Screen, error) {
	screens, err := s.store.ListScreens(ctx)
	if err != nil {
		return nil, err
	}

	var seen map[ScreenID]time.Time
	if s.hints != nil && len(screens) > 0 {
		ids := make([]ScreenID, 0, len(screens))
		for _, sc := range screens {
			ids = append(ids, sc.ID)
		}
		seen, err = s.hints.LastSeen(ctx, ids)
		if err != nil {
			s.log.Warn("status hint lookup failed", slog.String("error", err.Error()))
			seen = nil
		}
	}

	for i := range screens {
		sc := &screens[i]
		if ts, ok := seen[sc.ID]; ok && (sc.LastHeartbeatAt == nil || ts.After(*sc.LastHeartbeatAt)) {
			ts := ts.UTC()
			sc.LastHeartbeatAt = &ts
		}
		sc.Status = StatusOffline
		if sc.LastHeartbeatAt != nil && s.liveness.IsOnline(*sc.LastHeartbeatAt) {
			sc.Status = StatusOnline
		}
	}
	return screens, nil
}

// OnlineCount returns how many screens the listing view reports online.
func (s *Service) OnlineCount(ctx context.Context) (int, error) {
	screens, err := s.ListScreens(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, sc := range screens {
		if sc.Status == StatusOnline {
			n++
		}
	}
	return n, nil
}

// ListAds returns every ad in the catalog.
func (s *Service) ListAds(ctx context.Context) ([]Ad, error) {
	return s.store.ListAds(ctx)
}

// Playlist returns the ads a screen should loop. Every screen currently
// plays the full catalog.
func (s *Service) Playlist(ctx context.Context, screenID ScreenID) ([]Ad, error) {
	if _, err := s.store.Screen(ctx, screenID); err != nil {
		return nil, err
	}
	return s.store.ListAds(ctx)
}

// SampleSetup describes the demo catalog created by SetupSample.
type SampleSetup struct {
	Message   string    `json:"message"`
	CompanyID CompanyID `json:"company_id"`
	ScreenID  ScreenID  `json:"screen_id,omitempty"`
	MyAdID    AdID      `json:"my_ad_id,omitempty"`
	OtherAdID AdID      `json:"other_ad_id,omitempty"`
	Created   bool      `json:"-"`
}

// SetupSample seeds an empty catalog with one company, one screen, an ad the
// company owns and an ad owned by a second company. It does nothing if any
// company already exists.
func (s *Service) SetupSample(ctx context.Context) (SampleSetup, error) {
	companies, err := s.store.ListCompanies(ctx)
	if err != nil {
		return SampleSetup{}, fmt.Errorf("list companies: %w", err)
	}
	if len(companies) > 0 {
		return SampleSetup{Message: "sample already exists", CompanyID: companies[0].ID}, nil
	}

	central, err := s.store.CreateCompany(ctx, Company{Name: "Central Company"})
	if err != nil {
		return SampleSetup{}, err
	}
	other, err := s.store.CreateCompany(ctx, Company{Name: "Other Company"})
	if err != nil {
		return SampleSetup{}, err
	}
	screen, err := s.store.CreateScreen(ctx, Screen{Name: "Demo Screen 1", CompanyID: central.ID})
	if err != nil {
		return SampleSetup{}, err
	}
	mine, err := s.store.CreateAd(ctx, Ad{Name: "Vid 1", OwnerCompanyID: central.ID, FileURL: "/media/Vid1.mp4", DurationSec: 10})
	if err != nil {
		return SampleSetup{}, err
	}
	theirs, err := s.store.CreateAd(ctx, Ad{Name: "Vid 2", OwnerCompanyID: other.ID, FileURL: "/media/Vid2.mp4", DurationSec: 10})
	if err != nil {
		return SampleSetup{}, err
	}

	s.log.Info("sample catalog created", slog.Int64("company_id", int64(central.ID)))
	return SampleSetup{
		Message:   "sample data created",
		CompanyID: central.ID,
		ScreenID:  screen.ID,
		MyAdID:    mine.ID,
		OtherAdID: theirs.ID,
		Created:   true,
	}, nil
}

// CreateScreen provisions a new offline screen.
func (s *Service) CreateScreen(ctx context.Context, name string, companyID CompanyID) (Screen, error) {
	return s.store.CreateScreen(ctx, Screen{Name: name, CompanyID: companyID})
}
