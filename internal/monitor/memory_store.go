package monitor

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// InMemoryStore is a concurrency-safe in-memory implementation of Store.
// Heartbeats and playback events are kept in insertion order; ids are
// assigned from per-table sequences starting at 1.
type InMemoryStore struct {
	mu sync.RWMutex

	companies map[CompanyID]Company
	screens   map[ScreenID]*Screen
	ads       map[AdID]Ad

	heartbeats map[ScreenID][]Heartbeat
	playbacks  []PlaybackEvent

	nextCompany   CompanyID
	nextScreen    ScreenID
	nextAd        AdID
	nextHeartbeat HeartbeatID
	nextPlayback  PlaybackID
}

var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore returns a new empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		companies:  make(map[CompanyID]Company),
		screens:    make(map[ScreenID]*Screen),
		ads:        make(map[AdID]Ad),
		heartbeats: make(map[ScreenID][]Heartbeat),
	}
}

// AppendHeartbeat implements EventStore.AppendHeartbeat.
func (s *InMemoryStore) AppendHeartbeat(_ context.Context, hb Heartbeat) (HeartbeatID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	screen, ok := s.screens[hb.ScreenID]
	if !ok {
		return 0, fmt.Errorf("screen %d: %w", hb.ScreenID, ErrNotFound)
	}

	s.nextHeartbeat++
	hb.ID = s.nextHeartbeat
	s.heartbeats[hb.ScreenID] = append(s.heartbeats[hb.ScreenID], hb)

	// A delayed heartbeat must not roll the cached hint backwards.
	if screen.LastHeartbeatAt == nil || !hb.Timestamp.Before(*screen.LastHeartbeatAt) {
		ts := hb.Timestamp
		screen.LastHeartbeatAt = &ts
		screen.Status = StatusOnline
	}

	return hb.ID, nil
}

// AppendPlayback implements EventStore.AppendPlayback.
func (s *InMemoryStore) AppendPlayback(_ context.Context, ev PlaybackEvent) (PlaybackID, error) {
	if err := ev.Validate(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.screens[ev.ScreenID]; !ok {
		return 0, fmt.Errorf("screen %d: %w", ev.ScreenID, ErrNotFound)
	}
	if _, ok := s.ads[ev.AdID]; !ok {
		return 0, fmt.Errorf("ad %d: %w", ev.AdID, ErrNotFound)
	}

	s.nextPlayback++
	ev.ID = s.nextPlayback
	s.playbacks = append(s.playbacks, ev)
	return ev.ID, nil
}

// LatestHeartbeat implements EventStore.LatestHeartbeat.
func (s *InMemoryStore) LatestHeartbeat(_ context.Context, screenID ScreenID) (Heartbeat, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		latest Heartbeat
		found  bool
	)
	// >= so that equal timestamps resolve to the later insertion.
	for _, hb := range s.heartbeats[screenID] {
		if !found || !hb.Timestamp.Before(latest.Timestamp) {
			latest = hb
			found = true
		}
	}
	return latest, found, nil
}

// HeartbeatsInWindow implements EventStore.HeartbeatsInWindow.
func (s *InMemoryStore) HeartbeatsInWindow(_ context.Context, screenID ScreenID, from, to time.Time) ([]Heartbeat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Heartbeat
	for _, hb := range s.heartbeats[screenID] {
		if hb.Timestamp.Before(from) || hb.Timestamp.After(to) {
			continue
		}
		out = append(out, hb)
	}
	// Stable sort keeps insertion order among equal timestamps.
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// PlaybackEventsInRange implements EventStore.PlaybackEventsInRange.
func (s *InMemoryStore) PlaybackEventsInRange(_ context.Context, f PlaybackFilter) ([]PlaybackEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []PlaybackEvent
	for _, ev := range s.playbacks {
		if f.Matches(ev) {
			out = append(out, ev)
		}
	}
	return out, nil
}

// Company implements Catalog.Company.
func (s *InMemoryStore) Company(_ context.Context, id CompanyID) (Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.companies[id]
	if !ok {
		return Company{}, fmt.Errorf("company %d: %w", id, ErrNotFound)
	}
	return c, nil
}

// Screen implements Catalog.Screen.
func (s *InMemoryStore) Screen(_ context.Context, id ScreenID) (Screen, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sc, ok := s.screens[id]
	if !ok {
		return Screen{}, fmt.Errorf("screen %d: %w", id, ErrNotFound)
	}
	return copyScreen(sc), nil
}

// Ad implements Catalog.Ad.
func (s *InMemoryStore) Ad(_ context.Context, id AdID) (Ad, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.ads[id]
	if !ok {
		return Ad{}, fmt.Errorf("ad %d: %w", id, ErrNotFound)
	}
	return a, nil
}

// ScreensByCompany implements Catalog.ScreensByCompany.
func (s *InMemoryStore) ScreensByCompany(_ context.Context, id CompanyID) ([]Screen, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Screen
	for _, sc := range s.screens {
		if sc.CompanyID == id {
			out = append(out, copyScreen(sc))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// AdsByCompany implements Catalog.AdsByCompany.
func (s *InMemoryStore) AdsByCompany(_ context.Context, id CompanyID) ([]Ad, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Ad
	for _, a := range s.ads {
		if a.OwnerCompanyID == id {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListScreens implements Catalog.ListScreens.
func (s *InMemoryStore) ListScreens(_ context.Context) ([]Screen, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Screen, 0, len(s.screens))
	for _, sc := range s.screens {
		out = append(out, copyScreen(sc))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListAds implements Catalog.ListAds.
func (s *InMemoryStore) ListAds(_ context.Context) ([]Ad, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Ad, 0, len(s.ads))
	for _, a := range s.ads {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListCompanies implements Catalog.ListCompanies.
func (s *InMemoryStore) ListCompanies(_ context.Context) ([]Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Company, 0, len(s.companies))
	for _, c := range s.companies {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// CreateCompany implements Catalog.CreateCompany. A zero ID is assigned
// from the sequence.
func (s *InMemoryStore) CreateCompany(_ context.Context, c Company) (Company, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == 0 {
		s.nextCompany++
		c.ID = s.nextCompany
	} else if c.ID > s.nextCompany {
		s.nextCompany = c.ID
	}
	s.companies[c.ID] = c
	return c, nil
}

// CreateScreen implements Catalog.CreateScreen. New screens start offline
// with no heartbeat.
func (s *InMemoryStore) CreateScreen(_ context.Context, sc Screen) (Screen, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sc.ID == 0 {
		s.nextScreen++
		sc.ID = s.nextScreen
	} else if sc.ID > s.nextScreen {
		s.nextScreen = sc.ID
	}
	sc.Status = StatusOffline
	sc.LastHeartbeatAt = nil
	s.screens[sc.ID] = &sc
	return sc, nil
}

// CreateAd implements Catalog.CreateAd.
func (s *InMemoryStore) CreateAd(_ context.Context, a Ad) (Ad, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.ID == 0 {
		s.nextAd++
		a.ID = s.nextAd
	} else if a.ID > s.nextAd {
		s.nextAd = a.ID
	}
	s.ads[a.ID] = a
	return a, nil
}

// DeleteAd removes an ad from the catalog. Events that reference it are
// kept and become dangling references.
func (s *InMemoryStore) DeleteAd(_ context.Context, id AdID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.ads, id)
}

// copyScreen returns a value copy that shares no pointers with the store.
// Caller must hold s.mu.
func copyScreen(sc *Screen) Screen {
	out := *sc
	if sc.LastHeartbeatAt != nil {
		ts := *sc.LastHeartbeatAt
		out.LastHeartbeatAt = &ts
	}
	return out
}
