package monitor

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a referenced screen, ad or company does
	// not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidRange is returned when a playback event ends before it starts.
	ErrInvalidRange = errors.New("ended_at precedes started_at")
)

// EventStore is the append-only log of heartbeats and playback events.
// Implementations must be safe for concurrent use.
type EventStore interface {
	// AppendHeartbeat records hb and advances the screen's cached
	// last-heartbeat hint if hb is not older than it. Returns ErrNotFound if
	// the screen does not exist. Timestamps are not validated.
	AppendHeartbeat(ctx context.Context, hb Heartbeat) (HeartbeatID, error)

	// AppendPlayback records ev. Returns ErrNotFound if the screen or ad does
	// not exist and ErrInvalidRange if ev ends before it starts.
	AppendPlayback(ctx context.Context, ev PlaybackEvent) (PlaybackID, error)

	// LatestHeartbeat returns the heartbeat with the greatest timestamp for
	// the screen; ties go to the most recently inserted. ok is false if the
	// screen has never reported.
	LatestHeartbeat(ctx context.Context, screenID ScreenID) (hb Heartbeat, ok bool, err error)

	// HeartbeatsInWindow returns heartbeats with from <= timestamp <= to,
	// ordered by timestamp then insertion.
	HeartbeatsInWindow(ctx context.Context, screenID ScreenID, from, to time.Time) ([]Heartbeat, error)

	// PlaybackEventsInRange returns the events selected by f.
	PlaybackEventsInRange(ctx context.Context, f PlaybackFilter) ([]PlaybackEvent, error)
}

// Catalog provides the screens, ads and companies the events refer to.
// Lookups return ErrNotFound for unknown ids.
type Catalog interface {
	Company(ctx context.Context, id CompanyID) (Company, error)
	Screen(ctx context.Context, id ScreenID) (Screen, error)
	Ad(ctx context.Context, id AdID) (Ad, error)

	ScreensByCompany(ctx context.Context, id CompanyID) ([]Screen, error)
	AdsByCompany(ctx context.Context, id CompanyID) ([]Ad, error)
	ListScreens(ctx context.Context) ([]Screen, error)
	ListAds(ctx context.Context) ([]Ad, error)
	ListCompanies(ctx context.Context) ([]Company, error)

	CreateCompany(ctx context.Context, c Company) (Company, error)
	CreateScreen(ctx context.Context, s Screen) (Screen, error)
	CreateAd(ctx context.Context, a Ad) (Ad, error)
}

// Store combines the event log with the catalog it references.
type Store interface {
	EventStore
	Catalog
}
