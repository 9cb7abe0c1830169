package monitor

import "time"

// CompanyID identifies an organization owning screens and/or ads.
type CompanyID int64

// ScreenID identifies a physical display endpoint.
type ScreenID int64

// AdID identifies a piece of creative content.
type AdID int64

// HeartbeatID identifies a stored heartbeat.
type HeartbeatID int64

// PlaybackID identifies a stored playback event.
type PlaybackID int64

// Screen status values. The status stored on a Screen is a cached hint;
// authoritative liveness comes from the Evaluator.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Defaults applied when a client omits the optional status fields.
const (
	DefaultPlayerStatus   = "ok"
	DefaultPlaybackStatus = "success"
)

// PlaybackStatusOrDefault returns status, or DefaultPlaybackStatus when the
// client sent none.
func PlaybackStatusOrDefault(status string) string {
	if status == "" {
		return DefaultPlaybackStatus
	}
	return status
}

// Company is a partition key for multi-tenant attribution.
type Company struct {
	ID   CompanyID `json:"id"`
	Name string    `json:"name"`
}

// Screen is a display endpoint owned by a company.
type Screen struct {
	ID        ScreenID  `json:"id"`
	Name      string    `json:"name"`
	CompanyID CompanyID `json:"company_id"`

	// Denormalized from the latest ingested heartbeat.
	Status          string     `json:"status"`
	LastHeartbeatAt *time.Time `json:"last_heartbeat_at"`
}

// Ad is a piece of creative content. DurationSec is advisory only.
type Ad struct {
	ID             AdID      `json:"id"`
	Name           string    `json:"name"`
	OwnerCompanyID CompanyID `json:"owner_company_id"`
	FileURL        string    `json:"file_url,omitempty"`
	DurationSec    int       `json:"duration_sec,omitempty"`
}

// Heartbeat records that a screen reported, at Timestamp, that it was playing
// CurrentAdID (nil when idle) with the given player status.
type Heartbeat struct {
	ID           HeartbeatID
	ScreenID     ScreenID
	Timestamp    time.Time
	CurrentAdID  *AdID
	PlayerStatus string
}

// PlaybackEvent records one play of an ad on a screen. A zero StartedAt or
// EndedAt means the timestamp is missing in storage.
type PlaybackEvent struct {
	ID        PlaybackID
	ScreenID  ScreenID
	AdID      AdID
	StartedAt time.Time
	EndedAt   time.Time
	Status    string
}

// Duration returns the play span and whether it can be measured.
func (e PlaybackEvent) Duration() (time.Duration, bool) {
	if e.StartedAt.IsZero() || e.EndedAt.IsZero() {
		return 0, false
	}
	d := e.EndedAt.Sub(e.StartedAt)
	if d < 0 {
		return 0, false
	}
	return d, true
}

// Validate reports ErrInvalidRange when the event ends before it starts.
func (e PlaybackEvent) Validate() error {
	if e.EndedAt.Before(e.StartedAt) {
		return ErrInvalidRange
	}
	return nil
}

// PlaybackFilter selects playback events whose StartedAt lies in [From, To).
// A nil AdID matches any ad; an empty ScreenIDs matches any screen.
type PlaybackFilter struct {
	AdID      *AdID
	ScreenIDs []ScreenID
	From      time.Time
	To        time.Time
}

// Matches reports whether ev satisfies the filter.
func (f PlaybackFilter) Matches(ev PlaybackEvent) bool {
	if f.AdID != nil && ev.AdID != *f.AdID {
		return false
	}
	if len(f.ScreenIDs) > 0 {
		found := false
		for _, id := range f.ScreenIDs {
			if id == ev.ScreenID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if ev.StartedAt.IsZero() {
		return false
	}
	return !ev.StartedAt.Before(f.From) && ev.StartedAt.Before(f.To)
}

// AdSummary is the slice of an Ad surfaced alongside liveness results.
type AdSummary struct {
	ID             AdID      `json:"id"`
	Name           string    `json:"name"`
	OwnerCompanyID CompanyID `json:"owner_company_id"`
}

// LivenessResult answers "is this screen online, and what is it playing".
type LivenessResult struct {
	ScreenID        ScreenID   `json:"screen_id"`
	Online          bool       `json:"online"`
	CurrentAd       *AdSummary `json:"current_ad"`
	LastHeartbeatAt *time.Time `json:"last_heartbeat_at"`
	PlayerStatus    string     `json:"player_status,omitempty"`
	Message         string     `json:"message,omitempty"`
}

// AttributedAd is the current ad annotated with ownership for a requester.
type AttributedAd struct {
	ID             AdID      `json:"id"`
	Name           string    `json:"name"`
	OwnerCompanyID CompanyID `json:"owner_company_id"`
	IsYours        bool      `json:"is_yours"`
}

// AttributionResult answers "is my ad playing on this screen".
// CurrentAd is nil when nothing is playing, so is_yours is absent.
type AttributionResult struct {
	ScreenID        ScreenID      `json:"screen_id"`
	Online          bool          `json:"online"`
	CurrentAd       *AttributedAd `json:"current_ad"`
	LastHeartbeatAt *time.Time    `json:"last_heartbeat_at,omitempty"`
	Message         string        `json:"message,omitempty"`
}

// AdMetrics aggregates playback of one ad over a calendar window.
type AdMetrics struct {
	AdID             AdID      `json:"ad_id"`
	Name             string    `json:"name"`
	Window           Window    `json:"window"`
	WindowStart      time.Time `json:"window_start_utc"`
	WindowEnd        time.Time `json:"window_end_utc"`
	PlaysCount       int       `json:"plays_count"`
	TotalPlaySeconds float64   `json:"total_play_seconds"`
}

// AdPlays is one row of a company's per-ad breakdown.
type AdPlays struct {
	AdID       AdID   `json:"ad_id"`
	Name       string `json:"name"`
	PlaysCount int    `json:"plays_count"`
}

// CompanyMetrics aggregates playback for a company over a calendar window.
type CompanyMetrics struct {
	CompanyID        CompanyID `json:"company_id"`
	Window           Window    `json:"window"`
	WindowStart      time.Time `json:"window_start_utc"`
	WindowEnd        time.Time `json:"window_end_utc"`
	ScreenCount      int       `json:"screen_count"`
	TotalPlaySeconds float64   `json:"total_play_seconds"`
	Ads              []AdPlays `json:"ads"`
}
