package monitor

import (
	"context"
	"errors"
	"time"
)

// DefaultOnlineThreshold is how old a screen's latest heartbeat may be for
// the screen to still count as online.
const DefaultOnlineThreshold = 120 * time.Second

// Messages attached to liveness results that carry no current ad.
const (
	MsgNoHeartbeats = "no heartbeats yet"
	MsgNoAdReported = "no ad currently reported"
	MsgUnknownAd    = "unknown ad"
)

// Evaluator derives a screen's online state and current ad from its latest
// heartbeat.
type Evaluator struct {
	events    EventStore
	ads       adLookup
	threshold time.Duration
	now       func() time.Time
}

type adLookup interface {
	Ad(ctx context.Context, id AdID) (Ad, error)
}

// NewEvaluator returns an Evaluator. If threshold <= 0,
// DefaultOnlineThreshold is used; if now is nil, the UTC wall clock is used.
func NewEvaluator(events EventStore, ads adLookup, threshold time.Duration, now func() time.Time) *Evaluator {
	if threshold <= 0 {
		threshold = DefaultOnlineThreshold
	}
	if now == nil {
		now = utcNow
	}
	return &Evaluator{events: events, ads: ads, threshold: threshold, now: now}
}

// Evaluate reports the liveness of screenID as of now. It does not check
// that the screen exists; a screen with no heartbeats is simply offline.
func (e *Evaluator) Evaluate(ctx context.Context, screenID ScreenID) (LivenessResult, error) {
	res := LivenessResult{ScreenID: screenID}

	hb, ok, err := e.events.LatestHeartbeat(ctx, screenID)
	if err != nil {
		return res, err
	}
	if !ok {
		res.Message = MsgNoHeartbeats
		return res, nil
	}

	ts := hb.Timestamp.UTC()
	res.LastHeartbeatAt = &ts
	res.PlayerStatus = hb.PlayerStatus
	res.Online = e.IsOnline(hb.Timestamp)

	if hb.CurrentAdID == nil {
		res.Message = MsgNoAdReported
		return res, nil
	}

	ad, err := e.ads.Ad(ctx, *hb.CurrentAdID)
	switch {
	case errors.Is(err, ErrNotFound):
		res.Message = MsgUnknownAd
		return res, nil
	case err != nil:
		return res, err
	}

	res.CurrentAd = &AdSummary{ID: ad.ID, Name: ad.Name, OwnerCompanyID: ad.OwnerCompanyID}
	return res, nil
}

// IsOnline reports whether a heartbeat at ts is recent enough. The boundary
// is inclusive and future timestamps from skewed clocks count as online.
func (e *Evaluator) IsOnline(ts time.Time) bool {
	return e.now().Sub(ts) <= e.threshold
}

// Threshold returns the configured online threshold.
func (e *Evaluator) Threshold() time.Duration {
	return e.threshold
}

func utcNow() time.Time {
	return time.Now().UTC()
}
