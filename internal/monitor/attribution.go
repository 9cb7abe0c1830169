package monitor

import "context"

// Resolver decides whether the ad a screen reports as playing belongs to a
// requesting company. Ownership is plain equality of company ids.
type Resolver struct {
	liveness *Evaluator
}

// NewResolver returns a Resolver built on the given Evaluator.
func NewResolver(liveness *Evaluator) *Resolver {
	return &Resolver{liveness: liveness}
}

// Resolve evaluates screenID's liveness and annotates its current ad, if
// any, with whether companyID owns it.
func (r *Resolver) Resolve(ctx context.Context, companyID CompanyID, screenID ScreenID) (AttributionResult, error) {
	live, err := r.liveness.Evaluate(ctx, screenID)
	if err != nil {
		return AttributionResult{ScreenID: screenID}, err
	}

	res := AttributionResult{
		ScreenID:        screenID,
		Online:          live.Online,
		LastHeartbeatAt: live.LastHeartbeatAt,
		Message:         live.Message,
	}
	if live.CurrentAd != nil {
		res.CurrentAd = &AttributedAd{
			ID:             live.CurrentAd.ID,
			Name:           live.CurrentAd.Name,
			OwnerCompanyID: live.CurrentAd.OwnerCompanyID,
			IsYours:        live.CurrentAd.OwnerCompanyID == companyID,
		}
	}
	return res, nil
}
