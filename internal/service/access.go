package service

import (
	"time"

	"github.com/iliyamo/limited-drops/internal/model"
)

// AccessTier is the tier under which access was granted.
type AccessTier string

const (
	TierRegular     AccessTier = "REGULAR"
	TierEarlyAccess AccessTier = "EARLY_ACCESS"
)

const (
	ReasonEnded            = "drop has ended"
	ReasonMembersOnly      = "members only"
	ReasonEarlyMembersOnly = "early access for members only"
	ReasonNotStarted       = "drop has not started"
)

// AccessResult is the outcome of EvaluateAccess. Tier is empty when access
// is denied and Reason is empty when it is granted.
type AccessResult struct {
	Granted bool       `json:"granted"`
	Tier    AccessTier `json:"tier,omitempty"`
	Reason  string     `json:"reason,omitempty"`
}

// EvaluateAccess decides whether a caller may act on a drop at now. Rules
// apply in order and the first match wins. Inside the early-access window
// non-members are denied even when the drop is not member-only.
func EvaluateAccess(d *model.Drop, now time.Time, isMember bool) AccessResult {
	if d.Status.Closed() {
		return AccessResult{Reason: ReasonEnded}
	}
	if d.MemberOnly && !isMember {
		return AccessResult{Reason: ReasonMembersOnly}
	}
	if d.EarlyAccessStart != nil && !now.Before(*d.EarlyAccessStart) && now.Before(d.StartTime) {
		if isMember {
			return AccessResult{Granted: true, Tier: TierEarlyAccess}
		}
		return AccessResult{Reason: ReasonEarlyMembersOnly}
	}
	if !now.Before(d.StartTime) {
		return AccessResult{Granted: true, Tier: TierRegular}
	}
	return AccessResult{Reason: ReasonNotStarted}
}
