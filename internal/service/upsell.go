package service

import (
	"time"

	"github.com/hpol369/ItsNadchos/internal/models"
)

const (
	upsellMinTotalMessages = 5
	upsellMessageInterval  = 10
	upsellCooldown         = 24 * time.Hour
	tier1MessageThreshold  = 15
	tier2MessageThreshold  = 40
	tier2MinAccountAge     = 72 * time.Hour
)

// UpsellInput is everything the decision needs, read once before deciding.
type UpsellInput struct {
	Now              time.Time
	TotalMessages    int
	AccountCreatedAt time.Time
	State            *models.ConversationState
	OwnedTier        models.Tier
}

type UpsellDecision struct {
	ShouldShow bool
	Tier       models.Tier
}

// DecideUpsell selects whether to attach a purchase prompt to the current
// reply and which package tier to pitch. It never fires during the cooldown
// window, before the engagement floor, or more often than every
// upsellMessageInterval messages.
func DecideUpsell(in UpsellInput) UpsellDecision {
	if in.State == nil {
		return UpsellDecision{}
	}
	if in.State.UpsellCooldownUntil != nil && in.Now.Before(*in.State.UpsellCooldownUntil) {
		return UpsellDecision{}
	}
	if in.TotalMessages < upsellMinTotalMessages {
		return UpsellDecision{}
	}
	if in.State.MessagesSinceUpsell < upsellMessageInterval {
		return UpsellDecision{}
	}

	tier := nextTier(in)
	if tier == "" {
		return UpsellDecision{}
	}
	return UpsellDecision{ShouldShow: true, Tier: tier}
}

// nextTier picks the cheapest tier the user qualifies for but does not own.
func nextTier(in UpsellInput) models.Tier {
	switch in.OwnedTier {
	case models.TierFree:
		if in.TotalMessages >= tier1MessageThreshold {
			return models.TierOne
		}
	case models.TierOne:
		if in.TotalMessages >= tier2MessageThreshold && in.Now.Sub(in.AccountCreatedAt) >= tier2MinAccountAge {
			return models.TierTwo
		}
	}
	return ""
}
