package service

import (
	"testing"
	"time"

	"github.com/hpol369/ItsNadchos/internal/models"
)

func TestDecideUpsell(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	oldAccount := now.Add(-30 * 24 * time.Hour)
	youngAccount := now.Add(-24 * time.Hour)
	activeCooldown := now.Add(12 * time.Hour)
	expiredCooldown := now.Add(-time.Hour)

	tests := []struct {
		name     string
		in       UpsellInput
		wantShow bool
		wantTier models.Tier
	}{
		{
			name: "no state",
			in:   UpsellInput{Now: now},
		},
		{
			name: "below engagement floor",
			in: UpsellInput{
				Now: now, TotalMessages: 4, AccountCreatedAt: oldAccount,
				State:     &models.ConversationState{MessagesSinceUpsell: 10},
				OwnedTier: models.TierFree,
			},
		},
		{
			name: "too soon since last offer",
			in: UpsellInput{
				Now: now, TotalMessages: 20, AccountCreatedAt: oldAccount,
				State:     &models.ConversationState{MessagesSinceUpsell: 9},
				OwnedTier: models.TierFree,
			},
		},
		{
			name: "cooldown active",
			in: UpsellInput{
				Now: now, TotalMessages: 20, AccountCreatedAt: oldAccount,
				State:     &models.ConversationState{MessagesSinceUpsell: 10, UpsellCooldownUntil: &activeCooldown},
				OwnedTier: models.TierFree,
			},
		},
		{
			name: "cooldown expired offers tier1",
			in: UpsellInput{
				Now: now, TotalMessages: 20, AccountCreatedAt: oldAccount,
				State:     &models.ConversationState{MessagesSinceUpsell: 10, UpsellCooldownUntil: &expiredCooldown},
				OwnedTier: models.TierFree,
			},
			wantShow: true,
			wantTier: models.TierOne,
		},
		{
			name: "free user below tier1 threshold",
			in: UpsellInput{
				Now: now, TotalMessages: 12, AccountCreatedAt: oldAccount,
				State:     &models.ConversationState{MessagesSinceUpsell: 10},
				OwnedTier: models.TierFree,
			},
		},
		{
			name: "free user one message short of tier1",
			in: UpsellInput{
				Now: now, TotalMessages: tier1MessageThreshold - 1, AccountCreatedAt: oldAccount,
				State:     &models.ConversationState{MessagesSinceUpsell: 10},
				OwnedTier: models.TierFree,
			},
		},
		{
			name: "free user at tier1 threshold",
			in: UpsellInput{
				Now: now, TotalMessages: tier1MessageThreshold, AccountCreatedAt: oldAccount,
				State:     &models.ConversationState{MessagesSinceUpsell: 10},
				OwnedTier: models.TierFree,
			},
			wantShow: true,
			wantTier: models.TierOne,
		},
		{
			name: "tier1 owner reaches tier2",
			in: UpsellInput{
				Now: now, TotalMessages: 45, AccountCreatedAt: oldAccount,
				State:     &models.ConversationState{MessagesSinceUpsell: 12},
				OwnedTier: models.TierOne,
			},
			wantShow: true,
			wantTier: models.TierTwo,
		},
		{
			name: "tier2 gated on account age",
			in: UpsellInput{
				Now: now, TotalMessages: 45, AccountCreatedAt: youngAccount,
				State:     &models.ConversationState{MessagesSinceUpsell: 12},
				OwnedTier: models.TierOne,
			},
		},
		{
			name: "tier2 owner has nothing to buy",
			in: UpsellInput{
				Now: now, TotalMessages: 100, AccountCreatedAt: oldAccount,
				State:     &models.ConversationState{MessagesSinceUpsell: 50},
				OwnedTier: models.TierTwo,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DecideUpsell(tt.in)
			if got.ShouldShow != tt.wantShow {
				t.Fatalf("ShouldShow = %v, want %v", got.ShouldShow, tt.wantShow)
			}
			if got.Tier != tt.wantTier {
				t.Fatalf("Tier = %q, want %q", got.Tier, tt.wantTier)
			}
		})
	}
}
