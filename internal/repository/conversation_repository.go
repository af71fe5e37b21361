package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hpol369/ItsNadchos/internal/models"
)

type ConversationRepository struct {
	db *sql.DB
}

func NewConversationRepository(db *sql.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

func (r *ConversationRepository) Get(ctx context.Context, userID int64) (*models.ConversationState, error) {
	const query = `
SELECT user_id, current_state, relationship_tier, messages_since_upsell, last_upsell_at, upsell_cooldown_until, updated_at
FROM conversation_states WHERE user_id = ?`
	row := r.db.QueryRowContext(ctx, query, userID)
	var s models.ConversationState
	var lastUpsell, cooldown sql.NullTime
	if err := row.Scan(&s.UserID, &s.CurrentState, &s.RelationshipTier, &s.MessagesSinceUpsell, &lastUpsell, &cooldown, &s.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan conversation state: %w", err)
	}
	if lastUpsell.Valid {
		s.LastUpsellAt = &lastUpsell.Time
	}
	if cooldown.Valid {
		s.UpsellCooldownUntil = &cooldown.Time
	}
	return &s, nil
}

func (r *ConversationRepository) Create(ctx context.Context, userID int64) error {
	const query = `
INSERT IGNORE INTO conversation_states (user_id, current_state, relationship_tier)
VALUES (?, 'onboarding', 'free')`
	if _, err := r.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("insert conversation state: %w", err)
	}
	return nil
}

func (r *ConversationRepository) SetPhase(ctx context.Context, userID int64, phase models.ConversationPhase) error {
	const query = `UPDATE conversation_states SET current_state = ?, updated_at = NOW() WHERE user_id = ?`
	if _, err := r.db.ExecContext(ctx, query, phase, userID); err != nil {
		return fmt.Errorf("set conversation phase: %w", err)
	}
	return nil
}

func (r *ConversationRepository) SetTier(ctx context.Context, userID int64, tier models.Tier) error {
	const query = `UPDATE conversation_states SET relationship_tier = ?, updated_at = NOW() WHERE user_id = ?`
	if _, err := r.db.ExecContext(ctx, query, tier, userID); err != nil {
		return fmt.Errorf("set relationship tier: %w", err)
	}
	return nil
}

func (r *ConversationRepository) IncrementMessagesSinceUpsell(ctx context.Context, userID int64) error {
	const query = `
UPDATE conversation_states
SET messages_since_upsell = messages_since_upsell + 1, updated_at = NOW()
WHERE user_id = ?`
	if _, err := r.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("increment messages since upsell: %w", err)
	}
	return nil
}

// RecordUpsellShown commits the upsell side effect after an offer was
// actually presented: counter reset, last shown timestamp, 24h cooldown.
func (r *ConversationRepository) RecordUpsellShown(ctx context.Context, userID int64, shownAt, cooldownUntil time.Time) error {
	const query = `
UPDATE conversation_states
SET messages_since_upsell = 0, last_upsell_at = ?, upsell_cooldown_until = ?, updated_at = NOW()
WHERE user_id = ?`
	if _, err := r.db.ExecContext(ctx, query, shownAt, cooldownUntil, userID); err != nil {
		return fmt.Errorf("record upsell shown: %w", err)
	}
	return nil
}
