package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hpol369/ItsNadchos/internal/models"
)

type TokenRepository struct {
	db *sql.DB
}

func NewTokenRepository(db *sql.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// InvalidateUnused expires every live token for the user so at most one
// token per user is ever redeemable.
func (r *TokenRepository) InvalidateUnused(ctx context.Context, userID int64, now time.Time) error {
	const query = `UPDATE purchase_tokens SET expires_at = ? WHERE user_id = ? AND used_at IS NULL AND expires_at > ?`
	if _, err := r.db.ExecContext(ctx, query, now, userID, now); err != nil {
		return fmt.Errorf("invalidate unused tokens: %w", err)
	}
	return nil
}

func (r *TokenRepository) Create(ctx context.Context, token *models.PurchaseToken) error {
	const query = `INSERT INTO purchase_tokens (user_id, token, expires_at) VALUES (?, ?, ?)`
	res, err := r.db.ExecContext(ctx, query, token.UserID, token.Token, token.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert purchase token: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("token last insert id: %w", err)
	}
	token.ID = id
	return nil
}

func (r *TokenRepository) FindByToken(ctx context.Context, token string) (*models.PurchaseToken, error) {
	const query = `
SELECT id, user_id, token, expires_at, used_at, created_at
FROM purchase_tokens WHERE token = ?`
	row := r.db.QueryRowContext(ctx, query, token)
	var t models.PurchaseToken
	var usedAt sql.NullTime
	if err := row.Scan(&t.ID, &t.UserID, &t.Token, &t.ExpiresAt, &usedAt, &t.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan purchase token: %w", err)
	}
	if usedAt.Valid {
		t.UsedAt = &usedAt.Time
	}
	return &t, nil
}

// Redeem sets used_at once. The conditional update is the single point that
// enforces one-shot redemption under concurrent checkout completions.
func (r *TokenRepository) Redeem(ctx context.Context, token string, now time.Time) (bool, error) {
	const query = `UPDATE purchase_tokens SET used_at = ? WHERE token = ? AND used_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, now, token)
	if err != nil {
		return false, fmt.Errorf("redeem token: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("redeem rows affected: %w", err)
	}
	return affected > 0, nil
}

// DeleteExpiredUnused sweeps tokens that expired without ever being used.
// Operates on rows disjoint from live issuance, so it is safe to run
// concurrently with Issue.
func (r *TokenRepository) DeleteExpiredUnused(ctx context.Context, now time.Time) (int64, error) {
	const query = `DELETE FROM purchase_tokens WHERE expires_at < ? AND used_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired tokens: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cleanup rows affected: %w", err)
	}
	return affected, nil
}
