package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/hpol369/ItsNadchos/internal/models"
)

var (
	ErrTokenNotFound = errors.New("token not found")
	ErrTokenUsed     = errors.New("token already used")
	ErrTokenExpired  = errors.New("token expired")
)

const tokenTTL = 24 * time.Hour

type TokenStore interface {
	InvalidateUnused(ctx context.Context, userID int64, now time.Time) error
	Create(ctx context.Context, token *models.PurchaseToken) error
	FindByToken(ctx context.Context, token string) (*models.PurchaseToken, error)
	Redeem(ctx context.Context, token string, now time.Time) (bool, error)
	DeleteExpiredUnused(ctx context.Context, now time.Time) (int64, error)
}

// TokenBroker issues and redeems single-use purchase tokens that carry a
// user's identity to the storefront without exposing their chat account.
type TokenBroker struct {
	store   TokenStore
	baseURL string
}

func NewTokenBroker(store TokenStore, storefrontBaseURL string) *TokenBroker {
	return &TokenBroker{store: store, baseURL: storefrontBaseURL}
}

// Issue mints a fresh token for the user and returns the storefront URL
// embedding it. Any previously issued unused tokens are invalidated first so
// at most one live token exists per user.
func (b *TokenBroker) Issue(ctx context.Context, userID int64, now time.Time) (string, error) {
	if err := b.store.InvalidateUnused(ctx, userID, now); err != nil {
		return "", fmt.Errorf("invalidate prior tokens: %w", err)
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(raw)

	if err := b.store.Create(ctx, &models.PurchaseToken{
		UserID:    userID,
		Token:     token,
		ExpiresAt: now.Add(tokenTTL),
		CreatedAt: now,
	}); err != nil {
		return "", fmt.Errorf("store token: %w", err)
	}

	return b.baseURL + "/buy?token=" + token, nil
}

// Validate checks a token without consuming it and returns its owner.
func (b *TokenBroker) Validate(ctx context.Context, token string, now time.Time) (int64, error) {
	record, err := b.store.FindByToken(ctx, token)
	if err != nil {
		return 0, fmt.Errorf("find token: %w", err)
	}
	if record == nil {
		return 0, ErrTokenNotFound
	}
	if record.UsedAt != nil {
		return 0, ErrTokenUsed
	}
	if !now.Before(record.ExpiresAt) {
		return 0, ErrTokenExpired
	}
	return record.UserID, nil
}

// Redeem consumes a token exactly once and returns its owner. A concurrent
// redemption of the same token loses the conditional update and gets
// ErrTokenUsed.
func (b *TokenBroker) Redeem(ctx context.Context, token string, now time.Time) (int64, error) {
	userID, err := b.Validate(ctx, token, now)
	if err != nil {
		return 0, err
	}
	ok, err := b.store.Redeem(ctx, token, now)
	if err != nil {
		return 0, fmt.Errorf("redeem token: %w", err)
	}
	if !ok {
		return 0, ErrTokenUsed
	}
	return userID, nil
}

// CleanupExpired removes expired unused tokens, returning how many were dropped.
func (b *TokenBroker) CleanupExpired(ctx context.Context, now time.Time) (int64, error) {
	n, err := b.store.DeleteExpiredUnused(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("cleanup tokens: %w", err)
	}
	return n, nil
}
