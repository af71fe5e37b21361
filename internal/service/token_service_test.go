package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hpol369/ItsNadchos/internal/models"
)

type fakeTokenStore struct {
	tokens []*models.PurchaseToken
}

func (s *fakeTokenStore) InvalidateUnused(_ context.Context, userID int64, now time.Time) error {
	for _, token := range s.tokens {
		if token.UserID == userID && token.UsedAt == nil && token.ExpiresAt.After(now) {
			token.ExpiresAt = now
		}
	}
	return nil
}

func (s *fakeTokenStore) Create(_ context.Context, token *models.PurchaseToken) error {
	copied := *token
	s.tokens = append(s.tokens, &copied)
	return nil
}

func (s *fakeTokenStore) FindByToken(_ context.Context, value string) (*models.PurchaseToken, error) {
	for _, token := range s.tokens {
		if token.Token == value {
			copied := *token
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *fakeTokenStore) Redeem(_ context.Context, value string, now time.Time) (bool, error) {
	for _, token := range s.tokens {
		if token.Token == value && token.UsedAt == nil {
			used := now
			token.UsedAt = &used
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeTokenStore) DeleteExpiredUnused(_ context.Context, now time.Time) (int64, error) {
	kept := s.tokens[:0]
	var removed int64
	for _, token := range s.tokens {
		if token.UsedAt == nil && !token.ExpiresAt.After(now) {
			removed++
			continue
		}
		kept = append(kept, token)
	}
	s.tokens = kept
	return removed, nil
}

func (s *fakeTokenStore) live(userID int64, now time.Time) []*models.PurchaseToken {
	var live []*models.PurchaseToken
	for _, token := range s.tokens {
		if token.UserID == userID && token.UsedAt == nil && token.ExpiresAt.After(now) {
			live = append(live, token)
		}
	}
	return live
}

func tokenFromURL(t *testing.T, url string) string {
	t.Helper()
	idx := strings.Index(url, "token=")
	if idx < 0 {
		t.Fatalf("url %q has no token parameter", url)
	}
	return url[idx+len("token="):]
}

func TestIssueBuildsStorefrontURL(t *testing.T) {
	broker := NewTokenBroker(&fakeTokenStore{}, "https://shop.example.com")
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	url, err := broker.Issue(context.Background(), 1, now)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if !strings.HasPrefix(url, "https://shop.example.com/buy?token=") {
		t.Fatalf("url = %q", url)
	}
	if token := tokenFromURL(t, url); len(token) < 40 {
		t.Fatalf("token %q too short", token)
	}
}

func TestIssueInvalidatesPriorToken(t *testing.T) {
	store := &fakeTokenStore{}
	broker := NewTokenBroker(store, "https://shop.example.com")
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	ctx := context.Background()

	first, err := broker.Issue(ctx, 1, now)
	if err != nil {
		t.Fatalf("first issue: %v", err)
	}
	if _, err := broker.Issue(ctx, 1, now.Add(time.Minute)); err != nil {
		t.Fatalf("second issue: %v", err)
	}

	if live := store.live(1, now.Add(2*time.Minute)); len(live) != 1 {
		t.Fatalf("live tokens = %d, want 1", len(live))
	}
	if _, err := broker.Validate(ctx, tokenFromURL(t, first), now.Add(2*time.Minute)); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("old token err = %v, want ErrTokenExpired", err)
	}
}

func TestRedeemIsOneShot(t *testing.T) {
	store := &fakeTokenStore{}
	broker := NewTokenBroker(store, "https://shop.example.com")
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	ctx := context.Background()

	url, err := broker.Issue(ctx, 7, now)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	token := tokenFromURL(t, url)

	userID, err := broker.Redeem(ctx, token, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if userID != 7 {
		t.Fatalf("redeemed user = %d, want 7", userID)
	}

	if _, err := broker.Redeem(ctx, token, now.Add(2*time.Minute)); !errors.Is(err, ErrTokenUsed) {
		t.Fatalf("second redeem err = %v, want ErrTokenUsed", err)
	}
}

func TestValidateRejectsExpiredAndUnknown(t *testing.T) {
	store := &fakeTokenStore{}
	broker := NewTokenBroker(store, "https://shop.example.com")
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	ctx := context.Background()

	url, err := broker.Issue(ctx, 1, now)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	token := tokenFromURL(t, url)

	if _, err := broker.Validate(ctx, token, now.Add(tokenTTL)); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expired err = %v, want ErrTokenExpired", err)
	}
	if _, err := broker.Validate(ctx, "no-such-token", now); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("unknown err = %v, want ErrTokenNotFound", err)
	}
}

func TestCleanupExpiredKeepsUsedTokens(t *testing.T) {
	store := &fakeTokenStore{}
	broker := NewTokenBroker(store, "https://shop.example.com")
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	ctx := context.Background()

	usedURL, err := broker.Issue(ctx, 1, now)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := broker.Redeem(ctx, tokenFromURL(t, usedURL), now.Add(time.Minute)); err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if _, err := broker.Issue(ctx, 2, now); err != nil {
		t.Fatalf("issue stale: %v", err)
	}

	removed, err := broker.CleanupExpired(ctx, now.Add(tokenTTL+time.Minute))
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if len(store.tokens) != 1 || store.tokens[0].UsedAt == nil {
		t.Fatal("redeemed token must survive cleanup for audit")
	}
}
