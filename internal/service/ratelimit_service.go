package service

import (
	"context"
	"fmt"
	"time"

	"github.com/hpol369/ItsNadchos/internal/models"
)

const (
	minuteWindow      = time.Minute
	hourWindow        = time.Hour
	minuteLimit       = 10
	hourLimit         = 100
	maxWarnings       = 3
	tempBlockDuration = time.Hour
)

// RateLimitStore persists per-user counters. Keeping the state in storage
// rather than process memory keeps limits consistent when more than one bot
// instance is running. Counter movement happens as single conditional
// updates inside the store, never as read-then-write round trips, so
// concurrent checks cannot over-admit or clobber an escalation.
type RateLimitStore interface {
	Get(ctx context.Context, userID int64) (*models.RateLimitState, error)
	// Init claims a fresh row counting the first message. Returns false when
	// the row already exists.
	Init(ctx context.Context, userID int64, now time.Time) (bool, error)
	// TryIncrement rolls elapsed windows and counts one message in a single
	// conditional update. Returns false when the user is temp-blocked or a
	// limit is reached.
	TryIncrement(ctx context.Context, userID int64, now, minuteCutoff, hourCutoff time.Time, minuteLimit, hourLimit int) (bool, error)
	// RecordViolation bumps the warning counter and arms the temporary block
	// once it reaches maxWarnings, in a single conditional update. Returns
	// the refreshed state, or nil when an active block meant nothing moved.
	RecordViolation(ctx context.Context, userID int64, now, blockUntil time.Time, maxWarnings int) (*models.RateLimitState, error)
	ResetWarnings(ctx context.Context, userID int64) error
}

// RateLimitResult describes the outcome of a rate limit check.
type RateLimitResult struct {
	Blocked      bool
	TempBlocked  bool
	BlockedUntil time.Time
}

// RateLimiter applies per-minute and per-hour message limits with an
// escalating temporary block after repeated violations. Windows roll lazily:
// a counter resets the moment a check observes the window has elapsed.
type RateLimiter struct {
	store RateLimitStore
}

func NewRateLimiter(store RateLimitStore) *RateLimiter {
	return &RateLimiter{store: store}
}

// CheckAndRecord runs the limit check for one inbound message and records it
// when allowed. Attempts while temp-blocked touch nothing, so a blocked
// user's retries never extend the block.
func (l *RateLimiter) CheckAndRecord(ctx context.Context, userID int64, now time.Time) (RateLimitResult, error) {
	state, err := l.store.Get(ctx, userID)
	if err != nil {
		return RateLimitResult{}, fmt.Errorf("get rate limit state: %w", err)
	}
	if state == nil {
		claimed, err := l.store.Init(ctx, userID, now)
		if err != nil {
			return RateLimitResult{}, fmt.Errorf("init rate limit state: %w", err)
		}
		if claimed {
			return RateLimitResult{}, nil
		}
		// Lost the insert race; the row exists now, count through it.
	} else if state.TempBlockedUntil != nil && state.TempBlockedUntil.After(now) {
		return RateLimitResult{Blocked: true, TempBlocked: true, BlockedUntil: *state.TempBlockedUntil}, nil
	}

	allowed, err := l.store.TryIncrement(ctx, userID, now, now.Add(-minuteWindow), now.Add(-hourWindow), minuteLimit, hourLimit)
	if err != nil {
		return RateLimitResult{}, fmt.Errorf("count message: %w", err)
	}
	if allowed {
		return RateLimitResult{}, nil
	}

	// Warnings accumulate for the lifetime of the account until an
	// administrative reset.
	after, err := l.store.RecordViolation(ctx, userID, now, now.Add(tempBlockDuration), maxWarnings)
	if err != nil {
		return RateLimitResult{}, fmt.Errorf("record violation: %w", err)
	}
	if after == nil {
		// A concurrent violation armed the block between the read above and
		// the update; report the active block without touching the row.
		state, err = l.store.Get(ctx, userID)
		if err != nil {
			return RateLimitResult{}, fmt.Errorf("get rate limit state: %w", err)
		}
		if state != nil && state.TempBlockedUntil != nil && state.TempBlockedUntil.After(now) {
			return RateLimitResult{Blocked: true, TempBlocked: true, BlockedUntil: *state.TempBlockedUntil}, nil
		}
		return RateLimitResult{Blocked: true}, nil
	}

	result := RateLimitResult{Blocked: true}
	if after.TempBlockedUntil != nil && after.TempBlockedUntil.After(now) {
		result.TempBlocked = true
		result.BlockedUntil = *after.TempBlockedUntil
	}
	return result, nil
}

// Reset clears accumulated warnings and any active temporary block.
func (l *RateLimiter) Reset(ctx context.Context, userID int64) error {
	if err := l.store.ResetWarnings(ctx, userID); err != nil {
		return fmt.Errorf("reset rate limit: %w", err)
	}
	return nil
}
