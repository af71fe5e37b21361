package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/hpol369/ItsNadchos/internal/models"
)

// fakeRateLimitStore mirrors the repository's conditional updates: every
// counter movement checks and mutates under one lock, the way a single SQL
// statement does against the row.
type fakeRateLimitStore struct {
	mu     sync.Mutex
	states map[int64]*models.RateLimitState
}

func newFakeRateLimitStore() *fakeRateLimitStore {
	return &fakeRateLimitStore{states: make(map[int64]*models.RateLimitState)}
}

func (s *fakeRateLimitStore) Get(_ context.Context, userID int64) (*models.RateLimitState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[userID]
	if !ok {
		return nil, nil
	}
	copied := *state
	return &copied, nil
}

func (s *fakeRateLimitStore) Init(_ context.Context, userID int64, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.states[userID]; ok {
		return false, nil
	}
	s.states[userID] = &models.RateLimitState{
		UserID:            userID,
		MinuteCount:       1,
		MinuteWindowStart: now,
		HourCount:         1,
		HourWindowStart:   now,
	}
	return true, nil
}

func (s *fakeRateLimitStore) TryIncrement(_ context.Context, userID int64, now, minuteCutoff, hourCutoff time.Time, minuteLimit, hourLimit int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[userID]
	if !ok {
		return false, nil
	}
	if state.TempBlockedUntil != nil && state.TempBlockedUntil.After(now) {
		return false, nil
	}
	minuteElapsed := state.MinuteWindowStart.Before(minuteCutoff)
	hourElapsed := state.HourWindowStart.Before(hourCutoff)
	if !minuteElapsed && state.MinuteCount >= minuteLimit {
		return false, nil
	}
	if !hourElapsed && state.HourCount >= hourLimit {
		return false, nil
	}
	if minuteElapsed {
		state.MinuteCount = 1
		state.MinuteWindowStart = now
	} else {
		state.MinuteCount++
	}
	if hourElapsed {
		state.HourCount = 1
		state.HourWindowStart = now
	} else {
		state.HourCount++
	}
	return true, nil
}

func (s *fakeRateLimitStore) RecordViolation(_ context.Context, userID int64, now, blockUntil time.Time, maxWarnings int) (*models.RateLimitState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[userID]
	if !ok {
		return nil, nil
	}
	if state.TempBlockedUntil != nil && state.TempBlockedUntil.After(now) {
		return nil, nil
	}
	state.WarningsCount++
	if state.WarningsCount >= maxWarnings {
		until := blockUntil
		state.TempBlockedUntil = &until
	}
	copied := *state
	return &copied, nil
}

func (s *fakeRateLimitStore) ResetWarnings(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state, ok := s.states[userID]; ok {
		state.WarningsCount = 0
		state.TempBlockedUntil = nil
	}
	return nil
}

func TestRateLimiterAllowsUnderLimit(t *testing.T) {
	limiter := NewRateLimiter(newFakeRateLimitStore())
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < minuteLimit; i++ {
		result, err := limiter.CheckAndRecord(context.Background(), 1, now.Add(time.Duration(i)*time.Second))
		if err != nil {
			t.Fatalf("check %d: %v", i, err)
		}
		if result.Blocked {
			t.Fatalf("message %d blocked below the limit", i+1)
		}
	}
}

func TestRateLimiterBlocksOverMinuteLimit(t *testing.T) {
	limiter := NewRateLimiter(newFakeRateLimitStore())
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < minuteLimit; i++ {
		if _, err := limiter.CheckAndRecord(context.Background(), 1, now); err != nil {
			t.Fatalf("check %d: %v", i, err)
		}
	}

	result, err := limiter.CheckAndRecord(context.Background(), 1, now.Add(time.Second))
	if err != nil {
		t.Fatalf("check over limit: %v", err)
	}
	if !result.Blocked {
		t.Fatal("message over the minute limit was allowed")
	}
	if result.TempBlocked {
		t.Fatal("first violation must not temp-block")
	}
}

func TestRateLimiterConcurrentChecksRespectLimit(t *testing.T) {
	store := newFakeRateLimitStore()
	limiter := NewRateLimiter(store)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	store.states[1] = &models.RateLimitState{
		UserID:            1,
		MinuteCount:       minuteLimit - 1,
		MinuteWindowStart: now,
		HourCount:         minuteLimit - 1,
		HourWindowStart:   now,
	}

	const attempts = 4
	results := make([]RateLimitResult, attempts)
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = limiter.CheckAndRecord(context.Background(), 1, now.Add(time.Second))
		}(i)
	}
	wg.Wait()

	allowed := 0
	for i := range results {
		if errs[i] != nil {
			t.Fatalf("check %d: %v", i, errs[i])
		}
		if !results[i].Blocked {
			allowed++
		}
	}
	if allowed != 1 {
		t.Fatalf("allowed %d messages with one slot left, want 1", allowed)
	}
	if got := store.states[1].MinuteCount; got != minuteLimit {
		t.Fatalf("minute count = %d, want %d", got, minuteLimit)
	}
}

func TestRateLimiterWindowRolls(t *testing.T) {
	store := newFakeRateLimitStore()
	limiter := NewRateLimiter(store)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < minuteLimit; i++ {
		if _, err := limiter.CheckAndRecord(context.Background(), 1, now); err != nil {
			t.Fatalf("check %d: %v", i, err)
		}
	}

	later := now.Add(minuteWindow + time.Second)
	result, err := limiter.CheckAndRecord(context.Background(), 1, later)
	if err != nil {
		t.Fatalf("check after window: %v", err)
	}
	if result.Blocked {
		t.Fatal("message after the minute window rolled was blocked")
	}
	if got := store.states[1].MinuteCount; got != 1 {
		t.Fatalf("minute count after roll = %d, want 1", got)
	}
}

func TestRateLimiterEscalatesToTempBlock(t *testing.T) {
	store := newFakeRateLimitStore()
	limiter := NewRateLimiter(store)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < minuteLimit; i++ {
		if _, err := limiter.CheckAndRecord(context.Background(), 1, now); err != nil {
			t.Fatalf("fill: %v", err)
		}
	}

	var result RateLimitResult
	var err error
	for i := 0; i < maxWarnings; i++ {
		result, err = limiter.CheckAndRecord(context.Background(), 1, now.Add(time.Second))
		if err != nil {
			t.Fatalf("violation %d: %v", i+1, err)
		}
		if !result.Blocked {
			t.Fatalf("violation %d was allowed", i+1)
		}
	}

	if !result.TempBlocked {
		t.Fatal("third violation did not temp-block")
	}
	want := now.Add(time.Second).Add(tempBlockDuration)
	if !result.BlockedUntil.Equal(want) {
		t.Fatalf("blocked until %v, want %v", result.BlockedUntil, want)
	}
}

func TestRateLimiterTempBlockLeavesStateUntouched(t *testing.T) {
	store := newFakeRateLimitStore()
	limiter := NewRateLimiter(store)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	until := now.Add(30 * time.Minute)
	store.states[1] = &models.RateLimitState{
		UserID:            1,
		MinuteCount:       5,
		MinuteWindowStart: now,
		HourCount:         5,
		HourWindowStart:   now,
		WarningsCount:     maxWarnings,
		TempBlockedUntil:  &until,
	}

	result, err := limiter.CheckAndRecord(context.Background(), 1, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("check while blocked: %v", err)
	}
	if !result.TempBlocked {
		t.Fatal("temp block not reported")
	}
	if store.states[1].MinuteCount != 5 || store.states[1].WarningsCount != maxWarnings {
		t.Fatal("attempt while temp-blocked mutated state")
	}
}

func TestRateLimiterAdministrativeReset(t *testing.T) {
	store := newFakeRateLimitStore()
	limiter := NewRateLimiter(store)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	until := now.Add(30 * time.Minute)
	store.states[1] = &models.RateLimitState{
		UserID:            1,
		MinuteWindowStart: now.Add(-2 * time.Minute),
		HourWindowStart:   now.Add(-2 * time.Minute),
		WarningsCount:     maxWarnings,
		TempBlockedUntil:  &until,
	}

	if err := limiter.Reset(context.Background(), 1); err != nil {
		t.Fatalf("reset: %v", err)
	}

	result, err := limiter.CheckAndRecord(context.Background(), 1, now)
	if err != nil {
		t.Fatalf("check after reset: %v", err)
	}
	if result.Blocked {
		t.Fatal("message after reset was blocked")
	}
	if store.states[1].WarningsCount != 0 {
		t.Fatalf("warnings after reset = %d, want 0", store.states[1].WarningsCount)
	}
}
