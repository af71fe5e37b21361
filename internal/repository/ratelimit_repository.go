package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hpol369/ItsNadchos/internal/models"
)

// RateLimitRepository persists the per-user sliding counters so limits hold
// across process restarts and multiple instances. All counter movement is a
// single conditional UPDATE; the row is never written from values read
// earlier in the request.
type RateLimitRepository struct {
	db *sql.DB
}

func NewRateLimitRepository(db *sql.DB) *RateLimitRepository {
	return &RateLimitRepository{db: db}
}

func (r *RateLimitRepository) Get(ctx context.Context, userID int64) (*models.RateLimitState, error) {
	const query = `
SELECT user_id, minute_count, minute_window_start, hour_count, hour_window_start, warnings_count, temp_blocked_until, updated_at
FROM rate_limit_states WHERE user_id = ?`
	row := r.db.QueryRowContext(ctx, query, userID)
	var s models.RateLimitState
	var blockedUntil sql.NullTime
	if err := row.Scan(&s.UserID, &s.MinuteCount, &s.MinuteWindowStart, &s.HourCount, &s.HourWindowStart, &s.WarningsCount, &blockedUntil, &s.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan rate limit state: %w", err)
	}
	if blockedUntil.Valid {
		s.TempBlockedUntil = &blockedUntil.Time
	}
	return &s, nil
}

func (r *RateLimitRepository) Init(ctx context.Context, userID int64, now time.Time) (bool, error) {
	const query = `
INSERT IGNORE INTO rate_limit_states (user_id, minute_count, minute_window_start, hour_count, hour_window_start, warnings_count)
VALUES (?, 1, ?, 1, ?, 0)`
	res, err := r.db.ExecContext(ctx, query, userID, now, now)
	if err != nil {
		return false, fmt.Errorf("init rate limit state: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("init rate limit state rows: %w", err)
	}
	return rows > 0, nil
}

// TryIncrement rolls elapsed windows and counts the message in one statement.
// The WHERE clause only matches when the user is not temp-blocked and a slot
// remains in both windows, so RowsAffected decides the admission. SET
// assignments run left to right: each count is computed against its window
// start before the start moves.
func (r *RateLimitRepository) TryIncrement(ctx context.Context, userID int64, now, minuteCutoff, hourCutoff time.Time, minuteLimit, hourLimit int) (bool, error) {
	const query = `
UPDATE rate_limit_states
SET minute_count = IF(minute_window_start < ?, 1, minute_count + 1),
    minute_window_start = IF(minute_window_start < ?, ?, minute_window_start),
    hour_count = IF(hour_window_start < ?, 1, hour_count + 1),
    hour_window_start = IF(hour_window_start < ?, ?, hour_window_start),
    updated_at = NOW()
WHERE user_id = ?
  AND (temp_blocked_until IS NULL OR temp_blocked_until <= ?)
  AND (minute_window_start < ? OR minute_count < ?)
  AND (hour_window_start < ? OR hour_count < ?)`
	res, err := r.db.ExecContext(ctx, query,
		minuteCutoff, minuteCutoff, now,
		hourCutoff, hourCutoff, now,
		userID, now,
		minuteCutoff, minuteLimit,
		hourCutoff, hourLimit,
	)
	if err != nil {
		return false, fmt.Errorf("count message: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("count message rows: %w", err)
	}
	return rows > 0, nil
}

// RecordViolation bumps the warning counter and, once it reaches
// maxWarnings, arms the temporary block in the same statement. The IF sees
// the warnings_count value assigned on the previous line. Returns nil when
// an active block meant nothing was recorded.
func (r *RateLimitRepository) RecordViolation(ctx context.Context, userID int64, now, blockUntil time.Time, maxWarnings int) (*models.RateLimitState, error) {
	const query = `
UPDATE rate_limit_states
SET warnings_count = warnings_count + 1,
    temp_blocked_until = IF(warnings_count >= ?, ?, temp_blocked_until),
    updated_at = NOW()
WHERE user_id = ? AND (temp_blocked_until IS NULL OR temp_blocked_until <= ?)`
	res, err := r.db.ExecContext(ctx, query, maxWarnings, blockUntil, userID, now)
	if err != nil {
		return nil, fmt.Errorf("record violation: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("record violation rows: %w", err)
	}
	if rows == 0 {
		return nil, nil
	}
	return r.Get(ctx, userID)
}

// ResetWarnings is the administrative escape hatch; warnings never reset on
// their own.
func (r *RateLimitRepository) ResetWarnings(ctx context.Context, userID int64) error {
	const query = `
UPDATE rate_limit_states
SET warnings_count = 0, temp_blocked_until = NULL, updated_at = NOW()
WHERE user_id = ?`
	if _, err := r.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("reset warnings: %w", err)
	}
	return nil
}
