package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// DailyMessageRepository tracks free messages consumed per (user, calendar
// date). A new date gets a new row; there is at most one row per pair.
type DailyMessageRepository struct {
	db *sql.DB
}

func NewDailyMessageRepository(db *sql.DB) *DailyMessageRepository {
	return &DailyMessageRepository{db: db}
}

func (r *DailyMessageRepository) CountForDay(ctx context.Context, userID int64, date string) (int, error) {
	const query = `SELECT message_count FROM daily_messages WHERE user_id = ? AND date = ?`
	var count int
	if err := r.db.QueryRowContext(ctx, query, userID, date).Scan(&count); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("count daily messages: %w", err)
	}
	return count, nil
}

// Increment bumps today's counter atomically, inserting the row on the first
// free message of the day. Single statement so concurrent messages from the
// same user never observe a stale count.
func (r *DailyMessageRepository) Increment(ctx context.Context, userID int64, date string) error {
	const query = `
INSERT INTO daily_messages (user_id, date, message_count)
VALUES (?, ?, 1)
ON DUPLICATE KEY UPDATE message_count = message_count + 1`
	if _, err := r.db.ExecContext(ctx, query, userID, date); err != nil {
		return fmt.Errorf("increment daily messages: %w", err)
	}
	return nil
}
