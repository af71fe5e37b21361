package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

type NotificationRepository struct {
	db *sql.DB
}

func NewNotificationRepository(db *sql.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

func (r *NotificationRepository) SentToday(ctx context.Context, userID int64, date string) (bool, error) {
	const query = `SELECT 1 FROM daily_notifications WHERE user_id = ? AND date = ?`
	var one int
	if err := r.db.QueryRowContext(ctx, query, userID, date).Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check daily notification: %w", err)
	}
	return true, nil
}

// Record claims today's slot for the user. The unique (user, date) key means
// a second concurrent sweep inserts nothing and reports false.
func (r *NotificationRepository) Record(ctx context.Context, userID int64, date, message string, photoID *int64) (bool, error) {
	const query = `
INSERT IGNORE INTO daily_notifications (user_id, date, message, photo_id)
VALUES (?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, query, userID, date, message, photoID)
	if err != nil {
		return false, fmt.Errorf("insert daily notification: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("notification rows affected: %w", err)
	}
	return affected > 0, nil
}
