package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hpol369/ItsNadchos/internal/models"
)

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, telegram_id, COALESCE(username, ''), COALESCE(display_name, ''), is_blocked, COALESCE(blocked_reason, ''), push_enabled, total_messages, last_active_at, created_at, updated_at`

func scanUser(row *sql.Row) (*models.User, error) {
	var u models.User
	var blocked, push int
	if err := row.Scan(&u.ID, &u.TelegramID, &u.Username, &u.DisplayName, &blocked, &u.BlockedReason, &push, &u.TotalMessages, &u.LastActiveAt, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.IsBlocked = blocked != 0
	u.PushEnabled = push != 0
	return &u, nil
}

func (r *UserRepository) FindByTelegramID(ctx context.Context, telegramID int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE telegram_id = ?`
	return scanUser(r.db.QueryRowContext(ctx, query, telegramID))
}

func (r *UserRepository) FindByID(ctx context.Context, id int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`
	return scanUser(r.db.QueryRowContext(ctx, query, id))
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	const query = `
INSERT INTO users (telegram_id, username, display_name)
VALUES (?, NULLIF(?, ''), NULLIF(?, ''))`
	res, err := r.db.ExecContext(ctx, query, user.TelegramID, user.Username, user.DisplayName)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	user.ID = id
	return user, nil
}

func (r *UserRepository) UpdateProfile(ctx context.Context, userID int64, username, displayName string) error {
	const query = `
UPDATE users SET username = NULLIF(?, ''), display_name = NULLIF(?, ''), updated_at = NOW()
WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, username, displayName, userID); err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return nil
}

// Ensure returns the user record for a Telegram identity, creating it on first
// contact and refreshing the stored profile for returning users.
func (r *UserRepository) Ensure(ctx context.Context, telegramID int64, username, displayName string) (*models.User, bool, error) {
	user, err := r.FindByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, false, err
	}
	if user != nil {
		if err := r.UpdateProfile(ctx, user.ID, username, displayName); err != nil {
			return nil, false, err
		}
		return user, false, nil
	}
	created, err := r.Create(ctx, &models.User{
		TelegramID:  telegramID,
		Username:    username,
		DisplayName: displayName,
	})
	if err != nil {
		return nil, false, err
	}
	return created, true, nil
}

// TouchActivity bumps the lifetime message count and last-active timestamp.
func (r *UserRepository) TouchActivity(ctx context.Context, userID int64) error {
	const query = `
UPDATE users SET total_messages = total_messages + 1, last_active_at = NOW(), updated_at = NOW()
WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("touch activity: %w", err)
	}
	return nil
}

func (r *UserRepository) SetBlocked(ctx context.Context, userID int64, blocked bool, reason string) error {
	value := 0
	if blocked {
		value = 1
	}
	const query = `UPDATE users SET is_blocked = ?, blocked_reason = NULLIF(?, ''), updated_at = NOW() WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, value, reason, userID); err != nil {
		return fmt.Errorf("set blocked: %w", err)
	}
	return nil
}

func (r *UserRepository) SetPushEnabled(ctx context.Context, userID int64, enabled bool) error {
	value := 0
	if enabled {
		value = 1
	}
	const query = `UPDATE users SET push_enabled = ?, updated_at = NOW() WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, value, userID); err != nil {
		return fmt.Errorf("set push enabled: %w", err)
	}
	return nil
}

// ListPushEligible returns users who may receive the daily notification sweep:
// push enabled, not blocked, active since the cutoff.
func (r *UserRepository) ListPushEligible(ctx context.Context, activeSince time.Time) ([]models.User, error) {
	const query = `
SELECT id, telegram_id, COALESCE(username, ''), COALESCE(display_name, ''), is_blocked, COALESCE(blocked_reason, ''), push_enabled, total_messages, last_active_at, created_at, updated_at
FROM users
WHERE push_enabled = 1 AND is_blocked = 0 AND last_active_at >= ?`
	rows, err := r.db.QueryContext(ctx, query, activeSince)
	if err != nil {
		return nil, fmt.Errorf("list push eligible: %w", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		var u models.User
		var blocked, push int
		if err := rows.Scan(&u.ID, &u.TelegramID, &u.Username, &u.DisplayName, &blocked, &u.BlockedReason, &push, &u.TotalMessages, &u.LastActiveAt, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		u.IsBlocked = blocked != 0
		u.PushEnabled = push != 0
		users = append(users, u)
	}
	return users, rows.Err()
}
