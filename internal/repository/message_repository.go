package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hpol369/ItsNadchos/internal/models"
)

type MessageRepository struct {
	db *sql.DB
}

func NewMessageRepository(db *sql.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Append(ctx context.Context, userID int64, role, content string) (int64, error) {
	const query = `INSERT INTO messages (user_id, role, content) VALUES (?, ?, ?)`
	res, err := r.db.ExecContext(ctx, query, userID, role, content)
	if err != nil {
		return 0, fmt.Errorf("insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("message last insert id: %w", err)
	}
	return id, nil
}

// ListRecent returns up to limit messages newer than since, oldest first.
func (r *MessageRepository) ListRecent(ctx context.Context, userID int64, since time.Time, limit int) ([]models.Message, error) {
	const query = `
SELECT id, user_id, role, content, created_at
FROM messages
WHERE user_id = ? AND created_at >= ?
ORDER BY id DESC
LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, userID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent messages: %w", err)
	}
	defer rows.Close()

	var msgs []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.UserID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Query walks newest-first for the LIMIT; callers want chronological order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}
