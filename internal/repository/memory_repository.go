package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hpol369/ItsNadchos/internal/models"
)

type MemoryRepository struct {
	db *sql.DB
}

func NewMemoryRepository(db *sql.DB) *MemoryRepository {
	return &MemoryRepository{db: db}
}

func (r *MemoryRepository) Add(ctx context.Context, userID int64, content string) error {
	const query = `INSERT INTO user_memories (user_id, content) VALUES (?, ?)`
	if _, err := r.db.ExecContext(ctx, query, userID, content); err != nil {
		return fmt.Errorf("insert memory: %w", err)
	}
	return nil
}

func (r *MemoryRepository) ListRecent(ctx context.Context, userID int64, limit int) ([]models.UserMemory, error) {
	const query = `
SELECT id, user_id, content, created_at
FROM user_memories
WHERE user_id = ?
ORDER BY id DESC
LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	defer rows.Close()

	var memories []models.UserMemory
	for rows.Next() {
		var m models.UserMemory
		if err := rows.Scan(&m.ID, &m.UserID, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		memories = append(memories, m)
	}
	return memories, rows.Err()
}
