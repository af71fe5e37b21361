package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hpol369/ItsNadchos/internal/models"
)

type PhotoRepository struct {
	db *sql.DB
}

func NewPhotoRepository(db *sql.DB) *PhotoRepository {
	return &PhotoRepository{db: db}
}

func scanPhotos(rows *sql.Rows) ([]models.Photo, error) {
	var photos []models.Photo
	for rows.Next() {
		var p models.Photo
		var free, active int
		if err := rows.Scan(&p.ID, &p.Description, &p.StoragePath, &free, &active, &p.SortOrder, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan photo: %w", err)
		}
		p.IsFree = free != 0
		p.IsActive = active != 0
		photos = append(photos, p)
	}
	return photos, rows.Err()
}

func (r *PhotoRepository) ListActive(ctx context.Context, limit int) ([]models.Photo, error) {
	const query = `
SELECT id, COALESCE(description, ''), storage_path, is_free, is_active, sort_order, created_at
FROM photos
WHERE is_active = 1 AND is_free = 0
ORDER BY sort_order ASC, id ASC
LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list active photos: %w", err)
	}
	defer rows.Close()
	return scanPhotos(rows)
}

func (r *PhotoRepository) ListFree(ctx context.Context) ([]models.Photo, error) {
	const query = `
SELECT id, COALESCE(description, ''), storage_path, is_free, is_active, sort_order, created_at
FROM photos
WHERE is_active = 1 AND is_free = 1`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list free photos: %w", err)
	}
	defer rows.Close()
	return scanPhotos(rows)
}

func (r *PhotoRepository) GetByID(ctx context.Context, id int64) (*models.Photo, error) {
	const query = `
SELECT id, COALESCE(description, ''), storage_path, is_free, is_active, sort_order, created_at
FROM photos WHERE id = ?`
	row := r.db.QueryRowContext(ctx, query, id)
	var p models.Photo
	var free, active int
	if err := row.Scan(&p.ID, &p.Description, &p.StoragePath, &free, &active, &p.SortOrder, &p.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan photo: %w", err)
	}
	p.IsFree = free != 0
	p.IsActive = active != 0
	return &p, nil
}

func (r *PhotoRepository) Create(ctx context.Context, photo *models.Photo) error {
	free := 0
	if photo.IsFree {
		free = 1
	}
	active := 0
	if photo.IsActive {
		active = 1
	}
	const query = `
INSERT INTO photos (description, storage_path, is_free, is_active, sort_order)
VALUES (NULLIF(?, ''), ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, query, photo.Description, photo.StoragePath, free, active, photo.SortOrder)
	if err != nil {
		return fmt.Errorf("insert photo: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("photo last insert id: %w", err)
	}
	photo.ID = id
	return nil
}

func (r *PhotoRepository) IsUnlocked(ctx context.Context, userID, photoID int64) (bool, error) {
	const query = `SELECT 1 FROM unlocked_photos WHERE user_id = ? AND photo_id = ?`
	var one int
	if err := r.db.QueryRowContext(ctx, query, userID, photoID).Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check unlocked photo: %w", err)
	}
	return true, nil
}

func (r *PhotoRepository) ListUnlockedIDs(ctx context.Context, userID int64) ([]int64, error) {
	const query = `SELECT photo_id FROM unlocked_photos WHERE user_id = ?`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list unlocked photos: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan unlocked photo id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// InsertUnlock records the one-time spend. The unique (user, photo) key makes
// the insert the idempotence point: a second concurrent unlock inserts
// nothing and reports false.
func (r *PhotoRepository) InsertUnlock(ctx context.Context, userID, photoID int64, creditsSpent int) (bool, error) {
	const query = `
INSERT IGNORE INTO unlocked_photos (user_id, photo_id, credits_spent)
VALUES (?, ?, ?)`
	res, err := r.db.ExecContext(ctx, query, userID, photoID, creditsSpent)
	if err != nil {
		return false, fmt.Errorf("insert unlock: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("unlock rows affected: %w", err)
	}
	return affected > 0, nil
}
