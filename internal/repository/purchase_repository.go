package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hpol369/ItsNadchos/internal/models"
)

type PurchaseRepository struct {
	db *sql.DB
}

func NewPurchaseRepository(db *sql.DB) *PurchaseRepository {
	return &PurchaseRepository{db: db}
}

func (r *PurchaseRepository) Create(ctx context.Context, purchase *models.Purchase) error {
	const query = `
INSERT INTO purchases (user_id, package_id, reference_id, amount_cents, credits, status)
VALUES (?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, query, purchase.UserID, purchase.PackageID, purchase.ReferenceID, purchase.AmountCents, purchase.Credits, purchase.Status)
	if err != nil {
		return fmt.Errorf("insert purchase: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("purchase last insert id: %w", err)
	}
	purchase.ID = id
	return nil
}

func (r *PurchaseRepository) FindByReference(ctx context.Context, referenceID string) (*models.Purchase, error) {
	const query = `
SELECT id, user_id, package_id, reference_id, amount_cents, credits, status, created_at, updated_at
FROM purchases WHERE reference_id = ?`
	row := r.db.QueryRowContext(ctx, query, referenceID)
	var p models.Purchase
	if err := row.Scan(&p.ID, &p.UserID, &p.PackageID, &p.ReferenceID, &p.AmountCents, &p.Credits, &p.Status, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan purchase: %w", err)
	}
	return &p, nil
}

func (r *PurchaseRepository) UpdateStatus(ctx context.Context, purchaseID int64, status string) error {
	const query = `UPDATE purchases SET status = ?, updated_at = NOW() WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, status, purchaseID); err != nil {
		return fmt.Errorf("update purchase status: %w", err)
	}
	return nil
}
