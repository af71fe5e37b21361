package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hpol369/ItsNadchos/internal/models"
)

type PackageRepository struct {
	db *sql.DB
}

func NewPackageRepository(db *sql.DB) *PackageRepository {
	return &PackageRepository{db: db}
}

func (r *PackageRepository) ListActive(ctx context.Context) ([]models.CreditPackage, error) {
	const query = `
SELECT id, name, credits, price_cents, is_active, created_at, updated_at
FROM credit_packages
WHERE is_active = 1
ORDER BY price_cents ASC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list packages: %w", err)
	}
	defer rows.Close()

	var packages []models.CreditPackage
	for rows.Next() {
		var p models.CreditPackage
		if err := rows.Scan(&p.ID, &p.Name, &p.Credits, &p.PriceCents, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan package: %w", err)
		}
		packages = append(packages, p)
	}
	return packages, rows.Err()
}

func (r *PackageRepository) GetByID(ctx context.Context, id int64) (*models.CreditPackage, error) {
	const query = `
SELECT id, name, credits, price_cents, is_active, created_at, updated_at
FROM credit_packages WHERE id = ?`
	row := r.db.QueryRowContext(ctx, query, id)
	var p models.CreditPackage
	if err := row.Scan(&p.ID, &p.Name, &p.Credits, &p.PriceCents, &p.IsActive, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan package: %w", err)
	}
	return &p, nil
}

func (r *PackageRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM credit_packages`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count packages: %w", err)
	}
	return count, nil
}

func (r *PackageRepository) Create(ctx context.Context, pkg *models.CreditPackage) error {
	active := 0
	if pkg.IsActive {
		active = 1
	}
	const query = `INSERT INTO credit_packages (name, credits, price_cents, is_active) VALUES (?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, query, pkg.Name, pkg.Credits, pkg.PriceCents, active)
	if err != nil {
		return fmt.Errorf("insert package: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("package last insert id: %w", err)
	}
	pkg.ID = id
	return nil
}
