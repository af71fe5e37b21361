package service

import (
	"context"
	"fmt"

	"github.com/hpol369/ItsNadchos/internal/models"
	"github.com/hpol369/ItsNadchos/internal/repository"
)

// PackageService exposes the credit package catalog.
type PackageService struct {
	packages *repository.PackageRepository
}

func NewPackageService(packages *repository.PackageRepository) *PackageService {
	return &PackageService{packages: packages}
}

func (s *PackageService) ListActive(ctx context.Context) ([]models.CreditPackage, error) {
	return s.packages.ListActive(ctx)
}

func (s *PackageService) GetByID(ctx context.Context, id int64) (*models.CreditPackage, error) {
	return s.packages.GetByID(ctx, id)
}

// EnsureDefaultPackages seeds the catalog on first boot.
func (s *PackageService) EnsureDefaultPackages(ctx context.Context) error {
	count, err := s.packages.Count(ctx)
	if err != nil {
		return fmt.Errorf("count packages: %w", err)
	}
	if count > 0 {
		return nil
	}

	defaults := []models.CreditPackage{
		{Name: "Starter", Credits: 50, PriceCents: 499, IsActive: true},
		{Name: "Regular", Credits: 120, PriceCents: 999, IsActive: true},
		{Name: "Devoted", Credits: 300, PriceCents: 1999, IsActive: true},
	}
	for i := range defaults {
		if err := s.packages.Create(ctx, &defaults[i]); err != nil {
			return fmt.Errorf("seed package %q: %w", defaults[i].Name, err)
		}
	}
	return nil
}
