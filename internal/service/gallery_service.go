package service

import (
	"context"
	"fmt"

	"github.com/hpol369/ItsNadchos/internal/models"
	"github.com/hpol369/ItsNadchos/internal/repository"
)

const galleryPageSize = 10

// GalleryItem is a photo annotated with the viewer's access.
type GalleryItem struct {
	Photo    models.Photo
	Unlocked bool
}

// Uploader stores raw photo bytes and returns the storage path. The S3 photo
// store implements it.
type Uploader interface {
	Upload(ctx context.Context, data []byte, contentType string) (string, error)
}

// GalleryService exposes the photo catalog with per-user unlock status.
type GalleryService struct {
	photos   *repository.PhotoRepository
	ledger   *CreditLedger
	uploader Uploader
}

func NewGalleryService(photos *repository.PhotoRepository, ledger *CreditLedger, uploader Uploader) *GalleryService {
	return &GalleryService{photos: photos, ledger: ledger, uploader: uploader}
}

// AddPhoto uploads content bytes to storage and registers the catalog row.
func (s *GalleryService) AddPhoto(ctx context.Context, data []byte, contentType, description string, isFree bool, sortOrder int) (*models.Photo, error) {
	storagePath, err := s.uploader.Upload(ctx, data, contentType)
	if err != nil {
		return nil, fmt.Errorf("upload photo: %w", err)
	}
	photo := &models.Photo{
		Description: description,
		StoragePath: storagePath,
		IsFree:      isFree,
		IsActive:    true,
		SortOrder:   sortOrder,
	}
	if err := s.photos.Create(ctx, photo); err != nil {
		return nil, fmt.Errorf("create photo: %w", err)
	}
	return photo, nil
}

// List returns the active paid catalog annotated with the user's unlocks.
func (s *GalleryService) List(ctx context.Context, userID int64) ([]GalleryItem, error) {
	photos, err := s.photos.ListActive(ctx, galleryPageSize)
	if err != nil {
		return nil, fmt.Errorf("list photos: %w", err)
	}
	unlockedIDs, err := s.photos.ListUnlockedIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list unlocks: %w", err)
	}
	unlocked := make(map[int64]bool, len(unlockedIDs))
	for _, id := range unlockedIDs {
		unlocked[id] = true
	}

	items := make([]GalleryItem, 0, len(photos))
	for _, p := range photos {
		items = append(items, GalleryItem{Photo: p, Unlocked: unlocked[p.ID]})
	}
	return items, nil
}

func (s *GalleryService) GetByID(ctx context.Context, photoID int64) (*models.Photo, error) {
	return s.photos.GetByID(ctx, photoID)
}

func (s *GalleryService) ListFree(ctx context.Context) ([]models.Photo, error) {
	return s.photos.ListFree(ctx)
}

// Unlock spends credits for permanent access to a photo.
func (s *GalleryService) Unlock(ctx context.Context, userID, photoID int64) (UnlockResult, error) {
	photo, err := s.photos.GetByID(ctx, photoID)
	if err != nil {
		return UnlockResult{}, fmt.Errorf("get photo: %w", err)
	}
	if photo == nil || !photo.IsActive {
		return UnlockResult{}, fmt.Errorf("photo %d not available", photoID)
	}
	if photo.IsFree {
		return UnlockResult{Success: true}, nil
	}
	return s.ledger.UnlockPhoto(ctx, userID, photoID)
}
