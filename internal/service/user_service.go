package service

import (
	"context"

	"github.com/hpol369/ItsNadchos/internal/models"
	"github.com/hpol369/ItsNadchos/internal/repository"
)

// UserService wraps user identity and moderation operations.
type UserService struct {
	users *repository.UserRepository
}

func NewUserService(users *repository.UserRepository) *UserService {
	return &UserService{users: users}
}

// Ensure resolves a chat sender to an internal user, creating the row on
// first contact. Returns whether the user was just created.
func (s *UserService) Ensure(ctx context.Context, telegramID int64, username, displayName string) (*models.User, bool, error) {
	return s.users.Ensure(ctx, telegramID, username, displayName)
}

func (s *UserService) FindByID(ctx context.Context, id int64) (*models.User, error) {
	return s.users.FindByID(ctx, id)
}

func (s *UserService) TouchActivity(ctx context.Context, userID int64) error {
	return s.users.TouchActivity(ctx, userID)
}

func (s *UserService) SetBlocked(ctx context.Context, userID int64, blocked bool, reason string) error {
	return s.users.SetBlocked(ctx, userID, blocked, reason)
}

func (s *UserService) SetPushEnabled(ctx context.Context, userID int64, enabled bool) error {
	return s.users.SetPushEnabled(ctx, userID, enabled)
}
