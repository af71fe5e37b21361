package service

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/hpol369/ItsNadchos/internal/models"
	"github.com/hpol369/ItsNadchos/internal/repository"
	"github.com/hpol369/ItsNadchos/internal/responder"
)

const (
	pushActivityWindow = 7 * 24 * time.Hour
	pushSendSpacing    = 100 * time.Millisecond
	pushPhotoChance    = 0.3
)

// Notifier delivers outbound pushes. The bot transport implements it.
type Notifier interface {
	SendText(chatID int64, text string) error
	SendPhoto(chatID int64, photoURL, caption string) error
}

// SweepResult summarizes one daily push run.
type SweepResult struct {
	Eligible int
	Sent     int
	Skipped  int
	Failed   int
}

// DailyPushService sends at most one unprompted check-in per user per day to
// keep recently active users coming back.
type DailyPushService struct {
	users         *repository.UserRepository
	notifications *repository.NotificationRepository
	photos        *repository.PhotoRepository
	responder     *responder.Client
	notifier      Notifier
	photoURL      func(storagePath string) string
	log           *slog.Logger
}

func NewDailyPushService(
	users *repository.UserRepository,
	notifications *repository.NotificationRepository,
	photos *repository.PhotoRepository,
	resp *responder.Client,
	notifier Notifier,
	photoURL func(storagePath string) string,
	log *slog.Logger,
) *DailyPushService {
	return &DailyPushService{
		users:         users,
		notifications: notifications,
		photos:        photos,
		responder:     resp,
		notifier:      notifier,
		photoURL:      photoURL,
		log:           log,
	}
}

// Sweep runs one pass over push-eligible users. Users are eligible when push
// is enabled, they are not blocked, they were active inside the activity
// window, and nothing was sent to them today. The notification row is claimed
// before sending so a concurrent sweep cannot double-send.
func (s *DailyPushService) Sweep(ctx context.Context, now time.Time) (SweepResult, error) {
	var result SweepResult

	users, err := s.users.ListPushEligible(ctx, now.Add(-pushActivityWindow))
	if err != nil {
		return result, err
	}
	result.Eligible = len(users)
	date := now.UTC().Format("2006-01-02")

	freePhotos, err := s.photos.ListFree(ctx)
	if err != nil {
		s.log.Warn("list free photos for push", "error", err)
	}

	for _, user := range users {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		sent, err := s.notifications.SentToday(ctx, user.ID, date)
		if err != nil {
			s.log.Error("check notification", "user_id", user.ID, "error", err)
			result.Failed++
			continue
		}
		if sent {
			result.Skipped++
			continue
		}

		text, err := s.responder.DailyCheckIn(ctx, responder.Context{DisplayName: user.DisplayName})
		if err != nil {
			s.log.Error("generate check-in", "user_id", user.ID, "error", err)
			result.Failed++
			continue
		}

		var photo *models.Photo
		if len(freePhotos) > 0 && rand.Float64() < pushPhotoChance {
			photo = &freePhotos[rand.Intn(len(freePhotos))]
		}

		var photoID *int64
		if photo != nil {
			photoID = &photo.ID
		}
		claimed, err := s.notifications.Record(ctx, user.ID, date, text, photoID)
		if err != nil {
			s.log.Error("record notification", "user_id", user.ID, "error", err)
			result.Failed++
			continue
		}
		if !claimed {
			result.Skipped++
			continue
		}

		if photo != nil {
			err = s.notifier.SendPhoto(user.TelegramID, s.photoURL(photo.StoragePath), text)
		} else {
			err = s.notifier.SendText(user.TelegramID, text)
		}
		if err != nil {
			s.log.Error("send push", "user_id", user.ID, "error", err)
			result.Failed++
			continue
		}
		result.Sent++

		time.Sleep(pushSendSpacing)
	}

	s.log.Info("daily push sweep done",
		"eligible", result.Eligible, "sent", result.Sent,
		"skipped", result.Skipped, "failed", result.Failed)
	return result, nil
}
