package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil {
		return
	}
	chatID := cb.Message.Chat.ID

	user, _, err := b.ensureUser(ctx, cb.From, chatID)
	if err != nil {
		b.log.Error("ensure user callback", "err", err)
		b.ackCallback(cb.ID, "Something went wrong")
		return
	}
	if user.IsBlocked {
		b.ackCallback(cb.ID, "")
		return
	}

	switch {
	case strings.HasPrefix(cb.Data, "unlock_"):
		b.handleUnlockCallback(ctx, cb, user.ID, chatID)
	case strings.HasPrefix(cb.Data, "buy_"):
		packageID, err := strconv.ParseInt(strings.TrimPrefix(cb.Data, "buy_"), 10, 64)
		if err != nil {
			b.ackCallback(cb.ID, "Unknown pack")
			return
		}
		b.ackCallback(cb.ID, "")
		if err := b.payments.SendInvoice(ctx, b.api, chatID, packageID); err != nil {
			b.log.Error("send invoice", "err", err)
			b.sendText(chatID, "Couldn't start the payment. Try again in a moment.")
		}
	case cb.Data == "packs":
		b.ackCallback(cb.ID, "")
		b.handleBuy(ctx, user, chatID)
	case cb.Data == "dismiss":
		b.ackCallback(cb.ID, "No worries!")
	default:
		b.ackCallback(cb.ID, "Unknown action")
	}
}

func (b *Bot) handleUnlockCallback(ctx context.Context, cb *tgbotapi.CallbackQuery, userID, chatID int64) {
	photoID, err := strconv.ParseInt(strings.TrimPrefix(cb.Data, "unlock_"), 10, 64)
	if err != nil {
		b.ackCallback(cb.ID, "Unknown photo")
		return
	}

	result, err := b.gallery.Unlock(ctx, userID, photoID)
	if err != nil {
		b.log.Error("unlock photo", "err", err)
		b.ackCallback(cb.ID, "Something went wrong")
		return
	}
	if !result.Success {
		b.ackCallback(cb.ID, "")
		b.sendText(chatID, fmt.Sprintf(msgUnlockShort, result.Needed, result.Available))
		return
	}

	b.ackCallback(cb.ID, msgUnlockDone)
	photo, err := b.gallery.GetByID(ctx, photoID)
	if err != nil || photo == nil {
		b.log.Error("get unlocked photo", "err", err)
		return
	}
	if err := b.SendPhoto(chatID, b.photoURL(photo.StoragePath), photo.Description); err != nil {
		b.log.Error("send unlocked photo", "err", err)
	}
}

func (b *Bot) ackCallback(callbackID, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		b.log.Error("callback ack", "err", err)
	}
}
