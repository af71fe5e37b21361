package telegram

import (
	"context"
	"math/rand"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/hpol369/ItsNadchos/internal/models"
	"github.com/hpol369/ItsNadchos/internal/service"
)

const (
	freePhotoChance      = 0.1
	freePhotoMinMessages = 5
)

// handleChat runs the full message pipeline: moderation, rate limiting,
// credit gating, response generation, billing, delivery and the upsell
// decision. Free quota is consumed before generation so a crash mid-pipeline
// can never hand out extra free messages.
func (b *Bot) handleChat(ctx context.Context, msg *tgbotapi.Message) {
	now := time.Now()

	user, _, err := b.ensureUser(ctx, msg.From, msg.Chat.ID)
	if err != nil {
		b.log.Error("ensure user chat", "err", err)
		return
	}
	if user.IsBlocked {
		b.sendText(msg.Chat.ID, msgBlocked)
		return
	}

	limit, err := b.limiter.CheckAndRecord(ctx, user.ID, now)
	if err != nil {
		b.log.Error("rate limit check", "err", err)
		b.sendText(msg.Chat.ID, msgGenerateFailed)
		return
	}
	if limit.TempBlocked {
		b.sendText(msg.Chat.ID, msgTempBlocked)
		return
	}
	if limit.Blocked {
		b.sendText(msg.Chat.ID, msgRateWarning)
		return
	}

	state, err := b.conversations.EnsureState(ctx, user.ID)
	if err != nil {
		b.log.Error("ensure conversation state", "err", err)
		b.sendText(msg.Chat.ID, msgGenerateFailed)
		return
	}

	allowance, err := b.ledger.CheckMessageAllowance(ctx, user.ID, now)
	if err != nil {
		b.log.Error("check allowance", "err", err)
		b.sendText(msg.Chat.ID, msgGenerateFailed)
		return
	}
	if !allowance.Allowed {
		b.sendOutOfCredits(ctx, user, msg.Chat.ID)
		return
	}
	if allowance.IsFree {
		if err := b.ledger.RecordFreeMessageUsed(ctx, user.ID, now); err != nil {
			b.log.Error("record free message", "err", err)
			b.sendText(msg.Chat.ID, msgGenerateFailed)
			return
		}
	}

	if err := b.users.TouchActivity(ctx, user.ID); err != nil {
		b.log.Error("touch activity", "err", err)
	}
	user.TotalMessages++

	if err := b.conversations.RecordInbound(ctx, user.ID, msg.Text); err != nil {
		b.log.Error("record inbound", "err", err)
	}
	if err := b.conversations.CaptureMemory(ctx, user.ID, msg.Text); err != nil {
		b.log.Error("capture memory", "err", err)
	}

	conv, err := b.conversations.BuildContext(ctx, user, now)
	if err != nil {
		b.log.Error("build context", "err", err)
		b.sendText(msg.Chat.ID, msgGenerateFailed)
		return
	}

	b.sendTyping(msg.Chat.ID)
	reply, err := b.responder.Generate(ctx, msg.Text, conv, state.CurrentState, state.RelationshipTier)
	if err != nil {
		b.log.Error("generate reply", "err", err)
		b.sendText(msg.Chat.ID, msgGenerateFailed)
		return
	}

	if err := b.conversations.RecordOutbound(ctx, user.ID, reply); err != nil {
		b.log.Error("record outbound", "err", err)
	}

	footer := ""
	if allowance.IsFree {
		footer = freeFooter(allowance.FreeRemaining - 1)
	} else {
		if err := b.ledger.DeductMessageCredit(ctx, user.ID); err != nil {
			b.log.Error("deduct message credit", "err", err)
		}
		if balance, _, err := b.ledger.Balance(ctx, user.ID, now); err == nil {
			footer = creditFooter(balance)
		}
	}

	time.Sleep(pacingDelay(reply))
	b.sendText(msg.Chat.ID, reply+footer)

	b.maybeSendFreePhoto(ctx, user, msg.Chat.ID)

	if err := b.conversations.AdvancePhase(ctx, state, user.TotalMessages); err != nil {
		b.log.Error("advance phase", "err", err)
	}

	b.runUpsell(ctx, user, state, msg.Chat.ID, now)
}

func (b *Bot) sendOutOfCredits(ctx context.Context, user *models.User, chatID int64) {
	url, err := b.tokens.Issue(ctx, user.ID, time.Now())
	if err != nil {
		b.log.Error("issue purchase token", "err", err)
		b.sendText(chatID, msgOutOfCredits)
		return
	}
	out := tgbotapi.NewMessage(chatID, msgOutOfCredits)
	out.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonURL(btnBuyCredits, url),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(btnViewPacks, "packs"),
		),
	)
	if _, err := b.api.Send(out); err != nil {
		b.log.Error("send out-of-credits prompt", "err", err)
	}
}

// maybeSendFreePhoto occasionally drops a free teaser photo into an engaged
// conversation.
func (b *Bot) maybeSendFreePhoto(ctx context.Context, user *models.User, chatID int64) {
	if user.TotalMessages < freePhotoMinMessages || rand.Float64() >= freePhotoChance {
		return
	}
	photos, err := b.gallery.ListFree(ctx)
	if err != nil {
		b.log.Error("list free photos", "err", err)
		return
	}
	if len(photos) == 0 {
		return
	}
	photo := photos[rand.Intn(len(photos))]
	if err := b.SendPhoto(chatID, b.photoURL(photo.StoragePath), photo.Description); err != nil {
		b.log.Error("send free photo", "err", err)
	}
}

func (b *Bot) runUpsell(ctx context.Context, user *models.User, state *models.ConversationState, chatID int64, now time.Time) {
	decision := service.DecideUpsell(service.UpsellInput{
		Now:              now,
		TotalMessages:    user.TotalMessages,
		AccountCreatedAt: user.CreatedAt,
		State:            state,
		OwnedTier:        state.RelationshipTier,
	})
	if !decision.ShouldShow {
		if err := b.conversations.NoteMessage(ctx, user.ID); err != nil {
			b.log.Error("note message", "err", err)
		}
		return
	}

	text := msgUpsellTier1
	if decision.Tier == models.TierTwo {
		text = msgUpsellTier2
	}
	out := tgbotapi.NewMessage(chatID, text)
	out.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(btnViewPacks, "packs"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(btnMaybeLater, "dismiss"),
		),
	)
	if _, err := b.api.Send(out); err != nil {
		b.log.Error("send upsell", "err", err)
		return
	}
	if err := b.conversations.NoteUpsellShown(ctx, user.ID, now); err != nil {
		b.log.Error("note upsell shown", "err", err)
	}
}

func (b *Bot) sendTyping(chatID int64) {
	action := tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)
	if _, err := b.api.Request(action); err != nil {
		b.log.Error("send typing action", "err", err)
	}
}
