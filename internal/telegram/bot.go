package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/hpol369/ItsNadchos/internal/config"
	"github.com/hpol369/ItsNadchos/internal/models"
	"github.com/hpol369/ItsNadchos/internal/responder"
	"github.com/hpol369/ItsNadchos/internal/service"
)

// Responder produces in-character replies; the OpenAI client implements it.
type Responder interface {
	Generate(ctx context.Context, userText string, conv responder.Context, phase models.ConversationPhase, tier models.Tier) (string, error)
}

type Bot struct {
	cfg           config.Config
	api           *tgbotapi.BotAPI
	log           *slog.Logger
	users         *service.UserService
	limiter       *service.RateLimiter
	ledger        *service.CreditLedger
	tokens        *service.TokenBroker
	conversations *service.ConversationService
	packages      *service.PackageService
	payments      *service.PaymentService
	gallery       *service.GalleryService
	responder     Responder
	photoURL      func(storagePath string) string
}

func NewBot(
	cfg config.Config,
	api *tgbotapi.BotAPI,
	log *slog.Logger,
	users *service.UserService,
	limiter *service.RateLimiter,
	ledger *service.CreditLedger,
	tokens *service.TokenBroker,
	conversations *service.ConversationService,
	packages *service.PackageService,
	payments *service.PaymentService,
	gallery *service.GalleryService,
	resp Responder,
	photoURL func(storagePath string) string,
) *Bot {
	return &Bot{
		cfg:           cfg,
		api:           api,
		log:           log,
		users:         users,
		limiter:       limiter,
		ledger:        ledger,
		tokens:        tokens,
		conversations: conversations,
		packages:      packages,
		payments:      payments,
		gallery:       gallery,
		responder:     resp,
		photoURL:      photoURL,
	}
}

func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	b.log.Info("telegram bot started")

	for {
		select {
		case update := <-updates:
			go b.dispatch(ctx, update)
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return ctx.Err()
		}
	}
}

// dispatch routes one update. Each update runs in its own goroutine so a slow
// response generation never stalls the poll loop.
func (b *Bot) dispatch(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("update handler panicked", "panic", r)
			// The conversation must never go silently unanswered.
			if chatID := updateChatID(update); chatID != 0 {
				b.sendText(chatID, msgGenerateFailed)
			}
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, b.cfg.RequestTimeout)
	defer cancel()

	switch {
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.PreCheckoutQuery != nil:
		b.handlePreCheckout(ctx, update.PreCheckoutQuery)
	}
}

// updateChatID resolves the chat an update came from, or 0 when the update
// carries no chat (pre-checkout queries answer through their own channel).
func updateChatID(update tgbotapi.Update) int64 {
	switch {
	case update.Message != nil:
		return update.Message.Chat.ID
	case update.CallbackQuery != nil && update.CallbackQuery.Message != nil:
		return update.CallbackQuery.Message.Chat.ID
	}
	return 0
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.SuccessfulPayment != nil {
		b.handleSuccessfulPayment(ctx, msg)
		return
	}
	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}
	if strings.TrimSpace(msg.Text) == "" {
		return
	}
	b.handleChat(ctx, msg)
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	user, _, err := b.ensureUser(ctx, msg.From, msg.Chat.ID)
	if err != nil {
		b.log.Error("ensure user", "err", err)
		return
	}
	if user.IsBlocked {
		b.sendText(msg.Chat.ID, msgBlocked)
		return
	}

	switch msg.Command() {
	case "start":
		if _, err := b.conversations.EnsureState(ctx, user.ID); err != nil {
			b.log.Error("ensure conversation state", "err", err)
		}
		b.sendText(msg.Chat.ID, fmt.Sprintf(msgWelcome, displayName(user), b.cfg.FreeDailyMessages))
	case "help":
		b.sendText(msg.Chat.ID, fmt.Sprintf(msgHelp, b.cfg.FreeDailyMessages, b.cfg.CreditsPerMessage))
	case "support":
		b.sendText(msg.Chat.ID, msgSupport)
	case "balance", "nachos":
		b.handleBalance(ctx, user, msg.Chat.ID)
	case "buy":
		b.handleBuy(ctx, user, msg.Chat.ID)
	case "gallery":
		b.handleGallery(ctx, user, msg.Chat.ID)
	case "notifications":
		b.handleNotificationsToggle(ctx, user, msg.Chat.ID)
	default:
		b.sendText(msg.Chat.ID, msgUnknownCommand)
	}
}

func (b *Bot) handleBalance(ctx context.Context, user *models.User, chatID int64) {
	balance, usedToday, err := b.ledger.Balance(ctx, user.ID, time.Now())
	if err != nil {
		b.log.Error("get balance", "err", err)
		b.sendText(chatID, msgGenerateFailed)
		return
	}
	free := b.ledger.FreeRemaining(usedToday)
	b.sendText(chatID, fmt.Sprintf("You have %d credits and %d free messages left today.", balance, free))
}

// handleBuy sends the storefront link plus inline package buttons for users
// who prefer paying inside Telegram.
func (b *Bot) handleBuy(ctx context.Context, user *models.User, chatID int64) {
	url, err := b.tokens.Issue(ctx, user.ID, time.Now())
	if err != nil {
		b.log.Error("issue purchase token", "err", err)
		b.sendText(chatID, msgGenerateFailed)
		return
	}

	packs, err := b.packages.ListActive(ctx)
	if err != nil {
		b.log.Error("list packages", "err", err)
		b.sendText(chatID, msgGenerateFailed)
		return
	}

	rows := [][]tgbotapi.InlineKeyboardButton{
		{tgbotapi.NewInlineKeyboardButtonURL(btnBuyCredits, url)},
	}
	for _, p := range packs {
		label := fmt.Sprintf("%s: %d credits ($%.2f)", p.Name, p.Credits, float64(p.PriceCents)/100)
		rows = append(rows, []tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardButtonData(label, "buy_"+strconv.FormatInt(p.ID, 10)),
		})
	}

	out := tgbotapi.NewMessage(chatID, "Pick a credit pack, or use the web store:")
	out.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	if _, err := b.api.Send(out); err != nil {
		b.log.Error("send buy menu", "err", err)
	}
}

func (b *Bot) handleGallery(ctx context.Context, user *models.User, chatID int64) {
	items, err := b.gallery.List(ctx, user.ID)
	if err != nil {
		b.log.Error("list gallery", "err", err)
		b.sendText(chatID, msgGenerateFailed)
		return
	}
	if len(items) == 0 {
		b.sendText(chatID, msgGalleryEmpty)
		return
	}

	for _, item := range items {
		if item.Unlocked {
			photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(b.photoURL(item.Photo.StoragePath)))
			photo.Caption = item.Photo.Description
			if _, err := b.api.Send(photo); err != nil {
				b.log.Error("send gallery photo", "err", err)
			}
			continue
		}
		out := tgbotapi.NewMessage(chatID, item.Photo.Description)
		out.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData(
					fmt.Sprintf(btnUnlockPhoto, b.cfg.CreditsPerPhoto),
					"unlock_"+strconv.FormatInt(item.Photo.ID, 10),
				),
			),
		)
		if _, err := b.api.Send(out); err != nil {
			b.log.Error("send gallery item", "err", err)
		}
	}
}

// handleNotificationsToggle flips the daily check-in opt-in.
func (b *Bot) handleNotificationsToggle(ctx context.Context, user *models.User, chatID int64) {
	enabled := !user.PushEnabled
	if err := b.users.SetPushEnabled(ctx, user.ID, enabled); err != nil {
		b.log.Error("toggle push", "err", err)
		b.sendText(chatID, msgGenerateFailed)
		return
	}
	if enabled {
		b.sendText(chatID, "Daily check-ins are back on. I'll message you when I miss you!")
	} else {
		b.sendText(chatID, "Okay, no more daily check-ins from me. Send /notifications to turn them back on.")
	}
}

func (b *Bot) handlePreCheckout(ctx context.Context, query *tgbotapi.PreCheckoutQuery) {
	var user *models.User
	if query.From != nil {
		found, _, err := b.ensureUser(ctx, query.From, int64(query.From.ID))
		if err != nil {
			b.log.Error("ensure user pre-checkout", "err", err)
		} else {
			user = found
		}
	}
	if err := b.payments.HandlePreCheckout(ctx, b.api, user, query); err != nil {
		b.log.Error("pre-checkout failed", "err", err)
	}
}

func (b *Bot) handleSuccessfulPayment(ctx context.Context, msg *tgbotapi.Message) {
	user, _, err := b.ensureUser(ctx, msg.From, msg.Chat.ID)
	if err != nil {
		b.log.Error("ensure user payment", "err", err)
		return
	}
	credits, _, err := b.payments.HandleSuccessfulPayment(ctx, user, msg.SuccessfulPayment)
	if err != nil {
		b.log.Error("process successful payment", "err", err)
		return
	}
	if credits > 0 {
		b.sendText(msg.Chat.ID, fmt.Sprintf(msgPaymentDone, credits))
	}
}

// NotifyCreditsAdded tells a user their storefront purchase landed. Used by
// the HTTP boundary after a token redemption.
func (b *Bot) NotifyCreditsAdded(telegramID int64, credits, balance int) {
	b.sendText(telegramID, fmt.Sprintf("Your purchase went through! +%d credits (balance: %d). Come talk to me!", credits, balance))
}

// SendText implements the push notifier.
func (b *Bot) SendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("send text: %w", err)
	}
	return nil
}

// SendPhoto implements the push notifier.
func (b *Bot) SendPhoto(chatID int64, photoURL, caption string) error {
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(photoURL))
	photo.Caption = caption
	if _, err := b.api.Send(photo); err != nil {
		return fmt.Errorf("send photo: %w", err)
	}
	return nil
}

func (b *Bot) ensureUser(ctx context.Context, from *tgbotapi.User, chatID int64) (*models.User, bool, error) {
	telegramID := chatID
	username := ""
	name := ""
	if from != nil {
		telegramID = int64(from.ID)
		username = from.UserName
		name = strings.TrimSpace(strings.TrimSpace(from.FirstName) + " " + strings.TrimSpace(from.LastName))
	}
	return b.users.Ensure(ctx, telegramID, username, name)
}

func (b *Bot) sendText(chatID int64, text string) {
	if err := b.SendText(chatID, text); err != nil {
		b.log.Error("send text", "err", err)
	}
}

func displayName(user *models.User) string {
	if user.DisplayName != "" {
		return user.DisplayName
	}
	if user.Username != "" {
		return user.Username
	}
	return "you"
}
