package service

import (
	"context"
	"encoding/json"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"github.com/hpol369/ItsNadchos/internal/config"
	"github.com/hpol369/ItsNadchos/internal/models"
	"github.com/hpol369/ItsNadchos/internal/repository"
)

// tier2CreditThreshold is the lifetime purchase volume that marks a user as a
// top-tier supporter.
const tier2CreditThreshold = 300

type PaymentService struct {
	cfg           config.Config
	ledger        *CreditLedger
	packages      *PackageService
	purchases     *repository.PurchaseRepository
	conversations *repository.ConversationRepository
}

func NewPaymentService(cfg config.Config, ledger *CreditLedger, packages *PackageService, purchases *repository.PurchaseRepository, conversations *repository.ConversationRepository) *PaymentService {
	return &PaymentService{
		cfg:           cfg,
		ledger:        ledger,
		packages:      packages,
		purchases:     purchases,
		conversations: conversations,
	}
}

// SendInvoice sends a native Telegram invoice for the chosen credit package.
func (s *PaymentService) SendInvoice(ctx context.Context, bot *tgbotapi.BotAPI, chatID, packageID int64) error {
	pkg, err := s.packages.GetByID(ctx, packageID)
	if err != nil {
		return fmt.Errorf("get package: %w", err)
	}
	if pkg == nil || !pkg.IsActive {
		return fmt.Errorf("package %d not available", packageID)
	}

	payload, _ := json.Marshal(map[string]any{"package_id": pkg.ID})
	prices := []tgbotapi.LabeledPrice{
		{Label: fmt.Sprintf("%d credits", pkg.Credits), Amount: pkg.PriceCents},
	}

	invoice := tgbotapi.NewInvoice(chatID,
		pkg.Name,
		fmt.Sprintf("%d credits for chatting with Nadia", pkg.Credits),
		string(payload),
		s.cfg.TelegramPaymentProviderToken,
		"topup",
		s.cfg.PaymentCurrency,
		prices,
	)

	if _, err := bot.Send(invoice); err != nil {
		return fmt.Errorf("send invoice: %w", err)
	}
	return nil
}

// HandlePreCheckout approves or rejects a checkout before Telegram charges
// the card. Rejection reasons are user-visible.
func (s *PaymentService) HandlePreCheckout(ctx context.Context, bot *tgbotapi.BotAPI, user *models.User, query *tgbotapi.PreCheckoutQuery) error {
	response := tgbotapi.PreCheckoutConfig{
		PreCheckoutQueryID: query.ID,
		OK:                 true,
	}

	switch {
	case user == nil:
		response.OK = false
		response.ErrorMessage = "Account not found. Send /start first."
	case user.IsBlocked:
		response.OK = false
		response.ErrorMessage = "This account cannot make purchases."
	default:
		pkg, err := s.packageFromPayload(ctx, query.InvoicePayload)
		if err != nil || pkg == nil || !pkg.IsActive {
			response.OK = false
			response.ErrorMessage = "This package is no longer available."
		}
	}

	if _, err := bot.Request(response); err != nil {
		return fmt.Errorf("answer pre-checkout: %w", err)
	}
	return nil
}

// HandleSuccessfulPayment credits the account and records the purchase.
// Returns the credited amount and the new balance.
func (s *PaymentService) HandleSuccessfulPayment(ctx context.Context, user *models.User, payment *tgbotapi.SuccessfulPayment) (int, int, error) {
	pkg, err := s.packageFromPayload(ctx, payment.InvoicePayload)
	if err != nil {
		return 0, 0, err
	}
	if pkg == nil {
		return 0, 0, fmt.Errorf("no package for payment payload")
	}

	referenceID := payment.ProviderPaymentChargeID
	if referenceID == "" {
		referenceID = uuid.NewString()
	}

	existing, err := s.purchases.FindByReference(ctx, referenceID)
	if err != nil {
		return 0, 0, fmt.Errorf("find purchase: %w", err)
	}
	if existing != nil && existing.Status == "completed" {
		return 0, 0, nil // provider retry, already credited
	}

	if err := s.purchases.Create(ctx, &models.Purchase{
		UserID:      user.ID,
		PackageID:   pkg.ID,
		ReferenceID: referenceID,
		AmountCents: payment.TotalAmount,
		Credits:     pkg.Credits,
		Status:      "completed",
	}); err != nil {
		return 0, 0, fmt.Errorf("record purchase: %w", err)
	}

	balance, err := s.ledger.AddCredits(ctx, user.ID, pkg.Credits, models.TransactionPurchase, referenceID)
	if err != nil {
		return 0, 0, err
	}

	if err := s.bumpTier(ctx, user.ID); err != nil {
		return pkg.Credits, balance, err
	}
	return pkg.Credits, balance, nil
}

// bumpTier upgrades the relationship tier based on lifetime purchase volume.
// Any purchase reaches tier1; tier2CreditThreshold lifetime credits reach tier2.
func (s *PaymentService) bumpTier(ctx context.Context, userID int64) error {
	account, err := s.ledger.accounts.GetAccount(ctx, userID)
	if err != nil {
		return fmt.Errorf("get account for tier: %w", err)
	}
	tier := models.TierOne
	if account != nil && account.LifetimePurchased >= tier2CreditThreshold {
		tier = models.TierTwo
	}
	if err := s.conversations.SetTier(ctx, userID, tier); err != nil {
		return fmt.Errorf("set tier: %w", err)
	}
	return nil
}

func (s *PaymentService) packageFromPayload(ctx context.Context, invoicePayload string) (*models.CreditPackage, error) {
	var payload struct {
		PackageID int64 `json:"package_id"`
	}
	if err := json.Unmarshal([]byte(invoicePayload), &payload); err != nil {
		return nil, fmt.Errorf("parse payment payload: %w", err)
	}
	if payload.PackageID <= 0 {
		return nil, fmt.Errorf("payment payload missing package id")
	}
	pkg, err := s.packages.GetByID(ctx, payload.PackageID)
	if err != nil {
		return nil, fmt.Errorf("get package: %w", err)
	}
	return pkg, nil
}
