package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hpol369/ItsNadchos/internal/config"
	"github.com/hpol369/ItsNadchos/internal/models"
)

var ErrInsufficientCredits = errors.New("insufficient credits")

// CreditAccountStore is the atomic half of the ledger: every mutation is a
// conditional single-row update paired with its transaction entry.
type CreditAccountStore interface {
	GetAccount(ctx context.Context, userID int64) (*models.CreditAccount, error)
	AddCredits(ctx context.Context, userID int64, amount int, txType models.TransactionType, description, referenceID string) (int, error)
	DeductCredits(ctx context.Context, userID int64, amount int, txType models.TransactionType, description, referenceID string) (bool, error)
	SumTransactions(ctx context.Context, userID int64) (int, error)
	ListTransactions(ctx context.Context, userID int64, limit int) ([]models.CreditTransaction, error)
}

type DailyMessageStore interface {
	CountForDay(ctx context.Context, userID int64, date string) (int, error)
	Increment(ctx context.Context, userID int64, date string) error
}

type UnlockStore interface {
	IsUnlocked(ctx context.Context, userID, photoID int64) (bool, error)
	InsertUnlock(ctx context.Context, userID, photoID int64, creditsSpent int) (bool, error)
}

// Allowance is the outcome of the pre-generation credit check.
type Allowance struct {
	Allowed       bool
	IsFree        bool
	Balance       int
	FreeRemaining int
}

// UnlockResult reports a photo unlock attempt. On failure Needed and
// Available carry the exact shortfall so the caller can offer a top-up.
type UnlockResult struct {
	Success      bool
	CreditsSpent int
	Needed       int
	Available    int
}

// CreditLedger owns balances, the daily free-message allowance and content
// unlocks. Credits are whole non-negative integers; the balance is a
// materialized cache of the transaction sum.
type CreditLedger struct {
	cfg      config.Config
	accounts CreditAccountStore
	daily    DailyMessageStore
	unlocks  UnlockStore
}

func NewCreditLedger(cfg config.Config, accounts CreditAccountStore, daily DailyMessageStore, unlocks UnlockStore) *CreditLedger {
	return &CreditLedger{cfg: cfg, accounts: accounts, daily: daily, unlocks: unlocks}
}

func calendarDate(now time.Time) string {
	return now.UTC().Format("2006-01-02")
}

// CheckMessageAllowance decides whether a message is free, paid or blocked.
// The free daily quota is consumed before the balance is ever considered.
func (l *CreditLedger) CheckMessageAllowance(ctx context.Context, userID int64, now time.Time) (Allowance, error) {
	todayCount, err := l.daily.CountForDay(ctx, userID, calendarDate(now))
	if err != nil {
		return Allowance{}, fmt.Errorf("count free messages: %w", err)
	}
	freeRemaining := l.cfg.FreeDailyMessages - todayCount
	if freeRemaining > 0 {
		return Allowance{Allowed: true, IsFree: true, FreeRemaining: freeRemaining}, nil
	}

	account, err := l.accounts.GetAccount(ctx, userID)
	if err != nil {
		return Allowance{}, fmt.Errorf("get credit account: %w", err)
	}
	balance := 0
	if account != nil {
		balance = account.Balance
	}
	return Allowance{
		Allowed: balance >= l.cfg.CreditsPerMessage,
		Balance: balance,
	}, nil
}

// RecordFreeMessageUsed consumes one unit of today's quota. Called before
// response generation so two concurrent messages cannot both pass the quota
// check and then both record afterwards.
func (l *CreditLedger) RecordFreeMessageUsed(ctx context.Context, userID int64, now time.Time) error {
	if err := l.daily.Increment(ctx, userID, calendarDate(now)); err != nil {
		return fmt.Errorf("record free message: %w", err)
	}
	return nil
}

// DeductMessageCredit charges one paid message.
func (l *CreditLedger) DeductMessageCredit(ctx context.Context, userID int64) error {
	ok, err := l.accounts.DeductCredits(ctx, userID, l.cfg.CreditsPerMessage, models.TransactionMessage, "Message sent", "")
	if err != nil {
		return fmt.Errorf("deduct message credit: %w", err)
	}
	if !ok {
		return ErrInsufficientCredits
	}
	return nil
}

// AddCredits credits the account and returns the new balance. The account row
// is created lazily on first use.
func (l *CreditLedger) AddCredits(ctx context.Context, userID int64, amount int, txType models.TransactionType, referenceID string) (int, error) {
	balance, err := l.accounts.AddCredits(ctx, userID, amount, txType, transactionDescription(txType), referenceID)
	if err != nil {
		return 0, fmt.Errorf("add credits: %w", err)
	}
	return balance, nil
}

func transactionDescription(txType models.TransactionType) string {
	switch txType {
	case models.TransactionPurchase:
		return "Credits purchased"
	case models.TransactionDailyBonus:
		return "Daily bonus"
	case models.TransactionRefund:
		return "Refund"
	default:
		return ""
	}
}

// Balance returns the current balance and free messages used today.
func (l *CreditLedger) Balance(ctx context.Context, userID int64, now time.Time) (int, int, error) {
	account, err := l.accounts.GetAccount(ctx, userID)
	if err != nil {
		return 0, 0, fmt.Errorf("get credit account: %w", err)
	}
	balance := 0
	if account != nil {
		balance = account.Balance
	}
	todayCount, err := l.daily.CountForDay(ctx, userID, calendarDate(now))
	if err != nil {
		return 0, 0, fmt.Errorf("count free messages: %w", err)
	}
	return balance, todayCount, nil
}

// FreeRemaining converts a used count into the remaining quota.
func (l *CreditLedger) FreeRemaining(usedToday int) int {
	remaining := l.cfg.FreeDailyMessages - usedToday
	if remaining < 0 {
		return 0
	}
	return remaining
}

// UnlockPhoto spends credits for permanent access to a content item. The
// operation is idempotent: re-requesting an already-unlocked item costs
// nothing. When two requests race, the unique unlock row decides the winner
// and the loser's deduction is refunded.
func (l *CreditLedger) UnlockPhoto(ctx context.Context, userID, photoID int64) (UnlockResult, error) {
	unlocked, err := l.unlocks.IsUnlocked(ctx, userID, photoID)
	if err != nil {
		return UnlockResult{}, fmt.Errorf("check unlock: %w", err)
	}
	if unlocked {
		return UnlockResult{Success: true}, nil
	}

	cost := l.cfg.CreditsPerPhoto
	ref := fmt.Sprintf("photo:%d", photoID)
	ok, err := l.accounts.DeductCredits(ctx, userID, cost, models.TransactionPhotoUnlock, "Photo unlocked", ref)
	if err != nil {
		return UnlockResult{}, fmt.Errorf("deduct unlock credits: %w", err)
	}
	if !ok {
		account, err := l.accounts.GetAccount(ctx, userID)
		if err != nil {
			return UnlockResult{}, fmt.Errorf("get credit account: %w", err)
		}
		available := 0
		if account != nil {
			available = account.Balance
		}
		return UnlockResult{Needed: cost, Available: available}, nil
	}

	inserted, err := l.unlocks.InsertUnlock(ctx, userID, photoID, cost)
	if err != nil {
		return UnlockResult{}, fmt.Errorf("insert unlock: %w", err)
	}
	if !inserted {
		// A concurrent unlock won the unique-key race; give the credits back.
		if _, err := l.accounts.AddCredits(ctx, userID, cost, models.TransactionRefund, "Refund", ref); err != nil {
			return UnlockResult{}, fmt.Errorf("refund lost unlock race: %w", err)
		}
		return UnlockResult{Success: true}, nil
	}

	return UnlockResult{Success: true, CreditsSpent: cost}, nil
}

// RecentTransactions returns the newest ledger entries for a user.
func (l *CreditLedger) RecentTransactions(ctx context.Context, userID int64, limit int) ([]models.CreditTransaction, error) {
	txs, err := l.accounts.ListTransactions(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return txs, nil
}

// Reconcile verifies the balance against the transaction sum for a user.
func (l *CreditLedger) Reconcile(ctx context.Context, userID int64) (bool, int, int, error) {
	account, err := l.accounts.GetAccount(ctx, userID)
	if err != nil {
		return false, 0, 0, fmt.Errorf("get credit account: %w", err)
	}
	balance := 0
	if account != nil {
		balance = account.Balance
	}
	sum, err := l.accounts.SumTransactions(ctx, userID)
	if err != nil {
		return false, 0, 0, fmt.Errorf("sum transactions: %w", err)
	}
	return balance == sum, balance, sum, nil
}
