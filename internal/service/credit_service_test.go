package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/hpol369/ItsNadchos/internal/config"
	"github.com/hpol369/ItsNadchos/internal/models"
)

type fakeLedgerStore struct {
	balances     map[int64]int
	lifetime     map[int64]int
	transactions []models.CreditTransaction
	dailyCounts  map[string]int
	unlocked     map[string]bool
	failInsert   bool
}

func newFakeLedgerStore() *fakeLedgerStore {
	return &fakeLedgerStore{
		balances:    make(map[int64]int),
		lifetime:    make(map[int64]int),
		dailyCounts: make(map[string]int),
		unlocked:    make(map[string]bool),
	}
}

func (s *fakeLedgerStore) GetAccount(_ context.Context, userID int64) (*models.CreditAccount, error) {
	balance, ok := s.balances[userID]
	if !ok {
		return nil, nil
	}
	return &models.CreditAccount{UserID: userID, Balance: balance, LifetimePurchased: s.lifetime[userID]}, nil
}

func (s *fakeLedgerStore) AddCredits(_ context.Context, userID int64, amount int, txType models.TransactionType, description, referenceID string) (int, error) {
	s.balances[userID] += amount
	if txType == models.TransactionPurchase {
		s.lifetime[userID] += amount
	}
	s.transactions = append(s.transactions, models.CreditTransaction{
		UserID: userID, Amount: amount, Type: txType, Description: description, ReferenceID: referenceID,
	})
	return s.balances[userID], nil
}

func (s *fakeLedgerStore) DeductCredits(_ context.Context, userID int64, amount int, txType models.TransactionType, description, referenceID string) (bool, error) {
	if s.balances[userID] < amount {
		return false, nil
	}
	s.balances[userID] -= amount
	s.transactions = append(s.transactions, models.CreditTransaction{
		UserID: userID, Amount: -amount, Type: txType, Description: description, ReferenceID: referenceID,
	})
	return true, nil
}

func (s *fakeLedgerStore) SumTransactions(_ context.Context, userID int64) (int, error) {
	sum := 0
	for _, tx := range s.transactions {
		if tx.UserID == userID {
			sum += tx.Amount
		}
	}
	return sum, nil
}

func (s *fakeLedgerStore) ListTransactions(_ context.Context, userID int64, limit int) ([]models.CreditTransaction, error) {
	var txs []models.CreditTransaction
	for i := len(s.transactions) - 1; i >= 0 && len(txs) < limit; i-- {
		if s.transactions[i].UserID == userID {
			txs = append(txs, s.transactions[i])
		}
	}
	return txs, nil
}

func (s *fakeLedgerStore) CountForDay(_ context.Context, userID int64, date string) (int, error) {
	return s.dailyCounts[fmt.Sprintf("%d/%s", userID, date)], nil
}

func (s *fakeLedgerStore) Increment(_ context.Context, userID int64, date string) error {
	s.dailyCounts[fmt.Sprintf("%d/%s", userID, date)]++
	return nil
}

func (s *fakeLedgerStore) IsUnlocked(_ context.Context, userID, photoID int64) (bool, error) {
	return s.unlocked[fmt.Sprintf("%d/%d", userID, photoID)], nil
}

func (s *fakeLedgerStore) InsertUnlock(_ context.Context, userID, photoID int64, _ int) (bool, error) {
	if s.failInsert {
		return false, nil
	}
	key := fmt.Sprintf("%d/%d", userID, photoID)
	if s.unlocked[key] {
		return false, nil
	}
	s.unlocked[key] = true
	return true, nil
}

func testLedger() (*CreditLedger, *fakeLedgerStore) {
	store := newFakeLedgerStore()
	cfg := config.Config{FreeDailyMessages: 3, CreditsPerMessage: 1, CreditsPerPhoto: 10}
	return NewCreditLedger(cfg, store, store, store), store
}

func TestFreeQuotaConsumedBeforeCredits(t *testing.T) {
	ledger, store := testLedger()
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	store.balances[1] = 5

	for i := 0; i < 3; i++ {
		allowance, err := ledger.CheckMessageAllowance(ctx, 1, now)
		if err != nil {
			t.Fatalf("allowance %d: %v", i, err)
		}
		if !allowance.Allowed || !allowance.IsFree {
			t.Fatalf("message %d: allowed=%v free=%v, want free", i+1, allowance.Allowed, allowance.IsFree)
		}
		if err := ledger.RecordFreeMessageUsed(ctx, 1, now); err != nil {
			t.Fatalf("record free %d: %v", i, err)
		}
	}

	allowance, err := ledger.CheckMessageAllowance(ctx, 1, now)
	if err != nil {
		t.Fatalf("allowance after quota: %v", err)
	}
	if !allowance.Allowed || allowance.IsFree {
		t.Fatalf("fourth message: allowed=%v free=%v, want paid", allowance.Allowed, allowance.IsFree)
	}
	if store.balances[1] != 5 {
		t.Fatalf("free messages touched the balance: %d", store.balances[1])
	}
}

func TestQuotaResetsNextDay(t *testing.T) {
	ledger, _ := testLedger()
	ctx := context.Background()
	day1 := time.Date(2025, 3, 1, 23, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		if err := ledger.RecordFreeMessageUsed(ctx, 1, day1); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	day2 := day1.Add(2 * time.Hour)
	allowance, err := ledger.CheckMessageAllowance(ctx, 1, day2)
	if err != nil {
		t.Fatalf("allowance: %v", err)
	}
	if !allowance.IsFree {
		t.Fatal("quota did not reset on the next calendar day")
	}
}

func TestDenyWithoutCreditsOrQuota(t *testing.T) {
	ledger, _ := testLedger()
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		if err := ledger.RecordFreeMessageUsed(ctx, 1, now); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	allowance, err := ledger.CheckMessageAllowance(ctx, 1, now)
	if err != nil {
		t.Fatalf("allowance: %v", err)
	}
	if allowance.Allowed {
		t.Fatal("message allowed with no quota and no credits")
	}
}

func TestDeductNeverGoesNegative(t *testing.T) {
	ledger, store := testLedger()
	ctx := context.Background()
	store.balances[1] = 1

	if err := ledger.DeductMessageCredit(ctx, 1); err != nil {
		t.Fatalf("first deduct: %v", err)
	}
	err := ledger.DeductMessageCredit(ctx, 1)
	if !errors.Is(err, ErrInsufficientCredits) {
		t.Fatalf("second deduct err = %v, want ErrInsufficientCredits", err)
	}
	if store.balances[1] != 0 {
		t.Fatalf("balance = %d, want 0", store.balances[1])
	}
}

func TestBalanceMatchesTransactionSum(t *testing.T) {
	ledger, _ := testLedger()
	ctx := context.Background()

	if _, err := ledger.AddCredits(ctx, 1, 50, models.TransactionPurchase, "ref-1"); err != nil {
		t.Fatalf("add: %v", err)
	}
	for i := 0; i < 7; i++ {
		if err := ledger.DeductMessageCredit(ctx, 1); err != nil {
			t.Fatalf("deduct %d: %v", i, err)
		}
	}
	if _, err := ledger.UnlockPhoto(ctx, 1, 42); err != nil {
		t.Fatalf("unlock: %v", err)
	}

	consistent, balance, sum, err := ledger.Reconcile(ctx, 1)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if !consistent {
		t.Fatalf("balance %d diverged from transaction sum %d", balance, sum)
	}
	if balance != 50-7-10 {
		t.Fatalf("balance = %d, want %d", balance, 50-7-10)
	}
}

func TestUnlockPhotoIdempotent(t *testing.T) {
	ledger, store := testLedger()
	ctx := context.Background()
	store.balances[1] = 25

	first, err := ledger.UnlockPhoto(ctx, 1, 7)
	if err != nil {
		t.Fatalf("first unlock: %v", err)
	}
	if !first.Success || first.CreditsSpent != 10 {
		t.Fatalf("first unlock = %+v, want success spending 10", first)
	}

	second, err := ledger.UnlockPhoto(ctx, 1, 7)
	if err != nil {
		t.Fatalf("second unlock: %v", err)
	}
	if !second.Success || second.CreditsSpent != 0 {
		t.Fatalf("second unlock = %+v, want free success", second)
	}
	if store.balances[1] != 15 {
		t.Fatalf("balance = %d, want 15", store.balances[1])
	}
}

func TestUnlockPhotoInsufficientCredits(t *testing.T) {
	ledger, _ := testLedger()
	ctx := context.Background()

	result, err := ledger.UnlockPhoto(ctx, 1, 7)
	if err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if result.Success {
		t.Fatal("unlock succeeded without credits")
	}
	if result.Needed != 10 || result.Available != 0 {
		t.Fatalf("shortfall = %+v, want needed 10 available 0", result)
	}
}

// A broke user with one free message left gets that message, then a purchase
// link on the next attempt.
func TestLastFreeMessageThenPurchasePrompt(t *testing.T) {
	ledger, store := testLedger()
	broker := NewTokenBroker(&fakeTokenStore{}, "https://shop.example.com")
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	store.dailyCounts["1/2025-03-01"] = 2

	allowance, err := ledger.CheckMessageAllowance(ctx, 1, now)
	if err != nil {
		t.Fatalf("allowance: %v", err)
	}
	if !allowance.Allowed || !allowance.IsFree || allowance.FreeRemaining != 1 {
		t.Fatalf("allowance = %+v, want last free message", allowance)
	}
	if err := ledger.RecordFreeMessageUsed(ctx, 1, now); err != nil {
		t.Fatalf("record: %v", err)
	}

	allowance, err = ledger.CheckMessageAllowance(ctx, 1, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("second allowance: %v", err)
	}
	if allowance.Allowed {
		t.Fatal("message allowed after quota ran out")
	}

	url, err := broker.Issue(ctx, 1, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	token := tokenFromURL(t, url)
	if _, err := broker.Validate(ctx, token, now.Add(23*time.Hour)); err != nil {
		t.Fatalf("token invalid within its lifetime: %v", err)
	}
	if _, err := broker.Validate(ctx, token, now.Add(26*time.Hour)); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("token err = %v, want ErrTokenExpired after 24h", err)
	}
}

func TestUnlockPhotoRefundsLostRace(t *testing.T) {
	ledger, store := testLedger()
	ctx := context.Background()
	store.balances[1] = 10
	store.failInsert = true

	result, err := ledger.UnlockPhoto(ctx, 1, 7)
	if err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if !result.Success {
		t.Fatal("lost race must still report the photo as unlocked")
	}
	if store.balances[1] != 10 {
		t.Fatalf("balance = %d, want deduction refunded to 10", store.balances[1])
	}
}
