package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hpol369/ItsNadchos/internal/models"
)

// CreditRepository owns the credit accounts and the append-only transaction
// ledger. Every balance mutation is a conditional single-row update inside a
// transaction together with its ledger entry, so concurrent requests from the
// same user cannot double spend.
type CreditRepository struct {
	db *sql.DB
}

func NewCreditRepository(db *sql.DB) *CreditRepository {
	return &CreditRepository{db: db}
}

func (r *CreditRepository) GetAccount(ctx context.Context, userID int64) (*models.CreditAccount, error) {
	const query = `
SELECT id, user_id, balance, lifetime_purchased, lifetime_spent, created_at, updated_at
FROM credit_accounts WHERE user_id = ?`
	row := r.db.QueryRowContext(ctx, query, userID)
	var a models.CreditAccount
	if err := row.Scan(&a.ID, &a.UserID, &a.Balance, &a.LifetimePurchased, &a.LifetimeSpent, &a.CreatedAt, &a.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan credit account: %w", err)
	}
	return &a, nil
}

func (r *CreditRepository) ensureAccountTx(ctx context.Context, tx *sql.Tx, userID int64) error {
	const query = `INSERT IGNORE INTO credit_accounts (user_id, balance, lifetime_purchased, lifetime_spent) VALUES (?, 0, 0, 0)`
	if _, err := tx.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("ensure credit account: %w", err)
	}
	return nil
}

// AddCredits credits the account (creating it lazily) and appends the ledger
// entry in one transaction. Purchases also grow lifetime_purchased. Returns
// the new balance.
func (r *CreditRepository) AddCredits(ctx context.Context, userID int64, amount int, txType models.TransactionType, description, referenceID string) (int, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("add credits: amount must be positive, got %d", amount)
	}
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := r.ensureAccountTx(ctx, tx, userID); err != nil {
		return 0, err
	}

	purchased := 0
	if txType == models.TransactionPurchase {
		purchased = amount
	}
	const update = `
UPDATE credit_accounts
SET balance = balance + ?, lifetime_purchased = lifetime_purchased + ?, updated_at = NOW()
WHERE user_id = ?`
	if _, err := tx.ExecContext(ctx, update, amount, purchased, userID); err != nil {
		return 0, fmt.Errorf("add credits: %w", err)
	}

	if err := insertTransactionTx(ctx, tx, userID, amount, txType, description, referenceID); err != nil {
		return 0, err
	}

	var balance int
	if err := tx.QueryRowContext(ctx, `SELECT balance FROM credit_accounts WHERE user_id = ?`, userID).Scan(&balance); err != nil {
		return 0, fmt.Errorf("read balance: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit add credits: %w", err)
	}
	return balance, nil
}

// DeductCredits debits the account only where the balance covers the amount
// and appends the ledger entry. Returns false without touching anything when
// the balance is insufficient.
func (r *CreditRepository) DeductCredits(ctx context.Context, userID int64, amount int, txType models.TransactionType, description, referenceID string) (bool, error) {
	if amount <= 0 {
		return false, fmt.Errorf("deduct credits: amount must be positive, got %d", amount)
	}
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	const update = `
UPDATE credit_accounts
SET balance = balance - ?, lifetime_spent = lifetime_spent + ?, updated_at = NOW()
WHERE user_id = ? AND balance >= ?`
	res, err := tx.ExecContext(ctx, update, amount, amount, userID, amount)
	if err != nil {
		return false, fmt.Errorf("deduct credits: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("deduct rows affected: %w", err)
	}
	if affected == 0 {
		return false, nil
	}

	if err := insertTransactionTx(ctx, tx, userID, -amount, txType, description, referenceID); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit deduct credits: %w", err)
	}
	return true, nil
}

func insertTransactionTx(ctx context.Context, tx *sql.Tx, userID int64, amount int, txType models.TransactionType, description, referenceID string) error {
	const query = `
INSERT INTO credit_transactions (user_id, amount, type, description, reference_id)
VALUES (?, ?, ?, NULLIF(?, ''), NULLIF(?, ''))`
	if _, err := tx.ExecContext(ctx, query, userID, amount, txType, description, referenceID); err != nil {
		return fmt.Errorf("insert credit transaction: %w", err)
	}
	return nil
}

// SumTransactions returns the transaction sum for a user; the account balance
// must always reconcile against it.
func (r *CreditRepository) SumTransactions(ctx context.Context, userID int64) (int, error) {
	const query = `SELECT COALESCE(SUM(amount), 0) FROM credit_transactions WHERE user_id = ?`
	var sum int
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&sum); err != nil {
		return 0, fmt.Errorf("sum transactions: %w", err)
	}
	return sum, nil
}

func (r *CreditRepository) ListTransactions(ctx context.Context, userID int64, limit int) ([]models.CreditTransaction, error) {
	const query = `
SELECT id, user_id, amount, type, COALESCE(description, ''), COALESCE(reference_id, ''), created_at
FROM credit_transactions
WHERE user_id = ?
ORDER BY id DESC
LIMIT ?`
	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var txs []models.CreditTransaction
	for rows.Next() {
		var t models.CreditTransaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.Amount, &t.Type, &t.Description, &t.ReferenceID, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}
