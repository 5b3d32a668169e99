package database

import (
	"context"
	"fmt"
	"time"

	"banksync/pkg/models"
)

// CreateTransaction persists a financial transaction derived from an alert.
// Amounts are stored as decimal strings, never floats.
func (db *DB) CreateTransaction(ctx context.Context, rec *models.TransactionRecord) error {
	query := `
		INSERT INTO transactions (user_id, account_id, sync_source_id, processed_email_id, amount, date, name, merchant_name, pending, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	now := time.Now()
	result, err := db.ExecContext(ctx, query,
		rec.UserID,
		rec.AccountID,
		rec.SyncSourceID,
		rec.ProcessedEmailID,
		rec.Amount.String(),
		rec.Date,
		rec.Name,
		rec.MerchantName,
		rec.Pending,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	rec.ID = id
	rec.CreatedAt = now
	return nil
}

// CreateBalanceUpdate persists a balance change derived from an alert
func (db *DB) CreateBalanceUpdate(ctx context.Context, upd *models.BalanceUpdate) error {
	query := `
		INSERT INTO balance_updates (user_id, account_id, sync_source_id, processed_email_id, balance_type, new_balance, update_source, source_detail, update_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	now := time.Now()
	result, err := db.ExecContext(ctx, query,
		upd.UserID,
		upd.AccountID,
		upd.SyncSourceID,
		upd.ProcessedEmailID,
		upd.BalanceType,
		upd.NewBalance.String(),
		upd.UpdateSource,
		upd.SourceDetail,
		upd.UpdateDate,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create balance update: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	upd.ID = id
	upd.CreatedAt = now
	return nil
}

// CountTransactionsForEmail returns how many transactions were persisted for
// one processed email; idempotent processing keeps this at most 1
func (db *DB) CountTransactionsForEmail(ctx context.Context, processedEmailID int64) (int, error) {
	var count int
	query := `SELECT COUNT(1) FROM transactions WHERE processed_email_id = ?`
	if err := db.GetContext(ctx, &count, query, processedEmailID); err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return count, nil
}
