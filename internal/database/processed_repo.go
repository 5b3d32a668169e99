package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"banksync/pkg/models"
)

// IsEmailProcessed reports whether a (source, uid) pair has a success record
func (db *DB) IsEmailProcessed(ctx context.Context, syncSourceID int64, uid uint32) (bool, error) {
	var count int
	query := `SELECT COUNT(1) FROM processed_emails WHERE sync_source_id = ? AND message_uid = ?`
	if err := db.GetContext(ctx, &count, query, syncSourceID, uid); err != nil {
		return false, fmt.Errorf("failed to check processed email: %w", err)
	}
	return count > 0, nil
}

// MarkEmailProcessed creates the success record for a (source, uid) pair.
// Safe to call twice: a concurrent or repeated mark returns the existing
// row, so redelivered jobs can anchor on the same processed-email id.
func (db *DB) MarkEmailProcessed(ctx context.Context, userID string, syncSourceID int64, uid uint32, contentHash string) (*models.ProcessedEmail, error) {
	query := `
		INSERT OR IGNORE INTO processed_emails (user_id, sync_source_id, message_uid, content_hash, processed_at)
		VALUES (?, ?, ?, ?, ?)
	`
	now := time.Now()
	result, err := db.ExecContext(ctx, query, userID, syncSourceID, uid, contentHash, now)
	if err != nil {
		return nil, fmt.Errorf("failed to mark email processed: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return db.getProcessedEmail(ctx, syncSourceID, uid)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert id: %w", err)
	}

	return &models.ProcessedEmail{
		ID:           id,
		UserID:       userID,
		SyncSourceID: syncSourceID,
		MessageUID:   uid,
		ContentHash:  contentHash,
		ProcessedAt:  now,
	}, nil
}

func (db *DB) getProcessedEmail(ctx context.Context, syncSourceID int64, uid uint32) (*models.ProcessedEmail, error) {
	var pe models.ProcessedEmail
	query := `SELECT * FROM processed_emails WHERE sync_source_id = ? AND message_uid = ?`
	err := db.GetContext(ctx, &pe, query, syncSourceID, uid)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get processed email: %w", err)
	}
	return &pe, nil
}

// ListProcessedUIDs returns all processed message UIDs for one source
func (db *DB) ListProcessedUIDs(ctx context.Context, syncSourceID int64) ([]uint32, error) {
	var uids []uint32
	query := `SELECT message_uid FROM processed_emails WHERE sync_source_id = ?`
	if err := db.SelectContext(ctx, &uids, query, syncSourceID); err != nil {
		return nil, fmt.Errorf("failed to list processed uids: %w", err)
	}
	return uids, nil
}
