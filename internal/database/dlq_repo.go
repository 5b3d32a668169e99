package database

import (
	"context"
	"fmt"
	"time"

	"banksync/pkg/models"
)

// CreateDLQEntry writes a terminal failure record with the full message
// snapshot. A duplicate (source, uid) entry is ignored: the first terminal
// failure wins.
func (db *DB) CreateDLQEntry(ctx context.Context, entry *models.DLQEntry) error {
	query := `
		INSERT OR IGNORE INTO email_alert_dlq (user_id, sync_source_id, message_uid, subject, from_address, date, body_text, body_html, error_message, error_type, error_stack, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	now := time.Now()
	result, err := db.ExecContext(ctx, query,
		entry.UserID,
		entry.SyncSourceID,
		entry.MessageUID,
		entry.Subject,
		entry.FromAddress,
		entry.Date,
		entry.BodyText,
		entry.BodyHTML,
		entry.ErrorMessage,
		entry.ErrorType,
		entry.ErrorStack,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create dlq entry: %w", err)
	}

	if id, err := result.LastInsertId(); err == nil {
		entry.ID = id
	}
	entry.CreatedAt = now
	return nil
}

// HasDLQEntry reports whether a (source, uid) pair already dead-lettered
func (db *DB) HasDLQEntry(ctx context.Context, syncSourceID int64, uid uint32) (bool, error) {
	var count int
	query := `SELECT COUNT(1) FROM email_alert_dlq WHERE sync_source_id = ? AND message_uid = ?`
	if err := db.GetContext(ctx, &count, query, syncSourceID, uid); err != nil {
		return false, fmt.Errorf("failed to check dlq entry: %w", err)
	}
	return count > 0, nil
}

// ListDLQUIDs returns all dead-lettered message UIDs for one source
func (db *DB) ListDLQUIDs(ctx context.Context, syncSourceID int64) ([]uint32, error) {
	var uids []uint32
	query := `SELECT message_uid FROM email_alert_dlq WHERE sync_source_id = ?`
	if err := db.SelectContext(ctx, &uids, query, syncSourceID); err != nil {
		return nil, fmt.Errorf("failed to list dlq uids: %w", err)
	}
	return uids, nil
}

// ListDLQEntries returns the dead-letter entries for one source, newest
// first, for manual reprocessing
func (db *DB) ListDLQEntries(ctx context.Context, syncSourceID int64) ([]*models.DLQEntry, error) {
	var entries []*models.DLQEntry
	query := `SELECT * FROM email_alert_dlq WHERE sync_source_id = ? ORDER BY created_at DESC`
	if err := db.SelectContext(ctx, &entries, query, syncSourceID); err != nil {
		return nil, fmt.Errorf("failed to list dlq entries: %w", err)
	}
	return entries, nil
}
