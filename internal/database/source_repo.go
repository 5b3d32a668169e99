package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"banksync/pkg/models"
)

// CreateSource creates a new sync source
func (db *DB) CreateSource(ctx context.Context, src *models.SyncSource) error {
	query := `
		INSERT INTO sync_sources (user_id, account_id, name, institution, account_type, email_address, imap_host, imap_port, password_enc, folder, insecure_tls, last_uid, status, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	now := time.Now()
	if src.Status == "" {
		src.Status = models.SourceStatusActive
	}
	result, err := db.ExecContext(ctx, query,
		src.UserID,
		src.AccountID,
		src.Name,
		src.Institution,
		src.AccountType,
		src.EmailAddress,
		src.IMAPHost,
		src.IMAPPort,
		src.PasswordEnc,
		src.Folder,
		src.InsecureTLS,
		src.LastUID,
		src.Status,
		src.IsActive,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create sync source: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	src.ID = id
	src.CreatedAt = now
	src.UpdatedAt = now
	return nil
}

// GetSource returns a sync source scoped to its owning user
func (db *DB) GetSource(ctx context.Context, id int64, userID string) (*models.SyncSource, error) {
	var src models.SyncSource
	query := `SELECT * FROM sync_sources WHERE id = ? AND user_id = ?`
	err := db.GetContext(ctx, &src, query, id, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync source: %w", err)
	}
	return &src, nil
}

// GetActiveSources returns all active sync sources (with encrypted password)
func (db *DB) GetActiveSources(ctx context.Context) ([]*models.SyncSource, error) {
	var sources []*models.SyncSource
	query := `SELECT * FROM sync_sources WHERE is_active = true ORDER BY id`
	err := db.SelectContext(ctx, &sources, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get active sync sources: %w", err)
	}
	return sources, nil
}

// UpdateSourceSynced records a successful sync pass: cursor, timestamp, and
// status back to active
func (db *DB) UpdateSourceSynced(ctx context.Context, id int64, lastUID uint32, at time.Time) error {
	query := `UPDATE sync_sources SET last_uid = ?, last_synced_at = ?, status = ?, updated_at = ? WHERE id = ?`
	_, err := db.ExecContext(ctx, query, lastUID, at, models.SourceStatusActive, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update sync source: %w", err)
	}
	return nil
}

// SetSourceStatus flips the source status. last_synced_at is deliberately
// untouched: a failed pass leaves the previous successful sync time intact.
func (db *DB) SetSourceStatus(ctx context.Context, id int64, status string) error {
	query := `UPDATE sync_sources SET status = ?, updated_at = ? WHERE id = ?`
	_, err := db.ExecContext(ctx, query, status, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to set sync source status: %w", err)
	}
	return nil
}

// SetSourceActive sets the active flag
func (db *DB) SetSourceActive(ctx context.Context, id int64, active bool) error {
	query := `UPDATE sync_sources SET is_active = ?, updated_at = ? WHERE id = ?`
	_, err := db.ExecContext(ctx, query, active, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to set sync source active: %w", err)
	}
	return nil
}

// DeleteSource deletes a sync source; dependent records cascade
func (db *DB) DeleteSource(ctx context.Context, id int64) error {
	query := `DELETE FROM sync_sources WHERE id = ?`
	_, err := db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete sync source: %w", err)
	}
	return nil
}
