package models

import "time"

// Sync source status values
const (
	SourceStatusActive = "active"
	SourceStatusError  = "error"
)

// SyncSource binds one IMAP mailbox/folder to one financial account
type SyncSource struct {
	ID           int64      `db:"id"`
	UserID       string     `db:"user_id"`
	AccountID    string     `db:"account_id"` // owning financial account
	Name         string     `db:"name"`
	Institution  string     `db:"institution"`  // e.g., "chase"
	AccountType  string     `db:"account_type"` // e.g., "checking", "credit"
	EmailAddress string     `db:"email_address"`
	IMAPHost     string     `db:"imap_host"`
	IMAPPort     int        `db:"imap_port"`
	PasswordEnc  string     `db:"password_enc"` // encrypted, never exposed decrypted
	Folder       string     `db:"folder"`
	InsecureTLS  bool       `db:"insecure_tls"` // relax cert validation for legacy servers
	LastUID      uint32     `db:"last_uid"`     // last processed message UID cursor
	Status       string     `db:"status"`       // active | error
	LastSyncedAt *time.Time `db:"last_synced_at"`
	IsActive     bool       `db:"is_active"`
	CreatedAt    time.Time  `db:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at"`
}
