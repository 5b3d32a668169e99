package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DLQ error type markers
const (
	ErrorTypeUnsupported = "UNSUPPORTED_TYPE"
	ErrorTypeParse       = "PARSE_ERROR"
	ErrorTypePersistence = "PERSISTENCE_ERROR"
	ErrorTypeProcessing  = "PROCESSING_ERROR"
)

// ProcessedEmail is the append-only success record. Its presence for a
// (sync source, uid) pair means "handled, never re-enqueue"; it is created
// before the derived financial record and anchors idempotent redelivery.
type ProcessedEmail struct {
	ID           int64     `db:"id"`
	UserID       string    `db:"user_id"`
	SyncSourceID int64     `db:"sync_source_id"`
	MessageUID   uint32    `db:"message_uid"`
	ContentHash  string    `db:"content_hash"`
	ProcessedAt  time.Time `db:"processed_at"`
}

// TransactionRecord is a persisted financial transaction derived from an alert
type TransactionRecord struct {
	ID               int64           `db:"id"`
	UserID           string          `db:"user_id"`
	AccountID        string          `db:"account_id"`
	SyncSourceID     int64           `db:"sync_source_id"`
	ProcessedEmailID int64           `db:"processed_email_id"`
	Amount           decimal.Decimal `db:"amount"`
	Date             time.Time       `db:"date"`
	Name             string          `db:"name"`
	MerchantName     string          `db:"merchant_name"`
	Pending          bool            `db:"pending"`
	CreatedAt        time.Time       `db:"created_at"`
}

// BalanceUpdate is a persisted balance change derived from an alert
type BalanceUpdate struct {
	ID               int64           `db:"id"`
	UserID           string          `db:"user_id"`
	AccountID        string          `db:"account_id"`
	SyncSourceID     int64           `db:"sync_source_id"`
	ProcessedEmailID int64           `db:"processed_email_id"`
	BalanceType      string          `db:"balance_type"` // e.g., "available_credit"
	NewBalance       decimal.Decimal `db:"new_balance"`
	UpdateSource     string          `db:"update_source"` // e.g., "email_alert"
	SourceDetail     string          `db:"source_detail"` // e.g., "card *1234"
	UpdateDate       time.Time       `db:"update_date"`
	CreatedAt        time.Time       `db:"created_at"`
}

// DLQEntry is a terminal failure record. The full message snapshot is kept
// for manual reprocessing; the entry is never retried automatically. Like a
// ProcessedEmail row, its presence suppresses re-enqueue of the same uid.
type DLQEntry struct {
	ID           int64     `db:"id"`
	UserID       string    `db:"user_id"`
	SyncSourceID int64     `db:"sync_source_id"`
	MessageUID   uint32    `db:"message_uid"`
	Subject      string    `db:"subject"`
	FromAddress  string    `db:"from_address"`
	Date         time.Time `db:"date"`
	BodyText     string    `db:"body_text"`
	BodyHTML     string    `db:"body_html"`
	ErrorMessage string    `db:"error_message"`
	ErrorType    string    `db:"error_type"`
	ErrorStack   string    `db:"error_stack"`
	CreatedAt    time.Time `db:"created_at"`
}
