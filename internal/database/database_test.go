package database

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"banksync/pkg/models"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate(context.Background()))
	return db
}

func testSource(t *testing.T, db *DB) *models.SyncSource {
	t.Helper()
	src := &models.SyncSource{
		UserID:       "user-1",
		AccountID:    "acct-1",
		Name:         "Chase checking",
		Institution:  "chase",
		AccountType:  "checking",
		EmailAddress: "alerts@example.com",
		IMAPHost:     "imap.example.com",
		IMAPPort:     993,
		PasswordEnc:  "aa:bb:cc",
		Folder:       "INBOX",
		IsActive:     true,
	}
	require.NoError(t, db.CreateSource(context.Background(), src))
	return src
}

func TestSourceLifecycle(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	src := testSource(t, db)

	got, err := db.GetSource(ctx, src.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "chase", got.Institution)
	assert.Equal(t, models.SourceStatusActive, got.Status)
	assert.Nil(t, got.LastSyncedAt)

	// Scoped to the owning user
	_, err = db.GetSource(ctx, src.ID, "someone-else")
	require.ErrorIs(t, err, ErrNotFound)

	active, err := db.GetActiveSources(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)

	require.NoError(t, db.SetSourceStatus(ctx, src.ID, models.SourceStatusError))
	got, err = db.GetSource(ctx, src.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.SourceStatusError, got.Status)
	assert.Nil(t, got.LastSyncedAt, "failed pass leaves last_synced_at unchanged")

	now := time.Now()
	require.NoError(t, db.UpdateSourceSynced(ctx, src.ID, 42, now))
	got, err = db.GetSource(ctx, src.ID, "user-1")
	require.NoError(t, err)
	assert.Equal(t, uint32(42), got.LastUID)
	assert.NotNil(t, got.LastSyncedAt)
	assert.Equal(t, models.SourceStatusActive, got.Status)

	require.NoError(t, db.SetSourceActive(ctx, src.ID, false))
	active, err = db.GetActiveSources(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestMarkEmailProcessedIsIdempotent(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	src := testSource(t, db)

	first, err := db.MarkEmailProcessed(ctx, "user-1", src.ID, 100, "hash-a")
	require.NoError(t, err)
	require.NotZero(t, first.ID)

	// Second mark is a no-op returning the existing anchor row
	second, err := db.MarkEmailProcessed(ctx, "user-1", src.ID, 100, "hash-a")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	done, err := db.IsEmailProcessed(ctx, src.ID, 100)
	require.NoError(t, err)
	assert.True(t, done)

	done, err = db.IsEmailProcessed(ctx, src.ID, 101)
	require.NoError(t, err)
	assert.False(t, done)

	uids, err := db.ListProcessedUIDs(ctx, src.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint32{100}, uids)
}

func TestDLQEntries(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	src := testSource(t, db)

	entry := &models.DLQEntry{
		UserID:       "user-1",
		SyncSourceID: src.ID,
		MessageUID:   7,
		Subject:      "Payment received",
		FromAddress:  "alerts@americanexpress.com",
		Date:         time.Now(),
		BodyText:     "Your payment of $500.00 has been received",
		ErrorMessage: "unsupported alert type \"payment\"",
		ErrorType:    models.ErrorTypeUnsupported,
	}
	require.NoError(t, db.CreateDLQEntry(ctx, entry))

	// Duplicate terminal failure for the same (source, uid) is ignored
	dup := *entry
	dup.ErrorMessage = "second failure"
	require.NoError(t, db.CreateDLQEntry(ctx, &dup))

	entries, err := db.ListDLQEntries(ctx, src.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "unsupported alert type \"payment\"", entries[0].ErrorMessage)

	has, err := db.HasDLQEntry(ctx, src.ID, 7)
	require.NoError(t, err)
	assert.True(t, has)

	uids, err := db.ListDLQUIDs(ctx, src.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint32{7}, uids)
}

func TestCreateTransactionAndBalanceUpdate(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	src := testSource(t, db)

	pe, err := db.MarkEmailProcessed(ctx, "user-1", src.ID, 5, "")
	require.NoError(t, err)

	rec := &models.TransactionRecord{
		UserID:           "user-1",
		AccountID:        "acct-1",
		SyncSourceID:     src.ID,
		ProcessedEmailID: pe.ID,
		Amount:           decimal.RequireFromString("-123.45"),
		Date:             time.Now(),
		Name:             "STARBUCKS",
		MerchantName:     "STARBUCKS",
		Pending:          true,
	}
	require.NoError(t, db.CreateTransaction(ctx, rec))
	require.NotZero(t, rec.ID)

	count, err := db.CountTransactionsForEmail(ctx, pe.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	upd := &models.BalanceUpdate{
		UserID:           "user-1",
		AccountID:        "acct-1",
		SyncSourceID:     src.ID,
		ProcessedEmailID: pe.ID,
		BalanceType:      "available_credit",
		NewBalance:       decimal.RequireFromString("4500"),
		UpdateSource:     "email_alert",
		SourceDetail:     "card *5678",
		UpdateDate:       time.Now(),
	}
	require.NoError(t, db.CreateBalanceUpdate(ctx, upd))
	require.NotZero(t, upd.ID)
}

func TestDeleteSourceCascades(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	src := testSource(t, db)

	_, err := db.MarkEmailProcessed(ctx, "user-1", src.ID, 1, "")
	require.NoError(t, err)

	require.NoError(t, db.DeleteSource(ctx, src.ID))

	uids, err := db.ListProcessedUIDs(ctx, src.ID)
	require.NoError(t, err)
	assert.Empty(t, uids)
}
