package processor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"banksync/internal/parser"
	"banksync/internal/queue"
	"banksync/pkg/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeStore struct {
	sources   map[int64]*models.SyncSource
	processed map[string]*models.ProcessedEmail
	dlq       []*models.DLQEntry
	txns      []*models.TransactionRecord
	balances  []*models.BalanceUpdate

	markErr   error
	createErr error
	nextID    int64
}

func newStore(sources ...*models.SyncSource) *fakeStore {
	s := &fakeStore{
		sources:   make(map[int64]*models.SyncSource),
		processed: make(map[string]*models.ProcessedEmail),
	}
	for _, src := range sources {
		s.sources[src.ID] = src
	}
	return s
}

func (s *fakeStore) IsEmailProcessed(ctx context.Context, syncSourceID int64, uid uint32) (bool, error) {
	_, ok := s.processed[models.JobKey(syncSourceID, uid)]
	return ok, nil
}

func (s *fakeStore) HasDLQEntry(ctx context.Context, syncSourceID int64, uid uint32) (bool, error) {
	for _, e := range s.dlq {
		if e.SyncSourceID == syncSourceID && e.MessageUID == uid {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStore) GetSource(ctx context.Context, id int64, userID string) (*models.SyncSource, error) {
	src, ok := s.sources[id]
	if !ok || src.UserID != userID {
		return nil, errors.New("source not found")
	}
	return src, nil
}

func (s *fakeStore) MarkEmailProcessed(ctx context.Context, userID string, syncSourceID int64, uid uint32, contentHash string) (*models.ProcessedEmail, error) {
	if s.markErr != nil {
		return nil, s.markErr
	}
	key := models.JobKey(syncSourceID, uid)
	if pe, ok := s.processed[key]; ok {
		return pe, nil
	}
	s.nextID++
	pe := &models.ProcessedEmail{
		ID:           s.nextID,
		UserID:       userID,
		SyncSourceID: syncSourceID,
		MessageUID:   uid,
		ContentHash:  contentHash,
	}
	s.processed[key] = pe
	return pe, nil
}

func (s *fakeStore) CreateTransaction(ctx context.Context, rec *models.TransactionRecord) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.txns = append(s.txns, rec)
	return nil
}

func (s *fakeStore) CreateBalanceUpdate(ctx context.Context, upd *models.BalanceUpdate) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.balances = append(s.balances, upd)
	return nil
}

func (s *fakeStore) CreateDLQEntry(ctx context.Context, entry *models.DLQEntry) error {
	s.dlq = append(s.dlq, entry)
	return nil
}

func chaseSource() *models.SyncSource {
	return &models.SyncSource{
		ID:          1,
		UserID:      "user-1",
		AccountID:   "acct-1",
		Institution: "chase",
		AccountType: "checking",
	}
}

func amexSource() *models.SyncSource {
	return &models.SyncSource{
		ID:          2,
		UserID:      "user-1",
		AccountID:   "acct-2",
		Institution: "amex",
		AccountType: "credit",
	}
}

func job(src *models.SyncSource, uid uint32, from, body string) *models.EmailJob {
	return models.NewEmailJob(src, &models.EmailMessage{
		UID:      uid,
		Subject:  "Alert",
		From:     from,
		Date:     time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC),
		BodyText: body,
	})
}

func TestHandleTransactionPersistsAnchorThenRecord(t *testing.T) {
	store := newStore(chaseSource())
	p := New(store, parser.DefaultRegistry(), testLogger())

	j := job(chaseSource(), 100, "no-reply@alerts.chase.com",
		"Your $45.20 debit card transaction with STARBUCKS was approved on your account ending in (...1234).")
	require.NoError(t, p.Handle(context.Background(), j))

	require.Len(t, store.txns, 1)
	rec := store.txns[0]
	assert.Equal(t, "-45.2", rec.Amount.String())
	assert.Equal(t, "STARBUCKS", rec.MerchantName)
	assert.Equal(t, "acct-1", rec.AccountID)
	assert.True(t, rec.Pending)

	pe, ok := store.processed[models.JobKey(1, 100)]
	require.True(t, ok, "processed anchor exists")
	assert.Equal(t, pe.ID, rec.ProcessedEmailID, "transaction points at its anchor")
}

func TestHandleRedeliveryIsNoOp(t *testing.T) {
	store := newStore(chaseSource())
	p := New(store, parser.DefaultRegistry(), testLogger())

	j := job(chaseSource(), 100, "no-reply@alerts.chase.com",
		"You have a direct deposit of $1,250.00.")
	require.NoError(t, p.Handle(context.Background(), j))
	require.Len(t, store.txns, 1)
	assert.Equal(t, "1250", store.txns[0].Amount.String())

	// Second delivery of the same job writes nothing
	require.NoError(t, p.Handle(context.Background(), j))
	assert.Len(t, store.txns, 1)
	assert.Len(t, store.processed, 1)
}

func TestHandleUnsupportedTypeDeadLettersImmediately(t *testing.T) {
	store := newStore(amexSource())
	p := New(store, parser.DefaultRegistry(), testLogger())

	j := job(amexSource(), 200, "alerts@americanexpress.com",
		"Your payment of $500.00 has been received. Thank you.")
	err := p.Handle(context.Background(), j)

	require.Error(t, err)
	assert.ErrorIs(t, err, queue.ErrPermanent, "no retries for recognized-but-unsupported alerts")

	require.Len(t, store.dlq, 1)
	entry := store.dlq[0]
	assert.Equal(t, models.ErrorTypeUnsupported, entry.ErrorType)
	assert.Equal(t, uint32(200), entry.MessageUID)
	assert.Contains(t, entry.BodyText, "payment of $500.00")
	assert.Empty(t, store.txns)
	assert.Empty(t, store.processed)
}

func TestHandleDeadLetteredUIDIsSkipped(t *testing.T) {
	store := newStore(amexSource())
	p := New(store, parser.DefaultRegistry(), testLogger())

	j := job(amexSource(), 200, "alerts@americanexpress.com",
		"Your payment of $500.00 has been received.")
	require.Error(t, p.Handle(context.Background(), j))
	require.Len(t, store.dlq, 1)

	// Redelivery after dead-lettering writes nothing more
	require.NoError(t, p.Handle(context.Background(), j))
	assert.Len(t, store.dlq, 1)
}

func TestHandleNoMatchIsRetryable(t *testing.T) {
	store := newStore(chaseSource())
	p := New(store, parser.DefaultRegistry(), testLogger())

	j := job(chaseSource(), 300, "unknown@example.com", "nothing recognizable here")
	err := p.Handle(context.Background(), j)

	require.Error(t, err)
	assert.ErrorIs(t, err, parser.ErrNoMatch)
	assert.NotErrorIs(t, err, queue.ErrPermanent)
	assert.Empty(t, store.dlq, "dlq write happens only after retries are exhausted")
}

func TestHandleStoreFailureIsTaggedPersistence(t *testing.T) {
	store := newStore(chaseSource())
	store.markErr = errors.New("disk full")
	p := New(store, parser.DefaultRegistry(), testLogger())

	j := job(chaseSource(), 100, "no-reply@alerts.chase.com",
		"You have a direct deposit of $1,250.00.")
	err := p.Handle(context.Background(), j)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPersistence)
	assert.NotErrorIs(t, err, queue.ErrPermanent)
}

func TestHandleHTMLOnlyBodyIsConverted(t *testing.T) {
	store := newStore(chaseSource())
	p := New(store, parser.DefaultRegistry(), testLogger())

	j := models.NewEmailJob(chaseSource(), &models.EmailMessage{
		UID:      400,
		Subject:  "Alert",
		From:     "no-reply@alerts.chase.com",
		Date:     time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC),
		BodyHTML: "<html><body><p>You have a direct deposit of $99.50.</p></body></html>",
	})
	require.NoError(t, p.Handle(context.Background(), j))

	require.Len(t, store.txns, 1)
	assert.Equal(t, "99.5", store.txns[0].Amount.String())
}

func TestHandleDeadClassifiesCause(t *testing.T) {
	tests := []struct {
		name  string
		cause error
		want  string
	}{
		{"parse failure", parser.ErrNoMatch, models.ErrorTypeParse},
		{"store failure", ErrPersistence, models.ErrorTypePersistence},
		{"anything else", errors.New("boom"), models.ErrorTypeProcessing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newStore(chaseSource())
			p := New(store, parser.DefaultRegistry(), testLogger())

			j := job(chaseSource(), 500, "no-reply@alerts.chase.com", "some body")
			p.HandleDead(context.Background(), j, tt.cause)

			require.Len(t, store.dlq, 1)
			assert.Equal(t, tt.want, store.dlq[0].ErrorType)
			assert.Equal(t, tt.cause.Error(), store.dlq[0].ErrorMessage)
		})
	}
}

func TestHandleMalformedUIDIsPermanent(t *testing.T) {
	store := newStore(chaseSource())
	p := New(store, parser.DefaultRegistry(), testLogger())

	j := &models.EmailJob{
		SyncSourceID: 1,
		UserID:       "user-1",
		Message:      models.JobMessage{UID: "not-a-number"},
	}
	err := p.Handle(context.Background(), j)

	require.Error(t, err)
	assert.ErrorIs(t, err, queue.ErrPermanent)
}
