package processor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"

	"banksync/internal/parser"
	"banksync/internal/queue"
	"banksync/pkg/models"
)

// ErrPersistence tags store failures so exhausted retries land in the DLQ
// with the right error type
var ErrPersistence = errors.New("persistence failure")

// Store is the persistence collaborator the consumer needs. Implemented by
// internal/database; faked in tests.
type Store interface {
	IsEmailProcessed(ctx context.Context, syncSourceID int64, uid uint32) (bool, error)
	HasDLQEntry(ctx context.Context, syncSourceID int64, uid uint32) (bool, error)
	GetSource(ctx context.Context, id int64, userID string) (*models.SyncSource, error)
	MarkEmailProcessed(ctx context.Context, userID string, syncSourceID int64, uid uint32, contentHash string) (*models.ProcessedEmail, error)
	CreateTransaction(ctx context.Context, rec *models.TransactionRecord) error
	CreateBalanceUpdate(ctx context.Context, upd *models.BalanceUpdate) error
	CreateDLQEntry(ctx context.Context, entry *models.DLQEntry) error
}

// Processor consumes email jobs: re-checks dedup, dispatches the parser
// chain, and persists the resulting financial event exactly once
type Processor struct {
	store    Store
	registry *parser.Registry
	logger   *slog.Logger
}

// New creates a processor
func New(store Store, registry *parser.Registry, logger *slog.Logger) *Processor {
	return &Processor{
		store:    store,
		registry: registry,
		logger:   logger.With("component", "processor"),
	}
}

// Handle processes one job. Implements queue.Handler.
func (p *Processor) Handle(ctx context.Context, job *models.EmailJob) error {
	uid, err := job.Message.UIDValue()
	if err != nil {
		// A malformed uid cannot become well-formed on retry
		return queue.Permanent(err)
	}
	logger := p.logger.With("source_id", job.SyncSourceID, "uid", uid)

	// Re-check dedup: duplicate enqueues or a racing scheduler may have
	// slipped past the producer-side filter. Redelivery of a handled
	// message is a safe no-op.
	done, err := p.store.IsEmailProcessed(ctx, job.SyncSourceID, uid)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if done {
		logger.Debug("email already processed, skipping")
		return nil
	}
	dead, err := p.store.HasDLQEntry(ctx, job.SyncSourceID, uid)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if dead {
		logger.Debug("email already dead-lettered, skipping")
		return nil
	}

	src, err := p.store.GetSource(ctx, job.SyncSourceID, job.UserID)
	if err != nil {
		return fmt.Errorf("%w: failed to resolve source: %w", ErrPersistence, err)
	}

	msg, err := job.Message.ToEmailMessage()
	if err != nil {
		return queue.Permanent(err)
	}

	// HTML-only alerts need a text rendering for the body patterns
	if msg.BodyText == "" && msg.BodyHTML != "" {
		text, err := parser.HTMLToText(msg.BodyHTML)
		if err != nil {
			logger.Warn("failed to convert html body", "error", err)
		} else {
			msg.BodyText = text
		}
	}

	event, err := p.registry.Dispatch(src.Institution, src.AccountType, msg)
	if err != nil {
		// Retryable: the format may drift back, or a parser may be
		// registered before the retries run out
		return fmt.Errorf("failed to parse email: %w", err)
	}

	switch event.Type {
	case models.EventTransaction:
		return p.persistTransaction(ctx, job, src, msg, event.Transaction)
	case models.EventCreditUpdate:
		return p.persistCreditUpdate(ctx, job, src, msg, event.CreditUpdate)
	case models.EventPayment, models.EventUnknown:
		// Recognized but unsupported: retrying will not make the format
		// supported, so dead-letter immediately
		cause := fmt.Errorf("unsupported alert type %q", event.Type)
		if err := p.writeDLQ(ctx, job, msg, cause, models.ErrorTypeUnsupported); err != nil {
			return err
		}
		logger.Warn("unsupported alert type, dead-lettered", "type", event.Type)
		return queue.Permanent(cause)
	default:
		return queue.Permanent(fmt.Errorf("unhandled event type %q", event.Type))
	}
}

// persistTransaction creates the processed-email anchor first, then the
// transaction tied to it. Once the anchor exists, redelivery no-ops at the
// dedup re-check.
func (p *Processor) persistTransaction(ctx context.Context, job *models.EmailJob, src *models.SyncSource, msg *models.EmailMessage, txn *models.ParsedTransaction) error {
	pe, err := p.store.MarkEmailProcessed(ctx, job.UserID, job.SyncSourceID, msg.UID, contentHash(msg))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	rec := &models.TransactionRecord{
		UserID:           job.UserID,
		AccountID:        src.AccountID,
		SyncSourceID:     src.ID,
		ProcessedEmailID: pe.ID,
		Amount:           txn.Amount,
		Date:             txn.Date,
		Name:             txn.Name,
		MerchantName:     txn.MerchantName,
		Pending:          txn.Pending,
	}
	if err := p.store.CreateTransaction(ctx, rec); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	p.logger.Info("transaction recorded",
		"source_id", src.ID,
		"uid", msg.UID,
		"amount", txn.Amount.String(),
		"merchant", txn.MerchantName,
	)
	return nil
}

func (p *Processor) persistCreditUpdate(ctx context.Context, job *models.EmailJob, src *models.SyncSource, msg *models.EmailMessage, upd *models.ParsedCreditUpdate) error {
	pe, err := p.store.MarkEmailProcessed(ctx, job.UserID, job.SyncSourceID, msg.UID, contentHash(msg))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	detail := "email alert"
	if upd.CardLast4 != "" {
		detail = "card *" + upd.CardLast4
	}
	balance := &models.BalanceUpdate{
		UserID:           job.UserID,
		AccountID:        src.AccountID,
		SyncSourceID:     src.ID,
		ProcessedEmailID: pe.ID,
		BalanceType:      "available_credit",
		NewBalance:       upd.AvailableCredit,
		UpdateSource:     "email_alert",
		SourceDetail:     detail,
		UpdateDate:       upd.Date,
	}
	if err := p.store.CreateBalanceUpdate(ctx, balance); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	p.logger.Info("balance update recorded",
		"source_id", src.ID,
		"uid", msg.UID,
		"available_credit", upd.AvailableCredit.String(),
	)
	return nil
}

// HandleDead runs when a job exhausts its retries. Implements
// queue.Handler. The DLQ row keeps the full message snapshot for manual
// reprocessing.
func (p *Processor) HandleDead(ctx context.Context, job *models.EmailJob, cause error) {
	msg, err := job.Message.ToEmailMessage()
	if err != nil {
		p.logger.Error("cannot snapshot dead job", "source_id", job.SyncSourceID, "error", err)
		return
	}

	if err := p.writeDLQ(ctx, job, msg, cause, classifyError(cause)); err != nil {
		p.logger.Error("failed to write dlq entry",
			"source_id", job.SyncSourceID,
			"uid", msg.UID,
			"error", err,
		)
		return
	}

	p.logger.Warn("job dead-lettered after exhausted retries",
		"source_id", job.SyncSourceID,
		"uid", msg.UID,
		"error", cause,
	)
}

func (p *Processor) writeDLQ(ctx context.Context, job *models.EmailJob, msg *models.EmailMessage, cause error, errorType string) error {
	entry := &models.DLQEntry{
		UserID:       job.UserID,
		SyncSourceID: job.SyncSourceID,
		MessageUID:   msg.UID,
		Subject:      msg.Subject,
		FromAddress:  msg.From,
		Date:         msg.Date,
		BodyText:     msg.BodyText,
		BodyHTML:     msg.BodyHTML,
		ErrorMessage: cause.Error(),
		ErrorType:    errorType,
	}
	if err := p.store.CreateDLQEntry(ctx, entry); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return nil
}

// classifyError maps an exhausted-retry cause to its DLQ error type
func classifyError(cause error) string {
	switch {
	case errors.Is(cause, parser.ErrNoMatch):
		return models.ErrorTypeParse
	case errors.Is(cause, ErrPersistence):
		return models.ErrorTypePersistence
	default:
		return models.ErrorTypeProcessing
	}
}

func contentHash(msg *models.EmailMessage) string {
	sum := sha256.Sum256([]byte(msg.Subject + "\x00" + msg.From + "\x00" + msg.BodyText))
	return hex.EncodeToString(sum[:])
}
