package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"banksync/pkg/models"
)

// SourceStore is the persistence surface the sync pass needs
type SourceStore interface {
	GetActiveSources(ctx context.Context) ([]*models.SyncSource, error)
	ListProcessedUIDs(ctx context.Context, syncSourceID int64) ([]uint32, error)
	ListDLQUIDs(ctx context.Context, syncSourceID int64) ([]uint32, error)
	UpdateSourceSynced(ctx context.Context, id int64, lastUID uint32, at time.Time) error
	SetSourceStatus(ctx context.Context, id int64, status string) error
}

// Enqueuer adds jobs to the durable queue
type Enqueuer interface {
	Enqueue(ctx context.Context, id string, payload any) (bool, error)
}

// Decrypter recovers an IMAP password from its encrypted-at-rest form
type Decrypter interface {
	Decrypt(encrypted string) (string, error)
}

// MailFetcher is the slice of the IMAP client a sync pass uses
type MailFetcher interface {
	Connect(ctx context.Context) error
	Disconnect()
	OpenFolder(ctx context.Context, name string, readOnly bool) (uint32, error)
	FetchAllEmails(ctx context.Context, limit int) ([]*models.EmailMessage, error)
}

// ClientFactory builds an IMAP client for one source with its decrypted
// password. Injected so tests can substitute fakes.
type ClientFactory func(src *models.SyncSource, password string) MailFetcher

// SyncResult summarizes one sync pass over one source
type SyncResult struct {
	EmailsFetched int
	JobsEnqueued  int
	Errors        int
	Duration      time.Duration
}

// Orchestrator runs sync passes: fetch a source's folder, filter out
// already-handled messages, enqueue the rest as jobs
type Orchestrator struct {
	store      SourceStore
	queue      Enqueuer
	cipher     Decrypter
	newClient  ClientFactory
	fetchLimit int
	logger     *slog.Logger
}

// NewOrchestrator creates an orchestrator
func NewOrchestrator(store SourceStore, queue Enqueuer, cipher Decrypter, newClient ClientFactory, fetchLimit int, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		store:      store,
		queue:      queue,
		cipher:     cipher,
		newClient:  newClient,
		fetchLimit: fetchLimit,
		logger:     logger.With("component", "orchestrator"),
	}
}

// SyncSource runs one pass for one source. The password is decrypted
// just-in-time and never persisted; messages already in the processed or
// dead-letter sets are skipped; per-email enqueue failures are counted but
// do not abort the batch.
func (o *Orchestrator) SyncSource(ctx context.Context, src *models.SyncSource) (*SyncResult, error) {
	start := time.Now()
	logger := o.logger.With("source_id", src.ID, "email", src.EmailAddress)

	password, err := o.cipher.Decrypt(src.PasswordEnc)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt credentials for source %d: %w", src.ID, err)
	}

	processed, err := o.handledUIDs(ctx, src.ID)
	if err != nil {
		return nil, err
	}

	client := o.newClient(src, password)
	if err := client.Connect(ctx); err != nil {
		return nil, err
	}
	defer client.Disconnect()

	folder := src.Folder
	if folder == "" {
		folder = "INBOX"
	}
	if _, err := client.OpenFolder(ctx, folder, true); err != nil {
		return nil, err
	}

	emails, err := client.FetchAllEmails(ctx, o.fetchLimit)
	if err != nil {
		return nil, err
	}

	result := &SyncResult{EmailsFetched: len(emails)}
	maxUID := src.LastUID
	for _, email := range emails {
		if email.UID > maxUID {
			maxUID = email.UID
		}
		if processed[email.UID] {
			continue
		}

		key := models.JobKey(src.ID, email.UID)
		added, err := o.queue.Enqueue(ctx, key, models.NewEmailJob(src, email))
		if err != nil {
			logger.Error("failed to enqueue email", "uid", email.UID, "error", err)
			result.Errors++
			continue
		}
		if added {
			result.JobsEnqueued++
		}
	}

	if err := o.store.UpdateSourceSynced(ctx, src.ID, maxUID, time.Now()); err != nil {
		return nil, err
	}

	result.Duration = time.Since(start)
	logger.Info("sync pass complete",
		"fetched", result.EmailsFetched,
		"enqueued", result.JobsEnqueued,
		"errors", result.Errors,
		"duration", result.Duration,
	)
	return result, nil
}

// handledUIDs loads the processed and dead-lettered UID sets for a source.
// Both suppress re-enqueue: success and terminal failure are equally final.
// In-memory sets are acceptable because alert folders stay small.
func (o *Orchestrator) handledUIDs(ctx context.Context, sourceID int64) (map[uint32]bool, error) {
	processedUIDs, err := o.store.ListProcessedUIDs(ctx, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load processed uids: %w", err)
	}
	dlqUIDs, err := o.store.ListDLQUIDs(ctx, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load dlq uids: %w", err)
	}

	handled := make(map[uint32]bool, len(processedUIDs)+len(dlqUIDs))
	for _, uid := range processedUIDs {
		handled[uid] = true
	}
	for _, uid := range dlqUIDs {
		handled[uid] = true
	}
	return handled, nil
}

// TestSource verifies a source's credentials and folder by connecting once.
// Used when a mailbox is linked; a failure flips the source to error.
func (o *Orchestrator) TestSource(ctx context.Context, src *models.SyncSource) error {
	password, err := o.cipher.Decrypt(src.PasswordEnc)
	if err != nil {
		return fmt.Errorf("failed to decrypt credentials: %w", err)
	}

	client := o.newClient(src, password)
	if err := client.Connect(ctx); err != nil {
		if statusErr := o.store.SetSourceStatus(ctx, src.ID, models.SourceStatusError); statusErr != nil {
			o.logger.Error("failed to set source status", "source_id", src.ID, "error", statusErr)
		}
		return err
	}
	defer client.Disconnect()

	folder := src.Folder
	if folder == "" {
		folder = "INBOX"
	}
	if _, err := client.OpenFolder(ctx, folder, true); err != nil {
		if statusErr := o.store.SetSourceStatus(ctx, src.ID, models.SourceStatusError); statusErr != nil {
			o.logger.Error("failed to set source status", "source_id", src.ID, "error", statusErr)
		}
		return err
	}
	return nil
}
