package queue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"banksync/internal/database"
	"banksync/pkg/models"
)

func testQueue(t *testing.T) *Queue {
	t.Helper()
	db, err := database.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate(context.Background()))

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(db, logger, 3, time.Millisecond)
}

func testPayload(uid string) *models.EmailJob {
	return &models.EmailJob{
		SyncSourceID: 1,
		UserID:       "user-1",
		Message: models.JobMessage{
			UID:      uid,
			Subject:  "alert",
			From:     "alerts@example.com",
			Date:     time.Now().Format(time.RFC3339),
			BodyText: "body",
		},
	}
}

func TestEnqueueIsIdempotent(t *testing.T) {
	q := testQueue(t)
	ctx := context.Background()

	added, err := q.Enqueue(ctx, "1-100", testPayload("100"))
	require.NoError(t, err)
	assert.True(t, added)

	// Same key again: absorbed, regardless of payload
	added, err = q.Enqueue(ctx, "1-100", testPayload("100"))
	require.NoError(t, err)
	assert.False(t, added)

	job, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "1-100", job.ID)
	assert.Equal(t, StatusProcessing, job.Status)
	assert.Equal(t, 1, job.Attempts)

	// Nothing else runnable
	job, err = q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestEnqueueAfterCompletionIsNoOp(t *testing.T) {
	q := testQueue(t)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, "1-100", testPayload("100"))
	require.NoError(t, err)
	job, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NoError(t, q.Complete(ctx, job))

	// The completed row is the dedupe record: re-enqueue does not run again
	added, err := q.Enqueue(ctx, "1-100", testPayload("100"))
	require.NoError(t, err)
	assert.False(t, added)

	job, err = q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestFailRequeuesWithBackoffThenDies(t *testing.T) {
	q := testQueue(t)
	ctx := context.Background()
	cause := errors.New("boom")

	_, err := q.Enqueue(ctx, "1-100", testPayload("100"))
	require.NoError(t, err)

	for attempt := 1; attempt < 3; attempt++ {
		var job *Job
		require.Eventually(t, func() bool {
			job, err = q.Dequeue(ctx)
			require.NoError(t, err)
			return job != nil
		}, time.Second, time.Millisecond, "attempt %d should become runnable after backoff", attempt)
		assert.Equal(t, attempt, job.Attempts)

		exhausted, err := q.Fail(ctx, job, cause)
		require.NoError(t, err)
		assert.False(t, exhausted)
	}

	var job *Job
	require.Eventually(t, func() bool {
		job, err = q.Dequeue(ctx)
		require.NoError(t, err)
		return job != nil
	}, time.Second, time.Millisecond)
	assert.Equal(t, 3, job.Attempts)

	exhausted, err := q.Fail(ctx, job, cause)
	require.NoError(t, err)
	assert.True(t, exhausted, "third failure exhausts maxAttempts=3")

	stored, err := q.Get(ctx, "1-100")
	require.NoError(t, err)
	assert.Equal(t, StatusDead, stored.Status)
	assert.Equal(t, "boom", stored.LastError.String)

	// Dead jobs are never redelivered
	job, err = q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Nil(t, job)
}

type recordingHandler struct {
	mu      sync.Mutex
	handled []string
	dead    []string
	result  error
	done    chan struct{}
}

func (h *recordingHandler) Handle(ctx context.Context, job *models.EmailJob) error {
	h.mu.Lock()
	h.handled = append(h.handled, job.Message.UID)
	h.mu.Unlock()
	select {
	case h.done <- struct{}{}:
	default:
	}
	return h.result
}

func (h *recordingHandler) HandleDead(ctx context.Context, job *models.EmailJob, cause error) {
	h.mu.Lock()
	h.dead = append(h.dead, job.Message.UID)
	h.mu.Unlock()
}

func TestConsumerCompletesJob(t *testing.T) {
	q := testQueue(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := q.Enqueue(ctx, "1-100", testPayload("100"))
	require.NoError(t, err)

	handler := &recordingHandler{done: make(chan struct{}, 1)}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	consumer := NewConsumer(q, handler, logger, 2, 6000)
	consumer.pollInterval = 10 * time.Millisecond

	runDone := make(chan error, 1)
	go func() { runDone <- consumer.Run(ctx) }()

	select {
	case <-handler.done:
	case <-ctx.Done():
		t.Fatal("job was never handled")
	}

	require.Eventually(t, func() bool {
		stored, err := q.Get(ctx, "1-100")
		require.NoError(t, err)
		return stored.Status == StatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-runDone)
	assert.Equal(t, []string{"100"}, handler.handled)
	assert.Empty(t, handler.dead)
}

func TestConsumerDeadLettersPermanentFailure(t *testing.T) {
	q := testQueue(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := q.Enqueue(ctx, "1-200", testPayload("200"))
	require.NoError(t, err)

	handler := &recordingHandler{
		done:   make(chan struct{}, 1),
		result: Permanent(errors.New("unsupported alert type")),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	consumer := NewConsumer(q, handler, logger, 1, 6000)
	consumer.pollInterval = 10 * time.Millisecond

	runDone := make(chan error, 1)
	go func() { runDone <- consumer.Run(ctx) }()

	<-handler.done

	require.Eventually(t, func() bool {
		stored, err := q.Get(ctx, "1-200")
		require.NoError(t, err)
		return stored.Status == StatusDead
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-runDone)

	// Permanent failure: exactly one handling, no retries, and HandleDead
	// is not invoked (the handler already wrote its own record)
	assert.Equal(t, []string{"200"}, handler.handled)
	assert.Empty(t, handler.dead)
}
