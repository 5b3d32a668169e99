package syncer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"banksync/pkg/models"
)

func TestRunPassSyncsAllSources(t *testing.T) {
	store := newFakeStore(activeSource(1), activeSource(2))
	queue := newFakeQueue()
	client := &fakeClient{emails: []*models.EmailMessage{email(10)}}
	orch := NewOrchestrator(store, queue, fakeCipher{}, factoryFor(client), 0, testLogger())

	s := NewScheduler(store, orch, time.Minute, testLogger())
	s.RunPass(context.Background())

	assert.ElementsMatch(t, []string{"1-10", "2-10"}, queue.keys)
}

func TestRunPassIsolatesSourceFailures(t *testing.T) {
	store := newFakeStore(activeSource(1), activeSource(2))
	// Corrupt credentials on the first source only
	store.sources[0].PasswordEnc = "corrupt"

	queue := newFakeQueue()
	client := &fakeClient{emails: []*models.EmailMessage{email(10)}}
	cipher := selectiveCipher{failOn: "corrupt"}
	orch := NewOrchestrator(store, queue, cipher, factoryFor(client), 0, testLogger())

	s := NewScheduler(store, orch, time.Minute, testLogger())
	s.RunPass(context.Background())

	// First source failed and flipped to error; second still synced
	assert.Equal(t, models.SourceStatusError, store.statuses[1])
	assert.Equal(t, []string{"2-10"}, queue.keys)
}

type selectiveCipher struct{ failOn string }

func (c selectiveCipher) Decrypt(encrypted string) (string, error) {
	if encrypted == c.failOn {
		return "", errors.New("decryption failed")
	}
	return "plaintext", nil
}

// blockingStore parks GetActiveSources until released, to hold a pass open
type blockingStore struct {
	*fakeStore
	release chan struct{}
	entered chan struct{}
	mu      sync.Mutex
	calls   int
}

func (s *blockingStore) GetActiveSources(ctx context.Context) ([]*models.SyncSource, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	s.entered <- struct{}{}
	<-s.release
	return nil, nil
}

func TestOverlappingPassIsSkipped(t *testing.T) {
	store := &blockingStore{
		fakeStore: newFakeStore(),
		release:   make(chan struct{}),
		entered:   make(chan struct{}, 1),
	}
	orch := NewOrchestrator(store, newFakeQueue(), fakeCipher{}, factoryFor(&fakeClient{}), 0, testLogger())
	s := NewScheduler(store, orch, time.Minute, testLogger())

	done := make(chan struct{})
	go func() {
		s.RunPass(context.Background())
		close(done)
	}()

	// Wait until the first pass is mid-flight
	<-store.entered

	// A second pass during the first is skipped entirely: no source
	// enumeration, no fetches
	s.RunPass(context.Background())

	store.mu.Lock()
	calls := store.calls
	store.mu.Unlock()
	assert.Equal(t, 1, calls)

	close(store.release)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("first pass never finished")
	}

	// With the first pass finished the guard clears
	s.RunPass(context.Background())
	store.mu.Lock()
	calls = store.calls
	store.mu.Unlock()
	require.Equal(t, 2, calls)
}
