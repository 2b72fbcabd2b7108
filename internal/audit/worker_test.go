package audit

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fortuna/pkg/domain"
)

type captureStore struct {
	mu     sync.Mutex
	events []Event
}

func (s *captureStore) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *captureStore) snapshot() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

type capturePublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *capturePublisher) Publish(_ context.Context, event Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *capturePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWorkerPersistsAndMirrors(t *testing.T) {
	store := &captureStore{}
	publisher := &capturePublisher{}
	recorder := NewRecorder(16, discardLogger())
	worker := NewWorker(store, publisher, recorder.Events(), discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = worker.Run(ctx)
		close(done)
	}()

	owner := domain.NewIdentityID()
	recorder.Record(&owner, EventIdentify, map[string]any{"client_id": "client-1"})
	recorder.Record(nil, EventAdminLogin, nil)

	require.Eventually(t, func() bool {
		return len(store.snapshot()) == 2 && publisher.count() == 2
	}, time.Second, 10*time.Millisecond)

	events := store.snapshot()
	assert.Equal(t, EventIdentify, events[0].Type)
	require.NotNil(t, events[0].OwnerID)
	assert.Equal(t, owner, *events[0].OwnerID)
	assert.Equal(t, EventAdminLogin, events[1].Type)
	assert.Nil(t, events[1].OwnerID)

	cancel()
	<-done
}

func TestRecorderDropsWhenFull(t *testing.T) {
	recorder := NewRecorder(1, discardLogger())

	// No worker is draining; the second record must not block.
	recorder.Record(nil, EventIdentify, nil)
	doneIn := make(chan struct{})
	go func() {
		recorder.Record(nil, EventIdentify, nil)
		close(doneIn)
	}()

	select {
	case <-doneIn:
	case <-time.After(time.Second):
		t.Fatal("Record blocked on a full buffer")
	}
	assert.Len(t, recorder.Events(), 1)
}
