package bus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haasonsaas/agentd/pkg/models"
)

type memStore struct {
	mu     sync.Mutex
	events []models.Event
}

func (s *memStore) AppendEvent(_ context.Context, _ string, event models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *memStore) all() []models.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Event(nil), s.events...)
}

func TestPersistsAndForwardsInOrder(t *testing.T) {
	store := &memStore{}
	b := New(Config{SessionID: "s1", Store: store})

	var mu sync.Mutex
	var sent []models.EventType
	b.AttachClient(func(ev models.Event) error {
		mu.Lock()
		defer mu.Unlock()
		sent = append(sent, ev.Type)
		return nil
	})

	types := []models.EventType{
		models.EventProcessing,
		models.EventToolCall,
		models.EventToolResult,
		models.EventAgentResponse,
	}
	for _, typ := range types {
		b.Publish(models.NewEvent(typ, nil))
	}
	b.Close()

	require.Len(t, store.all(), len(types))
	for i, ev := range store.all() {
		assert.Equal(t, types[i], ev.Type)
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, types, sent)
}

func TestUserMessageNotForwardedButPersisted(t *testing.T) {
	store := &memStore{}
	b := New(Config{SessionID: "s1", Store: store})

	forwarded := 0
	b.AttachClient(func(models.Event) error {
		forwarded++
		return nil
	})

	b.Publish(models.NewEvent(models.EventUserMessage, map[string]any{"text": "hi"}))
	b.Close()

	assert.Equal(t, 0, forwarded)
	require.Len(t, store.all(), 1)
	assert.Equal(t, models.EventUserMessage, store.all()[0].Type)
}

func TestSendFailureDemotesClient(t *testing.T) {
	store := &memStore{}
	b := New(Config{SessionID: "s1", Store: store})

	attempts := 0
	b.AttachClient(func(models.Event) error {
		attempts++
		return errors.New("connection reset")
	})

	b.Publish(models.NewEvent(models.EventSystem, nil))
	b.Publish(models.NewEvent(models.EventSystem, nil))
	b.Close()

	// Only the first send was attempted; both events persisted.
	assert.Equal(t, 1, attempts)
	assert.Len(t, store.all(), 2)
}

func TestDetachedClientKeepsPersisting(t *testing.T) {
	store := &memStore{}
	b := New(Config{SessionID: "s1", Store: store})

	b.AttachClient(func(models.Event) error { return nil })
	b.DetachClient()

	b.Publish(models.NewEvent(models.EventAgentResponse, nil))
	b.Close()

	assert.Len(t, store.all(), 1)
}

func TestPublishAfterCloseDropped(t *testing.T) {
	b := New(Config{})
	b.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		b.Publish(models.NewEvent(models.EventSystem, nil))
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish after close blocked")
	}
}
