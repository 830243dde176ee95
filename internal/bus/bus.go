// Package bus implements the per-agent event queue. Events are published in
// program order, drained FIFO by one background worker, persisted to the
// event log, and forwarded to the client channel when one is attached.
package bus

import (
	"context"
	"log/slog"
	"sync"

	"github.com/haasonsaas/agentd/pkg/models"
)

// EventStore persists events; implemented by the sqlite store.
type EventStore interface {
	AppendEvent(ctx context.Context, sessionID string, event models.Event) error
}

// ClientSender delivers one event to the connected client. A returned error
// demotes the client so further sends are dropped while persistence
// continues.
type ClientSender func(event models.Event) error

// queueSize bounds the pending event backlog. Publishing blocks when full,
// which preserves ordering without dropping events.
const queueSize = 256

// Bus is one agent's event queue plus its drain worker. The worker runs
// until Close and is deliberately not tied to any client connection: a
// disconnect detaches the sender but never stops persistence.
type Bus struct {
	logger    *slog.Logger
	store     EventStore
	sessionID string

	queue chan models.Event
	done  chan struct{}

	mu   sync.Mutex
	send ClientSender

	closeMu sync.RWMutex
	closed  bool
}

// Config configures a Bus.
type Config struct {
	// SessionID scopes persisted events. Empty disables persistence.
	SessionID string

	// Store receives event appends. Nil disables persistence.
	Store EventStore

	// Logger receives drain diagnostics. Default: slog.Default().
	Logger *slog.Logger
}

// New creates a bus and starts its drain worker.
func New(cfg Config) *Bus {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	b := &Bus{
		logger:    cfg.Logger,
		store:     cfg.Store,
		sessionID: cfg.SessionID,
		queue:     make(chan models.Event, queueSize),
		done:      make(chan struct{}),
	}
	go b.drain()
	return b
}

// AttachClient sets the client sender. Replaces any previous sender.
func (b *Bus) AttachClient(send ClientSender) {
	b.mu.Lock()
	b.send = send
	b.mu.Unlock()
}

// DetachClient removes the client sender; events keep persisting.
func (b *Bus) DetachClient() {
	b.AttachClient(nil)
}

// Publish enqueues an event. Blocks when the backlog is full; ordering is
// the publish order.
func (b *Bus) Publish(event models.Event) {
	b.closeMu.RLock()
	defer b.closeMu.RUnlock()
	if b.closed {
		b.logger.Warn("publish on closed bus dropped", "event_type", event.Type)
		return
	}
	b.queue <- event
}

// Close stops accepting events and waits for the backlog to drain.
func (b *Bus) Close() {
	b.closeMu.Lock()
	if b.closed {
		b.closeMu.Unlock()
		return
	}
	b.closed = true
	b.closeMu.Unlock()

	close(b.queue)
	<-b.done
}

func (b *Bus) drain() {
	defer close(b.done)
	for event := range b.queue {
		b.dispatch(event)
	}
}

func (b *Bus) dispatch(event models.Event) {
	if b.store != nil && b.sessionID != "" {
		if err := b.store.AppendEvent(context.Background(), b.sessionID, event); err != nil {
			// Persistence failures must never block the turn loop.
			b.logger.Error("persist event", "error", err, "event_type", event.Type, "session_id", b.sessionID)
		}
	}

	// The client already knows its own user messages.
	if event.Type == models.EventUserMessage {
		return
	}

	b.mu.Lock()
	send := b.send
	b.mu.Unlock()
	if send == nil {
		return
	}
	if err := send(event); err != nil {
		b.logger.Warn("client send failed, detaching", "error", err, "event_type", event.Type)
		b.DetachClient()
	}
}
