package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/promptweave-ai/promptweave/backend/internal/collab"
)

// fakeConn records every message sent to it, standing in for a websocket.
type fakeConn struct {
	mu       sync.Mutex
	messages []Message
	closed   bool
}

func (c *fakeConn) Send(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnClosed
	}
	c.messages = append(c.messages, msg)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) sent() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.messages...)
}

func (c *fakeConn) eventsSeen() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	events := make([]string, 0, len(c.messages))
	for _, msg := range c.messages {
		events = append(events, msg.Event)
	}
	return events
}

// fakePresence is an in-memory PresenceStore.
type fakePresence struct {
	mu       sync.Mutex
	rosters  map[string][]collab.PresenceEntry
	accepted map[string][]string
	failing  bool
	clock    func() time.Time
}

func newFakePresence(clock func() time.Time) *fakePresence {
	return &fakePresence{
		rosters:  make(map[string][]collab.PresenceEntry),
		accepted: make(map[string][]string),
		clock:    clock,
	}
}

func (p *fakePresence) UpsertPresence(_ context.Context, chatID string, entry collab.PresenceEntry) ([]collab.PresenceEntry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failing {
		return nil, context.DeadlineExceeded
	}
	p.rosters[chatID] = collab.UpsertEntry(p.rosters[chatID], entry, p.clock().UTC())
	return append([]collab.PresenceEntry(nil), p.rosters[chatID]...), nil
}

func (p *fakePresence) RemovePresence(_ context.Context, chatID, email string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rosters[chatID] = collab.RemoveEntry(p.rosters[chatID], email)
	return nil
}

func (p *fakePresence) AcceptInvite(_ context.Context, chatID, email string) (collab.Collaborator, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accepted[chatID] = append(p.accepted[chatID], email)
	return collab.Collaborator{Email: email, Status: collab.InviteStatusAccepted}, nil
}

func newTestGateway(t *testing.T) (*Gateway, *Registry, *fakePresence) {
	t.Helper()
	clock := func() time.Time { return time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC) }
	registry := NewRegistry()
	presence := newFakePresence(clock)
	gateway, err := NewGateway(GatewayConfig{
		Registry:   registry,
		Dispatcher: NewDispatcher(registry, nil),
		Presence:   presence,
		Clock:      clock,
	})
	if err != nil {
		t.Fatalf("unexpected gateway error: %v", err)
	}
	return gateway, registry, presence
}

func mustEnvelope(t *testing.T, event string, payload any) Envelope {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return Envelope{Event: event, Data: data}
}
