package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/promptweave-ai/promptweave/backend/internal/collab"
	"go.uber.org/zap"
)

// PresenceStore is the persisted-roster surface the gateway needs from the
// collaboration service. Both this live path and the stateless HTTP path call
// the same implementation, which is what keeps the two views convergent.
type PresenceStore interface {
	UpsertPresence(ctx context.Context, chatID string, entry collab.PresenceEntry) ([]collab.PresenceEntry, error)
	RemovePresence(ctx context.Context, chatID, email string) error
	AcceptInvite(ctx context.Context, chatID, email string) (collab.Collaborator, error)
}

type handlerFunc func(ctx context.Context, conn Conn, data json.RawMessage) error

// Gateway runs the live-connection event surface: one dispatch table keyed by
// inbound event name, handlers receiving an explicit connection handle and
// payload. Handler failures are scoped to the offending connection via an
// `error` event and never disturb other room members.
type Gateway struct {
	registry   *Registry
	dispatcher *Dispatcher
	presence   PresenceStore
	logger     *zap.Logger
	clock      func() time.Time

	handlers map[string]handlerFunc

	mu       sync.Mutex
	userRefs map[Conn]UserRef
}

// GatewayConfig bundles gateway dependencies.
type GatewayConfig struct {
	Registry   *Registry
	Dispatcher *Dispatcher
	Presence   PresenceStore
	Logger     *zap.Logger
	Clock      func() time.Time
}

// NewGateway constructs the gateway and its dispatch table.
func NewGateway(cfg GatewayConfig) (*Gateway, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("realtime: registry required")
	}
	if cfg.Dispatcher == nil {
		return nil, fmt.Errorf("realtime: dispatcher required")
	}
	if cfg.Presence == nil {
		return nil, fmt.Errorf("realtime: presence store required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	gateway := &Gateway{
		registry:   cfg.Registry,
		dispatcher: cfg.Dispatcher,
		presence:   cfg.Presence,
		logger:     logger,
		clock:      clock,
		userRefs:   make(map[Conn]UserRef),
	}
	gateway.handlers = map[string]handlerFunc{
		EventIdentify:           gateway.handleIdentify,
		EventJoinChat:           gateway.handleJoinChat,
		EventLeaveChat:          gateway.handleLeaveChat,
		EventSendMessage:        gateway.handleSendMessage,
		EventTyping:             gateway.handleTyping,
		EventStopTyping:         gateway.handleStopTyping,
		EventPresenceUpdate:     gateway.handlePresenceUpdate,
		EventInvitationAccepted: gateway.handleInvitationAccepted,
	}
	return gateway, nil
}

// Dispatch routes one inbound envelope to its handler. Errors are reported to
// the offending connection only.
func (g *Gateway) Dispatch(conn Conn, envelope Envelope) {
	handler, ok := g.handlers[envelope.Event]
	if !ok {
		g.logger.Warn("unknown inbound event", zap.String("event", envelope.Event))
		return
	}
	// Live handlers outlive the read that scheduled them; persistence calls
	// must not be canceled by the connection's request context.
	if err := handler(context.Background(), conn, envelope.Data); err != nil {
		g.logger.Warn("event handler failed",
			zap.String("event", envelope.Event), zap.Error(err))
		_ = conn.Send(Message{Event: EventError, Data: errorPayload{
			Message: fmt.Sprintf("failed to handle %s", envelope.Event),
		}})
	}
}

// Disconnect runs the cleanup for a dropped connection: leaves every joined
// room, clears the identity table, and notifies remaining members. Exactly
// once per connection; a second call finds nothing to do.
func (g *Gateway) Disconnect(conn Conn) {
	affected := g.registry.Drop(conn)

	g.mu.Lock()
	user, identified := g.userRefs[conn]
	delete(g.userRefs, conn)
	g.mu.Unlock()

	if !identified {
		return
	}
	now := g.clock().UTC()
	for _, roomID := range affected {
		g.dispatcher.Broadcast(roomID, EventUserLeft, userEventPayload{User: user, Timestamp: now}, conn)
	}
	g.logger.Info("connection dropped",
		zap.String("identity", user.Email), zap.Int("rooms", len(affected)))
}

// NotifyInvited pushes an invitation-received event to the invitee when they
// are online. Offline invitees are a normal no-op.
func (g *Gateway) NotifyInvited(inviteeEmail, chatID string, invitedBy UserRef, role string) {
	g.dispatcher.SendTo(inviteeEmail, EventInvitationReceived, invitationPayload{
		ChatID:    chatID,
		InvitedBy: invitedBy,
		Role:      role,
		Timestamp: g.clock().UTC(),
	})
}

func (g *Gateway) handleIdentify(_ context.Context, conn Conn, data json.RawMessage) error {
	var payload identifyPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("decode identify: %w", err)
	}
	email := strings.TrimSpace(payload.Email)
	if email == "" {
		return fmt.Errorf("identify: email required")
	}

	user := UserRef{Email: email, Name: payload.Name}
	g.mu.Lock()
	g.userRefs[conn] = user
	g.mu.Unlock()
	g.registry.Identify(email, conn)

	g.logger.Info("connection identified", zap.String("identity", email))
	return nil
}

func (g *Gateway) handleJoinChat(ctx context.Context, conn Conn, data json.RawMessage) error {
	var payload roomPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("decode join-chat: %w", err)
	}
	if payload.ChatID == "" || payload.User.Email == "" {
		return fmt.Errorf("join-chat: chatId and user required")
	}

	g.registry.Join(payload.ChatID, conn)

	// Presence persistence degrades silently: a failed write leaves TTL
	// eviction to reconcile, the join itself still completes.
	roster, err := g.presence.UpsertPresence(ctx, payload.ChatID, collab.PresenceEntry{
		Email: payload.User.Email,
		Name:  payload.User.Name,
	})
	if err != nil {
		g.logger.Warn("presence upsert on join failed",
			zap.String("chat_id", payload.ChatID), zap.Error(err))
		roster = []collab.PresenceEntry{}
	}

	now := g.clock().UTC()
	g.dispatcher.Broadcast(payload.ChatID, EventUserJoined,
		userEventPayload{User: payload.User, Timestamp: now}, conn)
	_ = conn.Send(Message{Event: EventActiveUsers, Data: roster})

	g.logger.Info("user joined chat",
		zap.String("chat_id", payload.ChatID), zap.String("identity", payload.User.Email))
	return nil
}

func (g *Gateway) handleLeaveChat(ctx context.Context, conn Conn, data json.RawMessage) error {
	var payload roomPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("decode leave-chat: %w", err)
	}

	g.registry.Leave(payload.ChatID, conn)
	if err := g.presence.RemovePresence(ctx, payload.ChatID, payload.User.Email); err != nil {
		g.logger.Warn("presence removal on leave failed",
			zap.String("chat_id", payload.ChatID), zap.Error(err))
	}
	g.dispatcher.Broadcast(payload.ChatID, EventUserLeft,
		userEventPayload{User: payload.User, Timestamp: g.clock().UTC()}, conn)
	return nil
}

func (g *Gateway) handleSendMessage(_ context.Context, conn Conn, data json.RawMessage) error {
	var payload sendMessagePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("decode send-message: %w", err)
	}
	if payload.ChatID == "" || payload.Message == "" {
		return fmt.Errorf("send-message: chatId and message required")
	}

	// Room messages echo back to the sender as well.
	g.dispatcher.Broadcast(payload.ChatID, EventNewMessage, chatMessagePayload{
		ID:        uuid.NewString(),
		Text:      payload.Message,
		Sender:    payload.User,
		Timestamp: g.clock().UTC(),
	}, nil)
	return nil
}

func (g *Gateway) handleTyping(_ context.Context, conn Conn, data json.RawMessage) error {
	var payload roomPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("decode typing: %w", err)
	}
	g.dispatcher.Broadcast(payload.ChatID, EventUserTyping,
		userEventPayload{User: payload.User, Timestamp: g.clock().UTC()}, conn)
	return nil
}

func (g *Gateway) handleStopTyping(_ context.Context, conn Conn, data json.RawMessage) error {
	var payload roomPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("decode stop-typing: %w", err)
	}
	g.dispatcher.Broadcast(payload.ChatID, EventUserStopTyping,
		userEventPayload{User: payload.User}, conn)
	return nil
}

func (g *Gateway) handlePresenceUpdate(ctx context.Context, conn Conn, data json.RawMessage) error {
	var payload presencePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("decode presence-update: %w", err)
	}

	_, err := g.presence.UpsertPresence(ctx, payload.ChatID, collab.PresenceEntry{
		Email:  payload.User.Email,
		Name:   payload.User.Name,
		Cursor: payload.Cursor,
	})
	if err != nil {
		// Presence updates degrade silently; a stale cursor is tolerable.
		g.logger.Warn("presence update failed",
			zap.String("chat_id", payload.ChatID), zap.Error(err))
		return nil
	}

	g.dispatcher.Broadcast(payload.ChatID, EventPresenceChanged, presenceChangedPayload{
		User:      payload.User,
		Cursor:    payload.Cursor,
		Timestamp: g.clock().UTC(),
	}, conn)
	return nil
}

func (g *Gateway) handleInvitationAccepted(ctx context.Context, conn Conn, data json.RawMessage) error {
	var payload roomPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("decode invitation-accepted: %w", err)
	}

	if _, err := g.presence.AcceptInvite(ctx, payload.ChatID, payload.User.Email); err != nil {
		g.logger.Warn("invite acceptance persistence failed",
			zap.String("chat_id", payload.ChatID), zap.Error(err))
	}
	// Everyone in the room, acceptor included, sees the new collaborator.
	g.dispatcher.Broadcast(payload.ChatID, EventCollaboratorJoined,
		userEventPayload{User: payload.User, Timestamp: g.clock().UTC()}, nil)
	return nil
}
