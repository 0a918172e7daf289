package realtime

import (
	"encoding/json"
	"time"

	"github.com/promptweave-ai/promptweave/backend/internal/collab"
)

// Inbound event names accepted from live connections.
const (
	EventIdentify           = "identify"
	EventJoinChat           = "join-chat"
	EventLeaveChat          = "leave-chat"
	EventSendMessage        = "send-message"
	EventTyping             = "typing"
	EventStopTyping         = "stop-typing"
	EventPresenceUpdate     = "presence-update"
	EventInvitationAccepted = "invitation-accepted"
)

// Outbound event names delivered to live connections.
const (
	EventUserJoined         = "user-joined"
	EventActiveUsers        = "active-users"
	EventUserLeft           = "user-left"
	EventNewMessage         = "new-message"
	EventUserTyping         = "user-typing"
	EventUserStopTyping     = "user-stop-typing"
	EventPresenceChanged    = "presence-changed"
	EventCollaboratorJoined = "collaborator-joined"
	EventInvitationReceived = "invitation-received"
	EventError              = "error"
)

// Envelope is the wire frame for inbound events: a name plus a raw payload
// decoded by the matching handler.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Message is an outbound event frame.
type Message struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// UserRef identifies a participant in event payloads. Email is the identity key.
type UserRef struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

type identifyPayload struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

type roomPayload struct {
	ChatID string  `json:"chatId"`
	User   UserRef `json:"user"`
}

type sendMessagePayload struct {
	ChatID  string  `json:"chatId"`
	Message string  `json:"message"`
	User    UserRef `json:"user"`
}

type presencePayload struct {
	ChatID string        `json:"chatId"`
	User   UserRef       `json:"user"`
	Cursor collab.Cursor `json:"cursor"`
}

type userEventPayload struct {
	User      UserRef   `json:"user"`
	Timestamp time.Time `json:"timestamp"`
}

type chatMessagePayload struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Sender    UserRef   `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
}

type presenceChangedPayload struct {
	User      UserRef       `json:"user"`
	Cursor    collab.Cursor `json:"cursor"`
	Timestamp time.Time     `json:"timestamp"`
}

type invitationPayload struct {
	ChatID    string    `json:"chatId"`
	InvitedBy UserRef   `json:"invitedBy"`
	Role      string    `json:"role"`
	Timestamp time.Time `json:"timestamp"`
}

type errorPayload struct {
	Message string `json:"message"`
}
