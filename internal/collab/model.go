package collab

import (
	"encoding/json"
	"fmt"
	"time"
)

// Role enumerates collaborator permission levels.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

// InviteStatus enumerates the lifecycle of an invitation.
type InviteStatus string

const (
	InviteStatusPending  InviteStatus = "pending"
	InviteStatusAccepted InviteStatus = "accepted"
	InviteStatusRejected InviteStatus = "rejected"
)

// ValidRole reports whether the value is an assignable collaborator role.
func ValidRole(role Role) bool {
	switch role {
	case RoleOwner, RoleEditor, RoleViewer:
		return true
	default:
		return false
	}
}

// Cursor is per-participant cursor metadata shared through the presence roster.
type Cursor struct {
	Position int    `json:"position"`
	Color    string `json:"color"`
}

// PresenceEntry is one participant's slot in a room's presence roster.
// Email is the identity key: a roster holds at most one entry per email.
type PresenceEntry struct {
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	LastActiveAt time.Time `json:"lastActiveAt"`
	Cursor       Cursor    `json:"cursor"`
}

// Collaborator is an invited participant on a chat.
type Collaborator struct {
	ID        string       `json:"id"`
	Email     string       `json:"email"`
	Name      string       `json:"name"`
	Role      Role         `json:"role"`
	Status    InviteStatus `json:"status"`
	InvitedAt time.Time    `json:"invitedAt"`
}

// Collaboration is the persisted aggregate for one chat's sharing state.
// Collaborator and roster lists are embedded as JSON text columns; the row is
// the single source of truth for presence, written last-write-wins by both the
// live-connection path and the stateless HTTP path.
type Collaboration struct {
	ChatID            string    `gorm:"column:chat_id;primaryKey;size:190;not null"`
	OwnerEmail        string    `gorm:"column:owner_email;size:320;not null"`
	CollaboratorsJSON string    `gorm:"column:collaborators_json;type:text;not null;default:'[]'"`
	ActiveUsersJSON   string    `gorm:"column:active_users_json;type:text;not null;default:'[]'"`
	ShareToken        string    `gorm:"column:share_token;size:190;index"`
	ShareLinkEnabled  bool      `gorm:"column:share_link_enabled;not null;default:false"`
	ShareExpiresAtS   int64     `gorm:"column:share_expires_at_s;not null;default:0"`
	CreatedAt         time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Collaboration) TableName() string {
	return "collaborations"
}

// Collaborators decodes the embedded collaborator list.
func (c *Collaboration) Collaborators() ([]Collaborator, error) {
	return decodeList[Collaborator](c.CollaboratorsJSON, "collaborators")
}

// SetCollaborators encodes the collaborator list back into the aggregate.
func (c *Collaboration) SetCollaborators(list []Collaborator) error {
	encoded, err := encodeList(list, "collaborators")
	if err != nil {
		return err
	}
	c.CollaboratorsJSON = encoded
	return nil
}

// ActiveUsers decodes the embedded presence roster.
func (c *Collaboration) ActiveUsers() ([]PresenceEntry, error) {
	return decodeList[PresenceEntry](c.ActiveUsersJSON, "active users")
}

// SetActiveUsers encodes the presence roster back into the aggregate.
func (c *Collaboration) SetActiveUsers(roster []PresenceEntry) error {
	encoded, err := encodeList(roster, "active users")
	if err != nil {
		return err
	}
	c.ActiveUsersJSON = encoded
	return nil
}

func decodeList[T any](raw, label string) ([]T, error) {
	if raw == "" {
		return nil, nil
	}
	var list []T
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil, fmt.Errorf("collab: decode %s: %w", label, err)
	}
	return list, nil
}

func encodeList[T any](list []T, label string) (string, error) {
	if list == nil {
		list = []T{}
	}
	encoded, err := json.Marshal(list)
	if err != nil {
		return "", fmt.Errorf("collab: encode %s: %w", label, err)
	}
	return string(encoded), nil
}
