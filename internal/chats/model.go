package chats

import (
	"encoding/json"
	"fmt"
	"time"
)

// Mode selects how the assistant model is chosen per message.
type Mode string

const (
	// ModeManual uses the model the client names.
	ModeManual Mode = "manual"
	// ModeAuto routes each message through the keyword model router.
	ModeAuto Mode = "auto"
)

const titleLimit = 50

// Message is one turn in a chat session's transcript.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Model     string    `json:"model,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Chat is a persisted session between a user and the LLM router. The
// transcript is embedded as a JSON text column.
type Chat struct {
	ChatID        string    `gorm:"column:chat_id;primaryKey;size:190;not null" json:"chatId"`
	UserEmail     string    `gorm:"column:user_email;size:320;not null;index:idx_chats_user_created,priority:1" json:"userEmail"`
	Title         string    `gorm:"column:title;size:190;not null" json:"title"`
	Model         string    `gorm:"column:model;size:190;not null" json:"model"`
	Mode          Mode      `gorm:"column:mode;size:32;not null;default:'manual'" json:"mode"`
	MessagesJSON  string    `gorm:"column:messages_json;type:text;not null;default:'[]'" json:"-"`
	Collaborative bool      `gorm:"column:is_collaborative;not null;default:false" json:"isCollaborative"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime;index:idx_chats_user_created,priority:2" json:"createdAt"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

// TableName provides the explicit table binding for GORM.
func (Chat) TableName() string {
	return "chats"
}

// Messages decodes the embedded transcript.
func (c *Chat) Messages() ([]Message, error) {
	if c.MessagesJSON == "" {
		return nil, nil
	}
	var messages []Message
	if err := json.Unmarshal([]byte(c.MessagesJSON), &messages); err != nil {
		return nil, fmt.Errorf("chats: decode transcript: %w", err)
	}
	return messages, nil
}

// SetMessages encodes the transcript back onto the row.
func (c *Chat) SetMessages(messages []Message) error {
	if messages == nil {
		messages = []Message{}
	}
	encoded, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("chats: encode transcript: %w", err)
	}
	c.MessagesJSON = string(encoded)
	return nil
}

func titleFrom(message string) string {
	if len(message) <= titleLimit {
		return message
	}
	return message[:titleLimit] + "..."
}
