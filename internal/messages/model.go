package messages

import "time"

// MessageType enumerates supported room message kinds.
type MessageType string

const (
	TypeText   MessageType = "text"
	TypeSystem MessageType = "system"
)

// Message is a persisted collaborative-room message.
type Message struct {
	MessageID   string      `gorm:"column:message_id;primaryKey;size:190;not null" json:"messageId"`
	ChatID      string      `gorm:"column:chat_id;size:190;not null;index:idx_messages_chat_created,priority:1" json:"chatId"`
	SenderEmail string      `gorm:"column:sender_email;size:320;not null;index" json:"senderEmail"`
	SenderName  string      `gorm:"column:sender_name;size:320;not null" json:"senderName"`
	Content     string      `gorm:"column:content;type:text;not null" json:"content"`
	Type        MessageType `gorm:"column:type;size:32;not null;default:'text'" json:"type"`
	CreatedAt   time.Time   `gorm:"column:created_at;autoCreateTime;index:idx_messages_chat_created,priority:2" json:"createdAt"`
}

// TableName provides the explicit table binding for GORM.
func (Message) TableName() string {
	return "room_messages"
}
