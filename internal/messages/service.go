package messages

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrInvalidInput indicates a missing or malformed request field.
var ErrInvalidInput = errors.New("messages: invalid input")

// ServiceConfig describes the dependencies for the message store.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
}

// Service persists and pages collaborative-room messages.
type Service struct {
	db    *gorm.DB
	clock func() time.Time
}

// NewService constructs the message service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("messages: database handle required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{db: cfg.Database, clock: clock}, nil
}

// CreateRequest carries a new room message.
type CreateRequest struct {
	ChatID      string
	SenderEmail string
	SenderName  string
	Content     string
	Type        MessageType
}

// Create persists one room message.
func (s *Service) Create(ctx context.Context, req CreateRequest) (Message, error) {
	if strings.TrimSpace(req.ChatID) == "" {
		return Message{}, fmt.Errorf("%w: chat id required", ErrInvalidInput)
	}
	if strings.TrimSpace(req.SenderEmail) == "" {
		return Message{}, fmt.Errorf("%w: sender email required", ErrInvalidInput)
	}
	if strings.TrimSpace(req.Content) == "" {
		return Message{}, fmt.Errorf("%w: content required", ErrInvalidInput)
	}
	messageType := req.Type
	if messageType == "" {
		messageType = TypeText
	}

	message := Message{
		MessageID:   uuid.NewString(),
		ChatID:      req.ChatID,
		SenderEmail: req.SenderEmail,
		SenderName:  req.SenderName,
		Content:     req.Content,
		Type:        messageType,
		CreatedAt:   s.clock().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&message).Error; err != nil {
		return Message{}, err
	}
	return message, nil
}

// Page is one page of room messages, oldest first for display order.
type Page struct {
	Messages    []Message
	CurrentPage int
	TotalPages  int
}

// ListByChat pages the chat's messages.
func (s *Service) ListByChat(ctx context.Context, chatID string, page, limit int) (Page, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 200 {
		limit = 50
	}

	var total int64
	if err := s.db.WithContext(ctx).Model(&Message{}).
		Where("chat_id = ?", chatID).Count(&total).Error; err != nil {
		return Page{}, err
	}

	var list []Message
	if err := s.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("created_at ASC").
		Limit(limit).
		Offset((page - 1) * limit).
		Find(&list).Error; err != nil {
		return Page{}, err
	}

	totalPages := int((total + int64(limit) - 1) / int64(limit))
	return Page{Messages: list, CurrentPage: page, TotalPages: totalPages}, nil
}
