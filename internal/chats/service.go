package chats

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/promptweave-ai/promptweave/backend/internal/llm"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrNotFound indicates the chat does not exist or belongs to another user.
	ErrNotFound = errors.New("chats: not found")
	// ErrInvalidInput indicates a missing or malformed request field.
	ErrInvalidInput = errors.New("chats: invalid input")

	errMissingDatabase = errors.New("chats: database handle required")
)

// Completer produces assistant replies; satisfied by the llm client.
type Completer interface {
	Complete(ctx context.Context, model string, messages []llm.ChatMessage) (string, error)
}

// ServiceConfig describes the dependencies for the chat service.
type ServiceConfig struct {
	Database  *gorm.DB
	Completer Completer
	Clock     func() time.Time
	Logger    *zap.Logger
}

// Service manages chat sessions and their LLM-backed transcripts.
type Service struct {
	db        *gorm.DB
	completer Completer
	clock     func() time.Time
	logger    *zap.Logger
}

// NewService constructs the chat service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	if cfg.Completer == nil {
		return nil, fmt.Errorf("chats: completer required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: cfg.Database, completer: cfg.Completer, clock: clock, logger: logger}, nil
}

// CreateRequest starts a new chat with the user's first message.
type CreateRequest struct {
	Message string
	Model   string
	Mode    Mode
}

// Result is a chat plus the completion sub-status. A failed completion never
// fails the request: the user message is persisted and the failure reported.
type Result struct {
	Chat             Chat
	Messages         []Message
	CompletionFailed bool
}

// Create opens a new chat, routes the model, and appends the assistant reply.
func (s *Service) Create(ctx context.Context, userEmail string, req CreateRequest) (Result, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return Result{}, fmt.Errorf("%w: message required", ErrInvalidInput)
	}
	mode := req.Mode
	if mode == "" {
		mode = ModeManual
	}
	if mode != ModeManual && mode != ModeAuto {
		return Result{}, fmt.Errorf("%w: unknown mode %q", ErrInvalidInput, req.Mode)
	}

	now := s.clock().UTC()
	chat := Chat{
		ChatID:    uuid.NewString(),
		UserEmail: userEmail,
		Title:     titleFrom(message),
		Mode:      mode,
		CreatedAt: now,
	}
	transcript := []Message{{Role: "user", Content: message, Timestamp: now}}

	model := s.pickModel(req.Model, mode, message)
	chat.Model = model

	reply, completionErr := s.complete(ctx, model, transcript)
	if completionErr == nil {
		transcript = append(transcript, Message{
			Role: "assistant", Content: reply, Model: model, Timestamp: s.clock().UTC(),
		})
	}

	if err := chat.SetMessages(transcript); err != nil {
		return Result{}, err
	}
	if err := s.db.WithContext(ctx).Create(&chat).Error; err != nil {
		return Result{}, err
	}
	return Result{Chat: chat, Messages: transcript, CompletionFailed: completionErr != nil}, nil
}

// Append adds a user message to an existing chat and fetches the reply.
func (s *Service) Append(ctx context.Context, userEmail, chatID, message, model string) (Result, error) {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return Result{}, fmt.Errorf("%w: message required", ErrInvalidInput)
	}

	chat, err := s.get(ctx, userEmail, chatID)
	if err != nil {
		return Result{}, err
	}
	transcript, err := chat.Messages()
	if err != nil {
		return Result{}, err
	}

	now := s.clock().UTC()
	transcript = append(transcript, Message{Role: "user", Content: trimmed, Timestamp: now})

	selected := model
	if chat.Mode == ModeAuto || selected == "" {
		selected = llm.SelectModel(trimmed)
	}
	chat.Model = selected

	reply, completionErr := s.complete(ctx, selected, transcript)
	if completionErr == nil {
		transcript = append(transcript, Message{
			Role: "assistant", Content: reply, Model: selected, Timestamp: s.clock().UTC(),
		})
	}

	if err := chat.SetMessages(transcript); err != nil {
		return Result{}, err
	}
	chat.UpdatedAt = s.clock().UTC()
	if err := s.db.WithContext(ctx).Save(chat).Error; err != nil {
		return Result{}, err
	}
	return Result{Chat: *chat, Messages: transcript, CompletionFailed: completionErr != nil}, nil
}

// Page is one page of a user's chat history, newest first.
type Page struct {
	Chats       []Chat
	CurrentPage int
	TotalPages  int
}

// List returns the user's chats paginated, newest first.
func (s *Service) List(ctx context.Context, userEmail string, page, limit int) (Page, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	var total int64
	if err := s.db.WithContext(ctx).Model(&Chat{}).
		Where("user_email = ?", userEmail).Count(&total).Error; err != nil {
		return Page{}, err
	}

	var list []Chat
	if err := s.db.WithContext(ctx).
		Where("user_email = ?", userEmail).
		Order("created_at DESC").
		Limit(limit).
		Offset((page - 1) * limit).
		Find(&list).Error; err != nil {
		return Page{}, err
	}

	totalPages := int((total + int64(limit) - 1) / int64(limit))
	return Page{Chats: list, CurrentPage: page, TotalPages: totalPages}, nil
}

// Get returns the chat by id, scoped to its owner.
func (s *Service) Get(ctx context.Context, userEmail, chatID string) (Chat, []Message, error) {
	chat, err := s.get(ctx, userEmail, chatID)
	if err != nil {
		return Chat{}, nil, err
	}
	transcript, err := chat.Messages()
	if err != nil {
		return Chat{}, nil, err
	}
	return *chat, transcript, nil
}

// MarkCollaborative flags the chat as shared. Called when a collaboration is
// first created for it.
func (s *Service) MarkCollaborative(ctx context.Context, chatID string) error {
	return s.db.WithContext(ctx).Model(&Chat{}).
		Where("chat_id = ?", chatID).
		Update("is_collaborative", true).Error
}

func (s *Service) get(ctx context.Context, userEmail, chatID string) (*Chat, error) {
	var chat Chat
	err := s.db.WithContext(ctx).
		Where("chat_id = ? AND user_email = ?", chatID, userEmail).
		Take(&chat).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: chat %s", ErrNotFound, chatID)
	}
	if err != nil {
		return nil, err
	}
	return &chat, nil
}

func (s *Service) pickModel(requested string, mode Mode, message string) string {
	if mode == ModeAuto || requested == "" {
		return llm.SelectModel(message)
	}
	return requested
}

func (s *Service) complete(ctx context.Context, model string, transcript []Message) (string, error) {
	turns := make([]llm.ChatMessage, 0, len(transcript))
	for _, msg := range transcript {
		turns = append(turns, llm.ChatMessage{Role: msg.Role, Content: msg.Content})
	}
	reply, err := s.completer.Complete(ctx, model, turns)
	if err != nil {
		s.logger.Warn("completion failed", zap.String("model", model), zap.Error(err))
		return "", err
	}
	return reply, nil
}
