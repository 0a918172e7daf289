package promptgen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const defaultSessionTitle = "Prompt Generator Session"

// SessionMessage is one scratchpad exchange inside a refinement session.
type SessionMessage struct {
	Sender    string    `json:"sender,omitempty"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// Snippet is a reusable fragment the user pinned during a session.
type Snippet struct {
	ID      string `json:"id,omitempty"`
	Label   string `json:"label,omitempty"`
	Content string `json:"content"`
}

// SessionPrompt is a refined prompt kept inside a session, with flags for
// whether the user consumed it.
type SessionPrompt struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	Used     bool   `json:"used"`
	Injected bool   `json:"injected"`
}

// Session is a user's refinement scratchpad: the working conversation,
// pinned snippets, and prompts produced along the way. One session per
// sessionId is active at a time; reset archives it and mints a fresh one.
type Session struct {
	RecordID     string    `gorm:"column:record_id;primaryKey;size:190;not null" json:"id"`
	UserEmail    string    `gorm:"column:user_email;size:320;not null;index:idx_pg_sessions_user_session,priority:1" json:"userEmail"`
	SessionID    string    `gorm:"column:session_id;size:190;not null;index:idx_pg_sessions_user_session,priority:2" json:"sessionId"`
	Title        string    `gorm:"column:title;size:190;not null" json:"title"`
	MessagesJSON string    `gorm:"column:messages_json;type:text;not null;default:'[]'" json:"-"`
	SnippetsJSON string    `gorm:"column:snippets_json;type:text;not null;default:'[]'" json:"-"`
	PromptsJSON  string    `gorm:"column:prompts_json;type:text;not null;default:'[]'" json:"-"`
	Active       bool      `gorm:"column:is_active;not null;default:true" json:"isActive"`
	LastActivity time.Time `gorm:"column:last_activity" json:"lastActivity"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

// TableName provides the explicit table binding for GORM.
func (Session) TableName() string {
	return "prompt_generator_sessions"
}

func (s *Session) messages() ([]SessionMessage, error) {
	var list []SessionMessage
	if err := decodeList(s.MessagesJSON, &list, "messages"); err != nil {
		return nil, err
	}
	return list, nil
}

func (s *Session) snippets() ([]Snippet, error) {
	var list []Snippet
	if err := decodeList(s.SnippetsJSON, &list, "snippets"); err != nil {
		return nil, err
	}
	return list, nil
}

func (s *Session) prompts() ([]SessionPrompt, error) {
	var list []SessionPrompt
	if err := decodeList(s.PromptsJSON, &list, "prompts"); err != nil {
		return nil, err
	}
	return list, nil
}

func decodeList(raw string, target any, field string) error {
	if raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), target); err != nil {
		return fmt.Errorf("promptgen: decode session %s: %w", field, err)
	}
	return nil
}

func encodeList(value any, field string) (string, error) {
	encoded, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("promptgen: encode session %s: %w", field, err)
	}
	return string(encoded), nil
}

// SessionView is the external shape of a session with the lists decoded.
type SessionView struct {
	ID           string           `json:"id"`
	SessionID    string           `json:"sessionId"`
	Title        string           `json:"title"`
	Messages     []SessionMessage `json:"messages"`
	Snippets     []Snippet        `json:"snippets"`
	Prompts      []SessionPrompt  `json:"generatedPrompts"`
	Active       bool             `json:"isActive"`
	LastActivity time.Time        `json:"lastActivity"`
	CreatedAt    time.Time        `json:"createdAt"`
}

func sessionViewOf(session Session) (SessionView, error) {
	messages, err := session.messages()
	if err != nil {
		return SessionView{}, err
	}
	snippets, err := session.snippets()
	if err != nil {
		return SessionView{}, err
	}
	prompts, err := session.prompts()
	if err != nil {
		return SessionView{}, err
	}
	if messages == nil {
		messages = []SessionMessage{}
	}
	if snippets == nil {
		snippets = []Snippet{}
	}
	if prompts == nil {
		prompts = []SessionPrompt{}
	}
	return SessionView{
		ID:           session.RecordID,
		SessionID:    session.SessionID,
		Title:        session.Title,
		Messages:     messages,
		Snippets:     snippets,
		Prompts:      prompts,
		Active:       session.Active,
		LastActivity: session.LastActivity,
		CreatedAt:    session.CreatedAt,
	}, nil
}

// ActiveSession loads the user's active session for the id, creating it when
// absent.
func (s *Service) ActiveSession(ctx context.Context, userEmail, sessionID string) (SessionView, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return SessionView{}, fmt.Errorf("%w: session id required", ErrInvalidInput)
	}

	var session Session
	err := s.db.WithContext(ctx).
		Where("user_email = ? AND session_id = ? AND is_active = ?", userEmail, sessionID, true).
		Take(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		session = s.newSession(userEmail, sessionID)
		if err := s.db.WithContext(ctx).Create(&session).Error; err != nil {
			return SessionView{}, err
		}
		return sessionViewOf(session)
	}
	if err != nil {
		return SessionView{}, err
	}
	return sessionViewOf(session)
}

// SaveStateRequest carries a partial session update; nil slices leave the
// stored list untouched.
type SaveStateRequest struct {
	SessionID string
	Title     string
	Messages  []SessionMessage
	Snippets  []Snippet
	Prompts   []SessionPrompt
}

// SaveState upserts the active session and overwrites the provided fields.
func (s *Service) SaveState(ctx context.Context, userEmail string, req SaveStateRequest) (SessionView, error) {
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		return SessionView{}, fmt.Errorf("%w: session id required", ErrInvalidInput)
	}

	var session Session
	err := s.db.WithContext(ctx).
		Where("user_email = ? AND session_id = ? AND is_active = ?", userEmail, sessionID, true).
		Take(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		session = s.newSession(userEmail, sessionID)
		err = nil
	}
	if err != nil {
		return SessionView{}, err
	}

	if req.Title != "" {
		session.Title = req.Title
	}
	if req.Messages != nil {
		encoded, err := encodeList(req.Messages, "messages")
		if err != nil {
			return SessionView{}, err
		}
		session.MessagesJSON = encoded
	}
	if req.Snippets != nil {
		encoded, err := encodeList(req.Snippets, "snippets")
		if err != nil {
			return SessionView{}, err
		}
		session.SnippetsJSON = encoded
	}
	if req.Prompts != nil {
		encoded, err := encodeList(req.Prompts, "prompts")
		if err != nil {
			return SessionView{}, err
		}
		session.PromptsJSON = encoded
	}
	session.LastActivity = s.clock().UTC()

	if err := s.db.WithContext(ctx).Save(&session).Error; err != nil {
		return SessionView{}, err
	}
	return sessionViewOf(session)
}

// ArchivedSummary describes a session retired by a reset.
type ArchivedSummary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	MessageCount int       `json:"messageCount"`
	PromptCount  int       `json:"promptCount"`
	CreatedAt    time.Time `json:"createdAt"`
}

// ResetResult is the fresh session plus the summary of what it replaced, when
// the replaced session had content worth keeping.
type ResetResult struct {
	NewSession SessionView
	Archived   *ArchivedSummary
}

// ResetSession archives the current session and starts a fresh one with a new
// session id. Empty sessions are archived without a summary.
func (s *Service) ResetSession(ctx context.Context, userEmail, currentSessionID string) (ResetResult, error) {
	currentSessionID = strings.TrimSpace(currentSessionID)
	if currentSessionID == "" {
		return ResetResult{}, fmt.Errorf("%w: current session id required", ErrInvalidInput)
	}

	var archived *ArchivedSummary
	var current Session
	err := s.db.WithContext(ctx).
		Where("user_email = ? AND session_id = ? AND is_active = ?", userEmail, currentSessionID, true).
		Take(&current).Error
	if err == nil {
		messages, err := current.messages()
		if err != nil {
			return ResetResult{}, err
		}
		prompts, err := current.prompts()
		if err != nil {
			return ResetResult{}, err
		}
		current.Active = false
		current.UpdatedAt = s.clock().UTC()
		if err := s.db.WithContext(ctx).Save(&current).Error; err != nil {
			return ResetResult{}, err
		}
		if len(messages) > 0 || len(prompts) > 0 {
			archived = &ArchivedSummary{
				ID:           current.RecordID,
				Title:        current.Title,
				MessageCount: len(messages),
				PromptCount:  len(prompts),
				CreatedAt:    current.CreatedAt,
			}
		}
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return ResetResult{}, err
	}

	fresh := s.newSession(userEmail, "pg_"+uuid.NewString())
	if err := s.db.WithContext(ctx).Create(&fresh).Error; err != nil {
		return ResetResult{}, err
	}
	view, err := sessionViewOf(fresh)
	if err != nil {
		return ResetResult{}, err
	}
	return ResetResult{NewSession: view, Archived: archived}, nil
}

// SessionSummary is one row of the archived session listing.
type SessionSummary struct {
	ID           string    `json:"id"`
	SessionID    string    `json:"sessionId"`
	Title        string    `json:"title"`
	MessageCount int       `json:"messageCount"`
	PromptCount  int       `json:"promptCount"`
	Preview      string    `json:"preview"`
	LastActivity time.Time `json:"lastActivity"`
	CreatedAt    time.Time `json:"createdAt"`
}

// SessionHistoryPage pages the archived sessions, most recently active first.
type SessionHistoryPage struct {
	Sessions    []SessionSummary
	CurrentPage int
	TotalPages  int
	Total       int64
}

// SessionHistory lists the user's archived sessions that hold content.
func (s *Service) SessionHistory(ctx context.Context, userEmail string, page, limit int) (SessionHistoryPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 10
	}

	scope := s.db.WithContext(ctx).Model(&Session{}).
		Where("user_email = ? AND is_active = ?", userEmail, false).
		Where("messages_json != '[]' OR prompts_json != '[]'")

	var total int64
	if err := scope.Count(&total).Error; err != nil {
		return SessionHistoryPage{}, err
	}

	var rows []Session
	if err := scope.
		Order("last_activity DESC").
		Limit(limit).
		Offset((page - 1) * limit).
		Find(&rows).Error; err != nil {
		return SessionHistoryPage{}, err
	}

	summaries := make([]SessionSummary, 0, len(rows))
	for index := range rows {
		summary, err := summaryOf(&rows[index])
		if err != nil {
			return SessionHistoryPage{}, err
		}
		summaries = append(summaries, summary)
	}

	totalPages := int((total + int64(limit) - 1) / int64(limit))
	return SessionHistoryPage{Sessions: summaries, CurrentPage: page, TotalPages: totalPages, Total: total}, nil
}

// SessionByID returns one of the user's sessions regardless of active state.
func (s *Service) SessionByID(ctx context.Context, userEmail, sessionID string) (SessionView, error) {
	var session Session
	err := s.db.WithContext(ctx).
		Where("user_email = ? AND session_id = ?", userEmail, sessionID).
		Take(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return SessionView{}, fmt.Errorf("%w: session %s", ErrNotFound, sessionID)
	}
	if err != nil {
		return SessionView{}, err
	}
	return sessionViewOf(session)
}

// DeleteSession removes one of the user's sessions.
func (s *Service) DeleteSession(ctx context.Context, userEmail, sessionID string) error {
	result := s.db.WithContext(ctx).
		Where("user_email = ? AND session_id = ?", userEmail, sessionID).
		Delete(&Session{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: session %s", ErrNotFound, sessionID)
	}
	return nil
}

// Prompt actions a session accepts.
const (
	PromptActionUsed     = "used"
	PromptActionInjected = "injected"
)

// MarkPromptAction flags a session prompt as used or injected.
func (s *Service) MarkPromptAction(ctx context.Context, userEmail, sessionID, promptID, action string) (SessionView, error) {
	if action != PromptActionUsed && action != PromptActionInjected {
		return SessionView{}, fmt.Errorf("%w: unknown prompt action %q", ErrInvalidInput, action)
	}

	var session Session
	err := s.db.WithContext(ctx).
		Where("user_email = ? AND session_id = ?", userEmail, sessionID).
		Take(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return SessionView{}, fmt.Errorf("%w: session %s", ErrNotFound, sessionID)
	}
	if err != nil {
		return SessionView{}, err
	}

	prompts, err := session.prompts()
	if err != nil {
		return SessionView{}, err
	}
	found := false
	for index := range prompts {
		if prompts[index].ID != promptID {
			continue
		}
		if action == PromptActionUsed {
			prompts[index].Used = true
		} else {
			prompts[index].Injected = true
		}
		found = true
		break
	}
	if !found {
		return SessionView{}, fmt.Errorf("%w: prompt %s", ErrNotFound, promptID)
	}

	encoded, err := encodeList(prompts, "prompts")
	if err != nil {
		return SessionView{}, err
	}
	session.PromptsJSON = encoded
	session.LastActivity = s.clock().UTC()
	if err := s.db.WithContext(ctx).Save(&session).Error; err != nil {
		return SessionView{}, err
	}
	return sessionViewOf(session)
}

func (s *Service) newSession(userEmail, sessionID string) Session {
	now := s.clock().UTC()
	return Session{
		RecordID:     uuid.NewString(),
		UserEmail:    userEmail,
		SessionID:    sessionID,
		Title:        defaultSessionTitle,
		MessagesJSON: "[]",
		SnippetsJSON: "[]",
		PromptsJSON:  "[]",
		Active:       true,
		LastActivity: now,
		CreatedAt:    now,
	}
}

func summaryOf(session *Session) (SessionSummary, error) {
	messages, err := session.messages()
	if err != nil {
		return SessionSummary{}, err
	}
	prompts, err := session.prompts()
	if err != nil {
		return SessionSummary{}, err
	}

	preview := "Empty session"
	switch {
	case len(messages) > 0:
		preview = messages[0].Text
		if len(preview) > 100 {
			preview = preview[:100] + "..."
		}
	case len(prompts) > 0:
		preview = prompts[0].Title
	}

	return SessionSummary{
		ID:           session.RecordID,
		SessionID:    session.SessionID,
		Title:        session.Title,
		MessageCount: len(messages),
		PromptCount:  len(prompts),
		Preview:      preview,
		LastActivity: session.LastActivity,
		CreatedAt:    session.CreatedAt,
	}, nil
}
