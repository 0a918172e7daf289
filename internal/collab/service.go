package collab

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrNotFound indicates an unknown collaboration, collaborator, or share token.
	ErrNotFound = errors.New("collab: not found")
	// ErrForbidden indicates an owner-gated mutation attempted by a non-owner.
	ErrForbidden = errors.New("collab: forbidden")
	// ErrDuplicateCollaborator indicates the email is already on the collaborator list.
	ErrDuplicateCollaborator = errors.New("collab: collaborator already invited")
	// ErrInvalidInput indicates a missing or malformed request field.
	ErrInvalidInput = errors.New("collab: invalid input")
	// ErrShareLinkExpired indicates an enabled share link past its expiry.
	ErrShareLinkExpired = errors.New("collab: share link expired")

	errMissingDatabase = errors.New("collab: database handle required")
)

// ServiceConfig describes the dependencies for the collaboration service.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service owns the Collaboration aggregate: collaborator management, share
// links, and the persisted presence roster shared by the HTTP and live paths.
type Service struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
}

// NewService constructs the collaboration service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: cfg.Database, clock: clock, logger: logger}, nil
}

// ShareLinkView is the share-link portion of the aggregate view.
type ShareLinkView struct {
	Token     string     `json:"token,omitempty"`
	Enabled   bool       `json:"enabled"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// View is the external shape of the aggregate returned to HTTP callers.
type View struct {
	ChatID        string          `json:"chatId"`
	Owner         string          `json:"owner"`
	Collaborators []Collaborator  `json:"collaborators"`
	ShareLink     ShareLinkView   `json:"shareLink"`
	ActiveUsers   []PresenceEntry `json:"activeUsers"`
}

// GetOrCreate loads the aggregate for the chat, creating it lazily with the
// caller as owner when absent. The returned roster is TTL-filtered.
func (s *Service) GetOrCreate(ctx context.Context, chatID, callerEmail string) (View, error) {
	aggregate, err := s.loadOrCreate(ctx, chatID, callerEmail)
	if err != nil {
		return View{}, err
	}
	return s.viewOf(aggregate)
}

// InviteRequest carries an invitation for a chat.
type InviteRequest struct {
	Email string
	Name  string
	Role  Role
}

// InviteResult reports the appended collaborator and the share token minted
// (or reused) for the invitation email.
type InviteResult struct {
	Collaborator Collaborator
	ShareToken   string
}

// Invite appends a collaborator, rejecting duplicates by email, and ensures a
// share token exists for the invitation link.
func (s *Service) Invite(ctx context.Context, chatID, callerEmail string, req InviteRequest) (InviteResult, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		return InviteResult{}, fmt.Errorf("%w: email required", ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return InviteResult{}, fmt.Errorf("%w: malformed email", ErrInvalidInput)
	}
	role := req.Role
	if role == "" {
		role = RoleViewer
	}
	if !ValidRole(role) {
		return InviteResult{}, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, req.Role)
	}

	aggregate, err := s.loadOrCreate(ctx, chatID, callerEmail)
	if err != nil {
		return InviteResult{}, err
	}

	collaborators, err := aggregate.Collaborators()
	if err != nil {
		return InviteResult{}, err
	}
	for _, existing := range collaborators {
		if existing.Email == email {
			return InviteResult{}, ErrDuplicateCollaborator
		}
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = displayNameFromEmail(email)
	}
	collaborator := Collaborator{
		ID:        uuid.NewString(),
		Email:     email,
		Name:      name,
		Role:      role,
		Status:    InviteStatusPending,
		InvitedAt: s.clock().UTC(),
	}
	collaborators = append(collaborators, collaborator)
	if err := aggregate.SetCollaborators(collaborators); err != nil {
		return InviteResult{}, err
	}

	if aggregate.ShareToken == "" {
		aggregate.ShareToken = uuid.NewString()
	}
	aggregate.ShareLinkEnabled = true

	if err := s.save(ctx, aggregate); err != nil {
		return InviteResult{}, err
	}
	return InviteResult{Collaborator: collaborator, ShareToken: aggregate.ShareToken}, nil
}

// UpdateRole changes a collaborator's role. Owner-gated.
func (s *Service) UpdateRole(ctx context.Context, chatID, callerEmail, collaboratorID string, role Role) (Collaborator, error) {
	if !ValidRole(role) {
		return Collaborator{}, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}

	aggregate, err := s.load(ctx, chatID)
	if err != nil {
		return Collaborator{}, err
	}
	if aggregate.OwnerEmail != callerEmail {
		return Collaborator{}, ErrForbidden
	}

	collaborators, err := aggregate.Collaborators()
	if err != nil {
		return Collaborator{}, err
	}
	for index := range collaborators {
		if collaborators[index].ID != collaboratorID {
			continue
		}
		collaborators[index].Role = role
		if err := aggregate.SetCollaborators(collaborators); err != nil {
			return Collaborator{}, err
		}
		if err := s.save(ctx, aggregate); err != nil {
			return Collaborator{}, err
		}
		return collaborators[index], nil
	}
	return Collaborator{}, fmt.Errorf("%w: collaborator %s", ErrNotFound, collaboratorID)
}

// RemoveCollaborator drops a collaborator from the aggregate. Owner-gated.
func (s *Service) RemoveCollaborator(ctx context.Context, chatID, callerEmail, collaboratorID string) error {
	aggregate, err := s.load(ctx, chatID)
	if err != nil {
		return err
	}
	if aggregate.OwnerEmail != callerEmail {
		return ErrForbidden
	}

	collaborators, err := aggregate.Collaborators()
	if err != nil {
		return err
	}
	remaining := make([]Collaborator, 0, len(collaborators))
	removed := false
	for _, collaborator := range collaborators {
		if collaborator.ID == collaboratorID {
			removed = true
			continue
		}
		remaining = append(remaining, collaborator)
	}
	if !removed {
		return fmt.Errorf("%w: collaborator %s", ErrNotFound, collaboratorID)
	}
	if err := aggregate.SetCollaborators(remaining); err != nil {
		return err
	}
	return s.save(ctx, aggregate)
}

// AcceptInvite flips the collaborator entry for the email to accepted.
func (s *Service) AcceptInvite(ctx context.Context, chatID, email string) (Collaborator, error) {
	aggregate, err := s.load(ctx, chatID)
	if err != nil {
		return Collaborator{}, err
	}
	collaborators, err := aggregate.Collaborators()
	if err != nil {
		return Collaborator{}, err
	}
	for index := range collaborators {
		if collaborators[index].Email != email {
			continue
		}
		collaborators[index].Status = InviteStatusAccepted
		if err := aggregate.SetCollaborators(collaborators); err != nil {
			return Collaborator{}, err
		}
		if err := s.save(ctx, aggregate); err != nil {
			return Collaborator{}, err
		}
		return collaborators[index], nil
	}
	return Collaborator{}, fmt.Errorf("%w: collaborator %s", ErrNotFound, email)
}

// GenerateShareLink mints a fresh share token, expiring after ttl when ttl is
// positive. The expiry is anchored to the service clock so it lines up with
// what ResolveShareToken later measures against. Owner-gated.
func (s *Service) GenerateShareLink(ctx context.Context, chatID, callerEmail string, ttl time.Duration) (ShareLinkView, error) {
	aggregate, err := s.loadOrCreate(ctx, chatID, callerEmail)
	if err != nil {
		return ShareLinkView{}, err
	}
	if aggregate.OwnerEmail != callerEmail {
		return ShareLinkView{}, ErrForbidden
	}

	aggregate.ShareToken = uuid.NewString()
	aggregate.ShareLinkEnabled = true
	aggregate.ShareExpiresAtS = 0
	if ttl > 0 {
		aggregate.ShareExpiresAtS = s.clock().UTC().Add(ttl).Unix()
	}

	if err := s.save(ctx, aggregate); err != nil {
		return ShareLinkView{}, err
	}
	return shareLinkViewOf(aggregate), nil
}

// DisableShareLink turns the share link off without discarding the token. Owner-gated.
func (s *Service) DisableShareLink(ctx context.Context, chatID, callerEmail string) error {
	aggregate, err := s.load(ctx, chatID)
	if err != nil {
		return err
	}
	if aggregate.OwnerEmail != callerEmail {
		return ErrForbidden
	}
	aggregate.ShareLinkEnabled = false
	return s.save(ctx, aggregate)
}

// SharedChat is the resolution of a share token.
type SharedChat struct {
	ChatID string `json:"chatId"`
	Owner  string `json:"owner"`
	Role   Role   `json:"role"`
}

// ResolveShareToken maps an enabled, non-expired share token to its chat.
// Unknown or disabled tokens are NotFound; expired tokens are their own error
// so the HTTP layer can distinguish 403 from 404.
func (s *Service) ResolveShareToken(ctx context.Context, token string) (SharedChat, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return SharedChat{}, fmt.Errorf("%w: share token", ErrNotFound)
	}

	var aggregate Collaboration
	err := s.db.WithContext(ctx).Where("share_token = ?", token).Take(&aggregate).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return SharedChat{}, fmt.Errorf("%w: share token", ErrNotFound)
	}
	if err != nil {
		return SharedChat{}, err
	}
	if !aggregate.ShareLinkEnabled {
		return SharedChat{}, fmt.Errorf("%w: share link disabled", ErrNotFound)
	}
	if aggregate.ShareExpiresAtS > 0 && s.clock().UTC().Unix() > aggregate.ShareExpiresAtS {
		return SharedChat{}, ErrShareLinkExpired
	}
	return SharedChat{ChatID: aggregate.ChatID, Owner: aggregate.OwnerEmail, Role: RoleViewer}, nil
}

// UpsertPresence merges the entry into the chat's roster, refreshing its
// last-active timestamp, and persists the evicted roster. Both the websocket
// gateway and the stateless HTTP handler funnel through here, which is what
// keeps the two write paths convergent; concurrent writers race last-write-wins.
func (s *Service) UpsertPresence(ctx context.Context, chatID string, entry PresenceEntry) ([]PresenceEntry, error) {
	if strings.TrimSpace(entry.Email) == "" {
		return nil, fmt.Errorf("%w: presence email required", ErrInvalidInput)
	}

	aggregate, err := s.loadOrCreate(ctx, chatID, entry.Email)
	if err != nil {
		return nil, err
	}
	roster, err := aggregate.ActiveUsers()
	if err != nil {
		return nil, err
	}

	roster = UpsertEntry(roster, entry, s.clock().UTC())
	if err := aggregate.SetActiveUsers(roster); err != nil {
		return nil, err
	}
	if err := s.save(ctx, aggregate); err != nil {
		return nil, err
	}
	return roster, nil
}

// RemovePresence drops the identity's roster entry, if any, and persists.
func (s *Service) RemovePresence(ctx context.Context, chatID, email string) error {
	aggregate, err := s.load(ctx, chatID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	roster, err := aggregate.ActiveUsers()
	if err != nil {
		return err
	}
	remaining := EvictStale(RemoveEntry(roster, email), s.clock().UTC(), PresenceTTL)
	if err := aggregate.SetActiveUsers(remaining); err != nil {
		return err
	}
	return s.save(ctx, aggregate)
}

// ActiveUsers returns the TTL-filtered roster for the chat. Unknown chats
// yield an empty roster, never an error. Eviction on read keeps the persisted
// roster self-cleaning; the pruned write-back is best-effort.
func (s *Service) ActiveUsers(ctx context.Context, chatID string) ([]PresenceEntry, error) {
	aggregate, err := s.load(ctx, chatID)
	if errors.Is(err, ErrNotFound) {
		return []PresenceEntry{}, nil
	}
	if err != nil {
		return nil, err
	}

	roster, err := aggregate.ActiveUsers()
	if err != nil {
		return nil, err
	}
	active := EvictStale(roster, s.clock().UTC(), PresenceTTL)
	if len(active) != len(roster) {
		if err := aggregate.SetActiveUsers(active); err == nil {
			if saveErr := s.save(ctx, aggregate); saveErr != nil {
				s.logger.Warn("presence prune write-back failed",
					zap.String("chat_id", chatID), zap.Error(saveErr))
			}
		}
	}
	return active, nil
}

func (s *Service) load(ctx context.Context, chatID string) (*Collaboration, error) {
	var aggregate Collaboration
	err := s.db.WithContext(ctx).Where("chat_id = ?", chatID).Take(&aggregate).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: chat %s", ErrNotFound, chatID)
	}
	if err != nil {
		return nil, err
	}
	return &aggregate, nil
}

func (s *Service) loadOrCreate(ctx context.Context, chatID, callerEmail string) (*Collaboration, error) {
	if strings.TrimSpace(chatID) == "" {
		return nil, fmt.Errorf("%w: chat id required", ErrInvalidInput)
	}

	aggregate, err := s.load(ctx, chatID)
	if err == nil {
		return aggregate, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	created := Collaboration{
		ChatID:            chatID,
		OwnerEmail:        callerEmail,
		CollaboratorsJSON: "[]",
		ActiveUsersJSON:   "[]",
		CreatedAt:         s.clock().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&created).Error; err != nil {
		return nil, err
	}
	s.logger.Info("collaboration created",
		zap.String("chat_id", chatID), zap.String("owner", callerEmail))
	return &created, nil
}

func (s *Service) save(ctx context.Context, aggregate *Collaboration) error {
	aggregate.UpdatedAt = s.clock().UTC()
	return s.db.WithContext(ctx).Save(aggregate).Error
}

func (s *Service) viewOf(aggregate *Collaboration) (View, error) {
	collaborators, err := aggregate.Collaborators()
	if err != nil {
		return View{}, err
	}
	if collaborators == nil {
		collaborators = []Collaborator{}
	}
	roster, err := aggregate.ActiveUsers()
	if err != nil {
		return View{}, err
	}
	return View{
		ChatID:        aggregate.ChatID,
		Owner:         aggregate.OwnerEmail,
		Collaborators: collaborators,
		ShareLink:     shareLinkViewOf(aggregate),
		ActiveUsers:   EvictStale(roster, s.clock().UTC(), PresenceTTL),
	}, nil
}

func shareLinkViewOf(aggregate *Collaboration) ShareLinkView {
	view := ShareLinkView{Token: aggregate.ShareToken, Enabled: aggregate.ShareLinkEnabled}
	if aggregate.ShareExpiresAtS > 0 {
		expiry := time.Unix(aggregate.ShareExpiresAtS, 0).UTC()
		view.ExpiresAt = &expiry
	}
	return view
}

func displayNameFromEmail(email string) string {
	local := email
	if at := strings.Index(email, "@"); at > 0 {
		local = email[:at]
	}
	if local == "" {
		return email
	}
	return strings.ToUpper(local[:1]) + local[1:]
}
