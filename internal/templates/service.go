package templates

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	// ErrNotFound indicates the template does not exist or is not visible to the caller.
	ErrNotFound = errors.New("templates: not found")
	// ErrInvalidInput indicates a missing or malformed request field.
	ErrInvalidInput = errors.New("templates: invalid input")
)

// ServiceConfig describes the dependencies for the template service.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
}

// Service manages prompt templates.
type Service struct {
	db    *gorm.DB
	clock func() time.Time
}

// NewService constructs the template service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("templates: database handle required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{db: cfg.Database, clock: clock}, nil
}

// UpsertRequest carries template fields for create and update.
type UpsertRequest struct {
	Title    string
	Content  string
	Category string
	Tags     []string
	Public   bool
}

// Create stores a new template for the owner.
func (s *Service) Create(ctx context.Context, ownerEmail string, req UpsertRequest) (Template, error) {
	if err := validate(req); err != nil {
		return Template{}, err
	}

	template := Template{
		TemplateID: uuid.NewString(),
		OwnerEmail: ownerEmail,
		Title:      strings.TrimSpace(req.Title),
		Content:    req.Content,
		Category:   strings.TrimSpace(req.Category),
		Public:     req.Public,
		CreatedAt:  s.clock().UTC(),
	}
	if err := template.SetTags(req.Tags); err != nil {
		return Template{}, err
	}
	if err := s.db.WithContext(ctx).Create(&template).Error; err != nil {
		return Template{}, err
	}
	return template, nil
}

// Update rewrites an owned template in place.
func (s *Service) Update(ctx context.Context, ownerEmail, templateID string, req UpsertRequest) (Template, error) {
	if err := validate(req); err != nil {
		return Template{}, err
	}

	template, err := s.getOwned(ctx, ownerEmail, templateID)
	if err != nil {
		return Template{}, err
	}
	template.Title = strings.TrimSpace(req.Title)
	template.Content = req.Content
	template.Category = strings.TrimSpace(req.Category)
	template.Public = req.Public
	if err := template.SetTags(req.Tags); err != nil {
		return Template{}, err
	}
	template.UpdatedAt = s.clock().UTC()

	if err := s.db.WithContext(ctx).Save(template).Error; err != nil {
		return Template{}, err
	}
	return *template, nil
}

// Delete removes an owned template.
func (s *Service) Delete(ctx context.Context, ownerEmail, templateID string) error {
	result := s.db.WithContext(ctx).
		Where("template_id = ? AND owner_email = ?", templateID, ownerEmail).
		Delete(&Template{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: template %s", ErrNotFound, templateID)
	}
	return nil
}

// List returns the caller's templates plus public ones, newest first.
func (s *Service) List(ctx context.Context, callerEmail string) ([]Template, error) {
	var list []Template
	err := s.db.WithContext(ctx).
		Where("owner_email = ? OR is_public = ?", callerEmail, true).
		Order("created_at DESC").
		Find(&list).Error
	if err != nil {
		return nil, err
	}
	return list, nil
}

// Get returns one template visible to the caller.
func (s *Service) Get(ctx context.Context, callerEmail, templateID string) (Template, error) {
	var template Template
	err := s.db.WithContext(ctx).
		Where("template_id = ? AND (owner_email = ? OR is_public = ?)", templateID, callerEmail, true).
		Take(&template).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Template{}, fmt.Errorf("%w: template %s", ErrNotFound, templateID)
	}
	if err != nil {
		return Template{}, err
	}
	return template, nil
}

// TopByCategory returns the most-used templates visible to the caller in a
// category. Feeds the similar-template suggestions on prompt generation.
func (s *Service) TopByCategory(ctx context.Context, callerEmail, category string, limit int) ([]Template, error) {
	if limit < 1 {
		limit = 3
	}
	var list []Template
	err := s.db.WithContext(ctx).
		Where("(owner_email = ? OR is_public = ?) AND category = ?", callerEmail, true, category).
		Order("usage_count DESC").
		Limit(limit).
		Find(&list).Error
	if err != nil {
		return nil, err
	}
	return list, nil
}

// Use increments the usage counter and returns the template content.
func (s *Service) Use(ctx context.Context, callerEmail, templateID string) (Template, error) {
	template, err := s.Get(ctx, callerEmail, templateID)
	if err != nil {
		return Template{}, err
	}
	if err := s.db.WithContext(ctx).Model(&Template{}).
		Where("template_id = ?", templateID).
		Update("usage_count", gorm.Expr("usage_count + 1")).Error; err != nil {
		return Template{}, err
	}
	template.UsageCount++
	return template, nil
}

func (s *Service) getOwned(ctx context.Context, ownerEmail, templateID string) (*Template, error) {
	var template Template
	err := s.db.WithContext(ctx).
		Where("template_id = ? AND owner_email = ?", templateID, ownerEmail).
		Take(&template).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: template %s", ErrNotFound, templateID)
	}
	if err != nil {
		return nil, err
	}
	return &template, nil
}

func validate(req UpsertRequest) error {
	if strings.TrimSpace(req.Title) == "" {
		return fmt.Errorf("%w: title required", ErrInvalidInput)
	}
	if strings.TrimSpace(req.Content) == "" {
		return fmt.Errorf("%w: content required", ErrInvalidInput)
	}
	return nil
}
