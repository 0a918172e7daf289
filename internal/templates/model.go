package templates

import (
	"encoding/json"
	"fmt"
	"time"
)

// Template is a reusable prompt owned by a user.
type Template struct {
	TemplateID string    `gorm:"column:template_id;primaryKey;size:190;not null"`
	OwnerEmail string    `gorm:"column:owner_email;size:320;not null;index"`
	Title      string    `gorm:"column:title;size:190;not null"`
	Content    string    `gorm:"column:content;type:text;not null"`
	Category   string    `gorm:"column:category;size:64;not null;default:''"`
	TagsJSON   string    `gorm:"column:tags_json;type:text;not null;default:'[]'"`
	Public     bool      `gorm:"column:is_public;not null;default:false"`
	UsageCount int64     `gorm:"column:usage_count;not null;default:0"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Template) TableName() string {
	return "prompt_templates"
}

// Tags decodes the embedded tag list.
func (t *Template) Tags() ([]string, error) {
	if t.TagsJSON == "" {
		return nil, nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(t.TagsJSON), &tags); err != nil {
		return nil, fmt.Errorf("templates: decode tags: %w", err)
	}
	return tags, nil
}

// View is the external shape of a template with the tag list decoded.
type View struct {
	TemplateID string    `json:"templateId"`
	OwnerEmail string    `json:"ownerEmail"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	Category   string    `json:"category"`
	Tags       []string  `json:"tags"`
	Public     bool      `json:"isPublic"`
	UsageCount int64     `json:"usageCount"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// ViewOf converts the row into its external shape.
func ViewOf(t Template) (View, error) {
	tags, err := t.Tags()
	if err != nil {
		return View{}, err
	}
	if tags == nil {
		tags = []string{}
	}
	return View{
		TemplateID: t.TemplateID,
		OwnerEmail: t.OwnerEmail,
		Title:      t.Title,
		Content:    t.Content,
		Category:   t.Category,
		Tags:       tags,
		Public:     t.Public,
		UsageCount: t.UsageCount,
		CreatedAt:  t.CreatedAt,
		UpdatedAt:  t.UpdatedAt,
	}, nil
}

// SetTags encodes the tag list back onto the row.
func (t *Template) SetTags(tags []string) error {
	if tags == nil {
		tags = []string{}
	}
	encoded, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("templates: encode tags: %w", err)
	}
	t.TagsJSON = string(encoded)
	return nil
}
