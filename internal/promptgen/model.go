package promptgen

import (
	"encoding/json"
	"fmt"
	"time"
)

// Components is the structured breakdown extracted from a refined prompt.
type Components struct {
	Persona      string   `json:"persona"`
	Context      string   `json:"context"`
	Instruction  string   `json:"instruction"`
	Format       string   `json:"format"`
	Tone         string   `json:"tone"`
	FocusAreas   []string `json:"focusAreas"`
	Restrictions []string `json:"restrictions"`
}

// Generation is one refinement of a messy user idea into a structured prompt.
// The improvement list and extracted components are embedded as JSON text
// columns.
type Generation struct {
	GenerationID     string    `gorm:"column:generation_id;primaryKey;size:190;not null" json:"generationId"`
	UserEmail        string    `gorm:"column:user_email;size:320;not null;index:idx_generations_user_created,priority:1" json:"userEmail"`
	OriginalInput    string    `gorm:"column:original_input;type:text;not null" json:"originalInput"`
	GeneratedPrompt  string    `gorm:"column:generated_prompt;type:text;not null" json:"generatedPrompt"`
	Category         string    `gorm:"column:category;size:64;not null;default:'general'" json:"category"`
	ImprovementsJSON string    `gorm:"column:improvements_json;type:text;not null;default:'[]'" json:"-"`
	ComponentsJSON   string    `gorm:"column:components_json;type:text;not null;default:'{}'" json:"-"`
	Confidence       int       `gorm:"column:confidence;not null;default:0" json:"confidence"`
	UserRating       int       `gorm:"column:user_rating;not null;default:0" json:"userRating,omitempty"`
	WasUsed          bool      `gorm:"column:was_used;not null;default:false" json:"wasUsed"`
	SavedAsTemplate  bool      `gorm:"column:saved_as_template;not null;default:false" json:"savedAsTemplate"`
	TemplateID       string    `gorm:"column:template_id;size:190;not null;default:''" json:"templateId,omitempty"`
	CreatedAt        time.Time `gorm:"column:created_at;autoCreateTime;index:idx_generations_user_created,priority:2" json:"createdAt"`
	UpdatedAt        time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

// TableName provides the explicit table binding for GORM.
func (Generation) TableName() string {
	return "prompt_generations"
}

// Improvements decodes the embedded improvement list.
func (g *Generation) Improvements() ([]string, error) {
	if g.ImprovementsJSON == "" {
		return nil, nil
	}
	var improvements []string
	if err := json.Unmarshal([]byte(g.ImprovementsJSON), &improvements); err != nil {
		return nil, fmt.Errorf("promptgen: decode improvements: %w", err)
	}
	return improvements, nil
}

// SetImprovements encodes the improvement list back onto the row.
func (g *Generation) SetImprovements(improvements []string) error {
	if improvements == nil {
		improvements = []string{}
	}
	encoded, err := json.Marshal(improvements)
	if err != nil {
		return fmt.Errorf("promptgen: encode improvements: %w", err)
	}
	g.ImprovementsJSON = string(encoded)
	return nil
}

// Components decodes the embedded structured breakdown.
func (g *Generation) Components() (Components, error) {
	if g.ComponentsJSON == "" {
		return Components{}, nil
	}
	var components Components
	if err := json.Unmarshal([]byte(g.ComponentsJSON), &components); err != nil {
		return Components{}, fmt.Errorf("promptgen: decode components: %w", err)
	}
	return components, nil
}

// SetComponents encodes the breakdown back onto the row.
func (g *Generation) SetComponents(components Components) error {
	encoded, err := json.Marshal(components)
	if err != nil {
		return fmt.Errorf("promptgen: encode components: %w", err)
	}
	g.ComponentsJSON = string(encoded)
	return nil
}

// View is the external shape of a generation with the embedded lists decoded.
type View struct {
	GenerationID    string     `json:"generationId"`
	OriginalInput   string     `json:"originalInput"`
	GeneratedPrompt string     `json:"generatedPrompt"`
	Category        string     `json:"category"`
	Confidence      int        `json:"confidence"`
	Improvements    []string   `json:"improvements"`
	Components      Components `json:"components"`
	UserRating      int        `json:"userRating,omitempty"`
	WasUsed         bool       `json:"wasUsed"`
	SavedAsTemplate bool       `json:"savedAsTemplate"`
	TemplateID      string     `json:"templateId,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

// ViewOf converts the row into its external shape.
func ViewOf(g Generation) (View, error) {
	improvements, err := g.Improvements()
	if err != nil {
		return View{}, err
	}
	if improvements == nil {
		improvements = []string{}
	}
	components, err := g.Components()
	if err != nil {
		return View{}, err
	}
	return View{
		GenerationID:    g.GenerationID,
		OriginalInput:   g.OriginalInput,
		GeneratedPrompt: g.GeneratedPrompt,
		Category:        g.Category,
		Confidence:      g.Confidence,
		Improvements:    improvements,
		Components:      components,
		UserRating:      g.UserRating,
		WasUsed:         g.WasUsed,
		SavedAsTemplate: g.SavedAsTemplate,
		TemplateID:      g.TemplateID,
		CreatedAt:       g.CreatedAt,
	}, nil
}

func (g *Generation) successful() bool {
	return g.UserRating >= 4 || g.WasUsed || g.SavedAsTemplate
}
