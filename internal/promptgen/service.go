package promptgen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/promptweave-ai/promptweave/backend/internal/llm"
	"github.com/promptweave-ai/promptweave/backend/internal/templates"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrNotFound indicates the generation or session does not exist or belongs to another user.
	ErrNotFound = errors.New("promptgen: not found")
	// ErrInvalidInput indicates a missing or malformed request field.
	ErrInvalidInput = errors.New("promptgen: invalid input")
	// ErrAlreadyTemplate indicates the generation was already saved as a template.
	ErrAlreadyTemplate = errors.New("promptgen: already saved as template")

	errMissingDatabase = errors.New("promptgen: database handle required")
)

const (
	// generatorModel handles the structured refinement; routing quality matters
	// less here than reliable JSON output.
	generatorModel = "anthropic/claude-3.5-sonnet"

	inputMinLength = 5
	inputMaxLength = 2000

	fallbackConfidence = 60
)

var knownCategories = map[string]bool{
	"coding": true, "writing": true, "analysis": true, "creative": true,
	"business": true, "research": true, "education": true, "general": true,
}

const refinementSystemPrompt = `You are an expert prompt engineer. Convert messy, incomplete user ideas into well-structured, comprehensive prompts that get better AI responses.

Analyze the input and produce: a persona for the AI, background context, a clear instruction starting with an action verb, an output format, a tone, focus areas the AI should think deeply about, and restrictions to avoid common issues. Make the prompt specific and actionable, and add missing context where it would improve the response.

Respond with exactly this JSON shape:
{
  "persona": "role for AI",
  "context": "background information",
  "instruction": "clear task with action verb",
  "format": "output format",
  "tone": "communication style",
  "focusAreas": ["area1", "area2"],
  "restrictions": ["restriction1"],
  "category": "detected category",
  "confidence": 85,
  "improvements": ["what was added or improved"],
  "fullPrompt": "complete formatted prompt ready to use"
}`

// Completer produces model replies; satisfied by the llm client.
type Completer interface {
	Complete(ctx context.Context, model string, messages []llm.ChatMessage) (string, error)
}

// TemplateStore persists templates minted from generations; satisfied by the
// template service.
type TemplateStore interface {
	Create(ctx context.Context, ownerEmail string, req templates.UpsertRequest) (templates.Template, error)
}

// ServiceConfig describes the dependencies for the prompt generator.
type ServiceConfig struct {
	Database  *gorm.DB
	Completer Completer
	Templates TemplateStore
	Clock     func() time.Time
	Logger    *zap.Logger
}

// Service refines rough prompt ideas through the LLM, keeps the per-user
// generation history, and manages the refinement scratchpad sessions.
type Service struct {
	db        *gorm.DB
	completer Completer
	templates TemplateStore
	clock     func() time.Time
	logger    *zap.Logger
}

// NewService constructs the prompt generator service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	if cfg.Completer == nil {
		return nil, fmt.Errorf("promptgen: completer required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:        cfg.Database,
		completer: cfg.Completer,
		templates: cfg.Templates,
		clock:     clock,
		logger:    logger,
	}, nil
}

// GenerateRequest carries the rough idea plus optional steering preferences.
type GenerateRequest struct {
	OriginalInput   string
	Category        string
	PreferredFormat string
	PreferredTone   string
}

// generatedOutput is the JSON contract the refinement model is asked to honor.
type generatedOutput struct {
	Persona      string   `json:"persona"`
	Context      string   `json:"context"`
	Instruction  string   `json:"instruction"`
	Format       string   `json:"format"`
	Tone         string   `json:"tone"`
	FocusAreas   []string `json:"focusAreas"`
	Restrictions []string `json:"restrictions"`
	Category     string   `json:"category"`
	Confidence   int      `json:"confidence"`
	Improvements []string `json:"improvements"`
	FullPrompt   string   `json:"fullPrompt"`
}

// Generate refines the input through the LLM and persists the result. A reply
// that cannot be parsed degrades to a basic structured prompt rather than
// failing; only a completion failure surfaces as an error.
func (s *Service) Generate(ctx context.Context, userEmail string, req GenerateRequest) (View, error) {
	input := strings.TrimSpace(req.OriginalInput)
	if len(input) < inputMinLength || len(input) > inputMaxLength {
		return View{}, fmt.Errorf("%w: original input must be between %d and %d characters",
			ErrInvalidInput, inputMinLength, inputMaxLength)
	}
	if req.Category != "" && !knownCategories[req.Category] {
		return View{}, fmt.Errorf("%w: unknown category %q", ErrInvalidInput, req.Category)
	}

	reply, err := s.completer.Complete(ctx, generatorModel, []llm.ChatMessage{
		{Role: "system", Content: refinementSystemPrompt},
		{Role: "user", Content: refinementUserMessage(input, req)},
	})
	if err != nil {
		return View{}, fmt.Errorf("promptgen: refinement failed: %w", err)
	}

	output, parseErr := parseGeneratedOutput(reply)
	if parseErr != nil {
		s.logger.Warn("unparseable refinement reply, using fallback", zap.Error(parseErr))
		output = fallbackOutput(input, req)
	}

	category := output.Category
	if !knownCategories[category] {
		category = req.Category
	}
	if category == "" {
		category = "general"
	}

	generation := Generation{
		GenerationID:    uuid.NewString(),
		UserEmail:       userEmail,
		OriginalInput:   input,
		GeneratedPrompt: output.FullPrompt,
		Category:        category,
		Confidence:      clampConfidence(output.Confidence),
		CreatedAt:       s.clock().UTC(),
	}
	if err := generation.SetImprovements(output.Improvements); err != nil {
		return View{}, err
	}
	if err := generation.SetComponents(Components{
		Persona:      output.Persona,
		Context:      output.Context,
		Instruction:  output.Instruction,
		Format:       output.Format,
		Tone:         output.Tone,
		FocusAreas:   output.FocusAreas,
		Restrictions: output.Restrictions,
	}); err != nil {
		return View{}, err
	}

	if err := s.db.WithContext(ctx).Create(&generation).Error; err != nil {
		return View{}, err
	}
	return ViewOf(generation)
}

// HistoryQuery filters and pages the generation history.
type HistoryQuery struct {
	Page     int
	Limit    int
	Category string
	Search   string
}

// HistoryPage is one page of a user's generations, newest first.
type HistoryPage struct {
	Generations []View
	CurrentPage int
	TotalPages  int
	Total       int64
}

// History lists the user's generations with optional category and text filters.
func (s *Service) History(ctx context.Context, userEmail string, query HistoryQuery) (HistoryPage, error) {
	page := query.Page
	if page < 1 {
		page = 1
	}
	limit := query.Limit
	if limit < 1 || limit > 100 {
		limit = 20
	}

	scope := s.db.WithContext(ctx).Model(&Generation{}).Where("user_email = ?", userEmail)
	if query.Category != "" && query.Category != "all" {
		scope = scope.Where("category = ?", query.Category)
	}
	if search := strings.TrimSpace(query.Search); search != "" {
		pattern := "%" + search + "%"
		scope = scope.Where("original_input LIKE ? OR generated_prompt LIKE ?", pattern, pattern)
	}

	var total int64
	if err := scope.Count(&total).Error; err != nil {
		return HistoryPage{}, err
	}

	var rows []Generation
	if err := scope.
		Order("created_at DESC").
		Limit(limit).
		Offset((page - 1) * limit).
		Find(&rows).Error; err != nil {
		return HistoryPage{}, err
	}

	views, err := viewsOf(rows)
	if err != nil {
		return HistoryPage{}, err
	}
	totalPages := int((total + int64(limit) - 1) / int64(limit))
	return HistoryPage{Generations: views, CurrentPage: page, TotalPages: totalPages, Total: total}, nil
}

// Rate records the user's 1-5 star feedback on a generation.
func (s *Service) Rate(ctx context.Context, userEmail, generationID string, rating int) (View, error) {
	if rating < 1 || rating > 5 {
		return View{}, fmt.Errorf("%w: rating must be between 1 and 5", ErrInvalidInput)
	}
	generation, err := s.getOwned(ctx, userEmail, generationID)
	if err != nil {
		return View{}, err
	}
	generation.UserRating = rating
	generation.UpdatedAt = s.clock().UTC()
	if err := s.db.WithContext(ctx).Save(generation).Error; err != nil {
		return View{}, err
	}
	return ViewOf(*generation)
}

// MarkUsed flags the generation as actually used by its owner.
func (s *Service) MarkUsed(ctx context.Context, userEmail, generationID string) (View, error) {
	generation, err := s.getOwned(ctx, userEmail, generationID)
	if err != nil {
		return View{}, err
	}
	generation.WasUsed = true
	generation.UpdatedAt = s.clock().UTC()
	if err := s.db.WithContext(ctx).Save(generation).Error; err != nil {
		return View{}, err
	}
	return ViewOf(*generation)
}

// SaveAsTemplate mints a template from the generation and links the two.
// A generation converts at most once.
func (s *Service) SaveAsTemplate(ctx context.Context, userEmail, generationID, templateName string, isPublic bool) (templates.Template, View, error) {
	if s.templates == nil {
		return templates.Template{}, View{}, fmt.Errorf("promptgen: template store not configured")
	}
	generation, err := s.getOwned(ctx, userEmail, generationID)
	if err != nil {
		return templates.Template{}, View{}, err
	}
	if generation.SavedAsTemplate {
		return templates.Template{}, View{}, ErrAlreadyTemplate
	}

	title := strings.TrimSpace(templateName)
	if title == "" {
		title = "Generated Template " + s.clock().UTC().Format("2006-01-02 15:04")
	}
	template, err := s.templates.Create(ctx, userEmail, templates.UpsertRequest{
		Title:    title,
		Content:  generation.GeneratedPrompt,
		Category: generation.Category,
		Tags:     []string{"ai-generated", generation.Category},
		Public:   isPublic,
	})
	if err != nil {
		return templates.Template{}, View{}, err
	}

	generation.SavedAsTemplate = true
	generation.TemplateID = template.TemplateID
	generation.UpdatedAt = s.clock().UTC()
	if err := s.db.WithContext(ctx).Save(generation).Error; err != nil {
		return templates.Template{}, View{}, err
	}
	view, err := ViewOf(*generation)
	if err != nil {
		return templates.Template{}, View{}, err
	}
	return template, view, nil
}

// Stats summarizes a user's generation activity. A generation counts as
// successful once it is rated 4+, used, or saved as a template.
type Stats struct {
	TotalGenerations      int64    `json:"totalGenerations"`
	SuccessfulGenerations int64    `json:"successfulGenerations"`
	AverageConfidence     float64  `json:"avgConfidence"`
	AverageRating         float64  `json:"avgRating"`
	CategoriesUsed        []string `json:"categoriesUsed"`
}

// StatsResult pairs the aggregate numbers with the newest generations.
type StatsResult struct {
	Stats  Stats
	Recent []View
}

// Stats computes the user's aggregate numbers and the five newest generations.
func (s *Service) Stats(ctx context.Context, userEmail string) (StatsResult, error) {
	var rows []Generation
	if err := s.db.WithContext(ctx).
		Where("user_email = ?", userEmail).
		Order("created_at DESC").
		Find(&rows).Error; err != nil {
		return StatsResult{}, err
	}

	stats := Stats{CategoriesUsed: []string{}}
	seen := map[string]bool{}
	var confidenceSum, ratingSum, rated int64
	for index := range rows {
		row := &rows[index]
		stats.TotalGenerations++
		if row.successful() {
			stats.SuccessfulGenerations++
		}
		confidenceSum += int64(row.Confidence)
		if row.UserRating > 0 {
			ratingSum += int64(row.UserRating)
			rated++
		}
		if !seen[row.Category] {
			seen[row.Category] = true
			stats.CategoriesUsed = append(stats.CategoriesUsed, row.Category)
		}
	}
	if stats.TotalGenerations > 0 {
		stats.AverageConfidence = float64(confidenceSum) / float64(stats.TotalGenerations)
	}
	if rated > 0 {
		stats.AverageRating = float64(ratingSum) / float64(rated)
	}
	sort.Strings(stats.CategoriesUsed)

	recentRows := rows
	if len(recentRows) > 5 {
		recentRows = recentRows[:5]
	}
	recent, err := viewsOf(recentRows)
	if err != nil {
		return StatsResult{}, err
	}
	return StatsResult{Stats: stats, Recent: recent}, nil
}

func (s *Service) getOwned(ctx context.Context, userEmail, generationID string) (*Generation, error) {
	var generation Generation
	err := s.db.WithContext(ctx).
		Where("generation_id = ? AND user_email = ?", generationID, userEmail).
		Take(&generation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: generation %s", ErrNotFound, generationID)
	}
	if err != nil {
		return nil, err
	}
	return &generation, nil
}

func viewsOf(rows []Generation) ([]View, error) {
	views := make([]View, 0, len(rows))
	for _, row := range rows {
		view, err := ViewOf(row)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}

func refinementUserMessage(input string, req GenerateRequest) string {
	var builder strings.Builder
	fmt.Fprintf(&builder, "Original input: %q\n", input)
	if req.Category != "" {
		fmt.Fprintf(&builder, "Preferred category: %s\n", req.Category)
	}
	if req.PreferredFormat != "" {
		fmt.Fprintf(&builder, "Preferred format: %s\n", req.PreferredFormat)
	}
	if req.PreferredTone != "" {
		fmt.Fprintf(&builder, "Preferred tone: %s\n", req.PreferredTone)
	}
	builder.WriteString("\nPlease analyze this and create a comprehensive, structured prompt.")
	return builder.String()
}

// parseGeneratedOutput pulls the JSON object out of the reply; models tend to
// wrap it in prose or code fences.
func parseGeneratedOutput(reply string) (generatedOutput, error) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end <= start {
		return generatedOutput{}, fmt.Errorf("promptgen: no JSON object in reply")
	}
	var output generatedOutput
	if err := json.Unmarshal([]byte(reply[start:end+1]), &output); err != nil {
		return generatedOutput{}, fmt.Errorf("promptgen: decode reply: %w", err)
	}
	if output.FullPrompt == "" {
		return generatedOutput{}, fmt.Errorf("promptgen: reply missing fullPrompt")
	}
	return output, nil
}

func fallbackOutput(input string, req GenerateRequest) generatedOutput {
	format := req.PreferredFormat
	if format == "" {
		format = "paragraph"
	}
	tone := req.PreferredTone
	if tone == "" {
		tone = "professional"
	}
	return generatedOutput{
		Persona:      "AI Assistant",
		Context:      "General assistance request",
		Instruction:  "Help with: " + input,
		Format:       format,
		Tone:         tone,
		FocusAreas:   []string{"Accuracy", "Clarity", "Helpfulness"},
		Restrictions: []string{"Provide factual information only"},
		Category:     req.Category,
		Confidence:   fallbackConfidence,
		Improvements: []string{"Added basic structure", "Clarified intent"},
		FullPrompt: fmt.Sprintf("Please help with the following request: %s\n\nProvide a %s response in a %s tone.",
			input, format, tone),
	}
}

func clampConfidence(confidence int) int {
	if confidence < 0 {
		return 0
	}
	if confidence > 100 {
		return 100
	}
	return confidence
}
