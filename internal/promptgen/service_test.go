package promptgen

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/promptweave-ai/promptweave/backend/internal/llm"
	"github.com/promptweave-ai/promptweave/backend/internal/templates"
	"gorm.io/gorm"
)

var generatorNow = time.Date(2026, time.April, 2, 9, 0, 0, 0, time.UTC)

const structuredReply = `Here is the refined prompt:
{"persona":"Expert Software Engineer","context":"Legacy Go service","instruction":"Review the handler for race conditions","format":"bullet-points","tone":"technical","focusAreas":["correctness","concurrency"],"restrictions":["no full rewrites"],"category":"coding","confidence":85,"improvements":["Added persona","Added focus areas"],"fullPrompt":"As an Expert Software Engineer, review the handler for race conditions."}`

type stubCompleter struct {
	reply  string
	err    error
	models []string
}

func (s *stubCompleter) Complete(_ context.Context, model string, _ []llm.ChatMessage) (string, error) {
	s.models = append(s.models, model)
	if s.err != nil {
		return "", s.err
	}
	return s.reply, nil
}

type recordingTemplateStore struct {
	owner   string
	created []templates.UpsertRequest
}

func (r *recordingTemplateStore) Create(_ context.Context, ownerEmail string, req templates.UpsertRequest) (templates.Template, error) {
	r.owner = ownerEmail
	r.created = append(r.created, req)
	return templates.Template{
		TemplateID: fmt.Sprintf("tpl-%d", len(r.created)),
		OwnerEmail: ownerEmail,
		Title:      req.Title,
		Category:   req.Category,
	}, nil
}

// newTestService uses a clock that advances one second per reading so rows
// order deterministically.
func newTestService(t *testing.T, completer Completer) (*Service, *recordingTemplateStore) {
	t.Helper()

	dsn := fmt.Sprintf("file:promptgen_test_%s_%d?mode=memory&cache=shared", t.Name(), time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Generation{}, &Session{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	current := generatorNow
	clock := func() time.Time {
		current = current.Add(time.Second)
		return current
	}

	store := &recordingTemplateStore{}
	service, err := NewService(ServiceConfig{
		Database:  db,
		Completer: completer,
		Templates: store,
		Clock:     clock,
	})
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}
	return service, store
}

func TestGenerateParsesStructuredReply(t *testing.T) {
	completer := &stubCompleter{reply: structuredReply}
	service, _ := newTestService(t, completer)

	view, err := service.Generate(context.Background(), "ada@x.com", GenerateRequest{
		OriginalInput: "review my handler for races",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if view.GeneratedPrompt != "As an Expert Software Engineer, review the handler for race conditions." {
		t.Fatalf("unexpected prompt %q", view.GeneratedPrompt)
	}
	if view.Category != "coding" || view.Confidence != 85 {
		t.Fatalf("unexpected category/confidence: %q %d", view.Category, view.Confidence)
	}
	if view.Components.Persona != "Expert Software Engineer" || len(view.Components.FocusAreas) != 2 {
		t.Fatalf("unexpected components %#v", view.Components)
	}
	if len(view.Improvements) != 2 {
		t.Fatalf("unexpected improvements %#v", view.Improvements)
	}
	if len(completer.models) != 1 || completer.models[0] != generatorModel {
		t.Fatalf("expected one call to the generator model, got %v", completer.models)
	}
}

func TestGenerateFallsBackOnUnparseableReply(t *testing.T) {
	service, _ := newTestService(t, &stubCompleter{reply: "sure, happy to help!"})

	view, err := service.Generate(context.Background(), "ada@x.com", GenerateRequest{
		OriginalInput: "help me write a launch email",
		PreferredTone: "casual",
	})
	if err != nil {
		t.Fatalf("a prose reply must degrade, not fail: %v", err)
	}
	if view.Confidence != fallbackConfidence {
		t.Fatalf("expected fallback confidence, got %d", view.Confidence)
	}
	if view.Category != "general" {
		t.Fatalf("expected general category fallback, got %q", view.Category)
	}
	if !strings.Contains(view.GeneratedPrompt, "help me write a launch email") {
		t.Fatalf("fallback prompt must carry the original input, got %q", view.GeneratedPrompt)
	}
	if !strings.Contains(view.GeneratedPrompt, "casual") {
		t.Fatalf("fallback prompt must honor the preferred tone, got %q", view.GeneratedPrompt)
	}
}

func TestGenerateValidation(t *testing.T) {
	service, _ := newTestService(t, &stubCompleter{reply: structuredReply})

	cases := []struct {
		name string
		req  GenerateRequest
	}{
		{name: "too short", req: GenerateRequest{OriginalInput: "hey"}},
		{name: "too long", req: GenerateRequest{OriginalInput: strings.Repeat("x", inputMaxLength+1)}},
		{name: "unknown category", req: GenerateRequest{OriginalInput: "valid input", Category: "sorcery"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := service.Generate(context.Background(), "ada@x.com", tc.req); !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected invalid input, got %v", err)
			}
		})
	}
}

func TestGeneratePropagatesCompletionFailure(t *testing.T) {
	service, _ := newTestService(t, &stubCompleter{err: fmt.Errorf("upstream down")})
	ctx := context.Background()

	if _, err := service.Generate(ctx, "ada@x.com", GenerateRequest{OriginalInput: "valid input"}); err == nil {
		t.Fatalf("expected the completion failure to surface")
	}

	page, err := service.History(ctx, "ada@x.com", HistoryQuery{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.Total != 0 {
		t.Fatalf("a failed generation must not persist, got %d rows", page.Total)
	}
}

func TestGenerateClampsConfidence(t *testing.T) {
	reply := `{"category":"coding","confidence":150,"fullPrompt":"do the thing"}`
	service, _ := newTestService(t, &stubCompleter{reply: reply})

	view, err := service.Generate(context.Background(), "ada@x.com", GenerateRequest{OriginalInput: "valid input"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if view.Confidence != 100 {
		t.Fatalf("expected confidence clamped to 100, got %d", view.Confidence)
	}
}

func TestRateGeneration(t *testing.T) {
	service, _ := newTestService(t, &stubCompleter{reply: structuredReply})
	ctx := context.Background()

	view, err := service.Generate(ctx, "ada@x.com", GenerateRequest{OriginalInput: "valid input"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rated, err := service.Rate(ctx, "ada@x.com", view.GenerationID, 4)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rated.UserRating != 4 {
		t.Fatalf("expected rating 4, got %d", rated.UserRating)
	}

	for _, rating := range []int{0, 6} {
		if _, err := service.Rate(ctx, "ada@x.com", view.GenerationID, rating); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("rating %d must be rejected, got %v", rating, err)
		}
	}
	if _, err := service.Rate(ctx, "ada@x.com", "no-such-id", 3); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := service.Rate(ctx, "ben@y.com", view.GenerationID, 3); !errors.Is(err, ErrNotFound) {
		t.Fatalf("another user's generation must be not found, got %v", err)
	}
}

func TestMarkUsed(t *testing.T) {
	service, _ := newTestService(t, &stubCompleter{reply: structuredReply})
	ctx := context.Background()

	view, err := service.Generate(ctx, "ada@x.com", GenerateRequest{OriginalInput: "valid input"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	used, err := service.MarkUsed(ctx, "ada@x.com", view.GenerationID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !used.WasUsed {
		t.Fatalf("expected the generation to be flagged as used")
	}
}

func TestSaveAsTemplateConvertsOnce(t *testing.T) {
	service, store := newTestService(t, &stubCompleter{reply: structuredReply})
	ctx := context.Background()

	view, err := service.Generate(ctx, "ada@x.com", GenerateRequest{OriginalInput: "valid input"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	template, updated, err := service.SaveAsTemplate(ctx, "ada@x.com", view.GenerationID, "Race Review", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if template.Title != "Race Review" {
		t.Fatalf("unexpected template title %q", template.Title)
	}
	if !updated.SavedAsTemplate || updated.TemplateID != template.TemplateID {
		t.Fatalf("generation must link to the minted template, got %#v", updated)
	}
	if store.owner != "ada@x.com" || len(store.created) != 1 {
		t.Fatalf("unexpected template store state %#v", store)
	}
	created := store.created[0]
	if created.Content != view.GeneratedPrompt || created.Category != "coding" {
		t.Fatalf("template must carry the generated prompt, got %#v", created)
	}
	if len(created.Tags) != 2 || created.Tags[0] != "ai-generated" {
		t.Fatalf("unexpected template tags %v", created.Tags)
	}

	if _, _, err := service.SaveAsTemplate(ctx, "ada@x.com", view.GenerationID, "Again", false); !errors.Is(err, ErrAlreadyTemplate) {
		t.Fatalf("a generation converts at most once, got %v", err)
	}
}

func TestHistoryFiltersAndPages(t *testing.T) {
	service, _ := newTestService(t, &stubCompleter{reply: structuredReply})
	ctx := context.Background()

	inputs := []string{"review the login handler", "review the billing handler", "draft release notes"}
	for _, input := range inputs {
		if _, err := service.Generate(ctx, "ada@x.com", GenerateRequest{OriginalInput: input}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if _, err := service.Generate(ctx, "ben@y.com", GenerateRequest{OriginalInput: "someone else's idea"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	page, err := service.History(ctx, "ada@x.com", HistoryQuery{Limit: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if page.Total != 3 || page.TotalPages != 2 || len(page.Generations) != 2 {
		t.Fatalf("unexpected first page: total=%d pages=%d len=%d", page.Total, page.TotalPages, len(page.Generations))
	}

	filtered, err := service.History(ctx, "ada@x.com", HistoryQuery{Category: "coding"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if filtered.Total != 3 {
		t.Fatalf("all structured replies are coding, got %d", filtered.Total)
	}

	searched, err := service.History(ctx, "ada@x.com", HistoryQuery{Search: "billing"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if searched.Total != 1 || searched.Generations[0].OriginalInput != "review the billing handler" {
		t.Fatalf("unexpected search result %#v", searched.Generations)
	}
}

func TestStatsSummarizesActivity(t *testing.T) {
	service, _ := newTestService(t, &stubCompleter{reply: structuredReply})
	ctx := context.Background()

	var ids []string
	for _, input := range []string{"first idea", "second idea", "third idea"} {
		view, err := service.Generate(ctx, "ada@x.com", GenerateRequest{OriginalInput: input})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		ids = append(ids, view.GenerationID)
	}
	if _, err := service.Rate(ctx, "ada@x.com", ids[0], 5); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := service.MarkUsed(ctx, "ada@x.com", ids[1]); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result, err := service.Stats(ctx, "ada@x.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stats := result.Stats
	if stats.TotalGenerations != 3 || stats.SuccessfulGenerations != 2 {
		t.Fatalf("unexpected totals %#v", stats)
	}
	if stats.AverageRating != 5 {
		t.Fatalf("average rating counts only rated rows, got %v", stats.AverageRating)
	}
	if stats.AverageConfidence != 85 {
		t.Fatalf("unexpected average confidence %v", stats.AverageConfidence)
	}
	if len(stats.CategoriesUsed) != 1 || stats.CategoriesUsed[0] != "coding" {
		t.Fatalf("unexpected categories %v", stats.CategoriesUsed)
	}
	if len(result.Recent) != 3 {
		t.Fatalf("expected all three in recent, got %d", len(result.Recent))
	}
	if result.Recent[0].OriginalInput != "third idea" {
		t.Fatalf("recent must be newest first, got %q", result.Recent[0].OriginalInput)
	}
}
