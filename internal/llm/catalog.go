package llm

import "strings"

// ModelInfo describes one routable model.
type ModelInfo struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Strengths []string `json:"strengths"`
	Cost      string   `json:"cost"`
}

// DefaultModel is the safe fallback when routing cannot decide.
const DefaultModel = "meta-llama/llama-3-8b-instruct:free"

// Catalog lists the models the router can pick from. The keyword table below
// is deliberately simple and swappable; routing quality is not a correctness
// concern here.
var Catalog = []ModelInfo{
	{ID: "openai/gpt-4o", Name: "GPT-4o", Strengths: []string{"reasoning", "analysis", "multimodal"}, Cost: "high"},
	{ID: "anthropic/claude-3.5-sonnet", Name: "Claude 3.5 Sonnet", Strengths: []string{"reasoning", "writing", "coding"}, Cost: "medium"},
	{ID: "google/gemini-pro-1.5", Name: "Gemini Pro 1.5", Strengths: []string{"multimodal", "creative"}, Cost: "medium"},
	{ID: "meta-llama/llama-3-70b-instruct", Name: "Llama 3 70B", Strengths: []string{"reasoning", "general"}, Cost: "medium"},
	{ID: "openai/gpt-3.5-turbo", Name: "GPT-3.5 Turbo", Strengths: []string{"general", "fast"}, Cost: "low"},
	{ID: DefaultModel, Name: "Llama 3 8B (Free)", Strengths: []string{"general", "free"}, Cost: "free"},
}

type messageKind string

const (
	kindCoding   messageKind = "coding"
	kindSearch   messageKind = "search"
	kindCreative messageKind = "creative-writing"
	kindAnalysis messageKind = "analysis"
	kindQuick    messageKind = "quick-question"
	kindGeneral  messageKind = "general"
)

var keywordTable = map[messageKind][]string{
	kindCoding:   {"code", "function", "debug", "programming", "javascript", "python", "api"},
	kindSearch:   {"latest", "news", "current", "today", "recent", "search"},
	kindCreative: {"write", "story", "creative", "poem", "essay"},
	kindAnalysis: {"analyze", "compare", "explain", "detailed", "research"},
}

var modelByKind = map[messageKind]string{
	kindCoding:   "anthropic/claude-3.5-sonnet",
	kindSearch:   "meta-llama/llama-3-70b-instruct",
	kindCreative: "google/gemini-pro-1.5",
	kindAnalysis: "openai/gpt-4o",
	kindQuick:    DefaultModel,
	kindGeneral:  DefaultModel,
}

// SelectModel picks a model id for the message via keyword heuristics.
func SelectModel(message string) string {
	model, ok := modelByKind[classify(message)]
	if !ok {
		return DefaultModel
	}
	return model
}

// KnownModel reports whether the id is in the catalog.
func KnownModel(id string) bool {
	for _, info := range Catalog {
		if info.ID == id {
			return true
		}
	}
	return false
}

func classify(message string) messageKind {
	lower := strings.ToLower(message)
	for _, kind := range []messageKind{kindCoding, kindSearch, kindCreative, kindAnalysis} {
		for _, keyword := range keywordTable[kind] {
			if strings.Contains(lower, keyword) {
				return kind
			}
		}
	}
	if len(message) < 50 {
		return kindQuick
	}
	return kindGeneral
}
