package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/promptweave-ai/promptweave/backend/internal/promptgen"
	"github.com/promptweave-ai/promptweave/backend/internal/templates"
)

type generatePromptPayload struct {
	OriginalInput   string `json:"originalInput"`
	Category        string `json:"category"`
	PreferredFormat string `json:"preferredFormat"`
	PreferredTone   string `json:"preferredTone"`
}

func (h *httpHandler) handleGeneratePrompt(c *gin.Context) {
	identity, _ := h.callerIdentity(c)
	var request generatePromptPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	generation, err := h.promptGen.Generate(c.Request.Context(), identity.Email, promptgen.GenerateRequest{
		OriginalInput:   request.OriginalInput,
		Category:        request.Category,
		PreferredFormat: request.PreferredFormat,
		PreferredTone:   request.PreferredTone,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"generation": generation,
		"suggestions": gin.H{
			"canSaveAsTemplate": true,
			"similarTemplates":  h.similarTemplates(c, identity.Email, generation.Category),
		},
	})
}

// similarTemplates is decoration on the generate response; lookup failures
// degrade to an empty list.
func (h *httpHandler) similarTemplates(c *gin.Context, callerEmail, category string) []templates.View {
	views := []templates.View{}
	if h.templates == nil {
		return views
	}
	list, err := h.templates.TopByCategory(c.Request.Context(), callerEmail, category, 3)
	if err != nil {
		return views
	}
	for _, template := range list {
		view, err := templates.ViewOf(template)
		if err != nil {
			continue
		}
		views = append(views, view)
	}
	return views
}

func (h *httpHandler) handleGenerationHistory(c *gin.Context) {
	identity, _ := h.callerIdentity(c)
	result, err := h.promptGen.History(c.Request.Context(), identity.Email, promptgen.HistoryQuery{
		Page:     intQuery(c, "page", 1),
		Limit:    intQuery(c, "limit", 20),
		Category: c.Query("category"),
		Search:   c.Query("search"),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"generations": result.Generations,
		"pagination": gin.H{
			"currentPage":      result.CurrentPage,
			"totalPages":       result.TotalPages,
			"totalGenerations": result.Total,
		},
	})
}

func (h *httpHandler) handleGenerationStats(c *gin.Context) {
	identity, _ := h.callerIdentity(c)
	result, err := h.promptGen.Stats(c.Request.Context(), identity.Email)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"stats":             result.Stats,
		"recentGenerations": result.Recent,
	})
}

type ratingPayload struct {
	Rating int `json:"rating"`
}

func (h *httpHandler) handleRateGeneration(c *gin.Context) {
	identity, _ := h.callerIdentity(c)
	var request ratingPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	generation, err := h.promptGen.Rate(c.Request.Context(), identity.Email, c.Param("generationId"), request.Rating)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"generation": generation})
}

func (h *httpHandler) handleMarkGenerationUsed(c *gin.Context) {
	identity, _ := h.callerIdentity(c)
	generation, err := h.promptGen.MarkUsed(c.Request.Context(), identity.Email, c.Param("generationId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"generation": generation})
}

type saveTemplatePayload struct {
	TemplateName string `json:"templateName"`
	Public       bool   `json:"isPublic"`
}

func (h *httpHandler) handleSaveGenerationAsTemplate(c *gin.Context) {
	identity, _ := h.callerIdentity(c)
	var request saveTemplatePayload
	if err := c.ShouldBindJSON(&request); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	template, generation, err := h.promptGen.SaveAsTemplate(c.Request.Context(),
		identity.Email, c.Param("generationId"), request.TemplateName, request.Public)
	if err != nil {
		h.respondError(c, err)
		return
	}

	view, err := templates.ViewOf(template)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"template": view, "generation": generation})
}

func (h *httpHandler) handleActiveGeneratorSession(c *gin.Context) {
	identity, _ := h.callerIdentity(c)
	session, err := h.promptGen.ActiveSession(c.Request.Context(), identity.Email, c.Query("sessionId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": session})
}

type saveSessionPayload struct {
	SessionID string                     `json:"sessionId"`
	Title     string                     `json:"title"`
	Messages  []promptgen.SessionMessage `json:"messages"`
	Snippets  []promptgen.Snippet        `json:"snippets"`
	Prompts   []promptgen.SessionPrompt  `json:"generatedPrompts"`
}

func (h *httpHandler) handleSaveGeneratorSession(c *gin.Context) {
	identity, _ := h.callerIdentity(c)
	var request saveSessionPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	session, err := h.promptGen.SaveState(c.Request.Context(), identity.Email, promptgen.SaveStateRequest{
		SessionID: request.SessionID,
		Title:     request.Title,
		Messages:  request.Messages,
		Snippets:  request.Snippets,
		Prompts:   request.Prompts,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": session})
}

type resetSessionPayload struct {
	CurrentSessionID string `json:"currentSessionId"`
}

func (h *httpHandler) handleResetGeneratorSession(c *gin.Context) {
	identity, _ := h.callerIdentity(c)
	var request resetSessionPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	result, err := h.promptGen.ResetSession(c.Request.Context(), identity.Email, request.CurrentSessionID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"newSession":      result.NewSession,
		"archivedSession": result.Archived,
	})
}

func (h *httpHandler) handleGeneratorSessionHistory(c *gin.Context) {
	identity, _ := h.callerIdentity(c)
	result, err := h.promptGen.SessionHistory(c.Request.Context(), identity.Email,
		intQuery(c, "page", 1), intQuery(c, "limit", 10))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"sessions": result.Sessions,
		"pagination": gin.H{
			"currentPage":   result.CurrentPage,
			"totalPages":    result.TotalPages,
			"totalSessions": result.Total,
		},
	})
}

func (h *httpHandler) handleGetGeneratorSession(c *gin.Context) {
	identity, _ := h.callerIdentity(c)
	session, err := h.promptGen.SessionByID(c.Request.Context(), identity.Email, c.Param("sessionId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": session})
}

func (h *httpHandler) handleDeleteGeneratorSession(c *gin.Context) {
	identity, _ := h.callerIdentity(c)
	if err := h.promptGen.DeleteSession(c.Request.Context(), identity.Email, c.Param("sessionId")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "session deleted"})
}

type promptActionPayload struct {
	Action string `json:"action"`
}

func (h *httpHandler) handleMarkGeneratorPrompt(c *gin.Context) {
	identity, _ := h.callerIdentity(c)
	var request promptActionPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	session, err := h.promptGen.MarkPromptAction(c.Request.Context(),
		identity.Email, c.Param("sessionId"), c.Param("promptId"), request.Action)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": session})
}
