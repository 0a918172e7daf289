package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/promptweave-ai/promptweave/backend/internal/messages"
	"github.com/promptweave-ai/promptweave/backend/internal/templates"
)

type templatePayload struct {
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	Category string   `json:"category"`
	Tags     []string `json:"tags"`
	Public   bool     `json:"isPublic"`
}

func (h *httpHandler) handleCreateTemplate(c *gin.Context) {
	identity, _ := h.callerIdentity(c)
	var request templatePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	template, err := h.templates.Create(c.Request.Context(), identity.Email, templates.UpsertRequest{
		Title:    request.Title,
		Content:  request.Content,
		Category: request.Category,
		Tags:     request.Tags,
		Public:   request.Public,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.respondTemplate(c, http.StatusCreated, template)
}

func (h *httpHandler) respondTemplate(c *gin.Context, status int, template templates.Template) {
	view, err := templates.ViewOf(template)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(status, gin.H{"template": view})
}

func (h *httpHandler) handleListTemplates(c *gin.Context) {
	identity, _ := h.callerIdentity(c)
	list, err := h.templates.List(c.Request.Context(), identity.Email)
	if err != nil {
		h.respondError(c, err)
		return
	}
	views := make([]templates.View, 0, len(list))
	for _, template := range list {
		view, err := templates.ViewOf(template)
		if err != nil {
			h.respondError(c, err)
			return
		}
		views = append(views, view)
	}
	c.JSON(http.StatusOK, gin.H{"templates": views})
}

func (h *httpHandler) handleGetTemplate(c *gin.Context) {
	identity, _ := h.callerIdentity(c)
	template, err := h.templates.Get(c.Request.Context(), identity.Email, c.Param("templateId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.respondTemplate(c, http.StatusOK, template)
}

func (h *httpHandler) handleUpdateTemplate(c *gin.Context) {
	identity, _ := h.callerIdentity(c)
	var request templatePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	template, err := h.templates.Update(c.Request.Context(), identity.Email, c.Param("templateId"), templates.UpsertRequest{
		Title:    request.Title,
		Content:  request.Content,
		Category: request.Category,
		Tags:     request.Tags,
		Public:   request.Public,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.respondTemplate(c, http.StatusOK, template)
}

func (h *httpHandler) handleDeleteTemplate(c *gin.Context) {
	identity, _ := h.callerIdentity(c)
	if err := h.templates.Delete(c.Request.Context(), identity.Email, c.Param("templateId")); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "template deleted"})
}

func (h *httpHandler) handleUseTemplate(c *gin.Context) {
	identity, _ := h.callerIdentity(c)
	template, err := h.templates.Use(c.Request.Context(), identity.Email, c.Param("templateId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	h.respondTemplate(c, http.StatusOK, template)
}

func (h *httpHandler) handleListRoomMessages(c *gin.Context) {
	page := intQuery(c, "page", 1)
	limit := intQuery(c, "limit", 50)

	result, err := h.messages.ListByChat(c.Request.Context(), c.Param("chatId"), page, limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"messages":    result.Messages,
		"currentPage": result.CurrentPage,
		"totalPages":  result.TotalPages,
	})
}

type roomMessagePayload struct {
	Content string `json:"content"`
	Type    string `json:"type"`
}

func (h *httpHandler) handleCreateRoomMessage(c *gin.Context) {
	identity, _ := h.callerIdentity(c)
	var request roomMessagePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	message, err := h.messages.Create(c.Request.Context(), messages.CreateRequest{
		ChatID:      c.Param("chatId"),
		SenderEmail: identity.Email,
		SenderName:  identity.Name,
		Content:     request.Content,
		Type:        messages.MessageType(request.Type),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": message})
}
