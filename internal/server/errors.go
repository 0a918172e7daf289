package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/promptweave-ai/promptweave/backend/internal/chats"
	"github.com/promptweave-ai/promptweave/backend/internal/collab"
	"github.com/promptweave-ai/promptweave/backend/internal/messages"
	"github.com/promptweave-ai/promptweave/backend/internal/promptgen"
	"github.com/promptweave-ai/promptweave/backend/internal/templates"
	"github.com/promptweave-ai/promptweave/backend/internal/users"
	"go.uber.org/zap"
)

// respondError maps service sentinels to HTTP statuses. Anything unmapped is a
// 500 with a generic body so internals never leak to clients.
func (h *httpHandler) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, collab.ErrNotFound),
		errors.Is(err, chats.ErrNotFound),
		errors.Is(err, templates.ErrNotFound),
		errors.Is(err, promptgen.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, collab.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case errors.Is(err, collab.ErrShareLinkExpired):
		c.JSON(http.StatusForbidden, gin.H{"error": "share link expired"})
	case errors.Is(err, collab.ErrDuplicateCollaborator):
		c.JSON(http.StatusBadRequest, gin.H{"error": "collaborator already invited"})
	case errors.Is(err, promptgen.ErrAlreadyTemplate):
		c.JSON(http.StatusBadRequest, gin.H{"error": "already saved as template"})
	case errors.Is(err, users.ErrEmailTaken):
		c.JSON(http.StatusBadRequest, gin.H{"error": "email already registered"})
	case errors.Is(err, users.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
	case errors.Is(err, collab.ErrInvalidInput),
		errors.Is(err, chats.ErrInvalidInput),
		errors.Is(err, users.ErrInvalidInput),
		errors.Is(err, templates.ErrInvalidInput),
		errors.Is(err, messages.ErrInvalidInput),
		errors.Is(err, promptgen.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
