package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/promptweave-ai/promptweave/backend/internal/collab"
	"github.com/promptweave-ai/promptweave/backend/internal/mail"
	"github.com/promptweave-ai/promptweave/backend/internal/realtime"
	"go.uber.org/zap"
)

func (h *httpHandler) handleGetCollaboration(c *gin.Context) {
	identity, _ := h.callerIdentity(c)
	view, err := h.collab.GetOrCreate(c.Request.Context(), c.Param("chatId"), identity.Email)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

type invitePayload struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

func (h *httpHandler) handleInvite(c *gin.Context) {
	identity, _ := h.callerIdentity(c)
	chatID := c.Param("chatId")

	var request invitePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	result, err := h.collab.Invite(c.Request.Context(), chatID, identity.Email, collab.InviteRequest{
		Email: request.Email,
		Name:  request.Name,
		Role:  collab.Role(request.Role),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	if h.chats != nil {
		if err := h.chats.MarkCollaborative(c.Request.Context(), chatID); err != nil {
			h.logger.Warn("collaborative flag update failed",
				zap.String("chat_id", chatID), zap.Error(err))
		}
	}

	emailStatus := h.deliverInvitation(c, chatID, identity.Name, result)

	h.gateway.NotifyInvited(result.Collaborator.Email, chatID,
		realtime.UserRef{Email: identity.Email, Name: identity.Name},
		string(result.Collaborator.Role))

	c.JSON(http.StatusCreated, gin.H{
		"collaborator": result.Collaborator,
		"emailStatus":  emailStatus,
	})
}

// deliverInvitation sends the invite email as a side effect. Failure is
// reported in the response sub-status and never fails the invitation itself.
func (h *httpHandler) deliverInvitation(c *gin.Context, chatID, inviterName string, result collab.InviteResult) gin.H {
	if h.mailer == nil {
		return gin.H{"sent": false, "error": "mail delivery not configured"}
	}

	title := chatID
	if h.chats != nil {
		identity, _ := h.callerIdentity(c)
		if chat, _, err := h.chats.Get(c.Request.Context(), identity.Email, chatID); err == nil {
			title = chat.Title
		}
	}

	invitation := mail.Invitation{
		ToEmail:     result.Collaborator.Email,
		ToName:      result.Collaborator.Name,
		InviterName: inviterName,
		ChatTitle:   title,
		ShareURL:    h.appBaseURL + "/invitation/" + result.ShareToken,
		Role:        string(result.Collaborator.Role),
	}
	if err := h.mailer.SendInvitation(c.Request.Context(), invitation); err != nil {
		h.logger.Warn("invitation email failed",
			zap.String("to", invitation.ToEmail), zap.Error(err))
		return gin.H{"sent": false, "error": "delivery failed"}
	}
	return gin.H{"sent": true}
}

type updateRolePayload struct {
	Role string `json:"role"`
}

func (h *httpHandler) handleUpdateRole(c *gin.Context) {
	identity, _ := h.callerIdentity(c)

	var request updateRolePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	collaborator, err := h.collab.UpdateRole(c.Request.Context(),
		c.Param("chatId"), identity.Email, c.Param("collaboratorId"), collab.Role(request.Role))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"collaborator": collaborator})
}

func (h *httpHandler) handleRemoveCollaborator(c *gin.Context) {
	identity, _ := h.callerIdentity(c)
	err := h.collab.RemoveCollaborator(c.Request.Context(),
		c.Param("chatId"), identity.Email, c.Param("collaboratorId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "collaborator removed"})
}

type shareLinkPayload struct {
	ExpiresInHours int `json:"expiresInHours"`
}

func (h *httpHandler) handleGenerateShareLink(c *gin.Context) {
	identity, _ := h.callerIdentity(c)

	var request shareLinkPayload
	if err := c.ShouldBindJSON(&request); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	ttl := time.Duration(request.ExpiresInHours) * time.Hour
	view, err := h.collab.GenerateShareLink(c.Request.Context(), c.Param("chatId"), identity.Email, ttl)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"shareLink": view,
		"shareUrl":  h.appBaseURL + "/invitation/" + view.Token,
	})
}

func (h *httpHandler) handleDisableShareLink(c *gin.Context) {
	identity, _ := h.callerIdentity(c)
	if err := h.collab.DisableShareLink(c.Request.Context(), c.Param("chatId"), identity.Email); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "share link disabled"})
}

func (h *httpHandler) handleResolveShareToken(c *gin.Context) {
	shared, err := h.collab.ResolveShareToken(c.Request.Context(), c.Param("shareToken"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, shared)
}

type presenceUpdatePayload struct {
	Name   string         `json:"name"`
	Cursor *collab.Cursor `json:"cursor"`
}

// handleUpsertPresence is the stateless twin of the websocket presence path.
// Both funnel into the same roster upsert, so either path alone keeps the
// roster converged.
func (h *httpHandler) handleUpsertPresence(c *gin.Context) {
	identity, _ := h.callerIdentity(c)

	var request presenceUpdatePayload
	if err := c.ShouldBindJSON(&request); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	name := request.Name
	if name == "" {
		name = identity.Name
	}
	entry := collab.PresenceEntry{Email: identity.Email, Name: name}
	if request.Cursor != nil {
		entry.Cursor = *request.Cursor
	}

	roster, err := h.collab.UpsertPresence(c.Request.Context(), c.Param("chatId"), entry)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"activeUsers": roster})
}

func (h *httpHandler) handleActiveUsers(c *gin.Context) {
	roster, err := h.collab.ActiveUsers(c.Request.Context(), c.Param("chatId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"activeUsers": roster})
}
