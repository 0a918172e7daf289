package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/promptweave-ai/promptweave/backend/internal/auth"
	"github.com/promptweave-ai/promptweave/backend/internal/chats"
	"github.com/promptweave-ai/promptweave/backend/internal/collab"
	"github.com/promptweave-ai/promptweave/backend/internal/llm"
	"github.com/promptweave-ai/promptweave/backend/internal/mail"
	"github.com/promptweave-ai/promptweave/backend/internal/messages"
	"github.com/promptweave-ai/promptweave/backend/internal/promptgen"
	"github.com/promptweave-ai/promptweave/backend/internal/realtime"
	"github.com/promptweave-ai/promptweave/backend/internal/templates"
	"github.com/promptweave-ai/promptweave/backend/internal/users"
	"go.uber.org/zap"
)

const identityContextKey = "promptweave_identity"

var (
	errMissingSessions = errors.New("session manager dependency required")
	errMissingUsers    = errors.New("users service dependency required")
	errMissingChats    = errors.New("chats service dependency required")
	errMissingCollab   = errors.New("collaboration service dependency required")
	errMissingGateway  = errors.New("realtime gateway dependency required")
)

// Dependencies wires the HTTP layer to the services it fronts.
type Dependencies struct {
	Sessions   *auth.SessionManager
	Users      *users.Service
	Chats      *chats.Service
	Messages   *messages.Service
	Templates  *templates.Service
	Collab     *collab.Service
	PromptGen  *promptgen.Service
	Gateway    *realtime.Gateway
	Mailer     mail.Sender
	Logger     *zap.Logger
	CookieName string
	CookieTTL  time.Duration
	AppBaseURL string
	CORSOrigin string
}

// NewHTTPHandler builds the gin router with every route mounted.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Sessions == nil {
		return nil, errMissingSessions
	}
	if deps.Users == nil {
		return nil, errMissingUsers
	}
	if deps.Chats == nil {
		return nil, errMissingChats
	}
	if deps.Collab == nil {
		return nil, errMissingCollab
	}
	if deps.Gateway == nil {
		return nil, errMissingGateway
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cookieName := deps.CookieName
	if cookieName == "" {
		cookieName = "pw_session"
	}

	router := gin.New()
	router.Use(gin.Recovery())

	corsOrigin := deps.CORSOrigin
	if corsOrigin == "" {
		corsOrigin = "*"
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{corsOrigin},
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodPut, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		AllowCredentials: corsOrigin != "*",
		MaxAge:           12 * time.Hour,
	}))

	handler := &httpHandler{
		sessions:   deps.Sessions,
		users:      deps.Users,
		chats:      deps.Chats,
		messages:   deps.Messages,
		templates:  deps.Templates,
		collab:     deps.Collab,
		promptGen:  deps.PromptGen,
		gateway:    deps.Gateway,
		mailer:     deps.Mailer,
		logger:     logger,
		cookieName: cookieName,
		cookieTTL:  deps.CookieTTL,
		appBaseURL: deps.AppBaseURL,
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.POST("/auth/register", handler.handleRegister)
	router.POST("/auth/login", handler.handleLogin)
	router.POST("/auth/logout", handler.handleLogout)

	// Share links resolve without a session: they are the entry point for
	// users who have no account relationship with the chat yet.
	router.GET("/collaboration/shared/:shareToken", handler.handleResolveShareToken)
	router.GET("/invitation/:shareToken", handler.handleResolveShareToken)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)

	protected.GET("/auth/me", handler.handleMe)

	protected.POST("/chats", handler.handleCreateChat)
	protected.GET("/chats", handler.handleListChats)
	protected.GET("/chats/:chatId", handler.handleGetChat)
	protected.POST("/chats/:chatId/messages", handler.handleAppendChatMessage)

	protected.GET("/models", handler.handleListModels)
	protected.POST("/models/select", handler.handleSelectModel)

	protected.POST("/templates", handler.handleCreateTemplate)
	protected.GET("/templates", handler.handleListTemplates)
	protected.GET("/templates/:templateId", handler.handleGetTemplate)
	protected.PUT("/templates/:templateId", handler.handleUpdateTemplate)
	protected.DELETE("/templates/:templateId", handler.handleDeleteTemplate)
	protected.POST("/templates/:templateId/use", handler.handleUseTemplate)

	protected.GET("/messages/:chatId", handler.handleListRoomMessages)
	protected.POST("/messages/:chatId", handler.handleCreateRoomMessage)

	protected.POST("/prompt-generator/generate", handler.handleGeneratePrompt)
	protected.GET("/prompt-generator/history", handler.handleGenerationHistory)
	protected.GET("/prompt-generator/stats", handler.handleGenerationStats)
	protected.POST("/prompt-generator/:generationId/rate", handler.handleRateGeneration)
	protected.POST("/prompt-generator/:generationId/use", handler.handleMarkGenerationUsed)
	protected.POST("/prompt-generator/:generationId/save-template", handler.handleSaveGenerationAsTemplate)

	protected.GET("/prompt-generator-chat/session", handler.handleActiveGeneratorSession)
	protected.POST("/prompt-generator-chat/session", handler.handleSaveGeneratorSession)
	protected.POST("/prompt-generator-chat/session/reset", handler.handleResetGeneratorSession)
	protected.GET("/prompt-generator-chat/sessions", handler.handleGeneratorSessionHistory)
	protected.GET("/prompt-generator-chat/sessions/:sessionId", handler.handleGetGeneratorSession)
	protected.DELETE("/prompt-generator-chat/sessions/:sessionId", handler.handleDeleteGeneratorSession)
	protected.POST("/prompt-generator-chat/sessions/:sessionId/prompts/:promptId", handler.handleMarkGeneratorPrompt)

	protected.GET("/collaboration/:chatId", handler.handleGetCollaboration)
	protected.POST("/collaboration/:chatId", handler.handleGetCollaboration)
	protected.POST("/collaboration/:chatId/invite", handler.handleInvite)
	protected.PATCH("/collaboration/:chatId/collaborators/:collaboratorId", handler.handleUpdateRole)
	protected.DELETE("/collaboration/:chatId/collaborators/:collaboratorId", handler.handleRemoveCollaborator)
	protected.POST("/collaboration/:chatId/share-link", handler.handleGenerateShareLink)
	protected.DELETE("/collaboration/:chatId/share-link", handler.handleDisableShareLink)
	protected.POST("/collaboration/:chatId/active-users", handler.handleUpsertPresence)
	protected.GET("/collaboration/:chatId/active-users", handler.handleActiveUsers)

	protected.GET("/ws", handler.handleWebsocket)

	return router, nil
}

type httpHandler struct {
	sessions   *auth.SessionManager
	users      *users.Service
	chats      *chats.Service
	messages   *messages.Service
	templates  *templates.Service
	collab     *collab.Service
	promptGen  *promptgen.Service
	gateway    *realtime.Gateway
	mailer     mail.Sender
	logger     *zap.Logger
	cookieName string
	cookieTTL  time.Duration
	appBaseURL string
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	cookie, err := c.Cookie(h.cookieName)
	if err != nil || cookie == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	identity, err := h.sessions.ValidateSessionToken(cookie)
	if err != nil {
		h.logger.Warn("session validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(identityContextKey, identity)
	c.Next()
}

func (h *httpHandler) callerIdentity(c *gin.Context) (auth.Identity, bool) {
	value, ok := c.Get(identityContextKey)
	if !ok {
		return auth.Identity{}, false
	}
	identity, ok := value.(auth.Identity)
	return identity, ok
}

type registerPayload struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

func (h *httpHandler) handleRegister(c *gin.Context) {
	var request registerPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	identity, err := h.users.Register(c.Request.Context(), users.RegisterRequest{
		Email:    request.Email,
		Name:     request.Name,
		Password: request.Password,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.issueSessionCookie(c, identity)
	c.JSON(http.StatusCreated, gin.H{
		"message": "registered",
		"user":    gin.H{"email": identity.Email, "name": identity.Name},
	})
}

type loginPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var request loginPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	identity, err := h.users.Authenticate(c.Request.Context(), request.Email, request.Password)
	if err != nil {
		h.respondError(c, err)
		return
	}

	h.issueSessionCookie(c, identity)
	c.JSON(http.StatusOK, gin.H{
		"message": "logged in",
		"user":    gin.H{"email": identity.Email, "name": identity.Name},
	})
}

func (h *httpHandler) handleLogout(c *gin.Context) {
	c.SetCookie(h.cookieName, "", -1, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

func (h *httpHandler) handleMe(c *gin.Context) {
	identity, ok := h.callerIdentity(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": gin.H{"email": identity.Email, "name": identity.Name}})
}

func (h *httpHandler) issueSessionCookie(c *gin.Context, identity auth.Identity) {
	token, _, err := h.sessions.IssueSessionToken(identity)
	if err != nil {
		h.logger.Error("session token issuance failed", zap.Error(err))
		return
	}
	maxAge := int(h.cookieTTL.Seconds())
	if maxAge <= 0 {
		maxAge = int((7 * 24 * time.Hour).Seconds())
	}
	c.SetCookie(h.cookieName, token, maxAge, "/", "", false, true)
}

type createChatPayload struct {
	Message string `json:"message"`
	Model   string `json:"model"`
	Mode    string `json:"mode"`
}

func (h *httpHandler) handleCreateChat(c *gin.Context) {
	identity, _ := h.callerIdentity(c)
	var request createChatPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	result, err := h.chats.Create(c.Request.Context(), identity.Email, chats.CreateRequest{
		Message: request.Message,
		Model:   request.Model,
		Mode:    chats.Mode(request.Mode),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, chatResponse(result))
}

func (h *httpHandler) handleListChats(c *gin.Context) {
	identity, _ := h.callerIdentity(c)
	page := intQuery(c, "page", 1)
	limit := intQuery(c, "limit", 20)

	result, err := h.chats.List(c.Request.Context(), identity.Email, page, limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"chats":       result.Chats,
		"currentPage": result.CurrentPage,
		"totalPages":  result.TotalPages,
	})
}

func (h *httpHandler) handleGetChat(c *gin.Context) {
	identity, _ := h.callerIdentity(c)
	chat, transcript, err := h.chats.Get(c.Request.Context(), identity.Email, c.Param("chatId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chat": chat, "messages": transcript})
}

type appendMessagePayload struct {
	Message string `json:"message"`
	Model   string `json:"model"`
}

func (h *httpHandler) handleAppendChatMessage(c *gin.Context) {
	identity, _ := h.callerIdentity(c)
	var request appendMessagePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	result, err := h.chats.Append(c.Request.Context(), identity.Email, c.Param("chatId"), request.Message, request.Model)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, chatResponse(result))
}

func chatResponse(result chats.Result) gin.H {
	response := gin.H{
		"chat":     result.Chat,
		"messages": result.Messages,
	}
	if result.CompletionFailed {
		response["completionStatus"] = gin.H{"ok": false, "message": "assistant reply unavailable"}
	}
	return response
}

func (h *httpHandler) handleListModels(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"models": llm.Catalog})
}

type selectModelPayload struct {
	Message string `json:"message"`
}

func (h *httpHandler) handleSelectModel(c *gin.Context) {
	var request selectModelPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.Message == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"selectedModel": llm.SelectModel(request.Message)})
}

func intQuery(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 1 {
		return fallback
	}
	return value
}
