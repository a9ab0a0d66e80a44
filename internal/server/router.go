package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/parleylabs/parley/internal/applications"
	"github.com/parleylabs/parley/internal/conversations"
	"github.com/parleylabs/parley/internal/forum"
	"github.com/parleylabs/parley/internal/session"
)

const (
	sessionContextKey  = "parley_session"
	transientKeyHeader = "X-Transient-Key"
	transientKeyCookie = "parley_tk"
	transientCookieTTL = 12 * 60 * 60
)

var (
	errMissingTokenManager  = errors.New("token manager dependency required")
	errMissingApplications  = errors.New("applications service dependency required")
	errMissingConversations = errors.New("conversations service dependency required")
)

// Dependencies wires the HTTP layer to its collaborating services.
type Dependencies struct {
	TokenManager  *session.TokenManager
	Applications  *applications.Service
	Conversations *conversations.Service
	Logger        *zap.Logger
}

// NewHTTPHandler builds the gin router for the public API surface.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if deps.Applications == nil {
		return nil, errMissingApplications
	}
	if deps.Conversations == nil {
		return nil, errMissingConversations
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type", transientKeyHeader},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		tokens:        deps.TokenManager,
		applications:  deps.Applications,
		conversations: deps.Conversations,
		logger:        logger,
	}

	api := router.Group("/api/v2")
	api.Use(handler.resolveSession)

	api.GET("/session", handler.handleSessionInfo)

	apps := api.Group("/applications")
	apps.POST("", handler.requireTransientKey, handler.handleSubmitApplication)
	apps.GET("", handler.requirePermission(session.PermApproveUsers), handler.handleListApplications)
	apps.GET("/:id", handler.requirePermission(session.PermApproveUsers), handler.handleGetApplication)
	apps.PATCH("/:id", handler.requirePermission(session.PermApproveUsers), handler.handlePatchApplication)
	apps.DELETE("/:id", handler.requirePermission(session.PermApproveUsers), handler.handleDeleteApplication)

	convos := api.Group("/conversations")
	convos.GET("/:id/members", handler.handleConversationMembers)
	convos.POST("/:id/messages", handler.requireTransientKey, handler.handlePostConversationMessage)

	return router, nil
}

type httpHandler struct {
	tokens        *session.TokenManager
	applications  *applications.Service
	conversations *conversations.Service
	logger        *zap.Logger
}

// resolveSession turns an optional bearer token into a Session on the gin
// context. Requests without a token proceed as guests.
func (h *httpHandler) resolveSession(c *gin.Context) {
	sess := session.Session{RemoteAddr: c.ClientIP()}
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		claims, err := h.tokens.Validate(token)
		if err != nil {
			h.logger.Warn("session token rejected", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		sess = session.FromClaims(claims, c.ClientIP())
	}
	c.Set(sessionContextKey, &sess)
	c.Next()
}

func (h *httpHandler) sessionFrom(c *gin.Context) *session.Session {
	value, ok := c.Get(sessionContextKey)
	if !ok {
		return &session.Session{RemoteAddr: c.ClientIP()}
	}
	sess, ok := value.(*session.Session)
	if !ok {
		return &session.Session{RemoteAddr: c.ClientIP()}
	}
	return sess
}

func (h *httpHandler) requirePermission(permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := h.sessionFrom(c)
		if !sess.IsValid() {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		if !sess.Has(permission) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "permission denied"})
			return
		}
		c.Next()
	}
}

// requireTransientKey enforces the anti-forgery check on mutating guest
// endpoints. Signed-in sessions must echo their token's transient key;
// guests use the double-submit cookie issued by the session endpoint.
func (h *httpHandler) requireTransientKey(c *gin.Context) {
	submitted := strings.TrimSpace(c.GetHeader(transientKeyHeader))
	sess := h.sessionFrom(c)
	if sess.IsValid() {
		if !sess.ValidateTransientKey(submitted) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid transient key"})
			return
		}
		c.Next()
		return
	}
	cookie, err := c.Cookie(transientKeyCookie)
	if err != nil || submitted == "" || submitted != cookie {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid transient key"})
		return
	}
	c.Next()
}

// handleSessionInfo reports the caller's identity and hands guests a
// transient key for anti-forgery double-submit.
func (h *httpHandler) handleSessionInfo(c *gin.Context) {
	sess := h.sessionFrom(c)
	if sess.IsValid() {
		c.JSON(http.StatusOK, gin.H{
			"userID":       sess.UserID,
			"name":         sess.UserName,
			"transientKey": sess.TransientKey,
		})
		return
	}
	key, err := c.Cookie(transientKeyCookie)
	if err != nil || key == "" {
		key = uuid.NewString()
		c.SetCookie(transientKeyCookie, key, transientCookieTTL, "/", "", false, true)
	}
	c.JSON(http.StatusOK, gin.H{"userID": 0, "transientKey": key})
}

func (h *httpHandler) handleListApplications(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "30"))
	apps, err := h.applications.List(c.Request.Context(), page, limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, apps)
}

func (h *httpHandler) handleGetApplication(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	app, err := h.applications.Get(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, app)
}

func (h *httpHandler) handleSubmitApplication(c *gin.Context) {
	var request applications.SubmitRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	app, err := h.applications.Submit(c.Request.Context(), h.sessionFrom(c), request)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, app)
}

type patchApplicationPayload struct {
	Status string `json:"status"`
}

func (h *httpHandler) handlePatchApplication(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	var request patchApplicationPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	status, err := forum.ParseApplicationStatus(request.Status)
	if err != nil {
		h.writeError(c, err)
		return
	}

	var app applications.Application
	if status == forum.ApplicationStatusApproved {
		app, err = h.applications.Approve(c.Request.Context(), id)
	} else {
		app, err = h.applications.Decline(c.Request.Context(), id)
	}
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, app)
}

func (h *httpHandler) handleDeleteApplication(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	app, err := h.applications.Decline(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, app)
}

func (h *httpHandler) handleConversationMembers(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	sess := h.sessionFrom(c)
	if !sess.IsValid() {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	ctx := c.Request.Context()
	if !sess.Has(session.PermModerate) {
		member, err := h.conversations.ValidMember(ctx, id, sess.UserID)
		if err != nil {
			h.writeError(c, err)
			return
		}
		if !member {
			c.JSON(http.StatusForbidden, gin.H{"error": "permission denied"})
			return
		}
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if c.Query("idsOnly") == "true" {
		ids, err := h.conversations.MemberIDs(ctx, id, limit, offset)
		if err != nil {
			h.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"memberIDs": ids})
		return
	}
	members, err := h.conversations.Members(ctx, id, limit, offset)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": members})
}

type postMessagePayload struct {
	Body string `json:"body"`
}

func (h *httpHandler) handlePostConversationMessage(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	var request postMessagePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	message, err := h.conversations.PostMessage(c.Request.Context(), h.sessionFrom(c), id, request.Body)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"messageID":      message.MessageID,
		"conversationID": message.ConversationID,
		"body":           message.Body,
		"dateInserted":   message.DateInserted,
	})
}

func (h *httpHandler) pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return 0, false
	}
	return id, true
}

// writeError maps domain errors onto the API status codes.
func (h *httpHandler) writeError(c *gin.Context, err error) {
	if verr, ok := forum.AsValidationError(err); ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "fields": verr.Fields})
		return
	}
	switch {
	case errors.Is(err, forum.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, forum.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, forum.ErrPermission):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, forum.ErrFloodControl):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "slow down"})
	default:
		h.logger.Error("request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
