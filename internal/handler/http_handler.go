package handler

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wisegate/wisegate/internal/engine"
	"github.com/wisegate/wisegate/internal/middleware"
	"github.com/wisegate/wisegate/internal/reference"
	"github.com/wisegate/wisegate/internal/service"
	"github.com/wisegate/wisegate/pkg/log"
	"github.com/wisegate/wisegate/pkg/response"
)

// HTTPHandler exposes the answer and chat session API.
type HTTPHandler struct {
	service service.AnswerService
}

func NewHTTPHandler(svc service.AnswerService) *HTTPHandler {
	return &HTTPHandler{service: svc}
}

// RegisterRoutes wires the API behind the auth middleware.
func (h *HTTPHandler) RegisterRoutes(r *gin.Engine, auth *middleware.AuthMiddleware) {
	r.GET("/health", h.Health)

	api := r.Group("/", auth.RequireAuth())
	{
		api.POST("/answer-request", h.RequestAnswer)
		api.POST("/chat-sessions", h.CreateSession)
		api.GET("/chat-sessions", h.ListSessions)
		api.GET("/chat-sessions/:id", h.GetSession)
		api.DELETE("/chat-sessions/:id", h.DeleteSession)
	}
}

type answerRequestBody struct {
	Question          string `json:"question" binding:"required"`
	KnowledgeBaseID   string `json:"knowledgeBaseId" binding:"required"`
	ChatSessionID     string `json:"chatSessionId" binding:"required"`
	QuestionReference string `json:"questionReference"`
	Language          string `json:"language"`
	WisdomLevel       string `json:"wisdomLevel"`
}

type answerResponseBody struct {
	Answer            string      `json:"answer"`
	Sources           interface{} `json:"sources"`
	QuestionReference string      `json:"questionReference"`
}

// RequestAnswer handles POST /answer-request.
func (h *HTTPHandler) RequestAnswer(c *gin.Context) {
	var body answerRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}

	requestToken := body.QuestionReference
	if requestToken == "" {
		requestToken = randomToken()
	}
	if strings.Contains(requestToken, reference.Separator) {
		response.BadRequest(c, "questionReference must not contain ':'")
		return
	}

	userID := middleware.GetUserID(c)
	result, err := h.service.RequestAnswer(c.Request.Context(), service.RequestAnswerInput{
		UserID:          userID,
		Question:        body.Question,
		KnowledgeBaseID: body.KnowledgeBaseID,
		ChatSessionID:   body.ChatSessionID,
		RequestToken:    requestToken,
		Language:        body.Language,
		WisdomLevel:     body.WisdomLevel,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	response.Success(c, answerResponseBody{
		Answer:            result.Answer,
		Sources:           result.Sources,
		QuestionReference: requestToken,
	})
}

// CreateSession handles POST /chat-sessions.
func (h *HTTPHandler) CreateSession(c *gin.Context) {
	session, err := h.service.CreateSession(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Created(c, session)
}

// ListSessions handles GET /chat-sessions. An optional beforeDate query
// parameter (RFC 3339) pages backwards through the list.
func (h *HTTPHandler) ListSessions(c *gin.Context) {
	var before *time.Time
	if raw := c.Query("beforeDate"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			response.BadRequest(c, "beforeDate must be RFC 3339")
			return
		}
		before = &t
	}

	sessions, err := h.service.ListSessions(c.Request.Context(), middleware.GetUserID(c), before)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, sessions)
}

// GetSession handles GET /chat-sessions/:id.
func (h *HTTPHandler) GetSession(c *gin.Context) {
	session, err := h.service.GetSessionWithMessages(c.Request.Context(), middleware.GetUserID(c), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, session)
}

// DeleteSession handles DELETE /chat-sessions/:id.
func (h *HTTPHandler) DeleteSession(c *gin.Context) {
	if err := h.service.DeleteSession(c.Request.Context(), middleware.GetUserID(c), c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, gin.H{"deleted": true})
}

// Health handles GET /health.
func (h *HTTPHandler) Health(c *gin.Context) {
	response.Success(c, gin.H{"status": "ok"})
}

func (h *HTTPHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		response.NotFound(c, "chat session not found")
	case errors.Is(err, reference.ErrInvalidInput):
		response.BadRequest(c, err.Error())
	case errors.Is(err, engine.ErrUpstreamUnavailable):
		response.BadGateway(c, "answer engine unavailable")
	default:
		l := log.Ctx(c.Request.Context())
		l.Error().Err(err).Msg("answer request failed")
		response.InternalError(c, "internal error")
	}
}

// randomToken mirrors the client-side fallback: callers that do not care
// about realtime attribution get a server-generated nonce.
func randomToken() string {
	b := make([]byte, 8)
	rand.Read(b)
	return hex.EncodeToString(b)
}
