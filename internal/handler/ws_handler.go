package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/wisegate/wisegate/internal/audit"
	"github.com/wisegate/wisegate/internal/config"
	"github.com/wisegate/wisegate/internal/domain"
	"github.com/wisegate/wisegate/internal/hub"
	"github.com/wisegate/wisegate/pkg/jwt"
	"github.com/wisegate/wisegate/pkg/log"
)

// WSHandler upgrades authenticated connections and attaches them to the hub.
// Authentication happens before the upgrade; an anonymous socket never enters
// a group.
type WSHandler struct {
	hub      *hub.Hub
	manager  *jwt.Manager
	cfg      config.WebSocketConfig
	cookie   string
	upgrader websocket.Upgrader
}

func NewWSHandler(h *hub.Hub, manager *jwt.Manager, cfg config.WebSocketConfig, cookieName string) *WSHandler {
	return &WSHandler{
		hub:     h,
		manager: manager,
		cfg:     cfg,
		cookie:  cookieName,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// inboundFrame is the only client-to-server shape we accept.
type inboundFrame struct {
	Event string `json:"event"`
}

// Connect handles GET /ws.
func (h *WSHandler) Connect(c *gin.Context) {
	claims, err := h.authenticate(c)
	if err != nil {
		audit.Log(c.Request.Context(), audit.ActionConnectRejected, "", "websocket handshake rejected")
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		l := log.L()
		l.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := hub.NewClient(uuid.New().String(), claims.UserID, h.hub, conn, h.cfg)
	h.hub.Register(client)

	// Gin recycles its context once the handler returns, so grab the request
	// context before handing it to the pump goroutine.
	ctx := c.Request.Context()
	audit.LogWithTarget(ctx, audit.ActionConnect, claims.UserID, client.ID, "websocket connected")

	go client.WritePump()
	go func() {
		client.ReadPump(h.handleInbound)
		audit.LogWithTarget(ctx, audit.ActionDisconnect, claims.UserID, client.ID, "websocket disconnected")
	}()
}

// handleInbound answers application-level pings and rejects everything else.
// Answer tokens only ever flow server to client.
func (h *WSHandler) handleInbound(c *hub.Client, message []byte) {
	var frame inboundFrame
	if err := json.Unmarshal(message, &frame); err != nil {
		c.SendEvent(domain.NewErrorEvent(domain.ErrCodeBadRequest, "malformed frame"))
		return
	}

	switch frame.Event {
	case "ping":
		c.SendEvent(gin.H{"event": domain.EventPong})
	default:
		c.SendEvent(domain.NewErrorEvent(domain.ErrCodeBadRequest, "unsupported event"))
	}
}

// authenticate pulls the session credential from the auth cookie, a bearer
// header, or a token query parameter for clients that cannot set headers on
// the handshake.
func (h *WSHandler) authenticate(c *gin.Context) (*jwt.Claims, error) {
	token := ""
	if cookie, err := c.Cookie(h.cookie); err == nil && cookie != "" {
		token = cookie
	} else if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		token = strings.TrimPrefix(auth, "Bearer ")
	} else {
		token = c.Query("token")
	}

	if token == "" {
		return nil, jwt.ErrInvalidToken
	}
	return h.manager.Validate(token)
}
