package websocket

import (
	"context"
	"errors"
	"net/http"

	"github.com/CUknot/marketplace_chat/auth"
	"github.com/CUknot/marketplace_chat/metrics"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Server admits authenticated websocket connections and runs their pumps
type Server struct {
	ctx           context.Context
	authenticator *auth.Authenticator
	hub           *Hub
	engine        *Engine
	upgrader      websocket.Upgrader
	opts          Options
	log           *zap.Logger
}

// NewServer wires the connection handler. ctx is the base context for event handling.
func NewServer(ctx context.Context, authenticator *auth.Authenticator, hub *Hub, engine *Engine, opts Options, log *zap.Logger) *Server {
	return &Server{
		ctx:           ctx,
		authenticator: authenticator,
		hub:           hub,
		engine:        engine,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins
			},
		},
		opts: opts.withDefaults(),
		log:  log,
	}
}

// HandleConnection authenticates the handshake and upgrades it. Requests
// without a valid token are refused before any room traffic is possible.
func (s *Server) HandleConnection(c *gin.Context) {
	identity, err := s.authenticator.Authenticate(c.Request)
	if err != nil {
		reason := "invalid_token"
		if errors.Is(err, auth.ErrTokenMissing) {
			reason = "token_missing"
		}
		metrics.ConnectionsRejected.WithLabelValues(reason).Inc()
		s.log.Info("websocket handshake rejected", zap.String("reason", reason), zap.String("remote", c.ClientIP()))
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	// Upgrade HTTP connection to WebSocket
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := newClient(s.hub, conn, identity, s.opts.SendBuffer)
	s.hub.Register(client)
	s.log.Debug("websocket connected", zap.String("conn_id", client.id), zap.String("user_id", identity.UserID))

	go client.writePump(s.opts)
	go client.readPump(s.ctx, s.engine, s.opts, s.log)
}
