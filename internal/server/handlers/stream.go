package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/arvopay/ledger/internal/server/middleware"
	ws "github.com/arvopay/ledger/internal/server/websocket"
	"github.com/arvopay/ledger/pkg/config"
)

// StreamHandler upgrades authenticated connections onto the transition
// event stream for the caller's account.
type StreamHandler struct {
	hub      *ws.WsHub
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

func NewStreamHandler(hub *ws.WsHub, cfg config.WebSocketConfig, logger zerolog.Logger) *StreamHandler {
	readBuffer := cfg.ReadBufferSize
	if readBuffer <= 0 {
		readBuffer = 1024
	}
	writeBuffer := cfg.WriteBufferSize
	if writeBuffer <= 0 {
		writeBuffer = 1024
	}

	return &StreamHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  readBuffer,
			WriteBufferSize: writeBuffer,
			CheckOrigin: func(r *http.Request) bool {
				return !cfg.CheckOrigin
			},
		},
		logger: logger,
	}
}

func (h *StreamHandler) HandleConnection(c *gin.Context) {
	accountID := c.GetString(middleware.AccountIDKey)
	if accountID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "Unauthorized",
			"message": "Token carries no account",
		})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error().Err(err).Str("account_id", accountID).Msg("WebSocket upgrade failed")
		return
	}

	client := &ws.WsClient{
		AccountID: accountID,
		Conn:      conn,
	}
	h.hub.Register <- client

	// Drain the connection until the peer goes away; the hub owns writes.
	go func() {
		defer func() {
			h.hub.Unregister <- client
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
