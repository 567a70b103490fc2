package websocket

import (
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/arvopay/ledger/internal/domain"
)

// WsHub fans transition events out to connected clients. Clients subscribe
// per account: a connection registered for an account only receives events
// for that account's transactions.
type WsHub struct {
	Clients    map[string]map[*websocket.Conn]bool
	Broadcast  chan domain.TransitionEvent
	Register   chan *WsClient
	Unregister chan *WsClient
	Logger     zerolog.Logger
}

type WsClient struct {
	AccountID string
	Conn      *websocket.Conn
}

func NewWsHub(logger zerolog.Logger) *WsHub {
	return &WsHub{
		Clients:    make(map[string]map[*websocket.Conn]bool),
		Broadcast:  make(chan domain.TransitionEvent, 100),
		Register:   make(chan *WsClient, 100),
		Unregister: make(chan *WsClient, 100),
		Logger:     logger,
	}
}

// BroadcastTransition queues an event for delivery. Never blocks the
// caller: if the hub is saturated the event is dropped, since the stream
// is a convenience view and the history table stays authoritative.
func (h *WsHub) BroadcastTransition(event domain.TransitionEvent) {
	select {
	case h.Broadcast <- event:
	default:
		h.Logger.Warn().
			Str("transaction_id", event.TransactionID).
			Msg("WebSocket broadcast queue full, dropping event")
	}
}

func (h *WsHub) Run() {
	for {
		select {
		case client := <-h.Register:
			if h.Clients[client.AccountID] == nil {
				h.Clients[client.AccountID] = make(map[*websocket.Conn]bool)
			}
			h.Clients[client.AccountID][client.Conn] = true
			h.Logger.Info().
				Str("account_id", client.AccountID).
				Int("connection_count", len(h.Clients[client.AccountID])).
				Msg("WebSocket client registered")

		case client := <-h.Unregister:
			if clients, ok := h.Clients[client.AccountID]; ok {
				delete(clients, client.Conn)
				if len(clients) == 0 {
					delete(h.Clients, client.AccountID)
				}
				client.Conn.Close()
				h.Logger.Info().
					Str("account_id", client.AccountID).
					Msg("WebSocket client unregistered")
			}

		case event := <-h.Broadcast:
			clients, ok := h.Clients[event.AccountID]
			if !ok {
				continue
			}
			for conn := range clients {
				if err := conn.WriteJSON(event); err != nil {
					h.Logger.Err(err).
						Str("account_id", event.AccountID).
						Str("transaction_id", event.TransactionID).
						Msg("Failed to send WebSocket event")
					conn.Close()
					delete(clients, conn)
				}
			}
			if len(clients) == 0 {
				delete(h.Clients, event.AccountID)
			}
		}
	}
}
