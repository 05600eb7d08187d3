package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/beemacro/beemacro/internal/bot"
	"github.com/beemacro/beemacro/internal/event"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// WebSocketServer fans status snapshots and events out to every connected dashboard.
type WebSocketServer struct {
	logger     *slog.Logger
	clients    map[*wsClient]bool
	broadcast  chan []byte
	register   chan *wsClient
	unregister chan *wsClient
	done       chan struct{}
}

// wsMessage is the envelope of everything pushed over /ws.
type wsMessage struct {
	Type    string      `json:"type"`
	ID      string      `json:"id,omitempty"`
	Source  string      `json:"source,omitempty"`
	Message string      `json:"message,omitempty"`
	Time    time.Time   `json:"time"`
	Status  *bot.Status `json:"status,omitempty"`
}

func NewWebSocketServer(logger *slog.Logger) *WebSocketServer {
	return &WebSocketServer{
		logger:     logger,
		clients:    make(map[*wsClient]bool),
		broadcast:  make(chan []byte, 16),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		done:       make(chan struct{}),
	}
}

func (s *WebSocketServer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(s.done)
			for client := range s.clients {
				close(client.send)
				delete(s.clients, client)
			}
			return
		case client := <-s.register:
			s.clients[client] = true
		case client := <-s.unregister:
			if _, ok := s.clients[client]; ok {
				delete(s.clients, client)
				close(client.send)
			}
		case message := <-s.broadcast:
			for client := range s.clients {
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(s.clients, client)
				}
			}
		}
	}
}

// Publish queues a message for every client, dropping it when the hub is saturated.
func (s *WebSocketServer) Publish(msg wsMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error("Failed to marshal websocket message", slog.Any("error", err))
		return
	}
	select {
	case s.broadcast <- data:
	default:
		s.logger.Debug("Websocket hub busy, dropping message", slog.String("type", msg.Type))
	}
}

// EventHandler forwards listener events to the dashboards.
func (s *WebSocketServer) EventHandler() event.Handler {
	return func(_ context.Context, e event.Event) error {
		s.Publish(wsMessage{
			Type:    "event",
			ID:      e.ID(),
			Source:  e.Source(),
			Message: e.Message(),
			Time:    e.OccurredAt(),
		})
		return nil
	}
}

func (s *WebSocketServer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection to WebSocket", slog.Any("error", err))
		return
	}

	client := &wsClient{conn: conn, send: make(chan []byte, 256)}
	select {
	case s.register <- client:
	case <-s.done:
		conn.Close()
		return
	case <-r.Context().Done():
		conn.Close()
		return
	}

	go s.writePump(client)
	go s.readPump(client)
}

func (s *WebSocketServer) writePump(client *wsClient) {
	defer client.conn.Close()

	for message := range client.send {
		if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	client.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

func (s *WebSocketServer) readPump(client *wsClient) {
	defer func() {
		select {
		case s.unregister <- client:
		case <-s.done:
		}
		client.conn.Close()
	}()

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Error("WebSocket read error", slog.Any("error", err))
			}
			return
		}
	}
}
