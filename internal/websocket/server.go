package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/yegors/voice-agent/pkg/logger"
)

// Message types exchanged with the browser widget
const (
	MessageTypeView   = "view"   // Server pushes the rendered call view
	MessageTypeToggle = "toggle" // Client clicked the call button
	MessageTypeStop   = "stop"   // Client wants the call ended
	MessageTypeLeave  = "leave"  // Client page is unloading
	MessageTypeError  = "error"  // Server reports a rejected client message
)

// Message represents a WebSocket message
type Message struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// MessageHandler defines the interface for handling incoming WebSocket messages
type MessageHandler interface {
	HandleMessage(client *Client, messageType string, data map[string]any) error
}

// ConnectHandler is optionally implemented by a MessageHandler that wants to
// greet new clients, e.g. with the current view
type ConnectHandler interface {
	HandleConnect(client *Client)
}

// Client represents a WebSocket client
type Client struct {
	ID        string
	conn      *websocket.Conn
	send      chan *Message
	server    *Server
	mu        sync.Mutex
	closed    bool
	closeChan chan struct{}
}

// Server fans view updates out to every connected browser
type Server struct {
	clients        map[*Client]bool
	register       chan *Client
	unregister     chan *Client
	broadcast      chan *Message
	upgrader       websocket.Upgrader
	logger         *logger.Logger
	mu             sync.RWMutex
	messageHandler MessageHandler
}

// NewServer creates a new WebSocket server
func NewServer(logger *logger.Logger) *Server {
	return &Server{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *Message, 64),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // The widget may be embedded on any host page
			},
		},
		logger: logger.Named("web-socket"),
	}
}

// SetMessageHandler sets the message handler for incoming WebSocket messages
func (s *Server) SetMessageHandler(handler MessageHandler) {
	s.messageHandler = handler
}

// ClientCount returns the number of connected clients
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Run starts the WebSocket server loop and returns when ctx is done
func (s *Server) Run(ctx context.Context) {
	s.logger.Info("Starting WebSocket server")

	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			for client := range s.clients {
				delete(s.clients, client)
				client.markClosed()
			}
			s.mu.Unlock()
			s.logger.Info("WebSocket server stopped")
			return

		case client := <-s.register:
			s.mu.Lock()
			s.clients[client] = true
			clientCount := len(s.clients)
			s.mu.Unlock()
			s.logger.Debug("Client registered",
				logger.String("client_id", client.ID),
				logger.Int("client_count", clientCount))

		case client := <-s.unregister:
			s.mu.Lock()
			if _, ok := s.clients[client]; ok {
				delete(s.clients, client)
				client.markClosed()
			}
			clientCount := len(s.clients)
			s.mu.Unlock()
			s.logger.Debug("Client unregistered",
				logger.String("client_id", client.ID),
				logger.Int("client_count", clientCount))

		case message := <-s.broadcast:
			s.mu.RLock()
			clientsToRemove := make([]*Client, 0)
			for client := range s.clients {
				if !client.SendMessage(message) {
					clientsToRemove = append(clientsToRemove, client)
				}
			}
			s.mu.RUnlock()

			// Clean up failed clients
			if len(clientsToRemove) > 0 {
				s.mu.Lock()
				for _, client := range clientsToRemove {
					if _, ok := s.clients[client]; ok {
						delete(s.clients, client)
						client.markClosed()
					}
				}
				s.mu.Unlock()
			}
		}
	}
}

// HandleConnection handles a WebSocket connection
func (s *Server) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection",
			logger.Error(err),
			logger.String("remote_addr", r.RemoteAddr))
		return
	}

	client := &Client{
		ID:        uuid.NewString(),
		conn:      conn,
		send:      make(chan *Message, 256),
		server:    s,
		closeChan: make(chan struct{}),
	}

	s.logger.Info("WebSocket client connected",
		logger.String("client_id", client.ID),
		logger.String("remote_addr", r.RemoteAddr))

	s.register <- client

	if greeter, ok := s.messageHandler.(ConnectHandler); ok {
		greeter.HandleConnect(client)
	}

	go client.readPump()
	go client.writePump()
}

// Broadcast queues a message for all clients. It never blocks; when the
// queue is full the message is dropped.
func (s *Server) Broadcast(message *Message) {
	select {
	case s.broadcast <- message:
	default:
		s.logger.Warn("Broadcast queue full, dropping message",
			logger.String("message_type", message.Type))
	}
}

// readPump pumps messages from the WebSocket connection to the handler
func (c *Client) readPump() {
	defer func() {
		c.server.unregister <- c
		c.conn.Close()
	}()

	for {
		_, messageBytes, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.server.logger.Error("WebSocket read error", logger.Error(err))
			}
			return
		}

		var message Message
		if err := json.Unmarshal(messageBytes, &message); err != nil {
			c.server.logger.Error("Failed to parse WebSocket message", logger.Error(err))
			continue
		}

		c.server.logger.Debug("Received WebSocket message",
			logger.String("type", message.Type),
			logger.String("client_id", c.ID))

		if c.server.messageHandler != nil {
			if err := c.server.messageHandler.HandleMessage(c, message.Type, message.Data); err != nil {
				c.server.logger.Warn("Failed to handle WebSocket message",
					logger.Error(err),
					logger.String("type", message.Type))
			}
		}
	}
}

// writePump pumps messages from the hub to the WebSocket connection
func (c *Client) writePump() {
	defer c.conn.Close()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(message); err != nil {
				c.server.logger.Debug("Failed to write message", logger.Error(err))
				return
			}

		case <-c.closeChan:
			return
		}
	}
}

// markClosed closes the send channel once; the write pump then says goodbye
func (c *Client) markClosed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// Close closes the client connection
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	c.closed = true
	close(c.closeChan)
	c.conn.Close()
}

// SendMessage sends a message to this specific client
func (c *Client) SendMessage(message *Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	select {
	case c.send <- message:
		return true
	default:
		// Channel is full, drop message
		return false
	}
}
