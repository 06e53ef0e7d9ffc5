package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/yegors/voice-agent/internal/config"
	"github.com/yegors/voice-agent/internal/websocket"
	"github.com/yegors/voice-agent/internal/widget"
	"github.com/yegors/voice-agent/pkg/logger"
)

// Handler contains the API handlers
type Handler struct {
	host      *widget.Host
	engine    *widget.Engine
	config    *config.Config
	logger    *logger.Logger
	wsServer  *websocket.Server
	startedAt time.Time

	// toggleWait bounds how long a toggle request waits for the start
	// attempt; zero waits for it to resolve
	toggleWait time.Duration
}

// NewHandler creates a new API handler
func NewHandler(host *widget.Host, engine *widget.Engine, config *config.Config, logger *logger.Logger, wsServer *websocket.Server) *Handler {
	return &Handler{
		host:      host,
		engine:    engine,
		config:    config,
		logger:    logger.Named("api-handler"),
		wsServer:  wsServer,
		startedAt: time.Now(),

		// Answer well before the server's write deadline cuts the response off
		toggleWait: time.Duration(config.Server.WriteTimeoutSecs) * time.Second / 2,
	}
}

// GetHealth returns the health status of the API
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	wgt := h.host.Widget()

	response := map[string]any{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"widget_enabled": wgt.Enabled(),
		"configured":     wgt.Config().Configured(),
		"call_active":    wgt.Session().Active,
	}
	if h.wsServer != nil {
		response["websocket_clients"] = h.wsServer.ClientCount()
	}
	if h.engine != nil {
		response["templates"] = h.engine.Stats()
	}

	WriteJSON(w, http.StatusOK, response)
}

// GetConfig returns the public configuration
func (h *Handler) GetConfig(w http.ResponseWriter, r *http.Request) {
	// Create a sanitized config with only public values
	publicConfig := map[string]any{
		"agent": map[string]any{
			"container_id": h.config.Agent.ContainerID,
			"locale":       h.config.Agent.Locale,
		},
		"transport": map[string]any{
			"type":                  h.config.Transport.Type,
			"start_timeout_seconds": h.config.Transport.StartTimeoutSecs,
		},
		"credential": map[string]any{
			"request_timeout_seconds": h.config.Credential.RequestTimeoutSecs,
		},
	}

	WriteJSON(w, http.StatusOK, publicConfig)
}

// GetPage renders the host page with the embedded call control
func (h *Handler) GetPage(w http.ResponseWriter, r *http.Request) {
	page, err := h.host.Page()
	if err != nil {
		h.logger.Error("Failed to render page", logger.Error(err))
		http.Error(w, "Failed to render page", http.StatusInternalServerError)
		return
	}
	writeHTML(w, http.StatusOK, string(page))
}

// HandleWebSocket handles WebSocket connections
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	h.logger.Debug("WebSocket connection request received")
	h.wsServer.HandleConnection(w, r)
}

// WriteJSON writes a JSON response
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeHTML(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(body))
}
