package widget

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"sync"

	"github.com/yegors/voice-agent/internal/call"
	"github.com/yegors/voice-agent/internal/websocket"
	"github.com/yegors/voice-agent/pkg/logger"
)

// ErrReconfigureBusy is returned when settings change while a call is being
// started
var ErrReconfigureBusy = errors.New("a call is being started, try again")

// SettingsStore persists the agent settings
type SettingsStore interface {
	SaveAgentConfig(cfg call.AgentConfig) error
}

// Broadcaster pushes messages to connected browsers without blocking
type Broadcaster interface {
	Broadcast(message *websocket.Message)
}

// SettingsCopy is the admin page text
type SettingsCopy struct {
	Title          string
	Saved          string
	AgentIDHelp    string
	BackendURLHelp string
	Submit         string
	UsageTitle     string
	Usage          string
}

var englishSettings = SettingsCopy{
	Title:          "Voice Agent Settings",
	Saved:          "Settings saved.",
	AgentIDHelp:    "Your voice agent ID",
	BackendURLHelp: "The URL of your backend service (e.g. https://your-backend.onrender.com)",
	Submit:         "Save Changes",
	UsageTitle:     "Usage",
	Usage:          "Embed the voice agent with this container:",
}

var germanSettings = SettingsCopy{
	Title:          "Voice Agent Einstellungen",
	Saved:          "Einstellungen gespeichert.",
	AgentIDHelp:    "Ihre Voice Agent ID",
	BackendURLHelp: "Die URL Ihres Backend-Services (z.B. https://ihre-backend-url.onrender.com)",
	Submit:         "Änderungen speichern",
	UsageTitle:     "Verwendung",
	Usage:          "Fügen Sie den Voice Agent mit diesem Container ein:",
}

// HostOptions configure a Host
type HostOptions struct {
	ContainerID string
	Locale      string
	Title       string
}

// Host owns the mounted widget. Agent settings are fixed per controller, so
// saving new settings stops any call and mounts a fresh widget.
type Host struct {
	opts     HostOptions
	deps     Deps
	settings SettingsStore
	hub      Broadcaster
	base     *logger.Logger
	logger   *logger.Logger
	ctx      context.Context
	cancel   context.CancelFunc

	// attempts is read-locked for the duration of every toggle so that
	// Reconfigure never swaps the widget under an unresolved start
	attempts sync.RWMutex

	mu      sync.RWMutex
	current *Widget

	// owner is the browser client whose toggle started the active call.
	// Empty when the call was started over the REST API.
	ownerMu sync.Mutex
	owner   string
}

// NewHost mounts the initial widget. Views are broadcast through hub.
func NewHost(opts HostOptions, cfg call.AgentConfig, deps Deps, settings SettingsStore, hub Broadcaster, log *logger.Logger) *Host {
	if opts.Title == "" {
		opts.Title = "Voice Agent"
	}
	if deps.Messages == (call.Messages{}) {
		deps.Messages = call.MessagesFor(opts.Locale)
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &Host{
		opts:     opts,
		settings: settings,
		hub:      hub,
		base:     log,
		logger:   log.Named("widget-host"),
		ctx:      ctx,
		cancel:   cancel,
	}
	deps.Renderer = call.RendererFunc(h.broadcast)
	h.deps = deps
	h.current = Mount(opts.ContainerID, cfg, deps, log)
	return h
}

func (h *Host) broadcast(v call.View) {
	if h.hub == nil {
		return
	}
	h.hub.Broadcast(viewMessage(v))
}

func viewMessage(v call.View) *websocket.Message {
	return &websocket.Message{
		Type: websocket.MessageTypeView,
		Data: map[string]any{
			"icon":        v.Icon,
			"status_kind": v.StatusKind,
			"status":      v.Status,
			"active":      v.Active,
			"error_kind":  v.ErrorKind,
			"interactive": v.Interactive,
		},
	}
}

// Widget returns the currently mounted widget
func (h *Host) Widget() *Widget {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// Toggle clicks the call button of the current widget
func (h *Host) Toggle(ctx context.Context) error {
	return h.toggleFrom(ctx, "")
}

func (h *Host) toggleFrom(ctx context.Context, clientID string) error {
	h.attempts.RLock()
	defer h.attempts.RUnlock()

	h.ownerMu.Lock()
	h.owner = ""
	h.ownerMu.Unlock()

	w := h.Widget()
	err := w.Toggle(ctx)
	if err == nil && w.Session().Active {
		h.ownerMu.Lock()
		h.owner = clientID
		h.ownerMu.Unlock()
	}
	return err
}

// leave stops the active call if clientID started it. Other tabs showing
// the same call keep it.
func (h *Host) leave(clientID string) {
	h.ownerMu.Lock()
	owned := h.owner != "" && h.owner == clientID
	if owned {
		h.owner = ""
	}
	h.ownerMu.Unlock()

	if !owned || !h.Widget().Session().Active {
		h.logger.Debug("Ignoring leave from a client that did not start the call",
			logger.String("client_id", clientID))
		return
	}
	h.logger.Info("Client that started the call left, stopping it",
		logger.String("client_id", clientID))
	h.Stop()
}

// Stop ends the active call of the current widget
func (h *Host) Stop() {
	h.Widget().Stop()
}

// Reconfigure saves cfg and remounts the widget. It refuses while a start
// attempt is unresolved.
func (h *Host) Reconfigure(cfg call.AgentConfig) error {
	if !h.attempts.TryLock() {
		return ErrReconfigureBusy
	}
	defer h.attempts.Unlock()

	if h.settings != nil {
		if err := h.settings.SaveAgentConfig(cfg); err != nil {
			return fmt.Errorf("failed to save settings: %w", err)
		}
	}

	h.mu.Lock()
	h.current.Close()
	h.current = Mount(h.opts.ContainerID, cfg, h.deps, h.base)
	h.mu.Unlock()

	h.logger.Info("Voice agent reconfigured",
		logger.String("agent_id", cfg.AgentID),
		logger.Bool("configured", cfg.Configured()))
	return nil
}

// Page renders the host page with the widget, or the configuration notice
func (h *Host) Page() (template.HTML, error) {
	w := h.Widget()
	markup, err := w.Markup()
	if err != nil {
		return "", err
	}
	return h.deps.Engine.Render("page", struct {
		Locale      string
		Title       string
		ContainerID string
		Interactive bool
		Widget      template.HTML
	}{
		Locale:      h.locale(),
		Title:       h.opts.Title,
		ContainerID: w.ContainerID(),
		Interactive: w.Enabled() && w.View().Interactive,
		Widget:      markup,
	})
}

// SettingsPage renders the admin form for the current settings
func (h *Host) SettingsPage(saved bool, formErr string) (template.HTML, error) {
	copyText := englishSettings
	if h.locale() == "de" {
		copyText = germanSettings
	}
	return h.deps.Engine.Render("settings", struct {
		Locale      string
		Copy        SettingsCopy
		Config      call.AgentConfig
		ContainerID string
		Saved       bool
		Error       string
	}{
		Locale:      h.locale(),
		Copy:        copyText,
		Config:      h.Widget().Config(),
		ContainerID: h.opts.ContainerID,
		Saved:       saved,
		Error:       formErr,
	})
}

func (h *Host) locale() string {
	if h.opts.Locale == "" {
		return "en"
	}
	return h.opts.Locale
}

// HandleConnect sends the current view to a newly connected browser
func (h *Host) HandleConnect(client *websocket.Client) {
	client.SendMessage(viewMessage(h.Widget().View()))
}

// HandleMessage applies toggle, stop and leave messages from the browser.
// Toggles run in the background so the client's read loop keeps going.
func (h *Host) HandleMessage(client *websocket.Client, messageType string, data map[string]any) error {
	switch messageType {
	case websocket.MessageTypeToggle:
		go func() {
			if err := h.toggleFrom(h.ctx, client.ID); err != nil {
				h.logger.Debug("Toggle from browser did not start a call",
					logger.String("client_id", client.ID),
					logger.Error(err))
			}
		}()
		return nil
	case websocket.MessageTypeStop:
		h.Stop()
		return nil
	case websocket.MessageTypeLeave:
		h.leave(client.ID)
		return nil
	default:
		client.SendMessage(&websocket.Message{
			Type: websocket.MessageTypeError,
			Data: map[string]any{"message": "unknown message type: " + messageType},
		})
		return fmt.Errorf("unknown message type: %s", messageType)
	}
}

// Close stops any call and cancels background toggles
func (h *Host) Close() {
	h.cancel()
	h.Widget().Close()
}
