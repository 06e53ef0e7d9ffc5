package widget

import (
	"context"
	"html/template"
	"sync"
	"time"

	"github.com/yegors/voice-agent/internal/call"
	"github.com/yegors/voice-agent/pkg/logger"
)

// Deps are the collaborators a mounted widget drives
type Deps struct {
	Fetcher   call.CredentialFetcher
	Transport call.Transport
	Engine    *Engine
	// Renderer, when set, receives every view after the widget recorded it
	Renderer     call.Renderer
	Observer     call.Observer
	Messages     call.Messages
	StartTimeout time.Duration
}

// Widget is one call control mounted into a container. A widget without a
// container or transport is inert: it renders nothing and ignores clicks.
type Widget struct {
	containerID string
	cfg         call.AgentConfig
	ctrl        *call.Controller
	engine      *Engine
	messages    call.Messages
	forward     call.Renderer
	logger      *logger.Logger

	mu   sync.Mutex
	last call.View
}

type widgetData struct {
	ContainerID string
	ButtonLabel string
	View        call.View
}

// Mount creates the controller for cfg and binds it to containerID
func Mount(containerID string, cfg call.AgentConfig, deps Deps, log *logger.Logger) *Widget {
	messages := deps.Messages
	if messages == (call.Messages{}) {
		messages = call.EnglishMessages
	}

	w := &Widget{
		containerID: containerID,
		cfg:         cfg,
		engine:      deps.Engine,
		messages:    messages,
		forward:     deps.Renderer,
		logger: log.Named("widget").With(
			logger.String("container_id", containerID)),
	}

	switch {
	case containerID == "":
		w.logger.Warn("No container id given, voice agent widget disabled")
		return w
	case deps.Transport == nil:
		w.logger.Warn("Voice transport unavailable, voice agent widget disabled")
		return w
	case deps.Engine == nil:
		w.logger.Warn("No template engine, voice agent widget disabled")
		return w
	}

	opts := []call.Option{call.WithMessages(messages), call.WithStartTimeout(deps.StartTimeout)}
	if deps.Observer != nil {
		opts = append(opts, call.WithObserver(deps.Observer))
	}
	w.ctrl = call.NewController(cfg, deps.Fetcher, deps.Transport, call.RendererFunc(w.render), log, opts...)

	w.logger.Info("Voice agent widget mounted",
		logger.Bool("configured", cfg.Configured()))
	return w
}

// render is called by the controller with its lock held
func (w *Widget) render(v call.View) {
	w.mu.Lock()
	w.last = v
	w.mu.Unlock()

	if w.forward != nil {
		w.forward.Render(v)
	}
}

// Enabled reports whether the widget drives a controller
func (w *Widget) Enabled() bool {
	return w.ctrl != nil
}

// ContainerID returns the container the widget is mounted into
func (w *Widget) ContainerID() string {
	return w.containerID
}

// Config returns the agent settings the widget was mounted with
func (w *Widget) Config() call.AgentConfig {
	return w.cfg
}

// View returns the most recently rendered view
func (w *Widget) View() call.View {
	if w.ctrl == nil {
		return call.Render(call.Session{}, false, w.messages)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last
}

// Session returns the controller session; an inert widget is always idle
func (w *Widget) Session() call.Session {
	if w.ctrl == nil {
		return call.Session{}
	}
	return w.ctrl.Session()
}

// Markup renders the container with its button and status node, or the
// configuration notice when the agent is not configured
func (w *Widget) Markup() (template.HTML, error) {
	if w.ctrl == nil {
		return "", nil
	}
	return w.engine.Render("widget", widgetData{
		ContainerID: w.containerID,
		ButtonLabel: w.messages.ButtonLabel,
		View:        w.View(),
	})
}

// Toggle forwards a click to the controller
func (w *Widget) Toggle(ctx context.Context) error {
	if w.ctrl == nil {
		return nil
	}
	return w.ctrl.Toggle(ctx)
}

// Stop ends the active call, if any
func (w *Widget) Stop() {
	if w.ctrl == nil {
		return
	}
	w.ctrl.Stop()
}

// Close stops any call and detaches the controller from the transport
func (w *Widget) Close() {
	if w.ctrl == nil {
		return
	}
	w.ctrl.Close()
}
