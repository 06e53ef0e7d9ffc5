package call

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/yegors/voice-agent/internal/credential"
	"github.com/yegors/voice-agent/pkg/logger"
)

// AgentConfig identifies the agent and the backend issuing credentials. It is
// fixed for the lifetime of a controller.
type AgentConfig struct {
	AgentID        string `json:"agent_id"`
	BackendBaseURL string `json:"backend_base_url"`
}

// Configured reports whether both values are present
func (c AgentConfig) Configured() bool {
	return c.AgentID != "" && c.BackendBaseURL != ""
}

// Session is the authoritative call state. Active is true iff a start
// completed and no end, error or stop has been observed since.
type Session struct {
	Active    bool   `json:"active"`
	LastError *Error `json:"-"`
}

// Option configures a Controller
type Option func(*Controller)

// WithObserver registers an observer for lifecycle notifications
func WithObserver(o Observer) Option {
	return func(c *Controller) {
		if o != nil {
			c.observer = o
		}
	}
}

// WithMessages sets the user facing copy
func WithMessages(m Messages) Option {
	return func(c *Controller) { c.messages = m }
}

// WithStartTimeout bounds transport.StartCall. Zero leaves it unbounded.
func WithStartTimeout(d time.Duration) Option {
	return func(c *Controller) { c.startTimeout = d }
}

// Controller drives one call at a time through a transport and keeps the view
// in sync with the session.
//
// Every start takes a fresh generation; stops, ended events and errors bump
// the generation too, which turns any attempt still in flight into a stale one
// whose completion is discarded. A new start is refused while any attempt,
// stale or not, is still outstanding, so at most one transport session is
// ever live.
type Controller struct {
	cfg          AgentConfig
	fetcher      CredentialFetcher
	transport    Transport
	renderer     Renderer
	observer     Observer
	messages     Messages
	startTimeout time.Duration
	logger       *logger.Logger

	mu            sync.Mutex
	session       Session
	generation    uint64
	pending       uint64 // generation of the outstanding attempt, 0 when none
	cancelAttempt context.CancelFunc
	closed        bool
	unsubscribe   func()
}

// NewController creates a controller, subscribes it to the transport and
// renders the initial view
func NewController(cfg AgentConfig, fetcher CredentialFetcher, transport Transport, renderer Renderer, log *logger.Logger, opts ...Option) *Controller {
	c := &Controller{
		cfg:       cfg,
		fetcher:   fetcher,
		transport: transport,
		renderer:  renderer,
		observer:  nopObserver{},
		messages:  EnglishMessages,
		logger: log.Named("call-controller").With(
			logger.String("agent_id", cfg.AgentID)),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.unsubscribe = transport.Subscribe(c.HandleEvent)

	c.mu.Lock()
	c.renderLocked()
	c.mu.Unlock()

	if !cfg.Configured() {
		c.logger.Warn("Agent is not configured, call control disabled")
	}

	return c
}

// Config returns the agent configuration of this controller
func (c *Controller) Config() AgentConfig {
	return c.cfg
}

// Session returns a snapshot of the session
func (c *Controller) Session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// View returns the view for the current session
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

// Toggle stops an active call or starts a new one. It blocks until a start
// attempt has resolved.
func (c *Controller) Toggle(ctx context.Context) error {
	c.mu.Lock()
	if c.session.Active {
		c.stopLocked()
		c.mu.Unlock()
		return nil
	}
	attempt, err := c.beginAttemptLocked(ctx)
	c.mu.Unlock()
	if err != nil {
		return err
	}
	return c.runAttempt(attempt)
}

// Start starts a call unless one is already active. It blocks until the
// attempt has resolved.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.session.Active {
		c.mu.Unlock()
		return nil
	}
	attempt, err := c.beginAttemptLocked(ctx)
	c.mu.Unlock()
	if err != nil {
		return err
	}
	return c.runAttempt(attempt)
}

// Stop ends the active call without waiting for the transport to confirm.
// An attempt still in flight is abandoned. Stop is a no-op when idle.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case c.session.Active:
		c.stopLocked()
	case c.attemptInFlightLocked():
		c.logger.Info("Abandoning call start attempt", logger.Uint64("attempt", c.pending))
		c.invalidateLocked()
		c.session.LastError = nil
		c.renderLocked()
	default:
		c.logger.Debug("Stop ignored, no active call")
	}
}

// HandleEvent applies a transport lifecycle event
func (c *Controller) HandleEvent(ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.observer.EventReceived(ev.Kind)

	switch ev.Kind {
	case EventCallStarted:
		c.logger.Info("Call started", logger.Bool("active", c.session.Active))
		c.renderLocked()

	case EventCallEnded:
		switch {
		case c.session.Active:
			c.logger.Info("Call ended by transport")
			c.generation++
			c.session.Active = false
			c.observer.CallStopped()
			c.renderLocked()
		case c.attemptInFlightLocked():
			c.logger.Info("Call ended while a start attempt was in flight, abandoning attempt",
				logger.Uint64("attempt", c.pending))
			c.invalidateLocked()
			c.renderLocked()
		default:
			c.logger.Debug("Call ended event ignored, already idle")
		}

	case EventError:
		info := ErrorInfo{Message: "unknown transport error"}
		if ev.Error != nil {
			info = *ev.Error
		}
		c.logger.Error("Transport reported an error",
			logger.String("code", info.Code),
			logger.String("message", info.Message),
			logger.Bool("was_active", c.session.Active))

		// The transport does not necessarily tear itself down on error
		c.transport.StopCall()
		if c.session.Active {
			c.observer.CallStopped()
		}
		c.invalidateLocked()
		c.session = Session{
			LastError: &Error{Kind: KindTransportRuntimeError, Message: info.String()},
		}
		c.observer.CallFailed(KindTransportRuntimeError)
		c.renderLocked()

	case EventAgentStartTalking, EventAgentStopTalking:
		c.logger.Debug("Agent speaking state changed", logger.String("event", string(ev.Kind)))
		c.renderLocked()

	default:
		c.logger.Warn("Unknown transport event", logger.String("event", string(ev.Kind)))
	}
}

// Close stops any active call and detaches from the transport
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.session.Active {
		c.transport.StopCall()
		c.observer.CallStopped()
	}
	c.invalidateLocked()
	c.session.Active = false
	// Last view, so browsers do not keep showing a call that is gone
	c.renderLocked()
	c.closed = true
	unsubscribe := c.unsubscribe
	c.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	c.logger.Debug("Controller closed")
}

type attempt struct {
	id      uint64
	ctx     context.Context
	cancel  context.CancelFunc
	traceID string
	started time.Time
}

func (c *Controller) beginAttemptLocked(ctx context.Context) (*attempt, error) {
	if c.closed {
		return nil, ErrClosed
	}
	if c.pending != 0 {
		c.logger.Info("Start ignored, previous attempt still in flight",
			logger.Uint64("attempt", c.pending))
		return nil, ErrAttemptInFlight
	}
	if !c.cfg.Configured() {
		err := &Error{Kind: KindConfigurationMissing}
		c.session.LastError = err
		c.observer.CallFailed(err.Kind)
		c.renderLocked()
		return nil, err
	}

	c.generation++
	attemptCtx, cancel := context.WithCancel(ctx)
	a := &attempt{
		id:      c.generation,
		ctx:     attemptCtx,
		cancel:  cancel,
		traceID: uuid.NewString(),
		started: time.Now(),
	}
	c.pending = a.id
	c.cancelAttempt = cancel
	c.observer.AttemptStarted()

	c.logger.Info("Starting call",
		logger.Uint64("attempt", a.id),
		logger.String("trace_id", a.traceID))

	return a, nil
}

func (c *Controller) runAttempt(a *attempt) error {
	defer a.cancel()

	err := c.establish(a)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending == a.id {
		c.pending = 0
		c.cancelAttempt = nil
	}

	if a.id != c.generation || c.closed {
		c.observer.StaleAttemptDiscarded()
		if err == nil {
			// Started after the user or the transport already ended it
			c.transport.StopCall()
		}
		c.logger.Info("Discarding stale call start attempt",
			logger.Uint64("attempt", a.id),
			logger.String("trace_id", a.traceID),
			logger.Bool("transport_started", err == nil))
		return ErrStaleAttempt
	}

	if err != nil {
		var ce *Error
		if !errors.As(err, &ce) {
			ce = &Error{Kind: KindTransportStartFailed, Err: err}
		}
		c.logger.Error("Failed to start call",
			logger.Uint64("attempt", a.id),
			logger.String("trace_id", a.traceID),
			logger.String("kind", string(ce.Kind)),
			logger.Error(err))
		c.session = Session{LastError: ce}
		c.observer.CallFailed(ce.Kind)
		c.renderLocked()
		return ce
	}

	c.session = Session{Active: true}
	c.observer.CallStarted()
	c.logger.Info("Call active",
		logger.Uint64("attempt", a.id),
		logger.String("trace_id", a.traceID),
		logger.Duration("setup", time.Since(a.started)))
	c.renderLocked()
	return nil
}

// establish fetches a credential and hands it to the transport. It runs
// without the lock held.
func (c *Controller) establish(a *attempt) error {
	cred, err := c.fetcher.Fetch(a.ctx, c.cfg.AgentID, c.cfg.BackendBaseURL)
	if err != nil {
		ce := &Error{Kind: KindCredentialRequestFailed, Err: err}
		var statusErr *credential.StatusError
		if errors.As(err, &statusErr) {
			ce.Status = statusErr.StatusCode
		}
		return ce
	}
	if cred == nil || cred.AccessToken == "" {
		return &Error{Kind: KindCredentialMissing}
	}

	startCtx := a.ctx
	if c.startTimeout > 0 {
		var cancel context.CancelFunc
		startCtx, cancel = context.WithTimeout(a.ctx, c.startTimeout)
		defer cancel()
	}

	if err := c.transport.StartCall(startCtx, StartOptions{AccessToken: cred.AccessToken}); err != nil {
		return &Error{Kind: KindTransportStartFailed, Err: err}
	}
	return nil
}

func (c *Controller) stopLocked() {
	c.logger.Info("Stopping call")
	c.transport.StopCall()
	c.generation++
	c.session = Session{}
	c.observer.CallStopped()
	c.renderLocked()
}

func (c *Controller) attemptInFlightLocked() bool {
	return c.pending != 0 && c.pending == c.generation
}

// invalidateLocked turns any outstanding attempt into a stale one. The
// pending marker stays until that attempt returns.
func (c *Controller) invalidateLocked() {
	c.generation++
	if c.cancelAttempt != nil {
		c.cancelAttempt()
		c.cancelAttempt = nil
	}
}

func (c *Controller) viewLocked() View {
	return Render(c.session, c.cfg.Configured(), c.messages)
}

func (c *Controller) renderLocked() {
	if c.renderer == nil {
		return
	}
	c.renderer.Render(c.viewLocked())
}
