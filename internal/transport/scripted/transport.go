// Package scripted provides a deterministic in-memory voice transport. Tests
// drive it step by step; the server can run it as a demo transport that
// replays a fixed script of agent events.
package scripted

import (
	"context"
	"sync"
	"time"

	"github.com/yegors/voice-agent/internal/call"
	"github.com/yegors/voice-agent/pkg/logger"
)

// Step is one scripted event played after a call starts
type Step struct {
	After time.Duration
	Event call.Event
}

// DemoScript makes the agent talk twice after the call starts
var DemoScript = []Step{
	{After: 500 * time.Millisecond, Event: call.AgentStartTalking()},
	{After: 2 * time.Second, Event: call.AgentStopTalking()},
	{After: 4 * time.Second, Event: call.AgentStartTalking()},
	{After: 6 * time.Second, Event: call.AgentStopTalking()},
}

// Option configures a Transport
type Option func(*Transport)

// WithAutoStarted emits call_started after every successful StartCall
func WithAutoStarted() Option {
	return func(t *Transport) { t.autoStarted = true }
}

// WithScript replays steps after every successful StartCall until the call stops
func WithScript(steps []Step) Option {
	return func(t *Transport) { t.script = steps }
}

// Transport implements call.Transport in memory
type Transport struct {
	logger      *logger.Logger
	autoStarted bool
	script      []Step

	mu       sync.Mutex
	handlers map[uint64]func(call.Event)
	nextID   uint64
	startErr error
	gate     chan struct{}
	tokens   []string
	stops    int
	live     int
	maxLive  int
	epoch    uint64 // bumped on every stop so running scripts end
}

// New creates a scripted transport
func New(log *logger.Logger, opts ...Option) *Transport {
	t := &Transport{
		logger:   log.Named("scripted-transport"),
		handlers: make(map[uint64]func(call.Event)),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// StartCall records the token and succeeds unless a start error was set.
// While held, it blocks until Release regardless of ctx, like a transport
// that cannot abort a handshake.
func (t *Transport) StartCall(ctx context.Context, opts call.StartOptions) error {
	t.mu.Lock()
	t.tokens = append(t.tokens, opts.AccessToken)
	gate := t.gate
	t.mu.Unlock()

	if gate != nil {
		<-gate
	}

	t.mu.Lock()
	if err := t.startErr; err != nil {
		t.mu.Unlock()
		t.logger.Debug("Start call failing as scripted", logger.Error(err))
		return err
	}
	t.live++
	if t.live > t.maxLive {
		t.maxLive = t.live
	}
	epoch := t.epoch
	t.mu.Unlock()

	if t.autoStarted {
		t.Emit(call.CallStarted())
	}
	if len(t.script) > 0 {
		go t.play(epoch)
	}
	return nil
}

// StopCall ends the live session, if any
func (t *Transport) StopCall() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stops++
	t.epoch++
	if t.live > 0 {
		t.live--
	}
}

// Subscribe registers an event handler
func (t *Transport) Subscribe(handler func(call.Event)) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	id := t.nextID
	t.handlers[id] = handler
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.handlers, id)
	}
}

// Emit delivers an event to every subscriber synchronously
func (t *Transport) Emit(ev call.Event) {
	t.mu.Lock()
	handlers := make([]func(call.Event), 0, len(t.handlers))
	for _, h := range t.handlers {
		handlers = append(handlers, h)
	}
	t.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
}

// End simulates the remote side hanging up
func (t *Transport) End() {
	t.mu.Lock()
	t.live = 0
	t.epoch++
	t.mu.Unlock()
	t.Emit(call.CallEnded())
}

// Fail emits an error event without tearing anything down itself
func (t *Transport) Fail(code, message string) {
	t.Emit(call.TransportError(code, message))
}

// SetStartError makes subsequent StartCall invocations fail with err
func (t *Transport) SetStartError(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.startErr = err
}

// Hold makes subsequent StartCall invocations block until Release
func (t *Transport) Hold() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.gate = make(chan struct{})
}

// Release unblocks every held StartCall
func (t *Transport) Release() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.gate != nil {
		close(t.gate)
		t.gate = nil
	}
}

// Tokens returns the access tokens passed to StartCall, in order
func (t *Transport) Tokens() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.tokens...)
}

// StartCount returns how many times StartCall was invoked
func (t *Transport) StartCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.tokens)
}

// StopCount returns how many times StopCall was invoked
func (t *Transport) StopCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stops
}

// Live returns the number of sessions started and not yet stopped
func (t *Transport) Live() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.live
}

// MaxLive returns the highest number of simultaneously live sessions seen
func (t *Transport) MaxLive() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.maxLive
}

func (t *Transport) play(epoch uint64) {
	var elapsed time.Duration
	for _, step := range t.script {
		time.Sleep(step.After - elapsed)
		elapsed = step.After

		t.mu.Lock()
		stale := t.epoch != epoch
		t.mu.Unlock()
		if stale {
			return
		}
		t.Emit(step.Event)
	}
}
