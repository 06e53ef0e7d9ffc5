// Package realtime implements the voice transport over a websocket. The
// access token authorizes the connection; the remote side reports call
// lifecycle events as JSON text frames:
//
//	{"event": "call_started"}
//	{"event": "agent_start_talking"}
//	{"event": "error", "error": {"code": "media_timeout", "message": "..."}}
//
// Binary frames carry media and are handed to an optional AudioSink.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/yegors/voice-agent/internal/call"
	"github.com/yegors/voice-agent/pkg/logger"
)

// Frame is a lifecycle message sent by the realtime endpoint
type Frame struct {
	Event string          `json:"event"`
	Error *call.ErrorInfo `json:"error,omitempty"`
}

// AudioSink receives media frames of the active call
type AudioSink interface {
	WriteAudio(data []byte)
}

// Transport dials one websocket per call
type Transport struct {
	url    string
	dialer *websocket.Dialer
	sink   AudioSink
	logger *logger.Logger

	mu       sync.Mutex
	current  *session
	handlers map[uint64]func(call.Event)
	nextID   uint64
}

// session is one websocket connection. closing is set before a deliberate
// close so the read loop stays quiet.
type session struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	closing atomic.Bool
	ended   atomic.Bool
}

// NewTransport creates a websocket transport for the given endpoint
func NewTransport(url string, handshakeTimeout time.Duration, sink AudioSink, log *logger.Logger) *Transport {
	return &Transport{
		url:  url,
		sink: sink,
		dialer: &websocket.Dialer{
			HandshakeTimeout: handshakeTimeout,
		},
		logger:   log.Named("realtime-transport"),
		handlers: make(map[uint64]func(call.Event)),
	}
}

// StartCall dials the endpoint with the access token and starts reading
// lifecycle frames. It returns once the handshake succeeded.
func (t *Transport) StartCall(ctx context.Context, opts call.StartOptions) error {
	if opts.AccessToken == "" {
		return fmt.Errorf("access token is required")
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+opts.AccessToken)

	t.logger.Info("Connecting to realtime endpoint", logger.String("url", t.url))

	conn, resp, err := t.dialer.DialContext(ctx, t.url, header)
	if err != nil {
		if resp != nil {
			t.logger.Error("Realtime websocket handshake failed",
				logger.Int("status_code", resp.StatusCode),
				logger.String("status", resp.Status))
			return fmt.Errorf("failed to dial realtime endpoint (status %d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("failed to dial realtime endpoint: %w", err)
	}

	s := &session{conn: conn}

	t.mu.Lock()
	previous := t.current
	t.current = s
	t.mu.Unlock()

	if previous != nil {
		t.logger.Warn("Replacing a session that was never stopped")
		previous.close()
	}

	go t.readLoop(s)

	t.logger.Info("Realtime connection established")
	return nil
}

// StopCall closes the active connection without waiting for the remote side
func (t *Transport) StopCall() {
	t.mu.Lock()
	s := t.current
	t.current = nil
	t.mu.Unlock()

	if s == nil {
		return
	}
	t.logger.Info("Stopping realtime call")
	s.closing.Store(true)
	go s.close()
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

func (t *Transport) emit(s *session, ev call.Event) {
	if s.closing.Load() {
		return
	}

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

func (t *Transport) readLoop(s *session) {
	defer t.release(s)

	for {
		messageType, data, err := s.conn.ReadMessage()
		if err != nil {
			if s.closing.Load() {
				return
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				t.logger.Info("Realtime connection closed by remote side")
				if !s.ended.Load() {
					t.emit(s, call.CallEnded())
				}
				return
			}
			if s.ended.Load() {
				return
			}
			t.logger.Error("Realtime connection lost", logger.Error(err))
			t.emit(s, call.TransportError("connection_lost", err.Error()))
			return
		}

		if messageType == websocket.BinaryMessage {
			if t.sink != nil {
				t.sink.WriteAudio(data)
			}
			continue
		}

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			t.logger.Warn("Failed to parse realtime frame", logger.Error(err))
			continue
		}

		ev, ok := toEvent(frame)
		if !ok {
			t.logger.Debug("Ignoring realtime frame", logger.String("event", frame.Event))
			continue
		}
		if ev.Kind == call.EventCallEnded {
			s.ended.Store(true)
		}
		t.emit(s, ev)
	}
}

// release forgets the session once its read loop is done
func (t *Transport) release(s *session) {
	t.mu.Lock()
	if t.current == s {
		t.current = nil
	}
	t.mu.Unlock()
	s.conn.Close()
}

func toEvent(f Frame) (call.Event, bool) {
	switch call.EventKind(f.Event) {
	case call.EventCallStarted:
		return call.CallStarted(), true
	case call.EventCallEnded:
		return call.CallEnded(), true
	case call.EventAgentStartTalking:
		return call.AgentStartTalking(), true
	case call.EventAgentStopTalking:
		return call.AgentStopTalking(), true
	case call.EventError:
		info := call.ErrorInfo{Message: "unknown transport error"}
		if f.Error != nil {
			info = *f.Error
		}
		return call.Event{Kind: call.EventError, Error: &info}, true
	default:
		return call.Event{}, false
	}
}

func (s *session) close() {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	s.conn.Close()
}
