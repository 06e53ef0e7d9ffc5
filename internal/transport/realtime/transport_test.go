package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yegors/voice-agent/internal/call"
	"github.com/yegors/voice-agent/pkg/logger"
)

type audioRecorder struct {
	mu     sync.Mutex
	frames [][]byte
}

func (a *audioRecorder) WriteAudio(data []byte) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.frames = append(a.frames, data)
}

func (a *audioRecorder) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.frames)
}

// newEndpoint starts a websocket server that checks the bearer token and
// hands the connection to script
func newEndpoint(t *testing.T, script func(conn *websocket.Conn)) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer abc123" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		script(conn)
	}))
	t.Cleanup(server.Close)
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func collect(tr *Transport) <-chan call.Event {
	events := make(chan call.Event, 16)
	tr.Subscribe(func(ev call.Event) { events <- ev })
	return events
}

func next(t *testing.T, events <-chan call.Event) call.Event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return call.Event{}
	}
}

func TestStartCallDeliversLifecycleEvents(t *testing.T) {
	url := newEndpoint(t, func(conn *websocket.Conn) {
		conn.WriteJSON(Frame{Event: "call_started"})
		conn.WriteMessage(websocket.BinaryMessage, []byte{1, 2, 3})
		conn.WriteJSON(Frame{Event: "agent_start_talking"})
		conn.WriteJSON(Frame{Event: "something_new"})
		conn.WriteJSON(Frame{Event: "agent_stop_talking"})
		conn.WriteJSON(Frame{Event: "error", Error: &call.ErrorInfo{Code: "media", Message: "jitter"}})
		// Wait for the client to hang up
		conn.ReadMessage()
	})

	sink := &audioRecorder{}
	tr := NewTransport(url, time.Second, sink, logger.NewNop())
	events := collect(tr)

	require.NoError(t, tr.StartCall(context.Background(), call.StartOptions{AccessToken: "abc123"}))

	assert.Equal(t, call.EventCallStarted, next(t, events).Kind)
	assert.Equal(t, call.EventAgentStartTalking, next(t, events).Kind)
	assert.Equal(t, call.EventAgentStopTalking, next(t, events).Kind)
	errEv := next(t, events)
	require.Equal(t, call.EventError, errEv.Kind)
	assert.Equal(t, "media", errEv.Error.Code)
	assert.Equal(t, "jitter", errEv.Error.Message)
	assert.Equal(t, 1, sink.count())

	tr.StopCall()
	select {
	case ev := <-events:
		t.Fatalf("unexpected event after stop: %v", ev.Kind)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestStartCallRejectedToken(t *testing.T) {
	url := newEndpoint(t, func(conn *websocket.Conn) {})
	tr := NewTransport(url, time.Second, nil, logger.NewNop())

	err := tr.StartCall(context.Background(), call.StartOptions{AccessToken: "wrong"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")

	assert.Error(t, tr.StartCall(context.Background(), call.StartOptions{}))
}

func TestRemoteHangupEmitsSingleEnded(t *testing.T) {
	url := newEndpoint(t, func(conn *websocket.Conn) {
		conn.WriteJSON(Frame{Event: "call_started"})
		conn.WriteJSON(Frame{Event: "call_ended"})
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
	})

	tr := NewTransport(url, time.Second, nil, logger.NewNop())
	events := collect(tr)
	require.NoError(t, tr.StartCall(context.Background(), call.StartOptions{AccessToken: "abc123"}))

	assert.Equal(t, call.EventCallStarted, next(t, events).Kind)
	assert.Equal(t, call.EventCallEnded, next(t, events).Kind)
	select {
	case ev := <-events:
		t.Fatalf("unexpected event: %v", ev.Kind)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestNormalCloseWithoutEndedFrameEmitsEnded(t *testing.T) {
	url := newEndpoint(t, func(conn *websocket.Conn) {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	})

	tr := NewTransport(url, time.Second, nil, logger.NewNop())
	events := collect(tr)
	require.NoError(t, tr.StartCall(context.Background(), call.StartOptions{AccessToken: "abc123"}))

	assert.Equal(t, call.EventCallEnded, next(t, events).Kind)
}

func TestAbnormalDisconnectEmitsError(t *testing.T) {
	url := newEndpoint(t, func(conn *websocket.Conn) {
		conn.WriteJSON(Frame{Event: "call_started"})
		conn.UnderlyingConn().Close()
	})

	tr := NewTransport(url, time.Second, nil, logger.NewNop())
	events := collect(tr)
	require.NoError(t, tr.StartCall(context.Background(), call.StartOptions{AccessToken: "abc123"}))

	assert.Equal(t, call.EventCallStarted, next(t, events).Kind)
	ev := next(t, events)
	require.Equal(t, call.EventError, ev.Kind)
	assert.Equal(t, "connection_lost", ev.Error.Code)
}

func TestStopCallWhenIdleIsSafe(t *testing.T) {
	tr := NewTransport("ws://127.0.0.1:1/never", time.Second, nil, logger.NewNop())
	assert.NotPanics(t, tr.StopCall)
}

func TestUnsubscribe(t *testing.T) {
	url := newEndpoint(t, func(conn *websocket.Conn) {
		conn.WriteJSON(Frame{Event: "call_started"})
		conn.ReadMessage()
	})

	tr := NewTransport(url, time.Second, nil, logger.NewNop())
	events := make(chan call.Event, 4)
	unsubscribe := tr.Subscribe(func(ev call.Event) { events <- ev })
	unsubscribe()

	require.NoError(t, tr.StartCall(context.Background(), call.StartOptions{AccessToken: "abc123"}))
	defer tr.StopCall()

	select {
	case ev := <-events:
		t.Fatalf("unsubscribed handler got %v", ev.Kind)
	case <-time.After(100 * time.Millisecond):
	}
}
