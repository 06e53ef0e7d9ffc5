package widget

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yegors/voice-agent/internal/call"
	"github.com/yegors/voice-agent/internal/credential"
	"github.com/yegors/voice-agent/internal/transport/scripted"
	"github.com/yegors/voice-agent/internal/websocket"
	"github.com/yegors/voice-agent/pkg/logger"
)

var configured = call.AgentConfig{AgentID: "agent_1", BackendBaseURL: "https://backend.example"}

type tokenFetcher struct{}

func (tokenFetcher) Fetch(ctx context.Context, agentID, baseURL string) (*credential.Credential, error) {
	return &credential.Credential{AccessToken: "abc123"}, nil
}

type hubRecorder struct {
	mu       sync.Mutex
	messages []*websocket.Message
}

func (h *hubRecorder) Broadcast(m *websocket.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, m)
}

func (h *hubRecorder) last() *websocket.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.messages) == 0 {
		return nil
	}
	return h.messages[len(h.messages)-1]
}

type settingsRecorder struct {
	saved []call.AgentConfig
	err   error
}

func (s *settingsRecorder) SaveAgentConfig(cfg call.AgentConfig) error {
	if s.err != nil {
		return s.err
	}
	s.saved = append(s.saved, cfg)
	return nil
}

func testEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := NewEngine(logger.NewNop())
	require.NoError(t, err)
	return engine
}

func testDeps(t *testing.T, transport call.Transport) Deps {
	return Deps{
		Fetcher:   tokenFetcher{},
		Transport: transport,
		Engine:    testEngine(t),
	}
}

func TestMountWithoutContainerIsInert(t *testing.T) {
	transport := scripted.New(logger.NewNop())
	w := Mount("", configured, testDeps(t, transport), logger.NewNop())

	assert.False(t, w.Enabled())
	markup, err := w.Markup()
	require.NoError(t, err)
	assert.Empty(t, markup)

	assert.NoError(t, w.Toggle(context.Background()))
	w.Stop()
	w.Close()
	assert.Equal(t, 0, transport.StartCount())
	assert.Equal(t, 0, transport.StopCount())
}

func TestMountWithoutTransportIsInert(t *testing.T) {
	w := Mount("voice-agent", configured, testDeps(t, nil), logger.NewNop())

	assert.False(t, w.Enabled())
	assert.NoError(t, w.Toggle(context.Background()))
	assert.False(t, w.Session().Active)
}

func TestMarkupConfigured(t *testing.T) {
	transport := scripted.New(logger.NewNop())
	w := Mount("voice-agent", configured, testDeps(t, transport), logger.NewNop())
	defer w.Close()

	markup, err := w.Markup()
	require.NoError(t, err)
	html := string(markup)

	assert.Contains(t, html, `id="voice-agent"`)
	assert.Equal(t, 1, strings.Count(html, `class="mic-button"`))
	assert.Equal(t, 1, strings.Count(html, `class="text"`))
	assert.Contains(t, html, call.EnglishMessages.Idle)
	assert.Contains(t, html, `aria-pressed="false"`)
}

func TestMarkupFollowsCall(t *testing.T) {
	transport := scripted.New(logger.NewNop())
	w := Mount("voice-agent", configured, testDeps(t, transport), logger.NewNop())
	defer w.Close()

	require.NoError(t, w.Toggle(context.Background()))
	assert.True(t, w.Session().Active)
	assert.Equal(t, []string{"abc123"}, transport.Tokens())

	markup, err := w.Markup()
	require.NoError(t, err)
	assert.Contains(t, string(markup), call.EnglishMessages.InCall)
	assert.Contains(t, string(markup), `aria-pressed="true"`)
	assert.Contains(t, string(markup), `x1="1" y1="1"`)

	w.Stop()
	assert.Equal(t, 1, transport.StopCount())
	assert.Equal(t, call.StatusIdle, w.View().StatusKind)
}

func TestMarkupNotConfigured(t *testing.T) {
	transport := scripted.New(logger.NewNop())
	deps := testDeps(t, transport)
	deps.Messages = call.GermanMessages
	w := Mount("voice-agent", call.AgentConfig{AgentID: "agent_1"}, deps, logger.NewNop())
	defer w.Close()

	markup, err := w.Markup()
	require.NoError(t, err)
	html := string(markup)
	assert.Contains(t, html, "<p>Bitte konfigurieren Sie den Voice Agent in den Einstellungen.</p>")
	assert.NotContains(t, html, "mic-button")

	require.Error(t, w.Toggle(context.Background()))
	assert.Equal(t, 0, transport.StartCount())
}

func TestMarkupEscapesStatus(t *testing.T) {
	transport := scripted.New(logger.NewNop())
	deps := testDeps(t, transport)
	deps.Messages = call.EnglishMessages
	deps.Messages.Idle = "<script>alert(1)</script>"
	w := Mount("voice-agent", configured, deps, logger.NewNop())
	defer w.Close()

	markup, err := w.Markup()
	require.NoError(t, err)
	assert.NotContains(t, string(markup), "<script>")
	assert.Contains(t, string(markup), "&lt;script&gt;")
}

func TestHostBroadcastsViews(t *testing.T) {
	transport := scripted.New(logger.NewNop())
	hub := &hubRecorder{}
	host := NewHost(HostOptions{ContainerID: "voice-agent"}, configured, testDeps(t, transport), nil, hub, logger.NewNop())
	defer host.Close()

	require.NotNil(t, hub.last())
	assert.Equal(t, call.StatusIdle, hub.last().Data["status_kind"])

	require.NoError(t, host.Toggle(context.Background()))
	assert.Equal(t, websocket.MessageTypeView, hub.last().Type)
	assert.Equal(t, call.StatusInCall, hub.last().Data["status_kind"])
	assert.Equal(t, true, hub.last().Data["active"])

	transport.Fail("media", "lost")
	assert.Equal(t, call.StatusError, hub.last().Data["status_kind"])
	assert.Equal(t, call.EnglishMessages.RuntimeError, hub.last().Data["status"])
}

func (h *Host) callOwner() string {
	h.ownerMu.Lock()
	defer h.ownerMu.Unlock()
	return h.owner
}

func TestHostLeaveStopsOnlyOwnCall(t *testing.T) {
	transport := scripted.New(logger.NewNop())
	host := NewHost(HostOptions{ContainerID: "voice-agent"}, configured, testDeps(t, transport), nil, &hubRecorder{}, logger.NewNop())
	defer host.Close()

	tabA := &websocket.Client{ID: "tab-a"}
	tabB := &websocket.Client{ID: "tab-b"}

	require.NoError(t, host.HandleMessage(tabA, websocket.MessageTypeToggle, nil))
	require.Eventually(t, func() bool { return host.callOwner() == "tab-a" }, 2*time.Second, 5*time.Millisecond)
	require.True(t, host.Widget().Session().Active)

	// Another tab closing leaves the call alone
	require.NoError(t, host.HandleMessage(tabB, websocket.MessageTypeLeave, nil))
	assert.True(t, host.Widget().Session().Active)
	assert.Equal(t, 0, transport.StopCount())

	require.NoError(t, host.HandleMessage(tabA, websocket.MessageTypeLeave, nil))
	assert.False(t, host.Widget().Session().Active)
	assert.Equal(t, 1, transport.StopCount())
}

func TestHostLeaveKeepsCallStartedOverAPI(t *testing.T) {
	transport := scripted.New(logger.NewNop())
	host := NewHost(HostOptions{ContainerID: "voice-agent"}, configured, testDeps(t, transport), nil, &hubRecorder{}, logger.NewNop())
	defer host.Close()

	require.NoError(t, host.Toggle(context.Background()))
	require.NoError(t, host.HandleMessage(&websocket.Client{ID: "tab-a"}, websocket.MessageTypeLeave, nil))
	assert.True(t, host.Widget().Session().Active)

	// An explicit stop from any tab still ends it
	require.NoError(t, host.HandleMessage(&websocket.Client{ID: "tab-a"}, websocket.MessageTypeStop, nil))
	assert.False(t, host.Widget().Session().Active)
}

func TestHostCloseBroadcastsIdleView(t *testing.T) {
	transport := scripted.New(logger.NewNop())
	hub := &hubRecorder{}
	host := NewHost(HostOptions{ContainerID: "voice-agent"}, configured, testDeps(t, transport), nil, hub, logger.NewNop())

	require.NoError(t, host.Toggle(context.Background()))
	require.Equal(t, true, hub.last().Data["active"])

	host.Close()
	assert.Equal(t, call.StatusIdle, hub.last().Data["status_kind"])
	assert.Equal(t, false, hub.last().Data["active"])
}

func TestHostReconfigureStopsCallAndRemounts(t *testing.T) {
	transport := scripted.New(logger.NewNop())
	settings := &settingsRecorder{}
	host := NewHost(HostOptions{ContainerID: "voice-agent"}, configured, testDeps(t, transport), settings, &hubRecorder{}, logger.NewNop())
	defer host.Close()

	require.NoError(t, host.Toggle(context.Background()))
	old := host.Widget()

	next := call.AgentConfig{AgentID: "agent_2", BackendBaseURL: "https://other.example"}
	require.NoError(t, host.Reconfigure(next))

	assert.Equal(t, []call.AgentConfig{next}, settings.saved)
	assert.Equal(t, 1, transport.StopCount())
	assert.Equal(t, 0, transport.Live())
	assert.NotSame(t, old, host.Widget())
	assert.Equal(t, next, host.Widget().Config())

	// Events now reach only the new controller
	transport.Emit(call.CallEnded())
	assert.False(t, host.Widget().Session().Active)
	assert.ErrorIs(t, old.Toggle(context.Background()), call.ErrClosed)
}

func TestHostReconfigureSaveFailureKeepsWidget(t *testing.T) {
	transport := scripted.New(logger.NewNop())
	settings := &settingsRecorder{err: errors.New("disk full")}
	host := NewHost(HostOptions{ContainerID: "voice-agent"}, configured, testDeps(t, transport), settings, nil, logger.NewNop())
	defer host.Close()

	before := host.Widget()
	require.Error(t, host.Reconfigure(call.AgentConfig{}))
	assert.Same(t, before, host.Widget())
}

func TestHostReconfigureRefusedDuringStart(t *testing.T) {
	transport := scripted.New(logger.NewNop())
	host := NewHost(HostOptions{ContainerID: "voice-agent"}, configured, testDeps(t, transport), &settingsRecorder{}, nil, logger.NewNop())
	defer host.Close()

	transport.Hold()
	done := make(chan error, 1)
	go func() { done <- host.Toggle(context.Background()) }()
	require.Eventually(t, func() bool { return transport.StartCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, host.Reconfigure(call.AgentConfig{}), ErrReconfigureBusy)

	transport.Release()
	require.NoError(t, <-done)
	assert.NoError(t, host.Reconfigure(call.AgentConfig{}))
	assert.Equal(t, 0, transport.Live())
}

func TestHostPages(t *testing.T) {
	transport := scripted.New(logger.NewNop())
	host := NewHost(HostOptions{ContainerID: "voice-agent", Locale: "de"}, configured, testDeps(t, transport), nil, nil, logger.NewNop())
	defer host.Close()

	page, err := host.Page()
	require.NoError(t, err)
	assert.Contains(t, string(page), `<html lang="de">`)
	assert.Contains(t, string(page), call.GermanMessages.Idle)
	assert.Contains(t, string(page), "/static/voice-agent.js")
	assert.Contains(t, string(page), `new VoiceAgent("voice-agent"`)

	settingsPage, err := host.SettingsPage(true, "")
	require.NoError(t, err)
	assert.Contains(t, string(settingsPage), "Voice Agent Einstellungen")
	assert.Contains(t, string(settingsPage), "Einstellungen gespeichert.")
	assert.Contains(t, string(settingsPage), `value="agent_1"`)

	require.NoError(t, host.Reconfigure(call.AgentConfig{}))
	page, err = host.Page()
	require.NoError(t, err)
	assert.Contains(t, string(page), call.GermanMessages.ConfigurationRequired)
	assert.NotContains(t, string(page), "/static/voice-agent.js")
}

func TestStaticAssetsEmbedded(t *testing.T) {
	for _, name := range []string{"voice-agent.js", "voice-agent.css"} {
		f, err := StaticFS().Open(name)
		require.NoError(t, err, name)
		f.Close()
	}
}
