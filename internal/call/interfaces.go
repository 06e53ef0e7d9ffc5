package call

import (
	"context"

	"github.com/yegors/voice-agent/internal/credential"
)

// StartOptions are handed to the transport when a call starts
type StartOptions struct {
	AccessToken string
}

// Transport is the realtime voice engine. It owns media and call signaling;
// the controller only drives its lifecycle.
type Transport interface {
	// StartCall establishes a call with the given credential and returns once
	// the transport accepted it or failed to
	StartCall(ctx context.Context, opts StartOptions) error

	// StopCall requests teardown of the current call. It is fire-and-forget:
	// it must not deliver events synchronously, since the controller calls it
	// with its lock held, and it must be safe to call when no call is active.
	StopCall()

	// Subscribe registers a handler that receives lifecycle events in arrival
	// order. The returned function removes the handler.
	Subscribe(handler func(Event)) (unsubscribe func())
}

// CredentialFetcher obtains a short-lived access credential for one call attempt
type CredentialFetcher interface {
	Fetch(ctx context.Context, agentID, backendBaseURL string) (*credential.Credential, error)
}

// Renderer receives every view the controller produces. It is called with the
// controller lock held, so it must not block or call back into the controller.
type Renderer interface {
	Render(view View)
}

// RendererFunc adapts a function to the Renderer interface
type RendererFunc func(View)

func (f RendererFunc) Render(v View) { f(v) }

// Observer receives lifecycle notifications for metrics and diagnostics
type Observer interface {
	AttemptStarted()
	CallStarted()
	CallStopped()
	CallFailed(kind ErrorKind)
	EventReceived(kind EventKind)
	StaleAttemptDiscarded()
}

type nopObserver struct{}

func (nopObserver) AttemptStarted()         {}
func (nopObserver) CallStarted()            {}
func (nopObserver) CallStopped()            {}
func (nopObserver) CallFailed(ErrorKind)    {}
func (nopObserver) EventReceived(EventKind) {}
func (nopObserver) StaleAttemptDiscarded()  {}
