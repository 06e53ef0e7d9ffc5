package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/yegors/voice-agent/internal/call"
	"github.com/yegors/voice-agent/pkg/logger"
)

type callResponse struct {
	Active bool      `json:"active"`
	View   call.View `json:"view"`
	Error  string    `json:"error,omitempty"`
}

func (h *Handler) callState(err error) callResponse {
	wgt := h.host.Widget()
	resp := callResponse{
		Active: wgt.Session().Active,
		View:   wgt.View(),
	}
	if err != nil {
		resp.Error = err.Error()
	}
	return resp
}

// GetCall returns the session and the current view
func (h *Handler) GetCall(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.callState(nil))
}

// ToggleCall stops an active call or starts a new one. It waits for a start
// attempt to resolve for at most toggleWait; past that it answers 202 and the
// outcome reaches the browser over the websocket.
func (h *Handler) ToggleCall(w http.ResponseWriter, r *http.Request) {
	// The attempt belongs to the session, not to this request
	ctx := context.WithoutCancel(r.Context())

	start := time.Now()
	done := make(chan error, 1)
	go func() {
		err := h.host.Toggle(ctx)
		if err != nil {
			h.logger.Info("Toggle did not start a call",
				logger.Error(err),
				logger.Int("status", toggleStatus(err)),
				logger.Duration("elapsed", time.Since(start)))
		}
		done <- err
	}()

	var timeout <-chan time.Time
	if h.toggleWait > 0 {
		timer := time.NewTimer(h.toggleWait)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case err := <-done:
		WriteJSON(w, toggleStatus(err), h.callState(err))
	case <-timeout:
		h.logger.Debug("Call start still in progress, answering early",
			logger.Duration("waited", h.toggleWait))
		WriteJSON(w, http.StatusAccepted, h.callState(nil))
	}
}

// StopCall ends the active call; it succeeds when idle too
func (h *Handler) StopCall(w http.ResponseWriter, r *http.Request) {
	h.host.Stop()
	WriteJSON(w, http.StatusOK, h.callState(nil))
}

func toggleStatus(err error) int {
	var callErr *call.Error
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, call.ErrAttemptInFlight), errors.Is(err, call.ErrStaleAttempt):
		return http.StatusConflict
	case errors.Is(err, call.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.As(err, &callErr) && callErr.Kind == call.KindConfigurationMissing:
		return http.StatusPreconditionFailed
	case errors.As(err, &callErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
