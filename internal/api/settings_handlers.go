package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/yegors/voice-agent/internal/call"
	"github.com/yegors/voice-agent/internal/widget"
	"github.com/yegors/voice-agent/pkg/logger"
)

// GetSettings returns the agent settings of the mounted widget
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	cfg := h.host.Widget().Config()
	WriteJSON(w, http.StatusOK, map[string]any{
		"agent_id":         cfg.AgentID,
		"backend_base_url": cfg.BackendBaseURL,
		"configured":       cfg.Configured(),
	})
}

// PutSettings saves new agent settings and remounts the widget
func (h *Handler) PutSettings(w http.ResponseWriter, r *http.Request) {
	var req call.AgentConfig
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("Failed to parse settings request", logger.Error(err))
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if status, err := h.applySettings(req); err != nil {
		http.Error(w, err.Error(), status)
		return
	}

	h.GetSettings(w, r)
}

// GetSettingsPage renders the admin form
func (h *Handler) GetSettingsPage(w http.ResponseWriter, r *http.Request) {
	h.renderSettingsPage(w, http.StatusOK, r.URL.Query().Get("saved") == "1", "")
}

// PostSettingsPage handles the admin form submission
func (h *Handler) PostSettingsPage(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderSettingsPage(w, http.StatusBadRequest, false, "Invalid form")
		return
	}

	cfg := call.AgentConfig{
		AgentID:        r.PostForm.Get("agent_id"),
		BackendBaseURL: r.PostForm.Get("backend_base_url"),
	}
	if status, err := h.applySettings(cfg); err != nil {
		h.renderSettingsPage(w, status, false, err.Error())
		return
	}

	http.Redirect(w, r, "/admin/settings?saved=1", http.StatusSeeOther)
}

func (h *Handler) applySettings(cfg call.AgentConfig) (int, error) {
	cfg.AgentID = strings.TrimSpace(cfg.AgentID)
	cfg.BackendBaseURL = strings.TrimSpace(cfg.BackendBaseURL)

	if cfg.BackendBaseURL != "" &&
		!strings.HasPrefix(cfg.BackendBaseURL, "http://") &&
		!strings.HasPrefix(cfg.BackendBaseURL, "https://") {
		return http.StatusBadRequest, errors.New("backend URL must start with http:// or https://")
	}

	if err := h.host.Reconfigure(cfg); err != nil {
		if errors.Is(err, widget.ErrReconfigureBusy) {
			return http.StatusConflict, err
		}
		h.logger.Error("Failed to apply settings", logger.Error(err))
		return http.StatusInternalServerError, errors.New("failed to save settings")
	}
	return http.StatusOK, nil
}

func (h *Handler) renderSettingsPage(w http.ResponseWriter, status int, saved bool, formErr string) {
	page, err := h.host.SettingsPage(saved, formErr)
	if err != nil {
		h.logger.Error("Failed to render settings page", logger.Error(err))
		http.Error(w, "Failed to render settings page", http.StatusInternalServerError)
		return
	}
	writeHTML(w, status, string(page))
}
