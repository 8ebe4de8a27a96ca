package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/jgaull/fstop-notifications-twitch-chat/telemetry"
)

// Handlers holds the dependencies of the HTTP handlers.
type Handlers struct {
	status  StatusProvider
	refresh RefreshFunc
}

// HandleHealthz responds to liveness probes. The process is alive as long as it can answer.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz responds to readiness probes: the registry must be loaded and chat connected.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := []struct {
		name string
		ok   func() bool
	}{
		{"registry", h.status.RegistryLoaded},
		{"chat", h.status.ChatConnected},
	}
	for _, check := range checks {
		if !check.ok() {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":       "not_ready",
				"failed_check": check.name,
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// HandleStatus returns a JSON summary of the active snapshot and chat session.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.status.Status())
}

// HandleAdminRefresh triggers a registry reload.
func (h *Handlers) HandleAdminRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.refresh == nil {
		http.Error(w, "refresh not configured", http.StatusNotImplemented)
		return
	}
	reason := r.URL.Query().Get("reason")
	if reason == "" {
		reason = "admin"
	}
	log := telemetry.LoggerWithCorr(r.Context())
	if err := h.refresh(r.Context(), reason); err != nil {
		log.Error("admin registry refresh failed", slog.Any("err", err))
		writeJSON(w, http.StatusBadGateway, map[string]string{"status": "error", "error": err.Error()})
		return
	}
	log.Info("admin registry refresh", slog.String("reason", reason))
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "integrations": h.status.Status().Integrations})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	// Set headers before writing status code
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
