package handlers

import (
	"net/http"
	"strings"
	"time"

	"renderfleet/internal/httpkit"
	"renderfleet/internal/pkg/errors"
)

// GetFleet handles GET /fleet with the raw heartbeat contents.
func (h *Handler) GetFleet(w http.ResponseWriter, r *http.Request) error {
	status, err := h.op.FleetStatus(r.Context())
	if err != nil {
		return err
	}
	httpkit.WriteJSON(w, http.StatusOK, map[string]any{"heartbeats": status})
	return nil
}

// GetHeartbeats handles GET /fleet/heartbeats[?stale_after=30s].
func (h *Handler) GetHeartbeats(w http.ResponseWriter, r *http.Request) error {
	var staleAfter time.Duration
	if raw := strings.TrimSpace(r.URL.Query().Get("stale_after")); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 {
			return errors.ValidationField("stale_after", "stale_after must be a non-negative duration such as 30s")
		}
		staleAfter = d
	}

	hbs, err := h.op.Heartbeats(r.Context(), staleAfter)
	if err != nil {
		return err
	}
	httpkit.WriteJSON(w, http.StatusOK, map[string]any{"workers": hbs})
	return nil
}
