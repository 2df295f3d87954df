package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"renderfleet/internal/fleetfs"
	"renderfleet/internal/httpkit"
	"renderfleet/internal/ledger"
	"renderfleet/internal/pkg/errors"
)

// ListDispatches handles GET /dispatches[?worker_id=&kind=&limit=].
func (h *Handler) ListDispatches(w http.ResponseWriter, r *http.Request) error {
	q := r.URL.Query()

	limit, err := parseLimit(q.Get("limit"))
	if err != nil {
		return err
	}
	kind := strings.TrimSpace(q.Get("kind"))
	if kind != "" && kind != string(fleetfs.KindImage) && kind != string(fleetfs.KindVideo) {
		return errors.ValidationField("kind", "kind must be image or video")
	}

	entries, err := h.op.History(r.Context(), ledger.Filter{
		WorkerID: strings.TrimSpace(q.Get("worker_id")),
		Kind:     kind,
		Limit:    limit,
	})
	if err != nil {
		return err
	}
	httpkit.WriteJSON(w, http.StatusOK, map[string]any{"dispatches": entries})
	return nil
}

// ListRecent handles GET /dispatches/recent[?limit=].
func (h *Handler) ListRecent(w http.ResponseWriter, r *http.Request) error {
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		return err
	}
	events, err := h.op.Recent(r.Context(), int64(ledger.ClampLimit(limit)))
	if err != nil {
		return err
	}
	httpkit.WriteJSON(w, http.StatusOK, map[string]any{"events": events})
	return nil
}

func parseLimit(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, errors.ValidationField("limit", "limit must be a positive integer")
	}
	return v, nil
}
