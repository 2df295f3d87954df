package handlers

import (
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"renderfleet/internal/httpkit"
)

// ListOutbox handles GET /outbox.
func (h *Handler) ListOutbox(w http.ResponseWriter, r *http.Request) error {
	jobs, err := h.op.OutboxJobs(r.Context())
	if err != nil {
		return err
	}
	httpkit.WriteJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
	return nil
}

// ListImages handles GET /outbox/{jobName}/images.
func (h *Handler) ListImages(w http.ResponseWriter, r *http.Request) error {
	jobName := chi.URLParam(r, "jobName")
	images, err := h.op.JobImages(r.Context(), jobName)
	if err != nil {
		return err
	}
	httpkit.WriteJSON(w, http.StatusOK, map[string]any{"job": jobName, "images": images})
	return nil
}

// StreamImage handles GET /outbox/{jobName}/images/{fileName}.
func (h *Handler) StreamImage(w http.ResponseWriter, r *http.Request) error {
	jobName := chi.URLParam(r, "jobName")
	fileName := chi.URLParam(r, "fileName")

	rc, contentType, size, err := h.op.OpenImage(r.Context(), jobName, fileName)
	if err != nil {
		return err
	}
	defer rc.Close()

	w.Header().Set("Content-Type", contentType)
	if size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	}
	w.Header().Set("Cache-Control", "no-store")
	if _, err := io.Copy(w, rc); err != nil {
		h.log.FromContext(r.Context()).Warn("image stream interrupted", "job", jobName, "file", fileName, "error", err)
	}
	return nil
}
