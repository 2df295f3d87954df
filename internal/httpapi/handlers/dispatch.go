package handlers

import (
	"net/http"

	"renderfleet/internal/dispatch"
	"renderfleet/internal/httpkit"
	"renderfleet/internal/pkg/errors"
)

type ImageJobRequest struct {
	WorkerID string `json:"worker_id"`
	// JobID is generated when empty.
	JobID  string `json:"job_id"`
	Prompt string `json:"prompt"`
}

type VideoTaskRequest struct {
	Path string `json:"path"`
	// Name defaults to the base name of Path.
	Name   string `json:"name"`
	Prompt string `json:"prompt"`
}

type VideoJobRequest struct {
	WorkerID string             `json:"worker_id"`
	JobID    string             `json:"job_id"`
	Tasks    []VideoTaskRequest `json:"tasks"`
}

// PostImageJob handles POST /jobs/image.
func (h *Handler) PostImageJob(w http.ResponseWriter, r *http.Request) error {
	var req ImageJobRequest
	if err := httpkit.DecodeJSON(r, &req); err != nil {
		return errors.Validation("invalid json body: " + err.Error())
	}

	receipt, err := h.op.DispatchImageJob(r.Context(), req.WorkerID, req.JobID, req.Prompt)
	if err != nil {
		return err
	}
	httpkit.WriteJSON(w, http.StatusCreated, map[string]any{"job": receipt})
	return nil
}

// PostVideoJob handles POST /jobs/video.
func (h *Handler) PostVideoJob(w http.ResponseWriter, r *http.Request) error {
	var req VideoJobRequest
	if err := httpkit.DecodeJSON(r, &req); err != nil {
		return errors.Validation("invalid json body: " + err.Error())
	}

	tasks := make([]dispatch.Task, 0, len(req.Tasks))
	for i, t := range req.Tasks {
		if t.Path == "" {
			return errors.ValidationField("tasks.path", "path is required").WithField("index", i)
		}
		tasks = append(tasks, dispatch.Task{SourcePath: t.Path, AssetName: t.Name, Prompt: t.Prompt})
	}

	receipt, err := h.op.DispatchVideoJob(r.Context(), req.WorkerID, req.JobID, tasks)
	if err != nil {
		return err
	}
	httpkit.WriteJSON(w, http.StatusCreated, map[string]any{"job": receipt})
	return nil
}
