package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mvetrova/trailcam/internal/common"
	"github.com/mvetrova/trailcam/internal/job"
	"github.com/mvetrova/trailcam/internal/repository"
	"github.com/mvetrova/trailcam/internal/scheduler"
	"github.com/mvetrova/trailcam/internal/validation"
	"github.com/mvetrova/trailcam/internal/ws"
)

type Handlers struct {
	Sched *scheduler.Scheduler
	Repo  *repository.Repository
	WS    *ws.Server
}

func (h *Handlers) Routers(r chi.Router) {
	r.Route("/api/jobs", func(r chi.Router) {
		r.Post("/", h.submitJob)
		r.Get("/", h.listJobs)
		r.Delete("/{id}", h.cancelJob)
		r.Post("/{id}/retry", h.retryJob)
	})
	r.Get("/ws", h.WS.Handle)
	r.Get("/healthz", h.Health)
	r.Get("/readyz", h.Ready)
}

type submitRequest struct {
	Type string `json:"type" validate:"required,oneof=import thumbnail detect reid"`

	// import
	Paths       []string `json:"paths,omitempty"`
	GroupName   string   `json:"group_name,omitempty"`
	AfterAction string   `json:"after_action,omitempty" validate:"omitempty,oneof=classify reid"`

	// thumbnail
	ImageID    int64  `json:"image_id,omitempty"`
	SourcePath string `json:"source_path,omitempty"`

	// detect / reid
	SelectedPaths []string `json:"selected_paths,omitempty"`
	ImageIDs      []int64  `json:"image_ids,omitempty"`
	ChainReid     bool     `json:"chain_reid,omitempty"`
	Species       string   `json:"species,omitempty"`
}

func (req *submitRequest) payload() (job.Type, job.Payload, error) {
	switch job.Type(req.Type) {
	case job.TypeImport:
		if len(req.Paths) == 0 {
			return "", nil, common.ValidationError{Field: "paths", Message: "at least one path is required"}
		}
		if req.AfterAction == job.AfterReid && req.Species == "" {
			return "", nil, common.ValidationError{Field: "species", Message: "species is required for a reid after-action"}
		}
		return job.TypeImport, &job.ImportPayload{
			Paths:       req.Paths,
			GroupName:   req.GroupName,
			AfterAction: req.AfterAction,
			Species:     req.Species,
		}, nil
	case job.TypeThumbnail:
		if req.ImageID == 0 || req.SourcePath == "" {
			return "", nil, common.ValidationError{Field: "image_id", Message: "image_id and source_path are required"}
		}
		return job.TypeThumbnail, &job.ThumbnailPayload{
			ImageID:    req.ImageID,
			SourcePath: req.SourcePath,
		}, nil
	case job.TypeDetect:
		if len(req.SelectedPaths) == 0 {
			return "", nil, common.ValidationError{Field: "selected_paths", Message: "at least one path is required"}
		}
		if req.ChainReid && req.Species == "" {
			return "", nil, common.ValidationError{Field: "species", Message: "species is required to chain reid"}
		}
		return job.TypeDetect, &job.DetectPayload{
			SelectedPaths: req.SelectedPaths,
			ImageIDs:      req.ImageIDs,
			ChainReid:     req.ChainReid,
			Species:       req.Species,
		}, nil
	case job.TypeReid:
		if len(req.ImageIDs) == 0 || req.Species == "" {
			return "", nil, common.ValidationError{Field: "image_ids", Message: "image_ids and species are required"}
		}
		return job.TypeReid, &job.ReidPayload{
			ImageIDs: req.ImageIDs,
			Species:  req.Species,
		}, nil
	}
	return "", nil, common.ErrUnknownJobType
}

func (h *Handlers) submitJob(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := validation.Struct(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	t, payload, err := req.payload()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := h.Sched.Submit(r.Context(), t, payload)
	if err != nil {
		slog.Error("submit failed", "type", t, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"id": id})
}

func (h *Handlers) listJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"jobs": h.Sched.ListAll()})
}

func (h *Handlers) cancelJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	h.Sched.Cancel(r.Context(), id)
	// Cancelling an unknown or terminal id is a silent no-op by contract.
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) retryJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	newID, err := h.Sched.Retry(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, common.ErrNotFound):
			writeError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, common.ErrNotRetryable):
			writeError(w, http.StatusConflict, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"id": newID})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
