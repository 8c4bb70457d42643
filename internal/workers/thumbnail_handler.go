package workers

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/mvetrova/trailcam/internal/job"
	"github.com/mvetrova/trailcam/internal/preview"
	"github.com/mvetrova/trailcam/internal/repository"
	"github.com/mvetrova/trailcam/internal/storage"
)

type ThumbnailHandler struct {
	repo     *repository.Repository
	store    *storage.Manager
	sup      Supervisor
	thumbDim int
}

func NewThumbnailHandler(repo *repository.Repository, store *storage.Manager, sup Supervisor, thumbDim int) *ThumbnailHandler {
	return &ThumbnailHandler{repo: repo, store: store, sup: sup, thumbDim: thumbDim}
}

func (h *ThumbnailHandler) Run(ctx context.Context, j *job.Job) error {
	p, ok := j.Payload.(*job.ThumbnailPayload)
	if !ok {
		return fmt.Errorf("unexpected payload type for thumbnail job")
	}

	h.sup.Progress(j, 10, fmt.Sprintf("Generating preview for %s", filepath.Base(p.SourcePath)))

	dest := h.store.ThumbPath(p.ImageID)
	if err := preview.Generate(p.SourcePath, dest, h.thumbDim); err != nil {
		return err
	}
	if err := h.repo.UpdateImageThumb(ctx, p.ImageID, dest); err != nil {
		return fmt.Errorf("failed to record thumbnail: %w", err)
	}

	h.sup.Progress(j, 100, "Preview generated")
	return nil
}
