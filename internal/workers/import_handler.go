package workers

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mvetrova/trailcam/internal/drives"
	"github.com/mvetrova/trailcam/internal/job"
	"github.com/mvetrova/trailcam/internal/preview"
	"github.com/mvetrova/trailcam/internal/repository"
	"github.com/mvetrova/trailcam/internal/storage"
)

// resourceForkPrefix marks macOS AppleDouble artifacts left on camera cards.
const resourceForkPrefix = "._"

type ImportHandler struct {
	repo       *repository.Repository
	store      *storage.Manager
	drives     drives.Classifier
	sup        Supervisor
	flushEvery int
	thumbDim   int
}

func NewImportHandler(repo *repository.Repository, store *storage.Manager, cls drives.Classifier, sup Supervisor, flushEvery, thumbDim int) *ImportHandler {
	if flushEvery <= 0 {
		flushEvery = 5
	}
	return &ImportHandler{
		repo:       repo,
		store:      store,
		drives:     cls,
		sup:        sup,
		flushEvery: flushEvery,
		thumbDim:   thumbDim,
	}
}

type importItem struct {
	path    string
	groupID int64
}

func (h *ImportHandler) Run(ctx context.Context, j *job.Job) error {
	p, ok := j.Payload.(*job.ImportPayload)
	if !ok {
		return fmt.Errorf("unexpected payload type for import job")
	}

	items, err := h.collect(ctx, j, p)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return fmt.Errorf("no importable files found (only .jpg/.jpeg are accepted)")
	}

	processed := make(map[string]bool, len(p.ProcessedPaths))
	for _, path := range p.ProcessedPaths {
		processed[path] = true
	}

	// Copied files land in a job-scoped subfolder so two imports of
	// identically named cards cannot collide.
	subdir := "import_" + shortID(j.ID)

	var imported []int64
	var importedPaths []string
	total := len(items)
	done := 0
	for _, item := range items {
		if processed[item.path] {
			done++
		}
	}
	h.sup.Progress(j, percent(done, total), fmt.Sprintf("Importing %d files...", total-done))

	sinceFlush := 0
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		if processed[item.path] {
			continue
		}

		imageID, localPath, err := h.importOne(ctx, item, subdir)
		if err != nil {
			// A single bad file never aborts the import; it stays out of
			// processed_paths and is picked up by a future resume.
			slog.Warn("skipping file", "path", item.path, "error", err)
			done++
			h.sup.Progress(j, percent(done, total), fmt.Sprintf("Skipped %s", filepath.Base(item.path)))
			continue
		}

		imported = append(imported, imageID)
		importedPaths = append(importedPaths, localPath)
		h.sup.Mutate(j, func() {
			p.ProcessedPaths = append(p.ProcessedPaths, item.path)
		})

		done++
		sinceFlush++
		h.sup.Progress(j, percent(done, total), fmt.Sprintf("Imported %s (%d/%d)", filepath.Base(item.path), done, total))
		if sinceFlush >= h.flushEvery || done == total {
			h.sup.Flush(ctx, j)
			sinceFlush = 0
		}
	}

	h.sup.Progress(j, 100, fmt.Sprintf("Imported %d files", len(imported)))

	if err := h.chain(ctx, p, imported); err != nil {
		return err
	}
	return nil
}

// importOne copies (if needed), registers and thumbnails a single file.
func (h *ImportHandler) importOne(ctx context.Context, item importItem, subdir string) (int64, string, error) {
	localPath := item.path
	external, err := h.drives.IsExternal(item.path)
	if err != nil {
		slog.Warn("drive classification failed, importing in place", "path", item.path, "error", err)
	} else if external {
		localPath, err = h.store.ImportFile(ctx, item.path, subdir)
		if err != nil {
			return 0, "", err
		}
	}

	if !preview.IsJPEG(localPath) {
		return 0, "", fmt.Errorf("content is not a JPEG")
	}

	img, err := h.repo.CreateImage(ctx, item.groupID, localPath)
	if err != nil {
		return 0, "", err
	}

	thumbPath := h.store.ThumbPath(img.ID)
	if err := preview.Generate(localPath, thumbPath, h.thumbDim); err != nil {
		slog.Warn("thumbnail generation failed", "image_id", img.ID, "error", err)
	} else if err := h.repo.UpdateImageThumb(ctx, img.ID, thumbPath); err != nil {
		slog.Warn("failed to record thumbnail", "image_id", img.ID, "error", err)
	}

	return img.ID, localPath, nil
}

// collect expands the payload's paths into per-file work items with their
// target groups. Directories get one group per top-level directory; loose
// files share a single group whose id is kept as a resumption marker.
func (h *ImportHandler) collect(ctx context.Context, j *job.Job, p *job.ImportPayload) ([]importItem, error) {
	var items []importItem
	var fileGroupID int64

	for _, path := range p.Paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		info, err := os.Stat(path)
		if err != nil {
			slog.Warn("input path missing, skipping", "path", path, "error", err)
			continue
		}

		if info.IsDir() {
			group, err := h.repo.GetOrCreateGroup(ctx, filepath.Base(path))
			if err != nil {
				return nil, err
			}
			if err := h.walkDir(ctx, path, group.ID, &items); err != nil {
				return nil, err
			}
			continue
		}

		if !acceptFile(path) {
			continue
		}
		if fileGroupID == 0 {
			id, err := h.fileGroup(ctx, j, p)
			if err != nil {
				return nil, err
			}
			fileGroupID = id
		}
		items = append(items, importItem{path: path, groupID: fileGroupID})
	}
	return items, nil
}

// fileGroup resolves the group for loose-file input, reusing the payload
// marker on a resumed attempt.
func (h *ImportHandler) fileGroup(ctx context.Context, j *job.Job, p *job.ImportPayload) (int64, error) {
	if p.GroupID != 0 {
		if _, err := h.repo.GetGroupByID(ctx, p.GroupID); err == nil {
			return p.GroupID, nil
		}
	}

	name := p.GroupName
	if name == "" {
		name = "Import " + time.Now().Format("2006-01-02 15:04")
	}
	group, err := h.repo.GetOrCreateGroup(ctx, name)
	if err != nil {
		return 0, err
	}
	h.sup.Mutate(j, func() {
		p.GroupID = group.ID
	})
	return group.ID, nil
}

func (h *ImportHandler) walkDir(ctx context.Context, dir string, groupID int64, items *[]importItem) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		slog.Warn("failed to read directory, skipping", "dir", dir, "error", err)
		return nil
	}
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		path := filepath.Join(dir, entry.Name())
		if entry.IsDir() {
			if err := h.walkDir(ctx, path, groupID, items); err != nil {
				return err
			}
			continue
		}
		if acceptFile(path) {
			*items = append(*items, importItem{path: path, groupID: groupID})
		}
	}
	return nil
}

func acceptFile(path string) bool {
	name := filepath.Base(path)
	if strings.HasPrefix(name, resourceForkPrefix) {
		return false
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg":
		return true
	}
	return false
}

// chain enqueues the requested follow-up detect job carrying the new image
// ids. A reid after-action flags the detect job to chain further.
func (h *ImportHandler) chain(ctx context.Context, p *job.ImportPayload, imported []int64) error {
	if p.AfterAction == job.AfterNone || len(imported) == 0 {
		return nil
	}

	images, err := h.repo.GetImagesByIDs(ctx, imported)
	if err != nil {
		return fmt.Errorf("failed to load imported images for %s: %w", p.AfterAction, err)
	}
	paths := make([]string, 0, len(images))
	ids := make([]int64, 0, len(images))
	for _, img := range images {
		paths = append(paths, img.Path)
		ids = append(ids, img.ID)
	}

	detect := &job.DetectPayload{
		SelectedPaths: paths,
		ImageIDs:      ids,
		ChainReid:     p.AfterAction == job.AfterReid,
		Species:       p.Species,
	}
	id, err := h.sup.Submit(ctx, job.TypeDetect, detect)
	if err != nil {
		return fmt.Errorf("failed to enqueue follow-up detection: %w", err)
	}
	slog.Info("chained detection job", "detect_job_id", id, "images", len(ids), "after_action", p.AfterAction)
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
