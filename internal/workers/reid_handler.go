package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mvetrova/trailcam/internal/common"
	"github.com/mvetrova/trailcam/internal/job"
	"github.com/mvetrova/trailcam/internal/models"
	"github.com/mvetrova/trailcam/internal/repository"
	"github.com/mvetrova/trailcam/internal/storage"
	"github.com/mvetrova/trailcam/internal/worker"
)

// reidInput is the work description handed to the reid_v2 worker.
type reidInput struct {
	DBPath     string          `json:"db_path"`
	Species    string          `json:"species"`
	Detections []reidDetection `json:"detections"`
	OutputPath string          `json:"output_path"`
}

type reidDetection struct {
	DetectionID int64      `json:"detection_id"`
	ImageID     int64      `json:"image_id"`
	ImagePath   string     `json:"image_path"`
	BBox        [4]float64 `json:"bbox"`
}

type reidOutput struct {
	Individuals []struct {
		Name         string  `json:"name"`
		DetectionIDs []int64 `json:"detection_ids"`
	} `json:"individuals"`
}

type ReidHandler struct {
	repo   *repository.Repository
	store  *storage.Manager
	inv    *worker.Invoker
	sup    Supervisor
	dbPath string
}

func NewReidHandler(repo *repository.Repository, store *storage.Manager, inv *worker.Invoker, sup Supervisor, dbPath string) *ReidHandler {
	return &ReidHandler{repo: repo, store: store, inv: inv, sup: sup, dbPath: dbPath}
}

func (h *ReidHandler) Run(ctx context.Context, j *job.Job) error {
	p, ok := j.Payload.(*job.ReidPayload)
	if !ok {
		return fmt.Errorf("unexpected payload type for reid job")
	}

	h.sup.Progress(j, 1, "Collecting detections...")

	// Only each image's most recent batch counts; stale batches are ignored.
	dets, err := h.repo.LatestBatchDetections(ctx, p.ImageIDs)
	if err != nil {
		return err
	}

	matched, labels := filterSpecies(dets, p.Species)
	if len(matched) == 0 {
		return common.ValidationError{
			Field: "species",
			Message: fmt.Sprintf("no %q detections found; labels present: %s",
				p.Species, strings.Join(labels, ", ")),
		}
	}

	images, err := h.repo.GetImagesByIDs(ctx, p.ImageIDs)
	if err != nil {
		return err
	}
	pathByID := make(map[int64]string, len(images))
	for _, img := range images {
		pathByID[img.ID] = img.Path
	}

	inputPath := filepath.Join(h.store.TempDir(), "reid_input_"+shortID(j.ID)+".json")
	outputPath := filepath.Join(h.store.TempDir(), "reid_output_"+shortID(j.ID)+".json")
	defer func() {
		for _, path := range []string{inputPath, outputPath} {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				slog.Warn("failed to remove reid temp file", "path", path, "error", err)
			}
		}
	}()

	input := reidInput{
		DBPath:     h.dbPath,
		Species:    p.Species,
		OutputPath: outputPath,
	}
	for _, d := range matched {
		input.Detections = append(input.Detections, reidDetection{
			DetectionID: d.ID,
			ImageID:     d.ImageID,
			ImagePath:   pathByID[d.ImageID],
			BBox:        d.BBox,
		})
	}
	data, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("failed to encode reid input: %w", err)
	}
	if err := os.WriteFile(inputPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write reid input: %w", err)
	}

	proc, err := h.inv.Launch(ctx, "reid_v2", inputPath)
	if err != nil {
		return err
	}
	slot := h.sup.WorkerSlot()
	slot.Register(proc)
	defer slot.Clear(proc)

	scanner := proc.Lines()
	for scanner.Scan() {
		line := scanner.Text()
		if cur, total, ok := worker.ParseProgress(line); ok {
			h.sup.Progress(j, percent(cur, total), fmt.Sprintf("Matching individuals (%d/%d)", cur, total))
			continue
		}
		switch {
		case strings.Contains(line, "Loading model"):
			h.sup.Progress(j, 0, "Loading re-identification model...")
		case strings.Contains(line, "STATUS: PROCESSING"):
			h.sup.Progress(j, 0, "Processing detections...")
		}
	}

	code, waitErr := proc.Wait()
	if err := ctx.Err(); err != nil {
		return err
	}
	if waitErr != nil {
		return fmt.Errorf("worker wait failed: %w", waitErr)
	}
	if code != 0 {
		slog.Error("reid worker failed", "code", code, "stderr", proc.Stderr())
		return &common.WorkerExitError{Code: code}
	}

	count, err := h.recordResults(ctx, p.Species, outputPath)
	if err != nil {
		return err
	}

	h.sup.Progress(j, 100, fmt.Sprintf("Identified %d individuals", count))
	return nil
}

func (h *ReidHandler) recordResults(ctx context.Context, species, outputPath string) (int, error) {
	data, err := os.ReadFile(outputPath)
	if err != nil {
		return 0, fmt.Errorf("failed to read reid output: %w", err)
	}
	var out reidOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return 0, fmt.Errorf("failed to decode reid output: %w", err)
	}

	run, err := h.repo.CreateReidRun(ctx, species)
	if err != nil {
		return 0, err
	}
	for _, ind := range out.Individuals {
		created, err := h.repo.CreateReidIndividual(ctx, run.ID, ind.Name)
		if err != nil {
			return 0, err
		}
		for _, detID := range ind.DetectionIDs {
			if err := h.repo.CreateReidMember(ctx, created.ID, detID); err != nil {
				return 0, err
			}
		}
	}
	return len(out.Individuals), nil
}

// filterSpecies keeps detections whose label matches case-insensitively and
// reports the distinct labels seen, for the zero-match error message.
func filterSpecies(dets []models.Detection, species string) ([]models.Detection, []string) {
	var matched []models.Detection
	seen := make(map[string]bool)
	for _, d := range dets {
		if strings.EqualFold(d.Label, species) {
			matched = append(matched, d)
		}
		seen[d.Label] = true
	}
	labels := make([]string, 0, len(seen))
	for label := range seen {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return matched, labels
}
