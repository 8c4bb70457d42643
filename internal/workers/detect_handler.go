package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/mvetrova/trailcam/internal/common"
	"github.com/mvetrova/trailcam/internal/job"
	"github.com/mvetrova/trailcam/internal/models"
	"github.com/mvetrova/trailcam/internal/repository"
	"github.com/mvetrova/trailcam/internal/storage"
	"github.com/mvetrova/trailcam/internal/worker"
)

// detectManifest is the work description handed to the worker.
type detectManifest struct {
	Files      []string         `json:"files"`
	DBPath     string           `json:"db_path,omitempty"`
	ImageIDMap map[string]int64 `json:"image_id_map,omitempty"`
}

// detectResult is what the worker writes per processed image.
type detectResult struct {
	Boxes []struct {
		BBox          []float64 `json:"bbox"`
		Label         string    `json:"label"`
		PredConf      float64   `json:"pred_conf"`
		DetectionConf float64   `json:"detection_conf"`
		Source        string    `json:"source"`
	} `json:"boxes"`
}

type DetectHandler struct {
	repo   *repository.Repository
	store  *storage.Manager
	inv    *worker.Invoker
	sup    Supervisor
	dbPath string
}

func NewDetectHandler(repo *repository.Repository, store *storage.Manager, inv *worker.Invoker, sup Supervisor, dbPath string) *DetectHandler {
	return &DetectHandler{repo: repo, store: store, inv: inv, sup: sup, dbPath: dbPath}
}

func (h *DetectHandler) Run(ctx context.Context, j *job.Job) error {
	p, ok := j.Payload.(*job.DetectPayload)
	if !ok {
		return fmt.Errorf("unexpected payload type for detect job")
	}

	valid := make([]string, 0, len(p.SelectedPaths))
	for _, path := range p.SelectedPaths {
		if _, err := os.Stat(path); err == nil {
			valid = append(valid, path)
		} else {
			slog.Warn("selected image missing, skipping", "path", path)
		}
	}
	if len(valid) == 0 {
		return common.ValidationError{Field: "selected_paths", Message: "no valid image paths to process"}
	}

	// Matching id/path arrays let results be written back without a path
	// lookup.
	idByPath := make(map[string]int64)
	if len(p.ImageIDs) == len(p.SelectedPaths) {
		for i, path := range p.SelectedPaths {
			idByPath[path] = p.ImageIDs[i]
		}
	}

	h.sup.Progress(j, 1, "Preparing detection run...")

	manifestPath := filepath.Join(h.store.TempDir(), "detect_manifest_"+shortID(j.ID)+".json")
	manifest := detectManifest{Files: valid, DBPath: h.dbPath, ImageIDMap: idByPath}
	data, err := json.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := os.WriteFile(manifestPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	defer func() {
		if err := os.Remove(manifestPath); err != nil && !os.IsNotExist(err) {
			slog.Warn("failed to remove manifest", "path", manifestPath, "error", err)
		}
	}()

	imageOut := filepath.Join(h.store.TempDir(), "detect_images_"+shortID(j.ID))
	jsonOut := filepath.Join(h.store.TempDir(), "detect_json_"+shortID(j.ID))
	for _, dir := range []string{imageOut, jsonOut} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	proc, err := h.inv.Launch(ctx, "detection", manifestPath, imageOut, jsonOut, h.store.LogsDir())
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
			h.sup.Progress(j, percent(cur, total), fmt.Sprintf("Detecting animals (%d/%d)", cur, total))
			continue
		}
		switch {
		case strings.Contains(line, "Loading models"):
			h.sup.Progress(j, 0, "Loading detection models...")
		case strings.Contains(line, "Running MegaDetector"):
			h.sup.Progress(j, 0, "Running MegaDetector...")
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
		slog.Error("detection worker failed", "code", code, "stderr", proc.Stderr())
		return &common.WorkerExitError{Code: code}
	}

	count, err := h.recordResults(ctx, valid, idByPath, jsonOut)
	if err != nil {
		return err
	}

	h.sup.Progress(j, 100, fmt.Sprintf("Detection complete: %d detections", count))
	return h.chain(ctx, p)
}

// recordResults reads one result file per processed image and writes every
// well-formed bounding box under a fresh batch.
func (h *DetectHandler) recordResults(ctx context.Context, paths []string, idByPath map[string]int64, jsonOut string) (int, error) {
	batch, err := h.repo.CreateDetectionBatch(ctx)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, path := range paths {
		stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		resultPath := filepath.Join(jsonOut, stem+".json")
		data, err := os.ReadFile(resultPath)
		if err != nil {
			slog.Warn("missing detection result", "path", resultPath, "error", err)
			continue
		}

		var result detectResult
		if err := json.Unmarshal(data, &result); err != nil {
			slog.Warn("bad detection result", "path", resultPath, "error", err)
			continue
		}

		imageID, ok := idByPath[path]
		if !ok {
			slog.Warn("no image id for path, cannot record detections", "path", path)
			continue
		}

		for _, box := range result.Boxes {
			if len(box.BBox) != 4 {
				continue
			}
			d := &models.Detection{
				BatchID:       batch.ID,
				ImageID:       imageID,
				Label:         box.Label,
				BBox:          [4]float64{box.BBox[0], box.BBox[1], box.BBox[2], box.BBox[3]},
				PredConf:      box.PredConf,
				DetectionConf: box.DetectionConf,
				Source:        box.Source,
			}
			if err := h.repo.CreateDetection(ctx, d); err != nil {
				return count, err
			}
			count++
		}
	}
	return count, nil
}

func (h *DetectHandler) chain(ctx context.Context, p *job.DetectPayload) error {
	if !p.ChainReid || p.Species == "" || len(p.ImageIDs) == 0 {
		return nil
	}
	id, err := h.sup.Submit(ctx, job.TypeReid, &job.ReidPayload{
		ImageIDs: p.ImageIDs,
		Species:  p.Species,
	})
	if err != nil {
		return fmt.Errorf("failed to enqueue follow-up reid: %w", err)
	}
	slog.Info("chained reid job", "reid_job_id", id, "species", p.Species)
	return nil
}
