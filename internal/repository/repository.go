package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mvetrova/trailcam/internal/common"
	"github.com/mvetrova/trailcam/internal/database"
	"github.com/mvetrova/trailcam/internal/models"
)

type Repository struct {
	db *database.DB
}

func New(db *database.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) DB() *database.DB {
	return r.db
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}

func (r *Repository) CreateGroup(ctx context.Context, name string) (*models.Group, error) {
	created := nowMillis()
	res, err := r.db.Handle().ExecContext(ctx,
		`INSERT INTO groups (name, created_at) VALUES (?, ?)`, name, created)
	if err != nil {
		return nil, fmt.Errorf("failed to create group %q: %w", name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &models.Group{ID: id, Name: name, CreatedAt: time.UnixMilli(created)}, nil
}

// GetOrCreateGroup returns the existing group with the given name or creates it.
// Import reuses this so a resumed job lands files in the same group.
func (r *Repository) GetOrCreateGroup(ctx context.Context, name string) (*models.Group, error) {
	g, err := r.GetGroupByName(ctx, name)
	if err == nil {
		return g, nil
	}
	if !common.IsNotFound(err) {
		return nil, err
	}
	return r.CreateGroup(ctx, name)
}

func (r *Repository) GetGroupByName(ctx context.Context, name string) (*models.Group, error) {
	var g models.Group
	var created int64
	err := r.db.Handle().QueryRowContext(ctx,
		`SELECT id, name, created_at FROM groups WHERE name = ?`, name).
		Scan(&g.ID, &g.Name, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrGroupNotFound
	}
	if err != nil {
		return nil, err
	}
	g.CreatedAt = time.UnixMilli(created)
	return &g, nil
}

func (r *Repository) GetGroupByID(ctx context.Context, id int64) (*models.Group, error) {
	var g models.Group
	var created int64
	err := r.db.Handle().QueryRowContext(ctx,
		`SELECT id, name, created_at FROM groups WHERE id = ?`, id).
		Scan(&g.ID, &g.Name, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrGroupNotFound
	}
	if err != nil {
		return nil, err
	}
	g.CreatedAt = time.UnixMilli(created)
	return &g, nil
}

func (r *Repository) CreateImage(ctx context.Context, groupID int64, path string) (*models.Image, error) {
	created := nowMillis()
	res, err := r.db.Handle().ExecContext(ctx,
		`INSERT INTO images (group_id, path, created_at) VALUES (?, ?, ?)`,
		groupID, path, created)
	if err != nil {
		return nil, fmt.Errorf("failed to register image %q: %w", path, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &models.Image{ID: id, GroupID: groupID, Path: path, CreatedAt: time.UnixMilli(created)}, nil
}

func (r *Repository) UpdateImageThumb(ctx context.Context, imageID int64, thumbPath string) error {
	_, err := r.db.Handle().ExecContext(ctx,
		`UPDATE images SET thumb_path = ? WHERE id = ?`, thumbPath, imageID)
	return err
}

func (r *Repository) GetImageByID(ctx context.Context, id int64) (*models.Image, error) {
	var img models.Image
	var created int64
	err := r.db.Handle().QueryRowContext(ctx,
		`SELECT id, group_id, path, thumb_path, created_at FROM images WHERE id = ?`, id).
		Scan(&img.ID, &img.GroupID, &img.Path, &img.ThumbPath, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrImageNotFound
	}
	if err != nil {
		return nil, err
	}
	img.CreatedAt = time.UnixMilli(created)
	return &img, nil
}

func (r *Repository) GetImagesByIDs(ctx context.Context, ids []int64) ([]models.Image, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(
		`SELECT id, group_id, path, thumb_path, created_at FROM images WHERE id IN (%s)`,
		placeholders(len(ids)))
	rows, err := r.db.Handle().QueryContext(ctx, query, int64Args(ids)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var images []models.Image
	for rows.Next() {
		var img models.Image
		var created int64
		if err := rows.Scan(&img.ID, &img.GroupID, &img.Path, &img.ThumbPath, &created); err != nil {
			return nil, err
		}
		img.CreatedAt = time.UnixMilli(created)
		images = append(images, img)
	}
	return images, rows.Err()
}

func (r *Repository) CreateDetectionBatch(ctx context.Context) (*models.DetectionBatch, error) {
	created := nowMillis()
	res, err := r.db.Handle().ExecContext(ctx,
		`INSERT INTO detection_batches (created_at) VALUES (?)`, created)
	if err != nil {
		return nil, fmt.Errorf("failed to create detection batch: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &models.DetectionBatch{ID: id, CreatedAt: time.UnixMilli(created)}, nil
}

func (r *Repository) CreateDetection(ctx context.Context, d *models.Detection) error {
	res, err := r.db.Handle().ExecContext(ctx,
		`INSERT INTO detections (batch_id, image_id, label, bbox_x1, bbox_y1, bbox_x2, bbox_y2, pred_conf, detection_conf, source)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.BatchID, d.ImageID, d.Label, d.BBox[0], d.BBox[1], d.BBox[2], d.BBox[3],
		d.PredConf, d.DetectionConf, d.Source)
	if err != nil {
		return fmt.Errorf("failed to create detection: %w", err)
	}
	d.ID, err = res.LastInsertId()
	return err
}

// LatestBatchDetections returns detections for the given images, restricted to
// each image's most recently created batch. Older batches for the same image
// are ignored even if present.
func (r *Repository) LatestBatchDetections(ctx context.Context, imageIDs []int64) ([]models.Detection, error) {
	if len(imageIDs) == 0 {
		return nil, nil
	}
	ph := placeholders(len(imageIDs))
	query := fmt.Sprintf(`
		SELECT d.id, d.batch_id, d.image_id, d.label,
		       d.bbox_x1, d.bbox_y1, d.bbox_x2, d.bbox_y2,
		       d.pred_conf, d.detection_conf, d.source
		FROM detections d
		JOIN (
			SELECT image_id, MAX(batch_id) AS latest_batch
			FROM detections
			WHERE image_id IN (%s)
			GROUP BY image_id
		) latest ON d.image_id = latest.image_id AND d.batch_id = latest.latest_batch
		ORDER BY d.id`, ph)

	rows, err := r.db.Handle().QueryContext(ctx, query, int64Args(imageIDs)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var dets []models.Detection
	for rows.Next() {
		var d models.Detection
		if err := rows.Scan(&d.ID, &d.BatchID, &d.ImageID, &d.Label,
			&d.BBox[0], &d.BBox[1], &d.BBox[2], &d.BBox[3],
			&d.PredConf, &d.DetectionConf, &d.Source); err != nil {
			return nil, err
		}
		dets = append(dets, d)
	}
	return dets, rows.Err()
}

func (r *Repository) CreateReidRun(ctx context.Context, species string) (*models.ReidRun, error) {
	created := nowMillis()
	res, err := r.db.Handle().ExecContext(ctx,
		`INSERT INTO reid_runs (species, created_at) VALUES (?, ?)`, species, created)
	if err != nil {
		return nil, fmt.Errorf("failed to create reid run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &models.ReidRun{ID: id, Species: species, CreatedAt: time.UnixMilli(created)}, nil
}

func (r *Repository) CreateReidIndividual(ctx context.Context, runID int64, name string) (*models.ReidIndividual, error) {
	res, err := r.db.Handle().ExecContext(ctx,
		`INSERT INTO reid_individuals (run_id, name) VALUES (?, ?)`, runID, name)
	if err != nil {
		return nil, fmt.Errorf("failed to create reid individual %q: %w", name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &models.ReidIndividual{ID: id, RunID: runID, Name: name}, nil
}

func (r *Repository) CreateReidMember(ctx context.Context, individualID, detectionID int64) error {
	_, err := r.db.Handle().ExecContext(ctx,
		`INSERT INTO reid_members (individual_id, detection_id) VALUES (?, ?)`,
		individualID, detectionID)
	if err != nil {
		return fmt.Errorf("failed to create reid member: %w", err)
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
