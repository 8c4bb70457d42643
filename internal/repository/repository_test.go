package repository

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvetrova/trailcam/internal/common"
	"github.com/mvetrova/trailcam/internal/database"
	"github.com/mvetrova/trailcam/internal/models"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	db, err := database.NewDB(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db)
}

func TestGetOrCreateGroup_Idempotent(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	a, err := repo.GetOrCreateGroup(ctx, "CARD_A")
	require.NoError(t, err)
	b, err := repo.GetOrCreateGroup(ctx, "CARD_A")
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID)
}

func TestGetGroup_NotFoundSentinel(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.GetGroupByName(context.Background(), "missing")
	assert.True(t, common.IsNotFound(err), "expected not-found, got %v", err)

	_, err = repo.GetGroupByID(context.Background(), 999)
	assert.True(t, common.IsNotFound(err), "expected not-found, got %v", err)
}

func TestImage_CreateAndThumbUpdate(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	group, err := repo.CreateGroup(ctx, "test")
	require.NoError(t, err)
	img, err := repo.CreateImage(ctx, group.ID, "/data/images/a.jpg")
	require.NoError(t, err)

	require.NoError(t, repo.UpdateImageThumb(ctx, img.ID, "/data/thumbs/1.jpg"))

	got, err := repo.GetImageByID(ctx, img.ID)
	require.NoError(t, err)
	assert.Equal(t, "/data/images/a.jpg", got.Path)
	assert.Equal(t, "/data/thumbs/1.jpg", got.ThumbPath)
	assert.Equal(t, group.ID, got.GroupID)
}

func TestGetImagesByIDs_EmptyInput(t *testing.T) {
	repo := newTestRepo(t)
	images, err := repo.GetImagesByIDs(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, images)
}

func TestLatestBatchDetections_PerImageLatestBatchOnly(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	group, err := repo.CreateGroup(ctx, "test")
	require.NoError(t, err)
	imgA, err := repo.CreateImage(ctx, group.ID, "/a.jpg")
	require.NoError(t, err)
	imgB, err := repo.CreateImage(ctx, group.ID, "/b.jpg")
	require.NoError(t, err)

	// Batch 1 covers both images; batch 2 re-runs image A only. Image A must
	// report batch 2 results, image B keeps its batch 1 result.
	batch1, err := repo.CreateDetectionBatch(ctx)
	require.NoError(t, err)
	batch2, err := repo.CreateDetectionBatch(ctx)
	require.NoError(t, err)

	seed := func(batchID, imageID int64, label string) {
		t.Helper()
		require.NoError(t, repo.CreateDetection(ctx, &models.Detection{
			BatchID: batchID,
			ImageID: imageID,
			Label:   label,
			BBox:    [4]float64{0, 0, 1, 1},
		}))
	}
	seed(batch1.ID, imgA.ID, "stale-deer")
	seed(batch1.ID, imgB.ID, "fox")
	seed(batch2.ID, imgA.ID, "deer")
	seed(batch2.ID, imgA.ID, "deer")

	dets, err := repo.LatestBatchDetections(ctx, []int64{imgA.ID, imgB.ID})
	require.NoError(t, err)

	byImage := make(map[int64][]models.Detection)
	for _, d := range dets {
		byImage[d.ImageID] = append(byImage[d.ImageID], d)
	}

	require.Len(t, byImage[imgA.ID], 2)
	for _, d := range byImage[imgA.ID] {
		assert.Equal(t, batch2.ID, d.BatchID, "stale batch leaked into results")
		assert.Equal(t, "deer", d.Label)
	}

	require.Len(t, byImage[imgB.ID], 1)
	assert.Equal(t, "fox", byImage[imgB.ID][0].Label)
}

func TestReid_RunIndividualsMembers(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	group, err := repo.CreateGroup(ctx, "test")
	require.NoError(t, err)
	img, err := repo.CreateImage(ctx, group.ID, "/a.jpg")
	require.NoError(t, err)
	batch, err := repo.CreateDetectionBatch(ctx)
	require.NoError(t, err)
	d := &models.Detection{BatchID: batch.ID, ImageID: img.ID, Label: "deer", BBox: [4]float64{0, 0, 1, 1}}
	require.NoError(t, repo.CreateDetection(ctx, d))

	run, err := repo.CreateReidRun(ctx, "deer")
	require.NoError(t, err)
	ind, err := repo.CreateReidIndividual(ctx, run.ID, "Individual 1")
	require.NoError(t, err)
	require.NoError(t, repo.CreateReidMember(ctx, ind.ID, d.ID))

	var n int
	err = repo.DB().Handle().QueryRow(
		`SELECT COUNT(*) FROM reid_members WHERE individual_id = ? AND detection_id = ?`,
		ind.ID, d.ID).Scan(&n)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
