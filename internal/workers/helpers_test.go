package workers

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/mvetrova/trailcam/internal/database"
	"github.com/mvetrova/trailcam/internal/job"
	"github.com/mvetrova/trailcam/internal/repository"
	"github.com/mvetrova/trailcam/internal/storage"
	"github.com/mvetrova/trailcam/internal/worker"
)

// fakeSupervisor records chained submissions and applies progress/mutations
// directly, standing in for the scheduler in handler tests.
type fakeSupervisor struct {
	mu        sync.Mutex
	slot      *worker.Slot
	submitted []submittedJob
	flushes   int
}

type submittedJob struct {
	t       job.Type
	payload job.Payload
}

func newFakeSupervisor() *fakeSupervisor {
	return &fakeSupervisor{slot: worker.NewSlot()}
}

func (s *fakeSupervisor) Submit(_ context.Context, t job.Type, p job.Payload) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitted = append(s.submitted, submittedJob{t: t, payload: p})
	return fmt.Sprintf("chained-%d", len(s.submitted)), nil
}

func (s *fakeSupervisor) Progress(j *job.Job, progress int, message string) {
	if progress > j.Progress {
		j.Progress = progress
	}
	if message != "" {
		j.Message = message
	}
}

func (s *fakeSupervisor) Mutate(_ *job.Job, fn func()) { fn() }

func (s *fakeSupervisor) Flush(_ context.Context, _ *job.Job) {
	s.mu.Lock()
	s.flushes++
	s.mu.Unlock()
}

func (s *fakeSupervisor) WorkerSlot() *worker.Slot { return s.slot }

func (s *fakeSupervisor) chained() []submittedJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]submittedJob(nil), s.submitted...)
}

// stubClassifier returns a fixed answer for every path.
type stubClassifier struct{ external bool }

func (c stubClassifier) IsExternal(string) (bool, error) { return c.external, nil }

type testEnv struct {
	repo  *repository.Repository
	store *storage.Manager
	sup   *fakeSupervisor
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()

	db, err := database.NewDB(context.Background(), filepath.Join(dir, "app.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store, err := storage.NewManager(filepath.Join(dir, "data"), nil)
	if err != nil {
		t.Fatalf("init storage: %v", err)
	}

	return &testEnv{
		repo:  repository.New(db),
		store: store,
		sup:   newFakeSupervisor(),
	}
}

// writeJPEG writes a real decodable JPEG so content sniffing and thumbnail
// generation both work on it.
func writeJPEG(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 30), G: uint8(y * 30), B: 90, A: 255})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()
	if err := jpeg.Encode(f, img, nil); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func countRows(t *testing.T, repo *repository.Repository, table string) int {
	t.Helper()
	var n int
	err := repo.DB().Handle().QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n)
	if err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}
