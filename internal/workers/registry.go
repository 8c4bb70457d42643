package workers

import (
	appconfig "github.com/mvetrova/trailcam/internal/config"
	"github.com/mvetrova/trailcam/internal/drives"
	"github.com/mvetrova/trailcam/internal/job"
	"github.com/mvetrova/trailcam/internal/repository"
	"github.com/mvetrova/trailcam/internal/scheduler"
	"github.com/mvetrova/trailcam/internal/storage"
	"github.com/mvetrova/trailcam/internal/worker"
)

// RegisterAll binds one handler per job type to the scheduler.
func RegisterAll(s *scheduler.Scheduler, repo *repository.Repository, store *storage.Manager, cls drives.Classifier, inv *worker.Invoker, cfg appconfig.Config) {
	dbPath := repo.DB().Path
	s.RegisterHandler(job.TypeImport, NewImportHandler(repo, store, cls, s, cfg.ImportFlushEvery, cfg.ThumbMaxDim))
	s.RegisterHandler(job.TypeThumbnail, NewThumbnailHandler(repo, store, s, cfg.ThumbMaxDim))
	s.RegisterHandler(job.TypeDetect, NewDetectHandler(repo, store, inv, s, dbPath))
	s.RegisterHandler(job.TypeReid, NewReidHandler(repo, store, inv, s, dbPath))
}
