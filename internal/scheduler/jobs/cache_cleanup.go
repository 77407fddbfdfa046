package jobs

import (
	"context"

	"github.com/meridianpe/meridian/backend/internal/cache"
	"github.com/meridianpe/meridian/backend/pkg/logger"
)

// CacheCleanupJob removes expired metrics cache rows. Lookups already filter
// on expiry, so this only reclaims storage.
type CacheCleanupJob struct {
	repo   *cache.Repository
	logger *logger.Logger
}

// NewCacheCleanupJob creates a new cache cleanup job.
func NewCacheCleanupJob(repo *cache.Repository, log *logger.Logger) *CacheCleanupJob {
	return &CacheCleanupJob{
		repo:   repo,
		logger: log,
	}
}

// Name returns the job name.
func (j *CacheCleanupJob) Name() string {
	return "cache_cleanup"
}

// Schedule returns the cron schedule (every day at 3 AM).
func (j *CacheCleanupJob) Schedule() string {
	return "0 0 3 * * *"
}

// Run deletes expired cache rows.
func (j *CacheCleanupJob) Run(ctx context.Context) error {
	j.logger.Debug("Starting scheduled cache cleanup")

	deleted, err := j.repo.DeleteExpired(ctx)
	if err != nil {
		return err
	}

	if deleted > 0 {
		j.logger.WithField("deleted", deleted).Info("Cache cleanup completed")
	}

	return nil
}
