package jobs

import (
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge"

	"sitepulse/internal/config"
	"sitepulse/internal/events"
)

const (
	cleanupBatchSize  = 1000
	cleanupBatchPause = 100 * time.Millisecond
)

// CleanupJob prunes raw page view events and daily stats older than the
// retention period. referrer_stats is all-time and never pruned.
type CleanupJob struct {
	dbManager cartridge.DBManager
	logger    *slog.Logger
	cfg       *config.Config
	now       func() time.Time
	pause     time.Duration
}

func NewCleanupJob(dbManager cartridge.DBManager, logger *slog.Logger, cfg *config.Config) *CleanupJob {
	return &CleanupJob{
		dbManager: dbManager,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
		pause:     cleanupBatchPause,
	}
}

// WithClock overrides the time source.
func (j *CleanupJob) WithClock(now func() time.Time) *CleanupJob {
	j.now = now
	return j
}

func (j *CleanupJob) Name() string { return "cleanup" }

func (j *CleanupJob) Interval() time.Duration { return 24 * time.Hour }

// WithBatchPause sets the sleep between delete batches.
func (j *CleanupJob) WithBatchPause(d time.Duration) *CleanupJob {
	j.pause = d
	return j
}

// Run deletes expired rows in batches so writers are never blocked for long.
func (j *CleanupJob) Run() error {
	retentionDays := j.cfg.EventRetentionDays
	if retentionDays <= 0 {
		return nil
	}

	db := j.dbManager.GetConnection()
	cutoff := j.now().UTC().AddDate(0, 0, -retentionDays)

	j.logger.Info("Starting cleanup of old page view events",
		slog.Int("retention_days", retentionDays),
		slog.Time("cutoff_date", cutoff))

	var totalDeleted int64
	for {
		deleted, err := events.DeleteEventsBefore(db, cutoff, cleanupBatchSize)
		if err != nil {
			j.logger.Error("Failed to delete old page view events",
				slog.Any("error", err),
				slog.Int64("deleted_so_far", totalDeleted))
			return err
		}

		totalDeleted += deleted
		if deleted < cleanupBatchSize {
			break
		}

		time.Sleep(j.pause)
	}

	statsDeleted, err := events.DeleteDailyStatsBefore(db, cutoff.Format("2006-01-02"))
	if err != nil {
		j.logger.Error("Failed to delete old daily stats", slog.Any("error", err))
		return err
	}

	j.logger.Info("Cleaned up old analytics data",
		slog.Int64("events_deleted", totalDeleted),
		slog.Int64("daily_stats_deleted", statsDeleted),
		slog.Int("retention_days", retentionDays))

	return nil
}
