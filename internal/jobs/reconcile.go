package jobs

import (
	"errors"
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge"

	"sitepulse/internal/analytics"
	"sitepulse/internal/config"
)

// ReconcileJob rebuilds recent rollups from the raw log, repairing any cells
// whose live upsert failed after the raw event was stored.
type ReconcileJob struct {
	dbManager cartridge.DBManager
	logger    *slog.Logger
	cfg       *config.Config
	now       func() time.Time
}

func NewReconcileJob(dbManager cartridge.DBManager, logger *slog.Logger, cfg *config.Config) *ReconcileJob {
	return &ReconcileJob{
		dbManager: dbManager,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// WithClock overrides the time source.
func (j *ReconcileJob) WithClock(now func() time.Time) *ReconcileJob {
	j.now = now
	return j
}

func (j *ReconcileJob) Name() string { return "reconcile" }

func (j *ReconcileJob) Interval() time.Duration {
	return time.Duration(j.cfg.ReconcileIntervalSeconds) * time.Second
}

// Run rebuilds yesterday and today, then the referrer totals. Yesterday is
// included so late-arriving failures around midnight are still repaired.
func (j *ReconcileJob) Run() error {
	db := j.dbManager.GetConnection()
	today := j.now().UTC()

	var errs []error
	for _, day := range []time.Time{today.AddDate(0, 0, -1), today} {
		if _, err := analytics.RebuildDailyStats(db, j.logger, day); err != nil {
			errs = append(errs, err)
		}
	}
	if _, err := analytics.RebuildReferrerStats(db, j.logger); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}
