package jobs_test

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitepulse/internal/analytics"
	"sitepulse/internal/config"
	"sitepulse/internal/events"
	"sitepulse/internal/jobs"
	"sitepulse/internal/testsupport"
)

type countingJob struct {
	name     string
	interval time.Duration
	runs     atomic.Int32
	err      error
	panics   bool
}

func (j *countingJob) Name() string            { return j.name }
func (j *countingJob) Interval() time.Duration { return j.interval }
func (j *countingJob) Run() error {
	j.runs.Add(1)
	if j.panics {
		panic("boom")
	}
	return j.err
}

func TestSchedulerRunsJobsImmediately(t *testing.T) {
	logger := testsupport.GetLogger()
	first := &countingJob{name: "first", interval: time.Hour}
	failing := &countingJob{name: "failing", interval: time.Hour, err: errors.New("nope")}

	s := jobs.NewSchedulerWithJobs(logger, first, failing)
	require.NoError(t, s.Start())
	assert.True(t, s.IsRunning())

	assert.Eventually(t, func() bool {
		return first.runs.Load() >= 1 && failing.runs.Load() >= 1
	}, 2*time.Second, 10*time.Millisecond)

	s.Stop()
	assert.False(t, s.IsRunning())
}

func TestSchedulerRecoversPanics(t *testing.T) {
	logger := testsupport.GetLogger()
	panicking := &countingJob{name: "panicking", interval: time.Hour, panics: true}
	healthy := &countingJob{name: "healthy", interval: time.Hour}

	s := jobs.NewSchedulerWithJobs(logger, panicking, healthy)
	s.RunOnce()

	assert.Equal(t, int32(1), panicking.runs.Load())
	assert.Equal(t, int32(1), healthy.runs.Load())
}

func TestSchedulerSkipsJobsWithoutInterval(t *testing.T) {
	idle := &countingJob{name: "idle"}
	s := jobs.NewSchedulerWithJobs(testsupport.GetLogger(), idle)
	require.NoError(t, s.Start())

	s.Stop()

	assert.Zero(t, idle.runs.Load())
}

func TestCleanupJob(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	testsupport.RecordPageView(t, dbManager, testsupport.PageView{SessionID: "old", PagePath: "/old", At: now.AddDate(0, 0, -40)})
	testsupport.RecordPageView(t, dbManager, testsupport.PageView{SessionID: "new", PagePath: "/new", Referrer: "https://google.com/", At: now.AddDate(0, 0, -2)})

	cfg := &config.Config{EventRetentionDays: 30}
	job := jobs.NewCleanupJob(dbManager, logger, cfg).WithClock(func() time.Time { return now }).WithBatchPause(0)
	require.NoError(t, job.Run())

	var paths []string
	require.NoError(t, db.Model(&events.PageViewEvent{}).Pluck("page_path", &paths).Error)
	assert.Equal(t, []string{"/new"}, paths)

	var dates []string
	require.NoError(t, db.Model(&analytics.DailyStat{}).Pluck("date", &dates).Error)
	assert.Equal(t, []string{"2026-05-30"}, dates)

	var referrers int64
	require.NoError(t, db.Model(&analytics.ReferrerStat{}).Count(&referrers).Error)
	assert.Equal(t, int64(1), referrers, "referrer totals are all-time")

	t.Run("zero retention keeps everything", func(t *testing.T) {
		keepAll := jobs.NewCleanupJob(dbManager, logger, &config.Config{}).WithClock(func() time.Time { return now.AddDate(5, 0, 0) })
		require.NoError(t, keepAll.Run())

		var count int64
		require.NoError(t, db.Model(&events.PageViewEvent{}).Count(&count).Error)
		assert.Equal(t, int64(1), count)
	})
}

func TestReconcileJobRepairsRollups(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	now := time.Now().UTC()

	testsupport.RecordPageView(t, dbManager, testsupport.PageView{SessionID: "a", PagePath: "/post", Referrer: "https://news.ycombinator.com/item?id=1", At: now})
	testsupport.RecordPageView(t, dbManager, testsupport.PageView{SessionID: "b", PagePath: "/post", At: now})

	// Simulate rollup writes that never happened.
	require.NoError(t, db.Exec("DELETE FROM daily_stats").Error)
	require.NoError(t, db.Exec("UPDATE referrer_stats SET total_visits = 0, unique_visitors = 0").Error)

	cfg := &config.Config{ReconcileIntervalSeconds: 60}
	job := jobs.NewReconcileJob(dbManager, logger, cfg).WithClock(func() time.Time { return now })
	assert.Equal(t, time.Minute, job.Interval())
	require.NoError(t, job.Run())

	var views int64
	require.NoError(t, db.Raw("SELECT COALESCE(SUM(page_views), 0) FROM daily_stats WHERE page_path = ?", "/post").Scan(&views).Error)
	assert.Equal(t, int64(2), views)

	var stat analytics.ReferrerStat
	require.NoError(t, db.Where("referrer_domain = ?", "news.ycombinator.com").First(&stat).Error)
	assert.Equal(t, 1, stat.TotalVisits)
}
