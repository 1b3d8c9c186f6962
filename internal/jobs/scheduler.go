package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/karloscodes/cartridge"

	"sitepulse/internal/config"
)

// Job is a unit of background work run on a fixed interval.
type Job interface {
	Name() string
	Interval() time.Duration
	Run() error
}

// Scheduler is responsible for running background jobs
type Scheduler struct {
	logger    *slog.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	enabled   bool
	isRunning bool

	// Mutex to prevent concurrent job executions
	processingMutex sync.Mutex
	isProcessing    bool

	jobs    []Job
	tickers []*time.Ticker
	wg      sync.WaitGroup
}

// NewScheduler builds the default scheduler: the retention job and the
// rollup reconciliation job.
func NewScheduler(dbManager cartridge.DBManager, logger *slog.Logger, cfg *config.Config) (*Scheduler, error) {
	jobs := []Job{
		NewReconcileJob(dbManager, logger, cfg),
	}
	if cfg.EventRetentionDays > 0 {
		jobs = append(jobs, NewCleanupJob(dbManager, logger, cfg))
	} else {
		logger.Info("Event retention disabled; raw events are kept forever")
	}
	return NewSchedulerWithJobs(logger, jobs...), nil
}

// NewSchedulerWithJobs creates a scheduler for an explicit job list.
func NewSchedulerWithJobs(logger *slog.Logger, jobs ...Job) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		enabled: true,
		jobs:    jobs,
	}
}

// executeJobSafely runs a job only if no other job is currently executing
func (s *Scheduler) executeJobSafely(jobName string, jobFunc func() error) {
	s.processingMutex.Lock()
	if s.isProcessing {
		s.logger.Debug("Skipping job execution - previous job still running", slog.String("job", jobName))
		s.processingMutex.Unlock()
		return
	}
	s.isProcessing = true
	s.processingMutex.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic recovered in background job",
				slog.String("job", jobName),
				slog.Any("panic", r))
		}

		s.processingMutex.Lock()
		s.isProcessing = false
		s.processingMutex.Unlock()
	}()

	if err := jobFunc(); err != nil {
		s.logger.Error("Error executing job", slog.String("job", jobName), slog.Any("error", err))
	}
}

// Start begins all background jobs.
// Implements cartridge.BackgroundWorker interface.
func (s *Scheduler) Start() error {
	if !s.enabled {
		s.logger.Info("Background jobs are disabled.")
		return nil
	}

	if s.isRunning {
		s.logger.Info("Background jobs already running.")
		return nil
	}

	s.logger.Info("Starting background jobs...", slog.Int("jobs", len(s.jobs)))
	s.isRunning = true

	for _, job := range s.jobs {
		s.startJob(job)
	}

	return nil
}

func (s *Scheduler) startJob(job Job) {
	interval := job.Interval()
	if interval <= 0 {
		s.logger.Warn("Job has no interval, not scheduling", slog.String("job", job.Name()))
		return
	}

	s.logger.Info("Starting job", slog.String("job", job.Name()), slog.Duration("interval", interval))
	ticker := time.NewTicker(interval)
	s.tickers = append(s.tickers, ticker)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		s.executeJobSafely(job.Name(), job.Run)

		for {
			select {
			case <-ticker.C:
				s.executeJobSafely(job.Name(), job.Run)
			case <-s.ctx.Done():
				s.logger.Info("Job stopped", slog.String("job", job.Name()))
				return
			}
		}
	}()
}

// RunOnce executes every job a single time, in order. Used by the CLI.
func (s *Scheduler) RunOnce() {
	for _, job := range s.jobs {
		s.executeJobSafely(job.Name(), job.Run)
	}
}

// Stop halts all background jobs and waits for running ones to return.
// Implements cartridge.BackgroundWorker interface.
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping background jobs...")
	s.enabled = false

	for _, ticker := range s.tickers {
		ticker.Stop()
	}

	s.cancel()
	s.wg.Wait()
	s.isRunning = false
	s.logger.Info("Background jobs stopped")
}

// IsRunning returns whether jobs are currently running
func (s *Scheduler) IsRunning() bool {
	return s.isRunning
}
