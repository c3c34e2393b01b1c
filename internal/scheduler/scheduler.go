package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// SyncJob is the work the scheduler triggers, an incremental housing sync.
type SyncJob interface {
	Run(ctx context.Context) error
}

// JobFunc adapts a plain function to the SyncJob interface.
type JobFunc func(ctx context.Context) error

func (f JobFunc) Run(ctx context.Context) error { return f(ctx) }

// Scheduler runs the housing sync once at startup and then every night at
// the configured hour.
type Scheduler struct {
	job          SyncJob
	logger       *logrus.Logger
	syncHour     int
	stopChan     chan struct{}
	wg           sync.WaitGroup
	jobMutex     sync.Mutex // Ensures sequential job execution
	isStartupRun bool       // Tracks whether we're in startup run
}

// NewScheduler creates a new scheduler
func NewScheduler(job SyncJob, syncHour int, logger *logrus.Logger) *Scheduler {
	if syncHour < 0 || syncHour > 23 {
		syncHour = 3
	}
	return &Scheduler{
		job:          job,
		logger:       logger,
		syncHour:     syncHour,
		stopChan:     make(chan struct{}),
		isStartupRun: true,
	}
}

// Start begins the scheduled tasks
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.runScheduler()
}

// Stop gracefully stops the scheduler
func (s *Scheduler) Stop() {
	close(s.stopChan)
	s.wg.Wait()
}

func (s *Scheduler) runScheduler() {
	defer s.wg.Done()

	// Run the startup sync in a separate goroutine so the ticker loop
	// starts immediately
	go func() {
		s.jobMutex.Lock()
		defer s.jobMutex.Unlock()
		s.logger.Info("Running startup sync job")
		s.runJob()
		s.isStartupRun = false
		s.logger.Info("Startup sync job completed")
	}()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case t := <-ticker.C:
			s.executeScheduledJobs(t)
		}
	}
}

func (s *Scheduler) executeScheduledJobs(t time.Time) {
	// Skip if we're still running the startup job
	if s.isStartupRun {
		s.logger.Debug("Skipping scheduled jobs while startup is in progress")
		return
	}

	s.jobMutex.Lock()
	defer s.jobMutex.Unlock()

	s.logger.WithFields(logrus.Fields{
		"hour":   t.Hour(),
		"minute": t.Minute(),
	}).Debug("Checking scheduled jobs")

	if t.Hour() == s.syncHour && t.Minute() == 0 {
		s.logger.Info("Starting scheduled housing sync")
		s.runJob()
		s.logger.Info("Completed scheduled housing sync")
	}
}

func (s *Scheduler) runJob() {
	ctx, cancel := context.WithTimeout(context.Background(), 6*time.Hour)
	defer cancel()

	if err := s.job.Run(ctx); err != nil {
		s.logger.WithError(err).Error("Sync job failed")
	}
}
