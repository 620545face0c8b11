// Package scheduler runs background jobs on fixed intervals.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vamosnene/vamosnene/internal/debuglog"
)

// Job is one periodic task. Run receives the scheduler's context.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

type Scheduler struct {
	jobs []Job
	wg   sync.WaitGroup
}

func New() *Scheduler {
	return &Scheduler{}
}

// Add registers a job. Jobs with a non-positive interval are ignored.
func (s *Scheduler) Add(job Job) error {
	if job.Name == "" || job.Run == nil {
		return fmt.Errorf("job needs a name and a run function")
	}
	if job.Interval <= 0 {
		debuglog.WithFields(debuglog.Fields{"job": job.Name}).Info("job disabled: no interval")
		return nil
	}
	s.jobs = append(s.jobs, job)
	return nil
}

// Jobs returns the registered job names.
func (s *Scheduler) Jobs() []string {
	names := make([]string, len(s.jobs))
	for i, j := range s.jobs {
		names[i] = j.Name
	}
	return names
}

// Run starts every job, each on its own ticker after an initial run, and
// blocks until ctx is cancelled and all running jobs have returned.
func (s *Scheduler) Run(ctx context.Context) error {
	for _, job := range s.jobs {
		s.wg.Add(1)
		go s.loop(ctx, job)
	}
	<-ctx.Done()
	s.wg.Wait()
	return nil
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	defer s.wg.Done()

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	logger := debuglog.WithFields(debuglog.Fields{"job": job.Name})
	logger.Infof("scheduled every %s", job.Interval)

	runOnce(ctx, job)
	for {
		select {
		case <-ctx.Done():
			logger.Debug("scheduler stopped")
			return
		case <-ticker.C:
			runOnce(ctx, job)
		}
	}
}

func runOnce(ctx context.Context, job Job) {
	if ctx.Err() != nil {
		return
	}
	if err := job.Run(ctx); err != nil && ctx.Err() == nil {
		debuglog.WithFields(debuglog.Fields{"job": job.Name}).WithError(err).Warn("job failed")
	}
}
