// File: /jobs/cleanup_job.go
package jobs

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Task is one unit of periodic housekeeping. It returns how many items it
// removed, for logging.
type Task struct {
	Name string
	Run  func() int
}

// CleanupJob runs housekeeping tasks on a fixed interval: expiring cache
// entries, stale captchas and idle rate limiters.
type CleanupJob struct {
	tasks    []Task
	interval time.Duration
	log      *zap.Logger
	ticker   *time.Ticker
	done     chan struct{}
	once     sync.Once
}

func NewCleanupJob(interval time.Duration, log *zap.Logger, tasks ...Task) *CleanupJob {
	if interval <= 0 {
		interval = time.Minute
	}
	return &CleanupJob{
		tasks:    tasks,
		interval: interval,
		log:      log.Named("cleanup"),
		done:     make(chan struct{}),
	}
}

// Start runs the tasks once immediately and then on every tick.
func (j *CleanupJob) Start() {
	j.ticker = time.NewTicker(j.interval)
	j.log.Info("cleanup job started", zap.Duration("interval", j.interval), zap.Int("tasks", len(j.tasks)))

	go func() {
		j.RunOnce()
		for {
			select {
			case <-j.ticker.C:
				j.RunOnce()
			case <-j.done:
				j.log.Info("cleanup job stopped")
				return
			}
		}
	}()
}

// Stop ends the loop. Safe to call more than once.
func (j *CleanupJob) Stop() {
	j.once.Do(func() {
		if j.ticker != nil {
			j.ticker.Stop()
		}
		close(j.done)
	})
}

// RunOnce executes every task. A panicking task is logged and skipped.
func (j *CleanupJob) RunOnce() map[string]int {
	results := make(map[string]int, len(j.tasks))
	for _, t := range j.tasks {
		results[t.Name] = j.run(t)
	}
	return results
}

func (j *CleanupJob) run(t Task) (removed int) {
	defer func() {
		if r := recover(); r != nil {
			j.log.Error("cleanup task panicked", zap.String("task", t.Name), zap.Any("panic", r))
			removed = 0
		}
	}()
	removed = t.Run()
	if removed > 0 {
		j.log.Debug("cleanup task finished", zap.String("task", t.Name), zap.Int("removed", removed))
	}
	return removed
}
