package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultCleanupInterval is the default interval between sweeps of expired state.
const DefaultCleanupInterval = 10 * time.Minute

// Purger removes expired session state.
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// CleanupJob periodically purges expired pending confirmations.
type CleanupJob struct {
	purger   Purger
	interval time.Duration

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	done     chan struct{}
}

// NewCleanupJob creates a cleanup job; a non-positive interval uses the default.
func NewCleanupJob(p Purger, interval time.Duration) *CleanupJob {
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	return &CleanupJob{purger: p, interval: interval}
}

// Start runs the job in a goroutine until ctx is done or Stop is called.
func (j *CleanupJob) Start(ctx context.Context) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.running {
		return
	}
	j.running = true
	j.stopChan = make(chan struct{})
	j.done = make(chan struct{})

	go j.run(ctx)
	slog.Info("session cleanup job started", "interval", j.interval)
}

// Stop stops the job and waits for the loop to exit.
func (j *CleanupJob) Stop() {
	j.mu.Lock()
	if !j.running {
		j.mu.Unlock()
		return
	}
	close(j.stopChan)
	j.running = false
	done := j.done
	j.mu.Unlock()

	<-done
	slog.Info("session cleanup job stopped")
}

// RunOnce executes a single sweep immediately.
func (j *CleanupJob) RunOnce(ctx context.Context) (int64, error) {
	return j.purger.PurgeExpired(ctx)
}

// IsRunning reports whether the loop is active.
func (j *CleanupJob) IsRunning() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.running
}

func (j *CleanupJob) run(ctx context.Context) {
	defer close(j.done)
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-j.stopChan:
			return
		case <-ticker.C:
			if deleted, err := j.purger.PurgeExpired(ctx); err != nil {
				slog.Error("session cleanup failed", "error", err)
			} else if deleted > 0 {
				slog.Info("session cleanup completed", "deleted", deleted)
			}
		}
	}
}
