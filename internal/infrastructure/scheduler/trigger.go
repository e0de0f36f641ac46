package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// JobSource lists the work that is due at a point in time
type JobSource interface {
	Due(ctx context.Context, now time.Time) ([]*Job, error)
}

// TriggerConfig holds configuration for the polling trigger
type TriggerConfig struct {
	// Interval is how often the source is polled
	Interval time.Duration
}

// Trigger polls a JobSource and submits what it returns to a Scheduler
type Trigger struct {
	config    TriggerConfig
	scheduler *Scheduler
	source    JobSource
	logger    *zap.Logger
	now       func() time.Time

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewTrigger creates a new trigger
func NewTrigger(config TriggerConfig, scheduler *Scheduler, source JobSource, logger *zap.Logger) *Trigger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Trigger{
		config:    config,
		scheduler: scheduler,
		source:    source,
		logger:    logger,
		now:       time.Now,
	}
}

// WithClock replaces the time source, for tests
func (t *Trigger) WithClock(now func() time.Time) *Trigger {
	t.now = now
	return t
}

// Start polls once right away and then every interval
func (t *Trigger) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.isRunning {
		t.mu.Unlock()
		return nil
	}
	if t.config.Interval <= 0 {
		t.mu.Unlock()
		return errors.New("scheduler: trigger interval must be positive")
	}
	t.isRunning = true
	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.mu.Unlock()

	t.wg.Add(1)
	go t.runLoop(ctx)

	t.logger.Info("Trigger started", zap.Duration("interval", t.config.Interval))
	return nil
}

// Stop stops polling
func (t *Trigger) Stop(ctx context.Context) error {
	t.mu.Lock()
	if !t.isRunning {
		t.mu.Unlock()
		return nil
	}
	t.isRunning = false
	cancel := t.cancel
	t.mu.Unlock()

	cancel()

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.logger.Info("Trigger stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *Trigger) runLoop(ctx context.Context) {
	defer t.wg.Done()

	ticker := time.NewTicker(t.config.Interval)
	defer ticker.Stop()

	t.Poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Poll(ctx)
		}
	}
}

// Poll asks the source for due jobs and submits them. It returns the number
// of jobs newly queued.
func (t *Trigger) Poll(ctx context.Context) int {
	jobs, err := t.source.Due(ctx, t.now())
	if err != nil {
		if ctx.Err() == nil {
			t.logger.Error("Listing due jobs", zap.Error(err))
		}
		return 0
	}

	submitted := 0
	for _, job := range jobs {
		err := t.scheduler.SubmitJob(job)
		switch {
		case err == nil:
			submitted++
		case errors.Is(err, ErrJobAlreadyQueued):
		case errors.Is(err, ErrJobQueueFull):
			t.logger.Warn("Job queue full, remaining jobs wait for the next poll", zap.Int("skipped", len(jobs)-submitted))
			return submitted
		default:
			t.logger.Warn("Submitting job", zap.String("job_id", job.ID), zap.Error(err))
			return submitted
		}
	}
	if submitted > 0 {
		t.logger.Info("Due jobs submitted", zap.Int("count", submitted))
	}
	return submitted
}
