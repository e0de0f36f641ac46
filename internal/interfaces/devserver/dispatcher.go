package devserver

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/logiride/client/internal/domain/shared"
	"github.com/logiride/client/internal/infrastructure/scheduler"
)

const dispatchJobKind = "schedule_dispatch"

// dispatcher turns scheduled trips into bookings shortly before pickup and
// offers them to drivers
type dispatcher struct {
	s       *Server
	pool    *scheduler.Scheduler
	trigger *scheduler.Trigger
}

func newDispatcher(s *Server) *dispatcher {
	d := &dispatcher{s: s}
	log := s.logger.Named("dispatcher")
	d.pool = scheduler.NewScheduler(scheduler.Config{
		Workers:    s.cfg.DispatchWorkers,
		JobTimeout: 10 * time.Second,
		RetryDelay: s.cfg.DispatchInterval,
	}, d, log)
	d.trigger = scheduler.NewTrigger(scheduler.TriggerConfig{Interval: s.cfg.DispatchInterval}, d.pool, d, log).
		WithClock(func() time.Time { return s.now() })
	return d
}

// Due lists the pending schedules whose pickup falls inside the lead window
func (d *dispatcher) Due(ctx context.Context, now time.Time) ([]*scheduler.Job, error) {
	rows, err := d.s.store.Bookings.DueSchedules(ctx, now.Add(d.s.cfg.DispatchLead), 50)
	if err != nil {
		return nil, err
	}
	jobs := make([]*scheduler.Job, 0, len(rows))
	for _, r := range rows {
		jobs = append(jobs, scheduler.NewJob(r.ID, dispatchJobKind, d.s.cfg.DispatchRetries))
	}
	return jobs, nil
}

// Execute books one schedule and offers it
func (d *dispatcher) Execute(ctx context.Context, job *scheduler.Job) error {
	b, err := d.s.store.Bookings.DispatchSchedule(ctx, job.ID)
	if errors.Is(err, shared.ErrInvalidState) || errors.Is(err, shared.ErrNotFound) {
		d.s.logger.Debug("Schedule no longer pending", zap.String("schedule_id", job.ID))
		return nil
	}
	if err != nil {
		return err
	}
	delivered := d.s.offer(ctx, b)
	d.s.logger.Info("Scheduled trip dispatched",
		zap.String("schedule_id", job.ID),
		zap.String("booking_id", b.ID),
		zap.Int("delivered", delivered),
	)
	return nil
}

func (d *dispatcher) start(ctx context.Context) error {
	if err := d.pool.Start(ctx); err != nil {
		return err
	}
	if err := d.trigger.Start(ctx); err != nil {
		_ = d.pool.Stop(ctx)
		return err
	}
	return nil
}

func (d *dispatcher) stop(ctx context.Context) error {
	return errors.Join(d.trigger.Stop(ctx), d.pool.Stop(ctx))
}

// Dispatch starts turning due schedules into bookings until Shutdown. It is a
// no-op when DispatchInterval is not positive.
func (s *Server) Dispatch(ctx context.Context) error {
	if s.cfg.DispatchInterval <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dispatcher != nil {
		return nil
	}
	d := newDispatcher(s)
	if err := d.start(ctx); err != nil {
		return err
	}
	s.dispatcher = d
	return nil
}
