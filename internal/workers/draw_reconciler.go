package workers

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"

	"raffle-backend/internal/common/logger"
)

// Reconciler repairs one denomination's round state.
type Reconciler interface {
	Reconcile(ctx context.Context, den int) error
}

// DrawReconciler periodically finishes interrupted draws and rollovers.
type DrawReconciler struct {
	reconciler    Reconciler
	denominations []int
	interval      time.Duration
	sched         gocron.Scheduler
	log           zerolog.Logger
}

func NewDrawReconciler(reconciler Reconciler, denominations []int, interval time.Duration) *DrawReconciler {
	return &DrawReconciler{
		reconciler:    reconciler,
		denominations: denominations,
		interval:      interval,
		log:           logger.Component("draw_reconciler"),
	}
}

// Start schedules the reconcile job; it runs once immediately and then every interval.
func (r *DrawReconciler) Start(ctx context.Context) error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	_, err = sched.NewJob(
		gocron.DurationJob(r.interval),
		gocron.NewTask(func() { r.RunOnce(ctx) }),
		gocron.WithStartAt(gocron.WithStartImmediately()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return err
	}
	r.sched = sched
	sched.Start()
	r.log.Info().Dur("interval", r.interval).Msg("Draw reconciler started")
	return nil
}

// RunOnce reconciles every denomination. Failures are logged and do not stop the pass.
func (r *DrawReconciler) RunOnce(ctx context.Context) {
	for _, den := range r.denominations {
		if ctx.Err() != nil {
			return
		}
		if err := r.reconciler.Reconcile(ctx, den); err != nil {
			r.log.Error().Err(err).Int("denomination", den).Msg("Reconcile failed")
		}
	}
}

func (r *DrawReconciler) Stop() error {
	if r.sched == nil {
		return nil
	}
	return r.sched.Shutdown()
}
