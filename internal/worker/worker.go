// Package worker runs the asynq task server: post-commit event delivery,
// calendar sync and the scheduled ledger reconciliation.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"shuttle/internal/domain"
	"shuttle/internal/domain/models"
	"shuttle/internal/notify"
	"shuttle/internal/services"
	"shuttle/internal/tasks"
	"shuttle/internal/utils"
)

type TripReader interface {
	GetTrip(ctx context.Context, id int64) (models.Trip, error)
}

// Handlers executes queued tasks. A returned error makes asynq retry the task
// until its MaxRetry is spent.
type Handlers struct {
	Publisher notify.Publisher
	Calendar  *services.CalendarChain
	Trips     TripReader
	Ledger    services.LedgerService
}

type Options struct {
	Concurrency    int
	ReconcileEvery time.Duration
	Repair         bool
}

func (h Handlers) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeEventPublish, h.HandleEvent)
	mux.HandleFunc(tasks.TypeCalendarSync, h.HandleCalendarSync)
	mux.HandleFunc(tasks.TypeLedgerReconcile, h.HandleReconcile)
	return mux
}

func (h Handlers) HandleEvent(ctx context.Context, t *asynq.Task) error {
	var p tasks.EventPayload
	if err := tasks.Decode(t, &p); err != nil {
		return err
	}
	if p.RoutingKey == "" {
		return fmt.Errorf("event without routing key: %w", asynq.SkipRetry)
	}
	if h.Publisher == nil {
		return fmt.Errorf("no publisher configured: %w", asynq.SkipRetry)
	}
	if err := h.Publisher.Publish(ctx, p.RoutingKey, p.Event); err != nil {
		utils.LogWarn(p.RequestID, "worker", p.RoutingKey, "publish failed", zap.Error(err))
		return err
	}
	return nil
}

func (h Handlers) HandleCalendarSync(ctx context.Context, t *asynq.Task) error {
	var p tasks.CalendarSyncPayload
	if err := tasks.Decode(t, &p); err != nil {
		return err
	}
	if h.Calendar == nil || h.Trips == nil {
		return fmt.Errorf("calendar sync not configured: %w", asynq.SkipRetry)
	}
	trip, err := h.Trips.GetTrip(ctx, p.TripID)
	if domain.IsNotFound(err) || domain.IsValidation(err) {
		return fmt.Errorf("trip %d: %v: %w", p.TripID, err, asynq.SkipRetry)
	}
	if err != nil {
		return err
	}
	ev, err := h.Calendar.EnsureEvent(ctx, trip)
	if err != nil {
		utils.LogWarn(p.RequestID, "worker", "calendar_sync", "calendar sync failed",
			zap.Int64("trip_id", trip.ID), zap.Error(err))
		return err
	}
	utils.LogEvent(p.RequestID, "worker", "calendar_sync", "trip event recorded",
		zap.Int64("trip_id", trip.ID),
		zap.String("provider", ev.Provider),
		zap.String("external_id", ev.ExternalID),
	)
	return nil
}

func (h Handlers) HandleReconcile(ctx context.Context, t *asynq.Task) error {
	var p tasks.ReconcilePayload
	if err := tasks.Decode(t, &p); err != nil {
		return err
	}
	_, err := h.Ledger.ReconcileAndReport(ctx, p.Repair)
	return err
}

func reportFailure(ctx context.Context, t *asynq.Task, err error) {
	retried, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	fields := []zap.Field{
		zap.String("task", t.Type()),
		zap.Int("retried", retried),
		zap.Int("max_retry", maxRetry),
		zap.Error(err),
	}
	if retried >= maxRetry || errors.Is(err, asynq.SkipRetry) {
		utils.GetLogger().Error("task dropped", append(fields, zap.String("module", "WORKER"))...)
		return
	}
	utils.LogWarn("", "worker", "retry", "task failed, will retry", fields...)
}

// Run serves tasks and registers the reconcile schedule, blocking until ctx ends.
func Run(ctx context.Context, redis asynq.RedisConnOpt, opts Options, h Handlers) error {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 10
	}
	sugar := utils.GetLogger().Sugar()

	srv := asynq.NewServer(redis, asynq.Config{
		Concurrency:  concurrency,
		Queues:       map[string]int{tasks.QueueDefault: 1},
		Logger:       sugar,
		ErrorHandler: asynq.ErrorHandlerFunc(reportFailure),
	})
	if err := srv.Start(h.Mux()); err != nil {
		return fmt.Errorf("start task server: %w", err)
	}
	defer srv.Shutdown()

	if opts.ReconcileEvery > 0 {
		task, err := tasks.NewReconcileTask(opts.Repair)
		if err != nil {
			return err
		}
		scheduler := asynq.NewScheduler(redis, &asynq.SchedulerOpts{Location: time.UTC, Logger: sugar})
		if _, err := scheduler.Register("@every "+opts.ReconcileEvery.String(), task); err != nil {
			return fmt.Errorf("register reconcile schedule: %w", err)
		}
		if err := scheduler.Start(); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
		defer scheduler.Shutdown()
	}

	utils.LogEvent("", "worker", "start", "task worker running",
		zap.Int("concurrency", concurrency),
		zap.Duration("reconcile_every", opts.ReconcileEvery),
	)
	<-ctx.Done()
	return nil
}
