package services

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"shuttle/internal/domain/models"
	"shuttle/internal/notify"
	"shuttle/internal/tasks"
	"shuttle/internal/utils"
)

// Dispatcher runs post-commit side effects: event publishing and calendar
// sync. With a Queue the work is enqueued as asynq tasks and retried by the
// worker; without one it runs in-process. Failures are logged and never reach
// the caller.
type Dispatcher struct {
	Publisher notify.Publisher
	Calendar  *CalendarChain
	Queue     tasks.Enqueuer
	MaxRetry  int
	Timeout   time.Duration
	// Go runs fn; defaults to a new goroutine. Tests run it inline.
	Go func(fn func())
}

func (d *Dispatcher) enqueue(module, action, requestID string, build func() (*asynq.Task, error)) {
	task, err := build()
	if err != nil {
		utils.LogWarn(requestID, module, action, "build task failed", zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	info, err := d.Queue.EnqueueContext(ctx, task)
	if err != nil {
		utils.LogWarn(requestID, module, action, "enqueue failed", zap.String("task", task.Type()), zap.Error(err))
		return
	}
	utils.LogEvent(requestID, module, action, "task enqueued", zap.String("task_id", info.ID))
}

func (d *Dispatcher) run(module, action, requestID string, fn func(ctx context.Context) error) {
	if d == nil {
		return
	}
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	job := func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			utils.LogWarn(requestID, module, action, "post-commit task failed", zap.Error(err))
		}
	}
	if d.Go != nil {
		d.Go(job)
		return
	}
	go job()
}

func (d *Dispatcher) publish(requestID, key string, event any) {
	if d == nil {
		return
	}
	if d.Queue != nil {
		d.enqueue("notify", key, requestID, func() (*asynq.Task, error) {
			return tasks.NewEventTask(key, event, requestID, d.MaxRetry)
		})
		return
	}
	if d.Publisher == nil {
		return
	}
	d.run("notify", key, requestID, func(ctx context.Context) error {
		return d.Publisher.Publish(ctx, key, event)
	})
}

func bookingEvent(b models.Booking, requestID string) notify.BookingEvent {
	return notify.BookingEvent{
		BookingID:      b.ID,
		TripID:         b.TripID,
		UserID:         b.UserID,
		PassengerCount: b.PassengerCount,
		CreditsCost:    b.CreditsCost,
		Status:         string(b.Status),
		RequestID:      requestID,
		OccurredAt:     utils.NowUTC(),
	}
}

func (d *Dispatcher) BookingConfirmed(b models.Booking, requestID string) {
	d.publish(requestID, notify.KeyBookingConfirmed, bookingEvent(b, requestID))
}

func (d *Dispatcher) BookingCancelled(b models.Booking, requestID string) {
	d.publish(requestID, notify.KeyBookingCancelled, bookingEvent(b, requestID))
}

// Refunds announces a sweep that moved credits.
func (d *Dispatcher) Refunds(result models.RefundResult, triggeredBy int64, requestID string) {
	if result.RefundsProcessed == 0 {
		return
	}
	d.publish(requestID, notify.KeyBookingRefunded, notify.RefundEvent{
		TripID:        result.TripID,
		TriggeredBy:   triggeredBy,
		CostPerPerson: result.CostPerPerson,
		TotalRefunded: result.TotalRefunded,
		Refunds:       result.RefundDetails,
		RequestID:     requestID,
		OccurredAt:    utils.NowUTC(),
	})
}

// SyncCalendar makes sure the trip has a calendar event.
func (d *Dispatcher) SyncCalendar(trip models.Trip, requestID string) {
	if d == nil || d.Calendar == nil || len(d.Calendar.Providers) == 0 {
		return
	}
	if d.Queue != nil {
		d.enqueue("calendar", "sync", requestID, func() (*asynq.Task, error) {
			return tasks.NewCalendarSyncTask(trip.ID, requestID, d.MaxRetry)
		})
		return
	}
	d.run("calendar", "sync", requestID, func(ctx context.Context) error {
		_, err := d.Calendar.EnsureEvent(ctx, trip)
		return err
	})
}
