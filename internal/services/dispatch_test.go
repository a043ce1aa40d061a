package services

import (
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"

	"shuttle/internal/domain/models"
	"shuttle/internal/notify"
	"shuttle/internal/tasks"
)

type fakeQueue struct {
	tasks []*asynq.Task
	err   error
}

func (q *fakeQueue) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if q.err != nil {
		return nil, q.err
	}
	q.tasks = append(q.tasks, task)
	return &asynq.TaskInfo{ID: "task-1", Type: task.Type()}, nil
}

func TestDispatcherSwallowsPublishErrors(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	d := &Dispatcher{Publisher: pub, Go: inline}

	d.BookingConfirmed(models.Booking{ID: 1, TripID: 2}, "req-1")
	d.Refunds(models.RefundResult{TripID: 2}, 1, "req-1")
	d.Refunds(models.RefundResult{TripID: 2, RefundsProcessed: 1, TotalRefunded: 10}, 1, "req-1")

	keys := pub.keys()
	if len(keys) != 2 || keys[0] != notify.KeyBookingConfirmed || keys[1] != notify.KeyBookingRefunded {
		t.Fatalf("unexpected events: %v", keys)
	}
	ev, ok := pub.events[1].Event.(notify.RefundEvent)
	if !ok || ev.TotalRefunded != 10 || ev.TriggeredBy != 1 || ev.RequestID != "req-1" {
		t.Fatalf("unexpected refund event: %+v", pub.events[1].Event)
	}
}

func TestNilDispatcherIsNoop(t *testing.T) {
	var d *Dispatcher
	d.BookingConfirmed(models.Booking{ID: 1}, "")
	d.SyncCalendar(models.Trip{ID: 1}, "")
}

func TestDispatcherEnqueuesWhenQueueConfigured(t *testing.T) {
	pub := &recordingPublisher{}
	q := &fakeQueue{}
	d := &Dispatcher{
		Publisher: pub,
		Calendar:  &CalendarChain{Providers: []CalendarProvider{&stubProvider{name: "a"}}},
		Queue:     q,
		MaxRetry:  4,
		Go:        inline,
	}

	d.BookingConfirmed(models.Booking{ID: 5, TripID: 2}, "req-9")
	d.SyncCalendar(models.Trip{ID: 2}, "req-9")

	if len(pub.keys()) != 0 {
		t.Fatalf("queued events must not be published inline: %v", pub.keys())
	}
	if len(q.tasks) != 2 || q.tasks[0].Type() != tasks.TypeEventPublish || q.tasks[1].Type() != tasks.TypeCalendarSync {
		t.Fatalf("unexpected tasks: %+v", q.tasks)
	}
	var ev tasks.EventPayload
	if err := tasks.Decode(q.tasks[0], &ev); err != nil || ev.RoutingKey != notify.KeyBookingConfirmed || ev.RequestID != "req-9" {
		t.Fatalf("event payload = %+v err=%v", ev, err)
	}
	var sync tasks.CalendarSyncPayload
	if err := tasks.Decode(q.tasks[1], &sync); err != nil || sync.TripID != 2 {
		t.Fatalf("calendar payload = %+v err=%v", sync, err)
	}
}

func TestDispatcherSwallowsEnqueueErrors(t *testing.T) {
	d := &Dispatcher{Queue: &fakeQueue{err: errors.New("redis down")}}
	d.BookingCancelled(models.Booking{ID: 1}, "")
	d.Refunds(models.RefundResult{TripID: 2, RefundsProcessed: 1, TotalRefunded: 10}, 1, "")
}
