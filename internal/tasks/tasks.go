// Package tasks defines the background jobs carried by the asynq queue.
package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	TypeEventPublish    = "event:publish"
	TypeCalendarSync    = "calendar:sync"
	TypeLedgerReconcile = "ledger:reconcile"

	QueueDefault = "default"

	taskTimeout = 30 * time.Second
)

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// EventPayload carries an already encoded event to the publisher.
type EventPayload struct {
	RoutingKey string          `json:"routing_key"`
	Event      json.RawMessage `json:"event"`
	RequestID  string          `json:"request_id,omitempty"`
}

type CalendarSyncPayload struct {
	TripID    int64  `json:"trip_id"`
	RequestID string `json:"request_id,omitempty"`
}

type ReconcilePayload struct {
	Repair bool `json:"repair"`
}

func NewEventTask(routingKey string, event any, requestID string, maxRetry int) (*asynq.Task, error) {
	raw, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", routingKey, err)
	}
	b, err := json.Marshal(EventPayload{RoutingKey: routingKey, Event: raw, RequestID: requestID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeEventPublish, b, options(maxRetry)...), nil
}

func NewCalendarSyncTask(tripID int64, requestID string, maxRetry int) (*asynq.Task, error) {
	b, err := json.Marshal(CalendarSyncPayload{TripID: tripID, RequestID: requestID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeCalendarSync, b, options(maxRetry)...), nil
}

// NewReconcileTask is registered on the scheduler; a missed run is not retried
// because the next tick covers it.
func NewReconcileTask(repair bool) (*asynq.Task, error) {
	b, err := json.Marshal(ReconcilePayload{Repair: repair})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeLedgerReconcile, b, asynq.MaxRetry(0), asynq.Queue(QueueDefault)), nil
}

func options(maxRetry int) []asynq.Option {
	if maxRetry < 0 {
		maxRetry = 0
	}
	return []asynq.Option{
		asynq.MaxRetry(maxRetry),
		asynq.Timeout(taskTimeout),
		asynq.Queue(QueueDefault),
	}
}

// Decode unmarshals a task payload, marking malformed payloads as not worth retrying.
func Decode(t *asynq.Task, v any) error {
	if err := json.Unmarshal(t.Payload(), v); err != nil {
		return fmt.Errorf("decode %s payload: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	return nil
}
