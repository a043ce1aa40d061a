package tasks

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
)

func TestNewEventTaskKeepsEventBody(t *testing.T) {
	task, err := NewEventTask("booking.confirmed", map[string]int64{"booking_id": 9}, "req-1", 3)
	if err != nil {
		t.Fatalf("NewEventTask returned error: %v", err)
	}
	if task.Type() != TypeEventPublish {
		t.Fatalf("type = %s", task.Type())
	}
	var p EventPayload
	if err := Decode(task, &p); err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if p.RoutingKey != "booking.confirmed" || p.RequestID != "req-1" {
		t.Fatalf("unexpected payload: %+v", p)
	}
	var body map[string]int64
	if err := json.Unmarshal(p.Event, &body); err != nil || body["booking_id"] != 9 {
		t.Fatalf("event body = %s err=%v", p.Event, err)
	}
}

func TestNewEventTaskRejectsUnencodableEvent(t *testing.T) {
	if _, err := NewEventTask("booking.confirmed", make(chan int), "", 3); err == nil {
		t.Fatalf("expected encode error")
	}
}

func TestDecodeMalformedPayloadSkipsRetry(t *testing.T) {
	task := asynq.NewTask(TypeCalendarSync, []byte("{"))
	var p CalendarSyncPayload
	err := Decode(task, &p)
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry, got %v", err)
	}
}

func TestNewReconcileTask(t *testing.T) {
	task, err := NewReconcileTask(true)
	if err != nil {
		t.Fatalf("NewReconcileTask returned error: %v", err)
	}
	var p ReconcilePayload
	if err := Decode(task, &p); err != nil || !p.Repair {
		t.Fatalf("payload = %+v err=%v", p, err)
	}
}
