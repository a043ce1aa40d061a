// Package notify publishes booking and refund events for downstream senders
// (email, in-app). Delivery itself happens elsewhere.
package notify

import (
	"context"
	"time"

	"shuttle/internal/domain/models"
)

const (
	KeyBookingConfirmed = "booking.confirmed"
	KeyBookingCancelled = "booking.cancelled"
	KeyBookingRefunded  = "booking.refunded"
)

// BookingEvent announces a booking state change.
type BookingEvent struct {
	BookingID      int64     `json:"booking_id"`
	TripID         int64     `json:"trip_id"`
	UserID         int64     `json:"user_id"`
	PassengerCount int       `json:"passenger_count"`
	CreditsCost    int64     `json:"credits_cost"`
	Status         string    `json:"status"`
	RequestID      string    `json:"request_id,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// RefundEvent is the refund summary consumed by notification senders.
type RefundEvent struct {
	TripID        int64                 `json:"trip_id"`
	TriggeredBy   int64                 `json:"triggered_by_booking_id"`
	CostPerPerson int64                 `json:"cost_per_person"`
	TotalRefunded int64                 `json:"total_refunded"`
	Refunds       []models.RefundDetail `json:"refunds"`
	RequestID     string                `json:"request_id,omitempty"`
	OccurredAt    time.Time             `json:"occurred_at"`
}

// Publisher sends an event under a routing key.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}
