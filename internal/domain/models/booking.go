package models

import "time"

type BookingStatus string

const (
	BookingConfirmed BookingStatus = "CONFIRMED"
	BookingCancelled BookingStatus = "CANCELLED"
	BookingCompleted BookingStatus = "COMPLETED"
)

// Booking is one reservation on a trip. CreditsCost is frozen at booking time
// and only ever lowered by a refund sweep.
type Booking struct {
	ID             int64         `json:"id"`
	TripID         int64         `json:"trip_id"`
	UserID         int64         `json:"user_id"`
	RiderID        *int64        `json:"rider_id,omitempty"`
	GuestName      string        `json:"guest_name,omitempty"`
	PassengerCount int           `json:"passenger_count"`
	CreditsCost    int64         `json:"credits_cost"`
	Status         BookingStatus `json:"status"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// BookingInput is the payload for creating a booking.
type BookingInput struct {
	TripID         int64  `json:"trip_id"`
	UserID         int64  `json:"user_id"`
	RiderID        *int64 `json:"rider_id"`
	GuestName      string `json:"guest_name"`
	PassengerCount int    `json:"passenger_count"`
}

// SumPassengers totals passenger_count of confirmed bookings.
func SumPassengers(bookings []Booking) int {
	total := 0
	for _, b := range bookings {
		if b.Status == BookingConfirmed {
			total += b.PassengerCount
		}
	}
	return total
}
