package models

import "time"

// Trip is a scheduled shuttle run to a destination.
type Trip struct {
	ID                int64     `json:"id"`
	DestinationID     int64     `json:"destination_id"`
	StartTime         time.Time `json:"start_time"`
	EndTime           time.Time `json:"end_time"`
	MaxPassengers     int       `json:"max_passengers"`
	CurrentPassengers int       `json:"current_passengers"`
	// FlatRate prices the trip when its destination has no tiers; 0 means use the default.
	FlatRate  int64     `json:"flat_rate"`
	CreatedBy int64     `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SeatsLeft is the remaining capacity according to the cached count.
func (t Trip) SeatsLeft() int {
	left := t.MaxPassengers - t.CurrentPassengers
	if left < 0 {
		return 0
	}
	return left
}

// TripInput is the payload for creating a trip.
type TripInput struct {
	DestinationID int64     `json:"destination_id"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	MaxPassengers int       `json:"max_passengers"`
	FlatRate      int64     `json:"flat_rate"`
}
