package models

import "time"

// CalendarEvent maps a trip to the event a calendar provider created for it.
type CalendarEvent struct {
	TripID     int64     `json:"trip_id"`
	Provider   string    `json:"provider"`
	ExternalID string    `json:"external_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// CalendarBlock is a time window reserved by the in-house blocker.
type CalendarBlock struct {
	ID        int64     `json:"id"`
	TripID    int64     `json:"trip_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}
