package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"shuttle/internal/domain"
	"shuttle/internal/domain/models"
	"shuttle/internal/repositories"
	"shuttle/internal/utils"
)

// TripQuote prices a prospective booking without reserving anything.
type TripQuote struct {
	TripID            int64 `json:"trip_id"`
	CurrentPassengers int   `json:"current_passengers"`
	Passengers        int   `json:"passengers"`
	TotalPassengers   int   `json:"total_passengers"`
	SeatsLeft         int   `json:"seats_left"`
	CostPerPerson     int64 `json:"cost_per_person"`
	TotalCost         int64 `json:"total_cost"`
	Tiered            bool  `json:"tiered"`
	// CurrentCostPerPerson is what riders pay today; earlier bookings are
	// refunded down to CostPerPerson if this booking goes through.
	CurrentCostPerPerson int64 `json:"current_cost_per_person"`
}

type TripService struct {
	Store     repositories.Store
	Pricing   PricingService
	Calendar  *CalendarChain
	Events    *Dispatcher
	RequestID string
	Now       func() time.Time
}

func validateTripInput(in models.TripInput, now time.Time) error {
	if in.DestinationID <= 0 {
		return domain.ValidationError{Field: "destination_id", Msg: "invalid id"}
	}
	if in.StartTime.IsZero() || in.EndTime.IsZero() {
		return domain.ValidationError{Field: "start_time", Msg: "start and end time are required"}
	}
	if !in.EndTime.After(in.StartTime) {
		return domain.ValidationError{Field: "end_time", Msg: "must be after start time"}
	}
	if !in.StartTime.After(now) {
		return domain.ValidationError{Field: "start_time", Msg: "must be in the future"}
	}
	if in.MaxPassengers < 1 {
		return domain.ValidationError{Field: "max_passengers", Msg: "must be at least 1"}
	}
	if in.FlatRate < 0 {
		return domain.ValidationError{Field: "flat_rate", Msg: "must not be negative"}
	}
	return nil
}

// CreateTrip schedules a trip. A calendar provider that reports the slot as
// taken rejects it; a calendar that cannot be reached does not.
func (s TripService) CreateTrip(ctx context.Context, actor domain.RequestContext, in models.TripInput) (models.Trip, error) {
	if !actor.IsAdmin() {
		return models.Trip{}, domain.ForbiddenError{Msg: "only admins can schedule trips"}
	}
	now := nowOr(s.Now)
	in.StartTime = in.StartTime.UTC()
	in.EndTime = in.EndTime.UTC()
	if err := validateTripInput(in, now); err != nil {
		return models.Trip{}, err
	}

	free, provider, err := s.Calendar.CheckAvailability(ctx, in.StartTime, in.EndTime)
	switch {
	case err != nil:
		utils.LogWarn(s.RequestID, "trip", "check_availability", "calendar unavailable", zap.Error(err))
	case !free:
		return models.Trip{}, domain.ConflictError{Resource: "trip", Msg: fmt.Sprintf("time slot is blocked on %s calendar", provider)}
	}

	trip := models.Trip{
		DestinationID: in.DestinationID,
		StartTime:     in.StartTime,
		EndTime:       in.EndTime,
		MaxPassengers: in.MaxPassengers,
		FlatRate:      in.FlatRate,
		CreatedBy:     actor.UserID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.Store.InsertTrip(ctx, &trip); err != nil {
		return models.Trip{}, wrapInternal(err)
	}
	utils.LogEvent(s.RequestID, "trip", "create", fmt.Sprintf("trip_id=%d destination_id=%d", trip.ID, trip.DestinationID))

	s.Events.SyncCalendar(trip, s.RequestID)
	return trip, nil
}

func (s TripService) GetTrip(ctx context.Context, id int64) (models.Trip, error) {
	if id <= 0 {
		return models.Trip{}, domain.ValidationError{Field: "trip_id", Msg: "invalid id"}
	}
	trip, err := s.Store.GetTrip(ctx, id)
	if err != nil {
		return models.Trip{}, wrapInternal(err)
	}
	return trip, nil
}

// Quote prices passengers more seats on a trip at the current tier table.
func (s TripService) Quote(ctx context.Context, tripID int64, passengers int) (TripQuote, error) {
	if passengers < 1 {
		return TripQuote{}, domain.ValidationError{Field: "passengers", Msg: "must be at least 1"}
	}
	trip, err := s.GetTrip(ctx, tripID)
	if err != nil {
		return TripQuote{}, err
	}
	confirmed, err := s.Store.ConfirmedBookings(ctx, trip.ID, 0)
	if err != nil {
		return TripQuote{}, wrapInternal(err)
	}
	current := models.SumPassengers(confirmed)
	total := current + passengers
	if total > trip.MaxPassengers {
		return TripQuote{}, domain.ConflictError{Resource: "trip", Msg: fmt.Sprintf("only %d seats left", trip.MaxPassengers-current)}
	}

	perPerson, tiered, err := s.Pricing.PriceFor(ctx, s.Store, trip, total)
	if err != nil {
		return TripQuote{}, wrapInternal(err)
	}
	q := TripQuote{
		TripID:            trip.ID,
		CurrentPassengers: current,
		Passengers:        passengers,
		TotalPassengers:   total,
		SeatsLeft:         trip.MaxPassengers - current,
		CostPerPerson:     perPerson,
		TotalCost:         perPerson * int64(passengers),
		Tiered:            tiered,
	}
	if current > 0 {
		if q.CurrentCostPerPerson, _, err = s.Pricing.PriceFor(ctx, s.Store, trip, current); err != nil {
			return TripQuote{}, wrapInternal(err)
		}
	}
	return q, nil
}
