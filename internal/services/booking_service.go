package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	intdb "shuttle/internal/db"
	"shuttle/internal/domain"
	"shuttle/internal/domain/models"
	"shuttle/internal/locks"
	"shuttle/internal/repositories"
	"shuttle/internal/utils"
)

// BookingResult is what a caller sees after booking seats.
type BookingResult struct {
	Booking       models.Booking      `json:"booking"`
	Trip          models.Trip         `json:"trip"`
	CostPerPerson int64               `json:"cost_per_person"`
	Tiered        bool                `json:"tiered"`
	Refunds       models.RefundResult `json:"refunds"`
	Warning       string              `json:"warning,omitempty"`
}

// BookingService books, cancels and completes trips. Creating a booking,
// repricing the trip and refunding earlier riders happen in one transaction
// while the trip is locked.
type BookingService struct {
	Store     repositories.Store
	Pricing   PricingService
	Ledger    LedgerService
	Refunds   RefundService
	Locker    locks.TripLocker
	Events    *Dispatcher
	RequestID string
	Now       func() time.Time
}

func (s BookingService) now() time.Time { return nowOr(s.Now) }

func (s BookingService) sub() (LedgerService, RefundService) {
	ledger := s.Ledger
	ledger.Store = s.Store
	ledger.RequestID = s.RequestID
	ledger.Now = s.Now

	refunds := s.Refunds
	refunds.Store = s.Store
	refunds.Pricing = s.Pricing
	refunds.Ledger = ledger
	refunds.RequestID = s.RequestID
	refunds.Now = s.Now
	return ledger, refunds
}

func normalizeBookingInput(actor domain.RequestContext, in models.BookingInput) (models.BookingInput, error) {
	if in.TripID <= 0 {
		return in, domain.ValidationError{Field: "trip_id", Msg: "invalid id"}
	}
	if in.UserID == 0 {
		in.UserID = actor.UserID
	}
	if !actor.CanActFor(in.UserID) {
		return in, domain.ForbiddenError{Msg: "cannot book for another user"}
	}
	if in.PassengerCount < 1 {
		return in, domain.ValidationError{Field: "passenger_count", Msg: "must be at least 1"}
	}
	in.GuestName = utils.Truncate(utils.NormalizeSpace(in.GuestName), 120)
	if in.RiderID != nil && *in.RiderID <= 0 {
		return in, domain.ValidationError{Field: "rider_id", Msg: "invalid id"}
	}
	if in.RiderID == nil && in.GuestName == "" {
		self := in.UserID
		in.RiderID = &self
	}
	return in, nil
}

// CreateBooking reserves seats, charges the booker at the price for the new
// passenger total and refunds earlier bookings down to that price.
func (s BookingService) CreateBooking(ctx context.Context, actor domain.RequestContext, in models.BookingInput) (BookingResult, error) {
	if !actor.Authenticated() {
		return BookingResult{}, domain.UnauthorizedError{}
	}
	in, err := normalizeBookingInput(actor, in)
	if err != nil {
		return BookingResult{}, err
	}
	ledger, refunds := s.sub()

	unlock, err := lockTrip(ctx, s.Locker, in.TripID)
	if err != nil {
		return BookingResult{}, err
	}
	defer unlock()

	var res BookingResult
	err = s.Store.InTx(ctx, func(tx repositories.TxStore) error {
		trip, err := tx.LockTrip(ctx, in.TripID)
		if err != nil {
			return err
		}
		now := s.now()
		if !trip.StartTime.After(now) {
			return domain.ConflictError{Resource: "trip", Msg: "trip has already departed"}
		}

		confirmed, err := tx.ConfirmedBookings(ctx, trip.ID, 0)
		if err != nil {
			return err
		}
		total := models.SumPassengers(confirmed) + in.PassengerCount
		if total > trip.MaxPassengers {
			return domain.ConflictError{
				Resource: "trip",
				Msg:      fmt.Sprintf("only %d seats left", trip.MaxPassengers-models.SumPassengers(confirmed)),
			}
		}

		perPerson, tiered, err := s.Pricing.PriceFor(ctx, tx, trip, total)
		if err != nil {
			return err
		}
		cost := perPerson * int64(in.PassengerCount)
		selfCharge := actor.IsAdmin() && actor.UserID == in.UserID

		if cost > 0 {
			if err := ledger.EnsureFunds(ctx, tx, in.UserID, cost, selfCharge); err != nil {
				return err
			}
		}

		booking := models.Booking{
			TripID:         trip.ID,
			UserID:         in.UserID,
			RiderID:        in.RiderID,
			GuestName:      in.GuestName,
			PassengerCount: in.PassengerCount,
			CreditsCost:    cost,
			Status:         models.BookingConfirmed,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := tx.InsertBooking(ctx, &booking); err != nil {
			return err
		}

		if cost > 0 {
			bookingID, tripID := booking.ID, trip.ID
			if _, err := ledger.Debit(ctx, tx, LedgerEntry{
				UserID:         in.UserID,
				Amount:         cost,
				Type:           models.TxUsage,
				Description:    fmt.Sprintf("Booking #%d on trip #%d (%d x %s)", booking.ID, trip.ID, in.PassengerCount, utils.FormatCredits(perPerson)),
				BookingID:      &bookingID,
				TripID:         &tripID,
				Reference:      fmt.Sprintf("booking:%d", booking.ID),
				AllowOverdraft: selfCharge,
			}); err != nil {
				return err
			}
		}

		if err := tx.SetTripPassengers(ctx, trip.ID, total, now); err != nil {
			return err
		}
		trip.CurrentPassengers = total

		sweep, err := refunds.Sweep(ctx, tx, trip, booking.ID, total)
		if intdb.IsTxAborted(err) {
			return err
		}
		if err != nil {
			utils.LogWarn(s.RequestID, "booking", "sweep", "refund sweep failed",
				zap.Int64("trip_id", trip.ID), zap.Error(err))
			sweep.Errors = append(sweep.Errors, err.Error())
			sweep.Success = false
		}

		res = BookingResult{
			Booking:       booking,
			Trip:          trip,
			CostPerPerson: perPerson,
			Tiered:        tiered,
			Refunds:       sweep,
		}
		if len(sweep.Errors) > 0 {
			res.Warning = RefundWarning
		}
		return nil
	})
	if err != nil {
		return BookingResult{}, wrapInternal(err)
	}

	utils.LogEvent(s.RequestID, "booking", "create",
		fmt.Sprintf("booking_id=%d trip_id=%d passengers=%d cost=%d", res.Booking.ID, res.Trip.ID, res.Booking.PassengerCount, res.Booking.CreditsCost))

	s.Events.BookingConfirmed(res.Booking, s.RequestID)
	s.Events.Refunds(res.Refunds, res.Booking.ID, s.RequestID)
	s.Events.SyncCalendar(res.Trip, s.RequestID)
	return res, nil
}

// CancelBooking returns the booking's full cost to its owner. Other riders
// keep whatever they currently pay.
func (s BookingService) CancelBooking(ctx context.Context, actor domain.RequestContext, bookingID int64) (models.Booking, error) {
	if !actor.Authenticated() {
		return models.Booking{}, domain.UnauthorizedError{}
	}
	if bookingID <= 0 {
		return models.Booking{}, domain.ValidationError{Field: "booking_id", Msg: "invalid id"}
	}
	current, err := s.Store.GetBooking(ctx, bookingID)
	if err != nil {
		return models.Booking{}, wrapInternal(err)
	}
	if !actor.CanActFor(current.UserID) {
		return models.Booking{}, domain.ForbiddenError{Msg: "not your booking"}
	}
	ledger, _ := s.sub()

	unlock, err := lockTrip(ctx, s.Locker, current.TripID)
	if err != nil {
		return models.Booking{}, err
	}
	defer unlock()

	var out models.Booking
	err = s.Store.InTx(ctx, func(tx repositories.TxStore) error {
		trip, err := tx.LockTrip(ctx, current.TripID)
		if err != nil {
			return err
		}
		b, err := tx.LockBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		if b.Status != models.BookingConfirmed {
			return domain.ConflictError{Resource: "booking", Msg: fmt.Sprintf("booking is %s", b.Status)}
		}
		now := s.now()
		if !trip.StartTime.After(now) {
			return domain.ConflictError{Resource: "booking", Msg: "trip has already departed"}
		}

		ok, err := tx.UpdateBookingStatus(ctx, b.ID, models.BookingConfirmed, models.BookingCancelled, now)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ConflictError{Resource: "booking", Msg: "booking changed concurrently"}
		}

		if b.CreditsCost > 0 {
			bookingID, tripID := b.ID, trip.ID
			if _, err := ledger.Credit(ctx, tx, LedgerEntry{
				UserID:      b.UserID,
				Amount:      b.CreditsCost,
				Type:        models.TxRefund,
				Description: fmt.Sprintf("Cancelled booking #%d on trip #%d", b.ID, trip.ID),
				BookingID:   &bookingID,
				TripID:      &tripID,
				Reference:   fmt.Sprintf("cancel:%d", b.ID),
			}); err != nil {
				return err
			}
		}

		remaining, err := tx.ConfirmedBookings(ctx, trip.ID, 0)
		if err != nil {
			return err
		}
		if err := tx.SetTripPassengers(ctx, trip.ID, models.SumPassengers(remaining), now); err != nil {
			return err
		}

		b.Status = models.BookingCancelled
		b.UpdatedAt = now
		out = b
		return nil
	})
	if err != nil {
		return models.Booking{}, wrapInternal(err)
	}

	utils.LogEvent(s.RequestID, "booking", "cancel", fmt.Sprintf("booking_id=%d refunded=%d", out.ID, out.CreditsCost))
	s.Events.BookingCancelled(out, s.RequestID)
	return out, nil
}

// CompleteTrip marks every confirmed booking on a trip as completed.
func (s BookingService) CompleteTrip(ctx context.Context, actor domain.RequestContext, tripID int64) (int, error) {
	if !actor.IsAdmin() {
		return 0, domain.ForbiddenError{Msg: "only admins can complete trips"}
	}
	if tripID <= 0 {
		return 0, domain.ValidationError{Field: "trip_id", Msg: "invalid id"}
	}

	unlock, err := lockTrip(ctx, s.Locker, tripID)
	if err != nil {
		return 0, err
	}
	defer unlock()

	completed := 0
	err = s.Store.InTx(ctx, func(tx repositories.TxStore) error {
		if _, err := tx.LockTrip(ctx, tripID); err != nil {
			return err
		}
		bookings, err := tx.ConfirmedBookings(ctx, tripID, 0)
		if err != nil {
			return err
		}
		now := s.now()
		for _, b := range bookings {
			ok, err := tx.UpdateBookingStatus(ctx, b.ID, models.BookingConfirmed, models.BookingCompleted, now)
			if err != nil {
				return err
			}
			if ok {
				completed++
			}
		}
		return nil
	})
	if err != nil {
		return 0, wrapInternal(err)
	}
	utils.LogEvent(s.RequestID, "booking", "complete_trip", fmt.Sprintf("trip_id=%d completed=%d", tripID, completed))
	return completed, nil
}

func (s BookingService) GetBooking(ctx context.Context, actor domain.RequestContext, id int64) (models.Booking, error) {
	if id <= 0 {
		return models.Booking{}, domain.ValidationError{Field: "booking_id", Msg: "invalid id"}
	}
	b, err := s.Store.GetBooking(ctx, id)
	if err != nil {
		return models.Booking{}, wrapInternal(err)
	}
	if !actor.CanActFor(b.UserID) {
		return models.Booking{}, domain.ForbiddenError{Msg: "not your booking"}
	}
	return b, nil
}

// ListTripBookings returns every booking on a trip for admins and only the
// caller's own bookings for everyone else.
func (s BookingService) ListTripBookings(ctx context.Context, actor domain.RequestContext, tripID int64) ([]models.Booking, error) {
	if tripID <= 0 {
		return nil, domain.ValidationError{Field: "trip_id", Msg: "invalid id"}
	}
	if _, err := s.Store.GetTrip(ctx, tripID); err != nil {
		return nil, wrapInternal(err)
	}
	all, err := s.Store.TripBookings(ctx, tripID)
	if err != nil {
		return nil, wrapInternal(err)
	}
	if actor.IsAdmin() {
		return all, nil
	}
	own := make([]models.Booking, 0, len(all))
	for _, b := range all {
		if actor.Authenticated() && b.UserID == actor.UserID {
			own = append(own, b)
		}
	}
	return own, nil
}
