package services

import (
	"context"
	"errors"
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

// RefundWarning is surfaced to the caller when a sweep collected errors.
const RefundWarning = "some refunds could not be processed automatically"

var errRefundSkipped = errors.New("booking already settled")

// RefundPlan is one booking that paid more than the settled price.
type RefundPlan struct {
	Booking     models.Booking
	SettledCost int64
	Amount      int64
}

// PlanRefunds lists bookings whose frozen cost exceeds perPerson times their
// passenger count. Bookings already at or below that price are left alone.
func PlanRefunds(bookings []models.Booking, perPerson int64) []RefundPlan {
	plans := make([]RefundPlan, 0, len(bookings))
	for _, b := range bookings {
		if b.Status != models.BookingConfirmed {
			continue
		}
		settled := perPerson * int64(b.PassengerCount)
		if b.CreditsCost <= settled {
			continue
		}
		plans = append(plans, RefundPlan{
			Booking:     b,
			SettledCost: settled,
			Amount:      b.CreditsCost - settled,
		})
	}
	return plans
}

// RefundService settles earlier bookings on a trip down to the current tier.
type RefundService struct {
	Store     repositories.Store
	Pricing   PricingService
	Ledger    LedgerService
	Locker    locks.TripLocker
	Events    *Dispatcher
	RequestID string
	Now       func() time.Time
}

// Sweep refunds every confirmed booking on trip other than newBookingID down
// to the price for totalCount passengers. It runs inside the caller's
// transaction; each booking gets its own savepoint so one failure does not
// undo the others. An error that aborts the transaction ends the sweep and is
// returned.
func (s RefundService) Sweep(ctx context.Context, tx repositories.TxStore, trip models.Trip, newBookingID int64, totalCount int) (models.RefundResult, error) {
	result := models.RefundResult{
		TripID:         trip.ID,
		PassengerCount: totalCount,
		RefundDetails:  []models.RefundDetail{},
		Errors:         []string{},
	}

	perPerson, _, err := s.Pricing.PriceFor(ctx, tx, trip, totalCount)
	if err != nil {
		return result, err
	}
	result.CostPerPerson = perPerson

	bookings, err := tx.ConfirmedBookings(ctx, trip.ID, newBookingID)
	if err != nil {
		return result, err
	}

	ledger := s.Ledger
	ledger.Now = s.Now
	for _, plan := range PlanRefunds(bookings, perPerson) {
		b := plan.Booking
		err := tx.Savepoint(ctx, fmt.Sprintf("refund_%d", b.ID), func() error {
			lowered, err := tx.LowerCreditsCost(ctx, b.ID, plan.SettledCost, nowOr(s.Now))
			if err != nil {
				return err
			}
			if !lowered {
				return errRefundSkipped
			}
			bookingID, tripID := b.ID, trip.ID
			_, err = ledger.Credit(ctx, tx, LedgerEntry{
				UserID:      b.UserID,
				Amount:      plan.Amount,
				Type:        models.TxRefund,
				Description: fmt.Sprintf("Group discount refund for trip #%d (%d passengers)", trip.ID, totalCount),
				BookingID:   &bookingID,
				TripID:      &tripID,
				Reference:   fmt.Sprintf("refund:%d:%d", b.ID, plan.SettledCost),
			})
			return err
		})
		if errors.Is(err, errRefundSkipped) {
			continue
		}
		if intdb.IsTxAborted(err) {
			utils.LogWarn(s.RequestID, "refund", "sweep", "transaction aborted during refund",
				zap.Int64("booking_id", b.ID),
				zap.Int64("trip_id", trip.ID),
				zap.Error(err),
			)
			return result, err
		}
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("booking %d: %v", b.ID, err))
			utils.LogWarn(s.RequestID, "refund", "sweep", "refund failed",
				zap.Int64("booking_id", b.ID),
				zap.Int64("trip_id", trip.ID),
				zap.Error(err),
			)
			continue
		}

		result.RefundsProcessed++
		result.TotalRefunded += plan.Amount
		result.RefundDetails = append(result.RefundDetails, models.RefundDetail{
			BookingID:    b.ID,
			UserID:       b.UserID,
			RefundAmount: plan.Amount,
			PreviousCost: b.CreditsCost,
			SettledCost:  plan.SettledCost,
		})
	}

	result.Success = len(result.Errors) == 0
	if result.RefundsProcessed > 0 {
		utils.LogEvent(s.RequestID, "refund", "sweep",
			fmt.Sprintf("trip_id=%d refunds=%d total=%d", trip.ID, result.RefundsProcessed, result.TotalRefunded))
	}
	return result, nil
}

// ProcessRetroactiveRefunds re-runs the sweep for a trip on its own, under the
// trip lock. newBookingID may be 0 to consider every confirmed booking.
func (s RefundService) ProcessRetroactiveRefunds(ctx context.Context, actor domain.RequestContext, tripID, newBookingID int64) (models.RefundResult, error) {
	if !actor.IsAdmin() {
		return models.RefundResult{}, domain.ForbiddenError{Msg: "only admins can run refund sweeps"}
	}
	if tripID <= 0 {
		return models.RefundResult{}, domain.ValidationError{Field: "trip_id", Msg: "invalid id"}
	}

	unlock, err := lockTrip(ctx, s.Locker, tripID)
	if err != nil {
		return models.RefundResult{}, err
	}
	defer unlock()

	var result models.RefundResult
	err = s.Store.InTx(ctx, func(tx repositories.TxStore) error {
		trip, err := tx.LockTrip(ctx, tripID)
		if err != nil {
			return err
		}
		bookings, err := tx.ConfirmedBookings(ctx, tripID, 0)
		if err != nil {
			return err
		}
		total := models.SumPassengers(bookings)
		if total != trip.CurrentPassengers {
			if err := tx.SetTripPassengers(ctx, tripID, total, nowOr(s.Now)); err != nil {
				return err
			}
		}
		result, err = s.Sweep(ctx, tx, trip, newBookingID, total)
		return err
	})
	if err != nil {
		return models.RefundResult{}, wrapInternal(err)
	}

	if s.Events != nil && result.RefundsProcessed > 0 {
		s.Events.Refunds(result, newBookingID, s.RequestID)
	}
	return result, nil
}
