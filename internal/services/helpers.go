package services

import (
	"context"
	"time"

	intdb "shuttle/internal/db"
	"shuttle/internal/domain"
	"shuttle/internal/locks"
	"shuttle/internal/utils"
)

// wrapInternal passes typed domain errors through and hides everything else
// behind an InternalError.
func wrapInternal(err error) error {
	if err == nil {
		return nil
	}
	if intdb.IsTxAborted(err) {
		return domain.ConflictError{Resource: "trip", Msg: "concurrent update, try again", Err: err}
	}
	if domain.IsValidation(err) ||
		domain.IsNotFound(err) ||
		domain.IsConflict(err) ||
		domain.IsInsufficientCredits(err) ||
		domain.IsForbidden(err) ||
		domain.IsUnauthorized(err) ||
		domain.IsInternal(err) {
		return err
	}
	return domain.InternalError{Err: err}
}

// lockTrip takes the per-trip lock when a locker is configured.
func lockTrip(ctx context.Context, locker locks.TripLocker, tripID int64) (func(), error) {
	if locker == nil {
		return func() {}, nil
	}
	unlock, err := locker.Lock(ctx, tripID)
	if err != nil {
		return nil, domain.ConflictError{Resource: "trip", Msg: "trip is busy, try again", Err: err}
	}
	return unlock, nil
}

func nowOr(fn func() time.Time) time.Time {
	if fn != nil {
		return fn()
	}
	return utils.NowUTC()
}
