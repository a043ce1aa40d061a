package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	intdb "shuttle/internal/db"
	"shuttle/internal/domain"
	"shuttle/internal/domain/models"
)

const tripColumns = `id, destination_id, start_time, end_time, max_passengers, current_passengers, flat_rate, created_by, created_at, updated_at`

type TripRepository struct {
	DB intdb.DBTX
}

func (r TripRepository) db() intdb.DBTX {
	return dbOrGlobal(r.DB)
}

func (r TripRepository) GetTrip(ctx context.Context, id int64) (models.Trip, error) {
	return r.fetchTrip(ctx, `SELECT `+tripColumns+` FROM trips WHERE id=? LIMIT 1`, id)
}

func (r TripRepository) LockTrip(ctx context.Context, id int64) (models.Trip, error) {
	return r.fetchTrip(ctx, `SELECT `+tripColumns+` FROM trips WHERE id=? FOR UPDATE`, id)
}

func (r TripRepository) fetchTrip(ctx context.Context, query string, id int64) (models.Trip, error) {
	if id <= 0 {
		return models.Trip{}, domain.ValidationError{Field: "trip_id", Msg: "invalid id"}
	}
	var t models.Trip
	err := r.db().QueryRowContext(ctx, query, id).Scan(
		&t.ID,
		&t.DestinationID,
		&t.StartTime,
		&t.EndTime,
		&t.MaxPassengers,
		&t.CurrentPassengers,
		&t.FlatRate,
		&t.CreatedBy,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Trip{}, domain.NotFoundError{Resource: "trip", Err: err}
	}
	if err != nil {
		return models.Trip{}, fmt.Errorf("load trip %d: %w", id, err)
	}
	return t, nil
}

func (r TripRepository) InsertTrip(ctx context.Context, t *models.Trip) error {
	res, err := r.db().ExecContext(ctx, `
		INSERT INTO trips (destination_id, start_time, end_time, max_passengers, current_passengers, flat_rate, created_by, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		t.DestinationID, t.StartTime, t.EndTime, t.MaxPassengers, t.CurrentPassengers, t.FlatRate, t.CreatedBy, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert trip: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert trip id: %w", err)
	}
	t.ID = id
	return nil
}

func (r TripRepository) SetTripPassengers(ctx context.Context, tripID int64, count int, at time.Time) error {
	if _, err := r.db().ExecContext(ctx, `UPDATE trips SET current_passengers=?, updated_at=? WHERE id=?`, count, at, tripID); err != nil {
		return fmt.Errorf("update trip %d passengers: %w", tripID, err)
	}
	return nil
}
