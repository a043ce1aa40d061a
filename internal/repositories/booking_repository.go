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

const bookingColumns = `id, trip_id, user_id, rider_id, guest_name, passenger_count, credits_cost, status, created_at, updated_at`

type BookingRepository struct {
	DB intdb.DBTX
}

func (r BookingRepository) db() intdb.DBTX {
	return dbOrGlobal(r.DB)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (models.Booking, error) {
	var b models.Booking
	var rider sql.NullInt64
	var status string
	if err := row.Scan(
		&b.ID,
		&b.TripID,
		&b.UserID,
		&rider,
		&b.GuestName,
		&b.PassengerCount,
		&b.CreditsCost,
		&status,
		&b.CreatedAt,
		&b.UpdatedAt,
	); err != nil {
		return models.Booking{}, err
	}
	b.RiderID = intdb.Int64Ptr(rider)
	b.Status = models.BookingStatus(status)
	return b, nil
}

func (r BookingRepository) InsertBooking(ctx context.Context, b *models.Booking) error {
	res, err := r.db().ExecContext(ctx, `
		INSERT INTO bookings (trip_id, user_id, rider_id, guest_name, passenger_count, credits_cost, status, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		b.TripID, b.UserID, intdb.NullIfZero(b.RiderID), b.GuestName, b.PassengerCount, b.CreditsCost, string(b.Status), b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert booking id: %w", err)
	}
	b.ID = id
	return nil
}

func (r BookingRepository) GetBooking(ctx context.Context, id int64) (models.Booking, error) {
	return r.fetchBooking(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id=? LIMIT 1`, id)
}

func (r BookingRepository) LockBooking(ctx context.Context, id int64) (models.Booking, error) {
	return r.fetchBooking(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id=? FOR UPDATE`, id)
}

func (r BookingRepository) fetchBooking(ctx context.Context, query string, id int64) (models.Booking, error) {
	if id <= 0 {
		return models.Booking{}, domain.ValidationError{Field: "booking_id", Msg: "invalid id"}
	}
	b, err := scanBooking(r.db().QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Booking{}, domain.NotFoundError{Resource: "booking", Err: err}
	}
	if err != nil {
		return models.Booking{}, fmt.Errorf("load booking %d: %w", id, err)
	}
	return b, nil
}

func (r BookingRepository) ConfirmedBookings(ctx context.Context, tripID, excludeID int64) ([]models.Booking, error) {
	return r.listBookings(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE trip_id=? AND status=? AND id<>?
		ORDER BY created_at ASC, id ASC
		FOR UPDATE`, tripID, string(models.BookingConfirmed), excludeID)
}

func (r BookingRepository) TripBookings(ctx context.Context, tripID int64) ([]models.Booking, error) {
	return r.listBookings(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE trip_id=?
		ORDER BY created_at ASC, id ASC`, tripID)
}

func (r BookingRepository) listBookings(ctx context.Context, query string, args ...any) ([]models.Booking, error) {
	rows, err := r.db().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	defer rows.Close()

	out := []models.Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	return out, nil
}

func (r BookingRepository) LowerCreditsCost(ctx context.Context, bookingID, cost int64, at time.Time) (bool, error) {
	res, err := r.db().ExecContext(ctx, `
		UPDATE bookings SET credits_cost=?, updated_at=?
		WHERE id=? AND status=? AND credits_cost>?`,
		cost, at, bookingID, string(models.BookingConfirmed), cost,
	)
	if err != nil {
		return false, fmt.Errorf("lower credits_cost of booking %d: %w", bookingID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("lower credits_cost of booking %d: %w", bookingID, err)
	}
	return n == 1, nil
}

func (r BookingRepository) UpdateBookingStatus(ctx context.Context, id int64, from, to models.BookingStatus, at time.Time) (bool, error) {
	res, err := r.db().ExecContext(ctx, `UPDATE bookings SET status=?, updated_at=? WHERE id=? AND status=?`,
		string(to), at, id, string(from))
	if err != nil {
		return false, fmt.Errorf("update booking %d status: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update booking %d status: %w", id, err)
	}
	return n == 1, nil
}
