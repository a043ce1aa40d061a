package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	intdb "shuttle/internal/db"
	"shuttle/internal/domain/models"
)

// CalendarRepository stores trip→calendar event mappings and the in-house
// blocker's reserved windows.
type CalendarRepository struct {
	DB intdb.DBTX
}

func (r CalendarRepository) db() intdb.DBTX {
	return dbOrGlobal(r.DB)
}

// FindEvent returns the first recorded event for a trip, if any.
func (r CalendarRepository) FindEvent(ctx context.Context, tripID int64) (models.CalendarEvent, bool, error) {
	var ev models.CalendarEvent
	err := r.db().QueryRowContext(ctx, `
		SELECT trip_id, provider, external_id, created_at
		FROM calendar_events
		WHERE trip_id=?
		ORDER BY created_at ASC
		LIMIT 1`, tripID).Scan(&ev.TripID, &ev.Provider, &ev.ExternalID, &ev.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.CalendarEvent{}, false, nil
	}
	if err != nil {
		return models.CalendarEvent{}, false, fmt.Errorf("find calendar event for trip %d: %w", tripID, err)
	}
	return ev, true, nil
}

func (r CalendarRepository) SaveEvent(ctx context.Context, ev models.CalendarEvent) error {
	_, err := r.db().ExecContext(ctx, `
		INSERT INTO calendar_events (trip_id, provider, external_id, created_at) VALUES (?,?,?,?)
		ON DUPLICATE KEY UPDATE external_id=VALUES(external_id)`,
		ev.TripID, ev.Provider, ev.ExternalID, ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("save calendar event for trip %d: %w", ev.TripID, err)
	}
	return nil
}

// CountOverlappingBlocks counts blocks intersecting [start, end).
func (r CalendarRepository) CountOverlappingBlocks(ctx context.Context, start, end time.Time) (int, error) {
	var n int
	err := r.db().QueryRowContext(ctx, `
		SELECT COUNT(*) FROM calendar_blocks
		WHERE start_time < ? AND end_time > ?`, end, start).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count calendar blocks: %w", err)
	}
	return n, nil
}

func (r CalendarRepository) InsertBlock(ctx context.Context, b *models.CalendarBlock) error {
	res, err := r.db().ExecContext(ctx, `INSERT INTO calendar_blocks (trip_id, start_time, end_time) VALUES (?,?,?)`,
		b.TripID, b.StartTime, b.EndTime)
	if err != nil {
		return fmt.Errorf("insert calendar block for trip %d: %w", b.TripID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert calendar block id: %w", err)
	}
	b.ID = id
	return nil
}
