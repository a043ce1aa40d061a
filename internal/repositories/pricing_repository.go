package repositories

import (
	"context"
	"fmt"

	intdb "shuttle/internal/db"
	"shuttle/internal/domain/models"
)

type PricingRepository struct {
	DB intdb.DBTX
}

func (r PricingRepository) db() intdb.DBTX {
	return dbOrGlobal(r.DB)
}

// ListTiers returns the destination's tiers ordered by min_passengers ascending.
func (r PricingRepository) ListTiers(ctx context.Context, destinationID int64) ([]models.PricingTier, error) {
	rows, err := r.db().QueryContext(ctx, `
		SELECT id, destination_id, min_passengers, cost_per_person
		FROM pricing_tiers
		WHERE destination_id=?
		ORDER BY min_passengers ASC`, destinationID)
	if err != nil {
		return nil, fmt.Errorf("list tiers for destination %d: %w", destinationID, err)
	}
	defer rows.Close()

	out := []models.PricingTier{}
	for rows.Next() {
		var t models.PricingTier
		if err := rows.Scan(&t.ID, &t.DestinationID, &t.MinPassengers, &t.CostPerPerson); err != nil {
			return nil, fmt.Errorf("scan tier: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tiers for destination %d: %w", destinationID, err)
	}
	return out, nil
}

// ReplaceTiers swaps the whole tier table of a destination. Call it inside a transaction.
func (r PricingRepository) ReplaceTiers(ctx context.Context, destinationID int64, tiers []models.PricingTier) error {
	db := r.db()
	if _, err := db.ExecContext(ctx, `DELETE FROM pricing_tiers WHERE destination_id=?`, destinationID); err != nil {
		return fmt.Errorf("clear tiers for destination %d: %w", destinationID, err)
	}
	for _, t := range tiers {
		if _, err := db.ExecContext(ctx,
			`INSERT INTO pricing_tiers (destination_id, min_passengers, cost_per_person) VALUES (?,?,?)`,
			destinationID, t.MinPassengers, t.CostPerPerson,
		); err != nil {
			return fmt.Errorf("insert tier %d for destination %d: %w", t.MinPassengers, destinationID, err)
		}
	}
	return nil
}
