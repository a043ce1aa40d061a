package services

import (
	"context"
	"fmt"
	"sort"

	"shuttle/internal/domain"
	"shuttle/internal/domain/models"
	"shuttle/internal/repositories"
	"shuttle/internal/utils"
)

// ComputeTripCost selects the tier with the greatest MinPassengers <= count.
// Counts below the first breakpoint use the lowest tier. Returns nil when
// there are no tiers.
func ComputeTripCost(tiers []models.PricingTier, count int) *models.TripCost {
	if len(tiers) == 0 {
		return nil
	}
	sorted := make([]models.PricingTier, len(tiers))
	copy(sorted, tiers)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].MinPassengers < sorted[j].MinPassengers
	})

	selected := sorted[0]
	for _, t := range sorted {
		if t.MinPassengers > count {
			break
		}
		selected = t
	}

	passengers := count
	if passengers < 0 {
		passengers = 0
	}
	return &models.TripCost{
		PassengerCount: passengers,
		CostPerPerson:  selected.CostPerPerson,
		TotalCost:      selected.CostPerPerson * int64(passengers),
		Savings:        sorted[0].CostPerPerson - selected.CostPerPerson,
		Tier:           selected,
	}
}

// ValidateTiers checks a tier table describes a bulk-discount curve:
// distinct breakpoints >= 1, non-negative costs, cost never rising with size.
func ValidateTiers(tiers []models.PricingTier) error {
	if len(tiers) == 0 {
		return nil
	}
	sorted := make([]models.PricingTier, len(tiers))
	copy(sorted, tiers)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].MinPassengers < sorted[j].MinPassengers
	})

	for i, t := range sorted {
		if t.MinPassengers < 1 {
			return domain.ValidationError{Field: "min_passengers", Msg: "must be at least 1"}
		}
		if t.CostPerPerson < 0 {
			return domain.ValidationError{Field: "cost_per_person", Msg: "must not be negative"}
		}
		if i == 0 {
			continue
		}
		prev := sorted[i-1]
		if t.MinPassengers == prev.MinPassengers {
			return domain.ValidationError{Field: "min_passengers", Msg: fmt.Sprintf("duplicate breakpoint %d", t.MinPassengers)}
		}
		if t.CostPerPerson > prev.CostPerPerson {
			return domain.ValidationError{
				Field: "cost_per_person",
				Msg:   fmt.Sprintf("tier %d costs more than tier %d", t.MinPassengers, prev.MinPassengers),
			}
		}
	}
	return nil
}

// PricingService prices trips from the destination tier table.
type PricingService struct {
	Store repositories.Store
	// DefaultFlatRate applies when a destination has no tiers and the trip no rate.
	DefaultFlatRate int64
	RequestID       string
}

func (s PricingService) CalculateTripCost(ctx context.Context, destinationID int64, count int) (*models.TripCost, error) {
	if destinationID <= 0 {
		return nil, domain.ValidationError{Field: "destination_id", Msg: "invalid id"}
	}
	if count < 1 {
		return nil, domain.ValidationError{Field: "passengers", Msg: "must be at least 1"}
	}
	tiers, err := s.Store.ListTiers(ctx, destinationID)
	if err != nil {
		return nil, domain.InternalError{Err: err}
	}
	return ComputeTripCost(tiers, count), nil
}

// PriceFor returns the per-person price of trip at count passengers, reading
// tiers through q so it sees the caller's transaction.
func (s PricingService) PriceFor(ctx context.Context, q repositories.TierStore, trip models.Trip, count int) (int64, bool, error) {
	tiers, err := q.ListTiers(ctx, trip.DestinationID)
	if err != nil {
		return 0, false, err
	}
	if cost := ComputeTripCost(tiers, count); cost != nil {
		return cost.CostPerPerson, true, nil
	}
	if trip.FlatRate > 0 {
		return trip.FlatRate, false, nil
	}
	return s.DefaultFlatRate, false, nil
}

func (s PricingService) ListTiers(ctx context.Context, destinationID int64) ([]models.PricingTier, error) {
	if destinationID <= 0 {
		return nil, domain.ValidationError{Field: "destination_id", Msg: "invalid id"}
	}
	tiers, err := s.Store.ListTiers(ctx, destinationID)
	if err != nil {
		return nil, domain.InternalError{Err: err}
	}
	return tiers, nil
}

// ReplaceTiers swaps a destination's tier table. Existing bookings keep their
// frozen price; the next booking on each trip is priced from the new table.
func (s PricingService) ReplaceTiers(ctx context.Context, actor domain.RequestContext, destinationID int64, tiers []models.PricingTier) ([]models.PricingTier, error) {
	if !actor.IsAdmin() {
		return nil, domain.ForbiddenError{Msg: "only admins can change pricing"}
	}
	if destinationID <= 0 {
		return nil, domain.ValidationError{Field: "destination_id", Msg: "invalid id"}
	}
	if err := ValidateTiers(tiers); err != nil {
		return nil, err
	}

	sorted := make([]models.PricingTier, len(tiers))
	copy(sorted, tiers)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].MinPassengers < sorted[j].MinPassengers
	})
	for i := range sorted {
		sorted[i].DestinationID = destinationID
	}

	var saved []models.PricingTier
	err := s.Store.InTx(ctx, func(tx repositories.TxStore) error {
		if err := tx.ReplaceTiers(ctx, destinationID, sorted); err != nil {
			return err
		}
		var err error
		saved, err = tx.ListTiers(ctx, destinationID)
		return err
	})
	if err != nil {
		return nil, domain.InternalError{Err: err}
	}
	utils.LogEvent(s.RequestID, "pricing", "replace_tiers", fmt.Sprintf("destination_id=%d tiers=%d", destinationID, len(saved)))
	return saved, nil
}
