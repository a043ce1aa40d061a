package services

import (
	"context"
	"testing"

	"shuttle/internal/domain"
	"shuttle/internal/domain/models"
)

func sampleTiers() []models.PricingTier {
	// deliberately unsorted
	return []models.PricingTier{
		{MinPassengers: 5, CostPerPerson: 30},
		{MinPassengers: 1, CostPerPerson: 50},
		{MinPassengers: 3, CostPerPerson: 40},
	}
}

func TestComputeTripCostPicksGreatestTierAtOrBelowCount(t *testing.T) {
	tiers := sampleTiers()
	for n := 1; n <= 20; n++ {
		want := int64(50)
		for _, tier := range tiers {
			if tier.MinPassengers <= n && tier.CostPerPerson < want {
				want = tier.CostPerPerson
			}
		}
		got := ComputeTripCost(tiers, n)
		if got == nil {
			t.Fatalf("n=%d: expected a cost", n)
		}
		if got.CostPerPerson != want {
			t.Fatalf("n=%d: cost per person %d, want %d", n, got.CostPerPerson, want)
		}
		if got.TotalCost != want*int64(n) {
			t.Fatalf("n=%d: total %d, want %d", n, got.TotalCost, want*int64(n))
		}
		if got.Savings != 50-want {
			t.Fatalf("n=%d: savings %d, want %d", n, got.Savings, 50-want)
		}
	}
}

func TestComputeTripCostWithoutTiers(t *testing.T) {
	if got := ComputeTripCost(nil, 3); got != nil {
		t.Fatalf("expected nil without tiers, got %+v", got)
	}
}

func TestComputeTripCostBelowLowestTier(t *testing.T) {
	tiers := []models.PricingTier{{MinPassengers: 2, CostPerPerson: 45}, {MinPassengers: 4, CostPerPerson: 35}}
	got := ComputeTripCost(tiers, 1)
	if got == nil || got.CostPerPerson != 45 || got.Savings != 0 {
		t.Fatalf("unexpected cost below lowest tier: %+v", got)
	}
}

func TestComputeTripCostDoesNotReorderInput(t *testing.T) {
	tiers := sampleTiers()
	ComputeTripCost(tiers, 4)
	if tiers[0].MinPassengers != 5 {
		t.Fatalf("input slice was modified: %+v", tiers)
	}
}

func TestValidateTiers(t *testing.T) {
	cases := []struct {
		name  string
		tiers []models.PricingTier
		ok    bool
	}{
		{"empty", nil, true},
		{"discount curve", sampleTiers(), true},
		{"flat", []models.PricingTier{{MinPassengers: 1, CostPerPerson: 20}, {MinPassengers: 4, CostPerPerson: 20}}, true},
		{"zero breakpoint", []models.PricingTier{{MinPassengers: 0, CostPerPerson: 20}}, false},
		{"negative cost", []models.PricingTier{{MinPassengers: 1, CostPerPerson: -1}}, false},
		{"duplicate", []models.PricingTier{{MinPassengers: 2, CostPerPerson: 20}, {MinPassengers: 2, CostPerPerson: 10}}, false},
		{"price rises", []models.PricingTier{{MinPassengers: 1, CostPerPerson: 20}, {MinPassengers: 3, CostPerPerson: 25}}, false},
	}
	for _, tc := range cases {
		err := ValidateTiers(tc.tiers)
		if tc.ok && err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
		if !tc.ok && !domain.IsValidation(err) {
			t.Fatalf("%s: expected validation error, got %v", tc.name, err)
		}
	}
}

func TestCalculateTripCostRejectsEmptyGroup(t *testing.T) {
	store := newMemStore()
	svc := PricingService{Store: store}
	if _, err := svc.CalculateTripCost(context.Background(), 7, 0); !domain.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	cost, err := svc.CalculateTripCost(context.Background(), 7, 3)
	if err != nil {
		t.Fatalf("CalculateTripCost returned error: %v", err)
	}
	if cost != nil {
		t.Fatalf("expected nil cost for destination without tiers, got %+v", cost)
	}
}

func TestPriceForFallsBackToFlatRate(t *testing.T) {
	store := newMemStore()
	svc := PricingService{Store: store, DefaultFlatRate: 25}
	ctx := context.Background()

	price, tiered, err := svc.PriceFor(ctx, store, models.Trip{DestinationID: 9, FlatRate: 60}, 3)
	if err != nil || tiered || price != 60 {
		t.Fatalf("trip flat rate: price=%d tiered=%v err=%v", price, tiered, err)
	}
	price, tiered, err = svc.PriceFor(ctx, store, models.Trip{DestinationID: 9}, 3)
	if err != nil || tiered || price != 25 {
		t.Fatalf("default flat rate: price=%d tiered=%v err=%v", price, tiered, err)
	}

	store.setTiers(9, models.PricingTier{MinPassengers: 1, CostPerPerson: 35})
	price, tiered, err = svc.PriceFor(ctx, store, models.Trip{DestinationID: 9, FlatRate: 60}, 3)
	if err != nil || !tiered || price != 35 {
		t.Fatalf("tiered: price=%d tiered=%v err=%v", price, tiered, err)
	}
}

func TestReplaceTiers(t *testing.T) {
	store := newMemStore()
	svc := PricingService{Store: store}
	ctx := context.Background()

	if _, err := svc.ReplaceTiers(ctx, rider(5), 7, sampleTiers()); !domain.IsForbidden(err) {
		t.Fatalf("expected forbidden for non-admin, got %v", err)
	}

	saved, err := svc.ReplaceTiers(ctx, admin, 7, sampleTiers())
	if err != nil {
		t.Fatalf("ReplaceTiers returned error: %v", err)
	}
	if len(saved) != 3 || saved[0].MinPassengers != 1 || saved[2].MinPassengers != 5 {
		t.Fatalf("unexpected saved tiers: %+v", saved)
	}
	for _, tier := range saved {
		if tier.DestinationID != 7 || tier.ID == 0 {
			t.Fatalf("tier not stamped: %+v", tier)
		}
	}

	bad := []models.PricingTier{{MinPassengers: 1, CostPerPerson: 10}, {MinPassengers: 2, CostPerPerson: 20}}
	if _, err := svc.ReplaceTiers(ctx, admin, 7, bad); !domain.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	tiers, _ := svc.ListTiers(ctx, 7)
	if len(tiers) != 3 {
		t.Fatalf("invalid replace must keep old tiers, got %+v", tiers)
	}
}
