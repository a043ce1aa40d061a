package models

// PricingTier is a (minPassengers, costPerPerson) breakpoint for a destination.
type PricingTier struct {
	ID            int64 `json:"id"`
	DestinationID int64 `json:"destination_id"`
	MinPassengers int   `json:"min_passengers"`
	CostPerPerson int64 `json:"cost_per_person"`
}

// TripCost is the priced result for a passenger count.
type TripCost struct {
	PassengerCount int         `json:"passenger_count"`
	CostPerPerson  int64       `json:"cost_per_person"`
	TotalCost      int64       `json:"total_cost"`
	Savings        int64       `json:"savings,omitempty"`
	Tier           PricingTier `json:"tier"`
}
