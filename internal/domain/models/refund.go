package models

// RefundDetail describes one retroactive refund.
type RefundDetail struct {
	BookingID    int64 `json:"booking_id"`
	UserID       int64 `json:"user_id"`
	RefundAmount int64 `json:"refund_amount"`
	PreviousCost int64 `json:"previous_cost"`
	SettledCost  int64 `json:"settled_cost"`
}

// RefundResult is the outcome of a refund sweep over one trip.
type RefundResult struct {
	Success          bool           `json:"success"`
	TripID           int64          `json:"trip_id"`
	PassengerCount   int            `json:"passenger_count"`
	CostPerPerson    int64          `json:"cost_per_person"`
	RefundsProcessed int            `json:"refunds_processed"`
	TotalRefunded    int64          `json:"total_refunded"`
	RefundDetails    []RefundDetail `json:"refund_details"`
	Errors           []string       `json:"errors"`
}
