package models

import "time"

type TransactionType string

const (
	TxUsage           TransactionType = "USAGE"
	TxRefund          TransactionType = "REFUND"
	TxPurchase        TransactionType = "PURCHASE"
	TxAdminAdjustment TransactionType = "ADMIN_ADJUSTMENT"
)

// CreditBalance is the cached projection of a user's transaction log.
type CreditBalance struct {
	UserID    int64     `json:"user_id"`
	Credits   int64     `json:"credits"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CreditTransaction is an immutable ledger entry. Amount is signed:
// negative for USAGE, positive for REFUND and PURCHASE.
type CreditTransaction struct {
	ID           int64           `json:"id"`
	UserID       int64           `json:"user_id"`
	Type         TransactionType `json:"type"`
	Amount       int64           `json:"amount"`
	BalanceAfter int64           `json:"balance_after"`
	Description  string          `json:"description"`
	BookingID    *int64          `json:"booking_id,omitempty"`
	TripID       *int64          `json:"trip_id,omitempty"`
	Reference    string          `json:"reference"`
	CreatedAt    time.Time       `json:"created_at"`
}

// LedgerCheck is the outcome of comparing a cached balance to its log.
type LedgerCheck struct {
	UserID    int64 `json:"user_id"`
	Balance   int64 `json:"balance"`
	LedgerSum int64 `json:"ledger_sum"`
	Drift     int64 `json:"drift"`
	Repaired  bool  `json:"repaired"`
}

func (c LedgerCheck) Consistent() bool {
	return c.Drift == 0
}
