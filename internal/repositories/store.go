package repositories

import (
	"context"
	"database/sql"
	"time"

	intconfig "shuttle/internal/config"
	intdb "shuttle/internal/db"
	"shuttle/internal/domain"
	"shuttle/internal/domain/models"
)

type TripStore interface {
	GetTrip(ctx context.Context, id int64) (models.Trip, error)
	// LockTrip reads the trip and holds its row lock until the transaction ends.
	LockTrip(ctx context.Context, id int64) (models.Trip, error)
	InsertTrip(ctx context.Context, t *models.Trip) error
	SetTripPassengers(ctx context.Context, tripID int64, count int, at time.Time) error
}

type BookingStore interface {
	InsertBooking(ctx context.Context, b *models.Booking) error
	GetBooking(ctx context.Context, id int64) (models.Booking, error)
	LockBooking(ctx context.Context, id int64) (models.Booking, error)
	// ConfirmedBookings lists CONFIRMED bookings on a trip oldest first,
	// skipping excludeID (0 skips nothing).
	ConfirmedBookings(ctx context.Context, tripID, excludeID int64) ([]models.Booking, error)
	TripBookings(ctx context.Context, tripID int64) ([]models.Booking, error)
	// LowerCreditsCost sets credits_cost only when it is currently higher.
	LowerCreditsCost(ctx context.Context, bookingID, cost int64, at time.Time) (bool, error)
	UpdateBookingStatus(ctx context.Context, id int64, from, to models.BookingStatus, at time.Time) (bool, error)
}

type TierStore interface {
	ListTiers(ctx context.Context, destinationID int64) ([]models.PricingTier, error)
	ReplaceTiers(ctx context.Context, destinationID int64, tiers []models.PricingTier) error
}

type CreditStore interface {
	// LockBalance returns the balance and holds its row lock, creating a zero row when absent.
	LockBalance(ctx context.Context, userID int64) (int64, error)
	GetBalance(ctx context.Context, userID int64) (models.CreditBalance, error)
	SetBalance(ctx context.Context, userID, credits int64, at time.Time) error
	AppendTransaction(ctx context.Context, t *models.CreditTransaction) error
	ListTransactions(ctx context.Context, userID int64, page domain.Pagination) ([]models.CreditTransaction, int, error)
	LedgerSum(ctx context.Context, userID int64) (int64, error)
	LedgerUserIDs(ctx context.Context) ([]int64, error)
}

// TxStore is everything the pricing/booking/ledger flow touches in one transaction.
type TxStore interface {
	TripStore
	BookingStore
	TierStore
	CreditStore
	// Savepoint isolates fn so its failure leaves the transaction usable.
	Savepoint(ctx context.Context, name string, fn func() error) error
}

// Store is a TxStore that can also open transactions.
type Store interface {
	TxStore
	InTx(ctx context.Context, fn func(tx TxStore) error) error
}

type sqlScope struct {
	TripRepository
	BookingRepository
	PricingRepository
	CreditRepository
	q intdb.DBTX
}

func newScope(q intdb.DBTX) sqlScope {
	return sqlScope{
		TripRepository:    TripRepository{DB: q},
		BookingRepository: BookingRepository{DB: q},
		PricingRepository: PricingRepository{DB: q},
		CreditRepository:  CreditRepository{DB: q},
		q:                 q,
	}
}

func (s sqlScope) Savepoint(ctx context.Context, name string, fn func() error) error {
	return intdb.Savepoint(ctx, s.q, name, fn)
}

// SQLStore is the MySQL-backed Store.
type SQLStore struct {
	sqlScope
	DB *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	if db == nil {
		db = intconfig.DB
	}
	return &SQLStore{sqlScope: newScope(db), DB: db}
}

func (s *SQLStore) InTx(ctx context.Context, fn func(tx TxStore) error) error {
	return intdb.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		return fn(newScope(tx))
	})
}

func dbOrGlobal(q intdb.DBTX) intdb.DBTX {
	if q != nil {
		return q
	}
	if intconfig.DB != nil {
		return intconfig.DB
	}
	return nil
}
