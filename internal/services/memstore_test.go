package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"shuttle/internal/domain"
	"shuttle/internal/domain/models"
	"shuttle/internal/repositories"
)

// memStore is an in-memory repositories.Store. Each call is atomic but there is
// no isolation between transactions, so ordering is left to the trip lock.
type memStore struct {
	mu   sync.Mutex
	data memData

	// failCredit makes AppendTransaction fail for REFUND rows of these users.
	failCredit map[int64]error
	// beforeConfirmed runs ahead of every ConfirmedBookings read; a non-nil
	// error is returned instead of the rows.
	beforeConfirmed func(excludeID int64) error
}

type memData struct {
	nextID   int64
	trips    map[int64]models.Trip
	bookings map[int64]models.Booking
	tiers    map[int64][]models.PricingTier
	balances map[int64]int64
	txs      []models.CreditTransaction
}

var _ repositories.Store = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{
		data: memData{
			trips:    map[int64]models.Trip{},
			bookings: map[int64]models.Booking{},
			tiers:    map[int64][]models.PricingTier{},
			balances: map[int64]int64{},
		},
		failCredit: map[int64]error{},
	}
}

func (d memData) clone() memData {
	out := memData{
		nextID:   d.nextID,
		trips:    make(map[int64]models.Trip, len(d.trips)),
		bookings: make(map[int64]models.Booking, len(d.bookings)),
		tiers:    make(map[int64][]models.PricingTier, len(d.tiers)),
		balances: make(map[int64]int64, len(d.balances)),
		txs:      append([]models.CreditTransaction(nil), d.txs...),
	}
	for k, v := range d.trips {
		out.trips[k] = v
	}
	for k, v := range d.bookings {
		out.bookings[k] = v
	}
	for k, v := range d.tiers {
		out.tiers[k] = append([]models.PricingTier(nil), v...)
	}
	for k, v := range d.balances {
		out.balances[k] = v
	}
	return out
}

func (s *memStore) snapshot() memData {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.clone()
}

func (s *memStore) restore(d memData) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = d
}

func (s *memStore) InTx(ctx context.Context, fn func(tx repositories.TxStore) error) error {
	snap := s.snapshot()
	if err := fn(s); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *memStore) Savepoint(ctx context.Context, name string, fn func() error) error {
	snap := s.snapshot()
	if err := fn(); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *memStore) id() int64 {
	s.data.nextID++
	return s.data.nextID
}

// seeding helpers

func (s *memStore) addTrip(t models.Trip) models.Trip {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.ID = s.id()
	s.data.trips[t.ID] = t
	return t
}

func (s *memStore) setTiers(destinationID int64, tiers ...models.PricingTier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range tiers {
		tiers[i].DestinationID = destinationID
	}
	s.data.tiers[destinationID] = tiers
}

func (s *memStore) fund(userID, amount int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.balances[userID] += amount
	s.data.nextID++
	s.data.txs = append(s.data.txs, models.CreditTransaction{
		ID:           s.data.nextID,
		UserID:       userID,
		Type:         models.TxPurchase,
		Amount:       amount,
		BalanceAfter: s.data.balances[userID],
		Reference:    fmt.Sprintf("seed:%d", s.data.nextID),
	})
}

func (s *memStore) balance(userID int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.balances[userID]
}

func (s *memStore) booking(id int64) models.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.bookings[id]
}

func (s *memStore) transactions(userID int64, typ models.TransactionType) []models.CreditTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.CreditTransaction
	for _, t := range s.data.txs {
		if t.UserID == userID && (typ == "" || t.Type == typ) {
			out = append(out, t)
		}
	}
	return out
}

func (s *memStore) count() (bookings, txs int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data.bookings), len(s.data.txs)
}

// TripStore

func (s *memStore) GetTrip(ctx context.Context, id int64) (models.Trip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.data.trips[id]
	if !ok {
		return models.Trip{}, domain.NotFoundError{Resource: "trip"}
	}
	return t, nil
}

func (s *memStore) LockTrip(ctx context.Context, id int64) (models.Trip, error) {
	return s.GetTrip(ctx, id)
}

func (s *memStore) InsertTrip(ctx context.Context, t *models.Trip) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.ID = s.id()
	s.data.trips[t.ID] = *t
	return nil
}

func (s *memStore) SetTripPassengers(ctx context.Context, tripID int64, count int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.data.trips[tripID]
	if !ok {
		return domain.NotFoundError{Resource: "trip"}
	}
	t.CurrentPassengers = count
	t.UpdatedAt = at
	s.data.trips[tripID] = t
	return nil
}

// BookingStore

func (s *memStore) InsertBooking(ctx context.Context, b *models.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b.ID = s.id()
	s.data.bookings[b.ID] = *b
	return nil
}

func (s *memStore) GetBooking(ctx context.Context, id int64) (models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.data.bookings[id]
	if !ok {
		return models.Booking{}, domain.NotFoundError{Resource: "booking"}
	}
	return b, nil
}

func (s *memStore) LockBooking(ctx context.Context, id int64) (models.Booking, error) {
	return s.GetBooking(ctx, id)
}

func (s *memStore) sortedBookings(tripID int64, keep func(models.Booking) bool) []models.Booking {
	var out []models.Booking
	for _, b := range s.data.bookings {
		if b.TripID == tripID && keep(b) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *memStore) ConfirmedBookings(ctx context.Context, tripID, excludeID int64) ([]models.Booking, error) {
	if s.beforeConfirmed != nil {
		if err := s.beforeConfirmed(excludeID); err != nil {
			return nil, err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedBookings(tripID, func(b models.Booking) bool {
		return b.Status == models.BookingConfirmed && b.ID != excludeID
	}), nil
}

func (s *memStore) TripBookings(ctx context.Context, tripID int64) ([]models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedBookings(tripID, func(models.Booking) bool { return true }), nil
}

func (s *memStore) LowerCreditsCost(ctx context.Context, bookingID, cost int64, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.data.bookings[bookingID]
	if !ok || b.CreditsCost <= cost {
		return false, nil
	}
	b.CreditsCost = cost
	b.UpdatedAt = at
	s.data.bookings[bookingID] = b
	return true, nil
}

func (s *memStore) UpdateBookingStatus(ctx context.Context, id int64, from, to models.BookingStatus, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.data.bookings[id]
	if !ok || b.Status != from {
		return false, nil
	}
	b.Status = to
	b.UpdatedAt = at
	s.data.bookings[id] = b
	return true, nil
}

// TierStore

func (s *memStore) ListTiers(ctx context.Context, destinationID int64) ([]models.PricingTier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]models.PricingTier(nil), s.data.tiers[destinationID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].MinPassengers < out[j].MinPassengers })
	return out, nil
}

func (s *memStore) ReplaceTiers(ctx context.Context, destinationID int64, tiers []models.PricingTier) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	saved := make([]models.PricingTier, len(tiers))
	for i, t := range tiers {
		t.ID = s.id()
		t.DestinationID = destinationID
		saved[i] = t
	}
	s.data.tiers[destinationID] = saved
	return nil
}

// CreditStore

func (s *memStore) LockBalance(ctx context.Context, userID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.balances[userID], nil
}

func (s *memStore) GetBalance(ctx context.Context, userID int64) (models.CreditBalance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.CreditBalance{UserID: userID, Credits: s.data.balances[userID]}, nil
}

func (s *memStore) SetBalance(ctx context.Context, userID, credits int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.balances[userID] = credits
	return nil
}

func (s *memStore) AppendTransaction(ctx context.Context, t *models.CreditTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.failCredit[t.UserID]; ok && t.Type == models.TxRefund {
		return err
	}
	for _, existing := range s.data.txs {
		if existing.Reference == t.Reference {
			return domain.ConflictError{Resource: "credit_transaction", Msg: "duplicate reference"}
		}
	}
	t.ID = s.id()
	s.data.txs = append(s.data.txs, *t)
	return nil
}

func (s *memStore) ListTransactions(ctx context.Context, userID int64, page domain.Pagination) ([]models.CreditTransaction, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []models.CreditTransaction
	for i := len(s.data.txs) - 1; i >= 0; i-- {
		if s.data.txs[i].UserID == userID {
			all = append(all, s.data.txs[i])
		}
	}
	page = page.Normalize()
	start := page.Offset()
	if start > len(all) {
		start = len(all)
	}
	end := start + page.PageSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], len(all), nil
}

func (s *memStore) LedgerSum(ctx context.Context, userID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sum int64
	for _, t := range s.data.txs {
		if t.UserID == userID {
			sum += t.Amount
		}
	}
	return sum, nil
}

func (s *memStore) LedgerUserIDs(ctx context.Context) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[int64]bool{}
	var ids []int64
	for _, t := range s.data.txs {
		if !seen[t.UserID] {
			seen[t.UserID] = true
			ids = append(ids, t.UserID)
		}
	}
	for id := range s.data.balances {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *memStore) trips(id int64) models.Trip {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.trips[id]
}
