package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"golang.org/x/sync/errgroup"

	"shuttle/internal/domain"
	"shuttle/internal/domain/models"
	"shuttle/internal/notify"
)

func bookOne(t *testing.T, f tieredFixture, userID int64, passengers int) BookingResult {
	t.Helper()
	res, err := f.svc.CreateBooking(context.Background(), rider(userID), models.BookingInput{
		TripID:         f.trip.ID,
		PassengerCount: passengers,
	})
	if err != nil {
		t.Fatalf("CreateBooking for user %d returned error: %v", userID, err)
	}
	return res
}

func refundSum(store *memStore, userID int64) int64 {
	var sum int64
	for _, tx := range store.transactions(userID, models.TxRefund) {
		sum += tx.Amount
	}
	return sum
}

func TestPlanRefunds(t *testing.T) {
	bookings := []models.Booking{
		{ID: 1, PassengerCount: 1, CreditsCost: 50, Status: models.BookingConfirmed},
		{ID: 2, PassengerCount: 2, CreditsCost: 100, Status: models.BookingConfirmed},
		{ID: 3, PassengerCount: 1, CreditsCost: 40, Status: models.BookingConfirmed},
		{ID: 4, PassengerCount: 1, CreditsCost: 50, Status: models.BookingCancelled},
	}
	plans := PlanRefunds(bookings, 40)
	if len(plans) != 2 {
		t.Fatalf("expected 2 plans, got %+v", plans)
	}
	if plans[0].Booking.ID != 1 || plans[0].Amount != 10 || plans[0].SettledCost != 40 {
		t.Fatalf("unexpected first plan: %+v", plans[0])
	}
	if plans[1].Booking.ID != 2 || plans[1].Amount != 20 || plans[1].SettledCost != 80 {
		t.Fatalf("unexpected second plan: %+v", plans[1])
	}
	if got := PlanRefunds(bookings, 60); len(got) != 0 {
		t.Fatalf("a higher price must never plan refunds, got %+v", got)
	}
}

func TestThirdRiderTriggersGroupRefunds(t *testing.T) {
	f := newTieredFixture(10)
	for _, u := range []int64{11, 12, 13} {
		f.store.fund(u, 100)
	}

	first := bookOne(t, f, 11, 1)
	second := bookOne(t, f, 12, 1)
	if first.Booking.CreditsCost != 50 || second.Booking.CreditsCost != 50 {
		t.Fatalf("first two riders should pay 50, got %d and %d", first.Booking.CreditsCost, second.Booking.CreditsCost)
	}

	third := bookOne(t, f, 13, 1)
	if third.CostPerPerson != 40 || third.Booking.CreditsCost != 40 {
		t.Fatalf("third rider should pay 40, got %+v", third)
	}
	r := third.Refunds
	if !r.Success || r.RefundsProcessed != 2 || r.TotalRefunded != 20 {
		t.Fatalf("unexpected refund result: %+v", r)
	}
	for _, d := range r.RefundDetails {
		if d.RefundAmount != 10 {
			t.Fatalf("each earlier rider should get 10 back: %+v", d)
		}
	}
	if third.Warning != "" {
		t.Fatalf("unexpected warning %q", third.Warning)
	}

	for _, u := range []int64{11, 12, 13} {
		if got := f.store.balance(u); got != 60 {
			t.Fatalf("user %d balance = %d, want 60", u, got)
		}
	}
	if got := f.store.booking(first.Booking.ID).CreditsCost; got != 40 {
		t.Fatalf("first booking should settle at 40, got %d", got)
	}
	if got := f.store.trips(f.trip.ID).CurrentPassengers; got != 3 {
		t.Fatalf("trip passenger count = %d, want 3", got)
	}

	keys := f.pub.keys()
	if keys[len(keys)-1] != notify.KeyBookingRefunded {
		t.Fatalf("expected a refund event last, got %v", keys)
	}
}

func TestSweepIsIdempotentAtSamePrice(t *testing.T) {
	f := newTieredFixture(10)
	for _, u := range []int64{11, 12, 13} {
		f.store.fund(u, 100)
		bookOne(t, f, u, 1)
	}

	refunds := RefundService{
		Store:   f.store,
		Pricing: f.svc.Pricing,
		Ledger:  LedgerService{Store: f.store, Now: fixedNow},
		Locker:  f.svc.Locker,
		Now:     fixedNow,
	}
	before := refundSum(f.store, 11) + refundSum(f.store, 12)

	again, err := refunds.ProcessRetroactiveRefunds(context.Background(), admin, f.trip.ID, 0)
	if err != nil {
		t.Fatalf("ProcessRetroactiveRefunds returned error: %v", err)
	}
	if again.RefundsProcessed != 0 || again.TotalRefunded != 0 || !again.Success {
		t.Fatalf("second sweep at the same tier must refund nothing: %+v", again)
	}
	if after := refundSum(f.store, 11) + refundSum(f.store, 12); after != before {
		t.Fatalf("refund total changed from %d to %d", before, after)
	}

	if _, err := refunds.ProcessRetroactiveRefunds(context.Background(), rider(11), f.trip.ID, 0); !domain.IsForbidden(err) {
		t.Fatalf("expected forbidden for non-admin sweep, got %v", err)
	}
}

func TestRefundsConserveCreditsAndNeverRaiseCost(t *testing.T) {
	f := newTieredFixture(12)
	groups := []int{1, 2, 1, 3, 1, 2}
	paid := map[int64]int64{}
	lastCost := map[int64]int64{}

	for i, n := range groups {
		user := int64(20 + i)
		f.store.fund(user, 500)
		res := bookOne(t, f, user, n)
		paid[res.Booking.ID] = res.Booking.CreditsCost
		lastCost[res.Booking.ID] = res.Booking.CreditsCost

		for id, prev := range lastCost {
			cur := f.store.booking(id).CreditsCost
			if cur > prev {
				t.Fatalf("booking %d cost rose from %d to %d", id, prev, cur)
			}
			lastCost[id] = cur
		}
	}

	// 10 riders: everyone settles at the 5+ tier.
	var owed, refunded int64
	for id, p := range paid {
		b := f.store.booking(id)
		want := int64(30) * int64(b.PassengerCount)
		if b.CreditsCost != want {
			t.Fatalf("booking %d settled at %d, want %d", id, b.CreditsCost, want)
		}
		owed += p - b.CreditsCost
	}
	for i := range groups {
		refunded += refundSum(f.store, int64(20+i))
	}
	if refunded != owed {
		t.Fatalf("refunded %d, but riders overpaid by %d", refunded, owed)
	}

	for i := range groups {
		user := int64(20 + i)
		sum, _ := f.store.LedgerSum(context.Background(), user)
		if sum != f.store.balance(user) {
			t.Fatalf("user %d balance %d does not match ledger %d", user, f.store.balance(user), sum)
		}
	}
}

func TestSweepContinuesPastFailedRefund(t *testing.T) {
	f := newTieredFixture(10)
	for _, u := range []int64{11, 12, 13} {
		f.store.fund(u, 100)
	}
	first := bookOne(t, f, 11, 1)
	second := bookOne(t, f, 12, 1)

	f.store.failCredit[11] = errors.New("ledger unavailable")
	third := bookOne(t, f, 13, 1)

	r := third.Refunds
	if r.Success || len(r.Errors) != 1 {
		t.Fatalf("expected one collected error: %+v", r)
	}
	if r.RefundsProcessed != 1 || r.TotalRefunded != 10 || r.RefundDetails[0].BookingID != second.Booking.ID {
		t.Fatalf("second booking should still be refunded: %+v", r)
	}
	if third.Warning != RefundWarning {
		t.Fatalf("expected warning %q, got %q", RefundWarning, third.Warning)
	}

	if got := f.store.booking(first.Booking.ID).CreditsCost; got != 50 {
		t.Fatalf("failed refund must leave cost untouched, got %d", got)
	}
	if got := f.store.balance(11); got != 50 {
		t.Fatalf("failed refund must leave balance untouched, got %d", got)
	}

	// The booking itself committed.
	if got := f.store.booking(third.Booking.ID).Status; got != models.BookingConfirmed {
		t.Fatalf("booking status = %s", got)
	}

	delete(f.store.failCredit, 11)
	refunds := RefundService{Store: f.store, Pricing: f.svc.Pricing, Locker: f.svc.Locker, Now: fixedNow}
	retry, err := refunds.ProcessRetroactiveRefunds(context.Background(), admin, f.trip.ID, 0)
	if err != nil {
		t.Fatalf("retry sweep returned error: %v", err)
	}
	if retry.RefundsProcessed != 1 || retry.RefundDetails[0].BookingID != first.Booking.ID {
		t.Fatalf("retry should refund only the skipped booking: %+v", retry)
	}
}

func TestSweepFailureKeepsBookingWithWarning(t *testing.T) {
	f := newTieredFixture(10)
	for _, u := range []int64{11, 12, 13} {
		f.store.fund(u, 100)
	}
	first := bookOne(t, f, 11, 1)
	second := bookOne(t, f, 12, 1)

	f.store.beforeConfirmed = func(excludeID int64) error {
		if excludeID != 0 {
			return errors.New("bookings scan failed")
		}
		return nil
	}
	third := bookOne(t, f, 13, 1)

	if third.Warning != RefundWarning {
		t.Fatalf("expected warning %q, got %q", RefundWarning, third.Warning)
	}
	r := third.Refunds
	if r.Success || len(r.Errors) != 1 || r.RefundsProcessed != 0 {
		t.Fatalf("expected a failed sweep with one error: %+v", r)
	}
	if got := f.store.booking(third.Booking.ID); got.Status != models.BookingConfirmed || got.CreditsCost != 40 {
		t.Fatalf("booking should commit at the 3-rider price: %+v", got)
	}
	if got := f.store.balance(13); got != 60 {
		t.Fatalf("booker balance = %d, want 60", got)
	}
	if got := f.store.trips(f.trip.ID).CurrentPassengers; got != 3 {
		t.Fatalf("trip passenger count = %d, want 3", got)
	}
	for _, id := range []int64{first.Booking.ID, second.Booking.ID} {
		if got := f.store.booking(id).CreditsCost; got != 50 {
			t.Fatalf("booking %d cost = %d, want untouched 50", id, got)
		}
	}

	f.store.beforeConfirmed = nil
	refunds := RefundService{Store: f.store, Pricing: f.svc.Pricing, Locker: f.svc.Locker, Now: fixedNow}
	retry, err := refunds.ProcessRetroactiveRefunds(context.Background(), admin, f.trip.ID, 0)
	if err != nil {
		t.Fatalf("retry sweep returned error: %v", err)
	}
	if retry.RefundsProcessed != 2 || retry.TotalRefunded != 20 {
		t.Fatalf("retry should settle both earlier bookings: %+v", retry)
	}
}

func TestAbortedTransactionFailsBooking(t *testing.T) {
	f := newTieredFixture(10)
	for _, u := range []int64{11, 12, 13} {
		f.store.fund(u, 100)
	}
	first := bookOne(t, f, 11, 1)
	bookOne(t, f, 12, 1)
	bookingsBefore, txsBefore := f.store.count()

	f.store.failCredit[11] = fmt.Errorf("append refund: %w", &mysql.MySQLError{Number: 1213, Message: "Deadlock found when trying to get lock"})
	_, err := f.svc.CreateBooking(context.Background(), rider(13), models.BookingInput{TripID: f.trip.ID, PassengerCount: 1})
	if !domain.IsConflict(err) {
		t.Fatalf("expected retryable conflict, got %v", err)
	}

	bookingsAfter, txsAfter := f.store.count()
	if bookingsAfter != bookingsBefore || txsAfter != txsBefore {
		t.Fatalf("aborted booking left rows behind: bookings %d→%d txs %d→%d", bookingsBefore, bookingsAfter, txsBefore, txsAfter)
	}
	if got := f.store.balance(13); got != 100 {
		t.Fatalf("booker balance = %d, want 100", got)
	}
	if got := f.store.booking(first.Booking.ID).CreditsCost; got != 50 {
		t.Fatalf("first booking cost = %d, want 50", got)
	}
	if got := f.store.trips(f.trip.ID).CurrentPassengers; got != 2 {
		t.Fatalf("trip passenger count = %d, want 2", got)
	}
	if len(f.pub.keys()) != 2 {
		t.Fatalf("aborted booking must not publish events: %v", f.pub.keys())
	}
}

// Both bookings read the trip before either writes unless the trip lock
// serialises them. Going from 3 to 4 riders changes the price, so a lost
// update shows up in every balance.
func TestConcurrentBookingsDoNotDoubleRefund(t *testing.T) {
	f := newTieredFixture(10)
	f.store.setTiers(7,
		models.PricingTier{MinPassengers: 1, CostPerPerson: 50},
		models.PricingTier{MinPassengers: 3, CostPerPerson: 40},
		models.PricingTier{MinPassengers: 4, CostPerPerson: 30},
	)
	for _, u := range []int64{11, 12, 13, 14} {
		f.store.fund(u, 100)
	}
	bookOne(t, f, 11, 1)
	bookOne(t, f, 12, 1)

	var (
		gateMu   sync.Mutex
		arrivals int
	)
	both := make(chan struct{})
	f.store.beforeConfirmed = func(excludeID int64) error {
		if excludeID != 0 {
			return nil
		}
		gateMu.Lock()
		arrivals++
		if arrivals == 2 {
			close(both)
		}
		gateMu.Unlock()
		select {
		case <-both:
		case <-time.After(200 * time.Millisecond):
		}
		return nil
	}

	var g errgroup.Group
	for _, u := range []int64{13, 14} {
		u := u
		g.Go(func() error {
			_, err := f.svc.CreateBooking(context.Background(), rider(u), models.BookingInput{
				TripID:         f.trip.ID,
				PassengerCount: 1,
			})
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent booking failed: %v", err)
	}

	for _, u := range []int64{11, 12} {
		if got := refundSum(f.store, u); got != 20 {
			t.Fatalf("user %d refunded %d, want exactly 20", u, got)
		}
	}
	for _, u := range []int64{11, 12, 13, 14} {
		if got := f.store.balance(u); got != 70 {
			t.Fatalf("user %d balance = %d, want 70", u, got)
		}
	}
	if got := f.store.trips(f.trip.ID).CurrentPassengers; got != 4 {
		t.Fatalf("trip passenger count = %d, want 4", got)
	}
}
