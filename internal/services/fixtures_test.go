package services

import (
	"context"
	"sync"
	"time"

	"shuttle/internal/domain"
	"shuttle/internal/domain/models"
	"shuttle/internal/locks"
)

var testNow = time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return testNow }

var admin = domain.RequestContext{UserID: 1, Role: domain.RoleAdmin}

func rider(id int64) domain.RequestContext {
	return domain.RequestContext{UserID: id, Role: "user"}
}

type recordedEvent struct {
	Key   string
	Event any
}

// recordingPublisher keeps every published event in order.
type recordingPublisher struct {
	mu     sync.Mutex
	events []recordedEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, key string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{Key: key, Event: event})
	return p.err
}

func (p *recordingPublisher) keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Key
	}
	return out
}

func inline(fn func()) { fn() }

// tieredFixture is a trip on destination 7 priced 50/40/30 at 1/3/5 riders.
type tieredFixture struct {
	store *memStore
	trip  models.Trip
	pub   *recordingPublisher
	svc   BookingService
}

func newTieredFixture(maxPassengers int) tieredFixture {
	store := newMemStore()
	store.setTiers(7,
		models.PricingTier{MinPassengers: 1, CostPerPerson: 50},
		models.PricingTier{MinPassengers: 3, CostPerPerson: 40},
		models.PricingTier{MinPassengers: 5, CostPerPerson: 30},
	)
	trip := store.addTrip(models.Trip{
		DestinationID: 7,
		StartTime:     testNow.Add(72 * time.Hour),
		EndTime:       testNow.Add(75 * time.Hour),
		MaxPassengers: maxPassengers,
	})
	pub := &recordingPublisher{}
	svc := BookingService{
		Store:   store,
		Pricing: PricingService{Store: store, DefaultFlatRate: 25},
		Locker:  locks.NewKeyedMutex(),
		Events:  &Dispatcher{Publisher: pub, Go: inline},
		Now:     fixedNow,
	}
	return tieredFixture{store: store, trip: trip, pub: pub, svc: svc}
}
