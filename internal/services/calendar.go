package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"shuttle/internal/domain/models"
)

// CalendarProvider blocks trip time slots on some calendar.
type CalendarProvider interface {
	Name() string
	CheckAvailability(ctx context.Context, start, end time.Time) (bool, error)
	CreateEvent(ctx context.Context, trip models.Trip) (string, error)
}

// CalendarEventStore keeps the trip → provider event mapping.
type CalendarEventStore interface {
	FindEvent(ctx context.Context, tripID int64) (models.CalendarEvent, bool, error)
	SaveEvent(ctx context.Context, ev models.CalendarEvent) error
}

// CalendarChain asks providers in order and uses the first one that answers.
type CalendarChain struct {
	Providers []CalendarProvider
	Events    CalendarEventStore
	Now       func() time.Time
}

// CheckAvailability returns the first provider's answer. When every provider
// fails the joined error is returned and callers treat the slot as unknown.
func (c *CalendarChain) CheckAvailability(ctx context.Context, start, end time.Time) (bool, string, error) {
	if c == nil || len(c.Providers) == 0 {
		return true, "", nil
	}
	var errs []error
	for _, p := range c.Providers {
		ok, err := p.CheckAvailability(ctx, start, end)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
			continue
		}
		return ok, p.Name(), nil
	}
	return false, "", errors.Join(errs...)
}

// EnsureEvent creates the trip's calendar event once. A recorded mapping
// short-circuits; otherwise providers are tried in order.
func (c *CalendarChain) EnsureEvent(ctx context.Context, trip models.Trip) (models.CalendarEvent, error) {
	if c == nil || len(c.Providers) == 0 {
		return models.CalendarEvent{}, errors.New("no calendar providers configured")
	}
	if c.Events != nil {
		ev, found, err := c.Events.FindEvent(ctx, trip.ID)
		if err != nil {
			return models.CalendarEvent{}, err
		}
		if found {
			return ev, nil
		}
	}

	var errs []error
	for _, p := range c.Providers {
		externalID, err := p.CreateEvent(ctx, trip)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
			continue
		}
		ev := models.CalendarEvent{
			TripID:     trip.ID,
			Provider:   p.Name(),
			ExternalID: externalID,
			CreatedAt:  nowOr(c.Now),
		}
		if c.Events != nil {
			if err := c.Events.SaveEvent(ctx, ev); err != nil {
				return ev, fmt.Errorf("record %s event: %w", p.Name(), err)
			}
		}
		return ev, nil
	}
	return models.CalendarEvent{}, errors.Join(errs...)
}

// BlockStore is the storage behind InHouseBlocker.
type BlockStore interface {
	CountOverlappingBlocks(ctx context.Context, start, end time.Time) (int, error)
	InsertBlock(ctx context.Context, b *models.CalendarBlock) error
}

const ProviderInHouse = "inhouse"

// InHouseBlocker reserves trip windows in the service's own database.
type InHouseBlocker struct {
	Blocks BlockStore
}

func (InHouseBlocker) Name() string { return ProviderInHouse }

func (b InHouseBlocker) CheckAvailability(ctx context.Context, start, end time.Time) (bool, error) {
	n, err := b.Blocks.CountOverlappingBlocks(ctx, start, end)
	if err != nil {
		return false, err
	}
	return n == 0, nil
}

func (b InHouseBlocker) CreateEvent(ctx context.Context, trip models.Trip) (string, error) {
	block := models.CalendarBlock{TripID: trip.ID, StartTime: trip.StartTime, EndTime: trip.EndTime}
	if err := b.Blocks.InsertBlock(ctx, &block); err != nil {
		return "", err
	}
	return fmt.Sprintf("block-%d", block.ID), nil
}

// CalendarStore is what BuildCalendarChain needs from the calendar repository.
type CalendarStore interface {
	CalendarEventStore
	BlockStore
}

// BuildCalendarChain assembles providers by configured name.
func BuildCalendarChain(names []string, store CalendarStore) (*CalendarChain, error) {
	chain := &CalendarChain{Events: store}
	for _, name := range names {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "":
			continue
		case ProviderInHouse:
			chain.Providers = append(chain.Providers, InHouseBlocker{Blocks: store})
		default:
			return nil, fmt.Errorf("unknown calendar provider %q", name)
		}
	}
	return chain, nil
}
