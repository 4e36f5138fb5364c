package item

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/asegarra/lostfound/internal/clock"
	"github.com/asegarra/lostfound/internal/event"
	"github.com/asegarra/lostfound/internal/store"
)

// Lifecycle coordinates item state changes and storage occupancy.
type Lifecycle struct {
	items     store.ItemRepository
	locations store.LocationRepository
	events    event.Store
	logger    *slog.Logger
	tracer    trace.Tracer
	clock     clock.Clock
}

// NewLifecycle returns a new Lifecycle engine.
func NewLifecycle(items store.ItemRepository, locations store.LocationRepository, events event.Store, logger *slog.Logger, tp trace.TracerProvider, clk clock.Clock) *Lifecycle {
	return &Lifecycle{
		items:     items,
		locations: locations,
		events:    events,
		logger:    logger,
		tracer:    tp.Tracer("github.com/asegarra/lostfound/internal/item"),
		clock:     clk,
	}
}

// Place moves an item into a storage location. The occupancy increment of
// the target, the decrement of any prior location and the item's location
// reference are applied as one atomic unit by the store. A REGISTERED item
// transitions to STORED.
func (l *Lifecycle) Place(ctx context.Context, itemID, locationID string) (*store.Item, error) {
	ctx, span := l.tracer.Start(ctx, "Lifecycle.Place",
		trace.WithAttributes(
			attribute.String("item.id", itemID),
			attribute.String("location.id", locationID),
		),
	)
	defer span.End()

	it, err := l.items.Get(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("getting item: %w", err)
	}
	if _, err := l.locations.Get(ctx, locationID); err != nil {
		return nil, fmt.Errorf("getting location: %w", err)
	}

	if it.LocationID != nil && *it.LocationID == locationID {
		return it, nil
	}
	if it.State != store.StateRegistered && it.State != store.StateStored {
		return nil, &InvalidTransitionError{From: it.State, To: store.StateStored}
	}

	prev := it.LocationID
	if err := l.locations.Place(ctx, itemID, locationID); err != nil {
		return nil, err
	}

	it.LocationID = &locationID
	if it.State == store.StateRegistered {
		it.State = store.StateStored
	}
	it.UpdatedAt = l.clock.Now().UTC()
	if err := l.items.Update(ctx, it); err != nil {
		return nil, fmt.Errorf("updating item: %w", err)
	}

	data, _ := json.Marshal(event.ItemPlacedData{
		LocationID:     locationID,
		PrevLocationID: prev,
	})
	l.appendEvent(ctx, event.Event{
		AggregateID: itemID,
		Type:        event.ItemPlaced,
		Data:        data,
	})

	l.logger.InfoContext(ctx, "item placed",
		slog.String("item_id", itemID),
		slog.String("location_id", locationID),
	)
	return it, nil
}

// Release clears the item's storage location, decrementing the held
// location's occupancy. Used on delivery and auction withdrawal. No-op for
// an item holding no location.
func (l *Lifecycle) Release(ctx context.Context, itemID, reason string) (*store.Item, error) {
	ctx, span := l.tracer.Start(ctx, "Lifecycle.Release",
		trace.WithAttributes(attribute.String("item.id", itemID)),
	)
	defer span.End()

	it, err := l.items.Get(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("getting item: %w", err)
	}
	if it.LocationID == nil {
		return it, nil
	}

	held := *it.LocationID
	if err := l.locations.Release(ctx, itemID); err != nil {
		return nil, err
	}

	it.LocationID = nil
	it.UpdatedAt = l.clock.Now().UTC()
	if err := l.items.Update(ctx, it); err != nil {
		return nil, fmt.Errorf("updating item: %w", err)
	}

	data, _ := json.Marshal(event.ItemReleasedData{LocationID: held, Reason: reason})
	l.appendEvent(ctx, event.Event{
		AggregateID: itemID,
		Type:        event.ItemReleased,
		Data:        data,
	})

	l.logger.InfoContext(ctx, "item released from storage",
		slog.String("item_id", itemID),
		slog.String("location_id", held),
	)
	return it, nil
}

// Transition moves an item to the target state if the transition table
// permits it.
func (l *Lifecycle) Transition(ctx context.Context, itemID string, target store.ItemState) (*store.Item, error) {
	ctx, span := l.tracer.Start(ctx, "Lifecycle.Transition",
		trace.WithAttributes(
			attribute.String("item.id", itemID),
			attribute.String("state.target", string(target)),
		),
	)
	defer span.End()

	it, err := l.items.Get(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("getting item: %w", err)
	}
	if !CanTransition(it.State, target) {
		return nil, &InvalidTransitionError{From: it.State, To: target}
	}

	from := it.State
	it.State = target
	it.UpdatedAt = l.clock.Now().UTC()
	if err := l.items.Update(ctx, it); err != nil {
		return nil, fmt.Errorf("updating item: %w", err)
	}

	data, _ := json.Marshal(event.ItemTransitionedData{From: string(from), To: string(target)})
	l.appendEvent(ctx, event.Event{
		AggregateID: itemID,
		Type:        event.ItemTransitioned,
		Data:        data,
	})

	l.logger.InfoContext(ctx, "item transitioned",
		slog.String("item_id", itemID),
		slog.String("from", string(from)),
		slog.String("to", string(target)),
	)
	return it, nil
}

// EligibleForDisposition reports whether the item has aged out unclaimed:
// a STORED found item outside any lot, registered at least minAgeDays ago.
func (l *Lifecycle) EligibleForDisposition(it *store.Item, minAgeDays int) bool {
	if it.Kind != store.KindFound || it.State != store.StateStored || it.LotID != nil {
		return false
	}
	age := l.clock.Now().Sub(it.CreatedAt)
	return age >= time.Duration(minAgeDays)*24*time.Hour
}

// appendEvent writes an audit record. Audit failures are logged, never
// propagated: the state change is already committed.
func (l *Lifecycle) appendEvent(ctx context.Context, e event.Event) {
	if err := l.events.Append(ctx, e); err != nil {
		l.logger.ErrorContext(ctx, "failed to append audit event",
			slog.String("aggregate_id", e.AggregateID),
			slog.String("type", string(e.Type)),
			slog.Any("error", err),
		)
	}
}
