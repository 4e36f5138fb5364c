package postgres_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/asegarra/lostfound/internal/event"
	"github.com/asegarra/lostfound/internal/store/postgres"
)

func TestEventStore_AppendAndLoad(t *testing.T) {
	db := newTestDB(t)
	events := postgres.NewEventStore(db)
	ctx := context.Background()

	placed, _ := json.Marshal(event.ItemPlacedData{LocationID: "shelf-a"})
	err := events.Append(ctx,
		event.Event{AggregateID: "item-1", Type: event.ItemRegistered, Data: json.RawMessage(`{"kind":"FOUND"}`)},
		event.Event{AggregateID: "item-1", Type: event.ItemPlaced, Data: placed},
		event.Event{AggregateID: "item-2", Type: event.ItemRegistered, Data: json.RawMessage(`{"kind":"LOST"}`)},
	)
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	got, err := events.Load(ctx, "item-1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Load() = %d events, want 2", len(got))
	}
	types := map[event.Type]bool{}
	for _, e := range got {
		types[e.Type] = true
	}
	if !types[event.ItemRegistered] || !types[event.ItemPlaced] {
		t.Errorf("Load() types = %v, want registered and placed", types)
	}
	for _, e := range got {
		if e.ID == "" || e.CreatedAt.IsZero() {
			t.Errorf("event missing id or timestamp: %+v", e)
		}
	}

	byType, err := events.LoadByType(ctx, event.ItemRegistered)
	if err != nil {
		t.Fatalf("LoadByType() error = %v", err)
	}
	if len(byType) != 2 {
		t.Errorf("LoadByType() = %d events, want 2", len(byType))
	}
}
