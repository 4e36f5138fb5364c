package item_test

import (
	"testing"

	"github.com/asegarra/lostfound/internal/item"
	"github.com/asegarra/lostfound/internal/store"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from store.ItemState
		to   store.ItemState
		want bool
	}{
		{store.StateRegistered, store.StateStored, true},
		{store.StateStored, store.StateClaimed, true},
		{store.StateStored, store.StateAuctionable, true},
		{store.StateClaimed, store.StateDelivered, true},
		{store.StateAuctionable, store.StateAuctionLot, true},
		{store.StateAuctionLot, store.StateDonated, true},
		{store.StateAuctionLot, store.StateRecycled, true},
		{store.StateAuctionLot, store.StateDestroyed, true},
		{store.StateAuctionLot, store.StateStored, true},

		{store.StateRegistered, store.StateClaimed, false},
		{store.StateRegistered, store.StateDelivered, false},
		{store.StateStored, store.StateDelivered, false},
		{store.StateStored, store.StateRegistered, false},
		{store.StateClaimed, store.StateStored, false},
		{store.StateDelivered, store.StateStored, false},
		{store.StateDonated, store.StateStored, false},
		{store.StateDestroyed, store.StateRegistered, false},
		{store.StateAuctionable, store.StateStored, false},
	}

	for _, tt := range tests {
		if got := item.CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestTerminal(t *testing.T) {
	terminal := []store.ItemState{
		store.StateDelivered, store.StateDonated, store.StateRecycled, store.StateDestroyed,
	}
	for _, s := range terminal {
		if !item.Terminal(s) {
			t.Errorf("Terminal(%s) = false, want true", s)
		}
	}

	active := []store.ItemState{
		store.StateRegistered, store.StateStored, store.StateClaimed,
		store.StateAuctionable, store.StateAuctionLot,
	}
	for _, s := range active {
		if item.Terminal(s) {
			t.Errorf("Terminal(%s) = true, want false", s)
		}
	}
}

func TestAvailableForClaim(t *testing.T) {
	tests := []struct {
		name string
		it   store.Item
		want bool
	}{
		{"registered found", store.Item{Kind: store.KindFound, State: store.StateRegistered}, true},
		{"stored found", store.Item{Kind: store.KindFound, State: store.StateStored}, true},
		{"claimed found", store.Item{Kind: store.KindFound, State: store.StateClaimed}, false},
		{"auction lot found", store.Item{Kind: store.KindFound, State: store.StateAuctionLot}, false},
		{"lost report", store.Item{Kind: store.KindLost, State: store.StateRegistered}, false},
	}
	for _, tt := range tests {
		if got := item.AvailableForClaim(&tt.it); got != tt.want {
			t.Errorf("%s: AvailableForClaim() = %v, want %v", tt.name, got, tt.want)
		}
	}
}
