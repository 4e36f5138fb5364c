// Package item implements the custody lifecycle of lost-and-found items:
// the closed transition table, placement into storage locations with
// capacity bookkeeping, and the disposition-eligibility rules.
package item

import (
	"fmt"

	"github.com/asegarra/lostfound/internal/store"
)

// InvalidTransitionError reports a lifecycle transition not permitted by the
// transition table.
type InvalidTransitionError struct {
	From store.ItemState
	To   store.ItemState
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition %s -> %s", e.From, e.To)
}

// transitions is the closed table of permitted state changes. States absent
// from the map are terminal.
var transitions = map[store.ItemState][]store.ItemState{
	store.StateRegistered:  {store.StateStored},
	store.StateStored:      {store.StateClaimed, store.StateAuctionable},
	store.StateClaimed:     {store.StateDelivered},
	store.StateAuctionable: {store.StateAuctionLot},
	// Withdrawal before disposition returns the item to available storage.
	store.StateAuctionLot: {store.StateDonated, store.StateRecycled, store.StateDestroyed, store.StateStored},
}

// CanTransition reports whether the table permits from -> to.
func CanTransition(from, to store.ItemState) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the state has no outgoing transitions.
func Terminal(s store.ItemState) bool {
	return len(transitions[s]) == 0
}

// AvailableForClaim reports whether a citizen claim can be opened against
// the item.
func AvailableForClaim(it *store.Item) bool {
	if it.Kind != store.KindFound {
		return false
	}
	return it.State == store.StateRegistered || it.State == store.StateStored
}
