package event

import (
	"encoding/json"
	"time"
)

// Type identifies an event kind.
type Type string

const (
	ItemRegistered   Type = "item.registered"
	ItemPlaced       Type = "item.placed"
	ItemReleased     Type = "item.released"
	ItemTransitioned Type = "item.transitioned"

	MatchProposed  Type = "match.proposed"
	MatchConfirmed Type = "match.confirmed"
	MatchRejected  Type = "match.rejected"

	LotPublished Type = "lot.published"

	AuctionOpened    Type = "auction.opened"
	AuctionBidPlaced Type = "auction.bid_placed"
	AuctionClosed    Type = "auction.closed"
	AuctionAwarded   Type = "auction.awarded"
)

// Event is a single append-only audit record. AggregateID is the id of the
// item, match candidate, lot or auction the event belongs to.
type Event struct {
	ID          string          `json:"id" db:"id"`
	AggregateID string          `json:"aggregate_id" db:"aggregate_id"`
	Type        Type            `json:"type" db:"type"`
	Data        json.RawMessage `json:"data" db:"data"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// ItemPlacedData is the payload for ItemPlaced events.
type ItemPlacedData struct {
	LocationID     string  `json:"location_id"`
	PrevLocationID *string `json:"prev_location_id,omitempty"`
}

// ItemReleasedData is the payload for ItemReleased events.
type ItemReleasedData struct {
	LocationID string `json:"location_id"`
	Reason     string `json:"reason,omitempty"`
}

// ItemTransitionedData is the payload for ItemTransitioned events.
type ItemTransitionedData struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// MatchProposedData is the payload for MatchProposed events.
type MatchProposedData struct {
	FoundItemID string `json:"found_item_id"`
	LostItemID  string `json:"lost_item_id"`
	Score       int    `json:"score"`
}

// MatchDecidedData is the payload for MatchConfirmed and MatchRejected events.
type MatchDecidedData struct {
	ReviewerID string `json:"reviewer_id"`
	Notes      string `json:"notes,omitempty"`
}

// BidPlacedData is the payload for AuctionBidPlaced events.
type BidPlacedData struct {
	BidderID string `json:"bidder_id"`
	Amount   string `json:"amount"`
}

// AuctionAwardedData is the payload for AuctionAwarded events.
type AuctionAwardedData struct {
	WinnerID string `json:"winner_id"`
	Amount   string `json:"amount"`
}
