// Package auction implements the bid ledger for lot auctions: the
// SCHEDULED/OPEN/CLOSED/AWARDED lifecycle, the single minimum-next-bid
// floor, and atomically applied bids under concurrent callers.
package auction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/asegarra/lostfound/internal/clock"
	"github.com/asegarra/lostfound/internal/event"
	"github.com/asegarra/lostfound/internal/store"
)

// Errors returned by ledger operations.
var (
	ErrNotYetScheduled = errors.New("auction opening time not reached")
	ErrAuctionNotOpen  = errors.New("auction is not open")
	ErrNotEnded        = errors.New("auction closing time not reached")
	ErrNotClosed       = errors.New("auction is not closed")
	ErrBidTooLow       = errors.New("bid is below the minimum next bid")
)

// maxBidAttempts bounds the compare-and-set retry loop in PlaceBid.
const maxBidAttempts = 5

// MinimumNextBid is the single source of truth for the bid floor:
// current price (starting price until the first bid) plus the increment.
func MinimumNextBid(a *store.Auction) decimal.Decimal {
	base := a.StartingPrice
	if a.CurrentPrice.Valid {
		base = a.CurrentPrice.Decimal
	}
	return base.Add(a.MinIncrement)
}

// Ledger validates and applies auction operations against the store.
type Ledger struct {
	auctions store.AuctionRepository
	events   event.Store
	logger   *slog.Logger
	tracer   trace.Tracer
	clock    clock.Clock
}

// NewLedger returns a new auction Ledger.
func NewLedger(auctions store.AuctionRepository, events event.Store, logger *slog.Logger, tp trace.TracerProvider, clk clock.Clock) *Ledger {
	return &Ledger{
		auctions: auctions,
		events:   events,
		logger:   logger,
		tracer:   tp.Tracer("github.com/asegarra/lostfound/internal/auction"),
		clock:    clk,
	}
}

// Open transitions a scheduled auction to OPEN once its opening time has
// been reached.
func (l *Ledger) Open(ctx context.Context, auctionID string) (*store.Auction, error) {
	ctx, span := l.tracer.Start(ctx, "Ledger.Open",
		trace.WithAttributes(attribute.String("auction.id", auctionID)),
	)
	defer span.End()

	a, err := l.auctions.Get(ctx, auctionID)
	if err != nil {
		return nil, fmt.Errorf("getting auction: %w", err)
	}
	if a.State != store.AuctionScheduled {
		return nil, fmt.Errorf("cannot open auction in state %q", a.State)
	}
	if l.clock.Now().Before(a.OpensAt) {
		return nil, ErrNotYetScheduled
	}

	a.State = store.AuctionOpen
	a.UpdatedAt = l.clock.Now().UTC()
	if err := l.auctions.Update(ctx, a); err != nil {
		return nil, fmt.Errorf("updating auction: %w", err)
	}

	l.appendEvent(ctx, event.Event{
		AggregateID: a.ID,
		Type:        event.AuctionOpened,
		Data:        json.RawMessage(`{}`),
	})

	l.logger.InfoContext(ctx, "auction opened", slog.String("auction_id", a.ID))
	return a, nil
}

// PlaceBid validates the bid against the floor and applies it as a
// compare-and-set on the auction's current price, retrying on conflict with
// a fresh read. Two concurrent bids at the same floor can never both
// succeed.
func (l *Ledger) PlaceBid(ctx context.Context, auctionID, bidderID string, amount decimal.Decimal) (*store.Bid, error) {
	ctx, span := l.tracer.Start(ctx, "Ledger.PlaceBid",
		trace.WithAttributes(
			attribute.String("auction.id", auctionID),
			attribute.String("bidder.id", bidderID),
			attribute.String("bid.amount", amount.String()),
		),
	)
	defer span.End()

	for attempt := 0; attempt < maxBidAttempts; attempt++ {
		a, err := l.auctions.Get(ctx, auctionID)
		if err != nil {
			return nil, fmt.Errorf("getting auction: %w", err)
		}

		now := l.clock.Now()
		if a.State != store.AuctionOpen || now.Before(a.OpensAt) || now.After(a.ClosesAt) {
			return nil, ErrAuctionNotOpen
		}
		if amount.LessThan(MinimumNextBid(a)) {
			return nil, ErrBidTooLow
		}

		b := &store.Bid{
			AuctionID: a.ID,
			BidderID:  bidderID,
			Amount:    amount,
			CreatedAt: now.UTC(),
		}
		err = l.auctions.PlaceBid(ctx, b, a.CurrentPrice)
		if errors.Is(err, store.ErrPriceConflict) {
			// A concurrent bid advanced the price; re-read and
			// re-validate the floor.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("placing bid: %w", err)
		}

		data, _ := json.Marshal(event.BidPlacedData{BidderID: bidderID, Amount: amount.String()})
		l.appendEvent(ctx, event.Event{
			AggregateID: a.ID,
			Type:        event.AuctionBidPlaced,
			Data:        data,
		})

		l.logger.InfoContext(ctx, "bid placed",
			slog.String("auction_id", a.ID),
			slog.String("bidder_id", bidderID),
			slog.String("amount", amount.String()),
		)
		return b, nil
	}

	return nil, fmt.Errorf("placing bid on auction %s: %w", auctionID, store.ErrPriceConflict)
}

// Close transitions an open auction to CLOSED. Unless force is set, the
// closing time must have been reached. Once closed no further bids are
// accepted.
func (l *Ledger) Close(ctx context.Context, auctionID string, force bool) (*store.Auction, error) {
	ctx, span := l.tracer.Start(ctx, "Ledger.Close",
		trace.WithAttributes(
			attribute.String("auction.id", auctionID),
			attribute.Bool("force", force),
		),
	)
	defer span.End()

	a, err := l.auctions.Get(ctx, auctionID)
	if err != nil {
		return nil, fmt.Errorf("getting auction: %w", err)
	}
	if a.State != store.AuctionOpen {
		return nil, ErrAuctionNotOpen
	}
	if !force && l.clock.Now().Before(a.ClosesAt) {
		return nil, ErrNotEnded
	}

	a.State = store.AuctionClosed
	a.UpdatedAt = l.clock.Now().UTC()
	if err := l.auctions.Update(ctx, a); err != nil {
		return nil, fmt.Errorf("updating auction: %w", err)
	}

	l.appendEvent(ctx, event.Event{
		AggregateID: a.ID,
		Type:        event.AuctionClosed,
		Data:        json.RawMessage(`{}`),
	})

	l.logger.InfoContext(ctx, "auction closed", slog.String("auction_id", a.ID))
	return a, nil
}

// Award transitions a closed auction with at least one bid to AWARDED and
// records the winner: the highest bid, earliest first on equal amounts.
// With zero bids the auction stays CLOSED and (nil, nil) is returned so the
// caller can report the lot unsold.
func (l *Ledger) Award(ctx context.Context, auctionID string) (*store.Auction, *store.Bid, error) {
	ctx, span := l.tracer.Start(ctx, "Ledger.Award",
		trace.WithAttributes(attribute.String("auction.id", auctionID)),
	)
	defer span.End()

	a, err := l.auctions.Get(ctx, auctionID)
	if err != nil {
		return nil, nil, fmt.Errorf("getting auction: %w", err)
	}
	if a.State != store.AuctionClosed {
		return nil, nil, ErrNotClosed
	}

	bids, err := l.auctions.ListBids(ctx, auctionID)
	if err != nil {
		return nil, nil, fmt.Errorf("listing bids: %w", err)
	}
	if len(bids) == 0 {
		l.logger.InfoContext(ctx, "auction unsold, no bids", slog.String("auction_id", a.ID))
		return a, nil, nil
	}

	// Bids come back in acceptance order; a strictly-greater comparison
	// keeps the earliest bid on equal amounts.
	winner := bids[0]
	for _, b := range bids[1:] {
		if b.Amount.GreaterThan(winner.Amount) {
			winner = b
		}
	}

	a.State = store.AuctionAwarded
	a.WinnerID = &winner.BidderID
	a.UpdatedAt = l.clock.Now().UTC()
	if err := l.auctions.Update(ctx, a); err != nil {
		return nil, nil, fmt.Errorf("updating auction: %w", err)
	}

	data, _ := json.Marshal(event.AuctionAwardedData{
		WinnerID: winner.BidderID,
		Amount:   winner.Amount.String(),
	})
	l.appendEvent(ctx, event.Event{
		AggregateID: a.ID,
		Type:        event.AuctionAwarded,
		Data:        data,
	})

	l.logger.InfoContext(ctx, "auction awarded",
		slog.String("auction_id", a.ID),
		slog.String("winner_id", winner.BidderID),
		slog.String("amount", winner.Amount.String()),
	)
	return a, &winner, nil
}

// ParticipantCount returns the number of distinct bidders across all bids.
func (l *Ledger) ParticipantCount(ctx context.Context, auctionID string) (int, error) {
	bids, err := l.auctions.ListBids(ctx, auctionID)
	if err != nil {
		return 0, fmt.Errorf("listing bids: %w", err)
	}
	seen := make(map[string]struct{}, len(bids))
	for _, b := range bids {
		seen[b.BidderID] = struct{}{}
	}
	return len(seen), nil
}

func (l *Ledger) appendEvent(ctx context.Context, ev event.Event) {
	if err := l.events.Append(ctx, ev); err != nil {
		l.logger.ErrorContext(ctx, "failed to append audit event",
			slog.String("aggregate_id", ev.AggregateID),
			slog.String("type", string(ev.Type)),
			slog.Any("error", err),
		)
	}
}
