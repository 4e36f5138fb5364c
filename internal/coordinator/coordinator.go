// Package coordinator wires the lifecycle, matching and auction engines to
// the persistence store and the notification dispatcher. It is the API an
// HTTP layer or scheduler calls into.
package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/asegarra/lostfound/internal/auction"
	"github.com/asegarra/lostfound/internal/clock"
	"github.com/asegarra/lostfound/internal/event"
	"github.com/asegarra/lostfound/internal/item"
	"github.com/asegarra/lostfound/internal/match"
	"github.com/asegarra/lostfound/internal/notify"
	"github.com/asegarra/lostfound/internal/store"
)

// Decision is a reviewer's verdict on a match candidate.
type Decision string

const (
	DecisionConfirm Decision = "confirm"
	DecisionReject  Decision = "reject"
)

// Registration is the result of registering an item: the stored item, the
// candidate matches proposed against it and, for found items, the alerts it
// triggered.
type Registration struct {
	Item       *store.Item
	Candidates []store.MatchCandidate
	Alerts     []store.Alert
}

// AuctionParams configures the auction created when an AUCTION lot is
// published.
type AuctionParams struct {
	StartingPrice decimal.Decimal
	MinIncrement  decimal.Decimal
	OpensAt       time.Time
	ClosesAt      time.Time
}

// AwardResult reports the outcome of closing an auction.
type AwardResult struct {
	Auction *store.Auction
	Winner  *store.Bid
	// Unsold is set when the auction closed with zero bids; the lot
	// remains CLOSED and unawarded.
	Unsold bool
}

// Coordinator exposes the core operations to callers.
type Coordinator struct {
	lifecycle *item.Lifecycle
	matcher   *match.Engine
	ledger    *auction.Ledger
	repos     *store.Repositories
	notifier  notify.Dispatcher
	logger    *slog.Logger
	tracer    trace.Tracer
	clock     clock.Clock
}

// New returns a new Coordinator.
func New(lifecycle *item.Lifecycle, matcher *match.Engine, ledger *auction.Ledger, repos *store.Repositories, notifier notify.Dispatcher, logger *slog.Logger, tp trace.TracerProvider, clk clock.Clock) *Coordinator {
	return &Coordinator{
		lifecycle: lifecycle,
		matcher:   matcher,
		ledger:    ledger,
		repos:     repos,
		notifier:  notifier,
		logger:    logger,
		tracer:    tp.Tracer("github.com/asegarra/lostfound/internal/coordinator"),
		clock:     clk,
	}
}

// RegisterFound stores a new found item, proposes match candidates against
// open lost reports and evaluates citizen alerts. Alert delivery failures
// are logged and never fail the registration.
func (c *Coordinator) RegisterFound(ctx context.Context, it *store.Item) (*Registration, error) {
	ctx, span := c.tracer.Start(ctx, "Coordinator.RegisterFound")
	defer span.End()

	reg, err := c.register(ctx, it, store.KindFound)
	if err != nil {
		return nil, err
	}

	alerts, err := c.matcher.EvaluateAlerts(ctx, reg.Item)
	if err != nil {
		// Alert evaluation is best-effort on registration; the item and
		// its candidates are already committed.
		c.logger.ErrorContext(ctx, "alert evaluation failed",
			slog.String("item_id", reg.Item.ID),
			slog.Any("error", err),
		)
		return reg, nil
	}
	reg.Alerts = alerts
	for i := range alerts {
		if nerr := c.notifier.NotifyAlertMatch(ctx, &alerts[i], reg.Item); nerr != nil {
			c.logger.ErrorContext(ctx, "alert notification failed",
				slog.String("alert_id", alerts[i].ID),
				slog.Any("error", nerr),
			)
		}
	}

	span.SetAttributes(
		attribute.Int("candidates", len(reg.Candidates)),
		attribute.Int("alerts", len(reg.Alerts)),
	)
	return reg, nil
}

// RegisterLost stores a new lost report and proposes match candidates
// against registered found items.
func (c *Coordinator) RegisterLost(ctx context.Context, it *store.Item) (*Registration, error) {
	ctx, span := c.tracer.Start(ctx, "Coordinator.RegisterLost")
	defer span.End()

	return c.register(ctx, it, store.KindLost)
}

func (c *Coordinator) register(ctx context.Context, it *store.Item, kind store.ItemKind) (*Registration, error) {
	now := c.clock.Now().UTC()
	it.Kind = kind
	it.State = store.StateRegistered
	it.LocationID = nil
	it.LotID = nil
	it.CreatedAt = now
	it.UpdatedAt = now
	if err := c.repos.Items.Create(ctx, it); err != nil {
		return nil, fmt.Errorf("creating item: %w", err)
	}

	if err := c.repos.Events.Append(ctx, event.Event{
		AggregateID: it.ID,
		Type:        event.ItemRegistered,
		Data:        json.RawMessage(fmt.Sprintf(`{"kind":%q}`, kind)),
	}); err != nil {
		c.logger.ErrorContext(ctx, "failed to append audit event",
			slog.String("item_id", it.ID),
			slog.Any("error", err),
		)
	}

	candidates, err := c.matcher.FindCandidates(ctx, it)
	if err != nil {
		return nil, fmt.Errorf("finding candidates: %w", err)
	}

	reg := &Registration{Item: it}
	for i := range candidates {
		other := &candidates[i].Item
		found, lost := it, other
		if kind == store.KindLost {
			found, lost = other, it
		}
		mc, perr := c.matcher.ProposeMatch(ctx, found, lost)
		if perr != nil {
			return nil, fmt.Errorf("proposing match: %w", perr)
		}
		if mc != nil {
			reg.Candidates = append(reg.Candidates, *mc)
		}
	}

	c.logger.InfoContext(ctx, "item registered",
		slog.String("item_id", it.ID),
		slog.String("kind", string(kind)),
		slog.Int("candidates", len(reg.Candidates)),
	)
	return reg, nil
}

// DecideMatch applies a reviewer decision to a pending candidate. On
// confirmation the found item is claimed (STORED -> CLAIMED) and the
// citizen is notified; notification failures never roll the decision back.
// Confirming while the item cannot be claimed, such as a found item not yet
// placed into storage, fails with InvalidTransitionError and leaves the
// candidate pending.
func (c *Coordinator) DecideMatch(ctx context.Context, candidateID string, decision Decision, reviewerID, notes string) (*store.MatchCandidate, error) {
	ctx, span := c.tracer.Start(ctx, "Coordinator.DecideMatch",
		trace.WithAttributes(
			attribute.String("candidate.id", candidateID),
			attribute.String("decision", string(decision)),
		),
	)
	defer span.End()

	switch decision {
	case DecisionConfirm:
		pending, err := c.repos.Matches.Get(ctx, candidateID)
		if err != nil {
			return nil, fmt.Errorf("getting match candidate: %w", err)
		}
		found, err := c.repos.Items.Get(ctx, pending.FoundItemID)
		if err != nil {
			return nil, fmt.Errorf("getting found item: %w", err)
		}
		// The claim is checked before the candidate is decided: a candidate
		// whose item cannot be claimed yet must stay PENDING.
		if !item.CanTransition(found.State, store.StateClaimed) {
			return nil, fmt.Errorf("claiming found item: %w",
				&item.InvalidTransitionError{From: found.State, To: store.StateClaimed})
		}
		mc, err := c.matcher.Confirm(ctx, candidateID, reviewerID)
		if err != nil {
			return nil, err
		}
		if _, terr := c.lifecycle.Transition(ctx, mc.FoundItemID, store.StateClaimed); terr != nil {
			return nil, fmt.Errorf("claiming found item: %w", terr)
		}
		if nerr := c.notifier.NotifyMatchConfirmed(ctx, mc); nerr != nil {
			c.logger.ErrorContext(ctx, "match notification failed",
				slog.String("candidate_id", mc.ID),
				slog.Any("error", nerr),
			)
		}
		return mc, nil
	case DecisionReject:
		return c.matcher.Reject(ctx, candidateID, reviewerID, notes)
	default:
		return nil, fmt.Errorf("unknown decision %q", decision)
	}
}

// PlaceItem puts an item into a storage location.
func (c *Coordinator) PlaceItem(ctx context.Context, itemID, locationID string) (*store.Item, error) {
	return c.lifecycle.Place(ctx, itemID, locationID)
}

// DeliverItem hands a claimed item back to its owner, releasing its storage
// slot.
func (c *Coordinator) DeliverItem(ctx context.Context, itemID string) (*store.Item, error) {
	ctx, span := c.tracer.Start(ctx, "Coordinator.DeliverItem",
		trace.WithAttributes(attribute.String("item.id", itemID)),
	)
	defer span.End()

	if _, err := c.lifecycle.Release(ctx, itemID, "delivery"); err != nil {
		return nil, err
	}
	return c.lifecycle.Transition(ctx, itemID, store.StateDelivered)
}

// PlaceBid places a bid on an open auction.
func (c *Coordinator) PlaceBid(ctx context.Context, auctionID, bidderID string, amount decimal.Decimal) (*store.Bid, error) {
	return c.ledger.PlaceBid(ctx, auctionID, bidderID, amount)
}

// OpenAuction opens a scheduled auction and moves its lot to IN_PROGRESS.
func (c *Coordinator) OpenAuction(ctx context.Context, auctionID string) (*store.Auction, error) {
	ctx, span := c.tracer.Start(ctx, "Coordinator.OpenAuction",
		trace.WithAttributes(attribute.String("auction.id", auctionID)),
	)
	defer span.End()

	a, err := c.ledger.Open(ctx, auctionID)
	if err != nil {
		return nil, err
	}

	lot, err := c.repos.Lots.Get(ctx, a.LotID)
	if err != nil {
		return nil, fmt.Errorf("getting lot: %w", err)
	}
	lot.State = store.LotInProgress
	lot.UpdatedAt = c.clock.Now().UTC()
	if err := c.repos.Lots.Update(ctx, lot); err != nil {
		return nil, fmt.Errorf("updating lot: %w", err)
	}
	return a, nil
}

// CloseAndAward closes an auction (forcing before the end time when force
// is set), awards it to the highest bidder and notifies the winner. A
// zero-bid auction is reported unsold: it stays CLOSED with no winner.
func (c *Coordinator) CloseAndAward(ctx context.Context, auctionID string, force bool) (*AwardResult, error) {
	ctx, span := c.tracer.Start(ctx, "Coordinator.CloseAndAward",
		trace.WithAttributes(attribute.String("auction.id", auctionID)),
	)
	defer span.End()

	if _, err := c.ledger.Close(ctx, auctionID, force); err != nil {
		return nil, err
	}

	a, winner, err := c.ledger.Award(ctx, auctionID)
	if err != nil {
		return nil, err
	}

	lot, err := c.repos.Lots.Get(ctx, a.LotID)
	if err != nil {
		return nil, fmt.Errorf("getting lot: %w", err)
	}
	lot.State = store.LotClosed
	lot.UpdatedAt = c.clock.Now().UTC()
	if err := c.repos.Lots.Update(ctx, lot); err != nil {
		return nil, fmt.Errorf("updating lot: %w", err)
	}

	if winner == nil {
		return &AwardResult{Auction: a, Unsold: true}, nil
	}

	if nerr := c.notifier.NotifyAuctionAwarded(ctx, a); nerr != nil {
		c.logger.ErrorContext(ctx, "award notification failed",
			slog.String("auction_id", a.ID),
			slog.Any("error", nerr),
		)
	}
	return &AwardResult{Auction: a, Winner: winner}, nil
}

// CreateLot creates an empty PREPARING lot.
func (c *Coordinator) CreateLot(ctx context.Context, municipalityID, name string, kind store.LotKind) (*store.Lot, error) {
	now := c.clock.Now().UTC()
	lot := &store.Lot{
		MunicipalityID: municipalityID,
		Name:           name,
		Kind:           kind,
		State:          store.LotPreparing,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := c.repos.Lots.Create(ctx, lot); err != nil {
		return nil, fmt.Errorf("creating lot: %w", err)
	}
	return lot, nil
}

// AssignToLot moves stored items into a preparing lot. Each item passes
// through AUCTIONABLE to AUCTION_LOT and records its lot membership.
func (c *Coordinator) AssignToLot(ctx context.Context, lotID string, itemIDs []string) error {
	ctx, span := c.tracer.Start(ctx, "Coordinator.AssignToLot",
		trace.WithAttributes(
			attribute.String("lot.id", lotID),
			attribute.Int("items", len(itemIDs)),
		),
	)
	defer span.End()

	lot, err := c.repos.Lots.Get(ctx, lotID)
	if err != nil {
		return fmt.Errorf("getting lot: %w", err)
	}
	if lot.State != store.LotPreparing {
		return fmt.Errorf("cannot assign items to lot in state %q", lot.State)
	}

	for _, id := range itemIDs {
		if _, err := c.lifecycle.Transition(ctx, id, store.StateAuctionable); err != nil {
			return err
		}
		it, err := c.lifecycle.Transition(ctx, id, store.StateAuctionLot)
		if err != nil {
			return err
		}
		it.LotID = &lotID
		it.UpdatedAt = c.clock.Now().UTC()
		if err := c.repos.Items.Update(ctx, it); err != nil {
			return fmt.Errorf("recording lot membership: %w", err)
		}
	}
	return nil
}

// WithdrawFromLot returns an item from its lot to available storage before
// disposition.
func (c *Coordinator) WithdrawFromLot(ctx context.Context, itemID string) (*store.Item, error) {
	ctx, span := c.tracer.Start(ctx, "Coordinator.WithdrawFromLot",
		trace.WithAttributes(attribute.String("item.id", itemID)),
	)
	defer span.End()

	it, err := c.lifecycle.Transition(ctx, itemID, store.StateStored)
	if err != nil {
		return nil, err
	}
	it.LotID = nil
	it.UpdatedAt = c.clock.Now().UTC()
	if err := c.repos.Items.Update(ctx, it); err != nil {
		return nil, fmt.Errorf("clearing lot membership: %w", err)
	}
	return it, nil
}

// PublishLot moves a preparing lot to PUBLISHED. A lot of kind AUCTION gets
// its auction created SCHEDULED with the given parameters.
func (c *Coordinator) PublishLot(ctx context.Context, lotID string, params *AuctionParams) (*store.Lot, *store.Auction, error) {
	ctx, span := c.tracer.Start(ctx, "Coordinator.PublishLot",
		trace.WithAttributes(attribute.String("lot.id", lotID)),
	)
	defer span.End()

	lot, err := c.repos.Lots.Get(ctx, lotID)
	if err != nil {
		return nil, nil, fmt.Errorf("getting lot: %w", err)
	}
	if lot.State != store.LotPreparing {
		return nil, nil, fmt.Errorf("cannot publish lot in state %q", lot.State)
	}

	var auc *store.Auction
	if lot.Kind == store.LotAuction {
		if params == nil {
			return nil, nil, fmt.Errorf("auction lot requires auction parameters")
		}
		now := c.clock.Now().UTC()
		auc = &store.Auction{
			LotID:         lot.ID,
			StartingPrice: params.StartingPrice,
			MinIncrement:  params.MinIncrement,
			OpensAt:       params.OpensAt,
			ClosesAt:      params.ClosesAt,
			State:         store.AuctionScheduled,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := c.repos.Auctions.Create(ctx, auc); err != nil {
			return nil, nil, fmt.Errorf("creating auction: %w", err)
		}
	}

	lot.State = store.LotPublished
	lot.UpdatedAt = c.clock.Now().UTC()
	if err := c.repos.Lots.Update(ctx, lot); err != nil {
		return nil, nil, fmt.Errorf("updating lot: %w", err)
	}

	if err := c.repos.Events.Append(ctx, event.Event{
		AggregateID: lot.ID,
		Type:        event.LotPublished,
		Data:        json.RawMessage(fmt.Sprintf(`{"kind":%q}`, lot.Kind)),
	}); err != nil {
		c.logger.ErrorContext(ctx, "failed to append audit event",
			slog.String("lot_id", lot.ID),
			slog.Any("error", err),
		)
	}

	c.logger.InfoContext(ctx, "lot published",
		slog.String("lot_id", lot.ID),
		slog.String("kind", string(lot.Kind)),
	)
	return lot, auc, nil
}

// DisposeLot transitions every item of a closed lot to the chosen terminal
// disposal state, releasing storage. terminal must be DONATED, RECYCLED or
// DESTROYED.
func (c *Coordinator) DisposeLot(ctx context.Context, lotID string, terminal store.ItemState) error {
	ctx, span := c.tracer.Start(ctx, "Coordinator.DisposeLot",
		trace.WithAttributes(
			attribute.String("lot.id", lotID),
			attribute.String("terminal", string(terminal)),
		),
	)
	defer span.End()

	switch terminal {
	case store.StateDonated, store.StateRecycled, store.StateDestroyed:
	default:
		return fmt.Errorf("%q is not a disposal state", terminal)
	}

	lot, err := c.repos.Lots.Get(ctx, lotID)
	if err != nil {
		return fmt.Errorf("getting lot: %w", err)
	}
	if lot.State != store.LotClosed {
		return fmt.Errorf("cannot dispose lot in state %q", lot.State)
	}

	ids, err := c.repos.Lots.ListItems(ctx, lotID)
	if err != nil {
		return fmt.Errorf("listing lot items: %w", err)
	}
	for _, id := range ids {
		if _, err := c.lifecycle.Release(ctx, id, "disposition"); err != nil {
			return err
		}
		if _, err := c.lifecycle.Transition(ctx, id, terminal); err != nil {
			return err
		}
	}

	c.logger.InfoContext(ctx, "lot disposed",
		slog.String("lot_id", lotID),
		slog.String("terminal", string(terminal)),
		slog.Int("items", len(ids)),
	)
	return nil
}

// RunDispositionSweep returns every stored found item in the municipality
// that has aged out unclaimed and is not yet assigned to a lot.
func (c *Coordinator) RunDispositionSweep(ctx context.Context, municipalityID string, minAgeDays int) ([]store.Item, error) {
	ctx, span := c.tracer.Start(ctx, "Coordinator.RunDispositionSweep",
		trace.WithAttributes(
			attribute.String("municipality.id", municipalityID),
			attribute.Int("min_age_days", minAgeDays),
		),
	)
	defer span.End()

	cutoff := c.clock.Now().Add(-time.Duration(minAgeDays) * 24 * time.Hour)
	kind := store.KindFound
	items, err := c.repos.Items.Query(ctx, store.ItemFilter{
		MunicipalityID: municipalityID,
		Kind:           &kind,
		States:         []store.ItemState{store.StateStored},
		WithoutLot:     true,
		CreatedBefore:  &cutoff,
	})
	if err != nil {
		return nil, fmt.Errorf("querying eligible items: %w", err)
	}

	c.logger.InfoContext(ctx, "disposition sweep complete",
		slog.String("municipality_id", municipalityID),
		slog.Int("eligible", len(items)),
	)
	return items, nil
}
