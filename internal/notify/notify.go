// Package notify defines the outbound notification dispatcher consumed by
// the coordinator. Delivery is fire-and-forget: a failed notification never
// rolls back the operation that triggered it.
package notify

import (
	"context"
	"log/slog"

	"github.com/asegarra/lostfound/internal/store"
)

// Dispatcher delivers citizen-facing notifications.
type Dispatcher interface {
	NotifyMatchConfirmed(ctx context.Context, mc *store.MatchCandidate) error
	NotifyAlertMatch(ctx context.Context, a *store.Alert, it *store.Item) error
	NotifyAuctionAwarded(ctx context.Context, auc *store.Auction) error
}

// LogDispatcher writes notifications to the structured log. It stands in
// for the municipality's mail/push gateway.
type LogDispatcher struct {
	Logger *slog.Logger
}

func (d *LogDispatcher) NotifyMatchConfirmed(ctx context.Context, mc *store.MatchCandidate) error {
	d.Logger.InfoContext(ctx, "notify: match confirmed",
		slog.String("candidate_id", mc.ID),
		slog.String("found_id", mc.FoundItemID),
		slog.String("lost_id", mc.LostItemID),
	)
	return nil
}

func (d *LogDispatcher) NotifyAlertMatch(ctx context.Context, a *store.Alert, it *store.Item) error {
	d.Logger.InfoContext(ctx, "notify: alert matched",
		slog.String("alert_id", a.ID),
		slog.String("citizen_id", a.CitizenID),
		slog.String("item_id", it.ID),
	)
	return nil
}

func (d *LogDispatcher) NotifyAuctionAwarded(ctx context.Context, auc *store.Auction) error {
	d.Logger.InfoContext(ctx, "notify: auction awarded",
		slog.String("auction_id", auc.ID),
	)
	return nil
}

// Nop is a Dispatcher that does nothing. Used in tests.
type Nop struct{}

func (Nop) NotifyMatchConfirmed(context.Context, *store.MatchCandidate) error { return nil }
func (Nop) NotifyAlertMatch(context.Context, *store.Alert, *store.Item) error { return nil }
func (Nop) NotifyAuctionAwarded(context.Context, *store.Auction) error        { return nil }
