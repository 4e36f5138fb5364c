package match

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/asegarra/lostfound/internal/clock"
	"github.com/asegarra/lostfound/internal/event"
	"github.com/asegarra/lostfound/internal/store"
)

// ErrAlreadyDecided is returned when confirming or rejecting a candidate
// that is no longer pending.
var ErrAlreadyDecided = errors.New("match candidate already decided")

// Candidate pairs an opposite-kind item with its score against the query item.
type Candidate struct {
	Item      store.Item
	Score     int
	Breakdown Breakdown
}

// Engine proposes and decides match candidates and evaluates alerts.
type Engine struct {
	items   store.ItemRepository
	matches store.MatchRepository
	alerts  store.AlertRepository
	events  event.Store
	logger  *slog.Logger
	tracer  trace.Tracer
	clock   clock.Clock

	threshold      int
	dateWindowDays int
}

// NewEngine returns a new matching Engine. threshold is the minimum score at
// which pairs are surfaced; dateWindowDays is the half-width of the
// discovery-date pre-filter.
func NewEngine(items store.ItemRepository, matches store.MatchRepository, alerts store.AlertRepository, events event.Store, logger *slog.Logger, tp trace.TracerProvider, clk clock.Clock, threshold, dateWindowDays int) *Engine {
	return &Engine{
		items:          items,
		matches:        matches,
		alerts:         alerts,
		events:         events,
		logger:         logger,
		tracer:         tp.Tracer("github.com/asegarra/lostfound/internal/match"),
		clock:          clk,
		threshold:      threshold,
		dateWindowDays: dateWindowDays,
	}
}

// FindCandidates queries the store for opposite-kind items in the same
// municipality that are still claimable and scores each against the query
// item. Only pairs at or above the threshold are returned, best first.
func (e *Engine) FindCandidates(ctx context.Context, it *store.Item) ([]Candidate, error) {
	ctx, span := e.tracer.Start(ctx, "Engine.FindCandidates",
		trace.WithAttributes(
			attribute.String("item.id", it.ID),
			attribute.String("item.kind", string(it.Kind)),
		),
	)
	defer span.End()

	other := store.KindLost
	if it.Kind == store.KindLost {
		other = store.KindFound
	}

	filter := store.ItemFilter{
		MunicipalityID:   it.MunicipalityID,
		Kind:             &other,
		States:           []store.ItemState{store.StateRegistered, store.StateStored},
		ExcludeConfirmed: true,
	}
	if it.DiscoveredAt != nil {
		window := time.Duration(e.dateWindowDays) * 24 * time.Hour
		from := it.DiscoveredAt.Add(-window)
		to := it.DiscoveredAt.Add(window)
		filter.DiscoveredFrom = &from
		filter.DiscoveredTo = &to
	}

	others, err := e.items.Query(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("querying candidate items: %w", err)
	}

	var out []Candidate
	for _, o := range others {
		found, lost := orient(it, &o)
		b := Score(*found, *lost)
		if b.Total < e.threshold {
			continue
		}
		out = append(out, Candidate{Item: o, Score: b.Total, Breakdown: b})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })

	span.SetAttributes(attribute.Int("candidates", len(out)))
	return out, nil
}

// ProposeMatch scores the pair and persists a PENDING candidate when the
// score reaches the threshold and no candidate covers the unordered pair
// yet. A below-threshold score or an existing candidate is an idempotent
// skip, reported as (nil, nil).
func (e *Engine) ProposeMatch(ctx context.Context, found, lost *store.Item) (*store.MatchCandidate, error) {
	ctx, span := e.tracer.Start(ctx, "Engine.ProposeMatch",
		trace.WithAttributes(
			attribute.String("found.id", found.ID),
			attribute.String("lost.id", lost.ID),
		),
	)
	defer span.End()

	b := Score(*found, *lost)
	if b.Total < e.threshold {
		return nil, nil
	}

	breakdown, _ := json.Marshal(b)
	mc := &store.MatchCandidate{
		FoundItemID: found.ID,
		LostItemID:  lost.ID,
		Score:       b.Total,
		Breakdown:   breakdown,
		State:       store.MatchPending,
		CreatedAt:   e.clock.Now().UTC(),
	}
	if err := e.matches.Create(ctx, mc); err != nil {
		if errors.Is(err, store.ErrDuplicateMatch) {
			e.logger.DebugContext(ctx, "match candidate already exists",
				slog.String("found_id", found.ID),
				slog.String("lost_id", lost.ID),
			)
			return nil, nil
		}
		return nil, fmt.Errorf("creating match candidate: %w", err)
	}

	data, _ := json.Marshal(event.MatchProposedData{
		FoundItemID: found.ID,
		LostItemID:  lost.ID,
		Score:       b.Total,
	})
	e.appendEvent(ctx, event.Event{
		AggregateID: mc.ID,
		Type:        event.MatchProposed,
		Data:        data,
	})

	e.logger.InfoContext(ctx, "match candidate proposed",
		slog.String("candidate_id", mc.ID),
		slog.String("found_id", found.ID),
		slog.String("lost_id", lost.ID),
		slog.Int("score", b.Total),
	)
	return mc, nil
}

// EvaluateAlerts returns every active alert whose declared criteria are all
// satisfied by the found item. An alert declaring no criteria matches
// nothing.
func (e *Engine) EvaluateAlerts(ctx context.Context, it *store.Item) ([]store.Alert, error) {
	ctx, span := e.tracer.Start(ctx, "Engine.EvaluateAlerts",
		trace.WithAttributes(attribute.String("item.id", it.ID)),
	)
	defer span.End()

	alerts, err := e.alerts.ListActive(ctx, it.MunicipalityID)
	if err != nil {
		return nil, fmt.Errorf("listing active alerts: %w", err)
	}

	var matched []store.Alert
	for _, a := range alerts {
		if alertMatches(&a, it) {
			matched = append(matched, a)
		}
	}

	span.SetAttributes(attribute.Int("alerts.matched", len(matched)))
	return matched, nil
}

// alertMatches checks every criterion the alert declares against the item.
func alertMatches(a *store.Alert, it *store.Item) bool {
	declared := false

	if a.CategoryID != nil {
		declared = true
		if it.CategoryID == nil || *it.CategoryID != *a.CategoryID {
			return false
		}
	}

	if a.Color != nil && strings.TrimSpace(*a.Color) != "" {
		declared = true
		if it.Color == nil {
			return false
		}
		ac, ic := strings.ToLower(strings.TrimSpace(*a.Color)), strings.ToLower(strings.TrimSpace(*it.Color))
		if ic == "" || (!strings.Contains(ic, ac) && !strings.Contains(ac, ic)) {
			return false
		}
	}

	if len(a.Keywords) > 0 {
		declared = true
		haystack := strings.ToLower(it.Title + " " + it.Description)
		any := false
		for _, kw := range a.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw != "" && strings.Contains(haystack, kw) {
				any = true
				break
			}
		}
		if !any {
			return false
		}
	}

	return declared
}

// Confirm marks a pending candidate CONFIRMED, recording the reviewer and
// decision time.
func (e *Engine) Confirm(ctx context.Context, candidateID, reviewerID string) (*store.MatchCandidate, error) {
	return e.decide(ctx, candidateID, reviewerID, "", store.MatchConfirmed)
}

// Reject marks a pending candidate REJECTED, recording the reviewer,
// decision time and optional notes.
func (e *Engine) Reject(ctx context.Context, candidateID, reviewerID, notes string) (*store.MatchCandidate, error) {
	return e.decide(ctx, candidateID, reviewerID, notes, store.MatchRejected)
}

func (e *Engine) decide(ctx context.Context, candidateID, reviewerID, notes string, target store.MatchState) (*store.MatchCandidate, error) {
	ctx, span := e.tracer.Start(ctx, "Engine.decide",
		trace.WithAttributes(
			attribute.String("candidate.id", candidateID),
			attribute.String("decision", string(target)),
		),
	)
	defer span.End()

	mc, err := e.matches.Get(ctx, candidateID)
	if err != nil {
		return nil, fmt.Errorf("getting match candidate: %w", err)
	}
	if mc.State != store.MatchPending {
		return nil, ErrAlreadyDecided
	}

	now := e.clock.Now().UTC()
	mc.State = target
	mc.ReviewerID = &reviewerID
	mc.DecidedAt = &now
	if notes != "" {
		mc.Notes = &notes
	}
	if err := e.matches.Update(ctx, mc); err != nil {
		return nil, fmt.Errorf("updating match candidate: %w", err)
	}

	evType := event.MatchConfirmed
	if target == store.MatchRejected {
		evType = event.MatchRejected
	}
	data, _ := json.Marshal(event.MatchDecidedData{ReviewerID: reviewerID, Notes: notes})
	e.appendEvent(ctx, event.Event{
		AggregateID: mc.ID,
		Type:        evType,
		Data:        data,
	})

	e.logger.InfoContext(ctx, "match candidate decided",
		slog.String("candidate_id", mc.ID),
		slog.String("decision", string(target)),
		slog.String("reviewer_id", reviewerID),
	)
	return mc, nil
}

// orient returns the pair as (found, lost) regardless of argument order.
func orient(a, b *store.Item) (found, lost *store.Item) {
	if a.Kind == store.KindFound {
		return a, b
	}
	return b, a
}

func (e *Engine) appendEvent(ctx context.Context, ev event.Event) {
	if err := e.events.Append(ctx, ev); err != nil {
		e.logger.ErrorContext(ctx, "failed to append audit event",
			slog.String("aggregate_id", ev.AggregateID),
			slog.String("type", string(ev.Type)),
			slog.Any("error", err),
		)
	}
}
