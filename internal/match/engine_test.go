package match_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/asegarra/lostfound/internal/clock"
	"github.com/asegarra/lostfound/internal/event"
	"github.com/asegarra/lostfound/internal/match"
	"github.com/asegarra/lostfound/internal/store"
)

type mockItemRepo struct {
	mu    sync.Mutex
	items map[string]*store.Item
	seq   int
	// confirmed holds ids of items covered by a CONFIRMED candidate, for
	// the ExcludeConfirmed filter.
	confirmed map[string]struct{}
}

func newMockItemRepo() *mockItemRepo {
	return &mockItemRepo{
		items:     make(map[string]*store.Item),
		confirmed: make(map[string]struct{}),
	}
}

func (m *mockItemRepo) Create(_ context.Context, it *store.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	it.ID = fmt.Sprintf("item-%d", m.seq)
	cp := *it
	m.items[it.ID] = &cp
	return nil
}

func (m *mockItemRepo) Get(_ context.Context, id string) (*store.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *it
	return &cp, nil
}

func (m *mockItemRepo) Update(_ context.Context, it *store.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[it.ID]; !ok {
		return store.ErrNotFound
	}
	cp := *it
	m.items[it.ID] = &cp
	return nil
}

func (m *mockItemRepo) Query(_ context.Context, f store.ItemFilter) ([]store.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.Item
	for _, it := range m.items {
		if f.MunicipalityID != "" && it.MunicipalityID != f.MunicipalityID {
			continue
		}
		if f.Kind != nil && it.Kind != *f.Kind {
			continue
		}
		if len(f.States) > 0 {
			ok := false
			for _, s := range f.States {
				if it.State == s {
					ok = true
					break
				}
			}
			if !ok {
				continue
			}
		}
		if f.DiscoveredFrom != nil && (it.DiscoveredAt == nil || it.DiscoveredAt.Before(*f.DiscoveredFrom)) {
			continue
		}
		if f.DiscoveredTo != nil && (it.DiscoveredAt == nil || it.DiscoveredAt.After(*f.DiscoveredTo)) {
			continue
		}
		if f.ExcludeConfirmed {
			if _, ok := m.confirmed[it.ID]; ok {
				continue
			}
		}
		out = append(out, *it)
	}
	return out, nil
}

type mockMatchRepo struct {
	mu         sync.Mutex
	candidates map[string]*store.MatchCandidate
	seq        int
}

func newMockMatchRepo() *mockMatchRepo {
	return &mockMatchRepo{candidates: make(map[string]*store.MatchCandidate)}
}

func (m *mockMatchRepo) Create(_ context.Context, mc *store.MatchCandidate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.candidates {
		if (c.FoundItemID == mc.FoundItemID && c.LostItemID == mc.LostItemID) ||
			(c.FoundItemID == mc.LostItemID && c.LostItemID == mc.FoundItemID) {
			return store.ErrDuplicateMatch
		}
	}
	m.seq++
	mc.ID = fmt.Sprintf("candidate-%d", m.seq)
	cp := *mc
	m.candidates[mc.ID] = &cp
	return nil
}

func (m *mockMatchRepo) Get(_ context.Context, id string) (*store.MatchCandidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mc, ok := m.candidates[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *mc
	return &cp, nil
}

func (m *mockMatchRepo) GetByPair(_ context.Context, foundItemID, lostItemID string) (*store.MatchCandidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.candidates {
		if (c.FoundItemID == foundItemID && c.LostItemID == lostItemID) ||
			(c.FoundItemID == lostItemID && c.LostItemID == foundItemID) {
			cp := *c
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *mockMatchRepo) Update(_ context.Context, mc *store.MatchCandidate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.candidates[mc.ID]; !ok {
		return store.ErrNotFound
	}
	cp := *mc
	m.candidates[mc.ID] = &cp
	return nil
}

type mockAlertRepo struct {
	alerts []store.Alert
}

func (m *mockAlertRepo) Create(_ context.Context, a *store.Alert) error {
	a.ID = fmt.Sprintf("alert-%d", len(m.alerts)+1)
	m.alerts = append(m.alerts, *a)
	return nil
}

func (m *mockAlertRepo) ListActive(_ context.Context, municipalityID string) ([]store.Alert, error) {
	var out []store.Alert
	for _, a := range m.alerts {
		if a.Active && a.MunicipalityID == municipalityID {
			out = append(out, a)
		}
	}
	return out, nil
}

type nopEventStore struct{}

func (nopEventStore) Append(context.Context, ...event.Event) error        { return nil }
func (nopEventStore) Load(context.Context, string) ([]event.Event, error) { return nil, nil }
func (nopEventStore) LoadByType(context.Context, event.Type) ([]event.Event, error) {
	return nil, nil
}

type engineFixture struct {
	engine  *match.Engine
	items   *mockItemRepo
	matches *mockMatchRepo
	alerts  *mockAlertRepo
}

func newEngineFixture(threshold int) *engineFixture {
	f := &engineFixture{
		items:   newMockItemRepo(),
		matches: newMockMatchRepo(),
		alerts:  &mockAlertRepo{},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clk := &clock.Mock{T: time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)}
	f.engine = match.NewEngine(f.items, f.matches, f.alerts, nopEventStore{}, logger,
		noop.NewTracerProvider(), clk, threshold, 7)
	return f
}

func seedItem(t *testing.T, repo *mockItemRepo, kind store.ItemKind, mutate func(*store.Item)) *store.Item {
	t.Helper()
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	it := &store.Item{
		MunicipalityID: "muni-1",
		Kind:           kind,
		State:          store.StateStored,
		Title:          "cartera",
		Description:    "cartera negra de piel",
		DiscoveredAt:   &base,
		ReporterID:     "citizen-1",
	}
	if mutate != nil {
		mutate(it)
	}
	if err := repo.Create(context.Background(), it); err != nil {
		t.Fatalf("seeding item: %v", err)
	}
	return it
}

func TestFindCandidates(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(30)

	lost := seedItem(t, f.items, store.KindLost, func(it *store.Item) {
		it.CategoryID = strPtr("wallets")
		it.Color = strPtr("negro")
	})
	// Strong candidate: category + color + keywords.
	strong := seedItem(t, f.items, store.KindFound, func(it *store.Item) {
		it.CategoryID = strPtr("wallets")
		it.Color = strPtr("negro")
	})
	// Weak: shares only the description keywords, below threshold.
	seedItem(t, f.items, store.KindFound, func(it *store.Item) {
		it.CategoryID = strPtr("keys")
		it.Color = strPtr("plateado")
		it.Description = "llavero con cartera pequena"
	})
	// Outside the date window.
	seedItem(t, f.items, store.KindFound, func(it *store.Item) {
		it.CategoryID = strPtr("wallets")
		far := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		it.DiscoveredAt = &far
	})
	// Wrong municipality.
	seedItem(t, f.items, store.KindFound, func(it *store.Item) {
		it.MunicipalityID = "muni-2"
		it.CategoryID = strPtr("wallets")
		it.Color = strPtr("negro")
	})
	// Same kind as the query item is never a candidate.
	seedItem(t, f.items, store.KindLost, func(it *store.Item) {
		it.CategoryID = strPtr("wallets")
		it.Color = strPtr("negro")
	})

	got, err := f.engine.FindCandidates(ctx, lost)
	if err != nil {
		t.Fatalf("FindCandidates() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("FindCandidates() returned %d candidates, want 1: %+v", len(got), got)
	}
	if got[0].Item.ID != strong.ID {
		t.Errorf("candidate = %s, want %s", got[0].Item.ID, strong.ID)
	}
	if got[0].Score < 30 {
		t.Errorf("score = %d, want >= threshold", got[0].Score)
	}
}

func TestFindCandidates_ExcludesConfirmed(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(30)

	lost := seedItem(t, f.items, store.KindLost, func(it *store.Item) {
		it.CategoryID = strPtr("wallets")
		it.Color = strPtr("negro")
	})
	found := seedItem(t, f.items, store.KindFound, func(it *store.Item) {
		it.CategoryID = strPtr("wallets")
		it.Color = strPtr("negro")
	})
	f.items.confirmed[found.ID] = struct{}{}

	got, err := f.engine.FindCandidates(ctx, lost)
	if err != nil {
		t.Fatalf("FindCandidates() error = %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("FindCandidates() returned %d candidates, want 0", len(got))
	}
}

func TestFindCandidates_SortedByScore(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(30)

	lost := seedItem(t, f.items, store.KindLost, func(it *store.Item) {
		it.CategoryID = strPtr("wallets")
		it.Color = strPtr("negro")
		it.Brand = strPtr("Acme")
	})
	seedItem(t, f.items, store.KindFound, func(it *store.Item) {
		it.CategoryID = strPtr("wallets")
	})
	best := seedItem(t, f.items, store.KindFound, func(it *store.Item) {
		it.CategoryID = strPtr("wallets")
		it.Color = strPtr("negro")
		it.Brand = strPtr("acme")
	})

	got, err := f.engine.FindCandidates(ctx, lost)
	if err != nil {
		t.Fatalf("FindCandidates() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("FindCandidates() returned %d candidates, want 2", len(got))
	}
	if got[0].Item.ID != best.ID {
		t.Errorf("best candidate = %s, want %s", got[0].Item.ID, best.ID)
	}
	if got[0].Score < got[1].Score {
		t.Errorf("candidates not sorted: %d before %d", got[0].Score, got[1].Score)
	}
}

func TestProposeMatch(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(30)

	found := seedItem(t, f.items, store.KindFound, func(it *store.Item) {
		it.CategoryID = strPtr("wallets")
		it.Color = strPtr("negro")
	})
	lost := seedItem(t, f.items, store.KindLost, func(it *store.Item) {
		it.CategoryID = strPtr("wallets")
		it.Color = strPtr("negro")
	})

	mc, err := f.engine.ProposeMatch(ctx, found, lost)
	if err != nil {
		t.Fatalf("ProposeMatch() error = %v", err)
	}
	if mc == nil {
		t.Fatal("ProposeMatch() returned nil candidate")
	}
	if mc.State != store.MatchPending {
		t.Errorf("state = %s, want PENDING", mc.State)
	}
	if mc.Score < 30 {
		t.Errorf("score = %d, want >= threshold", mc.Score)
	}

	// The same pair again is an idempotent skip.
	dup, err := f.engine.ProposeMatch(ctx, found, lost)
	if err != nil {
		t.Fatalf("second ProposeMatch() error = %v", err)
	}
	if dup != nil {
		t.Errorf("second ProposeMatch() = %+v, want nil", dup)
	}
}

func TestProposeMatch_BelowThreshold(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(30)

	found := seedItem(t, f.items, store.KindFound, func(it *store.Item) {
		it.Description = "paraguas grande"
		it.DiscoveredAt = nil
	})
	lost := seedItem(t, f.items, store.KindLost, func(it *store.Item) {
		it.Description = "guantes de lana"
		it.DiscoveredAt = nil
	})

	mc, err := f.engine.ProposeMatch(ctx, found, lost)
	if err != nil {
		t.Fatalf("ProposeMatch() error = %v", err)
	}
	if mc != nil {
		t.Errorf("ProposeMatch() = %+v, want nil below threshold", mc)
	}
	if len(f.matches.candidates) != 0 {
		t.Errorf("candidate persisted below threshold")
	}
}

func TestConfirmAndReject(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(30)

	found := seedItem(t, f.items, store.KindFound, func(it *store.Item) {
		it.CategoryID = strPtr("wallets")
		it.Color = strPtr("negro")
	})
	lost := seedItem(t, f.items, store.KindLost, func(it *store.Item) {
		it.CategoryID = strPtr("wallets")
		it.Color = strPtr("negro")
	})
	mc, err := f.engine.ProposeMatch(ctx, found, lost)
	if err != nil || mc == nil {
		t.Fatalf("ProposeMatch() = %v, %v", mc, err)
	}

	confirmed, err := f.engine.Confirm(ctx, mc.ID, "reviewer-1")
	if err != nil {
		t.Fatalf("Confirm() error = %v", err)
	}
	if confirmed.State != store.MatchConfirmed {
		t.Errorf("state = %s, want CONFIRMED", confirmed.State)
	}
	if confirmed.ReviewerID == nil || *confirmed.ReviewerID != "reviewer-1" {
		t.Errorf("reviewer = %v, want reviewer-1", confirmed.ReviewerID)
	}
	if confirmed.DecidedAt == nil {
		t.Error("decided_at not set")
	}

	// Deciding twice fails, in either direction.
	if _, err := f.engine.Confirm(ctx, mc.ID, "reviewer-2"); !errors.Is(err, match.ErrAlreadyDecided) {
		t.Errorf("second Confirm() error = %v, want ErrAlreadyDecided", err)
	}
	if _, err := f.engine.Reject(ctx, mc.ID, "reviewer-2", ""); !errors.Is(err, match.ErrAlreadyDecided) {
		t.Errorf("Reject() after Confirm() error = %v, want ErrAlreadyDecided", err)
	}
}

func TestReject(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(30)

	found := seedItem(t, f.items, store.KindFound, func(it *store.Item) {
		it.CategoryID = strPtr("wallets")
		it.Color = strPtr("negro")
	})
	lost := seedItem(t, f.items, store.KindLost, func(it *store.Item) {
		it.CategoryID = strPtr("wallets")
		it.Color = strPtr("negro")
	})
	mc, err := f.engine.ProposeMatch(ctx, found, lost)
	if err != nil || mc == nil {
		t.Fatalf("ProposeMatch() = %v, %v", mc, err)
	}

	rejected, err := f.engine.Reject(ctx, mc.ID, "reviewer-1", "different serial number")
	if err != nil {
		t.Fatalf("Reject() error = %v", err)
	}
	if rejected.State != store.MatchRejected {
		t.Errorf("state = %s, want REJECTED", rejected.State)
	}
	if rejected.Notes == nil || *rejected.Notes != "different serial number" {
		t.Errorf("notes = %v, want recorded", rejected.Notes)
	}
}

func TestEvaluateAlerts(t *testing.T) {
	ctx := context.Background()
	f := newEngineFixture(30)

	it := seedItem(t, f.items, store.KindFound, func(it *store.Item) {
		it.CategoryID = strPtr("wallets")
		it.Color = strPtr("negro")
		it.Title = "Cartera de piel"
		it.Description = "cartera negra con documentos"
	})

	alerts := []store.Alert{
		{CitizenID: "c1", MunicipalityID: "muni-1", CategoryID: strPtr("wallets"), Active: true},
		{CitizenID: "c2", MunicipalityID: "muni-1", Color: strPtr("negro"), Keywords: pq.StringArray{"documentos"}, Active: true},
		// Declared category does not match.
		{CitizenID: "c3", MunicipalityID: "muni-1", CategoryID: strPtr("keys"), Active: true},
		// One criterion matches but another fails: AND semantics.
		{CitizenID: "c4", MunicipalityID: "muni-1", CategoryID: strPtr("wallets"), Color: strPtr("rojo"), Active: true},
		// No criteria declared matches nothing.
		{CitizenID: "c5", MunicipalityID: "muni-1", Active: true},
		// Inactive alerts are skipped.
		{CitizenID: "c6", MunicipalityID: "muni-1", CategoryID: strPtr("wallets"), Active: false},
		// Other municipality.
		{CitizenID: "c7", MunicipalityID: "muni-2", CategoryID: strPtr("wallets"), Active: true},
	}
	for i := range alerts {
		if err := f.alerts.Create(ctx, &alerts[i]); err != nil {
			t.Fatalf("creating alert: %v", err)
		}
	}

	matched, err := f.engine.EvaluateAlerts(ctx, it)
	if err != nil {
		t.Fatalf("EvaluateAlerts() error = %v", err)
	}
	gotCitizens := make(map[string]bool, len(matched))
	for _, a := range matched {
		gotCitizens[a.CitizenID] = true
	}
	if len(matched) != 2 || !gotCitizens["c1"] || !gotCitizens["c2"] {
		t.Errorf("EvaluateAlerts() matched %v, want c1 and c2", gotCitizens)
	}
}
