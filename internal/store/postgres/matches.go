package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/asegarra/lostfound/internal/store"
)

// uniqueViolation is the Postgres error code for unique constraint breaches.
const uniqueViolation = "23505"

// MatchRepo implements store.MatchRepository with sqlx.
type MatchRepo struct {
	db *sqlx.DB
}

// NewMatchRepo returns a new MatchRepo.
func NewMatchRepo(db *sqlx.DB) *MatchRepo {
	return &MatchRepo{db: db}
}

// Create inserts a candidate. The unique index over the unordered item pair
// makes concurrent duplicate proposals lose deterministically.
func (r *MatchRepo) Create(ctx context.Context, mc *store.MatchCandidate) error {
	query := `INSERT INTO match_candidates (found_item_id, lost_item_id, score, breakdown, state, created_at)
	           VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`
	err := r.db.QueryRowContext(ctx, query,
		mc.FoundItemID, mc.LostItemID, mc.Score, mc.Breakdown, mc.State, mc.CreatedAt,
	).Scan(&mc.ID)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return store.ErrDuplicateMatch
	}
	if err != nil {
		return fmt.Errorf("inserting match candidate: %w", err)
	}
	return nil
}

func (r *MatchRepo) Get(ctx context.Context, id string) (*store.MatchCandidate, error) {
	var mc store.MatchCandidate
	err := r.db.GetContext(ctx, &mc, `SELECT * FROM match_candidates WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting match candidate: %w", err)
	}
	return &mc, nil
}

func (r *MatchRepo) GetByPair(ctx context.Context, foundItemID, lostItemID string) (*store.MatchCandidate, error) {
	var mc store.MatchCandidate
	err := r.db.GetContext(ctx, &mc,
		`SELECT * FROM match_candidates
		 WHERE (found_item_id = $1 AND lost_item_id = $2)
		    OR (found_item_id = $2 AND lost_item_id = $1)`,
		foundItemID, lostItemID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting match candidate by pair: %w", err)
	}
	return &mc, nil
}

func (r *MatchRepo) Update(ctx context.Context, mc *store.MatchCandidate) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE match_candidates SET state = $1, reviewer_id = $2, notes = $3, decided_at = $4
		 WHERE id = $5`,
		mc.State, mc.ReviewerID, mc.Notes, mc.DecidedAt, mc.ID,
	)
	if err != nil {
		return fmt.Errorf("updating match candidate: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
