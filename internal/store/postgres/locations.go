package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/asegarra/lostfound/internal/store"
)

// LocationRepo implements store.LocationRepository with sqlx.
type LocationRepo struct {
	db *sqlx.DB
}

// NewLocationRepo returns a new LocationRepo.
func NewLocationRepo(db *sqlx.DB) *LocationRepo {
	return &LocationRepo{db: db}
}

func (r *LocationRepo) Create(ctx context.Context, loc *store.StorageLocation) error {
	query := `INSERT INTO storage_locations (parent_id, name, capacity, occupancy, created_at, updated_at)
	           VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`
	now := time.Now().UTC()
	loc.CreatedAt = now
	loc.UpdatedAt = now
	return r.db.QueryRowContext(ctx, query,
		loc.ParentID, loc.Name, loc.Capacity, loc.Occupancy, loc.CreatedAt, loc.UpdatedAt,
	).Scan(&loc.ID)
}

func (r *LocationRepo) Get(ctx context.Context, id string) (*store.StorageLocation, error) {
	var loc store.StorageLocation
	err := r.db.GetContext(ctx, &loc, `SELECT * FROM storage_locations WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting location: %w", err)
	}
	return &loc, nil
}

// Place moves an item into a location. Occupancy counters and the item's
// location reference change in one transaction; the target's row is locked
// so concurrent placements cannot overshoot its capacity. Placing an item
// into the location it already occupies is a no-op.
func (r *LocationRepo) Place(ctx context.Context, itemID, locationID string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var target struct {
		Capacity  *int `db:"capacity"`
		Occupancy int  `db:"occupancy"`
	}
	err = tx.GetContext(ctx, &target,
		`SELECT capacity, occupancy FROM storage_locations WHERE id = $1 FOR UPDATE`, locationID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("locking location: %w", err)
	}

	var prev *string
	err = tx.GetContext(ctx, &prev,
		`SELECT location_id FROM items WHERE id = $1 FOR UPDATE`, itemID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("locking item: %w", err)
	}
	// The item-row check must run under the lock: a concurrent placement
	// that committed first already counted this item at the location.
	if prev != nil && *prev == locationID {
		return tx.Commit()
	}
	if target.Capacity != nil && target.Occupancy >= *target.Capacity {
		return store.ErrLocationFull
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		`UPDATE storage_locations SET occupancy = occupancy + 1, updated_at = $1 WHERE id = $2`,
		now, locationID,
	); err != nil {
		return fmt.Errorf("incrementing occupancy: %w", err)
	}
	if prev != nil {
		if _, err := tx.ExecContext(ctx,
			`UPDATE storage_locations SET occupancy = occupancy - 1, updated_at = $1 WHERE id = $2`,
			now, *prev,
		); err != nil {
			return fmt.Errorf("decrementing previous occupancy: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE items SET location_id = $1, updated_at = $2 WHERE id = $3`,
		locationID, now, itemID,
	); err != nil {
		return fmt.Errorf("updating item location: %w", err)
	}

	return tx.Commit()
}

// Release clears the item's location and decrements the held location's
// occupancy in one transaction. No-op for an item without a location.
func (r *LocationRepo) Release(ctx context.Context, itemID string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var held *string
	err = tx.GetContext(ctx, &held,
		`SELECT location_id FROM items WHERE id = $1 FOR UPDATE`, itemID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("locking item: %w", err)
	}
	if held == nil {
		return tx.Commit()
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		`UPDATE storage_locations SET occupancy = occupancy - 1, updated_at = $1 WHERE id = $2`,
		now, *held,
	); err != nil {
		return fmt.Errorf("decrementing occupancy: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE items SET location_id = NULL, updated_at = $1 WHERE id = $2`,
		now, itemID,
	); err != nil {
		return fmt.Errorf("clearing item location: %w", err)
	}

	return tx.Commit()
}
