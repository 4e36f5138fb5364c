package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/asegarra/lostfound/internal/store"
)

// ItemRepo implements store.ItemRepository with sqlx.
type ItemRepo struct {
	db *sqlx.DB
}

// NewItemRepo returns a new ItemRepo.
func NewItemRepo(db *sqlx.DB) *ItemRepo {
	return &ItemRepo{db: db}
}

func (r *ItemRepo) Create(ctx context.Context, it *store.Item) error {
	query := `INSERT INTO items (municipality_id, kind, state, category_id, title, description,
	           brand, model, color, serial_number, discovered_at, discovery_place, reporter_id,
	           location_id, lot_id, estimated_value, created_at, updated_at)
	           VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	           RETURNING id`
	return r.db.QueryRowContext(ctx, query,
		it.MunicipalityID, it.Kind, it.State, it.CategoryID, it.Title, it.Description,
		it.Brand, it.Model, it.Color, it.SerialNumber, it.DiscoveredAt, it.DiscoveryPlace,
		it.ReporterID, it.LocationID, it.LotID, it.EstimatedValue, it.CreatedAt, it.UpdatedAt,
	).Scan(&it.ID)
}

func (r *ItemRepo) Get(ctx context.Context, id string) (*store.Item, error) {
	var it store.Item
	err := r.db.GetContext(ctx, &it, `SELECT * FROM items WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting item: %w", err)
	}
	return &it, nil
}

func (r *ItemRepo) Update(ctx context.Context, it *store.Item) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE items SET state = $1, category_id = $2, title = $3, description = $4,
		  brand = $5, model = $6, color = $7, serial_number = $8, discovered_at = $9,
		  discovery_place = $10, location_id = $11, lot_id = $12, estimated_value = $13,
		  updated_at = $14
		 WHERE id = $15`,
		it.State, it.CategoryID, it.Title, it.Description,
		it.Brand, it.Model, it.Color, it.SerialNumber, it.DiscoveredAt,
		it.DiscoveryPlace, it.LocationID, it.LotID, it.EstimatedValue,
		it.UpdatedAt, it.ID,
	)
	if err != nil {
		return fmt.Errorf("updating item: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *ItemRepo) Query(ctx context.Context, f store.ItemFilter) ([]store.Item, error) {
	var (
		conds []string
		args  []interface{}
	)
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.MunicipalityID != "" {
		add("municipality_id = $%d", f.MunicipalityID)
	}
	if f.Kind != nil {
		add("kind = $%d", *f.Kind)
	}
	if len(f.States) > 0 {
		states := make([]string, len(f.States))
		for i, s := range f.States {
			states[i] = string(s)
		}
		add("state = ANY($%d)", pq.Array(states))
	}
	if f.DiscoveredFrom != nil {
		add("discovered_at >= $%d", *f.DiscoveredFrom)
	}
	if f.DiscoveredTo != nil {
		add("discovered_at <= $%d", *f.DiscoveredTo)
	}
	if f.CreatedBefore != nil {
		add("created_at <= $%d", *f.CreatedBefore)
	}
	if f.WithoutLot {
		conds = append(conds, "lot_id IS NULL")
	}
	if f.ExcludeConfirmed {
		conds = append(conds, `NOT EXISTS (
			SELECT 1 FROM match_candidates mc
			WHERE mc.state = 'CONFIRMED'
			  AND (mc.found_item_id = items.id OR mc.lost_item_id = items.id))`)
	}

	query := `SELECT * FROM items`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at ASC"

	var items []store.Item
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("querying items: %w", err)
	}
	return items, nil
}
