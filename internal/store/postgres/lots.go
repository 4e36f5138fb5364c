package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/asegarra/lostfound/internal/store"
)

// LotRepo implements store.LotRepository with sqlx.
type LotRepo struct {
	db *sqlx.DB
}

// NewLotRepo returns a new LotRepo.
func NewLotRepo(db *sqlx.DB) *LotRepo {
	return &LotRepo{db: db}
}

func (r *LotRepo) Create(ctx context.Context, l *store.Lot) error {
	query := `INSERT INTO lots (municipality_id, name, kind, state, created_at, updated_at)
	           VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`
	return r.db.QueryRowContext(ctx, query,
		l.MunicipalityID, l.Name, l.Kind, l.State, l.CreatedAt, l.UpdatedAt,
	).Scan(&l.ID)
}

func (r *LotRepo) Get(ctx context.Context, id string) (*store.Lot, error) {
	var l store.Lot
	err := r.db.GetContext(ctx, &l, `SELECT * FROM lots WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting lot: %w", err)
	}
	return &l, nil
}

func (r *LotRepo) Update(ctx context.Context, l *store.Lot) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE lots SET name = $1, state = $2, updated_at = $3 WHERE id = $4`,
		l.Name, l.State, l.UpdatedAt, l.ID,
	)
	if err != nil {
		return fmt.Errorf("updating lot: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *LotRepo) ListItems(ctx context.Context, lotID string) ([]string, error) {
	var ids []string
	err := r.db.SelectContext(ctx, &ids,
		`SELECT id FROM items WHERE lot_id = $1 ORDER BY created_at ASC`, lotID)
	if err != nil {
		return nil, fmt.Errorf("listing lot items: %w", err)
	}
	return ids, nil
}
