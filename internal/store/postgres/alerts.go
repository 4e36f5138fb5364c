package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/asegarra/lostfound/internal/store"
)

// AlertRepo implements store.AlertRepository with sqlx.
type AlertRepo struct {
	db *sqlx.DB
}

// NewAlertRepo returns a new AlertRepo.
func NewAlertRepo(db *sqlx.DB) *AlertRepo {
	return &AlertRepo{db: db}
}

func (r *AlertRepo) Create(ctx context.Context, a *store.Alert) error {
	query := `INSERT INTO alerts (citizen_id, municipality_id, category_id, color, keywords, active, created_at)
	           VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`
	a.CreatedAt = time.Now().UTC()
	return r.db.QueryRowContext(ctx, query,
		a.CitizenID, a.MunicipalityID, a.CategoryID, a.Color, a.Keywords, a.Active, a.CreatedAt,
	).Scan(&a.ID)
}

func (r *AlertRepo) ListActive(ctx context.Context, municipalityID string) ([]store.Alert, error) {
	var alerts []store.Alert
	err := r.db.SelectContext(ctx, &alerts,
		`SELECT * FROM alerts WHERE municipality_id = $1 AND active ORDER BY created_at ASC`,
		municipalityID)
	if err != nil {
		return nil, fmt.Errorf("listing active alerts: %w", err)
	}
	return alerts, nil
}
