package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/asegarra/lostfound/internal/store"
)

// AuctionRepo implements store.AuctionRepository with sqlx.
type AuctionRepo struct {
	db *sqlx.DB
}

// NewAuctionRepo returns a new AuctionRepo.
func NewAuctionRepo(db *sqlx.DB) *AuctionRepo {
	return &AuctionRepo{db: db}
}

func (r *AuctionRepo) Create(ctx context.Context, a *store.Auction) error {
	query := `INSERT INTO auctions (lot_id, starting_price, current_price, min_increment,
	           opens_at, closes_at, state, created_at, updated_at)
	           VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`
	return r.db.QueryRowContext(ctx, query,
		a.LotID, a.StartingPrice, a.CurrentPrice, a.MinIncrement,
		a.OpensAt, a.ClosesAt, a.State, a.CreatedAt, a.UpdatedAt,
	).Scan(&a.ID)
}

func (r *AuctionRepo) Get(ctx context.Context, id string) (*store.Auction, error) {
	var a store.Auction
	err := r.db.GetContext(ctx, &a, `SELECT * FROM auctions WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting auction: %w", err)
	}
	return &a, nil
}

func (r *AuctionRepo) GetByLot(ctx context.Context, lotID string) (*store.Auction, error) {
	var a store.Auction
	err := r.db.GetContext(ctx, &a, `SELECT * FROM auctions WHERE lot_id = $1`, lotID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting auction by lot: %w", err)
	}
	return &a, nil
}

func (r *AuctionRepo) Update(ctx context.Context, a *store.Auction) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE auctions SET state = $1, winner_id = $2, opens_at = $3, closes_at = $4, updated_at = $5
		 WHERE id = $6`,
		a.State, a.WinnerID, a.OpensAt, a.ClosesAt, a.UpdatedAt, a.ID,
	)
	if err != nil {
		return fmt.Errorf("updating auction: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// PlaceBid advances the auction's current price to the bid amount and
// appends the bid in one transaction. The price update is conditional on
// the current price still matching expected, so of two concurrent bids
// read against the same floor exactly one commits; the other gets
// ErrPriceConflict and must re-read.
func (r *AuctionRepo) PlaceBid(ctx context.Context, b *store.Bid, expected decimal.NullDecimal) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx,
		`UPDATE auctions SET current_price = $1, updated_at = $2
		 WHERE id = $3 AND state = 'OPEN' AND current_price IS NOT DISTINCT FROM $4`,
		b.Amount, b.CreatedAt, b.AuctionID, expected,
	)
	if err != nil {
		return fmt.Errorf("advancing current price: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return store.ErrPriceConflict
	}

	err = tx.QueryRowContext(ctx,
		`INSERT INTO bids (auction_id, bidder_id, amount, created_at)
		 VALUES ($1, $2, $3, $4) RETURNING id`,
		b.AuctionID, b.BidderID, b.Amount, b.CreatedAt,
	).Scan(&b.ID)
	if err != nil {
		return fmt.Errorf("inserting bid: %w", err)
	}

	return tx.Commit()
}

func (r *AuctionRepo) ListBids(ctx context.Context, auctionID string) ([]store.Bid, error) {
	var bids []store.Bid
	err := r.db.SelectContext(ctx, &bids,
		`SELECT * FROM bids WHERE auction_id = $1 ORDER BY created_at ASC, id ASC`, auctionID)
	if err != nil {
		return nil, fmt.Errorf("listing bids: %w", err)
	}
	return bids, nil
}
