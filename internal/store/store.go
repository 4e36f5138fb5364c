package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// Errors returned by repository implementations.
var (
	ErrNotFound       = errors.New("not found")
	ErrLocationFull   = errors.New("storage location is full")
	ErrDuplicateMatch = errors.New("match candidate already exists for pair")
	// ErrPriceConflict signals that a compare-and-set on an auction's current
	// price lost against a concurrent bid and should be retried.
	ErrPriceConflict = errors.New("auction price changed concurrently")
)

// ItemKind distinguishes citizen-reported lost items from
// municipality-registered found items. Immutable after creation.
type ItemKind string

const (
	KindLost  ItemKind = "LOST"
	KindFound ItemKind = "FOUND"
)

// ItemState is the custody lifecycle state of an item. The permitted
// transitions live in the item package; the store treats states as opaque.
type ItemState string

const (
	StateRegistered  ItemState = "REGISTERED"
	StateStored      ItemState = "STORED"
	StateClaimed     ItemState = "CLAIMED"
	StateDelivered   ItemState = "DELIVERED"
	StateAuctionable ItemState = "AUCTIONABLE"
	StateAuctionLot  ItemState = "AUCTION_LOT"
	StateDonated     ItemState = "DONATED"
	StateRecycled    ItemState = "RECYCLED"
	StateDestroyed   ItemState = "DESTROYED"
)

// MatchState is the review state of a match candidate.
type MatchState string

const (
	MatchPending   MatchState = "PENDING"
	MatchConfirmed MatchState = "CONFIRMED"
	MatchRejected  MatchState = "REJECTED"
)

// LotKind is the disposition a lot is assembled for.
type LotKind string

const (
	LotAuction     LotKind = "AUCTION"
	LotDonation    LotKind = "DONATION"
	LotRecycling   LotKind = "RECYCLING"
	LotDestruction LotKind = "DESTRUCTION"
)

// LotState is the lifecycle state of a lot.
type LotState string

const (
	LotPreparing  LotState = "PREPARING"
	LotPublished  LotState = "PUBLISHED"
	LotInProgress LotState = "IN_PROGRESS"
	LotClosed     LotState = "CLOSED"
)

// AuctionState is the lifecycle state of an auction.
type AuctionState string

const (
	AuctionScheduled AuctionState = "SCHEDULED"
	AuctionOpen      AuctionState = "OPEN"
	AuctionClosed    AuctionState = "CLOSED"
	AuctionAwarded   AuctionState = "AWARDED"
)

// Item is a lost-or-found report.
type Item struct {
	ID             string              `db:"id"`
	MunicipalityID string              `db:"municipality_id"`
	Kind           ItemKind            `db:"kind"`
	State          ItemState           `db:"state"`
	CategoryID     *string             `db:"category_id"`
	Title          string              `db:"title"`
	Description    string              `db:"description"`
	Brand          *string             `db:"brand"`
	Model          *string             `db:"model"`
	Color          *string             `db:"color"`
	SerialNumber   *string             `db:"serial_number"`
	DiscoveredAt   *time.Time          `db:"discovered_at"`
	DiscoveryPlace string              `db:"discovery_place"`
	ReporterID     string              `db:"reporter_id"`
	LocationID     *string             `db:"location_id"`
	LotID          *string             `db:"lot_id"`
	EstimatedValue decimal.NullDecimal `db:"estimated_value"`
	CreatedAt      time.Time           `db:"created_at"`
	UpdatedAt      time.Time           `db:"updated_at"`
}

// StorageLocation is a node in the warehouse/shelving/slot hierarchy.
// Occupancy is mutated only through LocationRepository.Place and Release.
type StorageLocation struct {
	ID        string    `db:"id"`
	ParentID  *string   `db:"parent_id"`
	Name      string    `db:"name"`
	Capacity  *int      `db:"capacity"`
	Occupancy int       `db:"occupancy"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// MatchCandidate is a scored hypothesis that a found and a lost item are the
// same object. At most one candidate exists per unordered item pair.
type MatchCandidate struct {
	ID          string          `db:"id"`
	FoundItemID string          `db:"found_item_id"`
	LostItemID  string          `db:"lost_item_id"`
	Score       int             `db:"score"`
	Breakdown   json.RawMessage `db:"breakdown"`
	State       MatchState      `db:"state"`
	ReviewerID  *string         `db:"reviewer_id"`
	Notes       *string         `db:"notes"`
	CreatedAt   time.Time       `db:"created_at"`
	DecidedAt   *time.Time      `db:"decided_at"`
}

// Alert is a citizen's standing search filter evaluated against newly
// registered found items.
type Alert struct {
	ID             string         `db:"id"`
	CitizenID      string         `db:"citizen_id"`
	MunicipalityID string         `db:"municipality_id"`
	CategoryID     *string        `db:"category_id"`
	Color          *string        `db:"color"`
	Keywords       pq.StringArray `db:"keywords"`
	Active         bool           `db:"active"`
	CreatedAt      time.Time      `db:"created_at"`
}

// Lot is a named grouping of found items assembled for disposition.
type Lot struct {
	ID             string    `db:"id"`
	MunicipalityID string    `db:"municipality_id"`
	Name           string    `db:"name"`
	Kind           LotKind   `db:"kind"`
	State          LotState  `db:"state"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

// Auction is the sealed monotonic auction owned by a lot of kind AUCTION.
// CurrentPrice is null until the first accepted bid and never decreases.
type Auction struct {
	ID            string              `db:"id"`
	LotID         string              `db:"lot_id"`
	StartingPrice decimal.Decimal     `db:"starting_price"`
	CurrentPrice  decimal.NullDecimal `db:"current_price"`
	MinIncrement  decimal.Decimal     `db:"min_increment"`
	OpensAt       time.Time           `db:"opens_at"`
	ClosesAt      time.Time           `db:"closes_at"`
	State         AuctionState        `db:"state"`
	WinnerID      *string             `db:"winner_id"`
	CreatedAt     time.Time           `db:"created_at"`
	UpdatedAt     time.Time           `db:"updated_at"`
}

// Bid is an accepted bid. Append-only, immutable once created.
type Bid struct {
	ID        string          `db:"id"`
	AuctionID string          `db:"auction_id"`
	BidderID  string          `db:"bidder_id"`
	Amount    decimal.Decimal `db:"amount"`
	CreatedAt time.Time       `db:"created_at"`
}

// ItemFilter restricts Query results. Zero-value fields are ignored.
type ItemFilter struct {
	MunicipalityID string
	Kind           *ItemKind
	States         []ItemState
	DiscoveredFrom *time.Time
	DiscoveredTo   *time.Time
	// ExcludeConfirmed drops items that already appear in a CONFIRMED
	// match candidate.
	ExcludeConfirmed bool
	// WithoutLot restricts to items with no lot assignment.
	WithoutLot bool
	// CreatedBefore restricts to items registered before the given instant
	// (disposition sweeps pass now minus the minimum unclaimed age).
	CreatedBefore *time.Time
}

// ItemRepository defines item persistence operations.
type ItemRepository interface {
	Create(ctx context.Context, it *Item) error
	Get(ctx context.Context, id string) (*Item, error)
	Update(ctx context.Context, it *Item) error
	Query(ctx context.Context, f ItemFilter) ([]Item, error)
}

// LocationRepository defines storage-location persistence operations.
// Place and Release update the location occupancy counter and the item's
// location reference in a single atomic unit.
type LocationRepository interface {
	Create(ctx context.Context, loc *StorageLocation) error
	Get(ctx context.Context, id string) (*StorageLocation, error)
	// Place moves the item into the target location, incrementing its
	// occupancy and decrementing the previous location's, if any. Returns
	// ErrLocationFull without mutating anything when the target is at
	// capacity.
	Place(ctx context.Context, itemID, locationID string) error
	// Release clears the item's location reference and decrements the held
	// location's occupancy. No-op if the item holds no location.
	Release(ctx context.Context, itemID string) error
}

// MatchRepository defines match-candidate persistence operations.
type MatchRepository interface {
	// Create inserts a new candidate. Returns ErrDuplicateMatch if a
	// candidate already covers the unordered (found, lost) pair.
	Create(ctx context.Context, mc *MatchCandidate) error
	Get(ctx context.Context, id string) (*MatchCandidate, error)
	GetByPair(ctx context.Context, foundItemID, lostItemID string) (*MatchCandidate, error)
	Update(ctx context.Context, mc *MatchCandidate) error
}

// AlertRepository defines alert persistence operations.
type AlertRepository interface {
	Create(ctx context.Context, a *Alert) error
	ListActive(ctx context.Context, municipalityID string) ([]Alert, error)
}

// LotRepository defines lot persistence operations.
type LotRepository interface {
	Create(ctx context.Context, l *Lot) error
	Get(ctx context.Context, id string) (*Lot, error)
	Update(ctx context.Context, l *Lot) error
	// ListItems returns the ids of items currently assigned to the lot.
	ListItems(ctx context.Context, lotID string) ([]string, error)
}

// AuctionRepository defines auction and bid persistence operations.
type AuctionRepository interface {
	Create(ctx context.Context, a *Auction) error
	Get(ctx context.Context, id string) (*Auction, error)
	GetByLot(ctx context.Context, lotID string) (*Auction, error)
	Update(ctx context.Context, a *Auction) error
	// PlaceBid appends the bid and advances the auction's current price to
	// the bid amount in one transaction, conditional on the current price
	// still equalling expected. Returns ErrPriceConflict when a concurrent
	// bid got there first.
	PlaceBid(ctx context.Context, b *Bid, expected decimal.NullDecimal) error
	ListBids(ctx context.Context, auctionID string) ([]Bid, error)
}
