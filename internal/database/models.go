package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// Restaurant is a registered tenant. PublicToken is the opaque identifier
// embedded in the QR ordering URL; it never changes after registration.
type Restaurant struct {
	ID             uuid.UUID
	Name           string
	Email          string
	HashedPassword string
	PublicToken    uuid.UUID
	VerifyToken    pgtype.Text
	Verified       bool
	CreatedAt      time.Time
}

// MenuItem belongs to exactly one restaurant. Category is nullable; the
// empty/null case is normalized to an "Other" bucket at read time.
type MenuItem struct {
	ID           uuid.UUID
	RestaurantID uuid.UUID
	Name         string
	Price        pgtype.Numeric
	Category     pgtype.Text
	Available    bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PickupCounter holds the last pickup number handed out for a restaurant.
// Reset to 0 only when history is cleared.
type PickupCounter struct {
	RestaurantID  uuid.UUID
	CurrentNumber int32
}

// OrderLine is one menu item within an active order. All lines of one
// submission share a pickup number. Name and price are snapshots taken at
// order time so later menu edits don't rewrite history.
type OrderLine struct {
	ID           uuid.UUID
	RestaurantID uuid.UUID
	Number       int32
	MenuItemID   uuid.UUID
	Name         string
	Price        pgtype.Numeric
	Quantity     int32
	Remark       pgtype.Text
	OrderType    string
	CreatedAt    time.Time
}

// FinishedOrderLine is the archived copy of an order line, created when the
// order is finished and removed only by clearing history.
type FinishedOrderLine struct {
	ID           uuid.UUID
	RestaurantID uuid.UUID
	Number       int32
	MenuItemID   uuid.UUID
	Name         string
	Price        pgtype.Numeric
	Quantity     int32
	Remark       pgtype.Text
	OrderType    string
	CreatedAt    time.Time
	FinishedAt   time.Time
}
