package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const nextPickupNumber = `
INSERT INTO pickup_counters (restaurant_id, current_number)
VALUES ($1, 1)
ON CONFLICT (restaurant_id)
DO UPDATE SET current_number = pickup_counters.current_number + 1
RETURNING current_number
`

// NextPickupNumber atomically increments and returns the restaurant's pickup
// counter, creating it at 1 on first use. The upsert takes a row lock, so
// concurrent callers for the same restaurant serialize and each observes a
// distinct consecutive value.
func (q *Queries) NextPickupNumber(ctx context.Context, restaurantID uuid.UUID) (int32, error) {
	row := q.db.QueryRow(ctx, nextPickupNumber, restaurantID)
	var n int32
	err := row.Scan(&n)
	return n, err
}

const lockPickupCounter = `
SELECT current_number
FROM pickup_counters
WHERE restaurant_id = $1
FOR UPDATE
`

// LockPickupCounter takes the counter row lock for the transaction's
// duration, serializing the caller against concurrent submissions.
// Returns pgx.ErrNoRows when no order was ever submitted.
func (q *Queries) LockPickupCounter(ctx context.Context, restaurantID uuid.UUID) (int32, error) {
	row := q.db.QueryRow(ctx, lockPickupCounter, restaurantID)
	var n int32
	err := row.Scan(&n)
	return n, err
}

const resetPickupCounter = `
UPDATE pickup_counters
SET current_number = 0
WHERE restaurant_id = $1
`

func (q *Queries) ResetPickupCounter(ctx context.Context, restaurantID uuid.UUID) error {
	_, err := q.db.Exec(ctx, resetPickupCounter, restaurantID)
	return err
}

const createOrderLine = `
INSERT INTO order_lines (restaurant_id, number, menu_item_id, name, price, quantity, remark, order_type)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id, restaurant_id, number, menu_item_id, name, price, quantity, remark, order_type, created_at
`

type CreateOrderLineParams struct {
	RestaurantID uuid.UUID
	Number       int32
	MenuItemID   uuid.UUID
	Name         string
	Price        pgtype.Numeric
	Quantity     int32
	Remark       pgtype.Text
	OrderType    string
}

func (q *Queries) CreateOrderLine(ctx context.Context, arg CreateOrderLineParams) (OrderLine, error) {
	row := q.db.QueryRow(ctx, createOrderLine,
		arg.RestaurantID, arg.Number, arg.MenuItemID, arg.Name, arg.Price, arg.Quantity, arg.Remark, arg.OrderType)
	var l OrderLine
	err := row.Scan(&l.ID, &l.RestaurantID, &l.Number, &l.MenuItemID, &l.Name, &l.Price, &l.Quantity, &l.Remark, &l.OrderType, &l.CreatedAt)
	return l, err
}

const listActiveOrderLines = `
SELECT id, restaurant_id, number, menu_item_id, name, price, quantity, remark, order_type, created_at
FROM order_lines
WHERE restaurant_id = $1
ORDER BY created_at DESC
`

// ListActiveOrderLines returns every active line for the restaurant, newest
// first, for the polling dashboard.
func (q *Queries) ListActiveOrderLines(ctx context.Context, restaurantID uuid.UUID) ([]OrderLine, error) {
	rows, err := q.db.Query(ctx, listActiveOrderLines, restaurantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []OrderLine
	for rows.Next() {
		var l OrderLine
		if err := rows.Scan(&l.ID, &l.RestaurantID, &l.Number, &l.MenuItemID, &l.Name, &l.Price, &l.Quantity, &l.Remark, &l.OrderType, &l.CreatedAt); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

const countActiveOrderLines = `
SELECT COUNT(*)
FROM order_lines
WHERE restaurant_id = $1
`

func (q *Queries) CountActiveOrderLines(ctx context.Context, restaurantID uuid.UUID) (int64, error) {
	row := q.db.QueryRow(ctx, countActiveOrderLines, restaurantID)
	var n int64
	err := row.Scan(&n)
	return n, err
}

const archiveOrderLines = `
INSERT INTO finished_order_lines
    (restaurant_id, number, menu_item_id, name, price, quantity, remark, order_type, created_at, finished_at)
SELECT restaurant_id, number, menu_item_id, name, price, quantity, remark, order_type, created_at, $3
FROM order_lines
WHERE restaurant_id = $1 AND number = $2
`

type ArchiveOrderLinesParams struct {
	RestaurantID uuid.UUID
	Number       int32
	FinishedAt   time.Time
}

// ArchiveOrderLines copies the active lines of one pickup number into the
// archive, stamped with the completion time. Returns the number of lines
// copied; 0 means the order doesn't exist.
func (q *Queries) ArchiveOrderLines(ctx context.Context, arg ArchiveOrderLinesParams) (int64, error) {
	tag, err := q.db.Exec(ctx, archiveOrderLines, arg.RestaurantID, arg.Number, arg.FinishedAt)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const deleteOrderLines = `
DELETE FROM order_lines
WHERE restaurant_id = $1 AND number = $2
`

type DeleteOrderLinesParams struct {
	RestaurantID uuid.UUID
	Number       int32
}

func (q *Queries) DeleteOrderLines(ctx context.Context, arg DeleteOrderLinesParams) (int64, error) {
	tag, err := q.db.Exec(ctx, deleteOrderLines, arg.RestaurantID, arg.Number)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
