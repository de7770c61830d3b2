package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const listFinishedOrderLines = `
SELECT id, restaurant_id, number, menu_item_id, name, price, quantity, remark, order_type, created_at, finished_at
FROM finished_order_lines
WHERE restaurant_id = $1
ORDER BY finished_at DESC
`

func (q *Queries) ListFinishedOrderLines(ctx context.Context, restaurantID uuid.UUID) ([]FinishedOrderLine, error) {
	rows, err := q.db.Query(ctx, listFinishedOrderLines, restaurantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []FinishedOrderLine
	for rows.Next() {
		var l FinishedOrderLine
		if err := rows.Scan(&l.ID, &l.RestaurantID, &l.Number, &l.MenuItemID, &l.Name, &l.Price, &l.Quantity, &l.Remark, &l.OrderType, &l.CreatedAt, &l.FinishedAt); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

const getTodayRevenue = `
SELECT COALESCE(SUM(price * quantity), 0)
FROM finished_order_lines
WHERE restaurant_id = $1 AND finished_at::date = CURRENT_DATE
`

// GetTodayRevenue sums price * quantity over lines finished on the current
// calendar date.
func (q *Queries) GetTodayRevenue(ctx context.Context, restaurantID uuid.UUID) (pgtype.Numeric, error) {
	row := q.db.QueryRow(ctx, getTodayRevenue, restaurantID)
	var n pgtype.Numeric
	err := row.Scan(&n)
	return n, err
}

const getTodayItemSales = `
SELECT name, SUM(quantity) AS total_sold
FROM finished_order_lines
WHERE restaurant_id = $1 AND finished_at::date = CURRENT_DATE
GROUP BY name
ORDER BY total_sold DESC
`

type GetTodayItemSalesRow struct {
	Name      string
	TotalSold int64
}

func (q *Queries) GetTodayItemSales(ctx context.Context, restaurantID uuid.UUID) ([]GetTodayItemSalesRow, error) {
	rows, err := q.db.Query(ctx, getTodayItemSales, restaurantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var sales []GetTodayItemSalesRow
	for rows.Next() {
		var r GetTodayItemSalesRow
		if err := rows.Scan(&r.Name, &r.TotalSold); err != nil {
			return nil, err
		}
		sales = append(sales, r)
	}
	return sales, rows.Err()
}

const deleteFinishedOrderLines = `
DELETE FROM finished_order_lines
WHERE restaurant_id = $1
`

func (q *Queries) DeleteFinishedOrderLines(ctx context.Context, restaurantID uuid.UUID) (int64, error) {
	tag, err := q.db.Exec(ctx, deleteFinishedOrderLines, restaurantID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
