package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const createMenuItem = `
INSERT INTO menu_items (restaurant_id, name, price, category, available)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, restaurant_id, name, price, category, available, created_at, updated_at
`

type CreateMenuItemParams struct {
	RestaurantID uuid.UUID
	Name         string
	Price        pgtype.Numeric
	Category     pgtype.Text
	Available    bool
}

func (q *Queries) CreateMenuItem(ctx context.Context, arg CreateMenuItemParams) (MenuItem, error) {
	row := q.db.QueryRow(ctx, createMenuItem, arg.RestaurantID, arg.Name, arg.Price, arg.Category, arg.Available)
	var m MenuItem
	err := row.Scan(&m.ID, &m.RestaurantID, &m.Name, &m.Price, &m.Category, &m.Available, &m.CreatedAt, &m.UpdatedAt)
	return m, err
}

const updateMenuItem = `
UPDATE menu_items
SET name = $3, price = $4, category = $5, available = $6, updated_at = now()
WHERE id = $1 AND restaurant_id = $2
RETURNING id, restaurant_id, name, price, category, available, created_at, updated_at
`

type UpdateMenuItemParams struct {
	ID           uuid.UUID
	RestaurantID uuid.UUID
	Name         string
	Price        pgtype.Numeric
	Category     pgtype.Text
	Available    bool
}

func (q *Queries) UpdateMenuItem(ctx context.Context, arg UpdateMenuItemParams) (MenuItem, error) {
	row := q.db.QueryRow(ctx, updateMenuItem,
		arg.ID, arg.RestaurantID, arg.Name, arg.Price, arg.Category, arg.Available)
	var m MenuItem
	err := row.Scan(&m.ID, &m.RestaurantID, &m.Name, &m.Price, &m.Category, &m.Available, &m.CreatedAt, &m.UpdatedAt)
	return m, err
}

const deleteMenuItem = `
DELETE FROM menu_items
WHERE id = $1 AND restaurant_id = $2
`

type DeleteMenuItemParams struct {
	ID           uuid.UUID
	RestaurantID uuid.UUID
}

func (q *Queries) DeleteMenuItem(ctx context.Context, arg DeleteMenuItemParams) (int64, error) {
	tag, err := q.db.Exec(ctx, deleteMenuItem, arg.ID, arg.RestaurantID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const listMenuItems = `
SELECT id, restaurant_id, name, price, category, available, created_at, updated_at
FROM menu_items
WHERE restaurant_id = $1
ORDER BY category NULLS LAST, name
`

// ListMenuItems returns every menu item of the restaurant, including
// unavailable ones, for the owner's management view.
func (q *Queries) ListMenuItems(ctx context.Context, restaurantID uuid.UUID) ([]MenuItem, error) {
	rows, err := q.db.Query(ctx, listMenuItems, restaurantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []MenuItem
	for rows.Next() {
		var m MenuItem
		if err := rows.Scan(&m.ID, &m.RestaurantID, &m.Name, &m.Price, &m.Category, &m.Available, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

const listAvailableMenuItems = `
SELECT id, restaurant_id, name, price, category, available, created_at, updated_at
FROM menu_items
WHERE restaurant_id = $1 AND available = TRUE
ORDER BY category NULLS LAST, name
`

// ListAvailableMenuItems returns the customer-facing menu.
func (q *Queries) ListAvailableMenuItems(ctx context.Context, restaurantID uuid.UUID) ([]MenuItem, error) {
	rows, err := q.db.Query(ctx, listAvailableMenuItems, restaurantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []MenuItem
	for rows.Next() {
		var m MenuItem
		if err := rows.Scan(&m.ID, &m.RestaurantID, &m.Name, &m.Price, &m.Category, &m.Available, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

const getMenuItemForOrder = `
SELECT id, name, price
FROM menu_items
WHERE id = $1 AND restaurant_id = $2
`

type GetMenuItemForOrderParams struct {
	ID           uuid.UUID
	RestaurantID uuid.UUID
}

type GetMenuItemForOrderRow struct {
	ID    uuid.UUID
	Name  string
	Price pgtype.Numeric
}

// GetMenuItemForOrder resolves the current name and price of a menu item for
// the order-time snapshot.
func (q *Queries) GetMenuItemForOrder(ctx context.Context, arg GetMenuItemForOrderParams) (GetMenuItemForOrderRow, error) {
	row := q.db.QueryRow(ctx, getMenuItemForOrder, arg.ID, arg.RestaurantID)
	var r GetMenuItemForOrderRow
	err := row.Scan(&r.ID, &r.Name, &r.Price)
	return r, err
}
