package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/scanorder/api/internal/database"
	"github.com/scanorder/api/internal/enum"
)

// maxSerializationRetries caps re-attempts of a transaction that failed on a
// transient serialization conflict before the error is surfaced.
const maxSerializationRetries = 3

// Errors returned by the order service.
var (
	ErrNoItemsSelected  = errors.New("no items selected")
	ErrInvalidOrderType = errors.New("invalid order type")
	ErrMenuItemNotFound = errors.New("menu item not found in restaurant")
	ErrOrderNotFound    = errors.New("order not found")
)

// TxBeginner starts a new database transaction.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// OrderStore defines the DB methods needed by order operations.
// Satisfied by *database.Queries (and its WithTx variant).
type OrderStore interface {
	NextPickupNumber(ctx context.Context, restaurantID uuid.UUID) (int32, error)
	GetMenuItemForOrder(ctx context.Context, arg database.GetMenuItemForOrderParams) (database.GetMenuItemForOrderRow, error)
	CreateOrderLine(ctx context.Context, arg database.CreateOrderLineParams) (database.OrderLine, error)
	ArchiveOrderLines(ctx context.Context, arg database.ArchiveOrderLinesParams) (int64, error)
	DeleteOrderLines(ctx context.Context, arg database.DeleteOrderLinesParams) (int64, error)
}

// NewOrderStore creates an OrderStore from a DBTX (pool or tx).
// This allows the service to create store instances from transactions.
type NewOrderStore func(db database.DBTX) OrderStore

// SubmitOrderRequest is the validated input for submitting an order.
// Items with quantity <= 0 are skipped, not rejected.
type SubmitOrderRequest struct {
	RestaurantID uuid.UUID
	OrderType    string
	Items        []SubmitOrderItem
}

// SubmitOrderItem is a single requested line.
type SubmitOrderItem struct {
	MenuItemID string
	Quantity   int32
	Remark     string
}

// SubmitOrderResult carries the assigned pickup number and the persisted
// lines of one submission.
type SubmitOrderResult struct {
	PickupNumber int32
	Lines        []database.OrderLine
}

// OrderService owns the order lifecycle: submission with pickup numbering,
// finishing, and deletion.
type OrderService struct {
	pool     TxBeginner
	newStore NewOrderStore
}

// NewOrderService creates a new OrderService.
func NewOrderService(pool TxBeginner, newStore NewOrderStore) *OrderService {
	return &OrderService{pool: pool, newStore: newStore}
}

// Submit validates the submission and creates all its order lines under a
// freshly assigned pickup number, atomically. The non-empty check runs
// before any number is allocated, so a rejected submission never burns a
// pickup number. Retries up to maxSerializationRetries times on transient
// serialization conflicts.
func (s *OrderService) Submit(ctx context.Context, req SubmitOrderRequest) (*SubmitOrderResult, error) {
	if err := validateOrderType(req.OrderType); err != nil {
		return nil, err
	}

	// Lines with quantity <= 0 are dropped silently; an order with nothing
	// left is rejected before the counter is touched.
	var selected []SubmitOrderItem
	for _, item := range req.Items {
		if item.Quantity > 0 {
			selected = append(selected, item)
		}
	}
	if len(selected) == 0 {
		return nil, ErrNoItemsSelected
	}

	var lastErr error
	for attempt := 0; attempt < maxSerializationRetries; attempt++ {
		result, err := s.submitTx(ctx, req.RestaurantID, req.OrderType, selected)
		if err == nil {
			return result, nil
		}
		if isSerializationFailure(err) {
			lastErr = err
			continue
		}
		return nil, err
	}
	return nil, lastErr
}

// submitTx runs one submission attempt in a single transaction: allocate the
// pickup number, snapshot each item's current name and price, insert the
// lines.
func (s *OrderService) submitTx(ctx context.Context, restaurantID uuid.UUID, orderType string, items []SubmitOrderItem) (*SubmitOrderResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	number, err := store.NextPickupNumber(ctx, restaurantID)
	if err != nil {
		return nil, fmt.Errorf("next pickup number: %w", err)
	}

	lines := make([]database.OrderLine, 0, len(items))
	for i, item := range items {
		menuItemID, err := uuid.Parse(item.MenuItemID)
		if err != nil {
			return nil, fmt.Errorf("item[%d]: %w", i, ErrMenuItemNotFound)
		}

		menuItem, err := store.GetMenuItemForOrder(ctx, database.GetMenuItemForOrderParams{
			ID:           menuItemID,
			RestaurantID: restaurantID,
		})
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, fmt.Errorf("item[%d]: %w", i, ErrMenuItemNotFound)
			}
			return nil, fmt.Errorf("item[%d]: get menu item: %w", i, err)
		}

		remark := pgtype.Text{}
		if item.Remark != "" {
			remark = pgtype.Text{String: item.Remark, Valid: true}
		}

		line, err := store.CreateOrderLine(ctx, database.CreateOrderLineParams{
			RestaurantID: restaurantID,
			Number:       number,
			MenuItemID:   menuItem.ID,
			Name:         menuItem.Name,
			Price:        menuItem.Price,
			Quantity:     item.Quantity,
			Remark:       remark,
			OrderType:    orderType,
		})
		if err != nil {
			return nil, fmt.Errorf("item[%d]: create order line: %w", i, err)
		}
		lines = append(lines, line)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &SubmitOrderResult{PickupNumber: number, Lines: lines}, nil
}

// Finish archives all active lines of a pickup number and deletes the
// originals, as one transaction. An order is never observable in both
// places, or half-moved. Returns ErrOrderNotFound when the number has no
// active lines (already finished or deleted).
func (s *OrderService) Finish(ctx context.Context, restaurantID uuid.UUID, number int32) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	archived, err := store.ArchiveOrderLines(ctx, database.ArchiveOrderLinesParams{
		RestaurantID: restaurantID,
		Number:       number,
		FinishedAt:   time.Now(),
	})
	if err != nil {
		return fmt.Errorf("archive order lines: %w", err)
	}
	if archived == 0 {
		return ErrOrderNotFound
	}

	if _, err := store.DeleteOrderLines(ctx, database.DeleteOrderLinesParams{
		RestaurantID: restaurantID,
		Number:       number,
	}); err != nil {
		return fmt.Errorf("delete order lines: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Delete removes all active lines of a pickup number without archiving.
// Idempotent: deleting a nonexistent order is a no-op, not an error.
func (s *OrderService) Delete(ctx context.Context, restaurantID uuid.UUID, number int32) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	if _, err := store.DeleteOrderLines(ctx, database.DeleteOrderLinesParams{
		RestaurantID: restaurantID,
		Number:       number,
	}); err != nil {
		return fmt.Errorf("delete order lines: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func validateOrderType(s string) error {
	switch s {
	case enum.OrderTypeDineIn, enum.OrderTypeTakeout:
		return nil
	}
	return ErrInvalidOrderType
}

// isSerializationFailure checks for SQLSTATE 40001 (serialization_failure)
// and 40P01 (deadlock_detected), both safe to re-attempt.
func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}
