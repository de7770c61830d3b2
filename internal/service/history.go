package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/scanorder/api/internal/database"
	"github.com/shopspring/decimal"
)

// Errors returned by the history service.
var (
	ErrUnfinishedOrders = errors.New("unfinished orders exist")
	ErrNoHistory        = errors.New("no finished orders to export")
)

// csvTimeLayout is the timestamp format used in exports.
const csvTimeLayout = "2006-01-02 15:04:05"

// csvHeader is the export header row. Column order is part of the format.
var csvHeader = []string{
	"Order Number", "Item", "Quantity", "Remark",
	"Unit Price", "Dine-in/Takeout", "Created Time", "Finished Time",
}

// HistoryStore defines the DB methods needed by the clearing operations.
// Satisfied by *database.Queries (and its WithTx variant).
type HistoryStore interface {
	ListFinishedOrderLines(ctx context.Context, restaurantID uuid.UUID) ([]database.FinishedOrderLine, error)
	DeleteFinishedOrderLines(ctx context.Context, restaurantID uuid.UUID) (int64, error)
	CountActiveOrderLines(ctx context.Context, restaurantID uuid.UUID) (int64, error)
	LockPickupCounter(ctx context.Context, restaurantID uuid.UUID) (int32, error)
	ResetPickupCounter(ctx context.Context, restaurantID uuid.UUID) error
}

// NewHistoryStore creates a HistoryStore from a DBTX (pool or tx).
type NewHistoryStore func(db database.DBTX) HistoryStore

// HistoryService owns the clearing (archive wipe + counter reset) operation
// and its export variant. Plain history reads go straight to the store.
type HistoryService struct {
	pool     TxBeginner
	newStore NewHistoryStore
}

// NewHistoryService creates a new HistoryService.
func NewHistoryService(pool TxBeginner, newStore NewHistoryStore) *HistoryService {
	return &HistoryService{pool: pool, newStore: newStore}
}

// Clear deletes the restaurant's archive and resets its pickup counter.
// Fails with ErrUnfinishedOrders while any active order line remains.
// Destructive and irreversible.
func (s *HistoryService) Clear(ctx context.Context, restaurantID uuid.UUID) error {
	var lastErr error
	for attempt := 0; attempt < maxSerializationRetries; attempt++ {
		err := s.clearTx(ctx, restaurantID, nil)
		if err == nil || !isSerializationFailure(err) {
			return err
		}
		lastErr = err
	}
	return lastErr
}

// ExportAndClear renders the archive as CSV, then performs the same clear,
// all in one transaction: the export reflects exactly the rows deleted.
// Zero finished rows yield ErrNoHistory with no mutation and no file.
func (s *HistoryService) ExportAndClear(ctx context.Context, restaurantID uuid.UUID) ([]byte, error) {
	var out []byte
	var lastErr error
	for attempt := 0; attempt < maxSerializationRetries; attempt++ {
		err := s.clearTx(ctx, restaurantID, &out)
		if err == nil || !isSerializationFailure(err) {
			return out, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// clearTx holds the precondition check and the destructive work in a single
// repeatable-read transaction. The counter row lock serializes it against
// concurrent submissions; the snapshot excludes lines finished after the
// transaction started, so they survive the wipe untouched. When export is
// non-nil the CSV is built from the same snapshot that is deleted.
func (s *HistoryService) clearTx(ctx context.Context, restaurantID uuid.UUID, export *[]byte) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	// No counter row means no order was ever submitted; nothing to
	// serialize against.
	if _, err := store.LockPickupCounter(ctx, restaurantID); err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("lock pickup counter: %w", err)
	}

	active, err := store.CountActiveOrderLines(ctx, restaurantID)
	if err != nil {
		return fmt.Errorf("count active order lines: %w", err)
	}
	if active > 0 {
		return ErrUnfinishedOrders
	}

	if export != nil {
		lines, err := store.ListFinishedOrderLines(ctx, restaurantID)
		if err != nil {
			return fmt.Errorf("list finished order lines: %w", err)
		}
		if len(lines) == 0 {
			return ErrNoHistory
		}
		*export = renderCSV(lines)
	}

	if _, err := store.DeleteFinishedOrderLines(ctx, restaurantID); err != nil {
		return fmt.Errorf("delete finished order lines: %w", err)
	}
	if err := store.ResetPickupCounter(ctx, restaurantID); err != nil {
		return fmt.Errorf("reset pickup counter: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// renderCSV produces the byte-exact export: UTF-8 with a leading BOM, a
// header row, one row per finished line.
func renderCSV(lines []database.FinishedOrderLine) []byte {
	var buf bytes.Buffer
	buf.WriteString("\uFEFF")

	w := csv.NewWriter(&buf)
	w.UseCRLF = true
	w.Write(csvHeader) //nolint:errcheck
	for _, l := range lines {
		remark := ""
		if l.Remark.Valid {
			remark = l.Remark.String
		}
		w.Write([]string{ //nolint:errcheck
			fmt.Sprintf("%d", l.Number),
			l.Name,
			fmt.Sprintf("%d", l.Quantity),
			remark,
			numericToDecimal(l.Price).StringFixed(2),
			l.OrderType,
			l.CreatedAt.Format(csvTimeLayout),
			l.FinishedAt.Format(csvTimeLayout),
		})
	}
	w.Flush()
	return buf.Bytes()
}

// --- Helpers ---

func numericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid {
		return decimal.Zero
	}
	val, err := n.Value()
	if err != nil || val == nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(val.(string))
	if err != nil {
		return decimal.Zero
	}
	return d
}
