package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/scanorder/api/internal/database"
)

// mockHistoryStore implements HistoryStore with configurable behavior.
type mockHistoryStore struct {
	listFinishedFn   func(ctx context.Context, restaurantID uuid.UUID) ([]database.FinishedOrderLine, error)
	deleteFinishedFn func(ctx context.Context, restaurantID uuid.UUID) (int64, error)
	countActiveFn    func(ctx context.Context, restaurantID uuid.UUID) (int64, error)
	lockCounterFn    func(ctx context.Context, restaurantID uuid.UUID) (int32, error)
	resetCounterFn   func(ctx context.Context, restaurantID uuid.UUID) error
}

func (m *mockHistoryStore) ListFinishedOrderLines(ctx context.Context, restaurantID uuid.UUID) ([]database.FinishedOrderLine, error) {
	return m.listFinishedFn(ctx, restaurantID)
}
func (m *mockHistoryStore) DeleteFinishedOrderLines(ctx context.Context, restaurantID uuid.UUID) (int64, error) {
	return m.deleteFinishedFn(ctx, restaurantID)
}
func (m *mockHistoryStore) CountActiveOrderLines(ctx context.Context, restaurantID uuid.UUID) (int64, error) {
	return m.countActiveFn(ctx, restaurantID)
}
func (m *mockHistoryStore) LockPickupCounter(ctx context.Context, restaurantID uuid.UUID) (int32, error) {
	return m.lockCounterFn(ctx, restaurantID)
}
func (m *mockHistoryStore) ResetPickupCounter(ctx context.Context, restaurantID uuid.UUID) error {
	return m.resetCounterFn(ctx, restaurantID)
}

// defaultHistoryStore returns a mockHistoryStore for a restaurant with an
// empty active board and one finished line.
func defaultHistoryStore(restaurantID uuid.UUID) *mockHistoryStore {
	return &mockHistoryStore{
		listFinishedFn: func(ctx context.Context, rid uuid.UUID) ([]database.FinishedOrderLine, error) {
			return []database.FinishedOrderLine{sampleFinishedLine(rid)}, nil
		},
		deleteFinishedFn: func(ctx context.Context, rid uuid.UUID) (int64, error) {
			return 1, nil
		},
		countActiveFn: func(ctx context.Context, rid uuid.UUID) (int64, error) {
			return 0, nil
		},
		lockCounterFn: func(ctx context.Context, rid uuid.UUID) (int32, error) {
			return 12, nil
		},
		resetCounterFn: func(ctx context.Context, rid uuid.UUID) error {
			return nil
		},
	}
}

func sampleFinishedLine(restaurantID uuid.UUID) database.FinishedOrderLine {
	created := time.Date(2026, 3, 14, 12, 30, 5, 0, time.UTC)
	return database.FinishedOrderLine{
		ID:           uuid.New(),
		RestaurantID: restaurantID,
		Number:       3,
		MenuItemID:   uuid.New(),
		Name:         "Caesar Salad",
		Price:        makeNumeric("7.50"),
		Quantity:     2,
		Remark:       pgtype.Text{String: "no croutons", Valid: true},
		OrderType:    "DINE_IN",
		CreatedAt:    created,
		FinishedAt:   created.Add(20 * time.Minute),
	}
}

func newTestHistoryService(store *mockHistoryStore) (*HistoryService, *mockTx) {
	tx := &mockTx{}
	pool := &mockTxBeginner{tx: tx}
	newStore := func(db database.DBTX) HistoryStore { return store }
	return NewHistoryService(pool, newStore), tx
}

// =====================
// Clear tests
// =====================

func TestClear_Succeeds(t *testing.T) {
	restaurantID := uuid.New()
	store := defaultHistoryStore(restaurantID)

	var calls []string
	store.deleteFinishedFn = func(ctx context.Context, rid uuid.UUID) (int64, error) {
		calls = append(calls, "delete")
		return 1, nil
	}
	store.resetCounterFn = func(ctx context.Context, rid uuid.UUID) error {
		calls = append(calls, "reset")
		return nil
	}

	svc, tx := newTestHistoryService(store)
	if err := svc.Clear(context.Background(), restaurantID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(calls) != 2 || calls[0] != "delete" || calls[1] != "reset" {
		t.Errorf("expected delete then reset, got %v", calls)
	}
	if tx.commits != 1 {
		t.Errorf("expected 1 commit, got %d", tx.commits)
	}
}

func TestClear_RefusedWithActiveOrders(t *testing.T) {
	restaurantID := uuid.New()
	store := defaultHistoryStore(restaurantID)
	store.countActiveFn = func(ctx context.Context, rid uuid.UUID) (int64, error) {
		return 3, nil
	}
	store.deleteFinishedFn = func(ctx context.Context, rid uuid.UUID) (int64, error) {
		t.Error("must not delete while active orders exist")
		return 0, nil
	}
	store.resetCounterFn = func(ctx context.Context, rid uuid.UUID) error {
		t.Error("must not reset counter while active orders exist")
		return nil
	}

	svc, tx := newTestHistoryService(store)
	err := svc.Clear(context.Background(), restaurantID)
	if !errors.Is(err, ErrUnfinishedOrders) {
		t.Fatalf("expected ErrUnfinishedOrders, got: %v", err)
	}
	if tx.commits != 0 {
		t.Errorf("transaction must not commit, got %d commits", tx.commits)
	}
}

func TestClear_NoCounterRowIsFine(t *testing.T) {
	restaurantID := uuid.New()
	store := defaultHistoryStore(restaurantID)
	store.lockCounterFn = func(ctx context.Context, rid uuid.UUID) (int32, error) {
		return 0, pgx.ErrNoRows // never submitted an order
	}

	svc, _ := newTestHistoryService(store)
	if err := svc.Clear(context.Background(), restaurantID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestClear_RetriesOnSerializationFailure(t *testing.T) {
	restaurantID := uuid.New()
	store := defaultHistoryStore(restaurantID)

	attempts := 0
	store.lockCounterFn = func(ctx context.Context, rid uuid.UUID) (int32, error) {
		attempts++
		if attempts == 1 {
			return 0, &pgconn.PgError{Code: "40001"}
		}
		return 12, nil
	}

	svc, _ := newTestHistoryService(store)
	if err := svc.Clear(context.Background(), restaurantID); err != nil {
		t.Fatalf("unexpected error after retry: %v", err)
	}
	if attempts != 2 {
		t.Errorf("expected 2 attempts (1 fail + 1 success), got %d", attempts)
	}
}

// =====================
// ExportAndClear tests
// =====================

func TestExportAndClear_EmptyHistoryNoMutation(t *testing.T) {
	restaurantID := uuid.New()
	store := defaultHistoryStore(restaurantID)
	store.listFinishedFn = func(ctx context.Context, rid uuid.UUID) ([]database.FinishedOrderLine, error) {
		return nil, nil
	}
	store.deleteFinishedFn = func(ctx context.Context, rid uuid.UUID) (int64, error) {
		t.Error("must not delete when there is nothing to export")
		return 0, nil
	}
	store.resetCounterFn = func(ctx context.Context, rid uuid.UUID) error {
		t.Error("must not reset counter when there is nothing to export")
		return nil
	}

	svc, tx := newTestHistoryService(store)
	_, err := svc.ExportAndClear(context.Background(), restaurantID)
	if !errors.Is(err, ErrNoHistory) {
		t.Fatalf("expected ErrNoHistory, got: %v", err)
	}
	if tx.commits != 0 {
		t.Errorf("transaction must not commit, got %d commits", tx.commits)
	}
}

func TestExportAndClear_RefusedWithActiveOrders(t *testing.T) {
	restaurantID := uuid.New()
	store := defaultHistoryStore(restaurantID)
	store.countActiveFn = func(ctx context.Context, rid uuid.UUID) (int64, error) {
		return 1, nil
	}

	svc, _ := newTestHistoryService(store)
	_, err := svc.ExportAndClear(context.Background(), restaurantID)
	if !errors.Is(err, ErrUnfinishedOrders) {
		t.Fatalf("expected ErrUnfinishedOrders, got: %v", err)
	}
}

func TestExportAndClear_CSVContent(t *testing.T) {
	restaurantID := uuid.New()
	store := defaultHistoryStore(restaurantID)

	svc, _ := newTestHistoryService(store)
	data, err := svc.ExportAndClear(context.Background(), restaurantID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	content := string(data)
	if !strings.HasPrefix(content, "\uFEFF") {
		t.Error("export must start with a UTF-8 BOM")
	}

	lines := strings.Split(strings.TrimSuffix(strings.TrimPrefix(content, "\uFEFF"), "\r\n"), "\r\n")
	if len(lines) != 2 {
		t.Fatalf("expected header + 1 row, got %d lines: %q", len(lines), content)
	}
	if lines[0] != "Order Number,Item,Quantity,Remark,Unit Price,Dine-in/Takeout,Created Time,Finished Time" {
		t.Errorf("unexpected header: %q", lines[0])
	}
	if lines[1] != "3,Caesar Salad,2,no croutons,7.50,DINE_IN,2026-03-14 12:30:05,2026-03-14 12:50:05" {
		t.Errorf("unexpected row: %q", lines[1])
	}
}

func TestExportAndClear_DeletesWhatItExported(t *testing.T) {
	restaurantID := uuid.New()
	store := defaultHistoryStore(restaurantID)

	var calls []string
	store.listFinishedFn = func(ctx context.Context, rid uuid.UUID) ([]database.FinishedOrderLine, error) {
		calls = append(calls, "list")
		return []database.FinishedOrderLine{sampleFinishedLine(rid)}, nil
	}
	store.deleteFinishedFn = func(ctx context.Context, rid uuid.UUID) (int64, error) {
		calls = append(calls, "delete")
		return 1, nil
	}
	store.resetCounterFn = func(ctx context.Context, rid uuid.UUID) error {
		calls = append(calls, "reset")
		return nil
	}

	svc, tx := newTestHistoryService(store)
	data, err := svc.ExportAndClear(context.Background(), restaurantID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected CSV bytes")
	}
	// Export reads the same snapshot the delete then wipes.
	if len(calls) != 3 || calls[0] != "list" || calls[1] != "delete" || calls[2] != "reset" {
		t.Errorf("expected list, delete, reset in order, got %v", calls)
	}
	if tx.commits != 1 {
		t.Errorf("expected 1 commit, got %d", tx.commits)
	}
}

// =====================
// renderCSV tests
// =====================

func TestRenderCSV_EscapesCommasAndQuotes(t *testing.T) {
	line := sampleFinishedLine(uuid.New())
	line.Name = `Burger, "Deluxe"`
	line.Remark = pgtype.Text{}

	data := renderCSV([]database.FinishedOrderLine{line})
	content := strings.TrimPrefix(string(data), "\uFEFF")

	if !strings.Contains(content, `"Burger, ""Deluxe"""`) {
		t.Errorf("expected quoted field in output, got: %q", content)
	}
}

func TestRenderCSV_EmptyRemark(t *testing.T) {
	line := sampleFinishedLine(uuid.New())
	line.Remark = pgtype.Text{}

	data := renderCSV([]database.FinishedOrderLine{line})
	rows := strings.Split(strings.TrimSuffix(strings.TrimPrefix(string(data), "\uFEFF"), "\r\n"), "\r\n")
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if !strings.Contains(rows[1], "2,,7.50") {
		t.Errorf("expected empty remark column, got: %q", rows[1])
	}
}
