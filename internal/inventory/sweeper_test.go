package inventory_test

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"posledger/m/domain"
	"posledger/m/internal/database"
	"posledger/m/internal/inventory"
)

type expiredRow struct {
	ProductID   int64  `db:"product_id"`
	Quantity    int64  `db:"quantity"`
	ExpiredDate string `db:"expired_date"`
}

func expiredRows(t *testing.T, db *database.DB) []expiredRow {
	t.Helper()
	var rows []expiredRow
	if err := db.Select(&rows, `SELECT product_id, quantity, expired_date FROM expired_stock ORDER BY product_id, expired_date`); err != nil {
		t.Fatal(err)
	}
	return rows
}

func TestSweepMovesExpiredStock(t *testing.T) {
	l, db, clock := newLedger(t)
	ctx := context.Background()
	sweeper := inventory.NewSweeper(db, clock.Now, zerolog.Nop())

	milk, err := l.AddStock(ctx, inventory.AddStockRequest{Name: "Milk", Price: decimal.NewFromInt(2), ExpiryDate: "2024-05-10", Quantity: 3})
	if err != nil {
		t.Fatal(err)
	}
	widget := addWidget(t, l, 50)

	clock.AddDays(1)
	today := domain.FormatDate(clock.Now())
	moved, err := sweeper.Sweep(ctx, today)
	if err != nil {
		t.Fatal(err)
	}
	if moved != 1 {
		t.Fatalf("moved = %d, want 1", moved)
	}

	rows := expiredRows(t, db)
	if len(rows) != 1 || rows[0] != (expiredRow{ProductID: milk, Quantity: 3, ExpiredDate: today}) {
		t.Fatalf("expired rows = %+v", rows)
	}
	if got := stockOf(t, db, milk); got != 0 {
		t.Fatalf("milk stock = %d", got)
	}
	if got := stockOf(t, db, widget); got != 50 {
		t.Fatalf("widget stock = %d", got)
	}

	sellable, err := l.ListSellable(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(sellable) != 1 || sellable[0].ProductID != widget {
		t.Fatalf("sellable = %+v", sellable)
	}
}

func TestSweepIsIdempotent(t *testing.T) {
	l, db, clock := newLedger(t)
	ctx := context.Background()
	sweeper := inventory.NewSweeper(db, clock.Now, zerolog.Nop())
	if _, err := l.AddStock(ctx, inventory.AddStockRequest{Name: "Milk", Price: decimal.NewFromInt(2), ExpiryDate: "2024-05-10", Quantity: 3}); err != nil {
		t.Fatal(err)
	}
	clock.AddDays(1)

	if _, err := sweeper.Sweep(ctx, "2024-05-11"); err != nil {
		t.Fatal(err)
	}
	once := expiredRows(t, db)

	moved, err := sweeper.Sweep(ctx, "2024-05-11")
	if err != nil {
		t.Fatal(err)
	}
	if moved != 0 {
		t.Fatalf("second sweep moved %d", moved)
	}
	twice := expiredRows(t, db)
	if len(once) != 1 || len(twice) != 1 || once[0] != twice[0] {
		t.Fatalf("sweep not idempotent: %+v vs %+v", once, twice)
	}
}

func TestConcurrentSweepsDoNotDoubleCount(t *testing.T) {
	l, db, clock := newLedger(t)
	ctx := context.Background()
	if _, err := l.AddStock(ctx, inventory.AddStockRequest{Name: "Milk", Price: decimal.NewFromInt(2), ExpiryDate: "2024-05-10", Quantity: 3}); err != nil {
		t.Fatal(err)
	}
	clock.AddDays(1)

	a := inventory.NewSweeper(db, clock.Now, zerolog.Nop())
	b := inventory.NewSweeper(db, clock.Now, zerolog.Nop())
	var wg sync.WaitGroup
	for _, s := range []*inventory.Sweeper{a, b, a, b} {
		wg.Add(1)
		go func(s *inventory.Sweeper) {
			defer wg.Done()
			if _, err := s.Sweep(ctx, "2024-05-11"); err != nil {
				t.Errorf("sweep: %v", err)
			}
		}(s)
	}
	wg.Wait()

	rows := expiredRows(t, db)
	if len(rows) != 1 || rows[0].Quantity != 3 {
		t.Fatalf("expired rows = %+v", rows)
	}
}

func TestMaybeSweepRunsOncePerDay(t *testing.T) {
	l, db, clock := newLedger(t)
	ctx := context.Background()
	sweeper := inventory.NewSweeper(db, clock.Now, zerolog.Nop())

	if err := sweeper.MaybeSweep(ctx); err != nil {
		t.Fatal(err)
	}
	last, err := sweeper.LastSwept(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if last != "2024-05-10" {
		t.Fatalf("marker = %q", last)
	}

	// Stock that expires today is still sellable until tomorrow's sweep.
	if _, err := l.AddStock(ctx, inventory.AddStockRequest{Name: "Milk", Price: decimal.NewFromInt(2), ExpiryDate: "2024-05-10", Quantity: 3}); err != nil {
		t.Fatal(err)
	}
	if err := sweeper.MaybeSweep(ctx); err != nil {
		t.Fatal(err)
	}
	if rows := expiredRows(t, db); len(rows) != 0 {
		t.Fatalf("swept twice on the same day: %+v", rows)
	}

	clock.AddDays(1)
	if err := sweeper.MaybeSweep(ctx); err != nil {
		t.Fatal(err)
	}
	if rows := expiredRows(t, db); len(rows) != 1 || rows[0].ExpiredDate != "2024-05-11" {
		t.Fatalf("expired rows = %+v", rows)
	}
}

func TestMaybeSweepHonoursStoredMarker(t *testing.T) {
	l, db, clock := newLedger(t)
	ctx := context.Background()
	if _, err := l.AddStock(ctx, inventory.AddStockRequest{Name: "Milk", Price: decimal.NewFromInt(2), ExpiryDate: "2024-05-10", Quantity: 3}); err != nil {
		t.Fatal(err)
	}
	clock.AddDays(1)

	// Another instance already swept today.
	if _, err := db.Exec(`INSERT INTO sweep_marker (id, last_swept) VALUES (1, '2024-05-11')`); err != nil {
		t.Fatal(err)
	}
	sweeper := inventory.NewSweeper(db, clock.Now, zerolog.Nop())
	if err := sweeper.MaybeSweep(ctx); err != nil {
		t.Fatal(err)
	}
	if rows := expiredRows(t, db); len(rows) != 0 {
		t.Fatalf("expected marker to short-circuit, got %+v", rows)
	}
}

func TestSweepRejectsBadDate(t *testing.T) {
	_, db, clock := newLedger(t)
	sweeper := inventory.NewSweeper(db, clock.Now, zerolog.Nop())
	if _, err := sweeper.Sweep(context.Background(), "tomorrow"); domain.KindOf(err) != domain.KindInvalidInput {
		t.Fatalf("expected invalid input, got %v", err)
	}
}
