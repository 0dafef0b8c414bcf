package seed_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"posledger/m/internal/database/databasetest"
	"posledger/m/internal/inventory"
	"posledger/m/internal/seed"
)

func TestLoadStock(t *testing.T) {
	db := databasetest.NewDB(t)
	clock := databasetest.NewClock("2024-05-10")
	ledger := inventory.NewLedger(db, clock.Now, zerolog.Nop())

	path := filepath.Join(t.TempDir(), "stock.csv")
	csv := "name,price,expiry_date,quantity\n" +
		"Widget,10.00,2099-01-01,50\n" +
		"Gadget,abc,2099-01-01,5\n" +
		"Milk,2.5,2024-01-01,3\n" +
		"Widget,10,2099-01-01,5\n" +
		"Short,1\n"
	if err := os.WriteFile(path, []byte(csv), 0o600); err != nil {
		t.Fatal(err)
	}

	rows, err := seed.LoadStock(context.Background(), ledger, path, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if rows != 2 {
		t.Fatalf("rows = %d, want 2", rows)
	}
	entries, err := ledger.ListSellable(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name != "Widget" || entries[0].Quantity != 55 {
		t.Fatalf("entries = %+v", entries)
	}
}

func TestLoadStockMissingFile(t *testing.T) {
	db := databasetest.NewDB(t)
	clock := databasetest.NewClock("2024-05-10")
	ledger := inventory.NewLedger(db, clock.Now, zerolog.Nop())
	if _, err := seed.LoadStock(context.Background(), ledger, filepath.Join(t.TempDir(), "none.csv"), zerolog.Nop()); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}
