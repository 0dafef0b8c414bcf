package migrations

import (
	"fmt"
	"strings"

	"posledger/m/internal/database"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS products (
            id {{id}},
            name TEXT NOT NULL,
            price {{money}} NOT NULL CHECK (price >= 0),
            expiry_date TEXT NOT NULL,
            created_at TEXT NOT NULL,
            UNIQUE(name, price, expiry_date)
        );`,
	`CREATE TABLE IF NOT EXISTS stock (
            id {{id}},
            product_id INTEGER NOT NULL UNIQUE REFERENCES products(id),
            quantity INTEGER NOT NULL CHECK (quantity >= 0),
            updated_at TEXT NOT NULL
        );`,
	`CREATE TABLE IF NOT EXISTS expired_stock (
            id {{id}},
            product_id INTEGER NOT NULL REFERENCES products(id),
            quantity INTEGER NOT NULL CHECK (quantity > 0),
            expired_date TEXT NOT NULL,
            UNIQUE(product_id, expired_date)
        );`,
	`CREATE TABLE IF NOT EXISTS sales (
            id {{id}},
            sale_date TEXT NOT NULL,
            customer_name TEXT,
            payment_type TEXT NOT NULL CHECK (payment_type IN ('CASH', 'ONLINE', 'BORROW')),
            total_amount {{money}} NOT NULL CHECK (total_amount >= 0),
            discount_amount {{money}} NOT NULL DEFAULT 0 CHECK (discount_amount >= 0),
            paid_amount {{money}} NOT NULL DEFAULT 0 CHECK (paid_amount >= 0),
            borrow_amount {{money}} NOT NULL DEFAULT 0 CHECK (borrow_amount >= 0),
            created_at TEXT NOT NULL,
            updated_at TEXT NOT NULL,
            CHECK (payment_type = 'BORROW' OR borrow_amount = 0)
        );`,
	`CREATE INDEX IF NOT EXISTS idx_sales_customer ON sales(customer_name);`,
	`CREATE INDEX IF NOT EXISTS idx_sales_date ON sales(sale_date);`,
	`CREATE TABLE IF NOT EXISTS sale_items (
            id {{id}},
            sale_id INTEGER NOT NULL REFERENCES sales(id) ON DELETE CASCADE,
            product_id INTEGER NOT NULL REFERENCES products(id),
            price {{money}} NOT NULL CHECK (price >= 0),
            quantity INTEGER NOT NULL CHECK (quantity > 0),
            line_total {{money}} NOT NULL,
            expiry_date TEXT NOT NULL
        );`,
	`CREATE INDEX IF NOT EXISTS idx_sale_items_sale ON sale_items(sale_id);`,
	`CREATE TABLE IF NOT EXISTS borrowers (
            id {{id}},
            name TEXT NOT NULL UNIQUE,
            outstanding_amount {{money}} NOT NULL DEFAULT 0 CHECK (outstanding_amount >= 0),
            created_at TEXT NOT NULL,
            updated_at TEXT NOT NULL
        );`,
	`CREATE TABLE IF NOT EXISTS borrower_payments (
            id {{id}},
            borrower_id INTEGER NOT NULL REFERENCES borrowers(id),
            amount_paid {{money}} NOT NULL CHECK (amount_paid > 0),
            payment_date TEXT NOT NULL,
            created_at TEXT NOT NULL
        );`,
	`CREATE INDEX IF NOT EXISTS idx_borrower_payments_date ON borrower_payments(payment_date);`,
	`CREATE TABLE IF NOT EXISTS sweep_marker (
            id INTEGER PRIMARY KEY CHECK (id = 1),
            last_swept TEXT NOT NULL
        );`,
}

// Run creates the database schema required for the POS backend. Every
// statement is idempotent, so Run is safe on every start.
func Run(db *database.DB) error {
	types := strings.NewReplacer(
		"{{id}}", "INTEGER PRIMARY KEY AUTOINCREMENT",
		"{{money}}", "NUMERIC",
	)
	if db.Dialect == database.Postgres {
		types = strings.NewReplacer(
			"{{id}}", "SERIAL PRIMARY KEY",
			"{{money}}", "NUMERIC(14,2)",
		)
	}

	for _, stmt := range schema {
		if _, err := db.Exec(types.Replace(stmt)); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}
