package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"posledger/m/domain"
)

// Dialect names the SQL flavour behind a DB.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

// DB is the shared relational store. Queries are written with ? placeholders
// and rebound for the driver in use.
type DB struct {
	*sqlx.DB
	Dialect Dialect
}

// Connect opens the store for the configured driver.
func Connect(driver, dsn string) (*DB, error) {
	switch Dialect(driver) {
	case SQLite:
		db, err := sqlx.Connect("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("connect sqlite: %w", err)
		}
		// A single connection serialises writers, which is what makes the
		// conditional stock decrement safe without row locks.
		db.SetMaxOpenConns(1)
		for _, pragma := range []string{`PRAGMA foreign_keys = ON`, `PRAGMA busy_timeout = 5000`} {
			if _, err := db.Exec(pragma); err != nil {
				db.Close()
				return nil, fmt.Errorf("sqlite %s: %w", pragma, err)
			}
		}
		return &DB{DB: db, Dialect: SQLite}, nil
	case Postgres:
		db, err := sqlx.Connect("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		db.SetMaxOpenConns(10)
		return &DB{DB: db, Dialect: Postgres}, nil
	}
	return nil, fmt.Errorf("unsupported driver %q", driver)
}

// ForUpdate is the row-lock suffix for SELECTs inside a transaction. SQLite
// has no row locks; its single writer connection gives the same guarantee.
func (db *DB) ForUpdate() string {
	if db.Dialect == Postgres {
		return " FOR UPDATE"
	}
	return ""
}

// InTx runs fn in one transaction. Any error rolls the whole transaction back
// and is classified into a domain error kind before being returned.
func (db *DB) InTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return domain.Internal("begin transaction", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return Classify(err)
	}
	if err := tx.Commit(); err != nil {
		return Classify(fmt.Errorf("commit: %w", err))
	}
	return nil
}

// Classify keeps domain errors as they are, turns uniqueness violations into
// conflicts and everything else into internal errors.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}
	if IsUniqueViolation(err) {
		return domain.Conflict("a concurrent write already created this record", err)
	}
	return domain.Internal(err.Error(), err)
}

// IsUniqueViolation reports whether err is a UNIQUE or PRIMARY KEY violation
// from either supported driver.
func IsUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		code := se.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	var pe *pgconn.PgError
	if errors.As(err, &pe) {
		return pe.Code == "23505"
	}
	return false
}
