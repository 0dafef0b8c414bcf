// Package databasetest provides an in-memory store with the schema applied
// and a settable clock for package tests.
package databasetest

import (
	"sync"
	"testing"
	"time"

	"posledger/m/internal/database"
	"posledger/m/internal/migrations"
)

// NewDB opens a fresh in-memory SQLite store and migrates it.
func NewDB(t testing.TB) *database.DB {
	t.Helper()
	db, err := database.Connect("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := migrations.Run(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// Clock is a manually driven time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock starts a clock at midday of the given ISO date.
func NewClock(date string) *Clock {
	d, err := time.Parse("2006-01-02", date)
	if err != nil {
		panic(err)
	}
	return &Clock{now: d.Add(12 * time.Hour)}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// AddDays moves the clock forward by n calendar days.
func (c *Clock) AddDays(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.AddDate(0, 0, n)
}
