package inventory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"posledger/m/domain"
	"posledger/m/internal/database"
)

// Sweeper moves the stock of expired products into expired_stock.
//
// The last swept date lives in the sweep_marker table so several processes
// share it; lastRun only saves the marker lookup within one process.
type Sweeper struct {
	db  *database.DB
	now func() time.Time
	log zerolog.Logger

	mu      sync.Mutex
	lastRun string
}

func NewSweeper(db *database.DB, now func() time.Time, log zerolog.Logger) *Sweeper {
	return &Sweeper{db: db, now: now, log: log.With().Str("component", "sweeper").Logger()}
}

type sweptRow struct {
	ProductID int64 `db:"product_id"`
	Quantity  int64 `db:"quantity"`
}

// Sweep expires every stock row whose product expired before asOf and returns
// how many products were moved. Deleting the stock row is what claims its
// quantity, so a repeated or concurrent sweep for the same date finds nothing
// left to move.
func (s *Sweeper) Sweep(ctx context.Context, asOf string) (int, error) {
	if _, err := domain.ParseDate(asOf); err != nil {
		return 0, err
	}
	moved := 0
	err := s.db.InTx(ctx, func(tx *sqlx.Tx) error {
		var rows []sweptRow
		err := tx.SelectContext(ctx, &rows, tx.Rebind(`DELETE FROM stock
			WHERE product_id IN (SELECT id FROM products WHERE expiry_date < ?)
			RETURNING product_id, quantity`), asOf)
		if err != nil {
			return fmt.Errorf("claim expired stock: %w", err)
		}
		for _, row := range rows {
			if row.Quantity <= 0 {
				continue
			}
			if err := addExpired(ctx, tx, row.ProductID, row.Quantity, asOf); err != nil {
				return err
			}
			moved++
		}
		_, err = tx.ExecContext(ctx, tx.Rebind(`INSERT INTO sweep_marker (id, last_swept) VALUES (1, ?)
			ON CONFLICT (id) DO UPDATE SET last_swept = excluded.last_swept
			WHERE sweep_marker.last_swept < excluded.last_swept`), asOf)
		if err != nil {
			return fmt.Errorf("advance sweep marker: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if moved > 0 {
		s.log.Info().Str("as_of", asOf).Int("products", moved).Msg("expired stock swept")
	}
	return moved, nil
}

// MaybeSweep runs Sweep for today unless it already ran today, here or in
// another process sharing the store.
func (s *Sweeper) MaybeSweep(ctx context.Context) error {
	today := domain.FormatDate(s.now())

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastRun == today {
		return nil
	}

	last, err := s.LastSwept(ctx)
	if err != nil {
		return err
	}
	if last < today {
		if _, err := s.Sweep(ctx, today); err != nil {
			return err
		}
	}
	s.lastRun = today
	return nil
}

// LastSwept returns the stored marker date, or "" when no sweep has run.
func (s *Sweeper) LastSwept(ctx context.Context) (string, error) {
	var last string
	err := s.db.GetContext(ctx, &last, `SELECT last_swept FROM sweep_marker WHERE id = 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", domain.Internal("read sweep marker", err)
	}
	return last, nil
}
