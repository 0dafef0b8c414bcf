package seed

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"posledger/m/internal/inventory"
)

// StockAdder is the inventory operation the loader feeds.
type StockAdder interface {
	AddStock(ctx context.Context, req inventory.AddStockRequest) (int64, error)
}

// LoadStock ingests a name,price,expiry_date,quantity CSV through AddStock.
// Bad rows are logged and skipped; it returns how many rows were taken in.
func LoadStock(ctx context.Context, adder StockAdder, csvPath string, log zerolog.Logger) (int, error) {
	file, err := os.Open(csvPath)
	if err != nil {
		return 0, fmt.Errorf("open stock seed %s: %w", csvPath, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	// Skip header
	if _, err := reader.Read(); err != nil {
		return 0, fmt.Errorf("read stock seed header: %w", err)
	}

	rows := 0
	line := 1
	for {
		record, err := reader.Read()
		line++
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			log.Warn().Err(err).Int("line", line).Msg("unable to read stock row")
			continue
		}
		req, err := parseRow(record)
		if err != nil {
			log.Warn().Err(err).Int("line", line).Msg("skipping stock row")
			continue
		}
		if _, err := adder.AddStock(ctx, req); err != nil {
			log.Warn().Err(err).Int("line", line).Str("name", req.Name).Msg("unable to add stock row")
			continue
		}
		rows++
	}

	log.Info().Int("rows", rows).Str("path", csvPath).Msg("seeded stock")
	return rows, nil
}

func parseRow(record []string) (inventory.AddStockRequest, error) {
	if len(record) < 4 {
		return inventory.AddStockRequest{}, fmt.Errorf("expected 4 columns, got %d", len(record))
	}
	price, err := decimal.NewFromString(strings.TrimSpace(record[1]))
	if err != nil {
		return inventory.AddStockRequest{}, fmt.Errorf("price %q: %w", record[1], err)
	}
	qty, err := strconv.ParseInt(strings.TrimSpace(record[3]), 10, 64)
	if err != nil {
		return inventory.AddStockRequest{}, fmt.Errorf("quantity %q: %w", record[3], err)
	}
	return inventory.AddStockRequest{
		Name:       strings.TrimSpace(record[0]),
		Price:      price,
		ExpiryDate: strings.TrimSpace(record[2]),
		Quantity:   qty,
	}, nil
}
