package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"posledger/m/domain"
	"posledger/m/internal/api"
	"posledger/m/internal/borrowers"
	"posledger/m/internal/config"
	"posledger/m/internal/dashboard"
	"posledger/m/internal/database"
	"posledger/m/internal/inventory"
	"posledger/m/internal/logger"
	"posledger/m/internal/migrations"
	"posledger/m/internal/sales"
	"posledger/m/internal/seed"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logger.New(cfg.LogLevel, cfg.LogPretty)

	db, err := database.Connect(cfg.DBDriver, cfg.DatabaseDSN)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.DBDriver).Msg("database connect failed")
	}
	defer db.Close()

	if err := migrations.Run(db); err != nil {
		log.Fatal().Err(err).Msg("migrations failed")
	}

	inv := inventory.NewLedger(db, time.Now, log)
	sweeper := inventory.NewSweeper(db, time.Now, log)
	bor := borrowers.NewLedger(db, time.Now, log)
	svc := api.Services{
		Inventory: inv,
		Sweeper:   sweeper,
		Sales:     sales.NewLedger(db, inv, bor, time.Now, log),
		Borrowers: bor,
		Dashboard: dashboard.New(db),
	}

	if cfg.StockSeedCSV != "" {
		n, err := seed.LoadStock(context.Background(), inv, cfg.StockSeedCSV, log)
		if err != nil {
			log.Error().Err(err).Str("path", cfg.StockSeedCSV).Msg("stock seed failed")
		} else {
			log.Info().Int("rows", n).Str("path", cfg.StockSeedCSV).Msg("stock seed loaded")
		}
	}

	// Catch up on any days missed while the server was down.
	if err := sweeper.MaybeSweep(context.Background()); err != nil {
		log.Error().Err(err).Msg("startup expiry sweep failed")
	}

	scheduler := startNightlySweep(cfg, sweeper, log)
	if scheduler != nil {
		defer scheduler.Stop()
	}

	handler := api.New(svc, api.Options{
		AllowedOrigins:  cfg.AllowedOrigins,
		ExpiryAlertDays: cfg.ExpiryAlertDays,
		Now:             time.Now,
	}, log)

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info().Str("port", cfg.HTTPPort).Str("driver", cfg.DBDriver).Msg("POS ledger server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown")
	}
	log.Info().Msg("server stopped")
}

// startNightlySweep schedules a daily sweep so expired stock moves even on
// days without traffic. It returns nil when the schedule is disabled.
func startNightlySweep(cfg config.Config, sweeper *inventory.Sweeper, log zerolog.Logger) *gocron.Scheduler {
	if cfg.NightlySweepAt == "" {
		return nil
	}
	location, err := time.LoadLocation(cfg.NightlySweepZone)
	if err != nil {
		log.Error().Err(err).Str("zone", cfg.NightlySweepZone).Msg("unknown time zone, using local")
		location = time.Local
	}

	s := gocron.NewScheduler(location)
	_, err = s.Every(1).Day().At(cfg.NightlySweepAt).Do(func() {
		today := domain.FormatDate(time.Now())
		moved, err := sweeper.Sweep(context.Background(), today)
		if err != nil {
			log.Error().Err(err).Str("as_of", today).Msg("nightly expiry sweep failed")
			return
		}
		log.Info().Str("as_of", today).Int("products", moved).Msg("nightly expiry sweep done")
	})
	if err != nil {
		log.Error().Err(err).Str("at", cfg.NightlySweepAt).Msg("nightly sweep not scheduled")
		return nil
	}
	s.StartAsync()
	return s
}
