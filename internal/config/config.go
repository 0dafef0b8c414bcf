package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
)

// Config holds application configuration values.
type Config struct {
	DBDriver         string
	DatabaseDSN      string
	HTTPPort         string
	LogLevel         string
	LogPretty        bool
	AllowedOrigins   []string
	StockSeedCSV     string
	ExpiryAlertDays  int
	NightlySweepAt   string
	NightlySweepZone string
}

// Load reads configuration from environment variables with reasonable defaults.
func Load() Config {
	driver := strings.ToLower(os.Getenv("DB_DRIVER"))
	if driver == "" {
		driver = "sqlite"
	}
	if driver != "sqlite" && driver != "postgres" {
		log.Printf("invalid DB_DRIVER value %q, defaulting to sqlite", driver)
		driver = "sqlite"
	}

	port := os.Getenv("HTTP_PORT")
	if port == "" {
		port = "8080"
	}

	dsn := os.Getenv("DATABASE_DSN")
	if dsn == "" {
		if driver == "sqlite" {
			dsn = "pos.db"
		} else {
			host := os.Getenv("HOST")
			if host == "" {
				host = "localhost"
			}
			user := os.Getenv("USER")
			if user == "" {
				user = "postgres"
			}
			dbPort := os.Getenv("PORT")
			if dbPort == "" {
				dbPort = "5432"
			}
			name := os.Getenv("NAME")
			if name == "" {
				name = "posledger"
			}
			password := os.Getenv("PASSWORD")

			dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, password, host, dbPort, name)
		}
	}

	// Validate that port is numeric.
	if _, err := strconv.Atoi(port); err != nil {
		log.Printf("invalid HTTP_PORT value %q, defaulting to 8080", port)
		port = "8080"
	}

	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		level = "info"
	}
	pretty, _ := strconv.ParseBool(os.Getenv("LOG_PRETTY"))

	origins := []string{"*"}
	if raw := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS")); raw != "" {
		origins = origins[:0]
		for _, o := range strings.Split(raw, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
	}

	alertDays := 30
	if raw := os.Getenv("EXPIRY_ALERT_DAYS"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			alertDays = n
		} else {
			log.Printf("invalid EXPIRY_ALERT_DAYS value %q, defaulting to 30", raw)
		}
	}

	// An explicitly empty NIGHTLY_SWEEP_AT disables the scheduled sweep.
	sweepAt, ok := os.LookupEnv("NIGHTLY_SWEEP_AT")
	if !ok {
		sweepAt = "00:05"
	}
	zone := os.Getenv("TZ_NAME")
	if zone == "" {
		zone = "Local"
	}

	return Config{
		DBDriver:         driver,
		DatabaseDSN:      dsn,
		HTTPPort:         port,
		LogLevel:         level,
		LogPretty:        pretty,
		AllowedOrigins:   origins,
		StockSeedCSV:     os.Getenv("STOCK_SEED_CSV"),
		ExpiryAlertDays:  alertDays,
		NightlySweepAt:   strings.TrimSpace(sweepAt),
		NightlySweepZone: zone,
	}
}
