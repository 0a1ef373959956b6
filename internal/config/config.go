// Package config loads application configuration from environment
// variables.  Required variables halt startup when missing; booking
// policy knobs fall back to the restaurant's long-standing defaults.
package config

import (
	"log"
	"os"
	"strconv"
)

// Config holds all runtime configuration values.  Each field corresponds
// to an environment variable.
type Config struct {
	Env            string // application environment (dev/test/prod)
	Port           string // HTTP port to listen on
	DBUser         string // database username
	DBPass         string // database password (optional)
	DBHost         string // database host address
	DBPort         string // database port number
	DBName         string // database name
	JWTSecret      string // secret used to sign JWTs
	AccessTTLMin   int    // access token time-to-live in minutes
	RefreshTTLDays int    // refresh token time-to-live in days
	BcryptCost     int    // bcrypt cost for password hashing

	// Booking policy.  These have defaults so a bare deployment books
	// sensibly out of the box.
	DefaultTablesPerSlot int // capacity seeded into untouched ledger days
	MaxDurationSlots     int // longest block one reservation may span
	SeriesMaxDays        int // longest consecutive-day series per call
	NoShowBanThreshold   int // no-shows that trigger an automatic bar
	NoShowBanWindowDays  int // lookback window for the ban threshold
}

// Load reads configuration from the environment.  Required variables are
// enforced by must(); missing values exit with a fatal log message.
func Load() Config {
	return Config{
		Env:            must("APP_ENV"),
		Port:           must("APP_PORT"),
		DBUser:         must("DB_USER"),
		DBPass:         os.Getenv("DB_PASS"),
		DBHost:         must("DB_HOST"),
		DBPort:         must("DB_PORT"),
		DBName:         must("DB_NAME"),
		JWTSecret:      must("JWT_SECRET"),
		AccessTTLMin:   mustInt("ACCESS_TOKEN_TTL_MIN"),
		RefreshTTLDays: mustInt("REFRESH_TOKEN_TTL_DAYS"),
		BcryptCost:     mustInt("BCRYPT_COST"),

		DefaultTablesPerSlot: envInt("DEFAULT_TABLES_PER_SLOT", 10),
		MaxDurationSlots:     envInt("MAX_DURATION_SLOTS", 4),
		SeriesMaxDays:        envInt("SERIES_MAX_DAYS", 14),
		NoShowBanThreshold:   envInt("NO_SHOW_BAN_THRESHOLD", 3),
		NoShowBanWindowDays:  envInt("NO_SHOW_BAN_WINDOW_DAYS", 90),
	}
}

// must retrieves a required environment variable or exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

// mustInt is like must() but converts the value to an integer.
func mustInt(key string) int {
	s := must(key)
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", key, s)
	}
	return n
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
