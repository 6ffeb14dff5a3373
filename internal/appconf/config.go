package appconf

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds all the configuration settings for the application: the
// network port, the operating environment, the three upstream feed
// locations, and the refresh cadence for each cache.
type Config struct {
	Port int    `validate:"required,min=1,max=65535"`
	Env  Environment

	// StaticGTFSURL may be an http(s) URL or a local zip path.
	StaticGTFSURL  string `validate:"required"`
	TripUpdatesURL string `validate:"omitempty,url"`
	AlertsURL      string `validate:"omitempty,url"`

	// Timezone is the agency timezone service days are evaluated in.
	Timezone string `validate:"required,timezone"`

	StaticRefresh   time.Duration `validate:"required,min=1m"`
	RealtimeRefresh time.Duration `validate:"required,min=1s"`
	FetchTimeout    time.Duration `validate:"required,min=1s"`

	// MetricsAddr serves prometheus metrics when non-empty, e.g. ":9090".
	MetricsAddr string

	// RateLimit is requests per second per client IP; 0 disables limiting.
	RateLimit int `validate:"min=0"`
}

// Load reads configuration from command-line flags, falling back to
// environment variables (a .env file is honored if present), and
// validates the result.
func Load(args []string) (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	var env string

	fs := flag.NewFlagSet("stopboard", flag.ContinueOnError)
	fs.IntVar(&cfg.Port, "port", envInt("PORT", 4000), "API server port")
	fs.StringVar(&env, "env", envString("ENV", "development"), "Environment (development|staging|production)")
	fs.StringVar(&cfg.StaticGTFSURL, "gtfs-url", envString("GTFS_URL", ""), "URL or local path for a static GTFS zip file")
	fs.StringVar(&cfg.TripUpdatesURL, "trip-updates-url", envString("TRIP_UPDATES_URL", ""), "URL for the GTFS-RT trip updates feed")
	fs.StringVar(&cfg.AlertsURL, "alerts-url", envString("ALERTS_URL", ""), "URL for the GTFS-RT service alerts feed")
	fs.StringVar(&cfg.Timezone, "timezone", envString("TIMEZONE", "America/Los_Angeles"), "Agency timezone for service day calculations")
	fs.DurationVar(&cfg.StaticRefresh, "static-refresh", envDuration("STATIC_REFRESH", 24*time.Hour), "Static GTFS refresh interval")
	fs.DurationVar(&cfg.RealtimeRefresh, "realtime-refresh", envDuration("REALTIME_REFRESH", 15*time.Second), "GTFS-RT refresh interval")
	fs.DurationVar(&cfg.FetchTimeout, "fetch-timeout", envDuration("FETCH_TIMEOUT", 20*time.Second), "Timeout for a single upstream fetch")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", envString("METRICS_ADDR", ""), "Listen address for prometheus metrics (empty disables)")
	fs.IntVar(&cfg.RateLimit, "rate-limit", envInt("RATE_LIMIT", 10), "Requests per second per client (0 disables)")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	cfg.Env = EnvFlagToEnvironment(env)

	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
