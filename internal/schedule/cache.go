// Package schedule owns the slowly-changing static GTFS dataset. A
// background goroutine refreshes it on a daily interval and publishes
// immutable snapshots through a single atomic pointer swap, so request
// handling reads consistent data without ever taking a lock.
package schedule

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jamespfennell/gtfs"

	"stopboard.transitdisplay.org/internal/logging"
	"stopboard.transitdisplay.org/internal/metrics"
)

type Config struct {
	// StaticURL can be either a URL or a local file path.
	StaticURL       string
	Location        *time.Location
	RefreshInterval time.Duration
	FetchTimeout    time.Duration
	Logger          *slog.Logger
	Metrics         *metrics.Collector
}

// Cache manages the static GTFS data and provides read-only lookups
// against its latest snapshot.
type Cache struct {
	config      Config
	isLocalFile bool
	logger      *slog.Logger

	snapshot atomic.Pointer[Snapshot]

	shutdownChan chan struct{}
	wg           sync.WaitGroup
	shutdownOnce sync.Once
}

// NewCache loads the static GTFS dataset once and starts the daily
// refresh goroutine. A failed initial load is a hard error: there is
// nothing to serve until the schedule has loaded at least once.
func NewCache(config Config) (*Cache, error) {
	c := newCache(config)

	ctx, cancel := context.WithTimeout(context.Background(), c.config.FetchTimeout)
	defer cancel()
	if err := c.Refresh(ctx); err != nil {
		return nil, fmt.Errorf("initial GTFS load: %w", err)
	}

	if !c.isLocalFile {
		c.wg.Add(1)
		go c.refreshPeriodically()
	}

	return c, nil
}

// NewCacheFromStatic builds a cache around already-parsed GTFS data and
// starts no background refresh. Used by tests and tooling.
func NewCacheFromStatic(static *gtfs.Static, loc *time.Location) *Cache {
	c := newCache(Config{Location: loc})
	c.snapshot.Store(buildSnapshot(static, time.Now()))
	return c
}

func newCache(config Config) *Cache {
	if config.Location == nil {
		config.Location = time.UTC
	}
	if config.FetchTimeout <= 0 {
		config.FetchTimeout = 60 * time.Second
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		config:       config,
		isLocalFile:  !strings.HasPrefix(config.StaticURL, "http://") && !strings.HasPrefix(config.StaticURL, "https://"),
		logger:       logger.With(slog.String("component", "schedule_cache")),
		shutdownChan: make(chan struct{}),
	}
}

// Refresh fetches and parses the dataset and publishes a new snapshot.
// On failure the previous snapshot stays in place.
func (c *Cache) Refresh(ctx context.Context) error {
	start := time.Now()
	static, err := c.load(ctx)
	if c.config.Metrics != nil {
		c.config.Metrics.FetchDuration.WithLabelValues("static").Observe(time.Since(start).Seconds())
	}
	if err != nil {
		if c.config.Metrics != nil {
			c.config.Metrics.ScheduleRefreshes.WithLabelValues("failure").Inc()
		}
		return err
	}

	now := time.Now()
	c.snapshot.Store(buildSnapshot(static, now))
	if c.config.Metrics != nil {
		c.config.Metrics.ScheduleRefreshes.WithLabelValues("success").Inc()
		c.config.Metrics.ScheduleLastSuccess.Set(float64(now.Unix()))
	}
	logging.LogOperation(c.logger, "schedule_refreshed",
		slog.Int("stops", len(static.Stops)),
		slog.Int("trips", len(static.Trips)),
		slog.Int("services", len(static.Services)))
	return nil
}

func (c *Cache) load(ctx context.Context) (*gtfs.Static, error) {
	b, err := c.rawData(ctx)
	if err != nil {
		return nil, fmt.Errorf("error reading GTFS data: %w", err)
	}

	static, err := gtfs.ParseStatic(b, gtfs.ParseStaticOptions{})
	if err != nil {
		return nil, fmt.Errorf("error parsing GTFS data: %w", err)
	}
	return static, nil
}

func (c *Cache) rawData(ctx context.Context) ([]byte, error) {
	if c.isLocalFile {
		b, err := os.ReadFile(c.config.StaticURL)
		if err != nil {
			return nil, fmt.Errorf("error reading local GTFS file: %w", err)
		}
		return b, nil
	}

	req, err := http.NewRequestWithContext(ctx, "GET", c.config.StaticURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error downloading GTFS data: %w", err)
	}
	defer logging.SafeCloseWithLogging(resp.Body, c.logger, "gtfs_response_body")

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GTFS source returned status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func (c *Cache) refreshPeriodically() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), c.config.FetchTimeout)
			err := c.Refresh(ctx)
			cancel()
			if err != nil {
				// Non-fatal after the first successful load; the last
				// good snapshot keeps serving until the next tick.
				logging.LogError(c.logger, "error refreshing static GTFS", err)
			}
		case <-c.shutdownChan:
			logging.LogOperation(c.logger, "shutting_down_schedule_refresh")
			return
		}
	}
}

// Shutdown stops the background refresh goroutine and waits for it.
func (c *Cache) Shutdown() {
	c.shutdownOnce.Do(func() {
		close(c.shutdownChan)
		c.wg.Wait()
	})
}

func (c *Cache) current() *Snapshot {
	return c.snapshot.Load()
}

// Location returns the timezone service days are evaluated in.
func (c *Cache) Location() *time.Location {
	return c.config.Location
}

// StopTimes returns every scheduled stop-time at the stop, regardless
// of service day; callers filter. Unknown stops yield nil.
func (c *Cache) StopTimes(stopID string) []StopTime {
	return c.current().stopTimesByStop[stopID]
}

// StopKnown reports whether the stop appears in the dataset.
func (c *Cache) StopKnown(stopID string) bool {
	_, ok := c.current().stopNames[stopID]
	return ok
}

// StopName returns the display name for a stop.
func (c *Cache) StopName(stopID string) (string, bool) {
	name, ok := c.current().stopNames[stopID]
	return name, ok
}

// Routes returns every route in the dataset.
func (c *Cache) Routes() []RouteInfo {
	return c.current().routes
}

// RoutesAtStop returns the set of route IDs with scheduled service at
// the stop.
func (c *Cache) RoutesAtStop(stopID string) map[string]struct{} {
	return c.current().routesByStop[stopID]
}

// HasCalendar reports whether the dataset carried any calendar data.
// When it did not, service-day filtering is skipped entirely and all
// trips are treated as eligible.
func (c *Cache) HasCalendar() bool {
	return c.current().hasCalendar
}

// LoadedAt returns when the current snapshot was published.
func (c *Cache) LoadedAt() time.Time {
	return c.current().loadedAt
}

// ActiveServices returns the service IDs running on the given calendar
// date: the weekday rule within the service's date range, overridden by
// any date exception (exceptions always win).
func (c *Cache) ActiveServices(date time.Time) map[string]struct{} {
	return c.current().activeServices(date)
}
