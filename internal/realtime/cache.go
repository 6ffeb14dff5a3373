// Package realtime owns the frequently-refreshed GTFS-RT feeds: trip
// updates and service alerts. The two sub-feeds are fetched and
// published independently, so one can go stale while the other keeps
// updating; readers always see the last good snapshot of each.
package realtime

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"stopboard.transitdisplay.org/internal/logging"
	"stopboard.transitdisplay.org/internal/metrics"

	gtfsrt "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
)

type Config struct {
	TripUpdatesURL  string
	AlertsURL       string
	RefreshInterval time.Duration
	FetchTimeout    time.Duration
	Logger          *slog.Logger
	Metrics         *metrics.Collector
}

// Prediction is the real-time override for one (trip, stop) pair:
// either an absolute predicted time, a delay offset against the
// scheduled time, or both.
type Prediction struct {
	Time     time.Time
	Delay    time.Duration
	HasTime  bool
	HasDelay bool
}

// Alert is one service alert with the stops and routes it names.
// Alerts naming neither apply everywhere.
type Alert struct {
	Text     string
	StopIDs  []string
	RouteIDs []string
}

type tripKey struct {
	tripID string
	stopID string
}

type tripUpdatesSnapshot struct {
	fetchedAt   time.Time
	predictions map[tripKey]Prediction
}

type alertsSnapshot struct {
	fetchedAt time.Time
	alerts    []Alert
}

// Cache holds the latest decoded state of both sub-feeds.
type Cache struct {
	config Config
	logger *slog.Logger
	client *http.Client

	tripUpdates atomic.Pointer[tripUpdatesSnapshot]
	alerts      atomic.Pointer[alertsSnapshot]

	// Per-sub-feed single-flight guards: a tick that overlaps an
	// in-flight fetch is skipped, never queued.
	tripUpdatesInFlight atomic.Bool
	alertsInFlight      atomic.Bool

	shutdownChan chan struct{}
	wg           sync.WaitGroup
	shutdownOnce sync.Once
}

// NewCache performs a startup fetch and starts the refresh goroutine.
// Unlike the schedule cache, a failed startup fetch is non-fatal: the
// resolver degrades to scheduled-only arrivals and an empty ticker.
func NewCache(config Config) *Cache {
	c := newCache(config)

	ctx, cancel := context.WithTimeout(context.Background(), c.config.FetchTimeout)
	c.Refresh(ctx)
	cancel()

	if c.enabled() {
		c.wg.Add(1)
		go c.refreshPeriodically()
	}

	return c
}

// NewCacheFromFeeds builds a cache from already-decoded feed messages
// and starts no background refresh. Used by tests.
func NewCacheFromFeeds(tripUpdates, alerts *gtfsrt.FeedMessage) *Cache {
	c := newCache(Config{})
	now := time.Now()
	if tripUpdates != nil {
		c.tripUpdates.Store(&tripUpdatesSnapshot{fetchedAt: now, predictions: decodeTripUpdates(tripUpdates)})
	}
	if alerts != nil {
		c.alerts.Store(&alertsSnapshot{fetchedAt: now, alerts: decodeAlerts(alerts)})
	}
	return c
}

func newCache(config Config) *Cache {
	if config.FetchTimeout <= 0 {
		config.FetchTimeout = 15 * time.Second
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := &Cache{
		config:       config,
		logger:       logger.With(slog.String("component", "realtime_cache")),
		client:       &http.Client{},
		shutdownChan: make(chan struct{}),
	}
	c.tripUpdates.Store(&tripUpdatesSnapshot{})
	c.alerts.Store(&alertsSnapshot{})
	return c
}

func (c *Cache) enabled() bool {
	return c.config.TripUpdatesURL != "" || c.config.AlertsURL != ""
}

// Refresh fetches and decodes both sub-feeds concurrently. A failed
// sub-fetch retains the previous sub-snapshot and its timestamp; the
// data simply goes stale until a later fetch succeeds.
func (c *Cache) Refresh(ctx context.Context) {
	var wg sync.WaitGroup

	if c.config.TripUpdatesURL != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.refreshTripUpdates(ctx)
		}()
	}
	if c.config.AlertsURL != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.refreshAlerts(ctx)
		}()
	}

	wg.Wait()
}

func (c *Cache) refreshTripUpdates(ctx context.Context) {
	if !c.tripUpdatesInFlight.CompareAndSwap(false, true) {
		c.count("trip_updates", "skipped")
		return
	}
	defer c.tripUpdatesInFlight.Store(false)

	feed, err := c.fetchFeed(ctx, c.config.TripUpdatesURL, "trip_updates")
	if err != nil {
		c.count("trip_updates", "failure")
		logging.LogError(c.logger, "error fetching GTFS-RT trip updates", err,
			slog.String("url", c.config.TripUpdatesURL))
		return
	}

	now := time.Now()
	c.tripUpdates.Store(&tripUpdatesSnapshot{fetchedAt: now, predictions: decodeTripUpdates(feed)})
	c.count("trip_updates", "success")
	if c.config.Metrics != nil {
		c.config.Metrics.TripUpdatesLastSuccess.Set(float64(now.Unix()))
	}
}

func (c *Cache) refreshAlerts(ctx context.Context) {
	if !c.alertsInFlight.CompareAndSwap(false, true) {
		c.count("alerts", "skipped")
		return
	}
	defer c.alertsInFlight.Store(false)

	feed, err := c.fetchFeed(ctx, c.config.AlertsURL, "alerts")
	if err != nil {
		c.count("alerts", "failure")
		logging.LogError(c.logger, "error fetching GTFS-RT alerts", err,
			slog.String("url", c.config.AlertsURL))
		return
	}

	now := time.Now()
	c.alerts.Store(&alertsSnapshot{fetchedAt: now, alerts: decodeAlerts(feed)})
	c.count("alerts", "success")
	if c.config.Metrics != nil {
		c.config.Metrics.AlertsLastSuccess.Set(float64(now.Unix()))
	}
}

func (c *Cache) count(feed, result string) {
	if c.config.Metrics != nil {
		c.config.Metrics.RealtimeFetches.WithLabelValues(feed, result).Inc()
	}
}

func (c *Cache) refreshPeriodically() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), c.config.FetchTimeout)
			c.Refresh(ctx)
			cancel()
		case <-c.shutdownChan:
			logging.LogOperation(c.logger, "shutting_down_realtime_refresh")
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

// Prediction returns the real-time override for a (trip, stop) pair.
func (c *Cache) Prediction(tripID, stopID string) (Prediction, bool) {
	p, ok := c.tripUpdates.Load().predictions[tripKey{tripID: tripID, stopID: stopID}]
	return p, ok
}

// Alerts returns the current alert list in feed order.
func (c *Cache) Alerts() []Alert {
	return c.alerts.Load().alerts
}

// TripUpdatesFetchedAt returns when the trip updates sub-feed last
// fetched successfully; zero when it never has.
func (c *Cache) TripUpdatesFetchedAt() time.Time {
	return c.tripUpdates.Load().fetchedAt
}

// AlertsFetchedAt returns when the alerts sub-feed last fetched
// successfully; zero when it never has.
func (c *Cache) AlertsFetchedAt() time.Time {
	return c.alerts.Load().fetchedAt
}
