package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector is the observability surface for the feed caches and the
// display endpoint. Refresh failures never reach request handling, so
// counters here are the only place they become visible.
type Collector struct {
	reg *prometheus.Registry

	ScheduleRefreshes *prometheus.CounterVec // result label: success|failure
	RealtimeFetches   *prometheus.CounterVec // feed label: trip_updates|alerts; result label: success|failure|skipped

	ScheduleLastSuccess    prometheus.Gauge // unix seconds
	TripUpdatesLastSuccess prometheus.Gauge
	AlertsLastSuccess      prometheus.Gauge

	FetchDuration   *prometheus.HistogramVec // feed label
	RequestDuration prometheus.Histogram

	DisplayRequests prometheus.Counter
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		ScheduleRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stopboard_schedule_refreshes_total",
			Help: "Static GTFS refresh attempts by result.",
		}, []string{"result"}),
		RealtimeFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stopboard_realtime_fetches_total",
			Help: "GTFS-RT sub-feed fetch attempts by feed and result.",
		}, []string{"feed", "result"}),
		ScheduleLastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stopboard_schedule_last_success_timestamp_seconds",
			Help: "Unix time of the last successful static GTFS refresh.",
		}),
		TripUpdatesLastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stopboard_trip_updates_last_success_timestamp_seconds",
			Help: "Unix time of the last successful trip updates fetch.",
		}),
		AlertsLastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stopboard_alerts_last_success_timestamp_seconds",
			Help: "Unix time of the last successful alerts fetch.",
		}),
		FetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stopboard_fetch_duration_seconds",
			Help:    "Duration of upstream feed fetches.",
			Buckets: prometheus.DefBuckets,
		}, []string{"feed"}),
		RequestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "stopboard_request_duration_seconds",
			Help:    "Duration of display requests.",
			Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25},
		}),
		DisplayRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stopboard_display_requests_total",
			Help: "Display endpoint requests served.",
		}),
	}

	reg.MustRegister(
		c.ScheduleRefreshes,
		c.RealtimeFetches,
		c.ScheduleLastSuccess,
		c.TripUpdatesLastSuccess,
		c.AlertsLastSuccess,
		c.FetchDuration,
		c.RequestDuration,
		c.DisplayRequests,
	)

	return c
}

// Handler returns the scrape handler for this collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}

// Serve starts a metrics server on addr and returns it; the caller owns
// shutdown.
func (c *Collector) Serve(addr string, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()
	return srv
}

// ShutdownServer stops a server started by Serve.
func ShutdownServer(ctx context.Context, srv *http.Server) error {
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
