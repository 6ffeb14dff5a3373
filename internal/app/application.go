package app

import (
	"log/slog"

	"stopboard.transitdisplay.org/internal/appconf"
	"stopboard.transitdisplay.org/internal/metrics"
	"stopboard.transitdisplay.org/internal/realtime"
	"stopboard.transitdisplay.org/internal/schedule"
)

// Application holds the dependencies for our HTTP handlers, helpers,
// and middleware: the configuration, a logger, the metrics collector,
// and the two feed caches the display endpoint reads from.
type Application struct {
	Config   appconf.Config
	Logger   *slog.Logger
	Metrics  *metrics.Collector
	Schedule *schedule.Cache
	Realtime *realtime.Cache
}

// Shutdown stops the background refresh loops. In-flight refreshes run
// to completion; the last published snapshots stay readable.
func (app *Application) Shutdown() {
	if app.Schedule != nil {
		app.Schedule.Shutdown()
	}
	if app.Realtime != nil {
		app.Realtime.Shutdown()
	}
}
