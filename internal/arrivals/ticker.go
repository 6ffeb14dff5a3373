package arrivals

import (
	"strings"

	"stopboard.transitdisplay.org/internal/realtime"
	"stopboard.transitdisplay.org/internal/schedule"
)

// TickerSeparator joins alert texts for a continuously scrolling
// single-line display.
const TickerSeparator = " | "

// Ticker builds the concatenated alert string for a stop.
type Ticker struct {
	schedule *schedule.Cache
	realtime *realtime.Cache
}

func NewTicker(sched *schedule.Cache, rt *realtime.Cache) *Ticker {
	return &Ticker{schedule: sched, realtime: rt}
}

// Ticker returns the alerts affecting the stop (or, with a route
// filter, the filtered routes), deduplicated by text and joined in
// feed order. No matching alerts yields an empty string; the display
// layer decides what to render instead.
func (t *Ticker) Ticker(stopID, routeFilter string) string {
	alerts := t.realtime.Alerts()
	if len(alerts) == 0 {
		return ""
	}

	filter := normalizeFilter(routeFilter)
	filtered := filter != ""
	var allowedRoutes map[string]struct{}
	if filtered {
		allowedRoutes = routeIDsForFilter(t.schedule.Routes(), filter)
	} else {
		allowedRoutes = t.schedule.RoutesAtStop(stopID)
	}

	var parts []string
	seen := make(map[string]struct{})
	for _, alert := range alerts {
		if !alertApplies(alert, stopID, allowedRoutes, filtered) {
			continue
		}
		if _, dup := seen[alert.Text]; dup {
			continue
		}
		seen[alert.Text] = struct{}{}
		parts = append(parts, alert.Text)
	}

	return strings.Join(parts, TickerSeparator)
}

// alertApplies reports whether an alert targets the stop directly or
// any of the allowed routes. Alerts naming no entities at all are
// agency-wide: they apply to the unfiltered display, but a route
// filter narrows the ticker to alerts naming the stop or a matched
// route.
func alertApplies(alert realtime.Alert, stopID string, allowedRoutes map[string]struct{}, routeFiltered bool) bool {
	if len(alert.StopIDs) == 0 && len(alert.RouteIDs) == 0 {
		return !routeFiltered
	}
	for _, sid := range alert.StopIDs {
		if sid == stopID {
			return true
		}
	}
	for _, rid := range alert.RouteIDs {
		if _, ok := allowedRoutes[rid]; ok {
			return true
		}
	}
	return false
}
