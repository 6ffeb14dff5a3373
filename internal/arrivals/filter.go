package arrivals

import (
	"strings"

	"stopboard.transitdisplay.org/internal/schedule"
)

// normalizeFilter canonicalizes a user-supplied route filter. An empty
// result means no filtering.
func normalizeFilter(filter string) string {
	return strings.ToLower(strings.TrimSpace(filter))
}

// filterMatchesRoute reports whether a normalized filter value selects
// a route. A filter matches on either the route short name or the
// route identifier; this is the single place that rule lives.
func filterMatchesRoute(filter string, route schedule.RouteInfo) bool {
	if filter == "" {
		return true
	}
	return strings.ToLower(strings.TrimSpace(route.ShortName)) == filter ||
		strings.ToLower(route.ID) == filter
}

// routeIDsForFilter resolves a normalized filter to the set of route
// IDs it selects. Unknown filters yield an empty set, not nil.
func routeIDsForFilter(routes []schedule.RouteInfo, filter string) map[string]struct{} {
	ids := make(map[string]struct{})
	for _, route := range routes {
		if filterMatchesRoute(filter, route) {
			ids[route.ID] = struct{}{}
		}
	}
	return ids
}
