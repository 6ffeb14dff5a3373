package arrivals

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"stopboard.transitdisplay.org/internal/schedule"
)

func TestFilterMatchesRoute(t *testing.T) {
	route := schedule.RouteInfo{ID: "route-38", ShortName: "38", LongName: "Geary"}

	tests := []struct {
		name   string
		filter string
		want   bool
	}{
		{"short name", "38", true},
		{"route id", "route-38", true},
		{"route id mixed case", "Route-38", false}, // filter arrives pre-normalized
		{"long name does not match", "geary", false},
		{"no match", "6", false},
		{"empty matches everything", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, filterMatchesRoute(tt.filter, route))
		})
	}
}

func TestRouteIDsForFilter(t *testing.T) {
	routes := []schedule.RouteInfo{
		{ID: "route-6", ShortName: "6"},
		{ID: "route-38", ShortName: "38"},
		{ID: "route-38r", ShortName: "38"},
	}

	ids := routeIDsForFilter(routes, "38")
	assert.Len(t, ids, 2)
	assert.Contains(t, ids, "route-38")
	assert.Contains(t, ids, "route-38r")

	assert.Empty(t, routeIDsForFilter(routes, "99"))
}

func TestNormalizeFilter(t *testing.T) {
	assert.Equal(t, "38", normalizeFilter("  38 "))
	assert.Equal(t, "route-6", normalizeFilter("Route-6"))
	assert.Equal(t, "", normalizeFilter("   "))
}
