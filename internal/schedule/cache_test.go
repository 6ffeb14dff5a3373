package schedule

import (
	"archive/zip"
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildGTFSZip assembles a minimal static GTFS feed in memory.
func buildGTFSZip(t *testing.T) []byte {
	t.Helper()

	files := map[string]string{
		"agency.txt": "agency_id,agency_name,agency_url,agency_timezone\n" +
			"agency-1,Test Transit,https://example.org,America/Los_Angeles\n",
		"routes.txt": "route_id,agency_id,route_short_name,route_long_name,route_type\n" +
			"route-6,agency-1,6,Sixth Avenue,3\n",
		"stops.txt": "stop_id,stop_name\n" +
			"stop-1,39th St & Powell\n",
		"calendar.txt": "service_id,monday,tuesday,wednesday,thursday,friday,saturday,sunday,start_date,end_date\n" +
			"weekday,1,1,1,1,1,0,0,20260101,20261231\n",
		"trips.txt": "route_id,service_id,trip_id\n" +
			"route-6,weekday,trip-1\n",
		"stop_times.txt": "trip_id,arrival_time,departure_time,stop_id,stop_sequence\n" +
			"trip-1,08:00:00,08:00:00,stop-1,1\n",
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestNewCacheLoadsFromHTTP(t *testing.T) {
	feed := buildGTFSZip(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(feed)
	}))
	defer server.Close()

	cache, err := NewCache(Config{
		StaticURL:       server.URL,
		Location:        time.UTC,
		RefreshInterval: time.Hour,
		FetchTimeout:    5 * time.Second,
	})
	require.NoError(t, err)
	defer cache.Shutdown()

	assert.True(t, cache.StopKnown("stop-1"))
	rows := cache.StopTimes("stop-1")
	require.Len(t, rows, 1)
	assert.Equal(t, "trip-1", rows[0].TripID)
	assert.Equal(t, "6", rows[0].RouteLabel)
	assert.Equal(t, 8*time.Hour, rows[0].Departure)
	assert.False(t, cache.LoadedAt().IsZero())
}

func TestNewCacheFailsWhenSourceUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := NewCache(Config{
		StaticURL:       server.URL,
		Location:        time.UTC,
		RefreshInterval: time.Hour,
		FetchTimeout:    5 * time.Second,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "initial GTFS load")
}

func TestRefreshFailureKeepsPreviousSnapshot(t *testing.T) {
	feed := buildGTFSZip(t)
	var failing atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if failing.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write(feed)
	}))
	defer server.Close()

	cache, err := NewCache(Config{
		StaticURL:       server.URL,
		Location:        time.UTC,
		RefreshInterval: time.Hour,
		FetchTimeout:    5 * time.Second,
	})
	require.NoError(t, err)
	defer cache.Shutdown()

	loadedAt := cache.LoadedAt()

	failing.Store(true)
	err = cache.Refresh(context.Background())
	require.Error(t, err)

	// Readers still see the earlier snapshot.
	assert.True(t, cache.StopKnown("stop-1"))
	assert.Equal(t, loadedAt, cache.LoadedAt())
}

func TestNewCacheLocationDefaultsToUTC(t *testing.T) {
	cache := NewCacheFromStatic(testStatic(), nil)
	assert.Equal(t, time.UTC, cache.Location())
}
