package restapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthHandler(t *testing.T) {
	api := createTestApi(t, testStatic(t), nil)

	server := httptest.NewServer(api.Routes())
	defer server.Close()

	resp, err := http.Get(server.URL + "/healthz")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var health healthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))

	assert.Equal(t, "ok", health.Status)
	assert.Positive(t, health.ScheduleLoadedEpoch)
	assert.GreaterOrEqual(t, health.ScheduleAgeSeconds, int64(0))

	// The realtime cache in this test has never fetched anything.
	assert.Zero(t, health.TripUpdatesEpoch)
	assert.Zero(t, health.AlertsEpoch)
}
