package restapi

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gtfsrt "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/jamespfennell/gtfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"

	"stopboard.transitdisplay.org/internal/app"
	"stopboard.transitdisplay.org/internal/appconf"
	"stopboard.transitdisplay.org/internal/arrivals"
	"stopboard.transitdisplay.org/internal/metrics"
	"stopboard.transitdisplay.org/internal/models"
	"stopboard.transitdisplay.org/internal/realtime"
	"stopboard.transitdisplay.org/internal/schedule"
)

const testStopID = "39th-wb"

// testStatic builds a stop whose next three arrivals are a little over
// 3, 14 and 22 minutes from now. The slack past each minute mark keeps
// the rendered countdowns stable while the request is in flight.
func testStatic(t *testing.T) *gtfs.Static {
	t.Helper()

	now := time.Now().UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	sinceMidnight := now.Sub(midnight)

	route6 := &gtfs.Route{Id: "route-6", ShortName: "6"}
	route38 := &gtfs.Route{Id: "route-38", ShortName: "38"}
	route102 := &gtfs.Route{Id: "route-102", ShortName: "102"}
	stop := &gtfs.Stop{Id: testStopID, Name: "39th St WB"}
	svc := &gtfs.Service{
		Id: "daily", Monday: true, Tuesday: true, Wednesday: true, Thursday: true,
		Friday: true, Saturday: true, Sunday: true,
		StartDate: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2030, 12, 31, 0, 0, 0, 0, time.UTC),
	}

	trip := func(id string, route *gtfs.Route, offset time.Duration) gtfs.ScheduledTrip {
		return gtfs.ScheduledTrip{
			ID:      id,
			Route:   route,
			Service: svc,
			StopTimes: []gtfs.ScheduledStopTime{
				{Stop: stop, DepartureTime: sinceMidnight + offset},
			},
		}
	}

	return &gtfs.Static{
		Routes:   []gtfs.Route{*route6, *route38, *route102},
		Stops:    []gtfs.Stop{*stop},
		Services: []gtfs.Service{*svc},
		Trips: []gtfs.ScheduledTrip{
			trip("trip-6", route6, 3*time.Minute+30*time.Second),
			trip("trip-38", route38, 14*time.Minute+30*time.Second),
			trip("trip-102", route102, 22*time.Minute+30*time.Second),
		},
	}
}

func createTestApi(t *testing.T, static *gtfs.Static, alerts *gtfsrt.FeedMessage) *RestAPI {
	t.Helper()

	application := &app.Application{
		Config: appconf.Config{
			Env: appconf.EnvFlagToEnvironment("test"),
		},
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Metrics:  metrics.NewCollector(),
		Schedule: schedule.NewCacheFromStatic(static, time.UTC),
		Realtime: realtime.NewCacheFromFeeds(nil, alerts),
	}
	return NewRestAPI(application)
}

func retrieveDisplay(t *testing.T, api *RestAPI, endpoint string) (*http.Response, models.DisplayResponse) {
	t.Helper()

	server := httptest.NewServer(api.Routes())
	defer server.Close()

	resp, err := http.Get(server.URL + endpoint)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var response models.DisplayResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&response))
	return resp, response
}

func TestDisplayHandlerWireShape(t *testing.T) {
	api := createTestApi(t, testStatic(t), nil)

	resp, response := retrieveDisplay(t, api, "/api/display/"+testStopID)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	assert.Equal(t, DefaultTitle, response.Title)
	require.Len(t, response.Lines, 4)
	assert.Equal(t, DefaultTitle, response.Lines[0])
	assert.Equal(t, "6 3", response.Lines[1])
	assert.Equal(t, "38 14", response.Lines[2])
	assert.Equal(t, "102 22", response.Lines[3])
	assert.Equal(t, NoAlertsText, response.Ticker)
}

func TestDisplayHandlerTitleOverride(t *testing.T) {
	api := createTestApi(t, testStatic(t), nil)

	_, response := retrieveDisplay(t, api, "/api/display/"+testStopID+"?title=Powell+Stn")
	assert.Equal(t, "Powell Stn", response.Title)
	assert.Equal(t, "Powell Stn", response.Lines[0])
}

func TestDisplayHandlerRouteFilter(t *testing.T) {
	api := createTestApi(t, testStatic(t), nil)

	_, response := retrieveDisplay(t, api, "/api/display/"+testStopID+"?route=38")
	require.Len(t, response.Lines, 4)
	assert.Equal(t, "38 14", response.Lines[1])
	assert.Equal(t, "--", response.Lines[2])
	assert.Equal(t, "--", response.Lines[3])
}

func TestDisplayHandlerUnknownStopPadsAllLines(t *testing.T) {
	api := createTestApi(t, testStatic(t), nil)

	resp, response := retrieveDisplay(t, api, "/api/display/no-such-stop")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, response.Lines, 4)
	assert.Equal(t, DefaultTitle, response.Lines[0])
	for _, line := range response.Lines[1:] {
		assert.Equal(t, "--", line)
	}
}

func TestDisplayHandlerTicker(t *testing.T) {
	alerts := &gtfsrt.FeedMessage{
		Header: &gtfsrt.FeedHeader{GtfsRealtimeVersion: proto.String("2.0")},
		Entity: []*gtfsrt.FeedEntity{
			{
				Id: proto.String("1"),
				Alert: &gtfsrt.Alert{
					HeaderText: &gtfsrt.TranslatedString{
						Translation: []*gtfsrt.TranslatedString_Translation{
							{Text: proto.String("Detour on 39th St")},
						},
					},
					InformedEntity: []*gtfsrt.EntitySelector{
						{StopId: proto.String(testStopID)},
					},
				},
			},
		},
	}
	api := createTestApi(t, testStatic(t), alerts)

	_, response := retrieveDisplay(t, api, "/api/display/"+testStopID)
	assert.Equal(t, "Detour on 39th St", response.Ticker)
}

func TestDisplayHandlerRejectsInvalidStopID(t *testing.T) {
	api := createTestApi(t, testStatic(t), nil)

	server := httptest.NewServer(api.Routes())
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/display/bad%20stop")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestDisplayLinesPadding(t *testing.T) {
	lines := displayLines("Title", []arrivals.Arrival{
		{RouteLabel: "6", Minutes: 3},
	})
	assert.Equal(t, []string{"Title", "6 3", "--", "--"}, lines)

	lines = displayLines("Title", nil)
	assert.Equal(t, []string{"Title", "--", "--", "--"}, lines)
}

func TestFormatArrivalLine(t *testing.T) {
	assert.Equal(t, "6 3", formatArrivalLine(arrivals.Arrival{RouteLabel: "6", Minutes: 3}))
	assert.Equal(t, "38 NOW", formatArrivalLine(arrivals.Arrival{RouteLabel: "38", Minutes: 0}))
}

func TestRenderTicker(t *testing.T) {
	assert.Equal(t, NoAlertsText, renderTicker(""))
	assert.Equal(t, "short alert", renderTicker("short alert"))

	long := strings.Repeat("x", 200)
	got := renderTicker(long)
	assert.Equal(t, maxTickerRunes+1, len([]rune(got)))
	assert.True(t, strings.HasSuffix(got, "…"))
}
