package restapi

import (
	"encoding/json"
	"net/http"
	"time"
)

type healthResponse struct {
	Status                string `json:"status"`
	ScheduleLoadedEpoch   int64  `json:"schedule_loaded_epoch"`
	ScheduleAgeSeconds    int64  `json:"schedule_age_seconds"`
	TripUpdatesEpoch      int64  `json:"trip_updates_epoch"`
	TripUpdatesAgeSeconds int64  `json:"trip_updates_age_seconds"`
	AlertsEpoch           int64  `json:"alerts_epoch"`
	AlertsAgeSeconds      int64  `json:"alerts_age_seconds"`
}

// healthHandler reports snapshot ages. A zero epoch means the feed has
// never been fetched, which for the realtime feeds is a normal state.
func (api *RestAPI) healthHandler(w http.ResponseWriter, r *http.Request) {
	now := time.Now()

	resp := healthResponse{Status: "ok"}
	if t := api.Schedule.LoadedAt(); !t.IsZero() {
		resp.ScheduleLoadedEpoch = t.Unix()
		resp.ScheduleAgeSeconds = int64(now.Sub(t).Seconds())
	}
	if t := api.Realtime.TripUpdatesFetchedAt(); !t.IsZero() {
		resp.TripUpdatesEpoch = t.Unix()
		resp.TripUpdatesAgeSeconds = int64(now.Sub(t).Seconds())
	}
	if t := api.Realtime.AlertsFetchedAt(); !t.IsZero() {
		resp.AlertsEpoch = t.Unix()
		resp.AlertsAgeSeconds = int64(now.Sub(t).Seconds())
	}

	setJSONResponseType(&w)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		api.Logger.Error("failed to encode health response", "error", err)
	}
}
