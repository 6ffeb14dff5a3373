// Package arrivals turns cache snapshots into display-ready answers:
// the ranked next-arrivals list for a stop and the scrolling alert
// ticker. Everything here is a pure read of the latest snapshots;
// nothing blocks on a refresh.
package arrivals

import (
	"fmt"
	"sort"
	"time"

	"stopboard.transitdisplay.org/internal/realtime"
	"stopboard.transitdisplay.org/internal/schedule"
)

const (
	// DefaultLimit is how many arrivals a display line set can show.
	DefaultLimit = 3

	// lookaheadHorizon bounds the normal search window; when nothing
	// falls inside it the resolver falls back to any upcoming trip.
	lookaheadHorizon = 4 * time.Hour

	// departedTolerance keeps arrivals visible slightly past their
	// predicted time before dropping them as departed.
	departedTolerance = time.Minute
)

// Arrival is one resolved upcoming arrival. Minutes is the integer
// floor of time-until-arrival, clamped to zero; values under a minute
// are the display layer's cue for a "boarding now" state.
type Arrival struct {
	RouteID    string
	RouteLabel string
	Minutes    int
	Realtime   bool
}

// Resolver merges scheduled stop-times with real-time predictions.
type Resolver struct {
	schedule *schedule.Cache
	realtime *realtime.Cache
}

func NewResolver(sched *schedule.Cache, rt *realtime.Cache) *Resolver {
	return &Resolver{schedule: sched, realtime: rt}
}

type candidate struct {
	arrival Arrival
	at      time.Time
}

// NextArrivals returns up to limit upcoming arrivals at the stop,
// ordered by minutes-until-arrival and tie-broken by route label. An
// unknown stop yields an empty result, not an error. The resolver
// never pads; rendering placeholders for missing slots is the display
// layer's job.
func (r *Resolver) NextArrivals(stopID string, now time.Time, routeFilter string, limit int) []Arrival {
	if limit <= 0 {
		limit = DefaultLimit
	}
	rows := r.schedule.StopTimes(stopID)
	if len(rows) == 0 {
		return nil
	}

	loc := r.schedule.Location()
	now = now.In(loc)
	hasCalendar := r.schedule.HasCalendar()
	filter := normalizeFilter(routeFilter)

	var routeByID map[string]schedule.RouteInfo
	if filter != "" {
		routeByID = make(map[string]schedule.RouteInfo)
		for _, route := range r.schedule.Routes() {
			routeByID[route.ID] = route
		}
	}

	// Consider both today's service day and yesterday's, so trips the
	// feed encodes past 24:00 on yesterday's calendar still surface.
	days := []time.Time{now.AddDate(0, 0, -1), now}

	var candidates []candidate
	seen := make(map[string]struct{})

	for _, day := range days {
		var active map[string]struct{}
		if hasCalendar {
			active = r.schedule.ActiveServices(day)
		}
		midnight := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc)

		for _, st := range rows {
			// Without calendar data every trip is eligible; with it,
			// the trip's service must run on this service day.
			if hasCalendar {
				if _, ok := active[st.ServiceID]; !ok {
					continue
				}
			}
			if filter != "" && !filterMatchesRoute(filter, routeByID[st.RouteID]) {
				continue
			}

			at := midnight.Add(st.Departure)
			isRealtime := false
			// A prediction only ever overrides a scheduled visit; it
			// cannot invent one the schedule doesn't have today.
			if p, ok := r.realtime.Prediction(st.TripID, stopID); ok {
				switch {
				case p.HasTime:
					at = p.Time
					isRealtime = true
				case p.HasDelay:
					at = at.Add(p.Delay)
					isRealtime = true
				}
			}

			until := at.Sub(now)
			if until < -departedTolerance {
				continue
			}

			key := fmt.Sprintf("%s|%d", st.TripID, at.Unix())
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}

			minutes := int(until / time.Minute)
			if minutes < 0 {
				minutes = 0
			}
			candidates = append(candidates, candidate{
				arrival: Arrival{
					RouteID:    st.RouteID,
					RouteLabel: st.RouteLabel,
					Minutes:    minutes,
					Realtime:   isRealtime,
				},
				at: at,
			})
		}
	}

	if len(candidates) == 0 {
		return nil
	}

	within := candidates[:0:0]
	for _, c := range candidates {
		if c.at.Sub(now) <= lookaheadHorizon {
			within = append(within, c)
		}
	}
	if len(within) > 0 {
		candidates = within
	}

	sort.Slice(candidates, func(i, j int) bool {
		ci, cj := candidates[i], candidates[j]
		if ci.arrival.Minutes != cj.arrival.Minutes {
			return ci.arrival.Minutes < cj.arrival.Minutes
		}
		if ci.arrival.RouteLabel != cj.arrival.RouteLabel {
			return ci.arrival.RouteLabel < cj.arrival.RouteLabel
		}
		return ci.at.Before(cj.at)
	})

	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	out := make([]Arrival, len(candidates))
	for i, c := range candidates {
		out[i] = c.arrival
	}
	return out
}
