package schedule

import (
	"sort"
	"time"

	"github.com/jamespfennell/gtfs"
)

// StopTime is one scheduled visit to a stop, flattened for lookup.
// Departure counts from the service day's midnight and may exceed 24h
// for trips scheduled past midnight.
type StopTime struct {
	TripID     string
	RouteID    string
	RouteLabel string
	ServiceID  string
	Departure  time.Duration
}

type RouteInfo struct {
	ID        string
	ShortName string
	LongName  string
}

type service struct {
	weekdays [7]bool // indexed by time.Weekday
	start    string  // YYYYMMDD
	end      string
	added    map[string]struct{} // YYYYMMDD
	removed  map[string]struct{}
}

// Snapshot is an immutable, internally consistent view of the dataset
// as of one refresh. It is never mutated after buildSnapshot returns.
type Snapshot struct {
	loadedAt        time.Time
	stopTimesByStop map[string][]StopTime
	routes          []RouteInfo
	routesByStop    map[string]map[string]struct{}
	stopNames       map[string]string
	services        map[string]service
	hasCalendar     bool
}

const dateLayout = "20060102"

func buildSnapshot(static *gtfs.Static, loadedAt time.Time) *Snapshot {
	s := &Snapshot{
		loadedAt:        loadedAt,
		stopTimesByStop: make(map[string][]StopTime),
		routesByStop:    make(map[string]map[string]struct{}),
		stopNames:       make(map[string]string, len(static.Stops)),
		services:        make(map[string]service, len(static.Services)),
		hasCalendar:     len(static.Services) > 0,
	}

	for _, stop := range static.Stops {
		s.stopNames[stop.Id] = stop.Name
	}

	for _, r := range static.Routes {
		s.routes = append(s.routes, RouteInfo{ID: r.Id, ShortName: r.ShortName, LongName: r.LongName})
	}

	for _, svc := range static.Services {
		entry := service{
			start:   svc.StartDate.Format(dateLayout),
			end:     svc.EndDate.Format(dateLayout),
			added:   make(map[string]struct{}, len(svc.AddedDates)),
			removed: make(map[string]struct{}, len(svc.RemovedDates)),
		}
		entry.weekdays[time.Monday] = svc.Monday
		entry.weekdays[time.Tuesday] = svc.Tuesday
		entry.weekdays[time.Wednesday] = svc.Wednesday
		entry.weekdays[time.Thursday] = svc.Thursday
		entry.weekdays[time.Friday] = svc.Friday
		entry.weekdays[time.Saturday] = svc.Saturday
		entry.weekdays[time.Sunday] = svc.Sunday
		for _, d := range svc.AddedDates {
			entry.added[d.Format(dateLayout)] = struct{}{}
		}
		for _, d := range svc.RemovedDates {
			entry.removed[d.Format(dateLayout)] = struct{}{}
		}
		s.services[svc.Id] = entry
	}

	for i := range static.Trips {
		t := &static.Trips[i]
		if t.Route == nil {
			continue
		}
		serviceID := ""
		if t.Service != nil {
			serviceID = t.Service.Id
		}
		label := routeLabel(t.Route)
		for _, st := range t.StopTimes {
			if st.Stop == nil {
				continue
			}
			dep := st.DepartureTime
			if dep == 0 {
				dep = st.ArrivalTime
			}
			s.stopTimesByStop[st.Stop.Id] = append(s.stopTimesByStop[st.Stop.Id], StopTime{
				TripID:     t.ID,
				RouteID:    t.Route.Id,
				RouteLabel: label,
				ServiceID:  serviceID,
				Departure:  dep,
			})
			set, ok := s.routesByStop[st.Stop.Id]
			if !ok {
				set = make(map[string]struct{})
				s.routesByStop[st.Stop.Id] = set
			}
			set[t.Route.Id] = struct{}{}
		}
	}

	for stopID := range s.stopTimesByStop {
		rows := s.stopTimesByStop[stopID]
		sort.Slice(rows, func(i, j int) bool { return rows[i].Departure < rows[j].Departure })
	}

	return s
}

// routeLabel picks the display label for a route: short name, falling
// back to long name, falling back to the route ID.
func routeLabel(r *gtfs.Route) string {
	if r.ShortName != "" {
		return r.ShortName
	}
	if r.LongName != "" {
		return r.LongName
	}
	return r.Id
}

func (s *Snapshot) activeServices(date time.Time) map[string]struct{} {
	day := date.Format(dateLayout)
	weekday := date.Weekday()

	active := make(map[string]struct{})
	for id, svc := range s.services {
		inRange := svc.start <= day && day <= svc.end
		running := inRange && svc.weekdays[weekday]
		// Date exceptions override the weekday rule in both directions.
		if _, ok := svc.added[day]; ok {
			running = true
		}
		if _, ok := svc.removed[day]; ok {
			running = false
		}
		if running {
			active[id] = struct{}{}
		}
	}
	return active
}
