package realtime

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"google.golang.org/protobuf/proto"

	"stopboard.transitdisplay.org/internal/logging"

	gtfsrt "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
)

// fetchFeed fetches and unmarshals one GTFS-RT feed document.
func (c *Cache) fetchFeed(ctx context.Context, url, feedName string) (*gtfsrt.FeedMessage, error) {
	start := time.Now()
	defer func() {
		if c.config.Metrics != nil {
			c.config.Metrics.FetchDuration.WithLabelValues(feedName).Observe(time.Since(start).Seconds())
		}
	}()

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer logging.SafeCloseWithLogging(resp.Body, c.logger, "feed_response_body")

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	feed := &gtfsrt.FeedMessage{}
	if err := proto.Unmarshal(body, feed); err != nil {
		return nil, fmt.Errorf("failed to parse protobuf: %w", err)
	}

	return feed, nil
}

// decodeTripUpdates flattens a trip-update feed into per-(trip, stop)
// predictions. Absolute times are preferred over delay offsets; the
// resolver applies a delay against the scheduled time when no absolute
// time is present.
func decodeTripUpdates(feed *gtfsrt.FeedMessage) map[tripKey]Prediction {
	predictions := make(map[tripKey]Prediction)

	for _, entity := range feed.Entity {
		if entity.TripUpdate == nil {
			continue
		}
		tripUpdate := entity.TripUpdate
		if tripUpdate.Trip == nil || tripUpdate.Trip.TripId == nil {
			continue
		}
		tripID := *tripUpdate.Trip.TripId

		for _, stu := range tripUpdate.StopTimeUpdate {
			if stu.StopId == nil {
				continue
			}

			var p Prediction
			if stu.Arrival != nil {
				if stu.Arrival.Time != nil {
					p.Time = time.Unix(*stu.Arrival.Time, 0)
					p.HasTime = true
				}
				if stu.Arrival.Delay != nil {
					p.Delay = time.Duration(*stu.Arrival.Delay) * time.Second
					p.HasDelay = true
				}
			}
			// Departure fills whatever arrival left unset.
			if stu.Departure != nil {
				if !p.HasTime && stu.Departure.Time != nil {
					p.Time = time.Unix(*stu.Departure.Time, 0)
					p.HasTime = true
				}
				if !p.HasDelay && stu.Departure.Delay != nil {
					p.Delay = time.Duration(*stu.Departure.Delay) * time.Second
					p.HasDelay = true
				}
			}
			if !p.HasTime && !p.HasDelay {
				continue
			}

			predictions[tripKey{tripID: tripID, stopID: *stu.StopId}] = p
		}
	}

	return predictions
}

// decodeAlerts flattens an alert feed, keeping feed order. Alert text
// is the first header translation, falling back to the first
// description translation.
func decodeAlerts(feed *gtfsrt.FeedMessage) []Alert {
	var alerts []Alert

	for _, entity := range feed.Entity {
		if entity.Alert == nil {
			continue
		}
		raw := entity.Alert

		text := firstTranslation(raw.HeaderText)
		if text == "" {
			text = firstTranslation(raw.DescriptionText)
		}
		if text == "" {
			continue
		}

		alert := Alert{Text: text}
		for _, ie := range raw.InformedEntity {
			if ie.StopId != nil && *ie.StopId != "" {
				alert.StopIDs = append(alert.StopIDs, *ie.StopId)
			}
			if ie.RouteId != nil && *ie.RouteId != "" {
				alert.RouteIDs = append(alert.RouteIDs, *ie.RouteId)
			}
		}

		alerts = append(alerts, alert)
	}

	return alerts
}

func firstTranslation(ts *gtfsrt.TranslatedString) string {
	if ts == nil {
		return ""
	}
	for _, tr := range ts.Translation {
		if tr.Text != nil {
			if text := strings.TrimSpace(*tr.Text); text != "" {
				return text
			}
		}
	}
	return ""
}
