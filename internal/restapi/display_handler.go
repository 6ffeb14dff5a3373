package restapi

import (
	"fmt"
	"net/http"
	"time"

	"stopboard.transitdisplay.org/internal/arrivals"
	"stopboard.transitdisplay.org/internal/models"
	"stopboard.transitdisplay.org/internal/utils"
)

// DefaultTitle is used when the client does not pass a title query
// parameter. Deployed sign firmware relies on this default.
const DefaultTitle = "39th St WB"

// arrivalLineCount is the number of arrival slots on the sign. The
// lines array is always title plus exactly this many entries.
const arrivalLineCount = 3

// maxTickerRunes caps the ticker string the sign will scroll.
const maxTickerRunes = 160

// NoAlertsText is rendered when no service alert applies to the stop.
const NoAlertsText = "No alerts"

func (api *RestAPI) displayHandler(w http.ResponseWriter, r *http.Request) {
	stopID := utils.ExtractIDFromParams(r, "stopID")

	if err := utils.ValidateID(stopID); err != nil {
		fieldErrors := map[string][]string{
			"stopID": {err.Error()},
		}
		api.validationErrorResponse(w, r, fieldErrors)
		return
	}

	title := r.URL.Query().Get("title")
	if title == "" {
		title = DefaultTitle
	}
	routeFilter := r.URL.Query().Get("route")

	now := time.Now().In(api.Schedule.Location())
	upcoming := api.resolver.NextArrivals(stopID, now, routeFilter, arrivals.DefaultLimit)
	tickerText := renderTicker(api.ticker.Ticker(stopID, routeFilter))

	api.Metrics.DisplayRequests.Inc()

	response := models.NewDisplayResponse(title, displayLines(title, upcoming), tickerText)
	api.sendResponse(w, r, response)
}

// displayLines produces the fixed-length lines array: the title first,
// then one line per arrival, padded with "--" up to the slot count.
func displayLines(title string, upcoming []arrivals.Arrival) []string {
	lines := make([]string, 0, arrivalLineCount+1)
	lines = append(lines, title)
	for _, a := range upcoming {
		lines = append(lines, formatArrivalLine(a))
	}
	for len(lines) < arrivalLineCount+1 {
		lines = append(lines, "--")
	}
	return lines
}

// formatArrivalLine renders one arrival slot. Anything under a minute
// out shows as NOW rather than a zero countdown.
func formatArrivalLine(a arrivals.Arrival) string {
	if a.Minutes < 1 {
		return fmt.Sprintf("%s NOW", a.RouteLabel)
	}
	return fmt.Sprintf("%s %d", a.RouteLabel, a.Minutes)
}

// renderTicker substitutes the placeholder when there are no alerts
// and keeps the string within what the sign can scroll.
func renderTicker(s string) string {
	if s == "" {
		return NoAlertsText
	}
	runes := []rune(s)
	if len(runes) > maxTickerRunes {
		return string(runes[:maxTickerRunes]) + "…"
	}
	return s
}
