package restapi

import (
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"

	"stopboard.transitdisplay.org/internal/app"
	"stopboard.transitdisplay.org/internal/arrivals"
)

type RestAPI struct {
	*app.Application
	resolver    *arrivals.Resolver
	ticker      *arrivals.Ticker
	rateLimiter func(http.Handler) http.Handler
}

// NewRestAPI creates a new RestAPI instance with initialized rate limiter
func NewRestAPI(app *app.Application) *RestAPI {
	return &RestAPI{
		Application: app,
		resolver:    arrivals.NewResolver(app.Schedule, app.Realtime),
		ticker:      arrivals.NewTicker(app.Schedule, app.Realtime),
		rateLimiter: NewRateLimitMiddleware(app.Config.RateLimit, time.Second),
	}
}

// Routes builds the router and wraps it in the middleware chain.
// Request logging runs outermost so rate-limited requests are logged too.
func (api *RestAPI) Routes() http.Handler {
	router := httprouter.New()
	router.Handler(http.MethodGet, "/api/display/:stopID", http.HandlerFunc(api.displayHandler))
	router.Handler(http.MethodGet, "/healthz", http.HandlerFunc(api.healthHandler))

	var handler http.Handler = router
	handler = api.rateLimiter(handler)
	handler = NewRequestLoggingMiddleware(api.Logger, api.Metrics)(handler)
	return handler
}
