package obs

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// Route returns the chi pattern that matched r, e.g.
// "/api/v1/sessions/{id}/save". Sub-router patterns are only complete once the
// request has been dispatched, so middleware must call it after next returns.
func Route(r *http.Request, fallback string) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if route := rc.RoutePattern(); route != "" {
			return route
		}
	}
	return fallback
}

// withRequestLogger stores a child of logger tagged with the request id on ctx
// so zerolog.Ctx finds it in handlers and clients.
func withRequestLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	if id := middleware.GetReqID(ctx); id != "" {
		logger = logger.With().Str("request_id", id).Logger()
	}
	return logger.WithContext(ctx)
}
