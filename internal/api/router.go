package api

import (
	"context"
	"net/http"

	"github.com/julienschmidt/httprouter"
	apiContext "portal/internal/api/context"
	"portal/internal/api/handlers"
	"portal/internal/api/middleware"
)

type Dependencies struct {
	APIKeyHandler     *handlers.APIKeyHandler
	EnrichmentHandler *handlers.EnrichmentHandler
	HealthHandler     *handlers.HealthHandler
	MetricsHandler    *handlers.MetricsHandler
	AuthMiddleware    *middleware.AuthMiddleware
}

func NewRouter(deps *Dependencies) *httprouter.Router {
	router := httprouter.New()

	authMid := deps.AuthMiddleware

	// API key management
	router.GET("/api/api-keys",
		chain(deps.APIKeyHandler.List, authMid.Handle, middleware.RateLimit("api_read")))
	router.POST("/api/api-keys",
		chain(deps.APIKeyHandler.Create, authMid.Handle, middleware.RateLimit("api_write")))
	router.DELETE("/api/api-keys/:key_id",
		chain(deps.APIKeyHandler.Revoke, authMid.Handle, middleware.RateLimit("api_write")))

	// Enrichment job detail and live logs
	router.GET("/api/enrichments/:enrichment_id",
		chain(deps.EnrichmentHandler.GetJob, authMid.Handle, middleware.RateLimit("api_read")))
	router.GET("/api/enrichments/:enrichment_id/logs",
		chain(deps.EnrichmentHandler.StreamLogs, authMid.Handle, middleware.RateLimit("stream")))

	// Operational endpoints
	router.GET("/healthz", wrap(deps.HealthHandler.Check))
	router.GET("/metrics", wrap(deps.MetricsHandler.Export))

	return router
}

// Helper function to chain middlewares
func chain(handler http.HandlerFunc, middlewares ...func(http.HandlerFunc) http.HandlerFunc) httprouter.Handle {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return wrap(handler)
}

// Convert http.HandlerFunc to httprouter.Handle
func wrap(handler http.HandlerFunc) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		// Inject params into context
		ctx := context.WithValue(r.Context(), apiContext.Params, ps)
		handler(w, r.WithContext(ctx))
	}
}
