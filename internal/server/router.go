package server

import (
	"net/http"

	"github.com/watzon/cadence/internal/metrics"
	"github.com/watzon/cadence/internal/server/handlers"
)

// maxEvaluateBody caps POST /api/evaluate documents.
const maxEvaluateBody = 1 << 20

type Router struct {
	server      *Server
	mux         *http.ServeMux
	middlewares []Middleware
}

type Middleware func(http.Handler) http.Handler

func NewRouter(srv *Server) *Router {
	r := &Router{
		server: srv,
		mux:    http.NewServeMux(),
	}

	r.setupMiddleware()
	r.setupRoutes()

	return r
}

func (r *Router) setupMiddleware() {
	r.Use(RecoveryMiddleware)
	r.Use(RequestIDMiddleware)
	r.Use(ObserveMiddleware)
}

func (r *Router) Use(mw Middleware) {
	r.middlewares = append(r.middlewares, mw)
}

func (r *Router) setupRoutes() {
	h := handlers.New(r.server.DB(), r.server.version)

	r.mux.HandleFunc("GET /health", h.Health)
	r.mux.Handle("GET /metrics", r.metricsHandler())

	r.mux.HandleFunc("GET /api/schedules", h.ListSchedules)
	r.mux.HandleFunc("GET /api/schedules/{id}", h.GetSchedule)
	r.mux.HandleFunc("GET /api/schedules/{id}/decisions", h.ListDecisions)
	r.mux.HandleFunc("GET /api/executions", h.ListExecutions)
	r.mux.Handle("POST /api/evaluate", MaxBodySizeMiddleware(maxEvaluateBody)(http.HandlerFunc(h.Evaluate)))
}

// metricsHandler refreshes the connection pool gauges on every scrape.
func (r *Router) metricsHandler() http.Handler {
	next := metrics.Handler()
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		stats := r.server.DB().Stats()
		metrics.UpdateDBStats(stats.OpenConnections, stats.InUse)
		next.ServeHTTP(w, req)
	})
}

// ServeHTTP applies the middleware chain, first registered outermost.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	var handler http.Handler = r.mux
	for i := len(r.middlewares) - 1; i >= 0; i-- {
		handler = r.middlewares[i](handler)
	}
	handler.ServeHTTP(w, req)
}
