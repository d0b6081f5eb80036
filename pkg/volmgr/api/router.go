package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/marmos91/dittoblock/pkg/volmgr"
)

// NewRouter builds the chi router.
//
// Routes:
//   - GET /health - liveness probe (unauthenticated)
//   - GET /health/ready - readiness probe (unauthenticated)
//   - POST /api/v1/volumes - create volume
//   - GET /api/v1/volumes - list volumes
//   - GET /api/v1/volumes/{id} - volume details
//   - GET /api/v1/volumes/{id}/stats - volume stats
//   - DELETE /api/v1/volumes/{id} - remove volume
//   - GET /api/v1/stats - service capacity and inventory
func NewRouter(mgr *volmgr.Manager, tokens *TokenService) http.Handler {
	r := chi.NewRouter()

	// Middleware stack - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	health := NewHealthHandler(mgr)
	r.Route("/health", func(r chi.Router) {
		r.Get("/", health.Liveness)
		r.Get("/ready", health.Readiness)
	})

	volumes := NewVolumeHandler(mgr)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(JWTAuth(tokens))
		r.Use(requestCounter(mgr))

		r.Get("/stats", volumes.ServiceStats)
		r.Route("/volumes", func(r chi.Router) {
			r.Post("/", volumes.Create)
			r.Get("/", volumes.List)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", volumes.Get)
				r.Delete("/", volumes.Remove)
				r.Get("/stats", volumes.Stats)
			})
		})
	})

	return r
}
