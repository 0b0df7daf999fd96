// File: internal/infra/web/server.go
package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Server is the ops surface: liveness probe plus the Prometheus scrape
// endpoint. It carries no product API; the platform's HTTP layer lives
// elsewhere.
type Server struct {
	bearerToken string
	log         *zerolog.Logger
}

func NewServer(bearerToken string, logger *zerolog.Logger) *Server {
	compLog := logger.With().Str("component", "OpsServer").Logger()
	return &Server{bearerToken: bearerToken, log: &compLog}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Handle("/metrics", promhttp.Handler())
	})
	return r
}

// authMiddleware guards the metrics endpoint with a static bearer token.
// An empty configured token leaves the endpoint open (dev).
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.bearerToken == "" {
			next.ServeHTTP(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer "+s.bearerToken {
			s.log.Warn().Str("path", r.URL.Path).Msg("unauthorized ops request")
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
