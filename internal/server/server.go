package server

import (
	"net/http"
	"strings"

	"github.com/LAG-4/cafefinder/internal/utils"
	"github.com/LAG-4/cafefinder/pkg/aggregate"
	"github.com/LAG-4/cafefinder/pkg/scraping"
	"github.com/LAG-4/cafefinder/pkg/storage"
)

type Server struct {
	DB         *storage.DB
	Svc        *aggregate.Service
	Orch       *scraping.Orchestrator
	AdminToken string
}

func New(db *storage.DB, svc *aggregate.Service, orch *scraping.Orchestrator, adminToken string) *Server {
	return &Server{
		DB:         db,
		Svc:        svc,
		Orch:       orch,
		AdminToken: adminToken,
	}
}

func (s *Server) Start(addr string) error {
	utils.Log.WithField("addr", addr).Info("starting server")
	return http.ListenAndServe(addr, s.Handler())
}

// Handler builds the route table. Split from Start so tests can drive the
// mux through httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Public API
	mux.HandleFunc("GET /api/offers/{slug}", s.handleOffers)
	mux.HandleFunc("GET /api/status/{slug}", s.handleStatus)
	mux.HandleFunc("GET /api/stats", s.handleStats)

	// Admin API
	mux.HandleFunc("POST /api/scrape", s.bearerAuth(s.handleScrape))
	mux.HandleFunc("GET /api/diagnostics", s.bearerAuth(s.handleDiagnostics))
	mux.HandleFunc("GET /api/mappings", s.bearerAuth(s.handleListMappings))
	mux.HandleFunc("POST /api/mappings", s.bearerAuth(s.handleAddMapping))
	mux.HandleFunc("DELETE /api/mappings", s.bearerAuth(s.handleRemoveMapping))

	return mux
}

// authorized reports whether the request carries the admin bearer token.
// An unset token disables admin access entirely rather than opening it up.
func (s *Server) authorized(r *http.Request) bool {
	if s.AdminToken == "" {
		return false
	}
	h := r.Header.Get("Authorization")
	return strings.HasPrefix(h, "Bearer ") && strings.TrimPrefix(h, "Bearer ") == s.AdminToken
}

func (s *Server) bearerAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authorized(r) {
			w.Header().Set("WWW-Authenticate", `Bearer realm="Restricted"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}
