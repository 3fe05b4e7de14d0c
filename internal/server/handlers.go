package server

import (
	"encoding/json"
	"net/http"

	"github.com/LAG-4/cafefinder/pkg/governor"
	"github.com/LAG-4/cafefinder/pkg/offers"
	"github.com/LAG-4/cafefinder/pkg/scraping"
)

func (s *Server) handleOffers(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")
	if slug == "" {
		http.Error(w, "missing place slug", http.StatusBadRequest)
		return
	}

	q := r.URL.Query()
	force := q.Get("refresh") == "true"
	if force && !s.authorized(r) {
		// Refreshing bypasses the cache and hits the platforms, so it is
		// admin-only. Reject before any side effect.
		w.Header().Set("WWW-Authenticate", `Bearer realm="Restricted"`)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	identity := s.identityFor(r, slug)
	resp := s.Svc.GetOffers(r.Context(), slug, identity, force)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// identityFor prefers query-supplied identity, falling back to the tracked
// venue record when one exists.
func (s *Server) identityFor(r *http.Request, slug string) *offers.PlaceIdentity {
	q := r.URL.Query()
	if name := q.Get("name"); name != "" {
		return &offers.PlaceIdentity{Name: name, Area: q.Get("area"), Address: q.Get("address")}
	}
	if status, err := s.DB.Status(r.Context(), slug); err == nil && status != nil && status.Name != "" {
		id := status.Identity()
		return &id
	}
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")
	status, err := s.DB.Status(r.Context(), slug)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if status == nil {
		http.Error(w, "venue not tracked", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.DB.GetStats(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

type ScrapeRequest struct {
	Mode     string `json:"mode"`
	Strategy string `json:"strategy"`
	Limit    int    `json:"limit"`
}

func (s *Server) handleScrape(w http.ResponseWriter, r *http.Request) {
	var req ScrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	mode := scraping.Mode(req.Mode)
	if mode != scraping.ModeAll {
		mode = scraping.ModeDue
	}
	strategy := scraping.Strategy(req.Strategy)
	if strategy != scraping.StrategyConservative {
		strategy = scraping.StrategySmart
	}

	summary, err := s.Orch.Run(r.Context(), mode, strategy, req.Limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summary)
}

type Diagnostics struct {
	Governor governor.Stats `json:"governor"`
	Cache    interface{}    `json:"cache"`
}

func (s *Server) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	diag := Diagnostics{
		Governor: s.Svc.Governor().Stats(),
		Cache:    s.Svc.Cache().Stats(r.Context()),
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(diag)
}

func (s *Server) handleListMappings(w http.ResponseWriter, r *http.Request) {
	mappings, err := s.DB.AllManualMappings(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(mappings)
}

type MappingRequest struct {
	PlaceSlug  string  `json:"place_slug"`
	Platform   string  `json:"platform"`
	URL        string  `json:"url"`
	Confidence float64 `json:"confidence"`
}

func (s *Server) handleAddMapping(w http.ResponseWriter, r *http.Request) {
	var req MappingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.PlaceSlug == "" || req.URL == "" {
		http.Error(w, "place_slug and url are required", http.StatusBadRequest)
		return
	}

	err := s.DB.PutManualMapping(r.Context(), offers.PlacePlatformMapping{
		PlaceSlug:  req.PlaceSlug,
		Platform:   offers.ParsePlatform(req.Platform),
		URL:        req.URL,
		Confidence: req.Confidence,
		Source:     offers.SourceManual,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleRemoveMapping(w http.ResponseWriter, r *http.Request) {
	var req MappingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.DB.DeleteManualMapping(r.Context(), req.PlaceSlug, offers.ParsePlatform(req.Platform)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}
