package server

import (
	"encoding/json"
	"net/http"

	"parley/internal/ai"
)

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, map[string]any{
		"models":  s.ai.AvailableModels(r.Context()),
		"default": s.ai.Registry().Default(),
	})
}

// handleModelsTest probes every backend live. Slow by nature; diagnostics only.
func (s *Server) handleModelsTest(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, s.ai.TestConnectivity(r.Context()))
}

func (s *Server) handleSetDefaultModel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Backend string `json:"backend"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Backend == "" {
		jsonError(w, "backend is required", 400)
		return
	}

	if !s.ai.SetDefaultBackend(req.Backend) {
		jsonError(w, "Unknown backend", 404)
		return
	}
	jsonResponse(w, map[string]any{"default": req.Backend})
}

func (s *Server) handleStyles(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, map[string]any{"styles": ai.Styles()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	analytics := s.ai.Analytics()
	jsonResponse(w, map[string]any{
		"status":       "ok",
		"health":       analytics.ServiceHealth,
		"success_rate": analytics.SuccessRate,
	})
}
