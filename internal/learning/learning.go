// Package learning turns accumulated user feedback into backend routing
// decisions. It sits between the feedback store and the AI service: the
// service asks which backend has earned a given conversation style, and this
// package answers from scored history, falling back to static preferences
// when the history is too thin.
package learning

import (
	"log/slog"
	"sync"
	"time"

	"parley/internal/models"
)

// Store is the slice of the database this package needs.
type Store interface {
	BestBackendForStyle(style string) (string, bool, error)
	LearningInsights() ([]models.LearningInsight, error)
	PerformanceRecords() ([]models.ModelPerformance, error)
}

// stylePreferences is the static fallback ordering used until feedback
// accumulates. Listed backends are tried in order against availability.
var stylePreferences = map[string][]string{
	"friendly":     {"DialoGPT Large", "BlenderBot 400M", "Gemini Pro"},
	"professional": {"Gemini Pro", "DialoGPT Large"},
	"creative":     {"Gemini Pro", "DialoGPT Large"},
	"analytical":   {"Gemini Pro", "DialoGPT Medium"},
	"casual":       {"BlenderBot 400M", "DialoGPT Medium", "Gemini Pro"},
	"helpful":      {"Gemini Pro", "DialoGPT Large"},
}

// Service answers backend-selection queries with a small TTL cache in front
// of the store, so the hot path does not hit sqlite on every chat request.
type Service struct {
	store Store
	ttl   time.Duration

	mu    sync.Mutex
	cache map[string]cachedChoice
	now   func() time.Time
}

type cachedChoice struct {
	backend string
	ok      bool
	expires time.Time
}

func New(store Store, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Service{
		store: store,
		ttl:   ttl,
		cache: make(map[string]cachedChoice),
		now:   time.Now,
	}
}

// OptimalBackend picks the backend for a style: the learned best performer if
// one qualifies and is currently available, otherwise the static preference
// list, otherwise the first available backend. Returns "" when nothing is
// available, which callers treat as "no preference".
func (s *Service) OptimalBackend(style string, available []string) string {
	if len(available) == 0 {
		return ""
	}

	if learned, ok := s.lookupLearned(style); ok && contains(available, learned) {
		slog.Debug("using learned backend", "style", style, "backend", learned)
		return learned
	}

	for _, name := range stylePreferences[style] {
		if contains(available, name) {
			return name
		}
	}
	return available[0]
}

func (s *Service) lookupLearned(style string) (string, bool) {
	s.mu.Lock()
	if c, ok := s.cache[style]; ok && s.now().Before(c.expires) {
		s.mu.Unlock()
		return c.backend, c.ok
	}
	s.mu.Unlock()

	backend, ok, err := s.store.BestBackendForStyle(style)
	if err != nil {
		slog.Error("learned backend lookup failed", "style", style, "error", err)
		return "", false
	}

	s.mu.Lock()
	s.cache[style] = cachedChoice{backend: backend, ok: ok, expires: s.now().Add(s.ttl)}
	s.mu.Unlock()
	return backend, ok
}

// Invalidate drops the cache. Called after new feedback lands so the next
// selection sees fresh scores.
func (s *Service) Invalidate() {
	s.mu.Lock()
	s.cache = make(map[string]cachedChoice)
	s.mu.Unlock()
}

// Recommendations returns the current insights plus per-pair performance,
// for the insights endpoint.
type Recommendations struct {
	Insights    []models.LearningInsight  `json:"insights"`
	Performance []models.ModelPerformance `json:"performance"`
}

func (s *Service) Recommendations() (Recommendations, error) {
	insights, err := s.store.LearningInsights()
	if err != nil {
		return Recommendations{}, err
	}
	performance, err := s.store.PerformanceRecords()
	if err != nil {
		return Recommendations{}, err
	}
	return Recommendations{Insights: insights, Performance: performance}, nil
}

func contains(names []string, target string) bool {
	for _, n := range names {
		if n == target {
			return true
		}
	}
	return false
}
