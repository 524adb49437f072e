package ai

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// BackendSelector suggests a learned backend for a style; the feedback scorer
// implements it. A nil selector or an empty suggestion means "no learned
// signal", and the registry's static ordering applies.
type BackendSelector interface {
	OptimalBackend(style string, available []string) string
}

// ServiceAnalytics is a snapshot of in-memory usage counters. Volatile:
// resets on process restart.
type ServiceAnalytics struct {
	TotalRequests       int64            `json:"total_requests"`
	SuccessfulRequests  int64            `json:"successful_requests"`
	FailedRequests      int64            `json:"failed_requests"`
	BackendUsage        map[string]int64 `json:"backend_usage"`
	StyleUsage          map[string]int64 `json:"style_usage"`
	AverageResponseTime float64          `json:"average_response_time"`
	SuccessRate         float64          `json:"success_rate_percentage"`
	ServiceHealth       string           `json:"service_health"`
}

// ConnectivityResult is the outcome of probing one backend.
type ConnectivityResult struct {
	Available    bool        `json:"available"`
	ResponseTime float64     `json:"response_time"`
	Error        string      `json:"error,omitempty"`
	RateLimitOK  bool        `json:"rate_limit_ok"`
	Info         BackendInfo `json:"info"`
}

// Service is the orchestrator: it composes the style engine with the registry,
// consults the learned backend selector, and tracks usage analytics.
type Service struct {
	registry *Registry
	selector BackendSelector

	mu           sync.Mutex
	total        int64
	successful   int64
	failed       int64
	backendUsage map[string]int64
	styleUsage   map[string]int64
	avgResponse  float64
}

func NewService(registry *Registry, selector BackendSelector) *Service {
	return &Service{
		registry:     registry,
		selector:     selector,
		backendUsage: make(map[string]int64),
		styleUsage:   make(map[string]int64),
	}
}

// Registry exposes the underlying backend registry for diagnostics.
func (s *Service) Registry() *Registry { return s.registry }

// SetDefaultBackend switches the registry default. Returns false for an
// unknown backend name.
func (s *Service) SetDefaultBackend(name string) bool {
	ok := s.registry.SetDefault(name)
	if ok {
		slog.Info("default backend changed", "backend", name)
	}
	return ok
}

// GenerateResponse produces one styled assistant turn. It never panics or
// returns an error to the caller; every failure mode becomes a failed Result.
func (s *Service) GenerateResponse(ctx context.Context, messages []Message, sessionID string, style Style, preferred string, tempOverride *float64) *Result {
	start := time.Now()

	res := s.generate(ctx, messages, sessionID, style, preferred, tempOverride)

	elapsed := time.Since(start)
	s.recordRequest(res, style, elapsed)
	return res
}

func (s *Service) generate(ctx context.Context, messages []Message, sessionID string, style Style, preferred string, tempOverride *float64) (res *Result) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("AI service panic", "panic", p, "session", sessionID)
			res = &Result{
				Success:      false,
				Backend:      "none",
				ErrorKind:    KindInternal,
				ErrorMessage: fmt.Sprintf("AI service error: %v", p),
			}
		}
	}()

	enhanced := ApplyStyle(messages, style)

	// Effective temperature: explicit override wins, then the style default.
	temperature := StyleOf(style).Temperature
	if tempOverride != nil {
		temperature = *tempOverride
	}

	// No explicit preference: ask the feedback scorer which backend has
	// earned this style.
	if preferred == "" && s.selector != nil {
		preferred = s.selector.OptimalBackend(string(style), s.registry.AvailableBackends(ctx))
	}

	res = s.registry.GenerateWithFallback(ctx, enhanced, sessionID, preferred, Options{
		Temperature: &temperature,
	})

	if res.Success {
		processed := *res
		processed.Content = PostProcess(res.Content, style)
		return &processed
	}
	return res
}

// recordRequest updates counters and the online mean response time. The mean
// covers every request, successful or not.
func (s *Service) recordRequest(res *Result, style Style, elapsed time.Duration) {
	s.mu.Lock()
	s.total++
	s.styleUsage[string(style)]++

	outcome := "failure"
	if res.Success {
		s.successful++
		s.backendUsage[res.Backend]++
		outcome = "success"
	} else {
		s.failed++
	}

	s.avgResponse = (s.avgResponse*float64(s.total-1) + elapsed.Seconds()) / float64(s.total)
	s.mu.Unlock()

	generationRequests.WithLabelValues(res.Backend, string(style), outcome).Inc()
	generationLatency.Observe(elapsed.Seconds())
	if res.Success {
		generationTokens.Observe(float64(res.TokensUsed))
	}
}

// Analytics snapshots the counters with a derived success rate and a coarse
// health verdict (healthy above 80% success).
func (s *Service) Analytics() ServiceAnalytics {
	s.mu.Lock()
	defer s.mu.Unlock()

	a := ServiceAnalytics{
		TotalRequests:       s.total,
		SuccessfulRequests:  s.successful,
		FailedRequests:      s.failed,
		BackendUsage:        make(map[string]int64, len(s.backendUsage)),
		StyleUsage:          make(map[string]int64, len(s.styleUsage)),
		AverageResponseTime: s.avgResponse,
	}
	for k, v := range s.backendUsage {
		a.BackendUsage[k] = v
	}
	for k, v := range s.styleUsage {
		a.StyleUsage[k] = v
	}

	if s.total > 0 {
		a.SuccessRate = float64(s.successful) / float64(s.total) * 100
	}
	a.ServiceHealth = "degraded"
	if a.SuccessRate > 80 {
		a.ServiceHealth = "healthy"
	}
	return a
}

// AvailableModels reports every registered backend with its validation and
// rate-limit state.
func (s *Service) AvailableModels(ctx context.Context) []BackendStatus {
	status := s.registry.Status(ctx)
	out := make([]BackendStatus, 0, len(status.Backends))
	for _, name := range s.registry.Names() {
		out = append(out, status.Backends[name])
	}
	return out
}

// TestConnectivity validates every registered backend and reports timing.
// Diagnostics only; never on the hot path.
func (s *Service) TestConnectivity(ctx context.Context) map[string]ConnectivityResult {
	results := make(map[string]ConnectivityResult)
	for _, name := range s.registry.Names() {
		b := s.registry.Get(name)
		start := time.Now()
		ok, msg := b.Validate(ctx)
		r := ConnectivityResult{
			Available:    ok,
			ResponseTime: time.Since(start).Seconds(),
			RateLimitOK:  b.CheckRateLimit(),
			Info:         b.Info(),
		}
		if !ok {
			r.Error = msg
		}
		results[name] = r
	}
	return results
}
