package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/sony/gobreaker"
)

// Registry holds named backends and coordinates preference-ordered fallback.
// Preference is advisory, not binding: a request never hard-fails while any
// registered backend is usable.
type Registry struct {
	mu          sync.RWMutex
	backends    map[string]Backend
	order       []string // registration order
	defaultName string
	breakers    map[string]*gobreaker.CircuitBreaker
}

// BackendStatus describes one registered backend for diagnostics.
type BackendStatus struct {
	Info            BackendInfo `json:"info"`
	Available       bool        `json:"available"`
	Error           string      `json:"error,omitempty"`
	WithinRateLimit bool        `json:"within_rate_limit"`
	BreakerState    string      `json:"breaker_state"`
}

// SystemStatus is a snapshot of the whole registry.
type SystemStatus struct {
	TotalBackends  int                      `json:"total_backends"`
	DefaultBackend string                   `json:"default_backend"`
	Backends       map[string]BackendStatus `json:"backends"`
}

func NewRegistry() *Registry {
	return &Registry{
		backends: make(map[string]Backend),
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// Register adds a backend. The first registration becomes the default unless
// a later one is registered with isDefault set.
func (r *Registry) Register(b Backend, isDefault bool) {
	cfg := b.Config()

	r.mu.Lock()
	if _, exists := r.backends[cfg.Name]; !exists {
		r.order = append(r.order, cfg.Name)
	}
	r.backends[cfg.Name] = b
	r.breakers[cfg.Name] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: "backend-" + cfg.Name,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
	})
	if isDefault || r.defaultName == "" {
		r.defaultName = cfg.Name
	}
	r.mu.Unlock()

	slog.Info("registered AI backend", "name", cfg.Name, "provider", cfg.Provider)
}

// Get returns a backend by name, or the default backend when name is empty.
func (r *Registry) Get(name string) Backend {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if name == "" {
		name = r.defaultName
	}
	return r.backends[name]
}

// Default returns the name of the default backend.
func (r *Registry) Default() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultName
}

// SetDefault switches the default backend. Returns false if the name is not
// registered.
func (r *Registry) SetDefault(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.backends[name]; !ok {
		return false
	}
	r.defaultName = name
	return true
}

// Names returns all registered backend names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// AvailableBackends returns the names of backends that currently pass both
// validation and the local rate-limit check. Both states change between
// calls, so nothing is cached.
func (r *Registry) AvailableBackends(ctx context.Context) []string {
	var available []string
	for _, name := range r.Names() {
		b := r.Get(name)
		if ok, _ := b.Validate(ctx); !ok {
			continue
		}
		if !b.CheckRateLimit() {
			continue
		}
		available = append(available, name)
	}
	return available
}

// GenerateWithFallback tries backends in order — the preferred one first (if
// registered), then the default, then every other currently-available backend
// in registration order — and returns the first success. A backend that fails
// validation or its rate-limit check is skipped without consuming quota; any
// other failure moves on to the next candidate.
func (r *Registry) GenerateWithFallback(ctx context.Context, messages []Message, sessionID, preferred string, opts Options) *Result {
	candidates := r.candidateOrder(ctx, preferred)

	for _, name := range candidates {
		b := r.Get(name)
		if b == nil {
			continue
		}

		if ok, msg := b.Validate(ctx); !ok {
			slog.Warn("backend not available", "backend", name, "reason", msg)
			continue
		}
		if !b.CheckRateLimit() {
			slog.Warn("backend rate limit exceeded", "backend", name)
			continue
		}

		res := r.attempt(ctx, name, b, messages, sessionID, opts)
		if res.Success {
			slog.Info("generated response", "backend", name, "tokens", res.TokensUsed)
			return res
		}
		slog.Warn("backend failed", "backend", name, "kind", res.ErrorKind, "error", res.ErrorMessage)
	}

	return &Result{
		Success:      false,
		Backend:      "none",
		ErrorKind:    KindExhausted,
		ErrorMessage: "all available AI backends failed or are rate limited",
	}
}

// candidateOrder builds the fallback sequence for one request.
func (r *Registry) candidateOrder(ctx context.Context, preferred string) []string {
	var candidates []string
	seen := make(map[string]bool)
	add := func(name string) {
		if name != "" && !seen[name] {
			seen[name] = true
			candidates = append(candidates, name)
		}
	}

	if r.Get(preferred) != nil {
		add(preferred)
	}
	add(r.Default())
	for _, name := range r.AvailableBackends(ctx) {
		add(name)
	}
	return candidates
}

// attempt runs one backend's Generate behind its circuit breaker, converting
// panics and open-breaker rejections into failed Results.
func (r *Registry) attempt(ctx context.Context, name string, b Backend, messages []Message, sessionID string, opts Options) *Result {
	r.mu.RLock()
	cb := r.breakers[name]
	r.mu.RUnlock()

	out, err := cb.Execute(func() (interface{}, error) {
		res := safeGenerate(ctx, b, messages, sessionID, opts)
		if !res.Success {
			return res, fmt.Errorf("generation failed: %s", res.ErrorMessage)
		}
		return res, nil
	})

	if res, ok := out.(*Result); ok && res != nil {
		return res
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return failure(b.Config(), KindUnavailable, "circuit breaker open after repeated failures", 0)
	}
	return failure(b.Config(), KindInternal, fmt.Sprintf("backend %s: %v", name, err), 0)
}

// safeGenerate recovers a panicking adapter; a panic counts as that backend's
// failure and never aborts the fallback loop.
func safeGenerate(ctx context.Context, b Backend, messages []Message, sessionID string, opts Options) (res *Result) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("backend panicked", "backend", b.Config().Name, "panic", p)
			res = failure(b.Config(), KindInternal, fmt.Sprintf("backend panic: %v", p), 0)
		}
	}()
	return b.Generate(ctx, messages, sessionID, opts)
}

// Status reports every registered backend's health for diagnostics.
func (r *Registry) Status(ctx context.Context) SystemStatus {
	status := SystemStatus{
		TotalBackends:  len(r.Names()),
		DefaultBackend: r.Default(),
		Backends:       make(map[string]BackendStatus),
	}

	for _, name := range r.Names() {
		b := r.Get(name)
		ok, msg := b.Validate(ctx)

		r.mu.RLock()
		cb := r.breakers[name]
		r.mu.RUnlock()

		s := BackendStatus{
			Info:            b.Info(),
			Available:       ok,
			WithinRateLimit: b.CheckRateLimit(),
			BreakerState:    cb.State().String(),
		}
		if !ok {
			s.Error = msg
		}
		status.Backends[name] = s
	}
	return status
}
