package ai

import (
	"context"
	"time"
)

// Backend is one AI provider integration. Implementations own their wire
// format and conversation flattening, check their local rate limit before any
// network call, and report failures as data on the Result rather than as
// returned errors — the registry decides what to do with a failed attempt.
type Backend interface {
	// Generate produces one assistant turn for the given conversation.
	Generate(ctx context.Context, messages []Message, sessionID string, opts Options) *Result

	// Validate is a cheap liveness/credential check used to exclude dead
	// backends before attempting generation.
	Validate(ctx context.Context) (bool, string)

	// CheckRateLimit reports whether both the daily budget and the sliding
	// sub-daily window permit another request.
	CheckRateLimit() bool

	// UpdateUsage records one permitted request against local quotas.
	UpdateUsage(tokens int)

	// Info snapshots configuration and usage counters.
	Info() BackendInfo

	// Config returns the immutable static descriptor.
	Config() BackendConfig
}

// failure builds a failed Result for a backend.
func failure(cfg BackendConfig, kind ErrorKind, msg string, elapsed time.Duration) *Result {
	return &Result{
		Success:      false,
		Backend:      cfg.Name,
		Provider:     cfg.Provider,
		ResponseTime: elapsed.Seconds(),
		ErrorKind:    kind,
		ErrorMessage: msg,
	}
}

// resolveTemperature picks the per-request override when present, otherwise
// the backend default.
func resolveTemperature(cfg BackendConfig, opts Options) float64 {
	if opts.Temperature != nil {
		return *opts.Temperature
	}
	return cfg.Temperature
}

// resolveMaxTokens picks the per-request cap when present, otherwise the
// backend default.
func resolveMaxTokens(cfg BackendConfig, opts Options) int {
	if opts.MaxTokens > 0 {
		return opts.MaxTokens
	}
	return cfg.MaxTokens
}
