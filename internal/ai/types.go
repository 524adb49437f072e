package ai

import "time"

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single turn of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Provider identifies the upstream service a backend talks to.
type Provider string

const (
	ProviderGemini      Provider = "gemini"
	ProviderHuggingFace Provider = "huggingface"
)

// BackendConfig is the static descriptor for one backend.
// It is immutable after construction.
type BackendConfig struct {
	Name        string
	Provider    Provider
	ModelID     string
	Description string

	MaxTokens   int
	Temperature float64
	TopP        float64
	TopK        int

	// Free-tier accounting: DailyLimit requests per rolling day, plus at most
	// WindowLimit requests inside the provider-specific sliding Window.
	DailyLimit  int
	WindowLimit int
	Window      time.Duration

	RequiresAPIKey bool
}

// Options tunes a single generation request. A nil Temperature means
// "use the backend's configured default".
type Options struct {
	Temperature *float64
	MaxTokens   int
}

// Result is the normalized outcome of one generation attempt. It is created
// fresh per request and never mutated after being returned.
type Result struct {
	Success      bool      `json:"success"`
	Content      string    `json:"content"`
	ResponseTime float64   `json:"response_time"` // seconds
	Backend      string    `json:"backend"`
	Provider     Provider  `json:"provider,omitempty"`
	TokensUsed   int       `json:"tokens_used"`
	FinishReason string    `json:"finish_reason,omitempty"`
	ErrorKind    ErrorKind `json:"error_kind,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
}

// BackendInfo is a point-in-time snapshot of a backend's configuration
// and local usage counters.
type BackendInfo struct {
	Name               string   `json:"name"`
	Provider           Provider `json:"provider"`
	ModelID            string   `json:"model_id"`
	Description        string   `json:"description"`
	MaxTokens          int      `json:"max_tokens"`
	Temperature        float64  `json:"temperature"`
	UsageCount         int      `json:"usage_count"`
	RateLimitRemaining int      `json:"rate_limit_remaining"`
	WindowUsage        int      `json:"window_usage"`
	WindowLimit        int      `json:"window_limit"`
	APIKeyConfigured   bool     `json:"api_key_configured"`
}
