package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Gemini API request/response types (unexported).

type geminiRequest struct {
	Contents         []geminiContent    `json:"contents"`
	GenerationConfig *geminiGenConfig   `json:"generationConfig,omitempty"`
	SafetySettings   []geminiSafetyRule `json:"safetySettings,omitempty"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenConfig struct {
	Temperature     float64 `json:"temperature"`
	TopP            float64 `json:"topP,omitempty"`
	TopK            int     `json:"topK,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type geminiSafetyRule struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

type geminiResponse struct {
	Candidates    []geminiCandidate `json:"candidates"`
	UsageMetadata *geminiUsage      `json:"usageMetadata,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
}

type geminiUsage struct {
	TotalTokenCount int `json:"totalTokenCount"`
}

type geminiError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

var geminiSafetySettings = []geminiSafetyRule{
	{Category: "HARM_CATEGORY_HARASSMENT", Threshold: "BLOCK_MEDIUM_AND_ABOVE"},
	{Category: "HARM_CATEGORY_HATE_SPEECH", Threshold: "BLOCK_MEDIUM_AND_ABOVE"},
	{Category: "HARM_CATEGORY_SEXUALLY_EXPLICIT", Threshold: "BLOCK_MEDIUM_AND_ABOVE"},
	{Category: "HARM_CATEGORY_DANGEROUS_CONTENT", Threshold: "BLOCK_MEDIUM_AND_ABOVE"},
}

// GeminiBackend implements Backend for Google's Gemini API.
type GeminiBackend struct {
	cfg        BackendConfig
	apiKey     string
	baseURL    string
	httpClient *http.Client
	quota      *quota
}

// GeminiDefaults is the static descriptor for the Gemini free tier:
// 1500 requests per day with a 15-request-per-minute sliding window.
func GeminiDefaults() BackendConfig {
	return BackendConfig{
		Name:           "Gemini Pro",
		Provider:       ProviderGemini,
		ModelID:        "gemini-1.5-flash",
		Description:    "Google's Gemini Flash - Fast and capable conversational AI",
		MaxTokens:      2048,
		Temperature:    0.7,
		TopP:           0.9,
		TopK:           40,
		DailyLimit:     1500,
		WindowLimit:    15,
		Window:         time.Minute,
		RequiresAPIKey: true,
	}
}

// NewGeminiBackend creates a Gemini backend. The zero-value fields of cfg are
// filled from GeminiDefaults.
func NewGeminiBackend(apiKey string, cfg BackendConfig, timeout time.Duration) *GeminiBackend {
	def := GeminiDefaults()
	if cfg.Name == "" {
		cfg = def
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &GeminiBackend{
		cfg:        cfg,
		apiKey:     apiKey,
		baseURL:    defaultGeminiBaseURL,
		httpClient: &http.Client{Timeout: timeout},
		quota:      newQuota(cfg.Name, cfg),
	}
}

func (g *GeminiBackend) Config() BackendConfig { return g.cfg }

func (g *GeminiBackend) CheckRateLimit() bool { return g.quota.allow() }

func (g *GeminiBackend) UpdateUsage(tokens int) { g.quota.consume(tokens) }

func (g *GeminiBackend) Info() BackendInfo {
	used, remaining, windowUsage := g.quota.usage()
	return BackendInfo{
		Name:               g.cfg.Name,
		Provider:           g.cfg.Provider,
		ModelID:            g.cfg.ModelID,
		Description:        g.cfg.Description,
		MaxTokens:          g.cfg.MaxTokens,
		Temperature:        g.cfg.Temperature,
		UsageCount:         used,
		RateLimitRemaining: remaining,
		WindowUsage:        windowUsage,
		WindowLimit:        g.cfg.WindowLimit,
		APIKeyConfigured:   g.apiKey != "",
	}
}

// Validate checks the API key with a lightweight GET on the model resource.
func (g *GeminiBackend) Validate(ctx context.Context) (bool, string) {
	if g.apiKey == "" {
		return false, "Gemini API key not configured — set GEMINI_API_KEY"
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	url := fmt.Sprintf("%s/models/%s?key=%s", g.baseURL, g.cfg.ModelID, g.apiKey)
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return false, fmt.Sprintf("create request: %v", err)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return false, fmt.Sprintf("Gemini API connection failed: %v", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case 200:
		return true, "Gemini API connection successful"
	case 401, 403:
		return false, "invalid Gemini API key"
	default:
		return false, fmt.Sprintf("Gemini API error: %d", resp.StatusCode)
	}
}

func (g *GeminiBackend) Generate(ctx context.Context, messages []Message, sessionID string, opts Options) *Result {
	start := time.Now()

	if !g.CheckRateLimit() {
		return failure(g.cfg, KindRateLimited, "rate limit exceeded for Gemini API", time.Since(start))
	}

	body := geminiRequest{
		Contents: []geminiContent{{
			Parts: []geminiPart{{Text: flattenForGemini(messages)}},
		}},
		GenerationConfig: &geminiGenConfig{
			Temperature:     resolveTemperature(g.cfg, opts),
			TopP:            g.cfg.TopP,
			TopK:            g.cfg.TopK,
			MaxOutputTokens: resolveMaxTokens(g.cfg, opts),
		},
		SafetySettings: geminiSafetySettings,
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return failure(g.cfg, KindInternal, fmt.Sprintf("marshal request: %v", err), time.Since(start))
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", g.baseURL, g.cfg.ModelID, g.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(jsonData))
	if err != nil {
		return failure(g.cfg, KindInternal, fmt.Sprintf("create request: %v", err), time.Since(start))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return failure(g.cfg, classifyTransportError(err), fmt.Sprintf("Gemini API request failed: %v", err), time.Since(start))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	elapsed := time.Since(start)
	if err != nil {
		return failure(g.cfg, KindNetwork, fmt.Sprintf("read response: %v", err), elapsed)
	}

	// The provider saw this request; it counts against the free tier whether
	// or not it produced a usable answer.
	tokensSpent := 0
	defer func() { g.UpdateUsage(tokensSpent) }()

	if resp.StatusCode != 200 {
		msg := fmt.Sprintf("Gemini API error %d", resp.StatusCode)
		var apiErr geminiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error.Message != "" {
			msg += ": " + apiErr.Error.Message
		}
		return failure(g.cfg, classifyStatus(resp.StatusCode), msg, elapsed)
	}

	var genResp geminiResponse
	if err := json.Unmarshal(respBody, &genResp); err != nil {
		return failure(g.cfg, KindBadFormat, fmt.Sprintf("parse Gemini response: %v", err), elapsed)
	}
	if len(genResp.Candidates) == 0 || len(genResp.Candidates[0].Content.Parts) == 0 {
		return failure(g.cfg, KindBadFormat, "unexpected response format from Gemini API", elapsed)
	}

	candidate := genResp.Candidates[0]
	content := strings.TrimSpace(candidate.Content.Parts[0].Text)
	finishReason := candidate.FinishReason
	if finishReason == "" {
		finishReason = "STOP"
	}

	if genResp.UsageMetadata != nil {
		tokensSpent = genResp.UsageMetadata.TotalTokenCount
	}
	if tokensSpent == 0 {
		tokensSpent = EstimateTokens(content)
	}

	return &Result{
		Success:      true,
		Content:      content,
		ResponseTime: elapsed.Seconds(),
		Backend:      g.cfg.Name,
		Provider:     g.cfg.Provider,
		TokensUsed:   tokensSpent,
		FinishReason: finishReason,
	}
}

// flattenForGemini concatenates conversation turns into a single prompt.
// System turns are emitted bare at the top; user/assistant turns carry
// Human:/Assistant: labels, with a trailing cue for the next assistant turn.
func flattenForGemini(messages []Message) string {
	if len(messages) == 0 {
		return "Hello! How can I help you today?"
	}

	var parts []string
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			parts = append(parts, m.Content)
		case RoleUser:
			parts = append(parts, "Human: "+m.Content)
		default:
			parts = append(parts, "Assistant: "+m.Content)
		}
	}
	parts = append(parts, "Assistant:")
	return strings.Join(parts, "\n\n")
}
