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

const defaultHFBaseURL = "https://api-inference.huggingface.co/models"

// Hugging Face Inference API types (unexported). The API returns a list of
// generation objects; error payloads carry a single "error" field.

type hfParameters struct {
	MaxLength      int     `json:"max_length,omitempty"`
	MaxNewTokens   int     `json:"max_new_tokens,omitempty"`
	Temperature    float64 `json:"temperature,omitempty"`
	TopP           float64 `json:"top_p,omitempty"`
	DoSample       bool    `json:"do_sample"`
	ReturnFullText *bool   `json:"return_full_text,omitempty"`
	PadTokenID     int     `json:"pad_token_id,omitempty"`
}

type hfRequest struct {
	Inputs     string       `json:"inputs"`
	Parameters hfParameters `json:"parameters"`
}

type hfGeneration struct {
	GeneratedText string `json:"generated_text"`
}

type hfError struct {
	Error string `json:"error"`
}

// HFBackend implements Backend for Hugging Face's free Inference API.
type HFBackend struct {
	cfg        BackendConfig
	apiToken   string
	baseURL    string
	httpClient *http.Client
	quota      *quota
}

// HuggingFaceModels returns the static descriptors for the supported hosted
// models. The per-hour window is wider when an API token is configured.
func HuggingFaceModels(hasToken bool) []BackendConfig {
	hourly := 100
	if hasToken {
		hourly = 1000
	}
	return []BackendConfig{
		{
			Name:        "DialoGPT Large",
			Provider:    ProviderHuggingFace,
			ModelID:     "microsoft/DialoGPT-large",
			Description: "Microsoft's conversational AI - Good for dialogue",
			MaxTokens:   1024,
			Temperature: 0.7,
			TopP:        0.9,
			DailyLimit:  1000,
			WindowLimit: hourly,
			Window:      time.Hour,
		},
		{
			Name:        "BlenderBot 400M",
			Provider:    ProviderHuggingFace,
			ModelID:     "facebook/blenderbot-400M-distill",
			Description: "Facebook's BlenderBot - Engaging conversations",
			MaxTokens:   512,
			Temperature: 0.8,
			TopP:        0.9,
			DailyLimit:  1000,
			WindowLimit: hourly,
			Window:      time.Hour,
		},
		{
			Name:        "DialoGPT Medium",
			Provider:    ProviderHuggingFace,
			ModelID:     "microsoft/DialoGPT-medium",
			Description: "Microsoft's medium-size conversational model",
			MaxTokens:   1024,
			Temperature: 0.7,
			TopP:        0.9,
			DailyLimit:  1000,
			WindowLimit: hourly,
			Window:      time.Hour,
		},
	}
}

// NewHFBackend creates a Hugging Face backend for one hosted model. The API
// token is optional; without one the free tier allows far fewer requests.
func NewHFBackend(apiToken string, cfg BackendConfig, timeout time.Duration) *HFBackend {
	if timeout <= 0 {
		timeout = 60 * time.Second // hosted models can be slow
	}
	return &HFBackend{
		cfg:        cfg,
		apiToken:   apiToken,
		baseURL:    defaultHFBaseURL,
		httpClient: &http.Client{Timeout: timeout},
		quota:      newQuota(cfg.Name, cfg),
	}
}

func (h *HFBackend) Config() BackendConfig { return h.cfg }

func (h *HFBackend) CheckRateLimit() bool { return h.quota.allow() }

func (h *HFBackend) UpdateUsage(tokens int) { h.quota.consume(tokens) }

func (h *HFBackend) Info() BackendInfo {
	used, remaining, windowUsage := h.quota.usage()
	return BackendInfo{
		Name:               h.cfg.Name,
		Provider:           h.cfg.Provider,
		ModelID:            h.cfg.ModelID,
		Description:        h.cfg.Description,
		MaxTokens:          h.cfg.MaxTokens,
		Temperature:        h.cfg.Temperature,
		UsageCount:         used,
		RateLimitRemaining: remaining,
		WindowUsage:        windowUsage,
		WindowLimit:        h.cfg.WindowLimit,
		APIKeyConfigured:   h.apiToken != "",
	}
}

// Validate probes the hosted model with a tiny generation request. A 503
// means the model is still loading on Hugging Face's side.
func (h *HFBackend) Validate(ctx context.Context) (bool, string) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	full := false
	payload := hfRequest{
		Inputs: "Hello",
		Parameters: hfParameters{
			MaxLength:      50,
			Temperature:    0.7,
			ReturnFullText: &full,
		},
	}
	jsonData, _ := json.Marshal(payload)

	req, err := http.NewRequestWithContext(ctx, "POST", h.modelEndpoint(), bytes.NewReader(jsonData))
	if err != nil {
		return false, fmt.Sprintf("create request: %v", err)
	}
	h.setHeaders(req)

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return false, fmt.Sprintf("connection failed: %v", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case 200:
		return true, "Hugging Face model available"
	case 503:
		return false, "model is loading, please try again in a few minutes"
	case 429:
		return false, "rate limit exceeded"
	case 401:
		return false, "invalid Hugging Face API token"
	default:
		return false, fmt.Sprintf("model unavailable: HTTP %d", resp.StatusCode)
	}
}

func (h *HFBackend) Generate(ctx context.Context, messages []Message, sessionID string, opts Options) *Result {
	start := time.Now()

	if !h.CheckRateLimit() {
		return failure(h.cfg, KindRateLimited, "rate limit exceeded for Hugging Face API", time.Since(start))
	}

	input := latestUserUtterance(messages)
	payload := h.buildPayload(input, opts)

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return failure(h.cfg, KindInternal, fmt.Sprintf("marshal request: %v", err), time.Since(start))
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", h.modelEndpoint(), bytes.NewReader(jsonData))
	if err != nil {
		return failure(h.cfg, KindInternal, fmt.Sprintf("create request: %v", err), time.Since(start))
	}
	h.setHeaders(httpReq)

	resp, err := h.httpClient.Do(httpReq)
	if err != nil {
		return failure(h.cfg, classifyTransportError(err), fmt.Sprintf("Hugging Face API request failed: %v", err), time.Since(start))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	elapsed := time.Since(start)
	if err != nil {
		return failure(h.cfg, KindNetwork, fmt.Sprintf("read response: %v", err), elapsed)
	}

	tokensSpent := 0
	defer func() { h.UpdateUsage(tokensSpent) }()

	if resp.StatusCode != 200 {
		var msg string
		switch resp.StatusCode {
		case 503:
			msg = "model is loading, please try again later"
		case 429:
			msg = "rate limit exceeded"
		default:
			var apiErr hfError
			if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error != "" {
				msg = "API error: " + apiErr.Error
			} else {
				msg = fmt.Sprintf("HTTP %d: %.200s", resp.StatusCode, string(respBody))
			}
		}
		return failure(h.cfg, classifyStatus(resp.StatusCode), msg, elapsed)
	}

	var generations []hfGeneration
	if err := json.Unmarshal(respBody, &generations); err != nil || len(generations) == 0 {
		return failure(h.cfg, KindBadFormat, "unexpected response format from Hugging Face", elapsed)
	}

	content := cleanHFResponse(generations[0].GeneratedText, input)
	tokensSpent = EstimateTokens(content)

	return &Result{
		Success:      true,
		Content:      content,
		ResponseTime: elapsed.Seconds(),
		Backend:      h.cfg.Name,
		Provider:     h.cfg.Provider,
		TokensUsed:   tokensSpent,
	}
}

func (h *HFBackend) modelEndpoint() string {
	return h.baseURL + "/" + h.cfg.ModelID
}

func (h *HFBackend) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if h.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+h.apiToken)
	}
}

// buildPayload shapes parameters per model family; DialoGPT and BlenderBot
// expect different knobs.
func (h *HFBackend) buildPayload(input string, opts Options) hfRequest {
	temperature := resolveTemperature(h.cfg, opts)
	maxTokens := resolveMaxTokens(h.cfg, opts)
	full := false

	switch {
	case strings.Contains(h.cfg.ModelID, "DialoGPT"):
		return hfRequest{
			Inputs: input,
			Parameters: hfParameters{
				MaxLength:      len(strings.Fields(input)) + maxTokens,
				Temperature:    temperature,
				DoSample:       true,
				TopP:           h.cfg.TopP,
				ReturnFullText: &full,
				PadTokenID:     50256,
			},
		}
	case strings.Contains(h.cfg.ModelID, "blenderbot"):
		return hfRequest{
			Inputs: input,
			Parameters: hfParameters{
				MaxLength:   maxTokens,
				Temperature: temperature,
				DoSample:    true,
			},
		}
	default:
		return hfRequest{
			Inputs: input,
			Parameters: hfParameters{
				MaxNewTokens:   maxTokens,
				Temperature:    temperature,
				DoSample:       true,
				ReturnFullText: &full,
			},
		}
	}
}

// latestUserUtterance extracts the most recent user turn. The hosted models
// here are effectively stateless and degrade badly on long concatenated
// context, so the adapter sends only the last thing the user said.
func latestUserUtterance(messages []Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser {
			return messages[i].Content
		}
	}
	return "Hello"
}

// cleanHFResponse strips an echoed input prefix, drops exact repeated
// sentences, and guarantees terminal punctuation. Hosted completion models
// frequently echo and repeat themselves.
func cleanHFResponse(generated, input string) string {
	generated = strings.TrimSpace(strings.TrimPrefix(generated, input))

	sentences := strings.Split(generated, ".")
	var unique []string
	seen := make(map[string]bool)
	for _, s := range sentences {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			unique = append(unique, s)
		}
	}

	cleaned := strings.Join(unique, ". ")
	if cleaned != "" && !strings.HasSuffix(cleaned, ".") {
		cleaned += "."
	}
	if cleaned == "" {
		return "I understand. How can I help you further?"
	}
	return cleaned
}
