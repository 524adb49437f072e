package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parley/internal/ai"
	"parley/internal/config"
	"parley/internal/database"
	"parley/internal/learning"
)

// stubBackend is a canned ai.Backend for handler tests.
type stubBackend struct {
	name    string
	succeed bool
}

func (s *stubBackend) Generate(ctx context.Context, messages []ai.Message, sessionID string, opts ai.Options) *ai.Result {
	if !s.succeed {
		return &ai.Result{Success: false, Backend: s.name, ErrorKind: ai.KindUnavailable, ErrorMessage: "stub down"}
	}
	return &ai.Result{Success: true, Content: "All good", Backend: s.name, TokensUsed: 7, ResponseTime: 0.1}
}

func (s *stubBackend) Validate(ctx context.Context) (bool, string) { return true, "ok" }
func (s *stubBackend) CheckRateLimit() bool                        { return true }
func (s *stubBackend) UpdateUsage(tokens int)                      {}
func (s *stubBackend) Info() ai.BackendInfo                        { return ai.BackendInfo{Name: s.name} }
func (s *stubBackend) Config() ai.BackendConfig {
	return ai.BackendConfig{Name: s.name, Provider: ai.ProviderGemini}
}

func testServer(t *testing.T, succeed bool) (*Server, *http.ServeMux, *database.DB) {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "test.db"), database.DefaultScoring())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	registry := ai.NewRegistry()
	registry.Register(&stubBackend{name: "Gemini Pro", succeed: succeed}, true)

	learner := learning.New(db, time.Minute)
	svc := ai.NewService(registry, learner)

	s := New(config.DefaultConfig(), db, svc, learner)
	mux := http.NewServeMux()
	s.routes(mux)
	return s, mux, db
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestChatHappyPath(t *testing.T) {
	_, mux, db := testServer(t, true)

	w := doJSON(t, mux, "POST", "/api/v1/chat", map[string]any{
		"message": "Hello there",
		"style":   "professional",
	})

	require.Equal(t, 200, w.Code, w.Body.String())
	body := decodeBody(t, w)
	assert.Equal(t, "All good.", body["response"], "responses are post-processed")
	assert.Equal(t, "Gemini Pro", body["backend"])
	assert.Equal(t, "professional", body["style"])
	assert.NotEmpty(t, body["session_id"], "a session id is minted when the client sends none")

	// Both turns are persisted.
	conv, err := db.GetConversationBySession(body["session_id"].(string))
	require.NoError(t, err)
	messages, err := db.GetMessages(conv.ID)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, "user", messages[0].Role)
	assert.Equal(t, "Hello there", messages[0].Content)
	assert.Equal(t, "assistant", messages[1].Role)
	assert.Equal(t, "Hello there", conv.Title)
}

func TestChatResumesSession(t *testing.T) {
	_, mux, db := testServer(t, true)

	first := decodeBody(t, doJSON(t, mux, "POST", "/api/v1/chat", map[string]any{"message": "one"}))
	session := first["session_id"].(string)

	w := doJSON(t, mux, "POST", "/api/v1/chat", map[string]any{"message": "two", "session_id": session})
	require.Equal(t, 200, w.Code)

	conv, err := db.GetConversationBySession(session)
	require.NoError(t, err)
	messages, err := db.GetMessages(conv.ID)
	require.NoError(t, err)
	assert.Len(t, messages, 4)
}

func TestChatValidation(t *testing.T) {
	_, mux, _ := testServer(t, true)

	assert.Equal(t, 400, doJSON(t, mux, "POST", "/api/v1/chat", map[string]any{"message": "   "}).Code)
	assert.Equal(t, 400, doJSON(t, mux, "POST", "/api/v1/chat", map[string]any{"message": "hi", "temperature": 5.0}).Code)

	req := httptest.NewRequest("POST", "/api/v1/chat", bytes.NewBufferString("{broken"))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	assert.Equal(t, 400, w.Code)
}

func TestChatBackendFailure(t *testing.T) {
	_, mux, _ := testServer(t, false)

	w := doJSON(t, mux, "POST", "/api/v1/chat", map[string]any{"message": "hi"})

	require.Equal(t, http.StatusBadGateway, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, string(ai.KindExhausted), body["error_kind"])
	assert.NotEmpty(t, body["session_id"])
}

func TestFeedbackFlow(t *testing.T) {
	_, mux, db := testServer(t, true)

	chat := decodeBody(t, doJSON(t, mux, "POST", "/api/v1/chat", map[string]any{"message": "hi"}))
	session := chat["session_id"].(string)

	w := doJSON(t, mux, "POST", "/api/v1/feedback", map[string]any{
		"session_id":    session,
		"message_id":    chat["message_id"],
		"feedback_type": "rating",
		"rating":        5,
		"backend":       "Gemini Pro",
		"style":         "helpful",
	})

	require.Equal(t, 200, w.Code, w.Body.String())
	body := decodeBody(t, w)
	assert.Equal(t, "recorded", body["status"])

	records, err := db.PerformanceRecords()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 5.0, records[0].AvgRating)
}

func TestFeedbackStrayRatingOnThumbsAccepted(t *testing.T) {
	_, mux, db := testServer(t, true)

	chat := decodeBody(t, doJSON(t, mux, "POST", "/api/v1/chat", map[string]any{"message": "hi"}))

	w := doJSON(t, mux, "POST", "/api/v1/feedback", map[string]any{
		"session_id":    chat["session_id"],
		"feedback_type": "thumbs_up",
		"rating":        9,
		"backend":       "Gemini Pro",
	})

	require.Equal(t, 200, w.Code, w.Body.String())

	records, err := db.PerformanceRecords()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 1, records[0].PositiveCount)
	assert.Equal(t, 3.0, records[0].AvgRating, "the stray rating is dropped, not stored")
}

func TestFeedbackValidation(t *testing.T) {
	_, mux, _ := testServer(t, true)

	tests := []struct {
		name string
		body map[string]any
		code int
	}{
		{"unknown type", map[string]any{"feedback_type": "meh", "backend": "Gemini Pro", "session_id": "x"}, 400},
		{"rating out of range", map[string]any{"feedback_type": "rating", "rating": 9, "backend": "Gemini Pro", "session_id": "x"}, 400},
		{"missing backend", map[string]any{"feedback_type": "thumbs_up", "session_id": "x"}, 400},
		{"missing conversation", map[string]any{"feedback_type": "thumbs_up", "backend": "Gemini Pro"}, 400},
		{"unknown session", map[string]any{"feedback_type": "thumbs_up", "backend": "Gemini Pro", "session_id": "ghost"}, 404},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, doJSON(t, mux, "POST", "/api/v1/feedback", tt.body).Code)
		})
	}
}

func TestModelsAndStylesEndpoints(t *testing.T) {
	_, mux, _ := testServer(t, true)

	w := doJSON(t, mux, "GET", "/api/v1/models", nil)
	require.Equal(t, 200, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, "Gemini Pro", body["default"])

	w = doJSON(t, mux, "GET", "/api/v1/styles", nil)
	require.Equal(t, 200, w.Code)
	styles := decodeBody(t, w)["styles"].(map[string]any)
	assert.Len(t, styles, 6)
}

func TestSetDefaultModel(t *testing.T) {
	s, mux, _ := testServer(t, true)
	s.ai.Registry().Register(&stubBackend{name: "DialoGPT Large", succeed: true}, false)

	w := doJSON(t, mux, "PUT", "/api/v1/models/default", map[string]any{"backend": "DialoGPT Large"})
	require.Equal(t, 200, w.Code)
	assert.Equal(t, "DialoGPT Large", s.ai.Registry().Default())

	assert.Equal(t, 404, doJSON(t, mux, "PUT", "/api/v1/models/default", map[string]any{"backend": "ghost"}).Code)
	assert.Equal(t, 400, doJSON(t, mux, "PUT", "/api/v1/models/default", map[string]any{}).Code)
}

func TestConversationEndpoints(t *testing.T) {
	_, mux, db := testServer(t, true)

	chat := decodeBody(t, doJSON(t, mux, "POST", "/api/v1/chat", map[string]any{"message": "hi"}))
	session := chat["session_id"].(string)
	conv, err := db.GetConversationBySession(session)
	require.NoError(t, err)

	w := doJSON(t, mux, "GET", "/api/v1/conversations", nil)
	require.Equal(t, 200, w.Code)
	list := decodeBody(t, w)["conversations"].([]any)
	assert.Len(t, list, 1)

	w = doJSON(t, mux, "GET", fmt.Sprintf("/api/v1/conversations/%d/messages", conv.ID), nil)
	require.Equal(t, 200, w.Code)
	messages := decodeBody(t, w)["messages"].([]any)
	assert.Len(t, messages, 2)

	w = doJSON(t, mux, "DELETE", fmt.Sprintf("/api/v1/conversations/%d", conv.ID), nil)
	require.Equal(t, 200, w.Code)

	_, err = db.GetConversationBySession(session)
	assert.Error(t, err)

	assert.Equal(t, 400, doJSON(t, mux, "GET", "/api/v1/conversations/abc/messages", nil).Code)
}

func TestAnalyticsAndInsightsEndpoints(t *testing.T) {
	_, mux, _ := testServer(t, true)

	doJSON(t, mux, "POST", "/api/v1/chat", map[string]any{"message": "hi"})

	w := doJSON(t, mux, "GET", "/api/v1/analytics", nil)
	require.Equal(t, 200, w.Code)
	body := decodeBody(t, w)
	service := body["service"].(map[string]any)
	assert.Equal(t, float64(1), service["total_requests"])

	w = doJSON(t, mux, "GET", "/api/v1/insights", nil)
	assert.Equal(t, 200, w.Code)
}

func TestHealthEndpoint(t *testing.T) {
	_, mux, _ := testServer(t, true)

	w := doJSON(t, mux, "GET", "/health", nil)
	require.Equal(t, 200, w.Code)
	assert.Equal(t, "ok", decodeBody(t, w)["status"])
}
