package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHF(t *testing.T, cfg BackendConfig, handler http.HandlerFunc) *HFBackend {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	h := NewHFBackend("test-token", cfg, 0)
	h.baseURL = srv.URL
	return h
}

func dialoGPTLarge() BackendConfig {
	return HuggingFaceModels(true)[0]
}

func TestHFGenerateSuccess(t *testing.T) {
	h := newTestHF(t, dialoGPTLarge(), func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode([]hfGeneration{{GeneratedText: "Nice to meet you"}})
	})

	res := h.Generate(context.Background(), []Message{{Role: RoleUser, Content: "Hello"}}, "s1", Options{})

	require.True(t, res.Success, "error: %s", res.ErrorMessage)
	assert.Equal(t, "Nice to meet you.", res.Content)
	assert.Equal(t, "DialoGPT Large", res.Backend)
	assert.Equal(t, ProviderHuggingFace, res.Provider)
	assert.Greater(t, res.TokensUsed, 0)
}

func TestHFSendsOnlyLatestUserTurn(t *testing.T) {
	var gotReq hfRequest
	h := newTestHF(t, dialoGPTLarge(), func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode([]hfGeneration{{GeneratedText: "ok"}})
	})

	h.Generate(context.Background(), []Message{
		{Role: RoleSystem, Content: "Be nice."},
		{Role: RoleUser, Content: "First question"},
		{Role: RoleAssistant, Content: "First answer"},
		{Role: RoleUser, Content: "Second question"},
	}, "s1", Options{})

	assert.Equal(t, "Second question", gotReq.Inputs)
	assert.Equal(t, 50256, gotReq.Parameters.PadTokenID)
}

func TestHFModelLoading(t *testing.T) {
	h := newTestHF(t, dialoGPTLarge(), func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(503)
		w.Write([]byte(`{"error":"loading"}`))
	})

	res := h.Generate(context.Background(), []Message{{Role: RoleUser, Content: "Hi"}}, "s1", Options{})

	require.False(t, res.Success)
	assert.Equal(t, KindUnavailable, res.ErrorKind)
	assert.Contains(t, res.ErrorMessage, "loading")
}

func TestHFErrorClassification(t *testing.T) {
	tests := []struct {
		status int
		kind   ErrorKind
	}{
		{401, KindAuth},
		{429, KindRateLimited},
		{500, KindUnavailable},
	}
	for _, tt := range tests {
		h := newTestHF(t, dialoGPTLarge(), func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
			w.Write([]byte(`{"error":"scripted"}`))
		})

		res := h.Generate(context.Background(), []Message{{Role: RoleUser, Content: "Hi"}}, "s1", Options{})

		require.False(t, res.Success, "status %d", tt.status)
		assert.Equal(t, tt.kind, res.ErrorKind, "status %d", tt.status)
	}
}

func TestHFMalformedResponse(t *testing.T) {
	h := newTestHF(t, dialoGPTLarge(), func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"not":"a list"}`))
	})

	res := h.Generate(context.Background(), []Message{{Role: RoleUser, Content: "Hi"}}, "s1", Options{})

	require.False(t, res.Success)
	assert.Equal(t, KindBadFormat, res.ErrorKind)
}

func TestHFTokenWidensHourlyWindow(t *testing.T) {
	withToken := HuggingFaceModels(true)
	withoutToken := HuggingFaceModels(false)

	require.Len(t, withToken, 3)
	for i := range withToken {
		assert.Equal(t, 1000, withToken[i].WindowLimit)
		assert.Equal(t, 100, withoutToken[i].WindowLimit)
	}
}

func TestLatestUserUtterance(t *testing.T) {
	assert.Equal(t, "Hello", latestUserUtterance(nil))
	assert.Equal(t, "Hello", latestUserUtterance([]Message{{Role: RoleAssistant, Content: "Hi"}}))
	assert.Equal(t, "last", latestUserUtterance([]Message{
		{Role: RoleUser, Content: "first"},
		{Role: RoleAssistant, Content: "reply"},
		{Role: RoleUser, Content: "last"},
	}))
}

func TestCleanHFResponse(t *testing.T) {
	tests := []struct {
		name      string
		generated string
		input     string
		want      string
	}{
		{
			name:      "strips echoed input",
			generated: "How are you?I'm doing well",
			input:     "How are you?",
			want:      "I'm doing well.",
		},
		{
			name:      "drops repeated sentences",
			generated: "I like that. I like that. Tell me more",
			input:     "",
			want:      "I like that. Tell me more.",
		},
		{
			name:      "empty output falls back",
			generated: "",
			input:     "",
			want:      "I understand. How can I help you further?",
		},
		{
			name:      "echo only falls back",
			generated: "Hello",
			input:     "Hello",
			want:      "I understand. How can I help you further?",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cleanHFResponse(tt.generated, tt.input))
		})
	}
}

func TestBuildPayloadPerModelFamily(t *testing.T) {
	configs := HuggingFaceModels(true)

	dialoGPT := NewHFBackend("", configs[0], 0).buildPayload("hi there", Options{})
	assert.NotZero(t, dialoGPT.Parameters.MaxLength)
	assert.Equal(t, 50256, dialoGPT.Parameters.PadTokenID)
	require.NotNil(t, dialoGPT.Parameters.ReturnFullText)
	assert.False(t, *dialoGPT.Parameters.ReturnFullText)

	blender := NewHFBackend("", configs[1], 0).buildPayload("hi there", Options{})
	assert.Equal(t, 512, blender.Parameters.MaxLength)
	assert.Zero(t, blender.Parameters.PadTokenID)

	generic := NewHFBackend("", BackendConfig{Name: "x", ModelID: "some/other-model", MaxTokens: 64, Temperature: 0.5}, 0).buildPayload("hi", Options{})
	assert.Equal(t, 64, generic.Parameters.MaxNewTokens)
	assert.Zero(t, generic.Parameters.MaxLength)
}
