package ai

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSelector struct {
	choice string
	calls  int
}

func (f *fakeSelector) OptimalBackend(style string, available []string) string {
	f.calls++
	return f.choice
}

func userMessage(content string) []Message {
	return []Message{{Role: RoleUser, Content: content}}
}

func TestServiceConsultsSelectorWhenNoPreference(t *testing.T) {
	r := NewRegistry()
	def := newFakeBackend("default")
	learned := newFakeBackend("learned")
	r.Register(def, true)
	r.Register(learned, false)

	sel := &fakeSelector{choice: "learned"}
	svc := NewService(r, sel)

	res := svc.GenerateResponse(context.Background(), userMessage("hi"), "s1", StyleHelpful, "", nil)

	require.True(t, res.Success)
	assert.Equal(t, "learned", res.Backend)
	assert.Equal(t, 1, sel.calls)
}

func TestServiceExplicitPreferenceBypassesSelector(t *testing.T) {
	r := NewRegistry()
	def := newFakeBackend("default")
	r.Register(def, true)

	sel := &fakeSelector{choice: "default"}
	svc := NewService(r, sel)

	res := svc.GenerateResponse(context.Background(), userMessage("hi"), "s1", StyleHelpful, "default", nil)

	require.True(t, res.Success)
	assert.Equal(t, 0, sel.calls)
}

func TestServiceAppliesStyleAndTemperature(t *testing.T) {
	r := NewRegistry()
	b := newFakeBackend("default")
	r.Register(b, true)
	svc := NewService(r, nil)

	svc.GenerateResponse(context.Background(), userMessage("hi"), "s1", StyleCreative, "", nil)

	// The single-turn conversation gets the style's system prompt.
	require.Len(t, b.lastMsgs, 2)
	assert.Equal(t, RoleSystem, b.lastMsgs[0].Role)
	require.NotNil(t, b.lastOpts.Temperature)
	assert.Equal(t, StyleOf(StyleCreative).Temperature, *b.lastOpts.Temperature)

	// An explicit override beats the style default.
	override := 0.2
	svc.GenerateResponse(context.Background(), userMessage("hi"), "s1", StyleCreative, "", &override)
	require.NotNil(t, b.lastOpts.Temperature)
	assert.Equal(t, 0.2, *b.lastOpts.Temperature)
}

func TestServicePostProcessesSuccessfulResponses(t *testing.T) {
	r := NewRegistry()
	b := newFakeBackend("default")
	b.result = &Result{Success: true, Content: "yeah it works", Backend: "default"}
	r.Register(b, true)
	svc := NewService(r, nil)

	res := svc.GenerateResponse(context.Background(), userMessage("hi"), "s1", StyleProfessional, "", nil)

	require.True(t, res.Success)
	assert.Equal(t, "yes it works.", res.Content)
	// The backend's own result is not mutated.
	assert.Equal(t, "yeah it works", b.result.Content)
}

func TestServiceAnalytics(t *testing.T) {
	r := NewRegistry()
	b := newFakeBackend("default")
	r.Register(b, true)
	svc := NewService(r, nil)

	svc.GenerateResponse(context.Background(), userMessage("one"), "s1", StyleFriendly, "", nil)
	svc.GenerateResponse(context.Background(), userMessage("two"), "s1", StyleHelpful, "", nil)

	b.result = failedResult("default", KindUnavailable)
	svc.GenerateResponse(context.Background(), userMessage("three"), "s1", StyleHelpful, "", nil)

	a := svc.Analytics()
	assert.Equal(t, int64(3), a.TotalRequests)
	assert.Equal(t, int64(2), a.SuccessfulRequests)
	assert.Equal(t, int64(1), a.FailedRequests)
	assert.Equal(t, int64(2), a.BackendUsage["default"])
	assert.Equal(t, int64(1), a.StyleUsage["friendly"])
	assert.Equal(t, int64(2), a.StyleUsage["helpful"])
	assert.InDelta(t, 66.67, a.SuccessRate, 0.01)
	assert.Equal(t, "degraded", a.ServiceHealth)
}

func TestServiceHealthyAboveThreshold(t *testing.T) {
	r := NewRegistry()
	b := newFakeBackend("default")
	r.Register(b, true)
	svc := NewService(r, nil)

	for i := 0; i < 5; i++ {
		svc.GenerateResponse(context.Background(), userMessage("hi"), "s1", StyleHelpful, "", nil)
	}

	a := svc.Analytics()
	assert.Equal(t, float64(100), a.SuccessRate)
	assert.Equal(t, "healthy", a.ServiceHealth)
}

func TestServiceNeverReturnsNil(t *testing.T) {
	r := NewRegistry()
	svc := NewService(r, nil)

	// No backends registered at all.
	res := svc.GenerateResponse(context.Background(), userMessage("hi"), "s1", StyleHelpful, "", nil)
	require.NotNil(t, res)
	assert.False(t, res.Success)
	assert.Equal(t, KindExhausted, res.ErrorKind)
}
