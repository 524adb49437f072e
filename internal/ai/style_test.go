package ai

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStyle(t *testing.T) {
	tests := []struct {
		in   string
		want Style
	}{
		{"friendly", StyleFriendly},
		{" Professional ", StyleProfessional},
		{"CREATIVE", StyleCreative},
		{"", StyleHelpful},
		{"bogus", StyleHelpful},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseStyle(tt.in), "input %q", tt.in)
	}
}

func TestApplyStyleInjectsOnlyAtConversationStart(t *testing.T) {
	first := []Message{{Role: RoleUser, Content: "Hi there"}}

	out := ApplyStyle(first, StyleFriendly)
	assert.Len(t, out, 2)
	assert.Equal(t, RoleSystem, out[0].Role)
	assert.Equal(t, StyleOf(StyleFriendly).PromptPrefix, out[0].Content)
	assert.Equal(t, "Hi there", out[1].Content)

	// Ongoing conversations pass through unchanged.
	ongoing := []Message{
		{Role: RoleUser, Content: "Hi"},
		{Role: RoleAssistant, Content: "Hello!"},
		{Role: RoleUser, Content: "Tell me more"},
	}
	assert.Equal(t, ongoing, ApplyStyle(ongoing, StyleFriendly))

	// Even an empty conversation gets the system prompt.
	empty := ApplyStyle(nil, StyleFriendly)
	require.Len(t, empty, 1)
	assert.Equal(t, RoleSystem, empty[0].Role)
}

func TestPostProcessProfessionalReplacements(t *testing.T) {
	got := PostProcess("yeah, I'm gonna check and you kinda need this", StyleProfessional)
	assert.Equal(t, "yes, I'm going to check and you somewhat need this.", got)
}

func TestPostProcessStripsLeakedPrompt(t *testing.T) {
	leaked := "You are a helpful AI assistant focused on providing practical solutions.\nHere is the actual answer."
	got := PostProcess(leaked, StyleHelpful)
	assert.Equal(t, "Here is the actual answer.", got)

	// Multiple leaked lines are all dropped.
	doubled := "You are helpful.\nYou are concise.\nReal content here."
	assert.Equal(t, "Real content here.", PostProcess(doubled, StyleHelpful))
}

func TestPostProcessFriendlyCloser(t *testing.T) {
	long := strings.Repeat("This is a substantial answer about the topic at hand", 2)
	got := PostProcess(long, StyleFriendly)

	hasMarker := false
	lower := strings.ToLower(got)
	for _, m := range friendlyMarkers {
		if strings.Contains(lower, m) {
			hasMarker = true
		}
	}
	assert.True(t, hasMarker, "long friendly response should end with a closer: %q", got)

	// Short responses are left alone.
	assert.Equal(t, "Sure.", PostProcess("Sure", StyleFriendly))

	// Responses that already sound friendly are not padded.
	already := "This is a long and detailed explanation of the mechanism involved. I hope this helps!"
	assert.Equal(t, already, PostProcess(already, StyleFriendly))
}

func TestPostProcessDedupesRepeatedSentences(t *testing.T) {
	got := PostProcess("The cache is warm. The cache is warm. Latency drops.", StyleHelpful)
	assert.Equal(t, "The cache is warm. Latency drops.", got)
}

func TestPostProcessTerminalPunctuation(t *testing.T) {
	assert.Equal(t, "It works.", PostProcess("It works", StyleHelpful))
	assert.Equal(t, "Does it work?", PostProcess("Does it work?", StyleHelpful))
	assert.Equal(t, "", PostProcess("", StyleHelpful))
}

func TestPostProcessIdempotent(t *testing.T) {
	inputs := []string{
		"yeah, the fix is gonna land tomorrow",
		strings.Repeat("A long friendly explanation of everything involved here", 3),
		"You are a creative AI assistant.\n" + strings.Repeat("An imaginative take on the problem at hand", 4),
		"Short answer",
		"The cache is warm. The cache is warm. Latency drops",
	}
	for _, style := range []Style{StyleFriendly, StyleProfessional, StyleCreative, StyleAnalytical, StyleCasual, StyleHelpful} {
		for _, in := range inputs {
			once := PostProcess(in, style)
			twice := PostProcess(once, style)
			assert.Equal(t, once, twice, "style %s input %q", style, in)
		}
	}
}
