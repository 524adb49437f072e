package ai

import "strings"

// Style is a named personality preset shaping the system prompt and the
// default sampling temperature.
type Style string

const (
	StyleFriendly     Style = "friendly"
	StyleProfessional Style = "professional"
	StyleCreative     Style = "creative"
	StyleAnalytical   Style = "analytical"
	StyleCasual       Style = "casual"
	StyleHelpful      Style = "helpful"
)

// StyleConfig is the static record behind one conversation style.
type StyleConfig struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	PromptPrefix string   `json:"-"`
	Temperature  float64  `json:"temperature"`
	Traits       []string `json:"personality_traits"`
}

// styleTable is loaded once and never mutated.
var styleTable = map[Style]StyleConfig{
	StyleFriendly: {
		Name:         "Friendly Assistant",
		Description:  "Warm, approachable, and encouraging",
		PromptPrefix: "You are a friendly and warm AI assistant. Be encouraging, use a conversational tone, and show empathy. Use casual language while remaining helpful.",
		Temperature:  0.8,
		Traits:       []string{"warm", "encouraging", "empathetic", "conversational"},
	},
	StyleProfessional: {
		Name:         "Professional Assistant",
		Description:  "Formal, precise, and business-oriented",
		PromptPrefix: "You are a professional AI assistant. Provide clear, concise, and accurate responses. Use formal language and focus on efficiency and precision.",
		Temperature:  0.6,
		Traits:       []string{"formal", "precise", "efficient", "authoritative"},
	},
	StyleCreative: {
		Name:         "Creative Assistant",
		Description:  "Imaginative, innovative, and inspirational",
		PromptPrefix: "You are a creative AI assistant. Think outside the box, offer innovative ideas, and inspire creativity. Use vivid language and encourage exploration of new possibilities.",
		Temperature:  0.9,
		Traits:       []string{"imaginative", "innovative", "inspiring", "artistic"},
	},
	StyleAnalytical: {
		Name:         "Analytical Assistant",
		Description:  "Logical, data-driven, and systematic",
		PromptPrefix: "You are an analytical AI assistant. Provide logical, well-reasoned responses. Break down complex problems, use data when possible, and explain your reasoning step by step.",
		Temperature:  0.5,
		Traits:       []string{"logical", "systematic", "data-driven", "methodical"},
	},
	StyleCasual: {
		Name:         "Casual Assistant",
		Description:  "Relaxed, informal, and conversational",
		PromptPrefix: "You are a casual AI assistant. Keep things relaxed and informal. Use everyday language, be conversational, and don't be afraid to use humor when appropriate.",
		Temperature:  0.7,
		Traits:       []string{"relaxed", "informal", "humorous", "conversational"},
	},
	StyleHelpful: {
		Name:         "Helpful Assistant",
		Description:  "Solution-focused and resourceful",
		PromptPrefix: "You are a helpful AI assistant focused on providing practical solutions. Always try to be as useful as possible, offer concrete suggestions, and go the extra mile to help.",
		Temperature:  0.7,
		Traits:       []string{"solution-focused", "resourceful", "practical", "supportive"},
	},
}

// Every closer contains one of the friendly marker phrases, so running the
// post-processor twice never appends a second closer.
var friendlyClosers = []string{
	"I hope this helps!",
	"Feel free to ask if you need more clarification!",
	"Let me know if you have other questions!",
}

var friendlyMarkers = []string{"hope", "feel free", "let me know", "happy to"}

var professionalReplacer = strings.NewReplacer(
	"yeah", "yes",
	"gonna", "going to",
	"wanna", "want to",
	"kinda", "somewhat",
	"sorta", "somewhat",
)

// Styles returns the full style table, keyed by style id.
func Styles() map[Style]StyleConfig {
	out := make(map[Style]StyleConfig, len(styleTable))
	for k, v := range styleTable {
		out[k] = v
	}
	return out
}

// StyleOf looks up one style's config; unknown styles fall back to helpful.
func StyleOf(s Style) StyleConfig {
	if cfg, ok := styleTable[s]; ok {
		return cfg
	}
	return styleTable[StyleHelpful]
}

// ParseStyle maps a wire value onto a known style, defaulting to helpful.
func ParseStyle(s string) Style {
	style := Style(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := styleTable[style]; ok {
		return style
	}
	return StyleHelpful
}

// ApplyStyle prepends the style's system prompt when the conversation is just
// starting (at most one turn so far). Later turns pass through unchanged so
// the instructions are not repeated on every exchange.
func ApplyStyle(messages []Message, style Style) []Message {
	if len(messages) > 1 {
		return messages
	}
	cfg := StyleOf(style)
	out := make([]Message, 0, len(messages)+1)
	out = append(out, Message{Role: RoleSystem, Content: cfg.PromptPrefix})
	out = append(out, messages...)
	return out
}

// PostProcess applies best-effort cosmetic cleanup to a generated response:
// whitespace trimming, leaked system-prompt removal, repeated-sentence
// de-duplication, terminal punctuation, and a style-specific touch. The whole
// transform is idempotent.
func PostProcess(content string, style Style) string {
	if content == "" {
		return content
	}

	content = strings.TrimSpace(content)
	content = stripLeakedPrompt(content)

	switch style {
	case StyleProfessional:
		content = professionalReplacer.Replace(content)
	case StyleFriendly:
		content = addFriendlyCloser(content)
	case StyleCreative:
		content = encourageExploration(content)
	}

	content = dedupeSentences(content)

	if content != "" && !strings.HasSuffix(content, ".") &&
		!strings.HasSuffix(content, "!") && !strings.HasSuffix(content, "?") {
		content += "."
	}
	return content
}

// stripLeakedPrompt drops leading lines that echo the system prompt back.
func stripLeakedPrompt(content string) string {
	for strings.HasPrefix(content, "You are") {
		lines := strings.SplitN(content, "\n", 2)
		if len(lines) < 2 {
			return ""
		}
		content = strings.TrimSpace(lines[1])
	}
	return content
}

// dedupeSentences removes sentences already contained (case-insensitively)
// in an earlier kept sentence.
func dedupeSentences(content string) string {
	sentences := strings.Split(content, ".")
	var unique []string
	for _, s := range sentences {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		duplicate := false
		for _, kept := range unique {
			if strings.Contains(strings.ToLower(kept), strings.ToLower(s)) {
				duplicate = true
				break
			}
		}
		if !duplicate {
			unique = append(unique, s)
		}
	}
	return strings.Join(unique, ". ")
}

// addFriendlyCloser appends an encouraging closer to substantial responses
// that lack one. The pick is deterministic on content length.
func addFriendlyCloser(content string) string {
	if len(content) <= 50 {
		return content
	}
	lower := strings.ToLower(content)
	for _, marker := range friendlyMarkers {
		if strings.Contains(lower, marker) {
			return content
		}
	}
	return content + " " + friendlyClosers[len(content)%len(friendlyClosers)]
}

// encourageExploration nudges long creative responses that never signal
// creativity toward further exploration.
func encourageExploration(content string) string {
	lower := strings.ToLower(content)
	if strings.Contains(lower, "creative") || strings.Contains(lower, "imagine") {
		return content
	}
	if len(content) > 100 {
		content += " Feel free to explore creative possibilities with this!"
	}
	return content
}
