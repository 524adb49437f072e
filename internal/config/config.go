package config

import (
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
	Backends BackendsConfig `yaml:"backends"`
	Learning LearningConfig `yaml:"learning"`
}

type ServerConfig struct {
	Host                string `yaml:"host"`
	Port                int    `yaml:"port"`
	ReadTimeoutSeconds  int    `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `yaml:"write_timeout_seconds"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type BackendsConfig struct {
	Gemini      GeminiConfig      `yaml:"gemini"`
	HuggingFace HuggingFaceConfig `yaml:"huggingface"`
}

type GeminiConfig struct {
	// APIKey falls back to the GEMINI_API_KEY environment variable when empty.
	APIKey         string `yaml:"api_key"`
	Model          string `yaml:"model"`
	DailyLimit     int    `yaml:"daily_limit"`
	PerMinuteLimit int    `yaml:"per_minute_limit"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type HuggingFaceConfig struct {
	// APIToken falls back to HUGGINGFACE_API_TOKEN when empty. Without a
	// token the free tier allows far fewer requests per hour.
	APIToken       string `yaml:"api_token"`
	DailyLimit     int    `yaml:"daily_limit"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// LearningConfig holds the feedback-scoring constants. The defaults mirror
// long-standing product heuristics; they are configurable, not sacred.
type LearningConfig struct {
	RatingWeight     float64 `yaml:"rating_weight"`
	PositiveWeight   float64 `yaml:"positive_weight"`
	EngagementWeight float64 `yaml:"engagement_weight"`
	EngagementCap    int     `yaml:"engagement_cap"`

	MinFeedbackForSelection int `yaml:"min_feedback_for_selection"`
	UnderperformerMinCount  int `yaml:"underperformer_min_count"`
	HighPerformerMinCount   int `yaml:"high_performer_min_count"`

	CacheTTLSeconds int `yaml:"cache_ttl_seconds"`
}

func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Host:                "0.0.0.0",
			Port:                8080,
			ReadTimeoutSeconds:  30,
			WriteTimeoutSeconds: 90,
		},
		Database: DatabaseConfig{
			Path: "./parley.db",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Backends: BackendsConfig{
			Gemini: GeminiConfig{
				Model:          "gemini-1.5-flash",
				DailyLimit:     1500,
				PerMinuteLimit: 15,
				TimeoutSeconds: 30,
			},
			HuggingFace: HuggingFaceConfig{
				DailyLimit:     1000,
				TimeoutSeconds: 60,
			},
		},
		Learning: LearningConfig{
			RatingWeight:            0.6,
			PositiveWeight:          0.3,
			EngagementWeight:        0.1,
			EngagementCap:           100,
			MinFeedbackForSelection: 3,
			UnderperformerMinCount:  5,
			HighPerformerMinCount:   10,
			CacheTTLSeconds:         300,
		},
	}
}

// Load reads a YAML config file and merges it over defaults. If the file does
// not exist, defaults are returned without error. API keys left empty in the
// file are resolved from the environment.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Info("No config file found, using defaults", "path", path)
			cfg.resolveEnv()
			return cfg, nil
		}
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	cfg.resolveEnv()
	return cfg, nil
}

func (c *Config) resolveEnv() {
	if c.Backends.Gemini.APIKey == "" {
		c.Backends.Gemini.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if c.Backends.HuggingFace.APIToken == "" {
		c.Backends.HuggingFace.APIToken = os.Getenv("HUGGINGFACE_API_TOKEN")
	}
}
