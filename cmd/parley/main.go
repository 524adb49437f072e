package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"parley/internal/ai"
	"parley/internal/config"
	"parley/internal/database"
	"parley/internal/learning"
	"parley/internal/server"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("Parley %s\n", version)
		os.Exit(0)
	}

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize logger
	var logLevel slog.Level
	switch strings.ToLower(cfg.Logging.Level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	slog.Info("Starting Parley", "version", version)

	// Initialize database
	db, err := database.New(cfg.Database.Path, scoringFrom(cfg.Learning))
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	slog.Info("Database initialized", "path", cfg.Database.Path)

	// Register AI backends. Gemini is the default when a key is configured;
	// the Hugging Face models provide the free-tier fallback chain.
	registry := ai.NewRegistry()

	geminiCfg := ai.GeminiDefaults()
	if cfg.Backends.Gemini.Model != "" {
		geminiCfg.ModelID = cfg.Backends.Gemini.Model
	}
	if cfg.Backends.Gemini.DailyLimit > 0 {
		geminiCfg.DailyLimit = cfg.Backends.Gemini.DailyLimit
	}
	if cfg.Backends.Gemini.PerMinuteLimit > 0 {
		geminiCfg.WindowLimit = cfg.Backends.Gemini.PerMinuteLimit
	}
	geminiTimeout := time.Duration(cfg.Backends.Gemini.TimeoutSeconds) * time.Second
	registry.Register(ai.NewGeminiBackend(cfg.Backends.Gemini.APIKey, geminiCfg, geminiTimeout), true)

	hasToken := cfg.Backends.HuggingFace.APIToken != ""
	hfTimeout := time.Duration(cfg.Backends.HuggingFace.TimeoutSeconds) * time.Second
	for _, hfCfg := range ai.HuggingFaceModels(hasToken) {
		if cfg.Backends.HuggingFace.DailyLimit > 0 {
			hfCfg.DailyLimit = cfg.Backends.HuggingFace.DailyLimit
		}
		registry.Register(ai.NewHFBackend(cfg.Backends.HuggingFace.APIToken, hfCfg, hfTimeout), false)
	}

	// Initialize services
	learner := learning.New(db, time.Duration(cfg.Learning.CacheTTLSeconds)*time.Second)
	aiSvc := ai.NewService(registry, learner)

	// Build HTTP server
	srv := server.New(cfg, db, aiSvc, learner)

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		slog.Info("Shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}()

	// Start serving
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}
}

func scoringFrom(lc config.LearningConfig) database.Scoring {
	s := database.DefaultScoring()
	if lc.RatingWeight > 0 {
		s.RatingWeight = lc.RatingWeight
	}
	if lc.PositiveWeight > 0 {
		s.PositiveWeight = lc.PositiveWeight
	}
	if lc.EngagementWeight > 0 {
		s.EngagementWeight = lc.EngagementWeight
	}
	if lc.EngagementCap > 0 {
		s.EngagementCap = lc.EngagementCap
	}
	if lc.MinFeedbackForSelection > 0 {
		s.MinFeedbackForSelection = lc.MinFeedbackForSelection
	}
	if lc.UnderperformerMinCount > 0 {
		s.UnderperformerMinCount = lc.UnderperformerMinCount
	}
	if lc.HighPerformerMinCount > 0 {
		s.HighPerformerMinCount = lc.HighPerformerMinCount
	}
	return s
}
