package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"parley/internal/ai"
	"parley/internal/config"
	"parley/internal/database"
	"parley/internal/learning"
)

type Server struct {
	cfg     config.Config
	db      *database.DB
	ai      *ai.Service
	learner *learning.Service
	httpSrv *http.Server
}

func New(cfg config.Config, db *database.DB, aiSvc *ai.Service, learner *learning.Service) *Server {
	return &Server{
		cfg:     cfg,
		db:      db,
		ai:      aiSvc,
		learner: learner,
	}
}

// Start sets up routes and starts the HTTP server.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	s.routes(mux)

	handler := recoveryMiddleware(loggingMiddleware(mux))

	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  time.Duration(s.cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(s.cfg.Server.WriteTimeoutSeconds) * time.Second,
	}

	slog.Info("Starting server", "addr", addr)
	return s.httpSrv.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/chat", s.handleChat)
	mux.HandleFunc("POST /api/v1/feedback", s.handleFeedback)

	mux.HandleFunc("GET /api/v1/models", s.handleModels)
	mux.HandleFunc("POST /api/v1/models/test", s.handleModelsTest)
	mux.HandleFunc("PUT /api/v1/models/default", s.handleSetDefaultModel)
	mux.HandleFunc("GET /api/v1/styles", s.handleStyles)

	mux.HandleFunc("GET /api/v1/conversations", s.handleConversationList)
	mux.HandleFunc("GET /api/v1/conversations/{id}/messages", s.handleConversationMessages)
	mux.HandleFunc("DELETE /api/v1/conversations/{id}", s.handleConversationDelete)

	mux.HandleFunc("GET /api/v1/analytics", s.handleAnalytics)
	mux.HandleFunc("GET /api/v1/insights", s.handleInsights)

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
}
