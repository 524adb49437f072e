package ai

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	generationRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "parley_generation_requests_total",
		Help: "Generation requests by backend, style, and outcome",
	}, []string{"backend", "style", "outcome"})

	generationLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "parley_generation_latency_seconds",
		Help:    "Wall-clock time spent producing one assistant turn",
		Buckets: prometheus.DefBuckets,
	})

	generationTokens = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "parley_generation_tokens",
		Help:    "Token count per generated response",
		Buckets: []float64{1, 10, 50, 100, 500, 1_000, 2_000, 4_000, 8_000},
	})
)
