// Package metrics holds the Prometheus instruments of the analyser and an
// optional HTTP endpoint to scrape them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// GamesAnalysed counts finished games by outcome ("success", "failure").
	GamesAnalysed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "accuracy_games_analysed_total",
		Help: "Games analysed, by outcome",
	}, []string{"outcome"})

	// Moves counts classified moves by color and class (including "book").
	Moves = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "accuracy_moves_total",
		Help: "Moves classified, by color and classification",
	}, []string{"color", "class"})

	// GamesPending is the number of games dispatched but not yet written.
	GamesPending = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "accuracy_games_pending",
		Help: "Games waiting for or undergoing analysis",
	})

	EnginesStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "accuracy_engines_started_total",
		Help: "Engine processes launched",
	})

	EvalDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "accuracy_engine_eval_seconds",
		Help:    "Time spent in one fixed-depth engine search",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
	})
)
