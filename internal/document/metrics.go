package document

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Generation counters, labeled by path (assistant or fallback) and result.
var (
	generationAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sindico",
		Subsystem: "document",
		Name:      "generation_attempts_total",
		Help:      "Document generation attempts by path.",
	}, []string{"path"})

	generationResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sindico",
		Subsystem: "document",
		Name:      "generation_results_total",
		Help:      "Document generation outcomes by path and result.",
	}, []string{"path", "result"})
)

const (
	pathAssistant = "assistant"
	pathFallback  = "fallback"

	resultOK    = "ok"
	resultError = "error"
)

func observeGeneration(path string, err error) {
	generationAttempts.WithLabelValues(path).Inc()
	result := resultOK
	if err != nil {
		result = resultError
	}
	generationResults.WithLabelValues(path, result).Inc()
}
