package blaslt

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	heuristicQueries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gudalt_blaslt_heuristic_queries_total",
		Help: "Heuristic queries by outcome (found, empty)",
	}, []string{"outcome"})

	gemmRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gudalt_blaslt_gemm_runs_total",
		Help: "GEMM executions by solution and status",
	}, []string{"solution", "status"})

	gemmDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gudalt_blaslt_gemm_duration_seconds",
		Help:    "Device-side GEMM execution time",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 16),
	}, []string{"solution"})
)
