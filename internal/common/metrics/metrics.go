// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SearchRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_requests_total",
			Help: "Total number of search requests handled",
		},
		[]string{"status"},
	)

	SearchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "search_request_duration_seconds",
			Help: "End-to-end duration of a search request in seconds",
		},
	)

	RelaxationStageHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relaxation_stage_hits_total",
			Help: "Relaxation stage that produced the returned result set",
		},
		[]string{"stage"},
	)

	StoreQueryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "store_query_duration_seconds",
			Help: "Duration of hybrid store queries in seconds",
		},
	)

	BedrockCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bedrock_calls_total",
			Help: "Total Bedrock invocations by model and outcome",
		},
		[]string{"model", "outcome"},
	)

	BedrockRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bedrock_retries_total",
			Help: "Total Bedrock retry attempts caused by throttling",
		},
		[]string{"model"},
	)

	BedrockTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bedrock_tokens_total",
			Help: "Token usage reported by Bedrock, by model and direction",
		},
		[]string{"model", "direction"},
	)
)
