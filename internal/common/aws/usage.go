// internal/common/aws/usage.go
package aws

import (
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/36JungKwan/place-search-engine-RAG/internal/common/logger"
	"github.com/36JungKwan/place-search-engine-RAG/internal/common/metrics"
	"github.com/36JungKwan/place-search-engine-RAG/internal/common/resilience"
)

// ConverseResult wraps a Converse response so the resilient caller can read
// the token usage counters Bedrock reports.
type ConverseResult struct {
	Output *bedrockruntime.ConverseOutput
}

func (r ConverseResult) Usage() (resilience.Usage, bool) {
	if r.Output == nil || r.Output.Usage == nil {
		return resilience.Usage{}, false
	}
	usage := resilience.Usage{}
	if r.Output.Usage.InputTokens != nil {
		usage.InputTokens = *r.Output.Usage.InputTokens
	}
	if r.Output.Usage.OutputTokens != nil {
		usage.OutputTokens = *r.Output.Usage.OutputTokens
	}
	return usage, true
}

// NewAttemptObserver builds the observability side channel for one model:
// per-attempt latency and token logging plus Prometheus counters. It never
// influences the call's return value.
func NewAttemptObserver(model string, log logger.Logger) func(resilience.Attempt) {
	log = log.WithFields(map[string]interface{}{"model": model})

	return func(a resilience.Attempt) {
		if a.Err != nil {
			if a.Number > 1 {
				metrics.BedrockRetries.WithLabelValues(model).Inc()
			}
			metrics.BedrockCalls.WithLabelValues(model, "error").Inc()
			log.Warn("bedrock call failed", map[string]interface{}{
				"attempt":   a.Number,
				"elapsedMs": a.Elapsed.Milliseconds(),
				"error":     a.Err.Error(),
			})
			return
		}

		metrics.BedrockCalls.WithLabelValues(model, "success").Inc()
		fields := map[string]interface{}{
			"attempt":   a.Number,
			"elapsedMs": a.Elapsed.Milliseconds(),
		}
		if a.Usage != nil {
			metrics.BedrockTokens.WithLabelValues(model, "input").Add(float64(a.Usage.InputTokens))
			metrics.BedrockTokens.WithLabelValues(model, "output").Add(float64(a.Usage.OutputTokens))
			fields["inputTokens"] = a.Usage.InputTokens
			fields["outputTokens"] = a.Usage.OutputTokens
		}
		log.Info("bedrock call completed", fields)
	}
}
