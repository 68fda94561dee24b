// internal/search/pipeline/pipeline.go
package pipeline

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/36JungKwan/place-search-engine-RAG/internal/ai/compose"
	"github.com/36JungKwan/place-search-engine-RAG/internal/common/logger"
	"github.com/36JungKwan/place-search-engine-RAG/internal/common/metrics"
	"github.com/36JungKwan/place-search-engine-RAG/internal/models"
	"github.com/36JungKwan/place-search-engine-RAG/internal/search/cascade"
	"github.com/36JungKwan/place-search-engine-RAG/internal/search/constraint"
)

type Extractor interface {
	Extract(ctx context.Context, userInput string, history []models.Turn) (constraint.Model, error)
}

type Composer interface {
	Compose(ctx context.Context, userQuery, note string, places []models.ScoredPlace, history []models.Turn) (string, error)
}

type Cascade interface {
	Run(ctx context.Context, m constraint.Model) (cascade.Outcome, error)
}

type History interface {
	Append(ctx context.Context, sessionID string, turns ...models.Turn) error
	Window(ctx context.Context, sessionID string) ([]models.Turn, error)
	Reset(ctx context.Context, sessionID string) error
}

// Result is one completed search turn.
type Result struct {
	Answer      string
	Places      []models.ScoredPlace
	Constraints constraint.Model
	Stage       cascade.Stage
}

// Pipeline runs one search request end to end. Every invocation is
// stateless and independent; the session log is the only cross-request
// shared resource.
type Pipeline struct {
	extractor Extractor
	cascade   Cascade
	composer  Composer
	history   History
	log       logger.Logger
}

func New(extractor Extractor, c Cascade, composer Composer, history History, log logger.Logger) *Pipeline {
	return &Pipeline{
		extractor: extractor,
		cascade:   c,
		composer:  composer,
		history:   history,
		log:       log,
	}
}

// Search answers one user query. Extraction and composition failures degrade
// (default constraints, templated fallback); only a store failure aborts.
func (p *Pipeline) Search(ctx context.Context, query, sessionID string, isNewTopic bool) (Result, error) {
	started := time.Now()
	timer := prometheus.NewTimer(metrics.SearchDuration)
	defer timer.ObserveDuration()

	log := p.log.WithFields(map[string]interface{}{"sessionId": sessionID})

	if isNewTopic {
		if err := p.history.Reset(ctx, sessionID); err != nil {
			log.WithError(err).Warn("history reset failed, continuing with stale context", nil)
		}
	}

	history, err := p.history.Window(ctx, sessionID)
	if err != nil {
		log.WithError(err).Warn("history read failed, continuing without context", nil)
		history = nil
	}

	m, err := p.extractor.Extract(ctx, query, history)
	if err != nil {
		log.WithError(err).Warn("extraction failed, falling back to raw text", nil)
		m = constraint.Default(query)
	}

	outcome, err := p.cascade.Run(ctx, m)
	if err != nil {
		metrics.SearchRequests.WithLabelValues("error").Inc()
		return Result{}, err
	}

	answer, err := p.composer.Compose(ctx, query, outcome.Note, outcome.Places, history)
	if err != nil {
		log.WithError(err).Warn("composition failed, rendering templated answer", nil)
		answer = compose.Fallback(outcome.Note, outcome.Places)
	}

	if err := p.history.Append(ctx, sessionID,
		models.Turn{Role: models.RoleUser, Content: query},
		models.Turn{Role: models.RoleAssistant, Content: answer},
	); err != nil {
		log.WithError(err).Warn("history append failed", nil)
	}

	metrics.SearchRequests.WithLabelValues("success").Inc()
	log.Info("search completed", map[string]interface{}{
		"stage":     string(outcome.Stage),
		"found":     len(outcome.Places),
		"elapsedMs": time.Since(started).Milliseconds(),
	})

	return Result{
		Answer:      answer,
		Places:      outcome.Places,
		Constraints: m,
		Stage:       outcome.Stage,
	}, nil
}
