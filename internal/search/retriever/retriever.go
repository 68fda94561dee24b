// internal/search/retriever/retriever.go
package retriever

import (
	"context"
	"database/sql"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	apperrors "github.com/36JungKwan/place-search-engine-RAG/internal/common/errors"
	"github.com/36JungKwan/place-search-engine-RAG/internal/common/logger"
	"github.com/36JungKwan/place-search-engine-RAG/internal/common/metrics"
	"github.com/36JungKwan/place-search-engine-RAG/internal/models"
	"github.com/36JungKwan/place-search-engine-RAG/internal/search/constraint"
)

// Embedder maps text onto the fixed-length vector used for similarity
// scoring.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Retriever executes hybrid lexical plus vector queries against the place
// store.
type Retriever struct {
	db       *sql.DB
	embedder Embedder
	log      logger.Logger
	now      func() time.Time
}

type Option func(*Retriever)

// WithClock overrides the time source used by the open-now predicate.
func WithClock(now func() time.Time) Option {
	return func(r *Retriever) { r.now = now }
}

func New(db *sql.DB, embedder Embedder, log logger.Logger, opts ...Option) *Retriever {
	r := &Retriever{
		db:       db,
		embedder: embedder,
		log:      log,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retrieve runs the hybrid query for one constraint model and returns the
// matches scoring at least minScore, best first. An embedding failure
// degrades to an empty result without touching the store; a store failure is
// the only fatal outcome.
func (r *Retriever) Retrieve(ctx context.Context, m constraint.Model, minScore float64) ([]models.ScoredPlace, error) {
	emb, err := r.embedder.Embed(ctx, m.Query)
	if err != nil {
		r.log.WithError(apperrors.NewEmbeddingFailedError(err)).
			Warn("embedding unavailable, degrading to empty result", nil)
		return nil, nil
	}
	if len(emb) == 0 {
		r.log.Warn("embedder returned empty vector, degrading to empty result", nil)
		return nil, nil
	}

	query, args := buildQuery(m, emb, r.now())

	timer := prometheus.NewTimer(metrics.StoreQueryDuration)
	rows, err := r.db.QueryContext(ctx, query, args...)
	timer.ObserveDuration()
	if err != nil {
		return nil, apperrors.NewStoreUnavailableError(err)
	}
	defer rows.Close()

	// The statement already orders by score and caps at topK; the threshold
	// cut happens here so min_score varies per cascade stage without
	// changing the statement shape.
	results := make([]models.ScoredPlace, 0, topK)
	for rows.Next() {
		var sp models.ScoredPlace
		if err := rows.Scan(&sp.ID, &sp.Name, &sp.Address, &sp.PriceRange, &sp.OpeningHours, &sp.Category, &sp.Score); err != nil {
			return nil, apperrors.NewStoreUnavailableError(err)
		}
		if sp.Score >= minScore {
			results = append(results, sp)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStoreUnavailableError(err)
	}

	topScore := 0.0
	if len(results) > 0 {
		topScore = results[0].Score
	}
	r.log.Info("store query completed", map[string]interface{}{
		"found":    len(results),
		"topScore": topScore,
		"strategy": string(m.Strategy),
		"minScore": minScore,
	})

	return results, nil
}
