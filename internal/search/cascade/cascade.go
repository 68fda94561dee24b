// internal/search/cascade/cascade.go
package cascade

import (
	"context"
	"fmt"

	"github.com/36JungKwan/place-search-engine-RAG/internal/common/logger"
	"github.com/36JungKwan/place-search-engine-RAG/internal/common/metrics"
	"github.com/36JungKwan/place-search-engine-RAG/internal/models"
	"github.com/36JungKwan/place-search-engine-RAG/internal/search/constraint"
)

// Stage identifies which relaxation step produced a result set.
type Stage string

const (
	StageStrict        Stage = "strict"
	StageDropTimePrice Stage = "drop_time_price"
	StageDropDistrict  Stage = "drop_district"
	StageSemanticOnly  Stage = "semantic_only"
	StageNone          Stage = "none"
)

// Score thresholds per stage. The semantic-only stage is held to a stricter
// bar because it has the least-precise filtering and must guard against
// near-irrelevant matches.
const (
	strictMinScore   = 0.20
	relaxedMinScore  = 0.20
	semanticMinScore = 0.25
)

// Retriever is the single dependency of the cascade.
type Retriever interface {
	Retrieve(ctx context.Context, m constraint.Model, minScore float64) ([]models.ScoredPlace, error)
}

// Outcome is the result of one cascade run: the surviving records best
// first, a human-readable note describing which relaxation (if any) produced
// them, and the stage label for observability. An all-stages-empty run
// yields no places and an empty note; that is a terminal no-results outcome,
// not an error.
type Outcome struct {
	Places []models.ScoredPlace
	Note   string
	Stage  Stage
}

type Cascade struct {
	retriever Retriever
	log       logger.Logger
}

func New(retriever Retriever, log logger.Logger) *Cascade {
	return &Cascade{retriever: retriever, log: log}
}

type stagePlan struct {
	stage    Stage
	model    constraint.Model
	minScore float64
	note     string
}

// plan derives the stages to attempt for one original model. Stages whose
// triggering fields are absent are skipped entirely, so a run executes
// between one and four retrievals.
func plan(original constraint.Model) []stagePlan {
	stages := []stagePlan{{
		stage:    StageStrict,
		model:    original,
		minScore: strictMinScore,
		note:     "These are the closest matches:",
	}}

	if original.HasPriceOrHours() {
		stages = append(stages, stagePlan{
			stage:    StageDropTimePrice,
			model:    original.WithoutPriceAndHours(),
			minScore: relaxedMinScore,
			note:     "Nothing matched the requested price or opening hours, but these places come close:",
		})
	}

	if original.HasDistrict() {
		stages = append(stages, stagePlan{
			stage:    StageDropDistrict,
			model:    original.WithoutDistrict(),
			minScore: relaxedMinScore,
			note:     fmt.Sprintf("Nothing available in %s, but other areas have these:", original.District),
		})
	}

	stages = append(stages, stagePlan{
		stage:    StageSemanticOnly,
		model:    original.SemanticOnly(),
		minScore: semanticMinScore,
		note:     "Matched by meaning rather than exact filters:",
	})

	return stages
}

// Run walks the relaxation stages in order and halts at the first one that
// produces a non-empty result. Only a store failure aborts the run.
func (c *Cascade) Run(ctx context.Context, original constraint.Model) (Outcome, error) {
	for _, s := range plan(original) {
		if s.stage != StageStrict {
			c.log.Info("relaxing constraints", map[string]interface{}{
				"stage":    string(s.stage),
				"minScore": s.minScore,
			})
		}

		places, err := c.retriever.Retrieve(ctx, s.model, s.minScore)
		if err != nil {
			return Outcome{}, err
		}
		if len(places) > 0 {
			metrics.RelaxationStageHits.WithLabelValues(string(s.stage)).Inc()
			return Outcome{Places: places, Note: s.note, Stage: s.stage}, nil
		}
	}

	metrics.RelaxationStageHits.WithLabelValues(string(StageNone)).Inc()
	return Outcome{Stage: StageNone}, nil
}
