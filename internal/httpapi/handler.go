// internal/httpapi/handler.go
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	apperrors "github.com/36JungKwan/place-search-engine-RAG/internal/common/errors"
	"github.com/36JungKwan/place-search-engine-RAG/internal/common/logger"
	"github.com/36JungKwan/place-search-engine-RAG/internal/models"
	"github.com/36JungKwan/place-search-engine-RAG/internal/search/constraint"
	"github.com/36JungKwan/place-search-engine-RAG/internal/search/pipeline"
)

// SearchService is the pipeline surface the HTTP layer depends on.
type SearchService interface {
	Search(ctx context.Context, query, sessionID string, isNewTopic bool) (pipeline.Result, error)
}

// Pinger reports liveness of one backing store.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	service  SearchService
	postgres Pinger
	redis    Pinger
	log      logger.Logger
}

func NewHandler(service SearchService, postgres, redis Pinger, log logger.Logger) *Handler {
	return &Handler{
		service:  service,
		postgres: postgres,
		redis:    redis,
		log:      log,
	}
}

// Register wires the routes onto the engine.
func (h *Handler) Register(engine *gin.Engine) {
	engine.POST("/api/search", h.Search)
	engine.GET("/healthz", h.Health)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

type searchRequest struct {
	Query      string `json:"query" binding:"required"`
	SessionID  string `json:"session_id" binding:"required"`
	IsNewTopic bool   `json:"is_new_topic"`
}

type placeDTO struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	Address    string `json:"address"`
	PriceRange string `json:"priceRange"`
	Hours      string `json:"hours"`
	Category   string `json:"category"`
	Score      string `json:"score"`
}

type searchResponse struct {
	Answer           string           `json:"answer"`
	Places           []placeDTO       `json:"places"`
	DebugConstraints constraint.Model `json:"debug_constraints"`
}

func (h *Handler) Search(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperrors.NewInvalidRequestError(err.Error()))
		return
	}

	res, err := h.service.Search(c.Request.Context(), req.Query, req.SessionID, req.IsNewTopic)
	if err != nil {
		h.log.WithError(err).Error("search request failed", map[string]interface{}{
			"sessionId": req.SessionID,
		})
		var stdErr *apperrors.StandardError
		if errors.As(err, &stdErr) {
			writeError(c, stdErr)
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, searchResponse{
		Answer:           res.Answer,
		Places:           toPlaceDTOs(res.Places),
		DebugConstraints: res.Constraints,
	})
}

func (h *Handler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	components := gin.H{}
	healthy := true
	for name, pinger := range map[string]Pinger{"postgres": h.postgres, "redis": h.redis} {
		if err := pinger.Ping(ctx); err != nil {
			components[name] = err.Error()
			healthy = false
		} else {
			components[name] = "ok"
		}
	}

	status := http.StatusOK
	state := "ok"
	if !healthy {
		status = http.StatusServiceUnavailable
		state = "degraded"
	}
	c.JSON(status, gin.H{"status": state, "components": components})
}

func writeError(c *gin.Context, err *apperrors.StandardError) {
	c.JSON(apperrors.HTTPStatus(err.Code), gin.H{"error": err})
}

func toPlaceDTOs(places []models.ScoredPlace) []placeDTO {
	out := make([]placeDTO, 0, len(places))
	for _, p := range places {
		out = append(out, placeDTO{
			ID:         p.ID,
			Name:       p.Name,
			Address:    orNA(p.Address),
			PriceRange: orNA(p.PriceRange),
			Hours:      orNA(p.OpeningHours),
			Category:   p.Category,
			Score:      fmt.Sprintf("%.2f", p.Score),
		})
	}
	return out
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
