// internal/ai/embed/embed.go
package embed

import (
	"context"
	"encoding/json"
	"errors"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	commonaws "github.com/36JungKwan/place-search-engine-RAG/internal/common/aws"
	apperrors "github.com/36JungKwan/place-search-engine-RAG/internal/common/errors"
	"github.com/36JungKwan/place-search-engine-RAG/internal/common/logger"
	"github.com/36JungKwan/place-search-engine-RAG/internal/common/resilience"
)

// Titan produces normalized vectors; the dimension must match the vector
// column in the place store.
const embeddingDimensions = 1024

type invokeAPI interface {
	InvokeModel(ctx context.Context, input *bedrockruntime.InvokeModelInput) (*bedrockruntime.InvokeModelOutput, error)
}

// TitanEmbedder maps text onto a fixed-length normalized vector through the
// Titan embedding model. Throttling is retried by the resilient caller; any
// other failure surfaces immediately as an embedding failure.
type TitanEmbedder struct {
	api    invokeAPI
	caller *resilience.Caller
	model  string
}

func New(api invokeAPI, model string, log logger.Logger) *TitanEmbedder {
	return &TitanEmbedder{
		api:    api,
		model:  model,
		caller: resilience.NewCaller("embedding", commonaws.IsThrottling, commonaws.NewAttemptObserver(model, log), log),
	}
}

type embedRequest struct {
	InputText  string `json:"inputText"`
	Dimensions int    `json:"dimensions"`
	Normalize  bool   `json:"normalize"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

func (e *TitanEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, apperrors.NewEmbeddingFailedError(errors.New("empty input text"))
	}

	body, err := json.Marshal(embedRequest{
		InputText:  text,
		Dimensions: embeddingDimensions,
		Normalize:  true,
	})
	if err != nil {
		return nil, apperrors.NewEmbeddingFailedError(err)
	}

	out, err := resilience.Call(ctx, e.caller, func(ctx context.Context) (*bedrockruntime.InvokeModelOutput, error) {
		return e.api.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
			ModelId:     awssdk.String(e.model),
			ContentType: awssdk.String("application/json"),
			Accept:      awssdk.String("application/json"),
			Body:        body,
		})
	})
	if err != nil {
		return nil, apperrors.NewEmbeddingFailedError(err)
	}

	var resp embedResponse
	if err := json.Unmarshal(out.Body, &resp); err != nil {
		return nil, apperrors.NewEmbeddingFailedError(err)
	}
	return resp.Embedding, nil
}
