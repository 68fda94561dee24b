// internal/ai/extract/extract.go
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/xeipuuv/gojsonschema"

	commonaws "github.com/36JungKwan/place-search-engine-RAG/internal/common/aws"
	apperrors "github.com/36JungKwan/place-search-engine-RAG/internal/common/errors"
	"github.com/36JungKwan/place-search-engine-RAG/internal/common/logger"
	"github.com/36JungKwan/place-search-engine-RAG/internal/common/resilience"
	"github.com/36JungKwan/place-search-engine-RAG/internal/models"
	"github.com/36JungKwan/place-search-engine-RAG/internal/search/constraint"
)

const (
	toolName = "extract_filters"

	// historyWindow is the number of messages (not turns) handed to the
	// intent model for conversational context.
	historyWindow = 6
)

// districtNull is the sentinel the intent model returns when the user did
// not narrow the search to one district.
const districtNull = "NULL"

// toolInputSchema is sent to the intent model as the tool contract and also
// compiled for validating whatever the model sends back.
var toolInputSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"search_text": map[string]interface{}{"type": "string"},
		"district": map[string]interface{}{
			"type":        "string",
			"description": "Normalized district name. Expand abbreviations ('Q1' -> 'Quận 1', 'Q.3' -> 'Quận 3'); keep named districts ('Tân Bình', 'Thủ Đức') as-is. If the user names the whole city or no district at all, return NULL so the search covers everywhere.",
		},
		"min_price": map[string]interface{}{
			"type":        "integer",
			"description": "Lowest acceptable price in VND. '50k' means 50000.",
		},
		"max_price": map[string]interface{}{
			"type":        "integer",
			"description": "Highest acceptable price in VND. 'k' means thousand: '40k' -> 40000.",
		},
		"is_open_now": map[string]interface{}{"type": "boolean"},
		"search_strategy": map[string]interface{}{
			"type": "string",
			"enum": []interface{}{"precise", "semantic"},
		},
		"exclude_keywords": map[string]interface{}{
			"type":        "array",
			"items":       map[string]interface{}{"type": "string"},
			"description": "Keywords the user wants excluded. Brainstorm near-synonyms: excluding 'seafood' should also add 'sushi', 'sashimi', 'crab', 'shrimp', 'fish', 'snails'.",
		},
		"exclude_districts": map[string]interface{}{
			"type":        "array",
			"items":       map[string]interface{}{"type": "string"},
			"description": "Districts the user refuses to visit, normalized like the district field.",
		},
		"target_categories": map[string]interface{}{
			"type":        "array",
			"items":       map[string]interface{}{"type": "string"},
			"description": "Venue categories the user is after. Brainstorm related kinds: 'somewhere to drink' -> coffee, bubble tea, smoothies, refreshments.",
		},
	},
	"required": []interface{}{"search_text", "search_strategy"},
}

var compiledSchema = gojsonschema.NewGoLoader(toolInputSchema)

type ConverseAPI interface {
	Converse(ctx context.Context, input *bedrockruntime.ConverseInput) (*bedrockruntime.ConverseOutput, error)
}

// Extractor turns free text plus recent history into a validated constraint
// model via the intent model's tool-use output.
type Extractor struct {
	api         ConverseAPI
	caller      *resilience.Caller
	log         logger.Logger
	model       string
	temperature float32
	now         func() time.Time
}

type Option func(*Extractor)

// WithClock overrides the time source used in the system prompt.
func WithClock(now func() time.Time) Option {
	return func(e *Extractor) { e.now = now }
}

func New(api ConverseAPI, model string, temperature float32, log logger.Logger, opts ...Option) *Extractor {
	e := &Extractor{
		api:         api,
		caller:      resilience.NewCaller("extraction", commonaws.IsThrottling, commonaws.NewAttemptObserver(model, log), log),
		log:         log,
		model:       model,
		temperature: temperature,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// toolParams mirrors the tool contract field-for-field.
type toolParams struct {
	SearchText       string   `json:"search_text"`
	District         string   `json:"district,omitempty"`
	MinPrice         *int     `json:"min_price,omitempty"`
	MaxPrice         *int     `json:"max_price,omitempty"`
	IsOpenNow        bool     `json:"is_open_now,omitempty"`
	SearchStrategy   string   `json:"search_strategy"`
	ExcludeKeywords  []string `json:"exclude_keywords,omitempty"`
	ExcludeDistricts []string `json:"exclude_districts,omitempty"`
	TargetCategories []string `json:"target_categories,omitempty"`
}

// Extract asks the intent model for filters and returns the validated
// constraint model. Any failure here is soft: the pipeline substitutes the
// default model and the search proceeds on raw text.
func (e *Extractor) Extract(ctx context.Context, userInput string, history []models.Turn) (constraint.Model, error) {
	input := e.buildInput(userInput, history)

	res, err := resilience.Call(ctx, e.caller, func(ctx context.Context) (commonaws.ConverseResult, error) {
		out, err := e.api.Converse(ctx, input)
		return commonaws.ConverseResult{Output: out}, err
	})
	if err != nil {
		return constraint.Model{}, apperrors.NewExtractionFailedError(err)
	}

	params, err := parseToolUse(res.Output)
	if err != nil {
		return constraint.Model{}, apperrors.NewExtractionFailedError(err)
	}

	m, err := constraint.New(constraint.Model{
		Query:            params.SearchText,
		Strategy:         constraint.ParseStrategy(params.SearchStrategy),
		District:         params.District,
		MinPrice:         params.MinPrice,
		MaxPrice:         params.MaxPrice,
		OpenNow:          params.IsOpenNow,
		ExcludeKeywords:  params.ExcludeKeywords,
		ExcludeDistricts: params.ExcludeDistricts,
		TargetCategories: params.TargetCategories,
	})
	if err != nil {
		return constraint.Model{}, apperrors.NewExtractionFailedError(err)
	}
	return m, nil
}

func (e *Extractor) buildInput(userInput string, history []models.Turn) *bedrockruntime.ConverseInput {
	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}

	messages := make([]types.Message, 0, len(history)+1)
	for _, turn := range history {
		messages = append(messages, toMessage(turn.Role, turn.Content))
	}
	messages = append(messages, toMessage(models.RoleUser, userInput))

	systemPrompt := fmt.Sprintf("The local time is %s. Carry the search context over from the conversation history.",
		e.now().Format("15:04"))

	return &bedrockruntime.ConverseInput{
		ModelId:  awssdk.String(e.model),
		Messages: messages,
		System: []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: systemPrompt},
		},
		InferenceConfig: &types.InferenceConfiguration{
			Temperature: awssdk.Float32(e.temperature),
		},
		ToolConfig: &types.ToolConfiguration{
			Tools: []types.Tool{
				&types.ToolMemberToolSpec{Value: types.ToolSpecification{
					Name:        awssdk.String(toolName),
					Description: awssdk.String("Extract venue search filters from the user's request."),
					InputSchema: &types.ToolInputSchemaMemberJson{
						Value: document.NewLazyDocument(toolInputSchema),
					},
				}},
			},
		},
	}
}

func toMessage(role, content string) types.Message {
	r := types.ConversationRoleUser
	if role == models.RoleAssistant {
		r = types.ConversationRoleAssistant
	}
	return types.Message{
		Role:    r,
		Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: content}},
	}
}

// parseToolUse finds the first tool-use block, validates its payload against
// the tool contract and decodes it. A response with no tool-use block is an
// extraction failure, not a crash.
func parseToolUse(out *bedrockruntime.ConverseOutput) (toolParams, error) {
	if out == nil {
		return toolParams{}, errors.New("empty converse output")
	}
	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return toolParams{}, errors.New("converse output carries no message")
	}

	for _, block := range msg.Value.Content {
		toolUse, ok := block.(*types.ContentBlockMemberToolUse)
		if !ok {
			continue
		}

		raw, err := toolUse.Value.Input.MarshalSmithyDocument()
		if err != nil {
			return toolParams{}, fmt.Errorf("tool input marshal: %w", err)
		}

		result, err := gojsonschema.Validate(compiledSchema, gojsonschema.NewBytesLoader(raw))
		if err != nil {
			return toolParams{}, fmt.Errorf("tool input validation: %w", err)
		}
		if !result.Valid() {
			return toolParams{}, fmt.Errorf("tool input rejected: %v", result.Errors())
		}

		var params toolParams
		if err := json.Unmarshal(raw, &params); err != nil {
			return toolParams{}, fmt.Errorf("tool input decode: %w", err)
		}
		if params.District == districtNull {
			params.District = ""
		}
		return params, nil
	}

	return toolParams{}, errors.New("no tool-use block in response")
}
