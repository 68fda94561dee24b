// internal/ai/compose/compose.go
package compose

import (
	"context"
	"errors"
	"fmt"
	"strings"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	commonaws "github.com/36JungKwan/place-search-engine-RAG/internal/common/aws"
	apperrors "github.com/36JungKwan/place-search-engine-RAG/internal/common/errors"
	"github.com/36JungKwan/place-search-engine-RAG/internal/common/logger"
	"github.com/36JungKwan/place-search-engine-RAG/internal/common/resilience"
	"github.com/36JungKwan/place-search-engine-RAG/internal/models"
)

// NoResultsAnswer is returned when the whole cascade came back empty. It is
// deterministic and never goes through the chat model.
const NoResultsAnswer = "Sorry, I couldn't find any place that fits. Maybe try a different area or budget?"

type ConverseAPI interface {
	Converse(ctx context.Context, input *bedrockruntime.ConverseInput) (*bedrockruntime.ConverseOutput, error)
}

// Composer renders retrieved places into a prose answer through the chat
// model. When the model is unreachable the pipeline falls back to Fallback,
// so the user still gets the records that did exist.
type Composer struct {
	api         ConverseAPI
	caller      *resilience.Caller
	log         logger.Logger
	model       string
	temperature float32
}

func New(api ConverseAPI, model string, temperature float32, log logger.Logger) *Composer {
	return &Composer{
		api:         api,
		caller:      resilience.NewCaller("composition", commonaws.IsThrottling, commonaws.NewAttemptObserver(model, log), log),
		log:         log,
		model:       model,
		temperature: temperature,
	}
}

// Compose builds the answer prompt and asks the chat model for prose.
func (c *Composer) Compose(ctx context.Context, userQuery, note string, places []models.ScoredPlace, history []models.Turn) (string, error) {
	if len(places) == 0 {
		return NoResultsAnswer, nil
	}

	prompt := renderPrompt(userQuery, note, places)

	messages := make([]types.Message, 0, len(history)+1)
	for _, turn := range history {
		messages = append(messages, toMessage(turn.Role, turn.Content))
	}
	messages = append(messages, toMessage(models.RoleUser, prompt))

	input := &bedrockruntime.ConverseInput{
		ModelId:  awssdk.String(c.model),
		Messages: messages,
		InferenceConfig: &types.InferenceConfiguration{
			Temperature: awssdk.Float32(c.temperature),
		},
	}

	res, err := resilience.Call(ctx, c.caller, func(ctx context.Context) (commonaws.ConverseResult, error) {
		out, err := c.api.Converse(ctx, input)
		return commonaws.ConverseResult{Output: out}, err
	})
	if err != nil {
		return "", apperrors.NewCompositionFailedError(err)
	}

	answer, err := firstText(res.Output)
	if err != nil {
		return "", apperrors.NewCompositionFailedError(err)
	}
	return answer, nil
}

// Fallback renders a deterministic listing from the records themselves. Used
// when composition fails so the user never sees a bare error while matching
// places exist.
func Fallback(note string, places []models.ScoredPlace) string {
	if len(places) == 0 {
		return NoResultsAnswer
	}

	var b strings.Builder
	if note != "" {
		b.WriteString(note)
		b.WriteString("\n")
	}
	b.WriteString(renderRecords(places))
	return strings.TrimRight(b.String(), "\n")
}

func renderPrompt(userQuery, note string, places []models.ScoredPlace) string {
	return fmt.Sprintf(`QUERY: %q
NOTE: %q
DATA:
%s
Answer the user from DATA only. If NOTE carries a caveat, mention it gently. Keep it short and friendly.`,
		userQuery, note, renderRecords(places))
}

func renderRecords(places []models.ScoredPlace) string {
	var b strings.Builder
	for _, p := range places {
		fmt.Fprintf(&b, "- %s (%s) | Price: %s | Hours: %s | Category: %s\n",
			p.Name, orNA(p.Address), orNA(p.PriceRange), orNA(p.OpeningHours), p.Category)
	}
	return b.String()
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
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

func firstText(out *bedrockruntime.ConverseOutput) (string, error) {
	if out == nil {
		return "", errors.New("empty converse output")
	}
	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return "", errors.New("converse output carries no message")
	}
	for _, block := range msg.Value.Content {
		if text, ok := block.(*types.ContentBlockMemberText); ok && text.Value != "" {
			return text.Value, nil
		}
	}
	return "", errors.New("no text block in response")
}
