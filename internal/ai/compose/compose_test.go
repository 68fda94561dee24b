// internal/ai/compose/compose_test.go
package compose

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/36JungKwan/place-search-engine-RAG/internal/common/errors"
	"github.com/36JungKwan/place-search-engine-RAG/internal/common/logger"
	"github.com/36JungKwan/place-search-engine-RAG/internal/models"
)

type stubConverser struct {
	lastInput *bedrockruntime.ConverseInput
	output    *bedrockruntime.ConverseOutput
	err       error
}

func (s *stubConverser) Converse(ctx context.Context, input *bedrockruntime.ConverseInput) (*bedrockruntime.ConverseOutput, error) {
	s.lastInput = input
	return s.output, s.err
}

func textOutput(text string) *bedrockruntime.ConverseOutput {
	return &bedrockruntime.ConverseOutput{
		Output: &types.ConverseOutputMemberMessage{
			Value: types.Message{
				Role:    types.ConversationRoleAssistant,
				Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: text}},
			},
		},
	}
}

func samplePlaces() []models.ScoredPlace {
	return []models.ScoredPlace{
		{Place: models.Place{ID: 1, Name: "The Still", Address: "12 Ly Tu Trong", PriceRange: "30000 - 70000", OpeningHours: "07:00 - 22:00", Category: "cafe"}, Score: 0.8},
		{Place: models.Place{ID: 2, Name: "Mellow Beans", Category: "cafe"}, Score: 0.5},
	}
}

func newComposer(t *testing.T, stub *stubConverser) *Composer {
	t.Helper()
	return New(stub, "anthropic.claude-3-5-sonnet-20241022-v2:0", 0.3, logger.NewTestLogger(t))
}

func TestComposeReturnsModelAnswer(t *testing.T) {
	stub := &stubConverser{output: textOutput("Try The Still on Ly Tu Trong!")}

	answer, err := newComposer(t, stub).Compose(context.Background(),
		"quiet coffee", "These are the closest matches:", samplePlaces(), nil)
	require.NoError(t, err)
	assert.Equal(t, "Try The Still on Ly Tu Trong!", answer)

	in := stub.lastInput
	require.NotNil(t, in)
	require.NotEmpty(t, in.Messages)
	prompt, ok := in.Messages[len(in.Messages)-1].Content[0].(*types.ContentBlockMemberText)
	require.True(t, ok)
	assert.Contains(t, prompt.Value, `QUERY: "quiet coffee"`)
	assert.Contains(t, prompt.Value, "These are the closest matches:")
	assert.Contains(t, prompt.Value, "- The Still (12 Ly Tu Trong) | Price: 30000 - 70000 | Hours: 07:00 - 22:00 | Category: cafe")
	assert.Contains(t, prompt.Value, "- Mellow Beans (N/A) | Price: N/A | Hours: N/A | Category: cafe")
}

func TestComposeIncludesHistory(t *testing.T) {
	stub := &stubConverser{output: textOutput("ok")}
	history := []models.Turn{
		{Role: models.RoleUser, Content: "earlier question"},
		{Role: models.RoleAssistant, Content: "earlier answer"},
	}

	_, err := newComposer(t, stub).Compose(context.Background(), "q", "", samplePlaces(), history)
	require.NoError(t, err)

	require.Len(t, stub.lastInput.Messages, 3)
	assert.Equal(t, types.ConversationRoleUser, stub.lastInput.Messages[0].Role)
	assert.Equal(t, types.ConversationRoleAssistant, stub.lastInput.Messages[1].Role)
}

func TestComposeEmptyPlacesShortCircuits(t *testing.T) {
	stub := &stubConverser{}

	answer, err := newComposer(t, stub).Compose(context.Background(), "q", "", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, NoResultsAnswer, answer)
	assert.Nil(t, stub.lastInput, "the chat model must not be invoked for empty outcomes")
}

func TestComposeWrapsModelFailure(t *testing.T) {
	stub := &stubConverser{err: errors.New("model unavailable")}

	_, err := newComposer(t, stub).Compose(context.Background(), "q", "", samplePlaces(), nil)
	require.Error(t, err)
	var stdErr *apperrors.StandardError
	require.ErrorAs(t, err, &stdErr)
	assert.Equal(t, apperrors.ErrCodeCompositionFailed, stdErr.Code)
}

func TestComposeRejectsTextlessResponse(t *testing.T) {
	stub := &stubConverser{output: &bedrockruntime.ConverseOutput{
		Output: &types.ConverseOutputMemberMessage{
			Value: types.Message{Role: types.ConversationRoleAssistant},
		},
	}}

	_, err := newComposer(t, stub).Compose(context.Background(), "q", "", samplePlaces(), nil)
	require.Error(t, err)
	var stdErr *apperrors.StandardError
	require.ErrorAs(t, err, &stdErr)
	assert.Equal(t, apperrors.ErrCodeCompositionFailed, stdErr.Code)
}

func TestFallbackListsRecords(t *testing.T) {
	got := Fallback("Nothing available in District 1, but other areas have these:", samplePlaces())

	assert.Contains(t, got, "Nothing available in District 1")
	assert.Contains(t, got, "- The Still (12 Ly Tu Trong)")
	assert.Contains(t, got, "- Mellow Beans (N/A)")
}

func TestFallbackEmptyPlaces(t *testing.T) {
	assert.Equal(t, NoResultsAnswer, Fallback("", nil))
}
