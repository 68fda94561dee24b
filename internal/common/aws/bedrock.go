// internal/common/aws/bedrock.go
package aws

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"
)

// BedrockClient wraps the Bedrock runtime client used by all inference
// collaborators (extraction, embedding, composition).
type BedrockClient struct {
	client *bedrockruntime.Client
}

// NewBedrockClient creates a Bedrock runtime client. SDK-internal retries are
// disabled so the resilient caller owns the whole retry policy.
func NewBedrockClient(ctx context.Context, region string) (*BedrockClient, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, err
	}
	client := bedrockruntime.NewFromConfig(cfg, func(o *bedrockruntime.Options) {
		o.RetryMaxAttempts = 1
	})
	return &BedrockClient{client: client}, nil
}

func (b *BedrockClient) Converse(ctx context.Context, input *bedrockruntime.ConverseInput) (*bedrockruntime.ConverseOutput, error) {
	return b.client.Converse(ctx, input)
}

func (b *BedrockClient) InvokeModel(ctx context.Context, input *bedrockruntime.InvokeModelInput) (*bedrockruntime.InvokeModelOutput, error) {
	return b.client.InvokeModel(ctx, input)
}

// IsThrottling reports whether err is a Bedrock throttling response, the only
// failure class the resilient caller retries.
func IsThrottling(err error) bool {
	var throttled *types.ThrottlingException
	if errors.As(err, &throttled) {
		return true
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "TooManyRequestsException", "ServiceQuotaExceededException":
			return true
		}
	}
	return false
}
