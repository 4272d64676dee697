package completion

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-sdk-go-v2/otelaws"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const novaMaxTokens = 4096

// converser is the slice of the Bedrock runtime client the completer calls.
type converser interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

type NovaCompleter struct {
	model  string
	client converser
}

func NewNovaCompleter(ctx context.Context, model, region string) (*NovaCompleter, error) {
	var loadOpts []func(*config.LoadOptions) error
	if region != "" {
		loadOpts = append(loadOpts, config.WithRegion(region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	otelaws.AppendMiddlewares(&cfg.APIOptions)

	// One attempt per request.
	cfg.RetryMaxAttempts = 1

	return &NovaCompleter{
		model:  model,
		client: bedrockruntime.NewFromConfig(cfg),
	}, nil
}

func (n *NovaCompleter) Complete(ctx context.Context, req Request) (string, error) {
	ctx, span := tracer.Start(ctx, "completion.bedrock")
	defer span.End()
	span.SetAttributes(
		attribute.String("model", n.model),
		attribute.Bool("structured", req.Schema != nil),
		attribute.Int("prompt_chars", len(req.Prompt)),
	)

	input := &bedrockruntime.ConverseInput{
		ModelId: aws.String(n.model),
		Messages: []types.Message{
			{
				Role: types.ConversationRoleUser,
				Content: []types.ContentBlock{
					&types.ContentBlockMemberText{Value: req.Prompt},
				},
			},
		},
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens: aws.Int32(novaMaxTokens),
		},
	}
	if req.Schema != nil {
		input.System = []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: jsonOnlyInstruction},
		}
	}

	resp, err := n.client.Converse(ctx, input)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "bedrock converse failed")
		return "", &Error{Provider: ProviderBedrock, Err: err}
	}

	text := extractNovaText(resp)
	if text == "" {
		err := fmt.Errorf("empty response from Bedrock")
		span.SetStatus(codes.Error, err.Error())
		return "", &Error{Provider: ProviderBedrock, Err: err}
	}
	return text, nil
}

func extractNovaText(resp *bedrockruntime.ConverseOutput) string {
	if resp == nil || resp.Output == nil {
		return ""
	}
	msg, ok := resp.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return ""
	}
	for _, block := range msg.Value.Content {
		if tb, ok := block.(*types.ContentBlockMemberText); ok {
			return tb.Value
		}
	}
	return ""
}
