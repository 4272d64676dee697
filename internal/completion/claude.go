package completion

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	claudeMaxTokens = 4096

	jsonOnlyInstruction = "Output raw JSON only. No markdown code fences. No text before or after the JSON."
)

type ClaudeCompleter struct {
	model  string
	client anthropic.Client
}

// NewClaudeCompleter uses apiKey when set and otherwise falls back to the
// SDK's ANTHROPIC_API_KEY lookup. SDK retries are disabled; extra options are
// applied last.
func NewClaudeCompleter(model, apiKey string, extra ...option.RequestOption) *ClaudeCompleter {
	opts := []option.RequestOption{option.WithMaxRetries(0)}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	opts = append(opts, extra...)
	return &ClaudeCompleter{
		model:  model,
		client: anthropic.NewClient(opts...),
	}
}

func (c *ClaudeCompleter) Complete(ctx context.Context, req Request) (string, error) {
	ctx, span := tracer.Start(ctx, "completion.anthropic")
	defer span.End()
	span.SetAttributes(
		attribute.String("model", c.model),
		attribute.Bool("structured", req.Schema != nil),
		attribute.Int("prompt_chars", len(req.Prompt)),
	)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: claudeMaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	// The Messages API has no response schema; the prompt carries the shape.
	if req.Schema != nil {
		params.System = []anthropic.TextBlockParam{{Text: jsonOnlyInstruction}}
	}

	message, err := c.client.Messages.New(ctx, params)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "claude request failed")
		return "", &Error{Provider: ProviderAnthropic, Err: err}
	}

	text := extractText(message)
	if text == "" {
		err := fmt.Errorf("empty response from Claude")
		span.SetStatus(codes.Error, err.Error())
		return "", &Error{Provider: ProviderAnthropic, Err: err}
	}
	return text, nil
}

func extractText(msg *anthropic.Message) string {
	var parts []string
	for _, block := range msg.Content {
		if tb, ok := block.AsAny().(anthropic.TextBlock); ok {
			parts = append(parts, tb.Text)
		}
	}
	return strings.Join(parts, "")
}
