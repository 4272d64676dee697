package completion

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("docchat/completion")

// Schema constrains structured output. It mirrors the OpenAPI subset the
// Gemini API accepts for responseSchema; type names are upper case.
type Schema struct {
	Type       string             `json:"type"`
	Properties map[string]*Schema `json:"properties,omitempty"`
	Items      *Schema            `json:"items,omitempty"`
	Enum       []string           `json:"enum,omitempty"`
	Required   []string           `json:"required,omitempty"`
}

const (
	TypeObject = "OBJECT"
	TypeArray  = "ARRAY"
	TypeString = "STRING"
	TypeNumber = "NUMBER"
)

// Request is a single instruction sent to the completion service. A non-nil
// Schema asks the backend to emit JSON matching it when the backend can.
type Request struct {
	Prompt string
	Schema *Schema
}

type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Error is a transport or service failure from one provider.
type Error struct {
	Provider string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Keys carries provider credentials resolved from configuration.
type Keys struct {
	Gemini    string
	Anthropic string
	AWSRegion string
}

// Model describes one selectable model alias.
type Model struct {
	Alias    string
	Provider string
	ID       string
	Label    string
}

const (
	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"
	ProviderBedrock   = "bedrock"

	DefaultModel = "gemini-flash"
)

var models = map[string]Model{
	"gemini-flash": {Alias: "gemini-flash", Provider: ProviderGemini, ID: "gemini-2.5-flash", Label: "Gemini Flash (fast, structured output) (default)"},
	"gemini-pro":   {Alias: "gemini-pro", Provider: ProviderGemini, ID: "gemini-2.5-pro", Label: "Gemini Pro (powerful, structured output)"},
	"haiku":        {Alias: "haiku", Provider: ProviderAnthropic, ID: "claude-haiku-4-5-20251001", Label: "Claude Haiku 4.5 (fast, affordable)"},
	"sonnet":       {Alias: "sonnet", Provider: ProviderAnthropic, ID: "claude-sonnet-4-5-20250929", Label: "Claude Sonnet 4.5 (balanced)"},
	"nova-lite":    {Alias: "nova-lite", Provider: ProviderBedrock, ID: "us.amazon.nova-2-lite-v1:0", Label: "Amazon Nova 2 Lite via Bedrock"},
}

var modelOrder = []string{"gemini-flash", "gemini-pro", "haiku", "sonnet", "nova-lite"}

// Models lists the known aliases, default first.
func Models() []Model {
	out := make([]Model, 0, len(modelOrder))
	for _, alias := range modelOrder {
		out = append(out, models[alias])
	}
	return out
}

// Lookup resolves a model alias.
func Lookup(alias string) (Model, error) {
	m, ok := models[alias]
	if !ok {
		return Model{}, fmt.Errorf("invalid model %q: must be one of %s", alias, strings.Join(modelOrder, ", "))
	}
	return m, nil
}

// New builds the completer for a model alias.
func New(ctx context.Context, alias string, keys Keys) (Completer, error) {
	m, err := Lookup(alias)
	if err != nil {
		return nil, err
	}
	switch m.Provider {
	case ProviderGemini:
		return NewGeminiCompleter(m.ID, keys.Gemini), nil
	case ProviderAnthropic:
		return NewClaudeCompleter(m.ID, keys.Anthropic), nil
	case ProviderBedrock:
		return NewNovaCompleter(ctx, m.ID, keys.AWSRegion)
	default:
		return nil, fmt.Errorf("model %q has unknown provider %q", alias, m.Provider)
	}
}
