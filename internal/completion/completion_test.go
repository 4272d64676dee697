package completion

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGemini(t *testing.T, handler http.HandlerFunc) *GeminiCompleter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	g := NewGeminiCompleter("gemini-2.5-flash", "test-key")
	g.endpoint = srv.URL + "/v1beta/models/%s:generateContent"
	return g
}

func TestGeminiCompleteFreeText(t *testing.T) {
	var got map[string]any
	g := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/gemini-2.5-flash:generateContent", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"Total revenue "},{"text":"was $4.2M."}]}}]}`))
	})

	text, err := g.Complete(context.Background(), Request{Prompt: "What is the total revenue?"})
	require.NoError(t, err)
	assert.Equal(t, "Total revenue was $4.2M.", text)
	assert.NotContains(t, got, "generationConfig")
}

func TestGeminiCompleteStructured(t *testing.T) {
	var got geminiRequest
	g := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"{\"type\":\"bar\"}"}]}}]}`))
	})

	schema := &Schema{
		Type: TypeObject,
		Properties: map[string]*Schema{
			"type": {Type: TypeString, Enum: []string{"bar", "line", "pie"}},
		},
		Required: []string{"type"},
	}
	text, err := g.Complete(context.Background(), Request{Prompt: "chart it", Schema: schema})
	require.NoError(t, err)
	assert.Equal(t, `{"type":"bar"}`, text)

	require.NotNil(t, got.GenerationConfig)
	assert.Equal(t, "application/json", got.GenerationConfig.ResponseMIMEType)
	require.NotNil(t, got.GenerationConfig.ResponseSchema)
	assert.Equal(t, []string{"bar", "line", "pie"}, got.GenerationConfig.ResponseSchema.Properties["type"].Enum)
	require.Len(t, got.Contents, 1)
	assert.Equal(t, "chart it", got.Contents[0].Parts[0].Text)
}

func TestGeminiCompleteErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{"api error message", http.StatusBadRequest, `{"error":{"code":400,"message":"API key not valid","status":"INVALID_ARGUMENT"}}`, "API key not valid"},
		{"raw error body", http.StatusServiceUnavailable, `overloaded`, "status 503: overloaded"},
		{"no candidates", http.StatusOK, `{"candidates":[]}`, "no candidates"},
		{"blocked", http.StatusOK, `{"promptFeedback":{"blockReason":"SAFETY"}}`, "prompt blocked: SAFETY"},
		{"empty text", http.StatusOK, `{"candidates":[{"content":{"parts":[]}}]}`, "no text"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			g := newTestGemini(t, func(w http.ResponseWriter, r *http.Request) {
				calls++
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			_, err := g.Complete(context.Background(), Request{Prompt: "q"})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
			assert.Equal(t, 1, calls, "no retries")

			var cerr *Error
			require.True(t, errors.As(err, &cerr))
			assert.Equal(t, ProviderGemini, cerr.Provider)
		})
	}
}

func TestGeminiClientHasNoTimeout(t *testing.T) {
	g := NewGeminiCompleter("gemini-2.5-flash", "test-key")
	assert.Zero(t, g.httpClient.Timeout, "requests are bounded by the caller's context only")
}

func newTestClaude(t *testing.T, handler http.HandlerFunc) *ClaudeCompleter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClaudeCompleter("claude-haiku-4-5", "test-key", option.WithBaseURL(srv.URL+"/"))
}

func claudeMessage(content string) string {
	return `{"id":"msg_01","type":"message","role":"assistant","model":"claude-haiku-4-5",` +
		`"content":` + content + `,"stop_reason":"end_turn","stop_sequence":null,` +
		`"usage":{"input_tokens":12,"output_tokens":8}}`
}

func TestClaudeComplete(t *testing.T) {
	tests := []struct {
		name       string
		schema     *Schema
		wantSystem bool
	}{
		{name: "free text", schema: nil, wantSystem: false},
		{name: "structured", schema: &Schema{Type: TypeObject}, wantSystem: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got map[string]any
			c := newTestClaude(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/v1/messages", r.URL.Path)
				assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
				body, _ := io.ReadAll(r.Body)
				assert.NoError(t, json.Unmarshal(body, &got))
				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte(claudeMessage(`[{"type":"text","text":"Total revenue "},{"type":"text","text":"was $4.2M."}]`)))
			})

			text, err := c.Complete(context.Background(), Request{Prompt: "What is the total revenue?", Schema: tt.schema})
			require.NoError(t, err)
			assert.Equal(t, "Total revenue was $4.2M.", text)
			assert.Equal(t, "claude-haiku-4-5", got["model"])

			if !tt.wantSystem {
				assert.NotContains(t, got, "system")
				return
			}
			system, ok := got["system"].([]any)
			require.True(t, ok, "system should be a list of text blocks")
			require.Len(t, system, 1)
			block, ok := system[0].(map[string]any)
			require.True(t, ok)
			assert.Equal(t, jsonOnlyInstruction, block["text"])
		})
	}
}

func TestClaudeCompleteErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{name: "empty content", status: http.StatusOK, body: claudeMessage(`[]`), wantMsg: "empty response from Claude"},
		{
			name:    "api error",
			status:  http.StatusBadRequest,
			body:    `{"type":"error","error":{"type":"invalid_request_error","message":"prompt is too long"}}`,
			wantMsg: "prompt is too long",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClaude(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			_, err := c.Complete(context.Background(), Request{Prompt: "hi"})
			require.Error(t, err)
			var cerr *Error
			require.True(t, errors.As(err, &cerr))
			assert.Equal(t, ProviderAnthropic, cerr.Provider)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestGeminiMissingKey(t *testing.T) {
	g := NewGeminiCompleter("gemini-2.5-flash", "")
	_, err := g.Complete(context.Background(), Request{Prompt: "q"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GEMINI_API_KEY")
}

type fakeConverser struct {
	input *bedrockruntime.ConverseInput
	out   *bedrockruntime.ConverseOutput
	err   error
}

func (f *fakeConverser) Converse(ctx context.Context, in *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	f.input = in
	return f.out, f.err
}

func TestNovaComplete(t *testing.T) {
	fake := &fakeConverser{out: &bedrockruntime.ConverseOutput{
		Output: &types.ConverseOutputMemberMessage{Value: types.Message{
			Role:    types.ConversationRoleAssistant,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: "forty-two"}},
		}},
	}}
	n := &NovaCompleter{model: "us.amazon.nova-2-lite-v1:0", client: fake}

	text, err := n.Complete(context.Background(), Request{Prompt: "q", Schema: &Schema{Type: TypeObject}})
	require.NoError(t, err)
	assert.Equal(t, "forty-two", text)
	require.Len(t, fake.input.System, 1)

	fake.out = &bedrockruntime.ConverseOutput{}
	_, err = n.Complete(context.Background(), Request{Prompt: "q"})
	assert.ErrorContains(t, err, "empty response")

	fake.err = errors.New("throttled")
	_, err = n.Complete(context.Background(), Request{Prompt: "q"})
	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, ProviderBedrock, cerr.Provider)
}

func TestLookup(t *testing.T) {
	m, err := Lookup(DefaultModel)
	require.NoError(t, err)
	assert.Equal(t, ProviderGemini, m.Provider)

	_, err = Lookup("gpt-4")
	assert.ErrorContains(t, err, "invalid model")

	models := Models()
	require.NotEmpty(t, models)
	assert.Equal(t, DefaultModel, models[0].Alias)
}

func TestNewSelectsProvider(t *testing.T) {
	c, err := New(context.Background(), "sonnet", Keys{Anthropic: "k"})
	require.NoError(t, err)
	assert.IsType(t, &ClaudeCompleter{}, c)

	c, err = New(context.Background(), "gemini-pro", Keys{Gemini: "k"})
	require.NoError(t, err)
	assert.IsType(t, &GeminiCompleter{}, c)
}
