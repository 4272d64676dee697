package config

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"DOCCHAT_MODEL", "GEMINI_API_KEY", "API_KEY", "ANTHROPIC_API_KEY", "AWS_REGION",
	"DOCCHAT_SECRET_PREFIX", "DOCCHAT_MIN_TEXT", "DOCCHAT_LOG_FILE", "DOCCHAT_LOG_LEVEL",
	"DOCCHAT_MCP_TRANSPORT", "DOCCHAT_MCP_PORT",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestFromEnvDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "gemini-flash", cfg.Model)
	assert.Equal(t, 10, cfg.MinTextLength)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, TransportStdio, cfg.MCPTransport)
	assert.Equal(t, 8000, cfg.MCPPort)
	assert.NotEmpty(t, cfg.LogFile)
}

func TestFromEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("DOCCHAT_MODEL", "sonnet")
	t.Setenv("API_KEY", "legacy-key")
	t.Setenv("ANTHROPIC_API_KEY", "ant-key")
	t.Setenv("DOCCHAT_MIN_TEXT", "50")
	t.Setenv("DOCCHAT_LOG_LEVEL", "debug")
	t.Setenv("DOCCHAT_MCP_TRANSPORT", "http")
	t.Setenv("DOCCHAT_MCP_PORT", "9090")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "sonnet", cfg.Model)
	assert.Equal(t, "legacy-key", cfg.GeminiAPIKey, "API_KEY is accepted for Gemini")
	assert.Equal(t, 50, cfg.MinTextLength)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, TransportHTTP, cfg.MCPTransport)
	assert.Equal(t, 9090, cfg.MCPPort)
	assert.NoError(t, cfg.Validate())

	t.Setenv("GEMINI_API_KEY", "primary")
	cfg, err = FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "primary", cfg.GeminiAPIKey)
}

func TestFromEnvInvalidNumbers(t *testing.T) {
	clearEnv(t)
	t.Setenv("DOCCHAT_MIN_TEXT", "ten")
	_, err := FromEnv()
	assert.ErrorContains(t, err, "DOCCHAT_MIN_TEXT")

	clearEnv(t)
	t.Setenv("DOCCHAT_LOG_LEVEL", "chatty")
	_, err = FromEnv()
	assert.ErrorContains(t, err, "DOCCHAT_LOG_LEVEL")
}

func TestValidate(t *testing.T) {
	base := Config{Model: "gemini-flash", GeminiAPIKey: "k", MinTextLength: 10, MCPTransport: TransportStdio, MCPPort: 8000}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"ok", func(c *Config) {}, ""},
		{"missing gemini key", func(c *Config) { c.GeminiAPIKey = "" }, "GEMINI_API_KEY"},
		{"missing anthropic key", func(c *Config) { c.Model = "haiku" }, "ANTHROPIC_API_KEY"},
		{"bedrock needs no key", func(c *Config) { c.Model = "nova-lite"; c.GeminiAPIKey = "" }, ""},
		{"unknown model", func(c *Config) { c.Model = "gpt-4" }, "invalid model"},
		{"bad min text", func(c *Config) { c.MinTextLength = 0 }, "minimum text length"},
		{"bad transport", func(c *Config) { c.MCPTransport = "sse" }, "invalid MCP transport"},
		{"bad port", func(c *Config) { c.MCPPort = 70000 }, "invalid MCP port"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

type fakeSecrets struct {
	values map[string]string
	asked  []string
}

func (f *fakeSecrets) GetSecretValue(ctx context.Context, in *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	id := aws.ToString(in.SecretId)
	f.asked = append(f.asked, id)
	v, ok := f.values[id]
	if !ok {
		return nil, errors.New("ResourceNotFoundException")
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: aws.String(v + "\n")}, nil
}

func TestLoadSecretsFillsMissingKeys(t *testing.T) {
	cfg := &Config{SecretPrefix: "/docchat/", AnthropicAPIKey: "from-env"}
	fake := &fakeSecrets{values: map[string]string{
		"/docchat/GEMINI_API_KEY":    "from-secrets",
		"/docchat/ANTHROPIC_API_KEY": "should-not-be-used",
	}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	require.NoError(t, cfg.loadSecrets(context.Background(), fake, logger))
	assert.Equal(t, "from-secrets", cfg.GeminiAPIKey)
	assert.Equal(t, "from-env", cfg.AnthropicAPIKey)
	assert.Equal(t, []string{"/docchat/GEMINI_API_KEY"}, fake.asked)
}

func TestLoadSecretsNoPrefix(t *testing.T) {
	cfg := &Config{}
	assert.NoError(t, cfg.LoadSecrets(context.Background(), slog.Default()))
	assert.Empty(t, cfg.GeminiAPIKey)
}
