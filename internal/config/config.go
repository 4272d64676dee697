// Package config resolves runtime settings from the environment, an optional
// .env file and AWS Secrets Manager. Command-line flags are applied on top by
// the callers.
package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/joho/godotenv"

	"github.com/apresai/docchat/internal/completion"
	"github.com/apresai/docchat/internal/ingest"
)

const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

type Config struct {
	Model           string
	GeminiAPIKey    string
	AnthropicAPIKey string
	AWSRegion       string
	SecretPrefix    string // e.g. "/docchat/"
	MinTextLength   int
	LogFile         string
	LogLevel        slog.Level
	MCPTransport    string
	MCPPort         int
}

// Load seeds the environment from .env when present, then reads it.
func Load() (*Config, error) {
	// Missing .env is fine; existing variables are never overwritten.
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv reads the configuration from environment variables only.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Model:           envOr("DOCCHAT_MODEL", completion.DefaultModel),
		GeminiAPIKey:    envOr("GEMINI_API_KEY", os.Getenv("API_KEY")),
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		AWSRegion:       envOr("AWS_REGION", "us-east-1"),
		SecretPrefix:    os.Getenv("DOCCHAT_SECRET_PREFIX"),
		MinTextLength:   ingest.DefaultMinTextLength,
		LogFile:         envOr("DOCCHAT_LOG_FILE", defaultLogFile()),
		LogLevel:        slog.LevelInfo,
		MCPTransport:    envOr("DOCCHAT_MCP_TRANSPORT", TransportStdio),
		MCPPort:         8000,
	}

	if v := os.Getenv("DOCCHAT_MIN_TEXT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid DOCCHAT_MIN_TEXT %q: %w", v, err)
		}
		cfg.MinTextLength = n
	}
	if v := os.Getenv("DOCCHAT_MCP_PORT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid DOCCHAT_MCP_PORT %q: %w", v, err)
		}
		cfg.MCPPort = n
	}
	if v := os.Getenv("DOCCHAT_LOG_LEVEL"); v != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(v)); err != nil {
			return nil, fmt.Errorf("invalid DOCCHAT_LOG_LEVEL %q: %w", v, err)
		}
	}
	return cfg, nil
}

// Keys returns the provider credentials for completion.New.
func (c *Config) Keys() completion.Keys {
	return completion.Keys{
		Gemini:    c.GeminiAPIKey,
		Anthropic: c.AnthropicAPIKey,
		AWSRegion: c.AWSRegion,
	}
}

// Validate checks the model alias and that its provider has credentials.
func (c *Config) Validate() error {
	m, err := completion.Lookup(c.Model)
	if err != nil {
		return err
	}
	switch m.Provider {
	case completion.ProviderGemini:
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("missing required environment variable GEMINI_API_KEY for model %s\nYou can also pass it via --gemini-api-key", c.Model)
		}
	case completion.ProviderAnthropic:
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("missing required environment variable ANTHROPIC_API_KEY for model %s\nYou can also pass it via --anthropic-api-key", c.Model)
		}
	case completion.ProviderBedrock:
		// Bedrock uses the default AWS credential chain.
	}

	if c.MinTextLength < 1 {
		return fmt.Errorf("minimum text length must be positive (got %d)", c.MinTextLength)
	}
	if c.MCPTransport != TransportStdio && c.MCPTransport != TransportHTTP {
		return fmt.Errorf("invalid MCP transport %q: must be stdio or http", c.MCPTransport)
	}
	if c.MCPPort < 1 || c.MCPPort > 65535 {
		return fmt.Errorf("invalid MCP port %d", c.MCPPort)
	}
	return nil
}

type secretGetter interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// LoadSecrets fills missing API keys from Secrets Manager under SecretPrefix.
// It does nothing when no prefix is configured or every key is already set.
func (c *Config) LoadSecrets(ctx context.Context, logger *slog.Logger) error {
	if c.SecretPrefix == "" || (c.GeminiAPIKey != "" && c.AnthropicAPIKey != "") {
		return nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(c.AWSRegion))
	if err != nil {
		return fmt.Errorf("load aws config: %w", err)
	}
	return c.loadSecrets(ctx, secretsmanager.NewFromConfig(awsCfg), logger)
}

func (c *Config) loadSecrets(ctx context.Context, client secretGetter, logger *slog.Logger) error {
	secrets := map[string]*string{
		"GEMINI_API_KEY":    &c.GeminiAPIKey,
		"ANTHROPIC_API_KEY": &c.AnthropicAPIKey,
	}

	for name, dst := range secrets {
		if *dst != "" {
			continue
		}
		secretID := c.SecretPrefix + name
		result, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
			SecretId: aws.String(secretID),
		})
		if err != nil {
			logger.Info("Secret not found", "secret_id", secretID, "error", err)
			continue
		}
		if result.SecretString != nil {
			*dst = strings.TrimSpace(*result.SecretString)
			logger.Info("Loaded secret", "secret_id", secretID)
		}
	}
	return nil
}

func defaultLogFile() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "docchat.log"
	}
	return filepath.Join(dir, "docchat", "docchat.log")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
