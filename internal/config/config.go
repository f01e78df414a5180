// Package config holds operator-level configuration for a SupportFlow
// installation: data directory, LLM provider selection, model, API keys,
// audit signing key, and the resolved-ticket sweep age.
//
// Values come from env vars with the SUPPORTFLOW_ prefix (e.g.
// SUPPORTFLOW_PROVIDER) or from supportflow.config.yaml. API keys may also
// be supplied through the conventional ANTHROPIC_API_KEY / OPENAI_API_KEY
// env vars as a single-tenant development fallback.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Viper keys. Each maps to an env var with the SUPPORTFLOW_ prefix
// (e.g. "provider" → SUPPORTFLOW_PROVIDER) and to a YAML field in
// supportflow.config.yaml.
const (
	KeyDataDir           = "data_dir"
	KeyProvider          = "provider"
	KeyModel             = "model"
	KeyAnthropicAPIKey   = "anthropic_api_key"
	KeyOpenAIAPIKey      = "openai_api_key"
	KeySigningKey        = "signing_key"
	KeyPricingFile       = "pricing_file"
	KeyServerAddr        = "server_addr"
	KeyRetryMaxAttempts  = "retry_max_attempts"
	KeySweepResolvedDays = "sweep_resolved_days"
)

const (
	DefaultProvider          = "anthropic"
	DefaultModel             = "claude-3-5-sonnet-20241022"
	DefaultServerAddr        = ":8420"
	DefaultRetryMaxAttempts  = 3
	DefaultSweepResolvedDays = 30
)

// Config holds resolved configuration for one SupportFlow process.
type Config struct {
	DataDir           string        // base directory for all state (~/.supportflow)
	Provider          string        // "anthropic" or "openai"
	Model             string        // model identifier sent to the provider
	AnthropicAPIKey   string        // Anthropic API key
	OpenAIAPIKey      string        // OpenAI API key
	SigningKey        string        // HMAC-SHA256 key for audit entry signing (≥32 bytes)
	PricingFile       string        // optional YAML file with model pricing overrides
	ServerAddr        string        // listen address for the HTTP API
	RetryMaxAttempts  int           // bounded retry attempts for LLM calls
	SweepResolvedAge  time.Duration // close resolved tickets older than this
	usingDerivedSigningKey bool
}

// DBPath returns the full path to the SQLite database.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "supportflow.db")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *Config) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0o700)
}

// UsingDerivedSigningKey reports whether the signing key fell back to a
// generated per-machine default. Commands should warn when this is true.
func (c *Config) UsingDerivedSigningKey() bool {
	return c.usingDerivedSigningKey
}

// APIKey returns the API key for the configured provider, or a
// ConfigurationError-style failure when the key is missing.
func (c *Config) APIKey() (string, error) {
	switch c.Provider {
	case "anthropic":
		if c.AnthropicAPIKey == "" {
			return "", fmt.Errorf("anthropic API key not configured; set SUPPORTFLOW_ANTHROPIC_API_KEY or ANTHROPIC_API_KEY")
		}
		return c.AnthropicAPIKey, nil
	case "openai":
		if c.OpenAIAPIKey == "" {
			return "", fmt.Errorf("openai API key not configured; set SUPPORTFLOW_OPENAI_API_KEY or OPENAI_API_KEY")
		}
		return c.OpenAIAPIKey, nil
	default:
		return "", fmt.Errorf("unknown provider %q (want anthropic or openai)", c.Provider)
	}
}

func init() {
	viper.SetEnvPrefix("SUPPORTFLOW")
	viper.AutomaticEnv()
	viper.SetDefault(KeyProvider, DefaultProvider)
	viper.SetDefault(KeyModel, DefaultModel)
	viper.SetDefault(KeyServerAddr, DefaultServerAddr)
	viper.SetDefault(KeyRetryMaxAttempts, DefaultRetryMaxAttempts)
	viper.SetDefault(KeySweepResolvedDays, DefaultSweepResolvedDays)
}

// Load reads configuration from Viper (which merges env vars, config file,
// and defaults) and returns a validated Config.
func Load() (*Config, error) {
	cfg := &Config{
		DataDir:          resolveDataDir(),
		Provider:         viper.GetString(KeyProvider),
		Model:            viper.GetString(KeyModel),
		AnthropicAPIKey:  firstNonEmpty(viper.GetString(KeyAnthropicAPIKey), os.Getenv("ANTHROPIC_API_KEY")),
		OpenAIAPIKey:     firstNonEmpty(viper.GetString(KeyOpenAIAPIKey), os.Getenv("OPENAI_API_KEY")),
		SigningKey:       viper.GetString(KeySigningKey),
		PricingFile:      viper.GetString(KeyPricingFile),
		ServerAddr:       viper.GetString(KeyServerAddr),
		RetryMaxAttempts: viper.GetInt(KeyRetryMaxAttempts),
		SweepResolvedAge: time.Duration(viper.GetInt(KeySweepResolvedDays)) * 24 * time.Hour,
	}

	if cfg.SigningKey == "" {
		cfg.SigningKey = deriveDefaultKey(cfg.DataDir, "audit-signing")
		cfg.usingDerivedSigningKey = true
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func resolveDataDir() string {
	if dir := viper.GetString(KeyDataDir); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".supportflow"
	}
	return filepath.Join(home, ".supportflow")
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// deriveDefaultKey produces a deterministic fallback key from the data
// directory path and a salt. Deployments that need real tamper evidence
// must set an explicit signing key.
func deriveDefaultKey(dataDir, salt string) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("supportflow:%s:%s", dataDir, salt)))
	return hex.EncodeToString(h[:])
}

func (c *Config) validate() error {
	if c.Provider != "anthropic" && c.Provider != "openai" {
		return fmt.Errorf("provider must be anthropic or openai (got %q)", c.Provider)
	}
	if c.Model == "" {
		return fmt.Errorf("model must not be empty")
	}
	if len(c.SigningKey) < 32 {
		return fmt.Errorf("signing_key must be at least 32 bytes (got %d); set SUPPORTFLOW_SIGNING_KEY", len(c.SigningKey))
	}
	if c.RetryMaxAttempts < 1 {
		return fmt.Errorf("retry_max_attempts must be at least 1")
	}
	if c.SweepResolvedAge < 0 {
		return fmt.Errorf("sweep_resolved_days must not be negative")
	}
	return nil
}
