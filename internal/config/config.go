// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP server listens on (e.g. :3001).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`

	// GitHubToken is the token used for all repository access. Required
	// unless OTP_STORE=memory and no mutation surface is needed.
	GitHubToken string `mapstructure:"GITHUB_TOKEN"`
	// GitHubOwner is the owner of the data repository.
	GitHubOwner string `mapstructure:"GITHUB_OWNER"`
	// GitHubRepo is the name of the data repository.
	GitHubRepo string `mapstructure:"GITHUB_REPO"`
	// DataBranch is the branch holding the authoritative member list.
	DataBranch string `mapstructure:"DATA_BRANCH"`
	// StateBranch is the orphan branch holding OTP entries and the audit log.
	StateBranch string `mapstructure:"STATE_BRANCH"`
	// MembersFile is the path of the member list JSON inside the repository.
	MembersFile string `mapstructure:"MEMBERS_FILE"`

	// TokenSecret signs bearer tokens and keys the identity hash. Required.
	TokenSecret string `mapstructure:"TOKEN_SECRET"`
	// OTPTTL is the one-time code lifetime (e.g. "10m").
	OTPTTL string `mapstructure:"OTP_TTL"`
	// TokenTTL is the bearer token lifetime (e.g. "1h").
	TokenTTL string `mapstructure:"TOKEN_TTL"`
	// OTPMaxAttempts is the number of wrong codes tolerated before the
	// entry is invalidated.
	OTPMaxAttempts int `mapstructure:"OTP_MAX_ATTEMPTS"`
	// OTPStore selects the code store backend: "memory" or "github".
	OTPStore string `mapstructure:"OTP_STORE"`

	// ResendAPIKey is the API key for the Resend mail API. When empty,
	// codes are logged locally instead of mailed (development only).
	ResendAPIKey string `mapstructure:"RESEND_API_KEY"`
	// FromEmail is the sender address for code mails.
	FromEmail string `mapstructure:"FROM_EMAIL"`

	// FieldPolicyFile optionally overrides the compiled-in field policy
	// with a Rego file on disk.
	FieldPolicyFile string `mapstructure:"FIELD_POLICY_FILE"`

	// StoreTimeout bounds every remote store round trip (e.g. "10s").
	StoreTimeout string `mapstructure:"STORE_TIMEOUT"`

	// OTLPEndpoint is the OTLP gRPC collector endpoint; empty disables export.
	OTLPEndpoint string `mapstructure:"OTLP_ENDPOINT"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
}

// Load reads .env (if present), then builds and validates Config from the
// environment via Viper. Missing .env is ignored (e.g. in CI). Env vars
// override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":3001")
	v.SetDefault("GITHUB_TOKEN", "")
	v.SetDefault("GITHUB_OWNER", "")
	v.SetDefault("GITHUB_REPO", "")
	v.SetDefault("DATA_BRANCH", "main")
	v.SetDefault("STATE_BRANCH", "otp-state")
	v.SetDefault("MEMBERS_FILE", "mitglieder_data.json")
	v.SetDefault("TOKEN_SECRET", "")
	v.SetDefault("OTP_TTL", "10m")
	v.SetDefault("TOKEN_TTL", "1h")
	v.SetDefault("OTP_MAX_ATTEMPTS", 3)
	v.SetDefault("OTP_STORE", "memory")
	v.SetDefault("RESEND_API_KEY", "")
	v.SetDefault("FROM_EMAIL", "")
	v.SetDefault("FIELD_POLICY_FILE", "")
	v.SetDefault("STORE_TIMEOUT", "10s")
	v.SetDefault("OTLP_ENDPOINT", "")
	v.SetDefault("APP_ENV", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	if cfg.TokenSecret == "" {
		return nil, errors.New("config: TOKEN_SECRET must be set")
	}
	if cfg.OTPStore != "memory" && cfg.OTPStore != "github" {
		return nil, fmt.Errorf("config: OTP_STORE must be memory or github, got %q", cfg.OTPStore)
	}
	// The member list lives in the repository, so the backend is needed
	// even when OTP entries stay in memory.
	if cfg.GitHubToken == "" || cfg.GitHubOwner == "" || cfg.GitHubRepo == "" {
		return nil, errors.New("config: GITHUB_TOKEN, GITHUB_OWNER, and GITHUB_REPO must be set")
	}
	if cfg.Env == "production" && cfg.ResendAPIKey == "" {
		return nil, errors.New("config: RESEND_API_KEY must be set when APP_ENV=production")
	}

	return &cfg, nil
}

// CodeTTL parses OTPTTL as a time.Duration. Returns 10m if unset or invalid.
func (c *Config) CodeTTL() time.Duration {
	d, err := time.ParseDuration(c.OTPTTL)
	if err != nil || d <= 0 {
		return 10 * time.Minute
	}
	return d
}

// BearerTTL parses TokenTTL as a time.Duration. Returns 1h if unset or invalid.
func (c *Config) BearerTTL() time.Duration {
	d, err := time.ParseDuration(c.TokenTTL)
	if err != nil || d <= 0 {
		return time.Hour
	}
	return d
}

// RemoteTimeout parses StoreTimeout as a time.Duration. Returns 10s if
// unset or invalid.
func (c *Config) RemoteTimeout() time.Duration {
	d, err := time.ParseDuration(c.StoreTimeout)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}
