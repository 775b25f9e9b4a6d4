package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// MinSigningKeyLength is the HS256 key size in bytes
const MinSigningKeyLength = 32

const secretRedacted = "[REDACTED]"

// Secret keeps key material out of logs and serialized output.
// Use Value where the raw bytes are needed.
type Secret string

func (s Secret) String() string   { return secretRedacted }
func (s Secret) GoString() string { return secretRedacted }

// Value returns the raw secret
func (s Secret) Value() string { return string(s) }

// MarshalText always redacts, which also covers yaml output
func (s Secret) MarshalText() ([]byte, error) { return []byte(secretRedacted), nil }

func (s Secret) MarshalJSON() ([]byte, error) { return json.Marshal(secretRedacted) }

// TokenConfig is the immutable signing configuration shared by the
// TokenSigner and the gateway. It is built once at startup.
type TokenConfig struct {
	Secret   Secret
	Issuer   string
	Audience string
	Validity time.Duration
}

// Validate reports a ConfigurationFailure, it must stop the process
// before any traffic is served.
func (c TokenConfig) Validate() error {
	switch {
	case strings.TrimSpace(c.Secret.Value()) == "":
		return newConfigError("token signing secret is required")
	case len(c.Secret.Value()) < MinSigningKeyLength:
		return newConfigError(fmt.Sprintf("token signing secret must be at least %d bytes", MinSigningKeyLength))
	case strings.TrimSpace(c.Issuer) == "":
		return newConfigError("token issuer is required")
	case strings.TrimSpace(c.Audience) == "":
		return newConfigError("token audience is required")
	case c.Validity <= 0:
		return newConfigError("token validity must be positive")
	}
	return nil
}

// Environment names
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// JWTConfig mirrors the Jwt section of the deployment configuration
type JWTConfig struct {
	Key          Secret `yaml:"key" json:"-" env:"KEY"`
	Issuer       string `yaml:"valid_issuer" json:"valid_issuer" env:"VALID_ISSUER"`
	Audience     string `yaml:"valid_audience" json:"valid_audience" env:"VALID_AUDIENCE"`
	DurationDays int    `yaml:"duration_days" json:"duration_days" env:"DURATION_DAYS"`
}

// RateLimitConfig limits login and registration attempts per client
type RateLimitConfig struct {
	Enabled bool          `yaml:"enabled" json:"enabled" env:"ENABLED"`
	PerSec  float64       `yaml:"per_second" json:"per_second" env:"PER_SECOND"`
	Burst   int           `yaml:"burst" json:"burst" env:"BURST"`
	TTL     time.Duration `yaml:"ttl" json:"ttl" env:"TTL"`
}

// ProxyConfig lets c.IP() read a forwarded header, only for requests
// coming from TrustedProxies.
type ProxyConfig struct {
	Header         string   `yaml:"header" json:"header" env:"HEADER"`
	TrustedProxies []string `yaml:"trusted_proxies" json:"trusted_proxies" env:"TRUSTED_PROXIES"`
}

// Config holds the service options
type Config struct {
	Environment string          `yaml:"environment" json:"environment" env:"ENVIRONMENT"`
	Addr        string          `yaml:"addr" json:"addr" env:"ADDR"`
	DSN         string          `yaml:"dsn" json:"dsn" env:"DSN"`
	PhoneRegion string          `yaml:"phone_region" json:"phone_region" env:"PHONE_REGION"`
	BcryptCost  int             `yaml:"bcrypt_cost" json:"bcrypt_cost" env:"BCRYPT_COST"`
	Debug       bool            `yaml:"debug" json:"debug" env:"DEBUG"`
	JWT         JWTConfig       `yaml:"jwt" json:"jwt" envPrefix:"JWT_"`
	RateLimit   RateLimitConfig `yaml:"rate_limit" json:"rate_limit" envPrefix:"RATE_LIMIT_"`
	Proxy       ProxyConfig     `yaml:"proxy" json:"proxy" envPrefix:"PROXY_"`
}

// EnvPrefix is prepended to every environment variable
const EnvPrefix = "ACCOUNT_"

// DefaultConfig returns the built in defaults. The signing key has no
// default on purpose.
func DefaultConfig() Config {
	return Config{
		Environment: EnvProduction,
		Addr:        ":8080",
		DSN:         "file:accounts.db?cache=shared",
		PhoneRegion: "EG",
		BcryptCost:  DefaultBcryptCost,
		JWT: JWTConfig{
			DurationDays: 2,
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
			PerSec:  1,
			Burst:   5,
			TTL:     10 * time.Minute,
		},
	}
}

// LoadConfig resolves defaults, then the optional YAML file at path,
// then ACCOUNT_* environment variables.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}

	return cfg, nil
}

// IsDevelopment toggles diagnostic details in error responses
func (c Config) IsDevelopment() bool {
	return strings.EqualFold(c.Environment, EnvDevelopment)
}

// TokenConfig builds the immutable signing configuration
func (c Config) TokenConfig() TokenConfig {
	return TokenConfig{
		Secret:   c.JWT.Key,
		Issuer:   c.JWT.Issuer,
		Audience: c.JWT.Audience,
		Validity: time.Duration(c.JWT.DurationDays) * 24 * time.Hour,
	}
}

// Validate checks everything that must be right before serving traffic
func (c Config) Validate() error {
	if err := c.TokenConfig().Validate(); err != nil {
		return err
	}
	if c.BcryptCost != 0 && (c.BcryptCost < MinBcryptCost || c.BcryptCost > MaxBcryptCost) {
		return newConfigError(fmt.Sprintf("bcrypt cost must be between %d and %d", MinBcryptCost, MaxBcryptCost))
	}
	if c.RateLimit.Enabled && (c.RateLimit.PerSec <= 0 || c.RateLimit.Burst <= 0) {
		return newConfigError("rate limit requires a positive rate and burst")
	}
	if c.Proxy.Header != "" && len(c.Proxy.TrustedProxies) == 0 {
		return newConfigError("proxy header requires at least one trusted proxy")
	}
	return nil
}
