package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environment is the deployment environment a DeployConfig was loaded for.
// Production tightens several checks (SSL, CORS, debug) beyond what
// staging/development require.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
	EnvTesting     Environment = "testing"
)

// DeployConfig is the ingest/agents services' runtime configuration,
// sourced entirely from environment variables per §6's environment
// configuration table. DeployConfig never reads a config file: every field
// maps to one recognized env var, with .env loaded first via godotenv for
// local development.
type DeployConfig struct {
	Environment Environment
	Debug       bool

	SecretKey      string
	JWTSecretKey   string
	EncryptionKey  string

	DatabaseURL string
	RedisURL    string
	VectorDBURL string

	LLMEndpoint       string
	LLMModel          string
	EmbeddingEndpoint string
	EmbeddingModel    string

	CORSOrigins        []string
	RateLimitRequests  int
	RateLimitWindow    time.Duration

	MaxFileSize  int64
	ChunkSize    int
	ChunkOverlap int

	SearchThreshold float64
	LLMTemperature  float64
	LLMMaxTokens    int

	TestMode bool
}

// maxFileSizeHardCap is §6's absolute ceiling on MAX_FILE_SIZE, regardless
// of what the environment requests.
const maxFileSizeHardCap = 500 << 20

// weakSecretSubstrings are the patterns a production secret must not
// contain; catches placeholder values left over from local .env files.
var weakSecretSubstrings = []string{"changeme", "secret", "password", "example", "test", "default"}

// LoadDeployConfig reads .env (if present, never overriding already-set
// process environment) then builds a DeployConfig from os.Getenv, applying
// the defaults §6 documents for every optional key.
func LoadDeployConfig() (*DeployConfig, error) {
	_ = godotenv.Load()

	cfg := &DeployConfig{
		Environment: Environment(getenvOr("ENVIRONMENT", string(EnvDevelopment))),
		Debug:       getenvBool("DEBUG", false),

		SecretKey:     os.Getenv("SECRET_KEY"),
		JWTSecretKey:  os.Getenv("JWT_SECRET_KEY"),
		EncryptionKey: os.Getenv("ENCRYPTION_KEY"),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisURL:    os.Getenv("REDIS_URL"),
		VectorDBURL: os.Getenv("VECTOR_DB_URL"),

		LLMEndpoint:       os.Getenv("LLM_ENDPOINT"),
		LLMModel:          os.Getenv("LLM_MODEL"),
		EmbeddingEndpoint: os.Getenv("EMBEDDING_ENDPOINT"),
		EmbeddingModel:    os.Getenv("EMBEDDING_MODEL"),

		RateLimitRequests: getenvInt("RATE_LIMIT_REQUESTS", 120),
		RateLimitWindow:   getenvDuration("RATE_LIMIT_WINDOW", time.Minute),

		MaxFileSize:  getenvInt64("MAX_FILE_SIZE", 50<<20),
		ChunkSize:    getenvInt("CHUNK_SIZE", 1000),
		ChunkOverlap: getenvInt("CHUNK_OVERLAP", 200),

		SearchThreshold: getenvFloat("SEARCH_THRESHOLD", 0.5),
		LLMTemperature:  getenvFloat("LLM_TEMPERATURE", 0.2),
		LLMMaxTokens:    getenvInt("LLM_MAX_TOKENS", 4000),

		TestMode: Environment(getenvOr("ENVIRONMENT", "")) == EnvTesting,
	}
	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.CORSOrigins = append(cfg.CORSOrigins, o)
			}
		}
	}
	return cfg, nil
}

func getenvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func getenvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return n
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

// DeployValidator validates a DeployConfig per §6's environment
// configuration table, failing fast at the first failed stage.
type DeployValidator struct {
	cfg *DeployConfig
}

// NewDeployValidator creates a validator for the given deployment config.
func NewDeployValidator(cfg *DeployConfig) *DeployValidator {
	return &DeployValidator{cfg: cfg}
}

// ValidateAll performs comprehensive validation, stopping at the first
// failure. A non-nil error means the process must exit with code 1.
func (v *DeployValidator) ValidateAll() error {
	if err := v.validateEnvironment(); err != nil {
		return fmt.Errorf("environment validation failed: %w", err)
	}
	if err := v.validateSecrets(); err != nil {
		return fmt.Errorf("secret validation failed: %w", err)
	}
	if err := v.validateDependencyURLs(); err != nil {
		return fmt.Errorf("dependency URL validation failed: %w", err)
	}
	if err := v.validateLimits(); err != nil {
		return fmt.Errorf("limit validation failed: %w", err)
	}
	if err := v.validateCORS(); err != nil {
		return fmt.Errorf("CORS validation failed: %w", err)
	}
	return nil
}

func (v *DeployValidator) validateEnvironment() error {
	switch v.cfg.Environment {
	case EnvDevelopment, EnvStaging, EnvProduction, EnvTesting:
	default:
		return fmt.Errorf("ENVIRONMENT must be one of development, staging, production, testing, got %q", v.cfg.Environment)
	}
	if v.cfg.Environment == EnvProduction && v.cfg.Debug {
		return fmt.Errorf("DEBUG must be false in production")
	}
	return nil
}

func (v *DeployValidator) validateSecrets() error {
	if v.cfg.Environment == EnvTesting {
		return nil
	}
	for _, s := range []struct {
		name  string
		value string
	}{
		{"SECRET_KEY", v.cfg.SecretKey},
		{"JWT_SECRET_KEY", v.cfg.JWTSecretKey},
		{"ENCRYPTION_KEY", v.cfg.EncryptionKey},
	} {
		if len(s.value) < 32 {
			return fmt.Errorf("%s must be at least 32 characters, got %d", s.name, len(s.value))
		}
		lower := strings.ToLower(s.value)
		for _, weak := range weakSecretSubstrings {
			if strings.Contains(lower, weak) {
				return fmt.Errorf("%s contains a weak placeholder pattern %q", s.name, weak)
			}
		}
	}
	return nil
}

func (v *DeployValidator) validateDependencyURLs() error {
	if v.cfg.Environment == EnvTesting || v.cfg.TestMode {
		return nil
	}
	for _, s := range []struct {
		name  string
		value string
	}{
		{"DATABASE_URL", v.cfg.DatabaseURL},
		{"REDIS_URL", v.cfg.RedisURL},
		{"VECTOR_DB_URL", v.cfg.VectorDBURL},
	} {
		if s.value == "" {
			return fmt.Errorf("%s is required outside test mode", s.name)
		}
	}
	return nil
}

func (v *DeployValidator) validateLimits() error {
	if v.cfg.MaxFileSize <= 0 || v.cfg.MaxFileSize > maxFileSizeHardCap {
		return fmt.Errorf("MAX_FILE_SIZE must be between 1 and %d bytes, got %d", maxFileSizeHardCap, v.cfg.MaxFileSize)
	}
	if v.cfg.ChunkSize <= 0 {
		return fmt.Errorf("CHUNK_SIZE must be positive, got %d", v.cfg.ChunkSize)
	}
	if v.cfg.ChunkOverlap < 0 || v.cfg.ChunkOverlap >= v.cfg.ChunkSize {
		return fmt.Errorf("CHUNK_OVERLAP must be non-negative and less than CHUNK_SIZE, got overlap=%d size=%d", v.cfg.ChunkOverlap, v.cfg.ChunkSize)
	}
	if v.cfg.SearchThreshold < 0 || v.cfg.SearchThreshold > 1 {
		return fmt.Errorf("SEARCH_THRESHOLD must be in [0,1], got %v", v.cfg.SearchThreshold)
	}
	if v.cfg.LLMTemperature < 0 || v.cfg.LLMTemperature > 2 {
		return fmt.Errorf("LLM_TEMPERATURE must be in [0,2], got %v", v.cfg.LLMTemperature)
	}
	if v.cfg.LLMMaxTokens <= 0 || v.cfg.LLMMaxTokens > 32000 {
		return fmt.Errorf("LLM_MAX_TOKENS must be between 1 and 32000, got %d", v.cfg.LLMMaxTokens)
	}
	if v.cfg.RateLimitRequests <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be positive, got %d", v.cfg.RateLimitRequests)
	}
	if v.cfg.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be positive, got %v", v.cfg.RateLimitWindow)
	}
	return nil
}

func (v *DeployValidator) validateCORS() error {
	if v.cfg.Environment != EnvProduction {
		return nil
	}
	for _, o := range v.cfg.CORSOrigins {
		if o == "*" {
			return fmt.Errorf("CORS_ORIGINS must not contain \"*\" in production")
		}
	}
	return nil
}
