// Package config loads the fetcher's runtime configuration from environment
// variables into a single FetcherConfig: storage backend, KV connection,
// credential provider, and run concurrency.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EnvConfig provides utilities for loading configuration from environment variables
type EnvConfig struct {
	prefix string // Optional prefix for all environment variables
}

// NewEnvConfig creates a new environment configuration loader
func NewEnvConfig(prefix string) *EnvConfig {
	return &EnvConfig{
		prefix: prefix,
	}
}

// GetString retrieves a string value from environment with optional default
func (ec *EnvConfig) GetString(key, defaultValue string) string {
	fullKey := ec.buildKey(key)
	if value := os.Getenv(fullKey); value != "" {
		return value
	}
	return defaultValue
}

// MustGetString retrieves a required string value from environment or panics
func (ec *EnvConfig) MustGetString(key string) string {
	fullKey := ec.buildKey(key)
	value := os.Getenv(fullKey)
	if value == "" {
		panic(fmt.Sprintf("required environment variable %s not set", fullKey))
	}
	return value
}

// GetInt retrieves an integer value from environment with optional default
func (ec *EnvConfig) GetInt(key string, defaultValue int) int {
	fullKey := ec.buildKey(key)
	if value := os.Getenv(fullKey); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// GetBool retrieves a boolean value from environment with optional default
func (ec *EnvConfig) GetBool(key string, defaultValue bool) bool {
	fullKey := ec.buildKey(key)
	if value := os.Getenv(fullKey); value != "" {
		boolValue, err := strconv.ParseBool(value)
		if err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// GetDuration retrieves a duration value from environment with optional default
func (ec *EnvConfig) GetDuration(key string, defaultValue time.Duration) time.Duration {
	fullKey := ec.buildKey(key)
	if value := os.Getenv(fullKey); value != "" {
		duration, err := time.ParseDuration(value)
		if err == nil {
			return duration
		}
	}
	return defaultValue
}

// GetStringSlice retrieves a comma-separated string slice from environment
func (ec *EnvConfig) GetStringSlice(key string, defaultValue []string) []string {
	fullKey := ec.buildKey(key)
	if value := os.Getenv(fullKey); value != "" {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return defaultValue
}

// buildKey builds the full environment variable key with optional prefix
func (ec *EnvConfig) buildKey(key string) string {
	if ec.prefix != "" {
		return ec.prefix + "_" + key
	}
	return key
}

// Validator provides configuration validation utilities
type Validator struct {
	errors []string
}

// NewValidator creates a new configuration validator
func NewValidator() *Validator {
	return &Validator{
		errors: make([]string, 0),
	}
}

// RequireString validates that a string field is not empty
func (v *Validator) RequireString(field, value string) {
	if value == "" {
		v.errors = append(v.errors, fmt.Sprintf("%s is required", field))
	}
}

// RequirePositiveInt validates that an integer field is positive
func (v *Validator) RequirePositiveInt(field string, value int) {
	if value <= 0 {
		v.errors = append(v.errors, fmt.Sprintf("%s must be positive", field))
	}
}

// RequireOneOf validates that a value is one of the allowed options
func (v *Validator) RequireOneOf(field, value string, allowed []string) {
	if value == "" {
		v.errors = append(v.errors, fmt.Sprintf("%s is required", field))
		return
	}
	for _, option := range allowed {
		if value == option {
			return
		}
	}
	v.errors = append(v.errors, fmt.Sprintf("%s must be one of: %s", field, strings.Join(allowed, ", ")))
}

// IsValid returns true if there are no validation errors
func (v *Validator) IsValid() bool {
	return len(v.errors) == 0
}

// Errors returns all validation errors
func (v *Validator) Errors() []string {
	return v.errors
}

// ErrorString returns all validation errors as a single string
func (v *Validator) ErrorString() string {
	if len(v.errors) == 0 {
		return ""
	}
	return strings.Join(v.errors, "; ")
}

// Validate runs validation and returns error if invalid
func (v *Validator) Validate() error {
	if !v.IsValid() {
		return fmt.Errorf("configuration validation failed: %s", v.ErrorString())
	}
	return nil
}

// FetcherConfig is the runtime configuration surface: storage backend
// selection, KV store connection, credential provider selection, and run
// concurrency. Every field has an environment variable
// equivalent recognized under a caller-chosen prefix (e.g. "FETCHER").
type FetcherConfig struct {
	RunID       string
	Concurrency int

	CredentialsProviderType string // "infisical" | "env"
	CredentialsEnvPrefix    string
	CredentialsRegion       string // infisical environment slug, e.g. "prod"
	CredentialsEndpoint     string // infisical host, e.g. "app.infisical.com"
	CredentialsClientID     string
	CredentialsClientSecret string
	CredentialsProjectID    string

	StorageType     string // "s3" | "file"
	StorageBucket   string
	StoragePrefix   string
	StorageRegion   string
	StorageEndpoint string
	StorageRootDir  string // file sink only

	KVType       string // "memory" | "redis"
	KVHost       string
	KVPort       int
	KVDB         int
	KVPassword   string
	KVPrefix     string
	KVTTL        time.Duration
	KVSerializer string // "json" | "gob"
}

// LoadFetcherConfig reads a FetcherConfig from the environment under prefix,
// applying development-friendly defaults, then validates it. RUN_ID defaults
// to a freshly generated UUID so every run is traceable in logs and in the
// KV/storage key layout even when the caller doesn't supply one.
func LoadFetcherConfig(prefix string) (*FetcherConfig, error) {
	env := NewEnvConfig(prefix)

	cfg := &FetcherConfig{
		RunID:       env.GetString("RUN_ID", uuid.NewString()),
		Concurrency: env.GetInt("CONCURRENCY", 5),

		CredentialsProviderType: env.GetString("CREDENTIALS_PROVIDER", "env"),
		CredentialsEnvPrefix:    env.GetString("CREDENTIALS_ENV_PREFIX", prefix),
		CredentialsRegion:       env.GetString("CREDENTIALS_REGION", ""),
		CredentialsEndpoint:     env.GetString("CREDENTIALS_ENDPOINT", "app.infisical.com"),
		CredentialsClientID:     env.GetString("CREDENTIALS_CLIENT_ID", ""),
		CredentialsClientSecret: env.GetString("CREDENTIALS_CLIENT_SECRET", ""),
		CredentialsProjectID:    env.GetString("CREDENTIALS_PROJECT_ID", ""),

		StorageType:     env.GetString("STORAGE_TYPE", "file"),
		StorageBucket:   env.GetString("STORAGE_BUCKET", ""),
		StoragePrefix:   env.GetString("STORAGE_PREFIX", ""),
		StorageRegion:   env.GetString("STORAGE_REGION", ""),
		StorageEndpoint: env.GetString("STORAGE_ENDPOINT", ""),
		StorageRootDir:  env.GetString("STORAGE_ROOT_DIR", "./data"),

		KVType:       env.GetString("KV_TYPE", "memory"),
		KVHost:       env.GetString("KV_HOST", "localhost"),
		KVPort:       env.GetInt("KV_PORT", 6379),
		KVDB:         env.GetInt("KV_DB", 0),
		KVPassword:   env.GetString("KV_PASSWORD", ""),
		KVPrefix:     env.GetString("KV_PREFIX", prefix),
		KVTTL:        env.GetDuration("KV_TTL", 0),
		KVSerializer: env.GetString("KV_SERIALIZER", "json"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *FetcherConfig) validate() error {
	v := NewValidator()
	v.RequireOneOf("StorageType", c.StorageType, []string{"s3", "file"})
	v.RequireOneOf("KVType", c.KVType, []string{"memory", "redis"})
	v.RequireOneOf("CredentialsProviderType", c.CredentialsProviderType, []string{"infisical", "env"})
	v.RequirePositiveInt("Concurrency", c.Concurrency)
	if c.StorageType == "s3" {
		v.RequireString("StorageBucket", c.StorageBucket)
	}
	return v.Validate()
}
