// Package config loads and validates the service configuration from
// environment variables. The schema is flat by design: this service is
// container-first and every knob is a single env var.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config is the frozen runtime configuration. Build it with Load; the
// struct is never mutated afterwards.
type Config struct {
	// Port is the HTTP listen port.
	Port int `mapstructure:"port" validate:"required,gt=0,lte=65535"`

	// DatabaseURL is a postgres:// connection string. Empty selects the
	// embedded SQLite catalog at SQLitePath.
	DatabaseURL string `mapstructure:"database_url"`
	SQLitePath  string `mapstructure:"sqlite_path"`

	// StorageDriver selects the object store backend: "s3" or "local".
	StorageDriver string `mapstructure:"storage_driver" validate:"oneof=s3 local"`

	// S3 settings, required when StorageDriver is "s3".
	S3Endpoint       string `mapstructure:"s3_endpoint"`
	S3Region         string `mapstructure:"s3_region"`
	S3Bucket         string `mapstructure:"s3_bucket"`
	S3AccessKey      string `mapstructure:"s3_access_key"`
	S3SecretKey      string `mapstructure:"s3_secret_key"`
	S3ForcePathStyle bool   `mapstructure:"s3_force_path_style"`

	// Local driver settings, used when StorageDriver is "local".
	LocalStoragePath   string `mapstructure:"local_storage_path"`
	LocalPublicBaseURL string `mapstructure:"local_public_base_url"`

	// PublicRead allows unauthenticated artifact downloads.
	PublicRead bool `mapstructure:"public_read"`

	// MaxUploadBytes caps declared payload sizes.
	MaxUploadBytes int64 `mapstructure:"max_upload_bytes" validate:"gt=0"`

	// HMACAppKeys is the comma-separated app:secret keyring.
	HMACAppKeys string `mapstructure:"hmac_app_keys" validate:"required"`

	// CORSAllowlist is a comma-separated list of allowed origins.
	CORSAllowlist string `mapstructure:"cors_allowlist"`

	// JWTSecret enables bearer authentication when set. Must be at least
	// 32 characters when present.
	JWTSecret string `mapstructure:"jwt_secret" validate:"omitempty,min=32"`

	// UploadTokenSecret signs upload tokens. Falls back to JWTSecret;
	// one of the two must be set.
	UploadTokenSecret string `mapstructure:"upload_token_secret" validate:"omitempty,min=32"`

	// UploadSessionTTL is the init-to-complete window.
	UploadSessionTTL time.Duration `mapstructure:"upload_session_ttl" validate:"gt=0"`

	// IPFS replication settings. IPFSMode selects "node" (self-hosted
	// Kubo) or "pinned" (hosted pinning service).
	IPFSEnabled    bool   `mapstructure:"ipfs_enabled"`
	IPFSMode       string `mapstructure:"ipfs_mode" validate:"omitempty,oneof=node pinned"`
	IPFSAPIURL     string `mapstructure:"ipfs_api_url"`
	IPFSPinAPIKey  string `mapstructure:"ipfs_pin_api_key"`
	IPFSGatewayURL string `mapstructure:"ipfs_gateway_url"`

	// MetricsEnabled exposes /metrics with a Prometheus registry.
	MetricsEnabled bool `mapstructure:"metrics_enabled"`

	// LogLevel is debug, info, warn or error. LogFormat is text or json.
	LogLevel  string `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	LogFormat string `mapstructure:"log_format" validate:"oneof=text json"`

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// setDefaults registers every default on the viper instance.
func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 3001)
	v.SetDefault("sqlite_path", "data/catalog.db")
	v.SetDefault("storage_driver", "s3")
	v.SetDefault("s3_region", "us-east-1")
	v.SetDefault("s3_force_path_style", true)
	v.SetDefault("local_storage_path", "data/objects")
	v.SetDefault("public_read", false)
	v.SetDefault("max_upload_bytes", 52_428_800)
	v.SetDefault("upload_session_ttl", 5*time.Minute)
	v.SetDefault("ipfs_enabled", false)
	v.SetDefault("ipfs_mode", "node")
	v.SetDefault("ipfs_gateway_url", "https://ipfs.io")
	v.SetDefault("metrics_enabled", true)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("shutdown_timeout", 30*time.Second)
}

// Load reads configuration from the environment, applies defaults and
// validates the result.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	// AutomaticEnv alone does not surface env vars through Unmarshal;
	// each key must be bound explicitly.
	for _, key := range []string{
		"port", "database_url", "sqlite_path",
		"storage_driver",
		"s3_endpoint", "s3_region", "s3_bucket", "s3_access_key", "s3_secret_key", "s3_force_path_style",
		"local_storage_path", "local_public_base_url",
		"public_read", "max_upload_bytes",
		"hmac_app_keys", "cors_allowlist",
		"jwt_secret", "upload_token_secret", "upload_session_ttl",
		"ipfs_enabled", "ipfs_mode", "ipfs_api_url", "ipfs_pin_api_key", "ipfs_gateway_url",
		"metrics_enabled", "log_level", "log_format", "shutdown_timeout",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", strings.ToUpper(key), err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints and cross-field requirements,
// aggregating every violation into one error.
func (c *Config) Validate() error {
	var problems []string

	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return err
		}
		for _, fe := range fieldErrs {
			problems = append(problems, fmt.Sprintf("%s fails %q", fe.Field(), fe.Tag()))
		}
	}

	if c.StorageDriver == "s3" {
		if c.S3Bucket == "" {
			problems = append(problems, "S3_BUCKET is required with the s3 driver")
		}
		if c.S3AccessKey == "" || c.S3SecretKey == "" {
			problems = append(problems, "S3_ACCESS_KEY and S3_SECRET_KEY are required with the s3 driver")
		}
	}
	if c.StorageDriver == "local" && c.LocalStoragePath == "" {
		problems = append(problems, "LOCAL_STORAGE_PATH is required with the local driver")
	}

	if c.UploadTokenSecretValue() == "" {
		problems = append(problems, "UPLOAD_TOKEN_SECRET or JWT_SECRET must be set")
	}

	if c.IPFSEnabled {
		switch c.IPFSMode {
		case "node":
			if c.IPFSAPIURL == "" {
				problems = append(problems, "IPFS_API_URL is required when IPFS_ENABLED with mode node")
			}
		case "pinned":
			if c.IPFSAPIURL == "" || c.IPFSPinAPIKey == "" {
				problems = append(problems, "IPFS_API_URL and IPFS_PIN_API_KEY are required when IPFS_ENABLED with mode pinned")
			}
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// UploadTokenSecretValue resolves the upload token signing secret:
// UPLOAD_TOKEN_SECRET when set, otherwise JWT_SECRET.
func (c *Config) UploadTokenSecretValue() string {
	if c.UploadTokenSecret != "" {
		return c.UploadTokenSecret
	}
	return c.JWTSecret
}

// CORSOrigins splits the allowlist into origins. Empty input yields nil.
func (c *Config) CORSOrigins() []string {
	if strings.TrimSpace(c.CORSAllowlist) == "" {
		return nil
	}
	parts := strings.Split(c.CORSAllowlist, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			origins = append(origins, p)
		}
	}
	return origins
}
