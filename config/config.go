// Package config resolves storage credentials and endpoints from the
// environment, an optional .env file and explicit overrides.
//
// Precedence, highest first: explicit overrides, process environment,
// .env file, built-in defaults.
package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	storageerrors "github.com/input-output-hk/catalyst-forge-libs/storage/errors"
	"github.com/input-output-hk/catalyst-forge-libs/storage/storagetypes"
)

// Environment variables read by Load.
const (
	EnvEndpoint        = "TIGRIS_STORAGE_ENDPOINT"
	EnvBucket          = "TIGRIS_STORAGE_BUCKET"
	EnvAccessKeyID     = "TIGRIS_STORAGE_ACCESS_KEY_ID"
	EnvSecretAccessKey = "TIGRIS_STORAGE_SECRET_ACCESS_KEY"
	EnvSessionToken    = "TIGRIS_SESSION_TOKEN"
	EnvOrganizationID  = "TIGRIS_ORGANIZATION_ID"
)

// viper keys
const (
	keyEndpoint        = "endpoint"
	keyBucket          = "bucket"
	keyAccessKeyID     = "access_key_id"
	keySecretAccessKey = "secret_access_key"
	keySessionToken    = "session_token"
	keyOrganizationID  = "organization_id"
)

var envKeys = map[string]string{
	EnvEndpoint:        keyEndpoint,
	EnvBucket:          keyBucket,
	EnvAccessKeyID:     keyAccessKeyID,
	EnvSecretAccessKey: keySecretAccessKey,
	EnvSessionToken:    keySessionToken,
	EnvOrganizationID:  keyOrganizationID,
}

// Config holds resolved storage settings.
type Config struct {
	Endpoint        string `mapstructure:"endpoint"`
	Bucket          string `mapstructure:"bucket"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	SessionToken    string `mapstructure:"session_token"`
	OrganizationID  string `mapstructure:"organization_id"`
}

type loadOptions struct {
	envFile        string
	requireEnvFile bool
	overrides      Config
}

// Option configures Load.
type Option func(*loadOptions)

// WithEnvFile reads additional values from a dotenv file. A missing file is ignored.
func WithEnvFile(path string) Option {
	return func(o *loadOptions) {
		o.envFile = path
	}
}

// WithRequiredEnvFile is like WithEnvFile but fails when the file is missing.
func WithRequiredEnvFile(path string) Option {
	return func(o *loadOptions) {
		o.envFile = path
		o.requireEnvFile = true
	}
}

// WithOverrides sets values that take precedence over every other source.
// Empty fields are ignored.
func WithOverrides(c Config) Option {
	return func(o *loadOptions) {
		o.overrides = c
	}
}

// Load resolves the configuration. It does not validate it; call Validate.
func Load(opts ...Option) (*Config, error) {
	var o loadOptions
	for _, opt := range opts {
		opt(&o)
	}

	v := viper.New()
	v.SetDefault(keyEndpoint, storagetypes.GlobalEndpoint)

	for env, key := range envKeys {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("binding %s: %w", env, err)
		}
	}

	if o.envFile != "" {
		values, err := godotenv.Read(o.envFile)
		switch {
		case errors.Is(err, fs.ErrNotExist) && !o.requireEnvFile:
			// optional file absent
		case err != nil:
			return nil, fmt.Errorf("reading env file %s: %w", o.envFile, err)
		default:
			for env, val := range values {
				if key, ok := envKeys[env]; ok && val != "" {
					v.SetDefault(key, val)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding configuration: %w", err)
	}

	cfg.Merge(o.overrides)
	return &cfg, nil
}

// Merge copies the non-empty fields of other into c.
func (c *Config) Merge(other Config) {
	set := func(dst *string, src string) {
		if src != "" {
			*dst = src
		}
	}
	set(&c.Endpoint, other.Endpoint)
	set(&c.Bucket, other.Bucket)
	set(&c.AccessKeyID, other.AccessKeyID)
	set(&c.SecretAccessKey, other.SecretAccessKey)
	set(&c.SessionToken, other.SessionToken)
	set(&c.OrganizationID, other.OrganizationID)
}

// UsesSessionToken reports whether the config authenticates with a session
// token scoped to an organization instead of an access key pair.
func (c *Config) UsesSessionToken() bool {
	return c.SessionToken != "" && c.OrganizationID != ""
}

// Validate reports the first missing required value.
// Bucket is only required when requireBucket is set; bucket management
// calls work without one.
func (c *Config) Validate(requireBucket bool) error {
	if c.Endpoint == "" {
		return storageerrors.MissingConfig("endpoint", EnvEndpoint)
	}
	if requireBucket && c.Bucket == "" {
		return storageerrors.MissingConfig("bucket", EnvBucket)
	}
	if c.UsesSessionToken() {
		return nil
	}
	if c.AccessKeyID == "" {
		return storageerrors.MissingConfig("accessKeyId", EnvAccessKeyID)
	}
	if c.SecretAccessKey == "" {
		return storageerrors.MissingConfig("secretAccessKey", EnvSecretAccessKey)
	}
	return nil
}
