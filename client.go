package storage

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"

	"github.com/input-output-hk/catalyst-forge-libs/storage/config"
	storageerrors "github.com/input-output-hk/catalyst-forge-libs/storage/errors"
	"github.com/input-output-hk/catalyst-forge-libs/storage/internal/clientcache"
	"github.com/input-output-hk/catalyst-forge-libs/storage/internal/s3api"
	"github.com/input-output-hk/catalyst-forge-libs/storage/internal/tigrisapi"
	"github.com/input-output-hk/catalyst-forge-libs/storage/storagetypes"
)

// defaultRegion lets the service pick the closest region.
const defaultRegion = "auto"

// Client represents a storage client bound to one endpoint and, optionally,
// one bucket. It is safe for concurrent use.
type Client struct {
	// s3Client is the underlying AWS SDK S3 client
	s3Client s3api.S3API

	// presigner signs URLs for browser and CLI uploads and downloads
	presigner s3api.Presigner

	// admin reaches the JSON endpoints for bucket metadata, settings and stats
	admin *tigrisapi.Client

	// cfg is the resolved client configuration
	cfg storagetypes.ClientConfig

	logger *slog.Logger

	// mu protects fs
	mu sync.RWMutex
	fs billy.Filesystem
}

func defaultClientConfig() storagetypes.ClientConfig {
	return storagetypes.ClientConfig{
		Region:      defaultRegion,
		PartSize:    storagetypes.DefaultPartSize,
		Concurrency: storagetypes.DefaultConcurrency,
	}
}

// New creates a storage client.
//
// Settings given as options take precedence over the environment
// (TIGRIS_STORAGE_ENDPOINT, TIGRIS_STORAGE_BUCKET, TIGRIS_STORAGE_ACCESS_KEY_ID,
// TIGRIS_STORAGE_SECRET_ACCESS_KEY, TIGRIS_SESSION_TOKEN, TIGRIS_ORGANIZATION_ID),
// which in turn take precedence over the file named by WithEnvFile.
//
// A bucket is not required here; object operations fail with ErrMissingConfig
// when none is configured, while bucket management works without one.
//
// Errors:
//   - ErrMissingConfig: If the endpoint or credentials are missing
//
// Example:
//
//	client, err := storage.New(ctx,
//	    storage.WithEnvFile(".env"),
//	    storage.WithBucket("media"),
//	)
func New(ctx context.Context, opts ...storagetypes.Option) (*Client, error) {
	cfg := defaultClientConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	resolved, err := config.Load(
		config.WithEnvFile(cfg.EnvFile),
		config.WithOverrides(config.Config{
			Endpoint:        cfg.Endpoint,
			Bucket:          cfg.Bucket,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
			SessionToken:    cfg.SessionToken,
			OrganizationID:  cfg.OrganizationID,
		}),
	)
	if err != nil {
		return nil, storageerrors.NewError("new", err)
	}
	if err := resolved.Validate(false); err != nil {
		return nil, storageerrors.NewError("new", err)
	}

	cfg.Endpoint = resolved.Endpoint
	cfg.Bucket = resolved.Bucket
	cfg.AccessKeyID = resolved.AccessKeyID
	cfg.SecretAccessKey = resolved.SecretAccessKey
	cfg.SessionToken = resolved.SessionToken
	cfg.OrganizationID = resolved.OrganizationID

	build := func() (*s3.Client, error) {
		return newS3Client(ctx, &cfg, resolved.UsesSessionToken())
	}

	var s3Client *s3.Client
	if cfg.ClientCache != nil {
		s3Client, err = cfg.ClientCache.Get(clientcache.Credentials{
			Endpoint:        cfg.Endpoint,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
			SessionToken:    cfg.SessionToken,
			OrganizationID:  cfg.OrganizationID,
		}, build)
	} else {
		s3Client, err = build()
	}
	if err != nil {
		return nil, storageerrors.NewError("new", err)
	}

	return newClient(s3Client, s3.NewPresignClient(s3Client), cfg), nil
}

// NewWithClient creates a client around existing S3 and presign implementations.
// The environment is not consulted. This is primarily used for testing with
// mocked clients.
func NewWithClient(s3Client s3api.S3API, presigner s3api.Presigner, opts ...storagetypes.Option) *Client {
	cfg := defaultClientConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return newClient(s3Client, presigner, cfg)
}

func newClient(s3Client s3api.S3API, presigner s3api.Presigner, cfg storagetypes.ClientConfig) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	filesystem := cfg.Filesystem
	if filesystem == nil {
		filesystem = osfs.New("/")
	}

	return &Client{
		s3Client:  s3Client,
		presigner: presigner,
		admin:     newAdminClient(&cfg),
		cfg:       cfg,
		logger:    logger,
		fs:        filesystem,
	}
}

func newS3Client(ctx context.Context, cfg *storagetypes.ClientConfig, namespaced bool) (*s3.Client, error) {
	var awsCfg aws.Config
	if cfg.CustomAWSConfig != nil {
		awsCfg = cfg.CustomAWSConfig.Copy()
	} else {
		loaded, err := awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(cfg.Region),
			awsconfig.WithCredentialsProvider(credentialsProvider(cfg)),
		)
		if err != nil {
			return nil, err
		}
		awsCfg = loaded
	}

	if awsCfg.Region == "" {
		awsCfg.Region = defaultRegion
	}
	if cfg.MaxRetries > 0 {
		awsCfg.RetryMaxAttempts = cfg.MaxRetries
	}

	httpClient := requestClient(cfg)
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
		o.UsePathStyle = cfg.ForcePathStyle
		if httpClient != nil {
			o.HTTPClient = httpClient
		}
		if namespaced {
			o.APIOptions = append(o.APIOptions,
				smithyhttp.AddHeaderValue(storagetypes.HeaderNamespace, cfg.OrganizationID))
		}
	}), nil
}

// requestClient returns the configured HTTP client, a client with the
// configured timeout, or nil for the SDK default.
func requestClient(cfg *storagetypes.ClientConfig) *http.Client {
	if cfg.HTTPClient == nil && cfg.Timeout > 0 {
		return &http.Client{Timeout: cfg.Timeout}
	}
	return cfg.HTTPClient
}

// newAdminClient signs with the same credentials and namespace as the S3
// client. Without credentials requests go out unsigned.
func newAdminClient(cfg *storagetypes.ClientConfig) *tigrisapi.Client {
	var creds aws.CredentialsProvider
	switch {
	case cfg.CustomAWSConfig != nil && cfg.CustomAWSConfig.Credentials != nil:
		creds = cfg.CustomAWSConfig.Credentials
	case cfg.AccessKeyID != "" || cfg.SessionToken != "":
		creds = credentialsProvider(cfg)
	}

	opts := []tigrisapi.Option{
		tigrisapi.WithRegion(cfg.Region),
		tigrisapi.WithHTTPClient(requestClient(cfg)),
	}
	if cfg.SessionToken != "" && cfg.OrganizationID != "" {
		opts = append(opts, tigrisapi.WithNamespace(cfg.OrganizationID))
	}
	return tigrisapi.New(cfg.Endpoint, creds, opts...)
}

// credentialsProvider returns static credentials. A session token may come
// without an access key pair, which the SDK's static provider rejects.
func credentialsProvider(cfg *storagetypes.ClientConfig) aws.CredentialsProvider {
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		return credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)
	}

	creds := aws.Credentials{
		AccessKeyID:     cfg.AccessKeyID,
		SecretAccessKey: cfg.SecretAccessKey,
		SessionToken:    cfg.SessionToken,
		Source:          "StorageSessionToken",
	}
	return aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
		return creds, nil
	})
}

// Bucket returns the bucket object operations act on.
func (c *Client) Bucket() string {
	return c.cfg.Bucket
}

// Endpoint returns the configured endpoint URL.
func (c *Client) Endpoint() string {
	return c.cfg.Endpoint
}

// SetFilesystem sets the filesystem implementation for the client.
func (c *Client) SetFilesystem(filesystem billy.Filesystem) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fs = filesystem
}

func (c *Client) filesystem() billy.Filesystem {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fs
}

// Close releases any resources held by the client.
// Clients shared through a ClientCache stay cached; purge the cache to drop them.
func (c *Client) Close() error {
	return nil
}

// bucket returns the configured bucket or a configuration error for op.
func (c *Client) bucket(op, key string) (string, error) {
	if c.cfg.Bucket == "" {
		return "", storageerrors.NewError(op, storageerrors.MissingConfig("bucket", config.EnvBucket)).WithKey(key)
	}
	return c.cfg.Bucket, nil
}

// withHeader sets a request header on a single SDK call.
func withHeader(key, value string) func(*s3.Options) {
	return func(o *s3.Options) {
		o.APIOptions = append(o.APIOptions, smithyhttp.AddHeaderValue(key, value))
	}
}

// snapshotOptions reads from snapshot version when one is given.
func snapshotOptions(version string) []func(*s3.Options) {
	if version == "" {
		return nil
	}
	return []func(*s3.Options){withHeader(storagetypes.HeaderSnapshotVersion, version)}
}
