package storage

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/go-git/go-billy/v5"

	"github.com/input-output-hk/catalyst-forge-libs/storage/internal/clientcache"
	"github.com/input-output-hk/catalyst-forge-libs/storage/storagetypes"
)

// ClientCache shares SDK clients between Client values built with identical
// credentials. Create one with NewClientCache and pass it with WithClientCache.
type ClientCache = clientcache.Cache

// NewClientCache returns an empty ClientCache.
func NewClientCache() *ClientCache {
	return clientcache.New()
}

// WithEndpoint sets the storage endpoint URL.
// Defaults to TIGRIS_STORAGE_ENDPOINT, or https://t3.storage.dev when unset.
func WithEndpoint(endpoint string) storagetypes.Option {
	return func(c *storagetypes.ClientConfig) {
		c.Endpoint = endpoint
	}
}

// WithFlyEndpoint selects the endpoint optimized for applications on fly.io.
func WithFlyEndpoint() storagetypes.Option {
	return WithEndpoint(storagetypes.FlyEndpoint)
}

// WithRegion sets the signing region. Tigris routes requests itself, so the
// default "auto" rarely needs changing.
func WithRegion(region string) storagetypes.Option {
	return func(c *storagetypes.ClientConfig) {
		c.Region = region
	}
}

// WithBucket sets the bucket used by object operations.
func WithBucket(bucket string) storagetypes.Option {
	return func(c *storagetypes.ClientConfig) {
		c.Bucket = bucket
	}
}

// WithAccessKeypair sets static credentials.
func WithAccessKeypair(accessKeyID, secretAccessKey string) storagetypes.Option {
	return func(c *storagetypes.ClientConfig) {
		c.AccessKeyID = accessKeyID
		c.SecretAccessKey = secretAccessKey
	}
}

// WithSessionToken authenticates with a session token scoped to an organization.
// When both are set, access keys become optional and every request carries
// the organization as its namespace.
func WithSessionToken(token, organizationID string) storagetypes.Option {
	return func(c *storagetypes.ClientConfig) {
		c.SessionToken = token
		c.OrganizationID = organizationID
	}
}

// WithForcePathStyle forces the use of path-style URLs instead of virtual-hosted style.
// This is required for S3-compatible services that don't support virtual hosting.
func WithForcePathStyle(forcePathStyle bool) storagetypes.Option {
	return func(c *storagetypes.ClientConfig) {
		c.ForcePathStyle = forcePathStyle
	}
}

// WithMaxRetries sets the maximum number of SDK attempts per request.
// Zero keeps the SDK default.
func WithMaxRetries(maxRetries int) storagetypes.Option {
	return func(c *storagetypes.ClientConfig) {
		c.MaxRetries = maxRetries
	}
}

// WithTimeout sets the timeout of the HTTP client used for requests.
// Ignored when WithHTTPClient is also given.
func WithTimeout(timeout time.Duration) storagetypes.Option {
	return func(c *storagetypes.ClientConfig) {
		c.Timeout = timeout
	}
}

// WithHTTPClient allows providing a custom HTTP client.
func WithHTTPClient(client *http.Client) storagetypes.Option {
	return func(c *storagetypes.ClientConfig) {
		c.HTTPClient = client
	}
}

// WithAWSConfig allows providing a custom AWS configuration.
// Credentials and region in it take precedence over the environment.
func WithAWSConfig(config *aws.Config) storagetypes.Option {
	return func(c *storagetypes.ClientConfig) {
		c.CustomAWSConfig = config
	}
}

// WithLogger sets the logger. By default nothing is logged.
func WithLogger(logger *slog.Logger) storagetypes.Option {
	return func(c *storagetypes.ClientConfig) {
		c.Logger = logger
	}
}

// WithFilesystem sets the filesystem PutFile reads from.
// Defaults to the OS filesystem rooted at "/".
func WithFilesystem(filesystem billy.Filesystem) storagetypes.Option {
	return func(c *storagetypes.ClientConfig) {
		c.Filesystem = filesystem
	}
}

// WithClientCache reuses SDK clients from cache instead of building a new one.
func WithClientCache(cache *ClientCache) storagetypes.Option {
	return func(c *storagetypes.ClientConfig) {
		c.ClientCache = cache
	}
}

// WithEnvFile reads configuration from a dotenv file in addition to the
// process environment. A missing file is not an error.
func WithEnvFile(path string) storagetypes.Option {
	return func(c *storagetypes.ClientConfig) {
		c.EnvFile = path
	}
}

// WithPartSize sets the part size for multipart uploads.
// Default is 5MB, which is also the smallest size S3 accepts.
func WithPartSize(partSize int64) storagetypes.Option {
	return func(c *storagetypes.ClientConfig) {
		if partSize > 0 {
			c.PartSize = partSize
		}
	}
}

// WithConcurrency sets how many parts a multipart Put uploads at once.
func WithConcurrency(concurrency int) storagetypes.Option {
	return func(c *storagetypes.ClientConfig) {
		if concurrency > 0 {
			c.Concurrency = concurrency
		}
	}
}
