package clientcache

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Stats tracks cache usage statistics.
type Stats struct {
	Created int64
	Reused  int64
	Purged  int64
	Size    int
}

// Credentials identify the S3 clients that may be shared.
type Credentials struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	OrganizationID  string
}

// Key returns the hex SHA-256 digest identifying c.
// Secrets never appear in the key in clear text.
func (c Credentials) Key() string {
	h := sha256.New()
	for _, part := range []string{c.Endpoint, c.AccessKeyID, c.SecretAccessKey, c.SessionToken, c.OrganizationID} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Cache maps credential keys to S3 clients.
type Cache struct {
	mu      sync.Mutex
	clients map[string]*s3.Client
	stats   Stats
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{
		clients: make(map[string]*s3.Client),
	}
}

// Get returns the client cached for creds, building it with factory on a miss.
// Factory errors are returned and nothing is cached.
func (c *Cache) Get(creds Credentials, factory func() (*s3.Client, error)) (*s3.Client, error) {
	key := creds.Key()

	c.mu.Lock()
	defer c.mu.Unlock()

	if client, ok := c.clients[key]; ok {
		c.stats.Reused++
		return client, nil
	}

	client, err := factory()
	if err != nil {
		return nil, err
	}

	c.clients[key] = client
	c.stats.Created++
	return client, nil
}

// Purge drops every cached client.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.Purged += int64(len(c.clients))
	clear(c.clients)
}

// Stats returns cache statistics.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.stats
	s.Size = len(c.clients)
	return s
}
