package clientcache

import (
	"errors"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredentials_Key(t *testing.T) {
	base := Credentials{Endpoint: "https://t3.storage.dev", AccessKeyID: "tid", SecretAccessKey: "secret"}

	assert.Equal(t, base.Key(), base.Key())
	assert.Len(t, base.Key(), 64)
	assert.NotContains(t, base.Key(), "secret")

	tests := []struct {
		name  string
		other Credentials
	}{
		{"endpoint", Credentials{Endpoint: "https://fly.storage.tigris.dev", AccessKeyID: "tid", SecretAccessKey: "secret"}},
		{"access key", Credentials{Endpoint: "https://t3.storage.dev", AccessKeyID: "tid2", SecretAccessKey: "secret"}},
		{"secret", Credentials{Endpoint: "https://t3.storage.dev", AccessKeyID: "tid", SecretAccessKey: "other"}},
		{"session token", Credentials{Endpoint: "https://t3.storage.dev", AccessKeyID: "tid", SecretAccessKey: "secret", SessionToken: "tok"}},
		{"field boundary", Credentials{Endpoint: "https://t3.storage.dev", AccessKeyID: "tids", SecretAccessKey: "ecret"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotEqual(t, base.Key(), tt.other.Key())
		})
	}
}

func TestCache_Get(t *testing.T) {
	cache := New()
	creds := Credentials{Endpoint: "http://localhost:4566", AccessKeyID: "a", SecretAccessKey: "b"}

	calls := 0
	factory := func() (*s3.Client, error) {
		calls++
		return s3.New(s3.Options{Region: "auto"}), nil
	}

	first, err := cache.Get(creds, factory)
	require.NoError(t, err)
	second, err := cache.Get(creds, factory)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, calls)

	other, err := cache.Get(Credentials{Endpoint: "http://localhost:4566", AccessKeyID: "c", SecretAccessKey: "d"}, factory)
	require.NoError(t, err)
	assert.NotSame(t, first, other)

	stats := cache.Stats()
	assert.Equal(t, int64(2), stats.Created)
	assert.Equal(t, int64(1), stats.Reused)
	assert.Equal(t, 2, stats.Size)
}

func TestCache_FactoryError(t *testing.T) {
	cache := New()
	errFactory := errors.New("no credentials")

	_, err := cache.Get(Credentials{}, func() (*s3.Client, error) { return nil, errFactory })
	require.ErrorIs(t, err, errFactory)
	assert.Zero(t, cache.Stats().Size)
}

func TestCache_Purge(t *testing.T) {
	cache := New()
	factory := func() (*s3.Client, error) { return s3.New(s3.Options{}), nil }

	_, err := cache.Get(Credentials{AccessKeyID: "a"}, factory)
	require.NoError(t, err)

	cache.Purge()

	stats := cache.Stats()
	assert.Zero(t, stats.Size)
	assert.Equal(t, int64(1), stats.Purged)

	_, err = cache.Get(Credentials{AccessKeyID: "a"}, factory)
	require.NoError(t, err)
	assert.Equal(t, int64(2), cache.Stats().Created)
}

func TestCache_ConcurrentGet(t *testing.T) {
	cache := New()
	creds := Credentials{AccessKeyID: "shared"}
	factory := func() (*s3.Client, error) { return s3.New(s3.Options{}), nil }

	var wg sync.WaitGroup
	clients := make([]*s3.Client, 16)
	for i := range clients {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := cache.Get(creds, factory)
			assert.NoError(t, err)
			clients[i] = c
		}()
	}
	wg.Wait()

	for _, c := range clients {
		assert.Same(t, clients[0], c)
	}
	assert.Equal(t, int64(1), cache.Stats().Created)
}
