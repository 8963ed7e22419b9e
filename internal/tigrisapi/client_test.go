package tigrisapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	storageerrors "github.com/input-output-hk/catalyst-forge-libs/storage/errors"
	"github.com/input-output-hk/catalyst-forge-libs/storage/storagetypes"
)

// recorded is what the test server saw of a request.
type recorded struct {
	method string
	path   string
	query  string
	header http.Header
	body   string
}

// recorder holds the last request a test server received.
type recorder struct {
	mu   sync.Mutex
	last recorded
}

func (r *recorder) get() recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

func newServer(t *testing.T, status int, response string) (*httptest.Server, *recorder) {
	t.Helper()

	rec := &recorder{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		rec.mu.Lock()
		rec.last = recorded{
			method: r.Method,
			path:   r.URL.Path,
			query:  r.URL.RawQuery,
			header: r.Header.Clone(),
			body:   string(body),
		}
		rec.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, response)
	}))
	t.Cleanup(srv.Close)
	return srv, rec
}

func TestClient_BucketMetadata(t *testing.T) {
	srv, rec := newServer(t, http.StatusOK, `{
		"name": "media",
		"storage_class": "STANDARD_IA",
		"type": 1,
		"ForkInfo": {"HasChildren": true, "Parents": [{"BucketName": "origin", "Snapshot": "v1"}]},
		"acl_settings": {"allow_object_acl": true},
		"estimated_unique_rows": 12,
		"estimated_size": 4096
	}`)
	creds := credentials.NewStaticCredentialsProvider("AKID", "SECRET", "")
	client := New(srv.URL+"/", creds, WithNamespace("org-1"))

	meta, err := client.BucketMetadata(context.Background(), "media")
	require.NoError(t, err)
	req := rec.get()

	assert.Equal(t, http.MethodGet, req.method)
	assert.Equal(t, "/media", req.path)
	assert.Equal(t, "metadata&with-size=true", req.query)
	assert.True(t, strings.HasPrefix(req.header.Get("Authorization"), "AWS4-HMAC-SHA256 Credential=AKID/"))
	assert.Contains(t, req.header.Get("Authorization"), "/auto/s3/aws4_request")
	assert.Equal(t, "org-1", req.header.Get(storagetypes.HeaderNamespace))

	assert.Equal(t, "media", meta.Name)
	assert.Equal(t, "STANDARD_IA", meta.StorageClass)
	assert.True(t, meta.SnapshotEnabled())
	require.NotNil(t, meta.ForkInfo)
	assert.Equal(t, "origin", meta.ForkInfo.Parents[0].BucketName)
	assert.True(t, meta.ACLSettings.AllowObjectACL)
	assert.Equal(t, int64(12), *meta.EstimatedUniqueRows)
	assert.Equal(t, int64(4096), *meta.EstimatedSize)
	assert.Nil(t, meta.EstimatedRows)
}

func TestClient_UpdateBucket(t *testing.T) {
	srv, rec := newServer(t, http.StatusOK, `{"status":"success"}`)
	client := New(srv.URL, credentials.NewStaticCredentialsProvider("AKID", "SECRET", ""))

	header := http.Header{}
	header.Set(storagetypes.HeaderACL, "public-read")
	err := client.UpdateBucket(context.Background(), "media", header, BucketUpdate{
		ObjectRegions: "fra,iad",
		Protection:    &Protection{Protected: true},
	})
	require.NoError(t, err)
	req := rec.get()

	assert.Equal(t, http.MethodPatch, req.method)
	assert.Equal(t, "/media", req.path)
	assert.Equal(t, "public-read", req.header.Get(storagetypes.HeaderACL))
	assert.Equal(t, "application/json", req.header.Get("Content-Type"))
	assert.Contains(t, req.header.Get("Authorization"), "x-amz-acl")

	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(req.body), &body))
	assert.Equal(t, map[string]any{
		"object_regions": "fra,iad",
		"protection":     map[string]any{"protected": true},
	}, body)
}

func TestClient_UpdateBucket_Rejected(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     string
	}{
		{"with message", `{"status":"error","message":"domain already taken"}`, "domain already taken"},
		{"without message", `{"status":"error"}`, "failed to update bucket"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newServer(t, http.StatusOK, tt.response)
			client := New(srv.URL, nil)

			err := client.UpdateBucket(context.Background(), "media", nil, BucketUpdate{CacheControl: "no-cache"})
			require.ErrorIs(t, err, storageerrors.ErrInvalidInput)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestClient_Stats(t *testing.T) {
	srv, rec := newServer(t, http.StatusOK, `{
		"Stats": {"ActiveBuckets": 2, "TotalObjects": 30, "TotalStorageBytes": 2048, "TotalUniqueObjects": 25},
		"Buckets": {"Bucket": [
			{"Name": "media", "CreationDate": "2024-05-01T12:00:00Z", "Regions": "fra,iad", "Type": "Regular", "Visibility": {"IsPublic": true}},
			{"Name": "logs", "CreationDate": "2024-05-02T12:00:00Z", "Type": "Snapshot", "Visibility": {"IsPublic": false}}
		]}
	}`)
	client := New(srv.URL, nil)

	stats, err := client.Stats(context.Background())
	require.NoError(t, err)
	req := rec.get()

	assert.Equal(t, "/", req.path)
	assert.Equal(t, statsQuery, req.query)
	assert.Empty(t, req.header.Get("Authorization"))

	assert.Equal(t, Totals{ActiveBuckets: 2, TotalObjects: 30, TotalStorageBytes: 2048, TotalUniqueObjects: 25}, stats.Stats)
	require.Len(t, stats.Buckets.Bucket, 2)
	assert.Equal(t, "fra,iad", stats.Buckets.Bucket[0].Regions)
	assert.True(t, stats.Buckets.Bucket[0].Visibility.IsPublic)
	assert.Equal(t, "Snapshot", stats.Buckets.Bucket[1].Type)
}

func TestClient_StatusErrors(t *testing.T) {
	tests := []struct {
		status  int
		body    string
		wantErr error
		want    string
	}{
		{http.StatusBadRequest, "bad settings", storageerrors.ErrInvalidInput, "status 400: bad settings"},
		{http.StatusUnauthorized, "", storageerrors.ErrAccessDenied, "status 401: Unauthorized"},
		{http.StatusForbidden, "denied", storageerrors.ErrAccessDenied, "status 403"},
		{http.StatusNotFound, "", storageerrors.ErrBucketNotFound, "status 404: Not Found"},
		{http.StatusInternalServerError, "boom", storageerrors.ErrTransport, "status 500: boom"},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv, _ := newServer(t, tt.status, tt.body)
			client := New(srv.URL, nil)

			_, err := client.BucketMetadata(context.Background(), "media")
			require.ErrorIs(t, err, tt.wantErr)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestClient_MissingEndpoint(t *testing.T) {
	_, err := New("", nil).Stats(context.Background())
	require.ErrorIs(t, err, storageerrors.ErrMissingConfig)
	assert.Contains(t, err.Error(), "TIGRIS_STORAGE_ENDPOINT")
}

func TestClient_TransportError(t *testing.T) {
	srv, _ := newServer(t, http.StatusOK, "{}")
	srv.Close()

	_, err := New(srv.URL, nil).Stats(context.Background())
	require.ErrorIs(t, err, storageerrors.ErrTransport)
}
