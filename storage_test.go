package storage

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	storageerrors "github.com/input-output-hk/catalyst-forge-libs/storage/errors"
	"github.com/input-output-hk/catalyst-forge-libs/storage/internal/testutil"
	"github.com/input-output-hk/catalyst-forge-libs/storage/storagetypes"
)

const testBucket = "test-bucket"

func newTestClient(t *testing.T, opts ...storagetypes.Option) (*Client, *testutil.MemoryStore, *testutil.MockPresigner) {
	t.Helper()

	store := testutil.NewMemoryStore(testBucket)
	presigner := &testutil.MockPresigner{}
	opts = append([]storagetypes.Option{WithBucket(testBucket)}, opts...)
	return NewWithClient(store.Client(), presigner, opts...), store, presigner
}

func countAPIOptions(optFns []func(*s3.Options)) int {
	var o s3.Options
	for _, fn := range optFns {
		fn(&o)
	}
	return len(o.APIOptions)
}

func boolPtr(b bool) *bool {
	return &b
}

func TestClient_Put(t *testing.T) {
	ctx := context.Background()

	t.Run("private object", func(t *testing.T) {
		client, store, _ := newTestClient(t)
		var progress testutil.ProgressRecorder

		res, err := client.Put(ctx, "notes/hello.txt", strings.NewReader("hello"), &storagetypes.PutOptions{
			OnProgress: progress.Record,
		})
		require.NoError(t, err)

		assert.Equal(t, "notes/hello.txt", res.Path)
		assert.Equal(t, int64(5), res.Size)
		assert.Equal(t, "text/plain; charset=utf-8", res.ContentType)
		assert.Contains(t, res.URL, "x-id=GetObject")
		assert.Contains(t, res.URL, "X-Amz-Expires=3600")

		obj, ok := store.Object("notes/hello.txt")
		require.True(t, ok)
		assert.Equal(t, "hello", string(obj.Body))
		assert.Equal(t, types.ObjectCannedACLPrivate, obj.ACL)

		assert.Equal(t, []storagetypes.UploadProgress{{Loaded: 5, Total: 5, Percentage: 100}}, progress.Updates())
	})

	t.Run("public object", func(t *testing.T) {
		client, store, _ := newTestClient(t)

		res, err := client.Put(ctx, "site/index.html", strings.NewReader("<html></html>"), &storagetypes.PutOptions{
			Access: storagetypes.AccessPublic,
		})
		require.NoError(t, err)

		assert.Equal(t, "https://test-bucket.t3.storage.dev/site/index.html", res.URL)
		obj, _ := store.Object("site/index.html")
		assert.Equal(t, types.ObjectCannedACLPublicRead, obj.ACL)
	})

	t.Run("attachment disposition", func(t *testing.T) {
		client, store, _ := newTestClient(t)

		res, err := client.Put(ctx, "docs/a.pdf", strings.NewReader("%PDF-1.4"), &storagetypes.PutOptions{
			ContentDisposition: storagetypes.DispositionAttachment,
			ContentType:        "application/pdf",
		})
		require.NoError(t, err)

		assert.Equal(t, `attachment; filename="docs/a.pdf"`, res.ContentDisposition)
		obj, _ := store.Object("docs/a.pdf")
		assert.Equal(t, `attachment; filename="docs/a.pdf"`, obj.ContentDisposition)
		assert.Equal(t, "application/pdf", obj.ContentType)
	})

	t.Run("content type sniffed without extension", func(t *testing.T) {
		client, store, _ := newTestClient(t)
		png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

		_, err := client.Put(ctx, "avatar", bytes.NewReader(png), nil)
		require.NoError(t, err)

		obj, _ := store.Object("avatar")
		assert.Equal(t, "image/png", obj.ContentType)
		assert.Equal(t, png, obj.Body, "sniffing must not consume the body")
	})

	t.Run("non-seekable body", func(t *testing.T) {
		client, store, _ := newTestClient(t)
		body := io.MultiReader(strings.NewReader("abc"), strings.NewReader("def"))

		res, err := client.Put(ctx, "joined.bin", body, nil)
		require.NoError(t, err)

		assert.Equal(t, int64(6), res.Size)
		obj, _ := store.Object("joined.bin")
		assert.Equal(t, "abcdef", string(obj.Body))
	})

	t.Run("random suffix", func(t *testing.T) {
		client, store, _ := newTestClient(t)

		res, err := client.Put(ctx, "photos/cat.jpg", strings.NewReader("meow"), &storagetypes.PutOptions{
			AddRandomSuffix: true,
		})
		require.NoError(t, err)

		assert.Regexp(t, `^photos/cat-[0-9a-z]+\.jpg$`, res.Path)
		assert.Equal(t, []string{res.Path}, store.Keys())
		assert.Contains(t, res.URL, res.Path)
	})

	t.Run("overwrite refused", func(t *testing.T) {
		client, store, _ := newTestClient(t)
		store.Set("taken.txt", []byte("old"), "text/plain")

		_, err := client.Put(ctx, "taken.txt", strings.NewReader("new"), &storagetypes.PutOptions{
			AllowOverwrite: boolPtr(false),
		})
		require.ErrorIs(t, err, storageerrors.ErrObjectExists)

		obj, _ := store.Object("taken.txt")
		assert.Equal(t, "old", string(obj.Body))
	})

	t.Run("overwrite guard passes for new key", func(t *testing.T) {
		client, store, _ := newTestClient(t)

		_, err := client.Put(ctx, "fresh.txt", strings.NewReader("new"), &storagetypes.PutOptions{
			AllowOverwrite: boolPtr(false),
		})
		require.NoError(t, err)
		_, ok := store.Object("fresh.txt")
		assert.True(t, ok)
	})

	t.Run("overwrite allowed by default", func(t *testing.T) {
		client, store, _ := newTestClient(t)
		store.Set("taken.txt", []byte("old"), "text/plain")

		_, err := client.Put(ctx, "taken.txt", strings.NewReader("new"), nil)
		require.NoError(t, err)

		obj, _ := store.Object("taken.txt")
		assert.Equal(t, "new", string(obj.Body))
	})

	t.Run("empty payload reports completion", func(t *testing.T) {
		client, _, _ := newTestClient(t)
		var progress testutil.ProgressRecorder

		res, err := client.Put(ctx, "empty.txt", strings.NewReader(""), &storagetypes.PutOptions{
			OnProgress: progress.Record,
		})
		require.NoError(t, err)
		assert.Zero(t, res.Size)

		last, ok := progress.Last()
		require.True(t, ok)
		assert.Equal(t, 100, last.Percentage)
	})
}

func TestClient_Put_Errors(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		opts    []storagetypes.Option
		key     string
		body    io.Reader
		putOpts *storagetypes.PutOptions
		wantErr error
	}{
		{
			name:    "no bucket configured",
			opts:    []storagetypes.Option{WithBucket("")},
			key:     "a.txt",
			body:    strings.NewReader("x"),
			wantErr: storageerrors.ErrMissingConfig,
		},
		{
			name:    "nil body",
			key:     "a.txt",
			wantErr: storageerrors.ErrInvalidInput,
		},
		{
			name:    "path traversal",
			key:     "../etc/passwd",
			body:    strings.NewReader("x"),
			wantErr: storageerrors.ErrInvalidObjectKey,
		},
		{
			name:    "empty key",
			key:     "",
			body:    strings.NewReader("x"),
			wantErr: storageerrors.ErrInvalidObjectKey,
		},
		{
			name:    "malformed content type",
			key:     "a.txt",
			body:    strings.NewReader("x"),
			putOpts: &storagetypes.PutOptions{ContentType: "not a type"},
			wantErr: storageerrors.ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, store, _ := newTestClient(t, tt.opts...)

			_, err := client.Put(ctx, tt.key, tt.body, tt.putOpts)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, store.Keys())
		})
	}
}

func TestClient_Put_Multipart(t *testing.T) {
	ctx := context.Background()

	t.Run("large payload is split into parts", func(t *testing.T) {
		client, store, _ := newTestClient(t, WithPartSize(storagetypes.DefaultPartSize), WithConcurrency(2))
		payload := bytes.Repeat([]byte("0123456789abcdef"), 12*1024*1024/16)
		var progress testutil.ProgressRecorder

		res, err := client.Put(ctx, "big.bin", bytes.NewReader(payload), &storagetypes.PutOptions{
			Multipart:  true,
			OnProgress: progress.Record,
		})
		require.NoError(t, err)
		assert.Equal(t, int64(len(payload)), res.Size)

		obj, ok := store.Object("big.bin")
		require.True(t, ok)
		assert.True(t, bytes.Equal(payload, obj.Body))

		completed := store.CompletedParts()
		require.Len(t, completed, 1)
		assert.Len(t, completed[0], 3)
		assert.Zero(t, store.PendingUploads())

		assert.True(t, progress.Monotonic())
		last, ok := progress.Last()
		require.True(t, ok)
		assert.Equal(t, storagetypes.UploadProgress{
			Loaded:     int64(len(payload)),
			Total:      int64(len(payload)),
			Percentage: 100,
		}, last)
	})

	t.Run("small payload uses one request", func(t *testing.T) {
		client, store, _ := newTestClient(t)
		var progress testutil.ProgressRecorder

		_, err := client.Put(ctx, "small.txt", strings.NewReader("tiny"), &storagetypes.PutOptions{
			Multipart:  true,
			OnProgress: progress.Record,
		})
		require.NoError(t, err)

		obj, _ := store.Object("small.txt")
		assert.Equal(t, "tiny", string(obj.Body))
		assert.Empty(t, store.CompletedParts())

		last, ok := progress.Last()
		require.True(t, ok)
		assert.Equal(t, 100, last.Percentage)
	})
}

func TestClient_PutFile(t *testing.T) {
	ctx := context.Background()
	fs := memfs.New()
	require.NoError(t, util.WriteFile(fs, "/data/report.csv", []byte("a,b\n1,2\n"), 0o644))

	client, store, _ := newTestClient(t, WithFilesystem(fs))

	res, err := client.PutFile(ctx, "reports/report.csv", "/data/report.csv", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(8), res.Size)
	assert.Equal(t, "text/csv; charset=utf-8", res.ContentType)

	obj, ok := store.Object("reports/report.csv")
	require.True(t, ok)
	assert.Equal(t, "a,b\n1,2\n", string(obj.Body))

	_, err = client.PutFile(ctx, "missing.csv", "/data/missing.csv", nil)
	require.Error(t, err)
}

func TestClient_Get(t *testing.T) {
	ctx := context.Background()
	client, store, _ := newTestClient(t)
	store.Set("greeting.txt", []byte("hello world"), "text/plain")

	data, err := client.Get(ctx, "greeting.txt", nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello world"), data)

	s, err := client.GetString(ctx, "greeting.txt", nil)
	require.NoError(t, err)
	assert.Equal(t, "hello world", s)

	stream, err := client.GetStream(ctx, "greeting.txt", &storagetypes.GetOptions{ContentType: "text/markdown"})
	require.NoError(t, err)
	defer stream.Body.Close()
	body, err := io.ReadAll(stream.Body)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(body))
	assert.Equal(t, "text/markdown", stream.ContentType)
	assert.Equal(t, int64(11), stream.ContentLength)

	_, err = client.Get(ctx, "missing.txt", nil)
	require.ErrorIs(t, err, storageerrors.ErrObjectNotFound)

	_, err = client.GetStream(ctx, "missing.txt", nil)
	require.ErrorIs(t, err, storageerrors.ErrObjectNotFound)
}

func TestClient_Get_RequestOptions(t *testing.T) {
	ctx := context.Background()
	client, store, _ := newTestClient(t)
	store.Set("doc.pdf", []byte("%PDF"), "application/pdf")

	mock := client.s3Client.(*testutil.MockS3Client)
	inner := mock.GetObjectFunc

	var (
		gotInput   *s3.GetObjectInput
		apiOptions int
	)
	mock.GetObjectFunc = func(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
		gotInput = in
		apiOptions = countAPIOptions(optFns)
		return inner(ctx, in, optFns...)
	}

	_, err := client.Get(ctx, "doc.pdf", &storagetypes.GetOptions{
		ContentDisposition: storagetypes.DispositionAttachment,
		SnapshotVersion:    "1700000000",
	})
	require.NoError(t, err)

	require.NotNil(t, gotInput)
	assert.Equal(t, `attachment; filename="doc.pdf"`, *gotInput.ResponseContentDisposition)
	assert.Equal(t, 1, apiOptions, "snapshot header")

	_, err = client.Get(ctx, "doc.pdf", nil)
	require.NoError(t, err)
	assert.Zero(t, apiOptions)
}

func TestClient_Head(t *testing.T) {
	ctx := context.Background()
	client, store, presigner := newTestClient(t)
	store.Set("image.png", []byte("pixels"), "image/png")

	res, err := client.Head(ctx, "image.png", nil)
	require.NoError(t, err)
	assert.Equal(t, "image.png", res.Path)
	assert.Equal(t, int64(6), res.Size)
	assert.Equal(t, "image/png", res.ContentType)
	assert.False(t, res.Modified.IsZero())
	assert.Contains(t, res.URL, "x-id=HeadObject")
	assert.Equal(t, []time.Duration{time.Hour}, presigner.Expirations())

	_, err = client.Head(ctx, "missing.png", nil)
	require.ErrorIs(t, err, storageerrors.ErrObjectNotFound)
	assert.Equal(t, storageerrors.CodeNotFound, storageerrors.CodeOf(err))
}

func TestClient_List(t *testing.T) {
	ctx := context.Background()
	client, store, _ := newTestClient(t)
	for _, k := range []string{"a/1.txt", "a/2.txt", "a/3.txt", "b/1.txt", "c.txt"} {
		store.Set(k, []byte(k), "text/plain")
	}

	t.Run("pagination", func(t *testing.T) {
		var names []string
		var token string
		pages := 0
		for {
			page, err := client.List(ctx, &storagetypes.ListOptions{Limit: 2, PaginationToken: token})
			require.NoError(t, err)
			pages++
			for _, item := range page.Items {
				assert.Equal(t, item.Name, item.ID)
				assert.Equal(t, int64(len(item.Name)), item.Size)
				names = append(names, item.Name)
			}
			if !page.HasMore {
				assert.Empty(t, page.PaginationToken)
				break
			}
			token = page.PaginationToken
		}
		assert.Equal(t, 3, pages)
		assert.Equal(t, []string{"a/1.txt", "a/2.txt", "a/3.txt", "b/1.txt", "c.txt"}, names)
	})

	t.Run("prefix", func(t *testing.T) {
		page, err := client.List(ctx, &storagetypes.ListOptions{Prefix: "a/"})
		require.NoError(t, err)
		assert.Len(t, page.Items, 3)
		assert.False(t, page.HasMore)
	})

	t.Run("empty bucket", func(t *testing.T) {
		empty, _, _ := newTestClient(t)
		page, err := empty.List(ctx, nil)
		require.NoError(t, err)
		assert.NotNil(t, page.Items)
		assert.Empty(t, page.Items)
	})
}

func TestClient_Remove(t *testing.T) {
	ctx := context.Background()
	client, store, _ := newTestClient(t)
	store.Set("old.log", []byte("x"), "text/plain")

	require.NoError(t, client.Remove(ctx, "old.log"))
	assert.Empty(t, store.Keys())

	require.NoError(t, client.Remove(ctx, "old.log"), "removing a missing object succeeds")

	unconfigured, _, _ := newTestClient(t, WithBucket(""))
	require.ErrorIs(t, unconfigured.Remove(ctx, "old.log"), storageerrors.ErrMissingConfig)
}

func TestClient_UpdateObject(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name        string
		opts        *storagetypes.UpdateObjectOptions
		wantPath    string
		wantACL     types.ObjectCannedACL
		wantErr     error
		errContains string
	}{
		{
			name:     "rename",
			opts:     &storagetypes.UpdateObjectOptions{Key: "posts/a.md"},
			wantPath: "posts/a.md",
		},
		{
			name:     "access only",
			opts:     &storagetypes.UpdateObjectOptions{Access: storagetypes.AccessPublic},
			wantPath: "drafts/a.md",
			wantACL:  types.ObjectCannedACLPublicRead,
		},
		{
			name:     "rename then make private",
			opts:     &storagetypes.UpdateObjectOptions{Key: "posts/a.md", Access: storagetypes.AccessPrivate},
			wantPath: "posts/a.md",
			wantACL:  types.ObjectCannedACLPrivate,
		},
		{name: "nil options", wantErr: storageerrors.ErrInvalidInput, errContains: "no update options provided"},
		{
			name:        "empty options",
			opts:        &storagetypes.UpdateObjectOptions{},
			wantErr:     storageerrors.ErrInvalidInput,
			errContains: "no update options provided",
		},
		{
			name:        "unknown access",
			opts:        &storagetypes.UpdateObjectOptions{Access: "world"},
			wantErr:     storageerrors.ErrInvalidInput,
			errContains: "access must be public or private",
		},
		{
			name:        "rename onto itself",
			opts:        &storagetypes.UpdateObjectOptions{Key: "drafts/a.md"},
			wantErr:     storageerrors.ErrInvalidInput,
			errContains: "cannot rename object to itself",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, store, _ := newTestClient(t)
			store.Set("drafts/a.md", []byte("# draft"), "text/markdown")

			res, err := client.UpdateObject(ctx, "drafts/a.md", tt.opts)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Contains(t, err.Error(), tt.errContains)
				assert.Equal(t, []string{"drafts/a.md"}, store.Keys())
				return
			}
			require.NoError(t, err)

			assert.Equal(t, tt.wantPath, res.Path)
			assert.Equal(t, []string{tt.wantPath}, store.Keys())
			obj, ok := store.Object(tt.wantPath)
			require.True(t, ok)
			assert.Equal(t, "# draft", string(obj.Body))
			assert.Equal(t, tt.wantACL, obj.ACL)
		})
	}
}

func TestClient_UpdateObject_RenameRequest(t *testing.T) {
	var (
		gotInput *s3.CopyObjectInput
		header   http.Header
	)
	mock := &testutil.MockS3Client{
		CopyObjectFunc: func(ctx context.Context, in *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error) {
			gotInput = in
			header = testutil.RequestHeaders(optFns)
			return &s3.CopyObjectOutput{}, nil
		},
	}
	client := NewWithClient(mock, &testutil.MockPresigner{}, WithBucket(testBucket))

	res, err := client.UpdateObject(context.Background(), "in box/a b.txt",
		&storagetypes.UpdateObjectOptions{Key: "archive/a b.txt"})
	require.NoError(t, err)

	assert.Equal(t, "archive/a b.txt", res.Path)
	assert.Equal(t, testBucket, aws.ToString(gotInput.Bucket))
	assert.Equal(t, "archive/a b.txt", aws.ToString(gotInput.Key))
	assert.Equal(t, testBucket+"/in%20box%2Fa%20b.txt", aws.ToString(gotInput.CopySource))
	assert.Equal(t, "true", header.Get(storagetypes.HeaderRename))
}

func TestClient_UpdateObject_Missing(t *testing.T) {
	client, _, _ := newTestClient(t)

	_, err := client.UpdateObject(context.Background(), "ghost.txt", &storagetypes.UpdateObjectOptions{Key: "found.txt"})
	require.ErrorIs(t, err, storageerrors.ErrObjectNotFound)
	assert.Contains(t, err.Error(), "failed to rename to found.txt")

	_, err = client.UpdateObject(context.Background(), "ghost.txt", &storagetypes.UpdateObjectOptions{Access: storagetypes.AccessPublic})
	require.ErrorIs(t, err, storageerrors.ErrObjectNotFound)
	assert.Contains(t, err.Error(), "failed to set access")
}

func TestClient_PresignURL(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		opts       storagetypes.PresignOptions
		wantID     string
		wantExpiry time.Duration
		wantErr    error
	}{
		{
			name:       "get with default expiry",
			opts:       storagetypes.PresignOptions{Operation: storagetypes.PresignGet},
			wantID:     "x-id=GetObject",
			wantExpiry: time.Hour,
		},
		{
			name: "put with custom expiry",
			opts: storagetypes.PresignOptions{
				Operation:   storagetypes.PresignPut,
				ContentType: "image/png",
				Expires:     15 * time.Minute,
			},
			wantID:     "x-id=PutObject",
			wantExpiry: 15 * time.Minute,
		},
		{
			name:    "missing operation",
			opts:    storagetypes.PresignOptions{},
			wantErr: storageerrors.ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _, presigner := newTestClient(t)

			res, err := client.PresignURL(ctx, "uploads/file.png", tt.opts)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Contains(t, err.Error(), "possible values are `get` and `put`")
				return
			}
			require.NoError(t, err)

			assert.Contains(t, res.URL, tt.wantID)
			assert.Equal(t, tt.opts.Operation, res.Operation)
			assert.Equal(t, int(tt.wantExpiry.Seconds()), res.ExpiresIn)
			assert.Equal(t, []time.Duration{tt.wantExpiry}, presigner.Expirations())
		})
	}
}

func TestSeekable(t *testing.T) {
	r := strings.NewReader("0123456789")
	_, err := r.Seek(4, io.SeekStart)
	require.NoError(t, err)

	rs, size, err := seekable(r)
	require.NoError(t, err)
	assert.Equal(t, int64(6), size)

	rest, err := io.ReadAll(rs)
	require.NoError(t, err)
	assert.Equal(t, "456789", string(rest))
}
