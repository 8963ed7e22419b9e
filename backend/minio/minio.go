package minio

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	storageerrors "github.com/input-output-hk/catalyst-forge-libs/storage/errors"
	"github.com/input-output-hk/catalyst-forge-libs/storage/internal/concurrency"
	"github.com/input-output-hk/catalyst-forge-libs/storage/internal/parts"
	"github.com/input-output-hk/catalyst-forge-libs/storage/internal/validation"
	"github.com/input-output-hk/catalyst-forge-libs/storage/storagetypes"
	"github.com/input-output-hk/catalyst-forge-libs/storage/upload/server"
)

var _ server.Backend = (*Backend)(nil)

// Backend implements server.Backend over a MinIO core client.
type Backend struct {
	core        *minio.Core
	bucket      string
	expiry      time.Duration
	concurrency int
	logger      *slog.Logger
}

// Option configures a Backend.
type Option func(*Backend)

// WithLogger sets the logger. By default nothing is logged.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Backend) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithExpiry sets how long issued URLs stay valid.
func WithExpiry(d time.Duration) Option {
	return func(b *Backend) {
		if d > 0 {
			b.expiry = d
		}
	}
}

// WithConcurrency bounds how many part URLs are signed at once.
func WithConcurrency(n int) Option {
	return func(b *Backend) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// New creates a Backend storing objects in bucket.
func New(core *minio.Core, bucket string, opts ...Option) *Backend {
	b := &Backend{
		core:        core,
		bucket:      bucket,
		expiry:      storagetypes.DefaultPresignExpiry,
		concurrency: storagetypes.DefaultConcurrency,
		logger:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// NewCore builds a MinIO core client from storage configuration.
// The endpoint scheme selects TLS; a session token is passed through as STS
// credentials. Region defaults to "auto".
func NewCore(cfg storagetypes.ClientConfig) (*minio.Core, error) {
	endpoint := cmp.Or(cfg.Endpoint, storagetypes.GlobalEndpoint)
	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return nil, storageerrors.NewError("newCore", storageerrors.ErrInvalidInput).
			WithMessage(fmt.Sprintf("invalid endpoint %q", endpoint))
	}
	if cfg.AccessKeyID == "" {
		return nil, storageerrors.MissingConfig("accessKeyId", "")
	}
	if cfg.SecretAccessKey == "" {
		return nil, storageerrors.MissingConfig("secretAccessKey", "")
	}

	opts := &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken),
		Secure: u.Scheme == "https",
		Region: cmp.Or(cfg.Region, "auto"),
	}
	if cfg.ForcePathStyle {
		opts.BucketLookup = minio.BucketLookupPath
	}
	if cfg.HTTPClient != nil {
		opts.Transport = cfg.HTTPClient.Transport
	}

	core, err := minio.NewCore(u.Host, opts)
	if err != nil {
		return nil, storageerrors.NewError("newCore", err)
	}
	return core, nil
}

// PresignUpload returns a presigned PUT URL for key.
func (b *Backend) PresignUpload(
	ctx context.Context,
	key, contentType string,
	allowOverwrite bool,
) (*storagetypes.PresignResult, error) {
	const op = "presignUpload"

	if err := b.validate(key, contentType); err != nil {
		return nil, err
	}

	if !allowOverwrite {
		exists, err := b.exists(ctx, key)
		if err != nil {
			return nil, storageerrors.NewObjectError(op, b.bucket, key, err)
		}
		if exists {
			return nil, storageerrors.NewObjectError(op, b.bucket, key, storageerrors.ErrObjectExists)
		}
	}

	u, err := b.core.PresignedPutObject(ctx, b.bucket, key, b.expiry)
	if err != nil {
		return nil, storageerrors.NewObjectError(op, b.bucket, key, classify(err))
	}

	return &storagetypes.PresignResult{
		URL:       u.String(),
		Operation: storagetypes.PresignPut,
		ExpiresIn: int(b.expiry.Seconds()),
	}, nil
}

// InitMultipartUpload opens a multipart session for key.
func (b *Backend) InitMultipartUpload(
	ctx context.Context,
	key, contentType string,
) (*storagetypes.InitMultipartResult, error) {
	const op = "initMultipartUpload"

	if err := b.validate(key, contentType); err != nil {
		return nil, err
	}

	uploadID, err := b.core.NewMultipartUpload(ctx, b.bucket, key, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return nil, storageerrors.NewObjectError(op, b.bucket, key, classify(err))
	}
	if uploadID == "" {
		return nil, storageerrors.NewObjectError(op, b.bucket, key, storageerrors.ErrUploadSession).
			WithMessage("unable to initialize multipart upload")
	}

	b.logger.DebugContext(ctx, "initialized multipart upload", "bucket", b.bucket, "key", key, "upload_id", uploadID)
	return &storagetypes.InitMultipartResult{UploadID: uploadID}, nil
}

// GetPartsPresignedURLs returns a presigned UploadPart URL for each part, in
// the order requested.
func (b *Backend) GetPartsPresignedURLs(
	ctx context.Context,
	key, uploadID string,
	partNumbers []int,
) ([]storagetypes.PartURL, error) {
	const op = "getPartsPresignedURLs"

	if err := b.validate(key, ""); err != nil {
		return nil, err
	}
	if uploadID == "" {
		return nil, storageerrors.NewObjectError(op, b.bucket, key, storageerrors.ErrInvalidInput).
			WithMessage("upload id cannot be empty")
	}
	if err := parts.CheckNumbers(partNumbers); err != nil {
		return nil, storageerrors.NewObjectError(op, b.bucket, key, err)
	}

	tasks := make([]concurrency.Task[storagetypes.PartURL], len(partNumbers))
	for i, n := range partNumbers {
		tasks[i] = func(ctx context.Context) (storagetypes.PartURL, error) {
			params := url.Values{}
			params.Set("uploadId", uploadID)
			params.Set("partNumber", strconv.Itoa(n))

			u, err := b.core.Presign(ctx, http.MethodPut, b.bucket, key, b.expiry, params)
			if err != nil {
				return storagetypes.PartURL{}, fmt.Errorf("part %d: %w", n, classify(err))
			}
			return storagetypes.PartURL{Part: n, URL: u.String()}, nil
		}
	}

	urls, err := concurrency.Execute(ctx, tasks, b.concurrency)
	if err != nil {
		return nil, storageerrors.NewObjectError(op, b.bucket, key, err)
	}
	return urls, nil
}

// CompleteMultipartUpload assembles the parts of a session into the final
// object and returns a presigned GET URL for it.
func (b *Backend) CompleteMultipartUpload(
	ctx context.Context,
	key, uploadID string,
	partIDs storagetypes.PartIDs,
) (*storagetypes.CompleteMultipartResult, error) {
	const op = "completeMultipartUpload"

	if err := b.validate(key, ""); err != nil {
		return nil, err
	}
	if uploadID == "" {
		return nil, storageerrors.NewObjectError(op, b.bucket, key, storageerrors.ErrInvalidInput).
			WithMessage("upload id cannot be empty")
	}

	completed, err := completeParts(partIDs)
	if err != nil {
		return nil, storageerrors.NewObjectError(op, b.bucket, key, err)
	}

	if _, err := b.core.CompleteMultipartUpload(ctx, b.bucket, key, uploadID, completed, minio.PutObjectOptions{}); err != nil {
		return nil, storageerrors.NewObjectError(op, b.bucket, key, classify(err)).
			WithMessage("unable to complete multipart upload")
	}

	b.logger.DebugContext(ctx, "completed multipart upload",
		"bucket", b.bucket, "key", key, "upload_id", uploadID, "parts", len(completed))

	u, err := b.core.PresignedGetObject(ctx, b.bucket, key, b.expiry, nil)
	if err != nil {
		return nil, storageerrors.NewObjectError(op, b.bucket, key, classify(err)).WithMessage("presigning object URL")
	}

	return &storagetypes.CompleteMultipartResult{Path: key, URL: u.String()}, nil
}

func (b *Backend) validate(key, contentType string) error {
	if b.bucket == "" {
		return storageerrors.MissingConfig("bucket", "")
	}
	if err := validation.ValidateObjectKey(key); err != nil {
		return err
	}
	return validation.ValidateContentType(contentType)
}

// exists reports whether key is stored. Lookup failures other than a missing
// object are returned.
func (b *Backend) exists(ctx context.Context, key string) (bool, error) {
	_, err := b.core.StatObject(ctx, b.bucket, key, minio.StatObjectOptions{})
	if err == nil {
		return true, nil
	}

	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NotFound":
		return false, nil
	default:
		return false, classify(err)
	}
}

// completeParts converts the checked part list into minio form.
func completeParts(partIDs storagetypes.PartIDs) ([]minio.CompletePart, error) {
	list, err := parts.Completion(partIDs)
	if err != nil {
		return nil, err
	}

	completed := make([]minio.CompletePart, len(list))
	for i, p := range list {
		completed[i] = minio.CompletePart{PartNumber: p.Number, ETag: p.ETag}
	}
	return completed, nil
}

// classify attaches the storage sentinel matching a MinIO error response.
func classify(err error) error {
	return storageerrors.ClassifyCode(minio.ToErrorResponse(err).Code, err)
}
