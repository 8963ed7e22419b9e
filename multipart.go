package storage

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	storageerrors "github.com/input-output-hk/catalyst-forge-libs/storage/errors"
	"github.com/input-output-hk/catalyst-forge-libs/storage/internal/concurrency"
	"github.com/input-output-hk/catalyst-forge-libs/storage/internal/parts"
	"github.com/input-output-hk/catalyst-forge-libs/storage/internal/validation"
	"github.com/input-output-hk/catalyst-forge-libs/storage/storagetypes"
	"github.com/input-output-hk/catalyst-forge-libs/storage/upload/server"
)

var _ server.Backend = (*Client)(nil)

// PresignUpload returns a presigned PUT URL through which a remote client can
// store key in a single request. It backs the singlepart-init upload action.
//
// When allowOverwrite is false and the object already exists no URL is issued.
//
// Errors:
//   - ErrObjectExists: If overwriting was disallowed and the object exists
func (c *Client) PresignUpload(
	ctx context.Context,
	key, contentType string,
	allowOverwrite bool,
) (*storagetypes.PresignResult, error) {
	bucket, err := c.bucket("presignUpload", key)
	if err != nil {
		return nil, err
	}
	if err := validation.ValidateObjectKey(key); err != nil {
		return nil, err
	}
	if err := validation.ValidateContentType(contentType); err != nil {
		return nil, err
	}

	if !allowOverwrite && c.exists(ctx, bucket, key) {
		return nil, storageerrors.NewObjectError("presignUpload", bucket, key, storageerrors.ErrObjectExists)
	}

	return c.PresignURL(ctx, key, storagetypes.PresignOptions{
		Operation:   storagetypes.PresignPut,
		ContentType: contentType,
	})
}

// InitMultipartUpload opens a multipart upload session for key and returns its
// upload id. Parts are then sent to the URLs from GetPartsPresignedURLs.
//
// Sessions that are never completed are not aborted by the client; configure
// a lifecycle rule on the bucket to expire them.
//
// Example:
//
//	session, err := client.InitMultipartUpload(ctx, "videos/launch.mp4", "video/mp4")
//	if err != nil {
//	    return err
//	}
//	urls, err := client.GetPartsPresignedURLs(ctx, "videos/launch.mp4", session.UploadID, []int{1, 2, 3})
func (c *Client) InitMultipartUpload(
	ctx context.Context,
	key, contentType string,
) (*storagetypes.InitMultipartResult, error) {
	bucket, err := c.bucket("initMultipartUpload", key)
	if err != nil {
		return nil, err
	}
	if err := validation.ValidateObjectKey(key); err != nil {
		return nil, err
	}
	if err := validation.ValidateContentType(contentType); err != nil {
		return nil, err
	}

	input := &s3.CreateMultipartUploadInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	out, err := c.s3Client.CreateMultipartUpload(ctx, input)
	if err != nil {
		return nil, storageerrors.NewObjectError("initMultipartUpload", bucket, key, err)
	}
	if aws.ToString(out.UploadId) == "" {
		return nil, storageerrors.NewObjectError("initMultipartUpload", bucket, key, storageerrors.ErrUploadSession).
			WithMessage("unable to initialize multipart upload")
	}

	c.logger.DebugContext(ctx, "initialized multipart upload",
		"bucket", bucket, "key", key, "upload_id", aws.ToString(out.UploadId))

	return &storagetypes.InitMultipartResult{UploadID: aws.ToString(out.UploadId)}, nil
}

// GetPartsPresignedURLs returns one presigned UploadPart URL per requested part
// number, in the order requested. URLs expire after one hour.
//
// Errors:
//   - ErrInvalidInput: If uploadID is empty, no parts are requested, or a part
//     number is outside 1..10000
func (c *Client) GetPartsPresignedURLs(
	ctx context.Context,
	key, uploadID string,
	partNumbers []int,
) ([]storagetypes.PartURL, error) {
	const op = "getPartsPresignedURLs"

	bucket, err := c.bucket(op, key)
	if err != nil {
		return nil, err
	}
	if err := validation.ValidateObjectKey(key); err != nil {
		return nil, err
	}
	if uploadID == "" {
		return nil, storageerrors.NewObjectError(op, bucket, key, storageerrors.ErrInvalidInput).
			WithMessage("upload id cannot be empty")
	}
	if err := parts.CheckNumbers(partNumbers); err != nil {
		return nil, storageerrors.NewObjectError(op, bucket, key, err)
	}

	tasks := make([]concurrency.Task[storagetypes.PartURL], len(partNumbers))
	for i, n := range partNumbers {
		tasks[i] = func(ctx context.Context) (storagetypes.PartURL, error) {
			req, err := c.presigner.PresignUploadPart(ctx, &s3.UploadPartInput{
				Bucket:     aws.String(bucket),
				Key:        aws.String(key),
				UploadId:   aws.String(uploadID),
				PartNumber: aws.Int32(int32(n)),
			}, s3.WithPresignExpires(storagetypes.DefaultPresignExpiry))
			if err != nil {
				return storagetypes.PartURL{}, fmt.Errorf("part %d: %w", n, err)
			}
			return storagetypes.PartURL{Part: n, URL: req.URL}, nil
		}
	}

	urls, err := concurrency.Execute(ctx, tasks, c.cfg.Concurrency)
	if err != nil {
		return nil, storageerrors.NewObjectError(op, bucket, key, err)
	}
	return urls, nil
}

// CompleteMultipartUpload assembles the uploaded parts of a session into the
// final object and returns a presigned GET URL for it.
//
// partIDs maps each part number to the ETag returned when the part was stored.
// Parts may be given in any order; they are sent to the service ascending by
// part number. Every part must appear exactly once.
//
// Errors:
//   - ErrInvalidInput: If uploadID or partIDs is empty, an ETag is missing, or
//     a part number repeats
//   - ErrNoSuchUpload: If the session is unknown or already completed
//   - ErrUploadSession: If the service rejects the part list
func (c *Client) CompleteMultipartUpload(
	ctx context.Context,
	key, uploadID string,
	partIDs storagetypes.PartIDs,
) (*storagetypes.CompleteMultipartResult, error) {
	const op = "completeMultipartUpload"

	bucket, err := c.bucket(op, key)
	if err != nil {
		return nil, err
	}
	if err := validation.ValidateObjectKey(key); err != nil {
		return nil, err
	}
	if uploadID == "" {
		return nil, storageerrors.NewObjectError(op, bucket, key, storageerrors.ErrInvalidInput).
			WithMessage("upload id cannot be empty")
	}

	completed, err := completedParts(partIDs)
	if err != nil {
		return nil, storageerrors.NewObjectError(op, bucket, key, err)
	}

	_, err = c.s3Client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(bucket),
		Key:             aws.String(key),
		UploadId:        aws.String(uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{Parts: completed},
	})
	if err != nil {
		return nil, storageerrors.NewObjectError(op, bucket, key, err).
			WithMessage("unable to complete multipart upload")
	}

	c.logger.DebugContext(ctx, "completed multipart upload",
		"bucket", bucket, "key", key, "upload_id", uploadID, "parts", len(completed))

	url, err := c.presignGet(ctx, bucket, key, storagetypes.DefaultPresignExpiry)
	if err != nil {
		return nil, storageerrors.NewObjectError(op, bucket, key, err).WithMessage("presigning object URL")
	}

	return &storagetypes.CompleteMultipartResult{Path: key, URL: url}, nil
}

// completedParts converts the checked part list into SDK form.
func completedParts(partIDs storagetypes.PartIDs) ([]types.CompletedPart, error) {
	list, err := parts.Completion(partIDs)
	if err != nil {
		return nil, err
	}

	completed := make([]types.CompletedPart, len(list))
	for i, p := range list {
		completed[i] = types.CompletedPart{
			PartNumber: aws.Int32(int32(p.Number)),
			ETag:       aws.String(p.ETag),
		}
	}
	return completed, nil
}
