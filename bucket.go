package storage

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	storageerrors "github.com/input-output-hk/catalyst-forge-libs/storage/errors"
	"github.com/input-output-hk/catalyst-forge-libs/storage/internal/tigrisapi"
	"github.com/input-output-hk/catalyst-forge-libs/storage/internal/validation"
	"github.com/input-output-hk/catalyst-forge-libs/storage/storagetypes"
)

// CreateBucket creates a bucket named name.
//
// Options select public access, the default storage tier of new objects, the
// regions data is placed in, snapshot support, and an existing bucket (and
// optionally one of its snapshots) to fork from.
//
// Errors:
//   - ErrInvalidBucketName: If name is not a valid bucket name
//   - ErrInvalidInput: If a region is unknown
//   - ErrBucketAlreadyExists: If the bucket already exists
//
// Example:
//
//	res, err := client.CreateBucket(ctx, "media", &storagetypes.CreateBucketOptions{
//	    Access:         storagetypes.AccessPublic,
//	    Regions:        []string{"fra", "iad"},
//	    EnableSnapshot: true,
//	})
func (c *Client) CreateBucket(
	ctx context.Context,
	name string,
	opts *storagetypes.CreateBucketOptions,
) (*storagetypes.CreateBucketResult, error) {
	if opts == nil {
		opts = &storagetypes.CreateBucketOptions{}
	}

	if err := validation.ValidateBucketName(name); err != nil {
		return nil, err
	}
	if err := validation.ValidateRegions(opts.Regions); err != nil {
		return nil, err
	}

	input := &s3.CreateBucketInput{
		Bucket: aws.String(name),
	}
	if opts.Access == storagetypes.AccessPublic {
		input.ACL = types.BucketCannedACLPublicRead
	}

	var optFns []func(*s3.Options)
	if opts.DefaultTier != "" {
		optFns = append(optFns, withHeader(storagetypes.HeaderStorageClass, string(opts.DefaultTier)))
	}
	if len(opts.Regions) > 0 {
		optFns = append(optFns, withHeader(storagetypes.HeaderRegions, strings.Join(opts.Regions, ",")))
	}
	if opts.EnableSnapshot {
		optFns = append(optFns, withHeader(storagetypes.HeaderSnapshotEnabled, "true"))
	}
	if opts.SourceBucketName != "" {
		optFns = append(optFns, withHeader(storagetypes.HeaderForkSourceBucket, opts.SourceBucketName))
		if opts.SourceBucketSnapshot != "" {
			optFns = append(optFns, withHeader(storagetypes.HeaderForkSourceSnapshot, opts.SourceBucketSnapshot))
		}
	}

	if _, err := c.s3Client.CreateBucket(ctx, input, optFns...); err != nil {
		return nil, storageerrors.NewError("createBucket", err).WithBucket(name)
	}

	c.logger.InfoContext(ctx, "created bucket", "bucket", name, "access", opts.Access)

	res := &storagetypes.CreateBucketResult{
		IsSnapshotEnabled: opts.EnableSnapshot,
		SourceBucketName:  opts.SourceBucketName,
	}
	if opts.SourceBucketName != "" {
		res.SourceBucketSnapshot = opts.SourceBucketSnapshot
	}
	return res, nil
}

// ListBuckets returns one page of the buckets visible to the client's credentials.
func (c *Client) ListBuckets(
	ctx context.Context,
	opts *storagetypes.ListBucketsOptions,
) (*storagetypes.ListBucketsResult, error) {
	if opts == nil {
		opts = &storagetypes.ListBucketsOptions{}
	}

	input := &s3.ListBucketsInput{}
	if opts.Limit > 0 {
		input.MaxBuckets = aws.Int32(opts.Limit)
	}
	if opts.PaginationToken != "" {
		input.ContinuationToken = aws.String(opts.PaginationToken)
	}

	out, err := c.s3Client.ListBuckets(ctx, input)
	if err != nil {
		return nil, storageerrors.NewError("listBuckets", err)
	}

	res := &storagetypes.ListBucketsResult{
		Buckets:         make([]storagetypes.Bucket, 0, len(out.Buckets)),
		PaginationToken: aws.ToString(out.ContinuationToken),
	}
	for _, b := range out.Buckets {
		res.Buckets = append(res.Buckets, storagetypes.Bucket{
			Name:         aws.ToString(b.Name),
			CreationDate: aws.ToTime(b.CreationDate),
		})
	}
	if out.Owner != nil {
		res.Owner = &storagetypes.BucketOwner{
			Name: aws.ToString(out.Owner.DisplayName),
			ID:   aws.ToString(out.Owner.ID),
		}
	}
	return res, nil
}

// RemoveBucket deletes the bucket named name. Without opts.Force the bucket
// must be empty; with it the service deletes the remaining objects as well.
//
// Errors:
//   - ErrBucketNotFound: If the bucket does not exist
//   - ErrBucketNotEmpty: If the bucket still holds objects and Force is unset
func (c *Client) RemoveBucket(ctx context.Context, name string, opts *storagetypes.RemoveBucketOptions) error {
	if err := validation.ValidateBucketName(name); err != nil {
		return err
	}

	var optFns []func(*s3.Options)
	if opts != nil && opts.Force {
		optFns = append(optFns, withHeader(storagetypes.HeaderForceDelete, "true"))
	}

	if _, err := c.s3Client.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: aws.String(name)}, optFns...); err != nil {
		return storageerrors.NewError("removeBucket", err).WithBucket(name)
	}

	c.logger.InfoContext(ctx, "removed bucket", "bucket", name)
	return nil
}

// BucketInfo returns the settings, fork tree position and size estimates of
// the bucket named name.
//
// Errors:
//   - ErrInvalidBucketName: If name is not a valid bucket name
//   - ErrBucketNotFound: If the bucket does not exist
func (c *Client) BucketInfo(ctx context.Context, name string) (*storagetypes.BucketInfo, error) {
	if err := validation.ValidateBucketName(name); err != nil {
		return nil, err
	}

	meta, err := c.admin.BucketMetadata(ctx, name)
	if err != nil {
		return nil, storageerrors.NewError("bucketInfo", err).WithBucket(name)
	}

	info := &storagetypes.BucketInfo{
		Name:              name,
		IsSnapshotEnabled: meta.SnapshotEnabled(),
		ForkInfo:          forkInfo(meta.ForkInfo),
		Settings: storagetypes.BucketSettings{
			DefaultTier: storagetypes.StorageClass(meta.StorageClass),
		},
		SizeInfo: storagetypes.BucketSizeInfo{
			NumberOfObjects:            meta.EstimatedUniqueRows,
			Size:                       meta.EstimatedSize,
			NumberOfObjectsAllVersions: meta.EstimatedRows,
		},
	}
	if meta.ACLSettings != nil {
		info.Settings.AllowObjectACL = meta.ACLSettings.AllowObjectACL
	}
	return info, nil
}

// UpdateBucket changes the settings of the bucket named name. Only the
// settings given in opts are sent; the rest stay as they are.
//
// Errors:
//   - ErrInvalidBucketName: If name is not a valid bucket name
//   - ErrInvalidInput: If opts sets nothing, the access is unknown, a region
//     is unknown or the service rejects the change
//
// Example:
//
//	protect := true
//	_, err := client.UpdateBucket(ctx, "media", &storagetypes.UpdateBucketOptions{
//	    Access:                 storagetypes.AccessPublic,
//	    EnableDeleteProtection: &protect,
//	})
func (c *Client) UpdateBucket(
	ctx context.Context,
	name string,
	opts *storagetypes.UpdateBucketOptions,
) (*storagetypes.UpdateBucketResult, error) {
	const op = "updateBucket"

	if err := validation.ValidateBucketName(name); err != nil {
		return nil, err
	}
	header, body, err := bucketUpdate(opts)
	if err != nil {
		return nil, storageerrors.NewError(op, err).WithBucket(name)
	}

	if err := c.admin.UpdateBucket(ctx, name, header, body); err != nil {
		return nil, storageerrors.NewError(op, err).WithBucket(name)
	}

	c.logger.InfoContext(ctx, "updated bucket", "bucket", name)
	return &storagetypes.UpdateBucketResult{Bucket: name, Updated: true}, nil
}

// bucketUpdate splits opts into the headers and body of a settings request.
func bucketUpdate(opts *storagetypes.UpdateBucketOptions) (http.Header, tigrisapi.BucketUpdate, error) {
	var body tigrisapi.BucketUpdate
	header := http.Header{}
	if opts == nil {
		return nil, body, fmt.Errorf("%w: no update options provided", storageerrors.ErrInvalidInput)
	}
	if err := validation.ValidateRegions(opts.Regions); err != nil {
		return nil, body, err
	}

	switch opts.Access {
	case "":
	case storagetypes.AccessPublic:
		header.Set(storagetypes.HeaderACL, string(types.BucketCannedACLPublicRead))
	case storagetypes.AccessPrivate:
		header.Set(storagetypes.HeaderACL, string(types.BucketCannedACLPrivate))
	default:
		return nil, body, fmt.Errorf("%w: access must be public or private, got %q",
			storageerrors.ErrInvalidInput, opts.Access)
	}
	if opts.DisableDirectoryListing != nil {
		header.Set(storagetypes.HeaderACLListObjects, strconv.FormatBool(!*opts.DisableDirectoryListing))
	}

	if opts.AllowObjectACL != nil {
		body.ACLSettings = &tigrisapi.ACLSettings{AllowObjectACL: *opts.AllowObjectACL}
	}
	body.ObjectRegions = strings.Join(opts.Regions, ",")
	body.CacheControl = opts.CacheControl
	if opts.CustomDomain != "" {
		body.Website = &tigrisapi.Website{DomainName: opts.CustomDomain}
	}
	if opts.EnableDeleteProtection != nil {
		body.Protection = &tigrisapi.Protection{Protected: *opts.EnableDeleteProtection}
	}

	if len(header) == 0 && body == (tigrisapi.BucketUpdate{}) {
		return nil, body, fmt.Errorf("%w: no update options provided", storageerrors.ErrInvalidInput)
	}
	return header, body, nil
}

// CreateBucketSnapshot takes a snapshot of the bucket named name, or of the
// configured bucket when name is empty. The bucket must have been created
// with snapshots enabled. List the snapshots to learn the new version.
func (c *Client) CreateBucketSnapshot(
	ctx context.Context,
	name string,
	opts *storagetypes.BucketSnapshotOptions,
) error {
	const op = "createBucketSnapshot"

	name, err := c.snapshotBucket(op, name)
	if err != nil {
		return err
	}

	value := "true"
	if opts != nil && opts.Name != "" {
		value += "; name=" + opts.Name
	}

	_, err = c.s3Client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(name)},
		withHeader(storagetypes.HeaderSnapshot, value))
	if err != nil {
		return storageerrors.NewError(op, err).WithBucket(name).WithMessage("unable to create bucket snapshot")
	}

	c.logger.InfoContext(ctx, "created bucket snapshot", "bucket", name)
	return nil
}

// ListBucketSnapshots returns the snapshots of the bucket named name, or of
// the configured bucket when name is empty.
func (c *Client) ListBucketSnapshots(ctx context.Context, name string) ([]storagetypes.BucketSnapshot, error) {
	const op = "listBucketSnapshots"

	name, err := c.snapshotBucket(op, name)
	if err != nil {
		return nil, err
	}

	out, err := c.s3Client.ListBuckets(ctx, &s3.ListBucketsInput{}, withHeader(storagetypes.HeaderSnapshot, name))
	if err != nil {
		return nil, storageerrors.NewError(op, err).WithBucket(name).WithMessage("unable to list bucket snapshots")
	}

	snapshots := make([]storagetypes.BucketSnapshot, 0, len(out.Buckets))
	for _, b := range out.Buckets {
		snapshots = append(snapshots, parseSnapshot(aws.ToString(b.Name), aws.ToTime(b.CreationDate)))
	}
	return snapshots, nil
}

// parseSnapshot splits a listed snapshot name of the form
// "<version>; name=<name>" or just "<version>".
func parseSnapshot(listed string, created time.Time) storagetypes.BucketSnapshot {
	version, rest, _ := strings.Cut(listed, ";")
	_, name, _ := strings.Cut(rest, "name=")
	return storagetypes.BucketSnapshot{
		Name:         name,
		Version:      strings.TrimSpace(version),
		SnapshotName: listed,
		CreationDate: created,
	}
}

func (c *Client) snapshotBucket(op, name string) (string, error) {
	if name == "" {
		name = c.cfg.Bucket
	}
	if name == "" {
		return "", storageerrors.NewError(op, storageerrors.ErrInvalidInput).WithMessage("source bucket name is required")
	}
	if err := validation.ValidateBucketName(name); err != nil {
		return "", err
	}
	return name, nil
}

// Stats returns usage totals for the account and a summary of every bucket
// in it.
func (c *Client) Stats(ctx context.Context) (*storagetypes.StatsResult, error) {
	stats, err := c.admin.Stats(ctx)
	if err != nil {
		return nil, storageerrors.NewError("stats", err)
	}

	res := &storagetypes.StatsResult{
		Stats: storagetypes.Stats{
			ActiveBuckets:      stats.Stats.ActiveBuckets,
			TotalObjects:       stats.Stats.TotalObjects,
			TotalStorageBytes:  stats.Stats.TotalStorageBytes,
			TotalUniqueObjects: stats.Stats.TotalUniqueObjects,
		},
		Buckets: make([]storagetypes.BucketStats, 0, len(stats.Buckets.Bucket)),
	}
	for _, b := range stats.Buckets.Bucket {
		regions := []string{"global"}
		if b.Regions != "" {
			regions = strings.Split(b.Regions, ",")
		}
		visibility := storagetypes.AccessPrivate
		if b.Visibility.IsPublic {
			visibility = storagetypes.AccessPublic
		}
		res.Buckets = append(res.Buckets, storagetypes.BucketStats{
			Name:         b.Name,
			CreationDate: parseTime(b.CreationDate),
			ForkInfo:     forkInfo(b.ForkInfo),
			Type:         b.Type,
			Regions:      regions,
			Visibility:   visibility,
		})
	}
	return res, nil
}

func forkInfo(in *tigrisapi.ForkInfo) *storagetypes.BucketForkInfo {
	if in == nil {
		return nil
	}
	out := &storagetypes.BucketForkInfo{
		HasChildren: in.HasChildren,
		Parents:     make([]storagetypes.BucketForkParent, 0, len(in.Parents)),
	}
	for _, p := range in.Parents {
		out.Parents = append(out.Parents, storagetypes.BucketForkParent{
			BucketName:        p.BucketName,
			ForkCreatedAt:     parseTime(p.ForkCreatedAt),
			Snapshot:          p.Snapshot,
			SnapshotCreatedAt: parseTime(p.SnapshotCreatedAt),
		})
	}
	return out
}

// parseTime reads an RFC 3339 timestamp. Anything else becomes the zero time.
func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
