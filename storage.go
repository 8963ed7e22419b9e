package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	storageerrors "github.com/input-output-hk/catalyst-forge-libs/storage/errors"
	"github.com/input-output-hk/catalyst-forge-libs/storage/internal/keys"
	"github.com/input-output-hk/catalyst-forge-libs/storage/internal/parts"
	"github.com/input-output-hk/catalyst-forge-libs/storage/internal/s3api"
	"github.com/input-output-hk/catalyst-forge-libs/storage/internal/validation"
	"github.com/input-output-hk/catalyst-forge-libs/storage/storagetypes"
)

// Put stores the content of body under key in the configured bucket.
//
// The payload is sent in a single request unless opts.Multipart is set, in
// which case it is split into parts of the client's part size and uploaded
// with the client's concurrency. Readers that cannot seek are buffered in
// memory first so the size is known up front.
//
// With AllowOverwrite set to false the object is looked up first and Put fails
// if it exists. With AddRandomSuffix the stored key differs from key; the
// result's Path holds the final key.
//
// The returned URL is the public object URL for public objects, otherwise a
// presigned GET URL valid for one hour.
//
// Errors:
//   - ErrMissingConfig: If no bucket is configured
//   - ErrInvalidObjectKey: If key is not a valid object key
//   - ErrInvalidInput: If body is nil or the content type is malformed
//   - ErrObjectExists: If overwriting was disallowed and the object exists
//   - ErrAccessDenied, ErrBucketNotFound and other AWS errors wrapped in Error type
//
// Example:
//
//	res, err := client.Put(ctx, "reports/q3.pdf", file, &storagetypes.PutOptions{
//	    ContentDisposition: storagetypes.DispositionAttachment,
//	    Multipart:          true,
//	    OnProgress: func(p storagetypes.UploadProgress) {
//	        fmt.Printf("%d%%\n", p.Percentage)
//	    },
//	})
func (c *Client) Put(
	ctx context.Context,
	key string,
	body io.Reader,
	opts *storagetypes.PutOptions,
) (*storagetypes.PutResult, error) {
	if opts == nil {
		opts = &storagetypes.PutOptions{}
	}

	bucket, err := c.bucket("put", key)
	if err != nil {
		return nil, err
	}
	if body == nil {
		return nil, storageerrors.NewObjectError("put", bucket, key, storageerrors.ErrInvalidInput).
			WithMessage("body cannot be nil")
	}
	if err := validation.ValidateContentType(opts.ContentType); err != nil {
		return nil, err
	}

	if opts.AddRandomSuffix {
		key = keys.AddRandomSuffix(key)
	}
	if err := validation.ValidateObjectKey(key); err != nil {
		return nil, err
	}

	if !opts.Overwrite() && c.exists(ctx, bucket, key) {
		return nil, storageerrors.NewObjectError("put", bucket, key, storageerrors.ErrObjectExists)
	}

	payload, size, err := seekable(body)
	if err != nil {
		return nil, storageerrors.NewObjectError("put", bucket, key, err).WithMessage("reading body")
	}

	contentType := opts.ContentType
	if contentType == "" {
		contentType, err = sniffContentType(key, payload)
		if err != nil {
			return nil, storageerrors.NewObjectError("put", bucket, key, err).WithMessage("detecting content type")
		}
	}

	disposition := keys.ContentDisposition(key, opts.ContentDisposition)
	input := &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        payload,
		ContentType: aws.String(contentType),
		ACL:         types.ObjectCannedACLPrivate,
	}
	if disposition != "" {
		input.ContentDisposition = aws.String(disposition)
	}
	if opts.Access == storagetypes.AccessPublic {
		input.ACL = types.ObjectCannedACLPublicRead
	}

	tracker := parts.NewTracker(size, opts.OnProgress)

	c.logger.DebugContext(ctx, "storing object",
		"bucket", bucket, "key", key, "size", size, "multipart", opts.Multipart)

	if opts.Multipart {
		err = c.putMultipart(ctx, input, tracker)
	} else {
		input.ContentLength = aws.Int64(size)
		if _, err = c.s3Client.PutObject(ctx, input); err == nil {
			tracker.Add(size)
		}
	}
	if err != nil {
		return nil, storageerrors.NewObjectError("put", bucket, key, err)
	}

	url, err := c.objectURL(ctx, bucket, key, opts.Access)
	if err != nil {
		return nil, storageerrors.NewObjectError("put", bucket, key, err).WithMessage("presigning object URL")
	}

	return &storagetypes.PutResult{
		ContentDisposition: disposition,
		ContentType:        contentType,
		Modified:           time.Now(),
		Path:               key,
		Size:               size,
		URL:                url,
	}, nil
}

// putMultipart uploads input through the SDK's upload manager. Progress is
// reported as each part, or the single request for small payloads, succeeds.
func (c *Client) putMultipart(ctx context.Context, input *s3.PutObjectInput, tracker *parts.Tracker) error {
	uploader := manager.NewUploader(&progressClient{S3API: c.s3Client, tracker: tracker}, func(u *manager.Uploader) {
		u.PartSize = c.cfg.PartSize
		u.Concurrency = c.cfg.Concurrency
		u.LeavePartsOnError = false
	})

	if _, err := uploader.Upload(ctx, input); err != nil {
		return err
	}

	if p := tracker.Progress(); p.Loaded < p.Total {
		tracker.Add(p.Total - p.Loaded)
	}
	return nil
}

// PutFile uploads the file at localPath, read from the client's filesystem,
// under key. It behaves like Put.
//
// Example:
//
//	res, err := client.PutFile(ctx, "backups/db.tar.gz", "/var/backups/db.tar.gz",
//	    &storagetypes.PutOptions{Multipart: true})
func (c *Client) PutFile(
	ctx context.Context,
	key, localPath string,
	opts *storagetypes.PutOptions,
) (*storagetypes.PutResult, error) {
	f, err := c.filesystem().Open(localPath)
	if err != nil {
		return nil, storageerrors.NewError("putFile", err).WithKey(key).WithMessage("opening " + localPath)
	}
	defer func() {
		_ = f.Close()
	}()

	return c.Put(ctx, key, f, opts)
}

// Get downloads the object stored under key into memory.
//
// Errors:
//   - ErrObjectNotFound: If the object does not exist
//   - ErrMissingConfig: If no bucket is configured
func (c *Client) Get(ctx context.Context, key string, opts *storagetypes.GetOptions) ([]byte, error) {
	out, err := c.getObject(ctx, "get", key, opts)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = out.Body.Close()
	}()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, storageerrors.NewObjectError("get", c.cfg.Bucket, key, err).WithMessage("reading body")
	}
	return data, nil
}

// GetString downloads the object stored under key as a string.
func (c *Client) GetString(ctx context.Context, key string, opts *storagetypes.GetOptions) (string, error) {
	data, err := c.Get(ctx, key, opts)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// GetStream opens the object stored under key for reading.
// The caller must close the returned stream's Body.
//
// Example:
//
//	stream, err := client.GetStream(ctx, "videos/intro.mp4", nil)
//	if err != nil {
//	    return err
//	}
//	defer stream.Body.Close()
//	_, err = io.Copy(w, stream.Body)
func (c *Client) GetStream(ctx context.Context, key string, opts *storagetypes.GetOptions) (*storagetypes.Stream, error) {
	out, err := c.getObject(ctx, "getStream", key, opts)
	if err != nil {
		return nil, err
	}
	return &storagetypes.Stream{
		Body:          out.Body,
		ContentType:   aws.ToString(out.ContentType),
		ContentLength: aws.ToInt64(out.ContentLength),
	}, nil
}

func (c *Client) getObject(
	ctx context.Context,
	op, key string,
	opts *storagetypes.GetOptions,
) (*s3.GetObjectOutput, error) {
	if opts == nil {
		opts = &storagetypes.GetOptions{}
	}

	bucket, err := c.bucket(op, key)
	if err != nil {
		return nil, err
	}
	if err := validation.ValidateObjectKey(key); err != nil {
		return nil, err
	}

	input := &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}
	if d := keys.ContentDisposition(key, opts.ContentDisposition); d != "" {
		input.ResponseContentDisposition = aws.String(d)
	}
	if opts.ContentType != "" {
		input.ResponseContentType = aws.String(opts.ContentType)
	}

	out, err := c.s3Client.GetObject(ctx, input, snapshotOptions(opts.SnapshotVersion)...)
	if err != nil {
		return nil, storageerrors.NewObjectError(op, bucket, key, err)
	}
	return out, nil
}

// Head returns the metadata of the object stored under key together with a
// presigned URL for it.
//
// Errors:
//   - ErrObjectNotFound: If the object does not exist
func (c *Client) Head(ctx context.Context, key string, opts *storagetypes.HeadOptions) (*storagetypes.HeadResult, error) {
	if opts == nil {
		opts = &storagetypes.HeadOptions{}
	}

	bucket, err := c.bucket("head", key)
	if err != nil {
		return nil, err
	}
	if err := validation.ValidateObjectKey(key); err != nil {
		return nil, err
	}

	input := &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}

	out, err := c.s3Client.HeadObject(ctx, input, snapshotOptions(opts.SnapshotVersion)...)
	if err != nil {
		return nil, storageerrors.NewObjectError("head", bucket, key, err)
	}

	req, err := c.presigner.PresignHeadObject(ctx, input, s3.WithPresignExpires(storagetypes.DefaultPresignExpiry))
	if err != nil {
		return nil, storageerrors.NewObjectError("head", bucket, key, err).WithMessage("presigning object URL")
	}

	modified := aws.ToTime(out.LastModified)
	if modified.IsZero() {
		modified = time.Now()
	}

	return &storagetypes.HeadResult{
		ContentDisposition: aws.ToString(out.ContentDisposition),
		ContentType:        aws.ToString(out.ContentType),
		Modified:           modified,
		Path:               key,
		Size:               aws.ToInt64(out.ContentLength),
		URL:                req.URL,
	}, nil
}

// exists reports whether key is present. Any lookup failure counts as absent.
func (c *Client) exists(ctx context.Context, bucket, key string) bool {
	_, err := c.s3Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil && !storageerrors.IsObjectNotFound(storageerrors.Classify(err)) {
		c.logger.DebugContext(ctx, "existence check failed", "bucket", bucket, "key", key, "error", err)
	}
	return err == nil
}

// List returns one page of objects in the configured bucket.
// Pass the returned PaginationToken back in opts to fetch the next page.
//
// Example:
//
//	var token string
//	for {
//	    page, err := client.List(ctx, &storagetypes.ListOptions{PaginationToken: token})
//	    if err != nil {
//	        return err
//	    }
//	    for _, item := range page.Items {
//	        fmt.Println(item.Name, item.Size)
//	    }
//	    if !page.HasMore {
//	        break
//	    }
//	    token = page.PaginationToken
//	}
func (c *Client) List(ctx context.Context, opts *storagetypes.ListOptions) (*storagetypes.ListResult, error) {
	if opts == nil {
		opts = &storagetypes.ListOptions{}
	}

	bucket, err := c.bucket("list", "")
	if err != nil {
		return nil, err
	}

	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
	}
	if opts.Limit > 0 {
		input.MaxKeys = aws.Int32(opts.Limit)
	}
	if opts.PaginationToken != "" {
		input.ContinuationToken = aws.String(opts.PaginationToken)
	}
	if opts.Prefix != "" {
		input.Prefix = aws.String(opts.Prefix)
	}

	out, err := c.s3Client.ListObjectsV2(ctx, input, snapshotOptions(opts.SnapshotVersion)...)
	if err != nil {
		return nil, storageerrors.NewError("list", err).WithBucket(bucket)
	}

	items := make([]storagetypes.ListItem, 0, len(out.Contents))
	for _, obj := range out.Contents {
		items = append(items, storagetypes.ListItem{
			ID:           aws.ToString(obj.Key),
			Name:         aws.ToString(obj.Key),
			Size:         aws.ToInt64(obj.Size),
			LastModified: aws.ToTime(obj.LastModified),
		})
	}

	return &storagetypes.ListResult{
		Items:           items,
		PaginationToken: aws.ToString(out.NextContinuationToken),
		HasMore:         aws.ToBool(out.IsTruncated),
	}, nil
}

// Remove deletes the object stored under key. Removing a missing object
// succeeds.
func (c *Client) Remove(ctx context.Context, key string) error {
	bucket, err := c.bucket("remove", key)
	if err != nil {
		return err
	}
	if err := validation.ValidateObjectKey(key); err != nil {
		return err
	}

	_, err = c.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return storageerrors.NewObjectError("remove", bucket, key, err)
	}

	c.logger.DebugContext(ctx, "removed object", "bucket", bucket, "key", key)
	return nil
}

// UpdateObject renames the object stored under key, changes its access, or
// both. The rename runs first so the access change applies to the new key.
// The result's Path is the key the object ends up under.
//
// Errors:
//   - ErrInvalidInput: If neither a new key nor an access is given, the access
//     is unknown, or the new key equals key
//   - ErrInvalidObjectKey: If key or the new key is not a valid object key
//   - ErrObjectNotFound: If nothing is stored under key
//
// Example:
//
//	res, err := client.UpdateObject(ctx, "drafts/post.md", &storagetypes.UpdateObjectOptions{
//	    Key:    "posts/post.md",
//	    Access: storagetypes.AccessPublic,
//	})
func (c *Client) UpdateObject(
	ctx context.Context,
	key string,
	opts *storagetypes.UpdateObjectOptions,
) (*storagetypes.UpdateObjectResult, error) {
	const op = "updateObject"

	bucket, err := c.bucket(op, key)
	if err != nil {
		return nil, err
	}
	if err := validation.ValidateObjectKey(key); err != nil {
		return nil, err
	}
	if opts == nil || (opts.Key == "" && opts.Access == "") {
		return nil, storageerrors.NewObjectError(op, bucket, key, storageerrors.ErrInvalidInput).
			WithMessage("no update options provided")
	}
	acl, err := objectACL(opts.Access)
	if err != nil {
		return nil, storageerrors.NewObjectError(op, bucket, key, err)
	}

	current := key
	if opts.Key != "" {
		if err := validation.ValidateObjectKey(opts.Key); err != nil {
			return nil, err
		}
		if opts.Key == key {
			return nil, storageerrors.NewObjectError(op, bucket, key, storageerrors.ErrInvalidInput).
				WithMessage("cannot rename object to itself")
		}

		_, err := c.s3Client.CopyObject(ctx, &s3.CopyObjectInput{
			Bucket:     aws.String(bucket),
			Key:        aws.String(opts.Key),
			CopySource: aws.String(bucket + "/" + url.PathEscape(key)),
		}, withHeader(storagetypes.HeaderRename, "true"))
		if err != nil {
			return nil, storageerrors.NewObjectError(op, bucket, key, err).
				WithMessage("failed to rename to " + opts.Key)
		}
		current = opts.Key
		c.logger.DebugContext(ctx, "renamed object", "bucket", bucket, "from", key, "to", current)
	}

	if acl != "" {
		_, err := c.s3Client.PutObjectAcl(ctx, &s3.PutObjectAclInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(current),
			ACL:    acl,
		})
		if err != nil {
			return nil, storageerrors.NewObjectError(op, bucket, current, err).
				WithMessage("failed to set access")
		}
		c.logger.DebugContext(ctx, "changed object access", "bucket", bucket, "key", current, "access", opts.Access)
	}

	return &storagetypes.UpdateObjectResult{Path: current}, nil
}

// objectACL maps access onto a canned ACL. Empty access leaves the ACL alone.
func objectACL(access storagetypes.Access) (types.ObjectCannedACL, error) {
	switch access {
	case "":
		return "", nil
	case storagetypes.AccessPublic:
		return types.ObjectCannedACLPublicRead, nil
	case storagetypes.AccessPrivate:
		return types.ObjectCannedACLPrivate, nil
	default:
		return "", fmt.Errorf("%w: access must be public or private, got %q", storageerrors.ErrInvalidInput, access)
	}
}

// PresignURL returns a URL that allows anyone holding it to read or write key
// until it expires. Expiry defaults to one hour.
//
// Errors:
//   - ErrInvalidInput: If the operation is neither get nor put
//
// Example:
//
//	res, err := client.PresignURL(ctx, "uploads/avatar.png", storagetypes.PresignOptions{
//	    Operation:   storagetypes.PresignPut,
//	    ContentType: "image/png",
//	    Expires:     15 * time.Minute,
//	})
func (c *Client) PresignURL(
	ctx context.Context,
	key string,
	opts storagetypes.PresignOptions,
) (*storagetypes.PresignResult, error) {
	bucket, err := c.bucket("presign", key)
	if err != nil {
		return nil, err
	}
	if err := validation.ValidateObjectKey(key); err != nil {
		return nil, err
	}

	expires := opts.Expires
	if expires <= 0 {
		expires = storagetypes.DefaultPresignExpiry
	}

	var url string
	switch opts.Operation {
	case storagetypes.PresignGet:
		url, err = c.presignGet(ctx, bucket, key, expires)
	case storagetypes.PresignPut:
		url, err = c.presignPut(ctx, bucket, key, opts.ContentType, expires)
	default:
		return nil, storageerrors.NewObjectError("presign", bucket, key, storageerrors.ErrInvalidInput).
			WithMessage("operation is required, possible values are `get` and `put`")
	}
	if err != nil {
		return nil, storageerrors.NewObjectError("presign", bucket, key, err)
	}

	return &storagetypes.PresignResult{
		URL:       url,
		Operation: opts.Operation,
		ExpiresIn: int(expires / time.Second),
	}, nil
}

func (c *Client) presignGet(ctx context.Context, bucket, key string, expires time.Duration) (string, error) {
	req, err := c.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expires))
	if err != nil {
		return "", err
	}
	return req.URL, nil
}

func (c *Client) presignPut(ctx context.Context, bucket, key, contentType string, expires time.Duration) (string, error) {
	input := &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	req, err := c.presigner.PresignPutObject(ctx, input, s3.WithPresignExpires(expires))
	if err != nil {
		return "", err
	}
	return req.URL, nil
}

// objectURL returns the URL handed back after a store. Public objects get the
// bare object URL, private ones a presigned GET URL.
func (c *Client) objectURL(ctx context.Context, bucket, key string, access storagetypes.Access) (string, error) {
	url, err := c.presignGet(ctx, bucket, key, storagetypes.DefaultPresignExpiry)
	if err != nil {
		return "", err
	}
	if access == storagetypes.AccessPublic {
		url, _, _ = strings.Cut(url, "?")
	}
	return url, nil
}

// seekable returns r as a ReadSeeker positioned where r was, and the number of
// bytes left in it. Readers that cannot seek are read into memory.
func seekable(r io.Reader) (io.ReadSeeker, int64, error) {
	if rs, ok := r.(io.ReadSeeker); ok {
		if size, err := remaining(rs); err == nil {
			return rs, size, nil
		}
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, 0, err
	}
	return bytes.NewReader(data), int64(len(data)), nil
}

// remaining returns the bytes between the current offset of s and its end,
// leaving the offset unchanged.
func remaining(s io.Seeker) (int64, error) {
	cur, err := s.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}
	end, err := s.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}
	if _, err := s.Seek(cur, io.SeekStart); err != nil {
		return 0, err
	}
	return end - cur, nil
}

// sniffContentType detects the content type of key from its extension or the
// first bytes of rs, then rewinds rs.
func sniffContentType(key string, rs io.ReadSeeker) (string, error) {
	start, err := rs.Seek(0, io.SeekCurrent)
	if err != nil {
		return "", err
	}

	head := make([]byte, keys.SniffLen)
	n, err := io.ReadFull(rs, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", err
	}

	if _, err := rs.Seek(start, io.SeekStart); err != nil {
		return "", err
	}
	return keys.DetectContentType(key, head[:n]), nil
}

// progressClient reports the size of every part, or of the single PutObject,
// the upload manager completes.
type progressClient struct {
	s3api.S3API
	tracker *parts.Tracker
}

func (p *progressClient) PutObject(
	ctx context.Context,
	params *s3.PutObjectInput,
	optFns ...func(*s3.Options),
) (*s3.PutObjectOutput, error) {
	n := bodyLen(params.Body, params.ContentLength)
	out, err := p.S3API.PutObject(ctx, params, optFns...)
	if err == nil {
		p.tracker.Add(n)
	}
	return out, err
}

func (p *progressClient) UploadPart(
	ctx context.Context,
	params *s3.UploadPartInput,
	optFns ...func(*s3.Options),
) (*s3.UploadPartOutput, error) {
	n := bodyLen(params.Body, params.ContentLength)
	out, err := p.S3API.UploadPart(ctx, params, optFns...)
	if err == nil {
		p.tracker.Add(n)
	}
	return out, err
}

func bodyLen(body io.Reader, declared *int64) int64 {
	if declared != nil {
		return *declared
	}
	if s, ok := body.(io.Seeker); ok {
		if n, err := remaining(s); err == nil {
			return n
		}
	}
	return 0
}
