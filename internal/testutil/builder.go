package testutil

import (
	"bytes"
	"context"
	"crypto/md5"
	"fmt"
	"io"
	"net/url"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/input-output-hk/catalyst-forge-libs/storage/storagetypes"
)

// StoredObject is an object held by a MemoryStore.
type StoredObject struct {
	Body               []byte
	ContentType        string
	ContentDisposition string
	ACL                types.ObjectCannedACL
	Modified           time.Time
}

type pendingUpload struct {
	key   string
	parts map[int32][]byte
}

// MemoryStore is an in-memory, single-bucket S3 fake. Its Client method
// returns a MockS3Client whose operations read and write the store.
type MemoryStore struct {
	Bucket string

	mu        sync.Mutex
	completed [][]types.CompletedPart
	objects   map[string]StoredObject
	uploads   map[string]*pendingUpload
	nextID    int
}

// NewMemoryStore creates an empty store for bucket.
func NewMemoryStore(bucket string) *MemoryStore {
	return &MemoryStore{
		Bucket:  bucket,
		objects: make(map[string]StoredObject),
		uploads: make(map[string]*pendingUpload),
	}
}

// Object returns the object stored under key.
func (m *MemoryStore) Object(key string) (StoredObject, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	return obj, ok
}

// Set stores body under key.
func (m *MemoryStore) Set(key string, body []byte, contentType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = StoredObject{Body: body, ContentType: contentType, Modified: time.Now()}
}

// Keys returns the stored keys in lexical order.
func (m *MemoryStore) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// CompletedParts returns the part list of every completed multipart upload.
func (m *MemoryStore) CompletedParts() [][]types.CompletedPart {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.completed)
}

// PendingUploads returns the number of multipart sessions not yet completed.
func (m *MemoryStore) PendingUploads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.uploads)
}

func (m *MemoryStore) checkBucket(bucket *string) error {
	if aws.ToString(bucket) != m.Bucket {
		return &types.NoSuchBucket{Message: aws.String("The specified bucket does not exist")}
	}
	return nil
}

// Client returns a MockS3Client backed by the store.
func (m *MemoryStore) Client() *MockS3Client {
	return &MockS3Client{
		PutObjectFunc: func(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
			if err := m.checkBucket(in.Bucket); err != nil {
				return nil, err
			}
			var body []byte
			if in.Body != nil {
				b, err := io.ReadAll(in.Body)
				if err != nil {
					return nil, err
				}
				body = b
			}

			m.mu.Lock()
			defer m.mu.Unlock()
			m.objects[aws.ToString(in.Key)] = StoredObject{
				Body:               body,
				ContentType:        aws.ToString(in.ContentType),
				ContentDisposition: aws.ToString(in.ContentDisposition),
				ACL:                in.ACL,
				Modified:           time.Now(),
			}
			return &s3.PutObjectOutput{ETag: aws.String(etag(body))}, nil
		},

		GetObjectFunc: func(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
			if err := m.checkBucket(in.Bucket); err != nil {
				return nil, err
			}
			obj, ok := m.Object(aws.ToString(in.Key))
			if !ok {
				return nil, &types.NoSuchKey{Message: aws.String("The specified key does not exist.")}
			}
			contentType := obj.ContentType
			if in.ResponseContentType != nil {
				contentType = aws.ToString(in.ResponseContentType)
			}
			return &s3.GetObjectOutput{
				Body:          io.NopCloser(bytes.NewReader(obj.Body)),
				ContentLength: aws.Int64(int64(len(obj.Body))),
				ContentType:   aws.String(contentType),
				LastModified:  aws.Time(obj.Modified),
			}, nil
		},

		HeadObjectFunc: func(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
			if err := m.checkBucket(in.Bucket); err != nil {
				return nil, err
			}
			obj, ok := m.Object(aws.ToString(in.Key))
			if !ok {
				return nil, &types.NotFound{Message: aws.String("Not Found")}
			}
			return &s3.HeadObjectOutput{
				ContentLength:      aws.Int64(int64(len(obj.Body))),
				ContentType:        aws.String(obj.ContentType),
				ContentDisposition: aws.String(obj.ContentDisposition),
				LastModified:       aws.Time(obj.Modified),
				ETag:               aws.String(etag(obj.Body)),
			}, nil
		},

		DeleteObjectFunc: func(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
			if err := m.checkBucket(in.Bucket); err != nil {
				return nil, err
			}
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.objects, aws.ToString(in.Key))
			return &s3.DeleteObjectOutput{}, nil
		},

		ListObjectsV2Func: func(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
			if err := m.checkBucket(in.Bucket); err != nil {
				return nil, err
			}
			var keys []string
			for _, k := range m.Keys() {
				if strings.HasPrefix(k, aws.ToString(in.Prefix)) && k > aws.ToString(in.ContinuationToken) {
					keys = append(keys, k)
				}
			}

			limit := int(aws.ToInt32(in.MaxKeys))
			if limit <= 0 {
				limit = 1000
			}
			out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(len(keys) > limit)}
			if len(keys) > limit {
				keys = keys[:limit]
				out.NextContinuationToken = aws.String(keys[len(keys)-1])
			}
			for _, k := range keys {
				obj, _ := m.Object(k)
				out.Contents = append(out.Contents, types.Object{
					Key:          aws.String(k),
					Size:         aws.Int64(int64(len(obj.Body))),
					LastModified: aws.Time(obj.Modified),
				})
			}
			out.KeyCount = aws.Int32(int32(len(out.Contents)))
			return out, nil
		},

		CopyObjectFunc: func(_ context.Context, in *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error) {
			if err := m.checkBucket(in.Bucket); err != nil {
				return nil, err
			}
			srcBucket, escaped, _ := strings.Cut(aws.ToString(in.CopySource), "/")
			if err := m.checkBucket(aws.String(srcBucket)); err != nil {
				return nil, err
			}
			src, err := url.PathUnescape(escaped)
			if err != nil {
				return nil, &smithy.GenericAPIError{Code: "InvalidArgument", Message: err.Error()}
			}

			m.mu.Lock()
			defer m.mu.Unlock()
			obj, ok := m.objects[src]
			if !ok {
				return nil, &types.NoSuchKey{Message: aws.String("The specified key does not exist.")}
			}
			obj.Modified = time.Now()
			m.objects[aws.ToString(in.Key)] = obj
			if RequestHeaders(optFns).Get(storagetypes.HeaderRename) == "true" {
				delete(m.objects, src)
			}
			return &s3.CopyObjectOutput{}, nil
		},

		PutObjectAclFunc: func(_ context.Context, in *s3.PutObjectAclInput, _ ...func(*s3.Options)) (*s3.PutObjectAclOutput, error) {
			if err := m.checkBucket(in.Bucket); err != nil {
				return nil, err
			}
			m.mu.Lock()
			defer m.mu.Unlock()
			obj, ok := m.objects[aws.ToString(in.Key)]
			if !ok {
				return nil, &types.NoSuchKey{Message: aws.String("The specified key does not exist.")}
			}
			obj.ACL = in.ACL
			m.objects[aws.ToString(in.Key)] = obj
			return &s3.PutObjectAclOutput{}, nil
		},

		CreateMultipartUploadFunc: func(_ context.Context, in *s3.CreateMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
			if err := m.checkBucket(in.Bucket); err != nil {
				return nil, err
			}
			m.mu.Lock()
			defer m.mu.Unlock()
			m.nextID++
			id := fmt.Sprintf("upload-%d", m.nextID)
			m.uploads[id] = &pendingUpload{key: aws.ToString(in.Key), parts: make(map[int32][]byte)}
			return &s3.CreateMultipartUploadOutput{Bucket: in.Bucket, Key: in.Key, UploadId: aws.String(id)}, nil
		},

		UploadPartFunc: func(_ context.Context, in *s3.UploadPartInput, _ ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
			body, err := io.ReadAll(in.Body)
			if err != nil {
				return nil, err
			}
			m.mu.Lock()
			defer m.mu.Unlock()
			up, ok := m.uploads[aws.ToString(in.UploadId)]
			if !ok {
				return nil, &smithy.GenericAPIError{Code: "NoSuchUpload", Message: "The specified upload does not exist."}
			}
			up.parts[aws.ToInt32(in.PartNumber)] = body
			return &s3.UploadPartOutput{ETag: aws.String(etag(body))}, nil
		},

		CompleteMultipartUploadFunc: func(_ context.Context, in *s3.CompleteMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
			m.mu.Lock()
			defer m.mu.Unlock()
			up, ok := m.uploads[aws.ToString(in.UploadId)]
			if !ok {
				return nil, &smithy.GenericAPIError{Code: "NoSuchUpload", Message: "The specified upload does not exist."}
			}

			var completed []types.CompletedPart
			if in.MultipartUpload != nil {
				completed = in.MultipartUpload.Parts
			}
			if !slices.IsSortedFunc(completed, func(a, b types.CompletedPart) int {
				return int(aws.ToInt32(a.PartNumber) - aws.ToInt32(b.PartNumber))
			}) {
				return nil, &smithy.GenericAPIError{Code: "InvalidPartOrder", Message: "The list of parts was not in ascending order."}
			}

			var body []byte
			for _, p := range completed {
				data, ok := up.parts[aws.ToInt32(p.PartNumber)]
				if !ok {
					return nil, &smithy.GenericAPIError{Code: "InvalidPart", Message: "One or more of the specified parts could not be found."}
				}
				body = append(body, data...)
			}

			m.objects[up.key] = StoredObject{Body: body, Modified: time.Now()}
			m.completed = append(m.completed, completed)
			delete(m.uploads, aws.ToString(in.UploadId))
			return &s3.CompleteMultipartUploadOutput{Bucket: in.Bucket, Key: in.Key, ETag: aws.String(etag(body))}, nil
		},

		AbortMultipartUploadFunc: func(_ context.Context, in *s3.AbortMultipartUploadInput, _ ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.uploads, aws.ToString(in.UploadId))
			return &s3.AbortMultipartUploadOutput{}, nil
		},
	}
}

func etag(body []byte) string {
	return fmt.Sprintf(`"%x"`, md5.Sum(body))
}
