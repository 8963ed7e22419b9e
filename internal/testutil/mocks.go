// Package testutil holds fakes and fixtures shared by the storage tests.
package testutil

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/input-output-hk/catalyst-forge-libs/storage/internal/s3api"
)

// Call is the shape of every S3 operation on the mock.
type Call[In, Out any] func(context.Context, *In, ...func(*s3.Options)) (*Out, error)

// invoke runs fn, or returns a zero output when the test left it unset.
func invoke[In, Out any](ctx context.Context, fn Call[In, Out], in *In, optFns []func(*s3.Options)) (*Out, error) {
	if fn == nil {
		return new(Out), nil
	}
	return fn(ctx, in, optFns...)
}

// MockS3Client stands in for *s3.Client. Each operation is routed to its
// function field; unset fields succeed with an empty output. MemoryStore
// builds a fully wired one.
type MockS3Client struct {
	PutObjectFunc     Call[s3.PutObjectInput, s3.PutObjectOutput]
	GetObjectFunc     Call[s3.GetObjectInput, s3.GetObjectOutput]
	HeadObjectFunc    Call[s3.HeadObjectInput, s3.HeadObjectOutput]
	DeleteObjectFunc  Call[s3.DeleteObjectInput, s3.DeleteObjectOutput]
	ListObjectsV2Func Call[s3.ListObjectsV2Input, s3.ListObjectsV2Output]
	CopyObjectFunc    Call[s3.CopyObjectInput, s3.CopyObjectOutput]
	PutObjectAclFunc  Call[s3.PutObjectAclInput, s3.PutObjectAclOutput]

	CreateMultipartUploadFunc   Call[s3.CreateMultipartUploadInput, s3.CreateMultipartUploadOutput]
	UploadPartFunc              Call[s3.UploadPartInput, s3.UploadPartOutput]
	CompleteMultipartUploadFunc Call[s3.CompleteMultipartUploadInput, s3.CompleteMultipartUploadOutput]
	AbortMultipartUploadFunc    Call[s3.AbortMultipartUploadInput, s3.AbortMultipartUploadOutput]

	CreateBucketFunc Call[s3.CreateBucketInput, s3.CreateBucketOutput]
	DeleteBucketFunc Call[s3.DeleteBucketInput, s3.DeleteBucketOutput]
	ListBucketsFunc  Call[s3.ListBucketsInput, s3.ListBucketsOutput]
}

var _ s3api.S3API = (*MockS3Client)(nil)

func (m *MockS3Client) PutObject(
	ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options),
) (*s3.PutObjectOutput, error) {
	return invoke(ctx, m.PutObjectFunc, in, optFns)
}

func (m *MockS3Client) GetObject(
	ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options),
) (*s3.GetObjectOutput, error) {
	return invoke(ctx, m.GetObjectFunc, in, optFns)
}

func (m *MockS3Client) HeadObject(
	ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options),
) (*s3.HeadObjectOutput, error) {
	return invoke(ctx, m.HeadObjectFunc, in, optFns)
}

func (m *MockS3Client) DeleteObject(
	ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options),
) (*s3.DeleteObjectOutput, error) {
	return invoke(ctx, m.DeleteObjectFunc, in, optFns)
}

func (m *MockS3Client) ListObjectsV2(
	ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options),
) (*s3.ListObjectsV2Output, error) {
	return invoke(ctx, m.ListObjectsV2Func, in, optFns)
}

func (m *MockS3Client) CopyObject(
	ctx context.Context, in *s3.CopyObjectInput, optFns ...func(*s3.Options),
) (*s3.CopyObjectOutput, error) {
	return invoke(ctx, m.CopyObjectFunc, in, optFns)
}

func (m *MockS3Client) PutObjectAcl(
	ctx context.Context, in *s3.PutObjectAclInput, optFns ...func(*s3.Options),
) (*s3.PutObjectAclOutput, error) {
	return invoke(ctx, m.PutObjectAclFunc, in, optFns)
}

func (m *MockS3Client) CreateMultipartUpload(
	ctx context.Context, in *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options),
) (*s3.CreateMultipartUploadOutput, error) {
	return invoke(ctx, m.CreateMultipartUploadFunc, in, optFns)
}

func (m *MockS3Client) UploadPart(
	ctx context.Context, in *s3.UploadPartInput, optFns ...func(*s3.Options),
) (*s3.UploadPartOutput, error) {
	return invoke(ctx, m.UploadPartFunc, in, optFns)
}

func (m *MockS3Client) CompleteMultipartUpload(
	ctx context.Context, in *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options),
) (*s3.CompleteMultipartUploadOutput, error) {
	return invoke(ctx, m.CompleteMultipartUploadFunc, in, optFns)
}

func (m *MockS3Client) AbortMultipartUpload(
	ctx context.Context, in *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options),
) (*s3.AbortMultipartUploadOutput, error) {
	return invoke(ctx, m.AbortMultipartUploadFunc, in, optFns)
}

func (m *MockS3Client) CreateBucket(
	ctx context.Context, in *s3.CreateBucketInput, optFns ...func(*s3.Options),
) (*s3.CreateBucketOutput, error) {
	return invoke(ctx, m.CreateBucketFunc, in, optFns)
}

func (m *MockS3Client) DeleteBucket(
	ctx context.Context, in *s3.DeleteBucketInput, optFns ...func(*s3.Options),
) (*s3.DeleteBucketOutput, error) {
	return invoke(ctx, m.DeleteBucketFunc, in, optFns)
}

func (m *MockS3Client) ListBuckets(
	ctx context.Context, in *s3.ListBucketsInput, optFns ...func(*s3.Options),
) (*s3.ListBucketsOutput, error) {
	return invoke(ctx, m.ListBucketsFunc, in, optFns)
}
