package testutil

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/input-output-hk/catalyst-forge-libs/storage/internal/s3api"
)

// MockPresigner is a mock implementation of the s3api.Presigner interface.
// Unset function fields produce deterministic fake URLs via FakeURL.
type MockPresigner struct {
	PresignGetObjectFunc  func(context.Context, *s3.GetObjectInput, ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
	PresignPutObjectFunc  func(context.Context, *s3.PutObjectInput, ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
	PresignHeadObjectFunc func(context.Context, *s3.HeadObjectInput, ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
	PresignUploadPartFunc func(context.Context, *s3.UploadPartInput, ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)

	mu      sync.Mutex
	expires []time.Duration
}

// FakeURL builds a URL shaped like a presigned S3 URL.
func FakeURL(bucket, key, id string, expires time.Duration, extra url.Values) string {
	q := url.Values{}
	q.Set("X-Amz-Algorithm", "AWS4-HMAC-SHA256")
	q.Set("X-Amz-Expires", fmt.Sprint(int(expires.Seconds())))
	q.Set("x-id", id)
	for k, v := range extra {
		q[k] = v
	}
	return fmt.Sprintf("https://%s.t3.storage.dev/%s?%s", bucket, key, q.Encode())
}

// Expirations returns the expiry requested by every presign call so far.
func (m *MockPresigner) Expirations() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Duration(nil), m.expires...)
}

func (m *MockPresigner) record(optFns []func(*s3.PresignOptions)) time.Duration {
	var opts s3.PresignOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.expires = append(m.expires, opts.Expires)
	return opts.Expires
}

func presigned(method, u string) *v4.PresignedHTTPRequest {
	return &v4.PresignedHTTPRequest{URL: u, Method: method, SignedHeader: http.Header{}}
}

// PresignGetObject mocks presigning a GetObject request.
func (m *MockPresigner) PresignGetObject(
	ctx context.Context,
	params *s3.GetObjectInput,
	optFns ...func(*s3.PresignOptions),
) (*v4.PresignedHTTPRequest, error) {
	exp := m.record(optFns)
	if m.PresignGetObjectFunc != nil {
		return m.PresignGetObjectFunc(ctx, params, optFns...)
	}
	return presigned(http.MethodGet, FakeURL(aws.ToString(params.Bucket), aws.ToString(params.Key), "GetObject", exp, nil)), nil
}

// PresignPutObject mocks presigning a PutObject request.
func (m *MockPresigner) PresignPutObject(
	ctx context.Context,
	params *s3.PutObjectInput,
	optFns ...func(*s3.PresignOptions),
) (*v4.PresignedHTTPRequest, error) {
	exp := m.record(optFns)
	if m.PresignPutObjectFunc != nil {
		return m.PresignPutObjectFunc(ctx, params, optFns...)
	}
	return presigned(http.MethodPut, FakeURL(aws.ToString(params.Bucket), aws.ToString(params.Key), "PutObject", exp, nil)), nil
}

// PresignHeadObject mocks presigning a HeadObject request.
func (m *MockPresigner) PresignHeadObject(
	ctx context.Context,
	params *s3.HeadObjectInput,
	optFns ...func(*s3.PresignOptions),
) (*v4.PresignedHTTPRequest, error) {
	exp := m.record(optFns)
	if m.PresignHeadObjectFunc != nil {
		return m.PresignHeadObjectFunc(ctx, params, optFns...)
	}
	return presigned(http.MethodHead, FakeURL(aws.ToString(params.Bucket), aws.ToString(params.Key), "HeadObject", exp, nil)), nil
}

// PresignUploadPart mocks presigning an UploadPart request.
func (m *MockPresigner) PresignUploadPart(
	ctx context.Context,
	params *s3.UploadPartInput,
	optFns ...func(*s3.PresignOptions),
) (*v4.PresignedHTTPRequest, error) {
	exp := m.record(optFns)
	if m.PresignUploadPartFunc != nil {
		return m.PresignUploadPartFunc(ctx, params, optFns...)
	}
	extra := url.Values{
		"partNumber": {fmt.Sprint(aws.ToInt32(params.PartNumber))},
		"uploadId":   {aws.ToString(params.UploadId)},
	}
	return presigned(http.MethodPut, FakeURL(aws.ToString(params.Bucket), aws.ToString(params.Key), "UploadPart", exp, extra)), nil
}

// Ensure MockPresigner implements s3api.Presigner interface
var _ s3api.Presigner = (*MockPresigner)(nil)
