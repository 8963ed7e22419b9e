// Package tigrisapi calls the storage service's JSON endpoints that have no
// S3 counterpart: bucket metadata, bucket settings and account statistics.
// Requests are signed with SigV4 the same way the S3 client signs its own.
package tigrisapi

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"

	"github.com/input-output-hk/catalyst-forge-libs/storage/config"
	storageerrors "github.com/input-output-hk/catalyst-forge-libs/storage/errors"
	"github.com/input-output-hk/catalyst-forge-libs/storage/storagetypes"
)

const (
	signingService = "s3"
	defaultRegion  = "auto"

	// maxErrorBody caps how much of a failed response ends up in the error.
	maxErrorBody = 512
)

// Client sends signed JSON requests to one endpoint.
type Client struct {
	endpoint   string
	region     string
	namespace  string
	creds      aws.CredentialsProvider
	httpClient *http.Client
	signer     *v4.Signer
	now        func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client requests are sent with.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.httpClient = c
		}
	}
}

// WithRegion sets the signing region. Defaults to "auto".
func WithRegion(region string) Option {
	return func(c *Client) {
		if region != "" {
			c.region = region
		}
	}
}

// WithNamespace sends the organization namespace header on every request.
func WithNamespace(organizationID string) Option {
	return func(c *Client) {
		c.namespace = organizationID
	}
}

// New returns a client for endpoint. Requests are unsigned when creds is nil.
func New(endpoint string, creds aws.CredentialsProvider, opts ...Option) *Client {
	c := &Client{
		endpoint:   strings.TrimRight(endpoint, "/"),
		region:     defaultRegion,
		creds:      creds,
		httpClient: http.DefaultClient,
		signer:     v4.NewSigner(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type request struct {
	method string
	path   string
	query  string
	header http.Header
	body   any
}

// do sends req and decodes a JSON response into out when out is not nil.
func (c *Client) do(ctx context.Context, req request, out any) error {
	if c.endpoint == "" {
		return storageerrors.MissingConfig("endpoint", config.EnvEndpoint)
	}

	var payload []byte
	if req.body != nil {
		b, err := json.Marshal(req.body)
		if err != nil {
			return fmt.Errorf("%w: encoding request: %w", storageerrors.ErrInvalidInput, err)
		}
		payload = b
	}

	target := c.endpoint + req.path
	if req.query != "" {
		target += "?" + req.query
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, target, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: %w", storageerrors.ErrInvalidInput, err)
	}

	httpReq.Header.Set("Accept", "application/json")
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, values := range req.header {
		for _, v := range values {
			httpReq.Header.Add(k, v)
		}
	}
	if c.namespace != "" {
		httpReq.Header.Set(storagetypes.HeaderNamespace, c.namespace)
	}

	if err := c.sign(ctx, httpReq, payload); err != nil {
		return err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %w", storageerrors.ErrTransport, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: decoding response: %w", storageerrors.ErrTransport, err)
	}
	return nil
}

func (c *Client) sign(ctx context.Context, req *http.Request, payload []byte) error {
	if c.creds == nil {
		return nil
	}
	creds, err := c.creds.Retrieve(ctx)
	if err != nil {
		return fmt.Errorf("%w: retrieving credentials: %w", storageerrors.ErrAccessDenied, err)
	}

	sum := sha256.Sum256(payload)
	hash := hex.EncodeToString(sum[:])
	req.Header.Set("X-Amz-Content-Sha256", hash)
	return c.signer.SignHTTP(ctx, creds, req, hash, signingService, c.region, c.now())
}

// statusError maps a non-2xx response onto the storage sentinels.
func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	var sentinel error
	switch resp.StatusCode {
	case http.StatusBadRequest:
		sentinel = storageerrors.ErrInvalidInput
	case http.StatusUnauthorized, http.StatusForbidden:
		sentinel = storageerrors.ErrAccessDenied
	case http.StatusNotFound:
		sentinel = storageerrors.ErrBucketNotFound
	default:
		sentinel = storageerrors.ErrTransport
	}
	return fmt.Errorf("%w: status %d: %s", sentinel, resp.StatusCode, msg)
}
