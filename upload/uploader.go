package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	storageerrors "github.com/input-output-hk/catalyst-forge-libs/storage/errors"
	"github.com/input-output-hk/catalyst-forge-libs/storage/internal/keys"
	"github.com/input-output-hk/catalyst-forge-libs/storage/storagetypes"
)

// Options configures a single upload.
type Options struct {
	// ContentType of the object. When empty it is derived from the name or
	// sniffed from the first bytes of the payload.
	ContentType string

	// ContentDisposition is reported back in the response.
	ContentDisposition storagetypes.ContentDisposition

	// AddRandomSuffix inserts a random suffix before the extension of the name.
	AddRandomSuffix bool

	// AllowOverwrite lets a single-shot upload replace an existing object.
	// Nil leaves the decision to the endpoint, which allows it.
	AllowOverwrite *bool

	// Multipart forces the multipart path.
	Multipart bool

	// MultipartThreshold selects the multipart path for payloads larger than
	// this many bytes. Zero disables automatic selection.
	MultipartThreshold int64

	// PartSize is the size of each part. Defaults to 5 MiB.
	PartSize int64

	// Concurrency bounds how many parts are in flight. Zero uses the default
	// of 4; negative values send parts one at a time.
	Concurrency int

	// OnProgress receives cumulative progress.
	OnProgress storagetypes.ProgressFunc

	// OnStateChange is called on every state transition.
	OnStateChange func(State)
}

func (o Options) partSize() int64 {
	if o.PartSize > 0 {
		return o.PartSize
	}
	return storagetypes.DefaultPartSize
}

// concurrency returns the bound handed to the limiter, which clamps
// anything below 1 to sequential.
func (o Options) concurrency() int {
	if o.Concurrency == 0 {
		return storagetypes.DefaultConcurrency
	}
	return o.Concurrency
}

func (o Options) multipart(size int64) bool {
	return o.Multipart || (o.MultipartThreshold > 0 && size > o.MultipartThreshold)
}

// Uploader uploads payloads through an upload endpoint. It is safe for
// concurrent use; each Upload call owns its own session.
type Uploader struct {
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger
	limiter    *rate.Limiter
}

// Option configures an Uploader.
type Option func(*Uploader)

// WithHTTPClient sets the client used for endpoint calls and part transfers.
func WithHTTPClient(client *http.Client) Option {
	return func(u *Uploader) {
		if client != nil {
			u.httpClient = client
		}
	}
}

// WithLogger sets the logger. By default nothing is logged.
func WithLogger(logger *slog.Logger) Option {
	return func(u *Uploader) {
		if logger != nil {
			u.logger = logger
		}
	}
}

// WithRequestRate paces outgoing requests to r per second with the given burst.
func WithRequestRate(r rate.Limit, burst int) Option {
	return func(u *Uploader) {
		u.limiter = rate.NewLimiter(r, max(burst, 1))
	}
}

// New creates an Uploader posting to the upload endpoint at endpointURL.
// An empty URL is reported by the first Upload, before any request is sent.
func New(endpointURL string, opts ...Option) *Uploader {
	u := &Uploader{
		endpoint:   endpointURL,
		httpClient: &http.Client{},
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Upload stores size bytes read from r under name.
//
// The single-shot or multipart path is chosen once, before any request:
// multipart when Options.Multipart is set or size exceeds
// Options.MultipartThreshold. Failed parts are not retried and an abandoned
// multipart session is left for the store to expire.
//
// Errors:
//   - ErrMissingConfig: If the uploader has no endpoint URL
//   - ErrInvalidInput: If name is empty or size is negative
//   - ErrObjectExists: If overwriting was disallowed and the object exists
//   - ErrTransport: If a request fails or returns a non-2xx status
//   - ErrUploadSession: If the endpoint rejects the multipart session
func (u *Uploader) Upload(
	ctx context.Context,
	name string,
	r io.ReaderAt,
	size int64,
	opts Options,
) (*storagetypes.UploadResponse, error) {
	if u.endpoint == "" {
		return nil, storageerrors.NewError("upload",
			fmt.Errorf("%w: URL option is required for client uploads", storageerrors.ErrMissingConfig))
	}
	if name == "" {
		return nil, storageerrors.NewError("upload", storageerrors.ErrInvalidInput).WithMessage("name cannot be empty")
	}
	if size < 0 || (r == nil && size > 0) {
		return nil, storageerrors.NewObjectError("upload", "", name, storageerrors.ErrInvalidInput).
			WithMessage("payload is missing")
	}

	if opts.AddRandomSuffix {
		name = keys.AddRandomSuffix(name)
	}

	contentType := opts.ContentType
	if contentType == "" {
		contentType = sniff(name, r, size)
	}

	s := &session{
		uploader:    u,
		name:        name,
		contentType: contentType,
		payload:     r,
		size:        size,
		opts:        opts,
		state:       StateIdle,
		onState:     opts.OnStateChange,
	}

	var (
		url string
		err error
	)
	if opts.multipart(size) {
		url, err = s.multipart(ctx)
	} else {
		url, err = s.single(ctx)
	}
	if err != nil {
		s.transition(StateFailed)
		u.logger.DebugContext(ctx, "upload failed", "key", name, "state", s.failedIn, "error", err)
		return nil, storageerrors.NewObjectError("upload", "", name, err)
	}
	s.transition(StateDone)

	return &storagetypes.UploadResponse{
		ContentDisposition: string(opts.ContentDisposition),
		ContentType:        contentType,
		Modified:           time.Now(),
		Name:               name,
		Size:               size,
		URL:                url,
	}, nil
}

// UploadBytes stores data under name.
func (u *Uploader) UploadBytes(
	ctx context.Context,
	name string,
	data []byte,
	opts Options,
) (*storagetypes.UploadResponse, error) {
	return u.Upload(ctx, name, bytes.NewReader(data), int64(len(data)), opts)
}

func sniff(name string, r io.ReaderAt, size int64) string {
	if r == nil || size == 0 {
		return keys.DetectContentType(name, nil)
	}
	head := make([]byte, min(size, keys.SniffLen))
	n, _ := r.ReadAt(head, 0)
	return keys.DetectContentType(name, head[:n])
}

// call posts req to the endpoint and decodes the data of the response envelope.
func call[T any](ctx context.Context, u *Uploader, req storagetypes.ClientUploadRequest) (T, error) {
	var zero T

	body, err := json.Marshal(req)
	if err != nil {
		return zero, fmt.Errorf("encoding %s request: %w", req.Action, err)
	}

	resp, err := u.do(ctx, http.MethodPost, u.endpoint, bytes.NewReader(body), int64(len(body)), "application/json")
	if err != nil {
		return zero, err
	}
	defer resp.Body.Close()

	var envelope storagetypes.Envelope[T]
	decodeErr := json.NewDecoder(resp.Body).Decode(&envelope)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := envelope.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return zero, fmt.Errorf("%w: %s: %s", endpointError(resp.StatusCode), req.Action, msg)
	}
	if decodeErr != nil {
		return zero, fmt.Errorf("%w: decoding %s response: %w", storageerrors.ErrUploadSession, req.Action, decodeErr)
	}
	return envelope.Data, nil
}

// endpointError maps an endpoint status onto a sentinel error.
func endpointError(status int) error {
	switch status {
	case http.StatusBadRequest:
		return storageerrors.ErrInvalidInput
	case http.StatusConflict:
		return storageerrors.ErrObjectExists
	case http.StatusUnprocessableEntity:
		return storageerrors.ErrUploadSession
	default:
		return fmt.Errorf("%w: status %d", storageerrors.ErrTransport, status)
	}
}

// do sends one request, waiting for the rate limiter first.
func (u *Uploader) do(
	ctx context.Context,
	method, url string,
	body io.Reader,
	length int64,
	contentType string,
) (*http.Response, error) {
	if u.limiter != nil {
		if err := u.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", storageerrors.ErrTransport, err)
	}
	req.ContentLength = length
	if length == 0 {
		req.Body = http.NoBody
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := u.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", storageerrors.ErrTransport, err)
	}
	return resp, nil
}
