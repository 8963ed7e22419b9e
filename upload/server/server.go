package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	storageerrors "github.com/input-output-hk/catalyst-forge-libs/storage/errors"
	"github.com/input-output-hk/catalyst-forge-libs/storage/storagetypes"
)

// DefaultMaxBodySize bounds the size of a request body.
const DefaultMaxBodySize int64 = 1 << 20

// ErrInvalidRequest indicates a request the handler cannot act on.
var ErrInvalidRequest = fmt.Errorf("%w: invalid upload request", storageerrors.ErrInvalidInput)

// requestError carries the message returned to the client for a rejected
// request. It matches ErrInvalidRequest.
type requestError struct {
	msg string
}

func (e *requestError) Error() string { return e.msg }

func (e *requestError) Unwrap() error { return ErrInvalidRequest }

// Backend issues the URLs and manages the multipart sessions behind the
// upload actions. *storage.Client implements it.
type Backend interface {
	// PresignUpload returns a presigned PUT URL for key.
	PresignUpload(ctx context.Context, key, contentType string, allowOverwrite bool) (*storagetypes.PresignResult, error)

	// InitMultipartUpload opens a multipart session for key.
	InitMultipartUpload(ctx context.Context, key, contentType string) (*storagetypes.InitMultipartResult, error)

	// GetPartsPresignedURLs returns a presigned URL for each part, in the order requested.
	GetPartsPresignedURLs(ctx context.Context, key, uploadID string, parts []int) ([]storagetypes.PartURL, error)

	// CompleteMultipartUpload assembles the parts of a session into the final object.
	CompleteMultipartUpload(
		ctx context.Context,
		key, uploadID string,
		partIDs storagetypes.PartIDs,
	) (*storagetypes.CompleteMultipartResult, error)
}

// Handler serves upload requests. It is safe for concurrent use.
type Handler struct {
	backend     Backend
	logger      *slog.Logger
	maxBodySize int64
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the logger. By default nothing is logged.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithMaxBodySize bounds request bodies to n bytes.
func WithMaxBodySize(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxBodySize = n
		}
	}
}

// New creates a Handler serving requests with backend.
func New(backend Backend, opts ...Option) *Handler {
	h := &Handler{
		backend:     backend,
		logger:      slog.New(slog.DiscardHandler),
		maxBodySize: DefaultMaxBodySize,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle performs the action named by req and returns the value to send back
// as the response data.
//
// Results by action:
//   - singlepart-init: *storagetypes.PresignResult
//   - multipart-init: *storagetypes.InitMultipartResult
//   - multipart-parts: []storagetypes.PartURL
//   - multipart-complete: *storagetypes.CompleteMultipartResult
//
// Requests missing a field their action requires fail with ErrInvalidRequest
// before the backend is called.
func (h *Handler) Handle(ctx context.Context, req storagetypes.ClientUploadRequest) (any, error) {
	name := req.Name
	if name == "" {
		name = req.Path
	}

	switch req.Action {
	case storagetypes.ActionSinglepartInit:
		allowOverwrite := req.AllowOverwrite == nil || *req.AllowOverwrite
		return h.backend.PresignUpload(ctx, name, req.ContentType, allowOverwrite)

	case storagetypes.ActionMultipartInit:
		return h.backend.InitMultipartUpload(ctx, name, req.ContentType)

	case storagetypes.ActionMultipartGetParts:
		if req.UploadID == "" || len(req.Parts) == 0 {
			return nil, &requestError{msg: "uploadId and parts are required for multipart-parts"}
		}
		return h.backend.GetPartsPresignedURLs(ctx, name, req.UploadID, req.Parts)

	case storagetypes.ActionMultipartComplete:
		if req.UploadID == "" || len(req.PartIDs) == 0 {
			return nil, &requestError{msg: "uploadId and partIds are required for multipart-complete"}
		}
		return h.backend.CompleteMultipartUpload(ctx, name, req.UploadID, req.PartIDs)

	default:
		return nil, &requestError{msg: fmt.Sprintf("Invalid action: %s", req.Action)}
	}
}

// ServeHTTP decodes a JSON ClientUploadRequest from a POST body and writes
// the result of Handle wrapped in an Envelope.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		h.writeError(ctx, w, http.StatusMethodNotAllowed, fmt.Sprintf("method %s not allowed", r.Method))
		return
	}

	var req storagetypes.ClientUploadRequest
	body := http.MaxBytesReader(w, r.Body, h.maxBodySize)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(ctx, w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		h.writeError(ctx, w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	data, err := h.Handle(ctx, req)
	if err != nil {
		status := statusOf(err)
		if status >= http.StatusInternalServerError {
			h.logger.ErrorContext(ctx, "upload action failed",
				"action", req.Action, "name", req.Name, "upload_id", req.UploadID, "error", err)
		} else {
			h.logger.DebugContext(ctx, "upload request rejected", "action", req.Action, "error", err)
		}
		h.writeError(ctx, w, status, err.Error())
		return
	}

	h.logger.DebugContext(ctx, "upload action served", "action", req.Action, "name", req.Name)
	h.writeJSON(ctx, w, http.StatusOK, storagetypes.Envelope[any]{Data: data})
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, status int, msg string) {
	h.writeJSON(ctx, w, status, storagetypes.Envelope[any]{Error: msg})
}

func (h *Handler) writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.WarnContext(ctx, "writing response failed", "status", status, "error", err)
	}
}

// statusOf maps a Handle error to an HTTP status.
func statusOf(err error) int {
	switch storageerrors.CodeOf(err) {
	case storageerrors.CodeInvalidInput:
		return http.StatusBadRequest
	case storageerrors.CodeAlreadyExists:
		return http.StatusConflict
	case storageerrors.CodeNotFound:
		return http.StatusNotFound
	case storageerrors.CodeSession:
		return http.StatusUnprocessableEntity
	case storageerrors.CodeForbidden, storageerrors.CodeInvalidConfig:
		return http.StatusInternalServerError
	default:
		return http.StatusBadGateway
	}
}
