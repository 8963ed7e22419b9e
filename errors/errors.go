// Package errors defines the storage error type, the sentinels callers match
// with errors.Is, and the mapping from S3 error codes onto them.
package errors

import (
	"errors"
	"fmt"

	"github.com/aws/smithy-go"
)

// Error records which storage operation failed and on what. Bucket and Key
// are empty when the operation has none.
type Error struct {
	Op     string // e.g. "put", "completeMultipartUpload"
	Bucket string
	Key    string
	Err    error
}

func (e *Error) Error() string {
	if e.Bucket != "" && e.Key != "" {
		return fmt.Sprintf("storage.%s %s/%s: %v", e.Op, e.Bucket, e.Key, e.Err)
	}
	if e.Bucket != "" {
		return fmt.Sprintf("storage.%s bucket %s: %v", e.Op, e.Bucket, e.Err)
	}
	if e.Key != "" {
		return fmt.Sprintf("storage.%s object %s: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("storage.%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WithBucket sets the bucket the operation ran against.
func (e *Error) WithBucket(bucket string) *Error {
	e.Bucket = bucket
	return e
}

// WithKey sets the object key.
func (e *Error) WithKey(key string) *Error {
	e.Key = key
	return e
}

// WithMessage prefixes the wrapped error with message.
func (e *Error) WithMessage(message string) *Error {
	e.Err = fmt.Errorf("%s: %w", message, e.Err)
	return e
}

// NewError wraps err for op. S3 API errors are classified first, so the
// sentinels below match them.
func NewError(op string, err error) *Error {
	return &Error{
		Op:  op,
		Err: Classify(err),
	}
}

// NewObjectError is NewError for an operation on bucket/key.
func NewObjectError(op, bucket, key string, err error) *Error {
	return NewError(op, err).WithBucket(bucket).WithKey(key)
}

var (
	ErrObjectNotFound      = errors.New("storage: object not found")
	ErrBucketNotFound      = errors.New("storage: bucket not found")
	ErrAccessDenied        = errors.New("storage: access denied")
	ErrInvalidInput        = errors.New("storage: invalid input")
	ErrInvalidBucketName   = errors.New("storage: invalid bucket name")
	ErrInvalidObjectKey    = errors.New("storage: invalid object key")
	ErrMissingConfig       = errors.New("storage: missing configuration")
	ErrBucketAlreadyExists = errors.New("storage: bucket already exists")
	ErrBucketNotEmpty      = errors.New("storage: bucket not empty")

	// ErrObjectExists is returned when overwriting was disallowed.
	ErrObjectExists = errors.New("storage: file already exists")

	// ErrNoSuchUpload means the multipart upload id is unknown, expired or
	// already completed.
	ErrNoSuchUpload = errors.New("storage: no such upload")

	// ErrUploadSession means the store or the upload endpoint rejected a step
	// of an upload session.
	ErrUploadSession = errors.New("storage: upload session error")

	// ErrTransport covers network failures and unexpected HTTP statuses.
	ErrTransport = errors.New("storage: transport error")
)

// apiCodes maps S3 API error codes onto sentinel errors.
var apiCodes = map[string]error{
	"NoSuchKey":               ErrObjectNotFound,
	"NotFound":                ErrObjectNotFound,
	"NoSuchBucket":            ErrBucketNotFound,
	"AccessDenied":            ErrAccessDenied,
	"Forbidden":               ErrAccessDenied,
	"NoSuchUpload":            ErrNoSuchUpload,
	"InvalidPart":             ErrUploadSession,
	"InvalidPartOrder":        ErrUploadSession,
	"EntityTooSmall":          ErrUploadSession,
	"BucketAlreadyExists":     ErrBucketAlreadyExists,
	"BucketAlreadyOwnedByYou": ErrBucketAlreadyExists,
	"BucketNotEmpty":          ErrBucketNotEmpty,
	"InvalidBucketName":       ErrInvalidBucketName,
}

// Classify attaches the matching sentinel error to AWS API errors.
// The original error stays in the chain, so errors.As on smithy.APIError still works.
// Errors that are not API errors, or carry an unknown code, are returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return err
	}

	return ClassifyCode(apiErr.ErrorCode(), err)
}

// ClassifyCode attaches the sentinel error matching an S3 error code to err.
// It serves clients other than the AWS SDK that expose the code directly.
func ClassifyCode(code string, err error) error {
	if err == nil {
		return nil
	}

	sentinel, ok := apiCodes[code]
	if !ok || errors.Is(err, sentinel) {
		return err
	}

	return fmt.Errorf("%w: %w", sentinel, err)
}

// CodeOf returns the ErrorCode describing err.
func CodeOf(err error) ErrorCode {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrObjectNotFound), errors.Is(err, ErrBucketNotFound):
		return CodeNotFound
	case errors.Is(err, ErrObjectExists), errors.Is(err, ErrBucketAlreadyExists):
		return CodeAlreadyExists
	case errors.Is(err, ErrBucketNotEmpty):
		return CodeConflict
	case errors.Is(err, ErrAccessDenied):
		return CodeForbidden
	case errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrInvalidBucketName),
		errors.Is(err, ErrInvalidObjectKey):
		return CodeInvalidInput
	case errors.Is(err, ErrMissingConfig):
		return CodeInvalidConfig
	case errors.Is(err, ErrNoSuchUpload), errors.Is(err, ErrUploadSession):
		return CodeSession
	case errors.Is(err, ErrTransport):
		return CodeNetwork
	default:
		return CodeUnknown
	}
}

// MissingConfig reports a missing configuration value.
// When envVar is set the message tells the caller which variable to export.
func MissingConfig(field, envVar string) error {
	if envVar != "" {
		return fmt.Errorf("%w: config incomplete: %s is missing. Set %s in environment or pass it as an option",
			ErrMissingConfig, field, envVar)
	}
	return fmt.Errorf("%w: config incomplete: %s is missing. Pass it as an option", ErrMissingConfig, field)
}

// IsObjectNotFound reports whether err means the object does not exist.
func IsObjectNotFound(err error) bool {
	return errors.Is(err, ErrObjectNotFound)
}
