package errors

// ErrorCode is the category of a storage failure. The upload endpoint turns
// it into an HTTP status and callers can branch on it without matching
// individual sentinels.
type ErrorCode string

const (
	CodeNotFound      ErrorCode = "NOT_FOUND"      // object, bucket
	CodeAlreadyExists ErrorCode = "ALREADY_EXISTS" // object with overwrite disabled, bucket
	CodeConflict      ErrorCode = "CONFLICT"       // bucket not empty
	CodeForbidden     ErrorCode = "FORBIDDEN"
	CodeInvalidInput  ErrorCode = "INVALID_INPUT"
	CodeInvalidConfig ErrorCode = "INVALID_CONFIGURATION"
	CodeNetwork       ErrorCode = "NETWORK_ERROR"        // transport failure or unexpected status
	CodeSession       ErrorCode = "UPLOAD_SESSION_ERROR" // multipart session rejected or unknown
	CodeUnknown       ErrorCode = "UNKNOWN"
)
