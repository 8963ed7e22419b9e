// Package validation provides centralized input validation logic.
// This includes bucket name, object key and region checks.
//
// Inputs are validated before any request is sent so that malformed
// names fail fast with errors.ErrInvalidInput style sentinels.
package validation
