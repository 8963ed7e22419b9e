// Package parts splits a payload of known size into multipart upload parts
// and aggregates per-part progress.
package parts
