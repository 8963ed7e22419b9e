// Package server implements the endpoint remote clients call to upload
// objects without holding storage credentials.
//
// Clients POST a JSON ClientUploadRequest naming an action; the handler asks a
// Backend for presigned URLs and replies with {"data": ...} on success or
// {"error": "..."} on failure. The payload itself goes straight from the
// client to the storage service.
package server
