// Package clientcache keeps S3 clients for reuse across storage clients that
// share an endpoint and credentials.
//
// A Cache is an ordinary value owned by the caller. Nothing is cached unless
// a Cache is passed to the storage client.
package clientcache
