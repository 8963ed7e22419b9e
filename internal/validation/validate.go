package validation

import (
	"fmt"
	"mime"
	"net/netip"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/input-output-hk/catalyst-forge-libs/storage/errors"
)

// Regions lists the locations a bucket may be placed in.
var Regions = []string{
	"usa", "eur", "ams", "fra", "gru", "iad", "jnb",
	"lhr", "nrt", "ord", "sin", "sjc", "syd",
}

const (
	minBucketLen = 3
	maxBucketLen = 63
	maxKeyBytes  = 1024
)

// ValidateBucketName checks that bucket is a DNS-compliant bucket name.
func ValidateBucketName(bucket string) error {
	fail := func(msg string) error {
		return errors.NewError("validateBucketName", errors.ErrInvalidBucketName).
			WithBucket(bucket).
			WithMessage(msg)
	}

	switch {
	case bucket == "":
		return fail("bucket name cannot be empty")
	case len(bucket) < minBucketLen || len(bucket) > maxBucketLen:
		return fail(fmt.Sprintf("bucket name must be between %d and %d characters long", minBucketLen, maxBucketLen))
	}

	for _, r := range bucket {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '.' || r == '-') {
			return fail("bucket name can only contain lowercase letters, numbers, dots, and hyphens")
		}
	}

	first, last := bucket[0], bucket[len(bucket)-1]
	switch {
	case first == '-' || first == '.' || last == '-' || last == '.':
		return fail("bucket name cannot start or end with a hyphen or dot")
	case strings.Contains(bucket, ".."):
		return fail("bucket name cannot contain two adjacent periods")
	case isIPv4(bucket):
		return fail("bucket name cannot be formatted as an IP address")
	}

	return nil
}

// ValidateObjectKey checks that key is usable as an object key: non-empty,
// at most 1024 bytes of valid UTF-8, free of control characters and of ".."
// path segments.
func ValidateObjectKey(key string) error {
	fail := func(msg string) error {
		return errors.NewError("validateObjectKey", errors.ErrInvalidObjectKey).
			WithKey(key).
			WithMessage(msg)
	}

	switch {
	case key == "":
		return fail("object key cannot be empty")
	case len(key) > maxKeyBytes:
		return fail(fmt.Sprintf("object key cannot exceed %d bytes", maxKeyBytes))
	case !utf8.ValidString(key):
		return fail("object key must be valid UTF-8")
	case strings.IndexFunc(key, unicode.IsControl) >= 0:
		return fail("object key cannot contain control characters")
	case slices.Contains(strings.Split(key, "/"), ".."):
		return fail("object key cannot contain path traversal sequences")
	}

	return nil
}

// ValidateRegions checks that every region is a known bucket location.
func ValidateRegions(regions []string) error {
	for _, r := range regions {
		if !slices.Contains(Regions, r) {
			return errors.NewError("validateRegions", errors.ErrInvalidInput).
				WithMessage(fmt.Sprintf("invalid region %q, possible values are: %s", r, strings.Join(Regions, ", ")))
		}
	}
	return nil
}

// ValidateContentType checks that contentType parses as a media type.
// An empty content type is allowed.
func ValidateContentType(contentType string) error {
	if contentType == "" {
		return nil
	}
	if _, _, err := mime.ParseMediaType(contentType); err != nil || !strings.Contains(contentType, "/") {
		return errors.NewError("validateContentType", errors.ErrInvalidInput).
			WithMessage("content type must be a valid MIME type")
	}
	return nil
}

func isIPv4(s string) bool {
	addr, err := netip.ParseAddr(s)
	return err == nil && addr.Is4()
}
