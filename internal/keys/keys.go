// Package keys derives object keys and header values from object paths.
package keys

import (
	"fmt"
	"mime"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/input-output-hk/catalyst-forge-libs/storage/storagetypes"
)

// suffixRandomLen is the number of random characters in a key suffix.
const suffixRandomLen = 6

// now is replaced in tests.
var now = time.Now

// AddRandomSuffix inserts "-<suffix>" before the extension of p, if any.
// The suffix is the base36 millisecond timestamp followed by six random
// characters taken from a fresh UUID.
//
//	AddRandomSuffix("photos/cat.jpg") // photos/cat-m1x2y3z4a1b2c3.jpg
func AddRandomSuffix(p string) string {
	return insertSuffix(p, RandomSuffix())
}

// RandomSuffix returns a collision-resistant suffix for object keys.
func RandomSuffix() string {
	ts := strconv.FormatInt(now().UnixMilli(), 36)
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return ts + id[:suffixRandomLen]
}

func insertSuffix(p, suffix string) string {
	dir, file := path.Split(p)

	// A leading dot marks a hidden file, not an extension.
	i := strings.LastIndex(file, ".")
	if i <= 0 {
		return dir + file + "-" + suffix
	}
	return dir + file[:i] + "-" + suffix + file[i:]
}

// ContentDisposition renders the Content-Disposition header value for p.
// An empty kind yields an empty string.
func ContentDisposition(p string, kind storagetypes.ContentDisposition) string {
	switch kind {
	case storagetypes.DispositionAttachment:
		return fmt.Sprintf("attachment; filename=%q", p)
	case storagetypes.DispositionInline:
		return "inline"
	default:
		return ""
	}
}

// SniffLen is how many leading bytes DetectContentType needs to sniff content.
const SniffLen = 3072

// extensionTypes answers for common web types before the host MIME tables
// are consulted, so these never differ between machines.
var extensionTypes = map[string]string{
	".avif":  "image/avif",
	".css":   "text/css; charset=utf-8",
	".csv":   "text/csv; charset=utf-8",
	".gif":   "image/gif",
	".gz":    "application/gzip",
	".htm":   "text/html; charset=utf-8",
	".html":  "text/html; charset=utf-8",
	".ico":   "image/vnd.microsoft.icon",
	".jpeg":  "image/jpeg",
	".jpg":   "image/jpeg",
	".js":    "text/javascript; charset=utf-8",
	".json":  "application/json",
	".mjs":   "text/javascript; charset=utf-8",
	".mov":   "video/quicktime",
	".mp3":   "audio/mpeg",
	".mp4":   "video/mp4",
	".pdf":   "application/pdf",
	".png":   "image/png",
	".svg":   "image/svg+xml",
	".tar":   "application/x-tar",
	".txt":   "text/plain; charset=utf-8",
	".wasm":  "application/wasm",
	".webm":  "video/webm",
	".webp":  "image/webp",
	".woff2": "font/woff2",
	".xml":   "text/xml; charset=utf-8",
	".zip":   "application/zip",
}

// DetectContentType picks a content type for p. A known extension wins:
// common web types come from a fixed table, anything else from
// mime.TypeByExtension, which reads the host's MIME tables and may vary
// between machines. Without a known extension head, the first bytes of the
// payload, is sniffed.
func DetectContentType(p string, head []byte) string {
	if ext := strings.ToLower(path.Ext(p)); ext != "" {
		if byExt, ok := extensionTypes[ext]; ok {
			return byExt
		}
		if byExt := mime.TypeByExtension(ext); byExt != "" {
			return byExt
		}
	}
	if len(head) > 0 {
		return mimetype.Detect(head).String()
	}
	return storagetypes.DefaultContentType
}
