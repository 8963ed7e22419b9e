// Package storagetypes provides shared type definitions for the storage module.
package storagetypes

import (
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/go-git/go-billy/v5"

	"github.com/input-output-hk/catalyst-forge-libs/storage/internal/clientcache"
)

// Well-known endpoints.
const (
	// GlobalEndpoint is the globally available storage endpoint.
	GlobalEndpoint = "https://t3.storage.dev"

	// FlyEndpoint is the endpoint optimized for workloads running on fly.io.
	FlyEndpoint = "https://fly.storage.tigris.dev"
)

// Request headers understood by the storage service.
const (
	HeaderSnapshotVersion    = "X-Tigris-Snapshot-Version"
	HeaderNamespace          = "X-Tigris-Namespace"
	HeaderStorageClass       = "X-Tigris-Storage-Class"
	HeaderRegions            = "X-Tigris-Regions"
	HeaderSnapshotEnabled    = "X-Tigris-Enable-Snapshot"
	HeaderForkSourceBucket   = "X-Tigris-Fork-Source-Bucket"
	HeaderForkSourceSnapshot = "X-Tigris-Fork-Source-Bucket-Snapshot"
	HeaderForceDelete        = "Tigris-Force-Delete"
	HeaderRename             = "X-Tigris-Rename"
	HeaderSnapshot           = "X-Tigris-Snapshot"
	HeaderACL                = "X-Amz-Acl"
	HeaderACLListObjects     = "X-Tigris-ACL-List-Objects"
)

const (
	// DefaultPartSize is the part size used by multipart uploads (5 MiB).
	DefaultPartSize int64 = 5 * 1024 * 1024

	// DefaultConcurrency is the default number of parts or files uploaded at once.
	DefaultConcurrency = 4

	// DefaultPresignExpiry is how long presigned URLs stay valid.
	DefaultPresignExpiry = time.Hour

	// DefaultContentType is used when no content type can be determined.
	DefaultContentType = "application/octet-stream"
)

// Access controls whether an object or bucket is publicly readable.
type Access string

const (
	AccessPrivate Access = "private"
	AccessPublic  Access = "public"
)

// ContentDisposition selects how a browser should present an object.
type ContentDisposition string

const (
	DispositionInline     ContentDisposition = "inline"
	DispositionAttachment ContentDisposition = "attachment"
)

// StorageClass represents the storage tier for objects and bucket defaults.
type StorageClass string

// Predefined storage classes
const (
	// StorageClassStandard is the default storage tier
	StorageClassStandard StorageClass = "STANDARD"

	// StorageClassStandardIA is for infrequently accessed data
	StorageClassStandardIA StorageClass = "STANDARD_IA"

	// StorageClassGlacier is archival storage
	StorageClassGlacier StorageClass = "GLACIER"

	// StorageClassGlacierIR is archival storage with instant retrieval
	StorageClassGlacierIR StorageClass = "GLACIER_IR"
)

// UploadProgress reports cumulative progress of a single upload.
type UploadProgress struct {
	Loaded     int64 `json:"loaded"`
	Total      int64 `json:"total"`
	Percentage int   `json:"percentage"`
}

// ProgressFunc receives progress updates. Loaded never decreases between calls.
type ProgressFunc func(UploadProgress)

// NewProgress builds an UploadProgress for loaded out of total bytes.
// Percentage is rounded and clamped to [0, 100]; an empty payload is always 100.
func NewProgress(loaded, total int64) UploadProgress {
	p := UploadProgress{Loaded: loaded, Total: total}
	if total <= 0 {
		p.Percentage = 100
		return p
	}

	pct := math.Round(float64(loaded) / float64(total) * 100)
	switch {
	case pct < 0:
		pct = 0
	case pct > 100:
		pct = 100
	}
	p.Percentage = int(pct)
	return p
}

// ClientConfig holds configuration for the storage client.
type ClientConfig struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	OrganizationID  string
	ForcePathStyle  bool
	MaxRetries      int
	Timeout         time.Duration
	PartSize        int64
	Concurrency     int
	CustomAWSConfig *aws.Config
	HTTPClient      *http.Client
	Logger          *slog.Logger
	Filesystem      billy.Filesystem
	ClientCache     *clientcache.Cache
	EnvFile         string
}

// Option is a functional option for configuring the storage client.
type Option func(*ClientConfig)

// PutOptions configures a single Put.
type PutOptions struct {
	Access             Access
	AddRandomSuffix    bool
	AllowOverwrite     *bool
	ContentType        string
	ContentDisposition ContentDisposition
	Multipart          bool
	OnProgress         ProgressFunc
}

// Overwrite reports whether an existing object may be replaced. Defaults to true.
func (o *PutOptions) Overwrite() bool {
	if o == nil || o.AllowOverwrite == nil {
		return true
	}
	return *o.AllowOverwrite
}

// PutResult describes a stored object.
type PutResult struct {
	ContentDisposition string    `json:"contentDisposition,omitempty"`
	ContentType        string    `json:"contentType,omitempty"`
	Modified           time.Time `json:"modified"`
	Path               string    `json:"path"`
	Size               int64     `json:"size"`
	URL                string    `json:"url"`
}

// GetOptions configures Get, GetString and GetStream.
type GetOptions struct {
	ContentDisposition ContentDisposition
	ContentType        string
	SnapshotVersion    string
}

// HeadOptions configures Head.
type HeadOptions struct {
	SnapshotVersion string
}

// HeadResult is the metadata of an object.
type HeadResult struct {
	ContentDisposition string    `json:"contentDisposition"`
	ContentType        string    `json:"contentType"`
	Modified           time.Time `json:"modified"`
	Path               string    `json:"path"`
	Size               int64     `json:"size"`
	URL                string    `json:"url"`
}

// ListOptions configures List.
type ListOptions struct {
	Limit           int32
	PaginationToken string
	Prefix          string
	SnapshotVersion string
}

// ListItem is one object in a listing.
type ListItem struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
}

// ListResult is a page of objects.
type ListResult struct {
	Items           []ListItem `json:"items"`
	PaginationToken string     `json:"paginationToken,omitempty"`
	HasMore         bool       `json:"hasMore"`
}

// Stream is an object body returned by GetStream. Callers must close Body.
type Stream struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64
}

// PresignOperation selects the HTTP operation a presigned URL allows.
type PresignOperation string

const (
	PresignGet PresignOperation = "get"
	PresignPut PresignOperation = "put"
)

// PresignOptions configures PresignURL.
type PresignOptions struct {
	Operation   PresignOperation
	ContentType string
	Expires     time.Duration
}

// PresignResult is a presigned URL.
type PresignResult struct {
	URL       string           `json:"url"`
	Operation PresignOperation `json:"operation"`
	ExpiresIn int              `json:"expiresIn"`
}

// CreateBucketOptions configures CreateBucket.
type CreateBucketOptions struct {
	Access               Access
	DefaultTier          StorageClass
	Regions              []string
	EnableSnapshot       bool
	SourceBucketName     string
	SourceBucketSnapshot string
}

// CreateBucketResult describes a newly created bucket.
type CreateBucketResult struct {
	IsSnapshotEnabled    bool   `json:"isSnapshotEnabled"`
	HasForks             bool   `json:"hasForks"`
	SourceBucketName     string `json:"sourceBucketName,omitempty"`
	SourceBucketSnapshot string `json:"sourceBucketSnapshot,omitempty"`
}

// ListBucketsOptions configures ListBuckets.
type ListBucketsOptions struct {
	Limit           int32
	PaginationToken string
}

// Bucket is one bucket in a listing.
type Bucket struct {
	Name         string    `json:"name"`
	CreationDate time.Time `json:"creationDate"`
}

// BucketOwner identifies the owner of listed buckets.
type BucketOwner struct {
	Name string `json:"name"`
	ID   string `json:"id"`
}

// ListBucketsResult is a page of buckets.
type ListBucketsResult struct {
	Buckets         []Bucket     `json:"buckets"`
	Owner           *BucketOwner `json:"owner,omitempty"`
	PaginationToken string       `json:"paginationToken,omitempty"`
}

// RemoveBucketOptions configures RemoveBucket.
type RemoveBucketOptions struct {
	Force bool
}

// UpdateObjectOptions configures UpdateObject. At least one field must be set.
type UpdateObjectOptions struct {
	// Key renames the object. The rename happens before any access change.
	Key    string
	Access Access
}

// UpdateObjectResult names the object after the update.
type UpdateObjectResult struct {
	Path string `json:"path"`
}

// BucketForkParent is a bucket (and snapshot) a fork was created from.
type BucketForkParent struct {
	BucketName        string    `json:"bucketName"`
	ForkCreatedAt     time.Time `json:"forkCreatedAt"`
	Snapshot          string    `json:"snapshot"`
	SnapshotCreatedAt time.Time `json:"snapshotCreatedAt"`
}

// BucketForkInfo describes where a bucket sits in a fork tree.
type BucketForkInfo struct {
	HasChildren bool               `json:"hasChildren"`
	Parents     []BucketForkParent `json:"parents"`
}

// BucketSettings are the settings reported by BucketInfo.
type BucketSettings struct {
	AllowObjectACL bool         `json:"allowObjectAcl"`
	DefaultTier    StorageClass `json:"defaultTier"`
}

// BucketSizeInfo holds the service's size estimates. Fields are nil when the
// service did not report them.
type BucketSizeInfo struct {
	NumberOfObjects            *int64 `json:"numberOfObjects,omitempty"`
	Size                       *int64 `json:"size,omitempty"`
	NumberOfObjectsAllVersions *int64 `json:"numberOfObjectsAllVersions,omitempty"`
}

// BucketInfo is the metadata of one bucket.
type BucketInfo struct {
	Name              string          `json:"name"`
	IsSnapshotEnabled bool            `json:"isSnapshotEnabled"`
	ForkInfo          *BucketForkInfo `json:"forkInfo,omitempty"`
	Settings          BucketSettings  `json:"settings"`
	SizeInfo          BucketSizeInfo  `json:"sizeInfo"`
}

// UpdateBucketOptions configures UpdateBucket. Zero values and nil pointers
// leave the setting unchanged; at least one setting must be given.
type UpdateBucketOptions struct {
	Access                  Access
	AllowObjectACL          *bool
	DisableDirectoryListing *bool
	Regions                 []string
	CacheControl            string
	CustomDomain            string
	EnableDeleteProtection  *bool
}

// UpdateBucketResult confirms a settings change.
type UpdateBucketResult struct {
	Bucket  string `json:"bucket"`
	Updated bool   `json:"updated"`
}

// BucketSnapshotOptions configures CreateBucketSnapshot.
type BucketSnapshotOptions struct {
	Name string
}

// BucketSnapshot is one snapshot of a bucket. Version is what read
// operations take as their snapshot version.
type BucketSnapshot struct {
	Name         string    `json:"name,omitempty"`
	Version      string    `json:"version"`
	SnapshotName string    `json:"snapshotName"`
	CreationDate time.Time `json:"creationDate"`
}

// Stats are account-wide usage totals.
type Stats struct {
	ActiveBuckets      int64 `json:"activeBuckets"`
	TotalObjects       int64 `json:"totalObjects"`
	TotalStorageBytes  int64 `json:"totalStorageBytes"`
	TotalUniqueObjects int64 `json:"totalUniqueObjects"`
}

// BucketStats is a bucket as listed by Stats.
type BucketStats struct {
	Name         string          `json:"name"`
	CreationDate time.Time       `json:"creationDate"`
	ForkInfo     *BucketForkInfo `json:"forkInfo,omitempty"`
	Type         string          `json:"type"`
	Regions      []string        `json:"regions"`
	Visibility   Access          `json:"visibility"`
}

// StatsResult is the account summary returned by Stats.
type StatsResult struct {
	Stats   Stats         `json:"stats"`
	Buckets []BucketStats `json:"buckets"`
}

// UploadAction is the step requested from the upload endpoint.
type UploadAction string

const (
	ActionSinglepartInit    UploadAction = "singlepart-init"
	ActionMultipartInit     UploadAction = "multipart-init"
	ActionMultipartGetParts UploadAction = "multipart-parts"
	ActionMultipartComplete UploadAction = "multipart-complete"
)

// PartIDs maps part numbers to the ETags returned when each part was stored.
// On the wire it is a list of single-entry objects: [{"1":"etag"},{"2":"etag"}].
type PartIDs []map[int]string

// ClientUploadRequest is the JSON body posted to the upload endpoint.
type ClientUploadRequest struct {
	Action         UploadAction `json:"action"`
	Name           string       `json:"name"`
	Path           string       `json:"path,omitempty"`
	ContentType    string       `json:"contentType,omitempty"`
	Operation      string       `json:"operation,omitempty"`
	AllowOverwrite *bool        `json:"allowOverwrite,omitempty"`
	UploadID       string       `json:"uploadId,omitempty"`
	Parts          []int        `json:"parts,omitempty"`
	PartIDs        PartIDs      `json:"partIds,omitempty"`
}

// InitMultipartResult is returned by the multipart-init action.
type InitMultipartResult struct {
	UploadID string `json:"uploadId"`
}

// PartURL is the presigned upload target for one part.
type PartURL struct {
	Part int    `json:"part"`
	URL  string `json:"url"`
}

// CompleteMultipartResult is returned by the multipart-complete action.
type CompleteMultipartResult struct {
	Path string `json:"path"`
	URL  string `json:"url"`
}

// Envelope wraps every response of the upload endpoint.
// Exactly one of Data and Error is set.
type Envelope[T any] struct {
	Data  T      `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// UploadResponse describes an object uploaded from the client side.
type UploadResponse struct {
	ContentDisposition string    `json:"contentDisposition,omitempty"`
	ContentType        string    `json:"contentType,omitempty"`
	Modified           time.Time `json:"modified"`
	Name               string    `json:"name"`
	Size               int64     `json:"size"`
	URL                string    `json:"url"`
}
