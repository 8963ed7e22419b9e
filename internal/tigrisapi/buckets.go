package tigrisapi

import (
	"context"
	"fmt"
	"net/http"

	storageerrors "github.com/input-output-hk/catalyst-forge-libs/storage/errors"
)

// snapshotBucketType marks a bucket created with snapshots enabled.
const snapshotBucketType = 1

// ForkParent is one ancestor of a forked bucket. Timestamps are passed
// through as the service sent them.
type ForkParent struct {
	BucketName        string `json:"BucketName"`
	ForkCreatedAt     string `json:"ForkCreatedAt"`
	Snapshot          string `json:"Snapshot"`
	SnapshotCreatedAt string `json:"SnapshotCreatedAt"`
}

// ForkInfo is the fork tree position of a bucket.
type ForkInfo struct {
	HasChildren bool         `json:"HasChildren"`
	Parents     []ForkParent `json:"Parents"`
}

// ACLSettings controls whether objects may carry their own ACL.
type ACLSettings struct {
	AllowObjectACL bool `json:"allow_object_acl"`
}

// BucketMetadata is the body of GET /{bucket}?metadata.
type BucketMetadata struct {
	Name         string       `json:"name"`
	StorageClass string       `json:"storage_class"`
	Type         int          `json:"type,omitempty"`
	ForkInfo     *ForkInfo    `json:"ForkInfo,omitempty"`
	ACLSettings  *ACLSettings `json:"acl_settings,omitempty"`

	EstimatedUniqueRows *int64 `json:"estimated_unique_rows,omitempty"`
	EstimatedSize       *int64 `json:"estimated_size,omitempty"`
	EstimatedRows       *int64 `json:"estimated_rows,omitempty"`
}

// SnapshotEnabled reports whether the bucket keeps snapshots.
func (m *BucketMetadata) SnapshotEnabled() bool {
	return m.Type == snapshotBucketType
}

// Website binds a custom domain to a bucket.
type Website struct {
	DomainName string `json:"domain_name"`
}

// Protection guards a bucket against deletion.
type Protection struct {
	Protected bool `json:"protected"`
}

// BucketUpdate is the PATCH body for bucket settings. Nil and empty fields
// are omitted so the service leaves them unchanged.
type BucketUpdate struct {
	ACLSettings   *ACLSettings `json:"acl_settings,omitempty"`
	ObjectRegions string       `json:"object_regions,omitempty"`
	CacheControl  string       `json:"cache_control,omitempty"`
	Website       *Website     `json:"website,omitempty"`
	Protection    *Protection  `json:"protection,omitempty"`
}

type updateStatus struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// BucketMetadata fetches the settings, fork info and size estimates of bucket.
func (c *Client) BucketMetadata(ctx context.Context, bucket string) (*BucketMetadata, error) {
	var out BucketMetadata
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/" + bucket,
		query:  "metadata&with-size=true",
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateBucket applies settings to bucket. Settings that travel as request
// headers, such as the bucket ACL, go in header.
func (c *Client) UpdateBucket(ctx context.Context, bucket string, header http.Header, body BucketUpdate) error {
	var status updateStatus
	err := c.do(ctx, request{
		method: http.MethodPatch,
		path:   "/" + bucket,
		header: header,
		body:   body,
	}, &status)
	if err != nil {
		return err
	}
	if status.Status == "error" {
		msg := status.Message
		if msg == "" {
			msg = "failed to update bucket"
		}
		return fmt.Errorf("%w: %s", storageerrors.ErrInvalidInput, msg)
	}
	return nil
}
