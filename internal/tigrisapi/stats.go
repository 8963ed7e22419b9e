package tigrisapi

import (
	"context"
	"net/http"
)

const statsQuery = "IncludeVisibility=true&IncludeOwnerInfo=true&IncludeRegionsInfo=true" +
	"&IncludeTypeInfo=true&IncludeForkInfo=true&IncludeStats=true"

// Totals are the account-wide counters.
type Totals struct {
	ActiveBuckets      int64 `json:"ActiveBuckets"`
	TotalObjects       int64 `json:"TotalObjects"`
	TotalStorageBytes  int64 `json:"TotalStorageBytes"`
	TotalUniqueObjects int64 `json:"TotalUniqueObjects"`
}

// Visibility says whether a bucket is public.
type Visibility struct {
	IsPublic bool `json:"IsPublic"`
}

// StatsBucket is one bucket in the stats listing. Regions is comma separated
// and empty for global buckets.
type StatsBucket struct {
	Name         string     `json:"Name"`
	CreationDate string     `json:"CreationDate"`
	ForkInfo     *ForkInfo  `json:"ForkInfo,omitempty"`
	Regions      string     `json:"Regions,omitempty"`
	Type         string     `json:"Type"`
	Visibility   Visibility `json:"Visibility"`
}

// Stats is the body of the account listing with statistics included.
type Stats struct {
	Stats   Totals `json:"Stats"`
	Buckets struct {
		Bucket []StatsBucket `json:"Bucket"`
	} `json:"Buckets"`
}

// Stats fetches usage totals and every bucket of the account.
func (c *Client) Stats(ctx context.Context) (*Stats, error) {
	var out Stats
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/",
		query:  statsQuery,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
