package filestore

import "time"

// BucketInfo describes a storage bucket / container.
type BucketInfo struct {
	// Name is the bucket name.
	Name string `json:"name"`

	// CreatedAt is when the bucket was created.
	// May be zero if the backend does not expose creation time.
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// ListRequest selects one page of a listing.
type ListRequest struct {
	// Prefix is the folder to list. "" and "/" both mean the bucket root.
	Prefix string

	// PageLimit caps the number of keys requested from the provider.
	// Zero selects Options.PageLimit.
	PageLimit int

	// Token resumes a listing from a previous View.NextToken.
	Token string
}

// UploadResult describes a stored object.
type UploadResult struct {
	Path        string `json:"path"`
	Size        int64  `json:"size"`
	ContentType string `json:"contentType"`

	// ETag is the provider's entity tag, empty when none was returned.
	ETag string `json:"etag,omitempty"`
}

// ConnectionResult is the outcome of Store.TestConnection.
type ConnectionResult struct {
	Success  bool   `json:"success"`
	Provider string `json:"provider"`
	Message  string `json:"message"`

	// BucketCount is set when the probe listed buckets.
	BucketCount int `json:"bucketCount,omitempty"`
}
