// Package filestore defines the uniform operation set every storage backend
// implements.
//
// Each provider package (s3, azure, gcs, minio, sftp) builds a Store from a
// resolved credential. Callers depend only on this package, and pick the
// implementation through filestore/providers:
//
//	cred, err := credential.Resolve(raw, cfg)
//	if err != nil { ... }
//	store, err := providers.New(cred, filestore.DefaultOptions(), env)
//	if err != nil { ... }
//
//	view, err := store.ListContents(ctx, filestore.ListRequest{Prefix: "reports/"})
//
// A Store holds only its immutable credential and options. Every method is
// safe for concurrent use and performs its own I/O from scratch.
package filestore

import (
	"context"
	"time"

	"github.com/koustreak/cloudbox/internal/credential"
	"github.com/koustreak/cloudbox/internal/listing"
)

// Store is the single interface all storage providers implement.
type Store interface {
	// Provider reports which backend this store talks to.
	Provider() credential.Provider

	// TestConnection probes the backend. It never returns an error; failures
	// are reported in the result.
	TestConnection(ctx context.Context) *ConnectionResult

	// ListContents returns one page of the configured bucket under
	// req.Prefix, normalized into folders and files.
	ListContents(ctx context.Context, req ListRequest) (*listing.View, error)

	// UploadFile writes data to remotePath inside the configured bucket.
	UploadFile(ctx context.Context, data []byte, remotePath string) (*UploadResult, error)

	// DownloadFile reads the whole object at remotePath.
	DownloadFile(ctx context.Context, remotePath string) ([]byte, error)

	// GetSignedURL returns a time-limited URL granting read access to
	// remotePath without credentials. ttl <= 0 selects the configured TTL.
	GetSignedURL(ctx context.Context, remotePath string, ttl time.Duration) (string, error)

	// ListBuckets returns all buckets or containers the credential can see.
	ListBuckets(ctx context.Context) ([]BucketInfo, error)

	// CreateBucket creates a bucket or container named name.
	CreateBucket(ctx context.Context, name string) error
}
