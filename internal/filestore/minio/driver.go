// Package minio provides a MinIO implementation of filestore.Store on top of
// the minio-go SDK.
//
// Usage:
//
//	cred, err := credential.Resolve(raw, cfg)
//	if err != nil { ... }
//	store, err := minio.New(cred, filestore.DefaultOptions(), env)
//	if err != nil { ... }
//
//	buckets, err := store.ListBuckets(ctx)
package minio

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/koustreak/cloudbox/internal/credential"
	"github.com/koustreak/cloudbox/internal/errs"
	"github.com/koustreak/cloudbox/internal/filestore"
	"github.com/koustreak/cloudbox/internal/listing"
	"github.com/koustreak/cloudbox/internal/logger"
	"github.com/koustreak/cloudbox/internal/signer"
)

const provider = string(credential.ProviderMinIO)

// Driver is a MinIO implementation of filestore.Store.
// It is safe for concurrent use by multiple goroutines.
type Driver struct {
	client *miniogo.Client
	bucket string
	region string
	opts   filestore.Options
	log    *logger.Logger
}

var _ filestore.Store = (*Driver)(nil)

// New builds a client for the credential's endpoint. No request is sent;
// use TestConnection to verify reachability.
func New(cred *credential.Credential, opts filestore.Options, env filestore.Env) (*Driver, error) {
	if cred == nil || cred.Provider != credential.ProviderMinIO {
		return nil, errs.Invalid(provider, "credential is not a minio credential")
	}
	env = env.Defaults()

	raw := cred.Endpoint
	if opts.Endpoint != "" {
		raw = opts.Endpoint
	}
	host, secure, err := splitEndpoint(raw, cred.Insecure)
	if err != nil {
		return nil, err
	}
	region := cred.Region
	if opts.Region != "" {
		region = opts.Region
	}
	if region == "" {
		region = signer.DefaultRegion
	}

	log := env.Log.WithProvider(provider)
	client, err := miniogo.New(host, &miniogo.Options{
		Creds:     credentials.NewStaticV4(cred.AccessKey, cred.SecretKey, cred.SessionToken),
		Secure:    secure,
		Region:    region,
		Transport: observe(log),
	})
	if err != nil {
		return nil, errs.Invalid(provider, "failed to create minio client: "+err.Error())
	}

	return &Driver{client: client, bucket: cred.Bucket, region: region, opts: opts, log: log}, nil
}

// splitEndpoint accepts "host:port" or a full URL.
func splitEndpoint(raw string, insecure bool) (host string, secure bool, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false, errs.Missing(provider, "endpoint")
	}
	if !strings.Contains(raw, "://") {
		return strings.TrimRight(raw, "/"), !insecure, nil
	}
	u, perr := url.Parse(raw)
	if perr != nil || u.Host == "" {
		return "", false, errs.Invalid(provider, "endpoint is not a valid URL")
	}
	return u.Host, u.Scheme == "https", nil
}

// --- filestore.Store implementation ---

func (d *Driver) Provider() credential.Provider { return credential.ProviderMinIO }

// TestConnection checks the configured bucket exists, or lists buckets when
// none is configured.
func (d *Driver) TestConnection(ctx context.Context) *filestore.ConnectionResult {
	return filestore.Probe(ctx, provider, d.bucket,
		func(ctx context.Context) error {
			ok, err := d.client.BucketExists(ctx, d.bucket)
			if err != nil {
				return mapError(err, "TestConnection")
			}
			if !ok {
				return &errs.ProviderError{
					Kind:     errs.KindNotFound,
					Provider: provider,
					Op:       "TestConnection",
					Code:     "NoSuchBucket",
					Message:  "bucket " + d.bucket + " does not exist",
				}
			}
			return nil
		},
		d.ListBuckets,
	)
}

// ListContents lists one page under req.Prefix. The SDK pages on its own,
// so the page ends after the requested number of entries and the last key
// seen becomes the resume token.
func (d *Driver) ListContents(ctx context.Context, req filestore.ListRequest) (*listing.View, error) {
	bucket, err := filestore.RequireBucket(provider, d.bucket)
	if err != nil {
		return nil, err
	}
	prefix := listing.NormalizePrefix(req.Prefix)
	limit := d.opts.Limit(req)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	page := &listing.Page{}
	count := 0
	last := ""
	for obj := range d.client.ListObjects(ctx, bucket, miniogo.ListObjectsOptions{
		Prefix:     prefix,
		Recursive:  false,
		MaxKeys:    limit,
		StartAfter: req.Token,
	}) {
		if obj.Err != nil {
			return nil, mapError(obj.Err, "ListContents")
		}
		if count == limit {
			page.Truncated = true
			page.NextToken = last
			break
		}

		if strings.HasSuffix(obj.Key, "/") && obj.ETag == "" {
			page.CommonPrefixes = append(page.CommonPrefixes, obj.Key)
		} else {
			page.Objects = append(page.Objects, listing.Object{
				Key:          obj.Key,
				Size:         obj.Size,
				LastModified: obj.LastModified,
				ETag:         obj.ETag,
			})
		}
		last = obj.Key
		count++
	}
	return listing.Normalize(page, prefix), nil
}

// UploadFile stores data with PutObject.
func (d *Driver) UploadFile(ctx context.Context, data []byte, remotePath string) (*filestore.UploadResult, error) {
	bucket, err := filestore.RequireBucket(provider, d.bucket)
	if err != nil {
		return nil, err
	}
	key, err := filestore.RequireKey(provider, "UploadFile", remotePath)
	if err != nil {
		return nil, err
	}
	contentType := filestore.ContentType(key)
	info, err := d.client.PutObject(ctx, bucket, key, bytes.NewReader(data), int64(len(data)), miniogo.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return nil, mapError(err, "UploadFile")
	}
	return &filestore.UploadResult{Path: key, Size: int64(len(data)), ContentType: contentType, ETag: info.ETag}, nil
}

// DownloadFile reads the whole object.
func (d *Driver) DownloadFile(ctx context.Context, remotePath string) ([]byte, error) {
	bucket, err := filestore.RequireBucket(provider, d.bucket)
	if err != nil {
		return nil, err
	}
	key, err := filestore.RequireKey(provider, "DownloadFile", remotePath)
	if err != nil {
		return nil, err
	}
	obj, err := d.client.GetObject(ctx, bucket, key, miniogo.GetObjectOptions{})
	if err != nil {
		return nil, mapError(err, "DownloadFile")
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, mapError(err, "DownloadFile")
	}
	return data, nil
}

// GetSignedURL returns a time-limited public download URL for the object.
func (d *Driver) GetSignedURL(ctx context.Context, remotePath string, ttl time.Duration) (string, error) {
	bucket, err := filestore.RequireBucket(provider, d.bucket)
	if err != nil {
		return "", err
	}
	key, err := filestore.RequireKey(provider, "GetSignedURL", remotePath)
	if err != nil {
		return "", err
	}
	u, err := d.client.PresignedGetObject(ctx, bucket, key, d.opts.Expiry(ttl), nil)
	if err != nil {
		return "", mapError(err, "GetSignedURL")
	}
	return u.String(), nil
}

// ListBuckets returns all buckets accessible with the configured credentials.
func (d *Driver) ListBuckets(ctx context.Context) ([]filestore.BucketInfo, error) {
	raw, err := d.client.ListBuckets(ctx)
	if err != nil {
		return nil, mapError(err, "ListBuckets")
	}

	buckets := make([]filestore.BucketInfo, len(raw))
	for i, b := range raw {
		buckets[i] = filestore.BucketInfo{
			Name:      b.Name,
			CreatedAt: b.CreationDate,
		}
	}
	return buckets, nil
}

// CreateBucket creates name in the driver's region.
func (d *Driver) CreateBucket(ctx context.Context, name string) error {
	if err := d.client.MakeBucket(ctx, name, miniogo.MakeBucketOptions{Region: d.region}); err != nil {
		return mapError(err, "CreateBucket")
	}
	return nil
}

// --- instrumentation ---

// observedTransport records every SDK exchange the same way the REST
// adapters' executor does.
type observedTransport struct {
	next http.RoundTripper
	log  *logger.Logger
}

func observe(log *logger.Logger) http.RoundTripper {
	next, err := miniogo.DefaultTransport(false)
	if err != nil {
		return &observedTransport{next: http.DefaultTransport, log: log}
	}
	return &observedTransport{next: next, log: log}
}

func (t *observedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.next.RoundTrip(req)
	if err != nil {
		record(req.Method, "transport_fault", time.Since(start))
		return nil, err
	}
	class := "success"
	if resp.StatusCode >= 300 {
		class = "provider_fault"
	}
	took := time.Since(start)
	record(req.Method, class, took)
	t.log.Exchange(provider, req.Method, req.URL.Host, resp.StatusCode, took, resp.Header.Get("X-Amz-Request-Id"))
	return resp, nil
}
