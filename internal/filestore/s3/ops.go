package s3

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/minio/minio-go/v7/pkg/s3utils"

	"github.com/koustreak/cloudbox/internal/errs"
	"github.com/koustreak/cloudbox/internal/filestore"
	"github.com/koustreak/cloudbox/internal/listing"
	"github.com/koustreak/cloudbox/internal/signer"
	"github.com/koustreak/cloudbox/internal/xmltag"
)

// TestConnection lists one key of the configured bucket, or all buckets
// when none is configured.
func (s *Store) TestConnection(ctx context.Context) *filestore.ConnectionResult {
	bucket := s.cred.Bucket
	return filestore.Probe(ctx, provider, bucket,
		func(ctx context.Context) error {
			q := listQuery("", 1, "")
			_, err := follow(ctx, s, "TestConnection", func(ctx context.Context, st *Store) (*listing.Page, error) {
				return st.listPage(ctx, "TestConnection", bucket, q)
			})
			return err
		},
		s.ListBuckets,
	)
}

// ListContents lists one delimiter-partitioned page with ListObjectsV2.
func (s *Store) ListContents(ctx context.Context, req filestore.ListRequest) (*listing.View, error) {
	bucket, err := filestore.RequireBucket(provider, s.cred.Bucket)
	if err != nil {
		return nil, err
	}
	prefix := listing.NormalizePrefix(req.Prefix)
	q := listQuery(prefix, s.opts.Limit(req), req.Token)

	page, err := follow(ctx, s, "ListContents", func(ctx context.Context, st *Store) (*listing.Page, error) {
		return st.listPage(ctx, "ListContents", bucket, q)
	})
	if err != nil {
		return nil, err
	}
	return listing.Normalize(page, prefix), nil
}

func listQuery(prefix string, limit int, token string) url.Values {
	q := url.Values{}
	q.Set("list-type", "2")
	q.Set("delimiter", "/")
	q.Set("max-keys", strconv.Itoa(limit))
	if prefix != "" {
		q.Set("prefix", prefix)
	}
	if token != "" {
		q.Set("continuation-token", token)
	}
	return q
}

func (s *Store) listPage(ctx context.Context, op, bucket string, q url.Values) (*listing.Page, error) {
	resp, err := s.send(ctx, op, http.MethodGet, bucket, "", q, nil, nil)
	if err != nil {
		return nil, err
	}
	return parseListV2(resp.Body), nil
}

// parseListV2 reads a ListBucketResult document.
func parseListV2(body []byte) *listing.Page {
	page := &listing.Page{
		Truncated: xmltag.Text(body, "IsTruncated") == "true",
		NextToken: xmltag.Text(body, "NextContinuationToken"),
	}
	for _, c := range xmltag.All(body, "Contents") {
		size, _ := strconv.ParseInt(xmltag.Text(c, "Size"), 10, 64)
		modified, _ := time.Parse(time.RFC3339, xmltag.Text(c, "LastModified"))
		page.Objects = append(page.Objects, listing.Object{
			Key:          xmltag.Raw(c, "Key"),
			Size:         size,
			LastModified: modified,
			ETag:         strings.Trim(xmltag.Text(c, "ETag"), `"`),
		})
	}
	for _, cp := range xmltag.All(body, "CommonPrefixes") {
		page.CommonPrefixes = append(page.CommonPrefixes, xmltag.Raws(cp, "Prefix")...)
	}
	return page
}

// UploadFile stores data with a single PUT.
func (s *Store) UploadFile(ctx context.Context, data []byte, remotePath string) (*filestore.UploadResult, error) {
	bucket, err := filestore.RequireBucket(provider, s.cred.Bucket)
	if err != nil {
		return nil, err
	}
	key, err := filestore.RequireKey(provider, "UploadFile", remotePath)
	if err != nil {
		return nil, err
	}
	contentType := filestore.ContentType(key)
	h := http.Header{}
	h.Set("Content-Type", contentType)

	etag, err := follow(ctx, s, "UploadFile", func(ctx context.Context, st *Store) (string, error) {
		resp, err := st.send(ctx, "UploadFile", http.MethodPut, bucket, key, nil, h, data)
		if err != nil {
			return "", err
		}
		return strings.Trim(resp.Header.Get("ETag"), `"`), nil
	})
	if err != nil {
		return nil, err
	}
	return &filestore.UploadResult{Path: key, Size: int64(len(data)), ContentType: contentType, ETag: etag}, nil
}

// DownloadFile reads the whole object.
func (s *Store) DownloadFile(ctx context.Context, remotePath string) ([]byte, error) {
	bucket, err := filestore.RequireBucket(provider, s.cred.Bucket)
	if err != nil {
		return nil, err
	}
	key, err := filestore.RequireKey(provider, "DownloadFile", remotePath)
	if err != nil {
		return nil, err
	}
	return follow(ctx, s, "DownloadFile", func(ctx context.Context, st *Store) ([]byte, error) {
		resp, err := st.send(ctx, "DownloadFile", http.MethodGet, bucket, key, nil, nil, nil)
		if err != nil {
			return nil, err
		}
		return resp.Body, nil
	})
}

// GetSignedURL presigns a GET with query-string SigV4. No request is sent.
func (s *Store) GetSignedURL(_ context.Context, remotePath string, ttl time.Duration) (string, error) {
	bucket, err := filestore.RequireBucket(provider, s.cred.Bucket)
	if err != nil {
		return "", err
	}
	key, err := filestore.RequireKey(provider, "GetSignedURL", remotePath)
	if err != nil {
		return "", err
	}
	loc := s.locate(bucket, key)
	q, err := s.sig.Presign(s.cred, http.MethodGet, loc.host, loc.path, nil, s.opts.Expiry(ttl), s.env.Now())
	if err != nil {
		return "", err
	}
	return loc.url(q), nil
}

// ListBuckets runs ListBuckets against the service endpoint.
func (s *Store) ListBuckets(ctx context.Context) ([]filestore.BucketInfo, error) {
	resp, err := s.send(ctx, "ListBuckets", http.MethodGet, "", "", nil, nil, nil)
	if err != nil {
		return nil, err
	}
	var out []filestore.BucketInfo
	for _, b := range xmltag.All(resp.Body, "Bucket") {
		created, _ := time.Parse(time.RFC3339, xmltag.Text(b, "CreationDate"))
		out = append(out, filestore.BucketInfo{Name: xmltag.Text(b, "Name"), CreatedAt: created})
	}
	return out, nil
}

// CreateBucket creates name in the store's region.
func (s *Store) CreateBucket(ctx context.Context, name string) error {
	if err := s3utils.CheckValidBucketNameStrict(name); err != nil {
		return &errs.ProviderError{
			Kind:     errs.KindMalformedRequest,
			Provider: provider,
			Op:       "CreateBucket",
			Code:     "InvalidBucketName",
			Message:  err.Error(),
		}
	}
	var body []byte
	if s.cred.Region != signer.DefaultRegion {
		body = []byte(`<CreateBucketConfiguration xmlns="http://s3.amazonaws.com/doc/2006-03-01/">` +
			"<LocationConstraint>" + s.cred.Region + "</LocationConstraint></CreateBucketConfiguration>")
	}
	_, err := s.send(ctx, "CreateBucket", http.MethodPut, name, "", nil, nil, body)
	return err
}
