package gcs

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/koustreak/cloudbox/internal/filestore"
	"github.com/koustreak/cloudbox/internal/listing"
	"github.com/koustreak/cloudbox/internal/signer"
)

type object struct {
	Name    string    `json:"name"`
	Size    string    `json:"size"`
	Updated time.Time `json:"updated"`
	ETag    string    `json:"etag"`
}

type objectList struct {
	Items         []object `json:"items"`
	Prefixes      []string `json:"prefixes"`
	NextPageToken string   `json:"nextPageToken"`
}

type bucket struct {
	Name        string    `json:"name"`
	TimeCreated time.Time `json:"timeCreated"`
}

type bucketList struct {
	Items []bucket `json:"items"`
}

// TestConnection lists one object of the configured bucket, or the
// project's buckets when none is configured.
func (s *Store) TestConnection(ctx context.Context) *filestore.ConnectionResult {
	b := s.cred.Bucket
	return filestore.Probe(ctx, provider, b,
		func(ctx context.Context) error {
			_, err := s.listPage(ctx, "TestConnection", b, listQuery("", 1, ""))
			return err
		},
		s.ListBuckets,
	)
}

// ListContents lists one page of objects with the "/" delimiter.
func (s *Store) ListContents(ctx context.Context, req filestore.ListRequest) (*listing.View, error) {
	b, err := filestore.RequireBucket(provider, s.cred.Bucket)
	if err != nil {
		return nil, err
	}
	prefix := listing.NormalizePrefix(req.Prefix)
	page, err := s.listPage(ctx, "ListContents", b, listQuery(prefix, s.opts.Limit(req), req.Token))
	if err != nil {
		return nil, err
	}
	return listing.Normalize(page, prefix), nil
}

func listQuery(prefix string, limit int, token string) url.Values {
	q := url.Values{}
	q.Set("delimiter", "/")
	q.Set("maxResults", strconv.Itoa(limit))
	if prefix != "" {
		q.Set("prefix", prefix)
	}
	if token != "" {
		q.Set("pageToken", token)
	}
	return q
}

func (s *Store) listPage(ctx context.Context, op, b string, q url.Values) (*listing.Page, error) {
	resp, err := s.send(ctx, op, http.MethodGet, s.api("/storage/v1/b/"+url.PathEscape(b)+"/o", q), nil, nil)
	if err != nil {
		return nil, err
	}
	var list objectList
	if err := decode(op, resp.Body, &list); err != nil {
		return nil, err
	}

	page := &listing.Page{
		CommonPrefixes: list.Prefixes,
		NextToken:      list.NextPageToken,
		Truncated:      list.NextPageToken != "",
	}
	for _, o := range list.Items {
		size, _ := strconv.ParseInt(o.Size, 10, 64)
		page.Objects = append(page.Objects, listing.Object{
			Key:          o.Name,
			Size:         size,
			LastModified: o.Updated,
			ETag:         o.ETag,
		})
	}
	return page, nil
}

// UploadFile stores data with a simple media upload.
func (s *Store) UploadFile(ctx context.Context, data []byte, remotePath string) (*filestore.UploadResult, error) {
	b, err := filestore.RequireBucket(provider, s.cred.Bucket)
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

	q := url.Values{}
	q.Set("uploadType", "media")
	q.Set("name", key)
	resp, err := s.send(ctx, "UploadFile", http.MethodPost, s.api("/upload/storage/v1/b/"+url.PathEscape(b)+"/o", q), h, data)
	if err != nil {
		return nil, err
	}
	var o object
	if err := decode("UploadFile", resp.Body, &o); err != nil {
		return nil, err
	}
	return &filestore.UploadResult{Path: key, Size: int64(len(data)), ContentType: contentType, ETag: o.ETag}, nil
}

// DownloadFile reads the object's media.
func (s *Store) DownloadFile(ctx context.Context, remotePath string) ([]byte, error) {
	b, err := filestore.RequireBucket(provider, s.cred.Bucket)
	if err != nil {
		return nil, err
	}
	key, err := filestore.RequireKey(provider, "DownloadFile", remotePath)
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("alt", "media")
	resp, err := s.send(ctx, "DownloadFile", http.MethodGet, s.api("/storage/v1/b/"+url.PathEscape(b)+"/o/"+url.PathEscape(key), q), nil, nil)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// GetSignedURL returns a V4 signed GET URL. No request is sent.
func (s *Store) GetSignedURL(_ context.Context, remotePath string, ttl time.Duration) (string, error) {
	b, err := filestore.RequireBucket(provider, s.cred.Bucket)
	if err != nil {
		return "", err
	}
	key, err := filestore.RequireKey(provider, "GetSignedURL", remotePath)
	if err != nil {
		return "", err
	}
	path := "/" + b + "/" + key
	q, err := signer.GCSSignedURL(s.cred, http.MethodGet, s.base.Host, path, s.opts.Expiry(ttl), s.env.Now())
	if err != nil {
		return "", err
	}
	return s.base.Scheme + "://" + s.base.Host + signer.EscapePath(path) + "?" + signer.CanonicalQuery(q), nil
}

// ListBuckets lists the buckets of the credential's project.
func (s *Store) ListBuckets(ctx context.Context) ([]filestore.BucketInfo, error) {
	project, err := s.project()
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("project", project)
	resp, err := s.send(ctx, "ListBuckets", http.MethodGet, s.api("/storage/v1/b", q), nil, nil)
	if err != nil {
		return nil, err
	}
	var list bucketList
	if err := decode("ListBuckets", resp.Body, &list); err != nil {
		return nil, err
	}
	out := make([]filestore.BucketInfo, 0, len(list.Items))
	for _, b := range list.Items {
		out = append(out, filestore.BucketInfo{Name: b.Name, CreatedAt: b.TimeCreated})
	}
	return out, nil
}

// CreateBucket creates name in the project, in opts.Region when one is set.
func (s *Store) CreateBucket(ctx context.Context, name string) error {
	project, err := s.project()
	if err != nil {
		return err
	}
	spec := map[string]string{"name": strings.TrimSpace(name)}
	if loc := s.location(); loc != "" {
		spec["location"] = loc
	}
	body, err := json.Marshal(spec)
	if err != nil {
		return err
	}
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	q := url.Values{}
	q.Set("project", project)
	_, err = s.send(ctx, "CreateBucket", http.MethodPost, s.api("/storage/v1/b", q), h, body)
	return err
}

func (s *Store) location() string {
	if s.opts.Region != "" {
		return s.opts.Region
	}
	return s.cred.Region
}
