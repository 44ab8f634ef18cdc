package azure

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/koustreak/cloudbox/internal/credential"
	"github.com/koustreak/cloudbox/internal/errs"
	"github.com/koustreak/cloudbox/internal/filestore"
	"github.com/koustreak/cloudbox/internal/listing"
	"github.com/koustreak/cloudbox/internal/signer"
	"github.com/koustreak/cloudbox/internal/xmltag"
)

// sasSkew backdates the start of issued SAS tokens.
const sasSkew = 5 * time.Minute

// TestConnection lists one blob of the configured container, or all
// containers when none is configured.
func (s *Store) TestConnection(ctx context.Context) *filestore.ConnectionResult {
	container := s.cred.Bucket
	return filestore.Probe(ctx, provider, container,
		func(ctx context.Context) error {
			_, err := s.listPage(ctx, "TestConnection", container, listQuery("", 1, ""))
			return err
		},
		s.ListBuckets,
	)
}

// ListContents lists one page of blobs with the "/" delimiter.
func (s *Store) ListContents(ctx context.Context, req filestore.ListRequest) (*listing.View, error) {
	container, err := filestore.RequireBucket(provider, s.cred.Bucket)
	if err != nil {
		return nil, err
	}
	prefix := listing.NormalizePrefix(req.Prefix)
	page, err := s.listPage(ctx, "ListContents", container, listQuery(prefix, s.opts.Limit(req), req.Token))
	if err != nil {
		return nil, err
	}
	return listing.Normalize(page, prefix), nil
}

func listQuery(prefix string, limit int, marker string) url.Values {
	q := url.Values{}
	q.Set("restype", "container")
	q.Set("comp", "list")
	q.Set("delimiter", "/")
	q.Set("maxresults", strconv.Itoa(limit))
	if prefix != "" {
		q.Set("prefix", prefix)
	}
	if marker != "" {
		q.Set("marker", marker)
	}
	return q
}

func (s *Store) listPage(ctx context.Context, op, container string, q url.Values) (*listing.Page, error) {
	resp, err := s.send(ctx, op, http.MethodGet, container, "", q, nil, nil)
	if err != nil {
		return nil, err
	}
	return parseBlobList(resp.Body), nil
}

// parseBlobList reads an EnumerationResults document.
func parseBlobList(body []byte) *listing.Page {
	page := &listing.Page{NextToken: xmltag.Text(body, "NextMarker")}
	page.Truncated = page.NextToken != ""
	for _, b := range xmltag.All(body, "Blob") {
		props, _ := xmltag.First(b, "Properties")
		size, _ := strconv.ParseInt(xmltag.Text(props, "Content-Length"), 10, 64)
		modified, _ := http.ParseTime(xmltag.Text(props, "Last-Modified"))
		page.Objects = append(page.Objects, listing.Object{
			Key:          xmltag.Raw(b, "Name"),
			Size:         size,
			LastModified: modified,
			ETag:         strings.Trim(xmltag.Text(props, "Etag"), `"`),
		})
	}
	for _, p := range xmltag.All(body, "BlobPrefix") {
		page.CommonPrefixes = append(page.CommonPrefixes, xmltag.Raw(p, "Name"))
	}
	return page
}

// UploadFile writes data as a block blob with a single Put Blob.
func (s *Store) UploadFile(ctx context.Context, data []byte, remotePath string) (*filestore.UploadResult, error) {
	container, err := filestore.RequireBucket(provider, s.cred.Bucket)
	if err != nil {
		return nil, err
	}
	blob, err := filestore.RequireKey(provider, "UploadFile", remotePath)
	if err != nil {
		return nil, err
	}
	contentType := filestore.ContentType(blob)
	h := http.Header{}
	h.Set("x-ms-blob-type", "BlockBlob")
	h.Set("Content-Type", contentType)

	resp, err := s.send(ctx, "UploadFile", http.MethodPut, container, blob, nil, h, data)
	if err != nil {
		return nil, err
	}
	return &filestore.UploadResult{
		Path:        blob,
		Size:        int64(len(data)),
		ContentType: contentType,
		ETag:        strings.Trim(resp.Header.Get("ETag"), `"`),
	}, nil
}

// DownloadFile reads the whole blob.
func (s *Store) DownloadFile(ctx context.Context, remotePath string) ([]byte, error) {
	container, err := filestore.RequireBucket(provider, s.cred.Bucket)
	if err != nil {
		return nil, err
	}
	blob, err := filestore.RequireKey(provider, "DownloadFile", remotePath)
	if err != nil {
		return nil, err
	}
	resp, err := s.send(ctx, "DownloadFile", http.MethodGet, container, blob, nil, nil, nil)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// GetSignedURL issues a read-only blob SAS from the shared key, or appends
// the credential's own SAS token when that is all there is.
func (s *Store) GetSignedURL(_ context.Context, remotePath string, ttl time.Duration) (string, error) {
	container, err := filestore.RequireBucket(provider, s.cred.Bucket)
	if err != nil {
		return "", err
	}
	blob, err := filestore.RequireKey(provider, "GetSignedURL", remotePath)
	if err != nil {
		return "", err
	}

	var q url.Values
	switch s.cred.Mode {
	case credential.ModeSAS:
		q, err = signer.ParseSAS(s.cred.SASToken)
	default:
		now := s.env.Now()
		q, err = signer.BlobSAS(s.cred, container, blob, now.Add(-sasSkew), now.Add(s.opts.Expiry(ttl)))
	}
	if err != nil {
		return "", err
	}
	return s.url(s.resource(container, blob), q), nil
}

// ListBuckets lists the account's containers. Azure reports no creation
// time, so CreatedAt carries the container's last-modified time.
func (s *Store) ListBuckets(ctx context.Context) ([]filestore.BucketInfo, error) {
	q := url.Values{}
	q.Set("comp", "list")
	resp, err := s.send(ctx, "ListBuckets", http.MethodGet, "", "", q, nil, nil)
	if err != nil {
		return nil, err
	}
	var out []filestore.BucketInfo
	for _, c := range xmltag.All(resp.Body, "Container") {
		props, _ := xmltag.First(c, "Properties")
		modified, _ := http.ParseTime(xmltag.Text(props, "Last-Modified"))
		out = append(out, filestore.BucketInfo{Name: xmltag.Text(c, "Name"), CreatedAt: modified})
	}
	return out, nil
}

// CreateBucket creates a private container.
func (s *Store) CreateBucket(ctx context.Context, name string) error {
	if err := validContainer(name); err != nil {
		return &errs.ProviderError{
			Kind:     errs.KindMalformedRequest,
			Provider: provider,
			Op:       "CreateBucket",
			Code:     "InvalidResourceName",
			Message:  err.Error(),
		}
	}
	q := url.Values{}
	q.Set("restype", "container")
	_, err := s.send(ctx, "CreateBucket", http.MethodPut, name, "", q, nil, nil)
	return err
}
