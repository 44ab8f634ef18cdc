package filestore

import (
	"context"
	"fmt"
	"mime"
	"path"
	"strings"

	"github.com/koustreak/cloudbox/internal/errs"
)

// ContentType derives a MIME type from the extension of remotePath.
func ContentType(remotePath string) string {
	if t := mime.TypeByExtension(path.Ext(remotePath)); t != "" {
		return t
	}
	return "application/octet-stream"
}

// CleanKey turns a caller path into an object key: no leading slash and no
// "." or ".." segments. A trailing slash is kept. Surrounding spaces are part
// of the key; a blank path yields "".
func CleanKey(remotePath string) string {
	p := remotePath
	if strings.TrimSpace(p) == "" {
		return ""
	}
	dir := strings.HasSuffix(p, "/")
	p = strings.TrimPrefix(path.Clean("/"+p), "/")
	if dir && p != "" {
		p += "/"
	}
	return p
}

// RequireKey returns the cleaned key or a malformed-request error when it is
// empty.
func RequireKey(provider, op, remotePath string) (string, error) {
	key := CleanKey(remotePath)
	if key == "" || strings.HasSuffix(key, "/") {
		return "", &errs.ProviderError{
			Kind:     errs.KindMalformedRequest,
			Provider: provider,
			Op:       op,
			Message:  fmt.Sprintf("%q does not name a file", remotePath),
		}
	}
	return key, nil
}

// RequireBucket returns bucket or a resolution error naming the field.
func RequireBucket(provider, bucket string) (string, error) {
	if bucket == "" {
		return "", errs.Missing(provider, "bucket")
	}
	return bucket, nil
}

// Probe runs the standard connection test. With a bucket configured it lists
// one key of that bucket; otherwise it counts the visible buckets.
func Probe(ctx context.Context, provider, bucket string,
	listOne func(context.Context) error,
	buckets func(context.Context) ([]BucketInfo, error),
) *ConnectionResult {
	res := &ConnectionResult{Provider: provider}
	if bucket != "" {
		if err := listOne(ctx); err != nil {
			res.Message = err.Error()
			return res
		}
		res.Success = true
		res.Message = fmt.Sprintf("connected to %s bucket %q", provider, bucket)
		return res
	}

	list, err := buckets(ctx)
	if err != nil {
		res.Message = err.Error()
		return res
	}
	res.Success = true
	res.BucketCount = len(list)
	res.Message = fmt.Sprintf("connected to %s, %d bucket(s) visible", provider, len(list))
	return res
}
