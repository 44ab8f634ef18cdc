package sftp

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/pkg/sftp"

	"github.com/koustreak/cloudbox/internal/errs"
	"github.com/koustreak/cloudbox/internal/filestore"
	"github.com/koustreak/cloudbox/internal/listing"
)

// TestConnection checks the root directory when one is configured, or
// counts the directories in the login directory.
func (s *Store) TestConnection(ctx context.Context) *filestore.ConnectionResult {
	return filestore.Probe(ctx, provider, s.cred.Bucket,
		func(ctx context.Context) error {
			return s.session(ctx, "TestConnection", func(c *sftp.Client) error {
				fi, err := c.Stat(s.root)
				if err != nil {
					return err
				}
				if !fi.IsDir() {
					return fmt.Errorf("%s is not a directory", s.root)
				}
				return nil
			})
		},
		s.ListBuckets,
	)
}

// ListContents reads one directory. Entries are ordered by name and the
// token is the last name of the previous page.
func (s *Store) ListContents(ctx context.Context, req filestore.ListRequest) (*listing.View, error) {
	prefix := listing.NormalizePrefix(filestore.CleanKey(req.Prefix))
	limit := s.opts.Limit(req)

	var entries []os.FileInfo
	err := s.session(ctx, "ListContents", func(c *sftp.Client) error {
		var err error
		entries, err = c.ReadDir(s.abs(prefix))
		return err
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	page := &listing.Page{}
	count := 0
	for _, fi := range entries {
		if req.Token != "" && fi.Name() <= req.Token {
			continue
		}
		if count == limit {
			page.Truncated = true
			break
		}
		if fi.IsDir() {
			page.CommonPrefixes = append(page.CommonPrefixes, prefix+fi.Name()+"/")
		} else {
			page.Objects = append(page.Objects, listing.Object{
				Key:          prefix + fi.Name(),
				Size:         fi.Size(),
				LastModified: fi.ModTime(),
			})
		}
		page.NextToken = fi.Name()
		count++
	}
	if !page.Truncated {
		page.NextToken = ""
	}
	return listing.Normalize(page, prefix), nil
}

// UploadFile writes data, creating parent directories as needed.
func (s *Store) UploadFile(ctx context.Context, data []byte, remotePath string) (*filestore.UploadResult, error) {
	key, err := filestore.RequireKey(provider, "UploadFile", remotePath)
	if err != nil {
		return nil, err
	}
	target := s.abs(key)
	err = s.session(ctx, "UploadFile", func(c *sftp.Client) error {
		if err := c.MkdirAll(path.Dir(target)); err != nil {
			return err
		}
		f, err := c.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
		if err != nil {
			return err
		}
		if _, err := f.Write(data); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	})
	if err != nil {
		return nil, err
	}
	return &filestore.UploadResult{Path: key, Size: int64(len(data)), ContentType: filestore.ContentType(key)}, nil
}

// DownloadFile reads the whole file.
func (s *Store) DownloadFile(ctx context.Context, remotePath string) ([]byte, error) {
	key, err := filestore.RequireKey(provider, "DownloadFile", remotePath)
	if err != nil {
		return nil, err
	}
	var data []byte
	err = s.session(ctx, "DownloadFile", func(c *sftp.Client) error {
		f, err := c.Open(s.abs(key))
		if err != nil {
			return err
		}
		defer f.Close()
		data, err = io.ReadAll(f)
		return err
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// GetSignedURL is not expressible over SSH.
func (s *Store) GetSignedURL(context.Context, string, time.Duration) (string, error) {
	return "", errs.Unsupported(provider, "GetSignedURL")
}

// ListBuckets returns the directories directly below the root.
func (s *Store) ListBuckets(ctx context.Context) ([]filestore.BucketInfo, error) {
	var out []filestore.BucketInfo
	err := s.session(ctx, "ListBuckets", func(c *sftp.Client) error {
		entries, err := c.ReadDir(s.root)
		if err != nil {
			return err
		}
		for _, fi := range entries {
			if fi.IsDir() {
				out = append(out, filestore.BucketInfo{Name: fi.Name(), CreatedAt: fi.ModTime()})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// CreateBucket creates a directory below the root.
func (s *Store) CreateBucket(ctx context.Context, name string) error {
	key := strings.Trim(filestore.CleanKey(name), "/")
	if key == "" || path.Base(key) != key {
		return &errs.ProviderError{
			Kind:     errs.KindMalformedRequest,
			Provider: provider,
			Op:       "CreateBucket",
			Message:  fmt.Sprintf("%q is not a single directory name", name),
		}
	}
	target := s.abs(key)
	return s.session(ctx, "CreateBucket", func(c *sftp.Client) error {
		if _, err := c.Stat(target); err == nil {
			return &errs.ProviderError{
				Kind:     errs.KindConflict,
				Provider: provider,
				Op:       "CreateBucket",
				Message:  key + " already exists",
			}
		}
		return c.Mkdir(target)
	})
}
