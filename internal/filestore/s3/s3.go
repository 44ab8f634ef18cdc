// Package s3 implements filestore.Store for Amazon S3 and S3-compatible
// endpoints over the REST API, signing every request with SigV4.
package s3

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7/pkg/s3utils"

	"github.com/koustreak/cloudbox/internal/credential"
	"github.com/koustreak/cloudbox/internal/errs"
	"github.com/koustreak/cloudbox/internal/filestore"
	"github.com/koustreak/cloudbox/internal/logger"
	"github.com/koustreak/cloudbox/internal/redirect"
	"github.com/koustreak/cloudbox/internal/signer"
	"github.com/koustreak/cloudbox/internal/transport"
)

const provider = string(credential.ProviderS3)

// Store is the S3 implementation of filestore.Store.
type Store struct {
	cred *credential.Credential
	opts filestore.Options
	env  filestore.Env
	log  *logger.Logger
	sig  signer.SigV4

	// base is set for custom (non-AWS) endpoints, which are always
	// addressed path-style.
	base *url.URL

	// host replaces the regional AWS host after an endpoint-only redirect.
	host string
}

// compile-time interface check
var _ filestore.Store = (*Store)(nil)

// New creates an S3 store. opts.Region and opts.Endpoint override the
// credential's own values.
func New(cred *credential.Credential, opts filestore.Options, env filestore.Env) (*Store, error) {
	if cred == nil || cred.Provider != credential.ProviderS3 {
		return nil, errs.Invalid(provider, "credential is not an s3 credential")
	}
	c := *cred
	if opts.Region != "" {
		c.Region = opts.Region
	}
	if opts.Endpoint != "" {
		c.Endpoint = opts.Endpoint
	}

	env = env.Defaults()
	sig, err := signer.For(&c, env.Exec)
	if err != nil {
		return nil, err
	}
	v4, ok := sig.(signer.SigV4)
	if !ok {
		return nil, errs.Invalid(provider, "credential does not select a SigV4 signer")
	}
	s := &Store{
		opts: opts,
		env:  env,
		log:  env.Log.WithProvider(provider),
		sig:  v4,
	}
	if c.Endpoint != "" {
		u, err := parseEndpoint(c.Endpoint, c.Insecure)
		if err != nil {
			return nil, err
		}
		if s3utils.IsAmazonEndpoint(*u) {
			if c.Region == "" {
				c.Region = redirect.RegionFromHost(u.Host)
			}
		} else {
			s.base = u
		}
	}
	if c.Region == "" {
		c.Region = signer.DefaultRegion
	}
	s.cred = &c
	return s, nil
}

func (s *Store) Provider() credential.Provider { return credential.ProviderS3 }

func parseEndpoint(raw string, insecure bool) (*url.URL, error) {
	if !strings.Contains(raw, "://") {
		scheme := "https://"
		if insecure {
			scheme = "http://"
		}
		raw = scheme + raw
	}
	u, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil || u.Host == "" {
		return nil, errs.Invalid(provider, "endpoint is not a valid URL")
	}
	return u, nil
}

// location is where one request goes. path is unescaped.
type location struct {
	scheme string
	host   string
	path   string
}

func (l location) url(q url.Values) string {
	u := l.scheme + "://" + l.host + signer.EscapePath(l.path)
	if enc := signer.CanonicalQuery(q); enc != "" {
		u += "?" + enc
	}
	return u
}

// locate addresses bucket and key. AWS buckets with DNS-safe names use
// virtual-hosted style; everything else is path style.
func (s *Store) locate(bucket, key string) location {
	if s.base != nil {
		p := strings.TrimRight(s.base.Path, "/") + "/"
		if bucket != "" {
			p += bucket
			if key != "" {
				p += "/" + key
			}
		}
		return location{scheme: s.base.Scheme, host: s.base.Host, path: p}
	}

	host := s.host
	if host == "" {
		host = awsHost(s.cred.Region)
	}
	switch {
	case bucket == "":
		return location{scheme: "https", host: host, path: "/"}
	case strings.HasPrefix(host, bucket+"."):
		return location{scheme: "https", host: host, path: "/" + key}
	case s.host == "" && virtualHosted(bucket):
		return location{scheme: "https", host: bucket + "." + host, path: "/" + key}
	}
	p := "/" + bucket
	if key != "" {
		p += "/" + key
	}
	return location{scheme: "https", host: host, path: p}
}

func awsHost(region string) string {
	if region == "" || region == signer.DefaultRegion {
		return "s3.amazonaws.com"
	}
	return "s3." + region + ".amazonaws.com"
}

func virtualHosted(bucket string) bool {
	return !strings.Contains(bucket, ".") && s3utils.CheckValidBucketNameStrict(bucket) == nil
}

// send signs and executes one request.
func (s *Store) send(ctx context.Context, op, method, bucket, key string, query url.Values, header http.Header, body []byte) (*transport.Response, error) {
	loc := s.locate(bucket, key)
	q := url.Values{}
	for k, vs := range query {
		q[k] = append([]string(nil), vs...)
	}
	h := http.Header{}
	for k, vs := range header {
		h[k] = append([]string(nil), vs...)
	}

	auth, err := s.sig.Sign(ctx, s.cred, &signer.SigningContext{
		Method:      method,
		Host:        loc.host,
		Path:        loc.path,
		Query:       q,
		Header:      h,
		PayloadHash: signer.HashPayload(body),
	}, s.env.Now())
	if err != nil {
		return nil, errs.WithOp(err, op)
	}
	auth.Apply(h, q)

	return s.env.Exec.Execute(ctx, &transport.Request{
		Provider: provider,
		Op:       op,
		Method:   method,
		URL:      loc.url(q),
		Header:   h,
		Body:     body,
	})
}

// retarget returns a copy of s aimed at the redirect target.
func (s *Store) retarget(t redirect.Target) *Store {
	cp := *s
	if t.Region != "" {
		cp.cred = s.cred.WithRegion(t.Region)
		cp.host = ""
		return &cp
	}
	if s.base == nil {
		host := t.Endpoint
		if i := strings.Index(host, "://"); i >= 0 {
			host = host[i+3:]
		}
		cp.host = strings.SplitN(host, "/", 2)[0]
	}
	return &cp
}

// follow runs fn and, on a redirect fault, once more against the corrected
// region or endpoint.
func follow[T any](ctx context.Context, s *Store, op string, fn func(context.Context, *Store) (T, error)) (T, error) {
	out, err := fn(ctx, s)
	if err == nil {
		return out, nil
	}
	return redirect.Resolve(ctx, err, func(ctx context.Context, t redirect.Target) (T, error) {
		s.log.InfoWith("following redirect", map[string]interface{}{
			"op":       op,
			"region":   t.Region,
			"endpoint": t.Endpoint,
		})
		return fn(ctx, s.retarget(t))
	})
}
