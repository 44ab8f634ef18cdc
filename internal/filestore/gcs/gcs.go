// Package gcs implements filestore.Store for Google Cloud Storage over the
// JSON API. Every operation exchanges a fresh service-account assertion for
// a bearer token; signed URLs use V4 query signing with the same key.
package gcs

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/koustreak/cloudbox/internal/credential"
	"github.com/koustreak/cloudbox/internal/errs"
	"github.com/koustreak/cloudbox/internal/filestore"
	"github.com/koustreak/cloudbox/internal/logger"
	"github.com/koustreak/cloudbox/internal/signer"
	"github.com/koustreak/cloudbox/internal/transport"
)

const (
	provider = string(credential.ProviderGCS)

	// DefaultEndpoint serves both the JSON API and signed URLs.
	DefaultEndpoint = "https://storage.googleapis.com"
)

// Store is the GCS implementation of filestore.Store.
type Store struct {
	cred *credential.Credential
	opts filestore.Options
	env  filestore.Env
	log  *logger.Logger
	jwt  *signer.JWT
	base *url.URL
}

var _ filestore.Store = (*Store)(nil)

// New creates a GCS store.
func New(cred *credential.Credential, opts filestore.Options, env filestore.Env) (*Store, error) {
	if cred == nil || cred.Provider != credential.ProviderGCS {
		return nil, errs.Invalid(provider, "credential is not a gcs credential")
	}
	endpoint := DefaultEndpoint
	switch {
	case opts.Endpoint != "":
		endpoint = opts.Endpoint
	case cred.Endpoint != "":
		endpoint = cred.Endpoint
	}
	base, err := url.Parse(strings.TrimRight(endpoint, "/"))
	if err != nil || base.Host == "" {
		return nil, errs.Invalid(provider, "endpoint is not a valid URL")
	}

	env = env.Defaults()
	sig, err := signer.For(cred, env.Exec)
	if err != nil {
		return nil, err
	}
	jwt, ok := sig.(*signer.JWT)
	if !ok {
		return nil, errs.Invalid(provider, "credential does not select a JWT signer")
	}
	return &Store{
		cred: cred,
		opts: opts,
		env:  env,
		log:  env.Log.WithProvider(provider),
		jwt:  jwt,
		base: base,
	}, nil
}

func (s *Store) Provider() credential.Provider { return credential.ProviderGCS }

// api builds a URL under the endpoint. path segments must already be
// escaped.
func (s *Store) api(path string, q url.Values) string {
	u := s.base.String() + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

// send authorizes and executes one request.
func (s *Store) send(ctx context.Context, op, method, rawURL string, header http.Header, body []byte) (*transport.Response, error) {
	h := http.Header{}
	for k, vs := range header {
		h[k] = append([]string(nil), vs...)
	}
	auth, err := s.jwt.Sign(ctx, s.cred, nil, s.env.Now())
	if err != nil {
		return nil, errs.WithOp(err, op)
	}
	auth.Apply(h, url.Values{})

	return s.env.Exec.Execute(ctx, &transport.Request{
		Provider: provider,
		Op:       op,
		Method:   method,
		URL:      rawURL,
		Header:   h,
		Body:     body,
	})
}

func (s *Store) project() (string, error) {
	if s.cred.ProjectID != "" {
		return s.cred.ProjectID, nil
	}
	if sa := s.cred.ServiceAccount; sa != nil && sa.ProjectID != "" {
		return sa.ProjectID, nil
	}
	return "", errs.Missing(provider, "project_id")
}

func decode(op string, body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return &errs.ProviderError{
			Kind:     errs.KindUnknown,
			Provider: provider,
			Op:       op,
			Message:  "unreadable response: " + err.Error(),
		}
	}
	return nil
}
