// Package azure implements filestore.Store for Azure Blob Storage over the
// Blob service REST API. Requests are authorized with the account shared key
// or with a pre-issued SAS token, whichever the credential resolved to.
package azure

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7/pkg/s3utils"

	"github.com/koustreak/cloudbox/internal/credential"
	"github.com/koustreak/cloudbox/internal/errs"
	"github.com/koustreak/cloudbox/internal/filestore"
	"github.com/koustreak/cloudbox/internal/logger"
	"github.com/koustreak/cloudbox/internal/signer"
	"github.com/koustreak/cloudbox/internal/transport"
)

const provider = string(credential.ProviderAzure)

// Store is the Azure Blob implementation of filestore.Store.
type Store struct {
	cred *credential.Credential
	opts filestore.Options
	env  filestore.Env
	log  *logger.Logger
	sig  signer.Signer
	base *url.URL
}

var _ filestore.Store = (*Store)(nil)

// New creates an Azure store. The blob endpoint defaults to
// https://<account>.blob.core.windows.net.
func New(cred *credential.Credential, opts filestore.Options, env filestore.Env) (*Store, error) {
	if cred == nil || cred.Provider != credential.ProviderAzure {
		return nil, errs.Invalid(provider, "credential is not an azure credential")
	}
	env = env.Defaults()
	sig, err := signer.For(cred, env.Exec)
	if err != nil {
		return nil, err
	}

	endpoint := cred.Endpoint
	if opts.Endpoint != "" {
		endpoint = opts.Endpoint
	}
	if endpoint == "" {
		if cred.AccountName == "" {
			return nil, errs.Missing(provider, "accountName")
		}
		endpoint = "https://" + cred.AccountName + ".blob.core.windows.net"
	}
	base, err := url.Parse(strings.TrimRight(endpoint, "/"))
	if err != nil || base.Host == "" {
		return nil, errs.Invalid(provider, "endpoint is not a valid URL")
	}

	return &Store{
		cred: cred,
		opts: opts,
		env:  env,
		log:  env.Log.WithProvider(provider),
		sig:  sig,
		base: base,
	}, nil
}

func (s *Store) Provider() credential.Provider { return credential.ProviderAzure }

// resource returns the unescaped request path for container and blob,
// including any path the endpoint itself carries (emulators put the
// account name there).
func (s *Store) resource(container, blob string) string {
	p := strings.TrimRight(s.base.Path, "/") + "/"
	if container != "" {
		p += container
		if blob != "" {
			p += "/" + blob
		}
	}
	return p
}

func (s *Store) url(path string, q url.Values) string {
	u := s.base.Scheme + "://" + s.base.Host + signer.EscapePath(path)
	if enc := signer.CanonicalQuery(q); enc != "" {
		u += "?" + enc
	}
	return u
}

// send signs and executes one request.
func (s *Store) send(ctx context.Context, op, method, container, blob string, query url.Values, header http.Header, body []byte) (*transport.Response, error) {
	path := s.resource(container, blob)
	q := url.Values{}
	for k, vs := range query {
		q[k] = append([]string(nil), vs...)
	}
	h := http.Header{}
	for k, vs := range header {
		h[k] = append([]string(nil), vs...)
	}
	h.Set("x-ms-client-request-id", uuid.NewString())
	if len(body) > 0 {
		h.Set("Content-Length", strconv.Itoa(len(body)))
	}

	auth, err := s.sig.Sign(ctx, s.cred, &signer.SigningContext{
		Method: method,
		Host:   s.base.Host,
		Path:   path,
		Query:  q,
		Header: h,
	}, s.env.Now())
	if err != nil {
		return nil, errs.WithOp(err, op)
	}
	auth.Apply(h, q)

	return s.env.Exec.Execute(ctx, &transport.Request{
		Provider: provider,
		Op:       op,
		Method:   method,
		URL:      s.url(path, q),
		Header:   h,
		Body:     body,
	})
}

// validContainer applies the container naming rules: the S3 strict bucket
// rules without dots or consecutive hyphens.
func validContainer(name string) error {
	if err := s3utils.CheckValidBucketNameStrict(name); err != nil {
		return err
	}
	if strings.Contains(name, ".") || strings.Contains(name, "--") {
		return errInvalidContainer
	}
	return nil
}

type containerError string

func (e containerError) Error() string { return string(e) }

const errInvalidContainer containerError = "container names may only contain lowercase letters, numbers and single hyphens"
