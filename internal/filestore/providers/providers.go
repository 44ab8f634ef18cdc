// Package providers selects the filestore.Store implementation for a
// credential's provider tag.
package providers

import (
	"github.com/koustreak/cloudbox/internal/credential"
	"github.com/koustreak/cloudbox/internal/errs"
	"github.com/koustreak/cloudbox/internal/filestore"
	"github.com/koustreak/cloudbox/internal/filestore/azure"
	"github.com/koustreak/cloudbox/internal/filestore/gcs"
	"github.com/koustreak/cloudbox/internal/filestore/minio"
	"github.com/koustreak/cloudbox/internal/filestore/s3"
	"github.com/koustreak/cloudbox/internal/filestore/sftp"
)

// New returns the store for cred.Provider.
func New(cred *credential.Credential, opts filestore.Options, env filestore.Env) (filestore.Store, error) {
	if cred == nil {
		return nil, errs.Missing("", "provider")
	}
	switch cred.Provider {
	case credential.ProviderS3:
		return s3.New(cred, opts, env)
	case credential.ProviderAzure:
		return azure.New(cred, opts, env)
	case credential.ProviderGCS:
		return gcs.New(cred, opts, env)
	case credential.ProviderMinIO:
		return minio.New(cred, opts, env)
	case credential.ProviderSFTP:
		return sftp.New(cred, opts, env)
	}
	return nil, errs.Invalid(string(cred.Provider), "unknown provider \""+string(cred.Provider)+"\"")
}

// Open resolves raw credential material and per-call configuration, then
// builds the matching store. cfg may override credential fields (region,
// endpoint, bucket) and carries pageLimit and ttl.
func Open(raw, cfg map[string]any, env filestore.Env) (filestore.Store, error) {
	cred, err := credential.Resolve(raw, cfg)
	if err != nil {
		return nil, err
	}
	return New(cred, filestore.OptionsFrom(cfg), env)
}
