// Package credential resolves raw, historically shaped credential material
// into one normalized record per call.
//
// Credentials reach cloudbox from many places: flat form fields saved under
// several names over the years, Azure connection strings, SAS URLs pasted
// whole, and Google service-account key files that may be double encoded.
// Resolve absorbs that variability. It is pure parsing and never touches the
// network.
package credential

import (
	"crypto/rsa"
	"strings"
)

// Provider identifies a storage backend.
type Provider string

const (
	ProviderS3    Provider = "s3"
	ProviderAzure Provider = "azure"
	ProviderGCS   Provider = "gcs"
	ProviderMinIO Provider = "minio"
	ProviderSFTP  Provider = "sftp"
)

func (p Provider) String() string { return string(p) }

// ParseProvider maps a provider tag or one of its aliases to a Provider.
func ParseProvider(tag string) (Provider, bool) {
	switch strings.ToLower(strings.TrimSpace(tag)) {
	case "s3", "aws", "amazon", "aws-s3", "s3-compatible", "wasabi", "r2", "spaces":
		return ProviderS3, true
	case "azure", "azure-blob", "azureblob", "blob", "azure_blob":
		return ProviderAzure, true
	case "gcs", "gcp", "google", "google-cloud-storage", "googlecloud":
		return ProviderGCS, true
	case "minio":
		return ProviderMinIO, true
	case "sftp", "ssh":
		return ProviderSFTP, true
	}
	return "", false
}

// AuthMode is the authentication scheme selected during resolution.
type AuthMode string

const (
	ModeStaticKey      AuthMode = "static-key"
	ModeSharedKey      AuthMode = "shared-key"
	ModeSAS            AuthMode = "sas"
	ModeServiceAccount AuthMode = "service-account"
	ModePassword       AuthMode = "password"
	ModePrivateKey     AuthMode = "private-key"
)

// ServiceAccount is a parsed Google service-account key.
type ServiceAccount struct {
	ClientEmail  string
	PrivateKeyID string
	ProjectID    string
	TokenURI     string

	// Key is the parsed RSA private key.
	Key *rsa.PrivateKey
}

// DefaultTokenURI is Google's OAuth2 token endpoint.
const DefaultTokenURI = "https://oauth2.googleapis.com/token"

// Credential is the normalized credential record. Exactly one Mode is set and
// every field that mode needs is present.
type Credential struct {
	Provider Provider
	Mode     AuthMode

	// static-key (S3, MinIO)
	AccessKey    string
	SecretKey    string
	SessionToken string

	// shared-key and sas (Azure)
	AccountName string
	AccountKey  string
	SASToken    string

	// service-account (GCS)
	ServiceAccount *ServiceAccount

	// password and private-key (SFTP)
	Host       string
	Port       int
	Username   string
	Password   string
	PrivateKey string
	HostKey    string

	Region    string
	Endpoint  string
	Bucket    string
	ProjectID string

	// Insecure selects plain HTTP for MinIO endpoints given without a scheme.
	Insecure bool
}

// WithRegion returns a copy of c signing for region.
func (c *Credential) WithRegion(region string) *Credential {
	cp := *c
	cp.Region = region
	return &cp
}

// WithBucket returns a copy of c scoped to bucket.
func (c *Credential) WithBucket(bucket string) *Credential {
	cp := *c
	cp.Bucket = bucket
	return &cp
}

// Redacted returns a description safe for logs.
func (c *Credential) Redacted() map[string]interface{} {
	out := map[string]interface{}{
		"provider": string(c.Provider),
		"mode":     string(c.Mode),
	}
	if c.Bucket != "" {
		out["bucket"] = c.Bucket
	}
	if c.Region != "" {
		out["region"] = c.Region
	}
	if c.Endpoint != "" {
		out["endpoint"] = c.Endpoint
	}
	switch c.Mode {
	case ModeStaticKey:
		out["access_key"] = mask(c.AccessKey)
	case ModeSharedKey, ModeSAS:
		out["account"] = c.AccountName
	case ModeServiceAccount:
		out["client_email"] = c.ServiceAccount.ClientEmail
	case ModePassword, ModePrivateKey:
		out["user"] = c.Username
		out["host"] = c.Host
	}
	return out
}

func mask(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:4] + strings.Repeat("*", len(s)-4)
}
