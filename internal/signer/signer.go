// Package signer computes provider authentication material.
//
// There are three strategies behind one interface:
//
//   - SigV4: keyed-HMAC chain (date, region, service, request) used by S3 and
//     any S3-compatible endpoint.
//   - SharedKey: single-pass HMAC over a fixed header list used by Azure
//     Blob, plus a pass-through for pre-issued SAS tokens.
//   - JWT: an RS256 service-account assertion exchanged for an OAuth2 bearer
//     token, used by Google Cloud Storage.
//
// Signing is a pure function of the credential, the SigningContext and the
// supplied clock reading. Only the JWT strategy performs I/O, and only for the
// token exchange.
package signer

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/url"
	"time"

	"github.com/koustreak/cloudbox/internal/credential"
	"github.com/koustreak/cloudbox/internal/errs"
	"github.com/koustreak/cloudbox/internal/transport"
)

const (
	// EmptyPayloadHash is the SHA-256 of an empty body.
	EmptyPayloadHash = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

	// UnsignedPayload is the payload hash sentinel for presigned URLs.
	UnsignedPayload = "UNSIGNED-PAYLOAD"

	// MaxPresignExpiry is the longest validity SigV4 and GCS V4 accept.
	MaxPresignExpiry = 7 * 24 * time.Hour
)

// SigningContext describes the request being signed.
type SigningContext struct {
	Method string
	Host   string

	// Path is the unescaped resource path, starting with "/".
	Path  string
	Query url.Values

	// Header holds the headers to sign. Signers add their own date and
	// version headers to the returned AuthMaterial, not to this map.
	Header http.Header

	// PayloadHash is the hex SHA-256 of the body. Empty means EmptyPayloadHash.
	PayloadHash string
}

// AuthMaterial is what a signer adds to a request.
type AuthMaterial struct {
	Header http.Header
	Query  url.Values
}

// Signer produces AuthMaterial for one request.
type Signer interface {
	Sign(ctx context.Context, cred *credential.Credential, sc *SigningContext, now time.Time) (*AuthMaterial, error)
}

// For selects the signer for cred's provider and mode. exec is used only by
// strategies that need a token exchange.
func For(cred *credential.Credential, exec transport.Executor) (Signer, error) {
	switch cred.Provider {
	case credential.ProviderS3, credential.ProviderMinIO:
		return SigV4{Service: "s3"}, nil
	case credential.ProviderAzure:
		switch cred.Mode {
		case credential.ModeSharedKey:
			return SharedKey{}, nil
		case credential.ModeSAS:
			return SAS{}, nil
		}
	case credential.ProviderGCS:
		if cred.Mode == credential.ModeServiceAccount {
			return &JWT{Exec: exec, Scope: StorageScope}, nil
		}
	}
	return nil, errs.Invalid(string(cred.Provider), "no signer for auth mode "+string(cred.Mode))
}

// Apply merges m into header and query, replacing existing values.
func (m *AuthMaterial) Apply(header http.Header, query url.Values) {
	for k, vs := range m.Header {
		header.Del(k)
		for _, v := range vs {
			header.Add(k, v)
		}
	}
	for k, vs := range m.Query {
		query.Del(k)
		for _, v := range vs {
			query.Add(k, v)
		}
	}
}

// HashPayload returns the hex SHA-256 of body.
func HashPayload(body []byte) string {
	if len(body) == 0 {
		return EmptyPayloadHash
	}
	h := sha256.Sum256(body)
	return hex.EncodeToString(h[:])
}

func hmacSHA256(key, data []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}

func sha256Hex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
