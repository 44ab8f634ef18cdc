package signer

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/koustreak/cloudbox/internal/credential"
	"github.com/koustreak/cloudbox/internal/errs"
)

const (
	sigV4Algorithm = "AWS4-HMAC-SHA256"
	amzDateFormat  = "20060102T150405Z"
	shortDate      = "20060102"

	// DefaultRegion is signed when the credential names none.
	DefaultRegion = "us-east-1"
)

// SigV4 signs requests with AWS Signature Version 4.
type SigV4 struct {
	Service string
}

// Sign adds x-amz-date, x-amz-content-sha256, the optional security token
// and the Authorization header. Every header in sc.Header is signed along
// with host.
func (s SigV4) Sign(_ context.Context, cred *credential.Credential, sc *SigningContext, now time.Time) (*AuthMaterial, error) {
	if cred.AccessKey == "" || cred.SecretKey == "" {
		return nil, errs.Missing(string(cred.Provider), "accessKey", "secretKey")
	}
	now = now.UTC()
	amzDate := now.Format(amzDateFormat)
	payload := sc.PayloadHash
	if payload == "" {
		payload = EmptyPayloadHash
	}

	add := http.Header{}
	add.Set("X-Amz-Date", amzDate)
	add.Set("X-Amz-Content-Sha256", payload)
	if cred.SessionToken != "" {
		add.Set("X-Amz-Security-Token", cred.SessionToken)
	}

	signedHeaders := cloneHeader(sc.Header)
	for k, vs := range add {
		signedHeaders[k] = vs
	}
	block, signed := canonicalHeaders(signedHeaders, sc.Host)

	creq := strings.Join([]string{
		sc.Method,
		EscapePath(sc.Path),
		CanonicalQuery(sc.Query),
		block,
		signed,
		payload,
	}, "\n")

	scope := s.scope(now, cred.Region)
	signature := s.signature(cred.SecretKey, now, cred.Region, amzDate, scope, creq)

	add.Set("Authorization", fmt.Sprintf("%s Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		sigV4Algorithm, cred.AccessKey, scope, signed, signature))
	return &AuthMaterial{Header: add}, nil
}

// Presign returns query parameters that authorize method on host+path for
// expires. Only the host header is signed and the payload is unsigned.
func (s SigV4) Presign(cred *credential.Credential, method, host, path string, query url.Values, expires time.Duration, now time.Time) (url.Values, error) {
	if cred.AccessKey == "" || cred.SecretKey == "" {
		return nil, errs.Missing(string(cred.Provider), "accessKey", "secretKey")
	}
	if err := checkExpiry(string(cred.Provider), expires); err != nil {
		return nil, err
	}
	now = now.UTC()
	amzDate := now.Format(amzDateFormat)
	scope := s.scope(now, cred.Region)

	q := cloneValues(query)
	q.Set("X-Amz-Algorithm", sigV4Algorithm)
	q.Set("X-Amz-Credential", cred.AccessKey+"/"+scope)
	q.Set("X-Amz-Date", amzDate)
	q.Set("X-Amz-Expires", strconv.Itoa(int(expires/time.Second)))
	q.Set("X-Amz-SignedHeaders", "host")
	if cred.SessionToken != "" {
		q.Set("X-Amz-Security-Token", cred.SessionToken)
	}

	creq := presignCanonical(method, path, q, host)
	q.Set("X-Amz-Signature", s.signature(cred.SecretKey, now, cred.Region, amzDate, scope, creq))
	return q, nil
}

func (s SigV4) service() string {
	if s.Service == "" {
		return "s3"
	}
	return s.Service
}

func (s SigV4) scope(now time.Time, region string) string {
	return strings.Join([]string{now.Format(shortDate), regionOrDefault(region), s.service(), "aws4_request"}, "/")
}

func (s SigV4) signature(secret string, now time.Time, region, amzDate, scope, creq string) string {
	sts := strings.Join([]string{sigV4Algorithm, amzDate, scope, sha256Hex([]byte(creq))}, "\n")
	kDate := hmacSHA256([]byte("AWS4"+secret), []byte(now.Format(shortDate)))
	kRegion := hmacSHA256(kDate, []byte(regionOrDefault(region)))
	kService := hmacSHA256(kRegion, []byte(s.service()))
	kSigning := hmacSHA256(kService, []byte("aws4_request"))
	return hex.EncodeToString(hmacSHA256(kSigning, []byte(sts)))
}

// presignCanonical is the canonical request shared by SigV4 and GCS V4
// query-string signing.
func presignCanonical(method, path string, q url.Values, host string) string {
	return strings.Join([]string{
		method,
		EscapePath(path),
		CanonicalQuery(q),
		"host:" + host + "\n",
		"host",
		UnsignedPayload,
	}, "\n")
}

func checkExpiry(provider string, expires time.Duration) error {
	if expires < time.Second || expires > MaxPresignExpiry {
		return &errs.ProviderError{
			Kind:     errs.KindMalformedRequest,
			Provider: provider,
			Op:       "GetSignedURL",
			Message:  "ttl must be between 1s and 7 days, got " + expires.String(),
		}
	}
	return nil
}

func regionOrDefault(region string) string {
	if region == "" {
		return DefaultRegion
	}
	return region
}

func cloneHeader(h http.Header) http.Header {
	if h == nil {
		return http.Header{}
	}
	return h.Clone()
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vs := range v {
		out[k] = append([]string(nil), vs...)
	}
	return out
}
