package signer

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/koustreak/cloudbox/internal/credential"
	"github.com/koustreak/cloudbox/internal/errs"
)

// AzureVersion is the Blob service REST version sent on every request.
const AzureVersion = "2021-08-06"

// sharedKeyHeaders are the standard headers in string-to-sign order.
var sharedKeyHeaders = []string{
	"Content-Encoding",
	"Content-Language",
	"Content-Length",
	"Content-MD5",
	"Content-Type",
	"Date",
	"If-Modified-Since",
	"If-Match",
	"If-None-Match",
	"If-Unmodified-Since",
	"Range",
}

// SharedKey signs Azure Blob requests with the storage account key.
type SharedKey struct{}

// Sign adds x-ms-date, x-ms-version and a SharedKey Authorization header.
// sc.Path is the blob service path, "/container" or "/container/blob".
func (SharedKey) Sign(_ context.Context, cred *credential.Credential, sc *SigningContext, now time.Time) (*AuthMaterial, error) {
	key, err := base64.StdEncoding.DecodeString(cred.AccountKey)
	if err != nil || cred.AccountName == "" {
		return nil, errs.Invalid(string(cred.Provider), "shared key signing needs accountName and a base64 accountKey")
	}

	h := cloneHeader(sc.Header)
	h.Set("x-ms-date", now.UTC().Format(http.TimeFormat))
	if h.Get("x-ms-version") == "" {
		h.Set("x-ms-version", AzureVersion)
	}

	sts := sharedKeyStringToSign(sc.Method, h, cred.AccountName, sc.Path, sc.Query)
	signature := base64.StdEncoding.EncodeToString(hmacSHA256(key, []byte(sts)))

	out := http.Header{}
	out.Set("x-ms-date", h.Get("x-ms-date"))
	out.Set("x-ms-version", h.Get("x-ms-version"))
	out.Set("Authorization", "SharedKey "+cred.AccountName+":"+signature)
	return &AuthMaterial{Header: out}, nil
}

func sharedKeyStringToSign(method string, h http.Header, account, path string, q url.Values) string {
	parts := make([]string, 0, len(sharedKeyHeaders)+1)
	parts = append(parts, method)
	for _, name := range sharedKeyHeaders {
		v := h.Get(name)
		if name == "Content-Length" && v == "0" {
			v = ""
		}
		parts = append(parts, v)
	}
	return strings.Join(parts, "\n") + "\n" +
		canonicalizedMSHeaders(h) +
		canonicalizedResource(account, path, q)
}

func canonicalizedMSHeaders(h http.Header) string {
	values := map[string]string{}
	for k, vs := range h {
		name := strings.ToLower(k)
		if !strings.HasPrefix(name, "x-ms-") {
			continue
		}
		values[name] = strings.TrimSpace(strings.Join(vs, ","))
	}
	names := make([]string, 0, len(values))
	for n := range values {
		names = append(names, n)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, n := range names {
		b.WriteString(n)
		b.WriteByte(':')
		b.WriteString(values[n])
		b.WriteByte('\n')
	}
	return b.String()
}

func canonicalizedResource(account, path string, q url.Values) string {
	var b strings.Builder
	b.WriteByte('/')
	b.WriteString(account)
	b.WriteString(EscapePath(path))

	params := make(map[string][]string, len(q))
	for k, vs := range q {
		name := strings.ToLower(k)
		params[name] = append(params[name], vs...)
	}
	names := make([]string, 0, len(params))
	for n := range params {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		vals := append([]string(nil), params[n]...)
		sort.Strings(vals)
		b.WriteByte('\n')
		b.WriteString(n)
		b.WriteByte(':')
		b.WriteString(strings.Join(vals, ","))
	}
	return b.String()
}

// SAS authorizes Azure requests with a pre-issued shared access signature.
type SAS struct{}

// Sign returns the SAS token as query parameters. A token without both sv
// and sig is rejected rather than sent unsigned.
func (SAS) Sign(_ context.Context, cred *credential.Credential, _ *SigningContext, now time.Time) (*AuthMaterial, error) {
	q, err := ParseSAS(cred.SASToken)
	if err != nil {
		return nil, err
	}
	h := http.Header{}
	h.Set("x-ms-date", now.UTC().Format(http.TimeFormat))
	h.Set("x-ms-version", AzureVersion)
	return &AuthMaterial{Header: h, Query: q}, nil
}

// ParseSAS parses token and checks that it is signed.
func ParseSAS(token string) (url.Values, error) {
	q, err := url.ParseQuery(strings.TrimPrefix(strings.TrimSpace(token), "?"))
	if err != nil {
		return nil, errs.Invalid(string(credential.ProviderAzure), "sas token is not a query string")
	}
	if q.Get("sv") == "" || q.Get("sig") == "" {
		return nil, errs.Invalid(string(credential.ProviderAzure), "sas token must carry both sv and sig")
	}
	return q, nil
}
