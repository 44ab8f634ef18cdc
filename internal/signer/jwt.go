package signer

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/koustreak/cloudbox/internal/credential"
	"github.com/koustreak/cloudbox/internal/errs"
	"github.com/koustreak/cloudbox/internal/transport"
)

const (
	// StorageScope grants read and write on buckets the account can reach.
	StorageScope = "https://www.googleapis.com/auth/devstorage.full_control"

	jwtBearerGrant = "urn:ietf:params:oauth:grant-type:jwt-bearer"
	assertionTTL   = time.Hour
)

// JWT authenticates with a bearer token obtained by exchanging a signed
// service-account assertion. A fresh token is requested on every Sign.
type JWT struct {
	Exec  transport.Executor
	Scope string
}

type jwtHeader struct {
	Alg string `json:"alg"`
	Typ string `json:"typ"`
	Kid string `json:"kid,omitempty"`
}

type jwtClaims struct {
	Iss   string `json:"iss"`
	Scope string `json:"scope"`
	Aud   string `json:"aud"`
	Exp   int64  `json:"exp"`
	Iat   int64  `json:"iat"`
}

type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	TokenType        string `json:"token_type"`
	ExpiresIn        int    `json:"expires_in"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// Sign exchanges an assertion for a token and returns the Authorization
// header carrying it.
func (j *JWT) Sign(ctx context.Context, cred *credential.Credential, _ *SigningContext, now time.Time) (*AuthMaterial, error) {
	token, err := j.Token(ctx, cred, now)
	if err != nil {
		return nil, err
	}
	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)
	return &AuthMaterial{Header: h}, nil
}

// Token performs the OAuth2 JWT-bearer exchange.
func (j *JWT) Token(ctx context.Context, cred *credential.Credential, now time.Time) (string, error) {
	sa := cred.ServiceAccount
	if sa == nil || sa.Key == nil {
		return "", errs.Missing(string(credential.ProviderGCS), "private_key")
	}
	if j.Exec == nil {
		return "", errs.Invalid(string(credential.ProviderGCS), "no executor for token exchange")
	}
	scope := j.Scope
	if scope == "" {
		scope = StorageScope
	}

	assertion, err := Assertion(sa, scope, now)
	if err != nil {
		return "", err
	}
	form := url.Values{}
	form.Set("grant_type", jwtBearerGrant)
	form.Set("assertion", assertion)

	header := http.Header{}
	header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := j.Exec.Execute(ctx, &transport.Request{
		Provider: string(credential.ProviderGCS),
		Op:       "TokenExchange",
		Method:   http.MethodPost,
		URL:      tokenURI(sa),
		Header:   header,
		Body:     []byte(form.Encode()),
	})
	if err != nil {
		return "", err
	}

	var tr tokenResponse
	if err := json.Unmarshal(resp.Body, &tr); err != nil || tr.AccessToken == "" {
		msg := tr.ErrorDescription
		if msg == "" {
			msg = "token endpoint returned no access_token"
		}
		return "", &errs.ProviderError{
			Kind:     errs.KindAuthentication,
			Provider: string(credential.ProviderGCS),
			Op:       "TokenExchange",
			Code:     tr.Error,
			Message:  msg,
			Status:   resp.Status,
		}
	}
	return tr.AccessToken, nil
}

// Assertion builds the RS256-signed JWT for sa.
func Assertion(sa *credential.ServiceAccount, scope string, now time.Time) (string, error) {
	header, err := json.Marshal(jwtHeader{Alg: "RS256", Typ: "JWT", Kid: sa.PrivateKeyID})
	if err != nil {
		return "", err
	}
	claims, err := json.Marshal(jwtClaims{
		Iss:   sa.ClientEmail,
		Scope: scope,
		Aud:   tokenURI(sa),
		Exp:   now.Add(assertionTTL).Unix(),
		Iat:   now.Unix(),
	})
	if err != nil {
		return "", err
	}

	enc := base64.RawURLEncoding
	unsigned := enc.EncodeToString(header) + "." + enc.EncodeToString(claims)
	sig, err := signRS256(sa.Key, []byte(unsigned))
	if err != nil {
		return "", errs.Invalid(string(credential.ProviderGCS), "signing assertion: "+err.Error())
	}
	return unsigned + "." + enc.EncodeToString(sig), nil
}

func signRS256(key *rsa.PrivateKey, data []byte) ([]byte, error) {
	digest := sha256.Sum256(data)
	return rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
}

func tokenURI(sa *credential.ServiceAccount) string {
	if sa.TokenURI == "" {
		return credential.DefaultTokenURI
	}
	return sa.TokenURI
}
