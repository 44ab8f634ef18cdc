package signer

import (
	"encoding/hex"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/koustreak/cloudbox/internal/credential"
	"github.com/koustreak/cloudbox/internal/errs"
)

const gcsAlgorithm = "GOOG4-RSA-SHA256"

// GCSSignedURL returns V4 query parameters authorizing method on host+path
// for expires, signed with the service-account key.
func GCSSignedURL(cred *credential.Credential, method, host, path string, expires time.Duration, now time.Time) (url.Values, error) {
	sa := cred.ServiceAccount
	if sa == nil || sa.Key == nil {
		return nil, errs.Missing(string(credential.ProviderGCS), "private_key")
	}
	if err := checkExpiry(string(credential.ProviderGCS), expires); err != nil {
		return nil, err
	}
	now = now.UTC()
	stamp := now.Format(amzDateFormat)
	scope := now.Format(shortDate) + "/auto/storage/goog4_request"

	q := url.Values{}
	q.Set("X-Goog-Algorithm", gcsAlgorithm)
	q.Set("X-Goog-Credential", sa.ClientEmail+"/"+scope)
	q.Set("X-Goog-Date", stamp)
	q.Set("X-Goog-Expires", strconv.Itoa(int(expires/time.Second)))
	q.Set("X-Goog-SignedHeaders", "host")

	sts := gcsStringToSign(stamp, scope, presignCanonical(method, path, q, host))
	sig, err := signRS256(sa.Key, []byte(sts))
	if err != nil {
		return nil, errs.Invalid(string(credential.ProviderGCS), "signing url: "+err.Error())
	}
	q.Set("X-Goog-Signature", hex.EncodeToString(sig))
	return q, nil
}

func gcsStringToSign(stamp, scope, creq string) string {
	return strings.Join([]string{gcsAlgorithm, stamp, scope, sha256Hex([]byte(creq))}, "\n")
}
