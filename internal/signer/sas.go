package signer

import (
	"encoding/base64"
	"net/url"
	"strings"
	"time"

	"github.com/koustreak/cloudbox/internal/credential"
	"github.com/koustreak/cloudbox/internal/errs"
)

const sasTimeFormat = "2006-01-02T15:04:05Z"

// BlobSAS issues a read-only service SAS for one blob, signed with the
// account key. start is backdated by the caller to absorb clock skew.
func BlobSAS(cred *credential.Credential, container, blob string, start, expiry time.Time) (url.Values, error) {
	key, err := base64.StdEncoding.DecodeString(cred.AccountKey)
	if err != nil || cred.AccountName == "" {
		return nil, errs.Invalid(string(cred.Provider), "signed URLs need accountName and a base64 accountKey")
	}

	q := url.Values{}
	q.Set("sv", AzureVersion)
	q.Set("sr", "b")
	q.Set("sp", "r")
	q.Set("st", start.UTC().Format(sasTimeFormat))
	q.Set("se", expiry.UTC().Format(sasTimeFormat))
	q.Set("spr", "https")

	sts := blobSASStringToSign(q, cred.AccountName, container, blob)
	q.Set("sig", base64.StdEncoding.EncodeToString(hmacSHA256(key, []byte(sts))))
	return q, nil
}

// blobSASStringToSign follows the service SAS layout for versions
// 2020-12-06 and later.
func blobSASStringToSign(q url.Values, account, container, blob string) string {
	resource := "/blob/" + account + "/" + container
	if blob != "" {
		resource += "/" + blob
	}
	return strings.Join([]string{
		q.Get("sp"),
		q.Get("st"),
		q.Get("se"),
		resource,
		q.Get("si"),
		q.Get("sip"),
		q.Get("spr"),
		q.Get("sv"),
		q.Get("sr"),
		q.Get("sst"), // snapshot time
		q.Get("ses"),
		q.Get("rscc"),
		q.Get("rscd"),
		q.Get("rsce"),
		q.Get("rscl"),
		q.Get("rsct"),
	}, "\n")
}
