package credential

import (
	"fmt"
	"sort"
	"strings"
)

// Canonical field names. Every raw key is folded onto one of these.
const (
	fieldProvider          = "provider"
	fieldAccessKey         = "accessKey"
	fieldSecretKey         = "secretKey"
	fieldSessionToken      = "sessionToken"
	fieldBucket            = "bucket"
	fieldRegion            = "region"
	fieldEndpoint          = "endpoint"
	fieldAccountName       = "accountName"
	fieldAccountKey        = "accountKey"
	fieldSASToken          = "sasToken"
	fieldToken             = "token"
	fieldSASURL            = "sasURL"
	fieldConnectionString  = "connectionString"
	fieldServiceAccountKey = "serviceAccountKey"
	fieldProjectID         = "projectId"
	fieldClientEmail       = "clientEmail"
	fieldPrivateKey        = "privateKey"
	fieldPrivateKeyID      = "privateKeyId"
	fieldTokenURI          = "tokenUri"
	fieldHost              = "host"
	fieldPort              = "port"
	fieldUsername          = "username"
	fieldPassword          = "password"
	fieldHostKey           = "hostKey"
	fieldUseSSL            = "useSSL"
	fieldInsecure          = "insecure"
	fieldProtocol          = "endpointsProtocol"
	fieldEndpointSuffix    = "endpointSuffix"
)

// aliases lists, per canonical field, the folded raw keys that have been used
// for it. Earlier aliases win when a record carries several.
var aliases = map[string][]string{
	fieldProvider:          {"provider", "storagetype", "providertype", "storageprovider", "kind"},
	fieldAccessKey:         {"accesskey", "accesskeyid", "awsaccesskeyid", "accessid", "rootuser"},
	fieldSecretKey:         {"secretkey", "secretaccesskey", "awssecretaccesskey", "secret", "accesssecret", "rootpassword"},
	fieldSessionToken:      {"sessiontoken", "securitytoken", "awssessiontoken"},
	fieldBucket:            {"bucket", "bucketname", "container", "containername", "defaultbucket", "basepath", "rootdir", "directory"},
	fieldRegion:            {"region", "location", "awsregion", "defaultregion", "regionname"},
	fieldEndpoint:          {"endpoint", "endpointurl", "blobendpoint", "serviceurl", "baseurl", "url"},
	fieldAccountName:       {"accountname", "storageaccount", "storageaccountname", "account", "azureaccount"},
	fieldAccountKey:        {"accountkey", "storageaccountkey", "sharedkey", "azurekey", "primarykey"},
	fieldSASToken:          {"sastoken", "sharedaccesssignature", "sas", "saskey"},
	fieldToken:             {"token"},
	fieldSASURL:            {"sasurl", "sasuri", "containersasurl", "bloburl"},
	fieldConnectionString:  {"connectionstring", "connstring", "connstr", "connection", "raw"},
	fieldServiceAccountKey: {"serviceaccountkey", "serviceaccount", "serviceaccountjson", "credentials", "credentialsjson", "keyfile", "keyjson", "jsonkey", "json", "key", "gcpkey", "googlecredentials"},
	fieldProjectID:         {"projectid", "project", "gcpproject"},
	fieldClientEmail:       {"clientemail"},
	fieldPrivateKey:        {"privatekey", "sshkey", "privatekeypem"},
	fieldPrivateKeyID:      {"privatekeyid"},
	fieldTokenURI:          {"tokenuri"},
	fieldHost:              {"host", "hostname", "server", "address"},
	fieldPort:              {"port"},
	fieldUsername:          {"username", "user", "login"},
	fieldPassword:          {"password", "pass", "pwd"},
	fieldHostKey:           {"hostkey", "knownhost", "hostpublickey"},
	fieldUseSSL:            {"usessl", "secure", "ssl", "tls"},
	fieldInsecure:          {"insecure", "disablessl", "nossl"},
	fieldProtocol:          {"defaultendpointsprotocol", "protocol"},
	fieldEndpointSuffix:    {"endpointsuffix"},
}

// aliasIndex maps a folded key to its canonical field.
var aliasIndex = func() map[string]string {
	idx := make(map[string]string)
	for canonical, names := range aliases {
		for _, n := range names {
			idx[n] = canonical
		}
	}
	return idx
}()

// fields holds canonical field values. Empty values are never stored.
type fields map[string]string

// fold lower-cases k and drops separators so accessKey, access_key and
// ACCESS-KEY compare equal.
func fold(k string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(k) {
		switch r {
		case '_', '-', ' ', '.':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// flatten folds the scalar entries of raw onto canonical fields.
func flatten(raw map[string]any) fields {
	folded := make(map[string]string, len(raw))
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		s, ok := scalar(raw[k])
		if !ok || s == "" {
			continue
		}
		fk := fold(k)
		if _, dup := folded[fk]; !dup {
			folded[fk] = s
		}
	}

	out := make(fields)
	for canonical, names := range aliases {
		for _, n := range names {
			if v := folded[n]; v != "" {
				out[canonical] = v
				break
			}
		}
	}
	return out
}

// scalar renders raw as a trimmed string when it is a scalar value.
func scalar(raw any) (string, bool) {
	switch v := raw.(type) {
	case string:
		return strings.TrimSpace(v), true
	case []byte:
		return strings.TrimSpace(string(v)), true
	case bool:
		return fmt.Sprint(v), true
	case int, int32, int64, uint, uint32, uint64:
		return fmt.Sprint(v), true
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprint(int64(v)), true
		}
		return fmt.Sprint(v), true
	}
	return "", false
}

// merge returns a copy of primary with gaps filled from fallback.
func merge(primary, fallback fields) fields {
	out := make(fields, len(primary)+len(fallback))
	for k, v := range fallback {
		out[k] = v
	}
	for k, v := range primary {
		if v != "" {
			out[k] = v
		}
	}
	return out
}

func truthy(s string) bool {
	switch strings.ToLower(s) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
