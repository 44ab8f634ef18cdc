package credential

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"sort"
	"strings"

	"github.com/koustreak/cloudbox/internal/errs"
)

// maxKeyDepth bounds how many layers of wrapping or string encoding are
// peeled off a service-account key.
const maxKeyDepth = 4

// findServiceKey locates a Google service-account key in raw. The key may be
// raw itself, a value under one of the key aliases, a JSON-encoded string, a
// doubly encoded string, base64 text, or an object wrapping any of these one
// level down.
func findServiceKey(raw map[string]any, base fields) (map[string]any, bool) {
	if looksLikeServiceKey(raw) {
		return raw, true
	}
	for _, k := range sortedKeys(raw) {
		if aliasIndex[fold(k)] != fieldServiceAccountKey && aliasIndex[fold(k)] != fieldConnectionString {
			continue
		}
		if m, ok := decodeServiceKey(raw[k], 0); ok {
			return m, true
		}
	}
	if s := base[fieldConnectionString]; s != "" {
		return decodeServiceKey(s, 0)
	}
	return nil, false
}

func decodeServiceKey(v any, depth int) (map[string]any, bool) {
	if depth > maxKeyDepth {
		return nil, false
	}
	switch t := v.(type) {
	case map[string]any:
		if looksLikeServiceKey(t) {
			return t, true
		}
		for _, k := range sortedKeys(t) {
			if aliasIndex[fold(k)] == fieldServiceAccountKey {
				if m, ok := decodeServiceKey(t[k], depth+1); ok {
					return m, true
				}
			}
		}
	case []byte:
		return decodeServiceKey(string(t), depth+1)
	case string:
		s := strings.TrimSpace(t)
		switch {
		case strings.HasPrefix(s, `"`):
			var inner string
			if json.Unmarshal([]byte(s), &inner) == nil {
				return decodeServiceKey(inner, depth+1)
			}
		case strings.HasPrefix(s, "{"):
			var m map[string]any
			if json.Unmarshal([]byte(s), &m) == nil {
				return decodeServiceKey(m, depth+1)
			}
			// Keys pasted with escaped quotes: {\"type\": ...}
			if strings.Contains(s, `\"`) {
				return decodeServiceKey(strings.ReplaceAll(s, `\"`, `"`), depth+1)
			}
		default:
			if decoded, err := base64.StdEncoding.DecodeString(s); err == nil {
				d := strings.TrimSpace(string(decoded))
				if strings.HasPrefix(d, "{") {
					return decodeServiceKey(d, depth+1)
				}
			}
		}
	}
	return nil, false
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func looksLikeServiceKey(m map[string]any) bool {
	if _, ok := m["private_key"]; ok {
		return true
	}
	if _, ok := m["client_email"]; ok {
		return true
	}
	t, _ := m["type"].(string)
	return t == "service_account"
}

// serviceKeyFields folds a decoded key onto canonical fields.
func serviceKeyFields(m map[string]any) fields {
	out := make(fields)
	set := func(field, key string) {
		if s, ok := scalar(m[key]); ok && s != "" {
			out[field] = s
		}
	}
	set(fieldClientEmail, "client_email")
	set(fieldPrivateKeyID, "private_key_id")
	set(fieldProjectID, "project_id")
	set(fieldTokenURI, "token_uri")
	if s, ok := scalar(m["private_key"]); ok && s != "" {
		out[fieldPrivateKey] = normalizePEM(s)
	}
	return out
}

// normalizePEM turns literal "\n" escapes back into newlines.
func normalizePEM(s string) string {
	if !strings.Contains(s, "\n") && strings.Contains(s, `\n`) {
		s = strings.ReplaceAll(s, `\n`, "\n")
	}
	return strings.TrimSpace(s) + "\n"
}

// parseServiceAccount builds a ServiceAccount from folded fields.
func parseServiceAccount(f fields) (*ServiceAccount, *errs.ResolutionError) {
	var missing []string
	if f[fieldClientEmail] == "" {
		missing = append(missing, "client_email")
	}
	if strings.TrimSpace(f[fieldPrivateKey]) == "" {
		missing = append(missing, "private_key")
	}
	if len(missing) > 0 {
		return nil, errs.Missing(string(ProviderGCS), missing...)
	}

	key, err := ParseRSAPrivateKey(f[fieldPrivateKey])
	if err != nil {
		return nil, errs.Invalid(string(ProviderGCS), err.Error())
	}

	tokenURI := f[fieldTokenURI]
	if tokenURI == "" {
		tokenURI = DefaultTokenURI
	}
	return &ServiceAccount{
		ClientEmail:  f[fieldClientEmail],
		PrivateKeyID: f[fieldPrivateKeyID],
		ProjectID:    f[fieldProjectID],
		TokenURI:     tokenURI,
		Key:          key,
	}, nil
}

// ParseRSAPrivateKey decodes a PEM RSA key in PKCS#8 or PKCS#1 form.
func ParseRSAPrivateKey(pemText string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(normalizePEM(pemText)))
	if block == nil {
		return nil, errInvalidPEM
	}
	if parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		key, ok := parsed.(*rsa.PrivateKey)
		if !ok {
			return nil, errNotRSA
		}
		return key, nil
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, errInvalidPEM
	}
	return key, nil
}

type keyError string

func (e keyError) Error() string { return string(e) }

const (
	errInvalidPEM keyError = "private_key is not a valid PEM encoded RSA key"
	errNotRSA     keyError = "private_key is not an RSA key"
)
