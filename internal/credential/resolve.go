package credential

import (
	"encoding/base64"
	"net"
	"strconv"
	"strings"

	"github.com/koustreak/cloudbox/internal/errs"
)

const defaultSFTPPort = 22

// shape is one way of reading credential material out of a raw record.
type shape struct {
	name   string
	fields fields
}

// Resolve builds a normalized Credential from raw credential material and an
// optional raw configuration record. Values in cfg (region, endpoint, bucket,
// provider) override the same values found in raw.
//
// Shapes are tried in a fixed order: explicit fields, connection string,
// URL-embedded SAS token, JSON service-account key. The first shape that
// satisfies an authentication mode wins. When none does, the returned
// *errs.ResolutionError names the fields that were closest to complete.
func Resolve(raw, cfg map[string]any) (*Credential, error) {
	overrides := flatten(cfg)
	base := merge(overrides, flatten(raw))

	provider, err := detectProvider(raw, base)
	if err != nil {
		return nil, err
	}

	var best *errs.ResolutionError
	for _, s := range shapes(raw, base) {
		f := merge(overrides, merge(s.fields, base))
		cred, rerr := build(provider, f)
		if rerr == nil {
			return cred, nil
		}
		if best == nil || worse(best, rerr) {
			best = rerr
		}
	}
	return nil, best
}

func shapes(raw map[string]any, base fields) []shape {
	out := []shape{{name: "fields", fields: base}}
	if cs := parseConnectionString(base[fieldConnectionString]); cs != nil {
		out = append(out, shape{name: "connection-string", fields: cs})
	}
	if u := parseTokenURL(base[fieldSASURL], base[fieldConnectionString], base[fieldSASToken], base[fieldToken], base[fieldEndpoint]); u != nil {
		out = append(out, shape{name: "sas-url", fields: u})
	}
	if key, ok := findServiceKey(raw, base); ok {
		out = append(out, shape{name: "service-account-json", fields: serviceKeyFields(key)})
	}
	return out
}

// worse reports whether candidate is a more useful failure than current.
// Malformed material beats missing material; fewer missing fields beat more.
func worse(current, candidate *errs.ResolutionError) bool {
	if current.Reason != "" {
		return false
	}
	if candidate.Reason != "" {
		return true
	}
	return len(candidate.Missing) < len(current.Missing)
}

func detectProvider(raw map[string]any, base fields) (Provider, error) {
	if tag := base[fieldProvider]; tag != "" {
		p, ok := ParseProvider(tag)
		if !ok {
			return "", errs.Invalid("", "unknown provider "+strconv.Quote(tag))
		}
		return p, nil
	}

	conn := strings.ToLower(base[fieldConnectionString])
	switch {
	case hasServiceKey(raw, base):
		return ProviderGCS, nil
	case base[fieldAccountName] != "" || base[fieldAccountKey] != "",
		strings.Contains(conn, "accountname="),
		strings.Contains(conn, ".blob."),
		strings.Contains(strings.ToLower(base[fieldSASURL]), ".blob."):
		return ProviderAzure, nil
	case base[fieldHost] != "" && base[fieldUsername] != "":
		return ProviderSFTP, nil
	case base[fieldAccessKey] != "":
		return ProviderS3, nil
	}
	return "", errs.Missing("", "provider")
}

func hasServiceKey(raw map[string]any, base fields) bool {
	if base[fieldClientEmail] != "" {
		return true
	}
	_, ok := findServiceKey(raw, base)
	return ok
}

func build(p Provider, f fields) (*Credential, *errs.ResolutionError) {
	var (
		c   *Credential
		err *errs.ResolutionError
	)
	switch p {
	case ProviderS3:
		c, err = buildStaticKey(p, f, false)
	case ProviderMinIO:
		c, err = buildStaticKey(p, f, true)
	case ProviderAzure:
		c, err = buildAzure(f)
	case ProviderGCS:
		c, err = buildGCS(f)
	case ProviderSFTP:
		c, err = buildSFTP(f)
	default:
		return nil, errs.Invalid(string(p), "unsupported provider")
	}
	if err != nil {
		return nil, err
	}
	c.Provider = p
	if c.Region == "" {
		c.Region = f[fieldRegion]
	}
	if c.Bucket == "" {
		c.Bucket = strings.Trim(f[fieldBucket], "/")
	}
	return c, nil
}

func buildStaticKey(p Provider, f fields, needEndpoint bool) (*Credential, *errs.ResolutionError) {
	var missing []string
	if f[fieldAccessKey] == "" {
		missing = append(missing, fieldAccessKey)
	}
	if f[fieldSecretKey] == "" {
		missing = append(missing, fieldSecretKey)
	}
	if needEndpoint && f[fieldEndpoint] == "" {
		missing = append(missing, fieldEndpoint)
	}
	if len(missing) > 0 {
		return nil, errs.Missing(string(p), missing...)
	}

	// A bare "token" on a key pair is an STS session token unless it is a SAS.
	session := f[fieldSessionToken]
	if session == "" && !validSAS(f[fieldToken]) {
		session = f[fieldToken]
	}
	c := &Credential{
		Mode:         ModeStaticKey,
		AccessKey:    f[fieldAccessKey],
		SecretKey:    f[fieldSecretKey],
		SessionToken: session,
		Endpoint:     strings.TrimRight(f[fieldEndpoint], "/"),
	}
	if p == ProviderMinIO {
		c.Insecure = truthy(f[fieldInsecure]) ||
			strings.HasPrefix(strings.ToLower(c.Endpoint), "http://") ||
			(f[fieldUseSSL] != "" && !truthy(f[fieldUseSSL]))
	}
	return c, nil
}

func buildAzure(f fields) (*Credential, *errs.ResolutionError) {
	name := f[fieldAccountName]
	if name == "" {
		name = f[fieldAccessKey]
	}
	key := f[fieldAccountKey]
	if key == "" {
		key = f[fieldSecretKey]
	}
	sas := f[fieldSASToken]
	if sas == "" {
		sas = f[fieldToken]
	}
	sas = strings.TrimPrefix(sas, "?")
	endpoint := azureEndpoint(f, name)

	if name != "" && key != "" {
		if _, err := base64.StdEncoding.DecodeString(key); err == nil {
			return &Credential{
				Mode:        ModeSharedKey,
				AccountName: name,
				AccountKey:  key,
				Endpoint:    endpoint,
			}, nil
		}
	}
	if validSAS(sas) && endpoint != "" {
		return &Credential{
			Mode:        ModeSAS,
			AccountName: name,
			SASToken:    sas,
			Endpoint:    endpoint,
		}, nil
	}

	provider := string(ProviderAzure)
	switch {
	case name != "" && key != "":
		return nil, errs.Invalid(provider, "accountKey is not valid base64")
	case sas != "" && !validSAS(sas):
		return nil, errs.Invalid(provider, "sas token must carry both sv and sig")
	case sas != "":
		return nil, errs.Missing(provider, fieldEndpoint)
	case name != "":
		return nil, errs.Missing(provider, fieldAccountKey)
	case key != "":
		return nil, errs.Missing(provider, fieldAccountName)
	}
	return nil, errs.Missing(provider, fieldAccountName, fieldAccountKey)
}

// azureEndpoint returns the blob service root for the account.
func azureEndpoint(f fields, account string) string {
	if ep := strings.TrimRight(f[fieldEndpoint], "/"); ep != "" {
		if !isURL(ep) {
			ep = "https://" + ep
		}
		return ep
	}
	if account == "" {
		return ""
	}
	proto := strings.ToLower(f[fieldProtocol])
	if proto == "" {
		proto = "https"
	}
	suffix := f[fieldEndpointSuffix]
	if suffix == "" {
		suffix = "core.windows.net"
	}
	return proto + "://" + account + ".blob." + suffix
}

func buildGCS(f fields) (*Credential, *errs.ResolutionError) {
	sa, err := parseServiceAccount(f)
	if err != nil {
		return nil, err
	}
	project := f[fieldProjectID]
	if project == "" {
		project = sa.ProjectID
	}
	return &Credential{
		Mode:           ModeServiceAccount,
		ServiceAccount: sa,
		ProjectID:      project,
		Endpoint:       strings.TrimRight(f[fieldEndpoint], "/"),
	}, nil
}

func buildSFTP(f fields) (*Credential, *errs.ResolutionError) {
	host, port := f[fieldHost], f[fieldPort]
	if h, p, err := net.SplitHostPort(host); err == nil {
		host = h
		if port == "" {
			port = p
		}
	}

	var missing []string
	if host == "" {
		missing = append(missing, fieldHost)
	}
	if f[fieldUsername] == "" {
		missing = append(missing, fieldUsername)
	}
	if f[fieldPassword] == "" && f[fieldPrivateKey] == "" {
		missing = append(missing, fieldPassword+" or "+fieldPrivateKey)
	}
	if len(missing) > 0 {
		return nil, errs.Missing(string(ProviderSFTP), missing...)
	}

	n := defaultSFTPPort
	if port != "" {
		v, err := strconv.Atoi(port)
		if err != nil || v <= 0 || v > 65535 {
			return nil, errs.Invalid(string(ProviderSFTP), "port "+strconv.Quote(port)+" is not a valid TCP port")
		}
		n = v
	}

	c := &Credential{
		Mode:     ModePassword,
		Host:     host,
		Port:     n,
		Username: f[fieldUsername],
		Password: f[fieldPassword],
		HostKey:  f[fieldHostKey],
	}
	if pk := f[fieldPrivateKey]; pk != "" {
		c.Mode = ModePrivateKey
		c.PrivateKey = normalizePEM(pk)
	}
	return c, nil
}
