package credential

import (
	"net/url"
	"strings"
)

// parseConnectionString reads a semicolon-delimited key=value string such as
// an Azure storage connection string. Keys are matched case-insensitively
// through the alias table, so "AccountName=" and "accountname=" are the same
// field. Values keep everything after the first '=' verbatim.
func parseConnectionString(s string) fields {
	s = strings.TrimSpace(s)
	if s == "" || !strings.Contains(s, "=") || strings.HasPrefix(s, "{") || isURL(s) {
		return nil
	}
	out := make(fields)
	for _, part := range strings.Split(s, ";") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		canonical, known := aliasIndex[fold(k)]
		v = strings.TrimSpace(v)
		if !known || v == "" {
			continue
		}
		if _, set := out[canonical]; !set {
			out[canonical] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// parseTokenURL extracts endpoint, container and SAS token from the first
// candidate that is a URL carrying a signed query string.
func parseTokenURL(candidates ...string) fields {
	for _, c := range candidates {
		if !isURL(c) {
			continue
		}
		u, err := url.Parse(strings.TrimSpace(c))
		if err != nil || u.Host == "" {
			continue
		}
		if u.Query().Get("sig") == "" {
			continue
		}
		out := fields{
			fieldEndpoint: u.Scheme + "://" + u.Host,
			fieldSASToken: u.RawQuery,
		}
		if seg := strings.SplitN(strings.Trim(u.Path, "/"), "/", 2)[0]; seg != "" {
			out[fieldBucket] = seg
		}
		if acct, ok := accountFromHost(u.Hostname()); ok {
			out[fieldAccountName] = acct
		}
		return out
	}
	return nil
}

// validSAS reports whether token is a signed SAS query string. Both the
// service version and the signature must be present; anything less would
// send an unsigned request.
func validSAS(token string) bool {
	token = strings.TrimPrefix(strings.TrimSpace(token), "?")
	if token == "" || isURL(token) {
		return false
	}
	q, err := url.ParseQuery(token)
	if err != nil {
		return false
	}
	return q.Get("sv") != "" && q.Get("sig") != ""
}

// accountFromHost returns "acct" for "acct.blob.core.windows.net" style hosts.
func accountFromHost(host string) (string, bool) {
	i := strings.Index(host, ".blob.")
	if i <= 0 {
		return "", false
	}
	return host[:i], true
}

func isURL(s string) bool {
	l := strings.ToLower(strings.TrimSpace(s))
	return strings.HasPrefix(l, "https://") || strings.HasPrefix(l, "http://")
}
