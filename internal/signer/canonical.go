package signer

import (
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// EscapePath percent-encodes p the way SigV4, Azure and GCS V4 expect the
// canonical URI: every byte outside the unreserved set is encoded except '/'.
// Adapters must put the same string on the wire.
func EscapePath(p string) string {
	if p == "" {
		return "/"
	}
	return uriEncode(p, false)
}

// CanonicalQuery renders q sorted by name then value, each component
// URI-encoded. The result is also valid on the wire.
func CanonicalQuery(q url.Values) string {
	if len(q) == 0 {
		return ""
	}
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		vals := append([]string(nil), q[k]...)
		sort.Strings(vals)
		for _, v := range vals {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(uriEncode(k, true))
			b.WriteByte('=')
			b.WriteString(uriEncode(v, true))
		}
	}
	return b.String()
}

// canonicalHeaders returns the newline-terminated "name:value" block and the
// ';'-joined signed header list for h plus host. Names are lower-cased and
// sorted; values are trimmed with inner whitespace collapsed.
func canonicalHeaders(h http.Header, host string) (block, signed string) {
	values := make(map[string][]string, len(h)+1)
	for k, vs := range h {
		name := strings.ToLower(k)
		values[name] = append(values[name], vs...)
	}
	if host != "" {
		values["host"] = []string{host}
	}

	names := make([]string, 0, len(values))
	for n := range values {
		names = append(names, n)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, n := range names {
		collapsed := make([]string, 0, len(values[n]))
		for _, v := range values[n] {
			collapsed = append(collapsed, strings.Join(strings.Fields(v), " "))
		}
		b.WriteString(n)
		b.WriteByte(':')
		b.WriteString(strings.Join(collapsed, ","))
		b.WriteByte('\n')
	}
	return b.String(), strings.Join(names, ";")
}

func uriEncode(s string, encodeSlash bool) string {
	const hexDigits = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case 'A' <= c && c <= 'Z', 'a' <= c && c <= 'z', '0' <= c && c <= '9',
			c == '-', c == '_', c == '.', c == '~':
			b.WriteByte(c)
		case c == '/' && !encodeSlash:
			b.WriteByte(c)
		default:
			b.WriteByte('%')
			b.WriteByte(hexDigits[c>>4])
			b.WriteByte(hexDigits[c&0x0f])
		}
	}
	return b.String()
}
