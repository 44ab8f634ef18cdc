// Package xmltag extracts element content from provider XML bodies.
//
// S3 and Azure return small, flat documents (listings, faults) where the only
// structure that matters is "the text inside <Tag>" and "every <Tag> block in
// order". Scanning by index handles both without building a tree and
// tolerates repeated sibling blocks such as many <Contents> or <Blob>.
package xmltag

import (
	"bytes"
	"html"
	"strings"
)

// All returns the inner content of every <tag> element in body, in document
// order. Self-closing elements yield an empty slice.
func All(body []byte, tag string) [][]byte {
	var out [][]byte
	rest := body
	for {
		inner, next, ok := scan(rest, tag)
		if !ok {
			return out
		}
		out = append(out, inner)
		rest = rest[next:]
	}
}

// First returns the inner content of the first <tag> element in body.
func First(body []byte, tag string) ([]byte, bool) {
	inner, _, ok := scan(body, tag)
	return inner, ok
}

// Text returns the unescaped, trimmed text of the first <tag> element, or ""
// when there is none.
func Text(body []byte, tag string) string {
	inner, ok := First(body, tag)
	if !ok {
		return ""
	}
	return Unescape(inner)
}

// Texts returns the text of every <tag> element.
func Texts(body []byte, tag string) []string {
	blocks := All(body, tag)
	out := make([]string, 0, len(blocks))
	for _, b := range blocks {
		out = append(out, Unescape(b))
	}
	return out
}

// Raw returns the unescaped text of the first <tag> element without trimming
// surrounding whitespace. Object keys and blob names may legally start or end
// with spaces.
func Raw(body []byte, tag string) string {
	inner, ok := First(body, tag)
	if !ok {
		return ""
	}
	return decode(string(inner))
}

// Raws returns the untrimmed text of every <tag> element.
func Raws(body []byte, tag string) []string {
	blocks := All(body, tag)
	out := make([]string, 0, len(blocks))
	for _, b := range blocks {
		out = append(out, decode(string(b)))
	}
	return out
}

// Has reports whether body contains a <tag> element.
func Has(body []byte, tag string) bool {
	_, _, ok := scan(body, tag)
	return ok
}

// Unescape decodes entity references and CDATA sections and trims whitespace.
func Unescape(b []byte) string {
	return decode(strings.TrimSpace(string(b)))
}

func decode(s string) string {
	if strings.HasPrefix(s, "<![CDATA[") && strings.HasSuffix(s, "]]>") {
		return s[len("<![CDATA[") : len(s)-len("]]>")]
	}
	if strings.IndexByte(s, '&') < 0 {
		return s
	}
	return html.UnescapeString(s)
}

// LooksLikeXML reports whether body starts with markup after whitespace and
// an optional byte order mark.
func LooksLikeXML(body []byte) bool {
	trimmed := bytes.TrimSpace(bytes.TrimPrefix(body, bom))
	return len(trimmed) > 0 && trimmed[0] == '<'
}

var bom = []byte{0xEF, 0xBB, 0xBF}

// scan finds the first <tag ...>inner</tag> in body. It returns the inner
// bytes and the offset just past the element.
func scan(body []byte, tag string) (inner []byte, next int, ok bool) {
	open := []byte("<" + tag)
	pos := 0
	for {
		i := bytes.Index(body[pos:], open)
		if i < 0 {
			return nil, 0, false
		}
		start := pos + i
		after := start + len(open)
		if after >= len(body) {
			return nil, 0, false
		}
		// Reject longer names sharing the prefix (<Blob vs <BlobPrefix).
		switch c := body[after]; {
		case c == '>' || c == '/' || c == ' ' || c == '\t' || c == '\n' || c == '\r':
		default:
			pos = after
			continue
		}

		gt := bytes.IndexByte(body[after:], '>')
		if gt < 0 {
			return nil, 0, false
		}
		openEnd := after + gt
		if body[openEnd-1] == '/' {
			return []byte{}, openEnd + 1, true
		}

		closeTag := []byte("</" + tag + ">")
		j := bytes.Index(body[openEnd+1:], closeTag)
		if j < 0 {
			return nil, 0, false
		}
		contentStart := openEnd + 1
		contentEnd := contentStart + j
		return body[contentStart:contentEnd], contentEnd + len(closeTag), true
	}
}
