// Package listing turns one page of a provider's flat key listing into a
// folder/file view.
//
// Object stores have no directories. A "folder" is either a common prefix the
// provider reported for a delimiter query, or an intermediate path segment
// implied by a key. Normalize merges both sources and keeps only entries that
// sit exactly one level below the requested prefix.
package listing

import (
	"path"
	"strings"
	"time"
)

// Object is one key from a provider listing page.
type Object struct {
	Key          string
	Size         int64
	LastModified time.Time
	ETag         string
}

// Page is the raw provider response for one page of a prefix query.
// It is built per request and discarded after normalization.
type Page struct {
	Objects []Object

	// CommonPrefixes are the provider's own folder hints.
	CommonPrefixes []string

	// NextToken resumes the listing; empty when there are no more pages.
	NextToken string

	Truncated bool
}

// Folder is a direct child prefix of the listed path.
type Folder struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// File is a direct child object of the listed path.
type File struct {
	Name         string    `json:"name"`
	Path         string    `json:"path"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
	Extension    string    `json:"extension"`
	ETag         string    `json:"etag,omitempty"`
}

// View is the normalized listing returned to callers.
//
// Folder and file order follows the provider, with inferred folders appended.
// Callers that need a stable order must sort.
type View struct {
	Path       string   `json:"path"`
	ParentPath string   `json:"parentPath"`
	Folders    []Folder `json:"folders"`
	Files      []File   `json:"files"`
	Truncated  bool     `json:"truncated"`
	NextToken  string   `json:"nextToken,omitempty"`
}

// Normalize converts page into a View rooted at prefix.
func Normalize(page *Page, prefix string) *View {
	prefix = NormalizePrefix(prefix)
	view := &View{
		Path:       prefix,
		ParentPath: ParentPath(prefix),
		Folders:    []Folder{},
		Files:      []File{},
	}
	if page == nil {
		return view
	}
	view.Truncated = page.Truncated
	view.NextToken = page.NextToken

	seenFolders := make(map[string]bool)
	addFolder := func(segment string) {
		full := prefix + segment + "/"
		if seenFolders[full] {
			return
		}
		seenFolders[full] = true
		view.Folders = append(view.Folders, Folder{Name: segment, Path: full})
	}

	// Provider-reported common prefixes.
	for _, cp := range page.CommonPrefixes {
		if !strings.HasPrefix(cp, prefix) {
			continue
		}
		rest := strings.Trim(cp[len(prefix):], "/")
		if rest == "" {
			continue
		}
		// A provider that reports "a/b/" under "" still means folder "a".
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			rest = rest[:i]
		}
		addFolder(rest)
	}

	// Direct files. Keys ending in "/" are directory markers, never files.
	seenFiles := make(map[string]bool)
	for _, obj := range page.Objects {
		if strings.HasSuffix(obj.Key, "/") || !strings.HasPrefix(obj.Key, prefix) {
			continue
		}
		rest := obj.Key[len(prefix):]
		if rest == "" || strings.Contains(rest, "/") || seenFiles[obj.Key] {
			continue
		}
		seenFiles[obj.Key] = true
		view.Files = append(view.Files, File{
			Name:         rest,
			Path:         obj.Key,
			Size:         obj.Size,
			LastModified: obj.LastModified,
			Extension:    Extension(rest),
			ETag:         obj.ETag,
		})
	}

	// Implicit folders: the first segment below prefix of every deeper key.
	for _, obj := range page.Objects {
		if !strings.HasPrefix(obj.Key, prefix) {
			continue
		}
		rest := obj.Key[len(prefix):]
		i := strings.IndexByte(rest, '/')
		if i <= 0 {
			continue
		}
		addFolder(rest[:i])
	}

	return view
}

// NormalizePrefix strips a leading slash and guarantees a trailing one for
// non-empty prefixes. "/" and "" both mean the root.
func NormalizePrefix(prefix string) string {
	prefix = strings.TrimLeft(prefix, "/")
	if prefix == "" {
		return ""
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix
}

// ParentPath returns the prefix one level up. "a/b/" and "a/b" both yield
// "a/"; a single segment yields the root "".
func ParentPath(p string) string {
	p = strings.Trim(p, "/")
	if p == "" {
		return ""
	}
	i := strings.LastIndexByte(p, '/')
	if i < 0 {
		return ""
	}
	return p[:i+1]
}

// Extension returns the lower-cased file extension without the dot.
func Extension(name string) string {
	ext := path.Ext(name)
	if ext == "" || ext == name {
		return ""
	}
	return strings.ToLower(ext[1:])
}
