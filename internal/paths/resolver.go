// Package paths converts between the three path spaces of a blob-backed
// file system: the request/URL path space (what HTTP clients and callers
// use), the full path space (request root included, no leading slash) and
// the flat blob-name space of the remote store.
package paths

import "strings"

// Resolver maps logical paths onto blob names for one mount. The zero value
// is not usable; construct with NewResolver.
//
// Roots are stored without leading or trailing slashes; the logical root is
// the empty string.
type Resolver struct {
	requestRoot   string
	containerRoot string
}

// NewResolver creates a resolver for a mount. requestRoot is the externally
// visible mount point (e.g. "/media"). containerRoot is the prefix under
// which the mount's blobs live in the store; when empty it defaults to the
// request root.
func NewResolver(requestRoot, containerRoot string) Resolver {
	req := trim(normalize(requestRoot))
	cont := trim(normalize(containerRoot))
	if containerRoot == "" {
		cont = req
	}
	return Resolver{requestRoot: req, containerRoot: cont}
}

// RequestRoot returns the mount point with a leading slash (e.g. "/media").
func (r Resolver) RequestRoot() string {
	return "/" + r.requestRoot
}

// BlobName translates a request path, full path or blob name into the blob
// name for the store. The translation is idempotent: applying it to its own
// result yields the same name.
func (r Resolver) BlobName(path string) string {
	p := trim(normalize(path))

	// Already fully qualified with the container root.
	if r.containerRoot != "" && startsWithSegment(p, r.containerRoot) {
		return p
	}

	if r.requestRoot != "" && startsWithSegment(p, r.requestRoot) {
		p = trim(p[len(r.requestRoot):])
	}

	if r.containerRoot == "" {
		return p
	}
	if p == "" {
		return r.containerRoot
	}
	return r.containerRoot + "/" + p
}

// RequestPath translates a full path, URL or blob name into a path relative
// to the request root (e.g. "/media/1234/img.jpg" to "1234/img.jpg").
// Paths outside the request root are returned unchanged apart from
// separator normalization.
func (r Resolver) RequestPath(fullPathOrURL string) string {
	p := normalize(fullPathOrURL)
	t := strings.TrimPrefix(p, "/")

	if r.requestRoot != "" && startsWithSegment(t, r.requestRoot) {
		return strings.TrimPrefix(t[len(r.requestRoot):], "/")
	}
	return p
}

// FullPath prepends the request root to a relative path. Paths already under
// the request root pass through. The result has no leading or trailing
// slash.
func (r Resolver) FullPath(path string) string {
	p := trim(normalize(path))

	if r.requestRoot == "" || startsWithSegment(p, r.requestRoot) {
		return p
	}
	if p == "" {
		return r.requestRoot
	}
	return r.requestRoot + "/" + p
}

// URL returns the absolute URL path for a relative path, always rooted at
// the request root.
func (r Resolver) URL(path string) string {
	return "/" + r.requestRoot + "/" + trim(normalize(path))
}

// IsUnderRoot reports whether a request path falls under this mount.
func (r Resolver) IsUnderRoot(requestPath string) bool {
	return startsWithSegment(strings.TrimPrefix(normalize(requestPath), "/"), r.requestRoot)
}

// normalize treats backslashes as URL separators regardless of platform.
func normalize(path string) string {
	return strings.ReplaceAll(path, `\`, "/")
}

func trim(path string) string {
	return strings.Trim(path, "/")
}

// startsWithSegment reports whether path starts with root on a segment
// boundary: "media/x" starts with "media" but "mediafiles/x" does not.
func startsWithSegment(path, root string) bool {
	if root == "" {
		return true
	}
	return path == root || strings.HasPrefix(path, root+"/")
}
