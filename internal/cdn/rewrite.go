// Package cdn rewrites published media URLs onto a CDN base URL. Pure
// string work; no knowledge of the blob store.
package cdn

import (
	"fmt"
	"net/url"
	"strings"
)

// Rewriter rewrites relative media URLs for CDN delivery.
type Rewriter struct {
	base            *url.URL
	mediaPath       string
	removeMediaPath bool
}

// NewRewriter creates a rewriter. baseURL is the CDN origin (e.g.
// "https://cdn.example.com"); mediaPath is the local media mount (e.g.
// "/media"); removeMediaPath strips that mount from rewritten URLs.
func NewRewriter(baseURL, mediaPath string, removeMediaPath bool) (*Rewriter, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse cdn url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("cdn url %q must be absolute", baseURL)
	}

	if !strings.HasSuffix(mediaPath, "/") {
		mediaPath += "/"
	}

	return &Rewriter{
		base:            base,
		mediaPath:       mediaPath,
		removeMediaPath: removeMediaPath,
	}, nil
}

// Rewrite maps a site-relative media URL onto the CDN. Non-relative URLs
// are returned unchanged.
func (r *Rewriter) Rewrite(mediaURL string) string {
	if mediaURL == "" || !strings.HasPrefix(mediaURL, "/") {
		return mediaURL
	}

	rest := mediaURL
	if r.removeMediaPath && strings.HasPrefix(strings.ToLower(rest), strings.ToLower(r.mediaPath)) {
		rest = rest[len(r.mediaPath):]
	} else {
		rest = strings.TrimPrefix(rest, "/")
	}

	return strings.TrimSuffix(r.base.String(), "/") + "/" + rest
}
