// Package server turns a blob-backed file system into HTTP responses with
// RFC 7233 range, caching and conditional-request semantics.
package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/mediastore/blobfs/internal/blob"
	"github.com/mediastore/blobfs/internal/events"
	"github.com/mediastore/blobfs/internal/httprange"
	"github.com/mediastore/blobfs/internal/models"
)

// Mode selects what a handler does with requests for absent blobs.
type Mode int

const (
	// ModeFallback passes requests for absent blobs to the next handler
	// in the pipeline; this handler does not own 404 generation.
	ModeFallback Mode = iota

	// ModeTerminal answers 404 directly; used for mounts that own their
	// whole path space.
	ModeTerminal
)

const defaultMaxAge = 7 * 24 * time.Hour

// Handler serves the files of one mount.
type Handler struct {
	name     string
	mode     Mode
	provider *Provider
	logger   *events.Logger
	maxAge   time.Duration
}

// NewHandler creates a handler for a named mount.
func NewHandler(name string, mode Mode, provider *Provider, logger *events.Logger) *Handler {
	return &Handler{
		name:     name,
		mode:     mode,
		provider: provider,
		logger:   logger.WithField("mount", name),
		maxAge:   defaultMaxAge,
	}
}

// Middleware wraps next: requests under the mount's root are served from
// the blob store, everything else (and, in fallback mode, absent blobs)
// falls through to next.
func (h *Handler) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.serve(w, r, next)
	})
}

// ServeHTTP serves the mount terminally, answering 404 for anything the
// store does not hold.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, nil)
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request, next http.Handler) {
	ctx := r.Context()

	fs, err := h.provider.FileSystem(h.name)
	if err != nil {
		h.logger.WithError(err).Error("No file system for mount")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resolver := fs.Resolver()
	if !resolver.IsUnderRoot(r.URL.Path) {
		h.passThrough(w, r, next)
		return
	}

	store := fs.Store()
	blobName := resolver.BlobName(r.URL.Path)
	cond := httprange.Conditional(r.Header)

	props, outcome, err := store.Properties(ctx, blobName, cond)
	if err != nil {
		if models.IsCanceled(err) {
			return
		}
		h.logger.WithError(err).WithField("blob", blobName).Error("Metadata fetch failed")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	ignoreRange := false

	switch outcome {
	case blob.OutcomeNotFound:
		h.passThrough(w, r, next)
		return

	case blob.OutcomeNotModified:
		// The client's cached copy is current.
		w.WriteHeader(http.StatusNotModified)
		return

	case blob.OutcomePreconditionFailed:
		// The range precondition is stale: refetch unconditionally and
		// downgrade to the full-content path with the new length.
		props, outcome, err = store.Properties(ctx, blobName, nil)
		if err != nil || outcome != blob.OutcomeOK {
			if models.IsCanceled(err) {
				return
			}
			h.passThrough(w, r, next)
			return
		}
		ignoreRange = true
		w.Header().Set("Content-Range", httprange.UnsatisfiableContentRange(props.ContentLength))
	}

	headers := w.Header()
	headers.Set("Cache-Control", fmt.Sprintf("public, must-revalidate, max-age=%d", int(h.maxAge.Seconds())))
	headers.Set("Last-Modified", props.LastModified.UTC().Format(http.TimeFormat))
	headers.Set("ETag", `"`+props.ETag+`"`)
	headers.Set("Vary", "Accept-Encoding")

	if !ignoreRange {
		if ranges, ok := httprange.Parse(r.Header.Get("Range")); ok {
			h.serveRanges(ctx, w, store, blobName, props, ranges)
			return
		}
	}
	h.serveFull(ctx, w, store, blobName, props)
}

func (h *Handler) passThrough(w http.ResponseWriter, r *http.Request, next http.Handler) {
	if h.mode == ModeFallback && next != nil {
		next.ServeHTTP(w, r)
		return
	}
	http.NotFound(w, r)
}

func (h *Handler) serveRanges(ctx context.Context, w http.ResponseWriter, store blob.Store, blobName string, props blob.Properties, ranges []httprange.ByteRange) {
	headers := w.Header()

	if !httprange.Validate(ranges, props.ContentLength) {
		// The whole request is rejected; nothing written so far survives.
		for _, name := range []string{"Cache-Control", "Last-Modified", "ETag", "Vary", "Content-Type"} {
			headers.Del(name)
		}
		headers.Set("Content-Range", httprange.UnsatisfiableContentRange(props.ContentLength))
		w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
		return
	}

	if len(ranges) == 1 {
		resolved := httprange.Resolve(ranges[0], props.ContentLength)
		headers.Set("Content-Type", props.ContentType)
		headers.Set("Content-Range", resolved.ContentRange())
		headers.Set("Content-Length", fmt.Sprintf("%d", resolved.Length()))
		w.WriteHeader(http.StatusPartialContent)

		h.copyRange(ctx, w, store, blobName, resolved.From, resolved.Length())
		return
	}

	boundary := uuid.NewString()
	headers.Set("Content-Type", "multipart/byteranges; boundary="+boundary)
	w.WriteHeader(http.StatusPartialContent)

	for _, r := range ranges {
		resolved := httprange.Resolve(r, props.ContentLength)

		fmt.Fprintf(w, "--%s\n", boundary)
		fmt.Fprintf(w, "Content-Type: %s\n", props.ContentType)
		fmt.Fprintf(w, "Content-Range: %s\n\n", resolved.ContentRange())

		h.copyRange(ctx, w, store, blobName, resolved.From, resolved.Length())
		fmt.Fprint(w, "\n")
	}
	fmt.Fprintf(w, "--%s--\n", boundary)
}

func (h *Handler) serveFull(ctx context.Context, w http.ResponseWriter, store blob.Store, blobName string, props blob.Properties) {
	headers := w.Header()
	headers.Set("Content-Type", props.ContentType)
	headers.Set("Content-Length", fmt.Sprintf("%d", props.ContentLength))
	headers.Set("Accept-Ranges", "bytes")
	w.WriteHeader(http.StatusOK)

	h.copyRange(ctx, w, store, blobName, 0, props.ContentLength)
}

// copyRange streams length bytes from the blob into the response. A client
// going away mid-stream is swallowed; there is nothing useful to do with a
// broken connection.
func (h *Handler) copyRange(ctx context.Context, w io.Writer, store blob.Store, blobName string, offset, length int64) {
	if length == 0 {
		return
	}

	body, err := store.Download(ctx, blobName, offset, length)
	if err != nil {
		if !models.IsCanceled(err) {
			h.logger.WithError(err).WithField("blob", blobName).Warn("Range download failed")
		}
		return
	}
	defer body.Close()

	if _, err := io.Copy(w, body); err != nil && !models.IsCanceled(err) {
		h.logger.WithError(err).WithField("blob", blobName).Debug("Response write interrupted")
	}
}
