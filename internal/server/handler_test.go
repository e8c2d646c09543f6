package server_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediastore/blobfs/internal/blob"
	"github.com/mediastore/blobfs/internal/blob/memory"
	"github.com/mediastore/blobfs/internal/config"
	"github.com/mediastore/blobfs/internal/events"
	"github.com/mediastore/blobfs/internal/server"
)

func newTestHandler(t *testing.T, mode server.Mode) (*server.Handler, *memory.Store) {
	t.Helper()

	store := memory.New()
	cfg := config.DefaultConfig()
	cfg.Mounts["media"] = config.Mount{
		Bucket:          "test",
		RequestRootPath: "/media",
	}

	factory := func(ctx context.Context, mount config.Mount) (blob.Store, error) {
		return store, nil
	}

	logger := events.NewTestLogger(io.Discard)
	provider := server.NewProvider(cfg, factory, logger)
	return server.NewHandler("media", mode, provider, logger), store
}

func do(t *testing.T, h http.Handler, method, target string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, target, nil)
	for name, value := range headers {
		req.Header.Set(name, value)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestServeFull(t *testing.T) {
	h, store := newTestHandler(t, server.ModeTerminal)
	store.Put("media/1000/img.jpg", []byte("hello world"), "image/jpeg")

	rec := do(t, h, http.MethodGet, "/media/1000/img.jpg", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hello world", rec.Body.String())
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))
	assert.Equal(t, "11", rec.Header().Get("Content-Length"))
	assert.Equal(t, "bytes", rec.Header().Get("Accept-Ranges"))
	assert.Equal(t, "public, must-revalidate, max-age=604800", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "Accept-Encoding", rec.Header().Get("Vary"))
	assert.NotEmpty(t, rec.Header().Get("Last-Modified"))

	etag := rec.Header().Get("ETag")
	assert.True(t, strings.HasPrefix(etag, `"`) && strings.HasSuffix(etag, `"`), "ETag %q must be quoted", etag)
}

func TestServeSingleRange(t *testing.T) {
	h, store := newTestHandler(t, server.ModeTerminal)
	store.Put("media/data.bin", []byte("0123456789"), "application/octet-stream")

	t.Run("bounded", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/media/data.bin", map[string]string{"Range": "bytes=2-5"})

		assert.Equal(t, http.StatusPartialContent, rec.Code)
		assert.Equal(t, "2345", rec.Body.String())
		assert.Equal(t, "bytes 2-5/10", rec.Header().Get("Content-Range"))
		assert.Equal(t, "4", rec.Header().Get("Content-Length"))
	})

	t.Run("suffix", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/media/data.bin", map[string]string{"Range": "bytes=-3"})

		assert.Equal(t, http.StatusPartialContent, rec.Code)
		assert.Equal(t, "789", rec.Body.String())
		assert.Equal(t, "bytes 7-9/10", rec.Header().Get("Content-Range"))
	})

	t.Run("overlong suffix serves the whole body", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/media/data.bin", map[string]string{"Range": "bytes=-100"})

		assert.Equal(t, http.StatusPartialContent, rec.Code)
		assert.Equal(t, "0123456789", rec.Body.String())
		assert.Equal(t, "bytes 0-9/10", rec.Header().Get("Content-Range"))
	})

	t.Run("malformed range falls back to full content", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/media/data.bin", map[string]string{"Range": "bytes=oops"})

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "0123456789", rec.Body.String())
	})
}

func TestServeMultipartRange(t *testing.T) {
	h, store := newTestHandler(t, server.ModeTerminal)
	store.Put("media/data.bin", []byte("0123456789"), "text/plain")

	rec := do(t, h, http.MethodGet, "/media/data.bin", map[string]string{"Range": "bytes=0-2,4-6"})

	require.Equal(t, http.StatusPartialContent, rec.Code)

	contentType := rec.Header().Get("Content-Type")
	require.True(t, strings.HasPrefix(contentType, "multipart/byteranges; boundary="), contentType)
	boundary := strings.TrimPrefix(contentType, "multipart/byteranges; boundary=")

	want := fmt.Sprintf(
		"--%[1]s\nContent-Type: text/plain\nContent-Range: bytes 0-2/10\n\n012\n"+
			"--%[1]s\nContent-Type: text/plain\nContent-Range: bytes 4-6/10\n\n456\n"+
			"--%[1]s--\n", boundary)
	assert.Equal(t, want, rec.Body.String())
}

func TestUnsatisfiableRange(t *testing.T) {
	h, store := newTestHandler(t, server.ModeTerminal)
	store.Put("media/data.bin", []byte("0123456789"), "text/plain")

	rec := do(t, h, http.MethodGet, "/media/data.bin", map[string]string{"Range": "bytes=50-150"})

	assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, rec.Code)
	assert.Equal(t, "bytes */10", rec.Header().Get("Content-Range"))
	assert.Empty(t, rec.Body.String())

	// A rejected request keeps none of the success headers.
	for _, name := range []string{"Cache-Control", "Last-Modified", "ETag", "Vary", "Content-Type"} {
		assert.Empty(t, rec.Header().Get(name), name)
	}
}

func TestNotModified(t *testing.T) {
	h, store := newTestHandler(t, server.ModeTerminal)
	store.Put("media/img.jpg", []byte("hello"), "image/jpeg")

	first := do(t, h, http.MethodGet, "/media/img.jpg", nil)
	require.Equal(t, http.StatusOK, first.Code)

	t.Run("matching etag", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/media/img.jpg", map[string]string{
			"If-None-Match": first.Header().Get("ETag"),
		})
		assert.Equal(t, http.StatusNotModified, rec.Code)
		assert.Empty(t, rec.Body.String())
	})

	t.Run("unchanged since date", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/media/img.jpg", map[string]string{
			"If-Modified-Since": first.Header().Get("Last-Modified"),
		})
		assert.Equal(t, http.StatusNotModified, rec.Code)
	})

	t.Run("stale etag serves content", func(t *testing.T) {
		rec := do(t, h, http.MethodGet, "/media/img.jpg", map[string]string{
			"If-None-Match": `"stale"`,
		})
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "hello", rec.Body.String())
	})
}

func TestStaleIfRangeDowngradesToFullContent(t *testing.T) {
	h, store := newTestHandler(t, server.ModeTerminal)
	store.Put("media/img.jpg", []byte("hello"), "image/jpeg")

	rec := do(t, h, http.MethodGet, "/media/img.jpg", map[string]string{
		"Range":    "bytes=0-1",
		"If-Range": `"stale"`,
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "hello", rec.Body.String())
	assert.Equal(t, "bytes */5", rec.Header().Get("Content-Range"))
}

func TestCurrentIfRangeServesTheRange(t *testing.T) {
	h, store := newTestHandler(t, server.ModeTerminal)
	store.Put("media/img.jpg", []byte("hello"), "image/jpeg")

	first := do(t, h, http.MethodGet, "/media/img.jpg", nil)
	require.Equal(t, http.StatusOK, first.Code)

	rec := do(t, h, http.MethodGet, "/media/img.jpg", map[string]string{
		"Range":    "bytes=0-1",
		"If-Range": first.Header().Get("ETag"),
	})

	assert.Equal(t, http.StatusPartialContent, rec.Code)
	assert.Equal(t, "he", rec.Body.String())
}

func TestAbsentBlob(t *testing.T) {
	t.Run("terminal mode answers 404", func(t *testing.T) {
		h, _ := newTestHandler(t, server.ModeTerminal)

		rec := do(t, h, http.MethodGet, "/media/nope.jpg", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("fallback mode defers to the next handler", func(t *testing.T) {
		h, _ := newTestHandler(t, server.ModeFallback)
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		})

		rec := do(t, h.Middleware(next), http.MethodGet, "/media/nope.jpg", nil)
		assert.Equal(t, http.StatusTeapot, rec.Code)
	})

	t.Run("fallback without a next handler answers 404", func(t *testing.T) {
		h, _ := newTestHandler(t, server.ModeFallback)

		rec := do(t, h, http.MethodGet, "/media/nope.jpg", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestPathsOutsideTheRootFallThrough(t *testing.T) {
	h, store := newTestHandler(t, server.ModeFallback)
	store.Put("media/img.jpg", []byte("hello"), "image/jpeg")

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	wrapped := h.Middleware(next)

	rec := do(t, wrapped, http.MethodGet, "/css/site.css", nil)
	assert.Equal(t, http.StatusTeapot, rec.Code)

	// A sibling path sharing the root's prefix is not under the root.
	rec = do(t, wrapped, http.MethodGet, "/mediafiles/img.jpg", nil)
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestCanceledRequestIsSilent(t *testing.T) {
	h, store := newTestHandler(t, server.ModeTerminal)
	store.Put("media/img.jpg", []byte("hello"), "image/jpeg")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req := httptest.NewRequest(http.MethodGet, "/media/img.jpg", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	// The client is gone; nothing is written, not even an error status.
	assert.Empty(t, rec.Body.String())
	assert.Empty(t, rec.Header().Get("ETag"))
	assert.Empty(t, rec.Header().Get("Cache-Control"))
}

func TestUnknownMount(t *testing.T) {
	cfg := config.DefaultConfig()
	logger := events.NewTestLogger(io.Discard)
	provider := server.NewProvider(cfg, func(ctx context.Context, mount config.Mount) (blob.Store, error) {
		return memory.New(), nil
	}, logger)

	h := server.NewHandler("missing", server.ModeTerminal, provider, logger)

	rec := do(t, h, http.MethodGet, "/media/img.jpg", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
