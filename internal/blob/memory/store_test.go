package memory_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediastore/blobfs/internal/blob"
	"github.com/mediastore/blobfs/internal/blob/memory"
	"github.com/mediastore/blobfs/internal/models"
)

func TestProperties(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	store.Put("media/img.jpg", []byte("hello"), "image/jpeg")

	t.Run("unconditional", func(t *testing.T) {
		props, outcome, err := store.Properties(ctx, "media/img.jpg", nil)
		require.NoError(t, err)
		assert.Equal(t, blob.OutcomeOK, outcome)
		assert.Equal(t, int64(5), props.ContentLength)
		assert.Equal(t, "image/jpeg", props.ContentType)
		assert.NotEmpty(t, props.ETag)
	})

	t.Run("missing blob", func(t *testing.T) {
		_, outcome, err := store.Properties(ctx, "media/nope.jpg", nil)
		require.NoError(t, err)
		assert.Equal(t, blob.OutcomeNotFound, outcome)
	})

	t.Run("if-none-match hit", func(t *testing.T) {
		props, _, err := store.Properties(ctx, "media/img.jpg", nil)
		require.NoError(t, err)

		_, outcome, err := store.Properties(ctx, "media/img.jpg", &blob.Conditions{
			IfNoneMatch: `"` + props.ETag + `"`,
		})
		require.NoError(t, err)
		assert.Equal(t, blob.OutcomeNotModified, outcome)
	})

	t.Run("if-none-match miss", func(t *testing.T) {
		_, outcome, err := store.Properties(ctx, "media/img.jpg", &blob.Conditions{
			IfNoneMatch: `"stale"`,
		})
		require.NoError(t, err)
		assert.Equal(t, blob.OutcomeOK, outcome)
	})

	t.Run("if-match miss fails the precondition", func(t *testing.T) {
		_, outcome, err := store.Properties(ctx, "media/img.jpg", &blob.Conditions{
			IfMatch: `"stale"`,
		})
		require.NoError(t, err)
		assert.Equal(t, blob.OutcomePreconditionFailed, outcome)
	})

	t.Run("if-unmodified-since in the past fails", func(t *testing.T) {
		_, outcome, err := store.Properties(ctx, "media/img.jpg", &blob.Conditions{
			IfUnmodifiedSince: time.Now().Add(-time.Hour),
		})
		require.NoError(t, err)
		assert.Equal(t, blob.OutcomePreconditionFailed, outcome)
	})

	t.Run("if-modified-since current copy", func(t *testing.T) {
		props, _, err := store.Properties(ctx, "media/img.jpg", nil)
		require.NoError(t, err)

		_, outcome, err := store.Properties(ctx, "media/img.jpg", &blob.Conditions{
			IfModifiedSince: props.LastModified,
		})
		require.NoError(t, err)
		assert.Equal(t, blob.OutcomeNotModified, outcome)
	})

	t.Run("failure conditions evaluated before cache conditions", func(t *testing.T) {
		props, _, err := store.Properties(ctx, "media/img.jpg", nil)
		require.NoError(t, err)

		_, outcome, err := store.Properties(ctx, "media/img.jpg", &blob.Conditions{
			IfMatch:     `"stale"`,
			IfNoneMatch: `"` + props.ETag + `"`,
		})
		require.NoError(t, err)
		assert.Equal(t, blob.OutcomePreconditionFailed, outcome)
	})
}

func TestDownload(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	store.Put("media/data.bin", []byte("0123456789"), "application/octet-stream")

	read := func(t *testing.T, offset, length int64) string {
		t.Helper()
		body, err := store.Download(ctx, "media/data.bin", offset, length)
		require.NoError(t, err)
		defer body.Close()

		data, err := io.ReadAll(body)
		require.NoError(t, err)
		return string(data)
	}

	t.Run("full", func(t *testing.T) {
		assert.Equal(t, "0123456789", read(t, 0, -1))
	})

	t.Run("window", func(t *testing.T) {
		assert.Equal(t, "234", read(t, 2, 3))
	})

	t.Run("to the end", func(t *testing.T) {
		assert.Equal(t, "789", read(t, 7, -1))
	})

	t.Run("length past the end is clamped", func(t *testing.T) {
		assert.Equal(t, "89", read(t, 8, 100))
	})

	t.Run("missing blob", func(t *testing.T) {
		_, err := store.Download(ctx, "media/nope.bin", 0, -1)
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("offset past the end", func(t *testing.T) {
		_, err := store.Download(ctx, "media/data.bin", 11, -1)
		assert.ErrorIs(t, err, models.ErrInvalidRange)
	})
}

func TestUploadIfAbsent(t *testing.T) {
	ctx := context.Background()

	t.Run("second create loses", func(t *testing.T) {
		store := memory.New()
		opts := blob.UploadOptions{ContentType: "text/plain", IfAbsent: true}

		require.NoError(t, store.Upload(ctx, "media/a.txt", strings.NewReader("one"), opts))

		err := store.Upload(ctx, "media/a.txt", strings.NewReader("two"), opts)
		assert.ErrorIs(t, err, models.ErrAlreadyExists)

		body, err := store.Download(ctx, "media/a.txt", 0, -1)
		require.NoError(t, err)
		defer body.Close()
		data, err := io.ReadAll(body)
		require.NoError(t, err)
		assert.Equal(t, "one", string(data))
	})

	t.Run("exactly one concurrent create wins", func(t *testing.T) {
		store := memory.New()
		opts := blob.UploadOptions{IfAbsent: true}

		const writers = 16
		var wg sync.WaitGroup
		errs := make([]error, writers)

		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs[i] = store.Upload(ctx, "media/race.txt", strings.NewReader("w"), opts)
			}(i)
		}
		wg.Wait()

		wins := 0
		for _, err := range errs {
			if err == nil {
				wins++
			} else {
				assert.ErrorIs(t, err, models.ErrAlreadyExists)
			}
		}
		assert.Equal(t, 1, wins)
	})

	t.Run("overwrite replaces content and keeps creation time", func(t *testing.T) {
		store := memory.New()
		require.NoError(t, store.Upload(ctx, "media/b.txt", strings.NewReader("one"), blob.UploadOptions{}))

		before, _, err := store.Properties(ctx, "media/b.txt", nil)
		require.NoError(t, err)

		require.NoError(t, store.Upload(ctx, "media/b.txt", strings.NewReader("longer"), blob.UploadOptions{}))

		after, _, err := store.Properties(ctx, "media/b.txt", nil)
		require.NoError(t, err)
		assert.Equal(t, int64(6), after.ContentLength)
		assert.Equal(t, before.Created, after.Created)
	})
}

func TestDeleteAndCopy(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	store.Put("media/src.txt", []byte("payload"), "text/plain")

	t.Run("copy duplicates data and content type", func(t *testing.T) {
		require.NoError(t, store.Copy(ctx, "media/src.txt", "media/dst.txt"))

		props, outcome, err := store.Properties(ctx, "media/dst.txt", nil)
		require.NoError(t, err)
		require.Equal(t, blob.OutcomeOK, outcome)
		assert.Equal(t, int64(7), props.ContentLength)
		assert.Equal(t, "text/plain", props.ContentType)
	})

	t.Run("copy of a missing source fails", func(t *testing.T) {
		err := store.Copy(ctx, "media/nope.txt", "media/dst2.txt")
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		require.NoError(t, store.Delete(ctx, "media/dst.txt"))
		require.NoError(t, store.Delete(ctx, "media/dst.txt"))

		exists, err := store.Exists(ctx, "media/dst.txt")
		require.NoError(t, err)
		assert.False(t, exists)
	})
}

func TestList(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	for _, name := range []string{
		"media/1000/a.jpg",
		"media/1000/b.jpg",
		"media/2000/deep/c.jpg",
		"media/top.txt",
	} {
		store.Put(name, []byte("x"), "")
	}

	collect := func(t *testing.T, prefix, delimiter string, pageSize int32) []blob.Item {
		t.Helper()
		var items []blob.Item
		pager := store.List(prefix, delimiter, pageSize)
		for pager.HasMorePages() {
			page, err := pager.NextPage(ctx)
			require.NoError(t, err)
			items = append(items, page...)
		}
		return items
	}

	t.Run("delimited root groups prefixes", func(t *testing.T) {
		items := collect(t, "media/", "/", 0)
		require.Len(t, items, 3)

		assert.True(t, items[0].IsPrefix)
		assert.Equal(t, "media/1000/", items[0].Name)
		assert.True(t, items[1].IsPrefix)
		assert.Equal(t, "media/2000/", items[1].Name)
		assert.False(t, items[2].IsPrefix)
		assert.Equal(t, "media/top.txt", items[2].Name)
	})

	t.Run("recursive listing is flat", func(t *testing.T) {
		items := collect(t, "media/", "", 0)
		require.Len(t, items, 4)
		for _, item := range items {
			assert.False(t, item.IsPrefix)
		}
	})

	t.Run("pages respect the page size", func(t *testing.T) {
		pager := store.List("media/", "", 2)

		first, err := pager.NextPage(ctx)
		require.NoError(t, err)
		assert.Len(t, first, 2)
		assert.True(t, pager.HasMorePages())

		second, err := pager.NextPage(ctx)
		require.NoError(t, err)
		assert.Len(t, second, 2)
		assert.False(t, pager.HasMorePages())
	})

	t.Run("unmatched prefix yields nothing", func(t *testing.T) {
		assert.Empty(t, collect(t, "other/", "/", 0))
	})
}

func TestFailWith(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	store.Put("media/a.txt", []byte("x"), "")

	boom := errors.New("injected")
	store.FailWith("download", boom)

	_, err := store.Download(ctx, "media/a.txt", 0, -1)
	assert.ErrorIs(t, err, boom)

	store.FailWith("download", nil)
	body, err := store.Download(ctx, "media/a.txt", 0, -1)
	require.NoError(t, err)
	body.Close()
}
