package vfs

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/mediastore/blobfs/internal/blob"
	"github.com/mediastore/blobfs/internal/events"
	"github.com/mediastore/blobfs/internal/models"
	"github.com/mediastore/blobfs/internal/paths"
)

// FileSystem is the blob-backed FS implementation.
type FileSystem struct {
	store    blob.Store
	resolver paths.Resolver
	logger   *events.Logger
}

// NewFileSystem creates a file system over a blob store.
func NewFileSystem(store blob.Store, resolver paths.Resolver, logger *events.Logger) *FileSystem {
	return &FileSystem{
		store:    store,
		resolver: resolver,
		logger:   logger.WithField("component", "vfs"),
	}
}

// Store exposes the underlying blob store for callers that need direct
// conditional or ranged access, such as the serving handler.
func (fs *FileSystem) Store() blob.Store { return fs.store }

// Resolver exposes the mount's path resolver.
func (fs *FileSystem) Resolver() paths.Resolver { return fs.resolver }

// list returns a pager over the directory's hierarchical listing.
func (fs *FileSystem) list(path string, recursive bool, pageSize int32) blob.Pager {
	delimiter := "/"
	if recursive {
		delimiter = ""
	}
	return fs.store.List(fs.dirPrefix(path), delimiter, pageSize)
}

// dirPrefix computes the blob-name prefix of a directory: the blob name
// with a trailing slash, or the empty string for the namespace root.
func (fs *FileSystem) dirPrefix(path string) string {
	name := fs.resolver.BlobName(path)
	if name == "" {
		return ""
	}
	return name + "/"
}

// ListEntries walks the full listing of a directory and returns its
// entries: Prefix entries for grouped sub-paths and Blob entries for direct
// children.
func (fs *FileSystem) ListEntries(ctx context.Context, path string, recursive bool) ([]models.DirectoryEntry, error) {
	var entries []models.DirectoryEntry

	pager := fs.list(path, recursive, 0)
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", path, err)
		}
		for _, item := range page {
			entries = append(entries, fs.toEntry(item))
		}
	}
	return entries, nil
}

func (fs *FileSystem) toEntry(item blob.Item) models.DirectoryEntry {
	if item.IsPrefix {
		return models.NewPrefixEntry(item.Name)
	}

	var length int64
	var lastModified time.Time
	if item.Props != nil {
		length = item.Props.ContentLength
		lastModified = item.Props.LastModified
	}

	name := item.Name
	return models.NewBlobEntry(name, length, lastModified, func(ctx context.Context) (io.ReadCloser, error) {
		return fs.store.Download(ctx, name, 0, -1)
	})
}

// GetDirectories lists the virtual sub-directories of a path, as paths
// relative to the request root.
func (fs *FileSystem) GetDirectories(ctx context.Context, path string) ([]string, error) {
	var dirs []string

	pager := fs.list(path, false, 0)
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list directories %s: %w", path, err)
		}
		for _, item := range page {
			if !item.IsPrefix {
				continue
			}
			rel := fs.resolver.RequestPath("/" + strings.TrimSuffix(item.Name, "/"))
			dirs = append(dirs, strings.Trim(rel, "/"))
		}
	}
	return dirs, nil
}

// DirectoryExists reports whether any blob carries the directory's prefix.
// At most one listing page is fetched.
func (fs *FileSystem) DirectoryExists(ctx context.Context, path string) (bool, error) {
	pager := fs.list(path, false, 1)
	if !pager.HasMorePages() {
		return false, nil
	}
	page, err := pager.NextPage(ctx)
	if err != nil {
		return false, fmt.Errorf("check directory %s: %w", path, err)
	}
	return len(page) > 0, nil
}

// DeleteDirectory deletes the blobs under a directory. Non-recursive
// deletes only touch direct children; grouped prefixes are skipped.
func (fs *FileSystem) DeleteDirectory(ctx context.Context, path string, recursive bool) error {
	pager := fs.list(path, recursive, 0)
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("delete directory %s: %w", path, err)
		}
		for _, item := range page {
			if item.IsPrefix {
				continue
			}
			if err := fs.store.Delete(ctx, item.Name); err != nil {
				return fmt.Errorf("delete directory %s: %w", path, err)
			}
		}
	}
	return nil
}

// AddFile uploads content to a path. With overwrite=false the write is an
// atomic create-if-absent: a concurrent writer loses with
// models.ErrAlreadyExists and never silently clobbers.
func (fs *FileSystem) AddFile(ctx context.Context, path string, content io.Reader, overwrite bool) error {
	name, err := fs.blobName(path)
	if err != nil {
		return err
	}

	opts := blob.UploadOptions{
		ContentType: mime.TypeByExtension(filepath.Ext(path)),
		IfAbsent:    !overwrite,
	}
	if err := fs.store.Upload(ctx, name, content, opts); err != nil {
		return err
	}

	fs.logger.WithField("blob", name).Debug("Added file")
	return nil
}

// AddFileFrom copies a blob to a new path within the store. With copy=false
// the operation is a move: the source is deleted only after the server-side
// copy has fully completed, so a failed copy never loses data.
func (fs *FileSystem) AddFileFrom(ctx context.Context, path, sourcePath string, overwrite, copy bool) error {
	dst, err := fs.blobName(path)
	if err != nil {
		return err
	}
	src, err := fs.blobName(sourcePath)
	if err != nil {
		return err
	}

	if !overwrite {
		exists, err := fs.store.Exists(ctx, dst)
		if err != nil {
			return fmt.Errorf("check destination %s: %w", path, err)
		}
		if exists {
			return &models.PathError{Op: "add file", Path: path, Err: models.ErrAlreadyExists}
		}
	}

	if err := fs.store.Copy(ctx, src, dst); err != nil {
		return fmt.Errorf("copy %s to %s: %w", sourcePath, path, err)
	}

	if !copy {
		if err := fs.store.Delete(ctx, src); err != nil {
			return fmt.Errorf("delete source %s: %w", sourcePath, err)
		}
	}
	return nil
}

// GetFiles lists the files directly under a path, as paths relative to the
// request root. The filter supports a trailing wildcard only ("*.jpg");
// "*.*" and the empty string match everything.
func (fs *FileSystem) GetFiles(ctx context.Context, path, filter string) ([]string, error) {
	match := strings.TrimPrefix(filter, "*")
	if filter == "*.*" {
		match = ""
	}

	var files []string
	pager := fs.list(path, false, 0)
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list files %s: %w", path, err)
		}
		for _, item := range page {
			if item.IsPrefix {
				continue
			}
			if match != "" && !strings.Contains(strings.ToLower(item.Name), strings.ToLower(match)) {
				continue
			}
			files = append(files, fs.resolver.RequestPath("/"+item.Name))
		}
	}
	return files, nil
}

// OpenFile opens a blob for reading. Opening an absent blob fails with
// models.ErrNotFound.
func (fs *FileSystem) OpenFile(ctx context.Context, path string) (io.ReadCloser, error) {
	name, err := fs.blobName(path)
	if err != nil {
		return nil, err
	}
	return fs.store.Download(ctx, name, 0, -1)
}

// DeleteFile deletes a blob. Deleting an absent blob is not an error.
func (fs *FileSystem) DeleteFile(ctx context.Context, path string) error {
	name, err := fs.blobName(path)
	if err != nil {
		return err
	}
	return fs.store.Delete(ctx, name)
}

// FileExists reports whether a blob exists at the path.
func (fs *FileSystem) FileExists(ctx context.Context, path string) (bool, error) {
	name, err := fs.blobName(path)
	if err != nil {
		return false, err
	}
	return fs.store.Exists(ctx, name)
}

// GetLastModified returns the blob's last modification time.
func (fs *FileSystem) GetLastModified(ctx context.Context, path string) (time.Time, error) {
	props, err := fs.properties(ctx, path)
	if err != nil {
		return time.Time{}, err
	}
	return props.LastModified, nil
}

// GetCreated returns the blob's creation time.
func (fs *FileSystem) GetCreated(ctx context.Context, path string) (time.Time, error) {
	props, err := fs.properties(ctx, path)
	if err != nil {
		return time.Time{}, err
	}
	return props.Created, nil
}

// GetSize returns the blob's content length.
func (fs *FileSystem) GetSize(ctx context.Context, path string) (int64, error) {
	props, err := fs.properties(ctx, path)
	if err != nil {
		return 0, err
	}
	return props.ContentLength, nil
}

// RelativePath translates a full path or URL to a request-root-relative
// path.
func (fs *FileSystem) RelativePath(path string) string {
	return fs.resolver.RequestPath(path)
}

// FullPath prepends the request root to a relative path.
func (fs *FileSystem) FullPath(path string) string {
	return fs.resolver.FullPath(path)
}

// URL returns the URL path of a file.
func (fs *FileSystem) URL(path string) string {
	return fs.resolver.URL(path)
}

func (fs *FileSystem) properties(ctx context.Context, path string) (blob.Properties, error) {
	name, err := fs.blobName(path)
	if err != nil {
		return blob.Properties{}, err
	}

	props, outcome, err := fs.store.Properties(ctx, name, nil)
	if err != nil {
		return blob.Properties{}, err
	}
	if outcome == blob.OutcomeNotFound {
		return blob.Properties{}, &models.PathError{Op: "stat", Path: path, Err: models.ErrNotFound}
	}
	return props, nil
}

func (fs *FileSystem) blobName(path string) (string, error) {
	name := fs.resolver.BlobName(path)
	if name == "" {
		return "", models.ErrEmptyPath
	}
	return name, nil
}

var _ FS = (*FileSystem)(nil)
