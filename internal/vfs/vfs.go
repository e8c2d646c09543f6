// Package vfs exposes a flat, prefix-delimited blob namespace as a
// hierarchical file system. Directories are virtual: they exist exactly as
// long as at least one blob name carries their prefix.
package vfs

import (
	"context"
	"io"
	"time"
)

// FS is the file-system contract shared by the blob-backed and local-disk
// implementations. All paths are logical paths; implementations translate
// them internally.
type FS interface {
	GetDirectories(ctx context.Context, path string) ([]string, error)
	DirectoryExists(ctx context.Context, path string) (bool, error)

	// DeleteDirectory with recursive=false deletes the direct blob
	// children only and leaves nested prefixes untouched. Unlike a real
	// file system this is not an error; the nested entries simply
	// survive.
	DeleteDirectory(ctx context.Context, path string, recursive bool) error

	AddFile(ctx context.Context, path string, content io.Reader, overwrite bool) error

	// AddFileFrom copies between two locations in the same store. With
	// copy=false the source is deleted after the copy has completed; a
	// failed copy leaves the source untouched.
	AddFileFrom(ctx context.Context, path, sourcePath string, overwrite, copy bool) error

	// GetFiles supports a single trailing-wildcard filter such as
	// "*.jpg"; it is not a glob language.
	GetFiles(ctx context.Context, path, filter string) ([]string, error)

	OpenFile(ctx context.Context, path string) (io.ReadCloser, error)
	DeleteFile(ctx context.Context, path string) error
	FileExists(ctx context.Context, path string) (bool, error)
	GetLastModified(ctx context.Context, path string) (time.Time, error)
	GetCreated(ctx context.Context, path string) (time.Time, error)
	GetSize(ctx context.Context, path string) (int64, error)

	RelativePath(path string) string
	FullPath(path string) string
	URL(path string) string
}
