package models

import (
	"context"
	"io"
	"strings"
	"time"
)

// EntryKind discriminates directory entries.
type EntryKind int

const (
	// EntryPrefix is a virtual directory, backed only by a blob-name prefix.
	EntryPrefix EntryKind = iota

	// EntryBlob is a file backed by a single blob.
	EntryBlob
)

// DirectoryEntry is one item of a virtual directory listing. A Prefix entry
// carries a name only; a Blob entry additionally has a length, a modification
// time and a lazily opened read stream.
type DirectoryEntry struct {
	Kind         EntryKind
	Name         string
	Length       int64
	LastModified time.Time

	open func(ctx context.Context) (io.ReadCloser, error)
}

// NewPrefixEntry creates a virtual directory entry. The name is the last
// segment of the prefix with the trailing slash stripped.
func NewPrefixEntry(prefix string) DirectoryEntry {
	return DirectoryEntry{
		Kind: EntryPrefix,
		Name: lastSegment(strings.TrimSuffix(prefix, "/")),
	}
}

// NewBlobEntry creates a file entry for a blob.
func NewBlobEntry(blobName string, length int64, lastModified time.Time, open func(ctx context.Context) (io.ReadCloser, error)) DirectoryEntry {
	return DirectoryEntry{
		Kind:         EntryBlob,
		Name:         lastSegment(blobName),
		Length:       length,
		LastModified: lastModified,
		open:         open,
	}
}

// IsDirectory reports whether the entry is a virtual directory.
func (e DirectoryEntry) IsDirectory() bool {
	return e.Kind == EntryPrefix
}

// Open returns the blob content. Opening a Prefix entry fails with
// ErrIsDirectory.
func (e DirectoryEntry) Open(ctx context.Context) (io.ReadCloser, error) {
	if e.Kind != EntryBlob || e.open == nil {
		return nil, ErrIsDirectory
	}
	return e.open(ctx)
}

func lastSegment(name string) string {
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		return name[idx+1:]
	}
	return name
}
