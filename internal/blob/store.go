// Package blob defines the contract this system expects from a remote
// object store. Drivers translate store-specific failures into the Outcome
// variant and the sentinel errors in internal/models; nothing above this
// package sees a driver error type.
package blob

import (
	"context"
	"io"
	"time"
)

// Outcome classifies the result of a conditional metadata fetch. The
// variants are mutually exclusive.
type Outcome int

const (
	// OutcomeOK means the blob exists and any preconditions were met.
	OutcomeOK Outcome = iota

	// OutcomeNotFound means no blob exists under the name.
	OutcomeNotFound

	// OutcomeNotModified means an If-None-Match or If-Modified-Since
	// precondition was satisfied by the current blob.
	OutcomeNotModified

	// OutcomePreconditionFailed means an If-Match or If-Unmodified-Since
	// precondition was not met.
	OutcomePreconditionFailed
)

// Properties is the metadata of a single blob. ETag is stored unquoted.
type Properties struct {
	ContentLength int64
	ContentType   string
	ETag          string
	LastModified  time.Time
	Created       time.Time
	Metadata      map[string]string
}

// Conditions carries the preconditions of a metadata fetch. A nil
// *Conditions means unconditional.
type Conditions struct {
	IfMatch           string
	IfNoneMatch       string
	IfModifiedSince   time.Time
	IfUnmodifiedSince time.Time
}

// IsRangeConditional reports whether the conditions came from a range
// revalidation (If-Range / If-Unmodified-Since) rather than a cache
// revalidation. A failed range condition downgrades to full content; a
// satisfied cache condition terminates with 304.
func (c *Conditions) IsRangeConditional() bool {
	return c != nil && (c.IfMatch != "" || !c.IfUnmodifiedSince.IsZero())
}

// Item is one element of a hierarchical listing: either a grouped prefix
// (virtual directory, Name keeps its trailing slash) or a blob with its
// listing-time properties.
type Item struct {
	IsPrefix bool
	Name     string
	Props    *Properties
}

// Pager iterates the pages of a hierarchical listing. It is forward-only
// and not restartable; a page is fetched only when NextPage is called.
type Pager interface {
	HasMorePages() bool
	NextPage(ctx context.Context) ([]Item, error)
}

// UploadOptions controls a blob upload. IfAbsent requests an atomic
// create-if-absent write (If-None-Match: *); the upload fails with
// models.ErrAlreadyExists when a blob is already present.
type UploadOptions struct {
	ContentType string
	IfAbsent    bool
}

// Store is the remote object-store collaborator. Names are flat strings
// with "/"-separated segments and no leading slash.
type Store interface {
	// Properties fetches blob metadata, evaluating cond when non-nil.
	// A non-OK outcome is not an error; err is reserved for transport
	// failures.
	Properties(ctx context.Context, name string, cond *Conditions) (Properties, Outcome, error)

	// Download streams length bytes starting at offset. A negative length
	// means "to the end of the blob". Returns models.ErrNotFound when the
	// blob is absent.
	Download(ctx context.Context, name string, offset, length int64) (io.ReadCloser, error)

	// Upload writes a blob from r.
	Upload(ctx context.Context, name string, r io.Reader, opts UploadOptions) error

	// Delete removes a blob if it exists. Deleting an absent blob is not
	// an error.
	Delete(ctx context.Context, name string) error

	// Exists reports whether a blob exists under the name.
	Exists(ctx context.Context, name string) (bool, error)

	// List returns a pager over the hierarchical listing of prefix. An
	// empty delimiter lists recursively; "/" groups deeper entries into
	// prefix items. pageSize hints the page length (0 uses the driver
	// default).
	List(prefix, delimiter string, pageSize int32) Pager

	// Copy performs a server-side copy within the store and returns only
	// after the copy has fully completed. The source is left untouched.
	Copy(ctx context.Context, srcName, dstName string) error
}
