// Package memory provides an in-memory blob.Store with the full
// conditional-request and hierarchical-listing contract. It backs the
// package tests and local development.
package memory

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mediastore/blobfs/internal/blob"
	"github.com/mediastore/blobfs/internal/models"
)

const defaultPageSize = 1000

type object struct {
	data  []byte
	props blob.Properties
}

// Store is an in-memory blob store. Safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	objects map[string]*object

	// failures maps an operation name ("upload", "copy", "delete",
	// "properties", "download", "list") to an injected error.
	failures map[string]error
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		objects:  make(map[string]*object),
		failures: make(map[string]error),
	}
}

// FailWith injects an error for one operation. Passing a nil error clears
// the injection.
func (s *Store) FailWith(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

// Put seeds a blob directly, bypassing conditional checks. Test helper.
func (s *Store) Put(name string, data []byte, contentType string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store(name, data, contentType)
}

func (s *Store) store(name string, data []byte, contentType string) {
	buf := make([]byte, len(data))
	copy(buf, data)

	now := time.Now().UTC().Truncate(time.Second)
	created := now
	if existing, ok := s.objects[name]; ok {
		created = existing.props.Created
	}

	sum := sha256.Sum256(buf)
	s.objects[name] = &object{
		data: buf,
		props: blob.Properties{
			ContentLength: int64(len(buf)),
			ContentType:   contentType,
			ETag:          hex.EncodeToString(sum[:8]),
			LastModified:  now,
			Created:       created,
		},
	}
}

func (s *Store) failure(op string) error {
	return s.failures[op]
}

// Properties implements blob.Store.
func (s *Store) Properties(ctx context.Context, name string, cond *blob.Conditions) (blob.Properties, blob.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return blob.Properties{}, blob.OutcomeNotFound, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.failure("properties"); err != nil {
		return blob.Properties{}, blob.OutcomeNotFound, err
	}

	obj, ok := s.objects[name]
	if !ok {
		return blob.Properties{}, blob.OutcomeNotFound, nil
	}

	if outcome := evaluate(cond, obj.props); outcome != blob.OutcomeOK {
		return blob.Properties{}, outcome, nil
	}
	return obj.props, blob.OutcomeOK, nil
}

// evaluate applies preconditions in the order HTTP servers do: failure
// conditions (If-Match, If-Unmodified-Since) before cache conditions
// (If-None-Match, If-Modified-Since).
func evaluate(cond *blob.Conditions, props blob.Properties) blob.Outcome {
	if cond == nil {
		return blob.OutcomeOK
	}

	if cond.IfMatch != "" && !etagMatch(cond.IfMatch, props.ETag) {
		return blob.OutcomePreconditionFailed
	}
	if !cond.IfUnmodifiedSince.IsZero() && props.LastModified.After(cond.IfUnmodifiedSince) {
		return blob.OutcomePreconditionFailed
	}
	if cond.IfNoneMatch != "" && etagMatch(cond.IfNoneMatch, props.ETag) {
		return blob.OutcomeNotModified
	}
	if !cond.IfModifiedSince.IsZero() && !props.LastModified.After(cond.IfModifiedSince) {
		return blob.OutcomeNotModified
	}
	return blob.OutcomeOK
}

func etagMatch(header, etag string) bool {
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.Trim(strings.TrimSpace(candidate), `"`)
		if candidate == "*" || candidate == etag {
			return true
		}
	}
	return false
}

// Download implements blob.Store.
func (s *Store) Download(ctx context.Context, name string, offset, length int64) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.failure("download"); err != nil {
		return nil, err
	}

	obj, ok := s.objects[name]
	if !ok {
		return nil, &models.PathError{Op: "download", Path: name, Err: models.ErrNotFound}
	}

	if offset < 0 || offset > int64(len(obj.data)) {
		return nil, &models.PathError{Op: "download", Path: name, Err: models.ErrInvalidRange}
	}

	end := int64(len(obj.data))
	if length >= 0 && offset+length < end {
		end = offset + length
	}

	buf := make([]byte, end-offset)
	copy(buf, obj.data[offset:end])
	return io.NopCloser(bytes.NewReader(buf)), nil
}

// Upload implements blob.Store. With opts.IfAbsent the create is atomic:
// concurrent writers to the same name see exactly one success.
func (s *Store) Upload(ctx context.Context, name string, r io.Reader, opts blob.UploadOptions) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read upload body: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.failure("upload"); err != nil {
		return err
	}

	if opts.IfAbsent {
		if _, exists := s.objects[name]; exists {
			return &models.PathError{Op: "upload", Path: name, Err: models.ErrAlreadyExists}
		}
	}

	s.store(name, data, opts.ContentType)
	return nil
}

// Delete implements blob.Store. Idempotent.
func (s *Store) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.failure("delete"); err != nil {
		return err
	}

	delete(s.objects, name)
	return nil
}

// Exists implements blob.Store.
func (s *Store) Exists(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.objects[name]
	return ok, nil
}

// Copy implements blob.Store.
func (s *Store) Copy(ctx context.Context, srcName, dstName string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.failure("copy"); err != nil {
		return err
	}

	src, ok := s.objects[srcName]
	if !ok {
		return &models.PathError{Op: "copy", Path: srcName, Err: models.ErrNotFound}
	}

	s.store(dstName, src.data, src.props.ContentType)
	return nil
}

// List implements blob.Store. The listing is a snapshot taken at the first
// NextPage call, in lexical blob-name order.
func (s *Store) List(prefix, delimiter string, pageSize int32) blob.Pager {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return &pager{store: s, prefix: prefix, delimiter: delimiter, pageSize: int(pageSize)}
}

type pager struct {
	store     *Store
	prefix    string
	delimiter string
	pageSize  int

	items    []blob.Item
	snapshot bool
	offset   int
}

func (p *pager) HasMorePages() bool {
	return !p.snapshot || p.offset < len(p.items)
}

func (p *pager) NextPage(ctx context.Context) ([]blob.Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !p.snapshot {
		if err := p.take(); err != nil {
			return nil, err
		}
	}

	if p.offset >= len(p.items) {
		return nil, nil
	}

	end := p.offset + p.pageSize
	if end > len(p.items) {
		end = len(p.items)
	}
	page := p.items[p.offset:end]
	p.offset = end
	return page, nil
}

func (p *pager) take() error {
	p.store.mu.RLock()
	defer p.store.mu.RUnlock()

	if err := p.store.failure("list"); err != nil {
		return err
	}

	names := make([]string, 0, len(p.store.objects))
	for name := range p.store.objects {
		if strings.HasPrefix(name, p.prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	seenPrefixes := make(map[string]bool)
	for _, name := range names {
		rest := name[len(p.prefix):]

		if p.delimiter != "" {
			if idx := strings.Index(rest, p.delimiter); idx >= 0 {
				group := name[:len(p.prefix)+idx+1]
				if !seenPrefixes[group] {
					seenPrefixes[group] = true
					p.items = append(p.items, blob.Item{IsPrefix: true, Name: group})
				}
				continue
			}
		}

		props := p.store.objects[name].props
		p.items = append(p.items, blob.Item{Name: name, Props: &props})
	}

	p.snapshot = true
	return nil
}
