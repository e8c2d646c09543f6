package vfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mediastore/blobfs/internal/events"
	"github.com/mediastore/blobfs/internal/models"
	"github.com/mediastore/blobfs/internal/paths"
)

// Physical is the local-disk FS implementation. It satisfies the same
// contract as the blob-backed file system so callers can swap storage
// without code changes.
type Physical struct {
	baseDir  string
	resolver paths.Resolver
	logger   *events.Logger
}

// NewPhysical creates a disk-backed file system rooted at baseDir.
func NewPhysical(baseDir string, resolver paths.Resolver, logger *events.Logger) (*Physical, error) {
	absPath, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve base directory: %w", err)
	}
	if err := os.MkdirAll(absPath, 0o755); err != nil {
		return nil, fmt.Errorf("create base directory: %w", err)
	}

	return &Physical{
		baseDir:  absPath,
		resolver: resolver,
		logger:   logger.WithField("component", "physical"),
	}, nil
}

// osPath maps a logical path onto the base directory. The blob-name
// translation doubles as a traversal guard: the result never climbs above
// the container root.
func (p *Physical) osPath(path string) (string, error) {
	name := p.resolver.BlobName(path)
	if name == "" {
		return "", models.ErrEmptyPath
	}
	if strings.Contains(name, "..") {
		return "", &models.PathError{Op: "resolve", Path: path, Err: models.ErrEmptyPath}
	}
	return filepath.Join(p.baseDir, filepath.FromSlash(name)), nil
}

func (p *Physical) dirPath(path string) string {
	name := p.resolver.BlobName(path)
	return filepath.Join(p.baseDir, filepath.FromSlash(name))
}

// GetDirectories lists the sub-directories of a path.
func (p *Physical) GetDirectories(ctx context.Context, path string) ([]string, error) {
	entries, err := os.ReadDir(p.dirPath(path))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list directories %s: %w", path, err)
	}

	var dirs []string
	for _, entry := range entries {
		if entry.IsDir() {
			dirs = append(dirs, entry.Name())
		}
	}
	return dirs, nil
}

// DirectoryExists reports whether the directory exists on disk.
func (p *Physical) DirectoryExists(ctx context.Context, path string) (bool, error) {
	info, err := os.Stat(p.dirPath(path))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check directory %s: %w", path, err)
	}
	return info.IsDir(), nil
}

// DeleteDirectory removes a directory. Non-recursive deletes remove the
// direct file children only, mirroring the blob implementation.
func (p *Physical) DeleteDirectory(ctx context.Context, path string, recursive bool) error {
	dir := p.dirPath(path)

	if recursive {
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("delete directory %s: %w", path, err)
		}
		return nil
	}

	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete directory %s: %w", path, err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
			return fmt.Errorf("delete directory %s: %w", path, err)
		}
	}
	return nil
}

// AddFile writes content to a path.
func (p *Physical) AddFile(ctx context.Context, path string, content io.Reader, overwrite bool) error {
	target, err := p.osPath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create parent directory: %w", err)
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !overwrite {
		// O_EXCL gives the same atomic create-if-absent guarantee as a
		// conditional blob write.
		flags = os.O_WRONLY | os.O_CREATE | os.O_EXCL
	}

	f, err := os.OpenFile(target, flags, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return &models.PathError{Op: "add file", Path: path, Err: models.ErrAlreadyExists}
	}
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}

	if _, err := io.Copy(f, content); err != nil {
		f.Close()
		os.Remove(target)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}

	p.logger.WithField("path", target).Debug("Wrote file")
	return nil
}

// AddFileFrom copies or moves a file between two locations.
func (p *Physical) AddFileFrom(ctx context.Context, path, sourcePath string, overwrite, copy bool) error {
	src, err := p.osPath(sourcePath)
	if err != nil {
		return err
	}

	in, err := os.Open(src)
	if errors.Is(err, fs.ErrNotExist) {
		return &models.PathError{Op: "add file", Path: sourcePath, Err: models.ErrNotFound}
	}
	if err != nil {
		return fmt.Errorf("open source %s: %w", sourcePath, err)
	}
	defer in.Close()

	if err := p.AddFile(ctx, path, in, overwrite); err != nil {
		return err
	}

	if !copy {
		if err := os.Remove(src); err != nil {
			return fmt.Errorf("delete source %s: %w", sourcePath, err)
		}
	}
	return nil
}

// GetFiles lists the files directly under a path, honoring the same
// trailing-wildcard filter as the blob implementation.
func (p *Physical) GetFiles(ctx context.Context, path, filter string) ([]string, error) {
	match := strings.TrimPrefix(filter, "*")
	if filter == "*.*" {
		match = ""
	}

	entries, err := os.ReadDir(p.dirPath(path))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list files %s: %w", path, err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if match != "" && !strings.Contains(strings.ToLower(entry.Name()), strings.ToLower(match)) {
			continue
		}
		files = append(files, entry.Name())
	}
	return files, nil
}

// OpenFile opens a file for reading.
func (p *Physical) OpenFile(ctx context.Context, path string) (io.ReadCloser, error) {
	target, err := p.osPath(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(target)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &models.PathError{Op: "open", Path: path, Err: models.ErrNotFound}
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return f, nil
}

// DeleteFile removes a file. Deleting an absent file is not an error.
func (p *Physical) DeleteFile(ctx context.Context, path string) error {
	target, err := p.osPath(path)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	return nil
}

// FileExists reports whether the file exists.
func (p *Physical) FileExists(ctx context.Context, path string) (bool, error) {
	target, err := p.osPath(path)
	if err != nil {
		return false, err
	}

	info, err := os.Stat(target)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
	return !info.IsDir(), nil
}

// GetLastModified returns the file's modification time.
func (p *Physical) GetLastModified(ctx context.Context, path string) (time.Time, error) {
	info, err := p.stat(path)
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

// GetCreated returns the file's creation time. The portable file metadata
// has no separate creation time, so the modification time is returned.
func (p *Physical) GetCreated(ctx context.Context, path string) (time.Time, error) {
	return p.GetLastModified(ctx, path)
}

// GetSize returns the file's size.
func (p *Physical) GetSize(ctx context.Context, path string) (int64, error) {
	info, err := p.stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// RelativePath translates a full path or URL to a request-root-relative
// path.
func (p *Physical) RelativePath(path string) string {
	return p.resolver.RequestPath(path)
}

// FullPath prepends the request root to a relative path.
func (p *Physical) FullPath(path string) string {
	return p.resolver.FullPath(path)
}

// URL returns the URL path of a file.
func (p *Physical) URL(path string) string {
	return p.resolver.URL(path)
}

func (p *Physical) stat(path string) (os.FileInfo, error) {
	target, err := p.osPath(path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(target)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &models.PathError{Op: "stat", Path: path, Err: models.ErrNotFound}
	}
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	return info, nil
}

var _ FS = (*Physical)(nil)
