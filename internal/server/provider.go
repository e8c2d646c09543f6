package server

import (
	"context"
	"fmt"
	"sync"

	"github.com/mediastore/blobfs/internal/blob"
	s3store "github.com/mediastore/blobfs/internal/blob/s3"
	"github.com/mediastore/blobfs/internal/config"
	"github.com/mediastore/blobfs/internal/events"
	"github.com/mediastore/blobfs/internal/paths"
	"github.com/mediastore/blobfs/internal/vfs"
)

// StoreFactory builds the blob store of a mount. Tests substitute an
// in-memory factory.
type StoreFactory func(ctx context.Context, mount config.Mount) (blob.Store, error)

// Provider owns one file system per named mount. Systems are built lazily
// from the current configuration and cached; a configuration reload swaps
// the configuration and invalidates the cache, so readers either get the
// old complete file system or the new one, never a half-updated client.
type Provider struct {
	mu       sync.RWMutex
	cfg      *config.Config
	systems  map[string]*vfs.FileSystem
	newStore StoreFactory
	logger   *events.Logger
}

// NewProvider creates a provider over the given configuration. A nil
// factory uses the S3 driver.
func NewProvider(cfg *config.Config, factory StoreFactory, logger *events.Logger) *Provider {
	if factory == nil {
		factory = func(ctx context.Context, mount config.Mount) (blob.Store, error) {
			return s3store.New(ctx, s3store.Options{
				Bucket:    mount.Bucket,
				Region:    mount.Region,
				Endpoint:  mount.Endpoint,
				AccessKey: mount.AccessKey,
				SecretKey: mount.SecretKey,
				PathStyle: mount.PathStyle,
			}, logger)
		}
	}

	return &Provider{
		cfg:      cfg,
		systems:  make(map[string]*vfs.FileSystem),
		newStore: factory,
		logger:   logger.WithField("component", "provider"),
	}
}

// FileSystem returns the file system of a named mount, building it on
// first access.
func (p *Provider) FileSystem(name string) (*vfs.FileSystem, error) {
	p.mu.RLock()
	if fs, ok := p.systems[name]; ok {
		p.mu.RUnlock()
		return fs, nil
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	if fs, ok := p.systems[name]; ok {
		return fs, nil
	}

	mount, ok := p.cfg.Mounts[name]
	if !ok {
		return nil, fmt.Errorf("no mount named %q", name)
	}

	store, err := p.newStore(context.Background(), mount)
	if err != nil {
		return nil, fmt.Errorf("build store for mount %q: %w", name, err)
	}

	resolver := paths.NewResolver(mount.RequestRootPath, mount.ContainerRootPath)
	fs := vfs.NewFileSystem(store, resolver, p.logger)
	p.systems[name] = fs

	p.logger.WithField("mount", name).Info("Built file system")
	return fs, nil
}

// Invalidate discards the cached file system of one mount; the next access
// rebuilds it from the current configuration.
func (p *Provider) Invalidate(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.systems, name)
}

// SetConfig swaps the configuration and invalidates every cached file
// system.
func (p *Provider) SetConfig(cfg *config.Config) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.cfg = cfg
	p.systems = make(map[string]*vfs.FileSystem)

	p.logger.Info("Configuration reloaded, file system cache invalidated")
}
