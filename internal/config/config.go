package config

import (
	"errors"
	"fmt"
	"strings"
)

// Config holds all application configuration.
type Config struct {
	// HTTP server settings
	Server ServerConfig `mapstructure:"server"`

	// Logging
	Log LogConfig `mapstructure:"log"`

	// Named mounts, each binding a request-path root to a bucket.
	Mounts map[string]Mount `mapstructure:"mounts"`
}

// ServerConfig for the HTTP listener.
type ServerConfig struct {
	Listen string `mapstructure:"listen"`
}

// LogConfig for logging behavior.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // text, json
}

// Mount binds an externally visible request root to a location in a blob
// store.
type Mount struct {
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	PathStyle bool   `mapstructure:"path_style"`

	// RequestRootPath is the mount point, e.g. "/media". Required.
	RequestRootPath string `mapstructure:"request_root_path"`

	// ContainerRootPath is the blob-name prefix the mount's data lives
	// under; defaults to the request root.
	ContainerRootPath string `mapstructure:"container_root_path"`

	// Mode is "fallback" (absent blobs go to the next handler) or
	// "terminal" (absent blobs answer 404).
	Mode string `mapstructure:"mode"`
}

// MediaMountName is the conventional mount name of the CMS media library.
const MediaMountName = "media"

// DefaultConfig returns config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Listen: ":8080",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Mounts: make(map[string]Mount),
	}
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if c.Server.Listen == "" {
		return errors.New("server.listen is required")
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[c.Log.Level] {
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		return fmt.Errorf("invalid log format: %s", c.Log.Format)
	}

	if len(c.Mounts) == 0 {
		return errors.New("at least one mount is required")
	}

	for name, mount := range c.Mounts {
		if mount.Bucket == "" {
			return fmt.Errorf("mount %q: bucket is required", name)
		}
		if mount.RequestRootPath == "" {
			return fmt.Errorf("mount %q: request_root_path is required", name)
		}
		if !strings.HasPrefix(mount.RequestRootPath, "/") {
			return fmt.Errorf("mount %q: request_root_path must start with /", name)
		}
		switch mount.Mode {
		case "", "fallback", "terminal":
		default:
			return fmt.Errorf("mount %q: invalid mode %q", name, mount.Mode)
		}
	}

	return nil
}
