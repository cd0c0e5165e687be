package storeconn

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"pkt.systems/storeconn/store"
)

const (
	// LockFileName is the sentinel lock file created inside every disk
	// location.
	LockFileName = "store.lock"
	// DefaultChannelCacheSize bounds idle file channels kept open.
	DefaultChannelCacheSize = 256
	// DefaultConfigFileName is looked up inside DefaultConfigDir.
	DefaultConfigFileName = "config.yaml"
)

// Config captures the tunables of a Registry.
type Config struct {
	// DisableProcessLock skips the sentinel lock file for disk locations.
	// Only safe when the caller guarantees a single process per directory.
	DisableProcessLock bool `yaml:"disable-process-lock"`
	// ChannelCacheSize bounds the idle channels retained by the default
	// channel manager.
	ChannelCacheSize int `yaml:"channel-cache-size"`
	// DefaultParams fill store parameters that are neither persisted nor
	// supplied by the caller.
	DefaultParams store.Params `yaml:"default-params"`
}

// Validate applies defaults and sanity-checks the configuration.
func (c *Config) Validate() error {
	if c.ChannelCacheSize == 0 {
		c.ChannelCacheSize = DefaultChannelCacheSize
	} else if c.ChannelCacheSize < 0 {
		return fmt.Errorf("config: channel cache size must be >= 0")
	}
	c.DefaultParams = c.DefaultParams.WithDefaults()
	if err := c.DefaultParams.Validate(); err != nil {
		return fmt.Errorf("config: default params: %w", err)
	}
	return nil
}

// DefaultConfigDir returns the default configuration directory
// ($HOME/.storeconn). STORECONN_CONFIG_DIR overrides it.
func DefaultConfigDir() (string, error) {
	if override := strings.TrimSpace(os.Getenv("STORECONN_CONFIG_DIR")); override != "" {
		return filepath.Abs(override)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".storeconn"), nil
}

// DefaultConfigPath returns DefaultConfigFileName inside DefaultConfigDir.
func DefaultConfigPath() (string, error) {
	dir, err := DefaultConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DefaultConfigFileName), nil
}
