package scanner

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Cache persists the last discovered printer so subsequent prints can dial
// the cached address directly and skip the scan.
type Cache struct {
	Path string
}

type cacheEntry struct {
	Name     string    `yaml:"name"`
	Address  string    `yaml:"address"`
	LastSeen time.Time `yaml:"last_seen"`
}

// DefaultCachePath returns the per-user cache location.
func DefaultCachePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".lxprint", "device.yaml"), nil
}

// Load reads the cached printer. The second result is false when no cache
// exists yet; a corrupt cache file is an error.
func (c *Cache) Load() (Printer, bool, error) {
	data, err := os.ReadFile(c.Path)
	if errors.Is(err, os.ErrNotExist) {
		return Printer{}, false, nil
	}
	if err != nil {
		return Printer{}, false, fmt.Errorf("failed to read device cache: %w", err)
	}

	var entry cacheEntry
	if err := yaml.Unmarshal(data, &entry); err != nil {
		return Printer{}, false, fmt.Errorf("failed to parse device cache: %w", err)
	}
	if entry.Address == "" {
		return Printer{}, false, nil
	}

	return Printer{
		Name:     entry.Name,
		Address:  entry.Address,
		LastSeen: entry.LastSeen,
	}, true, nil
}

// Save writes the printer to the cache file, creating the directory when
// needed.
func (c *Cache) Save(p Printer) error {
	data, err := yaml.Marshal(cacheEntry{
		Name:     p.Name,
		Address:  p.Address,
		LastSeen: p.LastSeen,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal device cache: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(c.Path), 0o755); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}
	if err := os.WriteFile(c.Path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write device cache: %w", err)
	}
	return nil
}
