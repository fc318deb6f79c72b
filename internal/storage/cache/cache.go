// Package cache stores JSON documents on disk, one file per ID.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Kind names the directory of a cache.
type Kind string

// Cache kinds.
const (
	Reports Kind = "reports"
)

const (
	ext            = ".json"
	shardPrefixLen = 2
)

var errInvalidID = errors.New("invalid id")

// Cache keeps values of type T under <base>/<kind>/<id[:2]>/<id>.json.
type Cache[T any] struct {
	dir string
}

// New creates the cache directory if needed.
func New[T any](base string, kind Kind) (*Cache[T], error) {
	dir := filepath.Join(base, string(kind))
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	return &Cache[T]{dir: dir}, nil
}

func (c *Cache[T]) path(id string) (string, error) {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return "", fmt.Errorf("%w: %q", errInvalidID, id)
	}
	if len(id) < shardPrefixLen {
		return filepath.Join(c.dir, id+ext), nil
	}
	return filepath.Join(c.dir, id[:shardPrefixLen], id+ext), nil
}

// Get reads the value stored under id. A missing entry wraps fs.ErrNotExist.
func (c *Cache[T]) Get(id string) (T, error) {
	var v T
	path, err := c.path(id)
	if err != nil {
		return v, fmt.Errorf("get: %w", err)
	}
	bts, err := os.ReadFile(path)
	if err != nil {
		return v, fmt.Errorf("get: %w", err)
	}
	if err := json.Unmarshal(bts, &v); err != nil {
		return v, fmt.Errorf("get %s: %w", id, err)
	}
	return v, nil
}

// Put stores v under id. The file is replaced atomically.
func (c *Cache[T]) Put(id string, v T) error {
	path, err := c.path(id)
	if err != nil {
		return fmt.Errorf("put: %w", err)
	}
	bts, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("put %s: %w", id, err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("put: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("put: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.Write(bts); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("put: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("put: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("put: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("put: %w", err)
	}
	return nil
}

// Delete removes the entry of id. A missing entry is not an error.
func (c *Cache[T]) Delete(id string) error {
	path, err := c.path(id)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete: %w", err)
	}
	return nil
}

// Size returns the stored size of id in bytes.
func (c *Cache[T]) Size(id string) (int64, error) {
	path, err := c.path(id)
	if err != nil {
		return 0, fmt.Errorf("size: %w", err)
	}
	fi, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("size: %w", err)
	}
	return fi.Size(), nil
}
