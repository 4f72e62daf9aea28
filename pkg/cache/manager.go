package cache

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glorpus-work/srtm1dl/internal/logger"
	"github.com/glorpus-work/srtm1dl/pkg/errors"
	"github.com/glorpus-work/srtm1dl/pkg/fsutil"
)

// DefaultManager keeps named files in one directory and refreshes them from
// their URL once they are older than the TTL.
type DefaultManager struct {
	directory string
	ttl       time.Duration
	fetchers  map[string]Fetcher
	now       func() time.Time
}

// NewManager creates a new cache manager. fetchers is keyed by URL scheme.
// A ttl <= 0 means DefaultTTL.
func NewManager(directory string, ttl time.Duration, fetchers map[string]Fetcher) *DefaultManager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	fs := make(map[string]Fetcher, len(fetchers))
	for scheme, f := range fetchers {
		fs[strings.ToLower(scheme)] = f
	}
	return &DefaultManager{
		directory: directory,
		ttl:       ttl,
		fetchers:  fs,
		now:       time.Now,
	}
}

// Path returns where name is cached.
func (cm *DefaultManager) Path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return "", fmt.Errorf("%w: invalid cache entry name %q", errors.ErrCacheFetch, name)
	}
	return filepath.Join(cm.directory, name), nil
}

// NeedsUpdate reports whether name is missing or older than the TTL.
func (cm *DefaultManager) NeedsUpdate(name string) (bool, error) {
	path, err := cm.Path(name)
	if err != nil {
		return false, err
	}
	st, err := os.Stat(path)
	if os.IsNotExist(err) {
		return true, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "failed to stat cached file %s", path)
	}
	return st.ModTime().Before(cm.now().Add(-cm.ttl)), nil
}

// Update downloads rawURL and atomically replaces the cached copy of name.
func (cm *DefaultManager) Update(ctx context.Context, name, rawURL string) (string, error) {
	path, err := cm.Path(name)
	if err != nil {
		return "", err
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: invalid url %q: %v", errors.ErrCacheFetch, rawURL, err)
	}
	fetcher, ok := cm.fetchers[strings.ToLower(u.Scheme)]
	if !ok {
		return "", fmt.Errorf("%w: no fetcher for scheme %q", errors.ErrCacheFetch, u.Scheme)
	}

	logger.Debug("refreshing cached file", logger.Fields{"name": name, "url": rawURL})
	data, err := fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", errors.ErrCacheFetch, name, err)
	}
	if err := os.MkdirAll(cm.directory, CacheDirPerm); err != nil {
		return "", fmt.Errorf("%w: failed to create cache directory: %w", errors.ErrIO, err)
	}
	if _, err := fsutil.WriteAtomic(path, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("%w: %w", errors.ErrIO, err)
	}
	logger.Info("cached file updated", logger.Fields{"name": name, "bytes": len(data)})
	return path, nil
}

// Get returns the path of name, refreshing it first when stale.
func (cm *DefaultManager) Get(ctx context.Context, name, rawURL string) (string, error) {
	stale, err := cm.NeedsUpdate(name)
	if err != nil {
		return "", err
	}
	if !stale {
		logger.Debug("cached file is fresh", logger.Fields{"name": name})
		return cm.Path(name)
	}
	return cm.Update(ctx, name, rawURL)
}

// Clean removes every cached file and returns bytes freed.
func (cm *DefaultManager) Clean() (*CleanResult, error) {
	size, files, err := getDirSizeAndFiles(cm.directory)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrCacheClean, err)
	}
	if files == 0 {
		return &CleanResult{}, nil
	}
	if err := os.RemoveAll(cm.directory); err != nil {
		return nil, fmt.Errorf("%w: failed to remove directory %s: %w", errors.ErrCacheClean, cm.directory, err)
	}
	if err := os.MkdirAll(cm.directory, CacheDirPerm); err != nil {
		return nil, fmt.Errorf("%w: failed to recreate directory %s: %w", errors.ErrCacheClean, cm.directory, err)
	}
	return &CleanResult{TotalFreed: size, FilesRemoved: files}, nil
}

// GetInfo returns information about the cache.
func (cm *DefaultManager) GetInfo() (*Info, error) {
	info := &Info{Directory: cm.directory, TTL: cm.ttl}
	if _, err := os.Stat(cm.directory); os.IsNotExist(err) {
		return info, nil
	}

	cutoff := cm.now().Add(-cm.ttl)
	err := filepath.Walk(cm.directory, func(_ string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			return nil
		}
		info.TotalSize += fi.Size()
		info.Files++
		if fi.ModTime().Before(cutoff) {
			info.StaleFiles++
		}
		if fi.ModTime().After(info.LastModified) {
			info.LastModified = fi.ModTime()
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrCacheInfo, err)
	}
	return info, nil
}

// GetDirectory returns the cache directory path.
func (cm *DefaultManager) GetDirectory() string {
	return cm.directory
}

// getDirSizeAndFiles calculates directory size and file count.
func getDirSizeAndFiles(dir string) (size int64, count int, err error) {
	if _, err = os.Stat(dir); os.IsNotExist(err) {
		return 0, 0, nil
	}
	err = filepath.Walk(dir, func(_ string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !info.IsDir() {
			size += info.Size()
			count++
		}
		return nil
	})
	if err != nil {
		err = errors.Wrapf(err, "error walking directory %s", dir)
	}
	return size, count, err
}
