package cache

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/glorpus-work/srtm1dl/internal/logger"
)

// CacheOperation renders cache management results for the CLI.
type CacheOperation struct {
	manager Manager
}

// NewCacheOperation creates a new cache operation instance.
func NewCacheOperation(manager Manager) *CacheOperation {
	return &CacheOperation{
		manager: manager,
	}
}

// Clean empties the cache and describes what was freed.
func (op *CacheOperation) Clean() (string, error) {
	logger.Debug("Cleaning cache", logger.Fields{"directory": op.manager.GetDirectory()})

	result, err := op.manager.Clean()
	if err != nil {
		return "", fmt.Errorf("failed to clean cache: %w", err)
	}
	if result.FilesRemoved == 0 {
		return "No files were removed from the cache.", nil
	}
	return fmt.Sprintf("Successfully cleaned cache. Removed %d files, freed %s of disk space.",
		result.FilesRemoved, humanize.Bytes(uint64(result.TotalFreed))), nil
}

// GetInfo returns information about the cache.
func (op *CacheOperation) GetInfo() (string, error) {
	info, err := op.manager.GetInfo()
	if err != nil {
		return "", fmt.Errorf("failed to get cache info: %w", err)
	}

	lastModified := "never"
	if !info.LastModified.IsZero() {
		lastModified = fmt.Sprintf("%s (%s)", info.LastModified.Format(time.RFC1123), humanize.Time(info.LastModified))
	}

	return fmt.Sprintf(`Cache Information:
  Directory:     %s
  Total Size:    %s
  Files:         %d (%d stale)
  TTL:           %s
  Last Modified: %s`,
		info.Directory,
		humanize.Bytes(uint64(info.TotalSize)),
		info.Files,
		info.StaleFiles,
		info.TTL,
		lastModified,
	), nil
}

// GetDirectory returns the cache directory path.
func (op *CacheOperation) GetDirectory() string {
	return op.manager.GetDirectory()
}
