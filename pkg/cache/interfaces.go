package cache

import (
	"context"
	"time"
)

//go:generate mockgen -destination=mocks/cache.go . Fetcher

// Fetcher downloads the full contents of a URL.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// Manager defines the interface for cache management operations.
type Manager interface {
	NeedsUpdate(name string) (bool, error)
	Update(ctx context.Context, name, rawURL string) (string, error)
	Get(ctx context.Context, name, rawURL string) (string, error)
	Clean() (*CleanResult, error)
	GetInfo() (*Info, error)
	GetDirectory() string
}

// CleanResult contains information about what was cleaned.
type CleanResult struct {
	TotalFreed   int64
	FilesRemoved int
}

// Info represents cache information.
type Info struct {
	Directory    string
	TotalSize    int64
	Files        int
	StaleFiles   int
	LastModified time.Time
	TTL          time.Duration
}
