package cache

import (
	"time"

	"github.com/glorpus-work/srtm1dl/pkg/fsutil"
)

// DefaultTTL is how long a cached file stays fresh.
const DefaultTTL = 7 * 24 * time.Hour

// CacheDirPerm is the default permission mode for cache directories.
const CacheDirPerm = fsutil.DirModeSecure
