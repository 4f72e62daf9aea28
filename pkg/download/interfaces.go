package download

import (
	"context"
	"time"

	"github.com/glorpus-work/srtm1dl/pkg/session"
)

// Session is the part of session.Coordinator a download task uses.
type Session interface {
	Acquire() *session.Permit
	CurrentCookies() string
	Refresh(ctx context.Context, seen uint64) error
}

// Options control one batch run.
type Options struct {
	Concurrency  int           // number of tasks run at once; if <=0, DefaultConcurrency
	Dir          string        // destination directory; "" means the working directory
	BaseURL      string        // tile URL prefix; "" means tile.DefaultBaseURL
	LoginPath    string        // a redirect whose path starts with this means the session expired
	DataSuffix   string        // final URLs ending in this are saved
	TaskTimeout  time.Duration // deadline per task; 0 means none
	MaxRedirects int           // non-login redirects followed per task
}
