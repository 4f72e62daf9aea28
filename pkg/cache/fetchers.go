package cache

import (
	"context"
	"fmt"

	"github.com/glorpus-work/srtm1dl/pkg/errors"
	"github.com/glorpus-work/srtm1dl/pkg/ftp"
	"github.com/glorpus-work/srtm1dl/pkg/http"
)

const maxFetchRedirects = 5

// HTTPFetcher fetches http and https URLs through a Sender, following
// redirects. Only 2xx responses are accepted.
type HTTPFetcher struct {
	Sender http.Sender
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	current := rawURL
	for hop := 0; hop <= maxFetchRedirects; hop++ {
		req, err := http.NewRequest(http.MethodGet, current)
		if err != nil {
			return nil, errors.Protocolf("invalid url %q: %v", current, err)
		}
		resp, err := f.Sender.Send(ctx, req)
		if err != nil {
			return nil, err
		}
		if loc, ok := resp.Location(); ok && resp.StatusCode/100 == 3 {
			next, err := req.URL.Parse(loc)
			if err != nil {
				return nil, errors.Protocolf("invalid Location %q: %v", loc, err)
			}
			current = next.String()
			continue
		}
		if resp.StatusCode/100 != 2 {
			return nil, fmt.Errorf("%w: unexpected status code: %d", errors.ErrProtocol, resp.StatusCode)
		}
		return resp.Bytes(), nil
	}
	return nil, errors.Protocolf("more than %d redirects fetching %s", maxFetchRedirects, rawURL)
}

// DefaultFetchers maps ftp, http and https to the raw-socket clients.
func DefaultFetchers(sender http.Sender, ftpClient *ftp.Client) map[string]Fetcher {
	hf := &HTTPFetcher{Sender: sender}
	return map[string]Fetcher{
		"ftp":   ftpClient,
		"http":  hf,
		"https": hf,
	}
}
