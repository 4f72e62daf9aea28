package download

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"github.com/glorpus-work/srtm1dl/internal/logger"
	"github.com/glorpus-work/srtm1dl/pkg/errors"
	"github.com/glorpus-work/srtm1dl/pkg/fsutil"
	"github.com/glorpus-work/srtm1dl/pkg/http"
	"github.com/glorpus-work/srtm1dl/pkg/metrics"
	"github.com/glorpus-work/srtm1dl/pkg/tile"
)

// Defaults applied to zero Options fields.
const (
	DefaultConcurrency  = 4
	DefaultLoginPath    = "/login"
	DefaultDataSuffix   = ".dt2"
	DefaultMaxRedirects = 10
)

// Status is the outcome of a finished task.
type Status string

// Task outcomes; they double as metric labels.
const (
	StatusSaved   Status = metrics.StatusSaved
	StatusSkipped Status = metrics.StatusSkipped
	StatusFailed  Status = metrics.StatusFailed
)

// Result describes one finished tile task.
type Result struct {
	Tile     tile.Tile
	URL      string // last URL requested
	State    State  // StateDone, or the state the task failed in
	Status   Status
	Path     string // local file, set when Status is StatusSaved
	Bytes    int64
	Duration time.Duration
	Err      error
}

// Orchestrator downloads every tile of a rectangle through a shared
// session. Sender, Session and Metrics are injected; Metrics may be nil.
type Orchestrator struct {
	Sender  http.Sender
	Session Session
	Metrics *metrics.Metrics
}

func (o Options) withDefaults() Options {
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	if o.Dir == "" {
		o.Dir = "."
	}
	if o.BaseURL == "" {
		o.BaseURL = tile.DefaultBaseURL
	}
	if o.LoginPath == "" {
		o.LoginPath = DefaultLoginPath
	}
	if o.DataSuffix == "" {
		o.DataSuffix = DefaultDataSuffix
	}
	if o.MaxRedirects <= 0 {
		o.MaxRedirects = DefaultMaxRedirects
	}
	return o
}

// Run downloads every tile of rect and blocks until all tasks finished.
// A failing task never stops the others. Results are in rect.Tiles() order.
func (o *Orchestrator) Run(ctx context.Context, rect tile.Rect, opts Options) []Result {
	opts = opts.withDefaults()
	tiles := rect.Tiles()
	results := make([]Result, len(tiles))

	logger.Info("starting batch", logger.Fields{
		"tiles":       len(tiles),
		"concurrency": opts.Concurrency,
		"dir":         opts.Dir,
	})

	var g errgroup.Group
	g.SetLimit(opts.Concurrency)
	for i, t := range tiles {
		g.Go(func() error {
			results[i] = o.runTask(ctx, t, opts)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (o *Orchestrator) runTask(ctx context.Context, t tile.Tile, opts Options) (res Result) {
	tk := &task{o: o, opts: opts, tile: t, state: StateRequesting}
	start := time.Now()
	o.Metrics.TileStarted()

	defer func() {
		if r := recover(); r != nil {
			res = Result{Err: fmt.Errorf("task panicked: %v", r), Status: StatusFailed}
		}
		res.Tile = t
		res.URL = tk.currentURL()
		res.Duration = time.Since(start)
		if res.Err != nil {
			res.Status = StatusFailed
			res.State = tk.state
			logger.Error("tile failed", logger.Fields{
				"tile":  t.Name(),
				"url":   res.URL,
				"state": tk.state.String(),
				"error": res.Err.Error(),
			})
		} else {
			tk.transition(StateDone)
			res.State = StateDone
		}
		o.Metrics.TileFinished(string(res.Status), res.Bytes, res.Duration)
	}()

	if opts.TaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.TaskTimeout)
		defer cancel()
	}
	return tk.run(ctx)
}

type task struct {
	o        *Orchestrator
	opts     Options
	tile     tile.Tile
	state    State
	url      *url.URL
	relogged bool
	hops     int
}

func (tk *task) currentURL() string {
	if tk.url == nil {
		return tk.tile.URL(tk.opts.BaseURL)
	}
	return tk.url.String()
}

func (tk *task) transition(next State) {
	if tk.state == next {
		return
	}
	logger.Debug("task state", logger.Fields{"tile": tk.tile.Name(), "from": tk.state.String(), "to": next.String()})
	tk.state = next
}

func (tk *task) run(ctx context.Context) Result {
	u, err := url.Parse(tk.tile.URL(tk.opts.BaseURL))
	if err != nil {
		return Result{Err: errors.Protocolf("invalid tile url: %v", err)}
	}
	tk.url = u

	for {
		res, again := tk.attempt(ctx)
		if !again {
			return res
		}
	}
}

// attempt sends one request under a session permit. It reports whether the
// task has to request again, after a redirect or a re-login.
func (tk *task) attempt(ctx context.Context) (Result, bool) {
	permit := tk.o.Session.Acquire()
	defer permit.Release()

	resp, err := tk.request(ctx)
	if err != nil {
		return Result{Err: err}, false
	}

	loc, redirected := resp.Location()
	if !redirected {
		return tk.finish(resp), false
	}
	next, err := tk.url.Parse(loc)
	if err != nil {
		return Result{Err: errors.Protocolf("invalid Location %q: %v", loc, err)}, false
	}

	if strings.HasPrefix(next.Path, tk.opts.LoginPath) {
		seen := permit.Generation()
		permit.Release()
		if tk.relogged {
			return Result{Err: errors.Wrap(errors.ErrAuth, "still redirected to login after re-login")}, false
		}
		tk.transition(StateAuthenticating)
		if err := tk.o.Session.Refresh(ctx, seen); err != nil {
			return Result{Err: err}, false
		}
		tk.relogged = true
		tk.transition(StateRequesting)
		return Result{}, true
	}

	tk.hops++
	if tk.hops > tk.opts.MaxRedirects {
		return Result{Err: errors.Protocolf("more than %d redirects", tk.opts.MaxRedirects)}, false
	}
	tk.transition(StateRedirecting)
	tk.url = next
	tk.transition(StateRequesting)
	return Result{}, true
}

func (tk *task) request(ctx context.Context) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodGet, tk.url.String())
	if err != nil {
		return nil, errors.Protocolf("invalid url %q: %v", tk.url, err)
	}
	if cookies := tk.o.Session.CurrentCookies(); cookies != "" {
		req.SetHeader(http.HeaderCookie, cookies)
	}
	return tk.o.Sender.Send(ctx, req)
}

// finish handles a response without Location: save it if the URL names a
// data file, otherwise skip the tile.
func (tk *task) finish(resp *http.Response) Result {
	name := path.Base(tk.url.Path)
	if !strings.HasSuffix(name, tk.opts.DataSuffix) {
		logger.Warn("no data file for tile", logger.Fields{
			"tile":   tk.tile.Name(),
			"url":    tk.url.String(),
			"status": resp.StatusCode,
		})
		return Result{Status: StatusSkipped}
	}

	tk.transition(StateSaving)
	dst := filepath.Join(tk.opts.Dir, name)
	start := time.Now()
	n, err := fsutil.WriteAtomic(dst, resp.Body())
	if err != nil {
		return Result{Err: fmt.Errorf("%w: %w", errors.ErrIO, err)}
	}
	elapsed := time.Since(start)
	logger.Success("saved tile", logger.Fields{
		"tile":       tk.tile.Name(),
		"file":       dst,
		"size":       humanize.Bytes(uint64(n)),
		"elapsed":    elapsed.String(),
		"throughput": throughput(n, elapsed),
	})
	return Result{Status: StatusSaved, Path: dst, Bytes: n}
}

func throughput(n int64, elapsed time.Duration) string {
	secs := elapsed.Seconds()
	if secs <= 0 {
		return humanize.Bytes(uint64(n)) + "/s"
	}
	return humanize.Bytes(uint64(float64(n)/secs)) + "/s"
}
