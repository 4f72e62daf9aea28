package cli

import (
	"context"
	"fmt"
	"io"
	"net"
	nethttp "net/http"
	"net/url"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/glorpus-work/srtm1dl/internal/logger"
	"github.com/glorpus-work/srtm1dl/pkg/config"
	"github.com/glorpus-work/srtm1dl/pkg/download"
	"github.com/glorpus-work/srtm1dl/pkg/errors"
	"github.com/glorpus-work/srtm1dl/pkg/fsutil"
	"github.com/glorpus-work/srtm1dl/pkg/metrics"
	"github.com/glorpus-work/srtm1dl/pkg/session"
)

type downloadFlags struct {
	minLat, maxLat int
	minLon, maxLon int
	threads        int
	out            string
	username       string
	password       string
	taskTimeout    time.Duration
	metricsAddr    string
}

// NewDownloadCmd creates the download command.
func NewDownloadCmd() *cobra.Command {
	var f downloadFlags

	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download SRTM1 tiles for a region",
		Long: `Log in to the archive once and download every 1x1 degree tile of the
region in parallel. Bounds, credentials and settings come from the config
file, .env files and SRTM1DL_* variables; flags override them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDownload(cmd, &f)
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&f.minLat, "min-lat", 0, "Southern latitude bound")
	flags.IntVar(&f.maxLat, "max-lat", 0, "Northern latitude bound")
	flags.IntVar(&f.minLon, "min-lon", 0, "Western longitude bound")
	flags.IntVar(&f.maxLon, "max-lon", 0, "Eastern longitude bound")
	flags.IntVarP(&f.threads, "threads", "t", config.DefaultThreads, "Number of parallel downloads")
	flags.StringVarP(&f.out, "out", "o", "", "Output directory")
	flags.StringVar(&f.username, "username", "", "Archive username")
	flags.StringVar(&f.password, "password", "", "Archive password")
	flags.DurationVar(&f.taskTimeout, "task-timeout", 0, "Deadline per tile, 0 for none")
	flags.StringVar(&f.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address during the run")

	return cmd
}

// apply copies the flags the user set over cfg.
func (f *downloadFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()

	bounds := []struct {
		name  string
		value int
		dst   **int
	}{
		{"min-lat", f.minLat, &cfg.Region.MinLatitude},
		{"max-lat", f.maxLat, &cfg.Region.MaxLatitude},
		{"min-lon", f.minLon, &cfg.Region.MinLongitude},
		{"max-lon", f.maxLon, &cfg.Region.MaxLongitude},
	}
	for _, b := range bounds {
		if flags.Changed(b.name) {
			v := b.value
			*b.dst = &v
		}
	}

	if flags.Changed("threads") {
		cfg.Settings.Threads = f.threads
	}
	if flags.Changed("out") {
		cfg.Settings.OutputDir = f.out
	}
	if flags.Changed("username") {
		cfg.Account.Username = f.username
	}
	if flags.Changed("password") {
		cfg.Account.Password = f.password
	}
	if flags.Changed("task-timeout") {
		cfg.Settings.TaskTimeout = f.taskTimeout
	}
	if flags.Changed("metrics-addr") {
		cfg.Settings.MetricsAddr = f.metricsAddr
	}
}

func runDownload(cmd *cobra.Command, f *downloadFlags) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	f.apply(cmd, cfg)

	if err := cfg.ValidateDownload(); err != nil {
		return err
	}
	rect, err := cfg.Region.Rect()
	if err != nil {
		return err
	}
	if err := fsutil.EnsureDir(cfg.Settings.OutputDir); err != nil {
		return fmt.Errorf("%w: failed to create output directory %s: %w", errors.ErrIO, cfg.Settings.OutputDir, err)
	}

	logger.SetGlobalFields(logger.Fields{"run_id": uuid.NewString()})
	defer logger.SetGlobalFields(nil)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	if cfg.Settings.MetricsAddr != "" {
		_, stop, err := serveMetrics(cfg.Settings.MetricsAddr, reg)
		if err != nil {
			return err
		}
		defer stop()
	}

	ctx := cmd.Context()
	sender := newHTTPClient(cfg)
	coordinator := session.NewCoordinator(sender, cfg.Settings.LoginURL, session.Credentials{
		Username: cfg.Account.Username,
		Password: cfg.Account.Password,
	}, m)

	// Tasks still run without a session and fail individually.
	if err := coordinator.EnsureLoggedIn(ctx); err != nil {
		logger.Warn("continuing without a session", logger.Fields{"error": err.Error()})
	}

	orchestrator := &download.Orchestrator{Sender: sender, Session: coordinator, Metrics: m}
	results := orchestrator.Run(ctx, rect, download.Options{
		Concurrency: cfg.Settings.Threads,
		Dir:         cfg.Settings.OutputDir,
		BaseURL:     cfg.Settings.DownloadURL,
		LoginPath:   loginPath(cfg.Settings.LoginURL),
		TaskTimeout: cfg.Settings.TaskTimeout,
	})

	if err := printResults(cmd.OutOrStdout(), results); err != nil {
		return err
	}
	return ctx.Err()
}

// loginPath is the path a redirect must start with to count as an expired
// session.
func loginPath(loginURL string) string {
	u, err := url.Parse(loginURL)
	if err != nil || u.Path == "" || u.Path == "/" {
		return download.DefaultLoginPath
	}
	return u.Path
}

func printResults(w io.Writer, results []download.Result) error {
	tabWriter := tabwriter.NewWriter(w, 0, 0, TabWidth, ' ', 0)
	_, _ = fmt.Fprintln(tabWriter, "TILE\tSTATUS\tSIZE\tFILE")
	_, _ = fmt.Fprintln(tabWriter, "----\t------\t----\t----")
	for _, r := range results {
		size, file := "-", r.Path
		if r.Status == download.StatusSaved {
			size = humanize.Bytes(uint64(r.Bytes))
		}
		if r.Err != nil {
			file = r.Err.Error()
		}
		_, _ = fmt.Fprintf(tabWriter, "%s\t%s\t%s\t%s\n", r.Tile.Name(), r.Status, size, file)
	}
	return tabWriter.Flush()
}

// serveMetrics exposes reg on addr until the returned stop is called. It
// returns the address actually bound.
func serveMetrics(addr string, reg *prometheus.Registry) (string, func(), error) {
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", nil, errors.Connection(err, addr)
	}

	mux := nethttp.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &nethttp.Server{Handler: mux, ReadHeaderTimeout: MetricsReadHeaderTimeout}

	go func() {
		if err := srv.Serve(ln); err != nil && err != nethttp.ErrServerClosed {
			logger.Error("metrics server stopped", logger.Fields{"addr": addr, "error": err.Error()})
		}
	}()
	bound := ln.Addr().String()
	logger.Info("serving metrics", logger.Fields{"addr": bound})

	return bound, func() {
		ctx, cancel := context.WithTimeout(context.Background(), MetricsShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
