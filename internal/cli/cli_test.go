package cli

import (
	"bytes"
	stderrors "errors"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glorpus-work/srtm1dl/internal/logger"
	"github.com/glorpus-work/srtm1dl/pkg/config"
	"github.com/glorpus-work/srtm1dl/pkg/errors"
	"github.com/glorpus-work/srtm1dl/pkg/metrics"
	"github.com/glorpus-work/srtm1dl/pkg/tile"
	"github.com/glorpus-work/srtm1dl/test/testutil"
)

type cliEnv struct {
	dir        string
	configPath string
	cacheDir   string
	outDir     string
	logs       *bytes.Buffer
}

// setupCLI points the package at a temporary config file and .env
// directory, clears SRTM1DL_* variables and captures logs.
func setupCLI(t *testing.T) *cliEnv {
	t.Helper()
	dir := t.TempDir()
	env := &cliEnv{
		dir:        dir,
		configPath: filepath.Join(dir, "config", "config.yaml"),
		cacheDir:   filepath.Join(dir, "cache"),
		outDir:     filepath.Join(dir, "out"),
		logs:       &bytes.Buffer{},
	}

	prevPath, prevVerbose, prevEnvDir := ConfigPath, Verbose, EnvDir
	verbose := false
	ConfigPath, Verbose, EnvDir = &env.configPath, &verbose, dir
	t.Cleanup(func() { ConfigPath, Verbose, EnvDir = prevPath, prevVerbose, prevEnvDir })

	for _, k := range []string{config.EnvUsername, config.EnvPassword, config.EnvThreads, config.EnvOutputDir, config.EnvLogLevel} {
		t.Setenv(k, "")
	}
	t.Setenv("XDG_CACHE_HOME", filepath.Join(dir, "xdg-cache"))

	logger.SetTestOutput(env.logs)
	t.Cleanup(logger.UnsetTestOutput)
	return env
}

func (e *cliEnv) writeConfig(t *testing.T, mutate func(*config.Config)) {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Settings.CacheDir = e.cacheDir
	cfg.Settings.OutputDir = e.outDir
	if mutate != nil {
		mutate(cfg)
	}
	require.NoError(t, cfg.SaveConfig(e.configPath))
}

func execute(cmd *cobra.Command, args ...string) (string, error) {
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(NewVersionCmd())
	require.NoError(t, err)
	assert.Contains(t, out, "srtm1dl version "+Version)
	assert.Contains(t, out, "Git commit: ")
}

func TestConfigInit(t *testing.T) {
	env := setupCLI(t)

	_, err := execute(NewConfigCmd(), "init")
	require.NoError(t, err)
	assert.FileExists(t, env.configPath)

	_, err = execute(NewConfigCmd(), "init")
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrConfigFileExists))

	_, err = execute(NewConfigCmd(), "init", "--force")
	require.NoError(t, err)

	cfg, err := config.LoadConfig(env.configPath)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultThreads, cfg.Settings.Threads)
}

func TestConfigSetAndGet(t *testing.T) {
	env := setupCLI(t)
	env.writeConfig(t, nil)

	_, err := execute(NewConfigCmd(), "set", "threads", "8")
	require.NoError(t, err)
	out, err := execute(NewConfigCmd(), "get", "threads")
	require.NoError(t, err)
	assert.Equal(t, "8\n", out)

	_, err = execute(NewConfigCmd(), "set", "password", "hunter2")
	require.NoError(t, err)
	out, err = execute(NewConfigCmd(), "get", "password")
	require.NoError(t, err)
	assert.Equal(t, "********\n", out)
	assert.NotContains(t, env.logs.String(), "hunter2")

	cfg, err := config.LoadConfig(env.configPath)
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Settings.Threads)
	assert.Equal(t, "hunter2", cfg.Account.Password)
}

func TestConfigSet_Rejected(t *testing.T) {
	env := setupCLI(t)
	env.writeConfig(t, nil)

	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "unknown key", key: "colour", value: "blue"},
		{name: "not a number", key: "threads", value: "many"},
		{name: "fails validation", key: "threads", value: "0"},
		{name: "bad log level", key: "log_level", value: "loud"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(NewConfigCmd(), "set", tt.key, tt.value)
			require.Error(t, err)
		})
	}

	cfg, err := config.LoadConfig(env.configPath)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultThreads, cfg.Settings.Threads)
}

func TestConfigShow_EnvOverride(t *testing.T) {
	env := setupCLI(t)
	env.writeConfig(t, func(cfg *config.Config) { cfg.Account.Username = "fileuser" })
	require.NoError(t, os.WriteFile(filepath.Join(env.dir, ".env.local"), []byte(config.EnvUsername+"=envuser\n"), 0o600))

	out, err := execute(NewConfigCmd(), "show")
	require.NoError(t, err)
	assert.Contains(t, out, "SETTING")
	assert.Contains(t, out, "envuser")
	assert.NotContains(t, out, "fileuser")
	assert.Contains(t, out, "cache_dir")

	// Writing the file must not persist the environment override.
	_, err = execute(NewConfigCmd(), "set", "threads", "3")
	require.NoError(t, err)
	cfg, err := config.LoadConfig(env.configPath)
	require.NoError(t, err)
	assert.Equal(t, "fileuser", cfg.Account.Username)
}

func TestCacheCommands(t *testing.T) {
	env := setupCLI(t)
	env.writeConfig(t, nil)
	require.NoError(t, os.MkdirAll(env.cacheDir, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(env.cacheDir, "geoid.txt"), make([]byte, 2000), 0o600))

	out, err := execute(NewCacheCmd(), "dir")
	require.NoError(t, err)
	assert.Equal(t, env.cacheDir+"\n", out)

	out, err = execute(NewCacheCmd(), "info")
	require.NoError(t, err)
	assert.Contains(t, out, "2.0 kB")
	assert.Contains(t, out, "1 (0 stale)")

	out, err = execute(NewCacheCmd(), "clean")
	require.NoError(t, err)
	assert.Contains(t, out, "Removed 1 files, freed 2.0 kB")
	assert.NoFileExists(t, filepath.Join(env.cacheDir, "geoid.txt"))

	out, err = execute(NewCacheCmd(), "clean")
	require.NoError(t, err)
	assert.Contains(t, out, "No files were removed")
}

func TestFetchCmd(t *testing.T) {
	env := setupCLI(t)
	env.writeConfig(t, nil)

	var hits atomic.Int32
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		hits.Add(1)
		assert.Equal(t, "/ref/egm96.txt", r.URL.Path)
		w.Header().Set("Content-Length", "6")
		_, _ = w.Write([]byte("geoid\n"))
	}))
	defer server.Close()

	out, err := execute(NewFetchCmd(), server.URL+"/ref/egm96.txt")
	require.NoError(t, err)
	path := filepath.Join(env.cacheDir, "egm96.txt")
	assert.Equal(t, path+"\n", out)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "geoid\n", string(data))

	// Fresh entries are served from disk.
	_, err = execute(NewFetchCmd(), server.URL+"/ref/egm96.txt")
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())

	out, err = execute(NewFetchCmd(), server.URL+"/ref/egm96.txt", "--name", "geoid.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(env.cacheDir, "geoid.txt")+"\n", out)
	assert.Equal(t, int32(2), hits.Load())
}

func TestEntryName(t *testing.T) {
	tests := []struct {
		url     string
		want    string
		wantErr bool
	}{
		{url: "ftp://ftp.example.org/pub/egm96.txt", want: "egm96.txt"},
		{url: "https://example.org/a/b/c.zip?x=1", want: "c.zip"},
		{url: "https://example.org/", wantErr: true},
		{url: "https://example.org", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			got, err := entryName(tt.url)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoginPath(t *testing.T) {
	assert.Equal(t, "/login", loginPath(config.DefaultLoginURL))
	assert.Equal(t, "/sso/auth", loginPath("https://example.org/sso/auth"))
	assert.Equal(t, "/login", loginPath("https://example.org"))
	assert.Equal(t, "/login", loginPath("://bad"))
}

func TestDownloadCmd(t *testing.T) {
	env := setupCLI(t)
	archive := testutil.NewArchiveServer(t, "jane", "secret")
	env.writeConfig(t, func(cfg *config.Config) {
		cfg.Account = config.Account{Username: "jane", Password: "secret"}
		cfg.Settings.LoginURL = archive.LoginURL()
		cfg.Settings.DownloadURL = archive.DownloadURL()
	})

	saved := []tile.Tile{{Lat: 11, Lon: -9}, {Lat: 11, Lon: -8}}
	missing := tile.Tile{Lat: 11, Lon: -7}
	for _, tl := range saved {
		archive.AddTile(tl.Name(), []byte("elevation "+tl.Name()))
	}

	out, err := execute(NewDownloadCmd(),
		"--min-lat=11", "--max-lat=11", "--min-lon=-7", "--max-lon=-9", "--threads=2")
	require.NoError(t, err)

	for _, tl := range saved {
		data, err := os.ReadFile(filepath.Join(env.outDir, testutil.DataFile(tl.Name())))
		require.NoError(t, err)
		assert.Equal(t, "elevation "+tl.Name(), string(data))
	}
	assert.NoFileExists(t, filepath.Join(env.outDir, testutil.DataFile(missing.Name())))

	assert.Equal(t, 1, archive.Logins())
	assert.Equal(t, 3, archive.TileRequests())
	assert.Contains(t, out, missing.Name())
	assert.Equal(t, 2, strings.Count(out, "saved"))
	assert.Equal(t, 1, strings.Count(out, "skipped"))
	assert.Contains(t, env.logs.String(), "run_id=")
}

func TestDownloadCmd_InvalidConfiguration(t *testing.T) {
	env := setupCLI(t)
	archive := testutil.NewArchiveServer(t, "jane", "secret")
	env.writeConfig(t, func(cfg *config.Config) {
		cfg.Settings.LoginURL = archive.LoginURL()
		cfg.Settings.DownloadURL = archive.DownloadURL()
	})

	tests := []struct {
		name string
		args []string
	}{
		{name: "missing credentials", args: []string{"--min-lat=1", "--max-lat=1", "--min-lon=1", "--max-lon=1"}},
		{name: "missing bound", args: []string{"--username=jane", "--password=secret", "--min-lat=1", "--max-lat=1"}},
		{name: "out of range", args: []string{"--username=jane", "--password=secret", "--min-lat=1", "--max-lat=91", "--min-lon=1", "--max-lon=1"}},
		{name: "no threads", args: []string{"--username=jane", "--password=secret", "--min-lat=1", "--max-lat=1", "--min-lon=1", "--max-lon=1", "--threads=0"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(NewDownloadCmd(), tt.args...)
			require.Error(t, err)
			assert.True(t, stderrors.Is(err, errors.ErrConfigValidation), "got %v", err)
		})
	}
	assert.Zero(t, archive.Logins())
	assert.Zero(t, archive.TileRequests())
}

func TestDownloadCmd_FailedLoginIsNotFatal(t *testing.T) {
	env := setupCLI(t)
	archive := testutil.NewArchiveServer(t, "jane", "secret")
	env.writeConfig(t, func(cfg *config.Config) {
		cfg.Account = config.Account{Username: "jane", Password: "wrong"}
		cfg.Settings.LoginURL = archive.LoginURL()
		cfg.Settings.DownloadURL = archive.DownloadURL()
	})
	tl := tile.Tile{Lat: 0, Lon: 0}
	archive.AddTile(tl.Name(), []byte("x"))

	out, err := execute(NewDownloadCmd(), "--min-lat=0", "--max-lat=0", "--min-lon=0", "--max-lon=0")
	require.NoError(t, err)
	assert.Contains(t, out, "failed")
	// The initial login plus the one re-login the tile is allowed.
	assert.Equal(t, 2, archive.Logins())
	assert.NoFileExists(t, filepath.Join(env.outDir, testutil.DataFile(tl.Name())))
}

func TestServeMetrics(t *testing.T) {
	setupCLI(t)
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.TileStarted()

	addr, stop, err := serveMetrics("127.0.0.1:0", reg)
	require.NoError(t, err)
	defer stop()

	resp, err := nethttp.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, nethttp.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "srtm1dl_tiles_in_flight 1")
	assert.Contains(t, string(body), "go_goroutines")
}
