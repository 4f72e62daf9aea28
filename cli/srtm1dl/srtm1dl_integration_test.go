//go:build integration

package main

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glorpus-work/srtm1dl/pkg/config"
	"github.com/glorpus-work/srtm1dl/pkg/tile"
	"github.com/glorpus-work/srtm1dl/test/testutil"
)

func buildTestBinary(t *testing.T) string {
	t.Helper()

	tmpDir := t.TempDir()
	binaryPath := filepath.Join(tmpDir, "srtm1dl")
	if runtime.GOOS == "windows" {
		binaryPath += ".exe"
	}

	// Build the test binary from the project root
	cmd := exec.Command("go", "build", "-o", binaryPath, "./cli/srtm1dl")
	cmd.Dir = filepath.Clean(filepath.Join("..", ".."))

	output, err := cmd.CombinedOutput()
	require.NoError(t, err, "failed to build test binary: %s", string(output))

	return binaryPath
}

type cliTest struct {
	name           string
	args           []string
	env            []string
	expectedOutput string
	expectedError  string
}

func runCLITest(t *testing.T, binaryPath, tempDir string, test cliTest) string {
	t.Helper()

	cmd := exec.Command(binaryPath, test.args...)
	cmd.Dir = tempDir

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Env = append(os.Environ(),
		"XDG_CONFIG_HOME="+filepath.Join(tempDir, "config"),
		"XDG_CACHE_HOME="+filepath.Join(tempDir, "cache"),
	)
	cmd.Env = append(cmd.Env, test.env...)

	done := make(chan error, 1)
	go func() {
		done <- cmd.Run()
	}()

	select {
	case err := <-done:
		if test.expectedError != "" {
			require.Error(t, err, "expected error but got none")
			assert.Contains(t, stderr.String(), test.expectedError)
		} else {
			assert.NoError(t, err, "unexpected error: %v\nstderr: %s", err, stderr.String())
		}
		if test.expectedOutput != "" {
			assert.Contains(t, stdout.String(), test.expectedOutput)
		}
	case <-time.After(30 * time.Second):
		t.Fatal("Test timed out after 30 seconds")
	}
	return stdout.String()
}

func TestCLIIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	binaryPath := buildTestBinary(t)

	tests := []cliTest{
		{
			name:           "help command",
			args:           []string{"help"},
			expectedOutput: "srtm1dl downloads SRTM 1 arc-second elevation tiles",
		},
		{
			name:           "version command",
			args:           []string{"version"},
			expectedOutput: "srtm1dl version",
		},
		{
			name:           "config init",
			args:           []string{"config", "init"},
			expectedOutput: "",
		},
		{
			name:          "download without credentials",
			args:          []string{"download", "--min-lat=1", "--max-lat=1", "--min-lon=1", "--max-lon=1"},
			expectedError: "username is required",
		},
		{
			name:          "unknown config key",
			args:          []string{"config", "get", "colour"},
			expectedError: "unknown configuration key",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			runCLITest(t, binaryPath, t.TempDir(), test)
		})
	}
}

func TestDownloadIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	binaryPath := buildTestBinary(t)
	tempDir := t.TempDir()

	archive := testutil.NewArchiveServer(t, "jane", "secret")
	tl := tile.Tile{Lat: -3, Lon: 45}
	archive.AddTile(tl.Name(), []byte("elevation"))

	cfg := config.DefaultConfig()
	cfg.Settings.LoginURL = archive.LoginURL()
	cfg.Settings.DownloadURL = archive.DownloadURL()
	cfg.Settings.OutputDir = filepath.Join(tempDir, "tiles")
	configPath := filepath.Join(tempDir, "srtm1dl.yaml")
	require.NoError(t, cfg.SaveConfig(configPath))

	// Credentials come from .env in the working directory.
	require.NoError(t, os.WriteFile(filepath.Join(tempDir, ".env"),
		[]byte(config.EnvUsername+"=jane\n"+config.EnvPassword+"=secret\n"), 0o600))

	args := []string{"--config", configPath, "download", "--min-lat=-3", "--max-lat=-3", "--min-lon=45", "--max-lon=45"}
	test := cliTest{name: "download", args: args, expectedOutput: tl.Name()}
	runCLITest(t, binaryPath, tempDir, test)

	// A re-run overwrites the file without extra logins per tile.
	runCLITest(t, binaryPath, tempDir, test)

	data, err := os.ReadFile(filepath.Join(cfg.Settings.OutputDir, testutil.DataFile(tl.Name())))
	require.NoError(t, err)
	assert.Equal(t, "elevation", string(data))
	assert.Equal(t, 2, archive.Logins())
	assert.Equal(t, 2, archive.TileRequests())
}
