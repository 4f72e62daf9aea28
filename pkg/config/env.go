package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/glorpus-work/srtm1dl/pkg/errors"
)

// Environment variables read by ApplyEnv.
const (
	EnvUsername  = "SRTM1DL_USERNAME"
	EnvPassword  = "SRTM1DL_PASSWORD"
	EnvThreads   = "SRTM1DL_THREADS"
	EnvOutputDir = "SRTM1DL_OUTPUT_DIR"
	EnvLogLevel  = "SRTM1DL_LOG_LEVEL"
)

// LoadEnvFiles loads dir/.env and then dir/.env.local into the process
// environment. Variables already set in the environment win over .env;
// .env.local overrides both. Missing files are ignored.
func LoadEnvFiles(dir string) error {
	base := filepath.Join(dir, ".env")
	if _, err := os.Stat(base); err == nil {
		if err := godotenv.Load(base); err != nil {
			return fmt.Errorf("failed to load %s: %w", base, err)
		}
	}

	local := filepath.Join(dir, ".env.local")
	if _, err := os.Stat(local); err == nil {
		if err := godotenv.Overload(local); err != nil {
			return fmt.Errorf("failed to load %s: %w", local, err)
		}
	}
	return nil
}

// ApplyEnv overrides config values from the environment.
func (c *Config) ApplyEnv() error {
	return c.applyEnv(os.LookupEnv)
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvUsername); ok && v != "" {
		c.Account.Username = v
	}
	if v, ok := lookup(EnvPassword); ok && v != "" {
		c.Account.Password = v
	}
	if v, ok := lookup(EnvThreads); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not a number", errors.ErrConfigValidation, EnvThreads, v)
		}
		c.Settings.Threads = n
	}
	if v, ok := lookup(EnvOutputDir); ok && v != "" {
		c.Settings.OutputDir = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Settings.LogLevel = v
	}
	return nil
}
