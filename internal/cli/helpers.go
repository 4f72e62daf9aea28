package cli

import (
	"fmt"

	"github.com/glorpus-work/srtm1dl/internal/logger"
	"github.com/glorpus-work/srtm1dl/pkg/cache"
	"github.com/glorpus-work/srtm1dl/pkg/config"
	"github.com/glorpus-work/srtm1dl/pkg/errors"
	"github.com/glorpus-work/srtm1dl/pkg/ftp"
	"github.com/glorpus-work/srtm1dl/pkg/http"
)

// These variables will be set by the main package
var (
	ConfigPath *string
	Verbose    *bool
	EnvDir     = "."
)

// loadConfig reads the config file, then .env files and the environment,
// and initializes the logger from the result. Flags are applied by callers.
func loadConfig() (*config.Config, error) {
	if err := config.LoadEnvFiles(EnvDir); err != nil {
		return nil, fmt.Errorf("failed to load environment files: %w", err)
	}

	cfg, err := loadConfigFile()
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, fmt.Errorf("failed to apply environment: %w", err)
	}

	initLogger(cfg)
	return cfg, nil
}

// loadConfigFile reads only the config file, for commands that write it back.
func loadConfigFile() (*config.Config, error) {
	configPath := getConfigPath()
	if configPath == "" {
		return nil, errors.ErrEmptyConfigPath
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	initLogger(cfg)
	logger.Debug("configuration loaded", logger.Fields{"path": configPath})
	return cfg, nil
}

func initLogger(cfg *config.Config) {
	level := cfg.Settings.LogLevel
	if Verbose != nil && *Verbose {
		level = "debug"
	}
	logger.InitLogger(level, logger.OutputFormat(cfg.Settings.LogFormat))
}

func newHTTPClient(cfg *config.Config) *http.Client {
	return http.NewClient(http.Options{
		ConnectTimeout: cfg.Settings.ConnectTimeout,
		UserAgent:      cfg.Settings.UserAgent,
	})
}

// newCacheManager builds a cache manager for the configured directory,
// fetching ftp and http(s) URLs with the raw-socket clients.
func newCacheManager(cfg *config.Config) *cache.DefaultManager {
	ftpClient := ftp.NewClient(ftp.Options{ConnectTimeout: cfg.Settings.ConnectTimeout})
	fetchers := cache.DefaultFetchers(newHTTPClient(cfg), ftpClient)
	return cache.NewManager(cfg.Settings.CacheDir, cfg.Settings.CacheTTL, fetchers)
}
