// Package config provides configuration management for srtm1dl.
// Settings come from a YAML file, then from .env files and the process
// environment, and finally from command line flags applied by the caller.
package config

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/glorpus-work/srtm1dl/pkg/errors"
	"github.com/glorpus-work/srtm1dl/pkg/fsutil"
	"github.com/glorpus-work/srtm1dl/pkg/tile"
)

// Config represents the application configuration.
type Config struct {
	// Archive account used for the login handshake
	Account Account `yaml:"account"`

	// Tile rectangle to download
	Region Region `yaml:"region"`

	// General settings
	Settings Settings `yaml:"settings"`
}

// Account holds archive credentials.
type Account struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Region bounds the tiles to download. Nil means not configured.
type Region struct {
	MinLatitude  *int `yaml:"min_latitude,omitempty"`
	MaxLatitude  *int `yaml:"max_latitude,omitempty"`
	MinLongitude *int `yaml:"min_longitude,omitempty"`
	MaxLongitude *int `yaml:"max_longitude,omitempty"`
}

// Settings represents general application settings.
type Settings struct {
	// Download settings
	Threads     int           `yaml:"threads"`
	OutputDir   string        `yaml:"output_dir,omitempty"`
	LoginURL    string        `yaml:"login_url"`
	DownloadURL string        `yaml:"download_url"`
	TaskTimeout time.Duration `yaml:"task_timeout"`

	// Network settings
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	UserAgent      string        `yaml:"user_agent"`

	// Cache settings
	CacheDir string        `yaml:"cache_dir,omitempty"`
	CacheTTL time.Duration `yaml:"cache_ttl"`

	// Output settings
	LogFormat   string `yaml:"log_format"` // text, json
	LogLevel    string `yaml:"log_level"`  // debug, info, warn, error
	MetricsAddr string `yaml:"metrics_addr,omitempty"`
}

// Default configuration values.
const (
	DefaultThreads        = 4
	DefaultLoginURL       = "https://earthexplorer.usgs.gov/login"
	DefaultDownloadURL    = tile.DefaultBaseURL
	DefaultConnectTimeout = 10 * time.Second
	DefaultUserAgent      = "srtm1dl/1.0"
	DefaultCacheTTL       = 7 * 24 * time.Hour

	// YAMLIndent is the number of spaces to use for YAML indentation.
	YAMLIndent = 2
)

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	cacheDir, err := fsutil.GetCacheDir()
	if err != nil {
		cacheDir = filepath.Join(os.TempDir(), fsutil.AppName)
	}
	return &Config{
		Settings: Settings{
			Threads:        DefaultThreads,
			OutputDir:      ".",
			LoginURL:       DefaultLoginURL,
			DownloadURL:    DefaultDownloadURL,
			ConnectTimeout: DefaultConnectTimeout,
			UserAgent:      DefaultUserAgent,
			CacheDir:       cacheDir,
			CacheTTL:       DefaultCacheTTL,
			LogFormat:      "text",
			LogLevel:       "info",
		},
	}
}

// LoadConfig loads configuration from a file. A missing file yields defaults.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, errors.ErrEmptyConfigPath
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrInvalidConfigPath, err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, errors.Wrapf(err, "failed to open config file: %s", path)
	}
	defer func() { _ = file.Close() }()

	return LoadConfigFromReader(file)
}

// LoadConfigFromReader loads configuration from an io.Reader.
func LoadConfigFromReader(reader io.Reader) (*Config, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config data")
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrConfigParse, err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// SaveConfig saves configuration to a file.
func (c *Config) SaveConfig(path string) error {
	if path == "" {
		return errors.ErrEmptyConfigPath
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("%w: %w", errors.ErrInvalidConfigPath, err)
	}

	if err := os.MkdirAll(filepath.Dir(absPath), fsutil.DirModeSecure); err != nil {
		return fmt.Errorf("%w: %w", errors.ErrConfigDirectory, err)
	}

	// The file can hold the archive password.
	tempPath := absPath + ".tmp"
	file, err := os.OpenFile(tempPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, fsutil.FileModeSecure)
	if err != nil {
		return fmt.Errorf("%w: %w", errors.ErrConfigFileCreate, err)
	}

	encoder := yaml.NewEncoder(file)
	encoder.SetIndent(YAMLIndent)

	if err := encoder.Encode(c); err != nil {
		_ = file.Close()
		_ = os.Remove(tempPath)
		return fmt.Errorf("%w: %w", errors.ErrConfigEncode, err)
	}

	_ = encoder.Close()
	_ = file.Close()

	if err := os.Rename(tempPath, absPath); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("%w: %w", errors.ErrConfigFileRename, err)
	}
	return nil
}

// ToYAML converts the config to YAML bytes.
func (c *Config) ToYAML() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrConfigEncode, err)
	}
	return data, nil
}

// Validate checks the settings every command depends on.
func (c *Config) Validate() error {
	if c == nil {
		return errors.ErrConfigValidation
	}
	return validateSettings(c.Settings)
}

// ValidateDownload additionally requires credentials and a complete,
// in-range region.
func (c *Config) ValidateDownload() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Account.Username == "" {
		return errors.FieldRequired("username")
	}
	if c.Account.Password == "" {
		return errors.FieldRequired("password")
	}
	rect, err := c.Region.Rect()
	if err != nil {
		return err
	}
	return rect.Validate()
}

// Rect converts the region into a tile rectangle; every bound must be set.
func (r Region) Rect() (tile.Rect, error) {
	bounds := []struct {
		name  string
		value *int
	}{
		{"min_latitude", r.MinLatitude},
		{"max_latitude", r.MaxLatitude},
		{"min_longitude", r.MinLongitude},
		{"max_longitude", r.MaxLongitude},
	}
	for _, b := range bounds {
		if b.value == nil {
			return tile.Rect{}, errors.FieldRequired(b.name)
		}
	}
	return tile.Rect{
		MinLat: *r.MinLatitude,
		MaxLat: *r.MaxLatitude,
		MinLon: *r.MinLongitude,
		MaxLon: *r.MaxLongitude,
	}, nil
}

func validateSettings(s Settings) error {
	if s.Threads < 1 {
		return fmt.Errorf("%w: threads must be at least 1, got %d", errors.ErrConfigValidation, s.Threads)
	}
	for name, raw := range map[string]string{"login_url": s.LoginURL, "download_url": s.DownloadURL} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("%w: %s %q is not an absolute url", errors.ErrConfigValidation, name, raw)
		}
	}
	if s.ConnectTimeout < 0 || s.TaskTimeout < 0 || s.CacheTTL < 0 {
		return fmt.Errorf("%w: durations cannot be negative", errors.ErrConfigValidation)
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[s.LogFormat] {
		return fmt.Errorf("%w: invalid log_format %q, must be text or json", errors.ErrConfigValidation, s.LogFormat)
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(s.LogLevel)] {
		return fmt.Errorf("%w: invalid log_level %q", errors.ErrConfigValidation, s.LogLevel)
	}
	return nil
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() (string, error) {
	configDir, err := fsutil.GetConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}
	return filepath.Join(configDir, "config.yaml"), nil
}

// applyDefaults fills in missing values with defaults.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()

	if c.Settings.Threads == 0 {
		c.Settings.Threads = defaults.Settings.Threads
	}
	if c.Settings.OutputDir == "" {
		c.Settings.OutputDir = defaults.Settings.OutputDir
	}
	if c.Settings.LoginURL == "" {
		c.Settings.LoginURL = defaults.Settings.LoginURL
	}
	if c.Settings.DownloadURL == "" {
		c.Settings.DownloadURL = defaults.Settings.DownloadURL
	}
	if c.Settings.ConnectTimeout == 0 {
		c.Settings.ConnectTimeout = defaults.Settings.ConnectTimeout
	}
	if c.Settings.UserAgent == "" {
		c.Settings.UserAgent = defaults.Settings.UserAgent
	}
	if c.Settings.CacheDir == "" {
		c.Settings.CacheDir = defaults.Settings.CacheDir
	}
	if c.Settings.CacheTTL == 0 {
		c.Settings.CacheTTL = defaults.Settings.CacheTTL
	}
	if c.Settings.LogFormat == "" {
		c.Settings.LogFormat = defaults.Settings.LogFormat
	}
	if c.Settings.LogLevel == "" {
		c.Settings.LogLevel = defaults.Settings.LogLevel
	}
}
