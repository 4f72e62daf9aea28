package config

import (
	"fmt"
	"strconv"
	"time"
)

const masked = "********"

// SetValue sets a configuration value by key
// Supported keys:
//   - username, password: string - archive credentials
//   - min_latitude, max_latitude, min_longitude, max_longitude: int - region bounds
//   - threads: int - number of parallel downloads
//   - output_dir, login_url, download_url, user_agent, cache_dir: string
//   - task_timeout, connect_timeout, cache_ttl: duration (e.g. 30s)
//   - log_level, log_format, metrics_addr: string
func (c *Config) SetValue(key, value string) error {
	switch key {
	case "username":
		c.Account.Username = value
	case "password":
		c.Account.Password = value
	case "min_latitude", "max_latitude", "min_longitude", "max_longitude":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid integer value for %s: %s", key, value)
		}
		*c.boundFor(key) = &n
	case "threads":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid integer value for %s: %s", key, value)
		}
		c.Settings.Threads = n
	case "task_timeout", "connect_timeout", "cache_ttl":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration value for %s: %s", key, value)
		}
		*c.durationFor(key) = d
	default:
		p := c.stringFor(key)
		if p == nil {
			return fmt.Errorf("unknown configuration key: %s", key)
		}
		*p = value
	}
	return nil
}

// GetValue returns a configuration value as a string. The password is masked.
func (c *Config) GetValue(key string) (string, error) {
	switch key {
	case "username":
		return c.Account.Username, nil
	case "password":
		if c.Account.Password == "" {
			return "", nil
		}
		return masked, nil
	case "min_latitude", "max_latitude", "min_longitude", "max_longitude":
		if v := *c.boundFor(key); v != nil {
			return strconv.Itoa(*v), nil
		}
		return "", nil
	case "threads":
		return strconv.Itoa(c.Settings.Threads), nil
	case "task_timeout", "connect_timeout", "cache_ttl":
		return c.durationFor(key).String(), nil
	}
	if p := c.stringFor(key); p != nil {
		return *p, nil
	}
	return "", fmt.Errorf("unknown configuration key: %s", key)
}

// Keys lists every key accepted by GetValue and SetValue, in display order.
func Keys() []string {
	return []string{
		"username", "password",
		"min_latitude", "max_latitude", "min_longitude", "max_longitude",
		"threads", "output_dir", "login_url", "download_url", "task_timeout",
		"connect_timeout", "user_agent",
		"cache_dir", "cache_ttl",
		"log_format", "log_level", "metrics_addr",
	}
}

// ToMap returns every key with its display value.
// This is useful for displaying the configuration.
func (c *Config) ToMap() map[string]string {
	result := make(map[string]string)
	for _, k := range Keys() {
		v, _ := c.GetValue(k)
		result[k] = v
	}
	return result
}

func (c *Config) boundFor(key string) **int {
	switch key {
	case "min_latitude":
		return &c.Region.MinLatitude
	case "max_latitude":
		return &c.Region.MaxLatitude
	case "min_longitude":
		return &c.Region.MinLongitude
	default:
		return &c.Region.MaxLongitude
	}
}

func (c *Config) durationFor(key string) *time.Duration {
	switch key {
	case "task_timeout":
		return &c.Settings.TaskTimeout
	case "connect_timeout":
		return &c.Settings.ConnectTimeout
	default:
		return &c.Settings.CacheTTL
	}
}

func (c *Config) stringFor(key string) *string {
	switch key {
	case "output_dir":
		return &c.Settings.OutputDir
	case "login_url":
		return &c.Settings.LoginURL
	case "download_url":
		return &c.Settings.DownloadURL
	case "user_agent":
		return &c.Settings.UserAgent
	case "cache_dir":
		return &c.Settings.CacheDir
	case "log_format":
		return &c.Settings.LogFormat
	case "log_level":
		return &c.Settings.LogLevel
	case "metrics_addr":
		return &c.Settings.MetricsAddr
	}
	return nil
}
