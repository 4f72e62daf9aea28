package fsutil

import (
	"os"
	"path/filepath"
)

const (
	// AppName is the name of the application used in paths
	AppName = "srtm1dl"
)

// GetCacheDir returns the platform-specific cache directory for the application
// On Linux: ~/.cache/srtm1dl/
// On macOS: ~/Library/Caches/srtm1dl/
// On Windows: %LOCALAPPDATA%\srtm1dl\
func GetCacheDir() (string, error) {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cacheDir, AppName), nil
}

// GetConfigDir returns the platform-specific config directory for the application.
// On Linux this honours $XDG_CONFIG_HOME and falls back to ~/.config/srtm1dl/.
func GetConfigDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, AppName), nil
}

// EnsureDir creates path and its parents with DirModeDefault.
func EnsureDir(path string) error {
	return os.MkdirAll(path, DirModeDefault)
}
