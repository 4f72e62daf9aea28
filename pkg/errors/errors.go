package errors

import "fmt"

// Common error types.
var (
	// Network errors.
	ErrConnection = fmt.Errorf("connection failed")
	ErrProtocol   = fmt.Errorf("protocol error")
	ErrAuth       = fmt.Errorf("authentication failed")

	// Local filesystem errors.
	ErrIO = fmt.Errorf("local i/o failed")

	// Config errors.
	ErrEmptyConfigPath   = fmt.Errorf("config file path cannot be empty")
	ErrInvalidConfigPath = fmt.Errorf("invalid config file path")
	ErrConfigParse       = fmt.Errorf("failed to parse config")
	ErrConfigValidation  = fmt.Errorf("invalid configuration")
	ErrConfigEncode      = fmt.Errorf("failed to encode config")
	ErrConfigDirectory   = fmt.Errorf("failed to create config directory")
	ErrConfigFileCreate  = fmt.Errorf("failed to create config file")
	ErrConfigFileRename  = fmt.Errorf("failed to rename temporary config file")
	ErrConfigFileExists  = fmt.Errorf("configuration file already exists")

	// Cache errors.
	ErrCacheClean = fmt.Errorf("failed to clean cache")
	ErrCacheInfo  = fmt.Errorf("failed to get cache info")
	ErrCacheFetch = fmt.Errorf("failed to refresh cached file")
)

// Wrap wraps an error with additional context.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Wrapf wraps an error with additional formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Protocolf returns an ErrProtocol carrying a formatted detail.
func Protocolf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrProtocol, fmt.Sprintf(format, args...))
}

// Connection marks err as a connection-level failure.
func Connection(err error, target string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrConnection, target, err)
}

// FieldRequired reports a missing configuration value.
func FieldRequired(name string) error {
	return fmt.Errorf("%w: %s is required", ErrConfigValidation, name)
}

// FieldOutOfRange reports a configuration value outside [lo, hi].
func FieldOutOfRange(name string, value, lo, hi int) error {
	return fmt.Errorf("%w: %s=%d must be within [%d, %d]", ErrConfigValidation, name, value, lo, hi)
}

// Auth marks err as a failed login step, keeping err in the chain.
func Auth(err error, step string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrAuth, step, err)
}
