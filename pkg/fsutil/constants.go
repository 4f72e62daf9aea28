package fsutil

// File and directory permission constants.
const (
	FileModeDefault = 0o644 // -rw-r--r--: tile and cache files
	FileModeSecure  = 0o600 // -rw-------: config files that hold credentials

	DirModeDefault = 0o755 // drwxr-xr-x: output directories
	DirModeSecure  = 0o750 // drwxr-x---: config and cache directories
)

// TempPattern is the os.CreateTemp pattern for partial downloads.
const TempPattern = ".srtm1dl-*.part"
