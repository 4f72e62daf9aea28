package cli

import "time"

// Default values for CLI flags and output.
const (
	// TabWidth is the width of tabs in formatted output.
	TabWidth = 2
	// MetricsShutdownTimeout bounds the metrics server shutdown after a run.
	MetricsShutdownTimeout = 5 * time.Second
	// MetricsReadHeaderTimeout bounds reading a scrape request's headers.
	MetricsReadHeaderTimeout = 10 * time.Second
)
