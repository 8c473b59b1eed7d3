// Package version holds build metadata for the rankeval binary.
package version

// Injected via -ldflags at build time.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)
