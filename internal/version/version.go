// Package version holds build metadata injected via ldflags.
package version

import "fmt"

//nolint:revive // Set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// String renders the build metadata on one line.
func String() string {
	return fmt.Sprintf("kbase %s (commit %s, built %s)", Version, Commit, Date)
}

// UserAgent is the product token sent by outbound fetchers.
func UserAgent() string {
	return fmt.Sprintf("Mozilla/5.0 (compatible; kbase-crawler/%s)", Version)
}
