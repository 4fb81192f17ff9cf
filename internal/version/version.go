// Package version carries build metadata injected with -ldflags -X.
package version

import "fmt"

var (
	// Version is the release tag.
	Version = "v0.1.0"
	// Commit is the git short hash of the build.
	Commit = "none"
	// Date is the build timestamp.
	Date = "unknown"
)

// String renders the metadata for CLI output.
func String() string {
	return fmt.Sprintf("assplayer %s (commit: %s, built: %s)", Version, Commit, Date)
}
