// Package version holds build metadata injected at link time.
package version

var (
	// GitRelease is the release tag, set via ldflags.
	GitRelease = "dev"

	// GitCommit is the commit hash, set via ldflags.
	GitCommit = ""
)
