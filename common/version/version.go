// Package version holds the build identity stamped in at link time.
// Hibiki surfaces it in three places: the startup banner, the !version
// command, and the /health endpoint.
package version

var (
	// Version is the semantic version (set via ldflags)
	Version = "v0.0.0-dev"

	// GitCommit is the git commit hash (set via ldflags)
	GitCommit = "unknown"

	// BuildTime is the build timestamp (set via ldflags)
	BuildTime = "unknown"
)

// Info renders the build identity as a single log-friendly string.
func Info() string {
	return Version + " (" + GitCommit + ") built at " + BuildTime
}
