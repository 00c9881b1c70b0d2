package version

import "fmt"

var (
	// Version is the current bridge version, set with -ldflags at build time
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String formats the build information for the -version flag and the startup log.
func String() string {
	return fmt.Sprintf("codeshield-bridge %s (%s, built %s)", Version, GitSHA, BuildTime)
}
