package version

import "fmt"

// Set at build time via -ldflags, e.g.
//
//	-X github.com/agentmart/agentmart/internal/version.Commit=$(git rev-parse --short HEAD)
var (
	Version = "v0.1.0"
	Commit  = "unknown"
	BuiltAt = "unknown"
)

// Info returns the short version string used in logs and API responses.
func Info() string {
	return Version
}

// FullInfo returns the complete build identity for the version subcommand.
func FullInfo() string {
	return fmt.Sprintf("agentmart %s (commit %s, built %s)", Version, Commit, BuiltAt)
}
