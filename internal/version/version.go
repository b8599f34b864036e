// Package version holds build metadata injected via ldflags.
package version

// Name is reported in logs, OAI Identify and SRU explain.
const Name = "libcat"

//nolint:revive // Set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// String formats the build as "libcat dev (unknown)".
func String() string {
	return Name + " " + Version + " (" + Commit + ")"
}
