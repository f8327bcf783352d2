// Package version holds the daemon's build-time identity, overwritten
// at link time via -ldflags "-X .../internal/version.Version=...", the
// same convention the teacher's version package follows for cmd/gpud.
package version

// Version is the daemon's build version string, "dev" unless set by
// the release build's linker flags.
var Version = "dev"

// Profile distinguishes a debug build from a release one, mirroring
// system.rs's cfg!(debug_assertions) check.
var Profile = "dev"
