package version

import "runtime"

// Version is the TimeTrip release. Overridden at build time with
// -ldflags "-X github.com/rubiojr/timetrip/pkg/version.Version=...".
var Version = "0.1.0"

// BuildVersion returns the version string for display
func BuildVersion() string {
	return "timetrip version " + Version + " (" + runtime.Version() + ")"
}

// APIVersion returns just the version number for the shell health endpoint
func APIVersion() string {
	return Version
}
