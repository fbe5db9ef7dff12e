// Package version reports the build version of s5nav.
package version

import (
	"runtime/debug"
	"strings"
)

var (
	// Version represents the git tag of a particular release. It is set with
	// -ldflags at build time.
	Version = "v0.0.0"

	// GitCommit represents git commit hash of a particular release.
	GitCommit = "dev"
)

// GetHumanVersion returns human readable version information. Development
// builds fall back to the VCS revision recorded by the Go toolchain.
func GetHumanVersion() string {
	version := Version
	if !strings.HasPrefix(version, "v") {
		version = "v" + version
	}

	commit := GitCommit
	if commit == "dev" {
		if rev := vcsRevision(); rev != "" {
			commit = rev
		}
	}
	return version + "-" + commit
}

func vcsRevision() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && len(s.Value) >= 7 {
			return s.Value[:7]
		}
	}
	return ""
}
