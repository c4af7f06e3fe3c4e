// Package version reports the build version of the commands.
package version

import (
	"fmt"
	"runtime"

	"github.com/carlmjohnson/versioninfo"
)

// These variables can be set at build time via ldflags:
//
//	go build -ldflags="-X github.com/muurk/intesis/internal/version.Version=v1.2.3 \
//	                   -X github.com/muurk/intesis/internal/version.Commit=abc123"
//
// If not set, they are populated from the module and VCS build info.
var (
	// Version is the semantic version of the application
	Version = ""
	// Commit is the git commit hash
	Commit = ""
)

func init() {
	if Version == "" {
		Version = versioninfo.Version
	}
	if Version == "" || Version == "(devel)" || Version == "unknown" {
		Version = "dev"
		if !versioninfo.LastCommit.IsZero() {
			Version = "dev-" + versioninfo.LastCommit.Format("20060102")
		}
	}

	if Commit == "" {
		Commit = shortCommit(versioninfo.Revision, versioninfo.DirtyBuild)
	}
}

// shortCommit trims a revision to 7 characters and marks dirty builds
func shortCommit(revision string, dirty bool) string {
	if revision == "" || revision == "unknown" {
		return "unknown"
	}
	if len(revision) > 7 {
		revision = revision[:7]
	}
	if dirty {
		revision += "-dirty"
	}
	return revision
}

// Short returns the version for device names and MQTT discovery payloads
func Short() string {
	return Version
}

// Full returns the full version string including commit
func Full() string {
	return fmt.Sprintf("%s (commit: %s, %s)", Version, Commit, runtime.Version())
}
