// Package version holds the build identity of the binary.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set via -ldflags at build time
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
	GoVersion = runtime.Version()
)

func init() {
	// go install builds carry VCS stamps even without ldflags
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	for _, s := range info.Settings {
		switch {
		case s.Key == "vcs.revision" && GitCommit == "unknown":
			GitCommit = shortCommit(s.Value)
		case s.Key == "vcs.time" && BuildDate == "unknown":
			BuildDate = s.Value
		}
	}
}

// BuildInfo returns formatted build information
func BuildInfo() string {
	return fmt.Sprintf(`BountyScope %s
Git Commit: %s
Build Date: %s
Go Version: %s
Platform: %s/%s`, Version, GitCommit, BuildDate, GoVersion, runtime.GOOS, runtime.GOARCH)
}

// GetVersion returns just the version string
func GetVersion() string {
	return Version
}

// UserAgent identifies the binary to upstream platform APIs
func UserAgent() string {
	return fmt.Sprintf("bountyscope/%s (+https://github.com/perplext/bountyscope)", Version)
}

func shortCommit(rev string) string {
	if len(rev) > 12 {
		return rev[:12]
	}
	return rev
}
