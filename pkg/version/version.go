// Package version reports the bugfeat build.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Set with -ldflags "-X github.com/Sumatoshi-tech/bugfeat/pkg/version.Version=...".
var (
	Version = "dev"
	Commit  = "<unknown>"
	Date    = "<unknown>"
)

// Info is the build description printed by "bugfeat version".
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
}

// Get returns the build info, falling back to VCS stamps for untagged builds.
func Get() Info {
	info := Info{Version: Version, Commit: Commit, Date: Date, GoVersion: runtime.Version()}

	build, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}

	for _, setting := range build.Settings {
		switch {
		case setting.Key == "vcs.revision" && info.Commit == "<unknown>":
			info.Commit = setting.Value
		case setting.Key == "vcs.time" && info.Date == "<unknown>":
			info.Date = setting.Value
		}
	}

	return info
}

func (i Info) String() string {
	return fmt.Sprintf("bugfeat %s (commit %s, built %s, %s)", i.Version, i.Commit, i.Date, i.GoVersion)
}
