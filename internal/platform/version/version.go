// Package version reports what build is running. Release builds set the
// variables below with -ldflags "-X"; anything left empty is filled from the
// VCS stamp the Go toolchain embeds, so plain "go install" builds still
// report a commit.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
)

var (
	Version   string
	Commit    string
	BuildTime string
)

const (
	develVersion     = "dev"
	unknown          = "unknown"
	shortRevisionLen = 12
)

// Info is served on /version and stamped into the instance registry.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
	Modified  bool   `json:"modified,omitempty"`
}

var (
	resolveOnce sync.Once
	resolved    Info
)

// Get returns the build information, resolved once per process.
func Get() Info {
	resolveOnce.Do(func() {
		resolved = resolve(Version, Commit, BuildTime, debug.ReadBuildInfo)
	})
	return resolved
}

func resolve(version, commit, buildTime string, readBuildInfo func() (*debug.BuildInfo, bool)) Info {
	info := Info{Version: version, Commit: commit, BuildTime: buildTime, GoVersion: runtime.Version()}

	if bi, ok := readBuildInfo(); ok && bi != nil {
		if info.Version == "" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
			info.Version = bi.Main.Version
		}
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if info.Commit == "" {
					info.Commit = shortRevision(s.Value)
				}
			case "vcs.time":
				if info.BuildTime == "" {
					info.BuildTime = s.Value
				}
			case "vcs.modified":
				info.Modified = s.Value == "true"
			}
		}
	}

	if info.Version == "" {
		info.Version = develVersion
	}
	if info.Commit == "" {
		info.Commit = unknown
	}
	if info.BuildTime == "" {
		info.BuildTime = unknown
	}
	return info
}

func shortRevision(rev string) string {
	if len(rev) > shortRevisionLen {
		return rev[:shortRevisionLen]
	}
	return rev
}

// UserAgent identifies a client binary, e.g. "notifywatch/v1.2.0 (4f1c2a9e0b7d)".
func UserAgent(binary string) string {
	info := Get()
	return fmt.Sprintf("%s/%s (%s)", binary, info.Version, info.Commit)
}
