// Package version reports build metadata and the hardware backends compiled
// into the binary.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

var (
	// Version is the application version, set via ldflags during build.
	Version = "dev"
	// GitCommit is the git commit hash, set via ldflags during build.
	GitCommit = "unknown"
	// BuildDate is the build timestamp, set via ldflags during build.
	BuildDate = "unknown"
)

// Info contains version and build metadata.
type Info struct {
	Version   string   `json:"version"`
	GitCommit string   `json:"git_commit"`
	BuildDate string   `json:"build_date"`
	GoVersion string   `json:"go_version"`
	Platform  string   `json:"platform"`
	Cgo       bool     `json:"cgo"`
	Backends  []string `json:"backends"`
}

// Get returns version and build information. Without ldflags the commit
// and date come from the VCS stamp of the Go toolchain, when present.
func Get() Info {
	info := Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		applyBuildSettings(&info, bi.Settings)
	}
	info.Backends = backends(runtime.GOOS, info.Cgo)
	return info
}

func applyBuildSettings(info *Info, settings []debug.BuildSetting) {
	for _, s := range settings {
		switch s.Key {
		case "CGO_ENABLED":
			info.Cgo = s.Value == "1"
		case "vcs.revision":
			if info.GitCommit == "unknown" && s.Value != "" {
				info.GitCommit = s.Value
			}
		case "vcs.time":
			if info.BuildDate == "unknown" && s.Value != "" {
				info.BuildDate = s.Value
			}
		}
	}
}

// backends lists the hardware services usable on goos. malgo wraps a C
// library and needs cgo.
func backends(goos string, cgo bool) []string {
	list := []string{"sim"}
	if goos == "linux" {
		list = append(list, "alsa")
	}
	if cgo {
		list = append(list, "malgo")
	}
	return list
}

// String returns the application version string.
func String() string {
	return Version
}
