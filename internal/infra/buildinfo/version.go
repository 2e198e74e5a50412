package buildinfo

import (
	"runtime"
	"runtime/debug"
	"sync"
)

// Build-time variables (set via ldflags).
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Info contains build information.
type Info struct {
	Version   string `json:"version" yaml:"version"`
	Commit    string `json:"commit" yaml:"commit"`
	BuildTime string `json:"build_time" yaml:"build_time"`
	GoVersion string `json:"go_version" yaml:"go_version"`
}

var (
	vcsOnce     sync.Once
	vcsRevision string
)

// Get returns the build information.
func Get() Info {
	commit := Commit
	if commit == "unknown" {
		vcsOnce.Do(func() {
			if bi, ok := debug.ReadBuildInfo(); ok {
				for _, s := range bi.Settings {
					if s.Key == "vcs.revision" && len(s.Value) >= 7 {
						vcsRevision = s.Value[:7]
					}
				}
			}
		})
		if vcsRevision != "" {
			commit = vcsRevision
		}
	}

	return Info{
		Version:   Version,
		Commit:    commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
	}
}

// String returns a formatted version string.
func String() string {
	info := Get()
	return info.Version + " (" + info.Commit + ") built at " + info.BuildTime + " with " + info.GoVersion
}

// UserAgent is the User-Agent sent on every backend request.
func UserAgent() string {
	return "mm-cli/" + Version
}
