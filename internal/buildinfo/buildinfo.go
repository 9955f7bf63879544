// Package buildinfo reports the version of the running binary. Release
// builds stamp it via ldflags; plain `go build` and `go install` builds
// fall back to the VCS data the toolchain embeds.
package buildinfo

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"time"
)

// Set at build time via -ldflags "-X".
var (
	Version   = "dev"
	GitCommit = "unknown"
	GitBranch = "unknown"
	BuildTime = "unknown"
)

var startTime = time.Now()

// Info is the build metadata of the running binary.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"git_commit"`
	Branch    string `json:"git_branch"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// Read returns the stamped metadata, filling unstamped fields from
// [debug.ReadBuildInfo] where the toolchain recorded them.
func Read() Info {
	info := Info{
		Version:   Version,
		Commit:    GitCommit,
		Branch:    GitBranch,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		info.fill(bi)
	}
	return info
}

// fill copies module version and vcs settings from bi into fields
// still at their unstamped defaults.
func (i *Info) fill(bi *debug.BuildInfo) {
	if i.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		i.Version = bi.Main.Version
	}

	var revision, modified string
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			modified = s.Value
		case "vcs.time":
			if i.BuildTime == "unknown" {
				i.BuildTime = s.Value
			}
		}
	}
	if i.Commit == "unknown" && revision != "" {
		if len(revision) > 12 {
			revision = revision[:12]
		}
		if modified == "true" {
			revision += "-dirty"
		}
		i.Commit = revision
	}
}

// Fields returns the metadata as ordered label/value pairs for text output.
func (i Info) Fields() [][2]string {
	return [][2]string{
		{"version", i.Version},
		{"git_commit", i.Commit},
		{"git_branch", i.Branch},
		{"build_time", i.BuildTime},
		{"go_version", i.GoVersion},
		{"os", i.OS},
		{"arch", i.Arch},
	}
}

// String is the one-line form used in logs and `mqttscope version`.
func (i Info) String() string {
	return fmt.Sprintf("mqttscope %s (%s@%s) built %s", i.Version, i.Commit, i.Branch, i.BuildTime)
}

// Uptime returns the time since process start, to the second.
func Uptime() time.Duration {
	return time.Since(startTime).Truncate(time.Second)
}
