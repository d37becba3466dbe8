// Package version reports the build identity of the tstlplay binary.
//
// Release builds stamp the variables below with -ldflags, e.g.
//
//	go build -ldflags "-X github.com/conneroisu/tstlplay/internal/version.Version=v0.3.0"
//
// Development builds fall back to the VCS settings embedded by the Go
// toolchain.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

// Info is the build identity served by /health and printed by the version
// command.
type Info struct {
	Version   string    `json:"version"`
	GitCommit string    `json:"git_commit"`
	BuildTime time.Time `json:"build_time,omitempty"`
	GoVersion string    `json:"go_version"`
	Platform  string    `json:"platform"`
	Dirty     bool      `json:"dirty,omitempty"`
}

var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// readBuildInfo is swapped in tests.
var readBuildInfo = debug.ReadBuildInfo

// Get collects the build identity.
func Get() *Info {
	return &Info{
		Version:   GetVersion(),
		GitCommit: GetGitCommit(),
		BuildTime: parseBuildTime(BuildTime),
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		Dirty:     vcsSetting("vcs.modified") == "true",
	}
}

// GetVersion returns the stamped version, the module version, or dev.
func GetVersion() string {
	if Version != "" && Version != "dev" {
		return Version
	}
	if info, ok := readBuildInfo(); ok {
		if v := info.Main.Version; v != "" && v != "(devel)" {
			return v
		}
	}
	return "dev"
}

// GetGitCommit returns the stamped commit or the VCS revision.
func GetGitCommit() string {
	if GitCommit != "" && GitCommit != "unknown" {
		return GitCommit
	}
	if rev := vcsSetting("vcs.revision"); rev != "" {
		return rev
	}
	return "unknown"
}

// GetShortVersion returns "v1.2.3 (abcdef1)", "dev-abcdef1" or the bare
// version when no commit is known.
func GetShortVersion() string {
	v := GetVersion()
	commit := GetGitCommit()
	if commit == "unknown" || len(commit) < 7 {
		return v
	}
	if v == "dev" {
		return "dev-" + commit[:7]
	}
	return fmt.Sprintf("%s (%s)", v, commit[:7])
}

// String renders the multi-line form printed by `tstlplay version`.
func (i *Info) String() string {
	lines := []string{"tstlplay " + i.Version}
	if i.GitCommit != "unknown" {
		commit := "commit: " + i.GitCommit
		if i.Dirty {
			commit += " (dirty)"
		}
		lines = append(lines, commit)
	}
	if !i.BuildTime.IsZero() {
		lines = append(lines, "built: "+i.BuildTime.Format(time.RFC3339))
	}
	lines = append(lines, "go: "+i.GoVersion, "platform: "+i.Platform)
	return strings.Join(lines, "\n")
}

// IsRelease reports whether the binary carries a real version.
func IsRelease() bool {
	v := GetVersion()
	return v != "dev" && !strings.HasPrefix(v, "dev-")
}

func vcsSetting(key string) string {
	info, ok := readBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range info.Settings {
		if s.Key == key {
			return s.Value
		}
	}
	return ""
}

func parseBuildTime(s string) time.Time {
	if s == "" || s == "unknown" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
