package version

import (
	"runtime/debug"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func stamp(t *testing.T, version, commit, built string, settings ...debug.BuildSetting) {
	t.Helper()
	oldV, oldC, oldB, oldRead := Version, GitCommit, BuildTime, readBuildInfo
	t.Cleanup(func() {
		Version, GitCommit, BuildTime, readBuildInfo = oldV, oldC, oldB, oldRead
	})
	Version, GitCommit, BuildTime = version, commit, built
	readBuildInfo = func() (*debug.BuildInfo, bool) {
		return &debug.BuildInfo{Main: debug.Module{Version: "(devel)"}, Settings: settings}, true
	}
}

func TestShortVersion(t *testing.T) {
	tests := []struct {
		name     string
		version  string
		commit   string
		settings []debug.BuildSetting
		want     string
	}{
		{"release", "v0.3.0", "abcdef1234", nil, "v0.3.0 (abcdef1)"},
		{"release without commit", "v0.3.0", "unknown", nil, "v0.3.0"},
		{"dev from vcs", "dev", "unknown", []debug.BuildSetting{{Key: "vcs.revision", Value: "0123456789"}}, "dev-0123456"},
		{"bare dev", "dev", "unknown", nil, "dev"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stamp(t, tt.version, tt.commit, "unknown", tt.settings...)
			assert.Equal(t, tt.want, GetShortVersion())
		})
	}
}

func TestGet(t *testing.T) {
	stamp(t, "v1.0.0", "unknown", "2026-01-02T03:04:05Z",
		debug.BuildSetting{Key: "vcs.revision", Value: "feedfacecafe"},
		debug.BuildSetting{Key: "vcs.modified", Value: "true"})

	info := Get()
	assert.Equal(t, "v1.0.0", info.Version)
	assert.Equal(t, "feedfacecafe", info.GitCommit)
	assert.True(t, info.Dirty)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), info.BuildTime)
	assert.True(t, IsRelease())

	out := info.String()
	assert.Contains(t, out, "tstlplay v1.0.0")
	assert.Contains(t, out, "commit: feedfacecafe (dirty)")
	assert.Contains(t, out, "built: 2026-01-02T03:04:05Z")
}

func TestParseBuildTime(t *testing.T) {
	assert.True(t, parseBuildTime("unknown").IsZero())
	assert.True(t, parseBuildTime("yesterday").IsZero())
	assert.Equal(t, 2024, parseBuildTime("2024-05-06 07:08:09").Year())
}
