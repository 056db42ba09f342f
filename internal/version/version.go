// Package version reports how the toolkit binary was built.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"

	"github.com/Masterminds/semver"
)

// Set at build time with -ldflags "-X github.com/conneroisu/toolkit/internal/version.Version=...".
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// BuildInfo describes the running binary.
type BuildInfo struct {
	Version   string    `json:"version"`
	GitCommit string    `json:"git_commit"`
	BuildTime time.Time `json:"build_time"`
	GoVersion string    `json:"go_version"`
	Platform  string    `json:"platform"`
	Dirty     bool      `json:"dirty"`
}

// Get collects the build information, falling back to the module build
// info embedded by the Go toolchain.
func Get() BuildInfo {
	info := BuildInfo{
		Version:   Version,
		GitCommit: GitCommit,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if t, err := time.Parse(time.RFC3339, BuildTime); err == nil {
		info.BuildTime = t
	}

	if bi, ok := debug.ReadBuildInfo(); ok {
		if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
			info.Version = bi.Main.Version
		}
		for _, setting := range bi.Settings {
			switch setting.Key {
			case "vcs.revision":
				if info.GitCommit == "unknown" {
					info.GitCommit = setting.Value
				}
			case "vcs.modified":
				info.Dirty = setting.Value == "true"
			}
		}
	}
	return info
}

// IsRelease reports whether v is a semantic version without a prerelease
// part.
func IsRelease(v string) bool {
	sv, err := semver.NewVersion(strings.TrimPrefix(v, "v"))
	return err == nil && sv.Prerelease() == ""
}

// Short is a one-line version string.
func (b BuildInfo) Short() string {
	out := b.Version
	if len(b.GitCommit) >= 7 && b.GitCommit != "unknown" {
		out += " (" + b.GitCommit[:7] + ")"
	}
	if b.Dirty {
		out += " (dirty)"
	}
	return out
}

// Detailed lists every field on its own line.
func (b BuildInfo) Detailed() string {
	lines := []string{
		fmt.Sprintf("Version:  %s", b.Version),
		fmt.Sprintf("Commit:   %s", b.GitCommit),
	}
	if !b.BuildTime.IsZero() {
		lines = append(lines, fmt.Sprintf("Built:    %s", b.BuildTime.Format(time.RFC3339)))
	}
	lines = append(lines,
		fmt.Sprintf("Go:       %s", b.GoVersion),
		fmt.Sprintf("Platform: %s", b.Platform),
	)
	return strings.Join(lines, "\n")
}
