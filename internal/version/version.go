// Package version provides build information and version details.
package version

import (
	"fmt"
	"runtime/debug"
	"strings"
	"time"
)

// These are set via ldflags at build time
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// startedAt is when the process loaded this package
var startedAt = time.Now()

// Info contains version and build information
type Info struct {
	Version     string `json:"version"`
	BuildTime   string `json:"build_time"`
	GoVersion   string `json:"go_version"`
	VCSRevision string `json:"vcs_revision,omitempty"`
	VCSTime     string `json:"vcs_time,omitempty"`
	VCSModified bool   `json:"vcs_modified"`
}

// Get returns the current version and build information
func Get() Info {
	info := Info{
		Version:   Version,
		BuildTime: BuildTime,
	}

	if buildInfo, ok := debug.ReadBuildInfo(); ok {
		info.GoVersion = buildInfo.GoVersion

		for _, setting := range buildInfo.Settings {
			switch setting.Key {
			case "vcs.revision":
				info.VCSRevision = setting.Value
			case "vcs.time":
				info.VCSTime = setting.Value
			case "vcs.modified":
				info.VCSModified = setting.Value == "true"
			}
		}
	}

	return info
}

// Uptime returns how long the process has been running
func Uptime() time.Duration {
	return time.Since(startedAt)
}

// ShortRevision returns the first 8 characters of the VCS revision
func (i Info) ShortRevision() string {
	if len(i.VCSRevision) > 8 {
		return i.VCSRevision[:8]
	}
	return i.VCSRevision
}

// String returns a human-readable version string
func (i Info) String() string {
	parts := []string{fmt.Sprintf("Version: %s", i.Version)}

	if i.BuildTime != "unknown" {
		parts = append(parts, fmt.Sprintf("Built: %s", i.BuildTime))
	}
	if i.GoVersion != "" {
		parts = append(parts, fmt.Sprintf("Go: %s", i.GoVersion))
	}

	if rev := i.ShortRevision(); rev != "" {
		if i.VCSModified {
			rev += " (modified)"
		}
		parts = append(parts, fmt.Sprintf("Commit: %s", rev))
	}

	return strings.Join(parts, ", ")
}

// Warnings lists problems with the build worth logging at start-up
func (i Info) Warnings() []string {
	var warnings []string
	if i.VCSModified {
		warnings = append(warnings, "binary built from modified source tree")
	}
	if i.VCSRevision == "" && i.Version == "dev" {
		warnings = append(warnings, "no version control information available (development build)")
	}
	return warnings
}
