// Package version provides the scmon version and build info.
//
//nolint:revive
package version

import (
	"fmt"
	"runtime/debug"
	"sync"
)

var (
	// Version is overridden by ldflags at build time.
	Version = "dev"
	// CommitHash is the git commit hash at build time.
	CommitHash = ""
	// BuildTime is the time when the binary was built.
	BuildTime = ""

	vcsOnce sync.Once
)

func readVCS() {
	if CommitHash != "" {
		return
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return
	}
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			CommitHash = setting.Value
		case "vcs.time":
			BuildTime = setting.Value
		}
	}
}

// GetInfo returns the version followed by the short commit hash when known.
func GetInfo() string {
	vcsOnce.Do(readVCS)

	res := Version
	if CommitHash != "" {
		short := CommitHash
		if len(short) > 7 {
			short = short[:7]
		}
		res += fmt.Sprintf(" (%s)", short)
	}
	return res
}

// Full returns GetInfo plus the build time, used by `scmon version`.
func Full() string {
	res := GetInfo()
	if BuildTime != "" {
		res += " built " + BuildTime
	}
	return res
}
