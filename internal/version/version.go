// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package version provides build-time version information.
package version

import "fmt"

// Dev is reported when no version was injected at build time.
const Dev = "dev"

// Info contains build-time version information injected via ldflags.
type Info struct {
	Version   string // Semantic version from git tags (e.g., "v1.2.3")
	GitCommit string // Short git commit hash (e.g., "abc1234")
	BuildTime string // Build timestamp in RFC3339 format
}

// PluginVersion returns the version reported to the collector as
// plugin_version, without a leading "v".
func (i Info) PluginVersion() string {
	if i.Version == "" {
		return Dev
	}
	if len(i.Version) > 1 && i.Version[0] == 'v' && i.Version[1] >= '0' && i.Version[1] <= '9' {
		return i.Version[1:]
	}
	return i.Version
}

// UserAgent returns the User-Agent sent with collector requests.
func (i Info) UserAgent() string {
	return "stalkfish-go/" + i.PluginVersion()
}

// String returns a one-line description for the -version flag.
func (i Info) String() string {
	commit, built := i.GitCommit, i.BuildTime
	if commit == "" {
		commit = "unknown"
	}
	if built == "" {
		built = "unknown"
	}
	return fmt.Sprintf("stalkfish %s (commit %s, built %s)", i.PluginVersion(), commit, built)
}
