/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package version provides build version information.
package version

import (
	"fmt"
	"runtime"
)

// Version is the current version of melted.
// This is set at build time via ldflags:
//
//	-X github.com/mltframework/melted/internal/version.Version=X.Y.Z
var Version = "7.0.0"

// Commit is the source revision, also set via ldflags.
var Commit = ""

// Info describes the running build.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	GoVersion string `json:"go_version"`
}

// Current returns the build information of this binary.
func Current() Info {
	return Info{Version: Version, Commit: Commit, GoVersion: runtime.Version()}
}

// String renders the one-line banner printed by "melted version".
func (i Info) String() string {
	if i.Commit == "" {
		return fmt.Sprintf("melted %s (%s)", i.Version, i.GoVersion)
	}
	return fmt.Sprintf("melted %s-%s (%s)", i.Version, i.Commit, i.GoVersion)
}
