// Copyright lowRISC contributors (OpenTitan project).
// Licensed under the Apache License, Version 2.0, see LICENSE for details.
// SPDX-License-Identifier: Apache-2.0

// buildver package provides access to build version variables and utilities
// to generate formatted version strings.
package buildver

import (
	"fmt"
	"runtime/debug"
)

var (
	// The following variables are set at link time with
	// -ldflags "-X github.com/lowRISC/asu-keywrap/src/version/buildver.<Name>=<value>".

	// BuildHost contains the build hostname.
	BuildHost = "unknown"

	// BuildUser contains the build user.
	BuildUser = "unknown"

	// BuildTimestamp contains the build timestamp.
	BuildTimestamp = "0"

	// BuildSCMRevision contains the repository release tag or commit hash.
	BuildSCMRevision = "unknown"

	// BuildSCMStatus contains the status of the repository.
	BuildSCMStatus = "unknown"
)

// revision returns BuildSCMRevision, falling back to the VCS stamp the go
// tool embeds when the variable was not set at link time.
func revision() string {
	if BuildSCMRevision != "unknown" {
		return BuildSCMRevision
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" && s.Value != "" {
				return s.Value
			}
		}
	}
	return BuildSCMRevision
}

// FormattedStr returns a formatted string version which can be used to
// reference the target release.
func FormattedStr() string {
	return fmt.Sprintf("Version: %s-%s Host: %q User: %q Timestamp: %s", revision(), BuildSCMStatus, BuildHost, BuildUser, BuildTimestamp)
}
