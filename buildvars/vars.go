// Copyright (c) 2026 Taskboard Team
// Taskboard - task tracking storage layer
// This source code is licensed under the MIT license found in the LICENSE file.

// Package buildvars contains variables injected at build time.
package buildvars

// Version is set at link time via `-ldflags -X github.com/taskboard/taskboard/buildvars.Version=...`.
// It will be empty for local or development builds.
var Version string

// Commit is the short VCS revision, set the same way as Version.
var Commit string

// VersionOrDefault returns `Version` if set, otherwise returns the provided default.
func VersionOrDefault(def string) string {
	if len(Version) > 0 {
		return Version
	}
	return def
}

// CommitOrDefault returns `Commit` if set, otherwise returns the provided default.
func CommitOrDefault(def string) string {
	if len(Commit) > 0 {
		return Commit
	}
	return def
}
