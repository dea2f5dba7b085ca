// Package version stamps bus messages and startup logs with the build
// version, and gates consumption on wire compatibility. Overridable at
// build time:
//
//	go build -ldflags "-X github.com/AltairaLabs/hearth/version.version=1.0.0"
package version

import "runtime/debug"

const devVersion = "dev"

const shortCommitLen = 7

// Set via -ldflags; left alone in dev builds.
var (
	version   = devVersion
	gitCommit = ""
	buildDate = ""
)

// Get returns the build version, falling back to the module version
// embedded by the Go toolchain when no ldflags were set.
func Get() string {
	if version != devVersion {
		return version
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		if v := info.Main.Version; v != "" && v != "(devel)" {
			return v
		}
	}
	return devVersion
}

// BuildInfo returns version details as slog attributes for the
// worker_starting log line.
func BuildInfo() []any {
	attrs := []any{"version", Get()}

	commit, dirty := vcsState()
	if gitCommit != "" {
		commit, dirty = gitCommit, false
	}
	if commit != "" {
		attrs = append(attrs, "commit", commit)
	}
	if dirty {
		attrs = append(attrs, "dirty", true)
	}
	if buildDate != "" {
		attrs = append(attrs, "built", buildDate)
	}
	return attrs
}

// vcsState reads the short commit hash and dirty flag stamped by the
// toolchain.
func vcsState() (commit string, dirty bool) {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "", false
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			commit = s.Value[:min(shortCommitLen, len(s.Value))]
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	return commit, dirty
}
